package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"soapscribe/internal/api"
	"soapscribe/internal/app"
	"soapscribe/internal/config"
	"soapscribe/internal/logging"
	"soapscribe/internal/tracing"
)

func main() {
	if err := newRootCmd(app.Options{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts app.Options) *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "soapscribe",
		Short: "Generate SOAP notes and patient summaries from visit transcripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgPath, opts)
		},
	}
	root.SilenceUsage = true
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("SOAPSCRIBE_CONFIG"), "Path to config.json")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), cfgPath, opts)
		},
	})
	root.AddCommand(newGenerateCmd(&cfgPath, opts))
	return root
}

func setup(ctx context.Context, cfgPath string, opts app.Options) (*app.App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.BasicConfig.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a, err := app.New(ctx, cfg, logger, opts)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return a, nil
}

func serve(ctx context.Context, cfgPath string, opts app.Options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cfgPath, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer a.Close()
	logger := a.Logger
	defer logger.Sync()

	shutdownTracing, err := tracing.Setup(ctx, a.Config.Tracing, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	a.StartBackground(ctx)

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	basic := a.Config.BasicConfig
	var runs api.RunLister
	if a.Ledger != nil {
		runs = a.Ledger
	}
	handler := api.NewHandler(a.Orchestrator, a.Uploads, runs, basic.MaxUploadBytes, basic.AllowedOrigin, logger)
	router := gin.New()
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              basic.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("provider", a.Config.Provider.Name))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
