package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"

	"soapscribe/internal/config"
	"soapscribe/internal/events"
	"soapscribe/internal/generation"
	"soapscribe/internal/pipeline"
	"soapscribe/internal/redis"
	"soapscribe/internal/storage"
	"soapscribe/internal/transcript"
	"soapscribe/internal/uploads"
)

// App holds the wired components of one process.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Orchestrator *pipeline.Orchestrator
	Uploads      *uploads.Store
	Ledger       *storage.RunLedger

	db    *sql.DB
	redis *redis.Client
}

// Options overrides components, mainly for tests and the CLI.
type Options struct {
	ChatModel   model.BaseChatModel
	Transcriber transcript.TranscriptionBackend
}

// New wires every component from cfg. Optional backends (database, redis) are only
// connected when configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	var observers []pipeline.RunObserver
	if driver := storage.Driver(cfg.Database); driver != "" {
		db, err := storage.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = db
		if err := storage.Migrate(db, driver); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		a.Ledger = storage.NewRunLedger(db)
		observers = append(observers, a.Ledger)
		logger.Info("run ledger enabled", zap.String("driver", driver))
	}

	if cfg.Redis.Enabled() {
		rdb, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create redis client: %w", err)
		}
		a.redis = rdb
		observers = append(observers, events.NewPublisher(rdb, logger))
		logger.Info("run events enabled", zap.String("channel", events.RunsChannel))
	}

	basic := cfg.BasicConfig
	a.Uploads = uploads.NewStore(basic.UploadDir, basic.MaxUploadBytes,
		time.Duration(basic.TempFileTTL)*time.Minute, a.db, logger)

	resolver, err := transcript.NewResolver(ctx, opts.Transcriber, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	chatModel := opts.ChatModel
	if chatModel == nil {
		if cfg.Provider.APIKey == "" {
			logger.Warn("provider api key not configured; generation calls will fail",
				zap.String("provider", cfg.Provider.Name))
		}
		chatModel, err = generation.NewChatModel(ctx, cfg.Provider)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	client := generation.NewClient(chatModel, cfg.Provider.MaxTokens,
		time.Duration(basic.GenerationTimeoutSeconds)*time.Second, logger)

	a.Orchestrator = pipeline.NewOrchestrator(resolver, client, a.Uploads, logger, observers...)
	return a, nil
}

// StartBackground launches the upload sweeper until ctx is cancelled.
func (a *App) StartBackground(ctx context.Context) {
	a.Uploads.StartSweeper(ctx, time.Duration(a.Config.BasicConfig.TempCleanInterval)*time.Minute)
}

// Close releases database and redis connections.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
