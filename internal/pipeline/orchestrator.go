package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"soapscribe/internal/metrics"
	"soapscribe/internal/models"
	"soapscribe/internal/tracing"
	"soapscribe/internal/transcript"
)

// Resolver yields the transcript of an uploaded file.
type Resolver interface {
	Resolve(ctx context.Context, f *models.UploadedFile) (string, error)
}

// Generator produces the text of one artifact from a transcript.
type Generator interface {
	Generate(ctx context.Context, task models.TaskKind, transcript string) (string, error)
}

// Releaser frees the storage behind an upload.
type Releaser interface {
	Release(ctx context.Context, f *models.UploadedFile) error
}

// RunObserver is told about every finished run. Observer errors are logged only.
type RunObserver interface {
	ObserveRun(ctx context.Context, run models.PipelineRun) error
}

// Orchestrator runs resolve → generate (SOAP note ∥ summary) → release for one upload.
// It holds no per-request state and is safe for concurrent use.
type Orchestrator struct {
	resolver  Resolver
	generator Generator
	releaser  Releaser
	observers []RunObserver
	logger    *zap.Logger
}

func NewOrchestrator(resolver Resolver, generator Generator, releaser Releaser, logger *zap.Logger, observers ...RunObserver) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		resolver:  resolver,
		generator: generator,
		releaser:  releaser,
		observers: observers,
		logger:    logger,
	}
}

// Run executes the pipeline for file. It returns either a complete result or an error,
// never both, and releases file on every path.
func (o *Orchestrator) Run(ctx context.Context, file *models.UploadedFile) (result *models.PipelineResult, err error) {
	run := models.PipelineRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		FileKind:  "none",
	}
	if file != nil {
		run.FileName = file.OriginalName
		run.Size = file.Size
		run.FileKind = fileKind(file)
	}
	logger := o.logger.With(zap.String("run_id", run.ID))

	ctx, span := tracing.Tracer("pipeline").Start(ctx, "pipeline.run")
	span.SetAttributes(attribute.String("run.id", run.ID), attribute.String("file.kind", run.FileKind))

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("%w: panic: %v", ErrUnexpected, r)
		}
		o.cleanup(ctx, logger, file)
		if err != nil {
			result = nil
			span.RecordError(err)
			span.SetStatus(codes.Error, string(Classify(err)))
		}
		span.End()
		o.finish(ctx, logger, run, err)
	}()

	if file == nil {
		return nil, ErrMissingFile
	}

	text, err := o.resolver.Resolve(ctx, file)
	if err != nil {
		return nil, err
	}

	soapNote, summary, err := o.generateBoth(ctx, text)
	if err != nil {
		return nil, err
	}
	return &models.PipelineResult{SoapNote: soapNote, PatientSummary: summary}, nil
}

// generateBoth issues both generation calls concurrently; the first failure cancels the
// other call and is the one reported.
func (o *Orchestrator) generateBoth(ctx context.Context, text string) (string, string, error) {
	var soapNote, summary string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := o.generate(gctx, models.TaskSoapNote, text)
		soapNote = out
		return err
	})
	g.Go(func() error {
		out, err := o.generate(gctx, models.TaskSummary, text)
		summary = out
		return err
	})
	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return soapNote, summary, nil
}

func (o *Orchestrator) generate(ctx context.Context, task models.TaskKind, text string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = "", fmt.Errorf("%w: panic in %s generation: %v", ErrUnexpected, task, r)
		}
	}()
	return o.generator.Generate(ctx, task, text)
}

// cleanup runs detached from request cancellation so an aborted client cannot leak the upload.
func (o *Orchestrator) cleanup(ctx context.Context, logger *zap.Logger, file *models.UploadedFile) {
	if file == nil || o.releaser == nil {
		return
	}
	if err := o.releaser.Release(context.WithoutCancel(ctx), file); err != nil {
		logger.Warn("release upload failed", zap.String("path", file.StoredPath), zap.Error(err))
	}
}

func (o *Orchestrator) finish(ctx context.Context, logger *zap.Logger, run models.PipelineRun, err error) {
	run.FinishedAt = time.Now()
	run.Duration = run.FinishedAt.Sub(run.StartedAt)
	run.Status = models.RunStatusCompleted
	if err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorKind = string(Classify(err))
	}

	metrics.PipelineRunsTotal.WithLabelValues(run.Status, run.ErrorKind).Inc()
	metrics.PipelineDurationSeconds.WithLabelValues(run.Status).Observe(run.Duration.Seconds())

	fields := []zap.Field{
		zap.String("file_kind", run.FileKind),
		zap.Int64("size", run.Size),
		zap.Duration("duration", run.Duration),
	}
	switch {
	case err == nil:
		logger.Info("pipeline completed", fields...)
	case isCancellation(err) || Classify(err).IsClientError():
		logger.Info("pipeline rejected", append(fields, zap.String("error_kind", run.ErrorKind), zap.Error(err))...)
	default:
		logger.Error("pipeline failed", append(fields, zap.String("error_kind", run.ErrorKind), zap.Error(err))...)
	}

	obsCtx := context.WithoutCancel(ctx)
	for _, obs := range o.observers {
		if obs == nil {
			continue
		}
		if err := obs.ObserveRun(obsCtx, run); err != nil {
			logger.Warn("record pipeline run failed", zap.Error(err))
		}
	}
}

func fileKind(f *models.UploadedFile) string {
	ext := f.Ext
	if ext == "" {
		ext = models.ExtOf(f.OriginalName)
	}
	if kind, ok := transcript.KindOf(ext); ok {
		return string(kind)
	}
	return "unknown"
}
