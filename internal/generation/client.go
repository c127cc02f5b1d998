package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"soapscribe/internal/metrics"
	"soapscribe/internal/models"
	"soapscribe/internal/tracing"
)

// NoResponse is returned when the backend answers without any usable content.
const NoResponse = "No response."

// ErrGenerationService marks failures of the external generation call.
var ErrGenerationService = errors.New("generation service error")

// ServiceError carries the task whose generation call failed.
type ServiceError struct {
	Task models.TaskKind
	Err  error
}

func (e *ServiceError) Error() string {
	return "generate " + string(e.Task) + ": " + e.Err.Error()
}

func (e *ServiceError) Unwrap() error { return e.Err }

func (e *ServiceError) Is(target error) bool { return target == ErrGenerationService }

// Client issues one stateless generation call per request: no retry, caching or streaming.
type Client struct {
	chatModel model.BaseChatModel
	maxTokens int
	timeout   time.Duration
	logger    *zap.Logger
}

// NewClient wraps a chat model. A zero timeout leaves the call bounded only by ctx.
func NewClient(chatModel model.BaseChatModel, maxTokens int, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		chatModel: chatModel,
		maxTokens: maxTokens,
		timeout:   timeout,
		logger:    logger,
	}
}

// Generate builds the prompt for task and returns the first generated content segment.
func (c *Client) Generate(ctx context.Context, task models.TaskKind, transcript string) (string, error) {
	prompt, err := BuildPrompt(task, transcript)
	if err != nil {
		return "", err
	}
	if c.chatModel == nil {
		return "", &ServiceError{Task: task, Err: errors.New("chat model not initialized")}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx, span := tracing.Tracer("generation").Start(ctx, "generation."+string(task))
	defer span.End()
	span.SetAttributes(attribute.Int("prompt.chars", len(prompt)))

	var opts []model.Option
	if c.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(c.maxTokens))
	}

	start := time.Now()
	resp, err := c.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, opts...)
	metrics.GenerationLatencySeconds.WithLabelValues(string(task)).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		if errors.Is(ctx.Err(), context.Canceled) {
			// backends may report an aborted request without wrapping the context error
			if !errors.Is(err, context.Canceled) {
				err = fmt.Errorf("%w: %v", context.Canceled, err)
			}
			metrics.GenerationCallsTotal.WithLabelValues(string(task), "canceled").Inc()
			span.SetStatus(codes.Error, "canceled")
			c.logger.Debug("generation call canceled", zap.String("task", string(task)))
		} else {
			metrics.GenerationCallsTotal.WithLabelValues(string(task), "error").Inc()
			span.SetStatus(codes.Error, "generation failed")
			c.logger.Warn("generation call failed", zap.String("task", string(task)), zap.Error(err))
		}
		return "", &ServiceError{Task: task, Err: pkgerrors.Wrap(err, "call generation backend")}
	}

	text := firstSegment(resp)
	if text == "" {
		metrics.GenerationCallsTotal.WithLabelValues(string(task), "empty").Inc()
		c.logger.Info("generation returned no content", zap.String("task", string(task)))
		return NoResponse, nil
	}
	metrics.GenerationCallsTotal.WithLabelValues(string(task), "ok").Inc()
	return text, nil
}

// firstSegment returns the text content of resp. eino adapters fold every text block of a
// reply into Content, so a multi-block answer arrives as one segment.
func firstSegment(resp *schema.Message) string {
	if resp == nil {
		return ""
	}
	return resp.Content
}
