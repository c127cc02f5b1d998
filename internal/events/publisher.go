package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"soapscribe/internal/models"
	"soapscribe/internal/redis"
)

// RunsChannel carries one JSON message per finished pipeline run.
const RunsChannel = "pipeline:runs"

// RunEvent is the wire form of a finished run.
type RunEvent struct {
	RunID      string `json:"run_id"`
	FileKind   string `json:"file_kind"`
	Status     string `json:"status"`
	ErrorKind  string `json:"error_kind,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	FinishedAt int64  `json:"finished_at"`
}

// Publisher broadcasts run events over redis pub/sub.
type Publisher struct {
	client *redis.Client
	logger *zap.Logger
}

func NewPublisher(client *redis.Client, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, logger: logger}
}

// ObserveRun publishes run to RunsChannel.
func (p *Publisher) ObserveRun(ctx context.Context, run models.PipelineRun) error {
	if p == nil || p.client == nil {
		return errors.New("publisher not initialized")
	}
	payload, err := json.Marshal(RunEvent{
		RunID:      run.ID,
		FileKind:   run.FileKind,
		Status:     run.Status,
		ErrorKind:  run.ErrorKind,
		DurationMS: run.Duration.Milliseconds(),
		FinishedAt: run.FinishedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	if err := p.client.Publish(ctx, RunsChannel, payload); err != nil {
		return fmt.Errorf("publish run event: %w", err)
	}
	return nil
}

// Subscribe delivers decoded run events to handler until ctx is cancelled.
func Subscribe(ctx context.Context, client *redis.Client, logger *zap.Logger, handler func(RunEvent)) error {
	raw := client.Raw()
	if raw == nil || handler == nil {
		return errors.New("subscribe requires a client and a handler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pubsub := raw.Subscribe(ctx, RunsChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", RunsChannel, err)
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt RunEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					logger.Warn("run event decode failed", zap.Error(err))
					continue
				}
				handler(evt)
			}
		}
	}()
	return nil
}
