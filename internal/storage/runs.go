package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"soapscribe/internal/models"
)

// RunLedger records pipeline run metadata.
type RunLedger struct {
	db *sql.DB
}

func NewRunLedger(db *sql.DB) *RunLedger {
	return &RunLedger{db: db}
}

// ObserveRun stores one finished run.
func (l *RunLedger) ObserveRun(ctx context.Context, run models.PipelineRun) error {
	if l == nil || l.db == nil {
		return errors.New("run ledger not initialized")
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, file_name, file_kind, size, status, error_kind, duration_ms, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.FileName, run.FileKind, run.Size, run.Status, run.ErrorKind,
		run.Duration.Milliseconds(), run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (l *RunLedger) RecentRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, file_name, file_kind, size, status, error_kind, duration_ms, started_at, finished_at
		FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pipeline runs: %w", err)
	}
	defer rows.Close()

	var runs []models.PipelineRun
	for rows.Next() {
		var (
			run        models.PipelineRun
			durationMS int64
		)
		if err := rows.Scan(&run.ID, &run.FileName, &run.FileKind, &run.Size, &run.Status,
			&run.ErrorKind, &durationMS, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
