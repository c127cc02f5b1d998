package uploads

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"soapscribe/internal/metrics"
)

const DefaultCleanupInterval = 10 * time.Minute

// StartSweeper removes uploads that outlived their TTL until ctx is cancelled. Normal runs
// release their upload themselves; this only catches files left behind by a crash.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	go s.sweepLoop(ctx, interval)
}

func (s *Store) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.logger.Warn("sweep uploads failed", zap.Error(err))
			} else if n > 0 {
				s.logger.Info("swept expired uploads", zap.Int("count", n))
			}
		}
	}
}

// Sweep removes every expired upload and returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	var (
		n   int
		err error
	)
	if s.db != nil {
		n, err = s.sweepRecords(ctx)
	} else {
		n, err = s.sweepDir()
	}
	metrics.UploadsSweptTotal.Add(float64(n))
	return n, err
}

func (s *Store) sweepRecords(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, stored_path FROM uploads WHERE expires_at <= ?`, s.now().UTC())
	if err != nil {
		return 0, err
	}
	type fileRow struct {
		id   string
		path string
	}
	var files []fileRow
	for rows.Next() {
		var fr fileRow
		if err := rows.Scan(&fr.id, &fr.path); err != nil {
			rows.Close()
			return 0, err
		}
		files = append(files, fr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range files {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove expired upload failed", zap.String("path", f.path), zap.Error(err))
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, f.id); err != nil {
			s.logger.Warn("delete upload record failed", zap.String("id", f.id), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// sweepDir is used without a registry: any regular file older than the TTL is expired.
func (s *Store) sweepDir() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove expired upload failed", zap.String("path", path), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}
