package uploads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"soapscribe/internal/models"
)

const DefaultTTL = time.Hour

// ErrTooLarge is returned when an upload exceeds the configured size limit.
var ErrTooLarge = errors.New("file too large")

// Store keeps uploads on disk for the lifetime of one pipeline run. When db is set, every
// stored file is registered so the sweeper can find leftovers after a crash.
type Store struct {
	dir      string
	maxBytes int64
	ttl      time.Duration
	db       *sql.DB
	logger   *zap.Logger
	now      func() time.Time
}

func NewStore(dir string, maxBytes int64, ttl time.Duration, db *sql.DB, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		dir:      dir,
		maxBytes: maxBytes,
		ttl:      ttl,
		db:       db,
		logger:   logger,
		now:      time.Now,
	}
}

// Dir returns the directory uploads are written to.
func (s *Store) Dir() string { return s.dir }

// Save persists a multipart upload.
func (s *Store) Save(ctx context.Context, fh *multipart.FileHeader) (*models.UploadedFile, error) {
	if fh == nil {
		return nil, errors.New("file header cannot be nil")
	}
	if s.maxBytes > 0 && fh.Size > s.maxBytes {
		return nil, ErrTooLarge
	}
	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	return s.SaveReader(ctx, fh.Filename, src)
}

// SaveReader copies r into the store under a fresh name that keeps the declared extension.
func (s *Store) SaveReader(ctx context.Context, name string, r io.Reader) (*models.UploadedFile, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	original := filepath.Base(name)
	ext := models.ExtOf(original)
	id := uuid.NewString()
	dest := filepath.Join(s.dir, id+ext)

	dst, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	size, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	switch {
	case copyErr != nil:
		s.removeQuietly(dest)
		return nil, fmt.Errorf("write upload: %w", copyErr)
	case closeErr != nil:
		s.removeQuietly(dest)
		return nil, fmt.Errorf("write upload: %w", closeErr)
	case s.maxBytes > 0 && size > s.maxBytes:
		s.removeQuietly(dest)
		return nil, ErrTooLarge
	}

	now := s.now().UTC()
	file := &models.UploadedFile{
		ID:           id,
		OriginalName: original,
		Ext:          ext,
		StoredPath:   dest,
		Size:         size,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
	}
	if err := s.record(ctx, file); err != nil {
		s.removeQuietly(dest)
		return nil, err
	}
	return file, nil
}

// Release deletes the stored bytes and the registry entry. A file that is already gone is
// not an error.
func (s *Store) Release(ctx context.Context, file *models.UploadedFile) error {
	if file == nil {
		return nil
	}
	var errs []error
	if err := os.Remove(file.StoredPath); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove upload %s: %w", file.StoredPath, err))
	}
	if s.db != nil {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = ?`, file.ID); err != nil {
			errs = append(errs, fmt.Errorf("delete upload record %s: %w", file.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) record(ctx context.Context, f *models.UploadedFile) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads (id, original_name, ext, stored_path, size, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.OriginalName, f.Ext, f.StoredPath, f.Size, f.CreatedAt, f.ExpiresAt)
	if err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	return nil
}

func (s *Store) removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("remove partial upload failed", zap.String("path", path), zap.Error(err))
	}
}
