package models

import (
	"path/filepath"
	"strings"
	"time"
)

// UploadedFile represents a transient upload owned by a single pipeline run.
type UploadedFile struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	Ext          string    `json:"ext"`
	StoredPath   string    `json:"stored_path"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ExtOf returns the lower-cased extension of a declared file name, including the dot.
func ExtOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
