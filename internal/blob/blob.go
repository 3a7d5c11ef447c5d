// Package blob stores attachment bytes on local disk or in an S3-compatible
// bucket.
package blob

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"
)

const (
	MaxFiles    = 5
	MaxFileSize = 10 << 20
)

var allowedExtensions = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".txt":  "text/plain",
	".csv":  "text/csv",
}

var ErrNotFound = errors.New("blob not found")

// ValidationError describes a rejected upload.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// File is one incoming upload.
type File struct {
	Name string
	Size int64
}

// Store persists attachment bytes under a generated key.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	Delete(ctx context.Context, location string) error
}

// Validate checks the count, size and extension of an upload batch.
func Validate(files []File) error {
	if len(files) == 0 {
		return &ValidationError{Message: "no files uploaded"}
	}
	if len(files) > MaxFiles {
		return &ValidationError{Message: fmt.Sprintf("at most %d files per upload", MaxFiles)}
	}
	for _, file := range files {
		if file.Size > MaxFileSize {
			return &ValidationError{Message: fmt.Sprintf("%s exceeds the 10MB limit", file.Name)}
		}
		if _, ok := allowedExtensions[Extension(file.Name)]; !ok {
			return &ValidationError{Message: fmt.Sprintf("%s has an unsupported file type", file.Name)}
		}
	}
	return nil
}

func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// ContentType maps an allowed extension to its MIME type, falling back to
// the client supplied value.
func ContentType(name, fallback string) string {
	if value, ok := allowedExtensions[Extension(name)]; ok {
		return value
	}
	if fallback != "" {
		return fallback
	}
	return "application/octet-stream"
}

// NewFilename returns "<unix-millis>-<random><ext>".
func NewFilename(original string, now time.Time) (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate filename: %w", err)
	}
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), hex.EncodeToString(b), Extension(original)), nil
}
