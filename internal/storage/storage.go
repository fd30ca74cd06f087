// Package storage holds the blob store used for uploads and conversion outputs.
package storage

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when no blob exists at a path.
	ErrNotFound = errors.New("blob not found")

	// ErrInvalidConfig is returned when the store is missing required settings.
	ErrInvalidConfig = errors.New("invalid storage configuration")

	// ErrInvalidPath is returned for empty or traversing paths.
	ErrInvalidPath = errors.New("invalid blob path")
)

// Blob is an opaque stored object.
type Blob struct {
	Data        []byte
	ContentType string
}

// Store is a path-addressed blob store. Upload overwrites silently and
// Delete of a missing path is not an error.
type Store interface {
	Download(ctx context.Context, path string) (*Blob, error)
	Upload(ctx context.Context, path string, blob *Blob) error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

func validatePath(path string) error {
	if path == "" || strings.HasPrefix(path, "/") {
		return ErrInvalidPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == ".." {
			return ErrInvalidPath
		}
	}
	return nil
}
