package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/fileforge/fileforge/internal/formats"
	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/repository"
	"github.com/fileforge/fileforge/internal/storage"
)

const defaultMaxUploadSize = 100 << 20

// UploadService stores user files and reports storage usage.
type UploadService struct {
	resources ResourceStore
	blobs     BlobStore
	maxSize   int64
	logger    *slog.Logger
}

// NewUploadService creates a new UploadService.
func NewUploadService(resources ResourceStore, blobs BlobStore, maxSize int64, logger *slog.Logger) *UploadService {
	if maxSize <= 0 {
		maxSize = defaultMaxUploadSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &UploadService{
		resources: resources,
		blobs:     blobs,
		maxSize:   maxSize,
		logger:    logger.With("component", "upload"),
	}
}

// MaxSize is the largest accepted upload in bytes.
func (s *UploadService) MaxSize() int64 {
	return s.maxSize
}

// Upload stores a file for the account at {accountId}/{id}-{filename}.
func (s *UploadService) Upload(ctx context.Context, accountID, filename string, data []byte) (*model.Upload, error) {
	if accountID == "" {
		return nil, ErrUnauthorized
	}

	name := cleanFilename(filename)
	if name == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrBadRequest)
	}
	format, ok := formats.Lookup(formats.ExtFromFilename(name))
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type", ErrBadRequest)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrBadRequest)
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", ErrBadRequest, s.maxSize)
	}

	id := newULID()
	storagePath := accountID + "/" + id + "-" + name
	if err := s.blobs.Upload(ctx, storagePath, &storage.Blob{Data: data, ContentType: format.MIME}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}

	now := time.Now().UTC()
	upload := &model.Upload{
		ID:               id,
		AccountID:        accountID,
		OriginalFilename: name,
		FileSize:         int64(len(data)),
		FileType:         format.MIME,
		StoragePath:      storagePath,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.resources.CreateUpload(ctx, upload); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), storagePath); delErr != nil {
			s.logger.Warn("failed to delete blob of unsaved upload", "path", storagePath, "error", delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	s.logger.Info("file uploaded", "account_id", accountID, "upload_id", id, "size", upload.FileSize)
	return upload, nil
}

// List returns the account's uploads, newest first.
func (s *UploadService) List(ctx context.Context, accountID string) ([]*model.Upload, error) {
	if accountID == "" {
		return nil, ErrUnauthorized
	}
	uploads, err := s.resources.ListUploads(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return uploads, nil
}

// Delete removes an upload, its blob and the outputs of its conversions.
func (s *UploadService) Delete(ctx context.Context, accountID, uploadID string) error {
	if accountID == "" {
		return ErrUnauthorized
	}

	upload, err := s.resources.GetUpload(ctx, uploadID)
	if err != nil {
		if errors.Is(err, repository.ErrUploadNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if upload.AccountID != accountID {
		return ErrNotFound
	}

	conversions, err := s.resources.ListConversionsByUpload(ctx, uploadID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	for _, c := range conversions {
		if c.OutputPath == nil || *c.OutputPath == "" {
			continue
		}
		if err := s.blobs.Delete(ctx, *c.OutputPath); err != nil {
			s.logger.Warn("failed to delete conversion output", "conversion_id", c.ID, "path", *c.OutputPath, "error", err)
		}
	}

	if err := s.blobs.Delete(ctx, upload.StoragePath); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	if err := s.resources.DeleteUpload(ctx, uploadID); err != nil && !errors.Is(err, repository.ErrUploadNotFound) {
		return fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	s.logger.Info("upload deleted", "account_id", accountID, "upload_id", uploadID)
	return nil
}

// StorageStats summarizes the account's stored files and conversions.
func (s *UploadService) StorageStats(ctx context.Context, accountID string) (*model.StorageStats, error) {
	if accountID == "" {
		return nil, ErrUnauthorized
	}
	stats, err := s.resources.StorageStats(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return stats, nil
}

// cleanFilename keeps only the base name of a client-supplied filename.
func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = path.Base(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}
