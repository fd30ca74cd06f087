package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fileforge/fileforge/internal/convert"
	"github.com/fileforge/fileforge/internal/formats"
	"github.com/fileforge/fileforge/internal/metrics"
	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/repository"
	"github.com/fileforge/fileforge/internal/storage"
)

// Converter turns file contents from one format into another.
type Converter interface {
	Supports(source, target string) bool
	Convert(ctx context.Context, src []byte, source, target string) (*convert.Result, error)
}

// ConversionService validates and runs conversions of uploaded files.
type ConversionService struct {
	resources ResourceStore
	blobs     BlobStore
	converter Converter
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewConversionService creates a new ConversionService.
func NewConversionService(resources ResourceStore, blobs BlobStore, converter Converter, recorder metrics.Recorder, logger *slog.Logger) *ConversionService {
	if converter == nil {
		converter = convert.NewImageConverter()
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ConversionService{
		resources: resources,
		blobs:     blobs,
		converter: converter,
		metrics:   recorder,
		logger:    logger.With("component", "conversion"),
	}
}

// Create records a conversion of uploadID to targetFormat and runs it.
// A rejected pair is still recorded as failed; the returned error then
// wraps ErrInvalidConversion and the *formats.ValidationError.
func (s *ConversionService) Create(ctx context.Context, accountID, uploadID, targetFormat string) (*model.Conversion, error) {
	if accountID == "" {
		return nil, ErrUnauthorized
	}
	uploadID = strings.TrimSpace(uploadID)
	target := formats.NormalizeExt(targetFormat)
	if uploadID == "" || target == "" {
		return nil, fmt.Errorf("%w: uploadId and targetFormat are required", ErrBadRequest)
	}

	upload, err := s.resources.GetUpload(ctx, uploadID)
	if err != nil {
		if errors.Is(err, repository.ErrUploadNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if upload.AccountID != accountID {
		return nil, ErrNotFound
	}

	conv := &model.Conversion{
		ID:             newULID(),
		UploadID:       upload.ID,
		AccountID:      accountID,
		OriginalFormat: formats.ExtFromFilename(upload.OriginalFilename),
		TargetFormat:   target,
		Status:         model.ConversionPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.resources.CreateConversion(ctx, conv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	if err := formats.Validate(conv.OriginalFormat, conv.TargetFormat); err != nil {
		conv.Fail(err.Error())
		s.save(ctx, conv)
		s.metrics.IncConversion("rejected")
		return conv, fmt.Errorf("%w: %w", ErrInvalidConversion, err)
	}

	conv.Status = model.ConversionProcessing
	s.save(ctx, conv)

	s.run(ctx, conv, upload)
	s.save(ctx, conv)
	return conv, nil
}

// List returns the account's conversions, newest first.
func (s *ConversionService) List(ctx context.Context, accountID string) ([]*model.Conversion, error) {
	if accountID == "" {
		return nil, ErrUnauthorized
	}
	conversions, err := s.resources.ListConversions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return conversions, nil
}

// run performs the conversion and leaves conv completed or failed.
func (s *ConversionService) run(ctx context.Context, conv *model.Conversion, upload *model.Upload) {
	defer func() { s.metrics.IncConversion(string(conv.Status)) }()

	if !s.converter.Supports(conv.OriginalFormat, conv.TargetFormat) {
		conv.Fail(fmt.Sprintf("Conversion from %s to %s requires additional processing libraries",
			strings.ToUpper(conv.OriginalFormat), strings.ToUpper(conv.TargetFormat)))
		return
	}

	src, err := s.blobs.Download(ctx, upload.StoragePath)
	if err != nil {
		s.logger.Warn("failed to read conversion source", "conversion_id", conv.ID, "path", upload.StoragePath, "error", err)
		conv.Fail("Source file could not be read")
		return
	}

	out, err := s.converter.Convert(ctx, src.Data, conv.OriginalFormat, conv.TargetFormat)
	if err != nil {
		s.logger.Warn("conversion failed", "conversion_id", conv.ID, "error", err)
		conv.Fail(fmt.Sprintf("Conversion failed: %v", err))
		return
	}

	outputPath := fmt.Sprintf("%s/converted/%s.%s", conv.AccountID, newULID(), conv.TargetFormat)
	if err := s.blobs.Upload(ctx, outputPath, &storage.Blob{Data: out.Data, ContentType: out.MIME}); err != nil {
		s.logger.Warn("failed to store conversion output", "conversion_id", conv.ID, "path", outputPath, "error", err)
		conv.Fail("Converted file could not be stored")
		return
	}

	conv.Complete(outputPath, int64(len(out.Data)), time.Now().UTC())
	s.logger.Info("conversion completed", "conversion_id", conv.ID, "output_size", len(out.Data))
}

func (s *ConversionService) save(ctx context.Context, conv *model.Conversion) {
	if err := s.resources.UpdateConversion(ctx, conv); err != nil {
		s.logger.Error("failed to update conversion", "conversion_id", conv.ID, "status", conv.Status, "error", err)
	}
}
