package dto

import (
	"time"

	"github.com/fileforge/fileforge/internal/formats"
	"github.com/fileforge/fileforge/internal/model"
)

// UploadResponse represents an upload in API responses.
type UploadResponse struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"originalFilename"`
	FileSize         int64     `json:"fileSize"`
	FileType         string    `json:"fileType"`
	StoragePath      string    `json:"storagePath"`
	CreatedAt        time.Time `json:"createdAt"`
}

// UploadListResponse wraps a list of uploads.
type UploadListResponse struct {
	Data []UploadResponse `json:"data"`
}

// CreateConversionRequest is the body of POST /api/v1/conversions.
type CreateConversionRequest struct {
	UploadID     string `json:"uploadId"`
	TargetFormat string `json:"targetFormat"`
}

// ConversionResponse represents a conversion in API responses.
type ConversionResponse struct {
	ID             string     `json:"id"`
	UploadID       string     `json:"uploadId"`
	OriginalFormat string     `json:"originalFormat"`
	TargetFormat   string     `json:"targetFormat"`
	Status         string     `json:"status"`
	OutputPath     *string    `json:"outputPath,omitempty"`
	OutputSize     *int64     `json:"outputSize,omitempty"`
	ErrorMessage   *string    `json:"errorMessage,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// ConversionListResponse wraps a list of conversions.
type ConversionListResponse struct {
	Data []ConversionResponse `json:"data"`
}

// StorageStatsResponse summarizes what the account stores.
type StorageStatsResponse struct {
	TotalSize       int64 `json:"totalSize"`
	FileCount       int64 `json:"fileCount"`
	ConversionCount int64 `json:"conversionCount"`
}

// FormatListResponse is the format catalog.
type FormatListResponse struct {
	Formats []formats.Format `json:"formats"`
}

// TargetsResponse lists what a source format converts to.
type TargetsResponse struct {
	Source  string   `json:"source"`
	Targets []string `json:"targets"`
}

// ValidateConversionRequest is the body of POST /api/v1/formats/validate.
type ValidateConversionRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// ValidateConversionResponse is the validator verdict.
type ValidateConversionResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ToUploadResponse converts an Upload model to UploadResponse DTO.
func ToUploadResponse(u *model.Upload) UploadResponse {
	return UploadResponse{
		ID:               u.ID,
		OriginalFilename: u.OriginalFilename,
		FileSize:         u.FileSize,
		FileType:         u.FileType,
		StoragePath:      u.StoragePath,
		CreatedAt:        u.CreatedAt,
	}
}

// ToUploadListResponse converts uploads. An empty list encodes as [].
func ToUploadListResponse(uploads []*model.Upload) *UploadListResponse {
	data := make([]UploadResponse, 0, len(uploads))
	for _, u := range uploads {
		data = append(data, ToUploadResponse(u))
	}
	return &UploadListResponse{Data: data}
}

// ToConversionResponse converts a Conversion model to ConversionResponse DTO.
func ToConversionResponse(c *model.Conversion) ConversionResponse {
	return ConversionResponse{
		ID:             c.ID,
		UploadID:       c.UploadID,
		OriginalFormat: c.OriginalFormat,
		TargetFormat:   c.TargetFormat,
		Status:         string(c.Status),
		OutputPath:     c.OutputPath,
		OutputSize:     c.OutputSize,
		ErrorMessage:   c.ErrorMessage,
		CreatedAt:      c.CreatedAt,
		CompletedAt:    c.CompletedAt,
	}
}

// ToConversionListResponse converts conversions. An empty list encodes as [].
func ToConversionListResponse(conversions []*model.Conversion) *ConversionListResponse {
	data := make([]ConversionResponse, 0, len(conversions))
	for _, c := range conversions {
		data = append(data, ToConversionResponse(c))
	}
	return &ConversionListResponse{Data: data}
}

// ToStorageStatsResponse converts storage stats.
func ToStorageStatsResponse(s *model.StorageStats) *StorageStatsResponse {
	return &StorageStatsResponse{
		TotalSize:       s.TotalSize,
		FileCount:       s.FileCount,
		ConversionCount: s.ConversionCount,
	}
}
