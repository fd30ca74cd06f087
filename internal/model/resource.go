package model

import "time"

// ConversionStatus is the lifecycle state of a conversion.
type ConversionStatus string

const (
	ConversionPending    ConversionStatus = "pending"
	ConversionProcessing ConversionStatus = "processing"
	ConversionCompleted  ConversionStatus = "completed"
	ConversionFailed     ConversionStatus = "failed"
)

// IsValid checks if the status is a known conversion status.
func (s ConversionStatus) IsValid() bool {
	switch s {
	case ConversionPending, ConversionProcessing, ConversionCompleted, ConversionFailed:
		return true
	}
	return false
}

// Upload is a file a user stored. StoragePath is prefixed with the owner's id.
type Upload struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	OriginalFilename string    `json:"original_filename"`
	FileSize         int64     `json:"file_size"`
	FileType         string    `json:"file_type"`
	StoragePath      string    `json:"storage_path"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Conversion is a requested format change of an Upload.
// Its AccountID must always equal the parent Upload's AccountID.
type Conversion struct {
	ID             string           `json:"id"`
	UploadID       string           `json:"upload_id"`
	AccountID      string           `json:"account_id"`
	OriginalFormat string           `json:"original_format"`
	TargetFormat   string           `json:"target_format"`
	Status         ConversionStatus `json:"status"`
	OutputPath     *string          `json:"output_path,omitempty"`
	OutputSize     *int64           `json:"output_size,omitempty"`
	ErrorMessage   *string          `json:"error_message,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
}

// Fail marks the conversion failed with a message.
func (c *Conversion) Fail(message string) {
	c.Status = ConversionFailed
	c.ErrorMessage = &message
}

// Complete marks the conversion completed with its output blob.
func (c *Conversion) Complete(outputPath string, outputSize int64, at time.Time) {
	c.Status = ConversionCompleted
	c.OutputPath = &outputPath
	c.OutputSize = &outputSize
	c.CompletedAt = &at
	c.ErrorMessage = nil
}

// StorageStats summarizes what an account stores.
type StorageStats struct {
	TotalSize       int64 `json:"total_size"`
	FileCount       int64 `json:"file_count"`
	ConversionCount int64 `json:"conversion_count"`
}
