package dto

import (
	"time"

	"github.com/fileforge/fileforge/internal/model"
)

// MergeCodeResponse carries a freshly issued merge code. It is shown once.
type MergeCodeResponse struct {
	Code string `json:"code"`
}

// UseMergeCodeRequest is the body of POST /api/v1/account/use-merge-code.
type UseMergeCodeRequest struct {
	Code string `json:"code"`
}

// CheckExistingRequest is the body of POST /api/v1/account/check-existing.
type CheckExistingRequest struct {
	Provider string `json:"provider"`
	Email    string `json:"email"`
}

// CheckExistingResponse reports whether another account holds the pair.
type CheckExistingResponse struct {
	Exists            bool       `json:"exists"`
	ExistingAccountID string     `json:"existingAccountId,omitempty"`
	ExistingEmail     string     `json:"existingEmail,omitempty"`
	UploadCount       *int64     `json:"uploadCount,omitempty"`
	ConversionCount   *int64     `json:"conversionCount,omitempty"`
	ExistingCreatedAt *time.Time `json:"existingCreatedAt,omitempty"`
	CurrentCreatedAt  *time.Time `json:"currentCreatedAt,omitempty"`
}

// MergeAccountsRequest is the body of POST /api/v1/account/merge.
type MergeAccountsRequest struct {
	ExistingAccountID string `json:"existingAccountId"`
	KeepEmail         string `json:"keepEmail,omitempty"`
}

// DeleteExistingRequest is the body of POST /api/v1/account/delete-existing.
type DeleteExistingRequest struct {
	ExistingAccountID string `json:"existingAccountId"`
}

// MergeResponse reports what a merge moved. A partial merge is not an
// error: RetryableItems counts what a resume will retry.
type MergeResponse struct {
	Success           bool   `json:"success"`
	MergedUploads     int    `json:"mergedUploads"`
	MergedConversions int    `json:"mergedConversions"`
	JobID             string `json:"jobId,omitempty"`
	Status            string `json:"status,omitempty"`
	RetryableItems    int    `json:"retryableItems"`
	PermanentItems    int    `json:"permanentItems"`
	SourceDeleted     bool   `json:"sourceDeleted"`
	IdentityLinked    bool   `json:"identityLinked,omitempty"`
}

// MergeItemResponse is one ledger row.
type MergeItemResponse struct {
	Kind       string    `json:"kind"`
	ResourceID string    `json:"resourceId"`
	Status     string    `json:"status"`
	OldPath    string    `json:"oldPath,omitempty"`
	NewPath    string    `json:"newPath,omitempty"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"lastError,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MergeJobResponse is a merge job with its ledger.
type MergeJobResponse struct {
	ID                  string              `json:"id"`
	SourceAccountID     string              `json:"sourceAccountId"`
	TargetAccountID     string              `json:"targetAccountId"`
	Status              string              `json:"status"`
	MigratedUploads     int                 `json:"migratedUploads"`
	MigratedConversions int                 `json:"migratedConversions"`
	SourceDeleted       bool                `json:"sourceDeleted"`
	Error               string              `json:"error,omitempty"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
	CompletedAt         *time.Time          `json:"completedAt,omitempty"`
	Items               []MergeItemResponse `json:"items"`
}

// ToCheckExistingResponse converts a collision, or its absence.
func ToCheckExistingResponse(c *model.Collision) *CheckExistingResponse {
	if c == nil {
		return &CheckExistingResponse{Exists: false}
	}
	uploads, conversions := c.UploadCount, c.ConversionCount
	existingAt, currentAt := c.ExistingCreatedAt, c.CurrentCreatedAt
	return &CheckExistingResponse{
		Exists:            true,
		ExistingAccountID: c.ExistingAccountID,
		ExistingEmail:     c.ExistingEmail,
		UploadCount:       &uploads,
		ConversionCount:   &conversions,
		ExistingCreatedAt: &existingAt,
		CurrentCreatedAt:  &currentAt,
	}
}

// ToMergeResponse flattens a merge outcome.
func ToMergeResponse(job *model.MergeJob, uploads, conversions, retryable, permanent int, identityLinked bool) *MergeResponse {
	resp := &MergeResponse{
		Success:           true,
		MergedUploads:     uploads,
		MergedConversions: conversions,
		RetryableItems:    retryable,
		PermanentItems:    permanent,
		IdentityLinked:    identityLinked,
	}
	if job != nil {
		resp.JobID = job.ID
		resp.Status = string(job.Status)
		resp.SourceDeleted = job.SourceDeleted
	}
	return resp
}

// ToMergeJobResponse converts a job and its ledger.
func ToMergeJobResponse(job *model.MergeJob, items []*model.MergeItem) *MergeJobResponse {
	resp := &MergeJobResponse{
		ID:                  job.ID,
		SourceAccountID:     job.SourceAccountID,
		TargetAccountID:     job.TargetAccountID,
		Status:              string(job.Status),
		MigratedUploads:     job.MigratedUploads,
		MigratedConversions: job.MigratedConversions,
		SourceDeleted:       job.SourceDeleted,
		Error:               job.Error,
		CreatedAt:           job.CreatedAt,
		UpdatedAt:           job.UpdatedAt,
		CompletedAt:         job.CompletedAt,
		Items:               make([]MergeItemResponse, 0, len(items)),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, MergeItemResponse{
			Kind:       string(item.Kind),
			ResourceID: item.ResourceID,
			Status:     string(item.Status),
			OldPath:    item.OldPath,
			NewPath:    item.NewPath,
			Attempts:   item.Attempts,
			LastError:  item.LastError,
			UpdatedAt:  item.UpdatedAt,
		})
	}
	return resp
}
