package model

import (
	"strings"
	"time"
)

// MergeToken is a one-time merge code owned by an account. Only the hash is stored.
type MergeToken struct {
	CodeHash  string    `json:"-"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// MergeJobStatus is the state of a merge job.
type MergeJobStatus string

const (
	MergeJobRunning   MergeJobStatus = "running"
	MergeJobPartial   MergeJobStatus = "partial"
	MergeJobCompleted MergeJobStatus = "completed"
	MergeJobFailed    MergeJobStatus = "failed"
)

// IsOpen reports whether the job can still be resumed.
func (s MergeJobStatus) IsOpen() bool {
	return s == MergeJobRunning || s == MergeJobPartial
}

// MergeItemKind names the resource collection a ledger item belongs to.
type MergeItemKind string

const (
	MergeItemUpload     MergeItemKind = "upload"
	MergeItemConversion MergeItemKind = "conversion"
)

// MergeItemStatus is the per-row state in the merge ledger.
type MergeItemStatus string

const (
	MergeItemPending         MergeItemStatus = "pending"
	MergeItemMigrated        MergeItemStatus = "migrated"
	MergeItemFailedRetryable MergeItemStatus = "failed_retryable"
	MergeItemFailedPermanent MergeItemStatus = "failed_permanent"
)

// MergeJob moves everything a source account owns to a target account.
type MergeJob struct {
	ID                  string         `json:"id"`
	SourceAccountID     string         `json:"source_account_id"`
	TargetAccountID     string         `json:"target_account_id"`
	KeepEmail           string         `json:"keep_email,omitempty"`
	Status              MergeJobStatus `json:"status"`
	MigratedUploads     int            `json:"migrated_uploads"`
	MigratedConversions int            `json:"migrated_conversions"`
	SourceDeleted       bool           `json:"source_deleted"`
	Error               string         `json:"error,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
}

// MergeItem is one ledger row: a single upload or conversion being moved.
type MergeItem struct {
	JobID      string          `json:"job_id"`
	Kind       MergeItemKind   `json:"kind"`
	ResourceID string          `json:"resource_id"`
	OldPath    string          `json:"old_path,omitempty"`
	NewPath    string          `json:"new_path,omitempty"`
	Status     MergeItemStatus `json:"status"`
	OwnerMoved bool            `json:"owner_moved"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// BlocksSourceDeletion reports whether deleting the source account now would
// cascade away a row that has not been reassigned yet.
func (i *MergeItem) BlocksSourceDeletion() bool {
	return !i.OwnerMoved && i.Status != MergeItemFailedPermanent
}

// RewritePath replaces the first path segment equal to sourceID with targetID.
// Paths that do not contain the source id as a segment are returned unchanged.
func RewritePath(path, sourceID, targetID string) string {
	if path == "" || sourceID == "" || sourceID == targetID {
		return path
	}

	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == sourceID {
			segments[i] = targetID
			return strings.Join(segments, "/")
		}
	}
	return path
}

// AccountEventType names an entry in the account event stream.
type AccountEventType string

const (
	EventAccountMerged    AccountEventType = "account.merged"
	EventAccountDeleted   AccountEventType = "account.deleted"
	EventIdentityLinked   AccountEventType = "identity.linked"
	EventIdentityUnlinked AccountEventType = "identity.unlinked"
)

// AccountEvent is appended to the account event stream after account changes.
type AccountEvent struct {
	Type           AccountEventType `json:"type"`
	AccountID      string           `json:"account_id"`
	OtherAccountID string           `json:"other_account_id,omitempty"`
	Provider       Provider         `json:"provider,omitempty"`
	JobID          string           `json:"job_id,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}
