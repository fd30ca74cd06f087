package service

import (
	"context"
	"time"

	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/storage"
)

// IdentityStore holds accounts and their linked identities.
type IdentityStore interface {
	CreateAccount(ctx context.Context, account *model.Account, identity *model.Identity) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	UpdateAccountEmail(ctx context.Context, id, email string) error
	DeleteAccount(ctx context.Context, id string) error
	DeleteEmptyAccount(ctx context.Context, id string) error
	CountAccounts(ctx context.Context) (int64, error)

	ListIdentities(ctx context.Context, accountID string) ([]*model.Identity, error)
	GetIdentityByProviderUser(ctx context.Context, provider model.Provider, providerUserID string) (*model.Identity, error)
	FindCollision(ctx context.Context, provider model.Provider, email, excludeAccountID string) (*model.Identity, *model.Account, error)
	LinkIdentity(ctx context.Context, identity *model.Identity) error
	UnlinkIdentity(ctx context.Context, accountID string, provider model.Provider) error
}

// ResourceStore holds uploads and conversions.
type ResourceStore interface {
	CreateUpload(ctx context.Context, upload *model.Upload) error
	GetUpload(ctx context.Context, id string) (*model.Upload, error)
	ListUploads(ctx context.Context, accountID string) ([]*model.Upload, error)
	DeleteUpload(ctx context.Context, id string) error
	ReassignUpload(ctx context.Context, id string, fromAccountIDs []string, toAccountID, storagePath string) error

	CreateConversion(ctx context.Context, c *model.Conversion) error
	UpdateConversion(ctx context.Context, c *model.Conversion) error
	GetConversion(ctx context.Context, id string) (*model.Conversion, error)
	ListConversions(ctx context.Context, accountID string) ([]*model.Conversion, error)
	ListConversionsByUpload(ctx context.Context, uploadID string) ([]*model.Conversion, error)
	ReassignConversion(ctx context.Context, id string, fromAccountIDs []string, toAccountID string, outputPath *string) error

	CountResources(ctx context.Context, accountID string) (int64, int64, error)
	StorageStats(ctx context.Context, accountID string) (*model.StorageStats, error)
}

// MergeTokenStore is the merge token registry table.
type MergeTokenStore interface {
	ReplaceMergeToken(ctx context.Context, token *model.MergeToken) error
	GetMergeTokenByHash(ctx context.Context, codeHash string) (*model.MergeToken, error)
	ClaimMergeToken(ctx context.Context, codeHash, accountID string) (*model.MergeToken, error)
	DeleteMergeToken(ctx context.Context, codeHash string) error
	DeleteMergeTokensForAccounts(ctx context.Context, accountIDs []string) (int64, error)
}

// MergeLedger records merge jobs and their per-row items.
type MergeLedger interface {
	CreateMergeJob(ctx context.Context, job *model.MergeJob) error
	GetMergeJob(ctx context.Context, id string) (*model.MergeJob, error)
	GetOpenMergeJob(ctx context.Context, sourceAccountID string) (*model.MergeJob, error)
	UpdateMergeJob(ctx context.Context, job *model.MergeJob) error
	SnapshotMergeItems(ctx context.Context, jobID, sourceAccountID string) (int64, error)
	ListMergeItems(ctx context.Context, jobID string, statuses ...model.MergeItemStatus) ([]*model.MergeItem, error)
	UpdateMergeItem(ctx context.Context, item *model.MergeItem) error
}

// BlobStore stores file contents by path.
type BlobStore interface {
	Download(ctx context.Context, path string) (*storage.Blob, error)
	Upload(ctx context.Context, path string, blob *storage.Blob) error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// MergeLocker serializes merges per source account across instances.
type MergeLocker interface {
	AcquireMergeLock(ctx context.Context, sourceAccountID string, ttl time.Duration) (string, bool, error)
	ReleaseMergeLock(ctx context.Context, sourceAccountID, token string) error
}

// SessionStore keeps signed-in sessions.
type SessionStore interface {
	SaveSession(ctx context.Context, session *model.Session, ttl time.Duration) error
	GetSession(ctx context.Context, tokenHash string) (*model.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteAccountSessions(ctx context.Context, accountID string) error
}

// OAuthStateStore keeps login redirects until their callback.
type OAuthStateStore interface {
	SaveOAuthState(ctx context.Context, state string, value *model.OAuthState, ttl time.Duration) error
	ConsumeOAuthState(ctx context.Context, state string) (*model.OAuthState, error)
}

// PendingLinkStore keeps identities whose link is waiting on a collision.
type PendingLinkStore interface {
	SavePendingLink(ctx context.Context, link *model.PendingLink, ttl time.Duration) error
	GetPendingLink(ctx context.Context, accountID string) (*model.PendingLink, error)
	DeletePendingLink(ctx context.Context, accountID string) error
}

// EventPublisher emits account events without blocking.
type EventPublisher interface {
	PublishAsync(event *model.AccountEvent)
}

type noopPublisher struct{}

func (noopPublisher) PublishAsync(*model.AccountEvent) {}
