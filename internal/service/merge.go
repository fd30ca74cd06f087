package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/fileforge/fileforge/internal/auth"
	"github.com/fileforge/fileforge/internal/cache"
	"github.com/fileforge/fileforge/internal/metrics"
	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/repository"
)

const (
	defaultMergeTimeout = 2 * time.Minute
	defaultMergeLockTTL = 5 * time.Minute
)

// MergeDeps wires the collaborators of MergeService.
type MergeDeps struct {
	Identities IdentityStore
	Resources  ResourceStore
	Tokens     MergeTokenStore
	Ledger     MergeLedger
	Blobs      BlobStore
	Locker     MergeLocker
	Sessions   SessionStore
	Pending    PendingLinkStore
	Events     EventPublisher
	Hasher     *auth.CodeHasher
	Metrics    metrics.Recorder
	Logger     *slog.Logger

	// Timeout bounds a single merge run. LockTTL must exceed it.
	Timeout time.Duration
	LockTTL time.Duration
}

// MergeService detects identity collisions, issues and redeems merge codes,
// and moves everything a source account owns to a target account.
type MergeService struct {
	identities IdentityStore
	resources  ResourceStore
	tokens     MergeTokenStore
	ledger     MergeLedger
	blobs      BlobStore
	locker     MergeLocker
	sessions   SessionStore
	pending    PendingLinkStore
	events     EventPublisher
	hasher     *auth.CodeHasher
	metrics    metrics.Recorder
	logger     *slog.Logger
	timeout    time.Duration
	lockTTL    time.Duration
}

// NewMergeService creates a new MergeService.
func NewMergeService(deps MergeDeps) *MergeService {
	s := &MergeService{
		identities: deps.Identities,
		resources:  deps.Resources,
		tokens:     deps.Tokens,
		ledger:     deps.Ledger,
		blobs:      deps.Blobs,
		locker:     deps.Locker,
		sessions:   deps.Sessions,
		pending:    deps.Pending,
		events:     deps.Events,
		hasher:     deps.Hasher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		timeout:    deps.Timeout,
		lockTTL:    deps.LockTTL,
	}
	if s.events == nil {
		s.events = noopPublisher{}
	}
	if s.hasher == nil {
		s.hasher = auth.NewCodeHasher("")
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoop()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.logger = s.logger.With("component", "merge")
	if s.timeout <= 0 {
		s.timeout = defaultMergeTimeout
	}
	if s.lockTTL <= s.timeout {
		s.lockTTL = s.timeout + defaultMergeLockTTL
	}
	return s
}

// MergeResult reports the outcome of a merge run.
type MergeResult struct {
	Job               *model.MergeJob
	MergedUploads     int
	MergedConversions int
	RetryableItems    int
	PermanentItems    int
	IdentityLinked    bool
}

// MergeJobDetail is a job together with its ledger.
type MergeJobDetail struct {
	Job   *model.MergeJob
	Items []*model.MergeItem
}

// MergeAccounts merges the colliding existing account into the session
// account. It also resumes an unfinished merge between the two.
func (s *MergeService) MergeAccounts(ctx context.Context, sessionAccountID, existingAccountID, keepEmail string) (*MergeResult, error) {
	if sessionAccountID == "" {
		return nil, ErrUnauthorized
	}
	existingAccountID = strings.TrimSpace(existingAccountID)
	if existingAccountID == "" {
		return nil, fmt.Errorf("%w: existingAccountId is required", ErrBadRequest)
	}
	if existingAccountID == sessionAccountID {
		return nil, ErrSelfMerge
	}

	target, err := s.sessionAccount(ctx, sessionAccountID)
	if err != nil {
		return nil, err
	}

	link, err := s.authorize(ctx, sessionAccountID, existingAccountID, true)
	if err != nil {
		return nil, err
	}

	keepEmail, err = s.resolveKeepEmail(ctx, target, existingAccountID, keepEmail)
	if err != nil {
		return nil, err
	}

	var result *MergeResult
	err = s.withMergeLock(ctx, existingAccountID, func(ctx context.Context) error {
		var runErr error
		result, runErr = s.runMerge(ctx, existingAccountID, sessionAccountID, keepEmail)
		return runErr
	})
	if err != nil {
		return nil, err
	}

	if link != nil && result.Job.SourceDeleted {
		result.IdentityLinked = s.completePendingLink(ctx, link)
	}
	return result, nil
}

// DeleteExistingAccount removes the colliding existing account and its
// files so the session account can link the identity instead.
func (s *MergeService) DeleteExistingAccount(ctx context.Context, sessionAccountID, existingAccountID string) (bool, error) {
	if sessionAccountID == "" {
		return false, ErrUnauthorized
	}
	existingAccountID = strings.TrimSpace(existingAccountID)
	if existingAccountID == "" {
		return false, fmt.Errorf("%w: existingAccountId is required", ErrBadRequest)
	}
	if existingAccountID == sessionAccountID {
		return false, fmt.Errorf("%w: cannot delete the signed-in account here", ErrBadRequest)
	}
	if _, err := s.sessionAccount(ctx, sessionAccountID); err != nil {
		return false, err
	}

	link, err := s.authorize(ctx, sessionAccountID, existingAccountID, false)
	if err != nil {
		return false, err
	}

	err = s.withMergeLock(ctx, existingAccountID, func(ctx context.Context) error {
		return s.deleteAccountWithFiles(ctx, existingAccountID)
	})
	if err != nil {
		return false, err
	}

	s.events.PublishAsync(&model.AccountEvent{
		Type:           model.EventAccountDeleted,
		AccountID:      existingAccountID,
		OtherAccountID: sessionAccountID,
	})

	if link != nil {
		s.completePendingLink(ctx, link)
	}
	return true, nil
}

// GetMergeJob returns a job and its ledger. Only the two accounts involved
// may see it; an empty accountID skips the check (operator use).
func (s *MergeService) GetMergeJob(ctx context.Context, accountID, jobID string) (*MergeJobDetail, error) {
	job, err := s.ledger.GetMergeJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrMergeJobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if accountID != "" && job.TargetAccountID != accountID && job.SourceAccountID != accountID {
		return nil, ErrNotFound
	}

	items, err := s.ledger.ListMergeItems(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return &MergeJobDetail{Job: job, Items: items}, nil
}

// ResumeMergeJob re-runs an unfinished job. An empty accountID skips the
// ownership check (operator use); otherwise it must be the job's target.
func (s *MergeService) ResumeMergeJob(ctx context.Context, accountID, jobID string) (*MergeResult, error) {
	job, err := s.ledger.GetMergeJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrMergeJobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if accountID != "" && job.TargetAccountID != accountID {
		return nil, ErrNotFound
	}
	if !job.Status.IsOpen() {
		return s.resultFor(ctx, job)
	}

	var result *MergeResult
	err = s.withMergeLock(ctx, job.SourceAccountID, func(ctx context.Context) error {
		var runErr error
		result, runErr = s.runMerge(ctx, job.SourceAccountID, job.TargetAccountID, job.KeepEmail)
		return runErr
	})
	return result, err
}

// sessionAccount loads the acting account; a missing account means the
// session is no longer valid.
func (s *MergeService) sessionAccount(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.identities.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return account, nil
}

// authorize checks that the session account may act on existingAccountID:
// its pending link or one of its identities collides with that account, or
// (when allowResume) an unfinished merge between the two exists. The pending
// link is returned when it is the reason.
func (s *MergeService) authorize(ctx context.Context, sessionAccountID, existingAccountID string, allowResume bool) (*model.PendingLink, error) {
	link, err := s.pending.GetPendingLink(ctx, sessionAccountID)
	switch {
	case err == nil:
		owner, err := s.pendingLinkOwner(ctx, link)
		if err != nil {
			return nil, err
		}
		if owner == existingAccountID {
			return link, nil
		}
	case !errors.Is(err, cache.ErrCacheMiss):
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	collides, err := s.identitiesCollideWith(ctx, sessionAccountID, existingAccountID)
	if err != nil {
		return nil, err
	}
	if collides {
		return nil, nil
	}

	if allowResume {
		job, err := s.ledger.GetOpenMergeJob(ctx, existingAccountID)
		switch {
		case err == nil && job.TargetAccountID == sessionAccountID:
			return nil, nil
		case err != nil && !errors.Is(err, repository.ErrMergeJobNotFound):
			return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
	}

	return nil, ErrNoCollision
}

// pendingLinkOwner returns the account that blocks a pending link: the
// owner of the same provider user, or of the same (provider, email).
func (s *MergeService) pendingLinkOwner(ctx context.Context, link *model.PendingLink) (string, error) {
	identity, err := s.identities.GetIdentityByProviderUser(ctx, link.Provider, link.ProviderUserID)
	switch {
	case err == nil && identity.AccountID != link.AccountID:
		return identity.AccountID, nil
	case err != nil && !errors.Is(err, repository.ErrIdentityNotFound):
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	_, owner, err := s.identities.FindCollision(ctx, link.Provider, model.NormalizeEmail(link.Email), link.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return owner.ID, nil
}

// identitiesCollideWith reports whether any identity already linked to the
// session account collides with existingAccountID.
func (s *MergeService) identitiesCollideWith(ctx context.Context, sessionAccountID, existingAccountID string) (bool, error) {
	account, err := s.identities.GetAccount(ctx, sessionAccountID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	identities, err := s.identities.ListIdentities(ctx, sessionAccountID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	for _, identity := range identities {
		email := model.NormalizeEmail(model.EffectiveEmail(identity, account))
		if email == "" {
			continue
		}
		_, owner, err := s.identities.FindCollision(ctx, identity.Provider, email, sessionAccountID)
		if err != nil {
			if errors.Is(err, repository.ErrIdentityNotFound) {
				continue
			}
			return false, fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
		if owner.ID == existingAccountID {
			return true, nil
		}
	}
	return false, nil
}

// resolveKeepEmail accepts an empty value or one of the two accounts'
// emails. When the source is already gone (resuming), the job's recorded
// choice applies and the argument is ignored.
func (s *MergeService) resolveKeepEmail(ctx context.Context, target *model.Account, sourceAccountID, keepEmail string) (string, error) {
	keepEmail = strings.TrimSpace(keepEmail)
	if keepEmail == "" {
		return "", nil
	}
	if model.NormalizeEmail(keepEmail) == model.NormalizeEmail(target.Email) {
		return keepEmail, nil
	}

	source, err := s.identities.GetAccount(ctx, sourceAccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if model.NormalizeEmail(keepEmail) == model.NormalizeEmail(source.Email) {
		return source.Email, nil
	}
	return "", fmt.Errorf("%w: keepEmail must be the email of one of the two accounts", ErrBadRequest)
}

// withMergeLock runs fn while holding the merge lock of sourceAccountID.
func (s *MergeService) withMergeLock(ctx context.Context, sourceAccountID string, fn func(ctx context.Context) error) error {
	token, ok, err := s.locker.AcquireMergeLock(ctx, sourceAccountID, s.lockTTL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if !ok {
		return ErrMergeInProgress
	}
	defer func() {
		if err := s.locker.ReleaseMergeLock(context.WithoutCancel(ctx), sourceAccountID, token); err != nil {
			s.logger.Warn("failed to release merge lock", "source_account_id", sourceAccountID, "error", err)
		}
	}()

	return fn(ctx)
}

// deleteAccountWithFiles removes every blob of the account, then the
// account itself. Rows go with the account by cascade, so the account is
// kept when any blob could not be removed.
func (s *MergeService) deleteAccountWithFiles(ctx context.Context, accountID string) error {
	uploads, err := s.resources.ListUploads(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	conversions, err := s.resources.ListConversions(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	paths := make([]string, 0, len(uploads)+len(conversions))
	for _, u := range uploads {
		if u.StoragePath != "" {
			paths = append(paths, u.StoragePath)
		}
	}
	for _, c := range conversions {
		if c.OutputPath != nil && *c.OutputPath != "" {
			paths = append(paths, *c.OutputPath)
		}
	}

	var failed int
	for _, path := range paths {
		if err := s.blobs.Delete(ctx, path); err != nil {
			failed++
			s.logger.Warn("failed to delete blob", "account_id", accountID, "path", path, "error", err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files could not be deleted", ErrStorageFailed, failed, len(paths))
	}

	if err := s.identities.DeleteAccount(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	if err := s.sessions.DeleteAccountSessions(ctx, accountID); err != nil {
		s.logger.Warn("failed to delete sessions of deleted account", "account_id", accountID, "error", err)
	}

	s.logger.Info("account deleted", "account_id", accountID, "files", len(paths))
	return nil
}

// completePendingLink links the held-back identity now that its collision
// is resolved. It reports whether the identity got linked.
func (s *MergeService) completePendingLink(ctx context.Context, link *model.PendingLink) bool {
	profile, err := model.UnmarshalProfile(link.Provider, link.ProfileData)
	if err != nil {
		s.logger.Warn("dropping unreadable pending link", "account_id", link.AccountID, "error", err)
		_ = s.pending.DeletePendingLink(ctx, link.AccountID)
		return false
	}

	identity := &model.Identity{
		ID:             uuid.NewString(),
		AccountID:      link.AccountID,
		Provider:       link.Provider,
		ProviderUserID: link.ProviderUserID,
		Profile:        profile,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.identities.LinkIdentity(ctx, identity); err != nil {
		s.logger.Warn("failed to complete pending link",
			"account_id", link.AccountID,
			"provider", link.Provider,
			"error", err,
		)
		return false
	}

	if err := s.pending.DeletePendingLink(ctx, link.AccountID); err != nil {
		s.logger.Warn("failed to delete pending link", "account_id", link.AccountID, "error", err)
	}

	s.events.PublishAsync(&model.AccountEvent{
		Type:      model.EventIdentityLinked,
		AccountID: link.AccountID,
		Provider:  link.Provider,
	})
	return true
}

func newULID() string {
	return ulid.Make().String()
}
