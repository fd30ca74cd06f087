package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/repository"
	"github.com/fileforge/fileforge/internal/storage"
)

var errBlobMissing = errors.New("blob missing at both old and new path")

// runMerge starts or resumes the job moving sourceID's resources to
// targetID. The caller must hold the source's merge lock.
func (s *MergeService) runMerge(ctx context.Context, sourceID, targetID, keepEmail string) (*MergeResult, error) {
	started := time.Now()

	job, err := s.openJob(ctx, sourceID, targetID, keepEmail)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.runJob(runCtx, job)
	s.metrics.ObserveMergeDuration(time.Since(started))
	if result != nil {
		s.metrics.IncMergeCompleted(string(result.Job.Status))
	}
	return result, err
}

// openJob returns the unfinished job for the pair, or creates one.
func (s *MergeService) openJob(ctx context.Context, sourceID, targetID, keepEmail string) (*model.MergeJob, error) {
	job, err := s.ledger.GetOpenMergeJob(ctx, sourceID)
	switch {
	case err == nil:
		if job.TargetAccountID != targetID {
			return nil, ErrMergeInProgress
		}
		return job, nil
	case !errors.Is(err, repository.ErrMergeJobNotFound):
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	if _, err := s.identities.GetAccount(ctx, sourceID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	now := time.Now().UTC()
	job = &model.MergeJob{
		ID:              newULID(),
		SourceAccountID: sourceID,
		TargetAccountID: targetID,
		KeepEmail:       keepEmail,
		Status:          model.MergeJobRunning,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.ledger.CreateMergeJob(ctx, job); err != nil {
		if errors.Is(err, repository.ErrMergeJobExists) {
			return nil, ErrMergeInProgress
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	s.logger.Info("merge job created", "job_id", job.ID, "source_account_id", sourceID, "target_account_id", targetID)

	// The source must stop creating resources while they are moved away.
	if err := s.sessions.DeleteAccountSessions(ctx, sourceID); err != nil {
		s.logger.Warn("failed to revoke source sessions", "job_id", job.ID, "error", err)
	}
	return job, nil
}

// maxMergePasses bounds how often one run re-snapshots a source account
// that keeps gaining resources while it is being merged.
const maxMergePasses = 3

var errSourceNotEmpty = errors.New("source account gained resources during the merge; resume to move them")

// runJob drives every open ledger item, then deletes the source account
// once nothing it owns is left unmigrated. Ledger writes use a context that
// survives the run deadline so progress is never lost.
func (s *MergeService) runJob(ctx context.Context, job *model.MergeJob) (*MergeResult, error) {
	persistCtx := context.WithoutCancel(ctx)
	logger := s.logger.With(
		"job_id", job.ID,
		"source_account_id", job.SourceAccountID,
		"target_account_id", job.TargetAccountID,
	)

	if _, err := s.identities.GetAccount(ctx, job.TargetAccountID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			job.Status = model.MergeJobFailed
			job.Error = "target account no longer exists"
			s.saveJob(persistCtx, job, logger)
			return nil, ErrNotFound
		}
		return nil, s.runError(ctx, job, err, logger)
	}

	var t itemTally
	for pass := 1; ; pass++ {
		if err := s.runItems(ctx, job, logger); err != nil {
			return nil, s.runError(ctx, job, err, logger)
		}

		all, err := s.ledger.ListMergeItems(persistCtx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
		t = tally(all)
		job.MigratedUploads = t.uploads
		job.MigratedConversions = t.conversions
		job.Error = ""

		if ctx.Err() != nil {
			job.Error = "merge timed out"
			s.saveJob(persistCtx, job, logger)
			logger.Warn("merge timed out", "pending_items", t.blocking)
			return nil, ErrMergeTimeout
		}

		if t.blocking > 0 || job.SourceDeleted {
			break
		}

		err = s.finalize(ctx, job, logger)
		if errors.Is(err, errSourceNotEmpty) {
			if pass < maxMergePasses {
				logger.Info("source account gained resources, running another pass", "pass", pass)
				continue
			}
			logger.Warn("source account still gaining resources, leaving job partial", "passes", pass)
			job.Error = err.Error()
			break
		}
		if err != nil {
			job.Status = model.MergeJobPartial
			job.Error = err.Error()
			s.saveJob(persistCtx, job, logger)
			return nil, s.runError(ctx, job, err, logger)
		}
		break
	}

	switch {
	case !job.SourceDeleted || t.retryable > 0:
		job.Status = model.MergeJobPartial
	default:
		job.Status = model.MergeJobCompleted
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	s.saveJob(persistCtx, job, logger)

	logger.Info("merge run finished",
		"status", job.Status,
		"migrated_uploads", job.MigratedUploads,
		"migrated_conversions", job.MigratedConversions,
		"retryable_items", t.retryable,
		"permanent_items", t.permanent,
		"source_deleted", job.SourceDeleted,
	)

	return &MergeResult{
		Job:               job,
		MergedUploads:     job.MigratedUploads,
		MergedConversions: job.MigratedConversions,
		RetryableItems:    t.retryable,
		PermanentItems:    t.permanent,
	}, nil
}

// runItems snapshots anything new the source owns and makes one attempt at
// every pending or retryable item.
func (s *MergeService) runItems(ctx context.Context, job *model.MergeJob, logger *slog.Logger) error {
	persistCtx := context.WithoutCancel(ctx)

	if !job.SourceDeleted {
		if _, err := s.ledger.SnapshotMergeItems(ctx, job.ID, job.SourceAccountID); err != nil {
			return err
		}
	}

	items, err := s.ledger.ListMergeItems(ctx, job.ID, model.MergeItemPending, model.MergeItemFailedRetryable)
	if err != nil {
		return err
	}

	moved := map[model.MergeItemKind]int{}
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		wasMoved := item.OwnerMoved
		s.processItem(ctx, job, item, logger)
		if !wasMoved && item.OwnerMoved {
			moved[item.Kind]++
		}

		item.UpdatedAt = time.Now().UTC()
		if err := s.ledger.UpdateMergeItem(persistCtx, item); err != nil {
			logger.Error("failed to record merge item", "kind", item.Kind, "resource_id", item.ResourceID, "error", err)
		}
	}
	for kind, n := range moved {
		s.metrics.AddMergedResources(string(kind), n)
	}
	return nil
}

// finalize reconciles the kept email, clears merge tokens and deletes the
// source account. Deleting the source is the last, irreversible step.
func (s *MergeService) finalize(ctx context.Context, job *model.MergeJob, logger *slog.Logger) error {
	if job.KeepEmail != "" {
		target, err := s.identities.GetAccount(ctx, job.TargetAccountID)
		if err != nil {
			return fmt.Errorf("load target account: %w", err)
		}
		if model.NormalizeEmail(target.Email) != model.NormalizeEmail(job.KeepEmail) {
			if err := s.identities.UpdateAccountEmail(ctx, job.TargetAccountID, job.KeepEmail); err != nil {
				return fmt.Errorf("update target email: %w", err)
			}
		}
	}

	if _, err := s.tokens.DeleteMergeTokensForAccounts(ctx, []string{job.SourceAccountID, job.TargetAccountID}); err != nil {
		logger.Warn("failed to delete merge tokens", "error", err)
	}

	err := s.identities.DeleteEmptyAccount(ctx, job.SourceAccountID)
	switch {
	case errors.Is(err, repository.ErrAccountNotEmpty):
		return errSourceNotEmpty
	case err != nil && !errors.Is(err, repository.ErrAccountNotFound):
		return fmt.Errorf("delete source account: %w", err)
	}
	job.SourceDeleted = true

	if err := s.sessions.DeleteAccountSessions(ctx, job.SourceAccountID); err != nil {
		logger.Warn("failed to delete source sessions", "error", err)
	}

	s.events.PublishAsync(&model.AccountEvent{
		Type:           model.EventAccountMerged,
		AccountID:      job.TargetAccountID,
		OtherAccountID: job.SourceAccountID,
		JobID:          job.ID,
	})
	return nil
}

// processItem makes one attempt at moving a ledger item. It never returns
// an error: the outcome is recorded on the item.
func (s *MergeService) processItem(ctx context.Context, job *model.MergeJob, item *model.MergeItem, logger *slog.Logger) {
	item.Attempts++
	item.LastError = ""

	switch item.Kind {
	case model.MergeItemUpload:
		s.migrateUpload(ctx, job, item)
	case model.MergeItemConversion:
		s.migrateConversion(ctx, job, item)
	default:
		failItem(item, model.MergeItemFailedPermanent, fmt.Errorf("unknown item kind %q", item.Kind))
	}

	if item.Status == model.MergeItemFailedRetryable || item.Status == model.MergeItemFailedPermanent {
		logger.Warn("merge item failed",
			"kind", item.Kind,
			"resource_id", item.ResourceID,
			"status", item.Status,
			"owner_moved", item.OwnerMoved,
			"error", item.LastError,
		)
		s.metrics.IncMergeItemFailed(string(item.Kind), string(item.Status))
	}
}

func (s *MergeService) migrateUpload(ctx context.Context, job *model.MergeJob, item *model.MergeItem) {
	upload, err := s.resources.GetUpload(ctx, item.ResourceID)
	if err != nil {
		if errors.Is(err, repository.ErrUploadNotFound) {
			failItem(item, model.MergeItemFailedPermanent, errors.New("upload no longer exists"))
			return
		}
		failItem(item, model.MergeItemFailedRetryable, err)
		return
	}
	if !ownedByPair(upload.AccountID, job) {
		failItem(item, model.MergeItemFailedPermanent, errors.New("upload is owned by another account"))
		return
	}

	move := s.moveBlob(ctx, upload.StoragePath, job)
	item.OldPath = upload.StoragePath
	item.NewPath = move.newPath

	err = s.resources.ReassignUpload(ctx, upload.ID, pair(job), job.TargetAccountID, move.rowPath)
	if err != nil {
		if errors.Is(err, repository.ErrUploadNotFound) {
			failItem(item, model.MergeItemFailedPermanent, errors.New("upload no longer exists"))
			return
		}
		failItem(item, model.MergeItemFailedRetryable, err)
		return
	}
	item.OwnerMoved = true
	s.settleBlob(ctx, item, upload.StoragePath, move)
}

func (s *MergeService) migrateConversion(ctx context.Context, job *model.MergeJob, item *model.MergeItem) {
	conversion, err := s.resources.GetConversion(ctx, item.ResourceID)
	if err != nil {
		if errors.Is(err, repository.ErrConversionNotFound) {
			failItem(item, model.MergeItemFailedPermanent, errors.New("conversion no longer exists"))
			return
		}
		failItem(item, model.MergeItemFailedRetryable, err)
		return
	}
	if !ownedByPair(conversion.AccountID, job) {
		failItem(item, model.MergeItemFailedPermanent, errors.New("conversion is owned by another account"))
		return
	}

	var (
		oldPath    string
		outputPath *string
		move       blobMove
	)
	if conversion.OutputPath != nil {
		oldPath = *conversion.OutputPath
		move = s.moveBlob(ctx, oldPath, job)
		outputPath = &move.rowPath
	}
	item.OldPath = oldPath
	item.NewPath = move.newPath

	err = s.resources.ReassignConversion(ctx, conversion.ID, pair(job), job.TargetAccountID, outputPath)
	if err != nil {
		if errors.Is(err, repository.ErrConversionNotFound) {
			failItem(item, model.MergeItemFailedPermanent, errors.New("conversion no longer exists"))
			return
		}
		failItem(item, model.MergeItemFailedRetryable, err)
		return
	}
	item.OwnerMoved = true
	s.settleBlob(ctx, item, oldPath, move)
}

// blobMove is the outcome of copying a blob to its rewritten path.
type blobMove struct {
	newPath   string
	rowPath   string // what the row should point at after this attempt
	copied    bool   // old blob still exists and must be removed once the row moved
	err       error
	permanent bool
}

// moveBlob copies the blob at oldPath to the path rewritten for the
// target. On any failure the row keeps pointing at oldPath.
func (s *MergeService) moveBlob(ctx context.Context, oldPath string, job *model.MergeJob) blobMove {
	newPath := model.RewritePath(oldPath, job.SourceAccountID, job.TargetAccountID)
	move := blobMove{newPath: newPath, rowPath: oldPath}
	if oldPath == "" || oldPath == newPath {
		move.rowPath = newPath
		return move
	}

	blob, err := s.blobs.Download(ctx, oldPath)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			move.err = fmt.Errorf("download %s: %w", oldPath, err)
			return move
		}

		// A previous attempt may have moved the blob before the row update
		// was recorded.
		exists, err := s.blobs.Exists(ctx, newPath)
		switch {
		case err != nil:
			move.err = fmt.Errorf("check %s: %w", newPath, err)
		case exists:
			move.rowPath = newPath
		default:
			move.err = errBlobMissing
			move.permanent = true
		}
		return move
	}

	if err := s.blobs.Upload(ctx, newPath, blob); err != nil {
		move.err = fmt.Errorf("upload %s: %w", newPath, err)
		return move
	}
	move.rowPath = newPath
	move.copied = true
	return move
}

// settleBlob removes the old blob after the row points at the new one and
// sets the item's final status for this attempt.
func (s *MergeService) settleBlob(ctx context.Context, item *model.MergeItem, oldPath string, move blobMove) {
	if move.copied {
		if err := s.blobs.Delete(ctx, oldPath); err != nil {
			s.logger.Warn("failed to delete migrated blob; leaving orphan",
				"job_id", item.JobID,
				"path", oldPath,
				"error", err,
			)
		}
	}

	switch {
	case move.err == nil:
		item.Status = model.MergeItemMigrated
	case move.permanent:
		failItem(item, model.MergeItemFailedPermanent, move.err)
	default:
		failItem(item, model.MergeItemFailedRetryable, fmt.Errorf("%w: %v", ErrStorageFailed, move.err))
	}
}

// resultFor reports an already finished job without running it.
func (s *MergeService) resultFor(ctx context.Context, job *model.MergeJob) (*MergeResult, error) {
	items, err := s.ledger.ListMergeItems(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	t := tally(items)
	return &MergeResult{
		Job:               job,
		MergedUploads:     job.MigratedUploads,
		MergedConversions: job.MigratedConversions,
		RetryableItems:    t.retryable,
		PermanentItems:    t.permanent,
	}, nil
}

func (s *MergeService) saveJob(ctx context.Context, job *model.MergeJob, logger *slog.Logger) {
	job.UpdatedAt = time.Now().UTC()
	if err := s.ledger.UpdateMergeJob(ctx, job); err != nil {
		logger.Error("failed to record merge job", "status", job.Status, "error", err)
	}
}

// runError maps a failure during a run to a service error kind.
func (s *MergeService) runError(ctx context.Context, job *model.MergeJob, err error, logger *slog.Logger) error {
	if ctx.Err() != nil {
		job.Error = "merge timed out"
		s.saveJob(context.WithoutCancel(ctx), job, logger)
		return ErrMergeTimeout
	}
	logger.Error("merge run failed", "error", err)
	return fmt.Errorf("%w: %v", ErrLookupFailed, err)
}

type itemTally struct {
	uploads     int
	conversions int
	retryable   int
	permanent   int
	blocking    int
}

func tally(items []*model.MergeItem) itemTally {
	var t itemTally
	for _, it := range items {
		if it.OwnerMoved {
			switch it.Kind {
			case model.MergeItemUpload:
				t.uploads++
			case model.MergeItemConversion:
				t.conversions++
			}
		}
		switch it.Status {
		case model.MergeItemFailedRetryable:
			t.retryable++
		case model.MergeItemFailedPermanent:
			t.permanent++
		}
		if it.BlocksSourceDeletion() {
			t.blocking++
		}
	}
	return t
}

func failItem(item *model.MergeItem, status model.MergeItemStatus, err error) {
	item.Status = status
	item.LastError = err.Error()
}

func ownedByPair(accountID string, job *model.MergeJob) bool {
	return accountID == job.SourceAccountID || accountID == job.TargetAccountID
}

func pair(job *model.MergeJob) []string {
	return []string{job.SourceAccountID, job.TargetAccountID}
}
