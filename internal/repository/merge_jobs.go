package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fileforge/fileforge/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// Common errors for merge ledger operations.
var (
	ErrMergeJobNotFound = errors.New("merge job not found")
	ErrMergeJobExists   = errors.New("an unfinished merge job already exists for the source account")
)

const mergeJobColumns = `id, source_account_id, target_account_id, keep_email, status,
	migrated_uploads, migrated_conversions, source_deleted, error, created_at, updated_at, completed_at`

const mergeItemColumns = `job_id, kind, resource_id, old_path, new_path, status, owner_moved,
	attempts, last_error, updated_at`

// CreateMergeJob inserts a new job. At most one open job may exist per source.
func (r *Repository) CreateMergeJob(ctx context.Context, job *model.MergeJob) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO merge_jobs (`+mergeJobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		job.ID,
		job.SourceAccountID,
		job.TargetAccountID,
		job.KeepEmail,
		job.Status,
		job.MigratedUploads,
		job.MigratedConversions,
		job.SourceDeleted,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrMergeJobExists
		}
		return fmt.Errorf("failed to create merge job: %w", err)
	}
	return nil
}

// GetMergeJob retrieves a job by ID.
func (r *Repository) GetMergeJob(ctx context.Context, id string) (*model.MergeJob, error) {
	job, err := scanMergeJob(r.pool.QueryRow(ctx, `
		SELECT `+mergeJobColumns+` FROM merge_jobs WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMergeJobNotFound
		}
		return nil, fmt.Errorf("failed to get merge job: %w", err)
	}
	return job, nil
}

// GetOpenMergeJob returns the running or partial job for a source account.
func (r *Repository) GetOpenMergeJob(ctx context.Context, sourceAccountID string) (*model.MergeJob, error) {
	job, err := scanMergeJob(r.pool.QueryRow(ctx, `
		SELECT `+mergeJobColumns+`
		FROM merge_jobs
		WHERE source_account_id = $1 AND status = ANY($2)
	`, sourceAccountID, pq.Array([]string{string(model.MergeJobRunning), string(model.MergeJobPartial)})))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMergeJobNotFound
		}
		return nil, fmt.Errorf("failed to get open merge job: %w", err)
	}
	return job, nil
}

// UpdateMergeJob persists status, counters and completion of a job.
func (r *Repository) UpdateMergeJob(ctx context.Context, job *model.MergeJob) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE merge_jobs
		SET status = $2, migrated_uploads = $3, migrated_conversions = $4,
		    source_deleted = $5, error = $6, updated_at = $7, completed_at = $8
		WHERE id = $1
	`,
		job.ID,
		job.Status,
		job.MigratedUploads,
		job.MigratedConversions,
		job.SourceDeleted,
		job.Error,
		job.UpdatedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update merge job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMergeJobNotFound
	}
	return nil
}

// SnapshotMergeItems adds a pending ledger item for every upload and
// conversion the source account currently owns. Existing items are kept,
// so calling it again on resume only picks up rows created since.
func (r *Repository) SnapshotMergeItems(ctx context.Context, jobID, sourceAccountID string) (int64, error) {
	var added int64
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		now := time.Now().UTC()

		tag, err := tx.Exec(ctx, `
			INSERT INTO merge_items (job_id, kind, resource_id, old_path, status, updated_at)
			SELECT $1, 'upload', id, storage_path, 'pending', $3
			FROM uploads
			WHERE account_id = $2
			ON CONFLICT (job_id, kind, resource_id) DO NOTHING
		`, jobID, sourceAccountID, now)
		if err != nil {
			return fmt.Errorf("failed to snapshot uploads: %w", err)
		}
		added += tag.RowsAffected()

		tag, err = tx.Exec(ctx, `
			INSERT INTO merge_items (job_id, kind, resource_id, old_path, status, updated_at)
			SELECT $1, 'conversion', id, COALESCE(output_path, ''), 'pending', $3
			FROM conversions
			WHERE account_id = $2
			ON CONFLICT (job_id, kind, resource_id) DO NOTHING
		`, jobID, sourceAccountID, now)
		if err != nil {
			return fmt.Errorf("failed to snapshot conversions: %w", err)
		}
		added += tag.RowsAffected()
		return nil
	})
	return added, err
}

// ListMergeItems returns a job's items, uploads before conversions. With no
// statuses given, every item is returned.
func (r *Repository) ListMergeItems(ctx context.Context, jobID string, statuses ...model.MergeItemStatus) ([]*model.MergeItem, error) {
	query := `SELECT ` + mergeItemColumns + ` FROM merge_items WHERE job_id = $1`
	args := []any{jobID}

	if len(statuses) > 0 {
		raw := make([]string, len(statuses))
		for i, s := range statuses {
			raw[i] = string(s)
		}
		query += ` AND status = ANY($2)`
		args = append(args, pq.Array(raw))
	}
	query += ` ORDER BY CASE kind WHEN 'upload' THEN 0 ELSE 1 END, resource_id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list merge items: %w", err)
	}
	defer rows.Close()

	var items []*model.MergeItem
	for rows.Next() {
		var it model.MergeItem
		err := rows.Scan(
			&it.JobID,
			&it.Kind,
			&it.ResourceID,
			&it.OldPath,
			&it.NewPath,
			&it.Status,
			&it.OwnerMoved,
			&it.Attempts,
			&it.LastError,
			&it.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan merge item: %w", err)
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list merge items: %w", err)
	}
	return items, nil
}

// UpdateMergeItem persists the outcome of one item attempt.
func (r *Repository) UpdateMergeItem(ctx context.Context, item *model.MergeItem) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE merge_items
		SET old_path = $4, new_path = $5, status = $6, owner_moved = $7,
		    attempts = $8, last_error = $9, updated_at = $10
		WHERE job_id = $1 AND kind = $2 AND resource_id = $3
	`,
		item.JobID,
		item.Kind,
		item.ResourceID,
		item.OldPath,
		item.NewPath,
		item.Status,
		item.OwnerMoved,
		item.Attempts,
		item.LastError,
		item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update merge item: %w", err)
	}
	return nil
}

func scanMergeJob(row pgx.Row) (*model.MergeJob, error) {
	var j model.MergeJob
	err := row.Scan(
		&j.ID,
		&j.SourceAccountID,
		&j.TargetAccountID,
		&j.KeepEmail,
		&j.Status,
		&j.MigratedUploads,
		&j.MigratedConversions,
		&j.SourceDeleted,
		&j.Error,
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}
