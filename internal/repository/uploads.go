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

// Common errors for resource repository operations.
var (
	ErrUploadNotFound     = errors.New("upload not found")
	ErrConversionNotFound = errors.New("conversion not found")
)

const uploadColumns = `id, account_id, original_filename, file_size, file_type, storage_path, created_at, updated_at`

// CreateUpload inserts a new upload row.
func (r *Repository) CreateUpload(ctx context.Context, upload *model.Upload) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO uploads (`+uploadColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		upload.ID,
		upload.AccountID,
		upload.OriginalFilename,
		upload.FileSize,
		upload.FileType,
		upload.StoragePath,
		upload.CreatedAt,
		upload.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

// GetUpload retrieves an upload by ID.
func (r *Repository) GetUpload(ctx context.Context, id string) (*model.Upload, error) {
	upload, err := scanUpload(r.pool.QueryRow(ctx, `
		SELECT `+uploadColumns+` FROM uploads WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUploadNotFound
		}
		return nil, fmt.Errorf("failed to get upload: %w", err)
	}
	return upload, nil
}

// ListUploads returns an account's uploads, newest first.
func (r *Repository) ListUploads(ctx context.Context, accountID string) ([]*model.Upload, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+uploadColumns+`
		FROM uploads
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*model.Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	return uploads, nil
}

// DeleteUpload removes an upload; its conversions go with it.
func (r *Repository) DeleteUpload(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUploadNotFound
	}
	return nil
}

// ReassignUpload sets a new owner and storage path on an upload currently
// owned by one of fromAccountIDs. Re-running it after the owner already
// moved is allowed by including the target in fromAccountIDs.
func (r *Repository) ReassignUpload(ctx context.Context, id string, fromAccountIDs []string, toAccountID, storagePath string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE uploads
		SET account_id = $3, storage_path = $4, updated_at = $5
		WHERE id = $1 AND account_id = ANY($2)
	`, id, pq.Array(fromAccountIDs), toAccountID, storagePath, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to reassign upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUploadNotFound
	}
	return nil
}

// CountResources returns how many uploads and conversions an account owns.
func (r *Repository) CountResources(ctx context.Context, accountID string) (int64, int64, error) {
	var uploads, conversions int64
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM uploads WHERE account_id = $1),
			(SELECT COUNT(*) FROM conversions WHERE account_id = $1)
	`, accountID).Scan(&uploads, &conversions)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count resources: %w", err)
	}
	return uploads, conversions, nil
}

// StorageStats sums upload sizes plus completed conversion outputs.
func (r *Repository) StorageStats(ctx context.Context, accountID string) (*model.StorageStats, error) {
	var stats model.StorageStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT SUM(file_size) FROM uploads WHERE account_id = $1), 0)
			+ COALESCE((SELECT SUM(output_size) FROM conversions WHERE account_id = $1 AND status = 'completed'), 0),
			(SELECT COUNT(*) FROM uploads WHERE account_id = $1),
			(SELECT COUNT(*) FROM conversions WHERE account_id = $1)
	`, accountID).Scan(&stats.TotalSize, &stats.FileCount, &stats.ConversionCount)
	if err != nil {
		return nil, fmt.Errorf("failed to compute storage stats: %w", err)
	}
	return &stats, nil
}

func scanUpload(row pgx.Row) (*model.Upload, error) {
	var u model.Upload
	err := row.Scan(
		&u.ID,
		&u.AccountID,
		&u.OriginalFilename,
		&u.FileSize,
		&u.FileType,
		&u.StoragePath,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
