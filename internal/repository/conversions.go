package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fileforge/fileforge/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

const conversionColumns = `id, upload_id, account_id, original_format, target_format, status,
	output_path, output_size, error_message, created_at, completed_at`

// CreateConversion inserts a new conversion row.
func (r *Repository) CreateConversion(ctx context.Context, c *model.Conversion) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversions (`+conversionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		c.ID,
		c.UploadID,
		c.AccountID,
		c.OriginalFormat,
		c.TargetFormat,
		c.Status,
		c.OutputPath,
		c.OutputSize,
		c.ErrorMessage,
		c.CreatedAt,
		c.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create conversion: %w", err)
	}
	return nil
}

// UpdateConversion persists status and output fields of a conversion.
func (r *Repository) UpdateConversion(ctx context.Context, c *model.Conversion) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversions
		SET status = $2, output_path = $3, output_size = $4, error_message = $5, completed_at = $6
		WHERE id = $1
	`,
		c.ID,
		c.Status,
		c.OutputPath,
		c.OutputSize,
		c.ErrorMessage,
		c.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversionNotFound
	}
	return nil
}

// GetConversion retrieves a conversion by ID.
func (r *Repository) GetConversion(ctx context.Context, id string) (*model.Conversion, error) {
	c, err := scanConversion(r.pool.QueryRow(ctx, `
		SELECT `+conversionColumns+` FROM conversions WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversionNotFound
		}
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}
	return c, nil
}

// ListConversions returns an account's conversions, newest first.
func (r *Repository) ListConversions(ctx context.Context, accountID string) ([]*model.Conversion, error) {
	return r.queryConversions(ctx, `
		SELECT `+conversionColumns+`
		FROM conversions
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
	`, accountID)
}

// ListConversionsByUpload returns the conversions of a single upload.
func (r *Repository) ListConversionsByUpload(ctx context.Context, uploadID string) ([]*model.Conversion, error) {
	return r.queryConversions(ctx, `
		SELECT `+conversionColumns+`
		FROM conversions
		WHERE upload_id = $1
		ORDER BY created_at ASC, id ASC
	`, uploadID)
}

// ReassignConversion sets a new owner and output path on a conversion
// currently owned by one of fromAccountIDs.
func (r *Repository) ReassignConversion(ctx context.Context, id string, fromAccountIDs []string, toAccountID string, outputPath *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversions
		SET account_id = $3, output_path = $4
		WHERE id = $1 AND account_id = ANY($2)
	`, id, pq.Array(fromAccountIDs), toAccountID, outputPath)
	if err != nil {
		return fmt.Errorf("failed to reassign conversion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversionNotFound
	}
	return nil
}

func (r *Repository) queryConversions(ctx context.Context, query string, args ...any) ([]*model.Conversion, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	defer rows.Close()

	var conversions []*model.Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversion: %w", err)
		}
		conversions = append(conversions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	return conversions, nil
}

func scanConversion(row pgx.Row) (*model.Conversion, error) {
	var c model.Conversion
	err := row.Scan(
		&c.ID,
		&c.UploadID,
		&c.AccountID,
		&c.OriginalFormat,
		&c.TargetFormat,
		&c.Status,
		&c.OutputPath,
		&c.OutputSize,
		&c.ErrorMessage,
		&c.CreatedAt,
		&c.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
