package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/fileforge/fileforge/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

// ErrMergeTokenNotFound is returned when no token matches a code hash.
var ErrMergeTokenNotFound = errors.New("merge token not found")

// ReplaceMergeToken stores token as the only live token of its account.
func (r *Repository) ReplaceMergeToken(ctx context.Context, token *model.MergeToken) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM merge_tokens WHERE account_id = $1`, token.AccountID); err != nil {
			return fmt.Errorf("failed to clear merge tokens: %w", err)
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO merge_tokens (code_hash, account_id, created_at)
			VALUES ($1, $2, $3)
		`, token.CodeHash, token.AccountID, token.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create merge token: %w", err)
		}
		return nil
	})
}

// GetMergeTokenByHash looks up a token by its code hash.
func (r *Repository) GetMergeTokenByHash(ctx context.Context, codeHash string) (*model.MergeToken, error) {
	var t model.MergeToken
	err := r.pool.QueryRow(ctx, `
		SELECT code_hash, account_id, created_at FROM merge_tokens WHERE code_hash = $1
	`, codeHash).Scan(&t.CodeHash, &t.AccountID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMergeTokenNotFound
		}
		return nil, fmt.Errorf("failed to get merge token: %w", err)
	}
	return &t, nil
}

// ClaimMergeToken deletes and returns the token in one statement, so only
// one of several concurrent callers can claim it.
func (r *Repository) ClaimMergeToken(ctx context.Context, codeHash, accountID string) (*model.MergeToken, error) {
	var t model.MergeToken
	err := r.pool.QueryRow(ctx, `
		DELETE FROM merge_tokens
		WHERE code_hash = $1 AND account_id = $2
		RETURNING code_hash, account_id, created_at
	`, codeHash, accountID).Scan(&t.CodeHash, &t.AccountID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMergeTokenNotFound
		}
		return nil, fmt.Errorf("failed to claim merge token: %w", err)
	}
	return &t, nil
}

// DeleteMergeToken removes a token by hash. Missing tokens are ignored.
func (r *Repository) DeleteMergeToken(ctx context.Context, codeHash string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM merge_tokens WHERE code_hash = $1`, codeHash); err != nil {
		return fmt.Errorf("failed to delete merge token: %w", err)
	}
	return nil
}

// DeleteMergeTokensForAccounts removes every token owned by any of accountIDs.
func (r *Repository) DeleteMergeTokensForAccounts(ctx context.Context, accountIDs []string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM merge_tokens WHERE account_id = ANY($1)
	`, pq.Array(accountIDs))
	if err != nil {
		return 0, fmt.Errorf("failed to delete merge tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
