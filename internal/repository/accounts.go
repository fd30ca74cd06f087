package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fileforge/fileforge/internal/model"
	"github.com/jackc/pgx/v5"
)

// Common errors for account repository operations.
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrIdentityNotFound = errors.New("identity not found")
	ErrIdentityTaken    = errors.New("identity already linked")
	ErrLastIdentity     = errors.New("cannot unlink the last identity")
	ErrAccountNotEmpty  = errors.New("account still owns uploads or conversions")
)

// CreateAccount inserts an account together with its first identity.
func (r *Repository) CreateAccount(ctx context.Context, account *model.Account, identity *model.Identity) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO accounts (id, email, primary_provider, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5)
		`,
			account.ID,
			account.Email,
			nullProvider(account.PrimaryProvider),
			account.CreatedAt,
			account.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}

		return insertIdentity(ctx, tx, identity)
	})
}

// GetAccount retrieves an account by ID, without identities.
func (r *Repository) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	query := `
		SELECT id, email, primary_provider, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`

	account, err := scanAccount(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// UpdateAccountEmail overwrites the account's primary email.
func (r *Repository) UpdateAccountEmail(ctx context.Context, id, email string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounts SET email = $2, updated_at = $3 WHERE id = $1
	`, id, email, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update account email: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes an account. Identities, uploads, conversions and
// merge tokens are removed by cascade.
func (r *Repository) DeleteAccount(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeleteEmptyAccount removes an account only if it owns no uploads or
// conversions. The account row is locked first, so a concurrent insert
// either commits before the check or fails its foreign key afterwards.
func (r *Repository) DeleteEmptyAccount(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		var locked string
		err := tx.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("failed to lock account: %w", err)
		}

		var owns bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM uploads WHERE account_id = $1)
			    OR EXISTS (SELECT 1 FROM conversions WHERE account_id = $1)
		`, id).Scan(&owns)
		if err != nil {
			return fmt.Errorf("failed to check account resources: %w", err)
		}
		if owns {
			return ErrAccountNotEmpty
		}

		if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		return nil
	})
}

// CountAccounts returns the total number of accounts.
func (r *Repository) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n, nil
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a       model.Account
		primary *string
	)
	if err := row.Scan(&a.ID, &a.Email, &primary, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if primary != nil {
		a.PrimaryProvider = model.Provider(*primary)
	}
	return &a, nil
}

func nullProvider(p model.Provider) *string {
	if p == "" {
		return nil
	}
	s := string(p)
	return &s
}
