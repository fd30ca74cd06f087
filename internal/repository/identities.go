package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fileforge/fileforge/internal/model"
	"github.com/jackc/pgx/v5"
)

const identityColumns = `i.id, i.account_id, i.provider, i.provider_user_id, i.profile, i.created_at`

// ListIdentities returns the identities linked to an account, oldest first.
func (r *Repository) ListIdentities(ctx context.Context, accountID string) ([]*model.Identity, error) {
	query := `SELECT ` + identityColumns + `
		FROM identities i
		WHERE i.account_id = $1
		ORDER BY i.created_at ASC, i.id ASC
	`

	rows, err := r.pool.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var identities []*model.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	return identities, nil
}

// GetIdentityByProviderUser looks up an identity by its provider-side user id.
func (r *Repository) GetIdentityByProviderUser(ctx context.Context, provider model.Provider, providerUserID string) (*model.Identity, error) {
	query := `SELECT ` + identityColumns + `
		FROM identities i
		WHERE i.provider = $1 AND i.provider_user_id = $2
	`

	identity, err := scanIdentity(r.pool.QueryRow(ctx, query, provider, providerUserID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIdentityNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return identity, nil
}

// FindCollision returns the oldest identity of another account whose
// effective email for provider equals email. The effective email is the
// identity's profile email, or the owning account's email when the profile
// has none. email must already be normalized.
func (r *Repository) FindCollision(ctx context.Context, provider model.Provider, email, excludeAccountID string) (*model.Identity, *model.Account, error) {
	query := `SELECT ` + identityColumns + `,
			a.id, a.email, a.primary_provider, a.created_at, a.updated_at
		FROM identities i
		JOIN accounts a ON a.id = i.account_id
		WHERE i.provider = $1
		  AND i.account_id <> $3
		  AND (
		        i.email_normalized = $2
		        OR (i.email_normalized = '' AND lower(btrim(a.email)) = $2)
		      )
		ORDER BY a.created_at ASC, i.created_at ASC
		LIMIT 1
	`

	var (
		identity model.Identity
		account  model.Account
		profile  []byte
		primary  *string
	)
	err := r.pool.QueryRow(ctx, query, provider, email, excludeAccountID).Scan(
		&identity.ID,
		&identity.AccountID,
		&identity.Provider,
		&identity.ProviderUserID,
		&profile,
		&identity.CreatedAt,
		&account.ID,
		&account.Email,
		&primary,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrIdentityNotFound
		}
		return nil, nil, fmt.Errorf("failed to find colliding identity: %w", err)
	}

	if identity.Profile, err = model.UnmarshalProfile(identity.Provider, profile); err != nil {
		return nil, nil, err
	}
	if primary != nil {
		account.PrimaryProvider = model.Provider(*primary)
	}
	return &identity, &account, nil
}

// LinkIdentity attaches a new identity to an existing account.
func (r *Repository) LinkIdentity(ctx context.Context, identity *model.Identity) error {
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertIdentity(ctx, tx, identity); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE accounts
			SET primary_provider = COALESCE(primary_provider, $2), updated_at = $3
			WHERE id = $1
		`, identity.AccountID, identity.Provider, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to update primary provider: %w", err)
		}
		return nil
	})
	return err
}

// UnlinkIdentity removes the account's identity for provider. The last
// identity of an account cannot be removed. When the removed identity was
// the primary provider, the oldest remaining identity becomes primary.
func (r *Repository) UnlinkIdentity(ctx context.Context, accountID string, provider model.Provider) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		var primary *string
		err := tx.QueryRow(ctx, `
			SELECT primary_provider FROM accounts WHERE id = $1 FOR UPDATE
		`, accountID).Scan(&primary)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("failed to lock account: %w", err)
		}

		var total, matching int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*), COUNT(*) FILTER (WHERE provider = $2)
			FROM identities
			WHERE account_id = $1
		`, accountID, provider).Scan(&total, &matching)
		if err != nil {
			return fmt.Errorf("failed to count identities: %w", err)
		}
		if matching == 0 {
			return ErrIdentityNotFound
		}
		if total-matching < 1 {
			return ErrLastIdentity
		}

		if _, err := tx.Exec(ctx, `
			DELETE FROM identities WHERE account_id = $1 AND provider = $2
		`, accountID, provider); err != nil {
			return fmt.Errorf("failed to unlink identity: %w", err)
		}

		if primary == nil || *primary != string(provider) {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE accounts
			SET primary_provider = (
				SELECT provider FROM identities
				WHERE account_id = $1
				ORDER BY created_at ASC, id ASC
				LIMIT 1
			), updated_at = $2
			WHERE id = $1
		`, accountID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to move primary provider: %w", err)
		}
		return nil
	})
}

func insertIdentity(ctx context.Context, tx pgx.Tx, identity *model.Identity) error {
	profile, err := model.MarshalProfile(identity.Profile)
	if err != nil {
		return err
	}

	email := identity.Email()
	_, err = tx.Exec(ctx, `
		INSERT INTO identities (id, account_id, provider, provider_user_id, email, email_normalized, profile, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		identity.ID,
		identity.AccountID,
		identity.Provider,
		identity.ProviderUserID,
		email,
		model.NormalizeEmail(email),
		profile,
		identity.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrIdentityTaken
		}
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

func scanIdentity(row pgx.Row) (*model.Identity, error) {
	var (
		identity model.Identity
		profile  []byte
	)
	err := row.Scan(
		&identity.ID,
		&identity.AccountID,
		&identity.Provider,
		&identity.ProviderUserID,
		&profile,
		&identity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	identity.Profile, err = model.UnmarshalProfile(identity.Provider, profile)
	if err != nil {
		return nil, err
	}
	return &identity, nil
}
