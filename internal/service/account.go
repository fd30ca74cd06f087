package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/repository"
)

// AccountService reads accounts and manages their linked identities.
type AccountService struct {
	identities IdentityStore
	events     EventPublisher
	logger     *slog.Logger
}

// NewAccountService creates a new AccountService.
func NewAccountService(identities IdentityStore, events EventPublisher, logger *slog.Logger) *AccountService {
	if events == nil {
		events = noopPublisher{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &AccountService{
		identities: identities,
		events:     events,
		logger:     logger.With("component", "account"),
	}
}

// GetAccount returns the account with its linked identities.
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*model.Account, error) {
	if accountID == "" {
		return nil, ErrUnauthorized
	}

	account, err := s.identities.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	identities, err := s.identities.ListIdentities(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	account.Identities = identities
	return account, nil
}

// UnlinkIdentity removes the account's identity for provider.
// The last identity cannot be removed.
func (s *AccountService) UnlinkIdentity(ctx context.Context, accountID, provider string) error {
	if accountID == "" {
		return ErrUnauthorized
	}
	p, ok := model.ParseProvider(provider)
	if !ok {
		return fmt.Errorf("%w: unknown provider %q", ErrBadRequest, provider)
	}

	if err := s.identities.UnlinkIdentity(ctx, accountID, p); err != nil {
		switch {
		case errors.Is(err, repository.ErrAccountNotFound):
			return ErrUnauthorized
		case errors.Is(err, repository.ErrLastIdentity):
			return ErrLastIdentity
		case errors.Is(err, repository.ErrIdentityNotFound):
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	s.logger.Info("identity unlinked", "account_id", accountID, "provider", p)
	s.events.PublishAsync(&model.AccountEvent{
		Type:      model.EventIdentityUnlinked,
		AccountID: accountID,
		Provider:  p,
	})
	return nil
}

// UserCount returns the number of accounts.
func (s *AccountService) UserCount(ctx context.Context) (int64, error) {
	n, err := s.identities.CountAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	return n, nil
}
