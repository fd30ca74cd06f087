package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/repository"
)

// CheckExistingAccount looks for another account that already holds the
// (provider, email) pair. It returns nil without error when there is none.
func (s *MergeService) CheckExistingAccount(ctx context.Context, sessionAccountID, provider, email string) (*model.Collision, error) {
	if sessionAccountID == "" {
		return nil, ErrUnauthorized
	}
	current, err := s.sessionAccount(ctx, sessionAccountID)
	if err != nil {
		return nil, err
	}

	p, ok := model.ParseProvider(provider)
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrBadRequest, provider)
	}
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrBadRequest)
	}

	_, existing, err := s.identities.FindCollision(ctx, p, email, sessionAccountID)
	if err != nil {
		if errors.Is(err, repository.ErrIdentityNotFound) {
			s.metrics.IncCollisionCheck(false)
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	uploads, conversions, err := s.resources.CountResources(ctx, existing.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	s.metrics.IncCollisionCheck(true)
	return &model.Collision{
		ExistingAccountID: existing.ID,
		ExistingEmail:     existing.Email,
		ExistingCreatedAt: existing.CreatedAt,
		CurrentCreatedAt:  current.CreatedAt,
		UploadCount:       uploads,
		ConversionCount:   conversions,
	}, nil
}
