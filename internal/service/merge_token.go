package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fileforge/fileforge/internal/auth"
	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/repository"
)

// GenerateMergeCode issues a new merge code for the account. Any code the
// account held before stops working. The plaintext is returned only here.
func (s *MergeService) GenerateMergeCode(ctx context.Context, accountID string) (string, error) {
	if accountID == "" {
		return "", ErrUnauthorized
	}
	if _, err := s.sessionAccount(ctx, accountID); err != nil {
		return "", err
	}

	code, err := auth.GenerateMergeCode()
	if err != nil {
		return "", err
	}

	token := &model.MergeToken{
		CodeHash:  s.hasher.Hash(code),
		AccountID: accountID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.tokens.ReplaceMergeToken(ctx, token); err != nil {
		return "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	s.metrics.IncMergeCodeIssued()
	s.logger.Info("merge code issued", "account_id", accountID)
	return code, nil
}

// RedeemMergeCode merges the account that issued code into the redeeming
// account. The code is consumed before any resource moves, so a code can
// start at most one merge.
func (s *MergeService) RedeemMergeCode(ctx context.Context, redeemerID, code string) (*MergeResult, error) {
	result, err := s.redeem(ctx, redeemerID, code)
	s.metrics.IncMergeCodeRedeemed(redeemOutcome(err))
	return result, err
}

func (s *MergeService) redeem(ctx context.Context, redeemerID, code string) (*MergeResult, error) {
	if redeemerID == "" {
		return nil, ErrUnauthorized
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: merge code is required", ErrBadRequest)
	}
	if _, err := s.sessionAccount(ctx, redeemerID); err != nil {
		return nil, err
	}

	code = auth.NormalizeMergeCode(code)
	if !auth.ValidMergeCodeFormat(code) {
		return nil, ErrInvalidCode
	}

	hash := s.hasher.Hash(code)
	token, err := s.tokens.GetMergeTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrMergeTokenNotFound) {
			return nil, ErrInvalidCode
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	sourceID := token.AccountID
	if sourceID == redeemerID {
		return nil, ErrSelfMerge
	}

	if _, err := s.identities.GetAccount(ctx, sourceID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			if err := s.tokens.DeleteMergeToken(ctx, hash); err != nil {
				s.logger.Warn("failed to delete stale merge token", "error", err)
			}
			return nil, ErrStaleCode
		}
		return nil, fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}

	var result *MergeResult
	err = s.withMergeLock(ctx, sourceID, func(ctx context.Context) error {
		// A job moving the source elsewhere must finish first; the code
		// stays valid until then.
		if job, err := s.ledger.GetOpenMergeJob(ctx, sourceID); err == nil && job.TargetAccountID != redeemerID {
			return ErrMergeInProgress
		}

		if _, err := s.tokens.ClaimMergeToken(ctx, hash, sourceID); err != nil {
			if errors.Is(err, repository.ErrMergeTokenNotFound) {
				return ErrInvalidCode
			}
			return fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}

		var runErr error
		result, runErr = s.runMerge(ctx, sourceID, redeemerID, "")

		cleanupCtx := context.WithoutCancel(ctx)
		if _, err := s.tokens.DeleteMergeTokensForAccounts(cleanupCtx, []string{sourceID, redeemerID}); err != nil {
			s.logger.Warn("failed to delete merge tokens", "error", err)
		}
		if err := s.tokens.DeleteMergeToken(cleanupCtx, hash); err != nil {
			s.logger.Warn("failed to delete redeemed merge token", "error", err)
		}
		return runErr
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("merge code redeemed",
		"job_id", result.Job.ID,
		"source_account_id", sourceID,
		"target_account_id", redeemerID,
		"status", result.Job.Status,
	)
	return result, nil
}

func redeemOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidCode), errors.Is(err, ErrBadRequest):
		return "invalid"
	case errors.Is(err, ErrSelfMerge):
		return "self_merge"
	case errors.Is(err, ErrStaleCode):
		return "stale"
	default:
		return "error"
	}
}
