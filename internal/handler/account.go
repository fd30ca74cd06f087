package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fileforge/fileforge/internal/handler/dto"
	"github.com/fileforge/fileforge/internal/model"
)

// AccountManager is the account service as seen by AccountHandler.
type AccountManager interface {
	GetAccount(ctx context.Context, accountID string) (*model.Account, error)
	UnlinkIdentity(ctx context.Context, accountID, provider string) error
}

// AccountHandler handles HTTP requests for the signed-in account.
type AccountHandler struct {
	accounts AccountManager
	logger   *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts AccountManager, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logger,
	}
}

// Get handles GET /api/v1/account.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	account, err := h.accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToAccountResponse(account))
}

// UnlinkIdentity handles DELETE /api/v1/account/identities/{provider}.
func (h *AccountHandler) UnlinkIdentity(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	provider := chi.URLParam(r, "provider")
	if err := h.accounts.UnlinkIdentity(r.Context(), accountID, provider); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("identity_unlinked", "account_id", accountID, "provider", provider)

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true})
}
