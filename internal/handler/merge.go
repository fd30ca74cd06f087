package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fileforge/fileforge/internal/handler/dto"
	"github.com/fileforge/fileforge/internal/model"
	"github.com/fileforge/fileforge/internal/service"
)

// Merger is the merge coordinator as seen by MergeHandler.
type Merger interface {
	GenerateMergeCode(ctx context.Context, accountID string) (string, error)
	RedeemMergeCode(ctx context.Context, redeemerID, code string) (*service.MergeResult, error)
	CheckExistingAccount(ctx context.Context, sessionAccountID, provider, email string) (*model.Collision, error)
	MergeAccounts(ctx context.Context, sessionAccountID, existingAccountID, keepEmail string) (*service.MergeResult, error)
	DeleteExistingAccount(ctx context.Context, sessionAccountID, existingAccountID string) (bool, error)
	GetMergeJob(ctx context.Context, accountID, jobID string) (*service.MergeJobDetail, error)
	ResumeMergeJob(ctx context.Context, accountID, jobID string) (*service.MergeResult, error)
}

// MergeHandler handles the account merge endpoints.
type MergeHandler struct {
	merges Merger
	logger *slog.Logger
}

// NewMergeHandler creates a new MergeHandler.
func NewMergeHandler(merges Merger, logger *slog.Logger) *MergeHandler {
	return &MergeHandler{
		merges: merges,
		logger: logger,
	}
}

// GenerateCode handles POST /api/v1/account/merge-code.
func (h *MergeHandler) GenerateCode(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	code, err := h.merges.GenerateMergeCode(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.MergeCodeResponse{Code: code})
}

// UseCode handles POST /api/v1/account/use-merge-code. The code's owner
// is merged into the signed-in account.
func (h *MergeHandler) UseCode(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	var req dto.UseMergeCodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.merges.RedeemMergeCode(r.Context(), accountID, req.Code)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toMergeResponse(result))
}

// CheckExisting handles POST /api/v1/account/check-existing.
func (h *MergeHandler) CheckExisting(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	var req dto.CheckExistingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	collision, err := h.merges.CheckExistingAccount(r.Context(), accountID, req.Provider, req.Email)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToCheckExistingResponse(collision))
}

// Merge handles POST /api/v1/account/merge.
func (h *MergeHandler) Merge(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	var req dto.MergeAccountsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.merges.MergeAccounts(r.Context(), accountID, req.ExistingAccountID, req.KeepEmail)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toMergeResponse(result))
}

// DeleteExisting handles POST /api/v1/account/delete-existing, the
// decline-and-replace path.
func (h *MergeHandler) DeleteExisting(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	var req dto.DeleteExistingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	deleted, err := h.merges.DeleteExistingAccount(r.Context(), accountID, req.ExistingAccountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: deleted})
}

// GetJob handles GET /api/v1/account/merge-jobs/{id}.
func (h *MergeHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	detail, err := h.merges.GetMergeJob(r.Context(), accountID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToMergeJobResponse(detail.Job, detail.Items))
}

// ResumeJob handles POST /api/v1/account/merge-jobs/{id}/resume.
func (h *MergeHandler) ResumeJob(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	result, err := h.merges.ResumeMergeJob(r.Context(), accountID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toMergeResponse(result))
}

func toMergeResponse(result *service.MergeResult) *dto.MergeResponse {
	return dto.ToMergeResponse(
		result.Job,
		result.MergedUploads,
		result.MergedConversions,
		result.RetryableItems,
		result.PermanentItems,
		result.IdentityLinked,
	)
}
