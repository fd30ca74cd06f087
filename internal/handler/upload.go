package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fileforge/fileforge/internal/handler/dto"
	"github.com/fileforge/fileforge/internal/model"
)

// multipartMemory is how much of a multipart form is kept in memory
// before spilling to temp files.
const multipartMemory = 8 << 20

// Uploader is the upload service as seen by UploadHandler.
type Uploader interface {
	Upload(ctx context.Context, accountID, filename string, data []byte) (*model.Upload, error)
	List(ctx context.Context, accountID string) ([]*model.Upload, error)
	Delete(ctx context.Context, accountID, uploadID string) error
	MaxSize() int64
}

// UploadHandler handles file uploads.
type UploadHandler struct {
	uploads Uploader
	logger  *slog.Logger
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(uploads Uploader, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		uploads: uploads,
		logger:  logger,
	}
}

// Create handles POST /api/v1/uploads (multipart form field "file").
func (h *UploadHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Expected a multipart form with a file field")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "MISSING_FILE", "No file provided")
		return
	}
	defer file.Close()

	// One byte past the limit is enough for the service to reject it.
	data, err := io.ReadAll(io.LimitReader(file, h.uploads.MaxSize()+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Could not read file")
		return
	}

	upload, err := h.uploads.Upload(r.Context(), accountID, header.Filename, data)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("upload_created",
		"upload_id", upload.ID,
		"account_id", accountID,
		"size", upload.FileSize,
	)

	writeJSON(w, http.StatusCreated, dto.ToUploadResponse(upload))
}

// List handles GET /api/v1/uploads.
func (h *UploadHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	uploads, err := h.uploads.List(r.Context(), accountID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUploadListResponse(uploads))
}

// Delete handles DELETE /api/v1/uploads/{id}.
func (h *UploadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, ok := sessionAccount(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.uploads.Delete(r.Context(), accountID, id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("upload_deleted", "upload_id", id, "account_id", accountID)

	w.WriteHeader(http.StatusNoContent)
}
