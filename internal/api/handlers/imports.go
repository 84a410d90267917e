package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/finledger/bankfeed/internal/api/dto"
	"github.com/finledger/bankfeed/internal/importer"
	"github.com/finledger/bankfeed/internal/infrastructure/storage"
	"github.com/finledger/bankfeed/internal/statement"
)

// maxStatementSize caps uploaded statement files at 10 MB.
const maxStatementSize = 10 << 20

// ImportsHandler handles statement preview and commit requests.
type ImportsHandler struct {
	*Base
	pipeline *importer.Pipeline
	repo     storage.Repository
}

// NewImportsHandler creates a new imports handler.
func NewImportsHandler(pipeline *importer.Pipeline, repo storage.Repository) *ImportsHandler {
	return &ImportsHandler{Base: &Base{}, pipeline: pipeline, repo: repo}
}

// readStatementFile extracts the uploaded file from a multipart form.
func (h *ImportsHandler) readStatementFile(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	if err := r.ParseMultipartForm(maxStatementSize); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid multipart form"))
		return nil, "", false
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("file is required"))
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxStatementSize))
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("could not read file"))
		return nil, "", false
	}
	return data, header.Filename, true
}

// Preview handles POST /api/accounts/{accountID}/imports/preview.
// It parses the statement without persisting anything.
func (h *ImportsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	data, _, ok := h.readStatementFile(w, r)
	if !ok {
		return
	}

	preview, err := h.pipeline.Preview(r.Context(), data, r.FormValue("format"))
	if err != nil {
		h.writeParseError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toPreviewResponse(preview))
}

// Commit handles POST /api/accounts/{accountID}/imports.
func (h *ImportsHandler) Commit(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if _, ok := h.RequireAccount(w, r, h.repo, accountID); !ok {
		return
	}

	data, fileName, ok := h.readStatementFile(w, r)
	if !ok {
		return
	}

	result, err := h.pipeline.Commit(r.Context(), accountID, fileName, data, r.FormValue("format"))
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("account"))
		return
	}
	if err != nil {
		h.writeParseError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, dto.ImportResponse{
		Imported:    result.Imported,
		Skipped:     result.Skipped,
		TotalAmount: result.TotalAmount,
	})
}

// History handles GET /api/accounts/{accountID}/imports.
func (h *ImportsHandler) History(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if _, ok := h.RequireAccount(w, r, h.repo, accountID); !ok {
		return
	}
	limit := ParseIntParam(r, "limit", 20)

	batches, err := h.repo.ListImportBatches(r.Context(), accountID, limit)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	h.WriteJSON(w, http.StatusOK, batches)
}

// writeParseError maps statement errors to API errors. Malformed input
// stays a 4xx with enough detail to correct and retry.
func (h *ImportsHandler) writeParseError(w http.ResponseWriter, err error) {
	var (
		parseErr  *statement.ParseError
		detectErr *statement.FormatDetectionError
	)
	switch {
	case errors.As(err, &detectErr):
		h.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(detectErr.Error()))
	case errors.As(err, &parseErr):
		h.WriteError(w, http.StatusUnprocessableEntity, dto.ValidationError(parseErr.Error()))
	default:
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}
