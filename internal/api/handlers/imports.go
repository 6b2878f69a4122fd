package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/dvloznov/dapfinance/internal/api/middleware"
	"github.com/dvloznov/dapfinance/internal/gcsuploader"
	"github.com/dvloznov/dapfinance/internal/jobs"
	"github.com/dvloznov/dapfinance/internal/pipeline"
	"github.com/rs/zerolog"
)

// CSVImporter ingests a bank CSV export.
type CSVImporter interface {
	ImportCSV(ctx context.Context, bank string, data []byte, opts pipeline.ImportOptions) (*pipeline.ImportResult, error)
}

// ImportsHandler handles synchronous CSV uploads and asynchronous gs:// imports.
type ImportsHandler struct {
	importer  CSVImporter
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewImportsHandler creates a new imports handler. publisher may be nil, in
// which case asynchronous imports are rejected.
func NewImportsHandler(importer CSVImporter, publisher jobs.Publisher, log zerolog.Logger) *ImportsHandler {
	return &ImportsHandler{
		importer:  importer,
		publisher: publisher,
		log:       log,
	}
}

// ImportCSV handles POST /api/import/{bank}
func (h *ImportsHandler) ImportCSV(w http.ResponseWriter, r *http.Request) {
	bank := r.PathValue("bank")
	if _, err := pipeline.ParserFor(bank); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported bank: %s", bank))
		return
	}

	file, err := readUpload(w, r, "file")
	if err != nil {
		if !errors.Is(err, errNoFile) {
			h.log.Warn().Err(err).Str("bank", bank).Msg("Failed to read CSV upload")
		}
		middleware.WriteError(w, http.StatusBadRequest, "No CSV file provided")
		return
	}

	accountID := strings.TrimSpace(r.FormValue("accountId"))

	result, err := h.importer.ImportCSV(r.Context(), bank, file.data, pipeline.ImportOptions{AccountID: accountID})
	if err != nil {
		if errors.Is(err, pipeline.ErrUnsupportedBank) || errors.Is(err, pipeline.ErrUnrecognizedFormat) {
			middleware.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Str("bank", bank).Msg("CSV import failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Import failed")
		return
	}

	if result.Errors == nil {
		result.Errors = []string{}
	}
	middleware.WriteJSON(w, http.StatusOK, result)
}

// EnqueueImport handles POST /api/imports
func (h *ImportsHandler) EnqueueImport(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Asynchronous imports are not configured")
		return
	}

	var req struct {
		Bank      string `json:"bank"`
		GCSURI    string `json:"gcs_uri"`
		AccountID string `json:"account_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Bank == "" || req.GCSURI == "" {
		middleware.WriteError(w, http.StatusBadRequest, "bank and gcs_uri are required")
		return
	}
	if _, err := pipeline.ParserFor(req.Bank); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unsupported bank: %s", req.Bank))
		return
	}
	if _, _, err := gcsuploader.ParseGCSURI(req.GCSURI); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "gcs_uri must be a gs://bucket/object URI")
		return
	}

	job := &jobs.ImportJob{
		Bank:      req.Bank,
		GCSURI:    req.GCSURI,
		AccountID: req.AccountID,
	}
	if err := h.publisher.PublishImport(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue import job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue import job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Str("bank", job.Bank).Str("gcs_uri", job.GCSURI).Msg("Import job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}
