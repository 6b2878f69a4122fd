package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/dvloznov/dapfinance/internal/api/middleware"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/gcsuploader"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/rs/zerolog"
)

// PhotosHandler attaches receipt photos to transactions.
type PhotosHandler struct {
	repo     TransactionStore
	uploader ReceiptUploader
	model    ModelClient
	log      zerolog.Logger
	now      func() time.Time
}

// NewPhotosHandler creates a new photos handler. uploader may be nil when no
// receipts bucket is configured.
func NewPhotosHandler(repo TransactionStore, uploader ReceiptUploader, model ModelClient, log zerolog.Logger) *PhotosHandler {
	return &PhotosHandler{
		repo:     repo,
		uploader: uploader,
		model:    model,
		log:      log,
		now:      time.Now,
	}
}

// UploadPhoto handles POST /api/transactions/{id}/photos
func (h *PhotosHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	tx, err := h.repo.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to get transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get transaction")
		return
	}

	file, err := readUpload(w, r, "file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "No file provided")
		return
	}
	extract := r.FormValue("extractReceipt") == "true"
	mimeType := file.mimeType()

	// Storage failures are logged; the photo can still carry an extraction.
	var storagePath string
	if h.uploader != nil {
		path, err := h.uploader.UploadReceipt(ctx, tx.ID, file.filename, mimeType, file.data)
		if err != nil {
			h.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("Receipt upload failed")
		} else {
			storagePath = path
		}
	} else {
		h.log.Warn().Str("transaction_id", tx.ID).Msg("Receipt storage not configured, skipping upload")
	}

	var extracted *domain.ReceiptData
	var extractionModel string
	if extract {
		extractionModel = h.model.Model()
		result := h.model.ExtractReceipt(ctx, file.data, mimeType)
		if result.Fallback {
			h.log.Warn().Err(result.Err).Str("transaction_id", tx.ID).Msg("Receipt extraction failed")
		} else {
			data := result.Value
			extracted = &data
		}
	}

	if storagePath == "" && extracted == nil {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"extractedData": nil,
			"warning":       "Receipt storage not available; image was not stored",
		})
		return
	}

	if storagePath == "" {
		storagePath = "local:" + gcsuploader.ReceiptObjectName(tx.ID, file.filename, h.now())
	}

	photo, err := h.repo.CreatePhoto(ctx, &domain.ReceiptPhoto{
		TransactionID:   tx.ID,
		StoragePath:     storagePath,
		ExtractedData:   extracted,
		ExtractionModel: extractionModel,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		h.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("Failed to save receipt photo")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save receipt photo")
		return
	}

	h.log.Info().
		Str("transaction_id", tx.ID).
		Str("photo_id", photo.ID).
		Str("storage_path", photo.StoragePath).
		Bool("extracted", extracted != nil).
		Msg("Receipt photo saved")

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"photo":         photo,
		"extractedData": extracted,
	})
}
