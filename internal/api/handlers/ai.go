package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/dapfinance/internal/ai"
	"github.com/dvloznov/dapfinance/internal/api/middleware"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AIHandler exposes the model helpers directly.
type AIHandler struct {
	model ModelClient
	log   zerolog.Logger
	now   func() time.Time
}

// NewAIHandler creates a new AI handler.
func NewAIHandler(model ModelClient, log zerolog.Logger) *AIHandler {
	return &AIHandler{
		model: model,
		log:   log,
		now:   time.Now,
	}
}

type categorizeResponse struct {
	ai.Categorization
	Fallback bool `json:"fallback"`
}

type receiptResponse struct {
	domain.ReceiptData
	Fallback bool `json:"fallback"`
}

// Categorize handles POST /api/ai/categorize
func (h *AIHandler) Categorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Currency    string          `json:"currency"`
		Date        string          `json:"date"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Description = strings.TrimSpace(req.Description)
	if req.Description == "" {
		middleware.WriteError(w, http.StatusBadRequest, "description is required")
		return
	}
	if req.Currency == "" {
		req.Currency = domain.DefaultCurrency
	}
	if req.Date == "" {
		req.Date = h.now().UTC().Format("2006-01-02")
	}

	result := h.model.Categorize(r.Context(), req.Description, req.Amount, req.Currency, req.Date)
	if result.Fallback {
		h.log.Warn().Err(result.Err).Msg("Categorization fell back")
	}

	middleware.WriteJSON(w, http.StatusOK, categorizeResponse{
		Categorization: result.Value,
		Fallback:       result.Fallback,
	})
}

// ExtractReceipt handles POST /api/ai/extract-receipt
func (h *AIHandler) ExtractReceipt(w http.ResponseWriter, r *http.Request) {
	file, err := readUpload(w, r, "file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "No image provided")
		return
	}

	result := h.model.ExtractReceipt(r.Context(), file.data, file.mimeType())
	if result.Fallback {
		h.log.Warn().Err(result.Err).Msg("Receipt extraction fell back")
	}

	middleware.WriteJSON(w, http.StatusOK, receiptResponse{
		ReceiptData: result.Value,
		Fallback:    result.Fallback,
	})
}
