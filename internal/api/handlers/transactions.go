package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/dapfinance/internal/api/middleware"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// TransactionStore is the persistence used by the review workflow.
type TransactionStore interface {
	store.TransactionRepository
	store.PhotoRepository
}

// TransactionsHandler handles the transaction review workflow.
type TransactionsHandler struct {
	repo  TransactionStore
	model ModelClient
	log   zerolog.Logger
	now   func() time.Time
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo TransactionStore, model ModelClient, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		repo:  repo,
		model: model,
		log:   log,
		now:   time.Now,
	}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := store.TransactionFilter{
		Source:    query.Get("source"),
		AccountID: query.Get("accountId"),
		StartDate: query.Get("startDate"),
		EndDate:   query.Get("endDate"),
	}

	if s := query.Get("status"); s != "" {
		filter.Status = domain.Status(s)
		if !filter.Status.Valid() {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid status %q", s))
			return
		}
	}

	for _, d := range []string{filter.StartDate, filter.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Dates must be YYYY-MM-DD")
			return
		}
	}

	var err error
	if filter.Limit, err = intParam(r, "limit", defaultPageSize); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit == 0 || filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset, err = intParam(r, "offset", 0); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	transactions, err := h.repo.ListTransactions(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}
	if transactions == nil {
		transactions = []*domain.Transaction{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
		"limit":        filter.Limit,
		"offset":       filter.Offset,
	})
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := h.load(w, r)
	if !ok {
		return
	}
	middleware.WriteJSON(w, http.StatusOK, tx)
}

// UpdateTransaction handles PATCH /api/transactions/{id}
func (h *TransactionsHandler) UpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category *string  `json:"category"`
		Note     *string  `json:"note"`
		Tags     []string `json:"tags"`
		Status   *string  `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	upd := store.TransactionUpdate{
		Category: req.Category,
		Note:     req.Note,
		Tags:     req.Tags,
	}
	if req.Category != nil && !domain.IsAssignableCategory(*req.Category) {
		middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Unknown category %q", *req.Category))
		return
	}
	if req.Status != nil {
		status := domain.Status(*req.Status)
		if !status.Valid() {
			middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("Invalid status %q", *req.Status))
			return
		}
		upd.Status = &status
	}

	existing, ok := h.load(w, r)
	if !ok {
		return
	}
	if upd.Status != nil && *upd.Status == domain.StatusReviewed && existing.Status != domain.StatusReviewed {
		at := h.now().UTC()
		upd.ReviewedAt = &at
	}

	tx, err := h.repo.UpdateTransaction(r.Context(), existing.ID, upd)
	if err != nil {
		h.writeStoreError(w, err, existing.ID, "Failed to update transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// DeleteTransaction handles DELETE /api/transactions/{id}
func (h *TransactionsHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.repo.DeleteTransaction(r.Context(), id); err != nil {
		h.writeStoreError(w, err, id, "Failed to delete transaction")
		return
	}

	h.log.Info().Str("transaction_id", id).Msg("Transaction deleted")
	middleware.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// BulkApprove handles POST /api/transactions/bulk-approve
func (h *TransactionsHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "ids must not be empty")
		return
	}

	updated, err := h.repo.SetTransactionsStatus(r.Context(), req.IDs, domain.StatusReviewed, h.now().UTC())
	if err != nil {
		h.log.Error().Err(err).Int("ids", len(req.IDs)).Msg("Failed to approve transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to approve transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]int{"updated": updated})
}

// Recategorize handles POST /api/transactions/{id}/recategorize
func (h *TransactionsHandler) Recategorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note *string `json:"note"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	tx, ok := h.load(w, r)
	if !ok {
		return
	}

	note := tx.Note
	if req.Note != nil {
		note = strings.TrimSpace(*req.Note)
	}

	extracted, err := h.repo.LatestExtraction(r.Context(), tx.ID)
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("Failed to load receipt extraction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load receipt data")
		return
	}

	result := h.model.Recategorize(r.Context(), tx.Description, tx.Amount, note, extracted)
	if result.Fallback {
		h.log.Warn().Err(result.Err).Str("transaction_id", tx.ID).Msg("Recategorization fell back; transaction left unchanged")
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"category":   result.Value.Category,
			"confidence": result.Value.Confidence,
			"applied":    false,
		})
		return
	}

	upd := store.TransactionUpdate{
		Category:   &result.Value.Category,
		Confidence: &result.Value.Confidence,
	}
	if req.Note != nil {
		upd.Note = &note
	}
	if _, err := h.repo.UpdateTransaction(r.Context(), tx.ID, upd); err != nil {
		h.writeStoreError(w, err, tx.ID, "Failed to update transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"category":   result.Value.Category,
		"confidence": result.Value.Confidence,
		"applied":    true,
	})
}

// load fetches the transaction named by the {id} path value, writing the
// error response itself when it cannot.
func (h *TransactionsHandler) load(w http.ResponseWriter, r *http.Request) (*domain.Transaction, bool) {
	id := r.PathValue("id")
	tx, err := h.repo.GetTransaction(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, id, "Failed to get transaction")
		return nil, false
	}
	return tx, true
}

func (h *TransactionsHandler) writeStoreError(w http.ResponseWriter, err error, id, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	h.log.Error().Err(err).Str("transaction_id", id).Msg(msg)
	middleware.WriteError(w, http.StatusInternalServerError, msg)
}
