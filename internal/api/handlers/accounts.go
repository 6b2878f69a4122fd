package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/dapfinance/internal/api/middleware"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/dvloznov/dapfinance/internal/wise"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AccountsHandler handles accounts and the Wise balance sync.
type AccountsHandler struct {
	repo store.AccountRepository
	wise wise.BalanceFetcher
	log  zerolog.Logger
	now  func() time.Time
}

// NewAccountsHandler creates a new accounts handler. balances may be nil when
// Wise API credentials are not configured.
func NewAccountsHandler(repo store.AccountRepository, balances wise.BalanceFetcher, log zerolog.Logger) *AccountsHandler {
	return &AccountsHandler{
		repo: repo,
		wise: balances,
		log:  log,
		now:  time.Now,
	}
}

// ListAccounts handles GET /api/accounts
func (h *AccountsHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.repo.ListAccounts(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list accounts")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []*domain.Account{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// GetAccount handles GET /api/accounts/{id}
func (h *AccountsHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	acc, err := h.repo.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Account not found")
			return
		}
		h.log.Error().Err(err).Str("account_id", id).Msg("Failed to get account")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get account")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, acc)
}

// CreateAccount handles POST /api/accounts
func (h *AccountsHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string          `json:"name"`
		Institution    string          `json:"institution"`
		Currency       string          `json:"currency"`
		CurrentBalance decimal.Decimal `json:"currentBalance"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Institution = strings.TrimSpace(req.Institution)
	if req.Name == "" || req.Institution == "" {
		middleware.WriteError(w, http.StatusBadRequest, "name and institution are required")
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	acc, err := h.repo.CreateAccount(r.Context(), &domain.Account{
		Name:           req.Name,
		Institution:    req.Institution,
		Currency:       currency,
		CurrentBalance: req.CurrentBalance,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create account")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, acc)
}

// SyncWise handles POST /api/wise/sync
func (h *AccountsHandler) SyncWise(w http.ResponseWriter, r *http.Request) {
	if h.wise == nil {
		middleware.WriteError(w, http.StatusBadRequest, "Wise API credentials not configured")
		return
	}

	result, err := wise.SyncBalances(r.Context(), h.wise, h.repo, h.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, wise.ErrNotConfigured):
			middleware.WriteError(w, http.StatusBadRequest, "Wise API credentials not configured")
		case errors.Is(err, wise.ErrUpstream):
			h.log.Error().Err(err).Msg("Wise API request failed")
			middleware.WriteError(w, http.StatusBadGateway, "Wise API request failed")
		default:
			h.log.Error().Err(err).Msg("Wise balance sync failed")
			middleware.WriteError(w, http.StatusInternalServerError, "Wise balance sync failed")
		}
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}
