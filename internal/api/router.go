package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/dapfinance/internal/api/handlers"
	"github.com/dvloznov/dapfinance/internal/api/middleware"
	"github.com/rs/zerolog"
)

// Handlers groups the endpoint handlers mounted by NewRouter.
type Handlers struct {
	Imports      *handlers.ImportsHandler
	Jobs         *handlers.JobsHandler
	Webhooks     *handlers.WebhooksHandler
	Transactions *handlers.TransactionsHandler
	Photos       *handlers.PhotosHandler
	AI           *handlers.AIHandler
	Accounts     *handlers.AccountsHandler
	Auth         *handlers.AuthHandler
}

// NewRouter mounts every endpoint and wraps the mux in the middleware chain.
// An empty password leaves the API open.
func NewRouter(h Handlers, log zerolog.Logger, password string) http.Handler {
	mux := http.NewServeMux()

	// Ingestion
	mux.HandleFunc("POST /api/import/{bank}", h.Imports.ImportCSV)
	mux.HandleFunc("POST /api/imports", h.Imports.EnqueueImport)
	mux.HandleFunc("POST /api/webhooks/wise", h.Webhooks.Wise)

	// Jobs
	mux.HandleFunc("GET /api/jobs", h.Jobs.ListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", h.Jobs.GetJob)

	// Review workflow
	mux.HandleFunc("GET /api/transactions", h.Transactions.ListTransactions)
	mux.HandleFunc("POST /api/transactions/bulk-approve", h.Transactions.BulkApprove)
	mux.HandleFunc("GET /api/transactions/{id}", h.Transactions.GetTransaction)
	mux.HandleFunc("PATCH /api/transactions/{id}", h.Transactions.UpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", h.Transactions.DeleteTransaction)
	mux.HandleFunc("POST /api/transactions/{id}/recategorize", h.Transactions.Recategorize)
	mux.HandleFunc("POST /api/transactions/{id}/photos", h.Photos.UploadPhoto)

	// AI helpers
	mux.HandleFunc("POST /api/ai/categorize", h.AI.Categorize)
	mux.HandleFunc("POST /api/ai/extract-receipt", h.AI.ExtractReceipt)

	// Accounts
	mux.HandleFunc("GET /api/accounts", h.Accounts.ListAccounts)
	mux.HandleFunc("POST /api/accounts", h.Accounts.CreateAccount)
	mux.HandleFunc("GET /api/accounts/{id}", h.Accounts.GetAccount)
	mux.HandleFunc("POST /api/wise/sync", h.Accounts.SyncWise)

	// Login
	mux.HandleFunc("POST /api/auth", h.Auth.Login)
	mux.HandleFunc("GET /api/auth", h.Auth.Status)

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(password)(mux),
				),
			),
		),
	)
}
