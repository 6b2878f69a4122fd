package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dvloznov/dapfinance/internal/api/handlers"
	"github.com/dvloznov/dapfinance/internal/api/middleware"
	jobsmem "github.com/dvloznov/dapfinance/internal/jobs/inmemory"
	"github.com/dvloznov/dapfinance/internal/logger"
	"github.com/dvloznov/dapfinance/internal/pipeline"
	storemem "github.com/dvloznov/dapfinance/internal/store/inmemory"
)

func newTestRouter(password string) http.Handler {
	log := logger.NewWithWriter(io.Discard)
	st := storemem.NewStore()
	jobStore := jobsmem.NewStore()
	ingestor := pipeline.NewIngestor(st, nil, nil)

	return NewRouter(Handlers{
		Imports:      handlers.NewImportsHandler(ingestor, jobsmem.NewQueue(10, jobStore), log),
		Jobs:         handlers.NewJobsHandler(jobStore, log),
		Webhooks:     handlers.NewWebhooksHandler(ingestor, nil, log),
		Transactions: handlers.NewTransactionsHandler(st, nil, log),
		Photos:       handlers.NewPhotosHandler(st, nil, nil, log),
		AI:           handlers.NewAIHandler(nil, log),
		Accounts:     handlers.NewAccountsHandler(st, nil, log),
		Auth:         handlers.NewAuthHandler(password, false, log),
	}, log, password)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	rec := serve(newTestRouter("secret"), httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestRouter_PasswordGate(t *testing.T) {
	router := newTestRouter("secret")

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/auth", strings.NewReader(`{"password":"secret"}`)))
	cookies := rec.Result().Cookies()
	if rec.Code != http.StatusOK || len(cookies) != 1 {
		t.Fatalf("login = %d %v", rec.Code, cookies)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
	req.AddCookie(cookies[0])
	rec = serve(router, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":0`) {
		t.Errorf("authenticated list = %d %s", rec.Code, rec.Body.String())
	}

	// Webhooks bypass the gate and are checked by signature instead.
	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/webhooks/wise", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized || strings.Contains(rec.Body.String(), "Authentication required") {
		t.Errorf("webhook = %d %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_ImportEndToEnd(t *testing.T) {
	router := newTestRouter("")

	csv := "Date,Description,Amount,Reference\n03/07/2026,\"Coffee, Inc.\",-4.50,REF1\n03/08/2026,Payroll,1000.00,REF2\n"
	rec := serve(router, httptest.NewRequest(http.MethodPost, "/api/import/boa", strings.NewReader(csv)))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"imported":2`) {
		t.Fatalf("first import = %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, httptest.NewRequest(http.MethodPost, "/api/import/boa", strings.NewReader(csv)))
	if !strings.Contains(rec.Body.String(), `"imported":0`) || !strings.Contains(rec.Body.String(), `"skipped":2`) {
		t.Errorf("second import = %s", rec.Body.String())
	}

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))
	if !strings.Contains(rec.Body.String(), "Coffee, Inc.") || !strings.Contains(rec.Body.String(), `"category":"uncategorized"`) {
		t.Errorf("transactions = %s", rec.Body.String())
	}
}

func TestRouter_MethodAndPath(t *testing.T) {
	router := newTestRouter("")

	rec := serve(router, httptest.NewRequest(http.MethodGet, "/api/imports", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/imports = %d", rec.Code)
	}

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/api/transactions/missing", nil))
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "Transaction not found") {
		t.Errorf("GET missing transaction = %d %s", rec.Code, rec.Body.String())
	}

	rec = serve(router, httptest.NewRequest(http.MethodOptions, "/api/transactions/x", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight = %d", rec.Code)
	}

	if middleware.GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()) != "" {
		t.Error("request id outside middleware should be empty")
	}
}
