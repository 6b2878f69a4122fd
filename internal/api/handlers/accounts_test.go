package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/dapfinance/internal/ai"
	"github.com/dvloznov/dapfinance/internal/api/middleware"
	"github.com/dvloznov/dapfinance/internal/domain"
	storemem "github.com/dvloznov/dapfinance/internal/store/inmemory"
	"github.com/dvloznov/dapfinance/internal/wise"
	"github.com/shopspring/decimal"
)

// MockBalanceFetcher is a mock implementation of wise.BalanceFetcher for testing.
type MockBalanceFetcher struct {
	BalancesFunc func(ctx context.Context) ([]wise.Balance, error)
}

func (m *MockBalanceFetcher) Balances(ctx context.Context) ([]wise.Balance, error) {
	return m.BalancesFunc(ctx)
}

func TestAccounts_CreateListGet(t *testing.T) {
	st := storemem.NewStore()
	h := NewAccountsHandler(st, nil, testLog)

	rec := httptest.NewRecorder()
	h.CreateAccount(rec, jsonRequest(http.MethodPost, "/api/accounts", `{"name":"Wise EUR","institution":"Wise","currency":"eur","currentBalance":"100.00"}`))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Account
	decodeBody(t, rec, &created)
	if created.ID == "" || created.Currency != "EUR" || !created.CurrentBalance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("created = %+v", created)
	}

	rec = httptest.NewRecorder()
	h.CreateAccount(rec, jsonRequest(http.MethodPost, "/api/accounts", `{"name":""}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid create status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ListAccounts(rec, httptest.NewRequest(http.MethodGet, "/api/accounts", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("list = %d %s", rec.Code, rec.Body.String())
	}

	get := httptest.NewRequest(http.MethodGet, "/api/accounts/"+created.ID, nil)
	get.SetPathValue("id", created.ID)
	rec = httptest.NewRecorder()
	h.GetAccount(rec, get)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	get.SetPathValue("id", "missing")
	rec = httptest.NewRecorder()
	h.GetAccount(rec, get)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing account status = %d", rec.Code)
	}
}

func TestSyncWise(t *testing.T) {
	st := storemem.NewStore()
	st.CreateAccount(context.Background(), &domain.Account{Name: "Wise EUR", Institution: "Wise", Currency: "EUR"})

	fetcher := &MockBalanceFetcher{BalancesFunc: func(ctx context.Context) ([]wise.Balance, error) {
		return []wise.Balance{
			{ID: "1", Currency: "EUR", Amount: decimal.RequireFromString("250.75")},
			{ID: "2", Currency: "GBP", Amount: decimal.RequireFromString("10")},
		}, nil
	}}
	h := NewAccountsHandler(st, fetcher, testLog)
	h.now = func() time.Time { return fixedNow }

	rec := httptest.NewRecorder()
	h.SyncWise(rec, httptest.NewRequest(http.MethodPost, "/api/wise/sync", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var res wise.SyncResult
	decodeBody(t, rec, &res)
	if res.Count != 2 || res.Balances != 2 || res.Accounts != 1 {
		t.Errorf("result = %+v", res)
	}

	accounts, _ := st.ListAccounts(context.Background())
	if !accounts[0].CurrentBalance.Equal(decimal.RequireFromString("250.75")) || accounts[0].LastSyncedAt == nil {
		t.Errorf("account = %+v", accounts[0])
	}
}

func TestSyncWise_Errors(t *testing.T) {
	st := storemem.NewStore()

	rec := httptest.NewRecorder()
	NewAccountsHandler(st, nil, testLog).SyncWise(rec, httptest.NewRequest(http.MethodPost, "/api/wise/sync", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unconfigured status = %d", rec.Code)
	}

	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: status 401", wise.ErrUpstream), http.StatusBadGateway},
		{wise.ErrNotConfigured, http.StatusBadRequest},
		{errors.New("dial tcp: timeout"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		fetcher := &MockBalanceFetcher{BalancesFunc: func(ctx context.Context) ([]wise.Balance, error) {
			return nil, tt.err
		}}
		rec := httptest.NewRecorder()
		NewAccountsHandler(st, fetcher, testLog).SyncWise(rec, httptest.NewRequest(http.MethodPost, "/api/wise/sync", nil))
		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestAICategorize(t *testing.T) {
	var gotDate, gotCurrency string
	model := &MockModelClient{CategorizeFunc: func(ctx context.Context, description string, amount decimal.Decimal, currency, date string) ai.Result[ai.Categorization] {
		gotDate, gotCurrency = date, currency
		return ai.FallbackOf(ai.FallbackCategorization(), errors.New("quota"))
	}}
	h := NewAIHandler(model, testLog)
	h.now = func() time.Time { return fixedNow }

	rec := httptest.NewRecorder()
	h.Categorize(rec, jsonRequest(http.MethodPost, "/api/ai/categorize", `{"description":"UBER TRIP","amount":-18.2}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["category"] != "other" || body["confidence"] != float64(0) || body["merchant"] != nil || body["fallback"] != true {
		t.Errorf("body = %v", body)
	}
	if gotDate != "2026-03-10" || gotCurrency != "USD" {
		t.Errorf("defaults: date=%q currency=%q", gotDate, gotCurrency)
	}

	rec = httptest.NewRecorder()
	h.Categorize(rec, jsonRequest(http.MethodPost, "/api/ai/categorize", `{"amount":1}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing description status = %d", rec.Code)
	}
}

func TestAIExtractReceipt(t *testing.T) {
	h := NewAIHandler(extractingModel("9.99"), testLog)

	req := multipartRequest(t, "/api/ai/extract-receipt", "file", "r.png", []byte("\x89PNG\r\n\x1a\n"), nil)
	rec := httptest.NewRecorder()
	h.ExtractReceipt(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":"9.99"`) {
		t.Errorf("response = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ExtractReceipt(rec, httptest.NewRequest(http.MethodPost, "/api/ai/extract-receipt", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d", rec.Code)
	}
}

func TestLogin(t *testing.T) {
	h := NewAuthHandler("hunter2", false, testLog)

	rec := httptest.NewRecorder()
	h.Login(rec, jsonRequest(http.MethodPost, "/api/auth", `{"password":"wrong"}`))
	if rec.Code != http.StatusUnauthorized || len(rec.Result().Cookies()) != 0 {
		t.Errorf("wrong password = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Login(rec, jsonRequest(http.MethodPost, "/api/auth", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Login(rec, jsonRequest(http.MethodPost, "/api/auth", `{"password":"hunter2"}`))
	cookies := rec.Result().Cookies()
	if rec.Code != http.StatusOK || len(cookies) != 1 || cookies[0].Name != middleware.AuthCookieName || !cookies[0].HttpOnly {
		t.Fatalf("login = %d %v", rec.Code, cookies)
	}

	status := httptest.NewRequest(http.MethodGet, "/api/auth", nil)
	status.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.Status(rec, status)
	if !strings.Contains(rec.Body.String(), `"authenticated":true`) {
		t.Errorf("status = %s", rec.Body.String())
	}
}
