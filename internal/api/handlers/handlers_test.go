package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dvloznov/dapfinance/internal/ai"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/logger"
	storemem "github.com/dvloznov/dapfinance/internal/store/inmemory"
	"github.com/shopspring/decimal"
)

// MockModelClient is a mock implementation of ModelClient for testing.
type MockModelClient struct {
	CategorizeFunc     func(ctx context.Context, description string, amount decimal.Decimal, currency, date string) ai.Result[ai.Categorization]
	RecategorizeFunc   func(ctx context.Context, description string, amount decimal.Decimal, note string, extracted *domain.ReceiptData) ai.Result[ai.Recategorization]
	ExtractReceiptFunc func(ctx context.Context, image []byte, mimeType string) ai.Result[domain.ReceiptData]
}

func (m *MockModelClient) Categorize(ctx context.Context, description string, amount decimal.Decimal, currency, date string) ai.Result[ai.Categorization] {
	return m.CategorizeFunc(ctx, description, amount, currency, date)
}

func (m *MockModelClient) Recategorize(ctx context.Context, description string, amount decimal.Decimal, note string, extracted *domain.ReceiptData) ai.Result[ai.Recategorization] {
	return m.RecategorizeFunc(ctx, description, amount, note, extracted)
}

func (m *MockModelClient) ExtractReceipt(ctx context.Context, image []byte, mimeType string) ai.Result[domain.ReceiptData] {
	return m.ExtractReceiptFunc(ctx, image, mimeType)
}

func (m *MockModelClient) Model() string { return "test-model" }

var testLog = logger.NewWithWriter(io.Discard)

// multipartRequest builds a multipart POST with one file field plus values.
func multipartRequest(t *testing.T, target, fileField, filename string, data []byte, values map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range values {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decodeBody(t, rec, &body)
	return body["error"]
}

// seedTransaction stores a pending transaction and returns it.
func seedTransaction(t *testing.T, st *storemem.Store, key, description string) *domain.Transaction {
	t.Helper()
	tx, err := st.CreateTransaction(context.Background(), &domain.Transaction{
		DedupeKey:   key,
		Description: description,
		Amount:      decimal.RequireFromString("-12.50"),
		Currency:    "USD",
		Date:        "2026-03-07",
		Category:    domain.CategoryUncategorized,
		Source:      domain.SourceBoA,
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	return tx
}
