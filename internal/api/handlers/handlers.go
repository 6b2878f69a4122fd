package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dvloznov/dapfinance/internal/ai"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	maxJSONBytes   = 1 << 20
	maxUploadBytes = 10 << 20
)

var errNoFile = errors.New("no file provided")

// ModelClient is the AI adapter used by the review and receipt handlers.
// Every call returns a result; fallbacks are reported, never raised.
type ModelClient interface {
	Categorize(ctx context.Context, description string, amount decimal.Decimal, currency, date string) ai.Result[ai.Categorization]
	Recategorize(ctx context.Context, description string, amount decimal.Decimal, note string, extracted *domain.ReceiptData) ai.Result[ai.Recategorization]
	ExtractReceipt(ctx context.Context, image []byte, mimeType string) ai.Result[domain.ReceiptData]
	Model() string
}

// ReceiptUploader stores receipt images and returns their location.
type ReceiptUploader interface {
	UploadReceipt(ctx context.Context, transactionID, filename, contentType string, data []byte) (string, error)
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// upload is a file read from a multipart field or a raw request body.
type upload struct {
	data        []byte
	filename    string
	contentType string
}

// readUpload reads the named multipart file field. Non-multipart requests
// are treated as the raw file. Form values stay available via r.FormValue.
func readUpload(w http.ResponseWriter, r *http.Request, field string) (*upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
		file, header, err := r.FormFile(field)
		if err != nil {
			return nil, errNoFile
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", field, err)
		}
		if len(data) == 0 {
			return nil, errNoFile
		}
		return &upload{data: data, filename: header.Filename, contentType: header.Header.Get("Content-Type")}, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, errNoFile
	}
	return &upload{data: data, contentType: r.Header.Get("Content-Type")}, nil
}

// mimeType returns the declared content type, sniffing the bytes when the
// client sent none.
func (u *upload) mimeType() string {
	if u.contentType != "" && u.contentType != "application/octet-stream" {
		return u.contentType
	}
	return http.DetectContentType(u.data)
}

// intParam parses an optional non-negative integer query parameter.
func intParam(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return n, nil
}
