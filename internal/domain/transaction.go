package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the review lifecycle state of a persisted transaction.
type Status string

const (
	// StatusPending is the initial state of every ingested transaction.
	StatusPending Status = "pending"
	// StatusReviewed marks a transaction confirmed by the user.
	StatusReviewed Status = "reviewed"
	// StatusExcluded removes a transaction from aggregates.
	StatusExcluded Status = "excluded"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReviewed, StatusExcluded:
		return true
	}
	return false
}

// Source tags where a transaction came from.
const (
	SourceBoA      = "boa"
	SourceFidelity = "fidelity"
	SourceChase    = "chase"
	SourceWise     = "wise"
	SourceManual   = "manual"
)

// DefaultCurrency is used when a source does not state a currency.
const DefaultCurrency = "USD"

// NormalizedTransaction is one bank row after parsing, before persistence.
type NormalizedTransaction struct {
	Date        string          // YYYY-MM-DD, or the trimmed raw value if it could not be parsed
	Description string          // trimmed, non-empty
	Amount      decimal.Decimal // negative = outflow
	Currency    string          // ISO 4217
	Reference   string          // source reference number, may be empty
}

// Transaction is the persisted record.
type Transaction struct {
	ID        string `json:"id"`
	DedupeKey string `json:"dedupeKey"`

	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Date        string          `json:"date"`

	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Merchant   *string  `json:"merchant,omitempty"`
	Source     string   `json:"source"`
	Status     Status   `json:"status"`
	AccountID  string   `json:"accountId"`
	Note       string   `json:"note,omitempty"`
	Tags       []string `json:"tags,omitempty"`

	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  *time.Time `json:"updatedAt,omitempty"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
}

// Account is a balance-bearing account owned by the user.
type Account struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Institution    string          `json:"institution"`
	Currency       string          `json:"currency"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
	LastSyncedAt   *time.Time      `json:"lastSyncedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ReceiptPhoto is an image attached to a transaction, optionally with
// AI-extracted receipt fields.
type ReceiptPhoto struct {
	ID              string       `json:"id"`
	TransactionID   string       `json:"transactionId"`
	StoragePath     string       `json:"storagePath"`
	ExtractedData   *ReceiptData `json:"extractedData,omitempty"`
	ExtractionModel string       `json:"extractionModel,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// ReceiptData holds the structured fields read off a receipt image.
// Every field is optional.
type ReceiptData struct {
	Merchant *string           `json:"merchant"`
	Date     *string           `json:"date"`
	Total    *decimal.Decimal  `json:"total"`
	Currency *string           `json:"currency"`
	Items    []ReceiptLineItem `json:"items"`
	Tax      *decimal.Decimal  `json:"tax"`
	Tip      *decimal.Decimal  `json:"tip"`
}

// ReceiptLineItem is one line of a receipt.
type ReceiptLineItem struct {
	Name     string          `json:"name"`
	Amount   decimal.Decimal `json:"amount"`
	Quantity float64         `json:"quantity"`
	Category *string         `json:"category"`
}
