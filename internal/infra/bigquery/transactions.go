package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/shopspring/decimal"
)

// TransactionRow represents a row in the transactions table.
type TransactionRow struct {
	ID              string                 `bigquery:"id"`
	DedupeKey       string                 `bigquery:"dedupe_key"`
	Description     string                 `bigquery:"description"`
	Amount          *big.Rat               `bigquery:"amount"`
	Currency        string                 `bigquery:"currency"`
	TransactionDate civil.Date             `bigquery:"transaction_date"`
	Category        string                 `bigquery:"category"`
	Confidence      float64                `bigquery:"confidence"`
	Merchant        bigquery.NullString    `bigquery:"merchant"`
	Source          string                 `bigquery:"source"`
	Status          string                 `bigquery:"status"`
	AccountID       bigquery.NullString    `bigquery:"account_id"`
	Note            bigquery.NullString    `bigquery:"note"`
	Tags            []string               `bigquery:"tags"`
	CreatedAt       time.Time              `bigquery:"created_at"`
	UpdatedAt       bigquery.NullTimestamp `bigquery:"updated_at"`
	ReviewedAt      bigquery.NullTimestamp `bigquery:"reviewed_at"`
}

// toTransactionRow converts a domain transaction for insertion. The date must
// already be normalized to YYYY-MM-DD.
func toTransactionRow(tx *domain.Transaction) (*TransactionRow, error) {
	date, err := civil.ParseDate(tx.Date)
	if err != nil {
		return nil, fmt.Errorf("transaction date %q: %w", tx.Date, err)
	}

	row := &TransactionRow{
		ID:              tx.ID,
		DedupeKey:       tx.DedupeKey,
		Description:     tx.Description,
		Amount:          tx.Amount.Rat(),
		Currency:        tx.Currency,
		TransactionDate: date,
		Category:        tx.Category,
		Confidence:      tx.Confidence,
		Merchant:        nullString(tx.Merchant),
		Source:          tx.Source,
		Status:          string(tx.Status),
		AccountID:       nullStringValue(tx.AccountID),
		Note:            nullStringValue(tx.Note),
		Tags:            tx.Tags,
		CreatedAt:       tx.CreatedAt,
		UpdatedAt:       nullTimestamp(tx.UpdatedAt),
		ReviewedAt:      nullTimestamp(tx.ReviewedAt),
	}
	if row.Tags == nil {
		row.Tags = []string{}
	}
	return row, nil
}

func (row *TransactionRow) toDomain() (*domain.Transaction, error) {
	amount, err := ratToDecimal(row.Amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s amount: %w", row.ID, err)
	}

	tx := &domain.Transaction{
		ID:          row.ID,
		DedupeKey:   row.DedupeKey,
		Description: row.Description,
		Amount:      amount,
		Currency:    row.Currency,
		Date:        row.TransactionDate.String(),
		Category:    row.Category,
		Confidence:  row.Confidence,
		Source:      row.Source,
		Status:      domain.Status(row.Status),
		AccountID:   row.AccountID.StringVal,
		Note:        row.Note.StringVal,
		Tags:        row.Tags,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   timePtr(row.UpdatedAt),
		ReviewedAt:  timePtr(row.ReviewedAt),
	}
	if row.Merchant.Valid {
		m := row.Merchant.StringVal
		tx.Merchant = &m
	}
	return tx, nil
}

// ratToDecimal reads a NUMERIC value back; NUMERIC carries 9 fractional digits.
func ratToDecimal(r *big.Rat) (decimal.Decimal, error) {
	if r == nil {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(r.FloatString(9))
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}

func nullStringValue(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullTimestamp(t *time.Time) bigquery.NullTimestamp {
	if t == nil {
		return bigquery.NullTimestamp{}
	}
	return bigquery.NullTimestamp{Timestamp: *t, Valid: true}
}

func timePtr(t bigquery.NullTimestamp) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Timestamp
	return &v
}
