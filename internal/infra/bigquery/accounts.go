package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/dapfinance/internal/domain"
)

// AccountRow represents a row in the accounts table.
type AccountRow struct {
	ID             string                 `bigquery:"id"`
	Name           string                 `bigquery:"name"`
	Institution    string                 `bigquery:"institution"`
	Currency       string                 `bigquery:"currency"`
	CurrentBalance *big.Rat               `bigquery:"current_balance"`
	LastSyncedAt   bigquery.NullTimestamp `bigquery:"last_synced_at"`
	CreatedAt      time.Time              `bigquery:"created_at"`
}

func toAccountRow(acc *domain.Account) *AccountRow {
	return &AccountRow{
		ID:             acc.ID,
		Name:           acc.Name,
		Institution:    acc.Institution,
		Currency:       acc.Currency,
		CurrentBalance: acc.CurrentBalance.Rat(),
		LastSyncedAt:   nullTimestamp(acc.LastSyncedAt),
		CreatedAt:      acc.CreatedAt,
	}
}

func (row *AccountRow) toDomain() (*domain.Account, error) {
	balance, err := ratToDecimal(row.CurrentBalance)
	if err != nil {
		return nil, fmt.Errorf("account %s balance: %w", row.ID, err)
	}
	return &domain.Account{
		ID:             row.ID,
		Name:           row.Name,
		Institution:    row.Institution,
		Currency:       row.Currency,
		CurrentBalance: balance,
		LastSyncedAt:   timePtr(row.LastSyncedAt),
		CreatedAt:      row.CreatedAt,
	}, nil
}
