package pipeline

import (
	"context"

	"github.com/dvloznov/dapfinance/internal/ai"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/shopspring/decimal"
)

// Repository is the storage the ingestion pipeline depends on.
// A store may additionally implement store.BalanceLedger to create a
// transaction and adjust its account balance atomically.
type Repository interface {
	// FindTransactionByDedupeKey returns nil, nil when the key is unused.
	FindTransactionByDedupeKey(ctx context.Context, key string) (*domain.Transaction, error)

	// CreateTransaction must return store.ErrDuplicateDedupeKey on a
	// dedupe key collision.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)

	// FindAccountByInstitutionAndCurrency returns nil, nil when no account matches.
	FindAccountByInstitutionAndCurrency(ctx context.Context, institution, currency string) (*domain.Account, error)

	// IncrementAccountBalance must apply the delta as a relative update.
	IncrementAccountBalance(ctx context.Context, accountID string, delta decimal.Decimal) error
}

// Categorizer assigns a category to a transaction. It never fails; a failed
// attempt comes back as a fallback result.
type Categorizer interface {
	Categorize(ctx context.Context, description string, amount decimal.Decimal, currency, date string) ai.Result[ai.Categorization]
}

// StorageService fetches import files from object storage.
type StorageService interface {
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}
