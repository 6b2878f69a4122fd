package store

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateDedupeKey is returned by CreateTransaction when a
	// transaction with the same dedupe key already exists.
	ErrDuplicateDedupeKey = errors.New("store: duplicate dedupe key")

	// ErrNotFound is returned when a record addressed by id does not exist.
	ErrNotFound = errors.New("store: not found")
)

// TransactionRepository provides transaction persistence.
type TransactionRepository interface {
	// FindTransactionByDedupeKey returns nil, nil when no transaction has the key.
	FindTransactionByDedupeKey(ctx context.Context, key string) (*domain.Transaction, error)

	// CreateTransaction persists tx, assigning ID and CreatedAt when empty.
	// Returns ErrDuplicateDedupeKey if the dedupe key is taken.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)

	// GetTransaction returns ErrNotFound for an unknown id.
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)

	// ListTransactions returns transactions matching filter, newest date first.
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*domain.Transaction, error)

	// UpdateTransaction applies the non-nil fields of upd.
	UpdateTransaction(ctx context.Context, id string, upd TransactionUpdate) (*domain.Transaction, error)

	// SetTransactionsStatus moves every listed transaction to status and
	// returns how many rows changed.
	SetTransactionsStatus(ctx context.Context, ids []string, status domain.Status, at time.Time) (int, error)

	// DeleteTransaction returns ErrNotFound for an unknown id.
	DeleteTransaction(ctx context.Context, id string) error
}

// AccountRepository provides account persistence.
type AccountRepository interface {
	// FindAccountByInstitutionAndCurrency matches institution case-insensitively.
	// Returns nil, nil when nothing matches.
	FindAccountByInstitutionAndCurrency(ctx context.Context, institution, currency string) (*domain.Account, error)

	// IncrementAccountBalance applies balance = balance + delta in storage.
	IncrementAccountBalance(ctx context.Context, accountID string, delta decimal.Decimal) error

	// SetAccountBalance overwrites the balance of every account whose
	// institution contains institutionLike (case-insensitive) in currency.
	// Returns the number of accounts updated.
	SetAccountBalance(ctx context.Context, institutionLike, currency string, balance decimal.Decimal, syncedAt time.Time) (int, error)

	CreateAccount(ctx context.Context, acc *domain.Account) (*domain.Account, error)
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
}

// PhotoRepository stores receipt photos.
type PhotoRepository interface {
	CreatePhoto(ctx context.Context, photo *domain.ReceiptPhoto) (*domain.ReceiptPhoto, error)

	// LatestExtraction returns the newest extracted receipt for a
	// transaction, or nil when none exists.
	LatestExtraction(ctx context.Context, transactionID string) (*domain.ReceiptData, error)
}

// BalanceLedger is implemented by stores that can create a transaction and
// add its amount to tx.AccountID's balance in one atomic write.
type BalanceLedger interface {
	// CreateTransactionWithBalance behaves like CreateTransaction; on
	// ErrDuplicateDedupeKey the balance is left untouched.
	CreateTransactionWithBalance(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
}

// Repository is the full storage surface used by the API.
type Repository interface {
	TransactionRepository
	AccountRepository
	PhotoRepository
	Close() error
}

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	Status    domain.Status
	Source    string
	AccountID string
	StartDate string // YYYY-MM-DD inclusive
	EndDate   string // YYYY-MM-DD inclusive
	Limit     int
	Offset    int
}

// TransactionUpdate carries the review-workflow edits. Nil fields are kept.
type TransactionUpdate struct {
	Category   *string
	Confidence *float64
	Note       *string
	Tags       []string
	Status     *domain.Status
	ReviewedAt *time.Time
}
