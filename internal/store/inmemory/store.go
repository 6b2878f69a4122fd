package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is an in-memory implementation of store.Repository.
// It is safe for concurrent use. Data is lost on restart.
type Store struct {
	mu           sync.RWMutex
	transactions map[string]*domain.Transaction // by id
	byDedupeKey  map[string]string              // dedupe key -> id
	accounts     map[string]*domain.Account
	photos       []*domain.ReceiptPhoto
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		transactions: make(map[string]*domain.Transaction),
		byDedupeKey:  make(map[string]string),
		accounts:     make(map[string]*domain.Account),
	}
}

func (s *Store) FindTransactionByDedupeKey(ctx context.Context, key string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byDedupeKey[key]
	if !ok {
		return nil, nil
	}
	return copyTransaction(s.transactions[id]), nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(tx)
}

// CreateTransactionWithBalance implements store.BalanceLedger.
func (s *Store) CreateTransactionWithBalance(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[tx.AccountID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", tx.AccountID, store.ErrNotFound)
	}
	created, err := s.insertLocked(tx)
	if err != nil {
		return nil, err
	}
	acc.CurrentBalance = acc.CurrentBalance.Add(tx.Amount)
	return created, nil
}

func (s *Store) insertLocked(tx *domain.Transaction) (*domain.Transaction, error) {
	if tx.DedupeKey == "" {
		return nil, fmt.Errorf("dedupe key is required")
	}
	if _, exists := s.byDedupeKey[tx.DedupeKey]; exists {
		return nil, store.ErrDuplicateDedupeKey
	}

	row := copyTransaction(tx)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.Status == "" {
		row.Status = domain.StatusPending
	}

	s.transactions[row.ID] = row
	s.byDedupeKey[row.DedupeKey] = row.ID
	return copyTransaction(row), nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyTransaction(tx), nil
}

func (s *Store) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.Transaction{}
	for _, tx := range s.transactions {
		if filter.Status != "" && tx.Status != filter.Status {
			continue
		}
		if filter.Source != "" && tx.Source != filter.Source {
			continue
		}
		if filter.AccountID != "" && tx.AccountID != filter.AccountID {
			continue
		}
		if filter.StartDate != "" && tx.Date < filter.StartDate {
			continue
		}
		if filter.EndDate != "" && tx.Date > filter.EndDate {
			continue
		}
		result = append(result, copyTransaction(tx))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date > result[j].Date
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*domain.Transaction{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, upd store.TransactionUpdate) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	if upd.Category != nil {
		tx.Category = *upd.Category
	}
	if upd.Confidence != nil {
		tx.Confidence = *upd.Confidence
	}
	if upd.Note != nil {
		tx.Note = *upd.Note
	}
	if upd.Tags != nil {
		tx.Tags = append([]string(nil), upd.Tags...)
	}
	if upd.Status != nil {
		tx.Status = *upd.Status
	}
	if upd.ReviewedAt != nil {
		at := *upd.ReviewedAt
		tx.ReviewedAt = &at
	}
	now := time.Now().UTC()
	tx.UpdatedAt = &now

	return copyTransaction(tx), nil
}

func (s *Store) SetTransactionsStatus(ctx context.Context, ids []string, status domain.Status, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for _, id := range ids {
		tx, ok := s.transactions[id]
		if !ok {
			continue
		}
		tx.Status = status
		ts := at
		tx.UpdatedAt = &ts
		if status == domain.StatusReviewed {
			tx.ReviewedAt = &ts
		}
		updated++
	}
	return updated, nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.byDedupeKey, tx.DedupeKey)
	delete(s.transactions, id)
	return nil
}

func (s *Store) FindAccountByInstitutionAndCurrency(ctx context.Context, institution, currency string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, acc := range s.sortedAccountsLocked() {
		if strings.EqualFold(acc.Institution, institution) && strings.EqualFold(acc.Currency, currency) {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) IncrementAccountBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	acc.CurrentBalance = acc.CurrentBalance.Add(delta)
	return nil
}

func (s *Store) SetAccountBalance(ctx context.Context, institutionLike, currency string, balance decimal.Decimal, syncedAt time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(institutionLike)
	updated := 0
	for _, acc := range s.accounts {
		if !strings.Contains(strings.ToLower(acc.Institution), needle) || !strings.EqualFold(acc.Currency, currency) {
			continue
		}
		acc.CurrentBalance = balance
		ts := syncedAt
		acc.LastSyncedAt = &ts
		updated++
	}
	return updated, nil
}

func (s *Store) CreateAccount(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := *acc
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.accounts[row.ID]; exists {
		return nil, fmt.Errorf("account %s already exists", row.ID)
	}
	s.accounts[row.ID] = &row

	cp := row
	return &cp, nil
}

func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.Account{}
	for _, acc := range s.sortedAccountsLocked() {
		cp := *acc
		result = append(result, &cp)
	}
	return result, nil
}

// sortedAccountsLocked returns accounts oldest first so lookups are stable.
func (s *Store) sortedAccountsLocked() []*domain.Account {
	out := make([]*domain.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) CreatePhoto(ctx context.Context, photo *domain.ReceiptPhoto) (*domain.ReceiptPhoto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[photo.TransactionID]; !ok {
		return nil, fmt.Errorf("transaction %s: %w", photo.TransactionID, store.ErrNotFound)
	}
	row := *photo
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	s.photos = append(s.photos, &row)

	cp := row
	return &cp, nil
}

func (s *Store) LatestExtraction(ctx context.Context, transactionID string) (*domain.ReceiptData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.photos) - 1; i >= 0; i-- {
		p := s.photos[i]
		if p.TransactionID == transactionID && p.ExtractedData != nil {
			data := *p.ExtractedData
			return &data, nil
		}
	}
	return nil, nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func copyTransaction(tx *domain.Transaction) *domain.Transaction {
	cp := *tx
	if tx.Tags != nil {
		cp.Tags = append([]string(nil), tx.Tags...)
	}
	return &cp
}

// Ensure Store implements the storage interfaces.
var (
	_ store.Repository    = (*Store)(nil)
	_ store.BalanceLedger = (*Store)(nil)
)
