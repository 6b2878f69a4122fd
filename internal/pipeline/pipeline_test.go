package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dvloznov/dapfinance/internal/ai"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/shopspring/decimal"
)

// mockRepository is an in-memory Repository that enforces dedupe key
// uniqueness the way a real store does.
type mockRepository struct {
	mu       sync.Mutex
	byKey    map[string]*domain.Transaction
	accounts []*domain.Account
	nextID   int

	createErr     func(tx *domain.Transaction) error
	skipLookup    bool // simulate a racing writer: lookup misses, insert collides
	createCalls   int
	incrementCall int
}

func newMockRepository(accounts ...*domain.Account) *mockRepository {
	return &mockRepository{byKey: map[string]*domain.Transaction{}, accounts: accounts}
}

func (m *mockRepository) FindTransactionByDedupeKey(ctx context.Context, key string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skipLookup {
		m.skipLookup = false
		return nil, nil
	}
	return m.byKey[key], nil
}

func (m *mockRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		if err := m.createErr(tx); err != nil {
			return nil, err
		}
	}
	if _, ok := m.byKey[tx.DedupeKey]; ok {
		return nil, store.ErrDuplicateDedupeKey
	}
	m.nextID++
	cp := *tx
	cp.ID = fmt.Sprintf("tx-%d", m.nextID)
	m.byKey[tx.DedupeKey] = &cp
	return &cp, nil
}

func (m *mockRepository) FindAccountByInstitutionAndCurrency(ctx context.Context, institution, currency string) (*domain.Account, error) {
	for _, a := range m.accounts {
		if strings.EqualFold(a.Institution, institution) && a.Currency == currency {
			return a, nil
		}
	}
	return nil, nil
}

func (m *mockRepository) IncrementAccountBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incrementCall++
	for _, a := range m.accounts {
		if a.ID == accountID {
			a.CurrentBalance = a.CurrentBalance.Add(delta)
			return nil
		}
	}
	return store.ErrNotFound
}

// MockCategorizer is a mock implementation of Categorizer.
type MockCategorizer struct {
	CategorizeFunc func(ctx context.Context, description string, amount decimal.Decimal, currency, date string) ai.Result[ai.Categorization]
}

func (m *MockCategorizer) Categorize(ctx context.Context, description string, amount decimal.Decimal, currency, date string) ai.Result[ai.Categorization] {
	return m.CategorizeFunc(ctx, description, amount, currency, date)
}

func fixedCategorizer(category string) *MockCategorizer {
	return &MockCategorizer{
		CategorizeFunc: func(ctx context.Context, description string, amount decimal.Decimal, currency, date string) ai.Result[ai.Categorization] {
			return ai.Ok(ai.Categorization{Category: category, Confidence: 0.9})
		},
	}
}

const fiveRowBoA = "Date,Description,Amount,Reference\n" +
	"01/01/2026,Rent,-1500.00,R1\n" +
	"01/02/2026,\"Coffee, Inc.\",-4.50,R2\n" +
	"01/03/2026,Groceries,abc,R3\n" +
	"01/04/2026,Salary,3000.00,R4\n" +
	"01/05/2026,Gas,-40.00,R5\n"

func TestImportCSV_PartialFailure(t *testing.T) {
	repo := newMockRepository()
	in := NewIngestor(repo, fixedCategorizer("housing"), nil)

	res, err := in.ImportCSV(context.Background(), "boa", []byte(fiveRowBoA), ImportOptions{})
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if res.Imported != 4 || res.Skipped != 0 {
		t.Errorf("imported=%d skipped=%d, want 4/0", res.Imported, res.Skipped)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "row 3:") || !strings.Contains(res.Errors[0], `"abc"`) {
		t.Errorf("errors = %q, want one error about row 3", res.Errors)
	}
}

func TestImportCSV_StrayQuoteOnlyLosesItsRow(t *testing.T) {
	repo := newMockRepository()
	in := NewIngestor(repo, fixedCategorizer("other"), nil)
	data := "Date,Description,Amount,Reference\n" +
		"03/01/2026,One,-1.00,R1\n" +
		"03/02/2026,Two,-2.00,R2\n" +
		`03/03/2026,"Broken quote,-3.00,R3` + "\n" +
		"03/04/2026,Four,-4.00,R4\n" +
		"03/05/2026,Five,-5.00,R5\n"

	res, err := in.ImportCSV(context.Background(), "boa", []byte(data), ImportOptions{})
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if res.Imported != 4 {
		t.Errorf("imported = %d, want 4", res.Imported)
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "row 3:") {
		t.Errorf("errors = %q, want one error about row 3", res.Errors)
	}
	for _, desc := range []string{"Four", "Five"} {
		found := false
		for _, tx := range repo.byKey {
			if tx.Description == desc {
				found = true
			}
		}
		if !found {
			t.Errorf("row %q after the broken line was not imported", desc)
		}
	}
}

func TestImportCSV_Idempotent(t *testing.T) {
	repo := newMockRepository()
	in := NewIngestor(repo, fixedCategorizer("other"), nil)
	data := "Date,Description,Amount,Reference\n" +
		"01/01/2026,A,-1.00,\n" +
		"01/02/2026,B,-2.00,\n" +
		"01/03/2026,C,-3.00,\n"

	first, err := in.ImportCSV(context.Background(), "boa", []byte(data), ImportOptions{})
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := in.ImportCSV(context.Background(), "boa", []byte(data), ImportOptions{})
	if err != nil {
		t.Fatalf("second import: %v", err)
	}

	if first.Imported != 3 || first.Skipped != 0 {
		t.Errorf("first run = %+v, want 3 imported", first)
	}
	if second.Imported != 0 || second.Skipped != 3 {
		t.Errorf("second run = %+v, want 3 skipped", second)
	}
	if len(repo.byKey) != 3 {
		t.Errorf("stored %d transactions, want 3", len(repo.byKey))
	}
	if second.Errors == nil {
		t.Error("Errors should be an empty list, not nil")
	}
}

func TestImportCSV_StoredFields(t *testing.T) {
	repo := newMockRepository()
	in := NewIngestor(repo, fixedCategorizer("food_dining"), nil)

	_, err := in.ImportCSV(context.Background(), "boa", []byte(fiveRowBoA), ImportOptions{AccountID: "acc-7"})
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}

	key := DedupeKey("boa", "", decimal.RequireFromString("-4.50"), "2026-01-02", "Coffee, Inc.", "boa")
	tx := repo.byKey[key]
	if tx == nil {
		t.Fatalf("transaction with key %s not stored", key)
	}
	if tx.Status != domain.StatusPending || tx.Source != "boa" || tx.Category != "food_dining" ||
		tx.AccountID != "acc-7" || tx.Currency != "USD" || tx.CreatedAt.IsZero() {
		t.Errorf("stored transaction = %+v", tx)
	}
	if repo.incrementCall != 0 {
		t.Errorf("CSV import must not touch balances, got %d increments", repo.incrementCall)
	}
}

func TestImportCSV_CategorizationFallback(t *testing.T) {
	repo := newMockRepository()
	failing := &MockCategorizer{
		CategorizeFunc: func(ctx context.Context, description string, amount decimal.Decimal, currency, date string) ai.Result[ai.Categorization] {
			return ai.FallbackOf(ai.FallbackCategorization(), errors.New("boom"))
		},
	}
	in := NewIngestor(repo, failing, nil)

	res, err := in.ImportCSV(context.Background(), "boa", []byte(fiveRowBoA), ImportOptions{})
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if res.Imported != 4 {
		t.Errorf("imported = %d, want 4", res.Imported)
	}
	for _, tx := range repo.byKey {
		if tx.Category != domain.CategoryUncategorized || tx.Confidence != 0 || tx.Merchant != nil {
			t.Errorf("transaction %q category=%q confidence=%v, want uncategorized/0", tx.Description, tx.Category, tx.Confidence)
		}
	}
}

func TestImportCSV_NilCategorizer(t *testing.T) {
	repo := newMockRepository()
	in := NewIngestor(repo, nil, nil)

	res, err := in.ImportCSV(context.Background(), "boa", []byte(fiveRowBoA), ImportOptions{})
	if err != nil || res.Imported != 4 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestImportCSV_PersistenceFailureIsPerRow(t *testing.T) {
	repo := newMockRepository()
	repo.createErr = func(tx *domain.Transaction) error {
		if tx.Description == "Salary" {
			return errors.New("storage unavailable")
		}
		return nil
	}
	in := NewIngestor(repo, nil, nil)

	res, err := in.ImportCSV(context.Background(), "boa", []byte(fiveRowBoA), ImportOptions{})
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if res.Imported != 3 || len(res.Errors) != 2 {
		t.Errorf("res = %+v, want 3 imported and 2 errors", res)
	}
	if !strings.HasPrefix(res.Errors[1], "row 4:") || !strings.Contains(res.Errors[1], "storage unavailable") {
		t.Errorf("second error = %q", res.Errors[1])
	}
}

func TestImportCSV_DuplicateOnInsertIsSkipped(t *testing.T) {
	repo := newMockRepository()
	in := NewIngestor(repo, nil, nil)
	data := "Date,Description,Amount,Reference\n01/01/2026,A,-1.00,\n"

	if _, err := in.ImportCSV(context.Background(), "boa", []byte(data), ImportOptions{}); err != nil {
		t.Fatal(err)
	}

	repo.skipLookup = true
	res, err := in.ImportCSV(context.Background(), "boa", []byte(data), ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Imported != 0 || len(res.Errors) != 0 {
		t.Errorf("res = %+v, want the insert collision counted as skipped", res)
	}
}

func TestImportCSV_FatalErrors(t *testing.T) {
	repo := newMockRepository()
	in := NewIngestor(repo, nil, nil)

	_, err := in.ImportCSV(context.Background(), "monzo", []byte("x"), ImportOptions{})
	if !errors.Is(err, ErrUnsupportedBank) {
		t.Errorf("unknown bank error = %v", err)
	}

	_, err = in.ImportCSV(context.Background(), "fidelity", []byte("Foo,Bar\n1,2\n"), ImportOptions{})
	if !errors.Is(err, ErrUnrecognizedFormat) {
		t.Errorf("bad header error = %v", err)
	}
	if repo.createCalls != 0 {
		t.Errorf("no rows should be processed, got %d creates", repo.createCalls)
	}
}

func TestIngestWebhook_BalanceConsistency(t *testing.T) {
	acc := &domain.Account{ID: "acc-wise", Institution: "Wise", Currency: "EUR", CurrentBalance: decimal.RequireFromString("100.00")}
	repo := newMockRepository(acc)
	in := NewIngestor(repo, fixedCategorizer("food_dining"), nil)

	ev := WebhookEvent{
		ResourceID:  "111",
		Amount:      decimal.RequireFromString("-25.00"),
		Currency:    "EUR",
		Description: "Lunch",
		Date:        "2026-03-07",
	}

	first, err := in.IngestWebhook(context.Background(), ev)
	if err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	retry, err := in.IngestWebhook(context.Background(), ev)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}

	if !acc.CurrentBalance.Equal(decimal.RequireFromString("75.00")) {
		t.Errorf("balance = %s, want 75.00", acc.CurrentBalance)
	}
	if len(repo.byKey) != 1 {
		t.Errorf("stored %d transactions, want 1", len(repo.byKey))
	}
	if first.Duplicate || !retry.Duplicate {
		t.Errorf("duplicate flags = %v/%v, want false/true", first.Duplicate, retry.Duplicate)
	}
	if first.TransactionID == "" || retry.TransactionID != first.TransactionID {
		t.Errorf("transaction ids = %q/%q", first.TransactionID, retry.TransactionID)
	}
	for _, tx := range repo.byKey {
		if tx.AccountID != "acc-wise" || tx.Source != "wise" {
			t.Errorf("stored transaction = %+v", tx)
		}
	}
}

func TestIngestWebhook_OrphanedTransaction(t *testing.T) {
	acc := &domain.Account{ID: "acc-usd", Institution: "wise", Currency: "USD", CurrentBalance: decimal.NewFromInt(10)}
	repo := newMockRepository(acc)
	in := NewIngestor(repo, nil, nil)

	res, err := in.IngestWebhook(context.Background(), WebhookEvent{
		ResourceID: "9", Amount: decimal.NewFromInt(5), Currency: "gbp", Description: "Refund", Date: "03/07/2026",
	})
	if err != nil {
		t.Fatalf("IngestWebhook: %v", err)
	}
	if repo.incrementCall != 0 || !acc.CurrentBalance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("balance should be untouched, got %s after %d increments", acc.CurrentBalance, repo.incrementCall)
	}
	for _, tx := range repo.byKey {
		if tx.ID != res.TransactionID || tx.AccountID != "" || tx.Currency != "GBP" || tx.Date != "2026-03-07" {
			t.Errorf("stored transaction = %+v", tx)
		}
	}
}

func TestIngestWebhook_ReferenceIsExternalID(t *testing.T) {
	repo := newMockRepository()
	in := NewIngestor(repo, nil, nil)

	_, err := in.IngestWebhook(context.Background(), WebhookEvent{
		ResourceID: "55", Amount: decimal.NewFromInt(-1), Currency: "USD", Description: "X", Date: "2026-01-01", Reference: "TX-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if repo.byKey["wise:55:TX-1"] == nil {
		t.Errorf("expected dedupe key wise:55:TX-1, have %v", keys(repo.byKey))
	}
}

func TestIngestWebhook_InvalidEvent(t *testing.T) {
	in := NewIngestor(newMockRepository(), nil, nil)

	_, err := in.IngestWebhook(context.Background(), WebhookEvent{Amount: decimal.NewFromInt(1), Date: "2026-01-01"})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("error = %v, want ErrInvalidEvent", err)
	}
}

// ledgerRepository records whether the atomic path was used.
type ledgerRepository struct {
	*mockRepository
	ledgerCalls int
}

func (l *ledgerRepository) CreateTransactionWithBalance(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	l.ledgerCalls++
	created, err := l.mockRepository.CreateTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	return created, l.mockRepository.IncrementAccountBalance(ctx, tx.AccountID, tx.Amount)
}

func TestIngestWebhook_UsesBalanceLedger(t *testing.T) {
	acc := &domain.Account{ID: "a", Institution: "wise", Currency: "USD"}
	repo := &ledgerRepository{mockRepository: newMockRepository(acc)}
	in := NewIngestor(repo, nil, nil)

	_, err := in.IngestWebhook(context.Background(), WebhookEvent{
		ResourceID: "1", Amount: decimal.NewFromInt(7), Currency: "USD", Description: "Top up", Date: "2026-01-01",
	})
	if err != nil {
		t.Fatal(err)
	}
	if repo.ledgerCalls != 1 {
		t.Errorf("ledger calls = %d, want 1", repo.ledgerCalls)
	}
	if !acc.CurrentBalance.Equal(decimal.NewFromInt(7)) {
		t.Errorf("balance = %s", acc.CurrentBalance)
	}
}

// MockStorageService is a mock implementation of StorageService.
type MockStorageService struct {
	FetchFromGCSFunc func(ctx context.Context, gcsURI string) ([]byte, error)
}

func (m *MockStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return m.FetchFromGCSFunc(ctx, gcsURI)
}

func TestImportFromGCS(t *testing.T) {
	var fetched string
	storage := &MockStorageService{
		FetchFromGCSFunc: func(ctx context.Context, gcsURI string) ([]byte, error) {
			fetched = gcsURI
			return []byte(fiveRowBoA), nil
		},
	}
	in := NewIngestor(newMockRepository(), nil, storage)

	res, err := in.ImportFromGCS(context.Background(), "boa", "gs://bucket/exports/jan.csv", ImportOptions{})
	if err != nil {
		t.Fatalf("ImportFromGCS: %v", err)
	}
	if fetched != "gs://bucket/exports/jan.csv" || res.Imported != 4 {
		t.Errorf("fetched=%q res=%+v", fetched, res)
	}

	_, err = NewIngestor(newMockRepository(), nil, nil).ImportFromGCS(context.Background(), "boa", "gs://b/o", ImportOptions{})
	if err == nil {
		t.Error("expected error without storage service")
	}
}

func keys(m map[string]*domain.Transaction) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
