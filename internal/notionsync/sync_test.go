package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

// MockNotionService is a mock implementation of NotionService for testing.
type MockNotionService struct {
	ListPagesFunc   func(ctx context.Context, databaseID string) ([]notionapi.Page, error)
	CreatePageFunc  func(ctx context.Context, databaseID string, properties notionapi.Properties) (string, error)
	UpdatePageFunc  func(ctx context.Context, pageID string, properties notionapi.Properties) error
	ArchivePageFunc func(ctx context.Context, pageID string) error
}

func (m *MockNotionService) ListPages(ctx context.Context, databaseID string) ([]notionapi.Page, error) {
	return m.ListPagesFunc(ctx, databaseID)
}

func (m *MockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (string, error) {
	return m.CreatePageFunc(ctx, databaseID, properties)
}

func (m *MockNotionService) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) error {
	return m.UpdatePageFunc(ctx, pageID, properties)
}

func (m *MockNotionService) ArchivePage(ctx context.Context, pageID string) error {
	return m.ArchivePageFunc(ctx, pageID)
}

// MockTransactionSource is a mock implementation of TransactionSource for testing.
type MockTransactionSource struct {
	ListTransactionsFunc func(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error)
}

func (m *MockTransactionSource) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	return m.ListTransactionsFunc(ctx, filter)
}

func mirroredPage(pageID, txID string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(pageID),
		Properties: notionapi.Properties{
			PropTransactionID: &notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{PlainText: txID}},
			},
		},
	}
}

func mirroredDatabase(ctx context.Context, databaseID string) ([]notionapi.Page, error) {
	return []notionapi.Page{mirroredPage("p1", "tx-1"), mirroredPage("p-stale", "tx-gone")}, nil
}

func sampleTransactions() []*domain.Transaction {
	return []*domain.Transaction{
		{ID: "tx-1", Description: "Coffee", Amount: decimal.RequireFromString("-4.50"), Date: "2026-03-07", Status: domain.StatusReviewed},
		{ID: "tx-2", Description: "Salary", Amount: decimal.RequireFromString("3000"), Date: "2026-03-01", Status: domain.StatusReviewed},
	}
}

func TestSyncTransactions_CreatesMissingPages(t *testing.T) {
	repo := &MockTransactionSource{ListTransactionsFunc: func(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
		if filter.Status != domain.StatusReviewed {
			t.Errorf("filter = %+v", filter)
		}
		return sampleTransactions(), nil
	}}

	var created []string
	var deleted []string
	notion := &MockNotionService{
		ListPagesFunc: mirroredDatabase,
		CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (string, error) {
			if databaseID != "db" {
				t.Errorf("databaseID = %q", databaseID)
			}
			id := properties[PropTransactionID].(notionapi.RichTextProperty).RichText[0].Text.Content
			created = append(created, id)
			return "new", nil
		},
		ArchivePageFunc: func(ctx context.Context, pageID string) error {
			deleted = append(deleted, pageID)
			return nil
		},
	}

	res, err := SyncTransactions(context.Background(), repo, notion, "db", SyncOptions{
		Filter: store.TransactionFilter{Status: domain.StatusReviewed},
		Prune:  true,
	})
	if err != nil {
		t.Fatalf("SyncTransactions: %v", err)
	}

	if res.Created != 1 || res.Skipped != 1 || res.Deleted != 1 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(created) != 1 || created[0] != "tx-2" {
		t.Errorf("created = %v", created)
	}
	if len(deleted) != 1 || deleted[0] != "p-stale" {
		t.Errorf("deleted = %v", deleted)
	}
}

func TestSyncTransactions_DryRunAndFailures(t *testing.T) {
	repo := &MockTransactionSource{ListTransactionsFunc: func(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
		return sampleTransactions(), nil
	}}
	notion := &MockNotionService{
		ListPagesFunc: func(ctx context.Context, databaseID string) ([]notionapi.Page, error) {
			return nil, nil
		},
		CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (string, error) {
			return "", errors.New("rate limited")
		},
	}

	res, err := SyncTransactions(context.Background(), repo, notion, "db", SyncOptions{DryRun: true})
	if err != nil || res.Created != 2 {
		t.Errorf("dry run = %+v, %v", res, err)
	}

	res, err = SyncTransactions(context.Background(), repo, notion, "db", SyncOptions{})
	if err != nil || res.Failed != 2 || res.Created != 0 {
		t.Errorf("failing run = %+v, %v", res, err)
	}

	repo.ListTransactionsFunc = func(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
		return nil, errors.New("db down")
	}
	if _, err := SyncTransactions(context.Background(), repo, notion, "db", SyncOptions{}); err == nil {
		t.Error("expected repository error")
	}
}

func TestTransactionToNotionProperties(t *testing.T) {
	merchant := "Blue Bottle"
	tx := &domain.Transaction{
		ID:          "tx-1",
		Description: "BLUE BOTTLE",
		Amount:      decimal.RequireFromString("-4.50"),
		Date:        "2026-03-07",
		Category:    "food_dining",
		Status:      domain.StatusPending,
		Merchant:    &merchant,
		CreatedAt:   time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC),
	}

	props := TransactionToNotionProperties(tx)

	if got := props[PropAmount].(notionapi.NumberProperty).Number; got != -4.5 {
		t.Errorf("Amount = %v", got)
	}
	if got := props[PropCurrency].(notionapi.SelectProperty).Select.Name; got != "USD" {
		t.Errorf("Currency = %q, want default USD", got)
	}
	date := props[PropDate].(notionapi.DateProperty).Date.Start
	if time.Time(*date).Format("2006-01-02") != "2026-03-07" {
		t.Errorf("Date = %v", time.Time(*date))
	}
	if _, ok := props[PropAccount]; ok {
		t.Error("empty account should be omitted")
	}
	if _, ok := props[PropMerchant]; !ok {
		t.Error("merchant missing")
	}

	tx.Date = "pending"
	if _, ok := TransactionToNotionProperties(tx)[PropDate]; ok {
		t.Error("unnormalized date should be omitted")
	}
}

func TestExtractTransactionID(t *testing.T) {
	if got := extractTransactionID(mirroredPage("p", "tx-9")); got != "tx-9" {
		t.Errorf("got %q", got)
	}

	// Pages built locally carry Text.Content rather than PlainText.
	local := notionapi.Page{Properties: TransactionToNotionProperties(&domain.Transaction{ID: "tx-local"})}
	if got := extractTransactionID(local); got != "tx-local" {
		t.Errorf("got %q", got)
	}

	if got := extractTransactionID(notionapi.Page{}); got != "" {
		t.Errorf("empty page = %q", got)
	}
}

// MockAccountSource is a mock implementation of AccountSource for testing.
type MockAccountSource struct {
	ListAccountsFunc func(ctx context.Context) ([]*domain.Account, error)
}

func (m *MockAccountSource) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	return m.ListAccountsFunc(ctx)
}

func TestSyncAccounts_UpdatesExistingAndCreatesNew(t *testing.T) {
	repo := &MockAccountSource{ListAccountsFunc: func(ctx context.Context) ([]*domain.Account, error) {
		return []*domain.Account{
			{ID: "acc-1", Name: "Wise EUR", Institution: "Wise", Currency: "EUR", CurrentBalance: decimal.RequireFromString("250.75")},
			{ID: "acc-2", Name: "Checking", Institution: "BoA", Currency: "USD"},
		}, nil
	}}

	var updated, created []string
	notion := &MockNotionService{
		ListPagesFunc: func(ctx context.Context, databaseID string) ([]notionapi.Page, error) {
			return []notionapi.Page{{
				ID:         "page-acc-1",
				Properties: AccountToNotionProperties(&domain.Account{ID: "acc-1"}),
			}}, nil
		},
		UpdatePageFunc: func(ctx context.Context, pageID string, properties notionapi.Properties) error {
			if got := properties["Current Balance"].(notionapi.NumberProperty).Number; got != 250.75 {
				t.Errorf("balance = %v", got)
			}
			updated = append(updated, pageID)
			return nil
		},
		CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (string, error) {
			created = append(created, plainText(notionapi.Page{Properties: properties}, "Account ID"))
			return "page-new", nil
		},
	}

	res, err := SyncAccounts(context.Background(), repo, notion, "accounts-db", false)
	if err != nil {
		t.Fatalf("SyncAccounts: %v", err)
	}
	if res.Created != 1 || res.Skipped != 1 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(updated) != 1 || updated[0] != "page-acc-1" {
		t.Errorf("updated = %v", updated)
	}
	if len(created) != 1 || created[0] != "acc-2" {
		t.Errorf("created = %v", created)
	}
}
