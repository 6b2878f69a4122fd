package notionsync

import (
	"context"

	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/jomei/notionapi"
)

// NotionService is the subset of the Notion API the mirror needs.
type NotionService interface {
	ListPages(ctx context.Context, databaseID string) ([]notionapi.Page, error)
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (string, error)
	UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) error
	ArchivePage(ctx context.Context, pageID string) error
}

// TransactionSource lists the transactions to mirror.
type TransactionSource interface {
	ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error)
}

// AccountSource lists the accounts to mirror.
type AccountSource interface {
	ListAccounts(ctx context.Context) ([]*domain.Account, error)
}

var _ NotionService = (*NotionClient)(nil)
