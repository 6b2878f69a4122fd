package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/dapfinance/internal/logger"
	"github.com/dvloznov/dapfinance/internal/store"
)

const (
	// BatchSize defines the number of transactions to process in a single batch
	BatchSize = 100
)

// SyncOptions controls a transaction mirror run.
type SyncOptions struct {
	// Filter selects the transactions to mirror.
	Filter store.TransactionFilter

	// Prune archives pages whose transaction is not in the filtered set.
	Prune bool

	// DryRun logs what would change without writing to Notion.
	DryRun bool
}

// SyncResult summarizes a mirror run.
type SyncResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// SyncTransactions mirrors transactions into a Notion database. Pages are
// matched by their Transaction ID property; transactions that already have a
// page are skipped. Failures on single pages are logged and counted.
func SyncTransactions(ctx context.Context, repo TransactionSource, notionClient NotionService, notionDBID string, opts SyncOptions) (*SyncResult, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Str("status", string(opts.Filter.Status)).
		Str("start_date", opts.Filter.StartDate).
		Str("end_date", opts.Filter.EndDate).
		Bool("prune", opts.Prune).
		Bool("dry_run", opts.DryRun).
		Msg("Starting transaction sync to Notion")

	transactions, err := repo.ListTransactions(ctx, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}

	log.Info().Int("transaction_count", len(transactions)).Msg("Retrieved transactions")

	validTransactionIDs := make(map[string]bool, len(transactions))
	for _, tx := range transactions {
		validTransactionIDs[tx.ID] = true
	}

	notionPages, err := notionClient.ListPages(ctx, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("failed to query Notion pages: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	existingTransactionIDs := make(map[string]bool)
	for _, page := range notionPages {
		if txID := extractTransactionID(page); txID != "" {
			existingTransactionIDs[txID] = true
		}
	}

	result := &SyncResult{}

	if opts.Prune {
		for _, page := range notionPages {
			txID := extractTransactionID(page)
			if txID != "" && validTransactionIDs[txID] {
				continue
			}
			if opts.DryRun {
				log.Info().
					Str("transaction_id", txID).
					Str("page_id", string(page.ID)).
					Msg("[DRY RUN] Would archive stale Notion page")
				result.Deleted++
				continue
			}
			if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
				log.Warn().
					Err(err).
					Str("transaction_id", txID).
					Str("page_id", string(page.ID)).
					Msg("Failed to archive stale Notion page")
				result.Failed++
				continue
			}
			result.Deleted++
		}
	}

	for i := 0; i < len(transactions); i += BatchSize {
		end := i + BatchSize
		if end > len(transactions) {
			end = len(transactions)
		}

		batch := transactions[i:end]
		log.Debug().
			Int("batch_start", i).
			Int("batch_end", end).
			Msg("Processing batch")

		for _, tx := range batch {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			if existingTransactionIDs[tx.ID] {
				result.Skipped++
				continue
			}

			if opts.DryRun {
				log.Info().
					Str("transaction_id", tx.ID).
					Msg("[DRY RUN] Would create new Notion page")
				result.Created++
				continue
			}

			pageID, err := notionClient.CreatePage(ctx, notionDBID, TransactionToNotionProperties(tx))
			if err != nil {
				log.Warn().
					Err(err).
					Str("transaction_id", tx.ID).
					Msg("Failed to create Notion page")
				result.Failed++
				continue
			}
			log.Debug().
				Str("transaction_id", tx.ID).
				Str("page_id", pageID).
				Msg("Created Notion page")
			result.Created++
		}
	}

	log.Info().
		Int("deleted", result.Deleted).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("total", len(transactions)).
		Msg("Transaction sync completed")

	return result, nil
}

// SyncAccounts mirrors accounts into a Notion database. Existing account
// pages get their balance refreshed.
func SyncAccounts(ctx context.Context, repo AccountSource, notionClient NotionService, notionDBID string, dryRun bool) (*SyncResult, error) {
	log := logger.FromContext(ctx)

	accounts, err := repo.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}

	notionPages, err := notionClient.ListPages(ctx, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("failed to query Notion pages: %w", err)
	}

	pageByAccount := make(map[string]string)
	for _, page := range notionPages {
		if accID := extractAccountID(page); accID != "" {
			pageByAccount[accID] = string(page.ID)
		}
	}

	result := &SyncResult{}
	for _, acc := range accounts {
		pageID, exists := pageByAccount[acc.ID]

		if dryRun {
			log.Info().
				Str("account_id", acc.ID).
				Bool("exists", exists).
				Msg("[DRY RUN] Would create/update Notion page for account")
			if exists {
				result.Skipped++
			} else {
				result.Created++
			}
			continue
		}

		props := AccountToNotionProperties(acc)
		if exists {
			if err := notionClient.UpdatePage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("account_id", acc.ID).Msg("Failed to update Notion page for account")
				result.Failed++
				continue
			}
			result.Skipped++
			continue
		}

		if _, err := notionClient.CreatePage(ctx, notionDBID, props); err != nil {
			log.Warn().Err(err).Str("account_id", acc.ID).Msg("Failed to create Notion page for account")
			result.Failed++
			continue
		}
		result.Created++
	}

	log.Info().
		Int("created", result.Created).
		Int("updated", result.Skipped).
		Int("failed", result.Failed).
		Msg("Accounts sync completed")

	return result, nil
}
