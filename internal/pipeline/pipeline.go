package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/logger"
	"github.com/shopspring/decimal"
)

// ImportResult is the outcome of one CSV import. Skipped counts duplicates;
// Errors lists malformed rows and rows that failed to persist.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

func (r *ImportResult) addError(msg string) {
	switch {
	case len(r.Errors) < MaxImportErrors:
		r.Errors = append(r.Errors, msg)
	case len(r.Errors) == MaxImportErrors:
		r.Errors = append(r.Errors, "further errors omitted")
	}
}

// ImportOptions tunes a CSV import.
type ImportOptions struct {
	// AccountID links imported transactions to an account. It does not
	// take part in the dedupe key and no balance is changed.
	AccountID string
}

// WebhookEvent is a provider-agnostic balance-bearing event.
type WebhookEvent struct {
	ResourceID  string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Date        string
	Reference   string // provider transaction reference, may be empty
}

// WebhookResult is the outcome of one webhook delivery.
type WebhookResult struct {
	TransactionID string
	Duplicate     bool
}

// Ingestor runs CSV imports and webhook events through the ingestion steps.
type Ingestor struct {
	csv     *Pipeline
	webhook *Pipeline
	storage StorageService
}

// NewIngestor creates an Ingestor. categorizer may be nil, in which case
// every transaction is stored as uncategorized. storage may be nil when
// gs:// imports are not used.
func NewIngestor(repo Repository, categorizer Categorizer, storage StorageService) *Ingestor {
	now := time.Now
	return &Ingestor{
		csv:     NewCSVPipeline(repo, categorizer, now),
		webhook: NewWebhookPipeline(repo, categorizer, now),
		storage: storage,
	}
}

// ImportCSV parses data with the bank's parser and ingests every row in
// file order. A bad row is reported in the result and does not stop the
// batch. An unknown bank or an unrecognized file returns an error before
// any row is processed.
func (in *Ingestor) ImportCSV(ctx context.Context, bank string, data []byte, opts ImportOptions) (*ImportResult, error) {
	parser, err := ParserFor(bank)
	if err != nil {
		return nil, err
	}

	records, unreadable := ReadCSV(data)

	parsed, err := parser.Parse(records)
	if err != nil {
		return nil, fmt.Errorf("ImportCSV: %w", err)
	}

	issues := append(unreadable, parsed.Issues...)
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Row < issues[j].Row })

	log := logger.FromContext(ctx).With().Str("bank", parser.Source()).Logger()
	log.Info().
		Int("rows", len(parsed.Entries)).
		Int("malformed", len(issues)).
		Msg("Parsed import file")

	result := &ImportResult{Errors: []string{}}
	for _, issue := range issues {
		result.addError(issue.String())
	}

	for _, entry := range parsed.Entries {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("ImportCSV: %w", err)
		}

		state := &PipelineState{
			Source:      parser.Source(),
			DedupeScope: parser.Source(),
			AccountID:   opts.AccountID,
			Entry:       entry.Transaction,
		}
		if err := in.csv.Execute(ctx, state); err != nil {
			log.Error().Err(err).Int("row", entry.Row).Msg("Failed to ingest row")
			result.addError(RowIssue{Row: entry.Row, Reason: err.Error()}.String())
			continue
		}
		if state.Duplicate {
			result.Skipped++
			continue
		}
		result.Imported++
	}

	log.Info().
		Int("imported", result.Imported).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("Import finished")

	return result, nil
}

// ImportFromGCS downloads a CSV export from gcsURI and imports it.
func (in *Ingestor) ImportFromGCS(ctx context.Context, bank, gcsURI string, opts ImportOptions) (*ImportResult, error) {
	if in.storage == nil {
		return nil, errors.New("ImportFromGCS: no storage service configured")
	}
	if _, err := ParserFor(bank); err != nil {
		return nil, err
	}

	data, err := in.storage.FetchFromGCS(ctx, gcsURI)
	if err != nil {
		return nil, fmt.Errorf("ImportFromGCS: %w", err)
	}
	return in.ImportCSV(ctx, bank, data, opts)
}

// IngestWebhook stores one webhook event and credits the matching account.
// A redelivered event is detected by its dedupe key before any effect runs
// and reported with Duplicate set.
func (in *Ingestor) IngestWebhook(ctx context.Context, ev WebhookEvent) (*WebhookResult, error) {
	if err := validateWebhookEvent(ev); err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(ev.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	state := &PipelineState{
		Source:      domain.SourceWise,
		DedupeScope: ev.ResourceID,
		ExternalID:  strings.TrimSpace(ev.Reference),
		Entry: domain.NormalizedTransaction{
			Date:        NormalizeDate(ev.Date),
			Description: strings.TrimSpace(ev.Description),
			Amount:      ev.Amount,
			Currency:    currency,
			Reference:   strings.TrimSpace(ev.Reference),
		},
	}

	if err := in.webhook.Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("IngestWebhook: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("resource_id", ev.ResourceID).
		Str("transaction_id", state.Transaction.ID).
		Bool("duplicate", state.Duplicate).
		Str("account_id", state.AccountID).
		Msg("Webhook event ingested")

	return &WebhookResult{TransactionID: state.Transaction.ID, Duplicate: state.Duplicate}, nil
}

// ErrInvalidEvent is returned for webhook events missing required fields.
var ErrInvalidEvent = errors.New("invalid webhook event")

func validateWebhookEvent(ev WebhookEvent) error {
	var missing []string
	if strings.TrimSpace(ev.ResourceID) == "" {
		missing = append(missing, "resource id")
	}
	if strings.TrimSpace(ev.Description) == "" {
		missing = append(missing, "description")
	}
	if strings.TrimSpace(ev.Date) == "" {
		missing = append(missing, "date")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidEvent, strings.Join(missing, ", "))
	}
	return nil
}
