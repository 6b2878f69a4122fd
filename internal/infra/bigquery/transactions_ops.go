package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/google/uuid"
)

const transactionColumns = `id, dedupe_key, description, amount, currency, transaction_date, category, confidence,
	merchant, source, status, account_id, note, tags, created_at, updated_at, reviewed_at`

const transactionValues = `@id, @dedupe_key, @description, @amount, @currency, @transaction_date, @category, @confidence,
	@merchant, @source, @status, @account_id, @note, @tags, @created_at, @updated_at, @reviewed_at`

func transactionParams(row *TransactionRow) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "id", Value: row.ID},
		{Name: "dedupe_key", Value: row.DedupeKey},
		{Name: "description", Value: row.Description},
		{Name: "amount", Value: row.Amount},
		{Name: "currency", Value: row.Currency},
		{Name: "transaction_date", Value: row.TransactionDate},
		{Name: "category", Value: row.Category},
		{Name: "confidence", Value: row.Confidence},
		{Name: "merchant", Value: row.Merchant},
		{Name: "source", Value: row.Source},
		{Name: "status", Value: row.Status},
		{Name: "account_id", Value: row.AccountID},
		{Name: "note", Value: row.Note},
		{Name: "tags", Value: row.Tags},
		{Name: "created_at", Value: row.CreatedAt},
		{Name: "updated_at", Value: row.UpdatedAt},
		{Name: "reviewed_at", Value: row.ReviewedAt},
	}
}

// insertScript refuses a second row with the same dedupe key. BigQuery has
// no unique constraints, so two concurrent scripts can still both insert.
func insertScript(transactions string) string {
	return `
		IF EXISTS (SELECT 1 FROM ` + transactions + ` WHERE dedupe_key = @dedupe_key) THEN
			RAISE USING MESSAGE = '` + duplicateMarker + `';
		END IF;
		INSERT INTO ` + transactions + ` (` + transactionColumns + `)
		VALUES (` + transactionValues + `);
	`
}

// ledgerScript inserts the transaction and moves the account balance in one
// multi-statement transaction.
func ledgerScript(transactions, accounts string) string {
	return `
		BEGIN TRANSACTION;
		IF EXISTS (SELECT 1 FROM ` + transactions + ` WHERE dedupe_key = @dedupe_key) THEN
			ROLLBACK TRANSACTION;
			RAISE USING MESSAGE = '` + duplicateMarker + `';
		END IF;
		INSERT INTO ` + transactions + ` (` + transactionColumns + `)
		VALUES (` + transactionValues + `);
		UPDATE ` + accounts + ` SET current_balance = current_balance + @amount WHERE id = @account_id;
		IF @@row_count = 0 THEN
			ROLLBACK TRANSACTION;
			RAISE USING MESSAGE = 'account not found';
		END IF;
		COMMIT TRANSACTION;
	`
}

func prepareTransaction(tx *domain.Transaction) domain.Transaction {
	row := *tx
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.Status == "" {
		row.Status = domain.StatusPending
	}
	if row.Currency == "" {
		row.Currency = domain.DefaultCurrency
	}
	return row
}

func (r *Repository) runInsert(ctx context.Context, script string, tx *domain.Transaction) (*domain.Transaction, error) {
	created := prepareTransaction(tx)
	row, err := toTransactionRow(&created)
	if err != nil {
		return nil, err
	}

	q := r.client.Query(script)
	q.Parameters = transactionParams(row)
	if _, err := runDML(ctx, q); err != nil {
		if isDuplicateError(err) {
			return nil, store.ErrDuplicateDedupeKey
		}
		if strings.Contains(err.Error(), "account not found") {
			return nil, fmt.Errorf("account %s: %w", tx.AccountID, store.ErrNotFound)
		}
		return nil, err
	}
	return &created, nil
}

// CreateTransaction inserts tx unless its dedupe key is already stored.
func (r *Repository) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	created, err := r.runInsert(ctx, insertScript(r.table(transactionsTable)), tx)
	if err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}
	return created, nil
}

// CreateTransactionWithBalance inserts tx and adds its amount to the account
// balance inside a BigQuery multi-statement transaction.
func (r *Repository) CreateTransactionWithBalance(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	script := ledgerScript(r.table(transactionsTable), r.table(accountsTable))
	created, err := r.runInsert(ctx, script, tx)
	if err != nil {
		return nil, fmt.Errorf("CreateTransactionWithBalance: %w", err)
	}
	return created, nil
}

func (r *Repository) queryTransactions(ctx context.Context, query string, params []bigquery.QueryParameter) ([]*domain.Transaction, error) {
	q := r.client.Query(query)
	q.Parameters = params

	rows, err := readAll[TransactionRow](ctx, q)
	if err != nil {
		return nil, err
	}

	result := make([]*domain.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, nil
}

// FindTransactionByDedupeKey returns nil, nil when no row has the key.
func (r *Repository) FindTransactionByDedupeKey(ctx context.Context, key string) (*domain.Transaction, error) {
	txs, err := r.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM `+r.table(transactionsTable)+` WHERE dedupe_key = @dedupe_key LIMIT 1`,
		[]bigquery.QueryParameter{{Name: "dedupe_key", Value: key}})
	if err != nil {
		return nil, fmt.Errorf("FindTransactionByDedupeKey: %w", err)
	}
	if len(txs) == 0 {
		return nil, nil
	}
	return txs[0], nil
}

func (r *Repository) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	txs, err := r.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM `+r.table(transactionsTable)+` WHERE id = @id`,
		[]bigquery.QueryParameter{{Name: "id", Value: id}})
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	if len(txs) == 0 {
		return nil, store.ErrNotFound
	}
	return txs[0], nil
}

// buildListQuery renders the filtered SELECT used by ListTransactions.
func buildListQuery(table string, filter store.TransactionFilter) (string, []bigquery.QueryParameter) {
	var (
		where  []string
		params []bigquery.QueryParameter
	)
	if filter.Status != "" {
		where = append(where, "status = @status")
		params = append(params, bigquery.QueryParameter{Name: "status", Value: string(filter.Status)})
	}
	if filter.Source != "" {
		where = append(where, "source = @source")
		params = append(params, bigquery.QueryParameter{Name: "source", Value: filter.Source})
	}
	if filter.AccountID != "" {
		where = append(where, "account_id = @account_id")
		params = append(params, bigquery.QueryParameter{Name: "account_id", Value: filter.AccountID})
	}
	if filter.StartDate != "" {
		where = append(where, "transaction_date >= SAFE.PARSE_DATE('%Y-%m-%d', @start_date)")
		params = append(params, bigquery.QueryParameter{Name: "start_date", Value: filter.StartDate})
	}
	if filter.EndDate != "" {
		where = append(where, "transaction_date <= SAFE.PARSE_DATE('%Y-%m-%d', @end_date)")
		params = append(params, bigquery.QueryParameter{Name: "end_date", Value: filter.EndDate})
	}

	query := `SELECT ` + transactionColumns + ` FROM ` + table
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY transaction_date DESC, created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT @limit"
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: filter.Limit})
	} else if filter.Offset > 0 {
		// BigQuery requires LIMIT before OFFSET.
		query += " LIMIT 9223372036854775807"
	}
	if filter.Offset > 0 {
		query += " OFFSET @offset"
		params = append(params, bigquery.QueryParameter{Name: "offset", Value: filter.Offset})
	}
	return query, params
}

func (r *Repository) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	query, params := buildListQuery(r.table(transactionsTable), filter)
	txs, err := r.queryTransactions(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("ListTransactions: %w", err)
	}
	return txs, nil
}

// buildUpdate renders the SET clause for the non-nil fields of upd.
func buildUpdate(id string, upd store.TransactionUpdate, now time.Time) (string, []bigquery.QueryParameter) {
	sets := []string{"updated_at = @updated_at"}
	params := []bigquery.QueryParameter{
		{Name: "id", Value: id},
		{Name: "updated_at", Value: now},
	}

	if upd.Category != nil {
		sets = append(sets, "category = @category")
		params = append(params, bigquery.QueryParameter{Name: "category", Value: *upd.Category})
	}
	if upd.Confidence != nil {
		sets = append(sets, "confidence = @confidence")
		params = append(params, bigquery.QueryParameter{Name: "confidence", Value: *upd.Confidence})
	}
	if upd.Note != nil {
		sets = append(sets, "note = @note")
		params = append(params, bigquery.QueryParameter{Name: "note", Value: *upd.Note})
	}
	if upd.Tags != nil {
		sets = append(sets, "tags = @tags")
		params = append(params, bigquery.QueryParameter{Name: "tags", Value: upd.Tags})
	}
	if upd.Status != nil {
		sets = append(sets, "status = @status")
		params = append(params, bigquery.QueryParameter{Name: "status", Value: string(*upd.Status)})
	}
	if upd.ReviewedAt != nil {
		sets = append(sets, "reviewed_at = @reviewed_at")
		params = append(params, bigquery.QueryParameter{Name: "reviewed_at", Value: *upd.ReviewedAt})
	}
	return strings.Join(sets, ", "), params
}

func (r *Repository) UpdateTransaction(ctx context.Context, id string, upd store.TransactionUpdate) (*domain.Transaction, error) {
	sets, params := buildUpdate(id, upd, time.Now().UTC())

	q := r.client.Query(`UPDATE ` + r.table(transactionsTable) + ` SET ` + sets + ` WHERE id = @id`)
	q.Parameters = params
	n, err := runDML(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("UpdateTransaction: %w", err)
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return r.GetTransaction(ctx, id)
}

// SetTransactionsStatus updates every listed id with a single UNNEST query.
func (r *Repository) SetTransactionsStatus(ctx context.Context, ids []string, status domain.Status, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	reviewedExpr := "reviewed_at"
	if status == domain.StatusReviewed {
		reviewedExpr = "@at"
	}
	q := r.client.Query(`
		UPDATE ` + r.table(transactionsTable) + `
		SET status = @status, updated_at = @at, reviewed_at = ` + reviewedExpr + `
		WHERE id IN UNNEST(@ids)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(status)},
		{Name: "at", Value: at},
		{Name: "ids", Value: ids},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("SetTransactionsStatus: %w", err)
	}
	return int(n), nil
}

// DeleteTransaction removes the transaction, then its receipt photos.
func (r *Repository) DeleteTransaction(ctx context.Context, id string) error {
	q := r.client.Query(`DELETE FROM ` + r.table(transactionsTable) + ` WHERE id = @id`)
	q.Parameters = []bigquery.QueryParameter{{Name: "id", Value: id}}
	n, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("DeleteTransaction: deleting transaction: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}

	q = r.client.Query(`DELETE FROM ` + r.table(photosTable) + ` WHERE transaction_id = @id`)
	q.Parameters = []bigquery.QueryParameter{{Name: "id", Value: id}}
	if _, err := runDML(ctx, q); err != nil {
		return fmt.Errorf("DeleteTransaction: deleting photos: %w", err)
	}
	return nil
}
