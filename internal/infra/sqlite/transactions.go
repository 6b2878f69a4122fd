package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, dedupe_key, description, amount, currency, date, category, confidence,
	merchant, source, status, account_id, note, tags, created_at, updated_at, reviewed_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t                     domain.Transaction
		amount, tags, created string
		status                string
		merchant              sql.NullString
		updated, reviewed     sql.NullString
	)
	if err := row.Scan(&t.ID, &t.DedupeKey, &t.Description, &amount, &t.Currency, &t.Date, &t.Category,
		&t.Confidence, &merchant, &t.Source, &status, &t.AccountID, &t.Note, &tags, &created,
		&updated, &reviewed); err != nil {
		return nil, err
	}

	var err error
	if t.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("transaction %s amount: %w", t.ID, err)
	}
	if merchant.Valid {
		m := merchant.String
		t.Merchant = &m
	}
	t.Status = domain.Status(status)
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
			return nil, fmt.Errorf("transaction %s tags: %w", t.ID, err)
		}
	}
	if t.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseNullTime(updated); err != nil {
		return nil, err
	}
	if t.ReviewedAt, err = parseNullTime(reviewed); err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTransactionByDedupeKey returns nil, nil when no row has the key.
func (db *DB) FindTransactionByDedupeKey(ctx context.Context, key string) (*domain.Transaction, error) {
	row := db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE dedupe_key = ?`, key)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction by dedupe key: %w", err)
	}
	return t, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertTransaction(ctx context.Context, ex execer, tx *domain.Transaction) (*domain.Transaction, error) {
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

	tags, err := json.Marshal(nonNilTags(row.Tags))
	if err != nil {
		return nil, fmt.Errorf("marshal tags: %w", err)
	}
	var merchant sql.NullString
	if row.Merchant != nil {
		merchant = sql.NullString{String: *row.Merchant, Valid: true}
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.DedupeKey, row.Description, row.Amount.String(), row.Currency, row.Date, row.Category,
		row.Confidence, merchant, row.Source, string(row.Status), row.AccountID, row.Note, string(tags),
		formatTime(row.CreatedAt), nullTime(row.UpdatedAt), nullTime(row.ReviewedAt))
	if isUniqueViolation(err) {
		return nil, store.ErrDuplicateDedupeKey
	}
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return &row, nil
}

// CreateTransaction inserts tx. The UNIQUE constraint on dedupe_key turns
// a replay into store.ErrDuplicateDedupeKey.
func (db *DB) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	return insertTransaction(ctx, db, tx)
}

// CreateTransactionWithBalance inserts tx and adds its amount to the
// account balance in one database transaction.
func (db *DB) CreateTransactionWithBalance(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer sqlTx.Rollback()

	created, err := insertTransaction(ctx, sqlTx, tx)
	if err != nil {
		return nil, err
	}
	if err := incrementBalance(ctx, sqlTx, tx.AccountID, tx.Amount); err != nil {
		return nil, err
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return created, nil
}

// GetTransaction returns store.ErrNotFound for an unknown id.
func (db *DB) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction: %w", err)
	}
	return t, nil
}

// ListTransactions returns matching transactions, newest date first.
func (db *DB) ListTransactions(ctx context.Context, filter store.TransactionFilter) ([]*domain.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, filter.AccountID)
	}
	if filter.StartDate != "" {
		where = append(where, "date >= ?")
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where = append(where, "date <= ?")
		args = append(args, filter.EndDate)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	result := []*domain.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// UpdateTransaction applies the non-nil fields of upd.
func (db *DB) UpdateTransaction(ctx context.Context, id string, upd store.TransactionUpdate) (*domain.Transaction, error) {
	sets := []string{"updated_at = ?"}
	args := []any{formatTime(time.Now())}

	if upd.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *upd.Category)
	}
	if upd.Confidence != nil {
		sets = append(sets, "confidence = ?")
		args = append(args, *upd.Confidence)
	}
	if upd.Note != nil {
		sets = append(sets, "note = ?")
		args = append(args, *upd.Note)
	}
	if upd.Tags != nil {
		tags, err := json.Marshal(upd.Tags)
		if err != nil {
			return nil, fmt.Errorf("marshal tags: %w", err)
		}
		sets = append(sets, "tags = ?")
		args = append(args, string(tags))
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	if upd.ReviewedAt != nil {
		sets = append(sets, "reviewed_at = ?")
		args = append(args, formatTime(*upd.ReviewedAt))
	}
	args = append(args, id)

	res, err := db.ExecContext(ctx, `UPDATE transactions SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, store.ErrNotFound
	}
	return db.GetTransaction(ctx, id)
}

// SetTransactionsStatus updates status for every listed id.
func (db *DB) SetTransactionsStatus(ctx context.Context, ids []string, status domain.Status, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := []any{string(status), formatTime(at)}
	reviewedExpr := "reviewed_at"
	if status == domain.StatusReviewed {
		reviewedExpr = "?"
		args = append(args, formatTime(at))
	}
	for _, id := range ids {
		args = append(args, id)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, updated_at = ?, reviewed_at = `+reviewedExpr+`
		WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("bulk update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteTransaction removes a transaction and its photos.
func (db *DB) DeleteTransaction(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
