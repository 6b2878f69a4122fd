package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, name, institution, currency, current_balance_e4, last_synced_at, created_at`

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a       domain.Account
		units   int64
		synced  sql.NullString
		created string
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Institution, &a.Currency, &units, &synced, &created); err != nil {
		return nil, err
	}
	a.CurrentBalance = fromBalanceUnits(units)

	var err error
	if a.LastSyncedAt, err = parseNullTime(synced); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindAccountByInstitutionAndCurrency matches institution case-insensitively
// and returns the oldest matching account, or nil, nil.
func (db *DB) FindAccountByInstitutionAndCurrency(ctx context.Context, institution, currency string) (*domain.Account, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE institution = ? COLLATE NOCASE AND currency = ? COLLATE NOCASE
		ORDER BY created_at, id
		LIMIT 1
	`, institution, currency)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return a, nil
}

func incrementBalance(ctx context.Context, ex execer, accountID string, delta decimal.Decimal) error {
	units, err := toBalanceUnits(delta)
	if err != nil {
		return fmt.Errorf("increment balance: %w", err)
	}
	res, err := ex.ExecContext(ctx,
		`UPDATE accounts SET current_balance_e4 = current_balance_e4 + ? WHERE id = ?`,
		units, accountID)
	if err != nil {
		return fmt.Errorf("increment balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("account %s: %w", accountID, store.ErrNotFound)
	}
	return nil
}

// IncrementAccountBalance adds delta to the stored balance in a single UPDATE.
func (db *DB) IncrementAccountBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	return incrementBalance(ctx, db, accountID, delta)
}

// SetAccountBalance overwrites balances of accounts whose institution
// contains institutionLike in the given currency.
func (db *DB) SetAccountBalance(ctx context.Context, institutionLike, currency string, balance decimal.Decimal, syncedAt time.Time) (int, error) {
	units, err := toBalanceUnits(balance)
	if err != nil {
		return 0, fmt.Errorf("set account balance: %w", err)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE accounts
		SET current_balance_e4 = ?, last_synced_at = ?
		WHERE instr(lower(institution), ?) > 0 AND currency = ? COLLATE NOCASE
	`, units, formatTime(syncedAt), strings.ToLower(institutionLike), currency)
	if err != nil {
		return 0, fmt.Errorf("set account balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (db *DB) CreateAccount(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	row := *acc
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.Currency == "" {
		row.Currency = domain.DefaultCurrency
	}

	units, err := toBalanceUnits(row.CurrentBalance)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.Name, row.Institution, row.Currency, units,
		nullTime(row.LastSyncedAt), formatTime(row.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return &row, nil
}

func (db *DB) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	a, err := scanAccount(db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query account: %w", err)
	}
	return a, nil
}

func (db *DB) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	result := []*domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}
