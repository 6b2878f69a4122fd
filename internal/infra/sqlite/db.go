// Package sqlite implements store.Repository on a local SQLite file.
package sqlite

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// balanceScale is the number of decimal places kept in balance columns.
const balanceScale = 4

var (
	minBalanceUnits = decimal.NewFromInt(math.MinInt64)
	maxBalanceUnits = decimal.NewFromInt(math.MaxInt64)
)

// ErrBalanceNotRepresentable is returned for amounts with more than
// balanceScale decimal places or outside the int64 range of the balance
// columns. Nothing is written in that case.
var ErrBalanceNotRepresentable = errors.New("balance not representable")

// DB wraps a SQLite connection.
type DB struct {
	*sql.DB
}

// Open opens or creates the database at dbPath and applies the schema.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	d := &DB{db}
	if err := d.Init(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Init creates tables if they don't exist.
func (db *DB) Init() error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

func toBalanceUnits(d decimal.Decimal) (int64, error) {
	units := d.Shift(balanceScale)
	if !units.IsInteger() {
		return 0, fmt.Errorf("%s has more than %d decimal places: %w", d, balanceScale, ErrBalanceNotRepresentable)
	}
	if units.LessThan(minBalanceUnits) || units.GreaterThan(maxBalanceUnits) {
		return 0, fmt.Errorf("%s is out of range: %w", d, ErrBalanceNotRepresentable)
	}
	return units.IntPart(), nil
}

func fromBalanceUnits(units int64) decimal.Decimal {
	return decimal.New(units, -balanceScale)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
