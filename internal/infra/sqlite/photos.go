package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/google/uuid"
)

func (db *DB) CreatePhoto(ctx context.Context, photo *domain.ReceiptPhoto) (*domain.ReceiptPhoto, error) {
	row := *photo
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	var extracted sql.NullString
	if row.ExtractedData != nil {
		b, err := json.Marshal(row.ExtractedData)
		if err != nil {
			return nil, fmt.Errorf("marshal extracted data: %w", err)
		}
		extracted = sql.NullString{String: string(b), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO receipt_photos (id, transaction_id, storage_path, extracted_data, extraction_model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, row.ID, row.TransactionID, row.StoragePath, extracted, row.ExtractionModel, formatTime(row.CreatedAt))
	if isForeignKeyViolation(err) {
		return nil, fmt.Errorf("transaction %s: %w", row.TransactionID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("insert receipt photo: %w", err)
	}
	return &row, nil
}

// LatestExtraction returns the newest extracted receipt for a transaction.
func (db *DB) LatestExtraction(ctx context.Context, transactionID string) (*domain.ReceiptData, error) {
	var raw string
	err := db.QueryRowContext(ctx, `
		SELECT extracted_data FROM receipt_photos
		WHERE transaction_id = ? AND extracted_data IS NOT NULL
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, transactionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest extraction: %w", err)
	}

	var data domain.ReceiptData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("unmarshal extracted data: %w", err)
	}
	return &data, nil
}

// Ensure DB implements the storage interfaces.
var (
	_ store.Repository    = (*DB)(nil)
	_ store.BalanceLedger = (*DB)(nil)
)
