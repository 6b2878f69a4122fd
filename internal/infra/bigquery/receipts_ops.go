package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/google/uuid"
)

// CreatePhoto inserts a receipt photo for an existing transaction.
func (r *Repository) CreatePhoto(ctx context.Context, photo *domain.ReceiptPhoto) (*domain.ReceiptPhoto, error) {
	created := *photo
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	row, err := toPhotoRow(&created)
	if err != nil {
		return nil, fmt.Errorf("CreatePhoto: %w", err)
	}

	// The insert selects from transactions so an unknown id inserts nothing.
	q := r.client.Query(`
		INSERT INTO ` + r.table(photosTable) + ` (id, transaction_id, storage_path, extracted_data, extraction_model, created_at)
		SELECT @id, t.id, @storage_path, @extracted_data, @extraction_model, @created_at
		FROM ` + r.table(transactionsTable) + ` t
		WHERE t.id = @transaction_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: row.ID},
		{Name: "transaction_id", Value: row.TransactionID},
		{Name: "storage_path", Value: row.StoragePath},
		{Name: "extracted_data", Value: row.ExtractedData},
		{Name: "extraction_model", Value: row.ExtractionModel},
		{Name: "created_at", Value: row.CreatedAt},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("CreatePhoto: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("transaction %s: %w", row.TransactionID, store.ErrNotFound)
	}
	return &created, nil
}

// LatestExtraction returns the newest extracted receipt for a transaction.
func (r *Repository) LatestExtraction(ctx context.Context, transactionID string) (*domain.ReceiptData, error) {
	q := r.client.Query(`
		SELECT id, transaction_id, storage_path, extracted_data, extraction_model, created_at
		FROM ` + r.table(photosTable) + `
		WHERE transaction_id = @transaction_id AND extracted_data IS NOT NULL
		ORDER BY created_at DESC
		LIMIT 1
	`)
	q.Parameters = []bigquery.QueryParameter{{Name: "transaction_id", Value: transactionID}}

	rows, err := readAll[PhotoRow](ctx, q)
	if err != nil {
		return nil, fmt.Errorf("LatestExtraction: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	data, err := decodeExtraction(rows[0].ExtractedData)
	if err != nil {
		return nil, fmt.Errorf("LatestExtraction: %w", err)
	}
	return data, nil
}
