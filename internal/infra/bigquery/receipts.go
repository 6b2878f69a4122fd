package bigquery

import (
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/dapfinance/internal/domain"
)

// PhotoRow represents a row in the receipt_photos table.
type PhotoRow struct {
	ID              string              `bigquery:"id"`
	TransactionID   string              `bigquery:"transaction_id"`
	StoragePath     string              `bigquery:"storage_path"`
	ExtractedData   bigquery.NullJSON   `bigquery:"extracted_data"`
	ExtractionModel bigquery.NullString `bigquery:"extraction_model"`
	CreatedAt       time.Time           `bigquery:"created_at"`
}

func toPhotoRow(photo *domain.ReceiptPhoto) (*PhotoRow, error) {
	row := &PhotoRow{
		ID:              photo.ID,
		TransactionID:   photo.TransactionID,
		StoragePath:     photo.StoragePath,
		ExtractionModel: nullStringValue(photo.ExtractionModel),
		CreatedAt:       photo.CreatedAt,
	}
	if photo.ExtractedData != nil {
		b, err := json.Marshal(photo.ExtractedData)
		if err != nil {
			return nil, fmt.Errorf("marshal extracted data: %w", err)
		}
		row.ExtractedData = bigquery.NullJSON{JSONVal: string(b), Valid: true}
	}
	return row, nil
}

// decodeExtraction parses a stored extracted_data value; NULL yields nil.
func decodeExtraction(v bigquery.NullJSON) (*domain.ReceiptData, error) {
	if !v.Valid {
		return nil, nil
	}
	var data domain.ReceiptData
	if err := json.Unmarshal([]byte(v.JSONVal), &data); err != nil {
		return nil, fmt.Errorf("unmarshal extracted data: %w", err)
	}
	return &data, nil
}
