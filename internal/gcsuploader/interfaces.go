package gcsuploader

import (
	"context"
)

// StorageService provides the object storage operations used by CSV import
// jobs and receipt photo uploads. This interface enables mocking and testing.
type StorageService interface {
	// FetchFromGCS downloads file bytes from the given gs:// URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)

	// UploadReceipt stores a receipt image for a transaction and returns its
	// gs:// URI.
	UploadReceipt(ctx context.Context, transactionID, filename, contentType string, data []byte) (string, error)
}

// Ensure Service implements StorageService.
var _ StorageService = (*Service)(nil)
