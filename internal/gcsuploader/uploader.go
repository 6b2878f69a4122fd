package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ErrNoBucket is returned by UploadReceipt when no receipts bucket is configured.
var ErrNoBucket = errors.New("gcsuploader: receipts bucket not configured")

const uploadTimeout = 2 * time.Minute

// Service is the Google Cloud Storage implementation of StorageService. It
// holds a shared client for the life of the process.
type Service struct {
	client *storage.Client
	bucket string
	now    func() time.Time
}

// NewService creates a Service. bucket may be empty when only downloads are
// needed. It assumes Application Default Credentials are configured unless
// opts say otherwise.
func NewService(ctx context.Context, bucket string, opts ...option.ClientOption) (*Service, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Service{client: client, bucket: bucket, now: time.Now}, nil
}

// Close closes the storage client.
func (s *Service) Close() error {
	return s.client.Close()
}

// Bucket returns the configured receipts bucket.
func (s *Service) Bucket() string {
	return s.bucket
}

// UploadReceipt writes data to receipts/<transactionID>/<unixnano>-<name>.
func (s *Service) UploadReceipt(ctx context.Context, transactionID, filename, contentType string, data []byte) (string, error) {
	if s.bucket == "" {
		return "", ErrNoBucket
	}
	objectName := ReceiptObjectName(transactionID, filename, s.now())

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write receipt to GCS: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return "gs://" + s.bucket + "/" + objectName, nil
}

var unsafeObjectChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ReceiptObjectName builds the object key for a receipt image. The file name
// is reduced to its base and stripped of characters unsafe in object keys.
func ReceiptObjectName(transactionID, filename string, at time.Time) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = unsafeObjectChars.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == "/" {
		name = "receipt"
	}
	return fmt.Sprintf("receipts/%s/%d-%s", transactionID, at.UnixNano(), name)
}
