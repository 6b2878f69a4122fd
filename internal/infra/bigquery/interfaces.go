package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/dapfinance/internal/store"
	"google.golang.org/api/option"
)

const (
	// DefaultDatasetID is the dataset holding the finance tables.
	DefaultDatasetID = "finance"

	transactionsTable = "transactions"
	accountsTable     = "accounts"
	photosTable       = "receipt_photos"
)

// Repository is the BigQuery implementation of store.Repository. It holds a
// shared client to avoid creating a new connection for each operation.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewRepository creates a Repository with its own BigQuery client.
func NewRepository(ctx context.Context, projectID, datasetID string, opts ...option.ClientOption) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, datasetID), nil
}

// NewRepositoryWithClient creates a Repository over an existing client.
func NewRepositoryWithClient(client *bigquery.Client, datasetID string) *Repository {
	if datasetID == "" {
		datasetID = DefaultDatasetID
	}
	return &Repository{client: client, projectID: client.Project(), datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// table returns the fully qualified, backtick-quoted table name.
func (r *Repository) table(name string) string {
	return tableRef(r.projectID, r.datasetID, name)
}

func tableRef(projectID, datasetID, name string) string {
	return "`" + projectID + "." + datasetID + "." + name + "`"
}

// Ensure Repository implements the storage interfaces.
var (
	_ store.Repository    = (*Repository)(nil)
	_ store.BalanceLedger = (*Repository)(nil)
)

// duplicateMarker is raised by the insert script when the dedupe key exists.
const duplicateMarker = "duplicate dedupe_key"

func isDuplicateError(err error) bool {
	return err != nil && strings.Contains(err.Error(), duplicateMarker)
}
