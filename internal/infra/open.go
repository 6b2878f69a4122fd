// Package infra selects the storage backend named in the configuration.
package infra

import (
	"context"
	"fmt"

	"github.com/dvloznov/dapfinance/internal/config"
	"github.com/dvloznov/dapfinance/internal/infra/bigquery"
	"github.com/dvloznov/dapfinance/internal/infra/sqlite"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/dvloznov/dapfinance/internal/store/inmemory"
)

// OpenRepository opens the store.Repository for cfg.StoreBackend.
// The caller closes it.
func OpenRepository(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return db, nil
	case config.BackendBigQuery:
		repo, err := bigquery.NewRepository(ctx, cfg.GCPProject, cfg.BQDataset)
		if err != nil {
			return nil, fmt.Errorf("OpenRepository: %w", err)
		}
		return repo, nil
	case config.BackendMemory:
		return inmemory.NewStore(), nil
	default:
		return nil, fmt.Errorf("OpenRepository: unknown backend %q", cfg.StoreBackend)
	}
}
