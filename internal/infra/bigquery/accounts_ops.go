package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, name, institution, currency, current_balance, last_synced_at, created_at`

func (r *Repository) queryAccounts(ctx context.Context, query string, params []bigquery.QueryParameter) ([]*domain.Account, error) {
	q := r.client.Query(query)
	q.Parameters = params

	rows, err := readAll[AccountRow](ctx, q)
	if err != nil {
		return nil, err
	}

	result := make([]*domain.Account, 0, len(rows))
	for _, row := range rows {
		acc, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, acc)
	}
	return result, nil
}

// FindAccountByInstitutionAndCurrency returns the oldest account matching
// institution and currency case-insensitively, or nil, nil.
func (r *Repository) FindAccountByInstitutionAndCurrency(ctx context.Context, institution, currency string) (*domain.Account, error) {
	accs, err := r.queryAccounts(ctx, `
		SELECT `+accountColumns+` FROM `+r.table(accountsTable)+`
		WHERE LOWER(institution) = LOWER(@institution) AND UPPER(currency) = UPPER(@currency)
		ORDER BY created_at, id
		LIMIT 1
	`, []bigquery.QueryParameter{
		{Name: "institution", Value: institution},
		{Name: "currency", Value: currency},
	})
	if err != nil {
		return nil, fmt.Errorf("FindAccountByInstitutionAndCurrency: %w", err)
	}
	if len(accs) == 0 {
		return nil, nil
	}
	return accs[0], nil
}

// IncrementAccountBalance adds delta in a single relative UPDATE.
func (r *Repository) IncrementAccountBalance(ctx context.Context, accountID string, delta decimal.Decimal) error {
	q := r.client.Query(`
		UPDATE ` + r.table(accountsTable) + `
		SET current_balance = current_balance + @delta
		WHERE id = @id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "delta", Value: delta.Rat()},
		{Name: "id", Value: accountID},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return fmt.Errorf("IncrementAccountBalance: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", accountID, store.ErrNotFound)
	}
	return nil
}

// SetAccountBalance overwrites balances of accounts whose institution
// contains institutionLike in the given currency.
func (r *Repository) SetAccountBalance(ctx context.Context, institutionLike, currency string, balance decimal.Decimal, syncedAt time.Time) (int, error) {
	q := r.client.Query(`
		UPDATE ` + r.table(accountsTable) + `
		SET current_balance = @balance, last_synced_at = @synced_at
		WHERE STRPOS(LOWER(institution), @institution) > 0 AND UPPER(currency) = UPPER(@currency)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "balance", Value: balance.Rat()},
		{Name: "synced_at", Value: syncedAt},
		{Name: "institution", Value: strings.ToLower(institutionLike)},
		{Name: "currency", Value: currency},
	}

	n, err := runDML(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("SetAccountBalance: %w", err)
	}
	return int(n), nil
}

func (r *Repository) CreateAccount(ctx context.Context, acc *domain.Account) (*domain.Account, error) {
	created := *acc
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	if created.Currency == "" {
		created.Currency = domain.DefaultCurrency
	}
	row := toAccountRow(&created)

	q := r.client.Query(`
		INSERT INTO ` + r.table(accountsTable) + ` (` + accountColumns + `)
		VALUES (@id, @name, @institution, @currency, @current_balance, @last_synced_at, @created_at)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "id", Value: row.ID},
		{Name: "name", Value: row.Name},
		{Name: "institution", Value: row.Institution},
		{Name: "currency", Value: row.Currency},
		{Name: "current_balance", Value: row.CurrentBalance},
		{Name: "last_synced_at", Value: row.LastSyncedAt},
		{Name: "created_at", Value: row.CreatedAt},
	}

	if _, err := runDML(ctx, q); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}
	return &created, nil
}

func (r *Repository) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	accs, err := r.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM `+r.table(accountsTable)+` WHERE id = @id`,
		[]bigquery.QueryParameter{{Name: "id", Value: id}})
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	if len(accs) == 0 {
		return nil, store.ErrNotFound
	}
	return accs[0], nil
}

func (r *Repository) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	accs, err := r.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM `+r.table(accountsTable)+` ORDER BY created_at, id`, nil)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	return accs, nil
}
