package wise

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/dapfinance/internal/logger"
	"github.com/shopspring/decimal"
)

// Institution is matched case-insensitively against account institutions.
const Institution = "wise"

// BalanceFetcher returns the current balances of a profile.
type BalanceFetcher interface {
	Balances(ctx context.Context) ([]Balance, error)
}

// BalanceStore overwrites stored account balances.
type BalanceStore interface {
	SetAccountBalance(ctx context.Context, institutionLike, currency string, balance decimal.Decimal, syncedAt time.Time) (int, error)
}

// SyncResult summarizes a balance sync.
type SyncResult struct {
	Count    int `json:"count"`
	Balances int `json:"balances"`
	Accounts int `json:"accounts"`
}

// SyncBalances overwrites every matching account balance with the value
// Wise reports for its currency.
func SyncBalances(ctx context.Context, fetcher BalanceFetcher, st BalanceStore, now time.Time) (*SyncResult, error) {
	log := logger.FromContext(ctx)

	balances, err := fetcher.Balances(ctx)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Balances: len(balances)}
	for _, b := range balances {
		n, err := st.SetAccountBalance(ctx, Institution, b.Currency, b.Amount, now)
		if err != nil {
			return nil, fmt.Errorf("SyncBalances: %s: %w", b.Currency, err)
		}
		log.Debug().Str("currency", b.Currency).Str("amount", b.Amount.String()).Int("accounts", n).Msg("Synced Wise balance")
		result.Count++
		result.Accounts += n
	}

	log.Info().Int("balances", result.Balances).Int("accounts", result.Accounts).Msg("Wise balance sync complete")
	return result, nil
}
