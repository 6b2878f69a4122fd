package bigquery

import (
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/store"
	"github.com/shopspring/decimal"
)

func TestTransactionRow_RoundTrip(t *testing.T) {
	merchant := "Blue Bottle"
	reviewed := time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)
	tx := &domain.Transaction{
		ID:          "tx-1",
		DedupeKey:   "boa:boa:abc",
		Description: "BLUE BOTTLE",
		Amount:      decimal.RequireFromString("-4.50"),
		Currency:    "USD",
		Date:        "2026-03-07",
		Category:    "food_dining",
		Confidence:  0.9,
		Merchant:    &merchant,
		Source:      "boa",
		Status:      domain.StatusReviewed,
		CreatedAt:   time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC),
		ReviewedAt:  &reviewed,
	}

	row, err := toTransactionRow(tx)
	if err != nil {
		t.Fatalf("toTransactionRow: %v", err)
	}
	if row.Tags == nil {
		t.Error("tags should be an empty slice, not nil")
	}
	if row.AccountID.Valid || row.Note.Valid {
		t.Errorf("empty account/note should be NULL: %+v %+v", row.AccountID, row.Note)
	}

	got, err := row.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	if !got.Amount.Equal(tx.Amount) {
		t.Errorf("amount = %s, want %s", got.Amount, tx.Amount)
	}
	if got.Date != "2026-03-07" || got.Merchant == nil || *got.Merchant != merchant {
		t.Errorf("round trip = %+v", got)
	}
	if got.ReviewedAt == nil || !got.ReviewedAt.Equal(reviewed) || got.UpdatedAt != nil {
		t.Errorf("timestamps = %v / %v", got.ReviewedAt, got.UpdatedAt)
	}
}

func TestToTransactionRow_RejectsUnparsedDate(t *testing.T) {
	_, err := toTransactionRow(&domain.Transaction{Date: "pending", Amount: decimal.Zero})
	if err == nil {
		t.Fatal("expected error for non-ISO date")
	}
}

func TestRatToDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"-4.5", "-4.5"},
		{"1234.5678", "1234.5678"},
		{"0.000000001", "0.000000001"},
	}
	for _, tt := range tests {
		got, err := ratToDecimal(decimal.RequireFromString(tt.in).Rat())
		if err != nil {
			t.Fatalf("ratToDecimal(%s): %v", tt.in, err)
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ratToDecimal(%s) = %s", tt.in, got)
		}
	}

	if got, _ := ratToDecimal(nil); !got.IsZero() {
		t.Errorf("nil rat = %s, want 0", got)
	}
}

func TestIsDuplicateError(t *testing.T) {
	if !isDuplicateError(errors.New("job error: Query error: duplicate dedupe_key at [3:4]")) {
		t.Error("expected raised marker to be detected")
	}
	if isDuplicateError(errors.New("job error: access denied")) || isDuplicateError(nil) {
		t.Error("unexpected duplicate detection")
	}
}

func TestScripts(t *testing.T) {
	tx := tableRef("p", "finance", "transactions")
	acc := tableRef("p", "finance", "accounts")
	if tx != "`p.finance.transactions`" {
		t.Fatalf("tableRef = %s", tx)
	}

	insert := insertScript(tx)
	if !strings.Contains(insert, "RAISE USING MESSAGE = 'duplicate dedupe_key'") || !strings.Contains(insert, "INSERT INTO "+tx) {
		t.Errorf("insert script:\n%s", insert)
	}

	ledger := ledgerScript(tx, acc)
	for _, want := range []string{"BEGIN TRANSACTION", "current_balance = current_balance + @amount", "COMMIT TRANSACTION"} {
		if !strings.Contains(ledger, want) {
			t.Errorf("ledger script missing %q", want)
		}
	}
}

func paramNames(params []bigquery.QueryParameter) []string {
	var names []string
	for _, p := range params {
		names = append(names, p.Name)
	}
	return names
}

func TestBuildListQuery(t *testing.T) {
	query, params := buildListQuery("`p.d.transactions`", store.TransactionFilter{})
	if strings.Contains(query, "WHERE") || strings.Contains(query, "LIMIT") || len(params) != 0 {
		t.Errorf("unfiltered query = %s %v", query, params)
	}

	query, params = buildListQuery("`p.d.transactions`", store.TransactionFilter{
		Status:    domain.StatusPending,
		Source:    "wise",
		StartDate: "2026-01-01",
		Offset:    20,
	})
	wantWhere := "WHERE status = @status AND source = @source AND transaction_date >= SAFE.PARSE_DATE('%Y-%m-%d', @start_date)"
	if !strings.Contains(query, wantWhere) {
		t.Errorf("query = %s", query)
	}
	if !strings.Contains(query, "LIMIT 9223372036854775807 OFFSET @offset") {
		t.Errorf("offset without limit = %s", query)
	}
	if got := strings.Join(paramNames(params), ","); got != "status,source,start_date,offset" {
		t.Errorf("params = %s", got)
	}

	query, _ = buildListQuery("`p.d.transactions`", store.TransactionFilter{Limit: 5, Offset: 5})
	if !strings.HasSuffix(query, "LIMIT @limit OFFSET @offset") {
		t.Errorf("limit+offset = %s", query)
	}
}

func TestBuildUpdate(t *testing.T) {
	cat := "travel"
	status := domain.StatusReviewed
	sets, params := buildUpdate("tx-1", store.TransactionUpdate{Category: &cat, Status: &status, Tags: []string{}}, time.Now())

	if sets != "updated_at = @updated_at, category = @category, tags = @tags, status = @status" {
		t.Errorf("sets = %s", sets)
	}
	if got := strings.Join(paramNames(params), ","); got != "id,updated_at,category,tags,status" {
		t.Errorf("params = %s", got)
	}
}
