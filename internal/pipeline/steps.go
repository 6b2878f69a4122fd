package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/dapfinance/internal/domain"
	"github.com/dvloznov/dapfinance/internal/logger"
	"github.com/dvloznov/dapfinance/internal/store"
)

// PipelineStep represents a single step in the per-transaction ingestion pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state for one transaction as it moves
// through the steps.
type PipelineState struct {
	Source      string
	DedupeScope string // account id component of the dedupe key
	ExternalID  string // provider transaction id, may be empty
	AccountID   string // account to link; set by ResolveAccountStep for webhooks
	Entry       domain.NormalizedTransaction

	// ApplyBalance adds the amount to AccountID's balance on creation.
	ApplyBalance bool

	DedupeKey   string
	Duplicate   bool
	Transaction *domain.Transaction
}

// Step 1: DedupeKeyStep computes the dedupe key.
type DedupeKeyStep struct{}

func (s *DedupeKeyStep) Execute(ctx context.Context, state *PipelineState) error {
	e := state.Entry
	state.DedupeKey = DedupeKey(state.DedupeScope, state.ExternalID, e.Amount, e.Date, e.Description, state.Source)
	return nil
}

// Step 2: DedupeCheckStep stops processing when the key is already stored.
type DedupeCheckStep struct {
	Repo Repository
}

func (s *DedupeCheckStep) Execute(ctx context.Context, state *PipelineState) error {
	existing, err := s.Repo.FindTransactionByDedupeKey(ctx, state.DedupeKey)
	if err != nil {
		return fmt.Errorf("DedupeCheckStep: %w", err)
	}
	if existing != nil {
		state.Duplicate = true
		state.Transaction = existing
	}
	return nil
}

// Step 3 (webhook only): ResolveAccountStep finds the owning account by
// institution and currency. No match leaves the transaction unlinked.
type ResolveAccountStep struct {
	Repo        Repository
	Institution string
}

func (s *ResolveAccountStep) Execute(ctx context.Context, state *PipelineState) error {
	acc, err := s.Repo.FindAccountByInstitutionAndCurrency(ctx, s.Institution, state.Entry.Currency)
	if err != nil {
		return fmt.Errorf("ResolveAccountStep: %w", err)
	}
	if acc == nil {
		log := logger.FromContext(ctx)
		log.Info().
			Str("institution", s.Institution).
			Str("currency", state.Entry.Currency).
			Msg("no matching account, transaction will be orphaned")
		return nil
	}
	state.AccountID = acc.ID
	state.ApplyBalance = true
	return nil
}

// Step 4: CategorizeStep builds the transaction and assigns its category.
// A failed categorization stores "uncategorized".
type CategorizeStep struct {
	Categorizer Categorizer
}

func (s *CategorizeStep) Execute(ctx context.Context, state *PipelineState) error {
	e := state.Entry
	tx := &domain.Transaction{
		DedupeKey:   state.DedupeKey,
		Description: e.Description,
		Amount:      e.Amount,
		Currency:    e.Currency,
		Date:        e.Date,
		Category:    domain.CategoryUncategorized,
		Source:      state.Source,
		Status:      domain.StatusPending,
		AccountID:   state.AccountID,
	}

	if s.Categorizer != nil {
		res := s.Categorizer.Categorize(ctx, e.Description, e.Amount, e.Currency, e.Date)
		if !res.Fallback {
			tx.Category = res.Value.Category
			tx.Confidence = res.Value.Confidence
			tx.Merchant = res.Value.Merchant
		}
	}

	state.Transaction = tx
	return nil
}

// Step 5: PersistStep writes the transaction and, when ApplyBalance is set,
// adjusts the account balance. A dedupe key collision marks the state as a
// duplicate.
type PersistStep struct {
	Repo Repository
	Now  func() time.Time
}

func (s *PersistStep) Execute(ctx context.Context, state *PipelineState) error {
	tx := state.Transaction
	if s.Now != nil {
		tx.CreatedAt = s.Now().UTC()
	}

	created, err := s.create(ctx, state)
	if errors.Is(err, store.ErrDuplicateDedupeKey) {
		existing, findErr := s.Repo.FindTransactionByDedupeKey(ctx, tx.DedupeKey)
		if findErr != nil {
			return fmt.Errorf("PersistStep: lookup after duplicate: %w", findErr)
		}
		if existing == nil {
			return fmt.Errorf("PersistStep: key %s reported duplicate but not found", tx.DedupeKey)
		}
		state.Duplicate = true
		state.Transaction = existing
		return nil
	}
	if err != nil {
		return fmt.Errorf("PersistStep: %w", err)
	}

	state.Transaction = created
	return nil
}

func (s *PersistStep) create(ctx context.Context, state *PipelineState) (*domain.Transaction, error) {
	tx := state.Transaction
	if !state.ApplyBalance || tx.AccountID == "" {
		return s.Repo.CreateTransaction(ctx, tx)
	}

	if ledger, ok := s.Repo.(store.BalanceLedger); ok {
		return ledger.CreateTransactionWithBalance(ctx, tx)
	}

	created, err := s.Repo.CreateTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.IncrementAccountBalance(ctx, tx.AccountID, tx.Amount); err != nil {
		return nil, fmt.Errorf("increment balance of account %s: %w", tx.AccountID, err)
	}
	return created, nil
}

// Pipeline executes a sequence of steps in order, stopping early once the
// state is marked duplicate.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs the steps sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
		if state.Duplicate {
			return nil
		}
	}
	return nil
}

// NewCSVPipeline creates the pipeline for rows of an imported file.
func NewCSVPipeline(repo Repository, categorizer Categorizer, now func() time.Time) *Pipeline {
	return NewPipeline(
		&DedupeKeyStep{},
		&DedupeCheckStep{Repo: repo},
		&CategorizeStep{Categorizer: categorizer},
		&PersistStep{Repo: repo, Now: now},
	)
}

// NewWebhookPipeline creates the pipeline for balance-bearing webhook events.
func NewWebhookPipeline(repo Repository, categorizer Categorizer, now func() time.Time) *Pipeline {
	return NewPipeline(
		&DedupeKeyStep{},
		&DedupeCheckStep{Repo: repo},
		&ResolveAccountStep{Repo: repo, Institution: WebhookInstitution},
		&CategorizeStep{Categorizer: categorizer},
		&PersistStep{Repo: repo, Now: now},
	)
}
