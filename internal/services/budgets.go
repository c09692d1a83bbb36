package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/docstore"
)

// Budgets manages spending limits. Spend is never stored; it is derived
// from the month's expense transactions on every read.
type Budgets struct {
	ledger *Ledger
	repo   repo[core.Budget]
}

func NewBudgets(l *Ledger) *Budgets {
	return &Budgets{ledger: l, repo: repo[core.Budget]{l.store, l.ledgerCollection(core.BudgetsCollection)}}
}

func (s *Budgets) Get(ctx context.Context, id string) (core.Budget, error) {
	return s.repo.get(ctx, id)
}

func (s *Budgets) List(ctx context.Context) ([]core.Budget, error) {
	budgets, err := s.repo.list(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(budgets, func(i, j int) bool { return budgets[i].Name < budgets[j].Name })
	return budgets, nil
}

func (s *Budgets) Create(ctx context.Context, b core.Budget) (core.Budget, error) {
	b.Name = strings.TrimSpace(b.Name)
	b.Category = strings.TrimSpace(b.Category)
	b.ResetAt = nil
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	id, err := s.repo.insert(ctx, b)
	if err != nil {
		return core.Budget{}, err
	}
	b.ID = id
	return b, nil
}

func (s *Budgets) Update(ctx context.Context, id string, b core.Budget) (core.Budget, error) {
	b.ID = id
	b.Name = strings.TrimSpace(b.Name)
	b.Category = strings.TrimSpace(b.Category)
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	var updated core.Budget
	err := s.ledger.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		cur, err := docstore.GetAs[core.Budget](tx, s.repo.coll.Doc(id))
		if err != nil {
			return err
		}
		b.ResetAt = cur.ResetAt
		updated = b
		return tx.Set(s.repo.coll.Doc(id), b)
	})
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget %s: %w", id, err)
	}
	return updated, nil
}

func (s *Budgets) Delete(ctx context.Context, id string) error {
	if err := s.repo.remove(ctx, id); err != nil {
		return fmt.Errorf("delete budget %s: %w", id, err)
	}
	return nil
}

// ResetBudgets restarts the spend window of every budget at the current
// time, in one atomic batch. It returns the number of budgets reset.
func (s *Budgets) ResetBudgets(ctx context.Context) (int, error) {
	now := s.ledger.now()
	var n int
	err := s.ledger.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		budgets, err := docstore.ListAs[core.Budget](tx, s.repo.coll)
		if err != nil {
			return err
		}
		b := docstore.NewBatch()
		for _, budget := range budgets {
			b.Update(s.repo.coll.Doc(budget.ID), map[string]any{"resetAt": now})
		}
		n = b.Len()
		return b.Apply(tx)
	})
	if err != nil {
		return 0, fmt.Errorf("reset budgets: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Budgets reset", "count", n, "reset_at", now)
	}
	return n, nil
}

// Statuses reports spend against limit for every budget in the current month.
func (s *Budgets) Statuses(ctx context.Context) ([]core.BudgetStatus, error) {
	budgets, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	txs, err := repo[core.Transaction]{s.ledger.store, s.ledger.transactions}.list(ctx)
	if err != nil {
		return nil, err
	}
	return BudgetStatuses(budgets, txs, s.ledger.now()), nil
}

func (l *Ledger) ledgerCollection(name string) docstore.Collection {
	return l.scope.Collection(name)
}
