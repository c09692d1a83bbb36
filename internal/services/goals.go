package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/docstore"

	"github.com/shopspring/decimal"
)

type Goals struct {
	ledger *Ledger
	repo   repo[core.Goal]
}

func NewGoals(l *Ledger) *Goals {
	return &Goals{ledger: l, repo: repo[core.Goal]{l.store, l.ledgerCollection(core.GoalsCollection)}}
}

func (s *Goals) Get(ctx context.Context, id string) (core.Goal, error) {
	return s.repo.get(ctx, id)
}

func (s *Goals) List(ctx context.Context) ([]core.Goal, error) {
	goals, err := s.repo.list(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(goals, func(i, j int) bool { return goals[i].Name < goals[j].Name })
	return goals, nil
}

func (s *Goals) Create(ctx context.Context, g core.Goal) (core.Goal, error) {
	g.Name = strings.TrimSpace(g.Name)
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	id, err := s.repo.insert(ctx, g)
	if err != nil {
		return core.Goal{}, err
	}
	g.ID = id
	return g, nil
}

func (s *Goals) Update(ctx context.Context, id string, g core.Goal) (core.Goal, error) {
	g.ID = id
	g.Name = strings.TrimSpace(g.Name)
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	if err := s.repo.put(ctx, id, g); err != nil {
		return core.Goal{}, fmt.Errorf("update goal %s: %w", id, err)
	}
	return g, nil
}

func (s *Goals) Delete(ctx context.Context, id string) error {
	if err := s.repo.remove(ctx, id); err != nil {
		return fmt.Errorf("delete goal %s: %w", id, err)
	}
	return nil
}

// AddFunds increments the goal's current amount. No account is touched.
func (s *Goals) AddFunds(ctx context.Context, id string, amount decimal.Decimal) (core.Goal, error) {
	if !amount.IsPositive() {
		return core.Goal{}, core.ErrInvalidAmount
	}
	var updated core.Goal
	err := s.ledger.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		g, err := docstore.GetAs[core.Goal](tx, s.repo.coll.Doc(id))
		if err != nil {
			return err
		}
		g.CurrentAmount = g.CurrentAmount.Add(amount)
		updated = g
		return tx.Update(s.repo.coll.Doc(id), map[string]any{"currentAmount": g.CurrentAmount})
	})
	if err != nil {
		return core.Goal{}, fmt.Errorf("add funds to goal %s: %w", id, err)
	}
	return updated, nil
}
