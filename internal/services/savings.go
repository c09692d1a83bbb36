package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"fintrack/internal/core"
)

// SavingsService is plain CRUD over savings pots; they never touch accounts.
type SavingsService struct {
	repo repo[core.Savings]
}

func NewSavings(l *Ledger) *SavingsService {
	return &SavingsService{repo: repo[core.Savings]{l.store, l.ledgerCollection(core.SavingsCollection)}}
}

func (s *SavingsService) Get(ctx context.Context, id string) (core.Savings, error) {
	return s.repo.get(ctx, id)
}

func (s *SavingsService) List(ctx context.Context) ([]core.Savings, error) {
	out, err := s.repo.list(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *SavingsService) Create(ctx context.Context, v core.Savings) (core.Savings, error) {
	v.Name = strings.TrimSpace(v.Name)
	v.Institution = strings.TrimSpace(v.Institution)
	if err := v.Validate(); err != nil {
		return core.Savings{}, err
	}
	id, err := s.repo.insert(ctx, v)
	if err != nil {
		return core.Savings{}, err
	}
	v.ID = id
	return v, nil
}

func (s *SavingsService) Update(ctx context.Context, id string, v core.Savings) (core.Savings, error) {
	v.ID = id
	v.Name = strings.TrimSpace(v.Name)
	v.Institution = strings.TrimSpace(v.Institution)
	if err := v.Validate(); err != nil {
		return core.Savings{}, err
	}
	if err := s.repo.put(ctx, id, v); err != nil {
		return core.Savings{}, fmt.Errorf("update savings %s: %w", id, err)
	}
	return v, nil
}

func (s *SavingsService) Delete(ctx context.Context, id string) error {
	if err := s.repo.remove(ctx, id); err != nil {
		return fmt.Errorf("delete savings %s: %w", id, err)
	}
	return nil
}
