// Package state keeps a live, typed mirror of one user's collections, fed by
// document store subscriptions. Readers get consistent copies; observers are
// told which collection changed.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/docstore"

	"golang.org/x/sync/errgroup"
)

// Collections mirrored by a View.
var Collections = []string{
	core.AccountsCollection,
	core.TransactionsCollection,
	core.BillsCollection,
	core.BudgetsCollection,
	core.GoalsCollection,
	core.SavingsCollection,
}

// View holds the latest snapshot of every collection of one user.
type View struct {
	scope docstore.Scope

	mu           sync.RWMutex
	accounts     []core.Account
	transactions []core.Transaction
	bills        []core.Bill
	budgets      []core.Budget
	goals        []core.Goal
	savings      []core.Savings
	loaded       map[string]bool
	generation   uint64
	observers    []func(collection string)

	ready     chan struct{}
	readyOnce sync.Once
	cancel    context.CancelFunc
	group     *errgroup.Group
}

// Start subscribes to every collection of scope. The View stays live until
// Close is called or ctx ends.
func Start(ctx context.Context, store docstore.Store, scope docstore.Scope) (*View, error) {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	v := &View{
		scope:  scope,
		loaded: make(map[string]bool, len(Collections)),
		ready:  make(chan struct{}),
		cancel: cancel,
		group:  g,
	}

	for _, name := range Collections {
		ch, err := store.Subscribe(gctx, scope.Collection(name))
		if err != nil {
			cancel()
			g.Wait()
			return nil, fmt.Errorf("subscribe %s: %w", name, err)
		}
		g.Go(func() error {
			for snap := range ch {
				if err := v.apply(name, snap); err != nil {
					slog.ErrorContext(gctx, "Dropping undecodable snapshot",
						"user_id", scope.UserID,
						"collection", name,
						"error", err)
				}
			}
			return nil
		})
	}
	return v, nil
}

func (v *View) Scope() docstore.Scope { return v.scope }

// Ready is closed once every collection has delivered its first snapshot.
func (v *View) Ready() <-chan struct{} { return v.ready }

// WaitReady blocks until Ready or ctx ends.
func (v *View) WaitReady(ctx context.Context) error {
	select {
	case <-v.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Generation increases with every applied snapshot.
func (v *View) Generation() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.generation
}

// OnChange registers fn to be called, outside the view lock, after a
// collection snapshot is applied.
func (v *View) OnChange(fn func(collection string)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observers = append(v.observers, fn)
}

// Close stops the subscriptions and waits for them to drain.
func (v *View) Close() error {
	v.cancel()
	return v.group.Wait()
}

func (v *View) apply(name string, snap docstore.Snapshot) error {
	v.mu.Lock()
	var err error
	switch name {
	case core.AccountsCollection:
		err = decodeInto(&v.accounts, snap)
	case core.TransactionsCollection:
		err = decodeInto(&v.transactions, snap)
	case core.BillsCollection:
		err = decodeInto(&v.bills, snap)
	case core.BudgetsCollection:
		err = decodeInto(&v.budgets, snap)
	case core.GoalsCollection:
		err = decodeInto(&v.goals, snap)
	case core.SavingsCollection:
		err = decodeInto(&v.savings, snap)
	}
	if err != nil {
		v.mu.Unlock()
		return err
	}
	v.loaded[name] = true
	v.generation++
	allLoaded := len(v.loaded) == len(Collections)
	observers := append(([]func(string))(nil), v.observers...)
	v.mu.Unlock()

	if allLoaded {
		v.readyOnce.Do(func() { close(v.ready) })
	}
	for _, fn := range observers {
		fn(name)
	}
	return nil
}

func decodeInto[T any](dst *[]T, snap docstore.Snapshot) error {
	items, err := docstore.DecodeAll[T](snap.Documents)
	if err != nil {
		return err
	}
	*dst = items
	return nil
}

func (v *View) Accounts() []core.Account {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]core.Account(nil), v.accounts...)
}

func (v *View) Transactions() []core.Transaction {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]core.Transaction(nil), v.transactions...)
}

func (v *View) Bills() []core.Bill {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]core.Bill(nil), v.bills...)
}

func (v *View) Budgets() []core.Budget {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]core.Budget(nil), v.budgets...)
}

func (v *View) Goals() []core.Goal {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]core.Goal(nil), v.goals...)
}

func (v *View) Savings() []core.Savings {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]core.Savings(nil), v.savings...)
}
