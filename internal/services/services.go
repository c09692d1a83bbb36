// Package services holds the ledger and the workflows layered on top of it.
//
// Every service is bound to one user's scope. Multi-document changes run
// inside a single docstore transaction, so balances are always read fresh
// and a change and its balance effect commit together or not at all.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/docstore"
)

// EventPublisher receives ledger events after their change has committed.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// Deps are the collaborators shared by every service.
type Deps struct {
	Store docstore.Store
	// Events is optional; nil disables event publishing.
	Events EventPublisher
	// Now defaults to time.Now.
	Now func() time.Time
}

// Services bundles the services bound to one user.
type Services struct {
	Ledger     *Ledger
	Bills      *Bills
	Budgets    *Budgets
	Goals      *Goals
	Savings    *SavingsService
	Reconciler *Reconciler
}

func New(d Deps, scope docstore.Scope) *Services {
	l := NewLedger(d, scope)
	return &Services{
		Ledger:     l,
		Bills:      NewBills(l),
		Budgets:    NewBudgets(l),
		Goals:      NewGoals(l),
		Savings:    NewSavings(l),
		Reconciler: NewReconciler(l),
	}
}

func (l *Ledger) publish(ctx context.Context, ev *amqp.LedgerEvent) {
	if l.events == nil {
		return
	}
	if err := l.events.PublishLedgerEvent(ctx, ev); err != nil {
		// The change is committed; consumers catch up on the next sweep.
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", ev.Type,
			"document_id", ev.DocumentID,
			"error", err)
	}
}

func (l *Ledger) event(t amqp.EventType, collection, documentID string, accountIDs ...string) *amqp.LedgerEvent {
	return amqp.NewLedgerEvent(t, l.scope.AppID, l.scope.UserID, collection, documentID, accountIDs...)
}

func withTransaction(ev *amqp.LedgerEvent, v any) *amqp.LedgerEvent {
	if b, err := json.Marshal(v); err == nil {
		ev.Transaction = b
	}
	return ev
}

// repo is typed CRUD over one collection.
type repo[T any] struct {
	store docstore.Store
	coll  docstore.Collection
}

func (r repo[T]) get(ctx context.Context, id string) (T, error) {
	doc, err := r.store.Get(ctx, r.coll.Doc(id))
	if err != nil {
		var zero T
		return zero, err
	}
	return docstore.Decode[T](doc)
}

func (r repo[T]) list(ctx context.Context) ([]T, error) {
	docs, err := r.store.List(ctx, r.coll)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.coll.Name, err)
	}
	return docstore.DecodeAll[T](docs)
}

func (r repo[T]) insert(ctx context.Context, v T) (string, error) {
	id, err := r.store.Insert(ctx, r.coll, v)
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", r.coll.Name, err)
	}
	return id, nil
}

// put overwrites an existing document.
func (r repo[T]) put(ctx context.Context, id string, v T) error {
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(r.coll.Doc(id)); err != nil {
			return err
		}
		return tx.Set(r.coll.Doc(id), v)
	})
}

// remove deletes an existing document; a missing one is ErrNotFound.
func (r repo[T]) remove(ctx context.Context, id string) error {
	return r.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(r.coll.Doc(id)); err != nil {
			return err
		}
		return tx.Delete(r.coll.Doc(id))
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, docstore.ErrNotFound)
}
