package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/docstore"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/sheets"
)

// LedgerWorker reacts to committed ledger changes: it mirrors transactions
// into the export sheet and re-checks the balances of the accounts an event
// names.
type LedgerWorker struct {
	store    docstore.Store
	exporter sheets.TransactionExporter
	scopes   *ScopeSet
}

// NewLedgerWorker creates a worker. exporter may be nil, which disables the
// spreadsheet mirror.
func NewLedgerWorker(store docstore.Store, exporter sheets.TransactionExporter, scopes *ScopeSet) *LedgerWorker {
	if scopes == nil {
		scopes = NewScopeSet()
	}
	return &LedgerWorker{
		store:    store,
		exporter: exporter,
		scopes:   scopes,
	}
}

// HandleLedgerEvent processes one event from the AMQP consumer. A returned
// error makes the consumer requeue the message, so only export failures are
// returned; reconcile problems are logged.
func (w *LedgerWorker) HandleLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	if !core.ValidUserID(ev.UserID) {
		slog.WarnContext(ctx, "Dropping ledger event with invalid user id",
			"event_id", ev.ID,
			"type", ev.Type)
		return nil
	}
	scope := docstore.Scope{AppID: ev.AppID, UserID: ev.UserID}
	if w.scopes.Add(scope) {
		slog.InfoContext(ctx, "Tracking new user scope", "user_id", scope.UserID)
	}

	slog.DebugContext(ctx, "Processing ledger event",
		"event_id", ev.ID,
		"type", ev.Type,
		"document_id", ev.DocumentID,
		"version", ev.Version)

	switch ev.Type {
	case amqp.TransactionCreated, amqp.TransactionUpdated, amqp.TransactionDeleted:
		if err := w.export(ctx, scope, ev); err != nil {
			return fmt.Errorf("export transaction %s: %w", ev.DocumentID, err)
		}
	}

	w.reconcile(ctx, scope, ev.AccountIDs)
	return nil
}

func (w *LedgerWorker) export(ctx context.Context, scope docstore.Scope, ev *amqp.LedgerEvent) error {
	if w.exporter == nil {
		return nil
	}

	if ev.Type != amqp.TransactionCreated {
		if err := w.exporter.Delete(ctx, ev.DocumentID); err != nil {
			return err
		}
		if ev.Type == amqp.TransactionDeleted {
			slog.InfoContext(ctx, "Removed transaction from export sheet", "transaction_id", ev.DocumentID)
			return nil
		}
	}

	t, err := w.transaction(ctx, scope, ev)
	if err != nil {
		return err
	}
	ref, err := w.exporter.Append(ctx, sheets.RowFromTransaction(t, w.accountName(ctx, scope, t.AccountID)))
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Exported transaction",
		"transaction_id", t.ID,
		"sheet_ref", ref)
	return nil
}

// transaction prefers the payload carried by the event and falls back to
// the stored document.
func (w *LedgerWorker) transaction(ctx context.Context, scope docstore.Scope, ev *amqp.LedgerEvent) (core.Transaction, error) {
	var t core.Transaction
	if len(ev.Transaction) > 0 {
		if err := json.Unmarshal(ev.Transaction, &t); err == nil && t.ID != "" {
			return t, nil
		}
	}
	doc, err := w.store.Get(ctx, scope.Collection(core.TransactionsCollection).Doc(ev.DocumentID))
	if err != nil {
		return t, err
	}
	return docstore.Decode[core.Transaction](doc)
}

func (w *LedgerWorker) accountName(ctx context.Context, scope docstore.Scope, accountID string) string {
	doc, err := w.store.Get(ctx, scope.Collection(core.AccountsCollection).Doc(accountID))
	if err != nil {
		return accountID
	}
	acc, err := docstore.Decode[core.Account](doc)
	if err != nil || acc.Name == "" {
		return accountID
	}
	return acc.Name
}

func (w *LedgerWorker) reconcile(ctx context.Context, scope docstore.Scope, accountIDs []string) {
	if len(accountIDs) == 0 {
		return
	}
	r := services.New(services.Deps{Store: w.store}, scope).Reconciler
	for _, id := range accountIDs {
		if _, err := r.Check(ctx, id); err != nil && !errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Reconcile check failed",
				log.FieldOperation, log.OpReconcile,
				log.FieldUserID, scope.UserID,
				log.FieldAccountID, id,
				log.FieldError, err)
		}
	}
}
