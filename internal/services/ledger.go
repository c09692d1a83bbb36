package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/docstore"

	"github.com/shopspring/decimal"
)

// Ledger keeps every account balance equal to its opening balance plus the
// signed sum of its transactions.
type Ledger struct {
	store  docstore.Store
	scope  docstore.Scope
	events EventPublisher
	now    func() time.Time

	accounts     docstore.Collection
	transactions docstore.Collection
	bills        docstore.Collection
}

func NewLedger(d Deps, scope docstore.Scope) *Ledger {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		store:        d.Store,
		scope:        scope,
		events:       d.Events,
		now:          now,
		accounts:     scope.Collection(core.AccountsCollection),
		transactions: scope.Collection(core.TransactionsCollection),
		bills:        scope.Collection(core.BillsCollection),
	}
}

func (l *Ledger) Scope() docstore.Scope { return l.scope }

func (l *Ledger) CreateAccount(ctx context.Context, name string, openingBalance decimal.Decimal) (core.Account, error) {
	acc := core.Account{
		ID:             l.store.NewID(),
		Name:           strings.TrimSpace(name),
		Balance:        openingBalance,
		OpeningBalance: openingBalance,
		CreatedAt:      l.now(),
	}
	if err := acc.Validate(); err != nil {
		return core.Account{}, err
	}
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(l.accounts.Doc(acc.ID), acc)
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	l.publish(ctx, l.event(amqp.AccountCreated, core.AccountsCollection, acc.ID, acc.ID))
	return acc, nil
}

// UpdateAccount renames the account and moves its baseline. The running
// balance shifts by the same delta so the ledger invariant still holds.
func (l *Ledger) UpdateAccount(ctx context.Context, id, name string, openingBalance decimal.Decimal) (core.Account, error) {
	var updated core.Account
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		acc, err := docstore.GetAs[core.Account](tx, l.accounts.Doc(id))
		if err != nil {
			return err
		}
		acc.Name = strings.TrimSpace(name)
		if err := acc.Validate(); err != nil {
			return err
		}
		acc.Balance = acc.Balance.Add(openingBalance.Sub(acc.OpeningBalance))
		acc.OpeningBalance = openingBalance
		updated = acc
		return tx.Set(l.accounts.Doc(id), acc)
	})
	if err != nil {
		return core.Account{}, fmt.Errorf("update account %s: %w", id, err)
	}
	l.publish(ctx, l.event(amqp.AccountUpdated, core.AccountsCollection, id, id))
	return updated, nil
}

func (l *Ledger) GetAccount(ctx context.Context, id string) (core.Account, error) {
	return repo[core.Account]{l.store, l.accounts}.get(ctx, id)
}

func (l *Ledger) ListAccounts(ctx context.Context) ([]core.Account, error) {
	accounts, err := repo[core.Account]{l.store, l.accounts}.list(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(accounts, func(i, j int) bool { return accounts[i].CreatedAt.Before(accounts[j].CreatedAt) })
	return accounts, nil
}

// DeleteAccount removes the account with every transaction and bill that
// references it, in one atomic commit. Balances are not reverted. A bill on
// another account whose payment lived here becomes unpaid.
func (l *Ledger) DeleteAccount(ctx context.Context, id string) error {
	var (
		removedTx    []core.Transaction
		removedBills int
		unpaidBills  []core.Bill
	)
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		removedTx, removedBills, unpaidBills = nil, 0, nil
		if _, err := tx.Get(l.accounts.Doc(id)); err != nil {
			return err
		}
		txs, err := docstore.ListAs[core.Transaction](tx, l.transactions)
		if err != nil {
			return err
		}
		gone := make(map[string]bool)
		for _, t := range txs {
			if t.AccountID != id {
				continue
			}
			if err := tx.Delete(l.transactions.Doc(t.ID)); err != nil {
				return err
			}
			removedTx = append(removedTx, t)
			gone[t.ID] = true
		}
		bills, err := docstore.ListAs[core.Bill](tx, l.bills)
		if err != nil {
			return err
		}
		for _, b := range bills {
			switch {
			case b.AccountID == id:
				if err := tx.Delete(l.bills.Doc(b.ID)); err != nil {
					return err
				}
				removedBills++
			case b.TransactionID != "" && gone[b.TransactionID]:
				b.IsPaid = false
				b.TransactionID = ""
				if err := tx.Set(l.bills.Doc(b.ID), b); err != nil {
					return err
				}
				unpaidBills = append(unpaidBills, b)
			}
		}
		return tx.Delete(l.accounts.Doc(id))
	})
	if err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}

	slog.InfoContext(ctx, "Account deleted",
		"account_id", id,
		"transactions_removed", len(removedTx),
		"bills_removed", removedBills,
		"bills_unpaid", len(unpaidBills))
	for _, t := range removedTx {
		l.publish(ctx, withTransaction(l.event(amqp.TransactionDeleted, core.TransactionsCollection, t.ID), t))
	}
	for _, b := range unpaidBills {
		l.publish(ctx, l.event(amqp.BillUnpaid, core.BillsCollection, b.ID, b.AccountID))
	}
	l.publish(ctx, l.event(amqp.AccountDeleted, core.AccountsCollection, id, id))
	return nil
}

// CreateTransaction records a transaction and applies it to its account.
func (l *Ledger) CreateTransaction(ctx context.Context, in core.TransactionInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}
	t := newTransaction(l.store.NewID(), in, l.now())
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return l.insertTransaction(tx, t)
	})
	if err != nil {
		return "", fmt.Errorf("create transaction: %w", err)
	}
	l.publish(ctx, withTransaction(l.event(amqp.TransactionCreated, core.TransactionsCollection, t.ID, t.AccountID), t))
	return t.ID, nil
}

// UpdateTransaction reverts the old transaction on its old account and
// applies the new values on the (possibly different) new account. A bill
// payment stays on the bill's account.
func (l *Ledger) UpdateTransaction(ctx context.Context, id string, in core.TransactionInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	var old, updated core.Transaction
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var err error
		old, err = docstore.GetAs[core.Transaction](tx, l.transactions.Doc(id))
		if err != nil {
			return err
		}
		updated = newTransaction(id, in, old.CreatedAt)
		updated.BillID = old.BillID
		if old.BillID != "" && updated.AccountID != old.AccountID {
			if _, err := tx.Get(l.bills.Doc(old.BillID)); err == nil {
				return core.ErrLinkedToBill
			} else if !isNotFound(err) {
				return err
			}
		}

		if old.AccountID == updated.AccountID {
			if err := l.adjustBalance(tx, old.AccountID, updated.Signed().Sub(old.Signed())); err != nil {
				return err
			}
		} else {
			if err := l.adjustBalance(tx, old.AccountID, old.Signed().Neg()); err != nil {
				return err
			}
			if err := l.adjustBalance(tx, updated.AccountID, updated.Signed()); err != nil {
				return err
			}
		}
		return tx.Set(l.transactions.Doc(id), updated)
	})
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}
	accounts := []string{updated.AccountID}
	if old.AccountID != updated.AccountID {
		accounts = append(accounts, old.AccountID)
	}
	l.publish(ctx, withTransaction(l.event(amqp.TransactionUpdated, core.TransactionsCollection, id, accounts...), updated))
	return nil
}

// DeleteTransaction reverts a transaction's effect and removes it. A
// transaction created by paying a bill can only be removed through the bill.
func (l *Ledger) DeleteTransaction(ctx context.Context, id string) error {
	var removed core.Transaction
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		t, err := docstore.GetAs[core.Transaction](tx, l.transactions.Doc(id))
		if err != nil {
			return err
		}
		if t.BillID != "" {
			if _, err := tx.Get(l.bills.Doc(t.BillID)); err == nil {
				return core.ErrLinkedToBill
			} else if !isNotFound(err) {
				return err
			}
		}
		removed = t
		return l.removeTransaction(tx, t)
	})
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	l.publish(ctx, withTransaction(l.event(amqp.TransactionDeleted, core.TransactionsCollection, id, removed.AccountID), removed))
	return nil
}

func (l *Ledger) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return repo[core.Transaction]{l.store, l.transactions}.get(ctx, id)
}

// ListTransactions returns all transactions, newest first.
func (l *Ledger) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	txs, err := repo[core.Transaction]{l.store, l.transactions}.list(ctx)
	if err != nil {
		return nil, err
	}
	SortTransactionsNewestFirst(txs)
	return txs, nil
}

func newTransaction(id string, in core.TransactionInput, createdAt time.Time) core.Transaction {
	return core.Transaction{
		ID:          id,
		Type:        in.Type,
		Amount:      in.Amount,
		Category:    strings.TrimSpace(in.Category),
		Date:        in.Date,
		Description: strings.TrimSpace(in.Description),
		AccountID:   in.AccountID,
		CreatedAt:   createdAt,
	}
}

// insertTransaction writes t and applies its signed amount inside tx.
func (l *Ledger) insertTransaction(tx docstore.Tx, t core.Transaction) error {
	if err := l.adjustBalance(tx, t.AccountID, t.Signed()); err != nil {
		return err
	}
	return tx.Set(l.transactions.Doc(t.ID), t)
}

// removeTransaction reverts t's signed amount and deletes it inside tx.
func (l *Ledger) removeTransaction(tx docstore.Tx, t core.Transaction) error {
	if err := l.adjustBalance(tx, t.AccountID, t.Signed().Neg()); err != nil {
		return err
	}
	return tx.Delete(l.transactions.Doc(t.ID))
}

// adjustBalance adds delta to the account's balance as read inside tx.
func (l *Ledger) adjustBalance(tx docstore.Tx, accountID string, delta decimal.Decimal) error {
	acc, err := docstore.GetAs[core.Account](tx, l.accounts.Doc(accountID))
	if isNotFound(err) {
		return &core.ReferenceError{Collection: core.AccountsCollection, ID: accountID}
	}
	if err != nil {
		return err
	}
	return tx.Update(l.accounts.Doc(accountID), map[string]any{
		"balance": acc.Balance.Add(delta),
	})
}
