package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/docstore"
)

// Bills owns the bill lifecycle and is the only writer of the bill ↔
// transaction link.
type Bills struct {
	ledger *Ledger
	repo   repo[core.Bill]
}

func NewBills(l *Ledger) *Bills {
	return &Bills{ledger: l, repo: repo[core.Bill]{l.store, l.bills}}
}

func (s *Bills) Get(ctx context.Context, id string) (core.Bill, error) {
	return s.repo.get(ctx, id)
}

// List returns bills ordered by due date.
func (s *Bills) List(ctx context.Context) ([]core.Bill, error) {
	bills, err := s.repo.list(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(bills, func(i, j int) bool { return bills[i].DueDate.Before(bills[j].DueDate) })
	return bills, nil
}

// Create stores a new unpaid bill for an existing account.
func (s *Bills) Create(ctx context.Context, b core.Bill) (core.Bill, error) {
	b.ID = s.ledger.store.NewID()
	b.Name = strings.TrimSpace(b.Name)
	b.IsPaid = false
	b.TransactionID = ""
	if err := b.Validate(); err != nil {
		return core.Bill{}, err
	}
	err := s.ledger.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := s.requireAccount(tx, b.AccountID); err != nil {
			return err
		}
		return tx.Set(s.ledger.bills.Doc(b.ID), b)
	})
	if err != nil {
		return core.Bill{}, fmt.Errorf("create bill: %w", err)
	}
	return b, nil
}

// Update edits the descriptive fields. Payment state is left untouched, and
// a paid bill cannot move to another account.
func (s *Bills) Update(ctx context.Context, id string, in core.Bill) (core.Bill, error) {
	var updated core.Bill
	err := s.ledger.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		cur, err := docstore.GetAs[core.Bill](tx, s.ledger.bills.Doc(id))
		if err != nil {
			return err
		}
		in.ID = id
		in.Name = strings.TrimSpace(in.Name)
		if cur.HasTransaction() && in.AccountID != cur.AccountID {
			return core.ErrLinkedToBill
		}
		in.IsPaid = cur.IsPaid
		in.TransactionID = cur.TransactionID
		if err := in.Validate(); err != nil {
			return err
		}
		if err := s.requireAccount(tx, in.AccountID); err != nil {
			return err
		}
		updated = in
		return tx.Set(s.ledger.bills.Doc(id), in)
	})
	if err != nil {
		return core.Bill{}, fmt.Errorf("update bill %s: %w", id, err)
	}
	return updated, nil
}

// Delete removes a bill. A paid bill takes its payment transaction with it
// and the account balance is restored.
func (s *Bills) Delete(ctx context.Context, id string) error {
	l := s.ledger
	var removed core.Transaction
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		b, err := docstore.GetAs[core.Bill](tx, l.bills.Doc(id))
		if err != nil {
			return err
		}
		if b.HasTransaction() {
			if removed, err = s.unlink(tx, b); err != nil {
				return err
			}
		}
		return tx.Delete(l.bills.Doc(id))
	})
	if err != nil {
		return fmt.Errorf("delete bill %s: %w", id, err)
	}
	if removed.ID != "" {
		l.publish(ctx, withTransaction(l.event(amqp.TransactionDeleted, core.TransactionsCollection, removed.ID, removed.AccountID), removed))
	}
	return nil
}

// MarkPaid records the payment of a bill as an expense transaction dated
// today and links it to the bill. A bill that already has a transaction is
// returned unchanged. Paying a recurring bill also creates next month's bill.
func (s *Bills) MarkPaid(ctx context.Context, id string) (core.Bill, error) {
	l := s.ledger
	var (
		paid    core.Bill
		payment core.Transaction
		next    *core.Bill
		noop    bool
	)
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		b, err := docstore.GetAs[core.Bill](tx, l.bills.Doc(id))
		if err != nil {
			return err
		}
		if b.HasTransaction() {
			paid, noop = b, true
			return nil
		}

		payment = core.Transaction{
			ID:          l.store.NewID(),
			Type:        core.Expense,
			Amount:      b.Amount,
			Category:    b.Category,
			Date:        l.now(),
			Description: b.Name,
			AccountID:   b.AccountID,
			BillID:      b.ID,
			CreatedAt:   l.now(),
		}
		if err := l.insertTransaction(tx, payment); err != nil {
			return err
		}

		b.IsPaid = true
		b.TransactionID = payment.ID
		if err := tx.Set(l.bills.Doc(b.ID), b); err != nil {
			return err
		}
		paid = b

		if b.IsRecurring {
			n := core.Bill{
				ID:          l.store.NewID(),
				Name:        b.Name,
				Amount:      b.Amount,
				Category:    b.Category,
				DueDate:     core.AddMonthClamped(b.DueDate),
				IsRecurring: true,
				AccountID:   b.AccountID,
			}
			if err := tx.Set(l.bills.Doc(n.ID), n); err != nil {
				return err
			}
			next = &n
		}
		return nil
	})
	if err != nil {
		return core.Bill{}, fmt.Errorf("mark bill %s paid: %w", id, err)
	}
	if noop {
		slog.DebugContext(ctx, "Bill already paid", "bill_id", id, "transaction_id", paid.TransactionID)
		return paid, nil
	}

	attrs := []any{"bill_id", id, "transaction_id", payment.ID, "account_id", payment.AccountID}
	if next != nil {
		attrs = append(attrs, "next_bill_id", next.ID, "next_due", next.DueDate.Format("2006-01-02"))
	}
	slog.InfoContext(ctx, "Bill paid", attrs...)

	l.publish(ctx, withTransaction(l.event(amqp.TransactionCreated, core.TransactionsCollection, payment.ID, payment.AccountID), payment))
	l.publish(ctx, l.event(amqp.BillPaid, core.BillsCollection, id, payment.AccountID))
	return paid, nil
}

// MarkUnpaid deletes the bill's payment transaction, restoring the account
// balance, and clears the link.
func (s *Bills) MarkUnpaid(ctx context.Context, id string) (core.Bill, error) {
	l := s.ledger
	var (
		unpaid  core.Bill
		removed core.Transaction
	)
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		b, err := docstore.GetAs[core.Bill](tx, l.bills.Doc(id))
		if err != nil {
			return err
		}
		if b.HasTransaction() {
			if removed, err = s.unlink(tx, b); err != nil {
				return err
			}
		}
		b.IsPaid = false
		b.TransactionID = ""
		unpaid = b
		return tx.Set(l.bills.Doc(id), b)
	})
	if err != nil {
		return core.Bill{}, fmt.Errorf("mark bill %s unpaid: %w", id, err)
	}
	if removed.ID != "" {
		l.publish(ctx, withTransaction(l.event(amqp.TransactionDeleted, core.TransactionsCollection, removed.ID, removed.AccountID), removed))
		l.publish(ctx, l.event(amqp.BillUnpaid, core.BillsCollection, id, removed.AccountID))
	}
	return unpaid, nil
}

// Toggle flips the payment state of a bill.
func (s *Bills) Toggle(ctx context.Context, id string) (core.Bill, error) {
	b, err := s.repo.get(ctx, id)
	if err != nil {
		return core.Bill{}, err
	}
	if b.IsPaid || b.HasTransaction() {
		return s.MarkUnpaid(ctx, id)
	}
	return s.MarkPaid(ctx, id)
}

func (s *Bills) requireAccount(tx docstore.Tx, accountID string) error {
	if _, err := tx.Get(s.ledger.accounts.Doc(accountID)); err != nil {
		if isNotFound(err) {
			return &core.ReferenceError{Collection: core.AccountsCollection, ID: accountID}
		}
		return err
	}
	return nil
}

// unlink removes the payment transaction of b inside tx and returns it. A
// transaction that is already gone yields the zero value.
func (s *Bills) unlink(tx docstore.Tx, b core.Bill) (core.Transaction, error) {
	l := s.ledger
	t, err := docstore.GetAs[core.Transaction](tx, l.transactions.Doc(b.TransactionID))
	if isNotFound(err) {
		return core.Transaction{}, nil
	}
	if err != nil {
		return core.Transaction{}, err
	}
	if err := l.removeTransaction(tx, t); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}
