package services

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/docstore"

	"github.com/shopspring/decimal"
)

// Drift compares an account's stored balance with the balance implied by
// its opening balance and transactions.
type Drift struct {
	AccountID string          `json:"accountId"`
	Name      string          `json:"name"`
	Recorded  decimal.Decimal `json:"recorded"`
	Expected  decimal.Decimal `json:"expected"`
}

func (d Drift) Difference() decimal.Decimal {
	return d.Recorded.Sub(d.Expected)
}

func (d Drift) Balanced() bool {
	return d.Recorded.Equal(d.Expected)
}

// Reconciler verifies the ledger invariant.
type Reconciler struct {
	ledger *Ledger
}

func NewReconciler(l *Ledger) *Reconciler {
	return &Reconciler{ledger: l}
}

// Check recomputes one account from a consistent read.
func (r *Reconciler) Check(ctx context.Context, accountID string) (Drift, error) {
	var d Drift
	err := r.ledger.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var err error
		d, err = r.check(tx, accountID)
		return err
	})
	if err != nil {
		return Drift{}, fmt.Errorf("reconcile account %s: %w", accountID, err)
	}
	r.log(ctx, d)
	return d, nil
}

// CheckAll recomputes every account of the user.
func (r *Reconciler) CheckAll(ctx context.Context) ([]Drift, error) {
	l := r.ledger
	var out []Drift
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		accounts, err := docstore.ListAs[core.Account](tx, l.accounts)
		if err != nil {
			return err
		}
		txs, err := docstore.ListAs[core.Transaction](tx, l.transactions)
		if err != nil {
			return err
		}
		out = make([]Drift, 0, len(accounts))
		for _, acc := range accounts {
			out = append(out, expected(acc, txs))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile accounts: %w", err)
	}
	for _, d := range out {
		r.log(ctx, d)
	}
	return out, nil
}

// Repair overwrites the stored balance with the recomputed one.
func (r *Reconciler) Repair(ctx context.Context, accountID string) (Drift, error) {
	l := r.ledger
	var d Drift
	err := l.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		var err error
		if d, err = r.check(tx, accountID); err != nil {
			return err
		}
		if d.Balanced() {
			return nil
		}
		return tx.Update(l.accounts.Doc(accountID), map[string]any{"balance": d.Expected})
	})
	if err != nil {
		return Drift{}, fmt.Errorf("repair account %s: %w", accountID, err)
	}
	if !d.Balanced() {
		slog.WarnContext(ctx, "Account balance repaired",
			"account_id", accountID,
			"from", d.Recorded.String(),
			"to", d.Expected.String())
		l.publish(ctx, l.event(amqp.AccountUpdated, core.AccountsCollection, accountID, accountID))
	}
	return d, nil
}

func (r *Reconciler) check(tx docstore.Tx, accountID string) (Drift, error) {
	l := r.ledger
	acc, err := docstore.GetAs[core.Account](tx, l.accounts.Doc(accountID))
	if err != nil {
		return Drift{}, err
	}
	txs, err := docstore.ListAs[core.Transaction](tx, l.transactions)
	if err != nil {
		return Drift{}, err
	}
	return expected(acc, txs), nil
}

func expected(acc core.Account, txs []core.Transaction) Drift {
	sum := acc.OpeningBalance
	for _, t := range txs {
		if t.AccountID == acc.ID {
			sum = sum.Add(t.Signed())
		}
	}
	return Drift{AccountID: acc.ID, Name: acc.Name, Recorded: acc.Balance, Expected: sum}
}

func (r *Reconciler) log(ctx context.Context, d Drift) {
	if d.Balanced() {
		return
	}
	slog.ErrorContext(ctx, "Account balance drift detected",
		"user_id", r.ledger.scope.UserID,
		"account_id", d.AccountID,
		"recorded", d.Recorded.String(),
		"expected", d.Expected.String(),
		"difference", d.Difference().String())
}
