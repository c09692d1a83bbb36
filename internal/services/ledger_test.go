package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/docstore"
)

func TestCreateTransactionAdjustsBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, "Wallet", "1000")

	if _, err := f.svc.Ledger.CreateTransaction(ctx, txInput(core.Expense, "200", acc.ID, "Rent")); err != nil {
		t.Fatalf("CreateTransaction expense: %v", err)
	}
	f.expectBalance(t, acc.ID, "800")

	if _, err := f.svc.Ledger.CreateTransaction(ctx, txInput(core.Income, "50.25", acc.ID, "Salary")); err != nil {
		t.Fatalf("CreateTransaction income: %v", err)
	}
	f.expectBalance(t, acc.ID, "850.25")
	f.expectInvariant(t)
}

func TestCreateTransactionRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, "Wallet", "100")

	t.Run("unknown account", func(t *testing.T) {
		_, err := f.svc.Ledger.CreateTransaction(ctx, txInput(core.Expense, "10", "nope", "Rent"))
		var ref *core.ReferenceError
		if !errors.As(err, &ref) {
			t.Fatalf("expected ReferenceError, got %v", err)
		}
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("ReferenceError should be a not-found error")
		}
	})

	t.Run("non-positive amount", func(t *testing.T) {
		_, err := f.svc.Ledger.CreateTransaction(ctx, txInput(core.Expense, "0", acc.ID, "Rent"))
		if !errors.Is(err, core.ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount, got %v", err)
		}
	})

	t.Run("bad type", func(t *testing.T) {
		_, err := f.svc.Ledger.CreateTransaction(ctx, txInput("refund", "10", acc.ID, "Rent"))
		if !errors.Is(err, core.ErrInvalidInput) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	docs, _ := f.store.List(ctx, testScope.Collection(core.TransactionsCollection))
	if len(docs) != 0 {
		t.Fatalf("rejected creates must not write, found %d transactions", len(docs))
	}
	f.expectBalance(t, acc.ID, "100")
}

func TestCreateDeleteRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, "Wallet", "1000.10")
	before := f.balance(t, acc.ID)

	id, err := f.svc.Ledger.CreateTransaction(ctx, txInput(core.Expense, "0.30", acc.ID, "Transport"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := f.svc.Ledger.DeleteTransaction(ctx, id); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	after := f.balance(t, acc.ID)
	if !after.Equal(before) || after.String() != before.String() {
		t.Fatalf("round trip changed balance: %s -> %s", before, after)
	}
	if _, err := f.svc.Ledger.GetTransaction(ctx, id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("transaction should be gone, got %v", err)
	}
}

func TestUpdateTransactionSameAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, "Wallet", "100")

	id, _ := f.svc.Ledger.CreateTransaction(ctx, txInput(core.Expense, "30", acc.ID, "Groceries"))
	f.expectBalance(t, acc.ID, "70")

	if err := f.svc.Ledger.UpdateTransaction(ctx, id, txInput(core.Expense, "45", acc.ID, "Groceries")); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	f.expectBalance(t, acc.ID, "55")

	if err := f.svc.Ledger.UpdateTransaction(ctx, id, txInput(core.Income, "45", acc.ID, "Bonus")); err != nil {
		t.Fatalf("UpdateTransaction type flip: %v", err)
	}
	f.expectBalance(t, acc.ID, "145")
	f.expectInvariant(t)
}

func TestUpdateTransactionCrossAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "A", "100")
	b := f.account(t, "B", "50")

	id, err := f.svc.Ledger.CreateTransaction(ctx, txInput(core.Expense, "30", a.ID, "Rent"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	f.expectBalance(t, a.ID, "70")

	if err := f.svc.Ledger.UpdateTransaction(ctx, id, txInput(core.Expense, "30", b.ID, "Rent")); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	f.expectBalance(t, a.ID, "100")
	f.expectBalance(t, b.ID, "20")
	f.expectInvariant(t)

	got, _ := f.svc.Ledger.GetTransaction(ctx, id)
	if got.AccountID != b.ID {
		t.Fatalf("transaction should now belong to B, got %s", got.AccountID)
	}
}

func TestUpdateTransactionUnknownTargetAccountAborts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "A", "100")
	id, _ := f.svc.Ledger.CreateTransaction(ctx, txInput(core.Expense, "30", a.ID, "Rent"))

	err := f.svc.Ledger.UpdateTransaction(ctx, id, txInput(core.Expense, "30", "ghost", "Rent"))
	var ref *core.ReferenceError
	if !errors.As(err, &ref) {
		t.Fatalf("expected ReferenceError, got %v", err)
	}
	f.expectBalance(t, a.ID, "70")
	got, _ := f.svc.Ledger.GetTransaction(ctx, id)
	if got.AccountID != a.ID {
		t.Fatalf("aborted update must not move the transaction")
	}
}

func TestUpdateMissingTransaction(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "A", "100")
	err := f.svc.Ledger.UpdateTransaction(context.Background(), "missing", txInput(core.Expense, "1", a.ID, "Rent"))
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doomed := f.account(t, "Doomed", "500")
	other := f.account(t, "Other", "10")

	for _, amt := range []string{"1", "2", "3"} {
		if _, err := f.svc.Ledger.CreateTransaction(ctx, txInput(core.Expense, amt, doomed.ID, "Other")); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}
	keep, _ := f.svc.Ledger.CreateTransaction(ctx, txInput(core.Income, "5", other.ID, "Salary"))
	bill, err := f.svc.Bills.Create(ctx, core.Bill{Name: "Power", Amount: dec("20"), Category: "Utilities", AccountID: doomed.ID, DueDate: f.now})
	if err != nil {
		t.Fatalf("Create bill: %v", err)
	}

	if err := f.svc.Ledger.DeleteAccount(ctx, doomed.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}

	txs, _ := f.svc.Ledger.ListTransactions(ctx)
	if len(txs) != 1 || txs[0].ID != keep {
		t.Fatalf("expected only the other account's transaction to remain, got %+v", txs)
	}
	if _, err := f.svc.Ledger.GetAccount(ctx, doomed.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("account should be gone, got %v", err)
	}
	if _, err := f.svc.Bills.Get(ctx, bill.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("bill of deleted account should be gone, got %v", err)
	}
	f.expectBalance(t, other.ID, "15")

	deleted := 0
	for _, typ := range f.events.types() {
		if typ == amqp.TransactionDeleted {
			deleted++
		}
	}
	if deleted != 3 {
		t.Errorf("expected 3 transaction.deleted events for the cascade, got %d", deleted)
	}
}

func TestDeleteAccountIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, "Wallet", "10")
	for i := 0; i < 3; i++ {
		f.svc.Ledger.CreateTransaction(ctx, txInput(core.Expense, "1", acc.ID, "Other"))
	}

	snapshots, err := f.store.Subscribe(ctx, testScope.Collection(core.TransactionsCollection))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	initial := <-snapshots
	if len(initial.Documents) != 3 {
		t.Fatalf("expected 3 transactions before delete, got %d", len(initial.Documents))
	}

	if err := f.svc.Ledger.DeleteAccount(ctx, acc.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	select {
	case snap := <-snapshots:
		if len(snap.Documents) != 0 {
			t.Fatalf("observer saw a partial cascade: %d transactions left", len(snap.Documents))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no snapshot after cascade delete")
	}
}

func TestDeleteLinkedTransactionRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, "Wallet", "100")
	bill, _ := f.svc.Bills.Create(ctx, core.Bill{Name: "Water", Amount: dec("10"), Category: "Utilities", AccountID: acc.ID, DueDate: f.now})
	paid, err := f.svc.Bills.MarkPaid(ctx, bill.ID)
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	if err := f.svc.Ledger.DeleteTransaction(ctx, paid.TransactionID); !errors.Is(err, core.ErrLinkedToBill) {
		t.Fatalf("expected ErrLinkedToBill, got %v", err)
	}
	f.expectBalance(t, acc.ID, "90")
}

func TestUpdateAccountShiftsBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, "Wallet", "100")
	f.svc.Ledger.CreateTransaction(ctx, txInput(core.Expense, "40", acc.ID, "Other"))

	updated, err := f.svc.Ledger.UpdateAccount(ctx, acc.ID, "Main wallet", dec("150"))
	if err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}
	if updated.Name != "Main wallet" || !updated.Balance.Equal(dec("110")) {
		t.Fatalf("unexpected account %+v", updated)
	}
	f.expectInvariant(t)

	if _, err := f.svc.Ledger.UpdateAccount(ctx, acc.ID, " ", dec("1")); !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected validation error for empty name, got %v", err)
	}
}

func TestLedgerPublishesEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "A", "100")
	b := f.account(t, "B", "100")
	id, _ := f.svc.Ledger.CreateTransaction(ctx, txInput(core.Expense, "10", a.ID, "Other"))
	f.svc.Ledger.UpdateTransaction(ctx, id, txInput(core.Expense, "10", b.ID, "Other"))
	f.svc.Ledger.DeleteTransaction(ctx, id)

	want := []amqp.EventType{amqp.AccountCreated, amqp.AccountCreated, amqp.TransactionCreated, amqp.TransactionUpdated, amqp.TransactionDeleted}
	got := f.events.types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	moved := f.events.events[3]
	if len(moved.AccountIDs) != 2 {
		t.Fatalf("cross-account update should name both accounts, got %v", moved.AccountIDs)
	}
	if moved.UserID != testScope.UserID || moved.AppID != testScope.AppID {
		t.Fatalf("event not scoped to user: %+v", moved)
	}
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.events.err = errors.New("broker down")
	acc := f.account(t, "Wallet", "100")
	if _, err := f.svc.Ledger.CreateTransaction(context.Background(), txInput(core.Expense, "1", acc.ID, "Other")); err != nil {
		t.Fatalf("publish failure leaked into CreateTransaction: %v", err)
	}
	f.expectBalance(t, acc.ID, "99")
}

// The walkthrough: 1000 -> expense 200 -> 800 -> pay bill of 150 -> 650.
func TestLedgerScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	accounts := testScope.Collection(core.AccountsCollection)
	err := f.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(accounts.Doc("a1"), core.Account{Name: "Main", Balance: dec("1000"), OpeningBalance: dec("1000")})
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}

	_, err = f.svc.Ledger.CreateTransaction(ctx, core.TransactionInput{
		Type:        core.Expense,
		Amount:      dec("200"),
		AccountID:   "a1",
		Category:    "Rent",
		Date:        time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Description: "rent",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	f.expectBalance(t, "a1", "800")

	bill, err := f.svc.Bills.Create(ctx, core.Bill{Name: "Internet", Amount: dec("150"), Category: "Utilities", AccountID: "a1", DueDate: f.now})
	if err != nil {
		t.Fatalf("Create bill: %v", err)
	}
	paid, err := f.svc.Bills.MarkPaid(ctx, bill.ID)
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	f.expectBalance(t, "a1", "650")
	if !paid.IsPaid || paid.TransactionID == "" {
		t.Fatalf("bill should be paid with a transaction, got %+v", paid)
	}
	payment, err := f.svc.Ledger.GetTransaction(ctx, paid.TransactionID)
	if err != nil {
		t.Fatalf("payment transaction missing: %v", err)
	}
	if payment.Type != core.Expense || !payment.Amount.Equal(dec("150")) || payment.AccountID != "a1" {
		t.Fatalf("unexpected payment transaction %+v", payment)
	}
	f.expectInvariant(t)
}

// expectBillLinkIntact checks that a paid bill points at a live transaction
// and an unpaid bill points at none.
func (f *fixture) expectBillLinkIntact(t *testing.T, billID string) core.Bill {
	t.Helper()
	ctx := context.Background()
	b, err := f.svc.Bills.Get(ctx, billID)
	if err != nil {
		t.Fatalf("Get bill: %v", err)
	}
	if b.IsPaid != (b.TransactionID != "") {
		t.Fatalf("bill %s: isPaid=%v with transactionId %q", b.ID, b.IsPaid, b.TransactionID)
	}
	if b.TransactionID != "" {
		if _, err := f.svc.Ledger.GetTransaction(ctx, b.TransactionID); err != nil {
			t.Fatalf("bill %s points at missing transaction %s: %v", b.ID, b.TransactionID, err)
		}
	}
	return b
}

func TestPaidBillStaysOnItsAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "A", "100")
	b := f.account(t, "B", "100")
	bill, _ := f.svc.Bills.Create(ctx, core.Bill{Name: "Rent", Amount: dec("30"), Category: "Housing", AccountID: a.ID, DueDate: f.now})
	paid, err := f.svc.Bills.MarkPaid(ctx, bill.ID)
	if err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}

	t.Run("bill", func(t *testing.T) {
		edit := paid
		edit.AccountID = b.ID
		if _, err := f.svc.Bills.Update(ctx, bill.ID, edit); !errors.Is(err, core.ErrLinkedToBill) {
			t.Fatalf("expected ErrLinkedToBill, got %v", err)
		}
	})

	t.Run("payment", func(t *testing.T) {
		in := txInput(core.Expense, "30", b.ID, "Housing")
		if err := f.svc.Ledger.UpdateTransaction(ctx, paid.TransactionID, in); !errors.Is(err, core.ErrLinkedToBill) {
			t.Fatalf("expected ErrLinkedToBill, got %v", err)
		}
	})

	t.Run("unpaid bill moves", func(t *testing.T) {
		unpaid, err := f.svc.Bills.MarkUnpaid(ctx, bill.ID)
		if err != nil {
			t.Fatalf("MarkUnpaid: %v", err)
		}
		unpaid.AccountID = b.ID
		moved, err := f.svc.Bills.Update(ctx, bill.ID, unpaid)
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if moved.AccountID != b.ID {
			t.Fatalf("expected bill on %s, got %s", b.ID, moved.AccountID)
		}
	})

	f.expectBalance(t, a.ID, "100")
	f.expectBalance(t, b.ID, "100")
	f.expectInvariant(t)
}

func TestDeleteAccountUnpaysBillsElsewhere(t *testing.T) {
	tests := []struct {
		name string
		// split puts the bill and its payment on different accounts and
		// returns the account holding the payment.
		split func(t *testing.T, f *fixture, bill core.Bill, a, b core.Account) string
	}{
		{
			name: "bill moved away from its payment",
			split: func(t *testing.T, f *fixture, bill core.Bill, a, b core.Account) string {
				err := f.store.Replace(context.Background(), testScope.Collection(core.BillsCollection).Doc(bill.ID), map[string]any{"accountId": b.ID})
				if err != nil {
					t.Fatalf("Replace: %v", err)
				}
				return a.ID
			},
		},
		{
			name: "payment moved away from its bill",
			split: func(t *testing.T, f *fixture, bill core.Bill, a, b core.Account) string {
				err := f.store.Replace(context.Background(), testScope.Collection(core.TransactionsCollection).Doc(bill.TransactionID), map[string]any{"accountId": b.ID})
				if err != nil {
					t.Fatalf("Replace: %v", err)
				}
				return b.ID
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			a := f.account(t, "A", "100")
			b := f.account(t, "B", "100")
			bill, _ := f.svc.Bills.Create(ctx, core.Bill{Name: "Rent", Amount: dec("30"), Category: "Housing", AccountID: a.ID, DueDate: f.now})
			paid, err := f.svc.Bills.MarkPaid(ctx, bill.ID)
			if err != nil {
				t.Fatalf("MarkPaid: %v", err)
			}

			doomed := tt.split(t, f, paid, a, b)
			if err := f.svc.Ledger.DeleteAccount(ctx, doomed); err != nil {
				t.Fatalf("DeleteAccount: %v", err)
			}

			got := f.expectBillLinkIntact(t, bill.ID)
			if got.IsPaid {
				t.Fatalf("bill should be unpaid once its payment is gone: %+v", got)
			}
			var unpaid bool
			for _, typ := range f.events.types() {
				if typ == amqp.BillUnpaid {
					unpaid = true
				}
			}
			if !unpaid {
				t.Error("expected a bill.unpaid event for the orphaned bill")
			}
		})
	}
}
