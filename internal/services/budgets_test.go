package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
)

func TestBudgetSpendIsDerived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, "Wallet", "1000")

	budget, err := f.svc.Budgets.Create(ctx, core.Budget{Name: "Food", Limit: dec("300"), Category: "Groceries"})
	if err != nil {
		t.Fatalf("Create budget: %v", err)
	}

	march := txInput(core.Expense, "120", acc.ID, "Groceries")
	february := txInput(core.Expense, "500", acc.ID, "Groceries")
	february.Date = time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC)
	otherCategory := txInput(core.Expense, "50", acc.ID, "Rent")
	income := txInput(core.Income, "900", acc.ID, "Groceries")
	for _, in := range []core.TransactionInput{march, february, otherCategory, income} {
		if _, err := f.svc.Ledger.CreateTransaction(ctx, in); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}

	statuses, err := f.svc.Budgets.Statuses(ctx)
	if err != nil {
		t.Fatalf("Statuses: %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected one status, got %d", len(statuses))
	}
	st := statuses[0]
	if st.Budget.ID != budget.ID || !st.Spent.Equal(dec("120")) || !st.Remaining.Equal(dec("180")) {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Percent != 40 || st.OverLimit {
		t.Fatalf("expected 40%% under limit, got %v over=%v", st.Percent, st.OverLimit)
	}
}

func TestResetBudgets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acc := f.account(t, "Wallet", "1000")

	for _, name := range []string{"Food", "Fun"} {
		if _, err := f.svc.Budgets.Create(ctx, core.Budget{Name: name, Limit: dec("100"), Category: "Groceries"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := f.svc.Ledger.CreateTransaction(ctx, txInput(core.Expense, "80", acc.ID, "Groceries")); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	n, err := f.svc.Budgets.ResetBudgets(ctx)
	if err != nil {
		t.Fatalf("ResetBudgets: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 budgets reset, got %d", n)
	}

	budgets, _ := f.svc.Budgets.List(ctx)
	for _, b := range budgets {
		if b.ResetAt == nil || !b.ResetAt.Equal(f.now) {
			t.Fatalf("budget %s resetAt = %v, want %s", b.Name, b.ResetAt, f.now)
		}
	}

	statuses, _ := f.svc.Budgets.Statuses(ctx)
	for _, st := range statuses {
		if !st.Spent.IsZero() {
			t.Fatalf("spend before reset must not count, got %s", st.Spent)
		}
	}

	later := txInput(core.Expense, "30", acc.ID, "Groceries")
	later.Date = f.now.Add(time.Hour)
	if _, err := f.svc.Ledger.CreateTransaction(ctx, later); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	statuses, _ = f.svc.Budgets.Statuses(ctx)
	for _, st := range statuses {
		if !st.Spent.Equal(dec("30")) {
			t.Fatalf("expected spend 30 after reset, got %s", st.Spent)
		}
	}

	// Editing a budget keeps its reset point.
	b := budgets[0]
	b.Limit = dec("250")
	updated, err := f.svc.Budgets.Update(ctx, b.ID, core.Budget{Name: b.Name, Limit: b.Limit, Category: b.Category})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.ResetAt == nil || !updated.ResetAt.Equal(f.now) {
		t.Fatalf("Update dropped resetAt: %v", updated.ResetAt)
	}
}

func TestResetBudgetsEmpty(t *testing.T) {
	f := newFixture(t)
	n, err := f.svc.Budgets.ResetBudgets(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("ResetBudgets() = %d, %v", n, err)
	}
}

func TestBudgetValidation(t *testing.T) {
	f := newFixture(t)
	cases := []core.Budget{
		{Name: "", Limit: dec("10"), Category: "Rent"},
		{Name: "Rent", Limit: dec("0"), Category: "Rent"},
		{Name: "Rent", Limit: dec("10"), Category: " "},
	}
	for _, b := range cases {
		if _, err := f.svc.Budgets.Create(context.Background(), b); err == nil {
			t.Errorf("expected validation error for %+v", b)
		}
	}
}

func TestResetBudgetsWithConcurrentDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 20; i++ {
		b, err := f.svc.Budgets.Create(ctx, core.Budget{Name: "Food", Limit: dec("100"), Category: "Groceries"})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, b.ID)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, id := range ids {
			if err := f.svc.Budgets.Delete(ctx, id); err != nil {
				t.Errorf("Delete: %v", err)
			}
		}
	}()
	for i := 0; i < 20; i++ {
		if _, err := f.svc.Budgets.ResetBudgets(ctx); err != nil {
			t.Fatalf("ResetBudgets raced a delete: %v", err)
		}
	}
	wg.Wait()
}
