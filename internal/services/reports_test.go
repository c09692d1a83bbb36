package services

import (
	"testing"
	"time"

	"fintrack/internal/core"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSummarize(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	accounts := []core.Account{{ID: "a1", Balance: dec("650")}, {ID: "a2", Balance: dec("-50")}}
	txs := []core.Transaction{
		{ID: "t1", Type: core.Income, Amount: dec("1000"), Category: "Salary", Date: day(2025, 3, 1)},
		{ID: "t2", Type: core.Expense, Amount: dec("200"), Category: "Groceries", Date: day(2025, 3, 2)},
		{ID: "t3", Type: core.Expense, Amount: dec("150"), Category: "Utilities", Date: day(2025, 3, 15)},
		{ID: "t4", Type: core.Expense, Amount: dec("50"), Category: "Groceries", Date: day(2025, 3, 3)},
	}
	bills := []core.Bill{
		{ID: "b-past", DueDate: day(2025, 3, 1)},
		{ID: "b-paid", DueDate: day(2025, 3, 20), IsPaid: true},
		{ID: "b-later", DueDate: day(2025, 4, 1)},
		{ID: "b-today", DueDate: day(2025, 3, 15)},
	}
	goals := []core.Goal{
		{ID: "g1", Name: "A", TargetAmount: dec("100"), CurrentAmount: dec("10")},
		{ID: "g2", Name: "B", TargetAmount: dec("100"), CurrentAmount: dec("90")},
	}

	s := Summarize(accounts, txs, bills, goals, now)

	if !s.TotalIncome.Equal(dec("1000")) || !s.TotalExpense.Equal(dec("400")) || !s.Net.Equal(dec("600")) {
		t.Fatalf("unexpected totals %+v", s)
	}
	if !s.TotalBalance.Equal(dec("600")) {
		t.Fatalf("expected total balance 600, got %s", s.TotalBalance)
	}
	if len(s.ExpenseByCategory) != 2 || s.ExpenseByCategory[0].Name != "Groceries" || !s.ExpenseByCategory[0].Amount.Equal(dec("250")) {
		t.Fatalf("unexpected categories %+v", s.ExpenseByCategory)
	}
	if s.RecentTransactions[0].ID != "t3" || s.RecentTransactions[3].ID != "t1" {
		t.Fatalf("recent transactions not newest first: %+v", s.RecentTransactions)
	}
	if len(s.UpcomingBills) != 2 || s.UpcomingBills[0].ID != "b-today" || s.UpcomingBills[1].ID != "b-later" {
		t.Fatalf("unexpected upcoming bills %+v", s.UpcomingBills)
	}
	if s.TopGoals[0].Goal.ID != "g2" || s.TopGoals[0].Percent != 90 {
		t.Fatalf("unexpected top goals %+v", s.TopGoals)
	}
}

func TestRecentTransactionsLimit(t *testing.T) {
	var txs []core.Transaction
	for i := 1; i <= 8; i++ {
		txs = append(txs, core.Transaction{ID: string(rune('a' + i)), Date: day(2025, 1, i)})
	}
	got := RecentTransactions(txs, recentTransactionsLimit)
	if len(got) != 5 || !got[0].Date.Equal(day(2025, 1, 8)) {
		t.Fatalf("unexpected recent transactions %+v", got)
	}
	if !txs[0].Date.Equal(day(2025, 1, 1)) {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestMonthlyReport(t *testing.T) {
	txs := []core.Transaction{
		{Type: core.Expense, Amount: dec("20"), Date: day(2025, 2, 10)},
		{Type: core.Income, Amount: dec("100"), Date: day(2025, 1, 5)},
		{Type: core.Expense, Amount: dec("30"), Date: day(2025, 1, 31)},
		{Type: core.Income, Amount: dec("5"), Date: day(2025, 2, 1)},
	}
	got := MonthlyReport(txs, time.UTC)
	want := []struct {
		month           string
		income, expense string
	}{
		{"2025-01", "100", "30"},
		{"2025-02", "5", "20"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d months, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Month != w.month || !got[i].Income.Equal(dec(w.income)) || !got[i].Expense.Equal(dec(w.expense)) {
			t.Errorf("month %d = %+v, want %+v", i, got[i], w)
		}
	}
}

func TestBudgetSpendWindow(t *testing.T) {
	now := time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	reset := day(2025, 3, 10)
	txs := []core.Transaction{
		{Type: core.Expense, Amount: dec("10"), Category: "Rent", Date: day(2025, 3, 1)},
		{Type: core.Expense, Amount: dec("20"), Category: "Rent", Date: day(2025, 3, 12)},
		{Type: core.Expense, Amount: dec("40"), Category: "Rent", Date: day(2025, 4, 1)},
	}
	tests := []struct {
		name   string
		budget core.Budget
		want   string
	}{
		{"whole month", core.Budget{Category: "Rent"}, "30"},
		{"after reset", core.Budget{Category: "Rent", ResetAt: &reset}, "20"},
		{"other category", core.Budget{Category: "Food"}, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BudgetSpend(tt.budget, txs, now); !got.Equal(dec(tt.want)) {
				t.Errorf("BudgetSpend() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMonthlyReportMatchesBudgetCalendar(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	// 20:00 UTC on Jan 31 is already February in Jakarta.
	late := core.Transaction{Type: core.Expense, Category: "Groceries", Amount: dec("40"), Date: time.Date(2025, 1, 31, 20, 0, 0, 0, time.UTC)}
	now := time.Date(2025, 2, 10, 12, 0, 0, 0, jakarta)

	got := MonthlyReport([]core.Transaction{late}, now.Location())
	if len(got) != 1 || got[0].Month != "2025-02" {
		t.Fatalf("expected the expense in 2025-02, got %+v", got)
	}
	spent := BudgetSpend(core.Budget{Category: "Groceries"}, []core.Transaction{late}, now)
	if !spent.Equal(got[0].Expense) {
		t.Fatalf("budget spend %s disagrees with monthly expense %s", spent, got[0].Expense)
	}

	if utc := MonthlyReport([]core.Transaction{late}, time.UTC); utc[0].Month != "2025-01" {
		t.Fatalf("expected 2025-01 in UTC, got %s", utc[0].Month)
	}
}
