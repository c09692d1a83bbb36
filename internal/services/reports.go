package services

import (
	"sort"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

const (
	recentTransactionsLimit = 5
	upcomingBillsLimit      = 3
	topGoalsLimit           = 3
)

// Summarize builds the dashboard overview from full collection contents.
func Summarize(accounts []core.Account, txs []core.Transaction, bills []core.Bill, goals []core.Goal, now time.Time) core.DashboardSummary {
	income, expense := Totals(txs)
	balance := decimal.Zero
	for _, a := range accounts {
		balance = balance.Add(a.Balance)
	}
	return core.DashboardSummary{
		TotalIncome:        income,
		TotalExpense:       expense,
		Net:                income.Sub(expense),
		TotalBalance:       balance,
		ExpenseByCategory:  ExpenseByCategory(txs),
		RecentTransactions: RecentTransactions(txs, recentTransactionsLimit),
		UpcomingBills:      UpcomingBills(bills, now, upcomingBillsLimit),
		TopGoals:           TopGoals(goals, topGoalsLimit),
	}
}

// Totals returns the summed income and expense amounts.
func Totals(txs []core.Transaction) (income, expense decimal.Decimal) {
	income, expense = decimal.Zero, decimal.Zero
	for _, t := range txs {
		switch t.Type {
		case core.Income:
			income = income.Add(t.Amount)
		case core.Expense:
			expense = expense.Add(t.Amount)
		}
	}
	return income, expense
}

// ExpenseByCategory sums expenses per category, largest first.
func ExpenseByCategory(txs []core.Transaction) []core.CategoryAmount {
	byCat := map[string]decimal.Decimal{}
	for _, t := range txs {
		if t.Type != core.Expense {
			continue
		}
		byCat[t.Category] = byCat[t.Category].Add(t.Amount)
	}
	out := make([]core.CategoryAmount, 0, len(byCat))
	for name, amount := range byCat {
		out = append(out, core.CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SortTransactionsNewestFirst orders by date, then creation time, descending.
func SortTransactionsNewestFirst(txs []core.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.After(txs[j].Date)
		}
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

// RecentTransactions returns the n newest transactions.
func RecentTransactions(txs []core.Transaction, n int) []core.Transaction {
	sorted := append([]core.Transaction(nil), txs...)
	SortTransactionsNewestFirst(sorted)
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// UpcomingBills returns the first n unpaid bills due today or later.
func UpcomingBills(bills []core.Bill, now time.Time, n int) []core.Bill {
	today := core.StartOfDay(now)
	out := make([]core.Bill, 0, len(bills))
	for _, b := range bills {
		if b.IsPaid || b.DueDate.Before(today) {
			continue
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// TopGoals returns the n goals closest to completion.
func TopGoals(goals []core.Goal, n int) []core.GoalProgress {
	out := make([]core.GoalProgress, 0, len(goals))
	for _, g := range goals {
		out = append(out, core.GoalProgress{Goal: g, Percent: core.Percent(g.CurrentAmount, g.TargetAmount)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Percent != out[j].Percent {
			return out[i].Percent > out[j].Percent
		}
		return out[i].Goal.Name < out[j].Goal.Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// MonthlyReport buckets income and expense by calendar month in loc, the
// same calendar BudgetSpend uses, oldest first.
func MonthlyReport(txs []core.Transaction, loc *time.Location) []core.MonthTotals {
	byMonth := map[string]*core.MonthTotals{}
	for _, t := range txs {
		key := t.Date.In(loc).Format("2006-01")
		m, ok := byMonth[key]
		if !ok {
			m = &core.MonthTotals{Month: key, Income: decimal.Zero, Expense: decimal.Zero}
			byMonth[key] = m
		}
		switch t.Type {
		case core.Income:
			m.Income = m.Income.Add(t.Amount)
		case core.Expense:
			m.Expense = m.Expense.Add(t.Amount)
		}
	}
	out := make([]core.MonthTotals, 0, len(byMonth))
	for _, m := range byMonth {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// BudgetSpend sums the budget category's expenses in now's calendar month,
// starting no earlier than the budget's last reset.
func BudgetSpend(b core.Budget, txs []core.Transaction, now time.Time) decimal.Decimal {
	from := core.StartOfMonth(now)
	to := from.AddDate(0, 1, 0)
	if b.ResetAt != nil && b.ResetAt.After(from) {
		from = *b.ResetAt
	}
	spent := decimal.Zero
	for _, t := range txs {
		if t.Type != core.Expense || t.Category != b.Category {
			continue
		}
		d := t.Date.In(now.Location())
		if d.Before(from) || !d.Before(to) {
			continue
		}
		spent = spent.Add(t.Amount)
	}
	return spent
}

func BudgetStatuses(budgets []core.Budget, txs []core.Transaction, now time.Time) []core.BudgetStatus {
	out := make([]core.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		spent := BudgetSpend(b, txs, now)
		out = append(out, core.BudgetStatus{
			Budget:    b,
			Spent:     spent,
			Remaining: b.Limit.Sub(spent),
			Percent:   core.Percent(spent, b.Limit),
			OverLimit: spent.GreaterThan(b.Limit),
		})
	}
	return out
}
