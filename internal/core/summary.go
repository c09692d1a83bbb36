package core

import "github.com/shopspring/decimal"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

// MonthTotals is income and expense for one YYYY-MM bucket.
type MonthTotals struct {
	Month   string          `json:"month"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

type GoalProgress struct {
	Goal    Goal    `json:"goal"`
	Percent float64 `json:"percent"`
}

type BudgetStatus struct {
	Budget    Budget          `json:"budget"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
	Percent   float64         `json:"percent"`
	OverLimit bool            `json:"overLimit"`
}

// DashboardSummary is the compact overview shown on the landing page.
type DashboardSummary struct {
	TotalIncome        decimal.Decimal  `json:"totalIncome"`
	TotalExpense       decimal.Decimal  `json:"totalExpense"`
	Net                decimal.Decimal  `json:"net"`
	TotalBalance       decimal.Decimal  `json:"totalBalance"`
	ExpenseByCategory  []CategoryAmount `json:"expenseByCategory"`
	RecentTransactions []Transaction    `json:"recentTransactions"`
	UpcomingBills      []Bill           `json:"upcomingBills"`
	TopGoals           []GoalProgress   `json:"topGoals"`
}

// Percent returns part/whole*100 rounded to two places, 0 when whole is zero.
func Percent(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	f, _ := part.Div(whole).Mul(decimal.NewFromInt(100)).Round(2).Float64()
	return f
}
