package main

import (
	"strings"
	"testing"
	"time"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

func TestReportMarkdown(t *testing.T) {
	currency := core.MustCurrencyFormatter("USD")
	now := time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

	t.Run("empty", func(t *testing.T) {
		md := reportMarkdown("alice", nil, nil, currency, now)
		for _, want := range []string{"# Report for alice", "No transactions yet.", "No budgets defined."} {
			if !strings.Contains(md, want) {
				t.Errorf("missing %q in:\n%s", want, md)
			}
		}
	})

	t.Run("tables", func(t *testing.T) {
		months := []core.MonthTotals{
			{Month: "2024-02", Income: decimal.NewFromInt(100), Expense: decimal.NewFromInt(40)},
		}
		statuses := []core.BudgetStatus{{
			Budget:    core.Budget{Name: "Food", Category: "Groceries", Limit: decimal.NewFromInt(50)},
			Spent:     decimal.NewFromInt(60),
			Percent:   120,
			OverLimit: true,
		}}
		md := reportMarkdown("alice", months, statuses, currency, now)
		for _, want := range []string{"| 2024-02 |", currency.Format(decimal.NewFromInt(60)), "**120%**"} {
			if !strings.Contains(md, want) {
				t.Errorf("missing %q in:\n%s", want, md)
			}
		}
	})

	t.Run("user text in cells", func(t *testing.T) {
		statuses := []core.BudgetStatus{{
			Budget: core.Budget{Name: "Food | drinks", Category: "Eat\nOut", Limit: decimal.NewFromInt(50)},
			Spent:  decimal.NewFromInt(10),
		}}
		md := reportMarkdown("alice", nil, statuses, currency, now)
		var row string
		for _, line := range strings.Split(md, "\n") {
			if strings.Contains(line, "Food") {
				row = line
			}
		}
		if !strings.Contains(row, `Food \| drinks`) || !strings.Contains(row, "Eat Out") {
			t.Fatalf("cells not escaped: %q", row)
		}
		if seps := strings.Count(row, "|") - strings.Count(row, `\|`); seps != 6 {
			t.Fatalf("expected 6 column separators, got %d in %q", seps, row)
		}
	})
}
