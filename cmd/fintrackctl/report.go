package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/services"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
)

type reportCmd struct {
	userFlag
	raw bool
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "display the monthly income and expense report" }
func (*reportCmd) Usage() string {
	return `fintrackctl report [-user <id>] [-raw]

  Renders income and expense per month plus the current budget status.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.BoolVar(&c.raw, "raw", false, "print markdown without terminal styling")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := c.open(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitUsageError
	}
	defer e.close()

	txs, err := e.svc.Ledger.ListTransactions(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	statuses, err := e.svc.Budgets.Statuses(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	now := time.Now()
	md := reportMarkdown(e.scope.UserID, services.MonthlyReport(txs, now.Location()), statuses, e.currency, now)
	if c.raw {
		fmt.Print(md)
		return subcommands.ExitSuccess
	}
	if err := printMarkdown(md); err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func reportMarkdown(userID string, months []core.MonthTotals, statuses []core.BudgetStatus, currency *core.CurrencyFormatter, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Report for %s\n\n", userID)
	fmt.Fprintf(&b, "_Generated %s_\n\n", now.Format("2006-01-02 15:04"))

	b.WriteString("## Monthly totals\n\n")
	if len(months) == 0 {
		b.WriteString("No transactions yet.\n\n")
	} else {
		b.WriteString("| Month | Income | Expense | Net |\n")
		b.WriteString("|---|--:|--:|--:|\n")
		for _, m := range months {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				m.Month, currency.Format(m.Income), currency.Format(m.Expense), currency.Format(m.Income.Sub(m.Expense)))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Budgets this month\n\n")
	if len(statuses) == 0 {
		b.WriteString("No budgets defined.\n")
		return b.String()
	}
	b.WriteString("| Budget | Category | Spent | Limit | Used |\n")
	b.WriteString("|---|---|--:|--:|--:|\n")
	for _, st := range statuses {
		used := fmt.Sprintf("%.0f%%", st.Percent)
		if st.OverLimit {
			used = "**" + used + "**"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			tableCell(st.Budget.Name), tableCell(st.Budget.Category), currency.Format(st.Spent), currency.Format(st.Budget.Limit), used)
	}
	return b.String()
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\r", " ", "\n", " ")

// tableCell makes user text safe inside a markdown table row.
func tableCell(s string) string {
	return cellEscaper.Replace(s)
}

func printMarkdown(md string) error {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return err
	}
	out, err := r.Render(md)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
