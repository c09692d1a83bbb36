package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"
)

type accountsCmd struct {
	userFlag
}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list accounts with their balances" }
func (*accountsCmd) Usage() string {
	return `fintrackctl accounts [-user <id>]

  Lists the user's accounts with live and opening balances.
`
}

func (c *accountsCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *accountsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := c.open(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitUsageError
	}
	defer e.close()

	accounts, err := e.svc.Ledger.ListAccounts(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	if len(accounts) == 0 {
		fmt.Println("no accounts")
		return subcommands.ExitSuccess
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "ID\tName\tBalance\tOpening\t")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n", a.ID, a.Name, e.currency.Format(a.Balance), e.currency.Format(a.OpeningBalance))
	}
	if err := w.Flush(); err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
