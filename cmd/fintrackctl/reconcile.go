package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
)

type reconcileCmd struct {
	userFlag
	repair bool
}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "check stored balances against transactions" }
func (*reconcileCmd) Usage() string {
	return `fintrackctl reconcile [-user <id>] [-repair]

  Recomputes every account balance from its opening balance and
  transactions and reports accounts whose stored balance differs.
  With -repair the stored balance is overwritten.
`
}

func (c *reconcileCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.BoolVar(&c.repair, "repair", false, "overwrite drifted balances")
}

func (c *reconcileCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	e, err := c.open(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitUsageError
	}
	defer e.close()

	drifts, err := e.svc.Reconciler.CheckAll(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}

	drifted := 0
	for _, d := range drifts {
		if d.Balanced() {
			continue
		}
		drifted++
		fmt.Printf("%s %s: recorded %s, expected %s (off by %s)\n",
			d.AccountID, d.Name,
			e.currency.Format(d.Recorded), e.currency.Format(d.Expected), e.currency.Format(d.Difference()))
		if c.repair {
			if _, err := e.svc.Reconciler.Repair(ctx, d.AccountID); err != nil {
				fail(err)
				return subcommands.ExitFailure
			}
			fmt.Printf("  repaired\n")
		}
	}

	fmt.Printf("%d accounts checked, %d drifted\n", len(drifts), drifted)
	if drifted > 0 && !c.repair {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
