package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"fintrack/internal/export"

	"github.com/google/subcommands"
)

type exportCmd struct {
	userFlag
	out string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "write a JSON snapshot of a user's ledger" }
func (*exportCmd) Usage() string {
	return `fintrackctl export [-user <id>] -out <path|gs://bucket/object>

  Writes every collection of the user as one JSON document, either to a
  local file or to a Cloud Storage object.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.out, "out", "", "destination file or gs:// URI")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	writer, err := export.NewWriter(c.out)
	if err != nil {
		fail(err)
		return subcommands.ExitUsageError
	}
	e, err := c.open(ctx)
	if err != nil {
		fail(err)
		return subcommands.ExitUsageError
	}
	defer e.close()

	snap, err := export.Build(ctx, e.backend.Store, e.scope, time.Now().UTC())
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	if err := writer.Write(ctx, snap); err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	fmt.Printf("exported %d accounts and %d transactions to %s\n", len(snap.Accounts), len(snap.Transactions), c.out)
	return subcommands.ExitSuccess
}
