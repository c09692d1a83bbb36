// Command fintrackctl inspects and maintains a fintrack ledger from the
// terminal.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&accountsCmd{}, "ledger")
	commander.Register(&reportCmd{}, "ledger")
	commander.Register(&reconcileCmd{}, "maintenance")
	commander.Register(&exportCmd{}, "maintenance")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
