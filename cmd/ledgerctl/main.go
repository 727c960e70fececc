// Command ledgerctl runs one user session against the household ledgers. The
// session uses the remote store when it is reachable and the local sqlite
// store otherwise.
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

	for _, c := range sessionCommands {
		commander.Register(c, "session")
	}
	for _, c := range ledgerCommands {
		commander.Register(c, "ledgers")
	}
	for _, c := range entryCommands {
		commander.Register(c, "entries")
	}

	flag.StringVar(&identity.uid, "uid", os.Getenv("LEDGER_UID"), "uid of the signed-in user")
	flag.StringVar(&identity.name, "name", "", "display name of the signed-in user")
	flag.StringVar(&identity.email, "email", "", "email of the signed-in user")
	flag.StringVar(&identity.config, "config", "ledgerctl", "configuration file name")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
