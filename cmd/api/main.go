// Serve-only entrypoint for deployments that run the API without the
// import/sync subcommands.
package main

import (
	"os"

	"github.com/finledger/bankfeed/internal/commands"
)

func main() {
	cmd := commands.NewRootCommand()
	cmd.SetArgs(append([]string{"serve"}, os.Args[1:]...))
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
