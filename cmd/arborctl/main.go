// arborctl manages arbor accounts and inspects item trees.
//
//	arborctl user add <login> <tenant> --password ...
//	arborctl user remove <login>
//	arborctl user list
//	arborctl list [parent] --since N
//	arborctl fetch <id>...
//
// User commands open the account database directly and should run on
// the server host. list and fetch speak the sync protocol.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	root := &command{
		name:    "arborctl",
		summary: "Manage arbor accounts and inspect item trees.",
		subcommands: []*command{
			userCommand(stdout),
			listCommand(stdout),
			fetchCommand(stdout),
		},
	}
	return root.execute(args, stderr)
}

// envOr returns the environment variable key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
