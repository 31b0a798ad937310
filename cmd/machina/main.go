// Command machina is the CLI entry point for catalog and instance tooling.
package main

import (
	"fmt"
	"os"

	"github.com/machina-io/machina/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
