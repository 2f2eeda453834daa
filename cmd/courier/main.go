// README: Entry point; cobra root with serve, migrate and wage-table commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "courier",
		Short:         "Courier driver dispatch service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newWagesCmd(),
	)

	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
