// Command storefront is a terminal client for the grocery storefront: browse
// the catalog, keep a cart that survives restarts, and place orders.
package main

import (
	"context"
	"os"

	"github.com/itsneelabh/storefront/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
