// Command txnd runs the transaction processing worker. `txnd serve` drains
// the task queue; `txnd seed` provisions wallets and enqueues a test
// transaction against a running deployment.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "txnd",
		Short:   "OpenMarket transaction processing worker",
		Version: Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
