package main

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the progress store and its inspection API",
	Long: `Open the progress store, run the one-time legacy import and a repair
pass, then serve the read-only inspection API until interrupted.`,
	RunE: run,
}
