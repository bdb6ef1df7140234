package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halotuses/ai-passport-app-sub000/internal/catalog"
	"github.com/halotuses/ai-passport-app-sub000/internal/repair"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Relocate misfiled progress records against the content catalog",
	Args:  cobra.NoArgs,
	RunE:  runRepair,
}

func runRepair(cmd *cobra.Command, args []string) error {
	cfg, db, err := openEnvironment()
	if err != nil {
		return err
	}
	defer db.Close()

	provider := catalog.NewBundleProvider(cfg.Content.BundleDir)
	relocated := repair.New(db, provider).Run(context.Background())

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, map[string]any{"relocated": relocated})
	}

	fmt.Fprintf(out, "Relocated %d record(s).\n", relocated)
	return nil
}
