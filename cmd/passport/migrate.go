package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/halotuses/ai-passport-app-sub000/internal/legacy"
	"github.com/halotuses/ai-passport-app-sub000/internal/settings"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Import answer history from the legacy store",
	Long:  "Runs the one-time legacy import. A no-op once the completion flag is set.",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, db, err := openEnvironment()
	if err != nil {
		return err
	}
	defer db.Close()

	set, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if set.MigrationCompleted() {
		fmt.Fprintln(out, "Legacy migration already completed.")
		return nil
	}

	if err := legacy.New(db, set, cfg.Legacy.Path).Run(context.Background()); err != nil {
		return err
	}

	fmt.Fprintln(out, "Legacy migration complete.")
	return nil
}
