package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show progress store statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	_, db, err := openEnvironment()
	if err != nil {
		return err
	}
	defer db.Close()

	stats := db.Stats(context.Background())
	out := cmd.OutOrStdout()

	if jsonOutput {
		return printJSON(out, stats)
	}

	fmt.Fprintf(out, "Records:     %d\n", stats.TotalRecords)
	fmt.Fprintf(out, "Correct:     %d\n", stats.CorrectCount)
	fmt.Fprintf(out, "Incorrect:   %d\n", stats.IncorrectCount)
	fmt.Fprintf(out, "Unanswered:  %d\n", stats.UnansweredCount)
	fmt.Fprintf(out, "Bookmarks:   %d\n", stats.BookmarkCount)
	fmt.Fprintf(out, "Streak:      %d\n", stats.CorrectStreak)

	return nil
}
