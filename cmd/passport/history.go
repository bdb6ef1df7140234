package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently answered questions",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20,
		"Maximum number of records to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	_, db, err := openEnvironment()
	if err != nil {
		return err
	}
	defer db.Close()

	records := db.FetchHistory(context.Background(), historyLimit)
	out := cmd.OutOrStdout()

	if jsonOutput {
		return printJSON(out, records)
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No answered questions.")
		return nil
	}

	tw := newTabWriter(out)
	fmt.Fprintln(tw, "KEY\tSTATUS\tUPDATED")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			rec.QuizID,
			rec.Status,
			rec.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return tw.Flush()
}
