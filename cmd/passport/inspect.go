package main

import (
	"encoding/json"
	"io"
	"text/tabwriter"

	"github.com/halotuses/ai-passport-app-sub000/internal/config"
	"github.com/halotuses/ai-passport-app-sub000/internal/store"
)

var jsonOutput bool

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")
}

// openEnvironment loads configuration and opens the progress store for
// one-shot commands that run without the server.
func openEnvironment() (*config.Config, *store.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	setupLogger(cfg)

	db, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
