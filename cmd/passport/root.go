package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/halotuses/ai-passport-app-sub000/internal/api"
	"github.com/halotuses/ai-passport-app-sub000/internal/catalog"
	"github.com/halotuses/ai-passport-app-sub000/internal/config"
	"github.com/halotuses/ai-passport-app-sub000/internal/legacy"
	"github.com/halotuses/ai-passport-app-sub000/internal/repair"
	"github.com/halotuses/ai-passport-app-sub000/internal/session"
	"github.com/halotuses/ai-passport-app-sub000/internal/settings"
	"github.com/halotuses/ai-passport-app-sub000/internal/store"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "passport",
	Short: "Passport - Local Progress & Bookmark Store",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (overrides PASSPORT_CONFIG_PATH)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(migrateCmd)
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	setupLogger(cfg)
	slog.Info("configuration loaded")

	// 4. Initialize store (guard, migrations, WAL mode)
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	// 5. Settings file (migration flag, minted user id)
	set, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		db.Close()
		return err
	}

	// 6. One-time legacy import. A failed import leaves the completion
	// flag unset so the next startup retries; it never blocks startup.
	bridge := legacy.New(db, set, cfg.Legacy.Path)
	if err := bridge.Run(ctx); err != nil {
		slog.Error("legacy migration failed", "error", err)
	}

	// 7. Repair pass over misfiled records
	provider := catalog.NewBundleProvider(cfg.Content.BundleDir)
	if relocated := repair.New(db, provider).Run(ctx); relocated > 0 {
		slog.Info("repair pass complete", "relocated", relocated)
	}

	// 8. Background answer writer
	writer := session.NewWriter(db, cfg.Session.QueueSize)

	// 9. Initialize HTTP router. The minted learner id backs bookmark
	// requests that omit user_id; a mint failure degrades to requiring
	// the parameter.
	userID, err := set.UserID()
	if err != nil {
		slog.Error("learner id unavailable", "error", err)
	}
	handler := api.NewHandler(db, Version, userID)
	router := api.NewRouter(handler, cfg.Server.AllowedOrigins)
	slog.Info("router initialized")

	// 10. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 11. Worker lifecycle infrastructure
	var wg sync.WaitGroup
	startWorker(ctx, &wg, "answer-writer", writer.Run)

	// 12. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		// Any other error indicates an actual server failure that should trigger shutdown.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 13. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 14. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 14a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 14b. Wait for workers to complete
	wg.Wait()

	// 14c. Persist any answers still queued in the session writer
	if err := writer.Flush(shutdownCtx); err != nil {
		slog.Error("session flush error", "error", err)
	}

	// 14d. Close store
	if err := db.Close(); err != nil {
		slog.Error("store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}

	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openStore configures the open guard and opens the progress store.
func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	guard := store.NewGuard()
	guard.Configure(cfg.Database.Path)
	return store.NewSQLiteStore(cfg.Database.Path, guard)
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
