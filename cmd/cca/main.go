package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/cc-analytics/internal/config"
	"github.com/Zuo-Peng/cc-analytics/internal/index"
	"github.com/Zuo-Peng/cc-analytics/internal/logging"
)

var version = "dev"

// flags shared by every command
var (
	dbFlag       string
	logLevelFlag string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "cca",
		Short:         "Claude Code Analytics - import, search and analyze Claude Code transcripts",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "Database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(openCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(doctorCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg *config.Config
	log *slog.Logger
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbFlag != "" {
		cfg.DBPath = dbFlag
	}
	if logLevelFlag != "" {
		cfg.LogLevel = logLevelFlag
	}
	log, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return &app{cfg: cfg, log: log}, nil
}

// openExisting opens the database, refusing to create an empty one for
// read-only commands.
func (a *app) openExisting() (*index.DB, error) {
	if _, err := os.Stat(a.cfg.DBPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'cca import' first)", a.cfg.DBPath)
	}
	db, err := index.OpenDB(a.cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}
