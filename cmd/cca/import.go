package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/cc-analytics/internal/index"
	"github.com/Zuo-Peng/cc-analytics/internal/scan"
)

func importCmd() *cobra.Command {
	var source string
	var full, reindexOnly bool
	var commitEvery int

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import new Claude Code transcript messages into the database",
		Long: `Scans the transcript directory and imports every message and tool use not
yet in the database. Already-imported messages are never rewritten, so the
command is safe to run repeatedly. The full-text search index is rebuilt
when anything new was imported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if source != "" {
				a.cfg.SourceRoot = source
			}
			if commitEvery > 0 {
				a.cfg.CommitEvery = commitEvery
			}

			// fail before the store is created
			if !reindexOnly {
				if err := checkSourceRoot(a.cfg.SourceRoot); err != nil {
					return err
				}
			}

			db, err := index.OpenDB(a.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			if reindexOnly {
				counts, err := db.RebuildSearchIndex(cmd.Context())
				if err != nil {
					return fmt.Errorf("rebuild search index: %w", err)
				}
				fmt.Fprintf(os.Stderr, "Search index rebuilt: messages=%d tool_uses=%d\n", counts.Messages, counts.ToolUses)
				return nil
			}

			fmt.Fprintf(os.Stderr, "Importing from %s\n", a.cfg.SourceRoot)
			fmt.Fprintf(os.Stderr, "  Database: %s\n", a.cfg.DBPath)

			stats, err := index.NewImporter(db, index.Options{
				SourceRoot:  a.cfg.SourceRoot,
				CommitEvery: a.cfg.CommitEvery,
				Full:        full,
				Logger:      a.log,
			}).Run(cmd.Context())
			if errors.Is(err, context.Canceled) {
				fmt.Fprintf(os.Stderr, "Interrupted. Committed so far: %s\n", stats)
				return err
			}
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}

			fmt.Fprintf(os.Stderr, "Done. %s\n", stats)
			if stats.Reindexed {
				fmt.Fprintf(os.Stderr, "Search index rebuilt: messages=%d tool_uses=%d\n", stats.FTS.Messages, stats.FTS.ToolUses)
			}
			fmt.Fprint(os.Stderr, index.FormatWarnings(stats.Warnings))
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Transcript directory (overrides config)")
	cmd.Flags().BoolVar(&full, "full", false, "Decode every file, even if unchanged since the last import")
	cmd.Flags().BoolVar(&reindexOnly, "reindex-only", false, "Only rebuild the full-text search index")
	cmd.Flags().IntVar(&commitEvery, "commit-every", 0, "Sessions per transaction (overrides config)")

	return cmd
}

func checkSourceRoot(root string) error {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", scan.ErrSourceMissing, root)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", scan.ErrSourceMissing, root)
	}
	return nil
}
