package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/cc-analytics/internal/index"
	"github.com/Zuo-Peng/cc-analytics/internal/scan"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify config, transcripts, database and search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			cfg := a.cfg
			ctx := cmd.Context()

			fmt.Println("=== Config ===")
			if cfg.File != "" {
				fmt.Printf("  File: %s\n", cfg.File)
			} else {
				fmt.Println("  File: (none, using defaults)")
			}
			for _, issue := range cfg.Validate() {
				fmt.Printf("  WARN: %s\n", issue)
			}

			fmt.Println("\n=== Transcripts ===")
			checkDir("Source", cfg.SourceRoot)
			projects, err := scan.ScanProjects(cfg.SourceRoot)
			if err != nil {
				fmt.Printf("  scan error: %v\n", err)
			} else {
				files := 0
				for _, p := range projects {
					files += len(p.Files)
				}
				fmt.Printf("  Projects:      %d\n", len(projects))
				fmt.Printf("  Session files: %d\n", files)
			}

			fmt.Println("\n=== Database ===")
			fmt.Printf("  Path: %s\n", cfg.DBPath)
			if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
				fmt.Println("  Status: NOT FOUND (run 'cca import' first)")
				return nil
			}

			db, err := index.OpenDB(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			counts := []struct {
				label string
				fn    func() (int, error)
			}{
				{"Projects", func() (int, error) { return db.ProjectCount(ctx) }},
				{"Sessions", func() (int, error) { return db.SessionCount(ctx) }},
				{"Messages", func() (int, error) { return db.MessageCount(ctx) }},
				{"Tool uses", func() (int, error) { return db.ToolUseCount(ctx) }},
			}
			got := make(map[string]int, len(counts))
			for _, c := range counts {
				n, err := c.fn()
				if err != nil {
					return fmt.Errorf("count %s: %w", c.label, err)
				}
				got[c.label] = n
				fmt.Printf("  %-10s %d\n", c.label+":", n)
			}

			fmt.Println("\n=== FTS5 ===")
			fts, ok, err := db.SearchIndexCounts(ctx)
			switch {
			case err != nil:
				fmt.Printf("  FTS5 error: %v\n", err)
			case !ok:
				fmt.Println("  Status: NOT BUILT (run 'cca import --reindex-only')")
			default:
				fmt.Printf("  Message entries:  %d\n", fts.Messages)
				fmt.Printf("  Tool use entries: %d\n", fts.ToolUses)
				// empty rows are not indexed, so the index may trail the tables
				if fts.Messages <= got["Messages"] && fts.ToolUses <= got["Tool uses"] {
					fmt.Println("  Status: OK")
				} else {
					fmt.Printf("  Status: STALE (messages=%d, fts=%d)\n", got["Messages"], fts.Messages)
				}
			}

			if info, err := os.Stat(cfg.DBPath); err == nil {
				sizeMB := float64(info.Size()) / 1024 / 1024
				fmt.Printf("\n=== DB Size: %.1f MB ===\n", sizeMB)
			}

			return nil
		},
	}
}

func checkDir(name, path string) {
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %s: %s (NOT FOUND)\n", name, path)
	} else if !info.IsDir() {
		fmt.Printf("  %s: %s (NOT A DIRECTORY)\n", name, path)
	} else {
		fmt.Printf("  %s: %s (OK)\n", name, path)
	}
}
