package main

import (
	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/cc-analytics/internal/open"
)

func openCmd() *cobra.Command {
	var message int
	var source string

	cmd := &cobra.Command{
		Use:   "open <session_id>",
		Short: "Open the session's JSONL file in $EDITOR at a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if source != "" {
				a.cfg.SourceRoot = source
			}
			db, err := a.openExisting()
			if err != nil {
				return err
			}
			defer db.Close()

			return open.OpenSession(cmd.Context(), db, a.cfg.SourceRoot, args[0], message)
		},
	}

	cmd.Flags().IntVar(&message, "message", -1, "Message index to jump to")
	cmd.Flags().StringVar(&source, "source", "", "Transcript directory (overrides config)")

	return cmd
}
