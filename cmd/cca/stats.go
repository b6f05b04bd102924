package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	var sessions, tools bool
	var project string
	var limit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show per-project, per-session or per-tool summaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			db, err := a.openExisting()
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			switch {
			case sessions:
				rows, err := db.SessionSummaries(ctx, project, limit)
				if err != nil {
					return err
				}
				t := &table{headers: []string{"SESSION", "PROJECT", "START", "DURATION", "MSGS", "USER", "ASSISTANT", "TOOLS"}, max: 40}
				for _, s := range rows {
					t.add(s.SessionID, s.ProjectName, s.StartTime, formatDuration(s.DurationSeconds),
						s.MessageCount, s.UserMessages, s.AssistantMessages, s.ToolUseCount)
				}
				t.write(out)
			case tools:
				rows, err := db.ToolUsageSummaries(ctx)
				if err != nil {
					return err
				}
				t := &table{headers: []string{"TOOL", "USES", "ERRORS", "ERROR %", "SESSIONS", "LAST USED"}, max: 40}
				for _, u := range rows {
					t.add(u.ToolName, u.TotalUses, u.ErrorCount, fmt.Sprintf("%.2f", u.ErrorRatePercent), u.SessionsUsedIn, u.LastUsed)
				}
				t.write(out)
			default:
				rows, err := db.ProjectSummaries(ctx)
				if err != nil {
					return err
				}
				t := &table{headers: []string{"PROJECT", "SESSIONS", "MESSAGES", "TOOL USES", "FIRST", "LAST"}, max: 48}
				for _, p := range rows {
					t.add(p.ProjectName, p.TotalSessions, p.TotalMessages, p.TotalToolUses, p.FirstSession, p.LastSession)
				}
				t.write(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&sessions, "sessions", false, "List sessions instead of projects")
	cmd.Flags().BoolVar(&tools, "tools", false, "List tool usage instead of projects")
	cmd.Flags().StringVar(&project, "project", "", "Only sessions of this project id (with --sessions)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Max sessions (with --sessions, 0 = no limit)")
	cmd.MarkFlagsMutuallyExclusive("sessions", "tools")

	return cmd
}

func formatDuration(secs int64) string {
	if secs <= 0 {
		return "-"
	}
	h, m, s := secs/3600, secs%3600/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
