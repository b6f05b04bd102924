package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Zuo-Peng/cc-analytics/internal/index"
	"github.com/Zuo-Peng/cc-analytics/internal/render"
	"github.com/Zuo-Peng/cc-analytics/internal/search"
)

const (
	sColorReset   = "\033[0m"
	sColorBoldRed = "\033[1;31m"
	sColorBlue    = "\033[1;34m"
	sColorGreen   = "\033[1;32m"
	sColorDim     = "\033[2m"
)

type palette struct{ on bool }

func (p palette) wrap(color, s string) string {
	if !p.on {
		return s
	}
	return color + s + sColorReset
}

func (p palette) role(role string) string {
	switch role {
	case "user":
		return p.wrap(sColorBlue, role)
	case "assistant":
		return p.wrap(sColorGreen, role)
	default:
		return role
	}
}

func (p palette) snippet(snippet string) string {
	snippet = oneLine(snippet)
	if !p.on {
		return snippet
	}
	snippet = strings.ReplaceAll(snippet, ">>>", sColorBoldRed)
	return strings.ReplaceAll(snippet, "<<<", sColorReset)
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\t", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func searchCmd() *cobra.Command {
	var project, role string
	var limit, contextN int
	var tools, perSession bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search across imported messages or tool uses",
		Long: `Search imported conversations using FTS5. Queries support FTS5 syntax:
  async AND error, "promise rejection", typescript NOT react, data*, role:user async

Queries containing CJK characters fall back to substring matching.
Output is tab separated: session_id, message_index (or tool_use_id), timestamp,
project, role (or tool name), snippet.`,
		Args: cobra.ExactArgs(1),
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

			opts := search.Options{
				Query:         args[0],
				Project:       project,
				Role:          role,
				Limit:         limit,
				OnePerSession: perSession,
			}
			p := palette{on: term.IsTerminal(int(os.Stdout.Fd()))}
			out := cmd.OutOrStdout()

			if tools {
				hits, err := search.Tools(cmd.Context(), db, opts)
				if err != nil {
					return err
				}
				if len(hits) == 0 {
					fmt.Fprintln(os.Stderr, "No results found.")
					return nil
				}
				for _, h := range hits {
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\t%s\n",
						h.SessionID, h.ToolUseID, p.wrap(sColorDim, h.Timestamp),
						h.ProjectName, h.ToolName, p.snippet(h.Snippet))
				}
				return nil
			}

			hits, err := search.Messages(cmd.Context(), db, opts)
			if err != nil {
				return err
			}
			if len(hits) == 0 {
				fmt.Fprintln(os.Stderr, "No results found.")
				return nil
			}
			for _, h := range hits {
				fmt.Fprintf(out, "%s\t%d\t%s\t%s\t%s\t%s\n",
					h.SessionID, h.MessageIndex, p.wrap(sColorDim, h.Timestamp),
					h.ProjectName, p.role(h.Role), p.snippet(h.Snippet))
				if contextN > 0 {
					if err := printContext(cmd, out, db, p, opts.Query, h, contextN); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&tools, "tools", false, "Search tool names, inputs and results instead of messages")
	cmd.Flags().StringVar(&project, "project", "", "Filter by project name")
	cmd.Flags().StringVar(&role, "role", "", "Filter by role (user/assistant)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Max results")
	cmd.Flags().IntVar(&contextN, "context", 0, "Messages to show before and after each hit")
	cmd.Flags().BoolVar(&perSession, "one-per-session", false, "Show only the best hit of each session")

	return cmd
}

func printContext(cmd *cobra.Command, out io.Writer, db *index.DB, p palette, query string, h search.MessageHit, n int) error {
	msgs, err := db.MessageContext(cmd.Context(), h.SessionID, h.MessageIndex, n)
	if err != nil {
		return err
	}
	width := 0
	if p.on {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
		}
	}
	fmt.Fprintln(out, render.Context(msgs, h.MessageIndex, render.Options{
		Query:    query,
		Width:    width,
		MaxChars: 500,
		Color:    p.on,
	}))
	return nil
}
