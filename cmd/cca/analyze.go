package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Zuo-Peng/cc-analytics/internal/analysis"
)

func analyzeCmd() *cobra.Command {
	var kind, prompt, model, output string
	var dryRun, list bool

	cmd := &cobra.Command{
		Use:   "analyze <session_id>",
		Short: "Run an LLM analysis over a stored session",
		Long: `Renders the session transcript into the prompt of an analysis type and
sends it to an OpenAI-compatible chat-completion endpoint (OpenRouter by
default). Use --list to see the available types, --type custom with --prompt
for an ad-hoc question, and --dry-run to print the prompt without a request.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			registry, err := analysis.LoadRegistry(a.cfg.PromptsDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if list {
				t := &table{headers: []string{"TYPE", "NAME", "DESCRIPTION"}, max: 72}
				for _, ty := range registry.Types() {
					t.add(ty.Key, ty.Name, ty.Description)
				}
				t.add(analysis.Custom, "Custom Analysis", "Your own prompt, given with --prompt")
				t.write(out)
				return nil
			}

			if prompt != "" && !cmd.Flags().Changed("type") {
				kind = analysis.Custom
			}
			if _, ok := registry.Lookup(kind); !ok {
				return fmt.Errorf("%w: %s (see 'cca analyze --list')", analysis.ErrUnknownType, kind)
			}

			db, err := a.openExisting()
			if err != nil {
				return err
			}
			defer db.Close()

			transcript, err := analysis.Transcript(cmd.Context(), db, args[0])
			if err != nil {
				return err
			}
			rendered, err := registry.Render(kind, prompt, transcript)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintln(out, rendered)
				return nil
			}

			if model == "" {
				model = a.cfg.LLM.Model
			}
			client, err := analysis.NewClient(a.cfg.LLM)
			if err != nil {
				return err
			}
			a.log.Info("requesting analysis",
				"session", args[0], "type", kind, "model", model, "prompt_chars", len(rendered))
			res, err := analysis.Run(cmd.Context(), client, model, rendered)
			if err != nil {
				return err
			}

			if output != "" {
				if err := os.WriteFile(output, []byte(res.Text+"\n"), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				fmt.Fprintf(os.Stderr, "Analysis written to %s\n", output)
			} else {
				fmt.Fprintln(out, res.Text)
			}
			fmt.Fprintf(os.Stderr, "Model: %s  input tokens: %d  output tokens: %d\n",
				res.Model, res.InputTokens, res.OutputTokens)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "type", "decisions", "Analysis type (see --list)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Custom prompt (implies --type custom)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (overrides config)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the analysis to a file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the rendered prompt without calling the LLM")
	cmd.Flags().BoolVar(&list, "list", false, "List analysis types")

	return cmd
}
