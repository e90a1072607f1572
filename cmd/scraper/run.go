package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/app"
)

const defaultPrompt = "Scrape https://example.com and summarize what the page is about."

func newRunCmd() *cobra.Command {
	var scraperOnly bool
	cmd := &cobra.Command{
		Use:   "run [prompt] [--scraper-only]",
		Short: "Runs the evaluator and scraper agents on one prompt.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := defaultPrompt
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				prompt = args[0]
			}
			return withApp(func(a *app.App) error {
				out := cmd.OutOrStdout()
				if scraperOnly {
					fmt.Fprintf(out, "[Scraper only] Prompt: %s\n\n", prompt)
					ctx, _, err := a.History.StartRequest(cmd.Context(), prompt)
					if err != nil {
						return err
					}
					result, err := a.Scraper.Run(ctx, prompt)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, result.Output)
					return nil
				}

				fmt.Fprintf(out, "[Evaluator + Scraper] Prompt: %s\n\n", prompt)
				result := a.Batch.RunPrompt(cmd.Context(), prompt)
				if result.Error != "" {
					return errors.New(result.Error)
				}
				fmt.Fprintln(out, result.Output)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&scraperOnly, "scraper-only", false, "Run only the scraper agent; no final result is recorded.")
	return cmd
}
