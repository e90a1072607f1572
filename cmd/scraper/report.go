package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/batch"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/config"
)

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "report <input.md> [output.html]",
		Short:   "Renders a markdown batch report as HTML.",
		Example: "  scraper report results/output.md results/output.html",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			output := config.HTMLPath(input)
			if len(args) == 2 {
				output = args[1]
			}
			data, err := os.ReadFile(input)
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("input file not found: %s", input)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Reading: %s\n", input)
			report := batch.ParseMarkdown(string(data))
			fmt.Fprintf(out, "Found %d prompt(s)\n", len(report.Results))
			if err := batch.WriteHTML(output, report); err != nil {
				return err
			}
			fmt.Fprintf(out, "HTML generated: %s\n", output)
			return nil
		},
	}
}
