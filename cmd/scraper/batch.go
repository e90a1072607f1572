package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/app"
)

func newBatchCmd() *cobra.Command {
	var html bool
	cmd := &cobra.Command{
		Use:   "batch [prompts-file] [output-file] [--html]",
		Short: "Runs every prompt in a file and writes a markdown report.",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				opts := a.BatchOptions()
				if len(args) > 0 {
					opts.PromptsFile = args[0]
				}
				if len(args) > 1 {
					opts.OutputFile = args[1]
				}
				opts.GenerateHTML = opts.GenerateHTML || html

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Loading prompts from: %s\n", opts.PromptsFile)
				fmt.Fprintf(out, "Output will be written to: %s\n\n", opts.OutputFile)
				summary, err := a.Batch.Run(cmd.Context(), opts)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Ran %d prompt(s): %d succeeded, %d failed\n", summary.Prompts, summary.Successful, summary.Failed)
				fmt.Fprintf(out, "Results written to: %s\n", summary.OutputMD)
				if summary.OutputHTML != "" {
					fmt.Fprintf(out, "HTML generated: %s\n", summary.OutputHTML)
				}
				fmt.Fprintln(out, "Done.")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&html, "html", false, "Also write the HTML report beside the markdown report.")
	return cmd
}
