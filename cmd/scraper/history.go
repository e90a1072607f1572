package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/app"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/tools"
)

func newHistoryCmd() *cobra.Command {
	var (
		domain      string
		urlContains string
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "history [--domain <d>] [--url <substring>] [--limit <n>]",
		Short: "Prints past scrape requests with their steps.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				text, err := tools.NewHistoryTools(a.History).Search(cmd.Context(), domain, urlContains, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "Filter by domain (partial match).")
	cmd.Flags().StringVar(&urlContains, "url", "", "Filter to requests with a step URL containing this text.")
	cmd.Flags().IntVar(&limit, "limit", 30, "Maximum number of requests (1 to 100).")
	return cmd
}
