package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bchhabra2490/webscraper-multi-agent/internal/app"
	"github.com/bchhabra2490/webscraper-multi-agent/internal/store"
)

func newAdviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advice",
		Short: "Manages per-domain scraping advice.",
	}
	cmd.AddCommand(newAdviceAddCmd(), newAdviceListCmd())
	return cmd
}

func newAdviceAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "add <domain> <advice...>",
		Short:   "Adds advice for a domain.",
		Example: "  scraper advice add example.com Use browser_get_content with wait_until networkidle",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain := args[0]
			advice := strings.Join(args[1:], " ")
			return withApp(func(a *app.App) error {
				id, err := a.History.AddAdvice(cmd.Context(), domain, advice)
				if err != nil {
					return fmt.Errorf("adding advice: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added advice (ID: %d) for domain '%s': %s\n", id, domain, advice)
				return nil
			})
		},
	}
}

func newAdviceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [domain]",
		Short: "Lists stored advice, newest first.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var domain string
			if len(args) == 1 {
				domain = args[0]
			}
			return withApp(func(a *app.App) error {
				entries, err := a.History.GetAdvice(cmd.Context(), store.AdviceFilter{Domain: domain})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					if domain != "" {
						fmt.Fprintf(out, "No advice found for domain '%s'\n", domain)
					} else {
						fmt.Fprintln(out, "No advice found")
					}
					return nil
				}
				if domain != "" {
					fmt.Fprintf(out, "Scraping advice for %s:\n\n", domain)
				} else {
					fmt.Fprint(out, "Scraping advice:\n\n")
				}
				for _, entry := range entries {
					fmt.Fprintf(out, "[%s] %s: %s\n", entry.CreatedAt, entry.Domain, entry.Advice)
				}
				return nil
			})
		},
	}
}
