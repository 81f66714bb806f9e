// Package cmd defines the CLI commands for the medeasy-scraper executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "medeasy-scraper",
		Short: "A pharmacy catalog scraper with resumable crawls",
		Long: `medeasy-scraper walks an online pharmacy's category tree, extracts
normalized medicine records and product images, and stores them in Postgres.
Crawls checkpoint after every item, so an interrupted run resumes exactly
where it stopped.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is built-in defaults plus MEDEASY_* environment)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInitCategoriesCmd())
	cmd.AddCommand(newPruneLogsCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
