package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AyonJD/medeasy-scraper/internal/app"
)

func newInitCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-categories",
		Short: "Seeds the category table from configuration",
		Long: `Applies the database schema and upserts the configured category list.
Running it again after a config change refreshes names and descriptions
without touching products.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := app.New(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			defer application.Close()

			// App construction already migrated and seeded; reseeding here is
			// idempotent and reports the count.
			categories, err := application.SeedCategories(cmd.Context())
			if err != nil {
				return err
			}
			application.Logger.Info("categories initialized", zap.Int("count", len(categories)))
			return nil
		},
	}
}

func newPruneLogsCmd() *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "prune-logs",
		Short: "Deletes scrape log rows older than a cutoff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := app.New(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			defer application.Close()

			cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
			deleted, err := application.Store.PruneLogs(cmd.Context(), cutoff)
			if err != nil {
				return err
			}
			application.Logger.Info("pruned scrape logs",
				zap.Int64("deleted", deleted),
				zap.Time("cutoff", cutoff),
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 30, "delete log rows older than this many days")
	return cmd
}
