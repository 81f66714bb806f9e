package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AyonJD/medeasy-scraper/internal/app"
)

func newCrawlCmd() *cobra.Command {
	var resume bool

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs a full catalog crawl in the foreground",
		Long: `Discovers all product URLs from the configured category listings and
walks them one by one, storing each product before moving to the next.
With --resume, a previous run's checkpoint is picked up instead of
rediscovering the catalog.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := app.New(cmd.Context(), cfgFile)
			if err != nil {
				return err
			}
			defer application.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// A signal triggers a cooperative stop so the checkpoint lands
			// before the process exits.
			go func() {
				<-ctx.Done()
				application.Engine.Stop()
			}()

			if err := application.Engine.Run(context.WithoutCancel(ctx), resume); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("run crawl: %w", err)
			}
			application.Logger.Info("crawl command finished", zap.Bool("resume", resume))
			return nil
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the last checkpoint instead of starting fresh")
	return cmd
}
