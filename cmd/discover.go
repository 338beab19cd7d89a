package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/streamline/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/streamline/internal/discovery"
	"github.com/jonesrussell/north-cloud/streamline/internal/frontier"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
)

func newDiscoverCommand() *cobra.Command {
	var frontierPath string
	var only []string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Crawl every frontier site and reconcile the titles found",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				loader := app.Frontier
				if frontierPath != "" {
					loader = frontier.NewLoader(frontierPath)
				}

				sites, skipped, err := loader.Load()
				for _, skipErr := range skipped {
					app.Log.Warn("Skipping invalid frontier site", logger.Error(skipErr))
				}
				if err != nil {
					return err
				}
				if sites, err = frontier.Select(sites, only...); err != nil {
					return err
				}

				report, err := app.Discovery.Sweep(ctx, sites)
				if report != nil {
					renderDiscoverySweep(cmd.OutOrStdout(), report)
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&frontierPath, "frontier", "", "frontier file (default from config)")
	cmd.Flags().StringSliceVar(&only, "site", nil, "only crawl the named frontier sites (repeatable)")
	return cmd
}

func newDiscoverURLCommand() *cobra.Command {
	var dryRun bool
	var externalID string

	cmd := &cobra.Command{
		Use:   "discover-url <url>",
		Short: "Run discovery for one title page",
		Long: `Render one title page, extract and classify its candidate links, and
reconcile the result into the catalog. With --dry-run nothing is written and
the verdict table is printed instead; no database is needed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dryRun {
				return previewURL(cmd, args[0])
			}

			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				report, err := app.Discovery.Run(ctx, discovery.Request{URL: args[0], ExternalID: externalID})
				if err != nil {
					return err
				}
				renderVerdicts(cmd.OutOrStdout(), report)
				if !report.Persisted {
					fmt.Fprintln(cmd.OutOrStdout(), "No playable links; nothing saved")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %d link(s) to %s\n", report.Saved, report.ExternalID)
				if report.MergedFrom != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Merged placeholder %s\n", report.MergedFrom)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "classify without writing to the catalog")
	cmd.Flags().StringVar(&externalID, "id", "", "external id the title is already stored under")
	return cmd
}

func previewURL(cmd *cobra.Command, pageURL string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	previewer, err := bootstrap.NewPreviewer(cfg, log)
	if err != nil {
		return err
	}

	report, err := previewer.Preview(cmd.Context(), pageURL)
	if err != nil {
		return err
	}

	renderVerdicts(cmd.OutOrStdout(), report)
	return nil
}
