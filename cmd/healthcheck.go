package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/streamline/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/streamline/internal/health"
)

type healthCheckFlags struct {
	limit          int
	olderThanHours float64
	timeout        time.Duration
	concurrency    int
	noPrune        bool
}

func (f healthCheckFlags) options() health.SweepOptions {
	return health.SweepOptions{
		Limit:       f.limit,
		OlderThan:   time.Duration(f.olderThanHours * float64(time.Hour)),
		Timeout:     f.timeout,
		Concurrency: f.concurrency,
	}
}

func newHealthCheckCommand() *cobra.Command {
	var flags healthCheckFlags

	cmd := &cobra.Command{
		Use:   "health-check",
		Short: "Probe due links once and prune dead titles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				sweep, err := app.Monitor.Sweep(ctx, flags.options())
				if err != nil {
					if sweep != nil {
						renderHealthReport(cmd.OutOrStdout(), sweep, nil)
					}
					return err
				}

				var prune *health.PruneReport
				if !flags.noPrune {
					prune, err = app.Monitor.Prune(ctx, sweep)
					if err != nil {
						return err
					}
				}

				renderHealthReport(cmd.OutOrStdout(), sweep, prune)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&flags.limit, "limit", 0, "maximum links to check (default from config)")
	cmd.Flags().Float64Var(&flags.olderThanHours, "older-than-hours", 0,
		"only check links not checked for this many hours (default from config)")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 0, "per-probe timeout (default from config)")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "parallel probes (default from config)")
	cmd.Flags().BoolVar(&flags.noPrune, "no-prune", false, "skip deleting titles with no active links")
	return cmd
}
