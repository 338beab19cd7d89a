package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/streamline/internal/bootstrap"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic sweeps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, app *bootstrap.App) error {
				return bootstrap.Serve(ctx, app)
			})
		},
	}
}
