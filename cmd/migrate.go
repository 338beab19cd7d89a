package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/streamline/internal/database"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or revert the catalog schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{database.MigrateUp, database.MigrateDown},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			applied, err := database.Migrate(cfg.Database, args[0])
			if err != nil {
				return err
			}

			log.Info("Migrations finished",
				logger.String("direction", args[0]),
				logger.Bool("changed", applied),
				logger.String("source", cfg.Database.MigrationsPath),
			)
			if !applied {
				fmt.Fprintln(cmd.OutOrStdout(), "No change")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s\n", args[0])
			return nil
		},
	}
}
