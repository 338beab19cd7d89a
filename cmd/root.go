// Package cmd implements the streamline command-line interface.
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/streamline/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/streamline/internal/config"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
)

// Version is set at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "streamline",
		Short: "Discover, validate and serve streaming links for movies and shows",
		Long: `streamline renders title pages, extracts and classifies candidate
streaming links, keeps them in a PostgreSQL catalog, and re-validates them
on a schedule.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd)
		},
	}

	root.PersistentFlags().String("config", "", "config file (default is $CONFIG_PATH or configs/config.yml)")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	root.AddCommand(
		newServeCommand(),
		newDiscoverCommand(),
		newDiscoverURLCommand(),
		newHealthCheckCommand(),
		newStatsCommand(),
		newMigrateCommand(),
		newVersionCommand(),
	)

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

// initConfig binds flags and environment variables through viper.
func initConfig(cmd *cobra.Command) error {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	if err := viper.BindPFlag("config", cmd.Flags().Lookup("config")); err != nil {
		return fmt.Errorf("bind config flag: %w", err)
	}
	if err := viper.BindPFlag("debug", cmd.Flags().Lookup("debug")); err != nil {
		return fmt.Errorf("bind debug flag: %w", err)
	}
	if err := viper.BindEnv("config", "CONFIG_PATH"); err != nil {
		return fmt.Errorf("bind CONFIG_PATH: %w", err)
	}
	if err := viper.BindEnv("debug", "APP_DEBUG"); err != nil {
		return fmt.Errorf("bind APP_DEBUG: %w", err)
	}
	return nil
}

// loadConfig reads the config file chosen by flag or environment.
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		path = config.DefaultPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if viper.GetBool("debug") {
		cfg.Service.Debug = true
		cfg.SetDefaults()
	}
	if cfg.Service.Version == "dev" {
		cfg.Service.Version = Version
	}
	return cfg, nil
}

// loadConfigAndLogger is the common first step of every command.
func loadConfigAndLogger() (*config.Config, logger.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log, err := bootstrap.CreateLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// withApp wires the full application, runs fn, and tears it down.
func withApp(ctx context.Context, fn func(ctx context.Context, app *bootstrap.App) error) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(context.WithoutCancel(ctx)); closeErr != nil {
			log.Error("Failed to close application", logger.Error(closeErr))
		}
	}()

	return fn(ctx, app)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "streamline version %s\n", Version)
		},
	}
}
