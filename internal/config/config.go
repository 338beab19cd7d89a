package config

import (
	"fmt"

	"github.com/jonesrussell/north-cloud/streamline/internal/api"
	"github.com/jonesrussell/north-cloud/streamline/internal/classifier"
	"github.com/jonesrussell/north-cloud/streamline/internal/database"
	"github.com/jonesrussell/north-cloud/streamline/internal/discovery"
	"github.com/jonesrussell/north-cloud/streamline/internal/health"
	"github.com/jonesrussell/north-cloud/streamline/internal/logger"
	"github.com/jonesrussell/north-cloud/streamline/internal/orchestrator"
	"github.com/jonesrussell/north-cloud/streamline/internal/renderer"
	"github.com/jonesrussell/north-cloud/streamline/internal/scheduler"
)

// ServiceConfig identifies the running service.
type ServiceConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `env:"APP_ENV"   yaml:"environment"`
	Debug       bool   `env:"APP_DEBUG" yaml:"debug"`
}

// Config is the root configuration for the streamline service.
type Config struct {
	Service    ServiceConfig       `yaml:"service"`
	Logging    logger.Config       `yaml:"logging"`
	Database   database.Config     `yaml:"database"`
	Server     api.Config          `yaml:"server"`
	Renderer   renderer.Config     `yaml:"renderer"`
	Classifier classifier.Config   `yaml:"classifier"`
	Health     health.Config       `yaml:"health"`
	Refresh    orchestrator.Config `yaml:"refresh"`
	Discovery  discovery.Config    `yaml:"discovery"`
	Scheduler  scheduler.Config    `yaml:"scheduler"`
}

// Load reads the config at path, tolerating a missing file, then applies
// defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile[Config](path, true)
	if err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return cfg, nil
}

// SetDefaults fills every unset section.
func (c *Config) SetDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "streamline"
	}
	if c.Service.Version == "" {
		c.Service.Version = "dev"
	}
	if c.Service.Environment == "" {
		c.Service.Environment = "development"
	}

	c.Logging.SetDefaults()
	c.Database.SetDefaults()
	c.Server.SetDefaults()
	c.Renderer = c.Renderer.WithDefaults()
	c.Classifier.SetDefaults()
	c.Health = c.Health.WithDefaults()
	c.Refresh.SetDefaults()
	c.Discovery.SetDefaults()
	c.Scheduler.SetDefaults()

	if c.Service.Debug {
		c.Logging.Level = "debug"
		c.Logging.Development = true
		c.Server.Debug = true
	}
}
