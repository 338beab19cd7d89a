package discovery

import "time"

const (
	defaultFrontierPath = "configs/frontier.yml"
	defaultConcurrency  = 2
	defaultPageTimeout  = 90 * time.Second
)

// Config holds discovery settings.
type Config struct {
	FrontierPath string `env:"DISCOVERY_FRONTIER_PATH" yaml:"frontier_path"`
	// Concurrency bounds detail pages processed at once during a sweep.
	Concurrency int `yaml:"concurrency"`
	// PageTimeout bounds one page's render, extract and reconcile.
	PageTimeout time.Duration `yaml:"page_timeout"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.FrontierPath == "" {
		c.FrontierPath = defaultFrontierPath
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = defaultPageTimeout
	}
}
