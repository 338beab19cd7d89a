package scheduler

// Default cron specs, standard five-field format.
const (
	DefaultHealthSchedule    = "0 */6 * * *"
	DefaultDiscoverySchedule = "30 2 * * *"
)

// Off disables a single task when used as its schedule.
const Off = "off"

// Config holds the periodic sweep schedules used by serve. SkipPrune runs
// health sweeps without the prune pass.
type Config struct {
	Disabled          bool   `env:"SCHEDULER_DISABLED"  yaml:"disabled"`
	HealthSchedule    string `env:"HEALTH_SCHEDULE"     yaml:"health_schedule"`
	DiscoverySchedule string `env:"DISCOVERY_SCHEDULE"  yaml:"discovery_schedule"`
	SkipPrune         bool   `yaml:"skip_prune"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.HealthSchedule == "" {
		c.HealthSchedule = DefaultHealthSchedule
	}
	if c.DiscoverySchedule == "" {
		c.DiscoverySchedule = DefaultDiscoverySchedule
	}
}
