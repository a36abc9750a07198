package engine

import (
	"time"

	"fms/internal/sandbox/enforcer"
	"fms/internal/sandbox/observer"
	"fms/internal/sandbox/proc"
	"fms/internal/sandbox/sampler"
)

const (
	// DefaultPollInterval is the monitoring tick.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultJoinGrace is added to a job's timeout to bound how long Run
	// waits for the monitoring loop.
	DefaultJoinGrace = 5 * time.Second
	// DefaultCgroupRoot is where per-job cgroups are created when enabled.
	DefaultCgroupRoot = "/sys/fs/cgroup/fms"
)

// CgroupConfig controls the optional per-job cgroup.
type CgroupConfig struct {
	Enabled bool   `yaml:"enabled"`
	Root    string `yaml:"root"`
}

// Config controls engine behavior.
type Config struct {
	PollInterval  time.Duration  `yaml:"pollInterval"`
	TimeoutMargin time.Duration  `yaml:"timeoutMargin"`
	JoinGrace     time.Duration  `yaml:"joinGrace"`
	Sampler       sampler.Config `yaml:",inline"`
	Cgroup        CgroupConfig   `yaml:"cgroup"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval:  DefaultPollInterval,
		TimeoutMargin: enforcer.TimeoutMargin,
		JoinGrace:     DefaultJoinGrace,
		Sampler:       sampler.DefaultConfig(),
		Cgroup:        CgroupConfig{Root: DefaultCgroupRoot},
	}
}

// ApplyDefaults fills zero fields with defaults.
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.TimeoutMargin <= 0 {
		c.TimeoutMargin = def.TimeoutMargin
	}
	if c.JoinGrace <= 0 {
		c.JoinGrace = def.JoinGrace
	}
	if c.Sampler.ImplausibleFloor <= 0 {
		c.Sampler.ImplausibleFloor = def.Sampler.ImplausibleFloor
	}
	if c.Sampler.MinElapsedForFallback <= 0 {
		c.Sampler.MinElapsedForFallback = def.Sampler.MinElapsedForFallback
	}
	if c.Sampler.MinUtilizationInterval <= 0 {
		c.Sampler.MinUtilizationInterval = def.Sampler.MinUtilizationInterval
	}
	if c.Sampler.FloorCoreFraction <= 0 {
		c.Sampler.FloorCoreFraction = def.Sampler.FloorCoreFraction
	}
	if c.Cgroup.Root == "" {
		c.Cgroup.Root = def.Cgroup.Root
	}
}

// Deps are the engine's collaborators. Nil fields get platform defaults.
type Deps struct {
	Source   proc.Source
	Times    proc.Times
	Recorder observer.Recorder
}
