// Package config loads the fms YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"fms/internal/ledger"
	"fms/internal/sandbox/engine"
	"fms/internal/sandbox/spec"
	"fms/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	DefaultLedgerBackend     = "file"
	DefaultLedgerDir         = "."
	DefaultUser              = "default"
	DefaultCPUSeconds        = 60
	DefaultMemoryMB          = 500
	DefaultTimeoutSeconds    = 120
	DefaultServerAddr        = "127.0.0.1:8080"
	DefaultAuthIssuer        = "fms"
	DefaultTokenTTL          = 24 * time.Hour
	DefaultMaxConcurrentJobs = 4
	DefaultSlotWait          = 2 * time.Second
	DefaultReadTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Minute
	DefaultHistoryFile       = ".fms_history"

	// AuthSecretEnv overrides server.auth.secret.
	AuthSecretEnv = "FMS_AUTH_SECRET"

	BackendFile  = "file"
	BackendRedis = "redis"
)

// LedgerConfig selects where balances and usage logs live.
type LedgerConfig struct {
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	ArchiveDir string `yaml:"archiveDir"`
	// Mode is the payment mode sessions start in; empty leaves it unset.
	Mode string `yaml:"mode"`
	User string `yaml:"user"`
}

// SessionConfig configures quota sessions.
type SessionConfig struct {
	// QuotaSeconds is the CPU allowance of a session without a ledger.
	QuotaSeconds float64 `yaml:"quotaSeconds"`
}

// MetricsConfig controls metric export for one-shot runs.
type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	MaxConcurrentJobs int           `yaml:"maxConcurrentJobs"`
	SlotWait          time.Duration `yaml:"slotWait"`
	ReadTimeout       time.Duration `yaml:"readTimeout"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	Auth              AuthConfig    `yaml:"auth"`
}

// AuthConfig configures bearer-token authentication of the API.
type AuthConfig struct {
	// Secret signs HS256 tokens; FMS_AUTH_SECRET overrides it.
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
	// Disabled serves the API without tokens. Only for trusted, local use.
	Disabled bool          `yaml:"disabled"`
	TokenTTL time.Duration `yaml:"tokenTTL"`
}

// REPLConfig configures the interactive shell.
type REPLConfig struct {
	HistoryFile string `yaml:"historyFile"`
}

// Config is the full fms configuration.
type Config struct {
	Logger   logger.Config      `yaml:"logger"`
	Engine   engine.Config      `yaml:"engine"`
	Ledger   LedgerConfig       `yaml:"ledger"`
	Redis    ledger.RedisConfig `yaml:"redis"`
	Defaults spec.Quota         `yaml:"defaults"`
	Session  SessionConfig      `yaml:"session"`
	Metrics  MetricsConfig      `yaml:"metrics"`
	Server   ServerConfig       `yaml:"server"`
	REPL     REPLConfig         `yaml:"repl"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// Load reads the YAML file at path. An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file failed: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file failed: %w", err)
		}
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks values defaults cannot repair.
func (c Config) Validate() error {
	switch c.Ledger.Backend {
	case BackendFile:
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("ledger backend redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Ledger.Mode != "" {
		if _, err := ledger.ParseMode(c.Ledger.Mode); err != nil {
			return err
		}
	}
	if err := ledger.ValidateUser(c.Ledger.User); err != nil {
		return fmt.Errorf("invalid ledger.user: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	cfg.Engine.ApplyDefaults()

	if cfg.Ledger.Backend == "" {
		cfg.Ledger.Backend = DefaultLedgerBackend
	}
	if cfg.Ledger.Dir == "" {
		cfg.Ledger.Dir = DefaultLedgerDir
	}
	if cfg.Ledger.User == "" {
		cfg.Ledger.User = DefaultUser
	}

	def := ledger.DefaultRedisConfig()
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = def.KeyPrefix
	}
	if cfg.Redis.MaxRetries == 0 {
		cfg.Redis.MaxRetries = def.MaxRetries
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = def.DialTimeout
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = def.ReadTimeout
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = def.WriteTimeout
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = def.PoolSize
	}

	if cfg.Defaults.CPUSeconds == 0 {
		cfg.Defaults.CPUSeconds = DefaultCPUSeconds
	}
	if cfg.Defaults.MemoryMB == 0 {
		cfg.Defaults.MemoryMB = DefaultMemoryMB
	}
	if cfg.Defaults.TimeoutSeconds == 0 {
		cfg.Defaults.TimeoutSeconds = DefaultTimeoutSeconds
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Server.Auth.Issuer == "" {
		cfg.Server.Auth.Issuer = DefaultAuthIssuer
	}
	if cfg.Server.Auth.TokenTTL <= 0 {
		cfg.Server.Auth.TokenTTL = DefaultTokenTTL
	}
	if env := os.Getenv(AuthSecretEnv); env != "" {
		cfg.Server.Auth.Secret = env
	}
	if cfg.Server.MaxConcurrentJobs <= 0 {
		cfg.Server.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if cfg.Server.SlotWait <= 0 {
		cfg.Server.SlotWait = DefaultSlotWait
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout <= 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}

	if cfg.REPL.HistoryFile == "" {
		cfg.REPL.HistoryFile = DefaultHistoryFile
	}
}
