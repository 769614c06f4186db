// Package config loads freightkit settings from TOML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vinayprograms/freightkit/cargo"
)

// FileName is the config file looked up in the standard locations.
const FileName = "freightkit.toml"

// Environment overrides applied after the file is decoded.
const (
	EnvAccount  = "FREIGHTKIT_ACCOUNT"
	EnvNATSURL  = "FREIGHTKIT_NATS_URL"
	EnvLogLevel = "FREIGHTKIT_LOG_LEVEL"
)

// Duration is a time.Duration written as a string ("30s", "2h") in TOML.
type Duration struct {
	time.Duration
}

// D is shorthand for building a Duration.
func D(d time.Duration) Duration {
	return Duration{d}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the full freightkit configuration.
type Config struct {
	Account   string           `toml:"account"`
	Locks     LocksConfig      `toml:"locks"`
	Health    HealthConfig     `toml:"health"`
	Shutdown  ShutdownConfig   `toml:"shutdown"`
	Retry     RetryConfig      `toml:"retry"`
	Fleet     FleetConfig      `toml:"fleet"`
	Split     SplitConfig      `toml:"split"`
	ShipTypes []ShipTypeConfig `toml:"ship_types"`
	Alerts    AlertsConfig     `toml:"alerts"`
	Telemetry TelemetryConfig  `toml:"telemetry"`
	Logging   LoggingConfig    `toml:"logging"`
}

// LocksConfig tunes the named lock manager.
type LocksConfig struct {
	DefaultTimeout Duration `toml:"default_timeout"`
	HoldWarning    Duration `toml:"hold_warning"`
}

// HealthConfig tunes heartbeat classification and waits.
type HealthConfig struct {
	StaleAfter      Duration `toml:"stale_after"`
	PollInterval    Duration `toml:"poll_interval"`
	MonitorInterval Duration `toml:"monitor_interval"`
}

// ShutdownConfig tunes the shutdown manager.
type ShutdownConfig struct {
	GracePeriod Duration `toml:"grace_period"`
	KillWait    Duration `toml:"kill_wait"`
}

// RetryConfig is the per-shipment retry budget.
type RetryConfig struct {
	MaxAttempts int        `toml:"max_attempts"`
	Backoff     []Duration `toml:"backoff"`
}

// Schedule returns the backoff as plain durations.
func (r RetryConfig) Schedule() []time.Duration {
	out := make([]time.Duration, len(r.Backoff))
	for i, d := range r.Backoff {
		out[i] = d.Duration
	}
	return out
}

// FleetConfig tunes waiting for free vessels.
type FleetConfig struct {
	VesselPoll    Duration `toml:"vessel_poll"`
	MaxVesselWait Duration `toml:"max_vessel_wait"`
}

// SplitConfig tunes the shipment splitter.
type SplitConfig struct {
	MinFill float64 `toml:"min_fill"`
}

// ShipTypeConfig declares one vessel class.
type ShipTypeConfig struct {
	Name     string `toml:"name"`
	Capacity int64  `toml:"capacity"`
}

// AlertsConfig selects where critical alerts go. Empty NATSURL keeps
// alerts in-process.
type AlertsConfig struct {
	NATSURL       string `toml:"nats_url"`
	SubjectPrefix string `toml:"subject_prefix"`
}

// TelemetryConfig configures OTLP trace export. Empty Endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string  `toml:"endpoint"`
	Protocol    string  `toml:"protocol"`
	ServiceName string  `toml:"service_name"`
	SampleRate  float64 `toml:"sample_rate"`
}

// LoggingConfig sets the console log level.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Locks: LocksConfig{
			DefaultTimeout: D(30 * time.Second),
			HoldWarning:    D(10 * time.Second),
		},
		Health: HealthConfig{
			StaleAfter:      D(10 * time.Minute),
			PollInterval:    D(5 * time.Second),
			MonitorInterval: D(30 * time.Second),
		},
		Shutdown: ShutdownConfig{
			GracePeriod: D(120 * time.Second),
			KillWait:    D(5 * time.Second),
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Backoff:     []Duration{D(5 * time.Second), D(30 * time.Second), D(60 * time.Second)},
		},
		Fleet: FleetConfig{
			VesselPoll:    D(2 * time.Minute),
			MaxVesselWait: D(2 * time.Hour),
		},
		Split: SplitConfig{
			MinFill: 0.75,
		},
		ShipTypes: defaultShipTypes(),
		Alerts: AlertsConfig{
			SubjectPrefix: "alerts",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "freightkit",
			SampleRate:  1.0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func defaultShipTypes() []ShipTypeConfig {
	return []ShipTypeConfig{
		{Name: cargo.Merchant.Name, Capacity: cargo.Merchant.Capacity},
		{Name: cargo.Freighter.Name, Capacity: cargo.Freighter.Capacity},
	}
}

// StandardPaths returns the config file locations in order of priority.
func StandardPaths() []string {
	paths := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "freightkit", FileName))
	}
	return paths
}

// Load reads the configuration. An explicit path must exist; otherwise the
// standard paths are searched and a missing file yields defaults. The
// returned string is the file actually used, empty for defaults.
func Load(path string) (*Config, string, error) {
	if path != "" {
		cfg, err := LoadFile(path)
		return cfg, path, err
	}
	for _, p := range StandardPaths() {
		if _, err := os.Stat(p); err == nil {
			cfg, err := LoadFile(p)
			return cfg, p, err
		}
	}
	cfg := Default()
	cfg.applyEnv()
	return cfg, "", cfg.Validate()
}

// LoadFile decodes one file over the defaults. Unknown keys are rejected so
// typos do not silently fall back to defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	cfg.ShipTypes = nil

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if len(cfg.ShipTypes) == 0 {
		cfg.ShipTypes = defaultShipTypes()
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML from a string over the defaults.
func Parse(content string) (*Config, error) {
	cfg := Default()
	cfg.ShipTypes = nil
	if _, err := toml.Decode(content, cfg); err != nil {
		return nil, err
	}
	if len(cfg.ShipTypes) == 0 {
		cfg.ShipTypes = defaultShipTypes()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAccount); v != "" {
		c.Account = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.Alerts.NATSURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	durations := map[string]time.Duration{
		"locks.default_timeout":   c.Locks.DefaultTimeout.Duration,
		"locks.hold_warning":      c.Locks.HoldWarning.Duration,
		"health.stale_after":      c.Health.StaleAfter.Duration,
		"health.poll_interval":    c.Health.PollInterval.Duration,
		"health.monitor_interval": c.Health.MonitorInterval.Duration,
		"shutdown.grace_period":   c.Shutdown.GracePeriod.Duration,
		"shutdown.kill_wait":      c.Shutdown.KillWait.Duration,
		"fleet.vessel_poll":       c.Fleet.VesselPoll.Duration,
		"fleet.max_vessel_wait":   c.Fleet.MaxVesselWait.Duration,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if c.Health.PollInterval.Duration == 0 {
		return fmt.Errorf("health.poll_interval must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1")
	}
	if len(c.Retry.Backoff) == 0 {
		return fmt.Errorf("retry.backoff must not be empty")
	}
	for i, d := range c.Retry.Backoff {
		if d.Duration < 0 {
			return fmt.Errorf("retry.backoff[%d] must not be negative", i)
		}
	}
	if c.Split.MinFill <= 0 || c.Split.MinFill > 1 {
		return fmt.Errorf("split.min_fill must be in (0, 1], got %v", c.Split.MinFill)
	}
	seen := make(map[string]bool)
	for _, st := range c.ShipTypes {
		if err := c.shipType(st).Validate(); err != nil {
			return err
		}
		if seen[st.Name] {
			return fmt.Errorf("ship type %s declared twice", st.Name)
		}
		seen[st.Name] = true
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http":
	default:
		return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", c.Telemetry.Protocol)
	}
	return nil
}

func (c *Config) shipType(st ShipTypeConfig) cargo.ShipType {
	return cargo.ShipType{Name: st.Name, Capacity: st.Capacity}
}

// ShipType looks up a configured ship type by name.
func (c *Config) ShipType(name string) (cargo.ShipType, bool) {
	for _, st := range c.ShipTypes {
		if st.Name == name {
			return c.shipType(st), true
		}
	}
	return cargo.ShipType{}, false
}

// ShipTypeList returns every configured ship type.
func (c *Config) ShipTypeList() []cargo.ShipType {
	out := make([]cargo.ShipType, len(c.ShipTypes))
	for i, st := range c.ShipTypes {
		out[i] = c.shipType(st)
	}
	return out
}
