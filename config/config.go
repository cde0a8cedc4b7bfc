// Package config loads the TOML configuration shared by the yeelight
// command and the controller.
package config

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/juju/errors"

	"github.com/alparslanahmed/yeelight"
)

// Duration is a time.Duration written as a string ("500ms", "5s").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.NotValidf("duration %q", text)
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// TransitionConfig is the default transition of the CLI commands.
type TransitionConfig struct {
	Effect     string `toml:"effect"`
	DurationMs uint32 `toml:"durationMs"`
}

// RetryConfig tunes the controller's reconnect-and-resend policy.
type RetryConfig struct {
	Attempts int      `toml:"attempts"`
	Delay    Duration `toml:"delay"`
	MaxDelay Duration `toml:"maxDelay"`
}

// LoggingConfig holds a loggo specification such as
// "<root>=INFO;yeelight.session=TRACE".
type LoggingConfig struct {
	Spec string `toml:"spec"`
}

// Config aggregates the settings for one device.
type Config struct {
	Address     string           `toml:"address"`
	DialTimeout Duration         `toml:"dialTimeout"`
	IOTimeout   Duration         `toml:"ioTimeout"`
	QueueSize   int              `toml:"queueSize"`
	Transition  TransitionConfig `toml:"transition"`
	Retry       RetryConfig      `toml:"retry"`
	Logging     LoggingConfig    `toml:"logging"`
}

// Default returns the built-in configuration. Address is left empty.
func Default() *Config {
	return &Config{
		DialTimeout: Duration{yeelight.DefaultDialTimeout},
		IOTimeout:   Duration{5 * time.Second},
		QueueSize:   16,
		Transition: TransitionConfig{
			Effect:     yeelight.Smooth.String(),
			DurationMs: 500,
		},
		Retry: RetryConfig{
			Attempts: 3,
			Delay:    Duration{500 * time.Millisecond},
			MaxDelay: Duration{5 * time.Second},
		},
		Logging: LoggingConfig{Spec: "<root>=WARNING"},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/yeelight/config.toml or its
// equivalent on the platform.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Trace(err)
	}
	return filepath.Join(dir, "yeelight", "config.toml"), nil
}

// Load reads config.toml from path. Keys missing from the file keep their
// default; unknown keys are an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return Parse(data)
}

// Parse decodes a TOML document over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, errors.Annotate(err, "decoding config")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.NotValidf("unknown config keys %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating the parent directory.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return errors.Trace(err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return errors.Annotate(err, "encoding config")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(os.WriteFile(path, buf.Bytes(), 0o644))
}

// Validate checks the settings.
func (cfg *Config) Validate() error {
	if cfg.Address != "" {
		if _, err := cfg.DeviceAddress(); err != nil {
			return errors.Trace(err)
		}
	}
	if cfg.DialTimeout.Duration < 0 {
		return errors.NotValidf("dialTimeout %v", cfg.DialTimeout)
	}
	if cfg.IOTimeout.Duration < 0 {
		return errors.NotValidf("ioTimeout %v", cfg.IOTimeout)
	}
	if cfg.QueueSize < 1 {
		return errors.NotValidf("queueSize %d", cfg.QueueSize)
	}
	if _, err := yeelight.ParseEffect(cfg.Transition.Effect); err != nil {
		return errors.Annotate(err, "transition.effect")
	}
	if cfg.Retry.Attempts < 1 {
		return errors.NotValidf("retry.attempts %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Delay.Duration <= 0 {
		return errors.NotValidf("retry.delay %v", cfg.Retry.Delay)
	}
	return nil
}

// DeviceAddress returns Address as host:port, adding yeelight.DefaultPort
// when the port is missing.
func (cfg *Config) DeviceAddress() (string, error) {
	if cfg.Address == "" {
		return "", errors.NotValidf("empty address")
	}
	host, port, err := net.SplitHostPort(cfg.Address)
	if err != nil {
		// No port given.
		return net.JoinHostPort(strings.Trim(cfg.Address, "[]"), strconv.Itoa(yeelight.DefaultPort)), nil
	}
	if host == "" {
		return "", errors.NotValidf("address %q without host", cfg.Address)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return "", errors.NotValidf("port %q", port)
	}
	return cfg.Address, nil
}

// Effect returns the configured transition effect.
func (cfg *Config) Effect() yeelight.Effect {
	e, err := yeelight.ParseEffect(cfg.Transition.Effect)
	if err != nil {
		return yeelight.Smooth
	}
	return e
}

// TransitionDuration returns the configured transition length.
func (cfg *Config) TransitionDuration() yeelight.TransitionDuration {
	return yeelight.TransitionDuration(cfg.Transition.DurationMs)
}

// SessionOptions returns the session options the config describes.
func (cfg *Config) SessionOptions() []yeelight.SessionOption {
	return []yeelight.SessionOption{
		yeelight.WithDialTimeout(cfg.DialTimeout.Duration),
		yeelight.WithIOTimeout(cfg.IOTimeout.Duration),
	}
}
