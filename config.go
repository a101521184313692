package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultConfigPath is read when no --config flag is given.  A missing file
// is not an error; defaults and environment variables are used instead.
const defaultConfigPath = "pinagent.yaml"

// defaultEnabledPins is the allowlist of a fully populated 16-relay board,
// listed in physical (header) numbering.  Order matters for even/odd.
var defaultEnabledPins = []int{18, 3, 22, 16, 29, 15, 31, 13, 32, 11, 33, 7, 36, 12, 37, 5}

// defaultGPIOMap translates BCM numbers (the index) to header pins on a
// 40-pin Raspberry Pi: BCM 0 is pin 27, BCM 27 is pin 13.
var defaultGPIOMap = []int{27, 28, 3, 5, 7, 29, 31, 26, 24, 21, 19, 23, 32, 33, 8, 10, 36, 11, 12, 35, 38, 40, 15, 16, 18, 22, 37, 13}

// Config is the agent configuration.  It is loaded once at startup and
// treated as immutable afterwards.
type Config struct {
	Port           int           `yaml:"port"`
	TLS            TLSConfig     `yaml:"tls"`
	EnabledPins    []int         `yaml:"enabled_pins"`
	GPIOMap        []int         `yaml:"gpio_map"`
	ActiveLow      bool          `yaml:"active_low"` // "on" drives the pin low
	Driver         string        `yaml:"driver"`     // "periph" or "memory"
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"` // 0 releases without waiting for in-flight requests
	EventLog       string        `yaml:"event_log"` // empty disables the event log
	Logger         LoggerConfig  `yaml:"logger"`
	Tracer         TracerConfig  `yaml:"tracer"`
}

// TLSConfig names the PEM files for the server identity and the CA that
// client certificates must chain to.
type TLSConfig struct {
	CertFile      string `yaml:"cert_file"`
	KeyFile       string `yaml:"key_file"`
	KeyPassphrase string `yaml:"key_passphrase"`
	CAFile        string `yaml:"ca_file"`
}

// LoggerConfig controls the diagnostic logger.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr or a file path
}

// TracerConfig controls OpenTelemetry tracing.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // stdout or noop
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Port:           3000,
		EnabledPins:    append([]int(nil), defaultEnabledPins...),
		GPIOMap:        append([]int(nil), defaultGPIOMap...),
		ActiveLow:      DefaultActiveLow,
		Driver:         DriverPeriph,
		RequestTimeout: 5 * time.Second,
		DrainTimeout:   10 * time.Second,
		EventLog:       "events.log",
		Logger:         LoggerConfig{Level: "info", Format: "text", Output: "stderr"},
		Tracer:         TracerConfig{Exporter: "stdout"},
	}
}

// LoadConfig reads a YAML file on top of the defaults.  If the file does not
// exist the defaults are returned unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("unable to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies environment variables on top of cfg.  The TLS and
// port variables keep the names used by existing deployments.
func ApplyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("SSL_SERVER_KEY"); v != "" {
		cfg.TLS.KeyFile = v
	}
	if v := os.Getenv("SSL_SERVER_KEY_PP"); v != "" {
		cfg.TLS.KeyPassphrase = v
	}
	if v := os.Getenv("SSL_SERVER_CERT"); v != "" {
		cfg.TLS.CertFile = v
	}
	if v := os.Getenv("SSL_CA_CERT"); v != "" {
		cfg.TLS.CAFile = v
	}
	if v := os.Getenv("PINAGENT_ENABLED_PINS"); v != "" {
		pins, err := parseIntList(v)
		if err != nil {
			return fmt.Errorf("PINAGENT_ENABLED_PINS: %w", err)
		}
		cfg.EnabledPins = pins
	}
	if v := os.Getenv("PINAGENT_GPIO_MAP"); v != "" {
		table, err := parseIntList(v)
		if err != nil {
			return fmt.Errorf("PINAGENT_GPIO_MAP: %w", err)
		}
		cfg.GPIOMap = table
	}
	if v := os.Getenv("PINAGENT_ACTIVE_LOW"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PINAGENT_ACTIVE_LOW: %w", err)
		}
		cfg.ActiveLow = b
	}
	if v := os.Getenv("PINAGENT_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := os.Getenv("PINAGENT_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PINAGENT_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("PINAGENT_DRAIN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PINAGENT_DRAIN_TIMEOUT: %w", err)
		}
		cfg.DrainTimeout = d
	}
	if v, ok := os.LookupEnv("PINAGENT_EVENT_LOG"); ok {
		cfg.EventLog = v
	}
	if v := os.Getenv("PINAGENT_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("PINAGENT_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("PINAGENT_LOG_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("PINAGENT_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("PINAGENT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	return nil
}

// Validate checks the configuration before anything is started.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" || c.TLS.CAFile == "" {
		errs = append(errs, errors.New("tls requires cert_file, key_file and ca_file (SSL_SERVER_CERT, SSL_SERVER_KEY, SSL_CA_CERT)"))
	}
	if _, err := NewLineRegistry(c.EnabledPins, c.GPIOMap); err != nil {
		errs = append(errs, err)
	}
	switch c.Driver {
	case DriverPeriph, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown driver %q (want %s or %s)", c.Driver, DriverPeriph, DriverMemory))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout must not be negative"))
	}
	if c.DrainTimeout < 0 {
		errs = append(errs, errors.New("drain_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, err := strconv.Atoi(field)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
