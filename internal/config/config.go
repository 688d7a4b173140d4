// Package config manages the go8021x daemon configuration using koanf/v2.
//
// Supports YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete go8021x daemon configuration.
type Config struct {
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Ctrl    CtrlConfig    `koanf:"ctrl"`
	Port    PortConfig    `koanf:"port"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// CtrlConfig holds the D-Bus control-socket configuration used to expose
// the supplicant's status, logoff and reauthentication to external callers (wpa_cli /
// hostapd-style ctrl interfaces, but over D-Bus rather than a UNIX socket).
type CtrlConfig struct {
	// BusName is the well-known D-Bus name the daemon requests, e.g.
	// "net.go8021x.Supplicant".
	BusName string `koanf:"bus_name"`
	// ObjectPath is the object path the supplicant is exported under.
	ObjectPath string `koanf:"object_path"`
}

// PortConfig holds the per-port EAPOL state machine parameters. These map directly onto
// eapol.Config and can be overridden per deployment.
type PortConfig struct {
	// Interface is the network interface the PAE socket binds to.
	Interface string `koanf:"interface"`

	// HeldPeriod is the ceiling for heldWhile (seconds).
	HeldPeriod int `koanf:"held_period"`

	// AuthPeriod is the ceiling for authWhile (seconds).
	AuthPeriod int `koanf:"auth_period"`

	// StartPeriod is the ceiling for startWhen between EAPOL-Start
	// retransmissions (seconds).
	StartPeriod int `koanf:"start_period"`

	// MaxStart is the total number of EAPOL-Start frames sent before
	// falling back to HELD.
	MaxStart int `koanf:"max_start"`

	// Accept8021xKeys allows dynamic-WEP EAPOL-Key frames to be processed
	// and, with RequiredKeys == 0, allows a plaintext EAP success to
	// authorize the port without any key exchange.
	Accept8021xKeys bool `koanf:"accept_8021x_keys"`

	// RequiredKeys is a bitmask (1 = unicast, 2 = broadcast, 3 = both) of
	// dynamic-WEP keys that must be installed before portValid is set.
	RequiredKeys uint8 `koanf:"required_keys"`

	// PortControl selects Auto, ForceAuthorized, or ForceUnauthorized.
	PortControl string `koanf:"port_control"`

	// Identity is the EAP-Identity responded with in answer to an
	// Identity request (RFC 3748 Section 5.1).
	Identity string `koanf:"identity"`

	// Password is the shared secret used to compute EAP-MD5-Challenge
	// responses (RFC 1994 Section 4.1).
	Password string `koanf:"password"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults, mirroring
// IEEE 802.1X-2010 Table 8-1's recommended default timer values.
func DefaultConfig() *Config {
	return &Config{
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Ctrl: CtrlConfig{
			BusName:    "net.go8021x.Supplicant",
			ObjectPath: "/net/go8021x/Supplicant",
		},
		Port: PortConfig{
			HeldPeriod:      60,
			AuthPeriod:      30,
			StartPeriod:     30,
			MaxStart:        3,
			Accept8021xKeys: false,
			RequiredKeys:    0,
			PortControl:     "auto",
			Identity:        "",
			Password:        "",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for go8021x configuration.
// Variables are named GO8021X_<section>_<key>, e.g., GO8021X_PORT_INTERFACE.
const envPrefix = "GO8021X_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (GO8021X_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	GO8021X_PORT_INTERFACE -> port.interface
//	GO8021X_METRICS_ADDR    -> metrics.addr
//	GO8021X_LOG_LEVEL       -> log.level
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms GO8021X_PORT_INTERFACE -> port.interface.
// Strips the GO8021X_ prefix, lowercases, and replaces _ with .
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, "_", ".")
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"metrics.addr":           defaults.Metrics.Addr,
		"metrics.path":           defaults.Metrics.Path,
		"log.level":              defaults.Log.Level,
		"log.format":             defaults.Log.Format,
		"ctrl.bus_name":          defaults.Ctrl.BusName,
		"ctrl.object_path":       defaults.Ctrl.ObjectPath,
		"port.interface":         defaults.Port.Interface,
		"port.held_period":       defaults.Port.HeldPeriod,
		"port.auth_period":       defaults.Port.AuthPeriod,
		"port.start_period":      defaults.Port.StartPeriod,
		"port.max_start":         defaults.Port.MaxStart,
		"port.accept_8021x_keys": defaults.Port.Accept8021xKeys,
		"port.required_keys":     defaults.Port.RequiredKeys,
		"port.port_control":      defaults.Port.PortControl,
		"port.identity":          defaults.Port.Identity,
		"port.password":          defaults.Port.Password,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyInterface indicates no network interface was configured.
	ErrEmptyInterface = errors.New("port.interface must not be empty")

	// ErrInvalidHeldPeriod indicates the held period is not positive.
	ErrInvalidHeldPeriod = errors.New("port.held_period must be > 0")

	// ErrInvalidAuthPeriod indicates the auth period is not positive.
	ErrInvalidAuthPeriod = errors.New("port.auth_period must be > 0")

	// ErrInvalidStartPeriod indicates the start period is not positive.
	ErrInvalidStartPeriod = errors.New("port.start_period must be > 0")

	// ErrInvalidRequiredKeys indicates required_keys is outside [0,3].
	ErrInvalidRequiredKeys = errors.New("port.required_keys must be between 0 and 3")

	// ErrInvalidPortControl indicates an unrecognized port_control value.
	ErrInvalidPortControl = errors.New("port.port_control must be auto, force_authorized, or force_unauthorized")
)

// ValidPortControlValues lists the recognized port_control strings.
var ValidPortControlValues = map[string]bool{
	"auto":               true,
	"force_authorized":   true,
	"force_unauthorized": true,
}

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Port.Interface == "" {
		return ErrEmptyInterface
	}

	if cfg.Port.HeldPeriod <= 0 {
		return ErrInvalidHeldPeriod
	}

	if cfg.Port.AuthPeriod <= 0 {
		return ErrInvalidAuthPeriod
	}

	if cfg.Port.StartPeriod <= 0 {
		return ErrInvalidStartPeriod
	}

	if cfg.Port.RequiredKeys > 3 {
		return ErrInvalidRequiredKeys
	}

	if cfg.Port.PortControl != "" && !ValidPortControlValues[cfg.Port.PortControl] {
		return fmt.Errorf("port.port_control %q: %w", cfg.Port.PortControl, ErrInvalidPortControl)
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Duration converts a koanf integer-seconds field to a time.Duration. The
// eapol package's own Config and Timers types are built directly from
// PortConfig's integer fields by the daemon's wiring code, to avoid an
// import cycle (internal/eapol must not depend on internal/config).
func (pc PortConfig) Duration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
