// ABOUTME: Configuration loading and parsing for the session gateway.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete session gateway configuration.
// It is loaded once per process and immutable thereafter.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Worker   WorkerConfig   `yaml:"worker"`
	Sessions SessionsConfig `yaml:"sessions"`
	Media    MediaConfig    `yaml:"media"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the gateway's own HTTP listen address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// WorkerConfig holds the address and credentials of the messaging worker
// process, plus the per-call control-plane timeouts.
type WorkerConfig struct {
	// BaseURL is the worker's control endpoint root, e.g. "http://127.0.0.1:3100".
	BaseURL string `yaml:"base_url"`

	// WSURL is the worker's event channel root, e.g. "ws://127.0.0.1:3100/events".
	// One channel is dialed per active session at WSURL/<session-id>.
	WSURL string `yaml:"ws_url"`

	// AdminToken authenticates both the gateway's callers and the
	// gateway's own calls to the worker. Externally supplied tokens are
	// never forwarded; this one is always injected.
	AdminToken string `yaml:"admin_token"`

	StartTimeout  time.Duration `yaml:"-"`
	StatusTimeout time.Duration `yaml:"-"`
	StopTimeout   time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	StartTimeoutRaw  string `yaml:"start_timeout"`
	StatusTimeoutRaw string `yaml:"status_timeout"`
	StopTimeoutRaw   string `yaml:"stop_timeout"`
}

// SessionsConfig holds session lifecycle and dispatch pacing settings.
type SessionsConfig struct {
	// MaxConcurrent caps the number of sessions in the registry. 0 means
	// unlimited.
	MaxConcurrent int `yaml:"max_concurrent"`

	// MaxRetries is the dial retry budget for establishing a session's
	// event channel.
	MaxRetries int `yaml:"max_retries"`

	MessageDelay      time.Duration `yaml:"-"`
	SessionTimeout    time.Duration `yaml:"-"`
	ReconcileInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	MessageDelayRaw      string `yaml:"message_delay"`
	SessionTimeoutRaw    string `yaml:"session_timeout"`
	ReconcileIntervalRaw string `yaml:"reconcile_interval"`
}

// MediaConfig holds outbound media validation settings.
type MediaConfig struct {
	// AllowedTypes lists the message types accepted by the dispatcher's
	// media operations (image, audio, video, document).
	AllowedTypes []string `yaml:"allowed_types"`

	// MaxSizeBytes is the declared size ceiling forwarded to the worker.
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the corresponding field is absent from the file.
const (
	DefaultStartTimeout  = 30 * time.Second
	DefaultStatusTimeout = 10 * time.Second
	DefaultStopTimeout   = 10 * time.Second
	DefaultMessageDelay  = 1 * time.Second
	DefaultMaxRetries    = 3
)

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values and defaults are
// applied before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset timing fields with their documented defaults.
func applyDefaults(cfg *Config) {
	if cfg.Worker.StartTimeout == 0 {
		cfg.Worker.StartTimeout = DefaultStartTimeout
	}
	if cfg.Worker.StatusTimeout == 0 {
		cfg.Worker.StatusTimeout = DefaultStatusTimeout
	}
	if cfg.Worker.StopTimeout == 0 {
		cfg.Worker.StopTimeout = DefaultStopTimeout
	}
	if cfg.Sessions.MessageDelay == 0 {
		cfg.Sessions.MessageDelay = DefaultMessageDelay
	}
	if cfg.Sessions.MaxRetries == 0 {
		cfg.Sessions.MaxRetries = DefaultMaxRetries
	}
	if len(cfg.Media.AllowedTypes) == 0 {
		cfg.Media.AllowedTypes = []string{"image", "audio", "video", "document"}
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first validation failure.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Worker.BaseURL == "" {
		return fmt.Errorf("worker.base_url is required")
	}
	if c.Worker.WSURL == "" {
		return fmt.Errorf("worker.ws_url is required")
	}
	if c.Worker.AdminToken == "" {
		return fmt.Errorf("worker.admin_token is required")
	}
	if c.Sessions.MaxConcurrent < 0 {
		return fmt.Errorf("sessions.max_concurrent must not be negative")
	}
	if c.Sessions.ReconcileInterval > 0 && c.Sessions.SessionTimeout == 0 {
		return fmt.Errorf("sessions.session_timeout is required when reconcile_interval is set")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Worker.StartTimeoutRaw, "worker.start_timeout", &cfg.Worker.StartTimeout},
		{cfg.Worker.StatusTimeoutRaw, "worker.status_timeout", &cfg.Worker.StatusTimeout},
		{cfg.Worker.StopTimeoutRaw, "worker.stop_timeout", &cfg.Worker.StopTimeout},
		{cfg.Sessions.MessageDelayRaw, "sessions.message_delay", &cfg.Sessions.MessageDelay},
		{cfg.Sessions.SessionTimeoutRaw, "sessions.session_timeout", &cfg.Sessions.SessionTimeout},
		{cfg.Sessions.ReconcileIntervalRaw, "sessions.reconcile_interval", &cfg.Sessions.ReconcileInterval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
