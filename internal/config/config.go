// ABOUTME: Configuration loading and parsing for the fleet gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/bot-fleet/internal/behavior"
)

// Defaults applied when a field is unset.
const (
	DefaultHTTPAddr       = "0.0.0.0:3000"
	DefaultTokenTTL       = 12 * time.Hour
	DefaultConnectTimeout = 30 * time.Second
	DefaultSweepInterval  = 60 * time.Second
	DefaultSubTimeout     = 10 * time.Second
	DefaultPort           = 25565
	DefaultNamePrefix     = "NoobBot_"
	DefaultLogCapacity    = 1000
	DefaultRateRequests   = 100
	DefaultRateWindow     = 15 * time.Minute
	DefaultMetricsPath    = "/metrics"
	DefaultSubjectPrefix  = "fleet.agents"

	minJWTSecretLen = 32
)

// Config represents the complete fleet gateway configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Auth      AuthConfig       `yaml:"auth"`
	Agents    AgentsConfig     `yaml:"agents"`
	Bridge    BridgeConfig     `yaml:"bridge"`
	Behaviors []BehaviorConfig `yaml:"behaviors"`
	RateLimit RateLimitConfig  `yaml:"rate_limit"`
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	NATS      NATSConfig       `yaml:"nats"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-"`

	TokenTTLRaw string `yaml:"token_ttl"`
}

// AgentsConfig holds agent lifecycle configuration
type AgentsConfig struct {
	DefaultPort int    `yaml:"default_port"`
	NamePrefix  string `yaml:"name_prefix"`
	LogCapacity int    `yaml:"log_capacity"`

	ConnectTimeout time.Duration `yaml:"-"`
	SweepInterval  time.Duration `yaml:"-"`
	SubTimeout     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ConnectTimeoutRaw string `yaml:"connect_timeout"`
	SweepIntervalRaw  string `yaml:"sweep_interval"`
	SubTimeoutRaw     string `yaml:"task_timeout"`
}

// BridgeConfig points at the protocol bridge sidecar
type BridgeConfig struct {
	Addr string `yaml:"addr"`
}

// BehaviorConfig configures one behavior task
type BehaviorConfig struct {
	Name    string            `yaml:"name"`
	Enabled *bool             `yaml:"enabled"`
	Options map[string]string `yaml:"options"`

	Base   time.Duration `yaml:"-"`
	Spread time.Duration `yaml:"-"`

	BaseRaw   string `yaml:"base"`
	SpreadRaw string `yaml:"spread"`
}

// RateLimitConfig bounds API requests per client
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"-"`

	WindowRaw string `yaml:"window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// NATSConfig holds the optional state-transition publisher configuration
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// DefaultPath returns the config path from FLEET_CONFIG, or the XDG location.
func DefaultPath() string {
	if p := os.Getenv("FLEET_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "bot-fleet", "gateway.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Agents.ConnectTimeout == 0 {
		c.Agents.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Agents.SweepInterval == 0 {
		c.Agents.SweepInterval = DefaultSweepInterval
	}
	if c.Agents.SubTimeout == 0 {
		c.Agents.SubTimeout = DefaultSubTimeout
	}
	if c.Agents.DefaultPort == 0 {
		c.Agents.DefaultPort = DefaultPort
	}
	if c.Agents.NamePrefix == "" {
		c.Agents.NamePrefix = DefaultNamePrefix
	}
	if c.Agents.LogCapacity == 0 {
		c.Agents.LogCapacity = DefaultLogCapacity
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = DefaultRateRequests
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = DefaultRateWindow
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = DefaultSubjectPrefix
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if len(c.Auth.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", minJWTSecretLen)
	}
	if c.Bridge.Addr == "" {
		return fmt.Errorf("bridge.addr is required")
	}
	if c.Agents.DefaultPort < 1 || c.Agents.DefaultPort > 65535 {
		return fmt.Errorf("agents.default_port %d out of range", c.Agents.DefaultPort)
	}
	if c.Agents.LogCapacity < 1 {
		return fmt.Errorf("agents.log_capacity must be positive")
	}
	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("rate_limit.requests must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	if _, err := behavior.Build(c.BehaviorSpecs()); err != nil {
		return fmt.Errorf("behaviors: %w", err)
	}
	return nil
}

// BehaviorSpecs converts the behaviors section. An empty section yields the
// default task set.
func (c *Config) BehaviorSpecs() []behavior.Spec {
	if len(c.Behaviors) == 0 {
		return behavior.DefaultSpecs()
	}
	specs := make([]behavior.Spec, 0, len(c.Behaviors))
	for _, b := range c.Behaviors {
		specs = append(specs, behavior.Spec{
			Name:     b.Name,
			Base:     b.Base,
			Spread:   b.Spread,
			Disabled: b.Enabled != nil && !*b.Enabled,
			Options:  behavior.Options(b.Options),
		})
	}
	return specs
}

type durationField struct {
	name string
	raw  string
	dst  *time.Duration
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []durationField{
		{"auth.token_ttl", cfg.Auth.TokenTTLRaw, &cfg.Auth.TokenTTL},
		{"agents.connect_timeout", cfg.Agents.ConnectTimeoutRaw, &cfg.Agents.ConnectTimeout},
		{"agents.sweep_interval", cfg.Agents.SweepIntervalRaw, &cfg.Agents.SweepInterval},
		{"agents.task_timeout", cfg.Agents.SubTimeoutRaw, &cfg.Agents.SubTimeout},
		{"rate_limit.window", cfg.RateLimit.WindowRaw, &cfg.RateLimit.Window},
	}
	for i := range cfg.Behaviors {
		b := &cfg.Behaviors[i]
		fields = append(fields,
			durationField{fmt.Sprintf("behaviors[%s].base", b.Name), b.BaseRaw, &b.Base},
			durationField{fmt.Sprintf("behaviors[%s].spread", b.Name), b.SpreadRaw, &b.Spread},
		)
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", f.name)
		}
		*f.dst = d
	}
	return nil
}
