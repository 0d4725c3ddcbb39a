// ABOUTME: Configuration loading and parsing for the agents gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ollama    OllamaConfig    `yaml:"ollama"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Agents    AgentsConfig    `yaml:"agents"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// OllamaConfig holds inference backend configuration
type OllamaConfig struct {
	Host string `yaml:"host"`

	RequestTimeout    time.Duration `yaml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout"`
}

// SessionsConfig holds session admission and liveness configuration
type SessionsConfig struct {
	MaxSessions     int `yaml:"max_sessions"`
	MinSessionIDLen int `yaml:"min_session_id_length"`

	HeartbeatInterval time.Duration `yaml:"-"`
	LivenessGrace     time.Duration `yaml:"-"`
	IdleTimeout       time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
	LivenessGraceRaw     string `yaml:"liveness_grace"`
	IdleTimeoutRaw       string `yaml:"idle_timeout"`
}

// WorkflowConfig holds workflow execution policy
type WorkflowConfig struct {
	// AgentCap is the maximum number of agents a single run may use.
	AgentCap int `yaml:"agent_cap"`
	// OnBusy decides what happens to a chat_request arriving while the
	// session already has an active run: "reject" or "queue".
	OnBusy string `yaml:"on_busy"`
	// QueueDepth bounds the per-session queue when on_busy is "queue".
	QueueDepth int `yaml:"queue_depth"`

	// Retries is resolved from RetriesRaw. The pointer distinguishes an
	// explicit "retries: 0" (valid, single attempt) from an absent key.
	Retries    int  `yaml:"-"`
	RetriesRaw *int `yaml:"retries"`

	MaxResultLen int `yaml:"max_result_length"`

	CacheValidity    time.Duration `yaml:"-"`
	CacheValidityRaw string        `yaml:"availability_cache"`
}

// AgentsConfig points at the optional agent roster file
type AgentsConfig struct {
	// RosterPath is a TOML file extending or overriding the built-in roster.
	// Empty means built-ins only.
	RosterPath string `yaml:"roster_path"`
}

// DatabaseConfig holds the artifact store location
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File enables rotated file logging when non-empty.
	File string `yaml:"file"`
}

// TelemetryConfig holds OpenTelemetry export configuration
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Defaults mirrored from the reference deployment.
const (
	DefaultHTTPAddr          = "0.0.0.0:8002"
	DefaultOllamaHost        = "http://localhost:11434"
	DefaultMaxSessions       = 50
	DefaultMinSessionIDLen   = 3
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultLivenessGrace     = 90 * time.Second
	DefaultIdleTimeout       = 300 * time.Second
	DefaultRequestTimeout    = 60 * time.Second
	DefaultAgentCap          = 5
	DefaultQueueDepth        = 4
	DefaultRetries           = 2
	DefaultMaxResultLen      = 500
	DefaultCacheValidity     = 60 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a Config populated entirely with defaults, for running
// without a config file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in zero-valued fields.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Ollama.Host == "" {
		c.Ollama.Host = DefaultOllamaHost
	}
	if c.Ollama.RequestTimeout == 0 {
		c.Ollama.RequestTimeout = DefaultRequestTimeout
	}
	if c.Sessions.MaxSessions == 0 {
		c.Sessions.MaxSessions = DefaultMaxSessions
	}
	if c.Sessions.MinSessionIDLen == 0 {
		c.Sessions.MinSessionIDLen = DefaultMinSessionIDLen
	}
	if c.Sessions.HeartbeatInterval == 0 {
		c.Sessions.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Sessions.LivenessGrace == 0 {
		c.Sessions.LivenessGrace = DefaultLivenessGrace
	}
	if c.Sessions.IdleTimeout == 0 {
		c.Sessions.IdleTimeout = DefaultIdleTimeout
	}
	if c.Workflow.AgentCap == 0 {
		c.Workflow.AgentCap = DefaultAgentCap
	}
	if c.Workflow.OnBusy == "" {
		c.Workflow.OnBusy = "reject"
	}
	if c.Workflow.QueueDepth == 0 {
		c.Workflow.QueueDepth = DefaultQueueDepth
	}
	if c.Workflow.RetriesRaw == nil {
		c.Workflow.Retries = DefaultRetries
	} else {
		c.Workflow.Retries = *c.Workflow.RetriesRaw
	}
	if c.Workflow.MaxResultLen == 0 {
		c.Workflow.MaxResultLen = DefaultMaxResultLen
	}
	if c.Workflow.CacheValidity == 0 {
		c.Workflow.CacheValidity = DefaultCacheValidity
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/artifacts.db"
	}
	if c.Telemetry.Dir == "" {
		c.Telemetry.Dir = "logs"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Sessions.MaxSessions < 1 {
		return fmt.Errorf("sessions.max_sessions must be positive, got %d", c.Sessions.MaxSessions)
	}
	if c.Sessions.MinSessionIDLen < 1 {
		return fmt.Errorf("sessions.min_session_id_length must be positive, got %d", c.Sessions.MinSessionIDLen)
	}
	if c.Sessions.LivenessGrace < c.Sessions.HeartbeatInterval {
		return fmt.Errorf("sessions.liveness_grace (%s) must not be shorter than sessions.heartbeat_interval (%s)",
			c.Sessions.LivenessGrace, c.Sessions.HeartbeatInterval)
	}
	if c.Workflow.AgentCap < 1 {
		return fmt.Errorf("workflow.agent_cap must be positive, got %d", c.Workflow.AgentCap)
	}
	switch c.Workflow.OnBusy {
	case "reject", "queue":
	default:
		return fmt.Errorf("workflow.on_busy must be %q or %q, got %q", "reject", "queue", c.Workflow.OnBusy)
	}
	if c.Workflow.Retries < 0 {
		return fmt.Errorf("workflow.retries must not be negative, got %d", c.Workflow.Retries)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func (c *Config) parseDurations() error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{c.Ollama.RequestTimeoutRaw, &c.Ollama.RequestTimeout, "ollama.request_timeout"},
		{c.Sessions.HeartbeatIntervalRaw, &c.Sessions.HeartbeatInterval, "sessions.heartbeat_interval"},
		{c.Sessions.LivenessGraceRaw, &c.Sessions.LivenessGrace, "sessions.liveness_grace"},
		{c.Sessions.IdleTimeoutRaw, &c.Sessions.IdleTimeout, "sessions.idle_timeout"},
		{c.Workflow.CacheValidityRaw, &c.Workflow.CacheValidity, "workflow.availability_cache"},
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
