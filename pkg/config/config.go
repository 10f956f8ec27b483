// Package config loads and validates the process-wide configuration
// struct every SAM core component is constructed from (spec.md §6
// "Configuration"). Per spec.md §9's "Global state" design note,
// Config is passed as a plain struct through constructors — it is not a
// singleton, and nothing in this module reads it from a package-level
// variable.
//
// Grounded on teacher's pkg/config package family: a plain struct loaded
// from YAML, validated by a dedicated Validate method, with functional
// Options layered on top for the values callers most often need to flip
// per-deployment. Environment variables are not read.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SkillPath is one directory the skill catalog scans at startup (spec.md
// §4.7, §6).
type SkillPath struct {
	Path         string `yaml:"path"`
	AutoDiscover bool   `yaml:"autoDiscover"`
}

// AgentEndpoint describes one downstream agent the proxy bridges to the
// mesh (spec.md §4.4 "Discovery"). Mirrors pkg/proxy.AgentConfig's fields
// so cmd/proxy can convert one to the other without the config package
// importing pkg/proxy.
type AgentEndpoint struct {
	Name                  string `yaml:"name"`
	URL                   string `yaml:"url"`
	RequestTimeoutSeconds int    `yaml:"requestTimeoutSeconds"`
	AuthScheme            string `yaml:"authScheme"`
	AuthToken             string `yaml:"authToken"`
}

// Config is the validated configuration object every component is
// constructed from (spec.md §6's Configuration semantics, itemized
// field-by-field rather than left as prose).
type Config struct {
	Namespace   string   `yaml:"namespace"`
	DatabaseURL string   `yaml:"databaseUrl"`
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"corsOrigins"`

	AuthMode        string `yaml:"authMode"` // "dev" (bypass) or "external"
	AuthProviderURL string `yaml:"authProviderUrl"`

	DiscoveryIntervalSeconds int `yaml:"discoveryIntervalSeconds"`
	AgentRequestTimeout      int `yaml:"agentRequestTimeoutSeconds"`

	BufferFlushThreshold int `yaml:"bufferFlushThreshold"`
	AsyncQueueSize       int `yaml:"asyncQueueSize"`
	BatchSize            int `yaml:"batchSize"`
	BatchTimeoutMillis    int `yaml:"batchTimeoutMillis"`
	CleanupRetentionDays int `yaml:"cleanupRetentionDays"`

	MaxMessageBytes        int64 `yaml:"maxMessageBytes"`
	DeploymentTimeoutSeconds int `yaml:"deploymentTimeoutSeconds"`
	HeartbeatTimeoutSeconds  int `yaml:"heartbeatTimeoutSeconds"`

	SkillPaths []SkillPath     `yaml:"skillPaths"`
	Agents     []AgentEndpoint `yaml:"agents"`

	TelemetryServiceName string `yaml:"telemetryServiceName"`
}

// Defaults mirror spec.md §5's stated defaults (5-minute deployment
// timeout, 300s request-forwarding timeout) plus operationally sane
// values for the fields the spec leaves to implementation discretion.
func Defaults() Config {
	return Config{
		Namespace:                "sam",
		Host:                     "0.0.0.0",
		Port:                     8080,
		AuthMode:                 "dev",
		DiscoveryIntervalSeconds: 60,
		AgentRequestTimeout:      300,
		BufferFlushThreshold:     50,
		AsyncQueueSize:           1000,
		BatchSize:                25,
		BatchTimeoutMillis:       200,
		CleanupRetentionDays:     30,
		MaxMessageBytes:          10 * 1024 * 1024,
		DeploymentTimeoutSeconds: 300,
		HeartbeatTimeoutSeconds:  90,
		TelemetryServiceName:     "sam-core",
	}
}

// Option mutates a Config during Load, mirroring teacher's functional-option
// config construction idiom.
type Option func(*Config)

// WithNamespace overrides the mesh topic namespace.
func WithNamespace(ns string) Option { return func(c *Config) { c.Namespace = ns } }

// WithPort overrides the gateway's HTTP listen port.
func WithPort(port int) Option { return func(c *Config) { c.Port = port } }

// Load reads a YAML configuration file at path, applies Defaults first so
// unset fields keep their sane values, then applies opts in order.
func Load(path string, opts ...Option) (Config, error) {
	cfg := Defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields every component relies on being present and
// sane, failing fast at process start rather than letting a malformed
// value surface as a confusing runtime error deep in one component.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return fmt.Errorf("config: namespace is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	if c.AuthMode != "dev" && c.AuthMode != "external" {
		return fmt.Errorf("config: authMode must be \"dev\" or \"external\", got %q", c.AuthMode)
	}
	if c.AuthMode == "external" && c.AuthProviderURL == "" {
		return fmt.Errorf("config: authProviderUrl is required when authMode is \"external\"")
	}
	if c.BufferFlushThreshold <= 0 {
		return fmt.Errorf("config: bufferFlushThreshold must be positive")
	}
	if c.AsyncQueueSize <= 0 {
		return fmt.Errorf("config: asyncQueueSize must be positive")
	}
	if c.CleanupRetentionDays < 0 {
		return fmt.Errorf("config: cleanupRetentionDays must not be negative")
	}
	return nil
}

// DeploymentTimeout returns the deployment-wide hard timeout as a
// time.Duration (spec.md §5: "default 5 minutes for deployments").
func (c Config) DeploymentTimeout() time.Duration {
	return time.Duration(c.DeploymentTimeoutSeconds) * time.Second
}

// RequestForwardTimeout returns the proxy's per-request hard timeout
// (spec.md §5: "300s for request forwarding").
func (c Config) RequestForwardTimeout() time.Duration {
	return time.Duration(c.AgentRequestTimeout) * time.Second
}

// BatchTimeout returns the event buffer's async writer batch timeout.
func (c Config) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutMillis) * time.Millisecond
}

// DiscoveryInterval returns the proxy's periodic discovery interval. Zero
// means discovery runs once at startup and is never repeated (spec.md
// §4.4: "Schedule periodic discovery every discoveryIntervalSeconds (if >
// 0)").
func (c Config) DiscoveryInterval() time.Duration {
	return time.Duration(c.DiscoveryIntervalSeconds) * time.Second
}
