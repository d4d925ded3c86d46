// Package config loads the YAML configuration of an agentrouter deployment.
//
// Values of the form ${VAR_NAME} are expanded from the environment before
// parsing. Durations are written as Go duration strings ("90s", "2h").
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Specialist names accepted in agents.enabled.
const (
	AgentOrders    = "orders"
	AgentAnalytics = "analytics"
	AgentReview    = "pr_review"
)

// Config is the complete agentrouter configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Agents   AgentsConfig   `yaml:"agents"`
	Session  SessionConfig  `yaml:"session"`
	Registry RegistryConfig `yaml:"registry"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tools    ToolsConfig    `yaml:"tools"`
}

// ModelConfig selects the language model shared by all agents.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// AgentsConfig tunes the supervisor and its specialists.
type AgentsConfig struct {
	Enabled              []string      `yaml:"enabled"`
	MaxSteps             int           `yaml:"max_steps"`
	MaxCorrectiveRetries int           `yaml:"max_corrective_retries"`
	TokenBudget          int           `yaml:"token_budget"`
	MaxParallelTools     int           `yaml:"max_parallel_tools"`
	MemoryMaxMessages    int           `yaml:"memory_max_messages"`
	NodeTimeout          time.Duration `yaml:"-"`
	ToolTimeout          time.Duration `yaml:"-"`
	DelegateTimeout      time.Duration `yaml:"-"`

	NodeTimeoutRaw     string `yaml:"node_timeout"`
	ToolTimeoutRaw     string `yaml:"tool_timeout"`
	DelegateTimeoutRaw string `yaml:"delegate_timeout"`
}

// SessionConfig configures conversation handling.
type SessionConfig struct {
	Timezone             string `yaml:"timezone"`
	MaxMessages          int    `yaml:"max_messages"`
	PinAnchor            bool   `yaml:"pin_anchor"`
	MaxConcurrentQueries int    `yaml:"max_concurrent_queries"`
}

// RegistryConfig configures session lifetime.
type RegistryConfig struct {
	TTL             time.Duration `yaml:"-"`
	JanitorInterval time.Duration `yaml:"-"`

	TTLRaw             string `yaml:"ttl"`
	JanitorIntervalRaw string `yaml:"janitor_interval"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// ToolsConfig holds the settings of the external tools.
type ToolsConfig struct {
	Orders OrdersToolConfig `yaml:"orders"`
	GitHub GitHubToolConfig `yaml:"github"`
}

// OrdersToolConfig points the order lookup tool at the order service.
type OrdersToolConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Cutoff  int           `yaml:"cutoff"`
	Timeout time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// GitHubToolConfig configures the pull request diff tool.
type GitHubToolConfig struct {
	Token        string `yaml:"token"`
	ContextLines int    `yaml:"context_lines"`
	MaxDiffBytes int    `yaml:"max_diff_bytes"`
}

// Default returns the configuration used for unset values.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:  ProviderOpenAI,
			Name:      "gpt-4o-mini",
			MaxTokens: 4096,
		},
		Agents: AgentsConfig{
			Enabled:              []string{AgentOrders, AgentAnalytics, AgentReview},
			MaxSteps:             25,
			MaxCorrectiveRetries: 3,
			TokenBudget:          59000,
			MemoryMaxMessages:    100,
			NodeTimeout:          60 * time.Second,
			ToolTimeout:          30 * time.Second,
			DelegateTimeout:      5 * time.Minute,
		},
		Session: SessionConfig{
			Timezone:             "Asia/Kolkata",
			MaxMessages:          200,
			MaxConcurrentQueries: 10,
		},
		Registry: RegistryConfig{
			TTL:             2 * time.Hour,
			JanitorInterval: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tools: ToolsConfig{
			Orders: OrdersToolConfig{
				Cutoff:  20,
				Timeout: 30 * time.Second,
			},
			GitHub: GitHubToolConfig{
				ContextLines: 3,
				MaxDiffBytes: 60000,
			},
		},
	}
}

// Load reads path, expands environment variables, applies defaults to unset
// fields and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load for in-memory YAML.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

var envVarRe = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or the empty
// string when it is unset.
func expandEnvVars(s string) string {
	return envVarRe.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarRe.FindStringSubmatch(match)[1])
	})
}

// Validate checks the configuration and returns the first problem found,
// wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch c.Model.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return invalid("model.provider must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.Model.Provider)
	}
	if c.Model.Name == "" {
		return invalid("model.name is required")
	}

	if len(c.Agents.Enabled) == 0 {
		return invalid("agents.enabled must name at least one specialist")
	}
	for _, name := range c.Agents.Enabled {
		if !slices.Contains([]string{AgentOrders, AgentAnalytics, AgentReview}, name) {
			return invalid("agents.enabled: unknown specialist %q", name)
		}
	}
	if c.Agents.MaxSteps <= 0 {
		return invalid("agents.max_steps must be positive")
	}
	if c.Agents.MaxCorrectiveRetries < 0 {
		return invalid("agents.max_corrective_retries must not be negative")
	}

	if c.Session.MaxMessages < 0 {
		return invalid("session.max_messages must not be negative")
	}
	if c.Session.Timezone != "" {
		if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
			return invalid("session.timezone: %v", err)
		}
	}

	if c.Registry.TTL <= 0 {
		return invalid("registry.ttl must be positive")
	}

	if c.HasAgent(AgentOrders) && c.Tools.Orders.BaseURL == "" {
		return invalid("tools.orders.base_url is required when the orders agent is enabled")
	}

	return nil
}

// HasAgent reports whether the named specialist is enabled.
func (c *Config) HasAgent(name string) bool {
	return slices.Contains(c.Agents.Enabled, name)
}

// Marshal renders the configuration as YAML. Secrets are masked.
func (c *Config) Marshal() ([]byte, error) {
	out := *c
	out.Agents.NodeTimeoutRaw = formatDuration(c.Agents.NodeTimeout)
	out.Agents.ToolTimeoutRaw = formatDuration(c.Agents.ToolTimeout)
	out.Agents.DelegateTimeoutRaw = formatDuration(c.Agents.DelegateTimeout)
	out.Registry.TTLRaw = formatDuration(c.Registry.TTL)
	out.Registry.JanitorIntervalRaw = formatDuration(c.Registry.JanitorInterval)
	out.Tools.Orders.TimeoutRaw = formatDuration(c.Tools.Orders.Timeout)

	out.Model.APIKey = mask(c.Model.APIKey)
	out.Tools.Orders.Token = mask(c.Tools.Orders.Token)
	out.Tools.GitHub.Token = mask(c.Tools.GitHub.Token)

	return yaml.Marshal(&out)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return ""
	}
	return d.String()
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"agents.node_timeout", cfg.Agents.NodeTimeoutRaw, &cfg.Agents.NodeTimeout},
		{"agents.tool_timeout", cfg.Agents.ToolTimeoutRaw, &cfg.Agents.ToolTimeout},
		{"agents.delegate_timeout", cfg.Agents.DelegateTimeoutRaw, &cfg.Agents.DelegateTimeout},
		{"registry.ttl", cfg.Registry.TTLRaw, &cfg.Registry.TTL},
		{"registry.janitor_interval", cfg.Registry.JanitorIntervalRaw, &cfg.Registry.JanitorInterval},
		{"tools.orders.timeout", cfg.Tools.Orders.TimeoutRaw, &cfg.Tools.Orders.Timeout},
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
