package agentrouter

import (
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentrouter/agent"
	"github.com/hupe1980/agentrouter/config"
	"github.com/hupe1980/agentrouter/core"
	"github.com/hupe1980/agentrouter/logging"
	"github.com/hupe1980/agentrouter/memory"
	"github.com/hupe1980/agentrouter/model"
	"github.com/hupe1980/agentrouter/model/anthropic"
	"github.com/hupe1980/agentrouter/model/openai"
	"github.com/hupe1980/agentrouter/specialist"
	"github.com/hupe1980/agentrouter/tool"
)

// NewModel builds the model adapter selected by cfg.
func NewModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.Model = cfg.Name
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Name)
			o.Temperature = cfg.Temperature
			o.MaxTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown model provider %q", config.ErrInvalidConfig, cfg.Provider)
	}
}

// NewLogger builds the structured logger described by cfg.
func NewLogger(cfg config.LoggingConfig) (*logging.RouterLogger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}

	lc := logging.DefaultLoggerConfig()
	lc.Level = level
	lc.Format = cfg.Format
	lc.AddSource = cfg.AddSource
	lc.Component = "agentrouter"

	return logging.NewLogger(lc), nil
}

// NewTeam builds the supervisor over the specialists enabled in cfg, all
// sharing llm.
func NewTeam(cfg *config.Config, llm model.Model) (*agent.ModelAgent, error) {
	tuning := func(o *agent.ModelAgentOptions) {
		o.MaxCorrectiveRetries = cfg.Agents.MaxCorrectiveRetries
		o.TokenBudget = cfg.Agents.TokenBudget
		o.MaxParallelTools = cfg.Agents.MaxParallelTools
		if cfg.Agents.NodeTimeout > 0 {
			o.NodeTimeout = cfg.Agents.NodeTimeout
		}
		if cfg.Agents.ToolTimeout > 0 {
			o.ToolTimeout = cfg.Agents.ToolTimeout
		}
		if cfg.Agents.DelegateTimeout > 0 {
			o.DelegateTimeout = cfg.Agents.DelegateTimeout
		}
	}

	var team []core.Agent
	for _, name := range cfg.Agents.Enabled {
		switch name {
		case config.AgentOrders:
			lookup := tool.NewOrderDetailsTool(func(o *tool.OrderDetailsOptions) {
				o.BaseURL = cfg.Tools.Orders.BaseURL
				o.Token = cfg.Tools.Orders.Token
				o.Cutoff = cfg.Tools.Orders.Cutoff
				if cfg.Tools.Orders.Timeout > 0 {
					o.Timeout = cfg.Tools.Orders.Timeout
				}
			})
			team = append(team, specialist.NewOrderDetailsAgent(llm, lookup, tuning))
		case config.AgentAnalytics:
			team = append(team, specialist.NewAnalyticsAgent(llm, specialist.OrderItemsSchema, tuning))
		case config.AgentReview:
			diff := tool.NewPullRequestDiffTool(func(o *tool.PullRequestDiffOptions) {
				o.Token = cfg.Tools.GitHub.Token
				if cfg.Tools.GitHub.ContextLines > 0 {
					o.ContextLines = cfg.Tools.GitHub.ContextLines
				}
				if cfg.Tools.GitHub.MaxDiffBytes > 0 {
					o.MaxDiffBytes = cfg.Tools.GitHub.MaxDiffBytes
				}
			})
			team = append(team, specialist.NewPullRequestAgent(llm, diff, tuning))
		default:
			return nil, fmt.Errorf("%w: unknown specialist %q", config.ErrInvalidConfig, name)
		}
	}

	return specialist.NewSupervisor(llm, team, tuning)
}

// NewFromConfig assembles a Router from cfg. A nil llm selects the adapter
// configured under model.
func NewFromConfig(cfg *config.Config, llm model.Model, optFns ...func(o *Options)) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if llm == nil {
		var err error
		if llm, err = NewModel(cfg.Model); err != nil {
			return nil, err
		}
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	supervisor, err := NewTeam(cfg, llm)
	if err != nil {
		return nil, fmt.Errorf("build team: %w", err)
	}

	base := func(o *Options) {
		o.MaxConcurrentQueries = cfg.Session.MaxConcurrentQueries
		o.Timezone = cfg.Session.Timezone
		o.Trim = core.TrimPolicy{MaxMessages: cfg.Session.MaxMessages, PinAnchor: cfg.Session.PinAnchor}
		o.MaxSteps = cfg.Agents.MaxSteps
		o.TTL = cfg.Registry.TTL
		o.Memory = memory.NewInMemoryStore(func(m *memory.Options) { m.MaxMessages = cfg.Agents.MemoryMaxMessages })
		o.Logger = logger
	}

	return New(supervisor, append([]func(o *Options){base}, optFns...)...), nil
}
