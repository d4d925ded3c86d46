// Package cmd implements the agentrouter command line interface.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hupe1980/agentrouter"
	"github.com/hupe1980/agentrouter/config"
	"github.com/hupe1980/agentrouter/model"
)

// EnvPrefix prefixes every environment override, e.g. AGENTROUTER_MODEL_API_KEY.
const EnvPrefix = "AGENTROUTER"

// deps holds what tests replace.
type deps struct {
	newModel func(cfg config.ModelConfig) (model.Model, error)
}

// Execute builds the root command and runs it against os.Args.
func Execute() error {
	return newRootCmd(deps{newModel: agentrouter.NewModel}).Execute()
}

func newRootCmd(d deps) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "agentrouter",
		Short:         "Supervisor-routed multi-agent assistant for order support, analytics and code review",
		Long:          "agentrouter answers questions through a supervisor agent that delegates to order, analytics and pull request review specialists.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "path to the YAML config file")
	flags.String("provider", "", "model provider (openai or anthropic)")
	flags.String("model", "", "model name")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("timezone", "", "IANA timezone for time stamps")
	flags.StringSlice("agents", nil, "enabled specialists (orders, analytics, pr_review)")
	flags.String("orders-url", "", "base URL of the order service")
	flags.String("user", "local", "user identity of the conversation")
	flags.String("conversation", "console", "conversation identity")

	for key, flag := range map[string]string{
		"config":                "config",
		"model.provider":        "provider",
		"model.name":            "model",
		"logging.level":         "log-level",
		"session.timezone":      "timezone",
		"agents.enabled":        "agents",
		"tools.orders.base_url": "orders-url",
		"user":                  "user",
		"conversation":          "conversation",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
	for _, key := range []string{"model.api_key", "model.base_url", "tools.orders.token", "tools.github.token"} {
		_ = v.BindEnv(key)
	}

	rootCmd.AddCommand(
		newAskCmd(v, d),
		newChatCmd(v, d),
		newConfigCmd(v),
	)

	return rootCmd
}

// loadConfig reads the config file (if any) and applies flag and
// environment overrides on top.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	setString := func(key string, dst *string) {
		if v.IsSet(key) && v.GetString(key) != "" {
			*dst = v.GetString(key)
		}
	}
	setString("model.provider", &cfg.Model.Provider)
	setString("model.name", &cfg.Model.Name)
	setString("model.api_key", &cfg.Model.APIKey)
	setString("model.base_url", &cfg.Model.BaseURL)
	setString("logging.level", &cfg.Logging.Level)
	setString("session.timezone", &cfg.Session.Timezone)
	setString("tools.orders.base_url", &cfg.Tools.Orders.BaseURL)
	setString("tools.orders.token", &cfg.Tools.Orders.Token)
	setString("tools.github.token", &cfg.Tools.GitHub.Token)

	if agents := splitList(v.GetStringSlice("agents.enabled")); len(agents) > 0 {
		cfg.Agents.Enabled = agents
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRouter assembles the router from the effective configuration.
func newRouter(v *viper.Viper, d deps) (*agentrouter.Router, *config.Config, error) {
	cfg, err := loadConfig(v)
	if err != nil {
		return nil, nil, err
	}

	llm, err := d.newModel(cfg.Model)
	if err != nil {
		return nil, nil, fmt.Errorf("create model: %w", err)
	}

	router, err := agentrouter.NewFromConfig(cfg, llm)
	if err != nil {
		return nil, nil, err
	}
	return router, cfg, nil
}

// splitList flattens comma separated entries, as environment values arrive
// as one string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
