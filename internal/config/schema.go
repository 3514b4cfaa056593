package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackzampolin/tracker/internal/conversation"
	"github.com/jackzampolin/tracker/internal/providers"
	"github.com/jackzampolin/tracker/internal/tracker"
)

// Config holds tracker configuration.
// Stored at: ./config.yaml or $HOME/.tracker/config.yaml
type Config struct {
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Generation   GenerationCfg             `mapstructure:"generation" yaml:"generation"`
	Prompts      PromptsCfg                `mapstructure:"prompts" yaml:"prompts"`
	Tracker      tracker.Definition        `mapstructure:"tracker" yaml:"tracker"`
	Storage      StorageCfg                `mapstructure:"storage" yaml:"storage"`
}

// LLMProviderCfg configures an LLM provider.
type LLMProviderCfg struct {
	Type           string  `mapstructure:"type" yaml:"type"`                       // "openai", "openrouter", "mock"
	Model          string  `mapstructure:"model" yaml:"model"`                     // Model name
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url,omitempty"`     // OpenAI-compatible endpoint override
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"`                 // API key (supports ${ENV_VAR} syntax)
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"`           // Requests per second
	Temperature    float64 `mapstructure:"temperature" yaml:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries" yaml:"max_retries"` // SDK transport retries
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	LLMProvider string `mapstructure:"llm_provider" yaml:"llm_provider"` // Default LLM provider
}

// GenerationCfg controls how trackers are generated.
type GenerationCfg struct {
	Strategy          string `mapstructure:"strategy" yaml:"strategy"` // "single_stage" or "two_stage"
	Filter            string `mapstructure:"filter" yaml:"filter"`     // "dynamic", "static", "all"
	Format            string `mapstructure:"format" yaml:"format"`     // "structured" or "flat"
	RecentMessages    int    `mapstructure:"recent_messages" yaml:"recent_messages"`
	MaxResponseTokens int    `mapstructure:"max_response_tokens" yaml:"max_response_tokens"` // <= 0 means no limit
	CharacterTemplate string `mapstructure:"character_template" yaml:"character_template"`
}

// StagePrompts holds the templates for one generation call.
type StagePrompts struct {
	System  string `mapstructure:"system" yaml:"system"`
	Request string `mapstructure:"request" yaml:"request"`
	Message string `mapstructure:"message" yaml:"message"` // one recent message
}

// PromptsCfg holds templates for tracker generation and the two-stage summary.
type PromptsCfg struct {
	Generation StagePrompts `mapstructure:"generation" yaml:"generation"`
	Summary    StagePrompts `mapstructure:"summary" yaml:"summary"`
}

// StorageCfg locates the conversation database. An empty Path means
// tracker.db in the tracker home directory.
type StorageCfg struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {
				Type:           "openrouter",
				Model:          "anthropic/claude-sonnet-4",
				APIKey:         "${OPENROUTER_API_KEY}",
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"openai": {
				Type:           "openai",
				Model:          "gpt-4o-mini",
				APIKey:         "${OPENAI_API_KEY}",
				TimeoutSeconds: 120,
				Enabled:        true,
			},
		},
		Defaults: DefaultsCfg{
			LLMProvider: "openrouter",
		},
		Generation: GenerationCfg{
			Strategy:          "single_stage",
			Filter:            string(tracker.FilterDynamic),
			Format:            string(tracker.FormatStructured),
			RecentMessages:    5,
			MaxResponseTokens: 0,
			CharacterTemplate: conversation.DefaultCharacterTemplate,
		},
		Prompts: PromptsCfg{
			Generation: StagePrompts{
				System:  DefaultGenerationSystemPrompt,
				Request: DefaultGenerationRequestPrompt,
				Message: DefaultMessageTemplate,
			},
			Summary: StagePrompts{
				System:  DefaultSummarySystemPrompt,
				Request: DefaultSummaryRequestPrompt,
				Message: DefaultMessageTemplate,
			},
		},
		Tracker: DefaultDefinition(),
		Storage: StorageCfg{},
	}
}

// DefaultDefinition is a small scene tracker.
func DefaultDefinition() tracker.Definition {
	return tracker.Definition{Fields: []tracker.Field{
		{
			Name:     "time",
			Type:     tracker.TypeString,
			Prompt:   "Time of day and date, e.g. 10:30 AM; Tuesday, June 4, 2024.",
			Default:  "unknown",
			Examples: []string{"09:15 AM; Monday, March 3, 2025", "11:40 PM; Friday, October 17, 2025"},
		},
		{
			Name:     "location",
			Type:     tracker.TypeString,
			Prompt:   "Specific place, building and city.",
			Default:  "unknown",
			Examples: []string{"Kitchen, Ada's apartment, Lisbon", "Rooftop bar, Hotel Meridian, Tokyo"},
		},
		{
			Name:     "weather",
			Type:     tracker.TypeString,
			Prompt:   "Current weather and temperature.",
			Default:  "unknown",
			Examples: []string{"Light rain, 12°C", "Clear night, 18°C"},
		},
		{
			Name:     "topics",
			Type:     tracker.TypeArray,
			Presence: tracker.PresenceEphemeral,
			Prompt:   "One to three words each for the themes of the latest message.",
			Examples: []string{"breakfast, small talk", "confession, tension"},
		},
		{
			Name:     "characters",
			Type:     tracker.TypeForEachObject,
			Prompt:   "Every character present, keyed by name.",
			Examples: []string{"Ada", "Bob"},
			Fields: []tracker.Field{
				{Name: "outfit", Type: tracker.TypeString, Prompt: "Complete outfit.", Default: "unknown", Examples: []string{"Grey hoodie, jeans", "Black suit, red tie"}},
				{Name: "state", Type: tracker.TypeString, Prompt: "Posture and mood.", Default: "unknown", Examples: []string{"Relaxed, smiling", "Tense, arms crossed"}},
			},
		},
		{
			Name:     "setting",
			Type:     tracker.TypeString,
			Presence: tracker.PresenceStatic,
			Prompt:   "The overall world or genre.",
			Default:  "contemporary",
			Examples: []string{"Contemporary city", "Near-future megacity"},
		},
	}}
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

// EnabledLLMProviders returns all enabled LLM providers.
func (c *Config) EnabledLLMProviders() map[string]LLMProviderCfg {
	result := make(map[string]LLMProviderCfg)
	for name, cfg := range c.LLMProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// ExplainProvider describes why the named provider is not available:
// missing from the config, disabled, or without an API key once ${VAR}
// references are resolved. It returns nil for a usable provider.
func (c *Config) ExplainProvider(name string) error {
	enabled := make([]string, 0)
	for n := range c.EnabledLLMProviders() {
		enabled = append(enabled, n)
	}
	sort.Strings(enabled)
	list := strings.Join(enabled, ", ")
	if list == "" {
		list = "none"
	}

	prov, ok := c.GetLLMProvider(name)
	switch {
	case !ok:
		return fmt.Errorf("LLM provider %q is not configured (enabled: %s)", name, list)
	case !prov.Enabled:
		return fmt.Errorf("LLM provider %q is disabled (enabled: %s)", name, list)
	case prov.Type != providers.MockClientName && ResolveEnvVars(prov.APIKey) == "":
		if m := envRefPattern.FindStringSubmatch(prov.APIKey); m != nil {
			return fmt.Errorf("LLM provider %q has no API key: set %s", name, m[1])
		}
		return fmt.Errorf("LLM provider %q has no API key", name)
	}
	return nil
}
