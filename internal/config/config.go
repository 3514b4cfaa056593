package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/tracker/internal/generate"
	"github.com/jackzampolin/tracker/internal/providers"
	"github.com/jackzampolin/tracker/internal/tracker"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	defaults := DefaultConfig()
	v.SetDefault("llm_providers", defaults.LLMProviders)
	v.SetDefault("defaults.llm_provider", defaults.Defaults.LLMProvider)
	v.SetDefault("generation.strategy", defaults.Generation.Strategy)
	v.SetDefault("generation.filter", defaults.Generation.Filter)
	v.SetDefault("generation.format", defaults.Generation.Format)
	v.SetDefault("generation.recent_messages", defaults.Generation.RecentMessages)
	v.SetDefault("generation.max_response_tokens", defaults.Generation.MaxResponseTokens)
	v.SetDefault("generation.character_template", defaults.Generation.CharacterTemplate)
	v.SetDefault("prompts.generation.system", defaults.Prompts.Generation.System)
	v.SetDefault("prompts.generation.request", defaults.Prompts.Generation.Request)
	v.SetDefault("prompts.generation.message", defaults.Prompts.Generation.Message)
	v.SetDefault("prompts.summary.system", defaults.Prompts.Summary.System)
	v.SetDefault("prompts.summary.request", defaults.Prompts.Summary.Request)
	v.SetDefault("prompts.summary.message", defaults.Prompts.Summary.Message)
	v.SetDefault("tracker", defaults.Tracker)
	v.SetDefault("storage.path", defaults.Storage.Path)

	// Environment variables with TRACKER_ prefix, e.g. TRACKER_GENERATION_STRATEGY
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.tracker")
	}

	// Try to read config file (not required)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigFile returns the path of the loaded config file, if any.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
// Invalid edits are ignored and the previous config stays active.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// Validate checks enumerated settings and the tracker definition.
func (c *Config) Validate() error {
	if _, err := generate.ParseStrategy(c.Generation.Strategy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := tracker.ParseFilter(c.Generation.Filter); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := tracker.ParseFormat(c.Generation.Format); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Generation.RecentMessages < 0 {
		return fmt.Errorf("%w: generation.recent_messages must be >= 0", ErrInvalidConfig)
	}
	if err := c.Tracker.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// GeneratorConfig converts the generation and prompt settings for generate.New.
// Call Validate first; unparsable values fall back to defaults.
func (c *Config) GeneratorConfig() generate.Config {
	strategy, _ := generate.ParseStrategy(c.Generation.Strategy)
	filter, _ := tracker.ParseFilter(c.Generation.Filter)
	format, _ := tracker.ParseFormat(c.Generation.Format)

	return generate.Config{
		Definition:        c.Tracker,
		Strategy:          strategy,
		Filter:            filter,
		Format:            format,
		RecentMessages:    c.Generation.RecentMessages,
		MaxResponseTokens: c.Generation.MaxResponseTokens,
		CharacterTemplate: c.Generation.CharacterTemplate,
		Generation:        generate.Prompts(c.Prompts.Generation),
		Summary:           generate.Prompts(c.Prompts.Summary),
	}
}

var envRefPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		LLMProviders: make(map[string]providers.LLMProviderConfig),
	}

	for name, llm := range c.LLMProviders {
		cfg.LLMProviders[name] = providers.LLMProviderConfig{
			Type:        llm.Type,
			Model:       llm.Model,
			BaseURL:     llm.BaseURL,
			APIKey:      ResolveEnvVars(llm.APIKey),
			RateLimit:   llm.RateLimit,
			Temperature: llm.Temperature,
			Timeout:     time.Duration(llm.TimeoutSeconds) * time.Second,
			MaxRetries:  llm.MaxRetries,
			Enabled:     llm.Enabled,
		}
	}

	return cfg
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Tracker configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell: export OPENROUTER_API_KEY=xxx OPENAI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
