package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry holds references to LLM clients.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
type Registry struct {
	mu         sync.RWMutex
	llmClients map[string]LLMClient
	configs    map[string]LLMProviderConfig
	logger     *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		llmClients: make(map[string]LLMClient),
		configs:    make(map[string]LLMProviderConfig),
		logger:     slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterLLM registers an LLM client by name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmClients[name] = client
	delete(r.configs, name)
	if r.logger != nil {
		r.logger.Info("registered LLM client", "name", name)
	}
}

// GetLLM returns an LLM client by name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.llmClients[name]
	if !ok {
		return nil, fmt.Errorf("LLM client not found: %s", name)
	}
	return client, nil
}

// ListLLM returns all registered LLM client names, sorted.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llmClients))
	for name := range r.llmClients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasLLM checks if an LLM client is registered.
func (r *Registry) HasLLM(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.llmClients[name]
	return ok
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	// LLMProviders maps provider names to their config
	LLMProviders map[string]LLMProviderConfig
}

// LLMProviderConfig matches config.LLMProviderCfg with resolved API key.
type LLMProviderConfig struct {
	Type        string  // "openai", "openrouter", "mock"
	Model       string  // Model name
	BaseURL     string  // Optional override for OpenAI-compatible APIs
	APIKey      string  // Resolved API key
	RateLimit   float64 // Requests per second (0 = unlimited)
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
	Enabled     bool
}

func (c LLMProviderConfig) usable() bool {
	if !c.Enabled {
		return false
	}
	return c.Type == MockClientName || c.APIKey != ""
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
// Only enabled providers with valid API keys will be registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured will be unregistered.
// Providers with changed settings will be re-registered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]bool)

	for name, provCfg := range cfg.LLMProviders {
		if !provCfg.usable() {
			continue
		}

		existing, hasExisting := r.configs[name]
		if hasExisting && existing == provCfg {
			want[name] = true
			continue
		}

		client := createLLMClient(name, provCfg)
		if client == nil {
			if r.logger != nil {
				r.logger.Warn("unknown LLM provider type", "name", name, "type", provCfg.Type)
			}
			continue
		}
		want[name] = true
		r.llmClients[name] = client
		r.configs[name] = provCfg
		if r.logger != nil {
			if hasExisting {
				r.logger.Info("updated LLM client", "name", name, "type", provCfg.Type)
			} else {
				r.logger.Info("registered LLM client", "name", name, "type", provCfg.Type)
			}
		}
	}

	// Remove config-driven providers that are no longer configured
	for name := range r.configs {
		if !want[name] {
			delete(r.llmClients, name)
			delete(r.configs, name)
			if r.logger != nil {
				r.logger.Info("unregistered LLM client", "name", name)
			}
		}
	}
}

// createLLMClient creates an LLM client based on provider type.
func createLLMClient(name string, cfg LLMProviderConfig) LLMClient {
	var client LLMClient
	switch cfg.Type {
	case OpenAIName:
		client = NewOpenAIClient(OpenAIConfig{
			Name:         name,
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Temperature:  cfg.Temperature,
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
		})
	case OpenRouterName:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = OpenRouterBaseURL
		}
		client = NewOpenAIClient(OpenAIConfig{
			Name:         name,
			APIKey:       cfg.APIKey,
			BaseURL:      baseURL,
			DefaultModel: cfg.Model,
			Temperature:  cfg.Temperature,
			Timeout:      cfg.Timeout,
			MaxRetries:   cfg.MaxRetries,
		})
	case MockClientName:
		client = NewMockClient()
	default:
		return nil
	}
	return WithRateLimit(client, cfg.RateLimit)
}
