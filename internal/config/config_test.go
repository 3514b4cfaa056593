package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/tracker/internal/generate"
	"github.com/jackzampolin/tracker/internal/tracker"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.LLMProviders["openrouter"].APIKey != "${OPENROUTER_API_KEY}" {
		t.Error("expected openrouter API key placeholder")
	}
	if _, ok := cfg.GetLLMProvider(cfg.Defaults.LLMProvider); !ok {
		t.Errorf("default provider %q not configured", cfg.Defaults.LLMProvider)
	}
}

func TestExplainProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLMProviders["local"] = LLMProviderCfg{Type: "mock", Enabled: true}
	cfg.LLMProviders["off"] = LLMProviderCfg{Type: "openai", APIKey: "key", Enabled: false}
	cfg.LLMProviders["literal"] = LLMProviderCfg{Type: "openai", Enabled: true}
	t.Setenv("OPENROUTER_API_KEY", "")

	tests := []struct {
		name string
		want string // substring; empty means usable
	}{
		{"local", ""},
		{"missing", `"missing" is not configured (enabled: literal, local, openai, openrouter)`},
		{"off", `"off" is disabled`},
		{"openrouter", "set OPENROUTER_API_KEY"},
		{"literal", `"literal" has no API key`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cfg.ExplainProvider(tt.name)
			if tt.want == "" {
				if err != nil {
					t.Errorf("ExplainProvider() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ExplainProvider() = %v, want %q", err, tt.want)
			}
		})
	}

	t.Run("resolved key is usable", func(t *testing.T) {
		t.Setenv("OPENROUTER_API_KEY", "sk-test")
		if err := cfg.ExplainProvider("openrouter"); err != nil {
			t.Errorf("ExplainProvider() = %v", err)
		}
	})
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown strategy", func(c *Config) { c.Generation.Strategy = "three_stage" }},
		{"unknown filter", func(c *Config) { c.Generation.Filter = "some" }},
		{"unknown format", func(c *Config) { c.Generation.Format = "xml" }},
		{"negative window", func(c *Config) { c.Generation.RecentMessages = -1 }},
		{"duplicate field", func(c *Config) {
			c.Tracker.Fields = append(c.Tracker.Fields, c.Tracker.Fields[0])
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}

	t.Run("definition errors stay inspectable", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Tracker.Fields = nil
		if err := cfg.Validate(); !errors.Is(err, tracker.ErrInvalidDefinition) {
			t.Errorf("Validate() = %v, want ErrInvalidDefinition", err)
		}
	})
}

func TestConfig_GeneratorConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generation.Strategy = "two_stage"
	cfg.Generation.Format = "flat"
	cfg.Generation.MaxResponseTokens = 300

	gc := cfg.GeneratorConfig()
	if gc.Strategy != generate.StrategyTwoStage {
		t.Errorf("Strategy = %v, want two_stage", gc.Strategy)
	}
	if gc.Format != tracker.FormatFlat {
		t.Errorf("Format = %v, want flat", gc.Format)
	}
	if gc.MaxResponseTokens != 300 {
		t.Errorf("MaxResponseTokens = %d, want 300", gc.MaxResponseTokens)
	}
	if gc.Summary.Request != DefaultSummaryRequestPrompt {
		t.Error("summary prompts not carried over")
	}
}

func TestConfig_ToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "or-key-123")

	cfg := &Config{
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {Type: "openrouter", APIKey: "${TEST_OPENROUTER_KEY}", TimeoutSeconds: 30, Enabled: true},
			"literal":    {Type: "openai", APIKey: "direct-key", Enabled: true},
		},
	}

	rc := cfg.ToProviderRegistryConfig()
	if rc.LLMProviders["openrouter"].APIKey != "or-key-123" {
		t.Errorf("expected or-key-123, got %s", rc.LLMProviders["openrouter"].APIKey)
	}
	if rc.LLMProviders["openrouter"].Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", rc.LLMProviders["openrouter"].Timeout)
	}
	if rc.LLMProviders["literal"].APIKey != "direct-key" {
		t.Errorf("expected direct-key, got %s", rc.LLMProviders["literal"].APIKey)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file over defaults", func(t *testing.T) {
		configFile := writeConfig(t, `
generation:
  strategy: two_stage
  recent_messages: 8
tracker:
  fields:
    - name: mood
      type: string
      default: neutral
`)

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Generation.Strategy != "two_stage" {
			t.Errorf("Strategy = %q, want two_stage", cfg.Generation.Strategy)
		}
		if cfg.Generation.RecentMessages != 8 {
			t.Errorf("RecentMessages = %d, want 8", cfg.Generation.RecentMessages)
		}
		if cfg.Generation.Format != string(tracker.FormatStructured) {
			t.Errorf("Format default lost: %q", cfg.Generation.Format)
		}
		if cfg.Prompts.Generation.System != DefaultGenerationSystemPrompt {
			t.Error("prompt defaults lost")
		}
		if len(cfg.Tracker.Fields) != 1 || cfg.Tracker.Fields[0].Default != "neutral" {
			t.Errorf("Tracker = %+v", cfg.Tracker)
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("TRACKER_GENERATION_FILTER", "all")
		configFile := writeConfig(t, "defaults:\n  llm_provider: openai\n")

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Generation.Filter; got != "all" {
			t.Errorf("Filter = %q, want all", got)
		}
		if got := mgr.Get().Defaults.LLMProvider; got != "openai" {
			t.Errorf("LLMProvider = %q, want openai", got)
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		configFile := writeConfig(t, "generation:\n  format: xml\n")

		if _, err := NewManager(configFile); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("NewManager() = %v, want ErrInvalidConfig", err)
		}
	})
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("written default does not load: %v", err)
	}
	cfg := mgr.Get()
	if len(cfg.Tracker.Fields) != len(DefaultDefinition().Fields) {
		t.Errorf("got %d tracker fields, want %d", len(cfg.Tracker.Fields), len(DefaultDefinition().Fields))
	}
	if cfg.Prompts.Summary.Request != DefaultSummaryRequestPrompt {
		t.Error("summary request prompt did not round trip")
	}
	if mgr.ConfigFile() != path {
		t.Errorf("ConfigFile() = %q, want %q", mgr.ConfigFile(), path)
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "storage:\n  path: a.db\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "storage:\n  path: a.db\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Storage.Path
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "storage:\n  path: initial.db\n")

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	if got := mgr.Get().Storage.Path; got != "initial.db" {
		t.Errorf("initial value mismatch: expected initial.db, got %s", got)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Storage.Path)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("storage:\n  path: updated.db\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	// Wait for the watcher to detect the change (fsnotify is async)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Storage.Path; got != "updated.db" {
		t.Errorf("config not updated: expected updated.db, got %s", got)
	}
	if v := lastValue.Load(); v != "updated.db" {
		t.Errorf("callback received wrong value: expected updated.db, got %v", v)
	}
}
