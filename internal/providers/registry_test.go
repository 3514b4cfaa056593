package providers

import (
	"sync"
	"testing"
)

func TestRegistry(t *testing.T) {
	t.Run("register and get LLM", func(t *testing.T) {
		r := NewRegistry()
		mock := NewMockClient()

		r.RegisterLLM("test-llm", mock)

		client, err := r.GetLLM("test-llm")
		if err != nil {
			t.Fatalf("GetLLM() error = %v", err)
		}
		if client != mock {
			t.Error("got different client than registered")
		}
	})

	t.Run("get nonexistent LLM", func(t *testing.T) {
		r := NewRegistry()

		if _, err := r.GetLLM("nonexistent"); err == nil {
			t.Error("expected error for nonexistent LLM")
		}
	})

	t.Run("list and has", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterLLM("llm2", NewMockClient())
		r.RegisterLLM("llm1", NewMockClient())

		list := r.ListLLM()
		if len(list) != 2 || list[0] != "llm1" {
			t.Errorf("ListLLM() = %v, want sorted [llm1 llm2]", list)
		}
		if !r.HasLLM("llm1") {
			t.Error("HasLLM() = false for registered LLM")
		}
		if r.HasLLM("llm3") {
			t.Error("HasLLM() = true for unknown LLM")
		}
	})

	t.Run("concurrent access", func(t *testing.T) {
		r := NewRegistry()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				r.RegisterLLM("concurrent-llm", NewMockClient())
			}()
			go func() {
				defer wg.Done()
				r.GetLLM("concurrent-llm") // May fail, that's ok
			}()
		}
		wg.Wait()
	})
}

func TestNewRegistryFromConfig(t *testing.T) {
	t.Run("registers providers from config", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			LLMProviders: map[string]LLMProviderConfig{
				"openrouter": {
					Type:    OpenRouterName,
					Model:   "anthropic/claude-sonnet-4",
					APIKey:  "test-openrouter-key",
					Enabled: true,
				},
				"local": {
					Type:    MockClientName,
					Enabled: true,
				},
			},
		})

		if !r.HasLLM("openrouter") {
			t.Error("expected openrouter to be registered")
		}
		if !r.HasLLM("local") {
			t.Error("mock provider needs no API key")
		}
	})

	t.Run("skips disabled providers", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			LLMProviders: map[string]LLMProviderConfig{
				"openrouter": {Type: OpenRouterName, APIKey: "test-key", Enabled: false},
			},
		})

		if r.HasLLM("openrouter") {
			t.Error("disabled provider should not be registered")
		}
	})

	t.Run("skips providers without API keys", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			LLMProviders: map[string]LLMProviderConfig{
				"openrouter": {Type: OpenRouterName, Enabled: true},
			},
		})

		if r.HasLLM("openrouter") {
			t.Error("provider without API key should not be registered")
		}
	})

	t.Run("skips unknown types", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			LLMProviders: map[string]LLMProviderConfig{
				"weird": {Type: "carrier-pigeon", APIKey: "k", Enabled: true},
			},
		})

		if r.HasLLM("weird") {
			t.Error("unknown provider type should not be registered")
		}
	})

	t.Run("uses custom model and name", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			LLMProviders: map[string]LLMProviderConfig{
				"primary": {Type: OpenAIName, Model: "custom-model", APIKey: "test-key", Enabled: true},
			},
		})

		client, _ := r.GetLLM("primary")
		oc, ok := client.(*OpenAIClient)
		if !ok {
			t.Fatalf("expected *OpenAIClient, got %T", client)
		}
		if oc.defaultModel != "custom-model" {
			t.Errorf("expected custom-model, got %s", oc.defaultModel)
		}
		if oc.Name() != "primary" {
			t.Errorf("Name() = %q, want primary", oc.Name())
		}
	})

	t.Run("wraps rate limited providers", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			LLMProviders: map[string]LLMProviderConfig{
				"limited": {Type: MockClientName, RateLimit: 5, Enabled: true},
			},
		})

		client, _ := r.GetLLM("limited")
		if _, ok := client.(*rateLimitedClient); !ok {
			t.Errorf("expected rate limited client, got %T", client)
		}
	})
}

func TestRegistry_Reload(t *testing.T) {
	t.Run("adds new providers on reload", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{})

		r.Reload(RegistryConfig{
			LLMProviders: map[string]LLMProviderConfig{
				"openrouter": {Type: OpenRouterName, APIKey: "new-key", Enabled: true},
			},
		})

		if !r.HasLLM("openrouter") {
			t.Error("expected openrouter after reload")
		}
	})

	t.Run("removes providers on reload", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			LLMProviders: map[string]LLMProviderConfig{
				"openrouter": {Type: OpenRouterName, APIKey: "key", Enabled: true},
			},
		})

		r.Reload(RegistryConfig{})

		if r.HasLLM("openrouter") {
			t.Error("openrouter should be removed after reload")
		}
	})

	t.Run("keeps manually registered clients", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterLLM("manual", NewMockClient())

		r.Reload(RegistryConfig{})

		if !r.HasLLM("manual") {
			t.Error("manually registered client should survive reload")
		}
	})

	t.Run("updates providers with changed settings", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{
			LLMProviders: map[string]LLMProviderConfig{
				"openrouter": {Type: OpenRouterName, Model: "a", APIKey: "old-key", Enabled: true},
			},
		})
		client1, _ := r.GetLLM("openrouter")

		r.Reload(RegistryConfig{
			LLMProviders: map[string]LLMProviderConfig{
				"openrouter": {Type: OpenRouterName, Model: "b", APIKey: "new-key", Enabled: true},
			},
		})
		client2, _ := r.GetLLM("openrouter")

		if client1 == client2 {
			t.Error("client should be replaced when config changes")
		}
		if client2.(*OpenAIClient).defaultModel != "b" {
			t.Error("expected updated model")
		}
	})

	t.Run("keeps providers with unchanged config", func(t *testing.T) {
		cfg := RegistryConfig{
			LLMProviders: map[string]LLMProviderConfig{
				"openrouter": {Type: OpenRouterName, Model: "test-model", APIKey: "same-key", RateLimit: 60, Enabled: true},
			},
		}
		r := NewRegistryFromConfig(cfg)
		client1, _ := r.GetLLM("openrouter")

		r.Reload(cfg)
		client2, _ := r.GetLLM("openrouter")

		if client1 != client2 {
			t.Error("client should not be replaced when config unchanged")
		}
	})

	t.Run("concurrent reload is safe", func(t *testing.T) {
		r := NewRegistryFromConfig(RegistryConfig{})

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func(n int) {
				defer wg.Done()
				r.Reload(RegistryConfig{
					LLMProviders: map[string]LLMProviderConfig{
						"openrouter": {Type: OpenRouterName, APIKey: "key-" + string(rune('a'+n)), Enabled: true},
					},
				})
			}(i)
			go func() {
				defer wg.Done()
				r.GetLLM("openrouter") // May fail, that's ok
			}()
		}
		wg.Wait()
	})
}
