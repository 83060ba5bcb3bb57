package llm

import "testing"

func TestNew_None(t *testing.T) {
	for _, p := range []string{"", ProviderNone} {
		m, err := New(Config{Provider: p})
		if err != nil {
			t.Fatalf("provider %q: %v", p, err)
		}
		if m != nil {
			t.Errorf("provider %q: expected nil model", p)
		}
	}
}

func TestNew_Providers(t *testing.T) {
	tests := []Config{
		{Provider: ProviderOpenAI, APIKey: "sk-test", Model: "gpt-4o-mini", BaseURL: "http://localhost:9999/v1"},
		{Provider: ProviderAnthropic, APIKey: "test", Model: "claude-3-5-haiku-latest"},
		{Provider: ProviderOllama, Model: "llama3.1", BaseURL: "http://localhost:11434"},
	}
	for _, cfg := range tests {
		t.Run(cfg.Provider, func(t *testing.T) {
			m, err := New(cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if m == nil {
				t.Fatal("expected a model")
			}
		})
	}
}

func TestNew_Unknown(t *testing.T) {
	if _, err := New(Config{Provider: "gemini"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
