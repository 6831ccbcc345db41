package factory

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/c2s-leadsync/internal/config"
	"github.com/example/c2s-leadsync/internal/crm/c2s"
	"github.com/example/c2s-leadsync/internal/crm/mock"
)

func TestProviderBackends(t *testing.T) {
	cfg := &config.Config{
		C2S: config.C2SConfig{
			Provider:  "C2S",
			BaseURL:   "https://api.example.com",
			Token:     "token",
			TimeoutMs: 1000,
		},
		Flags: config.FeatureFlags{IntegrationEnabled: true},
	}

	provider, direct, err := Provider(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("c2s backend: %v", err)
	}
	if _, ok := provider.(*c2s.Provider); !ok || direct == nil {
		t.Fatalf("expected c2s provider, got %T", provider)
	}

	cfg.C2S.Provider = "mock"
	provider, direct, err = Provider(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("mock backend: %v", err)
	}
	if _, ok := provider.(*mock.Provider); !ok || direct != nil {
		t.Fatalf("expected mock provider, got %T", provider)
	}

	cfg.C2S.Provider = ""
	if provider, _, err = Provider(cfg, zerolog.Nop()); err != nil {
		t.Fatalf("default backend: %v", err)
	}
	if _, ok := provider.(*c2s.Provider); !ok {
		t.Fatalf("expected c2s to be the default backend, got %T", provider)
	}
}

func TestProviderErrors(t *testing.T) {
	if _, _, err := Provider(nil, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for nil config")
	}

	cfg := &config.Config{C2S: config.C2SConfig{Provider: "salesforce", BaseURL: "https://api.example.com"}}
	if _, _, err := Provider(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for unsupported backend")
	}

	cfg.C2S.Provider = config.ProviderC2S
	cfg.C2S.BaseURL = "ftp://nope"
	if _, _, err := Provider(cfg, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for invalid base url")
	}
}
