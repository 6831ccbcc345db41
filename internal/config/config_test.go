package config_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/example/c2s-leadsync/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("C2S_API_TOKEN", "token-123")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Env != "development" {
		t.Fatalf("expected default env development, got %s", cfg.App.Env)
	}
	if cfg.C2S.Provider != config.ProviderC2S {
		t.Fatalf("expected default provider c2s, got %s", cfg.C2S.Provider)
	}
	if cfg.C2S.TimeoutMs != 30000 {
		t.Fatalf("expected default timeout 30000, got %d", cfg.C2S.TimeoutMs)
	}
	if cfg.C2S.RetryAttempts != 3 || cfg.C2S.RetryDelayMs != 1000 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.C2S)
	}
	if cfg.C2S.DefaultCountryCode != "55" {
		t.Fatalf("expected default country code 55, got %s", cfg.C2S.DefaultCountryCode)
	}
	if !cfg.Flags.IntegrationEnabled || !cfg.Flags.AutoTagging {
		t.Fatalf("expected integration and auto tagging enabled by default: %+v", cfg.Flags)
	}
	if cfg.Flags.VisitIntegration {
		t.Fatalf("expected visit integration disabled by default")
	}
	if cfg.Events.Enabled() {
		t.Fatalf("expected events disabled without brokers")
	}
	if cfg.Queue.MaxAttempts != 5 {
		t.Fatalf("expected default queue max attempts 5, got %d", cfg.Queue.MaxAttempts)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("C2S_API_URL", "https://crm.example.com/api")
	t.Setenv("C2S_API_TOKEN", "secret")
	t.Setenv("C2S_COMPANY_ID", "company-9")
	t.Setenv("C2S_RETRY_ATTEMPTS", "5")
	t.Setenv("C2S_VISIT_INTEGRATION", "true")
	t.Setenv("KAFKA_BROKERS", "broker-a:9092, broker-b:9093")
	t.Setenv("KAFKA_LEAD_EVENTS_TOPIC", "leads.events")
	t.Setenv("KAFKA_LEAD_DLQ_TOPIC", "leads.dlq")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.C2S.BaseURL != "https://crm.example.com/api" {
		t.Fatalf("unexpected base url %s", cfg.C2S.BaseURL)
	}
	if cfg.C2S.CompanyID != "company-9" {
		t.Fatalf("unexpected company id %s", cfg.C2S.CompanyID)
	}
	if cfg.C2S.RetryAttempts != 5 {
		t.Fatalf("expected retry attempts 5, got %d", cfg.C2S.RetryAttempts)
	}
	if !cfg.Flags.VisitIntegration {
		t.Fatalf("expected visit integration enabled")
	}
	wantBrokers := []string{"broker-a:9092", "broker-b:9093"}
	if !reflect.DeepEqual(cfg.Events.Brokers, wantBrokers) {
		t.Fatalf("expected brokers %v, got %v", wantBrokers, cfg.Events.Brokers)
	}
	if !cfg.Events.Enabled() {
		t.Fatalf("expected events enabled")
	}
}

func TestLoadMissingToken(t *testing.T) {
	_, err := config.Load()
	if err == nil {
		t.Fatalf("expected error when token missing")
	}
	if !strings.Contains(err.Error(), "C2S_API_TOKEN is required") {
		t.Fatalf("expected missing token message, got %q", err.Error())
	}
}

func TestLoadTokenNotRequiredWhenDisabled(t *testing.T) {
	t.Setenv("C2S_INTEGRATION_ENABLED", "false")

	if _, err := config.Load(); err != nil {
		t.Fatalf("expected disabled integration to load without token: %v", err)
	}
}

func TestLoadMockProviderSkipsCredentials(t *testing.T) {
	t.Setenv("CRM_PROVIDER", "MOCK")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.C2S.Provider != config.ProviderMock {
		t.Fatalf("expected mock provider, got %s", cfg.C2S.Provider)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	t.Setenv("C2S_API_TOKEN", "token")
	t.Setenv("CRM_PROVIDER", "hubspot")
	t.Setenv("C2S_TIMEOUT_MS", "abc")
	t.Setenv("C2S_API_URL", "ftp://crm.example.com")
	t.Setenv("C2S_AUTO_TAGGING", "maybe")

	_, err := config.Load()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"CRM_PROVIDER must be one of",
		"C2S_TIMEOUT_MS must be a valid integer",
		"C2S_API_URL",
		"C2S_AUTO_TAGGING must be a valid boolean",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("expected %q in error, got %q", want, msg)
		}
	}
}

func TestLoadEventsRequireTopics(t *testing.T) {
	t.Setenv("C2S_API_TOKEN", "token")
	t.Setenv("KAFKA_BROKERS", "broker:9092")

	_, err := config.Load()
	if err == nil {
		t.Fatalf("expected error when topics missing")
	}
	if !strings.Contains(err.Error(), "KAFKA_LEAD_EVENTS_TOPIC is required") {
		t.Fatalf("unexpected error %q", err.Error())
	}
}

func TestLoadWebhookSecretRequiredWhenEnabled(t *testing.T) {
	t.Setenv("C2S_API_TOKEN", "token")
	t.Setenv("C2S_WEBHOOK_ENABLED", "true")

	_, err := config.Load()
	if err == nil || !strings.Contains(err.Error(), "C2S_WEBHOOK_SECRET is required") {
		t.Fatalf("expected webhook secret error, got %v", err)
	}
}

func TestLoadIntakeTopicRequiresBrokers(t *testing.T) {
	t.Setenv("C2S_API_TOKEN", "token")
	t.Setenv("KAFKA_LEAD_REQUESTS_TOPIC", "leads.requests")

	_, err := config.Load()
	if err == nil || !strings.Contains(err.Error(), "KAFKA_LEAD_REQUESTS_TOPIC requires KAFKA_BROKERS") {
		t.Fatalf("expected intake topic error, got %v", err)
	}
}
