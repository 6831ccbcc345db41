package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/example/c2s-leadsync/internal/util"
)

// Provider backends understood by the factory.
const (
	ProviderC2S  = "c2s"
	ProviderMock = "mock"
)

// Config captures all runtime configuration for the lead synchronization
// engine. It is read once per process and passed down explicitly.
type Config struct {
	App    AppConfig
	C2S    C2SConfig
	Flags  FeatureFlags
	Queue  QueueConfig
	Dedupe DedupeConfig
	Events EventsConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// C2SConfig holds connection parameters for the CRM API.
type C2SConfig struct {
	Provider           string
	BaseURL            string
	Token              string
	CompanyID          string
	DefaultSellerID    string
	WebhookSecret      string
	TimeoutMs          int
	RetryAttempts      int
	RetryDelayMs       int
	RateLimitMs        int
	DefaultCountryCode string
}

// FeatureFlags toggles optional behaviour of the integration.
type FeatureFlags struct {
	IntegrationEnabled  bool
	AutoTagging         bool
	SellerSync          bool
	WebhookEnabled      bool
	DistributionEnabled bool
	VisitIntegration    bool
}

// QueueConfig controls the retry queue scheduler.
type QueueConfig struct {
	IntervalSeconds   int
	RetryAfterSeconds int
	MaxAttempts       int
}

// DedupeConfig controls idempotent submission handling. An empty RedisURL
// selects the in-process store.
type DedupeConfig struct {
	TTLSeconds int
	RedisURL   string
}

// EventsConfig enables lead lifecycle publishing when brokers are set. A
// RequestsTopic additionally turns on lead intake from Kafka.
type EventsConfig struct {
	Brokers       []string
	LeadsTopic    string
	DLQTopic      string
	ClientLabel   string
	RequestsTopic string
	ConsumerGroup string
}

// Enabled reports whether lifecycle events should be published.
func (e EventsConfig) Enabled() bool {
	return len(e.Brokers) > 0
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 8080, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Flags.IntegrationEnabled = ldr.getBool("C2S_INTEGRATION_ENABLED", true, false)
	cfg.Flags.AutoTagging = ldr.getBool("C2S_AUTO_TAGGING", true, false)
	cfg.Flags.SellerSync = ldr.getBool("C2S_SELLER_SYNC", false, false)
	cfg.Flags.WebhookEnabled = ldr.getBool("C2S_WEBHOOK_ENABLED", false, false)
	cfg.Flags.DistributionEnabled = ldr.getBool("C2S_DISTRIBUTION_ENABLED", false, false)
	cfg.Flags.VisitIntegration = ldr.getBool("C2S_VISIT_INTEGRATION", false, false)

	cfg.C2S.Provider = strings.ToLower(ldr.getString("CRM_PROVIDER", ProviderC2S, false))
	switch cfg.C2S.Provider {
	case ProviderC2S, ProviderMock:
	default:
		ldr.addError(fmt.Sprintf("CRM_PROVIDER must be one of %q, %q", ProviderC2S, ProviderMock))
	}

	needsCredentials := cfg.Flags.IntegrationEnabled && cfg.C2S.Provider == ProviderC2S
	cfg.C2S.BaseURL = ldr.getString("C2S_API_URL", "https://api.contact2sale.com/integration", false)
	cfg.C2S.Token = ldr.getString("C2S_API_TOKEN", "", needsCredentials)
	cfg.C2S.CompanyID = ldr.getString("C2S_COMPANY_ID", "", false)
	cfg.C2S.DefaultSellerID = ldr.getString("C2S_DEFAULT_SELLER_ID", "", false)
	cfg.C2S.WebhookSecret = ldr.getString("C2S_WEBHOOK_SECRET", "", cfg.Flags.WebhookEnabled)
	cfg.C2S.TimeoutMs = ldr.getInt("C2S_TIMEOUT_MS", 30000, false)
	cfg.C2S.RetryAttempts = ldr.getInt("C2S_RETRY_ATTEMPTS", 3, false)
	cfg.C2S.RetryDelayMs = ldr.getInt("C2S_RETRY_DELAY_MS", 1000, false)
	cfg.C2S.RateLimitMs = ldr.getInt("C2S_RATE_LIMIT_MS", 100, false)
	cfg.C2S.DefaultCountryCode = ldr.getString("C2S_DEFAULT_COUNTRY_CODE", "55", false)

	if _, err := util.ValidateHTTPURL(cfg.C2S.BaseURL); err != nil {
		ldr.addError(fmt.Sprintf("C2S_API_URL: %v", err))
	}
	if cfg.C2S.TimeoutMs <= 0 {
		ldr.addError("C2S_TIMEOUT_MS must be positive")
	}
	if cfg.C2S.RetryAttempts < 1 {
		ldr.addError("C2S_RETRY_ATTEMPTS must be >= 1")
	}

	cfg.Queue.IntervalSeconds = ldr.getInt("RETRY_QUEUE_INTERVAL_SECONDS", 60, false)
	cfg.Queue.RetryAfterSeconds = ldr.getInt("RETRY_QUEUE_RETRY_AFTER_SECONDS", 300, false)
	cfg.Queue.MaxAttempts = ldr.getInt("RETRY_QUEUE_MAX_ATTEMPTS", 5, false)
	if cfg.Queue.MaxAttempts < 1 {
		ldr.addError("RETRY_QUEUE_MAX_ATTEMPTS must be >= 1")
	}

	cfg.Dedupe.TTLSeconds = ldr.getInt("DEDUPE_TTL_SECONDS", 600, false)
	cfg.Dedupe.RedisURL = ldr.getString("REDIS_URL", "", false)

	cfg.Events.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	eventsOn := len(cfg.Events.Brokers) > 0
	cfg.Events.LeadsTopic = ldr.getString("KAFKA_LEAD_EVENTS_TOPIC", "", eventsOn)
	cfg.Events.DLQTopic = ldr.getString("KAFKA_LEAD_DLQ_TOPIC", "", eventsOn)
	cfg.Events.ClientLabel = ldr.getString("KAFKA_CLIENT_ID", "c2s-leadsync", false)
	cfg.Events.RequestsTopic = ldr.getString("KAFKA_LEAD_REQUESTS_TOPIC", "", false)
	cfg.Events.ConsumerGroup = ldr.getString("KAFKA_CONSUMER_GROUP", "c2s-leadsync-intake", false)
	if cfg.Events.RequestsTopic != "" && !eventsOn {
		ldr.addError("KAFKA_LEAD_REQUESTS_TOPIC requires KAFKA_BROKERS")
	}

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) lookup(key string, required bool) (string, bool) {
	val, ok := os.LookupEnv(key)
	if ok {
		val = strings.TrimSpace(val)
	}
	if !ok || val == "" {
		if required {
			l.addError(fmt.Sprintf("%s is required", key))
		}
		return "", false
	}
	return val, true
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := l.lookup(key, required); ok {
		return val
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	val, ok := l.lookup(key, required)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid integer", key))
		return def
	}
	return i
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	val, ok := l.lookup(key, required)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		l.addError(fmt.Sprintf("%s must be a valid boolean", key))
		return def
	}
	return parsed
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
