package factory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/c2s-leadsync/internal/config"
	"github.com/example/c2s-leadsync/internal/crm"
	"github.com/example/c2s-leadsync/internal/crm/c2s"
	"github.com/example/c2s-leadsync/internal/crm/mock"
	"github.com/example/c2s-leadsync/internal/mapper"
	"github.com/example/c2s-leadsync/internal/tags"
)

// Provider constructs the configured CRM provider. Supports the C2S and mock
// backends. The C2S provider is also returned separately so callers can
// reach operations outside the shared contract; it is nil for the mock.
func Provider(cfg *config.Config, logger zerolog.Logger) (crm.LeadProvider, *c2s.Provider, error) {
	if cfg == nil {
		return nil, nil, errors.New("factory: config is required")
	}

	backend := normalize(cfg.C2S.Provider, config.ProviderC2S)
	switch backend {
	case config.ProviderC2S:
		client, err := c2s.NewClient(cfg.C2S, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("factory: c2s client init: %w", err)
		}
		provider, err := c2s.NewProvider(cfg.C2S, cfg.Flags, c2s.Dependencies{
			Client: client,
			Mapper: mapper.New(logger,
				mapper.WithCountryCode(cfg.C2S.DefaultCountryCode),
				mapper.WithCompanyID(cfg.C2S.CompanyID),
				mapper.WithDefaultSellerID(cfg.C2S.DefaultSellerID),
			),
			Tags:   tags.New(),
			Logger: logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("factory: c2s provider init: %w", err)
		}
		logger.Info().
			Str("backend", config.ProviderC2S).
			Bool("integration_enabled", cfg.Flags.IntegrationEnabled).
			Bool("auto_tagging", cfg.Flags.AutoTagging).
			Msg("crm provider initialised")
		return provider, provider, nil
	case config.ProviderMock:
		provider := mock.NewProvider(logger)
		logger.Info().
			Str("backend", config.ProviderMock).
			Msg("crm provider initialised")
		return provider, nil, nil
	default:
		return nil, nil, fmt.Errorf("factory: unsupported crm provider backend %q", cfg.C2S.Provider)
	}
}

func normalize(value, def string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return def
	}
	return value
}
