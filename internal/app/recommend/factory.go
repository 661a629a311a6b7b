package recommend

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/melodeck/melodeck/internal/infra/config"
)

// NewChainFromConfig creates a provider chain from configuration.
func NewChainFromConfig(cfg *config.RecommendationsConfig, catalog Catalog) (*Chain, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("no recommendation providers configured")
	}

	var providers []ProviderWithMetadata

	for i, pcfg := range cfg.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating recommendation provider: index=%d type=%s settings=%+v", i+1, pcfg.Type, pcfg.Settings)
		switch pcfg.Type {
		case "lastfm":
			provider, err = NewLastFMProvider(catalog, pcfg.Settings)

		case "catalog":
			provider, err = NewCatalogProvider(catalog, pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("registered recommendation provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewChain(providers), nil
}
