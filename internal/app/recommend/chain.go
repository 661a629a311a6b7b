package recommend

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/melodeck/melodeck/internal/domain/track"
)

// ProviderWithMetadata wraps a provider with its display metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// Chain tries multiple providers in order, accumulating candidates.
type Chain struct {
	providers []ProviderWithMetadata
}

// NewChain creates a new provider chain.
func NewChain(providers []ProviderWithMetadata) *Chain {
	return &Chain{
		providers: providers,
	}
}

// GetCandidates retrieves candidates from all providers.
// All providers are tried to maximize the candidate pool for filtering.
func (c *Chain) GetCandidates(ctx context.Context, count int, seedTracks []track.Track, excludeIDs map[string]bool) ([]track.Track, error) {
	var all []track.Track
	currentExcludeIDs := make(map[string]bool, len(excludeIDs))
	for k, v := range excludeIDs {
		currentExcludeIDs[k] = v
	}

	for i, pm := range c.providers {
		zlog.Debug().Msgf("trying provider: index=%d total=%d name=%s provider_type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		candidates, err := pm.Provider.GetCandidates(ctx, count, seedTracks, currentExcludeIDs)
		if err != nil {
			zlog.Warn().Msgf("provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			continue
		}

		if len(candidates) == 0 {
			zlog.Debug().Msgf("provider returned no candidates: provider=%s", pm.DisplayName)
			continue
		}

		for _, t := range candidates {
			all = append(all, t)
			// Update exclude set to avoid duplicates from the next provider
			currentExcludeIDs[t.ID] = true
		}

		zlog.Info().Msgf("provider returned candidates: provider=%s count=%d total_so_far=%d",
			pm.DisplayName, len(candidates), len(all))
	}

	if len(all) == 0 {
		return nil, errors.New("all providers failed to return candidates")
	}

	return all, nil
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "provider_chain"
}
