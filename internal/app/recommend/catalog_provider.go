package recommend

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/melodeck/melodeck/internal/domain/track"
)

type CatalogProviderConfig struct {
	Query    string `yaml:"query" mapstructure:"query" validate:"required"`
	PoolSize int    `yaml:"pool_size" mapstructure:"pool_size" default:"50" validate:"gte=1,lte=50"`
}

// CatalogProvider provides recommendation candidates by sampling a catalog
// search query (e.g. a genre or year filter). It maintains an internal
// cache to minimize catalog API calls.
type CatalogProvider struct {
	catalog Catalog
	cache   []track.Track
	config  *CatalogProviderConfig
}

// NewCatalogProvider creates a new CatalogProvider.
func NewCatalogProvider(catalog Catalog, settings map[string]any) (*CatalogProvider, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}

	var config CatalogProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("catalog provider config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		zlog.Error().Msgf("catalog provider validation failed: %v", err)
		return nil, errors.Wrap(err, "validation failed")
	}

	return &CatalogProvider{
		catalog: catalog,
		cache:   make([]track.Track, 0),
		config:  &config,
	}, nil
}

// GetCandidates retrieves random tracks matching the configured query.
// Maintains a cache to avoid redundant API calls when random sampling
// returns duplicates.
func (p *CatalogProvider) GetCandidates(ctx context.Context, count int, seedTracks []track.Track, excludeIDs map[string]bool) ([]track.Track, error) {
	if count <= 0 {
		return []track.Track{}, nil
	}

	// Filter the cache against tracks already excluded
	available := make([]track.Track, 0, len(p.cache))
	for _, t := range p.cache {
		if !excludeIDs[t.ID] {
			available = append(available, t)
		}
	}

	if len(available) < count {
		// Random page offset so repeated refills sample different tracks
		rng := newRand()
		offset := rng.Intn(p.config.PoolSize)

		fetched, err := p.catalog.FetchTracks(ctx, p.config.Query, p.config.PoolSize, offset)
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch tracks from catalog")
		}

		rng.Shuffle(len(fetched), func(i, j int) {
			fetched[i], fetched[j] = fetched[j], fetched[i]
		})

		for _, t := range fetched {
			if !excludeIDs[t.ID] && !containsID(available, t.ID) {
				available = append(available, t)
			}
		}
	}

	if len(available) == 0 {
		return []track.Track{}, nil
	}

	returnCount := count
	if returnCount > len(available) {
		returnCount = len(available)
	}

	result := available[:returnCount]
	p.cache = available[returnCount:]

	return result, nil
}

// Name returns the provider name.
func (p *CatalogProvider) Name() string {
	return "catalog"
}

// containsID checks if a track ID is in the slice.
func containsID(tracks []track.Track, id string) bool {
	for _, t := range tracks {
		if t.ID == id {
			return true
		}
	}
	return false
}
