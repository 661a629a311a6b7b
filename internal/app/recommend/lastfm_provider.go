package recommend

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/melodeck/melodeck/internal/domain/track"
	"github.com/melodeck/melodeck/internal/infra/lastfm"
)

// SimilarSource defines the Last.fm operations the provider needs.
type SimilarSource interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.SimilarTrack, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.SimilarTrack, error)
}

type LastFMProviderConfig struct {
	APIKey         string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	SeedTrackCount int    `yaml:"seed_track_count" mapstructure:"seed_track_count" default:"3" validate:"gte=1"`
	SimilarLimit   int    `yaml:"similar_limit" mapstructure:"similar_limit" default:"10" validate:"gte=1"`
}

// LastFMProvider provides recommendation candidates using the Last.fm
// similarity API, resolving each hit against the catalog. When no seed
// tracks are available it falls back to the global charts.
type LastFMProvider struct {
	lastfm  SimilarSource
	catalog Catalog

	// Cache for catalog lookup results
	searchCache map[string]*track.Track
	cacheMu     sync.RWMutex

	config *LastFMProviderConfig
}

// NewLastFMProvider creates a new LastFMProvider.
func NewLastFMProvider(catalog Catalog, settings map[string]any) (*LastFMProvider, error) {
	if catalog == nil {
		return nil, errors.New("catalog is required")
	}
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config LastFMProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	lastfmClient, err := lastfm.New(lastfm.Config{APIKey: config.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}

	return &LastFMProvider{
		lastfm:      lastfmClient,
		catalog:     catalog,
		searchCache: make(map[string]*track.Track),
		config:      &config,
	}, nil
}

// GetCandidates retrieves candidates similar to the seed tracks.
func (p *LastFMProvider) GetCandidates(ctx context.Context, count int, seedTracks []track.Track, excludeIDs map[string]bool) ([]track.Track, error) {
	if count <= 0 {
		return []track.Track{}, nil
	}

	if len(seedTracks) > p.config.SeedTrackCount {
		seedTracks = seedTracks[:p.config.SeedTrackCount]
	}

	if len(seedTracks) == 0 {
		// No seed tracks available, use global charts as fallback
		return p.getChartBasedCandidates(ctx, count, excludeIDs)
	}

	var candidates []track.Track
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, seed := range seedTracks {
		if len(seed.Artists) == 0 {
			continue
		}

		wg.Add(1)
		go func(s track.Track) {
			defer wg.Done()
			similar, err := p.lastfm.GetSimilarTracks(ctx, s.Name, s.Artists[0], p.config.SimilarLimit)
			if err != nil {
				return // Skip on error
			}

			for _, sim := range similar {
				resolved := p.searchCatalog(ctx, sim.Name, sim.Artist)
				if resolved != nil {
					mu.Lock()
					if !excludeIDs[resolved.ID] {
						candidates = append(candidates, *resolved)
					}
					mu.Unlock()
				}
			}
		}(seed)
	}
	wg.Wait()

	candidates = deduplicateByID(candidates)
	if len(candidates) == 0 {
		return []track.Track{}, nil
	}

	// Shuffle so repeated refills with the same seeds vary
	rng := newRand()
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	if len(candidates) > count {
		candidates = candidates[:count]
	}
	return candidates, nil
}

// Name returns the provider name.
func (p *LastFMProvider) Name() string {
	return "lastfm"
}

// getChartBasedCandidates retrieves candidates from the global charts.
// Used as a fallback when no seed tracks are available yet.
func (p *LastFMProvider) getChartBasedCandidates(ctx context.Context, count int, excludeIDs map[string]bool) ([]track.Track, error) {
	chartTracks, err := p.lastfm.GetChartTopTracks(ctx, 50)
	if err != nil {
		return nil, err
	}

	// Shuffle chart tracks to avoid always picking the same top entries
	rng := newRand()
	rng.Shuffle(len(chartTracks), func(i, j int) {
		chartTracks[i], chartTracks[j] = chartTracks[j], chartTracks[i]
	})

	var candidates []track.Track
	for _, chartTrack := range chartTracks {
		resolved := p.searchCatalog(ctx, chartTrack.Name, chartTrack.Artist)
		if resolved != nil && !excludeIDs[resolved.ID] {
			candidates = append(candidates, *resolved)
		}
		if len(candidates) >= count {
			break
		}
	}

	return deduplicateByID(candidates), nil
}

// searchCatalog resolves a name/artist pair against the catalog with caching.
// Failed lookups are cached as nil to avoid repeated misses.
func (p *LastFMProvider) searchCatalog(ctx context.Context, trackName, artistName string) *track.Track {
	key := fmt.Sprintf("%s:%s", trackName, artistName)

	p.cacheMu.RLock()
	if cached, ok := p.searchCache[key]; ok {
		p.cacheMu.RUnlock()
		return cached
	}
	p.cacheMu.RUnlock()

	resolved, err := p.catalog.SearchOne(ctx, trackName, artistName)
	if err != nil {
		resolved = nil
	}

	p.cacheMu.Lock()
	p.searchCache[key] = resolved
	p.cacheMu.Unlock()

	return resolved
}
