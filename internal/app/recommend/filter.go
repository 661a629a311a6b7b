package recommend

import (
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/melodeck/melodeck/internal/domain/track"
	"github.com/melodeck/melodeck/internal/infra/config"
)

// CandidateFilter screens provider candidates before they reach the queue.
type CandidateFilter interface {
	// Name returns the filter name (used in logs).
	Name() string
	// Keep reports whether the candidate should be kept.
	Keep(t track.Track) bool
}

// FilterChain executes filters in sequence, dropping rejected candidates.
type FilterChain struct {
	filters []CandidateFilter
}

// NewFilterChain creates a chain from configuration.
func NewFilterChain(cfg config.FiltersConfig, known func(id string) bool) *FilterChain {
	c := &FilterChain{}
	c.Add(&DuplicateFilter{known: known})
	if cfg.MaxDurationSec > 0 {
		c.Add(&DurationFilter{max: time.Duration(cfg.MaxDurationSec) * time.Second})
	}
	if !cfg.AllowExplicit {
		c.Add(&ExplicitFilter{})
	}
	return c
}

// Add adds a filter to the chain.
func (c *FilterChain) Add(f CandidateFilter) {
	c.filters = append(c.filters, f)
}

// Apply runs all candidates through the chain and returns the survivors.
func (c *FilterChain) Apply(tracks []track.Track) []track.Track {
	kept := make([]track.Track, 0, len(tracks))
candidates:
	for _, t := range tracks {
		for _, f := range c.filters {
			if !f.Keep(t) {
				zlog.Debug().Msgf("candidate rejected: filter=%s track=%s artist=%s", f.Name(), t.Name, t.MainArtist())
				continue candidates
			}
		}
		kept = append(kept, t)
	}
	return kept
}

// DuplicateFilter rejects tracks already known to the session, either
// queued or already reported as played.
type DuplicateFilter struct {
	known func(id string) bool
}

func (f *DuplicateFilter) Name() string {
	return "duplicate_filter"
}

func (f *DuplicateFilter) Keep(t track.Track) bool {
	return !f.known(t.ID)
}

// DurationFilter rejects tracks longer than the configured maximum.
type DurationFilter struct {
	max time.Duration
}

func (f *DurationFilter) Name() string {
	return "duration_filter"
}

func (f *DurationFilter) Keep(t track.Track) bool {
	return t.Duration <= f.max
}

// ExplicitFilter rejects explicit tracks.
type ExplicitFilter struct{}

func (f *ExplicitFilter) Name() string {
	return "explicit_filter"
}

func (f *ExplicitFilter) Keep(t track.Track) bool {
	return !t.Explicit
}
