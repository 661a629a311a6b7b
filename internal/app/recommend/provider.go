// Package recommend provides track provision strategies for the
// recommendation tail of the queue.
package recommend

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"math/rand"
	"time"

	"github.com/melodeck/melodeck/internal/domain/track"
)

// Provider is the interface for recommendation track providers.
// Different implementations can provide tracks through various strategies
// (e.g., similarity-based, catalog-search-based, etc.).
type Provider interface {
	// GetCandidates retrieves recommendation candidates.
	// count: the number of candidates to retrieve
	// seedTracks: recently played tracks that can be used as hints
	// excludeIDs: tracks already in the queue or already reported
	GetCandidates(ctx context.Context, count int, seedTracks []track.Track, excludeIDs map[string]bool) ([]track.Track, error)

	// Name returns the provider name (used in config).
	Name() string
}

// Catalog defines the catalog operations needed by providers.
type Catalog interface {
	SearchOne(ctx context.Context, name, artist string) (*track.Track, error)
	FetchTracks(ctx context.Context, filter string, limit, offset int) ([]track.Track, error)
}

// newRand returns a crypto-seeded math/rand source. Falls back to the
// wall clock when crypto/rand is unavailable.
func newRand() *rand.Rand {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// deduplicateByID removes duplicate tracks by ID, keeping first occurrences.
func deduplicateByID(tracks []track.Track) []track.Track {
	seen := make(map[string]bool)
	result := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if !seen[t.ID] {
			seen[t.ID] = true
			result = append(result, t)
		}
	}
	return result
}
