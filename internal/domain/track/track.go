// Package track provides the Track domain entity.
package track

import "time"

// Track represents a playable track entity.
// Contains only information retrieved from the media catalog.
type Track struct {
	ID          string        // Catalog track ID
	Name        string        // Track name
	Artists     []string      // Artist names
	Album       string        // Album name
	AlbumArtURL string        // Album art URL
	Duration    time.Duration // Track duration
	URL         string        // Catalog URL
	Genres      []string      // Genres (from artist info)
	Explicit    bool          // Explicit content flag
}

// Source represents how an entry ended up in the queue.
type Source string

const (
	SourceUser           Source = "USER"           // Explicitly added by the listener
	SourceRecommendation Source = "RECOMMENDATION" // Supplied by the recommendation feed
)

// Entry represents a track in the playback queue.
type Entry struct {
	Track   Track     // Catalog track info
	Source  Source    // How the entry was added
	AddedAt time.Time // Time when added to queue
}

// MainArtist returns the first (primary) artist name, or "" if unknown.
func (t *Track) MainArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// NewUserEntry wraps a track as a listener-added queue entry.
func NewUserEntry(t Track) Entry {
	return Entry{Track: t, Source: SourceUser, AddedAt: time.Now()}
}

// NewRecommendationEntry wraps a track as a feed-supplied queue entry.
func NewRecommendationEntry(t Track) Entry {
	return Entry{Track: t, Source: SourceRecommendation, AddedAt: time.Now()}
}

// IDs returns the track IDs for a slice of tracks, preserving order.
func IDs(tracks []Track) []string {
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	return ids
}
