// Package library provides whole-catalog shuffle operations.
package library

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/melodeck/melodeck/internal/domain/track"
)

// Errors
var (
	ErrEmptyCatalog = errors.New("no tracks available")
)

// Catalog defines the catalog operations the service needs.
type Catalog interface {
	SavedTracks(ctx context.Context, limit, offset int) ([]track.Track, error)
	FetchGenreTracks(ctx context.Context, genre string, limit, offset int) ([]track.Track, error)
	ArtistTopTracks(ctx context.Context, artistID string) ([]track.Track, error)
	AlbumTracks(ctx context.Context, albumID string) ([]track.Track, error)
}

// Player is the set of playback operations the service drives.
type Player interface {
	ShufflePlay(ctx context.Context, tracks []track.Track) error
	PlayTracks(ctx context.Context, tracks []track.Track) error
}

const (
	pageSize = 50
	// Fetching stops once this many tracks have been pulled from the
	// library. The queue caps its own length anyway.
	maxFetch = 500
)

// Service implements shuffle-everything operations. The full library is
// cached in memory after the first fetch so repeated shuffles do not hit
// the catalog again.
type Service struct {
	catalog Catalog
	player  Player

	mu    sync.Mutex
	cache []track.Track
}

// NewService creates a new library service.
func NewService(catalog Catalog, player Player) *Service {
	return &Service{
		catalog: catalog,
		player:  player,
	}
}

// ShuffleAllSongs replaces the queue with the whole library, shuffled.
// A fetch failure or an empty library leaves the queue untouched.
func (s *Service) ShuffleAllSongs(ctx context.Context) error {
	tracks := s.cachedTracks()
	if len(tracks) == 0 {
		fetched, err := s.fetchAll(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to fetch library")
		}
		tracks = fetched
		s.setCache(fetched)
	}

	if len(tracks) == 0 {
		return ErrEmptyCatalog
	}

	zlog.Info().Msgf("shuffling all songs: count=%d", len(tracks))
	return s.player.ShufflePlay(ctx, tracks)
}

// ShuffleGenre replaces the queue with tracks of the given genre, shuffled.
func (s *Service) ShuffleGenre(ctx context.Context, genre string) error {
	if genre == "" {
		return errors.New("genre is required")
	}

	tracks := s.cachedGenre(genre)
	if len(tracks) == 0 {
		fetched, err := s.catalog.FetchGenreTracks(ctx, genre, pageSize, 0)
		if err != nil {
			return errors.Wrapf(err, "failed to fetch tracks for genre %q", genre)
		}
		tracks = fetched
	}

	if len(tracks) == 0 {
		return errors.Wrapf(ErrEmptyCatalog, "genre %q", genre)
	}

	zlog.Info().Msgf("shuffling genre: genre=%s count=%d", genre, len(tracks))
	return s.player.ShufflePlay(ctx, tracks)
}

// ShuffleArtist replaces the queue with the artist's top tracks, shuffled.
func (s *Service) ShuffleArtist(ctx context.Context, artistID string) error {
	if artistID == "" {
		return errors.New("artist id is required")
	}

	tracks, err := s.catalog.ArtistTopTracks(ctx, artistID)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch top tracks for artist %q", artistID)
	}
	if len(tracks) == 0 {
		return errors.Wrapf(ErrEmptyCatalog, "artist %q", artistID)
	}

	zlog.Info().Msgf("shuffling artist: artist=%s count=%d", artistID, len(tracks))
	return s.player.ShufflePlay(ctx, tracks)
}

// PlayAlbum replaces the queue with the album's tracks, in album order.
func (s *Service) PlayAlbum(ctx context.Context, albumID string) error {
	if albumID == "" {
		return errors.New("album id is required")
	}

	tracks, err := s.catalog.AlbumTracks(ctx, albumID)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch tracks for album %q", albumID)
	}
	if len(tracks) == 0 {
		return errors.Wrapf(ErrEmptyCatalog, "album %q", albumID)
	}

	zlog.Info().Msgf("playing album: album=%s count=%d", albumID, len(tracks))
	return s.player.PlayTracks(ctx, tracks)
}

// InvalidateCache drops the cached library so the next shuffle refetches.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
}

func (s *Service) cachedTracks() []track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache
}

func (s *Service) cachedGenre(genre string) []track.Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tracks []track.Track
	for _, t := range s.cache {
		for _, g := range t.Genres {
			if strings.EqualFold(g, genre) {
				tracks = append(tracks, t)
				break
			}
		}
	}
	return tracks
}

func (s *Service) setCache(tracks []track.Track) {
	s.mu.Lock()
	s.cache = tracks
	s.mu.Unlock()
}

// fetchAll pages through the saved library.
func (s *Service) fetchAll(ctx context.Context) ([]track.Track, error) {
	var all []track.Track
	for offset := 0; offset < maxFetch; offset += pageSize {
		page, err := s.catalog.SavedTracks(ctx, pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			break
		}
	}
	return all, nil
}
