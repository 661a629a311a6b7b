// Package spotify provides the media catalog and playback transport over the
// Spotify Web API.
package spotify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/melodeck/melodeck/internal/domain/track"
)

// Client wraps the Spotify Web API for catalog lookups and Connect playback.
type Client struct {
	client *spotify.Client
	market string
	device string

	mu       sync.Mutex
	deviceID *spotify.ID
	loadedID string
	playing  bool
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
	Device       string // Preferred Connect device name (optional)
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserModifyPlaybackState,
			spotifyauth.ScopeUserLibraryRead,
			spotifyauth.ScopeUserLibraryModify,
		),
	)

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	httpClient := auth.Client(ctx, token)
	client := spotify.New(httpClient)

	market := cfg.Market
	if market == "" {
		market = "US"
	}

	return &Client{
		client: client,
		market: market,
		device: cfg.Device,
	}, nil
}

// FetchTrack retrieves track information by ID, URL, or URI.
func (c *Client) FetchTrack(ctx context.Context, trackID string) (*track.Track, error) {
	id := extractTrackID(trackID)

	t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get track")
	}
	return convertTrack(t), nil
}

// FetchTracks searches the catalog. The filter accepts free text plus the
// Spotify query operators (genre:, artist:, year:).
func (c *Client) FetchTracks(ctx context.Context, filter string, limit, offset int) ([]track.Track, error) {
	if filter == "" {
		return nil, errors.New("search filter is required")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	result, err := c.client.Search(ctx, filter, spotify.SearchTypeTrack,
		spotify.Limit(limit), spotify.Offset(offset), spotify.Market(c.market))
	if err != nil {
		return nil, errors.Wrap(err, "failed to search tracks")
	}
	if result.Tracks == nil {
		return []track.Track{}, nil
	}

	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, *convertTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// SavedTracks returns one page of the user's saved library.
func (c *Client) SavedTracks(ctx context.Context, limit, offset int) ([]track.Track, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 50 {
		limit = 50
	}

	page, err := c.client.CurrentUsersTracks(ctx,
		spotify.Limit(limit), spotify.Offset(offset), spotify.Market(c.market))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get saved tracks")
	}

	tracks := make([]track.Track, 0, len(page.Tracks))
	for i := range page.Tracks {
		tracks = append(tracks, *convertTrack(&page.Tracks[i].FullTrack))
	}
	return tracks, nil
}

// FetchGenreTracks searches tracks by genre.
func (c *Client) FetchGenreTracks(ctx context.Context, genre string, limit, offset int) ([]track.Track, error) {
	if genre == "" {
		return nil, errors.New("genre is required")
	}
	tracks, err := c.FetchTracks(ctx, fmt.Sprintf("genre:%q", genre), limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range tracks {
		tracks[i].Genres = []string{genre}
	}
	return tracks, nil
}

// AlbumTracks retrieves all tracks of an album, in album order.
func (c *Client) AlbumTracks(ctx context.Context, albumID string) ([]track.Track, error) {
	album, err := c.client.GetAlbum(ctx, spotify.ID(albumID), spotify.Market(c.market))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get album")
	}

	artURL := ""
	if len(album.Images) > 0 {
		artURL = album.Images[0].URL
	}

	tracks := make([]track.Track, 0, len(album.Tracks.Tracks))
	for _, st := range album.Tracks.Tracks {
		t := convertSimpleTrack(&st)
		t.Album = album.Name
		t.AlbumArtURL = artURL
		tracks = append(tracks, *t)
	}
	return tracks, nil
}

// ArtistTopTracks retrieves an artist's top tracks for the client market.
func (c *Client) ArtistTopTracks(ctx context.Context, artistID string) ([]track.Track, error) {
	full, err := c.client.GetArtistsTopTracks(ctx, spotify.ID(artistID), c.market)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get artist top tracks")
	}

	tracks := make([]track.Track, 0, len(full))
	for i := range full {
		tracks = append(tracks, *convertTrack(&full[i]))
	}
	return tracks, nil
}

// SearchOne resolves a track by name and artist, used when mapping
// recommendation candidates back onto the catalog.
func (c *Client) SearchOne(ctx context.Context, name, artist string) (*track.Track, error) {
	query := fmt.Sprintf("track:%q artist:%q", name, artist)
	tracks, err := c.FetchTracks(ctx, query, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, errors.Newf("track not found: %s - %s", artist, name)
	}
	t := tracks[0]
	return &t, nil
}

// Load attaches the track as the transport source. The actual source switch
// happens on Start; Load only records the target.
func (c *Client) Load(_ context.Context, t track.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadedID = t.ID
	c.playing = false
	return nil
}

// Start begins playback of the loaded source on the Connect device, or
// resumes it when the device already has it attached.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	id := c.loadedID
	resume := c.playing
	c.mu.Unlock()

	if id == "" {
		return errors.New("no source loaded")
	}

	opts := &spotify.PlayOptions{}
	if dev, err := c.resolveDevice(ctx); err == nil && dev != nil {
		opts.DeviceID = dev
	}
	if !resume {
		uri := spotify.URI("spotify:track:" + id)
		opts.URIs = []spotify.URI{uri}
	}

	if err := c.client.PlayOpt(ctx, opts); err != nil {
		return errors.Wrap(err, "failed to start playback")
	}

	c.mu.Lock()
	c.playing = true
	c.mu.Unlock()
	return nil
}

// Stop pauses playback, keeping the source attached so Start resumes.
func (c *Client) Stop(ctx context.Context) error {
	if err := c.client.Pause(ctx); err != nil {
		return errors.Wrap(err, "failed to pause playback")
	}
	return nil
}

// Seek moves the playback position of the loaded source.
func (c *Client) Seek(ctx context.Context, position time.Duration) error {
	if err := c.client.Seek(ctx, int(position/time.Millisecond)); err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	return nil
}

// SetVolume sets the Connect device volume (0-100).
func (c *Client) SetVolume(ctx context.Context, volume int) error {
	if err := c.client.Volume(ctx, volume); err != nil {
		return errors.Wrap(err, "failed to set volume")
	}
	return nil
}

// LoadedTrackID returns the id of the attached source ("" if none).
func (c *Client) LoadedTrackID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadedID
}

// ReportPlayed acknowledges a completed listen. Spotify Connect playback is
// scrobbled server-side, so this saves the track into the listening history
// marker library instead.
func (c *Client) ReportPlayed(ctx context.Context, trackID string) error {
	if err := c.client.AddTracksToLibrary(ctx, spotify.ID(trackID)); err != nil {
		return errors.Wrap(err, "failed to report played track")
	}
	return nil
}

// resolveDevice finds the preferred Connect device by name. The lookup
// result is cached for the client lifetime.
func (c *Client) resolveDevice(ctx context.Context) (*spotify.ID, error) {
	c.mu.Lock()
	if c.deviceID != nil || c.device == "" {
		dev := c.deviceID
		c.mu.Unlock()
		return dev, nil
	}
	c.mu.Unlock()

	devices, err := c.client.PlayerDevices(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list devices")
	}

	for _, d := range devices {
		if strings.EqualFold(d.Name, c.device) {
			id := d.ID
			c.mu.Lock()
			c.deviceID = &id
			c.mu.Unlock()
			return &id, nil
		}
	}

	zlog.Warn().Msgf("spotify: preferred device not found, using active device: device=%s", c.device)
	return nil, nil
}

// convertTrack converts a Spotify full track to the domain entity.
func convertTrack(t *spotify.FullTrack) *track.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	artURL := ""
	if len(t.Album.Images) > 0 {
		artURL = t.Album.Images[0].URL
	}

	return &track.Track{
		ID:          string(t.ID),
		Name:        t.Name,
		Artists:     artists,
		Album:       t.Album.Name,
		AlbumArtURL: artURL,
		Duration:    time.Duration(t.Duration) * time.Millisecond,
		URL:         t.ExternalURLs["spotify"],
		Explicit:    t.Explicit,
	}
}

// convertSimpleTrack converts a Spotify simple track (album listing) to the
// domain entity. The caller fills in album fields.
func convertSimpleTrack(t *spotify.SimpleTrack) *track.Track {
	artists := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, a.Name)
	}

	return &track.Track{
		ID:       string(t.ID),
		Name:     t.Name,
		Artists:  artists,
		Duration: time.Duration(t.Duration) * time.Millisecond,
		URL:      t.ExternalURLs["spotify"],
		Explicit: t.Explicit,
	}
}

// extractTrackID accepts a bare ID, spotify:track: URI, or open.spotify.com
// URL and returns the bare ID.
func extractTrackID(input string) string {
	input = strings.TrimSpace(input)

	if strings.HasPrefix(input, "spotify:track:") {
		return strings.TrimPrefix(input, "spotify:track:")
	}

	if idx := strings.Index(input, "open.spotify.com/track/"); idx != -1 {
		id := input[idx+len("open.spotify.com/track/"):]
		if q := strings.IndexAny(id, "?#"); q != -1 {
			id = id[:q]
		}
		return id
	}

	return input
}
