package player

import (
	"context"
	"time"

	"github.com/melodeck/melodeck/internal/domain/track"
)

// Transport is the audio transport collaborator. Implementations attach a
// source and drive it; no audio decoding happens inside the engine.
type Transport interface {
	// Load attaches the track as the transport source.
	Load(ctx context.Context, t track.Track) error
	// Start begins (or resumes) playback of the loaded source.
	Start(ctx context.Context) error
	// Stop halts playback, keeping the source attached.
	Stop(ctx context.Context) error
	// Seek moves the playback position of the loaded source.
	Seek(ctx context.Context, position time.Duration) error
	// SetVolume sets the output volume (0-100).
	SetVolume(ctx context.Context, volume int) error
	// LoadedTrackID returns the id of the attached source ("" if none).
	LoadedTrackID() string
}
