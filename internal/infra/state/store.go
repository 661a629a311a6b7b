// Package state provides snapshot persistence for the player engine.
package state

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/melodeck/melodeck/internal/domain/track"
)

// Snapshot holds the fields that survive a reload. Ephemeral playback state
// (isPlaying, position, duration, transport handle, report timers) is
// excluded and resets to defaults on load.
type Snapshot struct {
	SessionID     string        `yaml:"session_id"`
	UserTracks    []track.Track `yaml:"user_tracks"`
	StandardOrder []string      `yaml:"standard_order"`
	ShuffleOrder  []string      `yaml:"shuffle_order"`
	CurrentIndex  int           `yaml:"current_index"`
	PreviousIndex int           `yaml:"previous_index"`
	Volume        int           `yaml:"volume"`
	Shuffled      bool          `yaml:"shuffled"`
	Repeat        string        `yaml:"repeat"`
	SavedAt       time.Time     `yaml:"saved_at"`
}

// Store reads and writes snapshots at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save writes the snapshot atomically (temp file + rename).
func (s *Store) Save(snap Snapshot) error {
	data, err := yaml.Marshal(&snap)
	if err != nil {
		return errors.Wrap(err, "failed to marshal snapshot")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create state directory")
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp snapshot")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to write snapshot")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to close snapshot")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to replace snapshot")
	}

	zlog.Debug().Msgf("state: snapshot saved: path=%s tracks=%d", s.path, len(snap.UserTracks))
	return nil
}

// Load reads the last snapshot. A missing file yields an empty snapshot and
// ok=false, not an error.
func (s *Store) Load() (Snapshot, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{CurrentIndex: -1, PreviousIndex: -1}, false, nil
		}
		return Snapshot{}, false, errors.Wrap(err, "failed to read snapshot")
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, errors.Wrap(err, "failed to parse snapshot")
	}
	return snap, true, nil
}
