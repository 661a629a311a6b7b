// Package reporter provides debounced, at-most-once play-event reporting.
package reporter

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/melodeck/melodeck/internal/app/notify"
	"github.com/melodeck/melodeck/internal/domain/track"
)

// PlayedReporter is the external collaborator acknowledging a completed listen.
type PlayedReporter interface {
	ReportPlayed(ctx context.Context, trackID string) error
}

// Config holds reporter timing.
type Config struct {
	ReportDelay       time.Duration // Listen time before a track counts as played
	PlayedNotifyDelay time.Duration // Extra delay before the local played notification
}

// DefaultConfig returns the standard reporter timing.
func DefaultConfig() Config {
	return Config{
		ReportDelay:       5 * time.Second,
		PlayedNotifyDelay: 4 * time.Second,
	}
}

// Reporter owns the reported-id set and the pending per-track timers for one
// session. It is constructed alongside the player controller and cleared on
// session reset.
type Reporter struct {
	mu sync.Mutex

	cfg      Config
	external PlayedReporter
	notifier *notify.Manager

	// currentID resolves the live current track id at timer fire.
	currentID func() string

	reported map[string]bool
	pending  map[string]*time.Timer
	armedID  string // Most recently armed track
}

// New creates a reporter for a fresh session.
func New(cfg Config, external PlayedReporter, notifier *notify.Manager, currentID func() string) *Reporter {
	if cfg.ReportDelay <= 0 {
		cfg.ReportDelay = DefaultConfig().ReportDelay
	}
	if cfg.PlayedNotifyDelay <= 0 {
		cfg.PlayedNotifyDelay = DefaultConfig().PlayedNotifyDelay
	}
	return &Reporter{
		cfg:       cfg,
		external:  external,
		notifier:  notifier,
		currentID: currentID,
		reported:  make(map[string]bool),
		pending:   make(map[string]*time.Timer),
	}
}

// Arm schedules a play report for a track that just started successfully.
// An unfired timer for the previously armed track is cancelled: an
// interrupted listen is never reported. Arming an already-reported track is
// a no-op.
func (r *Reporter) Arm(t track.Track) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.armedID != "" && r.armedID != t.ID {
		r.cancelLocked(r.armedID)
	}
	r.armedID = t.ID

	if r.reported[t.ID] {
		return
	}
	if _, ok := r.pending[t.ID]; ok {
		// Timer already running for this track (e.g. pause then resume).
		return
	}

	r.pending[t.ID] = time.AfterFunc(r.cfg.ReportDelay, func() {
		r.fire(t)
	})
}

// Cancel drops the pending timer for a track. Called on explicit skip/stop;
// pausing does not cancel.
func (r *Reporter) Cancel(trackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked(trackID)
}

// Reset cancels all pending timers and clears the reported set. Used on
// session reset.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, timer := range r.pending {
		timer.Stop()
		delete(r.pending, id)
	}
	r.reported = make(map[string]bool)
	r.armedID = ""
}

// WasReported reports whether the track was already counted this session.
func (r *Reporter) WasReported(trackID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reported[trackID]
}

// ReportedIDs returns the reported set as a lookup map.
func (r *Reporter) ReportedIDs() map[string]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]bool, len(r.reported))
	for id := range r.reported {
		out[id] = true
	}
	return out
}

func (r *Reporter) cancelLocked(trackID string) {
	if timer, ok := r.pending[trackID]; ok {
		timer.Stop()
		delete(r.pending, trackID)
	}
}

// fire runs when the report delay elapses. The track only counts if it is
// still the live current track and has not been reported this session.
// currentID is resolved before taking the reporter lock: it locks the
// controller, which itself calls Cancel under its own lock.
func (r *Reporter) fire(t track.Track) {
	live := ""
	if r.currentID != nil {
		live = r.currentID()
	}

	r.mu.Lock()
	delete(r.pending, t.ID)

	if r.currentID != nil && live != t.ID {
		r.mu.Unlock()
		return
	}
	if r.reported[t.ID] {
		r.mu.Unlock()
		return
	}
	// At-most-once: mark before calling so a failure is never retried.
	r.reported[t.ID] = true
	r.mu.Unlock()

	if err := r.external.ReportPlayed(context.Background(), t.ID); err != nil {
		zlog.Warn().Msgf("reporter: play report failed: track=%s error=%v", t.ID, err)
		return
	}

	zlog.Debug().Msgf("reporter: play reported: track=%s", t.ID)

	if r.notifier == nil {
		return
	}
	// Let server-side state settle before dependent views refresh.
	played := t
	time.AfterFunc(r.cfg.PlayedNotifyDelay, func() {
		r.notifier.Broadcast(notify.Notification{
			Type:  notify.TypeTrackPlayed,
			Track: &played,
		})
	})
}
