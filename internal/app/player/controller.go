package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/melodeck/melodeck/internal/app/notify"
	"github.com/melodeck/melodeck/internal/app/queue"
	"github.com/melodeck/melodeck/internal/app/reporter"
	"github.com/melodeck/melodeck/internal/domain/track"
	"github.com/melodeck/melodeck/internal/infra/state"
)

// Errors
var (
	ErrNoTrack    = errors.New("no current track")
	ErrQueueEmpty = errors.New("queue is empty")
)

// Config holds controller configuration.
type Config struct {
	Queue    queue.Config
	Reporter reporter.Config
	Volume   int        // Initial volume (0-100)
	Repeat   RepeatMode // Initial repeat mode
}

// Controller drives the transport over the queue model. All queue and
// playback mutations are serialized behind a single mutex; asynchronous
// transport completions re-validate the current track id before applying
// any effect.
type Controller struct {
	mu sync.Mutex

	q         *queue.Manager
	transport Transport
	rep       *reporter.Reporter
	notifier  *notify.Manager

	playing State
	repeat  RepeatMode
	volume  int

	sessionID string
}

// NewController creates a controller with a fresh queue and reporter.
func NewController(cfg Config, transport Transport, played reporter.PlayedReporter, notifier *notify.Manager) *Controller {
	if cfg.Repeat == "" {
		cfg.Repeat = RepeatOff
	}
	c := &Controller{
		sessionID: uuid.New().String(),
		q:         queue.NewManager(cfg.Queue),
		transport: transport,
		notifier:  notifier,
		playing:   StateIdle,
		repeat:    cfg.Repeat,
		volume:    cfg.Volume,
	}
	c.rep = reporter.New(cfg.Reporter, played, notifier, c.CurrentTrackID)
	return c
}

// State returns the playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Repeat returns the repeat mode.
func (c *Controller) Repeat() RepeatMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.repeat
}

// SetRepeat sets the repeat mode.
func (c *Controller) SetRepeat(mode RepeatMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repeat = mode
}

// Volume returns the last requested volume.
func (c *Controller) Volume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// Shuffled reports whether the shuffle ordering is active.
func (c *Controller) Shuffled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Shuffled()
}

// Entries returns a copy of the visible queue.
func (c *Controller) Entries() []track.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Entries()
}

// CurrentIndex returns the current queue position (-1 if none).
func (c *Controller) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.CurrentIndex()
}

// PreviousIndex returns the one-shot back-target (-1 if none).
func (c *Controller) PreviousIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.PreviousIndex()
}

// CurrentTrack returns the current entry, or nil.
func (c *Controller) CurrentTrack() *track.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Current()
}

// CurrentTrackID returns the id of the current entry ("" if none).
func (c *Controller) CurrentTrackID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.q.Current(); e != nil {
		return e.Track.ID
	}
	return ""
}

// QueueTrackIDs returns the ids of every queued entry.
func (c *Controller) QueueTrackIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.q.Entries()
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.Track.ID
	}
	return ids
}

// RecommendationCount returns the number of feed-supplied entries.
func (c *Controller) RecommendationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.RecommendationCount()
}

// SeedTracks returns up to limit tracks around the current position, newest
// first, for use as recommendation seeds.
func (c *Controller) SeedTracks(limit int) []track.Track {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := c.q.Entries()
	seeds := make([]track.Track, 0, limit)
	for i := c.q.CurrentIndex(); i >= 0 && len(seeds) < limit; i-- {
		seeds = append(seeds, entries[i].Track)
	}
	return seeds
}

// Reporter exposes the session play-event reporter.
func (c *Controller) Reporter() *reporter.Reporter {
	return c.rep
}

// ReportedTrackIDs returns the ids reported as played this session.
func (c *Controller) ReportedTrackIDs() []string {
	reported := c.rep.ReportedIDs()
	ids := make([]string, 0, len(reported))
	for id := range reported {
		ids = append(ids, id)
	}
	return ids
}

// SessionID returns the current session identifier.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ResetSession starts a fresh session: new identifier, reported set and
// pending report timers cleared. The queue is left alone.
func (c *Controller) ResetSession() {
	c.mu.Lock()
	c.sessionID = uuid.New().String()
	c.mu.Unlock()
	c.rep.Reset()
}

// PlayTracks wholesale replaces the queue and starts the first track.
func (c *Controller) PlayTracks(ctx context.Context, tracks []track.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.q.Replace(tracks)
	c.queueChangedLocked()
	if c.q.Len() == 0 {
		c.playing = StateIdle
		return ErrQueueEmpty
	}
	c.startCurrentLocked(ctx)
	return nil
}

// ShufflePlay replaces the queue, draws a fresh shuffle permutation, and
// starts the first track of the shuffled queue.
func (c *Controller) ShufflePlay(ctx context.Context, tracks []track.Track) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.q.Replace(tracks)
	c.q.Shuffle()
	c.q.SetCurrentIndex(0)
	c.q.SetPreviousIndex(-1)
	c.queueChangedLocked()
	if c.q.Len() == 0 {
		c.playing = StateIdle
		return ErrQueueEmpty
	}
	c.startCurrentLocked(ctx)
	return nil
}

// AddToQueue inserts tracks without disturbing playback.
func (c *Controller) AddToQueue(tracks []track.Track, mode queue.AppendMode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.q.Append(tracks, mode)
	c.queueChangedLocked()
}

// PlayNext inserts tracks immediately after the current position.
func (c *Controller) PlayNext(tracks []track.Track) {
	c.AddToQueue(tracks, queue.AppendAfterCurrent)
}

// SupplyRecommendations appends feed-supplied tracks at the queue tail.
func (c *Controller) SupplyRecommendations(tracks []track.Track) {
	if len(tracks) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.q.SupplyRecommendations(tracks)
	c.queueChangedLocked()
}

// RemoveFromQueue removes the entry at index. Out-of-range is a no-op.
func (c *Controller) RemoveFromQueue(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.q.Remove(index) {
		c.queueChangedLocked()
	}
}

// ReorderQueue moves an entry. Moves crossing the user/recommendation
// boundary are silently rejected.
func (c *Controller) ReorderQueue(from, to int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok := c.q.Reorder(from, to)
	if ok {
		c.queueChangedLocked()
	}
	return ok
}

// ClearQueue empties the queue and stops the transport.
func (c *Controller) ClearQueue(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id := c.currentIDLocked(); id != "" {
		c.rep.Cancel(id)
	}
	c.q.Clear()
	c.playing = StateIdle
	c.queueChangedLocked()

	go func() {
		if err := c.transport.Stop(ctx); err != nil {
			zlog.Warn().Msgf("player: transport stop failed: %v", err)
		}
	}()
}

// ToggleShuffle flips the active ordering. The playing track keeps its
// identity; playback is never interrupted.
func (c *Controller) ToggleShuffle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	shuffled := c.q.ToggleShuffle()
	c.queueChangedLocked()
	return shuffled
}

// Play starts or resumes the current track.
func (c *Controller) Play(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.q.Current() == nil {
		return ErrNoTrack
	}
	if c.playing == StatePlaying {
		return nil
	}
	c.startCurrentLocked(ctx)
	return nil
}

// Pause pauses playback. An already-armed report timer keeps running: only
// starting a different track, or an explicit skip/stop, cancels it.
func (c *Controller) Pause(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playing != StatePlaying {
		return nil
	}
	c.playing = StatePaused
	c.stateChangedLocked()

	go func() {
		if err := c.transport.Stop(ctx); err != nil {
			zlog.Warn().Msgf("player: transport pause failed: %v", err)
		}
	}()
	return nil
}

// Seek moves the playback position of the current track.
func (c *Controller) Seek(ctx context.Context, position time.Duration) error {
	c.mu.Lock()
	if c.q.Current() == nil {
		c.mu.Unlock()
		return ErrNoTrack
	}
	c.mu.Unlock()

	if err := c.transport.Seek(ctx, position); err != nil {
		return errors.Wrap(err, "seek failed")
	}
	return nil
}

// SetVolume clamps and applies the output volume.
func (c *Controller) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}

	c.mu.Lock()
	c.volume = volume
	c.mu.Unlock()

	if err := c.transport.SetVolume(ctx, volume); err != nil {
		return errors.Wrap(err, "set volume failed")
	}
	return nil
}

// Next advances to the following track. At the end of a non-repeating
// queue this is a no-op; with repeat all it wraps to the head.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextLocked(ctx)
}

func (c *Controller) nextLocked(ctx context.Context) error {
	i := c.q.CurrentIndex() + 1
	if i >= c.q.Len() {
		if c.repeat != RepeatAll || c.q.Len() == 0 {
			return nil
		}
		i = 0
	}

	if id := c.currentIDLocked(); id != "" {
		c.rep.Cancel(id)
	}
	c.q.SetPreviousIndex(c.q.CurrentIndex())
	c.q.SetCurrentIndex(i)
	c.startCurrentLocked(ctx)
	return nil
}

// Previous steps back. A recorded back-target is a one-shot undo, not a
// history stack; without one the index simply decrements, wrapping only
// with repeat all.
func (c *Controller) Previous(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var target int
	switch {
	case c.q.PreviousIndex() != -1:
		target = c.q.PreviousIndex()
		c.q.SetPreviousIndex(-1)
	case c.q.CurrentIndex() > 0:
		target = c.q.CurrentIndex() - 1
	case c.repeat == RepeatAll && c.q.Len() > 0:
		target = c.q.Len() - 1
	default:
		return nil
	}

	if id := c.currentIDLocked(); id != "" {
		c.rep.Cancel(id)
	}
	c.q.SetCurrentIndex(target)
	c.startCurrentLocked(ctx)
	return nil
}

// SkipTo jumps to the track at index. Out-of-range is a no-op.
func (c *Controller) SkipTo(ctx context.Context, index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= c.q.Len() {
		return nil
	}
	if id := c.currentIDLocked(); id != "" {
		c.rep.Cancel(id)
	}
	c.q.SetPreviousIndex(c.q.CurrentIndex())
	c.q.SetCurrentIndex(index)
	c.startCurrentLocked(ctx)
	return nil
}

// OnTrackEnded handles natural end-of-track: repeat one restarts the same
// index, otherwise the queue advances. With nothing to advance to, the
// transport has already stopped, so the controller parks in Paused with the
// index unchanged.
func (c *Controller) OnTrackEnded(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e := c.q.Current(); e != nil {
		t := e.Track
		c.notifyLocked(notify.Notification{Type: notify.TypeTrackEnded, Track: &t})
	}

	if c.repeat == RepeatOne {
		c.startCurrentLocked(ctx)
		return
	}

	before := c.q.CurrentIndex()
	_ = c.nextLocked(ctx)
	if c.q.CurrentIndex() == before {
		c.playing = StatePaused
		c.stateChangedLocked()
	}
}

// Snapshot captures the persistent engine state. Ephemeral transport state
// is excluded.
func (c *Controller) Snapshot() state.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return state.Snapshot{
		SessionID:     c.sessionID,
		UserTracks:    c.q.UserTracks(),
		StandardOrder: c.q.StandardOrder(),
		ShuffleOrder:  c.q.ShuffleOrder(),
		CurrentIndex:  c.q.CurrentIndex(),
		PreviousIndex: c.q.PreviousIndex(),
		Volume:        c.volume,
		Shuffled:      c.q.Shuffled(),
		Repeat:        string(c.repeat),
		SavedAt:       time.Now(),
	}
}

// Restore rebuilds the engine from a persisted snapshot. Playback comes
// back stopped at time zero.
func (c *Controller) Restore(snap state.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.SessionID != "" {
		c.sessionID = snap.SessionID
	}
	c.q.Restore(snap.UserTracks, snap.StandardOrder, snap.ShuffleOrder,
		snap.CurrentIndex, snap.PreviousIndex, snap.Shuffled)
	c.volume = snap.Volume
	c.repeat = ParseRepeatMode(snap.Repeat)
	c.playing = StateIdle
	if c.q.Current() != nil {
		c.playing = StatePaused
	}
	c.queueChangedLocked()
}

// RefreshCurrentTrack swaps in fresh metadata for the current track without
// disturbing the queue position. The replacement must carry the same id.
func (c *Controller) RefreshCurrentTrack(t track.Track) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.UpdateTrack(c.q.CurrentIndex(), t)
}

// startCurrentLocked kicks off asynchronous transport start for the current
// entry. Completion re-validates the current track id before mutating any
// state, so settlements racing newer user actions are discarded.
func (c *Controller) startCurrentLocked(ctx context.Context) {
	e := c.q.Current()
	if e == nil {
		c.playing = StateIdle
		return
	}
	target := e.Track

	go func() {
		err := c.startTransport(ctx, target)

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.currentIDLocked() != target.ID {
			// The listener has since moved on; discard the result.
			zlog.Debug().Msgf("player: discarding stale transport result: track=%s", target.ID)
			return
		}

		if err != nil {
			c.playing = StatePaused
			zlog.Error().Msgf("player: transport start failed: track=%s error=%v", target.ID, err)
			c.notifyLocked(notify.Notification{
				Type:    notify.TypePlaybackError,
				Track:   &target,
				Message: err.Error(),
			})
			return
		}

		c.playing = StatePlaying
		c.rep.Arm(target)
		c.notifyLocked(notify.Notification{Type: notify.TypeTrackStarted, Track: &target})
	}()
}

// startTransport attaches the source if needed and starts it.
func (c *Controller) startTransport(ctx context.Context, target track.Track) error {
	if c.transport.LoadedTrackID() != target.ID {
		if err := c.transport.Load(ctx, target); err != nil {
			return errors.Wrap(err, "load failed")
		}
	}
	if err := c.transport.Start(ctx); err != nil {
		return errors.Wrap(err, "start failed")
	}
	return nil
}

func (c *Controller) currentIDLocked() string {
	if e := c.q.Current(); e != nil {
		return e.Track.ID
	}
	return ""
}

func (c *Controller) queueChangedLocked() {
	c.notifyLocked(notify.Notification{Type: notify.TypeQueueChanged})
}

func (c *Controller) stateChangedLocked() {
	c.notifyLocked(notify.Notification{Type: notify.TypeStateChanged})
}

func (c *Controller) notifyLocked(n notify.Notification) {
	if c.notifier == nil {
		return
	}
	// Broadcast without holding the controller lock.
	go c.notifier.Broadcast(n)
}
