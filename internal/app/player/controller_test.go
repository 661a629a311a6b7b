package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melodeck/melodeck/internal/app/queue"
	"github.com/melodeck/melodeck/internal/app/reporter"
	"github.com/melodeck/melodeck/internal/domain/track"
)

// fakeTransport records transport calls. Start can be made to fail or to
// block until released, to exercise asynchronous settlement.
type fakeTransport struct {
	mu       sync.Mutex
	loadedID string
	started  []string
	stops    int
	seeks    []time.Duration
	volumes  []int

	startErr error
	gate     chan struct{} // When non-nil, Start blocks until the gate closes
}

func (f *fakeTransport) Load(_ context.Context, t track.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadedID = t.ID
	return nil
}

func (f *fakeTransport) Start(_ context.Context) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, f.loadedID)
	return nil
}

func (f *fakeTransport) Stop(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeTransport) Seek(_ context.Context, position time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeks = append(f.seeks, position)
	return nil
}

func (f *fakeTransport) SetVolume(_ context.Context, volume int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volumes = append(f.volumes, volume)
	return nil
}

func (f *fakeTransport) LoadedTrackID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadedID
}

func (f *fakeTransport) startedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.started))
	copy(out, f.started)
	return out
}

type fakePlayedReporter struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakePlayedReporter) ReportPlayed(_ context.Context, trackID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, trackID)
	return nil
}

func (f *fakePlayedReporter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func makeTracks(ids ...string) []track.Track {
	tracks := make([]track.Track, len(ids))
	for i, id := range ids {
		tracks[i] = track.Track{ID: id, Name: "track " + id, Duration: 3 * time.Minute}
	}
	return tracks
}

func newTestController(transport *fakeTransport, played *fakePlayedReporter) *Controller {
	cfg := Config{
		Queue:    queue.DefaultConfig(),
		Reporter: reporter.Config{ReportDelay: 40 * time.Millisecond, PlayedNotifyDelay: 10 * time.Millisecond},
		Volume:   50,
	}
	return NewController(cfg, transport, played, nil)
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == want
	}, time.Second, 5*time.Millisecond)
}

func TestController_PlayTracks(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestController(transport, &fakePlayedReporter{})

	require.NoError(t, c.PlayTracks(context.Background(), makeTracks("a", "b", "c")))

	assert.Equal(t, 0, c.CurrentIndex())
	assert.Equal(t, -1, c.PreviousIndex())
	waitForState(t, c, StatePlaying)
	assert.Equal(t, []string{"a"}, transport.startedIDs())
}

func TestController_PlayTracks_Empty(t *testing.T) {
	c := newTestController(&fakeTransport{}, &fakePlayedReporter{})

	err := c.PlayTracks(context.Background(), nil)

	assert.ErrorIs(t, err, ErrQueueEmpty)
	assert.Equal(t, StateIdle, c.State())
}

func TestController_NextPreviousOneShotUndo(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestController(transport, &fakePlayedReporter{})
	ctx := context.Background()
	require.NoError(t, c.PlayTracks(ctx, makeTracks("a", "b", "c")))

	require.NoError(t, c.Next(ctx))
	require.NoError(t, c.Next(ctx))
	assert.Equal(t, 2, c.CurrentIndex())
	assert.Equal(t, 1, c.PreviousIndex())

	// One-shot undo: jump to the recorded back-target and clear it.
	require.NoError(t, c.Previous(ctx))
	assert.Equal(t, 1, c.CurrentIndex())
	assert.Equal(t, -1, c.PreviousIndex())

	// No back-target recorded: plain decrement.
	require.NoError(t, c.Previous(ctx))
	assert.Equal(t, 0, c.CurrentIndex())
	assert.Equal(t, -1, c.PreviousIndex())
}

func TestController_NextAtEnd(t *testing.T) {
	tests := []struct {
		name        string
		repeat      RepeatMode
		wantCurrent int
	}{
		{name: "repeat off is a no-op", repeat: RepeatOff, wantCurrent: 2},
		{name: "repeat all wraps to head", repeat: RepeatAll, wantCurrent: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{}
			c := newTestController(transport, &fakePlayedReporter{})
			ctx := context.Background()
			require.NoError(t, c.PlayTracks(ctx, makeTracks("a", "b", "c")))
			require.NoError(t, c.SkipTo(ctx, 2))
			c.SetRepeat(tt.repeat)
			prevBefore := c.PreviousIndex()

			require.NoError(t, c.Next(ctx))

			assert.Equal(t, tt.wantCurrent, c.CurrentIndex())
			if tt.repeat == RepeatOff {
				assert.Equal(t, prevBefore, c.PreviousIndex(), "no-op leaves all state untouched")
			} else {
				require.Eventually(t, func() bool {
					ids := transport.startedIDs()
					return len(ids) > 0 && ids[len(ids)-1] == "a"
				}, time.Second, 5*time.Millisecond, "wrap must start playback of the head")
			}
		})
	}
}

func TestController_PreviousWrapsOnlyWithRepeatAll(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestController(transport, &fakePlayedReporter{})
	ctx := context.Background()
	require.NoError(t, c.PlayTracks(ctx, makeTracks("a", "b", "c")))

	require.NoError(t, c.Previous(ctx))
	assert.Equal(t, 0, c.CurrentIndex(), "repeat off: previous at head is a no-op")

	c.SetRepeat(RepeatAll)
	require.NoError(t, c.Previous(ctx))
	assert.Equal(t, 2, c.CurrentIndex())
}

func TestController_SkipTo(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestController(transport, &fakePlayedReporter{})
	ctx := context.Background()
	require.NoError(t, c.PlayTracks(ctx, makeTracks("a", "b", "c")))

	require.NoError(t, c.SkipTo(ctx, 2))
	assert.Equal(t, 2, c.CurrentIndex())
	assert.Equal(t, 0, c.PreviousIndex())

	// Out-of-range indices are a local no-op, never an error.
	require.NoError(t, c.SkipTo(ctx, 17))
	assert.Equal(t, 2, c.CurrentIndex())
}

func TestController_TransportFailureLeavesQueueIntact(t *testing.T) {
	transport := &fakeTransport{startErr: errors.New("device unavailable")}
	c := newTestController(transport, &fakePlayedReporter{})

	require.NoError(t, c.PlayTracks(context.Background(), makeTracks("a", "b")))

	waitForState(t, c, StatePaused)
	assert.Equal(t, 0, c.CurrentIndex())
	assert.Len(t, c.Entries(), 2)

	// The controller stays responsive after the failure.
	require.NoError(t, c.Next(context.Background()))
	assert.Equal(t, 1, c.CurrentIndex())
}

func TestController_StaleTransportResultDiscarded(t *testing.T) {
	gate := make(chan struct{})
	transport := &fakeTransport{gate: gate}
	c := newTestController(transport, &fakePlayedReporter{})
	ctx := context.Background()

	require.NoError(t, c.PlayTracks(ctx, makeTracks("a", "b", "c")))

	// The start for "a" is still in flight when the listener skips away.
	transport.mu.Lock()
	transport.gate = nil
	transport.mu.Unlock()
	require.NoError(t, c.SkipTo(ctx, 2))
	close(gate)

	waitForState(t, c, StatePlaying)
	assert.Equal(t, 2, c.CurrentIndex())
	// The settlement for "a" resolved after the switch and must not have
	// re-armed a report for it.
	time.Sleep(100 * time.Millisecond)
	assert.False(t, c.Reporter().WasReported("a"))
}

func TestController_SkipBeforeReportDelaySuppressesReport(t *testing.T) {
	transport := &fakeTransport{}
	played := &fakePlayedReporter{}
	c := newTestController(transport, played)
	ctx := context.Background()

	require.NoError(t, c.PlayTracks(ctx, makeTracks("x", "y")))
	waitForState(t, c, StatePlaying)

	require.NoError(t, c.SkipTo(ctx, 1))

	require.Eventually(t, func() bool {
		calls := played.Calls()
		return len(calls) == 1 && calls[0] == "y"
	}, time.Second, 5*time.Millisecond)
	assert.NotContains(t, played.Calls(), "x", "interrupted listen must never be reported")
}

func TestController_ReportedTrackIDs(t *testing.T) {
	transport := &fakeTransport{}
	played := &fakePlayedReporter{}
	c := newTestController(transport, played)
	ctx := context.Background()

	assert.Empty(t, c.ReportedTrackIDs())

	require.NoError(t, c.PlayTracks(ctx, makeTracks("x")))
	waitForState(t, c, StatePlaying)

	require.Eventually(t, func() bool {
		ids := c.ReportedTrackIDs()
		return len(ids) == 1 && ids[0] == "x"
	}, time.Second, 5*time.Millisecond)
}

func TestController_PauseKeepsReportTimerRunning(t *testing.T) {
	transport := &fakeTransport{}
	played := &fakePlayedReporter{}
	c := newTestController(transport, played)
	ctx := context.Background()

	require.NoError(t, c.PlayTracks(ctx, makeTracks("x")))
	waitForState(t, c, StatePlaying)

	require.NoError(t, c.Pause(ctx))
	assert.Equal(t, StatePaused, c.State())

	// Pausing does not cancel an armed report; the track is still current
	// when the timer fires.
	require.Eventually(t, func() bool {
		return len(played.Calls()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestController_OnTrackEnded(t *testing.T) {
	t.Run("repeat one restarts the same index", func(t *testing.T) {
		transport := &fakeTransport{}
		c := newTestController(transport, &fakePlayedReporter{})
		ctx := context.Background()
		require.NoError(t, c.PlayTracks(ctx, makeTracks("a", "b")))
		c.SetRepeat(RepeatOne)
		waitForState(t, c, StatePlaying)

		c.OnTrackEnded(ctx)

		assert.Equal(t, 0, c.CurrentIndex())
		require.Eventually(t, func() bool {
			return len(transport.startedIDs()) == 2
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("advances through the queue", func(t *testing.T) {
		transport := &fakeTransport{}
		c := newTestController(transport, &fakePlayedReporter{})
		ctx := context.Background()
		require.NoError(t, c.PlayTracks(ctx, makeTracks("a", "b")))
		waitForState(t, c, StatePlaying)

		c.OnTrackEnded(ctx)

		assert.Equal(t, 1, c.CurrentIndex())
	})

	t.Run("end of non-repeating queue parks in paused", func(t *testing.T) {
		transport := &fakeTransport{}
		c := newTestController(transport, &fakePlayedReporter{})
		ctx := context.Background()
		require.NoError(t, c.PlayTracks(ctx, makeTracks("a")))
		waitForState(t, c, StatePlaying)

		c.OnTrackEnded(ctx)

		assert.Equal(t, StatePaused, c.State())
		assert.Equal(t, 0, c.CurrentIndex(), "index unchanged")
	})
}

func TestController_AddToQueueDoesNotAutostart(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestController(transport, &fakePlayedReporter{})

	c.AddToQueue(makeTracks("a", "b"), queue.AppendEnd)

	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, -1, c.CurrentIndex())
	assert.Len(t, c.Entries(), 2)
	assert.Empty(t, transport.startedIDs())
}

func TestController_ClearQueueStopsPlayback(t *testing.T) {
	transport := &fakeTransport{}
	played := &fakePlayedReporter{}
	c := newTestController(transport, played)
	ctx := context.Background()
	require.NoError(t, c.PlayTracks(ctx, makeTracks("a", "b")))
	waitForState(t, c, StatePlaying)

	c.ClearQueue(ctx)

	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.Entries())
	// Explicit stop cancels the pending report.
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, played.Calls())
}

func TestController_SetVolumeClamps(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestController(transport, &fakePlayedReporter{})
	ctx := context.Background()

	require.NoError(t, c.SetVolume(ctx, 250))
	assert.Equal(t, 100, c.Volume())
	require.NoError(t, c.SetVolume(ctx, -3))
	assert.Equal(t, 0, c.Volume())
}

func TestController_ShufflePlay(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestController(transport, &fakePlayedReporter{})

	require.NoError(t, c.ShufflePlay(context.Background(), makeTracks("a", "b", "c", "d")))

	assert.True(t, c.Shuffled())
	assert.Equal(t, 0, c.CurrentIndex())
	waitForState(t, c, StatePlaying)
	started := transport.startedIDs()
	require.Len(t, started, 1)
	assert.Equal(t, c.Entries()[0].Track.ID, started[0])
}

func TestController_SnapshotRoundTrip(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestController(transport, &fakePlayedReporter{})
	ctx := context.Background()
	require.NoError(t, c.PlayTracks(ctx, makeTracks("a", "b", "c")))
	require.NoError(t, c.Next(ctx))
	c.SetRepeat(RepeatAll)
	require.NoError(t, c.SetVolume(ctx, 30))

	snap := c.Snapshot()

	restored := newTestController(&fakeTransport{}, &fakePlayedReporter{})
	restored.Restore(snap)

	assert.Equal(t, c.QueueTrackIDs(), restored.QueueTrackIDs())
	assert.Equal(t, 1, restored.CurrentIndex())
	assert.Equal(t, 0, restored.PreviousIndex())
	assert.Equal(t, RepeatAll, restored.Repeat())
	assert.Equal(t, 30, restored.Volume())
	assert.Equal(t, StatePaused, restored.State(), "playback restored stopped")
}

func TestController_RefreshCurrentTrack(t *testing.T) {
	transport := &fakeTransport{}
	c := newTestController(transport, &fakePlayedReporter{})
	require.NoError(t, c.PlayTracks(context.Background(), makeTracks("a", "b")))

	updated := track.Track{ID: "a", Name: "Alpha (Deluxe)", Duration: 4 * time.Minute}
	assert.True(t, c.RefreshCurrentTrack(updated))
	assert.Equal(t, "Alpha (Deluxe)", c.CurrentTrack().Track.Name)
	assert.Equal(t, 0, c.CurrentIndex())

	// Mismatched id never swaps metadata.
	assert.False(t, c.RefreshCurrentTrack(track.Track{ID: "z"}))
}
