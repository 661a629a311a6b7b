package recommend

import (
	"context"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/melodeck/melodeck/internal/app/notify"
	"github.com/melodeck/melodeck/internal/domain/track"
	"github.com/melodeck/melodeck/internal/infra/config"
)

// Queue is the subset of playback operations the feed drives.
type Queue interface {
	RecommendationCount() int
	QueueTrackIDs() []string
	SeedTracks(limit int) []track.Track
	ReportedTrackIDs() []string
	SupplyRecommendations(tracks []track.Track)
}

// CandidateSource produces recommendation candidates. Satisfied by Chain.
type CandidateSource interface {
	GetCandidates(ctx context.Context, count int, seedTracks []track.Track, excludeIDs map[string]bool) ([]track.Track, error)
}

// Feed keeps the recommendation tail of the queue topped up. It watches
// queue notifications and refills asynchronously whenever the tail drops
// below the low-water mark. Provider failures leave the queue untouched.
type Feed struct {
	queue    Queue
	source   CandidateSource
	notifier *notify.Manager
	cfg      config.RecommendationsConfig

	ctx   context.Context
	subID string

	mu        sync.Mutex
	refilling bool
}

// NewFeed creates a new recommendation feed.
func NewFeed(queue Queue, source CandidateSource, notifier *notify.Manager, cfg config.RecommendationsConfig) *Feed {
	return &Feed{
		queue:    queue,
		source:   source,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Start subscribes to queue notifications and performs an initial refill
// check. ctx bounds all provider calls made by the feed.
func (f *Feed) Start(ctx context.Context) {
	if !f.cfg.Enabled {
		zlog.Info().Msg("recommendation feed disabled")
		return
	}

	f.ctx = ctx
	f.subID = f.notifier.Subscribe(notify.StreamFunc(func(n notify.Notification) error {
		switch n.Type {
		case notify.TypeQueueChanged, notify.TypeTrackStarted:
			f.kick()
		}
		return nil
	}))

	zlog.Info().Msgf("recommendation feed started: low_water=%d refill_count=%d", f.cfg.LowWater, f.cfg.RefillCount)
	f.kick()
}

// Stop unsubscribes from queue notifications.
func (f *Feed) Stop() {
	if f.subID != "" {
		f.notifier.Unsubscribe(f.subID)
		f.subID = ""
	}
}

// kick schedules an asynchronous refill unless one is already running.
func (f *Feed) kick() {
	f.mu.Lock()
	if f.refilling {
		f.mu.Unlock()
		return
	}
	f.refilling = true
	f.mu.Unlock()

	go func() {
		defer func() {
			f.mu.Lock()
			f.refilling = false
			f.mu.Unlock()
		}()
		f.Refill(f.ctx)
	}()
}

// Refill tops up the recommendation tail if it is below the low-water
// mark. Safe to call directly for an immediate synchronous refill.
func (f *Feed) Refill(ctx context.Context) {
	recCount := f.queue.RecommendationCount()
	if recCount >= f.cfg.LowWater {
		return
	}
	need := f.cfg.RefillCount - recCount

	exclude := make(map[string]bool)
	for _, id := range f.queue.QueueTrackIDs() {
		exclude[id] = true
	}
	for _, id := range f.queue.ReportedTrackIDs() {
		exclude[id] = true
	}

	seeds := f.queue.SeedTracks(f.cfg.SeedCount)

	// Over-fetch so the filters have headroom
	candidates, err := f.source.GetCandidates(ctx, need*2, seeds, exclude)
	if err != nil {
		zlog.Warn().Msgf("recommendation refill failed, queue unchanged: error=%v", err)
		return
	}

	filters := NewFilterChain(f.cfg.Filters, func(id string) bool { return exclude[id] })
	kept := filters.Apply(candidates)
	if len(kept) > need {
		kept = kept[:need]
	}
	if len(kept) == 0 {
		zlog.Debug().Msg("no recommendation candidates survived filtering")
		return
	}

	f.queue.SupplyRecommendations(kept)
	zlog.Info().Msgf("recommendation tail refilled: supplied=%d tail_before=%d", len(kept), recCount)
}
