// Package notify provides the notification manager for broadcasting player events.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/melodeck/melodeck/internal/domain/track"
)

// Type represents a notification type.
type Type int

const (
	TypeTrackStarted Type = iota // A track started playing
	TypeTrackPlayed              // A track was reported as played
	TypeTrackEnded               // A track finished playing
	TypeStateChanged             // Playback state changed (pause/resume/volume)
	TypeQueueChanged             // Queue structure changed
	TypePlaybackError            // Transport or catalog failure surfaced
)

// String returns the string representation of the notification type.
func (t Type) String() string {
	switch t {
	case TypeTrackStarted:
		return "track_started"
	case TypeTrackPlayed:
		return "track_played"
	case TypeTrackEnded:
		return "track_ended"
	case TypeStateChanged:
		return "state_changed"
	case TypeQueueChanged:
		return "queue_changed"
	case TypePlaybackError:
		return "playback_error"
	default:
		return "unknown"
	}
}

// Notification represents a player event pushed to subscribers.
type Notification struct {
	Type       Type
	Track      *track.Track // Subject track (nil for some types)
	Message    string       // Optional human-readable detail (errors)
	SequenceNo uint64
}

// Stream receives notifications for one subscriber.
type Stream interface {
	Send(Notification) error
}

// StreamFunc adapts a function to the Stream interface.
type StreamFunc func(Notification) error

// Send implements Stream.
func (f StreamFunc) Send(n Notification) error {
	return f(n)
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription

	sequenceNoMu sync.Mutex
	sequenceNo   uint64
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast sends a notification to all subscribers.
// Each stream send is done in a goroutine with a timeout to prevent blocking.
func (m *Manager) Broadcast(notification Notification) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	notification.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	m.mu.RLock()
	// Copy subscriptions to avoid holding lock during sends
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(notification)
			}()

			select {
			case <-done:
				// Send errors are ignored; a broken subscriber is expected
				// to unsubscribe itself.
			case <-ctx.Done():
				// Timeout - continue to next subscriber
			}
		}(sub)
	}
	wg.Wait()
}

// SubscriberCount returns the number of active subscriptions.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}
