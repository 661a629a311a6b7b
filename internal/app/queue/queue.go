// Package queue provides the playback queue model with dual orderings.
//
// The queue holds listener-added entries first, followed by entries supplied
// by the recommendation feed. Two permutations of the listener-added track
// ids are maintained (standard and shuffled); the visible queue is always
// materialized from whichever permutation is active plus the recommendation
// tail. The Manager performs no locking of its own: it is owned by the
// player controller, which serializes all access.
package queue

import (
	"math/rand"

	"github.com/melodeck/melodeck/internal/domain/track"
)

// AppendMode selects where listener-added tracks are inserted.
type AppendMode int

const (
	AppendEnd          AppendMode = iota // After the last user entry, before recommendations
	AppendAfterCurrent                   // Immediately after the current position among user entries
)

// String returns the string representation of the append mode.
func (m AppendMode) String() string {
	switch m {
	case AppendEnd:
		return "end"
	case AppendAfterCurrent:
		return "after_current"
	default:
		return "unknown"
	}
}

// Config holds queue bounds.
type Config struct {
	MaxLength      int // Hard cap on queue length
	TrimKeepBefore int // Entries kept before the current position when trimming
}

// DefaultConfig returns the standard queue bounds.
func DefaultConfig() Config {
	return Config{MaxLength: 1000, TrimKeepBefore: 5}
}

// Manager owns the queue entries, the current/previous index pointers and
// the two user-entry orderings.
type Manager struct {
	cfg Config

	entries       []track.Entry
	currentIndex  int
	previousIndex int

	standardOrder []string
	shuffleOrder  []string
	shuffled      bool

	// randInt returns a uniform value in [0, n). Injected for tests.
	randInt func(n int) int
}

// NewManager creates an empty queue manager.
func NewManager(cfg Config) *Manager {
	if cfg.MaxLength <= 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		cfg:           cfg,
		entries:       make([]track.Entry, 0),
		currentIndex:  -1,
		previousIndex: -1,
		standardOrder: make([]string, 0),
		shuffleOrder:  make([]string, 0),
		randInt:       rand.Intn,
	}
}

// SetRandSource overrides the random source used by shuffle. Test hook.
func (m *Manager) SetRandSource(randInt func(n int) int) {
	if randInt != nil {
		m.randInt = randInt
	}
}

// Len returns the number of entries in the queue.
func (m *Manager) Len() int {
	return len(m.entries)
}

// Entries returns a copy of the visible queue.
func (m *Manager) Entries() []track.Entry {
	out := make([]track.Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// CurrentIndex returns the current position (-1 if none).
func (m *Manager) CurrentIndex() int {
	return m.currentIndex
}

// PreviousIndex returns the recorded one-shot back-target (-1 if none).
func (m *Manager) PreviousIndex() int {
	return m.previousIndex
}

// Current returns the entry at the current position, or nil if none.
func (m *Manager) Current() *track.Entry {
	if m.currentIndex < 0 || m.currentIndex >= len(m.entries) {
		return nil
	}
	e := m.entries[m.currentIndex]
	return &e
}

// EntryAt returns the entry at index, or nil if out of range.
func (m *Manager) EntryAt(index int) *track.Entry {
	if index < 0 || index >= len(m.entries) {
		return nil
	}
	e := m.entries[index]
	return &e
}

// Shuffled reports whether the shuffle ordering is active.
func (m *Manager) Shuffled() bool {
	return m.shuffled
}

// StandardOrder returns a copy of the standard user-entry id ordering.
func (m *Manager) StandardOrder() []string {
	out := make([]string, len(m.standardOrder))
	copy(out, m.standardOrder)
	return out
}

// ShuffleOrder returns a copy of the shuffled user-entry id ordering.
func (m *Manager) ShuffleOrder() []string {
	out := make([]string, len(m.shuffleOrder))
	copy(out, m.shuffleOrder)
	return out
}

// SetCurrentIndex sets the current position. Returns false (no-op) when the
// index is neither -1 nor within the queue bounds.
func (m *Manager) SetCurrentIndex(index int) bool {
	if index != -1 && (index < 0 || index >= len(m.entries)) {
		return false
	}
	m.currentIndex = index
	return true
}

// SetPreviousIndex records the one-shot back-target. Returns false (no-op)
// when the index is neither -1 nor within the queue bounds.
func (m *Manager) SetPreviousIndex(index int) bool {
	if index != -1 && (index < 0 || index >= len(m.entries)) {
		return false
	}
	m.previousIndex = index
	return true
}

// userCount returns the number of listener-added entries. User entries
// always form the queue prefix.
func (m *Manager) userCount() int {
	n := 0
	for _, e := range m.entries {
		if e.Source != track.SourceUser {
			break
		}
		n++
	}
	return n
}

// UserTracks returns the listener-added tracks in visible order.
func (m *Manager) UserTracks() []track.Track {
	n := m.userCount()
	out := make([]track.Track, n)
	for i := 0; i < n; i++ {
		out[i] = m.entries[i].Track
	}
	return out
}

// RecommendationCount returns the number of feed-supplied entries.
func (m *Manager) RecommendationCount() int {
	return len(m.entries) - m.userCount()
}

// recommendations returns the feed-supplied tail.
func (m *Manager) recommendations() []track.Entry {
	return m.entries[m.userCount():]
}

// Replace wholesale replaces the queue with listener-added tracks.
// Both orderings are rebuilt identical to the new id list, the current
// position is reset to the head and the back-target is cleared.
func (m *Manager) Replace(tracks []track.Track) {
	m.entries = make([]track.Entry, 0, len(tracks))
	for _, t := range tracks {
		m.entries = append(m.entries, track.NewUserEntry(t))
	}
	ids := track.IDs(tracks)
	m.standardOrder = ids
	m.shuffleOrder = append([]string(nil), ids...)
	if len(m.entries) > 0 {
		m.currentIndex = 0
	} else {
		m.currentIndex = -1
	}
	m.previousIndex = -1
}

// Append inserts listener-added tracks according to mode, updates both
// orderings, and enforces the queue growth bound.
func (m *Manager) Append(tracks []track.Track, mode AppendMode) {
	if len(tracks) == 0 {
		return
	}

	userCount := m.userCount()
	pos := userCount // AppendEnd: after the last user entry
	if mode == AppendAfterCurrent {
		if m.currentIndex >= 0 && m.currentIndex < userCount {
			pos = m.currentIndex + 1
		} else {
			// Current entry is a recommendation (or nothing is playing):
			// inserted tracks become the new head of the user region.
			pos = 0
		}
	}

	inserted := make([]track.Entry, 0, len(tracks))
	for _, t := range tracks {
		inserted = append(inserted, track.NewUserEntry(t))
	}
	m.entries = append(m.entries[:pos], append(inserted, m.entries[pos:]...)...)

	// Active order gains the ids at the matching relative position, the
	// inactive order at its tail.
	ids := track.IDs(tracks)
	if m.shuffled {
		m.shuffleOrder = spliceIDs(m.shuffleOrder, pos, ids)
		m.standardOrder = append(m.standardOrder, ids...)
	} else {
		m.standardOrder = spliceIDs(m.standardOrder, pos, ids)
		m.shuffleOrder = append(m.shuffleOrder, ids...)
	}

	if m.currentIndex >= pos {
		m.currentIndex += len(tracks)
	}
	if m.previousIndex >= pos {
		m.previousIndex += len(tracks)
	}

	m.trim()
}

// SupplyRecommendations appends feed-supplied tracks at the tail.
// Orderings only cover user entries and are left untouched.
func (m *Manager) SupplyRecommendations(tracks []track.Track) {
	for _, t := range tracks {
		m.entries = append(m.entries, track.NewRecommendationEntry(t))
	}
	m.trim()
}

// Remove deletes the entry at index. Out-of-range indices are a no-op.
// Index pointers after the removed position shift down; a pointer at the
// removed position itself is cleared.
func (m *Manager) Remove(index int) bool {
	if index < 0 || index >= len(m.entries) {
		return false
	}

	removed := m.entries[index]
	if removed.Source == track.SourceUser {
		// Active order loses the occurrence at the entry's relative user
		// position; the inactive order loses its first occurrence.
		if m.shuffled {
			m.shuffleOrder = removeIDAt(m.shuffleOrder, index)
			m.standardOrder = removeFirstID(m.standardOrder, removed.Track.ID)
		} else {
			m.standardOrder = removeIDAt(m.standardOrder, index)
			m.shuffleOrder = removeFirstID(m.shuffleOrder, removed.Track.ID)
		}
	}
	m.entries = append(m.entries[:index], m.entries[index+1:]...)

	switch {
	case m.currentIndex == index:
		m.currentIndex = -1
	case m.currentIndex > index:
		m.currentIndex--
	}
	switch {
	case m.previousIndex == index:
		m.previousIndex = -1
	case m.previousIndex > index:
		m.previousIndex--
	}
	return true
}

// UpdateTrack swaps in fresh metadata for the entry at index. The
// replacement must carry the same id; identity never changes in place.
func (m *Manager) UpdateTrack(index int, t track.Track) bool {
	if index < 0 || index >= len(m.entries) {
		return false
	}
	if m.entries[index].Track.ID != t.ID {
		return false
	}
	m.entries[index].Track = t
	return true
}

// Reorder moves the entry at from to the position to. Moves that would
// cross the user/recommendation boundary are silently rejected.
func (m *Manager) Reorder(from, to int) bool {
	if from < 0 || from >= len(m.entries) || to < 0 || to >= len(m.entries) {
		return false
	}
	if from == to {
		return true
	}
	if m.entries[from].Source != m.entries[to].Source {
		return false
	}

	currentID := m.currentTrackID()
	previousID := m.trackIDAt(m.previousIndex)

	moved := m.entries[from]
	m.entries = append(m.entries[:from], m.entries[from+1:]...)
	m.entries = append(m.entries[:to], append([]track.Entry{moved}, m.entries[to:]...)...)

	// Re-splice the active order so user positions match the visible queue.
	if moved.Source == track.SourceUser {
		ids := make([]string, m.userCount())
		for i := range ids {
			ids[i] = m.entries[i].Track.ID
		}
		if m.shuffled {
			m.shuffleOrder = ids
		} else {
			m.standardOrder = ids
		}
	}

	m.relocate(currentID, previousID)
	return true
}

// Clear empties the queue and resets both index pointers. The shuffle flag
// is a player setting and survives clearing.
func (m *Manager) Clear() {
	m.entries = m.entries[:0]
	m.standardOrder = m.standardOrder[:0]
	m.shuffleOrder = m.shuffleOrder[:0]
	m.currentIndex = -1
	m.previousIndex = -1
}

// trim enforces the growth bound. Only the region strictly before the
// current position is eligible: at most cfg.TrimKeepBefore of its most
// recent entries survive, everything at or after the current position is
// kept untouched.
func (m *Manager) trim() {
	if len(m.entries) <= m.cfg.MaxLength {
		return
	}

	drop := m.currentIndex - m.cfg.TrimKeepBefore
	if m.currentIndex < 0 {
		// Nothing is playing, so there is no played region to collapse.
		// Just enforce the cap from the front.
		drop = len(m.entries) - m.cfg.MaxLength
	}
	if drop <= 0 {
		return
	}

	for _, e := range m.entries[:drop] {
		if e.Source == track.SourceUser {
			m.standardOrder = removeFirstID(m.standardOrder, e.Track.ID)
			m.shuffleOrder = removeFirstID(m.shuffleOrder, e.Track.ID)
		}
	}
	m.entries = append(m.entries[:0], m.entries[drop:]...)

	if m.currentIndex >= 0 {
		m.currentIndex -= drop
	}
	if m.previousIndex >= 0 {
		m.previousIndex -= drop
		if m.previousIndex < 0 {
			m.previousIndex = -1
		}
	}
}

// currentTrackID returns the id of the current entry, or "".
func (m *Manager) currentTrackID() string {
	return m.trackIDAt(m.currentIndex)
}

func (m *Manager) trackIDAt(index int) string {
	if index < 0 || index >= len(m.entries) {
		return ""
	}
	return m.entries[index].Track.ID
}

// relocate re-resolves the index pointers by track id after a rebuild.
func (m *Manager) relocate(currentID, previousID string) {
	m.currentIndex = m.indexOfID(currentID)
	m.previousIndex = m.indexOfID(previousID)
}

func (m *Manager) indexOfID(id string) int {
	if id == "" {
		return -1
	}
	for i, e := range m.entries {
		if e.Track.ID == id {
			return i
		}
	}
	return -1
}

// spliceIDs inserts ids at position pos, clamped to the slice bounds.
func spliceIDs(order []string, pos int, ids []string) []string {
	if pos < 0 {
		pos = 0
	}
	if pos > len(order) {
		pos = len(order)
	}
	out := make([]string, 0, len(order)+len(ids))
	out = append(out, order[:pos]...)
	out = append(out, ids...)
	out = append(out, order[pos:]...)
	return out
}

// removeIDAt removes the element at index, clamped to a no-op when out of
// range.
func removeIDAt(order []string, index int) []string {
	if index < 0 || index >= len(order) {
		return order
	}
	return append(order[:index], order[index+1:]...)
}

// removeFirstID removes the first occurrence of id.
func removeFirstID(order []string, id string) []string {
	for i, v := range order {
		if v == id {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}
