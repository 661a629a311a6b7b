package queue

import (
	"github.com/melodeck/melodeck/internal/domain/track"
)

// ToggleShuffle flips the active ordering and rebuilds the visible queue
// from it. Turning shuffle on draws a fresh uniformly-random permutation of
// the user-entry ids; turning it off restores the standard ordering exactly.
// The current entry keeps its identity across the rebuild (its position may
// change), so playback is never interrupted.
func (m *Manager) ToggleShuffle() bool {
	m.shuffled = !m.shuffled
	if m.shuffled {
		m.shuffleOrder = m.fisherYates(m.standardOrder)
	}
	m.rebuild()
	return m.shuffled
}

// Shuffle draws a fresh permutation and makes it active, regardless of the
// current shuffle flag. Used by the shuffle-everything operations.
func (m *Manager) Shuffle() {
	m.shuffled = true
	m.shuffleOrder = m.fisherYates(m.standardOrder)
	m.rebuild()
}

// SetShuffled forces the shuffle flag without rebuilding. Used when
// restoring a persisted snapshot.
func (m *Manager) SetShuffled(shuffled bool) {
	m.shuffled = shuffled
}

// rebuild materializes the visible queue from the active ordering plus the
// recommendation tail, then re-resolves the index pointers by track id.
func (m *Manager) rebuild() {
	currentID := m.currentTrackID()
	previousID := m.trackIDAt(m.previousIndex)

	order := m.standardOrder
	if m.shuffled {
		order = m.shuffleOrder
	}

	users := make([]track.Entry, 0, m.userCount())
	users = append(users, m.entries[:m.userCount()]...)
	recommendations := append([]track.Entry(nil), m.recommendations()...)

	m.entries = append(materialize(order, users), recommendations...)
	m.relocate(currentID, previousID)
}

// materialize arranges the user entries to match the id ordering. Duplicate
// ids consume pool entries in their original relative order. It is the only
// way the user region of the visible queue is ever reconstructed.
func materialize(order []string, pool []track.Entry) []track.Entry {
	byID := make(map[string][]track.Entry, len(pool))
	for _, e := range pool {
		byID[e.Track.ID] = append(byID[e.Track.ID], e)
	}

	out := make([]track.Entry, 0, len(pool))
	for _, id := range order {
		bucket := byID[id]
		if len(bucket) == 0 {
			continue
		}
		out = append(out, bucket[0])
		byID[id] = bucket[1:]
	}
	return out
}

// fisherYates returns a fresh uniformly-random permutation of ids.
// Descending i from len-1 to 1, swapping with a uniform j in [0, i].
func (m *Manager) fisherYates(ids []string) []string {
	out := append([]string(nil), ids...)
	for i := len(out) - 1; i >= 1; i-- {
		j := m.randInt(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Restore rebuilds the queue from persisted state. Orderings that no longer
// cover the restored id set are reset to the natural id list; out-of-range
// index pointers are cleared.
func (m *Manager) Restore(userTracks []track.Track, standardOrder, shuffleOrder []string, currentIndex, previousIndex int, shuffled bool) {
	m.entries = make([]track.Entry, 0, len(userTracks))
	for _, t := range userTracks {
		m.entries = append(m.entries, track.NewUserEntry(t))
	}

	ids := track.IDs(userTracks)
	m.standardOrder = restoreOrder(standardOrder, ids)
	m.shuffleOrder = restoreOrder(shuffleOrder, ids)
	m.shuffled = shuffled

	if currentIndex < 0 || currentIndex >= len(m.entries) {
		currentIndex = -1
	}
	if previousIndex < 0 || previousIndex >= len(m.entries) {
		previousIndex = -1
	}
	m.currentIndex = currentIndex
	m.previousIndex = previousIndex

	m.rebuild()
}

// restoreOrder validates a persisted ordering against the restored id set.
func restoreOrder(order, ids []string) []string {
	if len(order) != len(ids) {
		return append([]string(nil), ids...)
	}
	want := make(map[string]int, len(ids))
	for _, id := range ids {
		want[id]++
	}
	for _, id := range order {
		if want[id] == 0 {
			return append([]string(nil), ids...)
		}
		want[id]--
	}
	return append([]string(nil), order...)
}
