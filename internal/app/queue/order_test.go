package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ToggleShuffle_RoundTripRestoresStandardOrder(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.Replace(makeTracks("a", "b", "c", "d", "e"))
	m.SupplyRecommendations(makeTracks("r1", "r2"))
	require.True(t, m.SetCurrentIndex(2))
	before := queueIDs(m)

	assert.True(t, m.ToggleShuffle())
	assert.False(t, m.ToggleShuffle())

	assert.Equal(t, before, queueIDs(m))
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, m.StandardOrder())
	assert.Equal(t, 2, m.CurrentIndex())
}

func TestManager_ToggleShuffle_PreservesCurrentTrackIdentity(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.Replace(makeTracks("a", "b", "c", "d", "e", "f"))
	require.True(t, m.SetCurrentIndex(3))
	currentID := m.Current().Track.ID

	for i := 0; i < 10; i++ {
		m.ToggleShuffle()
		require.NotNil(t, m.Current())
		assert.Equal(t, currentID, m.Current().Track.ID, "toggle %d", i)
		assertIndexInvariant(t, m)
	}
}

func TestManager_ToggleShuffle_AppliesFisherYatesPermutation(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.Replace(makeTracks("a", "b", "c", "d"))

	// Descending i from 3 to 1, swapping i with the injected j.
	swaps := []int{0, 1, 0}
	idx := 0
	m.SetRandSource(func(n int) int {
		j := swaps[idx]
		idx++
		return j
	})

	m.ToggleShuffle()

	// [a b c d] -> swap(3,0) [d b c a] -> swap(2,1) [d c b a] -> swap(1,0) [c d b a]
	assert.Equal(t, []string{"c", "d", "b", "a"}, m.ShuffleOrder())
	assert.Equal(t, []string{"c", "d", "b", "a"}, queueIDs(m))
	assert.Equal(t, []string{"a", "b", "c", "d"}, m.StandardOrder())
}

func TestManager_ToggleShuffle_KeepsRecommendationTailInPlace(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.Replace(makeTracks("a", "b", "c"))
	m.SupplyRecommendations(makeTracks("r1", "r2"))

	m.ToggleShuffle()

	ids := queueIDs(m)
	assert.Equal(t, []string{"r1", "r2"}, ids[3:], "recommendations always order after user entries")
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids[:3])
}

func TestManager_ToggleShuffle_OrderCoversExactlyUserEntries(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.Replace(makeTracks("a", "b", "c"))
	m.SupplyRecommendations(makeTracks("r1"))
	m.Append(makeTracks("d"), AppendEnd)

	m.ToggleShuffle()
	m.Append(makeTracks("e"), AppendAfterCurrent)

	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, m.ShuffleOrder())
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e"}, m.StandardOrder())
}

func TestManager_ToggleShuffle_EmptyQueue(t *testing.T) {
	m := NewManager(DefaultConfig())

	assert.True(t, m.ToggleShuffle())
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, -1, m.CurrentIndex())
}

func TestManager_Restore(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.Restore(makeTracks("a", "b", "c"), []string{"a", "b", "c"}, []string{"c", "a", "b"}, 1, -1, false)

	assert.Equal(t, []string{"a", "b", "c"}, queueIDs(m))
	assert.Equal(t, 1, m.CurrentIndex())
	assert.Equal(t, []string{"c", "a", "b"}, m.ShuffleOrder())
	assert.False(t, m.Shuffled())
}

func TestManager_Restore_ShuffledMaterializesShuffleOrder(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.Restore(makeTracks("c", "a", "b"), []string{"a", "b", "c"}, []string{"c", "a", "b"}, 0, -1, true)

	assert.Equal(t, []string{"c", "a", "b"}, queueIDs(m))
	assert.Equal(t, "c", m.Current().Track.ID)

	// Turning shuffle off falls back to the persisted standard order.
	m.ToggleShuffle()
	assert.Equal(t, []string{"a", "b", "c"}, queueIDs(m))
	assert.Equal(t, "c", m.Current().Track.ID)
}

func TestManager_Restore_RejectsCorruptState(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.Restore(makeTracks("a", "b"), []string{"a", "x"}, []string{"a"}, 7, -3, false)

	assert.Equal(t, []string{"a", "b"}, m.StandardOrder(), "mismatched order resets to the natural id list")
	assert.Equal(t, []string{"a", "b"}, m.ShuffleOrder())
	assert.Equal(t, -1, m.CurrentIndex())
	assert.Equal(t, -1, m.PreviousIndex())
}

func TestMaterialize_ConsumesDuplicatesInOrder(t *testing.T) {
	m := NewManager(DefaultConfig())
	m.Replace(makeTracks("a", "b", "a"))

	pool := m.Entries()
	entries := materialize([]string{"a", "a", "b"}, pool)

	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Track.ID)
	assert.Equal(t, "a", entries[1].Track.ID)
	assert.Equal(t, "b", entries[2].Track.ID)
	// The two "a" occurrences keep their original relative order.
	assert.Equal(t, pool[0].AddedAt, entries[0].AddedAt)
	assert.Equal(t, pool[2].AddedAt, entries[1].AddedAt)
}
