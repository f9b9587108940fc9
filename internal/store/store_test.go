package store_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slamstream/relay/internal/slamtype"
	"github.com/slamstream/relay/internal/store"
)

func putN(t *testing.T, s *store.Store, sessionID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		seq := s.NextSequence(sessionID)
		s.Put(slamtype.Chunk{
			ChunkID:        sessionID + "_chunk",
			SequenceNumber: seq,
			SessionID:      sessionID,
		})
	}
}

func TestPut_AssignsDenseSequence(t *testing.T) {
	s := store.New(100)
	putN(t, s, "sess-a", 5)
	chunks := s.AllForSession("sess-a")
	require.Len(t, chunks, 5)
	for i, c := range chunks {
		assert.Equal(t, int32(i), c.SequenceNumber)
	}
}

func TestPut_PanicsOnNonMonotonicSequence(t *testing.T) {
	s := store.New(100)
	s.Put(slamtype.Chunk{ChunkID: "a", SequenceNumber: 0, SessionID: "sess"})
	assert.Panics(t, func() {
		s.Put(slamtype.Chunk{ChunkID: "b", SequenceNumber: 5, SessionID: "sess"})
	})
}

func TestGet_NotFound(t *testing.T) {
	s := store.New(100)
	_, err := s.Get("nope")
	assert.ErrorIs(t, err, store.ErrChunkNotFound)
}

func TestChunksAfter(t *testing.T) {
	s := store.New(100)
	putN(t, s, "sess", 3)
	after := s.ChunksAfter(0, "sess")
	require.Len(t, after, 2)
	assert.Equal(t, int32(1), after[0].SequenceNumber)
	assert.Equal(t, int32(2), after[1].SequenceNumber)

	all := s.ChunksAfter(-1, "sess")
	assert.Len(t, all, 3)
}

func TestSyncStatus(t *testing.T) {
	s := store.New(100)
	empty := s.SyncStatus("sess")
	assert.Equal(t, int32(-1), empty.LatestSequenceNumber)
	assert.Zero(t, empty.TotalChunks)

	putN(t, s, "sess", 4)
	status := s.SyncStatus("sess")
	assert.EqualValues(t, 4, status.TotalChunks)
	assert.EqualValues(t, 3, status.LatestSequenceNumber)
	assert.Len(t, status.AvailableChunkIDs, 4)
}

func TestEviction_BoundsStoreAndPreservesDensity(t *testing.T) {
	s := store.New(3)
	putN(t, s, "sess", 5)
	chunks := s.AllForSession("sess")
	require.Len(t, chunks, 3)
	// oldest two (seq 0, 1) evicted; remaining are the newest three
	assert.Equal(t, []int32{2, 3, 4}, []int32{chunks[0].SequenceNumber, chunks[1].SequenceNumber, chunks[2].SequenceNumber})
}

func TestClear_ResetsSequenceAndEmptiesStore(t *testing.T) {
	s := store.New(100)
	putN(t, s, "sess", 3)
	s.Clear()
	assert.Zero(t, s.Len())
	status := s.SyncStatus("sess")
	assert.Zero(t, status.TotalChunks)
	assert.Equal(t, int32(-1), status.LatestSequenceNumber)

	// next session after clear starts sequencing at 0 again
	assert.Equal(t, int32(0), s.NextSequence("sess-2"))
}
