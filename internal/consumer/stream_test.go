package consumer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slamstream/relay/internal/consumer"
	"github.com/slamstream/relay/internal/session"
	"github.com/slamstream/relay/internal/slamtype"
	"github.com/slamstream/relay/internal/store"
)

func putChunk(st *store.Store, sessionID string, seq int32) slamtype.Chunk {
	c := slamtype.Chunk{
		ChunkID:        sessionID + "_" + string(rune('a'+seq)),
		SequenceNumber: seq,
		SessionID:      sessionID,
	}
	st.Put(c)
	return c
}

// A late subscriber with no cache descriptor reconciles the full backlog
// before following.
func TestSubscribe_ReconcileFullBacklogThenFollow(t *testing.T) {
	st := store.New(100)
	var reg session.Registry
	reg.EnsureSession("s1", 0)
	putChunk(st, "s1", 0)
	putChunk(st, "s1", 1)

	cursors := consumer.NewCursors()
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	var received []int32
	err := consumer.Subscribe(ctx, st, &reg, cursors, slamtype.CacheDescriptor{LastSequence: -1}, 20*time.Millisecond, func(c slamtype.Chunk) error {
		received = append(received, c.SequenceNumber)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1}, received)
}

// A consumer that already holds sequence 0 only reconciles the gap, then
// picks up newly published chunks live.
func TestSubscribe_ReconcileGapThenFollowsLive(t *testing.T) {
	st := store.New(100)
	var reg session.Registry
	reg.EnsureSession("s1", 0)
	putChunk(st, "s1", 0)
	putChunk(st, "s1", 1)

	cursors := consumer.NewCursors()
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	received := make(chan int32, 8)
	go func() {
		_ = consumer.Subscribe(ctx, st, &reg, cursors, slamtype.CacheDescriptor{SessionID: "s1", LastSequence: 0}, 20*time.Millisecond, func(c slamtype.Chunk) error {
			received <- c.SequenceNumber
			return nil
		})
	}()

	assert.Equal(t, int32(1), <-received)

	putChunk(st, "s1", 2)
	assert.Equal(t, int32(2), <-received)
}

// A cache descriptor naming a different (prior) session triggers a full
// reconcile against the current session rather than trusting its cursor.
func TestSubscribe_DifferentSessionIDForcesFullReconcile(t *testing.T) {
	st := store.New(100)
	var reg session.Registry
	reg.EnsureSession("s2", 0)
	putChunk(st, "s2", 0)

	cursors := consumer.NewCursors()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var received []int32
	err := consumer.Subscribe(ctx, st, &reg, cursors, slamtype.CacheDescriptor{SessionID: "s1", LastSequence: 5}, 20*time.Millisecond, func(c slamtype.Chunk) error {
		received = append(received, c.SequenceNumber)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int32{0}, received)
}

func TestSubscribe_NotLiveReturnsImmediately(t *testing.T) {
	st := store.New(100)
	var reg session.Registry

	cursors := consumer.NewCursors()
	err := consumer.Subscribe(context.Background(), st, &reg, cursors, slamtype.CacheDescriptor{LastSequence: -1}, time.Millisecond, func(slamtype.Chunk) error {
		t.Fatal("send should not be called when session is not live")
		return nil
	})

	assert.ErrorIs(t, err, consumer.ErrSessionNotLive)
}

func TestSubscribe_SendErrorPropagatesAndEndsStream(t *testing.T) {
	st := store.New(100)
	var reg session.Registry
	reg.EnsureSession("s1", 0)
	putChunk(st, "s1", 0)
	putChunk(st, "s1", 1)

	cursors := consumer.NewCursors()
	boom := errors.New("boom")
	err := consumer.Subscribe(context.Background(), st, &reg, cursors, slamtype.CacheDescriptor{LastSequence: -1}, time.Millisecond, func(c slamtype.Chunk) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
}

func TestSubscribe_CursorRemovedAfterStreamEnds(t *testing.T) {
	st := store.New(100)
	var reg session.Registry
	reg.EnsureSession("s1", 0)

	cursors := consumer.NewCursors()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := consumer.Subscribe(ctx, st, &reg, cursors, slamtype.CacheDescriptor{LastSequence: -1}, 10*time.Millisecond, func(slamtype.Chunk) error {
		return nil
	})

	require.NoError(t, err)
	assert.Zero(t, cursors.Len())
}
