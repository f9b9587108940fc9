// Package consumer implements the subscribe operation's two phases:
// reconciling a late-joining or reconnecting consumer's cache against the
// chunk store, then following new publications live.
//
// Phase 1's bounded drain-to-completion shape is adapted from the teacher's
// longpoll.Channel (receive as many values as possible, bounded by size/
// timeout); phase 2's cancel-aware send loop is adapted from
// fangrpcstream.Stream's goroutine/mutex/error shape, simplified from a
// bidirectional client stream to this package's unidirectional
// server-streaming poll loop. Polling is used in place of a
// condition-variable wakeup so a slow or stalled consumer can never block a
// publisher.
package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/slamstream/relay/internal/session"
	"github.com/slamstream/relay/internal/slamtype"
	"github.com/slamstream/relay/internal/store"
)

// DefaultPollInterval is the default follow-phase poll interval.
const DefaultPollInterval = 100 * time.Millisecond

// Sender delivers one chunk to the consumer's transport. Implementations
// come from the RPC layer (internal/rpc), which adapts this to a
// grpc.ServerStream.
type Sender func(slamtype.Chunk) error

// Cursors tracks the last sequence number sent to each live consumer. It is
// guarded by its own lock, independent of the store's lock, since cursor
// bookkeeping and chunk storage are updated by different call paths.
type Cursors struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[uint64]*int32
}

// NewCursors creates an empty cursor table.
func NewCursors() *Cursors {
	return &Cursors{entries: make(map[uint64]*int32)}
}

// insert registers a new cursor starting at seq, returning its id.
func (c *Cursors) insert(seq int32) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	v := seq
	c.entries[id] = &v
	return id
}

func (c *Cursors) advance(id uint64, seq int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.entries[id]; ok {
		*v = seq
	}
}

func (c *Cursors) remove(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Clear removes every cursor entry. Called by the end-of-session teardown
// callback so a new session starts with no stale cursors.
func (c *Cursors) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*int32)
}

// Len reports the number of currently tracked cursors (for diagnostics).
func (c *Cursors) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// ErrSessionNotLive is returned by Subscribe when the session is not live at
// call time: the stream should close immediately without sending anything.
var ErrSessionNotLive = errSessionNotLive{}

type errSessionNotLive struct{}

func (errSessionNotLive) Error() string { return "consumer: session is not live" }

// Subscribe runs both the reconcile and follow phases against ctx, returning
// when ctx is canceled, send returns an error, or the transport otherwise
// ends the stream. A nil error return means ctx was canceled cleanly (not a
// failure); ErrSessionNotLive means the precondition failed and nothing was
// sent.
func Subscribe(
	ctx context.Context,
	st *store.Store,
	sessions *session.Registry,
	cursors *Cursors,
	desc slamtype.CacheDescriptor,
	pollInterval time.Duration,
	send Sender,
) error {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	current := sessions.Get()
	if !current.Live() {
		return ErrSessionNotLive
	}

	var initial []slamtype.Chunk
	startCursor := desc.LastSequence
	if desc.SessionID != current.SessionID || desc.LastSequence == -1 {
		initial = st.AllForSession(current.SessionID)
		startCursor = -1
	} else {
		initial = st.ChunksAfter(desc.LastSequence, current.SessionID)
	}

	id := cursors.insert(startCursor)
	defer cursors.remove(id)

	cursor := startCursor
	for _, c := range initial {
		if err := send(c); err != nil {
			return err
		}
		cursor = c.SequenceNumber
		cursors.advance(id, cursor)
	}

	return follow(ctx, st, current.SessionID, cursor, id, cursors, pollInterval, send)
}

func follow(
	ctx context.Context,
	st *store.Store,
	sessionID string,
	cursor int32,
	id uint64,
	cursors *Cursors,
	pollInterval time.Duration,
	send Sender,
) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			next := st.ChunksAfter(cursor, sessionID)
			for _, c := range next {
				if err := ctx.Err(); err != nil {
					return nil
				}
				if err := send(c); err != nil {
					return err
				}
				cursor = c.SequenceNumber
				cursors.advance(id, cursor)
			}
		}
	}
}
