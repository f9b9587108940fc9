// Package ingest implements the voxel-dedup ingestion pipeline: spatial
// dedup against a session-global occupancy set, accumulation into
// fixed-size chunks, and publication to the chunk store.
//
// The pending-buffer-plus-flush shape is adapted from the teacher's
// microbatch.Batcher (pending jobs cut into batches at a size threshold or a
// flush timer), simplified to this pipeline's single concrete job shape
// (points+poses into a Chunk) and its synchronous, single-caller contract:
// ordering is only guaranteed for a single caller of Ingest, so there is no
// need for microbatch's background goroutine/channel machinery.
package ingest

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/slamstream/relay/internal/session"
	"github.com/slamstream/relay/internal/slamtype"
	"github.com/slamstream/relay/internal/store"
	"github.com/slamstream/relay/internal/voxel"
)

// DefaultChunkSize is the default target chunk cardinality.
const DefaultChunkSize = 1000

// DefaultVoxelEdge is the default voxel edge length.
const DefaultVoxelEdge = 0.01

// Pipeline accumulates deduplicated points into chunks and publishes them to
// a Store. A Pipeline is scoped to one session's lifetime: its occupancy set
// and pending buffers live as long as the session does, and are reset by
// Reset, which the activity monitor's teardown callback calls.
//
// A Pipeline's exported methods are safe for concurrent use, but the
// guarantee that published chunks have strictly increasing sequence numbers
// only holds for a single caller of Ingest; concurrent callers would
// interleave arbitrarily, which the producer-push model (one ingest stream
// per session) never does in practice.
type Pipeline struct {
	chunkSize int
	voxelEdge float64

	store    *store.Store
	sessions *session.Registry
	log      zerolog.Logger

	mu        sync.Mutex
	occupancy map[voxel.Key]struct{}
	pending   []slamtype.Point
	pendingP  []slamtype.Pose
}

// New creates a Pipeline. chunkSize <= 0 uses DefaultChunkSize; voxelEdge <=
// 0 uses DefaultVoxelEdge.
func New(st *store.Store, sessions *session.Registry, chunkSize int, voxelEdge float64, log zerolog.Logger) *Pipeline {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if voxelEdge <= 0 {
		voxelEdge = DefaultVoxelEdge
	}
	return &Pipeline{
		chunkSize: chunkSize,
		voxelEdge: voxelEdge,
		store:     st,
		sessions:  sessions,
		log:       log,
		occupancy: make(map[voxel.Key]struct{}),
	}
}

// Ingest filters each cloud against the occupancy set (binding a pose to
// each surviving point), appends the survivors to the pending buffer, and
// cuts as many full-size chunks from that buffer as it can. It implicitly
// starts the session if none is currently live.
func (p *Pipeline) Ingest(sessionID string, nowMillis int64, clouds [][]slamtype.Point, poses []slamtype.Pose) {
	p.sessions.EnsureSession(sessionID, nowMillis)

	p.mu.Lock()
	defer p.mu.Unlock()

	for i, cloud := range clouds {
		filtered := voxel.Filter(cloud, p.voxelEdge)

		var pose slamtype.Pose
		var havePose bool
		switch {
		case len(poses) == 0:
			havePose = false
		case i < len(poses):
			pose, havePose = poses[i], true
		default:
			pose, havePose = poses[len(poses)-1], true
		}

		for _, pt := range filtered {
			k := voxel.KeyOf(pt.X, pt.Y, pt.Z, p.voxelEdge)
			if _, seen := p.occupancy[k]; seen {
				continue
			}
			p.occupancy[k] = struct{}{}
			p.pending = append(p.pending, pt)
			if havePose {
				p.pendingP = append(p.pendingP, pose)
			}
		}
	}

	for len(p.pending) >= p.chunkSize {
		p.cutChunkLocked(sessionID, nowMillis, p.chunkSize)
	}
}

// FlushPending forces emission of a final short chunk from whatever remains
// in the pending buffer. It is a no-op, returning false, if the buffer is
// empty.
func (p *Pipeline) FlushPending(sessionID string, nowMillis int64) (slamtype.Chunk, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return slamtype.Chunk{}, false
	}
	return p.cutChunkLocked(sessionID, nowMillis, len(p.pending)), true
}

// cutChunkLocked must be called with p.mu held. n is capped to the available
// pending points.
func (p *Pipeline) cutChunkLocked(sessionID string, nowMillis int64, n int) slamtype.Chunk {
	if n > len(p.pending) {
		n = len(p.pending)
	}

	points := p.pending[:n]
	p.pending = p.pending[n:]

	poseCount := n
	if poseCount > len(p.pendingP) {
		poseCount = len(p.pendingP)
	}
	poses := p.pendingP[:poseCount]
	p.pendingP = p.pendingP[poseCount:]

	seq := p.store.NextSequence(sessionID)
	chunk := slamtype.Chunk{
		ChunkID:         newChunkID(sessionID, seq),
		SequenceNumber:  seq,
		SessionID:       sessionID,
		TimestampMillis: nowMillis,
		Points:          append([]slamtype.Point(nil), points...),
		Poses:           append([]slamtype.Pose(nil), poses...),
		IsKeyframe:      seq == 0,
	}
	p.store.Put(chunk)
	p.sessions.IncrementTotalChunks(1)

	p.log.Debug().
		Str("session_id", sessionID).
		Str("chunk_id", chunk.ChunkID).
		Int32("sequence_number", seq).
		Int("points", len(chunk.Points)).
		Msg("published chunk")

	return chunk
}

// Reset clears the occupancy set and pending buffers, for session teardown
// or session switch. It does not touch the store; the caller (the activity
// monitor's teardown callback) is responsible for ordering this relative to
// Store.Clear.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.occupancy = make(map[voxel.Key]struct{})
	p.pending = nil
	p.pendingP = nil
}

func newChunkID(sessionID string, sequence int32) string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing indicates a broken host environment; there is
		// no sane degraded mode for chunk-id generation.
		panic(fmt.Sprintf("ingest: crypto/rand unavailable: %v", err))
	}
	return fmt.Sprintf("%s_%d_%s", sessionID, sequence, hex.EncodeToString(buf[:]))
}
