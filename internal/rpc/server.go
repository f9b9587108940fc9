package rpc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/slamstream/relay/internal/activity"
	"github.com/slamstream/relay/internal/consumer"
	"github.com/slamstream/relay/internal/ingest"
	"github.com/slamstream/relay/internal/session"
	"github.com/slamstream/relay/internal/slamtype"
	"github.com/slamstream/relay/internal/store"
)

// DefaultWorkerPoolSize bounds the number of streaming RPCs processed
// concurrently.
const DefaultWorkerPoolSize = 10

// Server implements the Relay service against the core components: the
// chunk store, session registry, ingestion pipeline and activity monitor.
// Each inbound streaming RPC acquires a slot from a bounded semaphore for
// its lifetime; the semaphore itself is golang.org/x/sync/semaphore.Weighted,
// the same package the teacher uses in microbatch for bounding concurrent
// flush workers.
type Server struct {
	store    *store.Store
	sessions *session.Registry
	pipeline *ingest.Pipeline
	monitor  *activity.Monitor
	cursors  *consumer.Cursors

	pollInterval time.Duration
	sem          *semaphore.Weighted
	log          zerolog.Logger
}

// NewServer wires a Server from the core components. workerPoolSize <= 0
// uses DefaultWorkerPoolSize; pollInterval <= 0 uses
// consumer.DefaultPollInterval.
func NewServer(
	st *store.Store,
	sessions *session.Registry,
	pipeline *ingest.Pipeline,
	monitor *activity.Monitor,
	cursors *consumer.Cursors,
	workerPoolSize int,
	pollInterval time.Duration,
	log zerolog.Logger,
) *Server {
	if workerPoolSize <= 0 {
		workerPoolSize = DefaultWorkerPoolSize
	}
	return &Server{
		store:        st,
		sessions:     sessions,
		pipeline:     pipeline,
		monitor:      monitor,
		cursors:      cursors,
		pollInterval: pollInterval,
		sem:          semaphore.NewWeighted(int64(workerPoolSize)),
		log:          log,
	}
}

func (s *Server) acquireWorker(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return status.Error(codes.ResourceExhausted, "worker pool unavailable: "+err.Error())
	}
	return nil
}

func (s *Server) releaseWorker() { s.sem.Release(1) }

// setSession implements set_session, the producer's control-channel call.
func (s *Server) setSession(ctx context.Context, in *SessionInfo) (*Empty, error) {
	s.sessions.UpdateFromControlMessage(in.SessionID, in.StartTimeMillis, in.IsActive)
	if in.IsActive {
		s.monitor.UpdateActivity()
	}
	s.log.Info().
		Str("session_id", in.SessionID).
		Bool("is_active", in.IsActive).
		Msg("set_session")
	return &Empty{}, nil
}

// getSession implements get_session.
func (s *Server) getSession(_ context.Context, _ *Empty) (*SessionInfo, error) {
	info := sessionToWire(s.sessions.Get())
	return &info, nil
}

// syncStatus implements sync_status, scoped to the current session.
func (s *Server) syncStatus(_ context.Context, _ *Empty) (*SyncStatus, error) {
	current := s.sessions.Get()
	status := syncStatusToWire(s.store.SyncStatus(current.SessionID))
	return &status, nil
}

// ingestStream implements ingest_stream: the producer push. The wire schema
// carries no session_id on the SlamData message, so the server resolves the
// target session once, when the stream opens, from the session registry's
// current live session, starting one implicitly if none is live.
func (s *Server) ingestStream(stream grpc.ServerStream) error {
	ctx := stream.Context()
	if err := s.acquireWorker(ctx); err != nil {
		return err
	}
	defer s.releaseWorker()

	sessionID := s.resolveIngestSession()

	for {
		var msg SlamData
		err := stream.RecvMsg(&msg)
		if err == io.EOF {
			return stream.SendMsg(&Empty{})
		}
		if err != nil {
			return err
		}

		now := time.Now().UnixMilli()
		s.pipeline.Ingest(sessionID, now, cloudsFromSlamData(msg), posesFromSlamData(msg))
		s.monitor.UpdateActivity()
	}
}

func (s *Server) resolveIngestSession() string {
	current := s.sessions.Get()
	if current.Live() {
		return current.SessionID
	}
	id := newSessionID()
	s.sessions.EnsureSession(id, time.Now().UnixMilli())
	return id
}

func newSessionID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("rpc: crypto/rand unavailable: %v", err))
	}
	return "session_" + hex.EncodeToString(buf[:])
}

// getSpecificChunks implements get_specific_chunks: the repair path. Missing
// chunk_ids are skipped with a warning log, never an error.
func (s *Server) getSpecificChunks(in *ChunkRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	if err := s.acquireWorker(ctx); err != nil {
		return err
	}
	defer s.releaseWorker()

	var hits, misses int
	for _, id := range in.MissingChunkIDs {
		c, err := s.store.Get(id)
		if err != nil {
			misses++
			s.log.Warn().Str("chunk_id", id).Str("session_id", in.SessionID).Msg("get_specific_chunks: chunk not found")
			continue
		}
		hits++
		wire := chunkToWire(c)
		if err := stream.SendMsg(&wire); err != nil {
			return err
		}
	}
	s.log.Debug().Int("hits", hits).Int("misses", misses).Msg("get_specific_chunks complete")
	return nil
}

// subscribe implements subscribe: the consumer pull stream. The cache
// descriptor travels in request metadata under custom-header-1 as JSON; a
// missing or malformed header is treated as a first-time consumer.
func (s *Server) subscribe(_ *Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	if err := s.acquireWorker(ctx); err != nil {
		return err
	}
	defer s.releaseWorker()

	s.sessions.IncrementClients()
	defer s.sessions.DecrementClients()

	desc := s.parseCacheDescriptor(ctx)

	err := consumer.Subscribe(ctx, s.store, s.sessions, s.cursors, desc, s.pollInterval, func(c slamtype.Chunk) error {
		data := chunkToSlamData(c)
		return stream.SendMsg(&data)
	})
	if err == consumer.ErrSessionNotLive {
		// close the stream cleanly, without an error payload.
		return nil
	}
	return err
}

func (s *Server) parseCacheDescriptor(ctx context.Context) slamtype.CacheDescriptor {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return slamtype.CacheDescriptor{LastSequence: -1}
	}
	values := md.Get(cacheDescriptorHeader)
	if len(values) == 0 {
		return slamtype.CacheDescriptor{LastSequence: -1}
	}

	var wire cacheDescriptorWire
	if err := json.Unmarshal([]byte(values[0]), &wire); err != nil {
		s.log.Warn().Err(err).Msg("subscribe: malformed cache descriptor header, treating as first-time consumer")
		return slamtype.CacheDescriptor{LastSequence: -1}
	}

	return slamtype.CacheDescriptor{
		LastSequence: wire.LastSequence,
		SessionID:    wire.SessionID,
		ChunkCount:   wire.ChunkCount,
	}
}
