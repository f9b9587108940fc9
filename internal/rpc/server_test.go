package rpc

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"github.com/slamstream/relay/internal/activity"
	"github.com/slamstream/relay/internal/consumer"
	"github.com/slamstream/relay/internal/ingest"
	"github.com/slamstream/relay/internal/session"
	"github.com/slamstream/relay/internal/slamtype"
	"github.com/slamstream/relay/internal/store"
)

// fakeServerStream is a minimal grpc.ServerStream double: messages queued
// via in/out slices rather than real wire framing, enough to exercise the
// hand-written handlers without a network listener.
type fakeServerStream struct {
	ctx context.Context
	in  []any
	out []any
}

func (f *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)       {}
func (f *fakeServerStream) Context() context.Context     { return f.ctx }

func (f *fakeServerStream) SendMsg(m any) error {
	f.out = append(f.out, m)
	return nil
}

func (f *fakeServerStream) RecvMsg(m any) error {
	if len(f.in) == 0 {
		return io.EOF
	}
	next := f.in[0]
	f.in = f.in[1:]
	switch dst := m.(type) {
	case *SlamData:
		*dst = next.(SlamData)
	case *ChunkRequest:
		*dst = next.(ChunkRequest)
	case *Empty:
		*dst = next.(Empty)
	default:
		panic("fakeServerStream: unsupported message type")
	}
	return nil
}

func newTestServer(t *testing.T) (*Server, *store.Store, *session.Registry) {
	t.Helper()
	st := store.New(100)
	var reg session.Registry
	pipeline := ingest.New(st, &reg, 1000, 0.01, zerolog.Nop())
	mon := activity.New(&reg, activity.DefaultTimeout, zerolog.Nop())
	cursors := consumer.NewCursors()
	return NewServer(st, &reg, pipeline, mon, cursors, 2, 20*time.Millisecond, zerolog.Nop()), st, &reg
}

func TestIngestStream_ImplicitlyStartsSessionAndRespondsOnEOF(t *testing.T) {
	srv, st, reg := newTestServer(t)

	stream := &fakeServerStream{
		ctx: context.Background(),
		in: []any{
			SlamData{
				Pointcloudlist: PointCloudList{Pointclouds: []PointCloud{{Points: []Point{{X: 0, Y: 0, Z: 0}}}}},
			},
		},
	}

	err := srv.ingestStream(stream)
	require.NoError(t, err)
	require.Len(t, stream.out, 1)
	_, ok := stream.out[0].(*Empty)
	assert.True(t, ok)

	current := reg.Get()
	assert.True(t, current.Live())
	_ = st
}

func TestSetSessionThenGetSession(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, err := srv.setSession(context.Background(), &SessionInfo{SessionID: "s1", IsActive: true, StartTimeMillis: 42})
	require.NoError(t, err)

	got, err := srv.getSession(context.Background(), &Empty{})
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SessionID)
	assert.True(t, got.IsActive)
	assert.EqualValues(t, 42, got.StartTimeMillis)
}

func TestSyncStatus_EmptyStoreAndSession(t *testing.T) {
	srv, _, _ := newTestServer(t)
	got, err := srv.syncStatus(context.Background(), &Empty{})
	require.NoError(t, err)
	assert.Zero(t, got.TotalChunks)
	assert.EqualValues(t, -1, got.LatestSequenceNumber)
}

// get_specific_chunks against unknown chunk_ids returns an empty stream,
// not an error.
func TestGetSpecificChunks_MissingIDsAreSkippedNotErrored(t *testing.T) {
	srv, _, _ := newTestServer(t)

	stream := &fakeServerStream{ctx: context.Background()}
	err := srv.getSpecificChunks(&ChunkRequest{SessionID: "s1", MissingChunkIDs: []string{"nope"}}, stream)

	require.NoError(t, err)
	assert.Empty(t, stream.out)
}

func TestGetSpecificChunks_ReturnsStoredChunk(t *testing.T) {
	srv, st, reg := newTestServer(t)
	reg.EnsureSession("s1", 0)
	st.Put(slamtype.Chunk{ChunkID: "c0", SessionID: "s1", SequenceNumber: 0})

	stream := &fakeServerStream{ctx: context.Background()}
	err := srv.getSpecificChunks(&ChunkRequest{SessionID: "s1", MissingChunkIDs: []string{"c0"}}, stream)

	require.NoError(t, err)
	require.Len(t, stream.out, 1)
	chunk := stream.out[0].(*DataChunk)
	assert.Equal(t, "c0", chunk.ChunkID)
}

func TestSubscribe_NotLiveClosesWithoutError(t *testing.T) {
	srv, _, _ := newTestServer(t)

	stream := &fakeServerStream{ctx: context.Background()}
	err := srv.subscribe(&Empty{}, stream)

	require.NoError(t, err)
	assert.Empty(t, stream.out)
}

func TestSubscribe_MalformedHeaderTreatedAsFirstTime(t *testing.T) {
	srv, st, reg := newTestServer(t)
	reg.EnsureSession("s1", 0)
	st.Put(slamtype.Chunk{ChunkID: "c0", SessionID: "s1", SequenceNumber: 0})

	md := metadata.Pairs(cacheDescriptorHeader, "{not json")
	ctx, cancel := context.WithTimeout(metadata.NewIncomingContext(context.Background(), md), 100*time.Millisecond)
	defer cancel()

	stream := &fakeServerStream{ctx: ctx}
	err := srv.subscribe(&Empty{}, stream)

	require.NoError(t, err)
	require.Len(t, stream.out, 1)
	data := stream.out[0].(*SlamData)
	assert.EqualValues(t, 0, data.SequenceNumber)
}
