// Package rpc exposes the relay's service surface over gRPC without relying
// on protoc-generated stubs: message types are plain Go structs encoded with
// a gob-based codec, and the service is registered via a hand-written
// grpc.ServiceDesc. This mirrors the teacher's grpc-proxy and inprocgrpc
// packages, which both dispatch RPCs against a *grpc.ServiceDesc without
// requiring the caller to hold generated .pb.go types: grpc-proxy does it
// to stay codec-agnostic for arbitrary proxied services, inprocgrpc does it
// to route calls in-process. Fabricating a protoc-style FileDescriptorProto
// by hand was rejected (see DESIGN.md): it would produce code that looks
// generated but breaks at runtime reflection, which is worse than being
// honest about the hand-written codec.
//
// Field numbers in comments below document the original protobuf layout
// (original_source/proto_files_slam/pointcloud_pb2.py) for readers cross
// referencing the source system; they have no runtime effect under the gob
// codec.
package rpc

// Point mirrors the original Point message.
type Point struct {
	X, Y, Z float64 // fields 1-3
	HasRGB  bool
	R, G, B float64 // fields 4-6, optional
}

// Pose mirrors the original Pose message: a row-major 4x4 transform.
type Pose struct {
	Matrix [16]float64 // field 1, repeated double
}

// PointCloud mirrors the original PointCloud message.
type PointCloud struct {
	Points []Point // field 1
}

// PointCloudList mirrors the original PointCloudList message.
type PointCloudList struct {
	Pointclouds []PointCloud // field 1
}

// PoseList mirrors the original PoseList message.
type PoseList struct {
	Poses []Pose // field 1
}

// Index mirrors the original Index message (unused by this relay's own
// logic: ingest_stream accepts it on SlamData and ignores it, and subscribe
// leaves it empty; it exists only for wire compatibility with producers that
// still send it).
type Index struct {
	Index []int32 // field 1
}

// SlamData mirrors the original SlamData message: the producer's unit of
// ingest, and the unit delivered by subscribe.
type SlamData struct {
	Pointcloudlist PointCloudList // field 1
	Poselist       PoseList       // field 2
	Indexlist      []Index        // field 3
	ChunkID        string         // field 4
	SequenceNumber int32          // field 5
}

// DataChunk mirrors the original DataChunk message: the repair path's unit
// of delivery, one PointCloud and one Pose per chunk.
type DataChunk struct {
	ChunkID         string     // field 1
	SequenceNumber  int32      // field 2
	SessionID       string     // field 3
	TimestampMillis int64      // field 4
	Pointcloud      PointCloud // field 5
	Pose            Pose       // field 6
	IsKeyframe      bool       // field 7
}

// ChunkRequest mirrors the original ChunkRequest message: the repair path's
// request.
type ChunkRequest struct {
	SessionID          string   // field 1
	MissingChunkIDs    []string // field 2
	LastSequenceNumber int32    // field 3
}

// SyncStatus mirrors the original SyncStatus message.
type SyncStatus struct {
	SessionID            string   // field 1
	TotalChunks          int32    // field 2
	LatestSequenceNumber int32    // field 3
	AvailableChunkIDs    []string // field 4
}

// SessionInfo mirrors the original SessionInfo message. StartTime is carried
// as milliseconds-since-epoch rather than an ISO8601 string: every other
// timestamp in this system (DataChunk.TimestampMillis) is already a millis
// integer, and round-tripping through a string format for this one field
// would be the odd one out.
type SessionInfo struct {
	SessionID        string // field 1
	StartTimeMillis  int64  // field 2
	IsActive         bool   // field 3
	ClientsConnected int32  // field 4
	TotalChunks      int32  // field 5
}

// Empty mirrors google.protobuf.Empty, used where the original schema sends
// no payload.
type Empty struct{}

// cacheDescriptorHeader is the metadata key carrying the consumer's cache
// descriptor on subscribe: custom-header-1 = JSON
// {"lastSequence":int,"sessionId":str,"chunkCount":int}.
const cacheDescriptorHeader = "custom-header-1"

// cacheDescriptorWire is the JSON shape of the custom-header-1 metadata
// value.
type cacheDescriptorWire struct {
	LastSequence int32  `json:"lastSequence"`
	SessionID    string `json:"sessionId"`
	ChunkCount   int32  `json:"chunkCount"`
}
