// Package slamtype holds the plain data types shared by every component of
// the relay: points, poses, chunks and session records. None of these types
// own any behavior beyond small accessors; they exist so the ingestion
// pipeline, chunk store, and consumer streams all speak the same vocabulary.
package slamtype

// Point is a single SLAM sample: a position plus an optional color.
//
// Color is a pointer triple rather than three floats so that "absent" can be
// represented without a sentinel value that might collide with a real color.
type Point struct {
	X, Y, Z float64
	R, G, B *float64
}

// HasColor reports whether the point carries color information.
func (p Point) HasColor() bool {
	return p.R != nil && p.G != nil && p.B != nil
}

// Pose is an opaque 4x4 transform, row-major, 16 scalars. The relay never
// interprets its contents.
type Pose struct {
	Matrix [16]float64
}

// Chunk is the atomic, immutable unit of retained history.
type Chunk struct {
	ChunkID         string
	SequenceNumber  int32
	SessionID       string
	TimestampMillis int64
	Points          []Point
	// Poses is aligned by index with Points; there are never more poses
	// than points.
	Poses []Pose
	// IsKeyframe is true for a session's first published chunk and false
	// for every chunk after it, letting a consumer recognize the start of
	// a session's history without inspecting the sequence number.
	IsKeyframe bool
}

// Session is the single live-or-not production record.
type Session struct {
	SessionID        string
	StartTimeMillis  int64
	IsActive         bool
	ClientsConnected int32
	TotalChunks      int32
}

// Live reports whether the session is live: active and non-empty.
func (s Session) Live() bool {
	return s.IsActive && s.SessionID != ""
}

// CacheDescriptor is the consumer-supplied cache state carried in the
// subscribe request's metadata header, describing what the consumer already
// holds so the server knows what to backfill.
type CacheDescriptor struct {
	LastSequence int32
	SessionID    string
	ChunkCount   int32
}

// SyncStatus is the inventory snapshot returned by sync_status.
type SyncStatus struct {
	SessionID            string
	TotalChunks          int32
	LatestSequenceNumber int32
	AvailableChunkIDs    []string
}
