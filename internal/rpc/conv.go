package rpc

import "github.com/slamstream/relay/internal/slamtype"

func pointFromWire(p Point) slamtype.Point {
	out := slamtype.Point{X: p.X, Y: p.Y, Z: p.Z}
	if p.HasRGB {
		r, g, b := p.R, p.G, p.B
		out.R, out.G, out.B = &r, &g, &b
	}
	return out
}

func pointToWire(p slamtype.Point) Point {
	out := Point{X: p.X, Y: p.Y, Z: p.Z}
	if p.HasColor() {
		out.HasRGB = true
		out.R, out.G, out.B = *p.R, *p.G, *p.B
	}
	return out
}

func poseFromWire(p Pose) slamtype.Pose {
	return slamtype.Pose{Matrix: p.Matrix}
}

func poseToWire(p slamtype.Pose) Pose {
	return Pose{Matrix: p.Matrix}
}

// cloudsFromSlamData flattens a SlamData's pointcloudlist into the plain
// [][]slamtype.Point shape the ingestion pipeline consumes.
func cloudsFromSlamData(d SlamData) [][]slamtype.Point {
	clouds := make([][]slamtype.Point, 0, len(d.Pointcloudlist.Pointclouds))
	for _, pc := range d.Pointcloudlist.Pointclouds {
		points := make([]slamtype.Point, 0, len(pc.Points))
		for _, p := range pc.Points {
			points = append(points, pointFromWire(p))
		}
		clouds = append(clouds, points)
	}
	return clouds
}

func posesFromSlamData(d SlamData) []slamtype.Pose {
	poses := make([]slamtype.Pose, 0, len(d.Poselist.Poses))
	for _, p := range d.Poselist.Poses {
		poses = append(poses, poseFromWire(p))
	}
	return poses
}

func chunkToWire(c slamtype.Chunk) DataChunk {
	var pc PointCloud
	for _, p := range c.Points {
		pc.Points = append(pc.Points, pointToWire(p))
	}
	var pose Pose
	if len(c.Poses) > 0 {
		pose = poseToWire(c.Poses[len(c.Poses)-1])
	}
	return DataChunk{
		ChunkID:         c.ChunkID,
		SequenceNumber:  c.SequenceNumber,
		SessionID:       c.SessionID,
		TimestampMillis: c.TimestampMillis,
		Pointcloud:      pc,
		Pose:            pose,
		IsKeyframe:      c.IsKeyframe,
	}
}

// chunkToSlamData is used by subscribe, which streams SlamData rather than
// DataChunk.
func chunkToSlamData(c slamtype.Chunk) SlamData {
	var pcl PointCloudList
	var pc PointCloud
	for _, p := range c.Points {
		pc.Points = append(pc.Points, pointToWire(p))
	}
	pcl.Pointclouds = append(pcl.Pointclouds, pc)

	var pl PoseList
	for _, p := range c.Poses {
		pl.Poses = append(pl.Poses, poseToWire(p))
	}

	return SlamData{
		Pointcloudlist: pcl,
		Poselist:       pl,
		ChunkID:        c.ChunkID,
		SequenceNumber: c.SequenceNumber,
	}
}

func sessionToWire(s slamtype.Session) SessionInfo {
	return SessionInfo{
		SessionID:        s.SessionID,
		StartTimeMillis:  s.StartTimeMillis,
		IsActive:         s.IsActive,
		ClientsConnected: s.ClientsConnected,
		TotalChunks:      s.TotalChunks,
	}
}

func syncStatusToWire(s slamtype.SyncStatus) SyncStatus {
	return SyncStatus{
		SessionID:            s.SessionID,
		TotalChunks:          s.TotalChunks,
		LatestSequenceNumber: s.LatestSequenceNumber,
		AvailableChunkIDs:    s.AvailableChunkIDs,
	}
}
