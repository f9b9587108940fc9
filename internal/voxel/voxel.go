// Package voxel implements the spatial deduplication filter: reduce a point
// cloud to one representative point per occupied voxel.
package voxel

import (
	"math"

	"github.com/slamstream/relay/internal/slamtype"
)

// Key is the integer triple identifying a voxel.
type Key struct {
	X, Y, Z int64
}

// KeyOf computes the voxel key for a position, given edge length v.
//
// KeyOf panics if v <= 0: an invalid edge length is a programmer error, not
// a runtime condition callers can recover from.
func KeyOf(x, y, z, v float64) Key {
	if v <= 0 {
		panic("voxel: edge length must be positive")
	}
	return Key{
		X: int64(math.Floor(x / v)),
		Y: int64(math.Floor(y / v)),
		Z: int64(math.Floor(z / v)),
	}
}

type accumulator struct {
	sumX, sumY, sumZ float64
	count            int
	nearest          slamtype.Point
	nearestDistSq    float64
	hasNearest       bool
}

// Filter reduces points to one representative per occupied voxel. The
// representative's position is the centroid of the voxel's points; its color
// is copied from whichever input point is nearest (squared Euclidean) to
// that centroid, with ties broken by insertion order.
//
// Output order is unspecified; cardinality equals the number of distinct
// voxel keys touched by points. Filter panics if v <= 0.
func Filter(points []slamtype.Point, v float64) []slamtype.Point {
	if v <= 0 {
		panic("voxel: edge length must be positive")
	}
	if len(points) == 0 {
		return nil
	}

	acc := make(map[Key]*accumulator, len(points))
	order := make([]Key, 0, len(points))

	for _, p := range points {
		k := KeyOf(p.X, p.Y, p.Z, v)
		a, ok := acc[k]
		if !ok {
			a = &accumulator{}
			acc[k] = a
			order = append(order, k)
		}
		a.sumX += p.X
		a.sumY += p.Y
		a.sumZ += p.Z
		a.count++
	}

	// second pass: find, for each voxel, the input point nearest its centroid
	centroids := make(map[Key][3]float64, len(acc))
	for k, a := range acc {
		n := float64(a.count)
		centroids[k] = [3]float64{a.sumX / n, a.sumY / n, a.sumZ / n}
	}

	for _, p := range points {
		k := KeyOf(p.X, p.Y, p.Z, v)
		a := acc[k]
		c := centroids[k]
		dx, dy, dz := p.X-c[0], p.Y-c[1], p.Z-c[2]
		distSq := dx*dx + dy*dy + dz*dz
		if !a.hasNearest || distSq < a.nearestDistSq {
			a.hasNearest = true
			a.nearestDistSq = distSq
			a.nearest = p
		}
	}

	out := make([]slamtype.Point, 0, len(order))
	for _, k := range order {
		a := acc[k]
		c := centroids[k]
		out = append(out, slamtype.Point{
			X: c[0], Y: c[1], Z: c[2],
			R: a.nearest.R, G: a.nearest.G, B: a.nearest.B,
		})
	}
	return out
}
