// Package patch computes per-patch geometry for each animation frame and
// orders patches by distance from a viewpoint.
package patch

import (
	"fmt"

	"github.com/Faultbox/patchsort/internal/arena"
	"github.com/Faultbox/patchsort/internal/cluster"
	"github.com/Faultbox/patchsort/internal/mesh"
	"github.com/Faultbox/patchsort/pkg/math"
)

// Patch is the geometry of one cluster in one frame.
type Patch struct {
	// Centroid is the area-weighted mean of the patch's face corners.
	Centroid math.Vec3
	// Normal is the unit sum of the patch's face cross products.
	Normal math.Vec3
	// Area is the total triangle area.
	Area float32
}

// accum collects one patch's sums in float64. Its size is budgeted by
// arena.ScratchSize.
type accum struct {
	pos    [3]float64 // sum of area * corner
	normal [3]float64
	corner [3]float64 // unweighted corner sum, for zero-area patches
	area   float64
}

// Compute returns the patches of one frame. Faces with zero area add nothing
// to the weighted sums; a patch made only of such faces falls back to the
// plain mean of its corners and a zero normal.
//
// a may be nil, in which case a private arena is allocated for the call.
func Compute(positions []math.Vec3, ib mesh.IndexBuffer, part cluster.Partition, a *arena.Arena) ([]Patch, error) {
	if err := part.Validate(ib.NumFaces()); err != nil {
		return nil, err
	}
	if err := ib.Validate(len(positions)); err != nil {
		return nil, err
	}

	n := part.Len()
	if a == nil {
		a = arena.New(arena.ScratchSize(0, n, 0))
	}
	defer a.Release(a.Mark())

	acc, err := arena.Alloc[accum](a, n)
	if err != nil {
		return nil, err
	}

	for c := 0; c < n; c++ {
		s := &acc[c]
		start, end := part.Range(c)
		for f := start; f < end; f++ {
			idx := ib.Face(f)
			p0, p1, p2 := positions[idx[0]], positions[idx[1]], positions[idx[2]]

			cross := p1.Sub(p0).Cross(p2.Sub(p0))
			area := float64(cross.Length()) / 2
			sum := p0.Add(p1).Add(p2)

			s.pos[0] += area * float64(sum.X)
			s.pos[1] += area * float64(sum.Y)
			s.pos[2] += area * float64(sum.Z)
			s.normal[0] += float64(cross.X)
			s.normal[1] += float64(cross.Y)
			s.normal[2] += float64(cross.Z)
			s.corner[0] += float64(sum.X)
			s.corner[1] += float64(sum.Y)
			s.corner[2] += float64(sum.Z)
			s.area += area
		}
	}

	patches := make([]Patch, n)
	for c := range patches {
		s := &acc[c]
		p := &patches[c]
		p.Area = float32(s.area)
		if s.area > 0 {
			d := 3 * s.area
			p.Centroid = math.Vec3{X: float32(s.pos[0] / d), Y: float32(s.pos[1] / d), Z: float32(s.pos[2] / d)}
			p.Normal = math.Vec3{X: float32(s.normal[0]), Y: float32(s.normal[1]), Z: float32(s.normal[2])}.Normalize()
		} else {
			d := 3 * float64(part.Size(c))
			p.Centroid = math.Vec3{X: float32(s.corner[0] / d), Y: float32(s.corner[1] / d), Z: float32(s.corner[2] / d)}
		}
	}
	return patches, nil
}

// ComputeFrames runs Compute for every frame of seq with one shared arena.
// The result is indexed [frame][patch].
func ComputeFrames(seq *mesh.Sequence, ib mesh.IndexBuffer, part cluster.Partition, a *arena.Arena) ([][]Patch, error) {
	if a == nil {
		a = arena.New(arena.ScratchSize(0, part.Len(), 0))
	}
	frames := make([][]Patch, seq.NumFrames())
	for i, pos := range seq.Frames {
		p, err := Compute(pos, ib, part, a)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		frames[i] = p
	}
	return frames, nil
}

// Centroids extracts the centroids of patches.
func Centroids(patches []Patch) []math.Vec3 {
	out := make([]math.Vec3, len(patches))
	for i, p := range patches {
		out[i] = p.Centroid
	}
	return out
}

// FrameCentroids extracts centroids for every frame, indexed [frame][patch].
func FrameCentroids(frames [][]Patch) [][]math.Vec3 {
	out := make([][]math.Vec3, len(frames))
	for i, f := range frames {
		out[i] = Centroids(f)
	}
	return out
}

// MeanCentroids averages each patch's centroid over all frames.
func MeanCentroids(frames [][]math.Vec3) []math.Vec3 {
	if len(frames) == 0 {
		return nil
	}
	sums := make([][3]float64, len(frames[0]))
	for _, f := range frames {
		for j, c := range f {
			sums[j][0] += float64(c.X)
			sums[j][1] += float64(c.Y)
			sums[j][2] += float64(c.Z)
		}
	}
	n := float64(len(frames))
	out := make([]math.Vec3, len(sums))
	for j, s := range sums {
		out[j] = math.Vec3{X: float32(s[0] / n), Y: float32(s[1] / n), Z: float32(s[2] / n)}
	}
	return out
}

// WeightedCentroid returns the area-weighted centroid of a set of patches.
func WeightedCentroid(patches []Patch) math.Vec3 {
	var sum [3]float64
	var area float64
	for _, p := range patches {
		w := float64(p.Area)
		sum[0] += w * float64(p.Centroid.X)
		sum[1] += w * float64(p.Centroid.Y)
		sum[2] += w * float64(p.Centroid.Z)
		area += w
	}
	if area == 0 {
		return math.Vec3{}
	}
	return math.Vec3{X: float32(sum[0] / area), Y: float32(sum[1] / area), Z: float32(sum[2] / area)}
}
