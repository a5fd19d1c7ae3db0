package patch

import (
	"cmp"
	"slices"

	"github.com/Faultbox/patchsort/internal/cluster"
	"github.com/Faultbox/patchsort/internal/mesh"
	"github.com/Faultbox/patchsort/pkg/math"
)

// Direction selects the depth order of patches.
type Direction int

const (
	// FrontToBack draws the nearest patch first.
	FrontToBack Direction = iota
	// BackToFront draws the farthest patch first.
	BackToFront
)

// String returns the config spelling of d.
func (d Direction) String() string {
	if d == BackToFront {
		return "back-to-front"
	}
	return "front-to-back"
}

// ParseDirection parses "front-to-back" or "back-to-front".
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "front-to-back", "":
		return FrontToBack, true
	case "back-to-front":
		return BackToFront, true
	}
	return FrontToBack, false
}

// Order returns patch ids sorted by distance from viewpoint. Equal distances
// keep ascending patch id in both directions.
func Order(viewpoint math.Vec3, centroids []math.Vec3, dir Direction) []int {
	dist := make([]float32, len(centroids))
	for i, c := range centroids {
		dist[i] = viewpoint.Distance(c)
	}
	return SortByKey(dist, dir)
}

// SortByKey returns indices of keys in stable ascending (FrontToBack) or
// descending (BackToFront) key order.
func SortByKey(keys []float32, dir Direction) []int {
	ids := make([]int, len(keys))
	for i := range ids {
		ids[i] = i
	}
	slices.SortStableFunc(ids, func(a, b int) int {
		if dir == BackToFront {
			return cmp.Compare(keys[b], keys[a])
		}
		return cmp.Compare(keys[a], keys[b])
	})
	return ids
}

// Flatten concatenates the faces of each patch in order into dst, which is
// grown as needed, and returns it.
func Flatten(ib mesh.IndexBuffer, part cluster.Partition, order []int, dst mesh.IndexBuffer) mesh.IndexBuffer {
	dst = dst[:0]
	for _, id := range order {
		dst = append(dst, part.Faces(ib, id)...)
	}
	return dst
}

// DepthSort orders patches from viewpoint and returns the draw-ready buffer.
func DepthSort(viewpoint math.Vec3, centroids []math.Vec3, ib mesh.IndexBuffer, part cluster.Partition, dir Direction) mesh.IndexBuffer {
	order := Order(viewpoint, centroids, dir)
	return Flatten(ib, part, order, make(mesh.IndexBuffer, 0, len(ib)))
}
