package cluster

import (
	"fmt"
	gomath "math"

	"github.com/Faultbox/patchsort/internal/arena"
	"github.com/Faultbox/patchsort/internal/mesh"
)

// FanSort is the output of SortFans.
type FanSort struct {
	Indices  mesh.IndexBuffer
	Clusters Partition
	// ACMR is the simulated average cache miss ratio (misses per face).
	ACMR float32
}

// SortFans reorders the faces of in for a FIFO vertex cache of cacheSize
// entries using a linear-time greedy fan traversal. Faces are emitted whole,
// keeping their index order. Cluster boundaries are cut wherever the walk has
// to restart on a vertex that left the cache more than 2*cacheSize misses ago.
//
// a may be nil, in which case a private arena is allocated for the call.
func SortFans(in mesh.IndexBuffer, numVertices, cacheSize int, a *arena.Arena) (*FanSort, error) {
	if cacheSize < 3 {
		return nil, fmt.Errorf("%w: cache size %d, need at least 3", mesh.ErrMalformedInput, cacheSize)
	}
	if err := in.Validate(numVertices); err != nil {
		return nil, err
	}
	numFaces := in.NumFaces()
	n3 := len(in)
	if numFaces == 0 {
		return &FanSort{Indices: mesh.IndexBuffer{}, Clusters: Partition{0}}, nil
	}
	if n3 > gomath.MaxInt32 {
		return nil, fmt.Errorf("%w: %d indices exceed the int32 range", mesh.ErrMalformedInput, n3)
	}

	if a == nil {
		a = arena.New(arena.ScratchSize(numVertices, numFaces, cacheSize))
	}
	defer a.Release(a.Mark())

	emitted, err := arena.Alloc[int32](a, numFaces)
	if err != nil {
		return nil, err
	}
	fanList, err := arena.Alloc[int32](a, numVertices)
	if err != nil {
		return nil, err
	}
	fanPos, err := arena.Alloc[int32](a, numVertices)
	if err != nil {
		return nil, err
	}
	triList, err := arena.Alloc[int32](a, n3)
	if err != nil {
		return nil, err
	}
	startList, err := arena.Alloc[int32](a, n3)
	if err != nil {
		return nil, err
	}
	// remValence and cachePos are keyed by fan start offset, not vertex id.
	remValence, err := arena.Alloc[int32](a, n3)
	if err != nil {
		return nil, err
	}
	// The extra slot is read when the forward scan runs off the end; it stays
	// zero, which is always out of cache.
	cachePos, err := arena.Alloc[int32](a, n3+1)
	if err != nil {
		return nil, err
	}

	out := make(mesh.IndexBuffer, 0, n3)
	clusters := Partition{0}
	cache := int32(cacheSize)

	// Count fan sizes and list vertices in order of first use.
	nv := 0
	for _, ind := range in {
		fanPos[ind]++
		if fanPos[ind] == 1 {
			fanList[nv] = int32(ind)
			nv++
		}
	}

	// Running sum turns counts into fan end offsets; the valence of each fan is
	// stored at its start offset.
	var sum int32
	for _, v := range fanList[:nv] {
		remValence[sum] = fanPos[v]
		fanPos[v] += sum
		sum = fanPos[v]
	}

	// Bucket every corner by vertex. Afterwards fanPos[v] is the start of v's
	// fan in triList, and each face appears once per corner.
	for i, ind := range in {
		fanPos[ind]--
		triList[fanPos[ind]] = int32(i)
	}

	curCachePos := 1 + cache // so that cache position 0 is out of cache
	tail := 0
	lowi := 0
	i := 0

	for lowi < n3 {
		best := int32(gomath.MinInt32)
		next := int32(-1)
		id := in[triList[i]]
		curCachePosFan := curCachePos

		// Emit every face of the fan around id that is still pending.
		for i < n3 && in[triList[i]] == id {
			tri := triList[i] / 3
			emitted[tri]++
			if emitted[tri] == 1 {
				for _, v := range in[3*tri : 3*tri+3] {
					out = append(out, v)

					x := fanPos[v]
					miss := curCachePos-cachePos[x] > cache
					if miss {
						cachePos[x] = curCachePos
						curCachePos++
					}

					val := remValence[x] - 1
					remValence[x] = val
					if val > 0 && v != id {
						if miss {
							startList[tail] = int32(v)
							tail++
						}
						f := curCachePosFan - cachePos[x]
						if f+2*val > cache {
							f = 0
						}
						if f > best {
							best = f
							next = int32(v)
						}
					}
				}
			}

			if i == lowi {
				lowi++
			}
			i++
		}

		// A zero fan position marks id as done.
		fanPos[id] = 0

		if next >= 0 {
			i = int(fanPos[next])
			continue
		}

		found := false
		for tail > 0 {
			tail--
			i = int(fanPos[startList[tail]])
			if i > 0 {
				found = true
				break
			}
		}
		if !found {
			for lowi < n3 && fanPos[in[triList[lowi]]] == 0 {
				lowi++
			}
			i = lowi
		}

		emittedFaces := len(out) / 3
		if clusters[len(clusters)-1] != emittedFaces && curCachePos-cachePos[i] > 2*cache {
			clusters = append(clusters, emittedFaces)
		}
	}

	if clusters[len(clusters)-1] != numFaces {
		clusters = append(clusters, numFaces)
	}

	return &FanSort{
		Indices:  out,
		Clusters: clusters,
		ACMR:     float32(curCachePos-cache-1) / float32(numFaces),
	}, nil
}
