package cluster

import (
	"fmt"

	"github.com/Faultbox/patchsort/internal/arena"
	"github.com/Faultbox/patchsort/internal/mesh"
)

// PartitionOverdraw refines clusters of a cache-optimized index buffer into
// smaller patches. Within each cluster it simulates a FIFO vertex cache of
// cacheSize entries and cuts a new patch as soon as the running miss ratio of
// the current patch falls below lambda. Smaller patches give the orderer more
// freedom against overdraw at the cost of cache efficiency; lambda sets the
// trade-off.
//
// The result is at least as fine as clusters. a may be nil.
func PartitionOverdraw(ib mesh.IndexBuffer, clusters Partition, cacheSize int, lambda float32, a *arena.Arena) (Partition, error) {
	numFaces := ib.NumFaces()
	if err := clusters.Validate(numFaces); err != nil {
		return nil, fmt.Errorf("input clusters: %w", err)
	}
	if cacheSize < 1 {
		return nil, fmt.Errorf("%w: cache size %d", mesh.ErrMalformedInput, cacheSize)
	}

	if a == nil {
		a = arena.New(arena.ScratchSize(0, 0, cacheSize))
	}
	defer a.Release(a.Mark())

	cache, err := arena.Alloc[int64](a, cacheSize)
	if err != nil {
		return nil, err
	}
	reset := func() {
		for m := range cache {
			cache[m] = -1
		}
	}

	out := make(Partition, 0, len(clusters))
	for c := 0; c < clusters.Len(); c++ {
		start, end := clusters.Range(c)
		out = append(out, start)

		reset()
		head := 0
		misses := 0
		base := start // first face of the patch being grown

		for f := start; f < end; f++ {
			for _, v := range ib.Face(f) {
				if !contains(cache, int64(v)) {
					misses++
					cache[head] = int64(v)
					head++
					if head == cacheSize {
						head = 0
					}
				}
			}

			k := f - base
			est := float32(misses) / float32(k+1)
			if k > 0 && lambda > est {
				// Face f opens the next patch and is simulated again on an
				// empty cache.
				out = append(out, f)
				base = f
				misses = 0
				reset()
				f--
			}
		}
	}
	out = append(out, numFaces)

	if err := out.Validate(numFaces); err != nil {
		return nil, err
	}
	return out, nil
}

// contains is a linear membership test; cache sizes are small (20-32).
func contains(cache []int64, v int64) bool {
	for _, c := range cache {
		if c == v {
			return true
		}
	}
	return false
}
