package cluster

import (
	"fmt"

	"github.com/Faultbox/patchsort/internal/arena"
	"github.com/Faultbox/patchsort/internal/mesh"
)

// Options controls Build.
type Options struct {
	// CacheSize is the simulated post-transform vertex cache size.
	CacheSize int
	// Alpha is used directly as the overdraw partition threshold lambda.
	Alpha float32
}

// DefaultOptions returns the settings used for the character datasets.
func DefaultOptions() Options {
	return Options{CacheSize: 20, Alpha: 0.85}
}

// Clustering is a cache-optimized index buffer split into patches.
type Clustering struct {
	Indices   mesh.IndexBuffer
	Partition Partition
	// InputACMR is the miss ratio of the input order under the same cache.
	InputACMR float32
	// ACMR is the miss ratio reported by the fan sort.
	ACMR float32
	// SortClusters is the number of clusters before the overdraw split.
	SortClusters int
}

// NumPatches returns the number of patches.
func (c *Clustering) NumPatches() int {
	return c.Partition.Len()
}

// Build reorders ib for the vertex cache and partitions the result into
// patches. A partition that does not cover exactly every face is reported as
// ErrBoundaryViolation; nothing downstream can use it.
//
// a may be nil, in which case a private arena is allocated for the call.
func Build(ib mesh.IndexBuffer, numVertices int, opts Options, a *arena.Arena) (*Clustering, error) {
	if a == nil {
		a = arena.New(arena.ScratchSize(numVertices, ib.NumFaces(), opts.CacheSize))
	}

	sorted, err := SortFans(ib, numVertices, opts.CacheSize, a)
	if err != nil {
		return nil, fmt.Errorf("fan sort: %w", err)
	}

	part, err := PartitionOverdraw(sorted.Indices, sorted.Clusters, opts.CacheSize, opts.Alpha, a)
	if err != nil {
		return nil, fmt.Errorf("overdraw partition: %w", err)
	}

	return &Clustering{
		Indices:      sorted.Indices,
		Partition:    part,
		InputACMR:    SimulateACMR(ib, opts.CacheSize),
		ACMR:         sorted.ACMR,
		SortClusters: sorted.Clusters.Len(),
	}, nil
}

// SimulateACMR returns the miss ratio of drawing ib in order through a FIFO
// cache of cacheSize entries.
func SimulateACMR(ib mesh.IndexBuffer, cacheSize int) float32 {
	numFaces := ib.NumFaces()
	if numFaces == 0 || cacheSize < 1 {
		return 0
	}
	// Stamp-based FIFO: a vertex is cached if it entered within the last
	// cacheSize misses.
	stamp := make(map[uint32]int, cacheSize*4)
	misses := 0
	for _, v := range ib[:3*numFaces] {
		if s, ok := stamp[v]; ok && misses-s <= cacheSize {
			continue
		}
		stamp[v] = misses
		misses++
	}
	return float32(misses) / float32(numFaces)
}
