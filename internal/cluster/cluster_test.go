package cluster

import (
	"errors"
	"math/rand"
	"slices"
	"testing"

	"github.com/Faultbox/patchsort/internal/arena"
	"github.com/Faultbox/patchsort/internal/mesh"
)

// gridMesh returns an n x n grid of quads split into 2*n*n triangles.
func gridMesh(n int) (mesh.IndexBuffer, int) {
	var ib mesh.IndexBuffer
	w := uint32(n + 1)
	for y := uint32(0); y < uint32(n); y++ {
		for x := uint32(0); x < uint32(n); x++ {
			a := y*w + x
			b := a + 1
			c := a + w
			d := c + 1
			ib = append(ib, a, b, d, a, d, c)
		}
	}
	return ib, (n + 1) * (n + 1)
}

// shuffleFaces permutes whole faces with a fixed seed.
func shuffleFaces(ib mesh.IndexBuffer, seed int64) mesh.IndexBuffer {
	r := rand.New(rand.NewSource(seed))
	out := slices.Clone(ib)
	r.Shuffle(out.NumFaces(), func(i, j int) {
		fi, fj := out.Face(i), out.Face(j)
		copy(out[3*i:], fj[:])
		copy(out[3*j:], fi[:])
	})
	return out
}

func sortedFaces(ib mesh.IndexBuffer) [][3]uint32 {
	faces := make([][3]uint32, ib.NumFaces())
	for i := range faces {
		faces[i] = ib.Face(i)
	}
	slices.SortFunc(faces, func(a, b [3]uint32) int {
		for k := 0; k < 3; k++ {
			if a[k] != b[k] {
				return int(a[k]) - int(b[k])
			}
		}
		return 0
	})
	return faces
}

func TestSortFans_SingleFace(t *testing.T) {
	ib := mesh.IndexBuffer{0, 1, 2}
	res, err := SortFans(ib, 3, 3, nil)
	if err != nil {
		t.Fatalf("SortFans: %v", err)
	}
	if !slices.Equal(res.Indices, ib) {
		t.Errorf("indices = %v, want %v", res.Indices, ib)
	}
	if !slices.Equal(res.Clusters, Partition{0, 1}) {
		t.Errorf("clusters = %v, want [0 1]", res.Clusters)
	}
	// Three cold misses for one face.
	if res.ACMR != 3 {
		t.Errorf("ACMR = %v, want 3", res.ACMR)
	}
}

func TestSortFans_DisjointTriangles(t *testing.T) {
	ib := mesh.IndexBuffer{0, 1, 2, 3, 4, 5}
	res, err := SortFans(ib, 6, 3, nil)
	if err != nil {
		t.Fatalf("SortFans: %v", err)
	}
	if !slices.Equal(res.Clusters, Partition{0, 1, 2}) {
		t.Errorf("clusters = %v, want [0 1 2]", res.Clusters)
	}
	if !slices.Equal(res.Indices, ib) {
		t.Errorf("indices = %v, want %v", res.Indices, ib)
	}
}

func TestSortFans_Permutation(t *testing.T) {
	grid, nv := gridMesh(12)
	for _, seed := range []int64{1, 2, 3} {
		in := shuffleFaces(grid, seed)
		res, err := SortFans(in, nv, 20, nil)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if len(res.Indices) != len(in) {
			t.Fatalf("seed %d: %d indices, want %d", seed, len(res.Indices), len(in))
		}
		if !slices.Equal(sortedFaces(res.Indices), sortedFaces(in)) {
			t.Errorf("seed %d: output is not a face permutation of the input", seed)
		}
		if err := res.Clusters.Validate(in.NumFaces()); err != nil {
			t.Errorf("seed %d: %v", seed, err)
		}
	}
}

func TestSortFans_ImprovesCacheReuse(t *testing.T) {
	grid, nv := gridMesh(16)
	in := shuffleFaces(grid, 42)

	res, err := SortFans(in, nv, 20, nil)
	if err != nil {
		t.Fatal(err)
	}
	before := SimulateACMR(in, 20)
	if res.ACMR >= before {
		t.Errorf("ACMR %v not better than input %v", res.ACMR, before)
	}
	// The reported ratio is the same FIFO simulation run over the output.
	if got := SimulateACMR(res.Indices, 20); got != res.ACMR {
		t.Errorf("SimulateACMR(output) = %v, reported %v", got, res.ACMR)
	}
}

func TestSortFans_Errors(t *testing.T) {
	tests := []struct {
		name  string
		ib    mesh.IndexBuffer
		nv    int
		cache int
	}{
		{"partial face", mesh.IndexBuffer{0, 1}, 3, 8},
		{"index out of range", mesh.IndexBuffer{0, 1, 3}, 3, 8},
		{"cache too small", mesh.IndexBuffer{0, 1, 2}, 3, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SortFans(tt.ib, tt.nv, tt.cache, nil)
			if !errors.Is(err, mesh.ErrMalformedInput) {
				t.Errorf("expected ErrMalformedInput, got %v", err)
			}
		})
	}
}

func TestSortFans_SharedArena(t *testing.T) {
	grid, nv := gridMesh(8)
	a := arena.New(arena.ScratchSize(nv, grid.NumFaces(), 16))

	first, err := SortFans(grid, nv, 16, a)
	if err != nil {
		t.Fatal(err)
	}
	if a.Used() != 0 {
		t.Errorf("arena holds %d bytes after the call", a.Used())
	}
	second, err := SortFans(grid, nv, 16, a)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(first.Indices, second.Indices) || !slices.Equal(first.Clusters, second.Clusters) {
		t.Error("reusing the arena changed the result")
	}
}

func TestSortFans_ArenaTooSmall(t *testing.T) {
	grid, nv := gridMesh(4)
	_, err := SortFans(grid, nv, 8, arena.New(16))
	if !errors.Is(err, arena.ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestPartitionOverdraw_Lambda(t *testing.T) {
	grid, nv := gridMesh(10)
	sorted, err := SortFans(grid, nv, 20, nil)
	if err != nil {
		t.Fatal(err)
	}
	numFaces := grid.NumFaces()

	// A miss ratio is never negative, so lambda 0 never cuts.
	same, err := PartitionOverdraw(sorted.Indices, sorted.Clusters, 20, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(same, sorted.Clusters) {
		t.Errorf("lambda 0 changed the partition: %v -> %v", sorted.Clusters, same)
	}

	// At most 3 misses per face, so lambda 10 cuts after every face.
	fine, err := PartitionOverdraw(sorted.Indices, sorted.Clusters, 20, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if fine.Len() != numFaces {
		t.Errorf("lambda 10 gave %d patches, want %d", fine.Len(), numFaces)
	}

	mid, err := PartitionOverdraw(sorted.Indices, sorted.Clusters, 20, 0.85, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := mid.Validate(numFaces); err != nil {
		t.Error(err)
	}
	if mid.Len() < sorted.Clusters.Len() {
		t.Errorf("refined partition has fewer patches (%d) than its input (%d)", mid.Len(), sorted.Clusters.Len())
	}
	// Every input boundary survives.
	for _, b := range sorted.Clusters {
		if _, ok := slices.BinarySearch(mid, b); !ok {
			t.Errorf("input boundary %d missing from %v", b, mid)
		}
	}
}

func TestPartitionOverdraw_BadInput(t *testing.T) {
	ib := mesh.IndexBuffer{0, 1, 2, 3, 4, 5}
	_, err := PartitionOverdraw(ib, Partition{0, 1}, 8, 0.5, nil)
	if !errors.Is(err, ErrBoundaryViolation) {
		t.Errorf("expected ErrBoundaryViolation, got %v", err)
	}
}

func TestBuild_RoundTrip(t *testing.T) {
	grid, nv := gridMesh(14)
	in := shuffleFaces(grid, 7)

	c, err := Build(in, nv, DefaultOptions(), nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := c.Partition.Validate(in.NumFaces()); err != nil {
		t.Fatal(err)
	}

	var joined mesh.IndexBuffer
	for i := 0; i < c.NumPatches(); i++ {
		joined = append(joined, c.Partition.Faces(c.Indices, i)...)
	}
	if !slices.Equal(joined, c.Indices) {
		t.Error("concatenated patches differ from the optimized buffer")
	}
	if c.ACMR >= c.InputACMR {
		t.Errorf("optimized ACMR %v, input %v", c.ACMR, c.InputACMR)
	}
	if c.NumPatches() < c.SortClusters {
		t.Errorf("%d patches from %d sort clusters", c.NumPatches(), c.SortClusters)
	}
}

func TestPartitionValidate(t *testing.T) {
	tests := []struct {
		name string
		p    Partition
		n    int
		ok   bool
	}{
		{"valid", Partition{0, 2, 5}, 5, true},
		{"empty mesh", Partition{0}, 0, true},
		{"nonzero start", Partition{1, 5}, 5, false},
		{"repeated offset", Partition{0, 2, 2, 5}, 5, false},
		{"short", Partition{0, 2, 4}, 5, false},
		{"nil", nil, 5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate(tt.n)
			if (err == nil) != tt.ok {
				t.Errorf("Validate = %v, ok want %v", err, tt.ok)
			}
		})
	}
}
