// Package mesh holds the triangle mesh types shared by the clustering
// pipeline and reads the plain-text dataset files they come from.
package mesh

import (
	"errors"
	"fmt"

	"github.com/Faultbox/patchsort/pkg/math"
)

// ErrMalformedInput reports index or position data that violates the mesh
// invariants or cannot be parsed.
var ErrMalformedInput = errors.New("malformed mesh input")

// IndexBuffer is a flat triangle list, three vertex indices per face.
type IndexBuffer []uint32

// NumFaces returns the number of faces.
func (ib IndexBuffer) NumFaces() int {
	return len(ib) / 3
}

// Face returns the three indices of face f.
func (ib IndexBuffer) Face(f int) [3]uint32 {
	return [3]uint32{ib[3*f], ib[3*f+1], ib[3*f+2]}
}

// Faces returns the sub-buffer holding faces [start, end).
func (ib IndexBuffer) Faces(start, end int) IndexBuffer {
	return ib[3*start : 3*end]
}

// Validate checks that ib is a whole number of faces referencing vertices
// below numVertices.
func (ib IndexBuffer) Validate(numVertices int) error {
	if len(ib)%3 != 0 {
		return fmt.Errorf("%w: %d indices is not a whole number of faces", ErrMalformedInput, len(ib))
	}
	for i, v := range ib {
		if int(v) >= numVertices {
			return fmt.Errorf("%w: index %d at position %d, only %d vertices", ErrMalformedInput, v, i, numVertices)
		}
	}
	return nil
}

// MaxIndex returns one past the largest referenced vertex index.
func (ib IndexBuffer) MaxIndex() int {
	n := 0
	for _, v := range ib {
		n = max(n, int(v)+1)
	}
	return n
}

// Mesh is one frame of geometry.
type Mesh struct {
	Positions []math.Vec3
	Indices   IndexBuffer
}

// Sequence is an animated mesh: every frame shares the index buffer and has
// its own vertex positions.
type Sequence struct {
	Indices IndexBuffer
	Frames  [][]math.Vec3
}

// NumFrames returns the number of animation frames.
func (s *Sequence) NumFrames() int {
	return len(s.Frames)
}

// NumVertices returns the per-frame vertex count.
func (s *Sequence) NumVertices() int {
	if len(s.Frames) == 0 {
		return 0
	}
	return len(s.Frames[0])
}

// Frame returns frame i as a Mesh.
func (s *Sequence) Frame(i int) Mesh {
	return Mesh{Positions: s.Frames[i], Indices: s.Indices}
}

// Validate checks that every frame has the same vertex count and that the
// index buffer fits it.
func (s *Sequence) Validate() error {
	if len(s.Frames) == 0 {
		return fmt.Errorf("%w: sequence has no frames", ErrMalformedInput)
	}
	nv := len(s.Frames[0])
	for i, f := range s.Frames {
		if len(f) != nv {
			return fmt.Errorf("%w: frame %d has %d vertices, frame 0 has %d", ErrMalformedInput, i, len(f), nv)
		}
	}
	return s.Indices.Validate(nv)
}
