// Package cluster reorders triangle index buffers for vertex-cache reuse and
// splits the result into patches that can be drawn in any order.
package cluster

import (
	"errors"
	"fmt"

	"github.com/Faultbox/patchsort/internal/mesh"
)

// ErrBoundaryViolation reports a partition whose offsets are not strictly
// increasing from 0 to the face count.
var ErrBoundaryViolation = errors.New("cluster boundary violation")

// Partition holds face offsets into an index buffer. Patch i covers faces
// [p[i], p[i+1]). A valid partition starts at 0, increases strictly and ends
// at the face count.
type Partition []int

// Len returns the number of patches.
func (p Partition) Len() int {
	if len(p) == 0 {
		return 0
	}
	return len(p) - 1
}

// Range returns the face range of patch i.
func (p Partition) Range(i int) (start, end int) {
	return p[i], p[i+1]
}

// Size returns the number of faces in patch i.
func (p Partition) Size(i int) int {
	return p[i+1] - p[i]
}

// Faces returns the faces of patch i as a sub-slice of ib.
func (p Partition) Faces(ib mesh.IndexBuffer, i int) mesh.IndexBuffer {
	return ib.Faces(p[i], p[i+1])
}

// Validate checks the partition invariant against numFaces.
func (p Partition) Validate(numFaces int) error {
	if len(p) < 2 {
		if numFaces == 0 && len(p) == 1 && p[0] == 0 {
			return nil
		}
		return fmt.Errorf("%w: %d offsets for %d faces", ErrBoundaryViolation, len(p), numFaces)
	}
	if p[0] != 0 {
		return fmt.Errorf("%w: first offset is %d", ErrBoundaryViolation, p[0])
	}
	for i := 1; i < len(p); i++ {
		if p[i] <= p[i-1] {
			return fmt.Errorf("%w: offset %d (%d) does not follow %d", ErrBoundaryViolation, i, p[i], p[i-1])
		}
	}
	if last := p[len(p)-1]; last != numFaces {
		return fmt.Errorf("%w: last offset %d, want %d", ErrBoundaryViolation, last, numFaces)
	}
	return nil
}
