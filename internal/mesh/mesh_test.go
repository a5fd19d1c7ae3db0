package mesh

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/patchsort/pkg/math"
)

func TestReadIndicesAll(t *testing.T) {
	ib, err := ReadIndices(strings.NewReader("0 \n1 \n2 \n2\n1\n3\n"), 0)
	if err != nil {
		t.Fatalf("ReadIndices: %v", err)
	}
	want := IndexBuffer{0, 1, 2, 2, 1, 3}
	if len(ib) != len(want) {
		t.Fatalf("got %v, want %v", ib, want)
	}
	for i := range want {
		if ib[i] != want[i] {
			t.Errorf("ib[%d] = %d, want %d", i, ib[i], want[i])
		}
	}
	if ib.NumFaces() != 2 {
		t.Errorf("NumFaces = %d, want 2", ib.NumFaces())
	}
	if ib.Face(1) != [3]uint32{2, 1, 3} {
		t.Errorf("Face(1) = %v", ib.Face(1))
	}
}

func TestReadIndicesCount(t *testing.T) {
	ib, err := ReadIndices(strings.NewReader("0 1 2 3 4 5 6"), 2)
	if err != nil {
		t.Fatalf("ReadIndices: %v", err)
	}
	if len(ib) != 6 {
		t.Errorf("read %d indices, want 6", len(ib))
	}
}

func TestReadIndicesErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		count int
	}{
		{"short file", "0 1 2", 2},
		{"not a multiple of three", "0 1 2 3", 0},
		{"negative index", "0 -1 2", 0},
		{"garbage", "0 x 2", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadIndices(strings.NewReader(tt.input), tt.count)
			if !errors.Is(err, ErrMalformedInput) {
				t.Errorf("expected ErrMalformedInput, got %v", err)
			}
		})
	}
}

func TestReadPositions(t *testing.T) {
	pts, err := ReadPositions(strings.NewReader("1.5\n-2\n3e1\n0 0 0\n"), 0)
	if err != nil {
		t.Fatalf("ReadPositions: %v", err)
	}
	if len(pts) != 2 {
		t.Fatalf("got %d points, want 2", len(pts))
	}
	if pts[0] != (math.Vec3{X: 1.5, Y: -2, Z: 30}) {
		t.Errorf("pts[0] = %v", pts[0])
	}
}

func TestValidate(t *testing.T) {
	ib := IndexBuffer{0, 1, 2, 2, 1, 3}
	if err := ib.Validate(4); err != nil {
		t.Errorf("Validate(4): %v", err)
	}
	if err := ib.Validate(3); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("Validate(3) = %v, want ErrMalformedInput", err)
	}
	if ib.MaxIndex() != 4 {
		t.Errorf("MaxIndex = %d, want 4", ib.MaxIndex())
	}
}

func TestSequenceValidate(t *testing.T) {
	s := &Sequence{
		Indices: IndexBuffer{0, 1, 2},
		Frames:  [][]math.Vec3{make([]math.Vec3, 3), make([]math.Vec3, 2)},
	}
	if err := s.Validate(); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("mismatched frames: got %v", err)
	}
	s.Frames[1] = make([]math.Vec3, 3)
	if err := s.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if s.NumFrames() != 2 || s.NumVertices() != 3 {
		t.Errorf("NumFrames/NumVertices = %d/%d", s.NumFrames(), s.NumVertices())
	}
	if err := (&Sequence{}).Validate(); err == nil {
		t.Error("empty sequence should not validate")
	}
}

func TestSaveLoadIndices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mean0.txt")
	ib := IndexBuffer{5, 4, 3, 2, 1, 0}
	if err := SaveIndices(path, ib); err != nil {
		t.Fatalf("SaveIndices: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("5\n4\n")) {
		t.Errorf("unexpected file layout %q", data)
	}

	got, err := LoadIndices(path, 0)
	if err != nil {
		t.Fatalf("LoadIndices: %v", err)
	}
	for i := range ib {
		if got[i] != ib[i] {
			t.Errorf("got[%d] = %d, want %d", i, got[i], ib[i])
		}
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := LoadPositions("/nonexistent/frame1v.txt", 0); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadSequence(t *testing.T) {
	dir := t.TempDir()
	face := filepath.Join(dir, "face.txt")
	if err := SaveIndices(face, IndexBuffer{0, 1, 2}); err != nil {
		t.Fatal(err)
	}

	frames := [][]math.Vec3{
		{{X: 0}, {X: 1}, {Y: 1.5}},
		{{X: 0, Z: -2}, {X: 1, Z: -2}, {Y: 1.5, Z: -2}},
	}
	var paths []string
	for i, pts := range frames {
		p := filepath.Join(dir, "frame"+string(rune('1'+i))+"v.txt")
		if err := SavePositions(p, pts); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}

	seq, err := LoadSequence(face, paths)
	if err != nil {
		t.Fatalf("LoadSequence: %v", err)
	}
	if seq.NumFrames() != 2 || seq.NumVertices() != 3 {
		t.Fatalf("got %d frames of %d vertices", seq.NumFrames(), seq.NumVertices())
	}
	if seq.Frames[1][2] != frames[1][2] {
		t.Errorf("frame 1 vertex 2 = %v, want %v", seq.Frames[1][2], frames[1][2])
	}

	// A frame that is too short for the faces must be rejected.
	short := filepath.Join(dir, "short.txt")
	if err := SavePositions(short, frames[0][:2]); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSequence(face, []string{paths[0], short}); !errors.Is(err, ErrMalformedInput) {
		t.Errorf("mismatched frame = %v, want ErrMalformedInput", err)
	}
}

func TestReadViewpoints(t *testing.T) {
	pts, err := ReadViewpoints(strings.NewReader("0 0 300\n300 0 0\n"), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 1 || pts[0] != (math.Vec3{Z: 300}) {
		t.Errorf("got %v", pts)
	}
}
