package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/Faultbox/patchsort/pkg/math"
)

// ReadIndices reads whitespace-separated vertex indices. count is the number
// of faces to read; 0 reads every value in r.
func ReadIndices(r io.Reader, count int) (IndexBuffer, error) {
	var ib IndexBuffer
	err := scanValues(r, 3*count, func(tok string) error {
		v, err := strconv.ParseUint(tok, 10, 32)
		if err != nil {
			return err
		}
		ib = append(ib, uint32(v))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ib, nil
}

// ReadPositions reads whitespace-separated x y z triples. count is the number
// of points to read; 0 reads every value in r.
func ReadPositions(r io.Reader, count int) ([]math.Vec3, error) {
	var flat []float32
	err := scanValues(r, 3*count, func(tok string) error {
		v, err := strconv.ParseFloat(tok, 32)
		if err != nil {
			return err
		}
		flat = append(flat, float32(v))
		return nil
	})
	if err != nil {
		return nil, err
	}

	pts := make([]math.Vec3, len(flat)/3)
	for i := range pts {
		pts[i] = math.Vec3From(flat[3*i:])
	}
	return pts, nil
}

// ReadViewpoints reads count camera positions, or all of them when count
// is 0. The format is the same as for vertex positions.
func ReadViewpoints(r io.Reader, count int) ([]math.Vec3, error) {
	return ReadPositions(r, count)
}

// scanValues feeds up to want tokens to fn (every token when want is 0).
// It fails when fewer than want tokens exist or when the total is not a
// multiple of three.
func scanValues(r io.Reader, want int, fn func(string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	n := 0
	for (want == 0 || n < want) && sc.Scan() {
		if err := fn(sc.Text()); err != nil {
			return fmt.Errorf("%w: value %d: %v", ErrMalformedInput, n, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if n < want {
		return fmt.Errorf("%w: expected %d values, found %d", ErrMalformedInput, want, n)
	}
	if n%3 != 0 {
		return fmt.Errorf("%w: %d values is not a multiple of 3", ErrMalformedInput, n)
	}
	return nil
}

// LoadIndices reads an index file. See ReadIndices.
func LoadIndices(path string, count int) (IndexBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ib, err := ReadIndices(f, count)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ib, nil
}

// LoadPositions reads a vertex or viewpoint file. See ReadPositions.
func LoadPositions(path string, count int) ([]math.Vec3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pts, err := ReadPositions(f, count)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pts, nil
}

// LoadSequence reads a face file and one position file per frame, in order,
// and validates the result.
func LoadSequence(facePath string, framePaths []string) (*Sequence, error) {
	ib, err := LoadIndices(facePath, 0)
	if err != nil {
		return nil, err
	}
	seq := &Sequence{Indices: ib, Frames: make([][]math.Vec3, 0, len(framePaths))}
	for _, path := range framePaths {
		pts, err := LoadPositions(path, 0)
		if err != nil {
			return nil, err
		}
		seq.Frames = append(seq.Frames, pts)
	}
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	return seq, nil
}

// WriteIndices writes one index per line.
func WriteIndices(w io.Writer, ib IndexBuffer) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 16)
	for _, v := range ib {
		buf = strconv.AppendUint(buf[:0], uint64(v), 10)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveIndices writes an index file. See WriteIndices.
func SaveIndices(path string, ib IndexBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteIndices(f, ib); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WritePositions writes one "x y z" line per point.
func WritePositions(w io.Writer, pts []math.Vec3) error {
	bw := bufio.NewWriter(w)
	buf := make([]byte, 0, 48)
	for _, p := range pts {
		buf = strconv.AppendFloat(buf[:0], float64(p.X), 'g', -1, 32)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, float64(p.Y), 'g', -1, 32)
		buf = append(buf, ' ')
		buf = strconv.AppendFloat(buf, float64(p.Z), 'g', -1, 32)
		buf = append(buf, '\n')
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SavePositions writes a position file. See WritePositions.
func SavePositions(path string, pts []math.Vec3) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePositions(f, pts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
