// Package refine assigns every (frame, view) pair of an animated mesh to one
// of K candidate patch orderings and improves those orderings against
// measured overdraw, k-means style.
package refine

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/patchsort/internal/cluster"
	"github.com/Faultbox/patchsort/internal/logger"
	"github.com/Faultbox/patchsort/internal/mesh"
	"github.com/Faultbox/patchsort/internal/patch"
	"github.com/Faultbox/patchsort/pkg/math"
)

// Refinement errors.
var (
	ErrNotInitialized = errors.New("refiner has no means")
	ErrBadPick        = errors.New("invalid pick view")
	ErrOracle         = errors.New("oracle returned an unexpected result")
)

// Oracle measures overdraw. Measure draws order with the vertex positions of
// frame once for every view and returns one overdraw ratio per view. Calls
// block until the measurement is read back.
type Oracle interface {
	Measure(frame int, order mesh.IndexBuffer) ([]float32, error)
}

// State is the mutable refinement state.
type State struct {
	// Means holds the K candidate draw orders.
	Means []mesh.IndexBuffer
	// Assignment[frame][view] is the index of the mean used for that pair.
	Assignment [][]int
	// Ratios[frame][view] is the overdraw measured for the assigned mean.
	Ratios [][]float32
}

// Members returns the (frame, view) pairs assigned to mean k.
func (s *State) Members(k int) []Pair {
	var pairs []Pair
	for f, row := range s.Assignment {
		for v, m := range row {
			if m == k {
				pairs = append(pairs, Pair{Frame: f, View: v})
			}
		}
	}
	return pairs
}

// MeanRatio returns the average recorded ratio over pairs, or over every pair
// when pairs is nil.
func (s *State) MeanRatio(pairs []Pair) float32 {
	var sum float64
	n := 0
	if pairs == nil {
		for _, row := range s.Ratios {
			for _, r := range row {
				sum += float64(r)
				n++
			}
		}
	} else {
		for _, p := range pairs {
			sum += float64(s.Ratios[p.Frame][p.View])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return float32(sum / float64(n))
}

// Pair identifies one frame seen from one view.
type Pair struct {
	Frame int
	View  int
}

// Refiner owns the refinement state for one clustered mesh.
type Refiner struct {
	oracle    Oracle
	indices   mesh.IndexBuffer
	partition cluster.Partition
	centroids [][]math.Vec3 // [frame][patch]
	views     []math.Vec3
	dir       patch.Direction

	state State
}

// New creates a refiner. centroids is indexed [frame][patch] and must match
// the partition; views holds one camera position per view.
func New(oracle Oracle, indices mesh.IndexBuffer, part cluster.Partition, centroids [][]math.Vec3, views []math.Vec3, dir patch.Direction) (*Refiner, error) {
	if err := part.Validate(indices.NumFaces()); err != nil {
		return nil, err
	}
	if len(centroids) == 0 || len(views) == 0 {
		return nil, fmt.Errorf("refine: %d frames and %d views", len(centroids), len(views))
	}
	for f, c := range centroids {
		if len(c) != part.Len() {
			return nil, fmt.Errorf("refine: frame %d has %d centroids for %d patches", f, len(c), part.Len())
		}
	}
	return &Refiner{
		oracle:    oracle,
		indices:   indices,
		partition: part,
		centroids: centroids,
		views:     views,
		dir:       dir,
	}, nil
}

// State returns the current state. The caller must not modify it.
func (r *Refiner) State() *State {
	return &r.state
}

// Init seeds one mean per pick view by depth-sorting the frame-averaged
// patch centroids from that viewpoint.
func (r *Refiner) Init(pickViews []int) error {
	if len(pickViews) == 0 {
		return fmt.Errorf("%w: no views picked", ErrBadPick)
	}
	avg := patch.MeanCentroids(r.centroids)

	means := make([]mesh.IndexBuffer, len(pickViews))
	for k, v := range pickViews {
		if v < 0 || v >= len(r.views) {
			return fmt.Errorf("%w: view %d of %d", ErrBadPick, v, len(r.views))
		}
		means[k] = patch.DepthSort(r.views[v], avg, r.indices, r.partition, r.dir)
	}

	r.state = State{
		Means:      means,
		Assignment: newGrid[int](len(r.centroids), len(r.views)),
		Ratios:     newGrid[float32](len(r.centroids), len(r.views)),
	}
	logger.Info("means initialized",
		zap.Int("means", len(means)),
		zap.Ints("views", pickViews),
		zap.Int("patches", r.partition.Len()),
	)
	return nil
}

// Assign measures every mean on every frame and gives each (frame, view)
// pair to the mean with the lowest overdraw. Ties go to the lower mean index.
func (r *Refiner) Assign() error {
	if len(r.state.Means) == 0 {
		return ErrNotInitialized
	}
	for f := range r.centroids {
		for k, order := range r.state.Means {
			ratios, err := r.measure(f, order)
			if err != nil {
				return fmt.Errorf("frame %d mean %d: %w", f, k, err)
			}
			for v, ratio := range ratios {
				if k == 0 || ratio < r.state.Ratios[f][v] {
					r.state.Assignment[f][v] = k
					r.state.Ratios[f][v] = ratio
				}
			}
		}
	}
	logger.Debug("assignment pass", zap.Float32("mean_ratio", r.state.MeanRatio(nil)))
	return nil
}

// UpdateMean proposes a new order for mean k: patches sorted by their total
// distance to the viewpoints of k's members, each measured against that
// member's frame. The proposal replaces the mean only if the members' average
// overdraw strictly improves. Means without members are left alone.
func (r *Refiner) UpdateMean(k int) (bool, error) {
	if k < 0 || k >= len(r.state.Means) {
		return false, ErrNotInitialized
	}
	members := r.state.Members(k)
	if len(members) == 0 {
		logger.Debug("mean has no members", zap.Int("mean", k))
		return false, nil
	}
	current := r.state.MeanRatio(members)

	dist := make([]float32, r.partition.Len())
	for _, p := range members {
		view := r.views[p.View]
		for j, c := range r.centroids[p.Frame] {
			dist[j] += view.Distance(c)
		}
	}
	order := patch.SortByKey(dist, r.dir)
	candidate := patch.Flatten(r.indices, r.partition, order, make(mesh.IndexBuffer, 0, len(r.indices)))

	byFrame := make(map[int][]int)
	for _, p := range members {
		byFrame[p.Frame] = append(byFrame[p.Frame], p.View)
	}

	measured := make(map[Pair]float32, len(members))
	var sum float64
	for f := range r.centroids {
		views, ok := byFrame[f]
		if !ok {
			continue
		}
		ratios, err := r.measure(f, candidate)
		if err != nil {
			return false, fmt.Errorf("frame %d candidate %d: %w", f, k, err)
		}
		for _, v := range views {
			measured[Pair{Frame: f, View: v}] = ratios[v]
			sum += float64(ratios[v])
		}
	}
	proposed := float32(sum / float64(len(members)))

	if proposed >= current {
		logger.Debug("mean kept",
			zap.Int("mean", k),
			zap.Float32("current", current),
			zap.Float32("proposed", proposed),
		)
		return false, nil
	}

	r.state.Means[k] = candidate
	for p, ratio := range measured {
		r.state.Ratios[p.Frame][p.View] = ratio
	}
	logger.Info("mean moved",
		zap.Int("mean", k),
		zap.Int("members", len(members)),
		zap.Float32("from", current),
		zap.Float32("to", proposed),
	)
	return true, nil
}

// Update runs UpdateMean on every mean and reports whether any moved.
func (r *Refiner) Update() (bool, error) {
	if len(r.state.Means) == 0 {
		return false, ErrNotInitialized
	}
	moved := false
	for k := range r.state.Means {
		m, err := r.UpdateMean(k)
		if err != nil {
			return false, err
		}
		moved = moved || m
	}
	return moved, nil
}

// Result is the outcome of Run.
type Result struct {
	State      *State
	Iterations int
	Converged  bool
	MeanRatio  float32
}

// Lookup returns the mean index and draw order for a (frame, view) pair.
func (r *Result) Lookup(frame, view int) (int, mesh.IndexBuffer) {
	k := r.State.Assignment[frame][view]
	return k, r.State.Means[k]
}

// Run alternates Assign and Update until no mean moves or maxIterations
// update passes have run. maxIterations <= 0 means no limit.
func (r *Refiner) Run(maxIterations int) (*Result, error) {
	if err := r.Assign(); err != nil {
		return nil, err
	}

	res := &Result{State: &r.state}
	for maxIterations <= 0 || res.Iterations < maxIterations {
		moved, err := r.Update()
		if err != nil {
			return nil, err
		}
		res.Iterations++
		if !moved {
			res.Converged = true
			break
		}
		if err := r.Assign(); err != nil {
			return nil, err
		}
		logger.Info("refinement pass",
			zap.Int("iteration", res.Iterations),
			zap.Float32("mean_ratio", r.state.MeanRatio(nil)),
		)
	}
	res.MeanRatio = r.state.MeanRatio(nil)
	return res, nil
}

func (r *Refiner) measure(frame int, order mesh.IndexBuffer) ([]float32, error) {
	ratios, err := r.oracle.Measure(frame, order)
	if err != nil {
		return nil, err
	}
	if len(ratios) != len(r.views) {
		return nil, fmt.Errorf("%w: %d ratios for %d views", ErrOracle, len(ratios), len(r.views))
	}
	return ratios, nil
}

func newGrid[T any](rows, cols int) [][]T {
	g := make([][]T, rows)
	for i := range g {
		g[i] = make([]T, cols)
	}
	return g
}
