// Package experiment runs the overdraw experiment end to end: load an
// animated character, cluster it, refine K view-dependent patch orders
// against an oracle and write the results.
package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Faultbox/patchsort/internal/arena"
	"github.com/Faultbox/patchsort/internal/cluster"
	"github.com/Faultbox/patchsort/internal/config"
	"github.com/Faultbox/patchsort/internal/logger"
	"github.com/Faultbox/patchsort/internal/mesh"
	"github.com/Faultbox/patchsort/internal/oracle"
	"github.com/Faultbox/patchsort/internal/patch"
	"github.com/Faultbox/patchsort/internal/refine"
	"github.com/Faultbox/patchsort/pkg/math"
)

// Experiment holds everything loaded and derived before refinement starts.
type Experiment struct {
	cfg *config.Config
	dir patch.Direction

	seq        *mesh.Sequence
	views      []math.Vec3
	clustering *cluster.Clustering
	patches    [][]patch.Patch
	oracle     oracle.Backend

	// open replaces oracle.Open in tests.
	open func(string, [][]math.Vec3, []math.Vec3, oracle.Options) (oracle.Backend, error)
}

// New loads the dataset named by cfg, clusters it and opens the oracle.
// Any missing or malformed input file fails here.
func New(cfg *config.Config) (*Experiment, error) {
	return newExperiment(cfg, oracle.Open)
}

func newExperiment(cfg *config.Config, open func(string, [][]math.Vec3, []math.Vec3, oracle.Options) (oracle.Backend, error)) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dir, ok := patch.ParseDirection(cfg.Refine.Direction)
	if !ok {
		return nil, fmt.Errorf("%w: direction %q", config.ErrInvalid, cfg.Refine.Direction)
	}
	e := &Experiment{cfg: cfg, dir: dir, open: open}

	if err := e.load(); err != nil {
		return nil, err
	}
	if err := e.cluster(); err != nil {
		return nil, err
	}

	opts := oracle.Options{
		Grid: oracle.Grid{
			Cols:       cfg.Canvas.Cols,
			Rows:       cfg.Canvas.Rows,
			CellWidth:  cfg.Canvas.CellWidth,
			CellHeight: cfg.Canvas.CellHeight,
		},
		Camera:  oracle.Camera{FOV: cfg.Canvas.FOV, Near: cfg.Canvas.Near, Far: cfg.Canvas.Far},
		Level:   cfg.Render.FragmentLevel,
		Visible: cfg.Render.Visible,
	}
	b, err := e.open(cfg.Render.Backend, e.seq.Frames, e.views, opts)
	if err != nil {
		return nil, fmt.Errorf("opening %s oracle: %w", cfg.Render.Backend, err)
	}
	e.oracle = b
	return e, nil
}

func (e *Experiment) load() error {
	d := e.cfg.Data
	defer logger.Stage("loading dataset", zap.String("dir", d.Dir()))()

	seq, err := mesh.LoadSequence(d.FacePath(), d.FramePaths())
	if err != nil {
		return fmt.Errorf("loading frames: %w", err)
	}
	views, err := mesh.LoadPositions(d.ViewPath(), d.Views)
	if err != nil {
		return fmt.Errorf("loading viewpoints: %w", err)
	}
	for _, v := range e.cfg.Refine.PickViews {
		if v >= len(views) {
			return fmt.Errorf("%w: pick view %d, only %d viewpoints", config.ErrInvalid, v, len(views))
		}
	}

	e.seq, e.views = seq, views
	logger.Info("dataset loaded",
		zap.Int("frames", seq.NumFrames()),
		zap.Int("vertices", seq.NumVertices()),
		zap.Int("faces", seq.Indices.NumFaces()),
		zap.Int("views", len(views)),
	)
	return nil
}

func (e *Experiment) cluster() error {
	ib := e.seq.Indices
	nv := e.seq.NumVertices()
	c := e.cfg.Cluster
	defer logger.Stage("clustering", zap.Int("faces", ib.NumFaces()))()

	// One arena serves the fan sort, the partitioner and every frame's
	// geometry pass.
	a := arena.New(arena.ScratchSize(nv, ib.NumFaces(), c.CacheSize))

	var err error
	e.clustering, err = cluster.Build(ib, nv, cluster.Options{CacheSize: c.CacheSize, Alpha: c.Alpha}, a)
	if err != nil {
		return err
	}
	logger.Info("mesh clustered",
		zap.Int("sort_clusters", e.clustering.SortClusters),
		zap.Int("patches", e.clustering.NumPatches()),
		zap.Float32("input_acmr", e.clustering.InputACMR),
		zap.Float32("acmr", e.clustering.ACMR),
	)

	e.patches, err = patch.ComputeFrames(e.seq, e.clustering.Indices, e.clustering.Partition, a)
	if err != nil {
		return err
	}
	logger.Debug("scratch arena", zap.Int("peak", a.Peak()), zap.Int("cap", a.Cap()))
	return nil
}

// Clustering returns the cache-optimised clustering.
func (e *Experiment) Clustering() *cluster.Clustering {
	return e.clustering
}

// Summary is written to summary.yaml at the end of a run.
type Summary struct {
	Character  string  `yaml:"character"`
	Animation  string  `yaml:"animation"`
	Backend    string  `yaml:"backend"`
	Direction  string  `yaml:"direction"`
	Frames     int     `yaml:"frames"`
	Views      int     `yaml:"views"`
	Vertices   int     `yaml:"vertices"`
	Faces      int     `yaml:"faces"`
	CacheSize  int     `yaml:"cache_size"`
	Alpha      float32 `yaml:"alpha"`
	InputACMR  float32 `yaml:"input_acmr"`
	ACMR       float32 `yaml:"acmr"`
	Clusters   int     `yaml:"sort_clusters"`
	Patches    int     `yaml:"patches"`
	Means      int     `yaml:"means"`
	PickViews  []int   `yaml:"pick_views,flow"`
	Members    []int   `yaml:"members,flow"` // pairs assigned to each mean
	Iterations int     `yaml:"iterations"`
	Converged  bool    `yaml:"converged"`
	// BaselineRatio is the average overdraw of the cache-optimised order
	// before any view-dependent sorting.
	BaselineRatio float32 `yaml:"baseline_ratio"`
	MeanRatio     float32 `yaml:"mean_ratio"`
	Elapsed       string  `yaml:"elapsed"`
}

// Run measures the baseline, refines the means and writes every output.
func (e *Experiment) Run() (*Summary, error) {
	start := time.Now()

	baseline, err := e.baseline()
	if err != nil {
		return nil, err
	}

	r, err := refine.New(e.oracle, e.clustering.Indices, e.clustering.Partition, patch.FrameCentroids(e.patches), e.views, e.dir)
	if err != nil {
		return nil, err
	}
	if err := r.Init(e.cfg.Refine.PickViews); err != nil {
		return nil, err
	}
	done := logger.Stage("refinement", zap.Int("means", len(e.cfg.Refine.PickViews)))
	res, err := r.Run(e.cfg.Refine.MaxIterations)
	done()
	if err != nil {
		return nil, err
	}
	if !res.Converged {
		logger.Warn("refinement hit the iteration cap", zap.Int("iterations", res.Iterations))
	}

	sum := e.summarize(res, baseline)
	sum.Elapsed = time.Since(start).Round(time.Millisecond).String()
	if err := e.write(res, sum); err != nil {
		return nil, err
	}
	logger.Info("experiment finished",
		zap.Float32("baseline_ratio", sum.BaselineRatio),
		zap.Float32("mean_ratio", sum.MeanRatio),
		zap.String("out", e.cfg.Output.Dir),
	)
	return sum, nil
}

// baseline averages the overdraw of the unsorted clustered order over every
// frame and view.
func (e *Experiment) baseline() (float32, error) {
	var total float64
	n := 0
	for f := range e.seq.Frames {
		ratios, err := e.oracle.Measure(f, e.clustering.Indices)
		if err != nil {
			return 0, fmt.Errorf("baseline frame %d: %w", f, err)
		}
		for _, r := range ratios {
			total += float64(r)
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float32(total / float64(n)), nil
}

func (e *Experiment) summarize(res *refine.Result, baseline float32) *Summary {
	cfg := e.cfg
	members := make([]int, len(res.State.Means))
	for _, row := range res.State.Assignment {
		for _, k := range row {
			members[k]++
		}
	}
	return &Summary{
		Character:     cfg.Data.Character,
		Animation:     cfg.Data.Animation,
		Backend:       cfg.Render.Backend,
		Direction:     e.dir.String(),
		Frames:        e.seq.NumFrames(),
		Views:         len(e.views),
		Vertices:      e.seq.NumVertices(),
		Faces:         e.seq.Indices.NumFaces(),
		CacheSize:     cfg.Cluster.CacheSize,
		Alpha:         cfg.Cluster.Alpha,
		InputACMR:     e.clustering.InputACMR,
		ACMR:          e.clustering.ACMR,
		Clusters:      e.clustering.SortClusters,
		Patches:       e.clustering.NumPatches(),
		Means:         len(res.State.Means),
		PickViews:     cfg.Refine.PickViews,
		Members:       members,
		Iterations:    res.Iterations,
		Converged:     res.Converged,
		BaselineRatio: baseline,
		MeanRatio:     res.MeanRatio,
	}
}

// Close releases the oracle.
func (e *Experiment) Close() error {
	if e.oracle == nil {
		return nil
	}
	err := e.oracle.Close()
	e.oracle = nil
	return err
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	return nil
}

func outPath(dir, name string) string {
	return filepath.Join(dir, name)
}
