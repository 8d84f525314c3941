package cli

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"slices"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/spatialaccel/accel"
	"go.viam.com/spatialaccel/config"
	"go.viam.com/spatialaccel/ftdc"
	"go.viam.com/spatialaccel/ftdc/sys"
	"go.viam.com/spatialaccel/logging"
	"go.viam.com/spatialaccel/spatialmath"
)

// distanceTolerance is how far apart the accelerated and brute force hit distances may be.
const distanceTolerance = 1e-9

type benchArgs struct {
	World    worldOptions
	Rays     int
	Frustums int
	Workers  int
	FTDCPath string
	Quiet    bool
}

func benchArgsFromContext(c *cli.Context) benchArgs {
	workers := c.Int(benchFlagWorkers)
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}
	return benchArgs{
		World: worldOptions{
			Entities: c.Int(benchFlagEntities),
			Meshes:   c.Int(benchFlagMeshes),
			Pattern:  c.String(benchFlagPattern),
			Seed:     c.Int64(benchFlagSeed),
			Extent:   c.Float64(benchFlagExtent),
		},
		Rays:     c.Int(benchFlagRays),
		Frustums: c.Int(benchFlagFrustums),
		Workers:  workers,
		FTDCPath: c.Path(benchFlagFTDC),
		Quiet:    c.Bool(benchFlagQuiet),
	}
}

// queryTimings holds per query latencies in milliseconds.
type queryTimings struct {
	accelerated []float64
	bruteForce  []float64
	mismatches  int
	results     int
}

func summarize(samples []float64) (mean, p50, p99 float64) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	mean, _ = stats.Mean(samples)  //nolint:errcheck
	p50, _ = stats.Median(samples) //nolint:errcheck
	var err error
	// too few samples for the percentile to be defined
	if p99, err = stats.Percentile(samples, 99); err != nil {
		p99, _ = stats.Max(samples) //nolint:errcheck
	}
	return mean, p50, p99
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// benchReport is everything the bench command prints.
type benchReport struct {
	triangles int
	buildTime time.Duration
	rays      queryTimings
	frustums  queryTimings
	stats     accel.Statistics
}

// BenchAction compares accelerated queries against brute force on a generated world.
func BenchAction(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	args := benchArgsFromContext(c)
	report, err := runBench(c.Context, c.App.Writer, cfg, args, logger)
	if err != nil {
		return err
	}
	printBenchReport(c, args, report)
	if report.rays.mismatches+report.frustums.mismatches > 0 {
		return errors.Errorf("accelerated results disagree with brute force: %d raycasts, %d frustum queries",
			report.rays.mismatches, report.frustums.mismatches)
	}
	return nil
}

func runBench(
	ctx context.Context,
	out io.Writer,
	cfg *config.Config,
	args benchArgs,
	logger logging.Logger,
) (*benchReport, error) {
	steps := []*Step{
		{ID: "world", Message: "Generating world"},
		{ID: "build", Message: "Building hierarchies"},
		{ID: "rays", Message: fmt.Sprintf("Casting %d rays", args.Rays)},
		{ID: "frustums", Message: fmt.Sprintf("Running %d frustum queries", args.Frustums)},
	}
	pm := NewProgressManager(out, steps, WithProgressOutput(!args.Quiet))
	defer pm.Stop()

	var w *world
	if err := pm.Run("world", func() error {
		var err error
		w, err = generateWorld(args.World)
		return err
	}); err != nil {
		return nil, err
	}

	m := accel.NewManager(cfg.Accel, logger.Sublogger(logging.AccelLoggerName))
	recorder, closeRecorder, err := newBenchRecorder(args.FTDCPath, m, logger)
	if err != nil {
		return nil, err
	}
	defer closeRecorder()

	report := &benchReport{triangles: w.triangles}
	if err := pm.Run("build", func() error {
		start := time.Now()
		if err := m.RegisterMeshes(ctx, w.meshes); err != nil {
			return err
		}
		if err := w.load(m); err != nil {
			return err
		}
		report.buildTime = time.Since(start)
		return recorder.capture()
	}); err != nil {
		return nil, err
	}

	cull := cullMode(cfg)
	rays := sweepRays(args.Rays, r3.Vector{Y: 10}, 2*w.extent)
	if err := pm.Run("rays", func() error {
		m.BeginFrame()
		var err error
		report.rays, err = benchRaycasts(ctx, m, w, rays, cull, cfg.Accel.EnableBVHRaycasts, args.Workers)
		if err != nil {
			return err
		}
		return recorder.capture()
	}); err != nil {
		return nil, err
	}

	cams := orbitCameras(args.Frustums, w.extent, 10)
	if err := pm.Run("frustums", func() error {
		m.BeginFrame()
		var err error
		report.frustums, err = benchFrustums(ctx, m, w, cams, cfg.Accel.EnableBVHCulling, args.Workers)
		if err != nil {
			return err
		}
		return recorder.capture()
	}); err != nil {
		return nil, err
	}

	report.stats = m.Statistics()
	logger.Debugw("bench finished", "captures", recorder.captures(), "entities", len(w.entities))
	return report, nil
}

// parallelFor runs fn for every index in [0, n) on up to workers goroutines.
func parallelFor(ctx context.Context, n, workers int, fn func(i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func benchRaycasts(
	ctx context.Context,
	m *accel.Manager,
	w *world,
	rays []spatialmath.Ray,
	cull spatialmath.CullMode,
	enabled bool,
	workers int,
) (queryTimings, error) {
	hits := make([]accel.RaycastHit, len(rays))
	found := make([]bool, len(rays))
	t := queryTimings{accelerated: make([]float64, len(rays)), bruteForce: make([]float64, len(rays))}
	if err := parallelFor(ctx, len(rays), workers, func(i int) {
		start := time.Now()
		hits[i], found[i] = m.RaycastFirst(rays[i])
		t.accelerated[i] = millis(time.Since(start))
	}); err != nil {
		return t, errors.Wrap(err, "accelerated raycasts")
	}
	mismatched := make([]bool, len(rays))
	if err := parallelFor(ctx, len(rays), workers, func(i int) {
		start := time.Now()
		id, dist, ok := w.bruteForceRaycast(rays[i], cull)
		t.bruteForce[i] = millis(time.Since(start))
		// disabled raycasts never hit
		ok = ok && enabled
		switch {
		case ok != found[i]:
			mismatched[i] = true
		case ok && (id != hits[i].EntityID || math.Abs(dist-hits[i].Distance) > distanceTolerance):
			mismatched[i] = true
		}
	}); err != nil {
		return t, errors.Wrap(err, "brute force raycasts")
	}
	for i := range rays {
		if found[i] {
			t.results++
		}
		if mismatched[i] {
			t.mismatches++
		}
	}
	return t, nil
}

func benchFrustums(
	ctx context.Context,
	m *accel.Manager,
	w *world,
	cams []mgl64.Mat4,
	culling bool,
	workers int,
) (queryTimings, error) {
	visible := make([][]accel.EntityID, len(cams))
	t := queryTimings{accelerated: make([]float64, len(cams)), bruteForce: make([]float64, len(cams))}
	if err := parallelFor(ctx, len(cams), workers, func(i int) {
		start := time.Now()
		visible[i] = m.QueryFrustum(cams[i])
		t.accelerated[i] = millis(time.Since(start))
	}); err != nil {
		return t, errors.Wrap(err, "accelerated frustum queries")
	}
	mismatched := make([]bool, len(cams))
	if err := parallelFor(ctx, len(cams), workers, func(i int) {
		start := time.Now()
		expected := w.bruteForceFrustum(cams[i])
		if !culling {
			expected = w.entityIDs()
		}
		t.bruteForce[i] = millis(time.Since(start))
		mismatched[i] = !slices.Equal(expected, visible[i])
	}); err != nil {
		return t, errors.Wrap(err, "brute force frustum queries")
	}
	for i := range cams {
		t.results += len(visible[i])
		if mismatched[i] {
			t.mismatches++
		}
	}
	return t, nil
}

func printBenchReport(c *cli.Context, args benchArgs, r *benchReport) {
	summary := table.NewWriter()
	summary.AppendHeader(table.Row{"Pattern", "Entities", "Triangles", "Build (ms)", "Scene nodes", "Scene depth"})
	summary.AppendRow(table.Row{
		args.World.Pattern,
		r.stats.Metrics.Entities,
		r.triangles,
		fmt.Sprintf("%.3f", millis(r.buildTime)),
		r.stats.Metrics.SceneNodes,
		r.stats.Scene.MaxDepth,
	})
	fmt.Fprintln(c.App.Writer, summary.Render())

	t := table.NewWriter()
	t.AppendHeader(table.Row{
		"Query", "Count", "Results", "BVH mean (ms)", "BVH p99 (ms)",
		"Brute mean (ms)", "Brute p99 (ms)", "Speedup", "Mismatches",
	})
	for _, row := range []struct {
		name string
		q    queryTimings
	}{{"raycast", r.rays}, {"frustum", r.frustums}} {
		accMean, _, accP99 := summarize(row.q.accelerated)
		bruteMean, _, bruteP99 := summarize(row.q.bruteForce)
		speedup := "n/a"
		if accMean > 0 {
			speedup = fmt.Sprintf("%.2fx", bruteMean/accMean)
		}
		t.AppendRow(table.Row{
			row.name,
			len(row.q.accelerated),
			row.q.results,
			fmt.Sprintf("%.4f", accMean),
			fmt.Sprintf("%.4f", accP99),
			fmt.Sprintf("%.4f", bruteMean),
			fmt.Sprintf("%.4f", bruteP99),
			speedup,
			row.q.mismatches,
		})
	}
	fmt.Fprintln(c.App.Writer, t.Render())
}

// benchRecorder captures manager and process statistics into an FTDC file. A nil recorder
// records nothing.
type benchRecorder struct {
	f *ftdc.FTDC
}

func newBenchRecorder(path string, m *accel.Manager, logger logging.Logger) (*benchRecorder, func(), error) {
	if path == "" {
		return &benchRecorder{}, func() {}, nil
	}
	//nolint:gosec
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to create ftdc file %q", path)
	}
	f := ftdc.New(file, logger.Sublogger(logging.FTDCLoggerName))
	if err := f.Add("accel", m); err != nil {
		goutils.UncheckedError(file.Close())
		return nil, nil, err
	}
	if usage, err := sys.NewSelfUsageStatser(); err != nil {
		logger.Debugw("process usage is not recorded", "error", err)
	} else if err := f.Add("proc", usage); err != nil {
		goutils.UncheckedError(file.Close())
		return nil, nil, err
	}
	closeFn := func() {
		goutils.UncheckedErrorFunc(file.Close)
	}
	return &benchRecorder{f: f}, closeFn, nil
}

func (r *benchRecorder) capture() error {
	if r.f == nil {
		return nil
	}
	return r.f.Capture()
}

func (r *benchRecorder) captures() int {
	if r.f == nil {
		return 0
	}
	return r.f.Captures()
}
