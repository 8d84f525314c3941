package cli

import (
	"fmt"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"go.viam.com/spatialaccel/accel"
	"go.viam.com/spatialaccel/config"
	"go.viam.com/spatialaccel/logging"
	"go.viam.com/spatialaccel/spatialmath"
)

const demoEntity accel.EntityID = 42

var demoTriangle = []*spatialmath.Triangle{
	spatialmath.NewTriangle(r3.Vector{}, r3.Vector{X: 1}, r3.Vector{X: 0.5, Y: 1}),
}

// demoPlanes keep |x| <= 10, |y| <= 10 and 0 <= z <= 100.
var demoPlanes = [6]spatialmath.Plane{
	{Normal: r3.Vector{X: 1}, D: 10},
	{Normal: r3.Vector{X: -1}, D: 10},
	{Normal: r3.Vector{Y: 1}, D: 10},
	{Normal: r3.Vector{Y: -1}, D: 10},
	{Normal: r3.Vector{Z: 1}, D: 0},
	{Normal: r3.Vector{Z: -1}, D: 100},
}

func placeDemoEntity(m *accel.Manager, worldFromLocal mgl64.Mat4) error {
	bounds := spatialmath.EmptyAABB()
	for _, tri := range demoTriangle {
		bounds = bounds.Merge(tri.Bounds())
	}
	return m.UpdateEntity(demoEntity, bounds.Transform(worldFromLocal),
		accel.WithMesh("triangle"), accel.WithTransform(worldFromLocal))
}

func printRaycast(out io.Writer, m *accel.Manager, ray spatialmath.Ray) {
	fmt.Fprintf(out, "  ray from %v direction %v\n", ray.Origin(), ray.Direction())
	hit, ok := m.RaycastFirst(ray)
	if !ok {
		fmt.Fprintln(out, "  no hit")
		return
	}
	fmt.Fprintf(out, "  hit entity %d at distance %.3f\n", hit.EntityID, hit.Distance)
	fmt.Fprintf(out, "  point %v normal %v\n", hit.Point, hit.Normal)
	fmt.Fprintf(out, "  triangle %d barycentric %.3f\n", hit.TriangleIndex, hit.Barycentric)
}

// DemoAction walks through registering a mesh, raycasting, and culling, then optionally runs a
// frame loop that moves the entity so incremental refits and periodic statistics can be observed.
func DemoAction(c *cli.Context) error {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return err
	}
	out := c.App.Writer

	m := accel.NewManager(cfg.Accel, logger.Sublogger(logging.AccelLoggerName))
	debugCfg := cfg.Accel.Debug
	if c.Bool(generalFlagDebug) {
		debugCfg.Enabled = true
	}
	stats := accel.NewDebugLogger(logger.Sublogger(logging.StatsLoggerName), debugCfg)

	fmt.Fprintln(out, "Registering mesh")
	if _, err := m.RegisterMesh("triangle", demoTriangle); err != nil {
		return err
	}
	if err := placeDemoEntity(m, mgl64.Translate3D(0, 0, -5)); err != nil {
		return err
	}
	fmt.Fprintln(out, "Rebuilding hierarchies")
	m.ForceRebuild()

	metrics := m.Metrics()
	fmt.Fprintln(out, "Statistics")
	fmt.Fprintf(out, "  meshes: %d\n", metrics.MeshCount)
	fmt.Fprintf(out, "  triangles: %d\n", metrics.TotalTriangles)
	fmt.Fprintf(out, "  scene refs: %d\n", metrics.SceneRefs)
	fmt.Fprintf(out, "  mesh build time: %s\n", metrics.MeshBuildTime)

	fmt.Fprintln(out, "Raycast toward the mesh")
	printRaycast(out, m, spatialmath.NewRay(r3.Vector{X: 0.5, Y: 0.3, Z: -10}, r3.Vector{Z: 1}, 100))

	fmt.Fprintln(out, "Frustum culling with 6 planes")
	visible := m.QueryFrustumPlanes(demoPlanes)
	fmt.Fprintf(out, "  visible entities: %d %v\n", len(visible), visible)

	fmt.Fprintln(out, "Raycast away from the mesh")
	printRaycast(out, m, spatialmath.NewRay(r3.Vector{X: 10, Y: 10, Z: -10}, r3.Vector{Z: 1}, 100))

	frames := c.Int(demoFlagFrames)
	if frames > 0 {
		if err := runDemoFrames(c, m, stats, logger, frames); err != nil {
			return err
		}
	}

	metrics = m.Metrics()
	fmt.Fprintln(out, "Metrics")
	fmt.Fprintf(out, "  entities: %d\n", metrics.Entities)
	fmt.Fprintf(out, "  scene nodes: %d\n", metrics.SceneNodes)
	fmt.Fprintf(out, "  refits: %d rebuilds: %d\n", metrics.Refits, metrics.Rebuilds)
	fmt.Fprintf(out, "  frame raycasts: %d triangle tests: %d\n", metrics.Frame.Raycasts, metrics.Frame.RayTriangleTests)
	stats.LogNow(m)
	return nil
}

// runDemoFrames slides the entity along x, refitting it every frame. With a config file, edits
// to the file are applied to the manager while the loop runs.
func runDemoFrames(
	c *cli.Context,
	m *accel.Manager,
	stats *accel.DebugLogger,
	logger logging.Logger,
	frames int,
) error {
	out := c.App.Writer
	interval := c.Duration(demoFlagFrameInterval)

	if path := c.String(generalFlagConfig); path != "" {
		w, err := config.Watch(c.Context, path, logger.Sublogger(logging.ConfigLoggerName), func(next *config.Config) {
			m.Reconfigure(next.Accel)
			stats.SetEnabled(next.Accel.Debug.Enabled || c.Bool(generalFlagDebug))
		})
		if err != nil {
			return err
		}
		defer goutils.UncheckedErrorFunc(w.Close)
	}

	fmt.Fprintf(out, "Running %d frames\n", frames)
	if stats.Enabled() {
		stats.LogConfiguration(m)
	}
	hits := 0
	for frame := 0; frame < frames; frame++ {
		m.BeginFrame()
		x := math.Sin(float64(frame) * 0.1)
		if err := placeDemoEntity(m, mgl64.Translate3D(x, 0, -5)); err != nil {
			return err
		}
		m.Commit()
		if _, ok := m.RaycastFirst(spatialmath.NewRay(r3.Vector{X: 0.5, Y: 0.3, Z: -10}, r3.Vector{Z: 1}, 100)); ok {
			hits++
		}
		m.QueryFrustumPlanes(demoPlanes)
		stats.Update(interval, m)
		if !goutils.SelectContextOrWait(c.Context, interval) {
			return c.Context.Err()
		}
	}
	fmt.Fprintf(out, "  frames with a hit: %d/%d\n", hits, frames)
	return nil
}
