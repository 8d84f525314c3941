package accel

import (
	"time"

	"go.uber.org/atomic"
)

// FrameMetrics are counters reset by Manager.BeginFrame.
type FrameMetrics struct {
	FrustumQueries   int64 `json:"frustum_queries"`
	Visible          int64 `json:"visible"`
	Culled           int64 `json:"culled"`
	Raycasts         int64 `json:"raycasts"`
	RayTriangleTests int64 `json:"ray_triangle_tests"`
	RayNodesVisited  int64 `json:"ray_nodes_visited"`
}

// Metrics is a read-only snapshot of build, tree and per-frame counters.
type Metrics struct {
	MeshBuilds        int64         `json:"mesh_builds"`
	MeshBuildTime     time.Duration `json:"mesh_build_time"`
	LastMeshBuildTime time.Duration `json:"last_mesh_build_time"`
	SceneBuildTime    time.Duration `json:"scene_build_time"`
	Refits            int64         `json:"refits"`
	RefitTime         time.Duration `json:"refit_time"`
	Rebuilds          int64         `json:"rebuilds"`
	// DeferredRebuilds counts commits that left a pending rebuild to ForceRebuild.
	DeferredRebuilds int64 `json:"deferred_rebuilds"`
	// LastRebuildUnixNano is zero until the first rebuild.
	LastRebuildUnixNano int64 `json:"last_rebuild_unix_nano"`
	RejectedEntities    int64 `json:"rejected_entities"`

	MeshCount        int `json:"mesh_count"`
	TotalTriangles   int `json:"total_triangles"`
	SkippedTriangles int `json:"skipped_triangles"`
	MeshNodes        int `json:"mesh_nodes"`
	MeshLeaves       int `json:"mesh_leaves"`

	Entities         int  `json:"entities"`
	SceneNodes       int  `json:"scene_nodes"`
	SceneLeaves      int  `json:"scene_leaves"`
	SceneRefs        int  `json:"scene_refs"`
	OverflowEntities int  `json:"overflow_entities"`
	Tombstones       int  `json:"tombstones"`
	RefitDebt        int  `json:"refit_debt"`
	RebuildPending   bool `json:"rebuild_pending"`

	Frame FrameMetrics `json:"frame"`
}

// LastRebuild returns the time of the last scene rebuild, or the zero time.
func (m Metrics) LastRebuild() time.Time {
	if m.LastRebuildUnixNano == 0 {
		return time.Time{}
	}
	return time.Unix(0, m.LastRebuildUnixNano)
}

// counters are updated by concurrent readers without holding the manager's write lock.
type counters struct {
	meshBuilds         atomic.Int64
	meshBuildNanos     atomic.Int64
	lastMeshBuildNanos atomic.Int64
	sceneBuildNanos    atomic.Int64
	refits             atomic.Int64
	refitNanos         atomic.Int64
	rebuilds           atomic.Int64
	deferredRebuilds   atomic.Int64
	lastRebuild        atomic.Int64
	rejectedEntities   atomic.Int64

	frustumQueries atomic.Int64
	visible        atomic.Int64
	culled         atomic.Int64
	raycasts       atomic.Int64
	triangleTests  atomic.Int64
	rayNodes       atomic.Int64
}

func (c *counters) beginFrame() {
	c.frustumQueries.Store(0)
	c.visible.Store(0)
	c.culled.Store(0)
	c.raycasts.Store(0)
	c.triangleTests.Store(0)
	c.rayNodes.Store(0)
}

func (c *counters) reset() {
	c.beginFrame()
	c.meshBuilds.Store(0)
	c.meshBuildNanos.Store(0)
	c.lastMeshBuildNanos.Store(0)
	c.sceneBuildNanos.Store(0)
	c.refits.Store(0)
	c.refitNanos.Store(0)
	c.rebuilds.Store(0)
	c.deferredRebuilds.Store(0)
	c.lastRebuild.Store(0)
	c.rejectedEntities.Store(0)
}

func (c *counters) snapshot(into *Metrics) {
	into.MeshBuilds = c.meshBuilds.Load()
	into.MeshBuildTime = time.Duration(c.meshBuildNanos.Load())
	into.LastMeshBuildTime = time.Duration(c.lastMeshBuildNanos.Load())
	into.SceneBuildTime = time.Duration(c.sceneBuildNanos.Load())
	into.Refits = c.refits.Load()
	into.RefitTime = time.Duration(c.refitNanos.Load())
	into.Rebuilds = c.rebuilds.Load()
	into.DeferredRebuilds = c.deferredRebuilds.Load()
	into.LastRebuildUnixNano = c.lastRebuild.Load()
	into.RejectedEntities = c.rejectedEntities.Load()
	into.Frame = FrameMetrics{
		FrustumQueries:   c.frustumQueries.Load(),
		Visible:          c.visible.Load(),
		Culled:           c.culled.Load(),
		Raycasts:         c.raycasts.Load(),
		RayTriangleTests: c.triangleTests.Load(),
		RayNodesVisited:  c.rayNodes.Load(),
	}
}

// meshTotals are gauges over the registered meshes, guarded by the manager lock.
type meshTotals struct {
	triangles int
	skipped   int
	nodes     int
	leaves    int
}
