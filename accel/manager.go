// Package accel is the spatial acceleration manager: it caches per-mesh hierarchies, maintains the
// scene hierarchy as entities move, and answers frustum and raycast queries against both.
//
// A frame has a sync phase followed by a query phase. Sync methods (RegisterMesh, UpdateEntity,
// RemoveEntity, Commit, ...) take the write lock; query methods take the read lock and may run
// concurrently with each other.
package accel

import (
	"context"
	"math"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"go.viam.com/spatialaccel/bvh"
	"go.viam.com/spatialaccel/logging"
	"go.viam.com/spatialaccel/spatialmath"
	"go.viam.com/spatialaccel/utils"
)

// Manager owns the mesh cache and the scene hierarchy.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	logger logging.Logger
	clock  clock.Clock

	meshes   map[string]*bvh.Mesh
	totals   meshTotals
	entities map[EntityID]*entity
	// overflow holds entities that are not (or no longer) represented in the scene tree. Queries
	// scan it linearly so results stay exact until the next rebuild.
	overflow map[EntityID]struct{}
	scene    *bvh.Scene

	rebuildPending bool
	rebuildReason  string

	counters counters
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for build timings and rebuild timestamps.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// NewManager returns an empty manager. Out of range config values are clamped with a warning.
func NewManager(cfg Config, logger logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.Default().Sublogger(logging.AccelLoggerName)
	}
	m := &Manager{
		logger:   logger,
		clock:    clock.New(),
		meshes:   map[string]*bvh.Mesh{},
		entities: map[EntityID]*entity{},
		overflow: map[EntityID]struct{}{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cfg = cfg.Sanitize(logger)
	m.scene = bvh.NewScene(m.cfg.sceneOptions())
	return m
}

// Config returns the active configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Reconfigure applies a new configuration. Toggles take effect immediately. A new mesh split
// strategy or leaf triangle count only applies to meshes registered afterwards; a new leaf entity
// count or scene split strategy schedules a scene rebuild.
func (m *Manager) Reconfigure(cfg Config) {
	cfg = cfg.Sanitize(m.logger)

	m.mu.Lock()
	defer m.mu.Unlock()
	old := m.cfg
	m.cfg = cfg
	m.scene.SetOptions(cfg.sceneOptions())
	if old.MaxLeafRefs != cfg.MaxLeafRefs {
		m.scheduleRebuildLocked("max_leaf_refs changed")
	}
	if old.SceneSplitStrategy != cfg.SceneSplitStrategy {
		m.scheduleRebuildLocked("scene_split_strategy changed")
	}
	if m.scene.NeedsRebuild() {
		m.scheduleRebuildLocked("refit debt")
	}
	m.logger.Infow("reconfigured acceleration manager",
		"culling", cfg.EnableBVHCulling,
		"raycasts", cfg.EnableBVHRaycasts,
		"incremental", cfg.EnableIncrementalUpdates,
		"strategy", cfg.MeshSplitStrategy.String())
}

func (m *Manager) buildMesh(triangles []*spatialmath.Triangle, opts bvh.MeshOptions) (*bvh.Mesh, time.Duration) {
	start := m.clock.Now()
	mesh := bvh.BuildMesh(triangles, opts)
	return mesh, m.clock.Since(start)
}

// RegisterMesh builds a hierarchy for triangles in mesh-local space and caches it under meshID.
// Registering identical triangles with unchanged options returns the cached instance; anything
// else replaces it. Malformed triangles are skipped and logged.
func (m *Manager) RegisterMesh(meshID string, triangles []*spatialmath.Triangle) (*bvh.Mesh, error) {
	if meshID == "" {
		return nil, utils.ErrEmptyMeshID
	}
	m.mu.RLock()
	opts := m.cfg.meshOptions()
	existing := m.meshes[meshID]
	m.mu.RUnlock()
	if existing != nil && existing.SameInput(triangles, opts) {
		return existing, nil
	}

	mesh, elapsed := m.buildMesh(triangles, opts)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeMeshLocked(meshID, mesh, elapsed)
	return mesh, nil
}

// RegisterMeshes builds several meshes in parallel. Each mesh is built exactly as RegisterMesh
// would, so results do not depend on scheduling.
func (m *Manager) RegisterMeshes(ctx context.Context, meshes map[string][]*spatialmath.Triangle) error {
	ids := lo.Keys(meshes)
	slices.Sort(ids)
	if slices.Contains(ids, "") {
		return utils.ErrEmptyMeshID
	}

	m.mu.RLock()
	opts := m.cfg.meshOptions()
	cached := make([]bool, len(ids))
	for i, id := range ids {
		if existing := m.meshes[id]; existing != nil && existing.SameInput(meshes[id], opts) {
			cached[i] = true
		}
	}
	m.mu.RUnlock()

	built := make([]*bvh.Mesh, len(ids))
	durations := make([]time.Duration, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range ids {
		if cached[i] {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			built[i], durations[i] = m.buildMesh(meshes[id], opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "registering meshes")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		if built[i] != nil {
			m.storeMeshLocked(id, built[i], durations[i])
		}
	}
	return nil
}

func (m *Manager) storeMeshLocked(meshID string, mesh *bvh.Mesh, elapsed time.Duration) {
	if old, ok := m.meshes[meshID]; ok {
		m.subtractMeshLocked(old)
	}
	m.meshes[meshID] = mesh
	stats := mesh.Stats()
	m.totals.triangles += stats.Primitives
	m.totals.skipped += mesh.Skipped()
	m.totals.nodes += stats.Nodes
	m.totals.leaves += stats.Leaves

	m.counters.meshBuilds.Inc()
	m.counters.meshBuildNanos.Add(int64(elapsed))
	m.counters.lastMeshBuildNanos.Store(int64(elapsed))

	if mesh.Skipped() > 0 {
		m.logger.Warnw("skipped malformed triangles", "mesh", meshID, "skipped", mesh.Skipped(), "kept", stats.Primitives)
	}
	m.logger.Debugw("built mesh hierarchy",
		"mesh", meshID,
		"triangles", stats.Primitives,
		"nodes", stats.Nodes,
		"leaves", stats.Leaves,
		"depth", stats.MaxDepth,
		"strategy", mesh.Options().Strategy.String(),
		"duration", elapsed)
}

func (m *Manager) subtractMeshLocked(mesh *bvh.Mesh) {
	stats := mesh.Stats()
	m.totals.triangles -= stats.Primitives
	m.totals.skipped -= mesh.Skipped()
	m.totals.nodes -= stats.Nodes
	m.totals.leaves -= stats.Leaves
}

// UnregisterMesh drops a cached mesh. Entities still referring to it keep taking part in frustum
// queries but produce no precise raycast hits until the mesh is registered again.
func (m *Manager) UnregisterMesh(meshID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	mesh, ok := m.meshes[meshID]
	if !ok {
		return false
	}
	m.subtractMeshLocked(mesh)
	delete(m.meshes, meshID)
	return true
}

// Mesh returns the cached mesh hierarchy for meshID.
func (m *Manager) Mesh(meshID string) (*bvh.Mesh, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mesh, ok := m.meshes[meshID]
	return mesh, ok
}

// MeshCount returns the number of cached meshes.
func (m *Manager) MeshCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.meshes)
}

// UpdateEntity inserts an entity or updates its world space bounds. Known entities in the scene
// tree are refit in place when incremental updates are enabled; otherwise they are queued for the
// next rebuild and queried linearly until then. Invalid bounds are rejected and leave the entity
// unchanged.
func (m *Manager) UpdateEntity(id EntityID, worldBounds spatialmath.AABB, opts ...EntityOption) error {
	if !worldBounds.IsValid() {
		m.counters.rejectedEntities.Inc()
		m.logger.Debugw("rejecting entity with invalid bounds", "entity", id, "bounds", worldBounds.String())
		return errors.Errorf("entity %d has invalid bounds %v", id, worldBounds)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ent, exists := m.entities[id]
	if !exists {
		ent = &entity{id: id}
		m.entities[id] = ent
	}
	for _, opt := range opts {
		opt(ent)
	}
	changed := !exists || ent.bounds != worldBounds
	ent.bounds = worldBounds

	switch {
	case !exists:
		m.overflow[id] = struct{}{}
	case !changed:
	case m.scene.Contains(id) && m.cfg.EnableIncrementalUpdates:
		start := m.clock.Now()
		m.scene.Refit(id, worldBounds)
		m.counters.refits.Inc()
		m.counters.refitNanos.Add(int64(m.clock.Since(start)))
		if m.scene.NeedsRebuild() {
			m.scheduleRebuildLocked("refit debt")
		}
	case m.scene.Contains(id):
		m.scene.Remove(id)
		m.overflow[id] = struct{}{}
	}
	m.checkChurnLocked()
	return nil
}

// RemoveEntity forgets an entity. Unknown ids are ignored.
func (m *Manager) RemoveEntity(id EntityID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entities[id]; !ok {
		return false
	}
	delete(m.entities, id)
	if _, ok := m.overflow[id]; ok {
		delete(m.overflow, id)
	} else {
		m.scene.Remove(id)
	}
	m.checkChurnLocked()
	return true
}

// EntityCount returns the number of registered entities.
func (m *Manager) EntityCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// IsEntityRegistered reports whether id is known.
func (m *Manager) IsEntityRegistered(id EntityID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entities[id]
	return ok
}

// checkChurnLocked schedules a rebuild once entities outside the tree, plus tombstones, exceed
// ChurnFraction of the tree's slots.
func (m *Manager) checkChurnLocked() {
	slots := m.scene.Len() + m.scene.Tombstones()
	churn := len(m.overflow) + m.scene.Tombstones()
	if churn > 0 && float64(churn) > m.cfg.ChurnFraction*float64(slots) {
		m.scheduleRebuildLocked("churn")
	}
}

func (m *Manager) scheduleRebuildLocked(reason string) {
	if !m.rebuildPending {
		m.rebuildPending = true
		m.rebuildReason = reason
	}
}

// RebuildPending reports whether the next Commit will rebuild the scene tree.
func (m *Manager) RebuildPending() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rebuildPending
}

// Commit ends the sync phase. A rebuild scheduled by churn, refit debt or a config change runs
// now and is reported through Metrics, unless the scene holds more entities than
// RebuildEntityBudget. A deferred rebuild stays pending and is counted in
// Metrics.DeferredRebuilds; queries remain exact meanwhile. It returns whether a rebuild happened.
func (m *Manager) Commit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.rebuildPending {
		return false
	}
	if budget := m.cfg.RebuildEntityBudget; budget > 0 && len(m.entities) > budget {
		if m.counters.deferredRebuilds.Inc() == 1 {
			m.logger.Warnw("scene rebuild exceeds the per commit budget, call ForceRebuild outside latency sensitive frames",
				"reason", m.rebuildReason, "entities", len(m.entities), "budget", budget)
		}
		return false
	}
	m.rebuildLocked(m.rebuildReason)
	return true
}

// ForceRebuild rebuilds the scene tree now. Cached meshes are not rebuilt.
func (m *Manager) ForceRebuild() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rebuildLocked("forced")
}

func (m *Manager) rebuildLocked(reason string) {
	ids := lo.Keys(m.entities)
	slices.Sort(ids)
	refs := make([]bvh.EntityRef, len(ids))
	for i, id := range ids {
		refs[i] = bvh.EntityRef{ID: id, Bounds: m.entities[id].bounds}
	}

	start := m.clock.Now()
	m.scene.SetOptions(m.cfg.sceneOptions())
	m.scene.Build(refs)
	elapsed := m.clock.Since(start)

	m.overflow = map[EntityID]struct{}{}
	m.rebuildPending = false
	m.rebuildReason = ""
	m.counters.rebuilds.Inc()
	m.counters.sceneBuildNanos.Store(int64(elapsed))
	m.counters.lastRebuild.Store(m.clock.Now().UnixNano())

	stats := m.scene.Stats()
	m.logger.Debugw("rebuilt scene hierarchy",
		"reason", reason,
		"entities", stats.Entities,
		"nodes", stats.Nodes,
		"leaves", stats.Leaves,
		"depth", stats.MaxDepth,
		"duration", elapsed)
}

// Clear drops every mesh and entity and resets all metrics.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meshes = map[string]*bvh.Mesh{}
	m.totals = meshTotals{}
	m.entities = map[EntityID]*entity{}
	m.overflow = map[EntityID]struct{}{}
	m.scene = bvh.NewScene(m.cfg.sceneOptions())
	m.rebuildPending = false
	m.rebuildReason = ""
	m.counters.reset()
}

// BeginFrame resets the per-frame counters.
func (m *Manager) BeginFrame() {
	m.counters.beginFrame()
}

// QueryFrustum returns the sorted ids of every entity whose bounds may intersect the frustum of a
// combined projection * view matrix. No entity that intersects the frustum is ever left out. With
// culling disabled every entity is returned.
func (m *Manager) QueryFrustum(viewProjection mgl64.Mat4) []EntityID {
	return m.queryFrustum(spatialmath.FrustumFromMatrix(viewProjection))
}

// QueryFrustumPlanes is QueryFrustum for six inward facing planes.
func (m *Manager) QueryFrustumPlanes(planes [6]spatialmath.Plane) []EntityID {
	return m.queryFrustum(spatialmath.FrustumFromPlanes(planes))
}

func (m *Manager) queryFrustum(f spatialmath.Frustum) []EntityID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []EntityID
	if !m.cfg.EnableBVHCulling {
		ids = lo.Keys(m.entities)
	} else {
		ids = make([]EntityID, 0, len(m.entities))
		m.scene.QueryFrustum(f, func(id EntityID) {
			ids = append(ids, id)
		})
		for id := range m.overflow {
			if f.IntersectsAABB(m.entities[id].bounds) {
				ids = append(ids, id)
			}
		}
	}
	slices.Sort(ids)

	m.counters.frustumQueries.Inc()
	m.counters.visible.Add(int64(len(ids)))
	m.counters.culled.Add(int64(len(m.entities) - len(ids)))
	return ids
}

// QueryAABB returns the sorted ids of every entity whose bounds overlap box.
func (m *Manager) QueryAABB(box spatialmath.AABB) []EntityID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []EntityID
	m.scene.QueryAABB(box, func(id EntityID) {
		ids = append(ids, id)
	})
	for id := range m.overflow {
		if m.entities[id].bounds.Overlaps(box) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Statistics is a combined diagnostics snapshot.
type Statistics struct {
	Config  Config         `json:"config"`
	Metrics Metrics        `json:"metrics"`
	Scene   bvh.SceneStats `json:"scene"`
}

// Metrics returns a snapshot of every counter and gauge.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metricsLocked()
}

func (m *Manager) metricsLocked() Metrics {
	var snap Metrics
	m.counters.snapshot(&snap)
	snap.MeshCount = len(m.meshes)
	snap.TotalTriangles = m.totals.triangles
	snap.SkippedTriangles = m.totals.skipped
	snap.MeshNodes = m.totals.nodes
	snap.MeshLeaves = m.totals.leaves

	stats := m.scene.Stats()
	snap.Entities = len(m.entities)
	snap.SceneNodes = stats.Nodes
	snap.SceneLeaves = stats.Leaves
	snap.SceneRefs = stats.Entities
	snap.OverflowEntities = len(m.overflow)
	snap.Tombstones = stats.Tombstones
	snap.RefitDebt = stats.RefitDebt
	snap.RebuildPending = m.rebuildPending
	return snap
}

// Stats returns the metrics snapshot for diagnostics recorders.
func (m *Manager) Stats() any {
	return m.Metrics()
}

// Statistics returns the config, metrics and scene tree shape together.
func (m *Manager) Statistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Statistics{
		Config:  m.cfg,
		Metrics: m.metricsLocked(),
		Scene:   m.scene.Stats(),
	}
}

// pruneDistance pads a best-so-far distance so bounds that start exactly at it, up to rounding,
// are still visited.
func pruneDistance(best float64) float64 {
	if math.IsInf(best, 1) {
		return best
	}
	return best + 1e-9*math.Max(1, math.Abs(best))
}
