package accel

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"

	"go.viam.com/spatialaccel/bvh"
	"go.viam.com/spatialaccel/spatialmath"
)

// RaycastHit is a precise hit against an entity's mesh, in world space.
type RaycastHit struct {
	EntityID EntityID
	// Distance is measured along the normalized world ray.
	Distance    float64
	Point       r3.Vector
	Normal      r3.Vector
	Barycentric [3]float64
	// TriangleIndex is the index of the triangle in the mesh as registered.
	TriangleIndex int
}

func raycastHitLess(a, b RaycastHit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.EntityID != b.EntityID {
		return a.EntityID < b.EntityID
	}
	return a.TriangleIndex < b.TriangleIndex
}

// rayContext carries one query's inputs through the scene visitor.
type rayContext struct {
	m     *Manager
	ray   spatialmath.Ray
	cull  spatialmath.CullMode
	stats bvh.TraversalStats
}

// target resolves the entity's mesh and the ray in its local space.
func (rc *rayContext) target(id EntityID, maxDistance float64) (*bvh.Mesh, *entity, spatialmath.Ray, bool) {
	ent, ok := rc.m.entities[id]
	if !ok || !ent.canRaycast() {
		return nil, nil, spatialmath.Ray{}, false
	}
	mesh, ok := rc.m.meshes[ent.meshID]
	if !ok {
		return nil, nil, spatialmath.Ray{}, false
	}
	local := rc.ray.WithMaxDistance(maxDistance)
	if ent.hasTransform {
		local = local.Transform(ent.localFromWorld)
	}
	return mesh, ent, local, true
}

func (rc *rayContext) toWorld(ent *entity, h bvh.MeshHit) RaycastHit {
	normal := h.Normal
	if ent.hasTransform {
		n := ent.normalMatrix.Mul3x1([3]float64{normal.X, normal.Y, normal.Z})
		normal = r3.Vector{X: n[0], Y: n[1], Z: n[2]}
		if norm := normal.Norm(); norm > 0 {
			normal = normal.Mul(1 / norm)
		}
	}
	return RaycastHit{
		EntityID:      ent.id,
		Distance:      h.Distance,
		Point:         rc.ray.PointAt(h.Distance),
		Normal:        normal,
		Barycentric:   h.Barycentric,
		TriangleIndex: h.Index,
	}
}

// overflowCandidates returns the entities outside the scene tree whose bounds the ray enters,
// ordered by entry distance and then id.
func (rc *rayContext) overflowCandidates() []bvh.Candidate {
	var out []bvh.Candidate
	for id := range rc.m.overflow {
		if tNear, tFar, ok := spatialmath.RayAABB(rc.ray, rc.m.entities[id].bounds, true); ok {
			out = append(out, bvh.Candidate{ID: id, TNear: tNear, TFar: tFar})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TNear != out[j].TNear {
			return out[i].TNear < out[j].TNear
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Manager) newRayContext(ray spatialmath.Ray) *rayContext {
	return &rayContext{m: m, ray: ray, cull: m.cfg.cullMode()}
}

func (m *Manager) recordRay(rc *rayContext) {
	m.counters.raycasts.Inc()
	m.counters.triangleTests.Add(int64(rc.stats.TriangleTests))
	m.counters.rayNodes.Add(int64(rc.stats.Nodes))
}

// RaycastFirst returns the closest precise hit along the world space ray. Equal distances resolve to the lower entity id, then the lower triangle index.
// Entities without a registered mesh or with a singular transform are never hit. With raycasts
// disabled nothing is hit.
func (m *Manager) RaycastFirst(ray spatialmath.Ray) (RaycastHit, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rc := m.newRayContext(ray)
	defer m.recordRay(rc)
	if !m.cfg.EnableBVHRaycasts || rc.ray.IsDegenerate() {
		return RaycastHit{}, false
	}

	var best RaycastHit
	found := false
	bound := rc.ray.MaxDistance()
	visit := func(id EntityID, tNear, _ float64) float64 {
		if tNear > bound {
			return bound
		}
		mesh, ent, local, ok := rc.target(id, bound)
		if !ok {
			return bound
		}
		h, ok := mesh.RaycastFirstWithStats(local, rc.cull, &rc.stats)
		if !ok {
			return bound
		}
		hit := rc.toWorld(ent, h)
		if hit.Distance > rc.ray.MaxDistance() {
			return bound
		}
		if !found || raycastHitLess(hit, best) {
			best = hit
			found = true
			bound = math.Min(rc.ray.MaxDistance(), pruneDistance(hit.Distance))
		}
		return bound
	}
	for _, c := range rc.overflowCandidates() {
		visit(c.ID, c.TNear, c.TFar)
	}
	m.scene.Raycast(rc.ray, visit)
	return best, found
}

// RaycastAll returns every precise hit along the ray sorted by distance, then entity id, then
// triangle index. The result is never nil.
func (m *Manager) RaycastAll(ray spatialmath.Ray) []RaycastHit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rc := m.newRayContext(ray)
	defer m.recordRay(rc)
	hits := []RaycastHit{}
	if !m.cfg.EnableBVHRaycasts || rc.ray.IsDegenerate() {
		return hits
	}

	unbounded := math.Inf(1)
	visit := func(id EntityID, _, _ float64) float64 {
		mesh, ent, local, ok := rc.target(id, rc.ray.MaxDistance())
		if !ok {
			return unbounded
		}
		for _, h := range mesh.RaycastAllWithStats(local, rc.cull, &rc.stats) {
			hit := rc.toWorld(ent, h)
			if hit.Distance <= rc.ray.MaxDistance() {
				hits = append(hits, hit)
			}
		}
		return unbounded
	}
	for _, c := range rc.overflowCandidates() {
		visit(c.ID, c.TNear, c.TFar)
	}
	m.scene.Raycast(rc.ray, visit)
	sort.SliceStable(hits, func(i, j int) bool {
		return raycastHitLess(hits[i], hits[j])
	})
	return hits
}
