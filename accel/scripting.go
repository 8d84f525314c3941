package accel

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/spatialaccel/spatialmath"
)

// ScriptHit is a raycast hit as plain values, suitable for marshaling to a scripting runtime.
type ScriptHit struct {
	EntityID      uint64     `json:"entity_id"`
	Distance      float64    `json:"distance"`
	Point         [3]float64 `json:"point"`
	Normal        [3]float64 `json:"normal"`
	Barycentric   [3]float64 `json:"barycentric"`
	TriangleIndex int        `json:"triangle_index"`
}

// ScriptingAPI exposes raycasts to scripts.
type ScriptingAPI struct {
	m *Manager
}

// NewScriptingAPI wraps a manager.
func NewScriptingAPI(m *Manager) *ScriptingAPI {
	return &ScriptingAPI{m: m}
}

// scriptRay builds a world ray. Only a nil maxDistance is unbounded; zero or a negative limit
// reaches nothing.
func scriptRay(origin, dir [3]float64, maxDistance *float64) spatialmath.Ray {
	limit := math.Inf(1)
	if maxDistance != nil {
		limit = *maxDistance
	}
	return spatialmath.NewRay(toVector(origin), toVector(dir), limit)
}

func toVector(v [3]float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

func fromVector(v r3.Vector) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}

func toScriptHit(h RaycastHit) ScriptHit {
	return ScriptHit{
		EntityID:      uint64(h.EntityID),
		Distance:      h.Distance,
		Point:         fromVector(h.Point),
		Normal:        fromVector(h.Normal),
		Barycentric:   h.Barycentric,
		TriangleIndex: h.TriangleIndex,
	}
}

// RaycastFirst returns the closest hit or nil. A nil maxDistance means unbounded.
func (api *ScriptingAPI) RaycastFirst(origin, dir [3]float64, maxDistance *float64) *ScriptHit {
	hit, ok := api.m.RaycastFirst(scriptRay(origin, dir, maxDistance))
	if !ok {
		return nil
	}
	sh := toScriptHit(hit)
	return &sh
}

// RaycastAll returns every hit, nearest first. The result is never nil.
func (api *ScriptingAPI) RaycastAll(origin, dir [3]float64, maxDistance *float64) []ScriptHit {
	hits := api.m.RaycastAll(scriptRay(origin, dir, maxDistance))
	out := make([]ScriptHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, toScriptHit(h))
	}
	return out
}
