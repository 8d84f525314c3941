package accel

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"go.viam.com/spatialaccel/bvh"
	"go.viam.com/spatialaccel/spatialmath"
	"go.viam.com/spatialaccel/utils"
)

// EntityID identifies a scene entity.
type EntityID = bvh.EntityID

// singularEpsilon is the smallest |det| of a world matrix that is still inverted for precise
// raycasts.
const singularEpsilon = 1e-12

type entity struct {
	id     EntityID
	bounds spatialmath.AABB

	meshID string

	hasTransform   bool
	invertible     bool
	worldFromLocal mgl64.Mat4
	localFromWorld mgl64.Mat4
	normalMatrix   mgl64.Mat3
}

// EntityOption configures an entity in Manager.UpdateEntity. Options are applied on top of the
// entity's previous state.
type EntityOption func(*entity)

// WithMesh attaches a registered mesh to the entity for precise raycasts. The mesh is looked up
// by id at query time, so re-registering the mesh affects every entity using it.
func WithMesh(meshID string) EntityOption {
	return func(e *entity) {
		e.meshID = meshID
	}
}

// WithoutMesh detaches the entity's mesh. The entity still takes part in frustum queries.
func WithoutMesh() EntityOption {
	return func(e *entity) {
		e.meshID = ""
	}
}

// WithTransform sets the matrix mapping the entity's mesh-local space to world space.
func WithTransform(worldFromLocal mgl64.Mat4) EntityOption {
	return func(e *entity) {
		e.hasTransform = true
		e.worldFromLocal = worldFromLocal
		det := worldFromLocal.Det()
		e.invertible = utils.IsFinite(det) && math.Abs(det) > singularEpsilon
		if !e.invertible {
			return
		}
		e.localFromWorld = worldFromLocal.Inv()
		e.normalMatrix = e.localFromWorld.Mat3().Transpose()
	}
}

// canRaycast reports whether precise hits can be resolved for the entity.
func (e *entity) canRaycast() bool {
	return e.meshID != "" && (!e.hasTransform || e.invertible)
}
