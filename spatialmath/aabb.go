// Package spatialmath defines the geometry primitives and intersection kernels used by the
// bounding volume hierarchies.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"

	"go.viam.com/spatialaccel/utils"
)

// AABB is an axis aligned bounding box. A box whose Min exceeds its Max on any axis is empty.
type AABB struct {
	Min r3.Vector
	Max r3.Vector
}

// EmptyAABB returns the identity element for Merge.
func EmptyAABB() AABB {
	inf := math.Inf(1)
	return AABB{
		Min: r3.Vector{X: inf, Y: inf, Z: inf},
		Max: r3.Vector{X: -inf, Y: -inf, Z: -inf},
	}
}

// NewAABB returns the box spanned by two corners given in any order.
func NewAABB(a, b r3.Vector) AABB {
	return AABB{
		Min: r3.Vector{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y), Z: math.Min(a.Z, b.Z)},
		Max: r3.Vector{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y), Z: math.Max(a.Z, b.Z)},
	}
}

// NewAABBCentered returns the box with the given center and half extents.
func NewAABBCentered(center, halfExtents r3.Vector) AABB {
	return NewAABB(center.Sub(halfExtents), center.Add(halfExtents))
}

// AABBFromPoints returns the smallest box containing every point.
func AABBFromPoints(points ...r3.Vector) AABB {
	box := EmptyAABB()
	for _, p := range points {
		box = box.Expand(p)
	}
	return box
}

func (b AABB) String() string {
	return fmt.Sprintf("AABB{min: %v, max: %v}", b.Min, b.Max)
}

// IsEmpty reports whether the box contains no points.
func (b AABB) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// IsValid reports whether the box has finite corners with min <= max on every axis.
func (b AABB) IsValid() bool {
	return utils.IsFiniteVector(b.Min) && utils.IsFiniteVector(b.Max) && !b.IsEmpty()
}

// Merge returns the union of two boxes.
func (b AABB) Merge(o AABB) AABB {
	return AABB{
		Min: r3.Vector{X: math.Min(b.Min.X, o.Min.X), Y: math.Min(b.Min.Y, o.Min.Y), Z: math.Min(b.Min.Z, o.Min.Z)},
		Max: r3.Vector{X: math.Max(b.Max.X, o.Max.X), Y: math.Max(b.Max.Y, o.Max.Y), Z: math.Max(b.Max.Z, o.Max.Z)},
	}
}

// Expand returns the box grown to include p.
func (b AABB) Expand(p r3.Vector) AABB {
	return b.Merge(AABB{Min: p, Max: p})
}

// Center returns the midpoint of the box.
func (b AABB) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Size returns the edge lengths of the box, or zero for an empty box.
func (b AABB) Size() r3.Vector {
	if b.IsEmpty() {
		return r3.Vector{}
	}
	return b.Max.Sub(b.Min)
}

// SurfaceArea returns the total area of the six faces.
func (b AABB) SurfaceArea() float64 {
	d := b.Size()
	return 2 * (d.X*d.Y + d.Y*d.Z + d.Z*d.X)
}

// LongestAxis returns 0, 1 or 2 for the axis of greatest extent. Ties resolve to the lower axis.
func (b AABB) LongestAxis() int {
	return LargestComponent(b.Size())
}

// Contains reports whether p lies inside or on the boundary of the box.
func (b AABB) Contains(p r3.Vector) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ContainsAABB reports whether o lies entirely within b. Every box contains the empty box.
func (b AABB) ContainsAABB(o AABB) bool {
	if o.IsEmpty() {
		return true
	}
	return b.Contains(o.Min) && b.Contains(o.Max)
}

// Overlaps reports whether the two boxes share at least one point.
func (b AABB) Overlaps(o AABB) bool {
	return b.Min.X <= o.Max.X && b.Max.X >= o.Min.X &&
		b.Min.Y <= o.Max.Y && b.Max.Y >= o.Min.Y &&
		b.Min.Z <= o.Max.Z && b.Max.Z >= o.Min.Z
}

// AlmostEqual compares both corners within epsilon. Two empty boxes are equal.
func (b AABB) AlmostEqual(o AABB, epsilon float64) bool {
	if b.IsEmpty() || o.IsEmpty() {
		return b.IsEmpty() == o.IsEmpty()
	}
	return utils.VectorAlmostEqual(b.Min, o.Min, epsilon) && utils.VectorAlmostEqual(b.Max, o.Max, epsilon)
}

// Transform returns a box containing b after applying the affine matrix m, using Arvo's method.
// The corners are never enumerated: each output axis accumulates the min and max contribution of
// every input axis.
func (b AABB) Transform(m mgl64.Mat4) AABB {
	if b.IsEmpty() {
		return b
	}
	lo := [3]float64{m.At(0, 3), m.At(1, 3), m.At(2, 3)}
	hi := lo
	bmin := [3]float64{b.Min.X, b.Min.Y, b.Min.Z}
	bmax := [3]float64{b.Max.X, b.Max.Y, b.Max.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			e := m.At(i, j) * bmin[j]
			f := m.At(i, j) * bmax[j]
			if e < f {
				lo[i] += e
				hi[i] += f
			} else {
				lo[i] += f
				hi[i] += e
			}
		}
	}
	return AABB{
		Min: r3.Vector{X: lo[0], Y: lo[1], Z: lo[2]},
		Max: r3.Vector{X: hi[0], Y: hi[1], Z: hi[2]},
	}
}

// ClosestPointOnAABB clamps p onto the box.
func ClosestPointOnAABB(b AABB, p r3.Vector) r3.Vector {
	return r3.Vector{
		X: math.Max(b.Min.X, math.Min(p.X, b.Max.X)),
		Y: math.Max(b.Min.Y, math.Min(p.Y, b.Max.Y)),
		Z: math.Max(b.Min.Z, math.Min(p.Z, b.Max.Z)),
	}
}

// PointDistanceToAABB returns the signed distance from p to the surface of the box. Points
// inside the box have a negative distance equal to the depth to the nearest face.
func PointDistanceToAABB(b AABB, p r3.Vector) float64 {
	if !b.Contains(p) {
		return ClosestPointOnAABB(b, p).Sub(p).Norm()
	}
	depth := math.Min(p.X-b.Min.X, b.Max.X-p.X)
	depth = math.Min(depth, math.Min(p.Y-b.Min.Y, b.Max.Y-p.Y))
	depth = math.Min(depth, math.Min(p.Z-b.Min.Z, b.Max.Z-p.Z))
	return -depth
}

// AABBOverlap reports whether two boxes overlap.
func AABBOverlap(a, b AABB) bool {
	return a.Overlaps(b)
}
