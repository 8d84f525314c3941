package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// frustumEpsilon widens every plane slightly when culling so rounding can only make a box
// visible, never hide it.
const frustumEpsilon = 1e-9

// Plane is the set of points p with Normal·p + D = 0. The positive half space is "inside".
type Plane struct {
	Normal r3.Vector
	D      float64
}

// Distance returns the signed distance from p to the plane, assuming a unit normal.
func (p Plane) Distance(pt r3.Vector) float64 {
	return p.Normal.Dot(pt) + p.D
}

func (p Plane) normalized() Plane {
	n := p.Normal.Norm()
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		// A plane that rejects nothing. Degenerate matrices must not cull.
		return Plane{D: 1}
	}
	return Plane{Normal: p.Normal.Mul(1 / n), D: p.D / n}
}

// Plane indices within a Frustum.
const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// Containment is the result of classifying a box against a frustum.
type Containment int

const (
	// Outside boxes lie entirely on the negative side of at least one plane.
	Outside Containment = iota
	// Intersecting boxes straddle at least one plane.
	Intersecting
	// Inside boxes are fully on the positive side of every plane.
	Inside
)

func (c Containment) String() string {
	switch c {
	case Outside:
		return "outside"
	case Intersecting:
		return "intersecting"
	case Inside:
		return "inside"
	}
	return "unknown"
}

// Frustum is six inward facing planes.
type Frustum struct {
	Planes [6]Plane
}

// FrustumFromMatrix extracts the planes of a combined projection * view matrix using the
// Gribb/Hartmann method, for OpenGL clip space (-w <= x, y, z <= w).
func FrustumFromMatrix(viewProjection mgl64.Mat4) Frustum {
	r0, r1, r2, r3v := viewProjection.Row(0), viewProjection.Row(1), viewProjection.Row(2), viewProjection.Row(3)
	combos := [6]mgl64.Vec4{
		FrustumLeft:   r3v.Add(r0),
		FrustumRight:  r3v.Sub(r0),
		FrustumBottom: r3v.Add(r1),
		FrustumTop:    r3v.Sub(r1),
		FrustumNear:   r3v.Add(r2),
		FrustumFar:    r3v.Sub(r2),
	}
	var f Frustum
	for i, c := range combos {
		f.Planes[i] = Plane{Normal: r3.Vector{X: c[0], Y: c[1], Z: c[2]}, D: c[3]}.normalized()
	}
	return f
}

// FrustumFromPlanes builds a frustum from six inward facing planes, normalizing each.
func FrustumFromPlanes(planes [6]Plane) Frustum {
	var f Frustum
	for i, p := range planes {
		f.Planes[i] = p.normalized()
	}
	return f
}

// positiveVertex returns the box corner furthest along n.
func positiveVertex(b AABB, n r3.Vector) r3.Vector {
	p := b.Min
	if n.X >= 0 {
		p.X = b.Max.X
	}
	if n.Y >= 0 {
		p.Y = b.Max.Y
	}
	if n.Z >= 0 {
		p.Z = b.Max.Z
	}
	return p
}

// negativeVertex returns the box corner furthest against n.
func negativeVertex(b AABB, n r3.Vector) r3.Vector {
	p := b.Max
	if n.X >= 0 {
		p.X = b.Min.X
	}
	if n.Y >= 0 {
		p.Y = b.Min.Y
	}
	if n.Z >= 0 {
		p.Z = b.Min.Z
	}
	return p
}

// IntersectsAABB reports whether the box may be visible. A box is rejected only when its positive
// vertex lies behind some plane, so any box that touches the frustum is kept. Boxes near a corner
// of the frustum can be kept while lying outside.
func (f Frustum) IntersectsAABB(b AABB) bool {
	if b.IsEmpty() {
		return false
	}
	for _, p := range f.Planes {
		if p.Distance(positiveVertex(b, p.Normal)) < -frustumEpsilon {
			return false
		}
	}
	return true
}

// Classify tests the positive and negative vertices against every plane.
func (f Frustum) Classify(b AABB) Containment {
	if b.IsEmpty() {
		return Outside
	}
	result := Inside
	for _, p := range f.Planes {
		if p.Distance(positiveVertex(b, p.Normal)) < -frustumEpsilon {
			return Outside
		}
		if p.Distance(negativeVertex(b, p.Normal)) < 0 {
			result = Intersecting
		}
	}
	return result
}

// ContainsPoint reports whether pt is on the positive side of every plane.
func (f Frustum) ContainsPoint(pt r3.Vector) bool {
	for _, p := range f.Planes {
		if p.Distance(pt) < 0 {
			return false
		}
	}
	return true
}
