package spatialmath

import (
	"math"
)

// CullMode selects which triangle faces a ray may hit.
type CullMode int

const (
	// CullNone hits both front and back faces.
	CullNone CullMode = iota
	// CullBack ignores triangles whose front face (counter-clockwise winding) points away from the ray.
	CullBack
)

// parallelEpsilon is relative to the magnitudes of the ray direction and triangle edges.
const parallelEpsilon = 1e-12

// TriangleHit is the result of a ray triangle test. U and V weight the second and third vertex,
// W = 1 - U - V weights the first.
type TriangleHit struct {
	Distance float64
	U        float64
	V        float64
	W        float64
}

// Barycentric returns the vertex weights in vertex order.
func (h TriangleHit) Barycentric() [3]float64 {
	return [3]float64{h.W, h.U, h.V}
}

// RayAABB intersects a ray with a box using the slab method and returns the parametric entry and
// exit distances. A box entirely behind the origin is a miss. When the origin is inside the box the
// hit is only reported if allowInside is set, with tNear clamped to zero. Hits beyond the ray's
// maximum distance are misses.
func RayAABB(ray Ray, box AABB, allowInside bool) (tNear, tFar float64, ok bool) {
	if ray.degenerate || box.IsEmpty() {
		return 0, 0, false
	}
	tNear, tFar = math.Inf(-1), math.Inf(1)
	for axis := 0; axis < 3; axis++ {
		o := Component(ray.origin, axis)
		lo, hi := Component(box.Min, axis), Component(box.Max, axis)
		if Component(ray.dir, axis) == 0 {
			// Parallel to this slab. 0*Inf would be NaN on the boundary, so test the origin directly.
			if o < lo || o > hi {
				return 0, 0, false
			}
			continue
		}
		inv := Component(ray.invDir, axis)
		t1 := (lo - o) * inv
		t2 := (hi - o) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tNear {
			tNear = t1
		}
		if t2 < tFar {
			tFar = t2
		}
		if tNear > tFar {
			return 0, 0, false
		}
	}
	if tFar < 0 {
		return 0, 0, false
	}
	if tNear < 0 {
		if !allowInside {
			return 0, 0, false
		}
		tNear = 0
	}
	if tNear > ray.maxDistance {
		return 0, 0, false
	}
	return tNear, math.Min(tFar, ray.maxDistance), true
}

// RayTriangle intersects a ray with a triangle using the Möller–Trumbore algorithm. Hits on
// edges and vertices count. Hits behind the origin or past the ray's maximum distance do not.
func RayTriangle(ray Ray, tri *Triangle, cull CullMode) (TriangleHit, bool) {
	if ray.degenerate || tri == nil {
		return TriangleHit{}, false
	}
	e1 := tri.p1.Sub(tri.p0)
	e2 := tri.p2.Sub(tri.p0)
	pvec := ray.dir.Cross(e2)
	det := e1.Dot(pvec)

	tol := parallelEpsilon * e1.Norm() * e2.Norm() * ray.dir.Norm()
	if cull == CullBack {
		if det <= tol {
			return TriangleHit{}, false
		}
	} else if math.Abs(det) <= tol {
		return TriangleHit{}, false
	}
	invDet := 1 / det

	tvec := ray.origin.Sub(tri.p0)
	u := tvec.Dot(pvec) * invDet
	if u < 0 || u > 1 {
		return TriangleHit{}, false
	}
	qvec := tvec.Cross(e1)
	v := ray.dir.Dot(qvec) * invDet
	if v < 0 || u+v > 1 {
		return TriangleHit{}, false
	}
	t := e2.Dot(qvec) * invDet
	if t < 0 || t > ray.maxDistance || math.IsNaN(t) {
		return TriangleHit{}, false
	}
	return TriangleHit{Distance: t, U: u, V: v, W: 1 - u - v}, true
}
