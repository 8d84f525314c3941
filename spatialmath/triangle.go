package spatialmath

import (
	"github.com/golang/geo/r3"

	"go.viam.com/spatialaccel/utils"
)

// degenerateAreaEpsilon is the smallest area a triangle may have and still be intersectable.
const degenerateAreaEpsilon = 1e-12

// Triangle is an immutable triangle with its normal, area and centroid computed once on creation.
type Triangle struct {
	p0 r3.Vector
	p1 r3.Vector
	p2 r3.Vector

	normal   r3.Vector
	area     float64
	centroid r3.Vector
}

// NewTriangle creates a triangle from three vertices with counter-clockwise front-face winding.
func NewTriangle(p0, p1, p2 r3.Vector) *Triangle {
	cross := p1.Sub(p0).Cross(p2.Sub(p0))
	return &Triangle{
		p0:       p0,
		p1:       p1,
		p2:       p2,
		normal:   cross.Normalize(),
		area:     0.5 * cross.Norm(),
		centroid: p0.Add(p1).Add(p2).Mul(1. / 3.),
	}
}

// Points returns the three vertices in winding order.
func (t *Triangle) Points() []r3.Vector {
	return []r3.Vector{t.p0, t.p1, t.p2}
}

// Normal returns the unit normal, or the zero vector for a degenerate triangle.
func (t *Triangle) Normal() r3.Vector {
	return t.normal
}

// Area is half the magnitude of the edge cross product.
func (t *Triangle) Area() float64 {
	return t.area
}

// Centroid returns the average of the vertices.
func (t *Triangle) Centroid() r3.Vector {
	return t.centroid
}

// Bounds returns the box spanned by the vertices.
func (t *Triangle) Bounds() AABB {
	return AABBFromPoints(t.p0, t.p1, t.p2)
}

// IsDegenerate reports whether the triangle has (near) zero area or a non-finite vertex.
func (t *Triangle) IsDegenerate() bool {
	if !utils.IsFiniteVector(t.p0) || !utils.IsFiniteVector(t.p1) || !utils.IsFiniteVector(t.p2) {
		return true
	}
	return !(t.area > degenerateAreaEpsilon)
}

// PointFromBarycentric returns w0*p0 + w1*p1 + w2*p2.
func (t *Triangle) PointFromBarycentric(w [3]float64) r3.Vector {
	return t.p0.Mul(w[0]).Add(t.p1.Mul(w[1])).Add(t.p2.Mul(w[2]))
}

// Equal reports whether both triangles have identical vertices in the same order.
func (t *Triangle) Equal(o *Triangle) bool {
	return t.p0 == o.p0 && t.p1 == o.p1 && t.p2 == o.p2
}
