package spatialmath

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// Component returns the X, Y or Z component of v for axis 0, 1 or 2.
func Component(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// LargestComponent returns the axis holding the greatest component of v. Ties go to the lower axis.
func LargestComponent(v r3.Vector) int {
	axis := 0
	if v.Y > v.X {
		axis = 1
	}
	if v.Z > Component(v, axis) {
		axis = 2
	}
	return axis
}

// TransformPoint applies the affine matrix m to the point p.
func TransformPoint(m mgl64.Mat4, p r3.Vector) r3.Vector {
	out := m.Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}

// TransformDirection applies the linear part of m to the direction d.
func TransformDirection(m mgl64.Mat4, d r3.Vector) r3.Vector {
	out := m.Mul4x1(mgl64.Vec4{d.X, d.Y, d.Z, 0})
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}

// PlaneNormal returns the normal vector of the plane defined by p0, p1, p2.
func PlaneNormal(p0, p1, p2 r3.Vector) r3.Vector {
	return p1.Sub(p0).Cross(p2.Sub(p0)).Normalize()
}
