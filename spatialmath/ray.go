package spatialmath

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"

	"go.viam.com/spatialaccel/utils"
)

// Ray is a half line with an optional maximum travel distance. Rays are values; the inverse
// direction used by the slab test is computed once by the constructor.
type Ray struct {
	origin      r3.Vector
	dir         r3.Vector
	invDir      r3.Vector
	maxDistance float64
	degenerate  bool
}

// NewRay returns a ray with a normalized direction. An infinite or NaN maxDistance means the ray
// is unbounded; zero or a negative maxDistance yields a ray that reaches nothing. A zero length or
// non-finite direction yields a degenerate ray that intersects nothing.
func NewRay(origin, dir r3.Vector, maxDistance float64) Ray {
	n := dir.Norm()
	if n == 0 || !utils.IsFinite(n) {
		return newRay(origin, r3.Vector{}, maxDistance)
	}
	return newRay(origin, dir.Mul(1/n), maxDistance)
}

func newRay(origin, dir r3.Vector, maxDistance float64) Ray {
	if math.IsNaN(maxDistance) {
		maxDistance = math.Inf(1)
	}
	r := Ray{
		origin:      origin,
		dir:         dir,
		maxDistance: maxDistance,
		degenerate: maxDistance <= 0 || dir.Norm2() == 0 ||
			!utils.IsFiniteVector(dir) || !utils.IsFiniteVector(origin),
	}
	r.invDir = r3.Vector{X: inverse(dir.X), Y: inverse(dir.Y), Z: inverse(dir.Z)}
	return r
}

// inverse substitutes a signed infinity for zero so the slab test never divides by zero.
func inverse(f float64) float64 {
	if f == 0 {
		if math.Signbit(f) {
			return math.Inf(-1)
		}
		return math.Inf(1)
	}
	return 1 / f
}

func (r Ray) String() string {
	return fmt.Sprintf("Ray{origin: %v, dir: %v, max: %v}", r.origin, r.dir, r.maxDistance)
}

// Origin returns the start of the ray.
func (r Ray) Origin() r3.Vector {
	return r.origin
}

// Direction returns the ray direction.
func (r Ray) Direction() r3.Vector {
	return r.dir
}

// InvDirection returns the per-component reciprocal of the direction.
func (r Ray) InvDirection() r3.Vector {
	return r.invDir
}

// MaxDistance returns the maximum ray parameter, +Inf if unbounded.
func (r Ray) MaxDistance() float64 {
	return r.maxDistance
}

// WithMaxDistance returns a copy of the ray with a new bound.
func (r Ray) WithMaxDistance(maxDistance float64) Ray {
	return newRay(r.origin, r.dir, maxDistance)
}

// IsDegenerate reports whether the ray can hit nothing, either because it has no usable direction
// or because its maximum distance is not positive.
func (r Ray) IsDegenerate() bool {
	return r.degenerate
}

// PointAt returns origin + t*dir.
func (r Ray) PointAt(t float64) r3.Vector {
	return r.origin.Add(r.dir.Mul(t))
}

// Transform maps the ray by the affine matrix m without renormalizing the direction. The ray
// parameter is preserved, so a hit at t in the transformed space is at t along the original ray.
func (r Ray) Transform(m mgl64.Mat4) Ray {
	if r.degenerate {
		return r
	}
	return newRay(TransformPoint(m, r.origin), TransformDirection(m, r.dir), r.maxDistance)
}
