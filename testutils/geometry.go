// Package testutils generates deterministic geometry for tests and benchmarks.
package testutils

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"

	"go.viam.com/spatialaccel/spatialmath"
)

// UnitQuad returns two triangles forming a unit square centered on the origin in the z=0 plane,
// facing +z.
func UnitQuad() []*spatialmath.Triangle {
	a := r3.Vector{X: -0.5, Y: -0.5}
	b := r3.Vector{X: 0.5, Y: -0.5}
	c := r3.Vector{X: 0.5, Y: 0.5}
	d := r3.Vector{X: -0.5, Y: 0.5}
	return []*spatialmath.Triangle{
		spatialmath.NewTriangle(a, b, c),
		spatialmath.NewTriangle(a, c, d),
	}
}

// UVSphere tessellates a sphere into outward facing triangles. The poles produce one triangle
// per slice, every other band produces two.
func UVSphere(center r3.Vector, radius float64, stacks, slices int) []*spatialmath.Triangle {
	if stacks < 2 {
		stacks = 2
	}
	if slices < 3 {
		slices = 3
	}
	vertex := func(stack, slice int) r3.Vector {
		phi := math.Pi * float64(stack) / float64(stacks)
		theta := 2 * math.Pi * float64(slice) / float64(slices)
		return center.Add(r3.Vector{
			X: radius * math.Sin(phi) * math.Cos(theta),
			Y: radius * math.Sin(phi) * math.Sin(theta),
			Z: radius * math.Cos(phi),
		})
	}
	tris := make([]*spatialmath.Triangle, 0, 2*stacks*slices)
	for i := 0; i < stacks; i++ {
		for j := 0; j < slices; j++ {
			p00 := vertex(i, j)
			p01 := vertex(i, j+1)
			p10 := vertex(i+1, j)
			p11 := vertex(i+1, j+1)
			if i != 0 {
				tris = append(tris, spatialmath.NewTriangle(p00, p10, p01))
			}
			if i != stacks-1 {
				tris = append(tris, spatialmath.NewTriangle(p01, p10, p11))
			}
		}
	}
	return tris
}

// RandomTriangles returns n small triangles scattered through a cube of the given half extent.
func RandomTriangles(rng *rand.Rand, n int, extent float64) []*spatialmath.Triangle {
	tris := make([]*spatialmath.Triangle, 0, n)
	for i := 0; i < n; i++ {
		c := RandomPoint(rng, extent)
		tris = append(tris, spatialmath.NewTriangle(
			c.Add(RandomPoint(rng, 1)),
			c.Add(RandomPoint(rng, 1)),
			c.Add(RandomPoint(rng, 1)),
		))
	}
	return tris
}

// RandomPoint returns a point uniformly distributed in [-extent, extent]^3.
func RandomPoint(rng *rand.Rand, extent float64) r3.Vector {
	return r3.Vector{
		X: (rng.Float64()*2 - 1) * extent,
		Y: (rng.Float64()*2 - 1) * extent,
		Z: (rng.Float64()*2 - 1) * extent,
	}
}

// LineBoxes returns n cubes of half extent half centered at (i*spacing, 0, 0).
func LineBoxes(n int, spacing, half float64) []spatialmath.AABB {
	boxes := make([]spatialmath.AABB, n)
	h := r3.Vector{X: half, Y: half, Z: half}
	for i := range boxes {
		boxes[i] = spatialmath.NewAABBCentered(r3.Vector{X: float64(i) * spacing}, h)
	}
	return boxes
}

// GridBoxes returns n cubes on a square xz grid with the given spacing.
func GridBoxes(n int, spacing, half float64) []spatialmath.AABB {
	side := int(math.Ceil(math.Sqrt(float64(n))))
	boxes := make([]spatialmath.AABB, n)
	h := r3.Vector{X: half, Y: half, Z: half}
	for i := range boxes {
		center := r3.Vector{X: float64(i%side) * spacing, Z: float64(i/side) * spacing}
		boxes[i] = spatialmath.NewAABBCentered(center, h)
	}
	return boxes
}

// RandomBoxes returns n boxes with random centers in [-extent, extent]^3 and half extents up to
// maxHalf.
func RandomBoxes(rng *rand.Rand, n int, extent, maxHalf float64) []spatialmath.AABB {
	boxes := make([]spatialmath.AABB, n)
	for i := range boxes {
		half := r3.Vector{X: 0.01 + rng.Float64()*maxHalf, Y: 0.01 + rng.Float64()*maxHalf, Z: 0.01 + rng.Float64()*maxHalf}
		boxes[i] = spatialmath.NewAABBCentered(RandomPoint(rng, extent), half)
	}
	return boxes
}

// Corners enumerates the eight corners of a box.
func Corners(b spatialmath.AABB) []r3.Vector {
	corners := make([]r3.Vector, 0, 8)
	for _, x := range []float64{b.Min.X, b.Max.X} {
		for _, y := range []float64{b.Min.Y, b.Max.Y} {
			for _, z := range []float64{b.Min.Z, b.Max.Z} {
				corners = append(corners, r3.Vector{X: x, Y: y, Z: z})
			}
		}
	}
	return corners
}

// BoxVisibleBruteForce culls a box only if all eight corners are behind one plane.
func BoxVisibleBruteForce(f spatialmath.Frustum, b spatialmath.AABB) bool {
	corners := Corners(b)
	for _, p := range f.Planes {
		behind := 0
		for _, c := range corners {
			if p.Distance(c) < 0 {
				behind++
			}
		}
		if behind == len(corners) {
			return false
		}
	}
	return true
}

func vec3(v r3.Vector) mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

// OrthoCamera returns projection * view for an orthographic camera at eye looking at center with
// +y up.
func OrthoCamera(left, right, bottom, top, near, far float64, eye, center r3.Vector) mgl64.Mat4 {
	view := mgl64.LookAtV(vec3(eye), vec3(center), mgl64.Vec3{0, 1, 0})
	return mgl64.Ortho(left, right, bottom, top, near, far).Mul4(view)
}

// PerspectiveCamera returns projection * view for a perspective camera with a vertical field of
// view in degrees.
func PerspectiveCamera(fovDegrees, aspect, near, far float64, eye, center r3.Vector) mgl64.Mat4 {
	view := mgl64.LookAtV(vec3(eye), vec3(center), mgl64.Vec3{0, 1, 0})
	return mgl64.Perspective(mgl64.DegToRad(fovDegrees), aspect, near, far).Mul4(view)
}

// Box returns the 12 outward facing triangles of an axis aligned box centered on the origin.
func Box(half r3.Vector) []*spatialmath.Triangle {
	corner := func(x, y, z float64) r3.Vector {
		return r3.Vector{X: x * half.X, Y: y * half.Y, Z: z * half.Z}
	}
	// each face is listed counter clockwise seen from outside
	faces := [6][4]r3.Vector{
		{corner(1, -1, -1), corner(1, 1, -1), corner(1, 1, 1), corner(1, -1, 1)},
		{corner(-1, -1, -1), corner(-1, -1, 1), corner(-1, 1, 1), corner(-1, 1, -1)},
		{corner(-1, 1, -1), corner(-1, 1, 1), corner(1, 1, 1), corner(1, 1, -1)},
		{corner(-1, -1, -1), corner(1, -1, -1), corner(1, -1, 1), corner(-1, -1, 1)},
		{corner(-1, -1, 1), corner(1, -1, 1), corner(1, 1, 1), corner(-1, 1, 1)},
		{corner(-1, -1, -1), corner(-1, 1, -1), corner(1, 1, -1), corner(1, -1, -1)},
	}
	tris := make([]*spatialmath.Triangle, 0, 12)
	for _, f := range faces {
		tris = append(tris,
			spatialmath.NewTriangle(f[0], f[1], f[2]),
			spatialmath.NewTriangle(f[0], f[2], f[3]))
	}
	return tris
}
