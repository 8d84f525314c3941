package spatialmath

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func orthoLookingDown() mgl64.Mat4 {
	proj := mgl64.Ortho(-2, 2, -2, 2, 0.1, 100)
	view := mgl64.LookAtV(mgl64.Vec3{0, 0, 20}, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 1, 0})
	return proj.Mul4(view)
}

func TestFrustumFromMatrix(t *testing.T) {
	f := FrustumFromMatrix(orthoLookingDown())
	for _, p := range f.Planes {
		test.That(t, p.Normal.Norm(), test.ShouldAlmostEqual, 1)
	}
	test.That(t, f.ContainsPoint(r3.Vector{}), test.ShouldBeTrue)
	test.That(t, f.ContainsPoint(r3.Vector{X: 3}), test.ShouldBeFalse)
	test.That(t, f.ContainsPoint(r3.Vector{Z: 30}), test.ShouldBeFalse)

	half := r3.Vector{X: 1, Y: 1, Z: 1}
	test.That(t, f.IntersectsAABB(NewAABBCentered(r3.Vector{}, half)), test.ShouldBeTrue)
	test.That(t, f.IntersectsAABB(NewAABBCentered(r3.Vector{X: 10}, half)), test.ShouldBeFalse)
	test.That(t, f.IntersectsAABB(NewAABBCentered(r3.Vector{X: -10}, half)), test.ShouldBeFalse)
	test.That(t, f.IntersectsAABB(NewAABBCentered(r3.Vector{X: 2.5}, half)), test.ShouldBeTrue)
	test.That(t, f.IntersectsAABB(EmptyAABB()), test.ShouldBeFalse)

	test.That(t, f.Classify(NewAABBCentered(r3.Vector{}, half)), test.ShouldEqual, Inside)
	test.That(t, f.Classify(NewAABBCentered(r3.Vector{X: 2.5}, half)), test.ShouldEqual, Intersecting)
	test.That(t, f.Classify(NewAABBCentered(r3.Vector{X: 10}, half)), test.ShouldEqual, Outside)
}

func TestDegenerateMatrixCullsNothing(t *testing.T) {
	f := FrustumFromMatrix(mgl64.Mat4{})
	test.That(t, f.IntersectsAABB(NewAABBCentered(r3.Vector{X: 1e6}, r3.Vector{X: 1, Y: 1, Z: 1})), test.ShouldBeTrue)
}

// A box with any corner strictly inside the frustum must never be culled.
func TestFrustumNoFalseNegatives(t *testing.T) {
	proj := mgl64.Perspective(mgl64.DegToRad(60), 16./9., 0.5, 200)
	view := mgl64.LookAtV(mgl64.Vec3{3, 4, 30}, mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 1, 0})
	f := FrustumFromMatrix(proj.Mul4(view))

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 5000; i++ {
		center := r3.Vector{X: rng.Float64()*120 - 60, Y: rng.Float64()*120 - 60, Z: rng.Float64()*120 - 60}
		half := r3.Vector{X: rng.Float64() * 5, Y: rng.Float64() * 5, Z: rng.Float64() * 5}
		box := NewAABBCentered(center, half)
		anyInside := false
		for _, x := range []float64{box.Min.X, box.Max.X} {
			for _, y := range []float64{box.Min.Y, box.Max.Y} {
				for _, z := range []float64{box.Min.Z, box.Max.Z} {
					anyInside = anyInside || f.ContainsPoint(r3.Vector{X: x, Y: y, Z: z})
				}
			}
		}
		anyInside = anyInside || f.ContainsPoint(center)
		if anyInside {
			test.That(t, f.IntersectsAABB(box), test.ShouldBeTrue)
		}
	}
}

func TestFrustumFromPlanes(t *testing.T) {
	// An axis aligned slab region |x| <= 2, |y| <= 2, |z| <= 2 with unnormalized normals.
	f := FrustumFromPlanes([6]Plane{
		{Normal: r3.Vector{X: 2}, D: 4},
		{Normal: r3.Vector{X: -2}, D: 4},
		{Normal: r3.Vector{Y: 1}, D: 2},
		{Normal: r3.Vector{Y: -1}, D: 2},
		{Normal: r3.Vector{Z: 1}, D: 2},
		{Normal: r3.Vector{Z: -1}, D: 2},
	})
	test.That(t, f.Planes[FrustumLeft].D, test.ShouldAlmostEqual, 2)
	test.That(t, f.IntersectsAABB(NewAABBCentered(r3.Vector{X: 2.9}, r3.Vector{X: 1, Y: 1, Z: 1})), test.ShouldBeTrue)
	test.That(t, f.IntersectsAABB(NewAABBCentered(r3.Vector{X: 3.1}, r3.Vector{X: 1, Y: 1, Z: 1})), test.ShouldBeFalse)
}
