package spatialmath

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestAABBBasics(t *testing.T) {
	box := NewAABB(r3.Vector{X: 1, Y: -1, Z: 2}, r3.Vector{X: -1, Y: 1, Z: 0})
	test.That(t, box.Min, test.ShouldResemble, r3.Vector{X: -1, Y: -1, Z: 0})
	test.That(t, box.Max, test.ShouldResemble, r3.Vector{X: 1, Y: 1, Z: 2})
	test.That(t, box.IsValid(), test.ShouldBeTrue)
	test.That(t, box.SurfaceArea(), test.ShouldAlmostEqual, 24)
	test.That(t, box.Center(), test.ShouldResemble, r3.Vector{X: 0, Y: 0, Z: 1})

	empty := EmptyAABB()
	test.That(t, empty.IsEmpty(), test.ShouldBeTrue)
	test.That(t, empty.IsValid(), test.ShouldBeFalse)
	test.That(t, empty.SurfaceArea(), test.ShouldEqual, 0)
	test.That(t, empty.Merge(box), test.ShouldResemble, box)
	test.That(t, box.ContainsAABB(empty), test.ShouldBeTrue)
	test.That(t, empty.Overlaps(box), test.ShouldBeFalse)

	grown := box.Expand(r3.Vector{X: 5})
	test.That(t, grown.Max.X, test.ShouldEqual, 5)
	test.That(t, grown.LongestAxis(), test.ShouldEqual, 0)
	test.That(t, grown.ContainsAABB(box), test.ShouldBeTrue)
	test.That(t, box.ContainsAABB(grown), test.ShouldBeFalse)
}

func TestAABBTransform(t *testing.T) {
	box := NewAABB(r3.Vector{X: -1, Y: -2, Z: -3}, r3.Vector{X: 1, Y: 2, Z: 3})
	m := mgl64.Translate3D(10, 0, -4).Mul4(mgl64.HomogRotate3DZ(math.Pi / 5)).Mul4(mgl64.Scale3D(2, 1, 0.5))

	var corners []r3.Vector
	for _, x := range []float64{box.Min.X, box.Max.X} {
		for _, y := range []float64{box.Min.Y, box.Max.Y} {
			for _, z := range []float64{box.Min.Z, box.Max.Z} {
				corners = append(corners, TransformPoint(m, r3.Vector{X: x, Y: y, Z: z}))
			}
		}
	}
	expected := AABBFromPoints(corners...)
	test.That(t, box.Transform(m).AlmostEqual(expected, 1e-9), test.ShouldBeTrue)
	test.That(t, EmptyAABB().Transform(m).IsEmpty(), test.ShouldBeTrue)
	test.That(t, box.Transform(mgl64.Ident4()), test.ShouldResemble, box)
}

func TestPointDistanceToAABB(t *testing.T) {
	box := NewAABB(r3.Vector{}, r3.Vector{X: 2, Y: 2, Z: 2})
	test.That(t, PointDistanceToAABB(box, r3.Vector{X: 5, Y: 1, Z: 1}), test.ShouldAlmostEqual, 3)
	test.That(t, PointDistanceToAABB(box, r3.Vector{X: 1, Y: 1, Z: 1}), test.ShouldAlmostEqual, -1)
	test.That(t, PointDistanceToAABB(box, r3.Vector{X: 2, Y: 1, Z: 1}), test.ShouldAlmostEqual, 0)
	test.That(t, ClosestPointOnAABB(box, r3.Vector{X: -1, Y: 3, Z: 1}), test.ShouldResemble, r3.Vector{X: 0, Y: 2, Z: 1})
	test.That(t, AABBOverlap(box, NewAABB(r3.Vector{X: 2}, r3.Vector{X: 3, Y: 3, Z: 3})), test.ShouldBeTrue)
	test.That(t, AABBOverlap(box, NewAABB(r3.Vector{X: 2.1}, r3.Vector{X: 3, Y: 3, Z: 3})), test.ShouldBeFalse)
}
