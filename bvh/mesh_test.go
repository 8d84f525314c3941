package bvh

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"

	"go.viam.com/spatialaccel/spatialmath"
	"go.viam.com/spatialaccel/testutils"
)

var allStrategies = []SplitStrategy{SplitSAH, SplitCenter, SplitAverage}

func meshOpts(strategy SplitStrategy) MeshOptions {
	opts := DefaultMeshOptions()
	opts.Strategy = strategy
	return opts
}

func TestUnitQuadHit(t *testing.T) {
	mesh := BuildMesh(testutils.UnitQuad(), DefaultMeshOptions())
	test.That(t, mesh.Validate(), test.ShouldBeNil)

	ray := spatialmath.NewRay(r3.Vector{Z: 5}, r3.Vector{Z: -1}, math.Inf(1))
	hit, ok := mesh.RaycastFirst(ray, spatialmath.CullNone)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, hit.Distance, test.ShouldAlmostEqual, 5)
	test.That(t, hit.Barycentric[0]+hit.Barycentric[1]+hit.Barycentric[2], test.ShouldAlmostEqual, 1)
	test.That(t, hit.Normal, test.ShouldResemble, r3.Vector{Z: 1})
	// The origin sits on the shared diagonal, so both triangles report it and index 0 wins.
	test.That(t, hit.Index, test.ShouldEqual, 0)

	all := mesh.RaycastAll(ray, spatialmath.CullNone)
	test.That(t, len(all), test.ShouldEqual, 2)
	test.That(t, all[0], test.ShouldResemble, hit)

	_, ok = mesh.RaycastFirst(ray.WithMaxDistance(4.9), spatialmath.CullNone)
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = mesh.RaycastFirst(spatialmath.NewRay(r3.Vector{Z: -5}, r3.Vector{Z: 1}, math.Inf(1)), spatialmath.CullBack)
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = mesh.RaycastFirst(spatialmath.NewRay(r3.Vector{Z: 5}, r3.Vector{}, math.Inf(1)), spatialmath.CullNone)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestMeshContainment(t *testing.T) {
	tris := testutils.RandomTriangles(rand.New(rand.NewSource(1)), 600, 50)
	tris = append(tris, testutils.UVSphere(r3.Vector{X: 3}, 4, 12, 16)...)
	for _, strategy := range allStrategies {
		t.Run(strategy.String(), func(t *testing.T) {
			mesh := BuildMesh(tris, meshOpts(strategy))
			test.That(t, mesh.Validate(), test.ShouldBeNil)
			stats := mesh.Stats()
			test.That(t, stats.Primitives, test.ShouldEqual, len(tris))
			test.That(t, stats.Leaves, test.ShouldEqual, stats.InternalNodes+1)
			if strategy != SplitSAH {
				test.That(t, stats.MaxLeafSize, test.ShouldBeLessThanOrEqualTo, 4)
			}
			root := mesh.Bounds()
			for _, tri := range tris {
				for _, p := range tri.Points() {
					test.That(t, root.Contains(p), test.ShouldBeTrue)
				}
			}
		})
	}
}

func TestMeshDeterminism(t *testing.T) {
	for _, strategy := range allStrategies {
		t.Run(strategy.String(), func(t *testing.T) {
			a := BuildMesh(testutils.RandomTriangles(rand.New(rand.NewSource(7)), 400, 30), meshOpts(strategy))
			b := BuildMesh(testutils.RandomTriangles(rand.New(rand.NewSource(7)), 400, 30), meshOpts(strategy))
			test.That(t, a.Equal(b), test.ShouldBeTrue)
			test.That(t, cmp.Diff(a.Nodes(), b.Nodes()), test.ShouldBeEmpty)
			test.That(t, cmp.Diff(a.Order(), b.Order()), test.ShouldBeEmpty)
		})
	}
}

func bruteForceHits(tris []*spatialmath.Triangle, ray spatialmath.Ray) []MeshHit {
	var hits []MeshHit
	for i, tri := range tris {
		if tri.IsDegenerate() {
			continue
		}
		if th, ok := spatialmath.RayTriangle(ray, tri, spatialmath.CullNone); ok {
			hits = append(hits, MeshHit{Distance: th.Distance, Index: i})
		}
	}
	spatialmath.SortHits(hits)
	return hits
}

func TestMeshRaycastAgreement(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tris := testutils.RandomTriangles(rng, 800, 20)
	for _, strategy := range allStrategies {
		mesh := BuildMesh(tris, meshOpts(strategy))
		for i := 0; i < 300; i++ {
			origin := testutils.RandomPoint(rng, 40)
			target := testutils.RandomPoint(rng, 10)
			ray := spatialmath.NewRay(origin, target.Sub(origin), math.Inf(1))

			all := mesh.RaycastAll(ray, spatialmath.CullNone)
			expected := bruteForceHits(tris, ray)
			test.That(t, len(all), test.ShouldEqual, len(expected))
			for j := range all {
				test.That(t, all[j].Index, test.ShouldEqual, expected[j].Index)
			}

			first, ok := mesh.RaycastFirst(ray, spatialmath.CullNone)
			test.That(t, ok, test.ShouldEqual, len(all) > 0)
			if ok {
				test.That(t, first.Index, test.ShouldEqual, all[0].Index)
				test.That(t, first.Distance, test.ShouldEqual, all[0].Distance)
			}
		}
	}
}

func TestMeshSkipsMalformedTriangles(t *testing.T) {
	quad := testutils.UnitQuad()
	tris := []*spatialmath.Triangle{
		spatialmath.NewTriangle(r3.Vector{}, r3.Vector{X: 1}, r3.Vector{X: 2}),
		quad[0],
		spatialmath.NewTriangle(r3.Vector{X: math.NaN()}, r3.Vector{X: 1}, r3.Vector{Y: 1}),
		quad[1],
		nil,
	}
	mesh := BuildMesh(tris, DefaultMeshOptions())
	test.That(t, mesh.Skipped(), test.ShouldEqual, 3)
	test.That(t, mesh.Validate(), test.ShouldBeNil)
	test.That(t, mesh.Stats().Primitives, test.ShouldEqual, 2)

	hit, ok := mesh.RaycastFirst(spatialmath.NewRay(r3.Vector{X: -0.3, Y: 0.3, Z: 1}, r3.Vector{Z: -1}, math.Inf(1)), spatialmath.CullNone)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, hit.Index, test.ShouldEqual, 3)
	test.That(t, len(mesh.Triangles()), test.ShouldEqual, 5)

	empty := BuildMesh(tris[:1], DefaultMeshOptions())
	test.That(t, empty.Bounds().IsEmpty(), test.ShouldBeTrue)
	test.That(t, empty.Validate(), test.ShouldBeNil)
	_, ok = empty.RaycastFirst(spatialmath.NewRay(r3.Vector{Z: 1}, r3.Vector{Z: -1}, math.Inf(1)), spatialmath.CullNone)
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, empty.RaycastAll(spatialmath.NewRay(r3.Vector{Z: 1}, r3.Vector{Z: -1}, math.Inf(1)), spatialmath.CullNone), test.ShouldBeEmpty)
}

func TestCoincidentCentroids(t *testing.T) {
	var tris []*spatialmath.Triangle
	for i := 0; i < 21; i++ {
		tris = append(tris, spatialmath.NewTriangle(r3.Vector{X: -1}, r3.Vector{X: 1}, r3.Vector{Y: 1}))
	}
	for _, strategy := range allStrategies {
		mesh := BuildMesh(tris, meshOpts(strategy))
		test.That(t, mesh.Validate(), test.ShouldBeNil)
		test.That(t, mesh.Stats().MaxLeafSize, test.ShouldBeLessThanOrEqualTo, 4)
		all := mesh.RaycastAll(spatialmath.NewRay(r3.Vector{Y: 0.2, Z: 3}, r3.Vector{Z: -1}, math.Inf(1)), spatialmath.CullNone)
		test.That(t, len(all), test.ShouldEqual, 21)
		for i, hit := range all {
			test.That(t, hit.Index, test.ShouldEqual, i)
		}
	}
}

func TestSameInput(t *testing.T) {
	quad := testutils.UnitQuad()
	mesh := BuildMesh(quad, DefaultMeshOptions())
	test.That(t, mesh.SameInput(testutils.UnitQuad(), DefaultMeshOptions()), test.ShouldBeTrue)
	test.That(t, mesh.SameInput(quad[:1], DefaultMeshOptions()), test.ShouldBeFalse)
	test.That(t, mesh.SameInput(quad, meshOpts(SplitCenter)), test.ShouldBeFalse)
}

func TestParseSplitStrategy(t *testing.T) {
	for _, strategy := range allStrategies {
		parsed, err := ParseSplitStrategy(strategy.String())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed, test.ShouldEqual, strategy)
	}
	var s SplitStrategy
	test.That(t, s.UnmarshalText([]byte("Average")), test.ShouldBeNil)
	test.That(t, s, test.ShouldEqual, SplitAverage)
	test.That(t, s.UnmarshalText([]byte("octree")), test.ShouldBeNil)
	test.That(t, s, test.ShouldEqual, SplitUnknown)
	test.That(t, s.String(), test.ShouldEqual, "unknown")
	_, err := ParseSplitStrategy("octree")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTraversalStatsCountWork(t *testing.T) {
	tris := testutils.RandomTriangles(rand.New(rand.NewSource(5)), 600, 50)
	mesh := BuildMesh(tris, DefaultMeshOptions())
	target := tris[0].Centroid()
	origin := r3.Vector{X: 200, Y: 3, Z: -7}
	ray := spatialmath.NewRay(origin, target.Sub(origin), math.Inf(1))

	var first TraversalStats
	_, ok := mesh.RaycastFirstWithStats(ray, spatialmath.CullNone, &first)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, first.Nodes, test.ShouldBeGreaterThan, 0)
	test.That(t, first.TriangleTests, test.ShouldBeGreaterThan, 0)
	test.That(t, first.TriangleTests, test.ShouldBeLessThan, len(tris))

	var all TraversalStats
	hits := mesh.RaycastAllWithStats(ray, spatialmath.CullNone, &all)
	test.That(t, len(hits), test.ShouldBeGreaterThanOrEqualTo, 1)
	test.That(t, all.TriangleTests, test.ShouldBeGreaterThanOrEqualTo, first.TriangleTests)
	test.That(t, all.TriangleTests, test.ShouldBeLessThanOrEqualTo, len(tris))

	// a nil accumulator is allowed
	_, ok = mesh.RaycastFirstWithStats(ray, spatialmath.CullNone, nil)
	test.That(t, ok, test.ShouldBeTrue)
}

func TestBoxMeshEntryAndExit(t *testing.T) {
	mesh := BuildMesh(testutils.Box(r3.Vector{X: 1, Y: 1, Z: 1}), DefaultMeshOptions())
	test.That(t, mesh.Skipped(), test.ShouldEqual, 0)
	test.That(t, mesh.Validate(), test.ShouldBeNil)

	ray := spatialmath.NewRay(r3.Vector{X: -5, Y: 0.2, Z: 0.1}, r3.Vector{X: 1}, math.Inf(1))
	hits := mesh.RaycastAll(ray, spatialmath.CullNone)
	test.That(t, hits, test.ShouldHaveLength, 2)
	test.That(t, hits[0].Distance, test.ShouldAlmostEqual, 4)
	test.That(t, hits[0].Normal, test.ShouldResemble, r3.Vector{X: -1})
	test.That(t, hits[1].Distance, test.ShouldAlmostEqual, 6)

	// the exit face points away from the ray
	culled := mesh.RaycastAll(ray, spatialmath.CullBack)
	test.That(t, culled, test.ShouldHaveLength, 1)
	test.That(t, culled[0].Distance, test.ShouldAlmostEqual, 4)
}
