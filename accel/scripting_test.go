package accel

import (
	"encoding/json"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"go.viam.com/test"

	"go.viam.com/spatialaccel/testutils"
)

func TestScriptingRaycasts(t *testing.T) {
	m := newTestManager(t, DefaultConfig())
	_, err := m.RegisterMesh("quad", testutils.UnitQuad())
	test.That(t, err, test.ShouldBeNil)
	placeMesh(t, m, 42, "quad", mgl64.Translate3D(0, 0, -5))
	m.Commit()
	api := NewScriptingAPI(m)

	hit := api.RaycastFirst([3]float64{0.3, 0.1, 0}, [3]float64{0, 0, -1}, nil)
	test.That(t, hit, test.ShouldNotBeNil)
	test.That(t, hit.EntityID, test.ShouldEqual, uint64(42))
	test.That(t, hit.Distance, test.ShouldAlmostEqual, 5, 1e-9)
	test.That(t, hit.Normal, test.ShouldResemble, [3]float64{0, 0, 1})

	short := 2.0
	test.That(t, api.RaycastFirst([3]float64{0.3, 0.1, 0}, [3]float64{0, 0, -1}, &short), test.ShouldBeNil)

	hits := api.RaycastAll([3]float64{0.3, 0.1, 0}, [3]float64{0, 0, -1}, nil)
	test.That(t, len(hits), test.ShouldEqual, 1)
	test.That(t, hits[0], test.ShouldResemble, *hit)

	misses := api.RaycastAll([3]float64{0.3, 0.1, 0}, [3]float64{0, 0, 1}, nil)
	test.That(t, misses, test.ShouldNotBeNil)
	test.That(t, misses, test.ShouldBeEmpty)

	out, err := json.Marshal(misses)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, "[]")

	out, err = json.Marshal(hit)
	test.That(t, err, test.ShouldBeNil)
	var decoded map[string]any
	test.That(t, json.Unmarshal(out, &decoded), test.ShouldBeNil)
	test.That(t, decoded["entity_id"], test.ShouldEqual, 42.0)
	test.That(t, decoded, test.ShouldContainKey, "triangle_index")
}

func TestScriptingRaycastNonPositiveLimit(t *testing.T) {
	m := newTestManager(t, DefaultConfig())
	_, err := m.RegisterMesh("quad", testutils.UnitQuad())
	test.That(t, err, test.ShouldBeNil)
	placeMesh(t, m, 1, "quad", mgl64.Ident4())
	placeMesh(t, m, 2, "quad", mgl64.Translate3D(0, 0, -1))
	m.Commit()
	api := NewScriptingAPI(m)

	origin, down := [3]float64{0, 0, 5}, [3]float64{0, 0, -1}
	test.That(t, api.RaycastAll(origin, down, nil), test.ShouldHaveLength, 2)

	for _, limit := range []float64{0, -1} {
		test.That(t, api.RaycastFirst(origin, down, &limit), test.ShouldBeNil)
		test.That(t, api.RaycastAll(origin, down, &limit), test.ShouldBeEmpty)
	}

	reach := 5.5
	hits := api.RaycastAll(origin, down, &reach)
	test.That(t, hits, test.ShouldHaveLength, 1)
	test.That(t, hits[0].EntityID, test.ShouldEqual, uint64(1))
}
