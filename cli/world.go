package cli

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/spatialaccel/accel"
	"go.viam.com/spatialaccel/spatialmath"
	"go.viam.com/spatialaccel/testutils"
)

// Entity layouts accepted by the bench command.
const (
	patternGrid      = "grid"
	patternRandom    = "random"
	patternClustered = "clustered"
)

type worldOptions struct {
	Entities int
	Meshes   int
	Pattern  string
	Seed     int64
	// Extent is the half width of the placement area in x and z.
	Extent float64
}

type worldEntity struct {
	ID             accel.EntityID
	MeshID         string
	WorldFromLocal mgl64.Mat4
	Bounds         spatialmath.AABB
	localFromWorld mgl64.Mat4
}

type world struct {
	meshes    map[string][]*spatialmath.Triangle
	entities  []worldEntity
	triangles int
	extent    float64
}

func meshName(i int) string {
	return fmt.Sprintf("mesh-%02d", i)
}

// generateMeshes alternates unit boxes and spheres of increasing detail.
func generateMeshes(n int) map[string][]*spatialmath.Triangle {
	meshes := make(map[string][]*spatialmath.Triangle, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			meshes[meshName(i)] = testutils.Box(r3.Vector{X: 1, Y: 1, Z: 1})
			continue
		}
		detail := 6 + 2*(i/2)
		meshes[meshName(i)] = testutils.UVSphere(r3.Vector{}, 1, detail, 2*detail)
	}
	return meshes
}

func generateWorld(opts worldOptions) (*world, error) {
	if opts.Entities < 1 {
		return nil, errors.Errorf("need at least one entity, got %d", opts.Entities)
	}
	if opts.Meshes < 1 {
		return nil, errors.Errorf("need at least one mesh, got %d", opts.Meshes)
	}
	if opts.Extent <= 0 {
		opts.Extent = 50
	}
	rng := rand.New(rand.NewSource(opts.Seed)) //nolint:gosec

	type placement struct {
		position r3.Vector
		scale    r3.Vector
	}
	placements := make([]placement, 0, opts.Entities)
	tall := r3.Vector{X: 1, Y: 2, Z: 1}

	switch opts.Pattern {
	case patternGrid:
		size := int(math.Ceil(math.Sqrt(float64(opts.Entities))))
		spacing := 2 * opts.Extent / float64(size)
		for i := 0; i < opts.Entities; i++ {
			x, z := i/size, i%size
			placements = append(placements, placement{
				position: r3.Vector{
					X: float64(x)*spacing - opts.Extent + spacing/2,
					Y: 1,
					Z: float64(z)*spacing - opts.Extent + spacing/2,
				},
				scale: tall,
			})
		}
	case patternRandom:
		for i := 0; i < opts.Entities; i++ {
			placements = append(placements, placement{
				position: r3.Vector{
					X: (rng.Float64()*2 - 1) * opts.Extent,
					Y: 1,
					Z: (rng.Float64()*2 - 1) * opts.Extent,
				},
				scale: r3.Vector{
					X: 0.5 + 1.5*rng.Float64(),
					Y: 0.5 + 1.5*rng.Float64(),
					Z: 0.5 + 1.5*rng.Float64(),
				},
			})
		}
	case patternClustered:
		perCluster := int(math.Max(1, math.Ceil(math.Sqrt(float64(opts.Entities)))))
		radius := opts.Extent / 5
		var center r3.Vector
		for i := 0; i < opts.Entities; i++ {
			if i%perCluster == 0 {
				center = r3.Vector{
					X: (rng.Float64()*2 - 1) * opts.Extent,
					Y: 1,
					Z: (rng.Float64()*2 - 1) * opts.Extent,
				}
			}
			angle := float64(i%perCluster) / float64(perCluster) * 2 * math.Pi
			r := rng.Float64() * radius
			placements = append(placements, placement{
				position: center.Add(r3.Vector{X: r * math.Cos(angle), Z: r * math.Sin(angle)}),
				scale:    tall,
			})
		}
	default:
		return nil, errors.Errorf("unknown entity pattern %q, expected one of %s, %s, %s",
			opts.Pattern, patternGrid, patternRandom, patternClustered)
	}

	w := &world{meshes: generateMeshes(opts.Meshes), extent: opts.Extent}
	for i, p := range placements {
		meshID := meshName(i % opts.Meshes)
		worldFromLocal := mgl64.Translate3D(p.position.X, p.position.Y, p.position.Z).
			Mul4(mgl64.HomogRotate3DY(rng.Float64() * 2 * math.Pi)).
			Mul4(mgl64.Scale3D(p.scale.X, p.scale.Y, p.scale.Z))
		local := spatialmath.EmptyAABB()
		for _, tri := range w.meshes[meshID] {
			local = local.Merge(tri.Bounds())
		}
		w.entities = append(w.entities, worldEntity{
			ID:             accel.EntityID(i + 1),
			MeshID:         meshID,
			WorldFromLocal: worldFromLocal,
			Bounds:         local.Transform(worldFromLocal),
			localFromWorld: worldFromLocal.Inv(),
		})
		w.triangles += len(w.meshes[meshID])
	}
	return w, nil
}

// load registers the world's meshes and entities and builds the scene tree.
func (w *world) load(m *accel.Manager) error {
	for meshID, tris := range w.meshes {
		if _, err := m.RegisterMesh(meshID, tris); err != nil {
			return err
		}
	}
	for _, e := range w.entities {
		if err := m.UpdateEntity(e.ID, e.Bounds, accel.WithMesh(e.MeshID), accel.WithTransform(e.WorldFromLocal)); err != nil {
			return err
		}
	}
	m.ForceRebuild()
	return nil
}

// sweepRays casts n rays from origin over a spiral covering the sphere of directions.
func sweepRays(n int, origin r3.Vector, maxDistance float64) []spatialmath.Ray {
	rays := make([]spatialmath.Ray, n)
	for i := range rays {
		frac := (float64(i) + 0.5) / float64(n)
		theta := frac * 2 * math.Pi * 7
		phi := frac * math.Pi
		dir := r3.Vector{
			X: math.Sin(phi) * math.Cos(theta),
			Y: math.Cos(phi),
			Z: math.Sin(phi) * math.Sin(theta),
		}
		rays[i] = spatialmath.NewRay(origin, dir, maxDistance)
	}
	return rays
}

// orbitCameras returns n perspective view projections circling the origin.
func orbitCameras(n int, radius, height float64) []mgl64.Mat4 {
	cams := make([]mgl64.Mat4, n)
	for i := range cams {
		angle := float64(i) / float64(n) * 2 * math.Pi
		eye := r3.Vector{X: radius * math.Sin(angle), Y: height, Z: radius * math.Cos(angle)}
		cams[i] = testutils.PerspectiveCamera(60, 16.0/9.0, 0.1, 4*radius, eye, r3.Vector{})
	}
	return cams
}

// bruteForceRaycast tests every triangle of every entity and returns the closest hit, ordered
// the same way as the manager orders ties.
func (w *world) bruteForceRaycast(ray spatialmath.Ray, cull spatialmath.CullMode) (accel.EntityID, float64, bool) {
	var (
		bestID   accel.EntityID
		bestDist = math.Inf(1)
		bestTri  int
		found    bool
	)
	for _, e := range w.entities {
		local := ray.Transform(e.localFromWorld)
		for idx, tri := range w.meshes[e.MeshID] {
			h, ok := spatialmath.RayTriangle(local, tri, cull)
			if !ok {
				continue
			}
			better := !found || h.Distance < bestDist ||
				(h.Distance == bestDist && (e.ID < bestID || (e.ID == bestID && idx < bestTri)))
			if better {
				bestID, bestDist, bestTri, found = e.ID, h.Distance, idx, true
			}
		}
	}
	return bestID, bestDist, found
}

// bruteForceFrustum tests every entity's bounds and returns the visible ids in ascending order.
func (w *world) bruteForceFrustum(viewProjection mgl64.Mat4) []accel.EntityID {
	f := spatialmath.FrustumFromMatrix(viewProjection)
	var visible []accel.EntityID
	for _, e := range w.entities {
		if f.IntersectsAABB(e.Bounds) {
			visible = append(visible, e.ID)
		}
	}
	sort.Slice(visible, func(i, j int) bool { return visible[i] < visible[j] })
	return visible
}

func (w *world) entityIDs() []accel.EntityID {
	ids := make([]accel.EntityID, len(w.entities))
	for i, e := range w.entities {
		ids[i] = e.ID
	}
	return ids
}
