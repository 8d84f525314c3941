package bvh

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/spatialaccel/spatialmath"
)

// MeshHit is a triangle level hit. Index is the triangle's position in the input list.
type MeshHit = spatialmath.Hit

// MeshOptions configures a mesh build.
type MeshOptions struct {
	MaxLeafTriangles int
	Strategy         SplitStrategy
	Bins             int
}

// DefaultMeshOptions returns SAH with four triangles per leaf.
func DefaultMeshOptions() MeshOptions {
	return MeshOptions{MaxLeafTriangles: 4, Strategy: SplitSAH, Bins: DefaultSAHBins}
}

// Mesh is an immutable triangle hierarchy in mesh-local space. It is safe for concurrent use and
// is meant to be shared by pointer between every entity that instances the mesh.
type Mesh struct {
	triangles []*spatialmath.Triangle
	nodes     []Node
	order     []int32
	skipped   int
	opts      MeshOptions
}

// BuildMesh builds a hierarchy over triangles. Degenerate or non-finite triangles are left out of
// the tree and counted by Skipped; indices in hits always refer to the input slice.
func BuildMesh(triangles []*spatialmath.Triangle, opts MeshOptions) *Mesh {
	m := &Mesh{
		triangles: append([]*spatialmath.Triangle(nil), triangles...),
		opts:      opts,
	}
	items := make([]buildItem, len(triangles))
	order := make([]int32, 0, len(triangles))
	for i, tri := range triangles {
		if tri == nil || tri.IsDegenerate() {
			m.skipped++
			continue
		}
		items[i] = buildItem{bounds: tri.Bounds(), centroid: tri.Centroid()}
		order = append(order, int32(i))
	}
	m.order = order
	m.nodes = newBuilder(items, order, opts.MaxLeafTriangles, opts.Strategy, opts.Bins).build()
	return m
}

// Skipped returns how many input triangles were left out of the tree.
func (m *Mesh) Skipped() int {
	return m.skipped
}

// Options returns the options the mesh was built with.
func (m *Mesh) Options() MeshOptions {
	return m.opts
}

// Triangles returns the input triangle list, including skipped ones.
func (m *Mesh) Triangles() []*spatialmath.Triangle {
	return append([]*spatialmath.Triangle(nil), m.triangles...)
}

// Nodes returns a copy of the node array.
func (m *Mesh) Nodes() []Node {
	return append([]Node(nil), m.nodes...)
}

// Order returns a copy of the triangle permutation referenced by leaves.
func (m *Mesh) Order() []int32 {
	return append([]int32(nil), m.order...)
}

// Bounds returns the root box, or the empty box if no triangle was usable.
func (m *Mesh) Bounds() spatialmath.AABB {
	if len(m.nodes) == 0 {
		return spatialmath.EmptyAABB()
	}
	return m.nodes[0].Bounds
}

// Stats describes the tree shape.
func (m *Mesh) Stats() TreeStats {
	return computeTreeStats(m.nodes)
}

// Equal reports whether two meshes have structurally identical trees.
func (m *Mesh) Equal(o *Mesh) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.skipped == o.skipped && nodesEqual(m.nodes, o.nodes) && orderEqual(m.order, o.order)
}

// SameInput reports whether the mesh was built from exactly these triangles with these options.
func (m *Mesh) SameInput(triangles []*spatialmath.Triangle, opts MeshOptions) bool {
	if m.opts != opts || len(m.triangles) != len(triangles) {
		return false
	}
	for i, tri := range triangles {
		mine := m.triangles[i]
		if mine == nil || tri == nil {
			if mine != tri {
				return false
			}
			continue
		}
		if !mine.Equal(tri) {
			return false
		}
	}
	return true
}

func (m *Mesh) hit(ray spatialmath.Ray, prim int32, th spatialmath.TriangleHit) MeshHit {
	tri := m.triangles[prim]
	return MeshHit{
		Distance:    th.Distance,
		Point:       ray.PointAt(th.Distance),
		Normal:      tri.Normal(),
		Barycentric: th.Barycentric(),
		Index:       int(prim),
	}
}

// TraversalStats counts the work done by a query.
type TraversalStats struct {
	Nodes         int
	TriangleTests int
}

func (ts *TraversalStats) add(nodes, tests int) {
	if ts != nil {
		ts.Nodes += nodes
		ts.TriangleTests += tests
	}
}

// RaycastFirst returns the closest hit. Equal distances resolve to the lower triangle index.
func (m *Mesh) RaycastFirst(ray spatialmath.Ray, cull spatialmath.CullMode) (MeshHit, bool) {
	return m.RaycastFirstWithStats(ray, cull, nil)
}

// RaycastFirstWithStats is RaycastFirst that also accumulates into st, which may be nil.
func (m *Mesh) RaycastFirstWithStats(ray spatialmath.Ray, cull spatialmath.CullMode, st *TraversalStats) (MeshHit, bool) {
	if len(m.nodes) == 0 || ray.IsDegenerate() {
		return MeshHit{}, false
	}
	tRoot, _, ok := spatialmath.RayAABB(ray, m.nodes[0].Bounds, true)
	if !ok {
		return MeshHit{}, false
	}

	var best MeshHit
	bestDist := math.Inf(1)
	found := false
	nodes, tests := 0, 0
	var buf [64]traversalEntry
	stack := append(buf[:0], traversalEntry{0, tRoot})
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		// Strict so a subtree starting exactly at the best distance can still win a tie.
		if entry.tNear > bestDist {
			continue
		}
		nodes++
		n := &m.nodes[entry.node]
		if !n.IsLeaf() {
			stack = pushChildren(stack, m.nodes, n, ray, bestDist)
			continue
		}
		tests += int(n.Count)
		for _, prim := range m.order[n.Start : n.Start+n.Count] {
			th, ok := spatialmath.RayTriangle(ray, m.triangles[prim], cull)
			if !ok {
				continue
			}
			if !found || th.Distance < bestDist || (th.Distance == bestDist && int(prim) < best.Index) {
				best = m.hit(ray, prim, th)
				bestDist = th.Distance
				found = true
			}
		}
	}
	st.add(nodes, tests)
	return best, found
}

// RaycastAll returns every hit within the ray's maximum distance, sorted by distance and then
// triangle index.
func (m *Mesh) RaycastAll(ray spatialmath.Ray, cull spatialmath.CullMode) []MeshHit {
	return m.RaycastAllWithStats(ray, cull, nil)
}

// RaycastAllWithStats is RaycastAll that also accumulates into st, which may be nil.
func (m *Mesh) RaycastAllWithStats(ray spatialmath.Ray, cull spatialmath.CullMode, st *TraversalStats) []MeshHit {
	if len(m.nodes) == 0 || ray.IsDegenerate() {
		return nil
	}
	tRoot, _, ok := spatialmath.RayAABB(ray, m.nodes[0].Bounds, true)
	if !ok {
		return nil
	}

	var hits []MeshHit
	nodes, tests := 0, 0
	var buf [64]traversalEntry
	stack := append(buf[:0], traversalEntry{0, tRoot})
	unbounded := math.Inf(1)
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++
		n := &m.nodes[entry.node]
		if !n.IsLeaf() {
			stack = pushChildren(stack, m.nodes, n, ray, unbounded)
			continue
		}
		tests += int(n.Count)
		for _, prim := range m.order[n.Start : n.Start+n.Count] {
			if th, ok := spatialmath.RayTriangle(ray, m.triangles[prim], cull); ok {
				hits = append(hits, m.hit(ray, prim, th))
			}
		}
	}
	st.add(nodes, tests)
	spatialmath.SortHits(hits)
	return hits
}

// Validate checks the structural invariants of the tree: children lie inside their parents, every
// vertex lies inside its leaf and the root, leaves are non-empty, and every usable triangle is
// referenced exactly once.
func (m *Mesh) Validate() error {
	var errs error
	errs = multierr.Append(errs, validateNodes(m.nodes, len(m.order)))
	if len(m.nodes) == 0 {
		return errs
	}
	root := m.nodes[0].Bounds
	seen := make(map[int32]int, len(m.order))
	for i := range m.nodes {
		n := &m.nodes[i]
		if !n.IsLeaf() {
			continue
		}
		for _, prim := range m.order[n.Start : n.Start+n.Count] {
			seen[prim]++
			for _, p := range m.triangles[prim].Points() {
				if !n.Bounds.Contains(p) || !root.Contains(p) {
					errs = multierr.Append(errs, errors.Errorf("triangle %d vertex %v outside leaf %d", prim, p, i))
				}
			}
		}
	}
	for _, prim := range m.order {
		if seen[prim] != 1 {
			errs = multierr.Append(errs, errors.Errorf("triangle %d referenced %d times", prim, seen[prim]))
		}
	}
	return errs
}

// validateNodes checks links, containment and leaf coverage shared by every tree.
func validateNodes(nodes []Node, primitives int) error {
	var errs error
	covered := 0
	for i := range nodes {
		n := &nodes[i]
		if n.IsLeaf() {
			covered += int(n.Count)
			if int(n.Start+n.Count) > primitives || n.Start < 0 {
				errs = multierr.Append(errs, errors.Errorf("leaf %d range [%d, %d) out of bounds", i, n.Start, n.Start+n.Count))
			}
			continue
		}
		if n.Count < 0 || n.Left != int32(i)+1 || n.Right <= n.Left || int(n.Right) >= len(nodes) {
			errs = multierr.Append(errs, errors.Errorf("node %d has invalid links (%d, %d)", i, n.Left, n.Right))
			continue
		}
		for _, c := range []int32{n.Left, n.Right} {
			if nodes[c].Parent != int32(i) {
				errs = multierr.Append(errs, errors.Errorf("node %d parent is %d, expected %d", c, nodes[c].Parent, i))
			}
			if !n.Bounds.ContainsAABB(nodes[c].Bounds) {
				errs = multierr.Append(errs, errors.Errorf("node %d bounds escape parent %d", c, i))
			}
		}
	}
	if covered != primitives {
		errs = multierr.Append(errs, errors.Errorf("leaves cover %d primitives, expected %d", covered, primitives))
	}
	return errs
}
