package bvh

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/spatialaccel/spatialmath"
)

// EntityID identifies a scene entity.
type EntityID uint64

// EntityRef is an entity and its world space bounds.
type EntityRef struct {
	ID     EntityID
	Bounds spatialmath.AABB
}

// SceneOptions configures a scene build.
type SceneOptions struct {
	MaxLeafRefs int
	Strategy    SplitStrategy
	Bins        int
	// RefitDebtFraction is the fraction of leaves that may be refit before NeedsRebuild reports
	// true. Zero or less disables the check.
	RefitDebtFraction float64
}

// DefaultSceneOptions returns median splits with four entities per leaf.
func DefaultSceneOptions() SceneOptions {
	return SceneOptions{MaxLeafRefs: 4, Strategy: SplitCenter, Bins: DefaultSAHBins, RefitDebtFraction: 0.5}
}

// Candidate is an entity whose bounds a ray enters.
type Candidate struct {
	ID    EntityID
	TNear float64
	TFar  float64
}

// RayVisitor is called for every entity whose bounds the ray enters before the current best
// distance. It returns the new best distance; subtrees entered beyond it are skipped. Return
// +Inf to visit everything along the ray.
type RayVisitor func(id EntityID, tNear, tFar float64) float64

// SceneStats describes the scene tree.
type SceneStats struct {
	TreeStats
	Entities      int `json:"entities"`
	Tombstones    int `json:"tombstones"`
	RefitDebt     int `json:"refit_debt"`
	DebtThreshold int `json:"debt_threshold"`
}

// Scene is an entity level hierarchy supporting refit. A Scene is not safe for concurrent
// mutation; concurrent queries without writers are fine.
type Scene struct {
	opts SceneOptions

	nodes  []Node
	order  []int32
	slots  []EntityRef
	alive  []bool
	leafOf []int32
	slotOf map[EntityID]int32

	leaves     int
	tombstones int
	debt       int
}

// NewScene returns an empty scene.
func NewScene(opts SceneOptions) *Scene {
	return &Scene{opts: opts, slotOf: map[EntityID]int32{}}
}

// Options returns the options used by the next Build.
func (s *Scene) Options() SceneOptions {
	return s.opts
}

// SetOptions changes the options used by the next Build.
func (s *Scene) SetOptions(opts SceneOptions) {
	s.opts = opts
}

// Build replaces the tree with one over refs. Later refs win over earlier ones with the same id.
// Refs with invalid bounds are left out and counted in the returned value.
func (s *Scene) Build(refs []EntityRef) int {
	s.slotOf = make(map[EntityID]int32, len(refs))
	s.slots = s.slots[:0]
	skipped := 0
	for _, ref := range refs {
		if !ref.Bounds.IsValid() {
			skipped++
			continue
		}
		if slot, ok := s.slotOf[ref.ID]; ok {
			s.slots[slot] = ref
			continue
		}
		s.slotOf[ref.ID] = int32(len(s.slots))
		s.slots = append(s.slots, ref)
	}

	items := make([]buildItem, len(s.slots))
	s.order = make([]int32, len(s.slots))
	s.alive = make([]bool, len(s.slots))
	for i, ref := range s.slots {
		items[i] = buildItem{bounds: ref.Bounds, centroid: ref.Bounds.Center()}
		s.order[i] = int32(i)
		s.alive[i] = true
	}
	s.nodes = newBuilder(items, s.order, s.opts.MaxLeafRefs, s.opts.Strategy, s.opts.Bins).build()

	s.leafOf = make([]int32, len(s.slots))
	s.leaves = 0
	for i := range s.nodes {
		n := &s.nodes[i]
		if n.IsLeaf() {
			s.leaves++
		}
		for _, slot := range s.order[n.Start : n.Start+n.Count] {
			s.leafOf[slot] = int32(i)
		}
	}
	s.tombstones = 0
	s.debt = 0
	return skipped
}

// Len returns the number of live entities in the tree.
func (s *Scene) Len() int {
	return len(s.slotOf)
}

// Contains reports whether id is a live entity of the tree.
func (s *Scene) Contains(id EntityID) bool {
	_, ok := s.slotOf[id]
	return ok
}

// EntityBounds returns the bounds currently stored for id.
func (s *Scene) EntityBounds(id EntityID) (spatialmath.AABB, bool) {
	slot, ok := s.slotOf[id]
	if !ok {
		return spatialmath.EmptyAABB(), false
	}
	return s.slots[slot].Bounds, true
}

// Entities returns the live entities in slot order.
func (s *Scene) Entities() []EntityRef {
	refs := make([]EntityRef, 0, len(s.slotOf))
	for slot, ref := range s.slots {
		if s.alive[slot] {
			refs = append(refs, ref)
		}
	}
	return refs
}

// Nodes returns a copy of the node array.
func (s *Scene) Nodes() []Node {
	return append([]Node(nil), s.nodes...)
}

// Bounds returns the root box.
func (s *Scene) Bounds() spatialmath.AABB {
	if len(s.nodes) == 0 {
		return spatialmath.EmptyAABB()
	}
	return s.nodes[0].Bounds
}

// Tombstones returns the number of removed slots since the last build.
func (s *Scene) Tombstones() int {
	return s.tombstones
}

// RefitDebt returns the number of refits since the last build.
func (s *Scene) RefitDebt() int {
	return s.debt
}

// DebtThreshold is max(1, ceil(fraction * leaves)), or 0 when debt tracking is disabled.
func (s *Scene) DebtThreshold() int {
	if !(s.opts.RefitDebtFraction > 0) {
		return 0
	}
	threshold := int(math.Ceil(s.opts.RefitDebtFraction * float64(s.leaves)))
	if threshold < 1 {
		threshold = 1
	}
	return threshold
}

// NeedsRebuild reports whether refit debt has reached its threshold.
func (s *Scene) NeedsRebuild() bool {
	threshold := s.DebtThreshold()
	return threshold > 0 && s.debt >= threshold
}

// Refit stores new bounds for id and propagates them toward the root, stopping early once an
// ancestor's box is unchanged. It returns the number of nodes recomputed.
func (s *Scene) Refit(id EntityID, bounds spatialmath.AABB) (int, bool) {
	slot, ok := s.slotOf[id]
	if !ok || !bounds.IsValid() {
		return 0, false
	}
	s.slots[slot].Bounds = bounds
	s.debt++
	return s.propagate(s.leafOf[slot]), true
}

// Remove tombstones id. Its slot keeps its place in the tree with empty bounds until the next
// build.
func (s *Scene) Remove(id EntityID) bool {
	slot, ok := s.slotOf[id]
	if !ok {
		return false
	}
	delete(s.slotOf, id)
	s.alive[slot] = false
	s.slots[slot].Bounds = spatialmath.EmptyAABB()
	s.tombstones++
	s.propagate(s.leafOf[slot])
	return true
}

func (s *Scene) leafBounds(n *Node) spatialmath.AABB {
	box := spatialmath.EmptyAABB()
	for _, slot := range s.order[n.Start : n.Start+n.Count] {
		box = box.Merge(s.slots[slot].Bounds)
	}
	return box
}

func (s *Scene) propagate(leaf int32) int {
	visited := 1
	n := &s.nodes[leaf]
	newBox := s.leafBounds(n)
	if newBox == n.Bounds {
		return visited
	}
	n.Bounds = newBox
	for parent := n.Parent; parent != NoChild; parent = s.nodes[parent].Parent {
		p := &s.nodes[parent]
		merged := s.nodes[p.Left].Bounds.Merge(s.nodes[p.Right].Bounds)
		visited++
		if merged == p.Bounds {
			break
		}
		p.Bounds = merged
	}
	return visited
}

// RefitAll recomputes every node from the stored entity bounds. Children always have larger
// indices than their parent, so a reverse sweep sees children first.
func (s *Scene) RefitAll() {
	for i := len(s.nodes) - 1; i >= 0; i-- {
		n := &s.nodes[i]
		if n.IsLeaf() {
			n.Bounds = s.leafBounds(n)
			continue
		}
		n.Bounds = s.nodes[n.Left].Bounds.Merge(s.nodes[n.Right].Bounds)
	}
}

// QueryFrustum calls fn for every live entity whose bounds intersect f. Subtrees classified as
// fully inside are reported without further plane tests. It returns the number of nodes visited.
func (s *Scene) QueryFrustum(f spatialmath.Frustum, fn func(EntityID)) int {
	if len(s.nodes) == 0 {
		return 0
	}
	visited := 0
	var buf [64]int32
	stack := append(buf[:0], 0)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &s.nodes[idx]
		visited++
		switch f.Classify(n.Bounds) {
		case spatialmath.Outside:
			continue
		case spatialmath.Inside:
			s.emitSubtree(idx, fn)
			continue
		case spatialmath.Intersecting:
		}
		if !n.IsLeaf() {
			stack = append(stack, n.Right, n.Left)
			continue
		}
		for _, slot := range s.order[n.Start : n.Start+n.Count] {
			if s.alive[slot] && f.IntersectsAABB(s.slots[slot].Bounds) {
				fn(s.slots[slot].ID)
			}
		}
	}
	return visited
}

// emitSubtree reports every live entity below idx.
func (s *Scene) emitSubtree(idx int32, fn func(EntityID)) {
	var buf [64]int32
	stack := append(buf[:0], idx)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &s.nodes[i]
		if !n.IsLeaf() {
			stack = append(stack, n.Right, n.Left)
			continue
		}
		for _, slot := range s.order[n.Start : n.Start+n.Count] {
			if s.alive[slot] {
				fn(s.slots[slot].ID)
			}
		}
	}
}

// QueryAABB calls fn for every live entity whose bounds overlap box.
func (s *Scene) QueryAABB(box spatialmath.AABB, fn func(EntityID)) int {
	if len(s.nodes) == 0 || box.IsEmpty() {
		return 0
	}
	visited := 0
	var buf [64]int32
	stack := append(buf[:0], 0)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &s.nodes[idx]
		visited++
		if !n.Bounds.Overlaps(box) {
			continue
		}
		if !n.IsLeaf() {
			stack = append(stack, n.Right, n.Left)
			continue
		}
		for _, slot := range s.order[n.Start : n.Start+n.Count] {
			if s.alive[slot] && s.slots[slot].Bounds.Overlaps(box) {
				fn(s.slots[slot].ID)
			}
		}
	}
	return visited
}

// Raycast visits entities along the ray, nearest subtree first. An entity is visited only if the
// ray enters its bounds no later than the best distance returned by fn so far.
func (s *Scene) Raycast(ray spatialmath.Ray, fn RayVisitor) {
	if len(s.nodes) == 0 || ray.IsDegenerate() {
		return
	}
	tRoot, _, ok := spatialmath.RayAABB(ray, s.nodes[0].Bounds, true)
	if !ok {
		return
	}
	best := math.Inf(1)
	var buf [64]traversalEntry
	stack := append(buf[:0], traversalEntry{0, tRoot})
	var leafHits []Candidate
	for len(stack) > 0 {
		entry := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if entry.tNear > best {
			continue
		}
		n := &s.nodes[entry.node]
		if !n.IsLeaf() {
			stack = pushChildren(stack, s.nodes, n, ray, best)
			continue
		}
		leafHits = leafHits[:0]
		for _, slot := range s.order[n.Start : n.Start+n.Count] {
			if !s.alive[slot] {
				continue
			}
			ref := s.slots[slot]
			if tNear, tFar, ok := spatialmath.RayAABB(ray, ref.Bounds, true); ok {
				leafHits = append(leafHits, Candidate{ID: ref.ID, TNear: tNear, TFar: tFar})
			}
		}
		sortCandidates(leafHits)
		for _, c := range leafHits {
			if c.TNear > best {
				break
			}
			best = math.Min(best, fn(c.ID, c.TNear, c.TFar))
		}
	}
}

// RaycastCandidates returns every live entity whose bounds the ray enters, ordered by entry
// distance and then id.
func (s *Scene) RaycastCandidates(ray spatialmath.Ray) []Candidate {
	var out []Candidate
	s.Raycast(ray, func(id EntityID, tNear, tFar float64) float64 {
		out = append(out, Candidate{ID: id, TNear: tNear, TFar: tFar})
		return math.Inf(1)
	})
	sortCandidates(out)
	return out
}

func sortCandidates(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].TNear != cs[j].TNear {
			return cs[i].TNear < cs[j].TNear
		}
		return cs[i].ID < cs[j].ID
	})
}

// Stats describes the tree and its refit state.
func (s *Scene) Stats() SceneStats {
	return SceneStats{
		TreeStats:     computeTreeStats(s.nodes),
		Entities:      s.Len(),
		Tombstones:    s.tombstones,
		RefitDebt:     s.debt,
		DebtThreshold: s.DebtThreshold(),
	}
}

// Equal reports whether two scenes have identical topology and boxes within epsilon.
func (s *Scene) Equal(o *Scene, epsilon float64) bool {
	if len(s.nodes) != len(o.nodes) || !orderEqual(s.order, o.order) {
		return false
	}
	for i := range s.nodes {
		a, b := s.nodes[i], o.nodes[i]
		if a.Left != b.Left || a.Right != b.Right || a.Start != b.Start || a.Count != b.Count || a.Parent != b.Parent {
			return false
		}
		if !a.Bounds.AlmostEqual(b.Bounds, epsilon) {
			return false
		}
	}
	return true
}

// Validate checks node links and containment and that each live entity lies inside its leaf.
func (s *Scene) Validate() error {
	errs := validateNodes(s.nodes, len(s.order))
	for slot, ref := range s.slots {
		if !s.alive[slot] {
			continue
		}
		leaf := s.leafOf[slot]
		if !s.nodes[leaf].Bounds.ContainsAABB(ref.Bounds) {
			errs = multierr.Append(errs, errors.Errorf("entity %d escapes leaf %d", ref.ID, leaf))
		}
	}
	return errs
}
