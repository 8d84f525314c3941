// Package bvh implements flat, depth-first bounding volume hierarchies over mesh triangles and
// scene entities.
package bvh

import (
	"github.com/montanaflynn/stats"

	"go.viam.com/spatialaccel/spatialmath"
)

// NoChild marks the child and parent links that do not exist.
const NoChild int32 = -1

// Node is one element of a flat hierarchy. Internal nodes have two children and Count == 0.
// Leaves have Count > 0 and reference order[Start:Start+Count] of their tree's primitive
// permutation. The left child of an internal node always directly follows it.
type Node struct {
	Bounds spatialmath.AABB
	Left   int32
	Right  int32
	Start  int32
	Count  int32
	Parent int32
}

// IsLeaf reports whether the node references primitives directly.
func (n *Node) IsLeaf() bool {
	return n.Count > 0
}

// TreeStats summarizes the shape of a hierarchy.
type TreeStats struct {
	Nodes         int     `json:"nodes"`
	InternalNodes int     `json:"internal_nodes"`
	Leaves        int     `json:"leaves"`
	MaxDepth      int     `json:"max_depth"`
	Primitives    int     `json:"primitives"`
	MinLeafSize   int     `json:"min_leaf_size"`
	MaxLeafSize   int     `json:"max_leaf_size"`
	MeanLeafSize  float64 `json:"mean_leaf_size"`
}

func computeTreeStats(nodes []Node) TreeStats {
	var ts TreeStats
	if len(nodes) == 0 {
		return ts
	}
	ts.Nodes = len(nodes)
	depth := make([]int, len(nodes))
	sizes := make([]float64, 0, len(nodes)/2+1)
	for i := range nodes {
		n := &nodes[i]
		if n.Parent != NoChild {
			depth[i] = depth[n.Parent] + 1
		}
		if depth[i] > ts.MaxDepth {
			ts.MaxDepth = depth[i]
		}
		if !n.IsLeaf() {
			ts.InternalNodes++
			continue
		}
		ts.Leaves++
		ts.Primitives += int(n.Count)
		sizes = append(sizes, float64(n.Count))
		if ts.MinLeafSize == 0 || int(n.Count) < ts.MinLeafSize {
			ts.MinLeafSize = int(n.Count)
		}
		if int(n.Count) > ts.MaxLeafSize {
			ts.MaxLeafSize = int(n.Count)
		}
	}
	if mean, err := stats.Mean(sizes); err == nil {
		ts.MeanLeafSize = mean
	}
	return ts
}

func nodesEqual(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func orderEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// traversalEntry is a pending node on a traversal stack with its ray entry distance.
type traversalEntry struct {
	node  int32
	tNear float64
}

// pushChildren pushes the children of an internal node that the ray enters within best, far child
// first so the near child is popped next.
func pushChildren(stack []traversalEntry, nodes []Node, n *Node, ray spatialmath.Ray, best float64) []traversalEntry {
	tl, _, okL := spatialmath.RayAABB(ray, nodes[n.Left].Bounds, true)
	tr, _, okR := spatialmath.RayAABB(ray, nodes[n.Right].Bounds, true)
	okL = okL && tl <= best
	okR = okR && tr <= best
	switch {
	case okL && okR:
		if tr < tl {
			return append(stack, traversalEntry{n.Left, tl}, traversalEntry{n.Right, tr})
		}
		return append(stack, traversalEntry{n.Right, tr}, traversalEntry{n.Left, tl})
	case okL:
		return append(stack, traversalEntry{n.Left, tl})
	case okR:
		return append(stack, traversalEntry{n.Right, tr})
	}
	return stack
}
