package bvh

import (
	"math"
	"sort"
	"strings"

	"github.com/golang/geo/r3"

	"go.viam.com/spatialaccel/spatialmath"
	"go.viam.com/spatialaccel/utils"
)

// SplitStrategy selects how a node's primitives are partitioned during a build.
type SplitStrategy int

const (
	// SplitUnknown is what an unrecognized strategy name decodes to. Configurations replace it
	// with a known strategy before building.
	SplitUnknown SplitStrategy = -1
	// SplitSAH bins centroids and minimizes the surface area heuristic cost.
	SplitSAH SplitStrategy = iota
	// SplitCenter splits at the median centroid along the axis of greatest centroid extent.
	SplitCenter
	// SplitAverage splits at the mean centroid along the axis of greatest centroid extent.
	SplitAverage
)

// DefaultSAHBins is the number of centroid bins evaluated per axis by SplitSAH.
const DefaultSAHBins = 12

const (
	traversalCost = 1.0
	intersectCost = 1.0
)

func (s SplitStrategy) String() string {
	switch s {
	case SplitSAH:
		return "sah"
	case SplitCenter:
		return "center"
	case SplitAverage:
		return "average"
	}
	return "unknown"
}

// ParseSplitStrategy parses a case-insensitive strategy name.
func ParseSplitStrategy(name string) (SplitStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sah":
		return SplitSAH, nil
	case "center", "median":
		return SplitCenter, nil
	case "average", "mean":
		return SplitAverage, nil
	}
	return SplitSAH, utils.NewUnknownSplitStrategyError(name)
}

// MarshalText encodes the strategy as its name.
func (s SplitStrategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a strategy name. Unrecognized names decode to SplitUnknown rather than
// failing, so one bad value does not reject a whole document.
func (s *SplitStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseSplitStrategy(string(text))
	if err != nil {
		parsed = SplitUnknown
	}
	*s = parsed
	return nil
}

// buildItem is what the builder needs to know about a primitive.
type buildItem struct {
	bounds   spatialmath.AABB
	centroid r3.Vector
}

// builder performs a deterministic top-down build. The order slice is partitioned in place so
// every subtree owns a contiguous range of it.
type builder struct {
	items    []buildItem
	order    []int32
	scratch  []int32
	nodes    []Node
	maxLeaf  int
	strategy SplitStrategy
	bins     int
}

func newBuilder(items []buildItem, order []int32, maxLeaf int, strategy SplitStrategy, bins int) *builder {
	if maxLeaf < 1 {
		maxLeaf = 1
	}
	if bins < 2 {
		bins = DefaultSAHBins
	}
	return &builder{
		items:    items,
		order:    order,
		scratch:  make([]int32, len(order)),
		nodes:    make([]Node, 0, 2*len(order)/maxLeaf+1),
		maxLeaf:  maxLeaf,
		strategy: strategy,
		bins:     bins,
	}
}

func (b *builder) build() []Node {
	if len(b.order) == 0 {
		return nil
	}
	b.partition(0, len(b.order), NoChild)
	return b.nodes
}

// partition emits the node covering order[start:end] and its subtree, returning its index.
func (b *builder) partition(start, end int, parent int32) int32 {
	idx := int32(len(b.nodes))
	bounds := spatialmath.EmptyAABB()
	centroids := spatialmath.EmptyAABB()
	for _, prim := range b.order[start:end] {
		bounds = bounds.Merge(b.items[prim].bounds)
		centroids = centroids.Expand(b.items[prim].centroid)
	}
	b.nodes = append(b.nodes, Node{Bounds: bounds, Left: NoChild, Right: NoChild, Parent: parent})

	count := end - start
	mid, split := b.split(start, end, bounds, centroids)
	if count <= b.maxLeaf || !split {
		b.nodes[idx].Start = int32(start)
		b.nodes[idx].Count = int32(count)
		return idx
	}

	left := b.partition(start, mid, idx)
	right := b.partition(mid, end, idx)
	b.nodes[idx].Left = left
	b.nodes[idx].Right = right
	return idx
}

// split reorders order[start:end] and returns the first index of the right half. It returns false
// when the node should become a leaf.
func (b *builder) split(start, end int, bounds, centroids spatialmath.AABB) (int, bool) {
	count := end - start
	if count <= b.maxLeaf {
		return 0, false
	}
	axis := centroids.LongestAxis()
	if spatialmath.Component(centroids.Size(), axis) <= 0 {
		// Every centroid coincides; halve by position.
		return start + count/2, true
	}

	switch b.strategy {
	case SplitCenter:
		return b.medianSplit(start, end, axis), true
	case SplitAverage:
		var sum float64
		for _, prim := range b.order[start:end] {
			sum += spatialmath.Component(b.items[prim].centroid, axis)
		}
		mean := sum / float64(count)
		mid := b.stablePartition(start, end, func(prim int32) bool {
			return spatialmath.Component(b.items[prim].centroid, axis) < mean
		})
		if mid == start || mid == end {
			return b.medianSplit(start, end, axis), true
		}
		return mid, true
	default:
		return b.sahSplit(start, end, bounds, centroids)
	}
}

// medianSplit sorts the range by centroid on axis, ties by primitive index, and cuts it in half.
func (b *builder) medianSplit(start, end, axis int) int {
	rng := b.order[start:end]
	sort.SliceStable(rng, func(i, j int) bool {
		ci := spatialmath.Component(b.items[rng[i]].centroid, axis)
		cj := spatialmath.Component(b.items[rng[j]].centroid, axis)
		if ci != cj {
			return ci < cj
		}
		return rng[i] < rng[j]
	})
	return start + (end-start)/2
}

// stablePartition moves primitives satisfying left to the front of the range, preserving relative
// order on both sides, and returns the boundary.
func (b *builder) stablePartition(start, end int, left func(int32) bool) int {
	rng := b.order[start:end]
	tmp := b.scratch[start:end]
	l := 0
	for _, prim := range rng {
		if left(prim) {
			tmp[l] = prim
			l++
		}
	}
	r := l
	for _, prim := range rng {
		if !left(prim) {
			tmp[r] = prim
			r++
		}
	}
	copy(rng, tmp)
	return start + l
}

type sahBin struct {
	bounds spatialmath.AABB
	count  int
}

func (b *builder) binIndex(c, lo, extent float64) int {
	bin := int(float64(b.bins) * (c - lo) / extent)
	return utils.ClampInt(bin, 0, b.bins-1)
}

// sahSplit evaluates bins-1 candidate planes on every axis. The lowest cost wins, ties resolving to
// the lower axis and then the lower plane, so the result is independent of evaluation order.
func (b *builder) sahSplit(start, end int, bounds, centroids spatialmath.AABB) (int, bool) {
	count := end - start
	parentArea := bounds.SurfaceArea()
	leafCost := intersectCost * float64(count)

	bestCost := math.Inf(1)
	bestAxis, bestPlane := -1, -1
	bins := make([]sahBin, b.bins)
	rightArea := make([]float64, b.bins)
	rightCount := make([]int, b.bins)
	for axis := 0; axis < 3; axis++ {
		lo := spatialmath.Component(centroids.Min, axis)
		extent := spatialmath.Component(centroids.Size(), axis)
		if extent <= 0 {
			continue
		}
		for i := range bins {
			bins[i] = sahBin{bounds: spatialmath.EmptyAABB()}
		}
		for _, prim := range b.order[start:end] {
			bin := b.binIndex(spatialmath.Component(b.items[prim].centroid, axis), lo, extent)
			bins[bin].count++
			bins[bin].bounds = bins[bin].bounds.Merge(b.items[prim].bounds)
		}

		acc := spatialmath.EmptyAABB()
		n := 0
		for i := b.bins - 1; i > 0; i-- {
			acc = acc.Merge(bins[i].bounds)
			n += bins[i].count
			rightArea[i] = acc.SurfaceArea()
			rightCount[i] = n
		}

		acc = spatialmath.EmptyAABB()
		n = 0
		for plane := 1; plane < b.bins; plane++ {
			acc = acc.Merge(bins[plane-1].bounds)
			n += bins[plane-1].count
			if n == 0 || rightCount[plane] == 0 {
				continue
			}
			cost := traversalCost + intersectCost*(acc.SurfaceArea()*float64(n)+rightArea[plane]*float64(rightCount[plane]))/parentArea
			if parentArea <= 0 {
				cost = traversalCost + intersectCost*float64(count)/2
			}
			if cost < bestCost {
				bestCost, bestAxis, bestPlane = cost, axis, plane
			}
		}
	}

	if bestAxis < 0 {
		return b.medianSplit(start, end, centroids.LongestAxis()), true
	}
	if bestCost >= leafCost {
		return 0, false
	}

	lo := spatialmath.Component(centroids.Min, bestAxis)
	extent := spatialmath.Component(centroids.Size(), bestAxis)
	mid := b.stablePartition(start, end, func(prim int32) bool {
		return b.binIndex(spatialmath.Component(b.items[prim].centroid, bestAxis), lo, extent) < bestPlane
	})
	if mid == start || mid == end {
		return b.medianSplit(start, end, bestAxis), true
	}
	return mid, true
}
