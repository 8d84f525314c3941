package spatialmath

import (
	"sort"

	"github.com/golang/geo/r3"
)

// Hit is a resolved intersection against an indexed primitive.
type Hit struct {
	Distance    float64
	Point       r3.Vector
	Normal      r3.Vector
	Barycentric [3]float64
	// Index is the primitive index in the caller's original ordering.
	Index int
}

// HitLess orders hits by ascending distance, then ascending primitive index.
func HitLess(a, b Hit) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Index < b.Index
}

// SortHits sorts in place by ascending distance. Equal distances are ordered by primitive index.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return HitLess(hits[i], hits[j])
	})
}
