// Package utils contains small helpers shared by the acceleration packages.
package utils

import (
	"math"

	"github.com/golang/geo/r3"
)

// Float64AlmostEqual reports whether a and b are within epsilon of each other.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

// IsFinite reports whether f is neither NaN nor an infinity.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// IsFiniteVector reports whether every component of v is finite.
func IsFiniteVector(v r3.Vector) bool {
	return IsFinite(v.X) && IsFinite(v.Y) && IsFinite(v.Z)
}

// VectorAlmostEqual compares two vectors component-wise.
func VectorAlmostEqual(a, b r3.Vector, epsilon float64) bool {
	return Float64AlmostEqual(a.X, b.X, epsilon) &&
		Float64AlmostEqual(a.Y, b.Y, epsilon) &&
		Float64AlmostEqual(a.Z, b.Z, epsilon)
}

// Square returns n*n.
func Square(n float64) float64 {
	return n * n
}

// MaxInt returns the larger of a and b.
func MaxInt(a, b int) int {
	if a < b {
		return b
	}
	return a
}

// MinInt returns the smaller of a and b.
func MinInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ClampInt bounds n to [lo, hi].
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// ScaleByPct scales a max number by a floating point percentage between two bounds [0, n].
func ScaleByPct(n int, pct float64) int {
	scaled := int(float64(n) * pct)
	if scaled < 0 {
		scaled = 0
	} else if scaled > n {
		scaled = n
	}
	return scaled
}
