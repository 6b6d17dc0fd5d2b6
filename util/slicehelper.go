package util

import (
	"golang.org/x/exp/constraints"
)

// Clamp limits v to the closed range [lo, hi].
func Clamp[T constraints.Ordered](v T, lo T, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MulOverflows reports whether a*b overflows the int64 range for non-negative inputs.
func MulOverflows[T constraints.Integer](a T, b T) bool {
	if a == 0 || b == 0 {
		return false
	}
	x := int64(a)
	y := int64(b)
	if x < 0 || y < 0 {
		return true
	}
	return x > math64Max/y
}

const math64Max = int64(^uint64(0) >> 1)
