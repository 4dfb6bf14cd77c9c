package math

import (
	m "math"

	"golang.org/x/exp/constraints"
)

func Clamp[T constraints.Ordered](value, min, max T) T {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// ScaleDimension resolves a resolution-relative dimension against the
// authoritative output size. A scale of 1 returns the size unchanged.
func ScaleDimension(size uint32, scale float64) uint32 {
	scaled := m.Round(float64(size) * scale)
	return uint32(Max(scaled, 1))
}

// DispatchGroups returns the number of thread groups needed to cover size
// with the given group size.
func DispatchGroups(size, groupSize uint32) uint32 {
	return uint32(m.Ceil(float64(size) / float64(groupSize)))
}
