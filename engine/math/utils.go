package math

import "golang.org/x/exp/constraints"

// Clamp limits f to [low, high].
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// Saturate clamps every channel of a colour to [0, 1].
func Saturate(c Vec4) Vec4 {
	return NewVec4(Clamp(c.X, 0, 1), Clamp(c.Y, 0, 1), Clamp(c.Z, 0, 1), Clamp(c.W, 0, 1))
}
