package utils

import "math"

// Square returns the square of the given number.
func Square(n float64) float64 {
	return n * n
}

// Clamp limits n to the closed range [lo, hi].
func Clamp(n, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, n))
}

// ClampInt limits n to the closed range [lo, hi].
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// Float64AlmostEqual compares two float64s and returns if the difference between them is less
// than epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

// Mod returns a modulo b in the range [0, b) for positive b.
func Mod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m < 0 {
		m += b
	}
	return m
}

// ModInt returns a modulo b in the range [0, b) for positive b.
func ModInt(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Log2Floor returns floor(log2(n)) for positive n.
func Log2Floor(n int) int {
	ret := -1
	for n > 0 {
		n >>= 1
		ret++
	}
	return ret
}
