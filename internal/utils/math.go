/*
This file contains checked uint64 arithmetic helpers. All vault and strategy
accounting goes through these so that overflow is always surfaced to the
caller instead of wrapping silently.
*/

package utils

import "math/bits"

// AddU64 returns a+b and whether the addition stayed within uint64.
func AddU64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// SubU64 returns a-b and whether the subtraction did not underflow.
func SubU64(a, b uint64) (uint64, bool) {
	diff, borrow := bits.Sub64(a, b, 0)
	return diff, borrow == 0
}

// MulDivU64 returns floor(a*b/div) using a full 128-bit intermediate
// product. ok is false when div is zero or the quotient does not fit in
// uint64.
func MulDivU64(a, b, div uint64) (uint64, bool) {
	if div == 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= div {
		return 0, false
	}
	quo, _ := bits.Div64(hi, lo, div)
	return quo, true
}

// SatSubU16 returns a-b, clamped at zero.
func SatSubU16(a, b uint16) uint16 {
	if b >= a {
		return 0
	}
	return a - b
}

// SatAddU16 returns a+b, clamped at the uint16 maximum.
func SatAddU16(a, b uint16) uint16 {
	if sum := a + b; sum >= a {
		return sum
	}
	return 1<<16 - 1
}
