// Package utils holds small helpers shared by the HTTP layer that carry no
// domain logic.
package utils

import (
	"cmp"
	"strconv"
)

// Clamp bounds v to [lo, hi].
func Clamp[T cmp.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// IntParam parses a query value. Empty or malformed input yields def, and the
// result is clamped to [lo, hi].
//
//	utils.IntParam("500", 20, 1, 100) // 100
//	utils.IntParam("x", 20, 1, 100)   // 20
func IntParam(raw string, def, lo, hi int) int {
	n, err := strconv.Atoi(raw)
	if raw == "" || err != nil {
		n = def
	}
	return Clamp(n, lo, hi)
}
