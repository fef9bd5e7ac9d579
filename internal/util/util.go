// Package util holds small conversions shared by the RPC layer and CLI.
package util

import (
	"math"
	"time"
)

// AsInt32 converts an integer to int32, saturating at the int32 bounds.
func AsInt32[T ~int | ~int64](i T) int32 {
	if int64(i) > math.MaxInt32 {
		return math.MaxInt32
	}
	if int64(i) < math.MinInt32 {
		return math.MinInt32
	}
	// #nosec G115 - bounded by explicit check
	return int32(i)
}

// Seconds32 returns the whole seconds in d as an int32, truncating any
// fraction and saturating at the int32 bounds.
func Seconds32(d time.Duration) int32 {
	return AsInt32(int64(d / time.Second))
}
