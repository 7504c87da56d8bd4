package service

import (
	"hash/fnv"
	"math"
)

// SeededAdjustment maps an identifier deterministically onto [min, max].
// The same id always yields the same adjustment, so repeated valuations of
// one property agree until the underlying inputs change.
func SeededAdjustment(id string, min, max float64) float64 {
	h := fnv.New32a()
	h.Write([]byte(id))
	seed := h.Sum32()

	normalized := math.Abs(math.Sin(float64(seed)))
	return min + normalized*(max-min)
}
