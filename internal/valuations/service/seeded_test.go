package service

import (
	"fmt"
	"testing"
)

func TestSeededAdjustmentDeterministic(t *testing.T) {
	id := "4c8b32e1-9a7f-4f3a-b2c1-0d9e8f7a6b5c"

	first := SeededAdjustment(id, -0.05, 0.15)
	for i := 0; i < 10; i++ {
		if got := SeededAdjustment(id, -0.05, 0.15); got != first {
			t.Fatalf("SeededAdjustment not deterministic: got %v, want %v", got, first)
		}
	}
}

func TestSeededAdjustmentBounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("property-%d", i)
		got := SeededAdjustment(id, -0.05, 0.15)
		if got < -0.05 || got > 0.15 {
			t.Fatalf("SeededAdjustment(%q) = %v, out of [-0.05, 0.15]", id, got)
		}
	}
}

func TestSeededAdjustmentVariesAcrossIDs(t *testing.T) {
	seen := map[float64]bool{}
	for i := 0; i < 100; i++ {
		seen[SeededAdjustment(fmt.Sprintf("property-%d", i), -0.05, 0.15)] = true
	}
	// A hash that maps most ids to the same adjustment is broken.
	if len(seen) < 50 {
		t.Fatalf("expected varied adjustments across ids, got %d distinct values", len(seen))
	}
}
