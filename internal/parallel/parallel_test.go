package parallel

import (
	"sync/atomic"
	"testing"
)

// TestFor_CoversAllIndices verifies every index is visited exactly once.
func TestFor_CoversAllIndices(t *testing.T) {
	const n = 1000
	visited := make([]int32, n)

	For(n, func(i int) {
		atomic.AddInt32(&visited[i], 1)
	}, Config{Enabled: true, NumWorkers: 8, MinChunkSize: 16})

	for i, v := range visited {
		if v != 1 {
			t.Fatalf("index %d visited %d times", i, v)
		}
	}
}

// TestFor_SequentialFallback verifies small n runs sequentially in order.
func TestFor_SequentialFallback(t *testing.T) {
	var order []int
	For(8, func(i int) {
		order = append(order, i)
	}, Config{Enabled: true, NumWorkers: 4, MinChunkSize: 64})

	for i, v := range order {
		if v != i {
			t.Fatalf("expected sequential order, got %v", order)
		}
	}
}

// TestFor_Disabled verifies disabled config never spawns goroutines.
func TestFor_Disabled(t *testing.T) {
	var count int // Not atomic: safe only if execution is sequential.
	For(500, func(i int) {
		count++
	}, Serial())

	if count != 500 {
		t.Errorf("expected 500 iterations, got %d", count)
	}
}

// TestForBatch_Decomposition verifies the (batch, channel) unflattening.
func TestForBatch_Decomposition(t *testing.T) {
	const batch, channels = 3, 5
	var visited [batch][channels]int32

	ForBatch(batch, channels, func(b, c int) {
		atomic.AddInt32(&visited[b][c], 1)
	}, DefaultConfig())

	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			if visited[b][c] != 1 {
				t.Errorf("(b=%d, c=%d) visited %d times", b, c, visited[b][c])
			}
		}
	}
}
