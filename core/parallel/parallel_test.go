package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParallelizeWorkersCoversEveryItem(t *testing.T) {
	for _, tc := range []struct{ items, workers int }{
		{0, 4}, {1, 4}, {7, 3}, {100, 8}, {5, 0}, {3, 10},
	} {
		hits := make([]int32, tc.items)
		ParallelizeWorkers(tc.items, tc.workers, func(start, end int) {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
		})
		for i, h := range hits {
			assert.Equalf(t, int32(1), h, "items=%d workers=%d index=%d", tc.items, tc.workers, i)
		}
	}
}

func TestResolveWorkers(t *testing.T) {
	w, ok := ResolveWorkers(-1)
	assert.True(t, ok)
	assert.Equal(t, runtime.NumCPU(), w)

	w, ok = ResolveWorkers(3)
	assert.True(t, ok)
	assert.Equal(t, 3, w)

	_, ok = ResolveWorkers(0)
	assert.False(t, ok)
	_, ok = ResolveWorkers(-2)
	assert.False(t, ok)
}
