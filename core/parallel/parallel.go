// Package parallel provides bounded goroutine fan-out for independent work
// items such as per-query posterior evaluations.
package parallel

import (
	"runtime"
	"sync"
)

// ParallelizeWorkers divides items across at most workers goroutines and
// executes fn for each contiguous range [start, end). fn must only write to
// indices inside its own range.
func ParallelizeWorkers(items, workers int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	if workers < 1 {
		workers = 1
	}
	if workers > items {
		workers = items
	}
	if workers == 1 {
		fn(0, items)
		return
	}

	// ceiling division
	chunkSize := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}

// ResolveWorkers maps a threads setting to a worker count: -1 selects every
// available CPU, positive values are used as given. ok is false otherwise.
func ResolveWorkers(threads int) (workers int, ok bool) {
	switch {
	case threads == -1:
		return runtime.NumCPU(), true
	case threads > 0:
		return threads, true
	default:
		return 0, false
	}
}
