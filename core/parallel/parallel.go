// Package parallel provides a small chunked worker helper for
// embarrassingly parallel index ranges. Workers receive disjoint [start,
// end) ranges, so callers writing to distinct slots of a pre-sized result
// slice need no locking.
package parallel

import (
	"runtime"
	"sync"
)

// Parallelize splits items across workers and calls fn once per worker with
// a disjoint (start, end) range. The worker count defaults to the number of
// CPU cores; pass workers <= 0 to use that default.
func Parallelize(items, workers int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items
	}

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

// ParallelizeWithThreshold runs fn sequentially over the whole range when
// items does not exceed threshold, and in parallel otherwise.
func ParallelizeWithThreshold(items, threshold, workers int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, workers, fn)
}
