package cluster

import (
	"runtime"
	"sync"
)

// ParallelFor splits [0, n) into contiguous chunks across available CPUs and
// runs fn for every index. Callers must write results into per-index slots;
// fn must not share mutable state between indices.
func ParallelFor(n int, fn func(i int)) {
	ParallelWorkers(0, n, fn)
}

// ParallelWorkers is ParallelFor with an explicit worker count. A count of
// zero or less uses all available CPUs.
func ParallelWorkers(workers, n int, fn func(i int)) {
	if n <= 0 {
		return
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	chunkSize := (n + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > n {
			end = n
		}
		if start >= end {
			break
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(i)
			}
		}(start, end)
	}
	wg.Wait()
}
