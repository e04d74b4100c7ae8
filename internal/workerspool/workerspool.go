// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs data-parallel loops over a bounded number of goroutines.
//
// Models use it to compute independent rows (node embeddings, pair scores) in parallel.
// Each task writes only to its own output slots, so results do not depend on scheduling.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool limits the number of goroutines used by ParallelFor.
type Pool struct {
	// maxParallelism is the number of goroutines used for a loop.
	// If 0 parallelism is disabled and loops run inline.
	maxParallelism int
}

// New return a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	return &Pool{maxParallelism: runtime.NumCPU()}
}

// NewWithParallelism returns a Pool with the given parallelism. Values <= 0 disable parallelism.
func NewWithParallelism(n int) *Pool {
	if n < 0 {
		n = 0
	}
	return &Pool{maxParallelism: n}
}

// IsEnabled returns whether parallelism is enabled, that is, maxParallelism > 1.
func (w *Pool) IsEnabled() bool {
	return w != nil && w.maxParallelism > 1
}

// MaxParallelism returns the number of goroutines used by a loop.
func (w *Pool) MaxParallelism() int {
	if w == nil {
		return 0
	}
	return w.maxParallelism
}

// minChunk is the smallest range handed to a goroutine: tiny tasks are cheaper inline.
const minChunk = 64

// ParallelFor calls fn(start, end) over disjoint ranges covering [0, n), and returns when all
// of them finished. fn must only write to outputs indexed within its range.
//
// A nil Pool runs inline.
func (w *Pool) ParallelFor(n int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if !w.IsEnabled() || n <= minChunk {
		fn(0, n)
		return
	}
	numChunks := min(w.maxParallelism, (n+minChunk-1)/minChunk)
	chunkSize := (n + numChunks - 1) / numChunks
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(start, end)
		}()
	}
	wg.Wait()
}

// Map applies fn to every index in [0, n) in parallel and collects the results in order.
func Map[T any](w *Pool, n int, fn func(i int) T) []T {
	results := make([]T, n)
	w.ParallelFor(n, func(start, end int) {
		for i := start; i < end; i++ {
			results[i] = fn(i)
		}
	})
	return results
}
