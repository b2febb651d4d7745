// Package parallel runs independent per-item work, such as copying tensors out of a
// checkpoint, across goroutines.
package parallel

import (
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum items per goroutine.
}

// DefaultConfig returns defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 8,
	}
}

func parallelize(n int, cfg Config) bool {
	return cfg.Enabled && cfg.NumWorkers > 1 && n >= 2*max(cfg.MinChunkSize, 1)
}

func chunkSize(n int, cfg Config) int {
	return max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
}

// For executes f(i) for i in [0, n), in chunks of at least MinChunkSize items.
// Falls back to sequential execution if parallelism is disabled or n is too small.
func For(n int, f func(i int), cfg Config) {
	if !parallelize(n, cfg) {
		for i := range n {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunk := chunkSize(n, cfg)

	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForErr is For for fallible work, run on an errgroup limited to NumWorkers
// goroutines. Every item runs; the error of the lowest failing index is returned,
// so the result does not depend on scheduling.
func ForErr(n int, f func(i int) error, cfg Config) error {
	errs := make([]error, n)

	if !parallelize(n, cfg) {
		for i := range n {
			errs[i] = f(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(cfg.NumWorkers)
		chunk := chunkSize(n, cfg)
		for start := 0; start < n; start += chunk {
			end := min(start+chunk, n)
			g.Go(func() error {
				for i := start; i < end; i++ {
					errs[i] = f(i)
				}
				return nil
			})
		}
		_ = g.Wait() // Errors are kept per index in errs
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
