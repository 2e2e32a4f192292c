// Package parallel splits index ranges across goroutines. It backs the
// per-frame work of batch loading and frame stacking.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how work is split.
type Config struct {
	Enabled  bool // run sequentially when false
	Workers  int  // maximum goroutines
	MinChunk int  // minimum items per goroutine
}

// DefaultConfig uses one worker per CPU. Items are whole frames, so a
// chunk of one is already worth a goroutine.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:  n > 1,
		Workers:  n,
		MinChunk: 1,
	}
}

// For calls f(i) for every i in [0, n).
func For(n int, f func(i int), cfg Config) {
	_ = ForErr(n, func(i int) error {
		f(i)
		return nil
	}, cfg)
}

// ForErr calls f(i) for every i in [0, n) and returns the error of the
// lowest failing index. Chunks that already started run to completion.
func ForErr(n int, f func(i int) error, cfg Config) error {
	if n <= 0 {
		return nil
	}
	workers := max(cfg.Workers, 1)
	chunk := max((n+workers-1)/workers, cfg.MinChunk, 1)
	if !cfg.Enabled || chunk >= n {
		for i := 0; i < n; i++ {
			if err := f(i); err != nil {
				return err
			}
		}
		return nil
	}

	numChunks := (n + chunk - 1) / chunk
	errs := make([]error, numChunks)
	var wg sync.WaitGroup
	for c := 0; c < numChunks; c++ {
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for i := c * chunk; i < min((c+1)*chunk, n); i++ {
				if err := f(i); err != nil {
					errs[c] = err
					return
				}
			}
		}(c)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ForBatch calls f(b, t) for every batch element and step.
func ForBatch(batch, steps int, f func(b, t int), cfg Config) {
	For(batch*steps, func(k int) {
		f(k/steps, k%steps)
	}, cfg)
}
