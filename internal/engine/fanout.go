package engine

import (
	"context"
	"fmt"
	"sync"
)

// RunMany executes each target independently and concurrently through Run
// and waits for all of them. An empty target list means every currently
// registered script. One target's failure never cancels its siblings: the
// error is converted to a synthetic per-target result with the message in
// stderr and exit code -1. Subprocess concurrency is still bounded by the
// admission gate, so with N targets and capacity C at most C subprocesses
// run at any instant.
func (r *Runner) RunMany(ctx context.Context, names []string, args []string, input []byte) map[string]Result {
	if len(names) == 0 {
		names = r.registry.List()
	}

	results := make(map[string]Result, len(names))
	if len(names) == 0 {
		return results
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			res, err := r.Run(ctx, name, args, input)
			if err != nil {
				res = Result{
					Stdout:   "",
					Stderr:   fmt.Sprintf("Error: %v", err),
					ExitCode: -1,
					TimedOut: false,
				}
			}

			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name)
	}
	wg.Wait()

	return results
}
