// Package fanout issues N generation calls under a concurrency cap and
// streams their results in completion order.
package fanout

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/zen-systems/mediagate/pkg/artifact"
	"github.com/zen-systems/mediagate/pkg/provider"
)

// DefaultLimit caps in-flight calls for remote providers.
const DefaultLimit = 4

// Func performs one generation. index is the submission index in [0, n).
type Func func(ctx context.Context, index int) ([]*artifact.Artifact, error)

// Result is one finished call. Slot is its completion rank, starting at 0;
// Index is the submission index it was launched with.
type Result struct {
	Slot      int
	Index     int
	Artifacts []*artifact.Artifact
	Err       error
}

// Limit returns the concurrency cap for n calls against p. The local
// pipeline owns a single device and always gets 1.
func Limit(p provider.Provider, n int) int {
	if p == provider.Local {
		return 1
	}
	if n < 1 {
		return 1
	}
	return min(n, DefaultLimit)
}

// Run launches n calls of fn, at most limit at a time. The returned channel
// yields exactly n results, in completion order, then closes. A failing call
// does not cancel its siblings; cancelling ctx does, and calls that never
// started report ctx.Err().
func Run(ctx context.Context, n, limit int, fn Func) <-chan Result {
	if limit < 1 {
		limit = 1
	}
	if n < 0 {
		n = 0
	}

	results := make(chan Result, n)
	sem := semaphore.NewWeighted(int64(limit))
	var wg sync.WaitGroup

	// results is buffered for all n, so the send under mu never blocks and
	// channel order matches Slot.
	var mu sync.Mutex
	slot := 0
	emit := func(index int, arts []*artifact.Artifact, err error) {
		mu.Lock()
		defer mu.Unlock()
		results <- Result{Slot: slot, Index: index, Artifacts: arts, Err: err}
		slot++
	}

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				emit(index, nil, err)
				return
			}
			defer sem.Release(1)

			arts, err := fn(ctx, index)
			emit(index, arts, err)
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// Collect drains a result channel into a slice ordered by Slot.
func Collect(results <-chan Result) []Result {
	var out []Result
	for r := range results {
		out = append(out, r)
	}
	return out
}

// Artifacts flattens successful results in completion order and returns the
// failures separately.
func Artifacts(results []Result) ([]*artifact.Artifact, []Result) {
	var arts []*artifact.Artifact
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
			continue
		}
		arts = append(arts, r.Artifacts...)
	}
	return arts, failed
}
