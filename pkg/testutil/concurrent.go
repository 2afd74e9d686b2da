package testutil

import (
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	dErrors "racepass/pkg/domain-errors"
	"racepass/pkg/platform/sentinel"
)

// ConcurrentResult tallies the outcomes of a concurrent run.
type ConcurrentResult struct {
	Successes int32
	Errors    int32
	Conflicts int32
	NotFounds int32

	// Codes counts failures by domain error code. Non-domain errors are
	// counted under CodeInternal.
	Codes map[dErrors.Code]int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Errors + r.Conflicts + r.NotFounds
}

// RunConcurrent releases goroutines calls of fn at once and tallies the
// results. Flow-family domain errors and sentinel.ErrConflict count as
// conflicts; not-found errors are counted apart.
func RunConcurrent(goroutines int, fn func(idx int) error) *ConcurrentResult {
	var (
		g     errgroup.Group
		mu    sync.Mutex
		start = make(chan struct{})
	)
	result := &ConcurrentResult{Codes: make(map[dErrors.Code]int32)}

	for i := 0; i < goroutines; i++ {
		g.Go(func() error {
			<-start
			err := fn(i)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				result.Successes++
				return nil
			case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
				result.NotFounds++
			case errors.Is(err, sentinel.ErrConflict), isFlowConflict(err):
				result.Conflicts++
			default:
				result.Errors++
			}
			result.Codes[dErrors.CodeOf(err)]++
			return nil
		})
	}
	close(start)
	_ = g.Wait()
	return result
}

func isFlowConflict(err error) bool {
	var de *dErrors.Error
	return errors.As(err, &de) && de.Kind() == dErrors.KindFlow
}
