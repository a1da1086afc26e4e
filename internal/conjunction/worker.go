package conjunction

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/tle"
)

// pairOutcome is the output of screening one secondary against the primary.
type pairOutcome struct {
	secondary tle.ElementSet
	approach  Approach
	collision *Collision
	inserted  bool
	storeErr  error
	fault     error
}

// pairFunc screens one secondary. It must not block on anything but ctx.
type pairFunc func(ctx context.Context, secondary tle.ElementSet) pairOutcome

// pairPool runs pairFuncs on a fixed number of goroutines.
type pairPool struct {
	workers int
	logger  *slog.Logger
}

func newPairPool(workers int, logger *slog.Logger) *pairPool {
	if workers < 1 {
		workers = 1
	}
	return &pairPool{workers: workers, logger: logger}
}

// run screens every secondary and returns the outcomes of the pairs that
// completed. Once ctx is done no new pair is started; pairs already running
// stop at their next sample.
func (p *pairPool) run(ctx context.Context, secondaries []tle.ElementSet, fn pairFunc) []pairOutcome {
	if len(secondaries) == 0 {
		return nil
	}

	jobs := make(chan tle.ElementSet, p.workers*2)
	results := make(chan pairOutcome, p.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for es := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results <- p.screen(ctx, es, fn)
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(jobs)
		for _, es := range secondaries {
			select {
			case jobs <- es:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]pairOutcome, 0, len(secondaries))
	for out := range results {
		outcomes = append(outcomes, out)
	}
	return outcomes
}

// screen runs fn with a panic guard so one bad pair cannot take down the run.
func (p *pairPool) screen(ctx context.Context, es tle.ElementSet, fn pairFunc) (out pairOutcome) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pair screening panicked",
				"secondary_id", es.ObjectID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			out = pairOutcome{
				secondary: es,
				fault:     errors.AssertionFailedf("panic screening object %d: %v", es.ObjectID, r),
			}
		}
	}()
	return fn(ctx, es)
}
