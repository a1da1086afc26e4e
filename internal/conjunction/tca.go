package conjunction

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/madddiyarn/regulus/internal/propagation"
	"github.com/madddiyarn/regulus/internal/tle"
)

// invPhi is 1/φ, the golden-section shrink factor.
var invPhi = (math.Sqrt(5) - 1) / 2

// Window is the time span searched for one pair.
type Window struct {
	Start            time.Time
	Span             time.Duration
	Samples          int
	RefineIterations int
}

// End returns the last instant of the window.
func (w Window) End() time.Time { return w.Start.Add(w.Span) }

// Step is the spacing between coarse samples.
func (w Window) Step() time.Duration {
	if w.Samples < 2 {
		return w.Span
	}
	return time.Duration(float64(w.Span) / float64(w.Samples-1))
}

func (w Window) sample(i int) time.Time {
	if w.Samples < 2 {
		return w.Start
	}
	return w.Start.Add(time.Duration(float64(w.Span) * float64(i) / float64(w.Samples-1)))
}

// Approach is the outcome of searching one pair.
type Approach struct {
	// Found is false when every coarse sample failed.
	Found      bool
	TCA        time.Time
	DistanceKm float64
	// RelativeVelocityMps, Primary and Secondary are nil when either object
	// fails to propagate at TCA. TCAFailure then holds the reason; it is not
	// counted in Failures.
	RelativeVelocityMps *float64
	Primary, Secondary  *propagation.StateVector
	TCAFailure          propagation.Reason

	Evaluations int
	Failures    int
	LastFailure propagation.Reason
}

// pairSearch evaluates separations for one pair and keeps the failure tally.
type pairSearch struct {
	prop                propagation.Propagator
	primary, secondary  tle.ElementSet
	evaluations, failed int
	lastReason          propagation.Reason
}

func (s *pairSearch) propagate(at time.Time) (p, q propagation.StateVector, err error) {
	if p, err = s.prop.Propagate(s.primary, at); err != nil {
		return p, q, err
	}
	q, err = s.prop.Propagate(s.secondary, at)
	return p, q, err
}

// states propagates both objects for one search sample.
func (s *pairSearch) states(at time.Time) (p, q propagation.StateVector, ok bool) {
	s.evaluations++
	p, q, err := s.propagate(at)
	if err != nil {
		s.failed++
		s.lastReason = propagation.ReasonOf(err)
		return p, q, false
	}
	return p, q, true
}

// separation returns the distance in km at at, or +Inf when either object
// cannot be propagated.
func (s *pairSearch) separation(at time.Time) float64 {
	p, q, ok := s.states(at)
	if !ok {
		return math.Inf(1)
	}
	d := r3.Norm(r3.Sub(p.Position, q.Position))
	if math.IsNaN(d) {
		return math.Inf(1)
	}
	return d
}

// Search finds the time of closest approach between primary and secondary
// within w. Propagation failures skip the affected sample. The only error
// returned is the context's, checked between samples.
func Search(ctx context.Context, prop propagation.Propagator, primary, secondary tle.ElementSet, w Window) (Approach, error) {
	s := &pairSearch{prop: prop, primary: primary, secondary: secondary}

	bestIdx := -1
	best := math.Inf(1)
	for i := 0; i < w.Samples; i++ {
		if err := ctx.Err(); err != nil {
			return Approach{}, err
		}
		if d := s.separation(w.sample(i)); d < best {
			best, bestIdx = d, i
		}
	}

	a := Approach{}
	if bestIdx >= 0 {
		tca := w.sample(bestIdx)
		if w.RefineIterations > 0 {
			var err error
			if tca, best, err = s.refine(ctx, w, tca, best); err != nil {
				return Approach{}, err
			}
		}
		a.Found = true
		a.TCA = tca
		a.DistanceKm = best

		if p, q, err := s.propagate(tca); err != nil {
			a.TCAFailure = propagation.ReasonOf(err)
		} else {
			rel := r3.Norm(r3.Sub(p.Velocity, q.Velocity)) * 1000
			a.RelativeVelocityMps = &rel
			a.Primary, a.Secondary = &p, &q
		}
	}

	a.Evaluations = s.evaluations
	a.Failures = s.failed
	a.LastFailure = s.lastReason
	return a, nil
}

// refine runs a golden-section search within one coarse step of center,
// clipped to the window. The best point seen wins, so the returned distance
// never exceeds the coarse one.
func (s *pairSearch) refine(ctx context.Context, w Window, center time.Time, dist float64) (time.Time, float64, error) {
	step := w.Step()
	lo, hi := center.Add(-step), center.Add(step)
	if lo.Before(w.Start) {
		lo = w.Start
	}
	if end := w.End(); hi.After(end) {
		hi = end
	}

	bestT, bestD := center, dist
	consider := func(t time.Time, d float64) {
		if d < bestD {
			bestT, bestD = t, d
		}
	}
	at := func(offset float64) time.Time {
		return lo.Add(time.Duration(offset * float64(time.Second)))
	}

	a, b := 0.0, hi.Sub(lo).Seconds()
	x1 := b - invPhi*(b-a)
	x2 := a + invPhi*(b-a)
	f1 := s.separation(at(x1))
	f2 := s.separation(at(x2))
	consider(at(x1), f1)
	consider(at(x2), f2)

	for i := 0; i < w.RefineIterations && b-a > 1e-3; i++ {
		if err := ctx.Err(); err != nil {
			return time.Time{}, 0, err
		}
		if f1 < f2 {
			b, x2, f2 = x2, x1, f1
			x1 = b - invPhi*(b-a)
			f1 = s.separation(at(x1))
			consider(at(x1), f1)
		} else {
			a, x1, f1 = x1, x2, f2
			x2 = a + invPhi*(b-a)
			f2 = s.separation(at(x2))
			consider(at(x2), f2)
		}
	}
	return bestT, bestD, nil
}
