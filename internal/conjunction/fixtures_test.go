package conjunction

import (
	"context"
	"io"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/madddiyarn/regulus/internal/propagation"
	"github.com/madddiyarn/regulus/internal/tle"
)

var (
	testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	testStart  = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// omega completes half a revolution per day, so two counter-rotating
	// objects starting half a turn apart meet exactly once, at t0+12h.
	omega = math.Pi / 86400
)

const (
	objPrimary   = 100 // R=7000 km, prograde, phase 0
	objEncounter = 200 // R=7000.8 km, retrograde, phase π: 0.8 km at 12h
	objNearMiss  = 300 // R=7006 km, retrograde, phase π: 6 km at 12h
	objFar       = 400 // R=7100 km, prograde, phase π: never close
)

// circular is an analytic equatorial orbit used in place of SGP4.
type circular struct {
	radiusKm float64
	phase    float64
	omega    float64 // rad/s, negative for retrograde
}

func (c circular) state(at time.Time) propagation.StateVector {
	th := c.phase + c.omega*at.Sub(testStart).Seconds()
	return propagation.StateVector{
		Time:     at,
		Position: r3.Vec{X: c.radiusKm * math.Cos(th), Y: c.radiusKm * math.Sin(th)},
		Velocity: r3.Vec{X: -c.radiusKm * c.omega * math.Sin(th), Y: c.radiusKm * c.omega * math.Cos(th)},
	}
}

var orbits = map[int]circular{
	objPrimary:   {radiusKm: 7000, phase: 0, omega: omega},
	objEncounter: {radiusKm: 7000.8, phase: math.Pi, omega: -omega},
	objNearMiss:  {radiusKm: 7006, phase: math.Pi, omega: -omega},
	objFar:       {radiusKm: 7100, phase: math.Pi, omega: omega},
}

// analytic propagates the objects in orbits; anything else decays.
var analytic = propagation.Func(func(es tle.ElementSet, at time.Time) (propagation.StateVector, error) {
	o, ok := orbits[es.ObjectID]
	if !ok {
		return propagation.StateVector{}, propagation.NewFailure(es.ObjectID, propagation.ReasonDecayed, nil)
	}
	return o.state(at), nil
})

// elementSet returns a synthetic element set with the given age at testStart.
func elementSet(id int, age time.Duration) tle.ElementSet {
	return tle.ElementSet{ObjectID: id, Name: "OBJ-" + strconv.Itoa(id), Epoch: testStart.Add(-age)}
}

// catalogOf loads sets into a fresh catalog.
func catalogOf(sets ...tle.ElementSet) *tle.Catalog {
	c := tle.NewCatalog()
	c.Set(tle.NewDataset("test", testStart, sets))
	return c
}

// memStore is an in-memory Store with the same pair uniqueness rule as the
// SQLite store.
type memStore struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *memStore) Upsert(_ context.Context, ev Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	lo, hi := ev.PrimaryID, ev.SecondaryID
	if lo > hi {
		lo, hi = hi, lo
	}
	for _, e := range m.events {
		elo, ehi := e.PrimaryID, e.SecondaryID
		if elo > ehi {
			elo, ehi = ehi, elo
		}
		if e.RunKey == ev.RunKey && e.Status == StatusActive && elo == lo && ehi == hi {
			return false, nil
		}
	}
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now()
	m.events = append(m.events, ev)
	return true, nil
}

func (m *memStore) snapshot() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// countingRecorder tallies Recorder calls.
type countingRecorder struct {
	mu         sync.Mutex
	outcomes   []string
	recorded   map[string]int
	duplicates int
	failures   map[string]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{recorded: map[string]int{}, failures: map[string]int{}}
}

func (r *countingRecorder) RunCompleted(outcome string, _ time.Duration, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *countingRecorder) PropagationFailures(reason string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[reason] += n
}

func (r *countingRecorder) ConjunctionRecorded(tier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded[tier]++
}

func (r *countingRecorder) DuplicateSuppressed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.duplicates++
}
