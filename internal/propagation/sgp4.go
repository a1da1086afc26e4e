package propagation

import (
	"math"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/tle"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go, explicit TEME output. Propagate() takes Satellite by value, so a
// record initialized once can be shared by any number of goroutines: each
// call works on its own copy. SGP4 error codes are not visible to the
// caller, so failures are detected from the output (NaN/Inf, radius).

const (
	// Radius below which an object is treated as decayed.
	minRadiusKm = 6378.137
	// Sanity ceiling for the near-Earth catalog.
	maxRadiusKm = 50000.0
)

// SGP4Propagator wraps the go-satellite library for a single element set.
type SGP4Propagator struct {
	sat      satellite.Satellite
	objectID int
}

// NewSGP4Propagator creates an SGP4 propagator from TLE lines.
// Returns an INVALID_ELEMENTS failure if the TLE cannot be parsed or the SGP4
// model fails to initialize.
//
// The lines are checked field by field first: go-satellite calls log.Fatal
// on a numeric field it cannot parse.
func NewSGP4Propagator(line1, line2 string, objectID int) (*SGP4Propagator, error) {
	if err := tle.ValidateLines(line1, line2); err != nil {
		return nil, NewFailure(objectID, ReasonInvalidElements, err)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, NewFailure(objectID, ReasonInvalidElements,
			errors.Newf("sgp4 init: code=%d %s", sat.Error, sat.ErrorStr))
	}
	return &SGP4Propagator{sat: sat, objectID: objectID}, nil
}

// StateAt computes the TEME state at t. go-satellite resolves whole seconds,
// so the sub-second remainder is applied as a first-order correction along
// the velocity vector.
func (p *SGP4Propagator) StateAt(t time.Time) (StateVector, error) {
	t = t.UTC()
	whole := t.Truncate(time.Second)
	pos, vel := satellite.Propagate(p.sat, whole.Year(), int(whole.Month()), whole.Day(),
		whole.Hour(), whole.Minute(), whole.Second())

	if !finite(pos.X, pos.Y, pos.Z, vel.X, vel.Y, vel.Z) {
		return StateVector{}, NewFailure(p.objectID, ReasonNumericError, errors.New("output is NaN/Inf"))
	}

	r := r3.Vec{X: pos.X, Y: pos.Y, Z: pos.Z}
	v := r3.Vec{X: vel.X, Y: vel.Y, Z: vel.Z}

	mag := r3.Norm(r)
	if mag < minRadiusKm {
		return StateVector{}, NewFailure(p.objectID, ReasonDecayed,
			errors.Newf("radius %.1f km below surface", mag))
	}
	if mag > maxRadiusKm {
		return StateVector{}, NewFailure(p.objectID, ReasonNumericError,
			errors.Newf("unreasonable radius %.1f km", mag))
	}

	if frac := t.Sub(whole).Seconds(); frac > 0 {
		r = r3.Add(r, r3.Scale(frac, v))
	}
	return StateVector{Time: t, Position: r, Velocity: v}, nil
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// sgp4Key identifies one element set. The lines embed the epoch, so a new
// element set for the same object gets a new key.
type sgp4Key struct {
	objectID     int
	line1, line2 string
}

type sgp4Entry struct {
	prop *SGP4Propagator
	err  error
}

// SGP4 is the production Propagator. It initializes each element set once
// and reuses the immutable record for every later call.
type SGP4 struct {
	cache sync.Map // sgp4Key -> sgp4Entry
}

// NewSGP4 creates an SGP4 propagator with an empty init cache.
func NewSGP4() *SGP4 {
	return &SGP4{}
}

// Propagate implements Propagator.
func (p *SGP4) Propagate(es tle.ElementSet, t time.Time) (StateVector, error) {
	key := sgp4Key{objectID: es.ObjectID, line1: es.Line1, line2: es.Line2}

	v, ok := p.cache.Load(key)
	if !ok {
		prop, err := NewSGP4Propagator(es.Line1, es.Line2, es.ObjectID)
		v, _ = p.cache.LoadOrStore(key, sgp4Entry{prop: prop, err: err})
	}
	entry := v.(sgp4Entry)
	if entry.err != nil {
		return StateVector{}, entry.err
	}
	return entry.prop.StateAt(t)
}

// Forget drops every cached record. Call after the catalog is replaced.
func (p *SGP4) Forget() {
	p.cache.Range(func(k, _ any) bool {
		p.cache.Delete(k)
		return true
	})
}
