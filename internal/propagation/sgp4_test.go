package propagation

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/tle"
	"github.com/madddiyarn/regulus/internal/transform"
)

// ISS TLE (epoch 2024, will still propagate reasonably for near-future times).
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9009"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    01"
)

// Starlink TLE (typical LEO constellation satellite).
const (
	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9998"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    07"
)

var (
	iss      = tle.ElementSet{ObjectID: 25544, Name: "ISS", Line1: issLine1, Line2: issLine2}
	starlink = tle.ElementSet{ObjectID: 44713, Name: "STARLINK", Line1: starlinkLine1, Line2: starlinkLine2}
)

// TestPropagateSingle verifies that a single satellite can be propagated
// and that the TEME output is reasonable.
func TestPropagateSingle(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2, 25544)
	if err != nil {
		t.Fatalf("NewSGP4Propagator failed: %v", err)
	}

	target := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	sv, err := prop.StateAt(target)
	if err != nil {
		t.Fatalf("StateAt failed: %v", err)
	}

	// ISS orbit: ~6371 + 420 km.
	mag := r3.Norm(sv.Position)
	if mag < 6500 || mag > 7000 {
		t.Errorf("TEME position magnitude = %.1f km, expected ~6791 km (ISS orbit)", mag)
	}
	speed := r3.Norm(sv.Velocity)
	if speed < 7.4 || speed > 7.9 {
		t.Errorf("TEME speed = %.3f km/s, expected ~7.66 km/s", speed)
	}

	ecef := transform.TEMEToECEF(sv.TEME(), target)
	if !transform.Plausible(ecef.Pos) {
		t.Errorf("implausible ECEF position: [%.1f, %.1f, %.1f] km", ecef.Pos.X, ecef.Pos.Y, ecef.Pos.Z)
	}
}

// TestPropagateInvalidTLE verifies that an invalid TLE is reported as
// INVALID_ELEMENTS.
func TestPropagateInvalidTLE(t *testing.T) {
	_, err := NewSGP4Propagator("invalid line 1", "invalid line 2", 99999)
	if err == nil {
		t.Fatal("expected error for invalid TLE, got nil")
	}
	if got := ReasonOf(err); got != ReasonInvalidElements {
		t.Errorf("reason = %s, want %s", got, ReasonInvalidElements)
	}

	var f *Failure
	if !errors.As(err, &f) || f.ObjectID != 99999 {
		t.Errorf("expected *Failure for object 99999, got %v", err)
	}
}

// TestPropagateCorruptField feeds an element set whose inclination is not a
// number but whose checksum is consistent. It must come back as an
// INVALID_ELEMENTS failure rather than reach the SGP4 initializer.
func TestPropagateCorruptField(t *testing.T) {
	line2 := strings.Replace(issLine2, " 51.6400", " 5X.6400", 1)
	line2 = line2[:tle.LineLength-1] + strconv.Itoa(tle.Checksum(line2))
	es := tle.ElementSet{ObjectID: 25544, Name: "ISS", Line1: issLine1, Line2: line2}

	p := NewSGP4()
	for i := 0; i < 2; i++ {
		_, err := p.Propagate(es, time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC))
		if err == nil {
			t.Fatal("expected error for corrupt inclination")
		}
		if got := ReasonOf(err); got != ReasonInvalidElements {
			t.Errorf("reason = %s, want %s", got, ReasonInvalidElements)
		}
	}

	if _, err := p.Propagate(iss, time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Errorf("valid element set failed after a corrupt one: %v", err)
	}
}

// TestSubSecondCorrection checks that fractional seconds move the object
// along its velocity instead of snapping to the whole second.
func TestSubSecondCorrection(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2, 25544)
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	s0, err := prop.StateAt(base)
	if err != nil {
		t.Fatal(err)
	}
	s1, err := prop.StateAt(base.Add(500 * time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	moved := r3.Norm(r3.Sub(s1.Position, s0.Position))
	want := 0.5 * r3.Norm(s0.Velocity)
	if math.Abs(moved-want) > 1e-9 {
		t.Errorf("moved %.6f km in 0.5 s, want %.6f km", moved, want)
	}
}

// TestPropagateNonUTC verifies that the location of t does not matter.
func TestPropagateNonUTC(t *testing.T) {
	p := NewSGP4()
	utc := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	local := utc.In(time.FixedZone("UTC+5", 5*3600))

	a, err := p.Propagate(iss, utc)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Propagate(iss, local)
	if err != nil {
		t.Fatal(err)
	}
	if r3.Norm(r3.Sub(a.Position, b.Position)) > 1e-9 {
		t.Errorf("position depends on time zone: %v vs %v", a.Position, b.Position)
	}
}

// TestSGP4Concurrent runs many goroutines against the shared cache and
// checks that every call for the same instant returns the same state.
func TestSGP4Concurrent(t *testing.T) {
	p := NewSGP4()
	at := time.Date(2024, 4, 10, 6, 30, 0, 0, time.UTC)

	want, err := p.Propagate(starlink, at)
	if err != nil {
		t.Fatal(err)
	}
	p.Forget()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			es := iss
			if i%2 == 0 {
				es = starlink
			}
			sv, err := p.Propagate(es, at)
			if err != nil {
				errs <- err
				return
			}
			if es.ObjectID == starlink.ObjectID && sv.Position != want.Position {
				errs <- errors.Newf("goroutine %d: position %v, want %v", i, sv.Position, want.Position)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

// TestSGP4CachesInitFailure checks that a bad element set keeps failing
// with the same reason on every call.
func TestSGP4CachesInitFailure(t *testing.T) {
	p := NewSGP4()
	bad := tle.ElementSet{ObjectID: 1, Line1: "1 short", Line2: "2 short"}

	for i := 0; i < 3; i++ {
		_, err := p.Propagate(bad, time.Now())
		if ReasonOf(err) != ReasonInvalidElements {
			t.Fatalf("call %d: reason = %s, want %s", i, ReasonOf(err), ReasonInvalidElements)
		}
	}
}

func TestReasonOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"decayed", NewFailure(1, ReasonDecayed, nil), ReasonDecayed},
		{"wrapped", errors.Wrap(NewFailure(1, ReasonInvalidElements, nil), "pair 1-2"), ReasonInvalidElements},
		{"plain error", errors.New("boom"), ReasonNumericError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReasonOf(tt.err); got != tt.want {
				t.Errorf("ReasonOf = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFuncAdapter(t *testing.T) {
	var p Propagator = Func(func(es tle.ElementSet, at time.Time) (StateVector, error) {
		return StateVector{Time: at, Position: r3.Vec{X: float64(es.ObjectID)}}, nil
	})
	sv, err := p.Propagate(tle.ElementSet{ObjectID: 7}, time.Unix(0, 0))
	if err != nil || sv.Position.X != 7 {
		t.Errorf("Func adapter returned %v, %v", sv, err)
	}
}
