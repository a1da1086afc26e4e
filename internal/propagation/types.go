package propagation

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/tle"
	"github.com/madddiyarn/regulus/internal/transform"
)

// StateVector is an object's position and velocity in the TEME frame.
type StateVector struct {
	Time     time.Time
	Position r3.Vec // km
	Velocity r3.Vec // km/s
}

// TEME returns the state without its timestamp.
func (s StateVector) TEME() transform.State {
	return transform.State{Pos: s.Position, Vel: s.Velocity}
}

// Propagator advances an element set to a point in time. Implementations
// must be safe for concurrent use and must not retain per-call state.
type Propagator interface {
	Propagate(es tle.ElementSet, t time.Time) (StateVector, error)
}

// Func adapts an ordinary function to the Propagator interface.
type Func func(es tle.ElementSet, t time.Time) (StateVector, error)

// Propagate calls f(es, t).
func (f Func) Propagate(es tle.ElementSet, t time.Time) (StateVector, error) {
	return f(es, t)
}

// Reason classifies a propagation failure.
type Reason string

const (
	ReasonDecayed         Reason = "DECAYED"
	ReasonInvalidElements Reason = "INVALID_ELEMENTS"
	ReasonNumericError    Reason = "NUMERIC_ERROR"
)

// Failure is the error returned when a state cannot be produced.
type Failure struct {
	ObjectID int
	Reason   Reason
	Err      error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("propagation failed for object %d: %s", f.ObjectID, f.Reason)
	}
	return fmt.Sprintf("propagation failed for object %d: %s: %v", f.ObjectID, f.Reason, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// NewFailure builds a Failure for objectID.
func NewFailure(objectID int, reason Reason, err error) *Failure {
	return &Failure{ObjectID: objectID, Reason: reason, Err: err}
}

// ReasonOf extracts the failure reason from err. Errors that are not a
// *Failure are reported as numeric errors.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ReasonNumericError
}
