package conjunction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a stored event. Detection only ever
// creates ACTIVE events; the other states are set by an external sweep.
type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusSuperseded Status = "SUPERSEDED"
	StatusExpired    Status = "EXPIRED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuperseded, StatusExpired:
		return true
	}
	return false
}

// Geodetic locates an encounter over the Earth.
type Geodetic struct {
	LatDeg float64 `json:"latDeg"`
	LonDeg float64 `json:"lonDeg"`
	AltKm  float64 `json:"altKm"`
}

// Event is one recorded conjunction.
type Event struct {
	ID                     uuid.UUID   `json:"id"`
	RunKey                 uuid.UUID   `json:"runKey"`
	PrimaryID              int         `json:"primaryId"`
	SecondaryID            int         `json:"secondaryId"`
	TCA                    time.Time   `json:"tca"`
	MissDistanceKm         float64     `json:"missDistanceKm"`
	RelativeVelocityMps    *float64    `json:"relativeVelocityMps"`
	RiskTier               RiskTier    `json:"riskTier"`
	RequiresManeuverReview bool        `json:"requiresManeuverReview"`
	Status                 Status      `json:"status"`
	CreatedAt              time.Time   `json:"createdAt"`
	SourceTag              string      `json:"sourceTag"`
	PrimaryPositionKm      *[3]float64 `json:"primaryPositionKm"`
	SecondaryPositionKm    *[3]float64 `json:"secondaryPositionKm"`
	Location               *Geodetic   `json:"location,omitempty"`
}

// Store persists events. Upsert reports false, with a nil error, when an
// ACTIVE event already exists for the same unordered pair and run key.
type Store interface {
	Upsert(ctx context.Context, ev Event) (bool, error)
}

// Recorder receives detection metrics.
type Recorder interface {
	RunCompleted(outcome string, elapsed time.Duration, pairs int)
	PropagationFailures(reason string, n int)
	ConjunctionRecorded(tier string)
	DuplicateSuppressed()
}

type nopRecorder struct{}

func (nopRecorder) RunCompleted(string, time.Duration, int) {}
func (nopRecorder) PropagationFailures(string, int)         {}
func (nopRecorder) ConjunctionRecorded(string)              {}
func (nopRecorder) DuplicateSuppressed()                    {}
