package conjunction

import (
	"math"
	"strings"
	"sync/atomic"

	"github.com/madddiyarn/regulus/internal/errors"
)

// RiskTier is the discrete severity of a conjunction. Tiers are ordered:
// a larger value is more severe.
type RiskTier int

const (
	TierLow RiskTier = iota + 1
	TierMedium
	TierHigh
	TierCritical
)

var tierNames = map[RiskTier]string{
	TierLow:      "LOW",
	TierMedium:   "MEDIUM",
	TierHigh:     "HIGH",
	TierCritical: "CRITICAL",
}

func (t RiskTier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether t is one of the four defined tiers.
func (t RiskTier) Valid() bool {
	return t >= TierLow && t <= TierCritical
}

// RequiresManeuverReview is true for HIGH and CRITICAL.
func (t RiskTier) RequiresManeuverReview() bool {
	return t >= TierHigh
}

func (t RiskTier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, errors.Newf("invalid risk tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *RiskTier) UnmarshalText(b []byte) error {
	v, err := ParseRiskTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseRiskTier parses a tier name, case-insensitively.
func ParseRiskTier(s string) (RiskTier, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for tier, name := range tierNames {
		if name == upper {
			return tier, nil
		}
	}
	return 0, errors.WithHint(
		errors.InvalidArgumentf("unknown risk tier %q", s),
		"valid tiers are LOW, MEDIUM, HIGH, CRITICAL")
}

// Boundaries are the upper (exclusive) miss distances of the three most
// severe tiers. Anything from MediumKm up to the run threshold is LOW.
type Boundaries struct {
	CriticalKm float64 `yaml:"critical_km" json:"criticalKm"`
	HighKm     float64 `yaml:"high_km" json:"highKm"`
	MediumKm   float64 `yaml:"medium_km" json:"mediumKm"`
}

// DefaultBoundaries: <1 km CRITICAL, <2 km HIGH, <3 km MEDIUM.
func DefaultBoundaries() Boundaries {
	return Boundaries{CriticalKm: 1, HighKm: 2, MediumKm: 3}
}

// Validate checks 0 < critical < high < medium.
func (b Boundaries) Validate() error {
	if !(b.CriticalKm > 0) || !(b.HighKm > b.CriticalKm) || !(b.MediumKm > b.HighKm) {
		return errors.WithHint(
			errors.InvalidArgumentf("risk boundaries must increase: critical=%g high=%g medium=%g",
				b.CriticalKm, b.HighKm, b.MediumKm),
			"require 0 < critical_km < high_km < medium_km")
	}
	return nil
}

// Classifier maps miss distances to tiers. Boundaries can be replaced at
// any time; each call sees one consistent set.
type Classifier struct {
	bounds atomic.Pointer[Boundaries]
}

// NewClassifier returns a classifier using b.
func NewClassifier(b Boundaries) (*Classifier, error) {
	c := &Classifier{}
	if err := c.SetBoundaries(b); err != nil {
		return nil, err
	}
	return c, nil
}

// SetBoundaries validates and installs b.
func (c *Classifier) SetBoundaries(b Boundaries) error {
	if err := b.Validate(); err != nil {
		return err
	}
	c.bounds.Store(&b)
	return nil
}

// Boundaries returns the boundaries currently in use.
func (c *Classifier) Boundaries() Boundaries {
	return *c.bounds.Load()
}

// Classify returns the tier for missKm. ok is false when the distance is not
// reportable: at or beyond thresholdKm, negative, or NaN.
func (c *Classifier) Classify(missKm, thresholdKm float64) (tier RiskTier, ok bool) {
	if math.IsNaN(missKm) || missKm < 0 || !(missKm < thresholdKm) {
		return 0, false
	}
	b := c.bounds.Load()
	switch {
	case missKm < b.CriticalKm:
		return TierCritical, true
	case missKm < b.HighKm:
		return TierHigh, true
	case missKm < b.MediumKm:
		return TierMedium, true
	default:
		return TierLow, true
	}
}
