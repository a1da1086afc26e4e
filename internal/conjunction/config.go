package conjunction

import (
	"runtime"
	"time"

	"github.com/madddiyarn/regulus/internal/errors"
)

// Config holds the tunables of a detection run. Zero values are not
// meaningful; start from DefaultConfig.
type Config struct {
	// Samples is the number of coarse instants evaluated per pair, both
	// window ends included.
	Samples int
	// RefineIterations bounds the golden-section refinement around the
	// coarse minimum. 0 disables refinement.
	RefineIterations int
	// Workers caps the number of pairs screened concurrently.
	Workers int

	DefaultHorizonHours float64
	MaxHorizonHours     float64
	DefaultThresholdKm  float64

	// StaleAfter is the element-set age beyond which a warning is raised.
	StaleAfter time.Duration
	// MinWorkingSet is the smallest primary+candidates count worth screening.
	MinWorkingSet int
	// RunKeyResolution buckets the window start when deriving the run key.
	RunKeyResolution time.Duration
	// SourceTag is stored with every event.
	SourceTag string

	Risk Boundaries
}

// DefaultConfig returns the canonical detection settings.
func DefaultConfig() Config {
	return Config{
		Samples:             200,
		RefineIterations:    40,
		Workers:             runtime.NumCPU(),
		DefaultHorizonHours: 24,
		MaxHorizonHours:     168,
		DefaultThresholdKm:  5,
		StaleAfter:          7 * 24 * time.Hour,
		MinWorkingSet:       2,
		RunKeyResolution:    time.Hour,
		SourceTag:           "sgp4",
		Risk:                DefaultBoundaries(),
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Samples < 2:
		return errors.InvalidArgumentf("samples must be at least 2, got %d", c.Samples)
	case c.RefineIterations < 0:
		return errors.InvalidArgumentf("refine iterations must not be negative, got %d", c.RefineIterations)
	case c.Workers < 1:
		return errors.InvalidArgumentf("workers must be at least 1, got %d", c.Workers)
	case !(c.MaxHorizonHours > 0):
		return errors.InvalidArgumentf("max horizon must be positive, got %g", c.MaxHorizonHours)
	case !(c.DefaultHorizonHours > 0) || c.DefaultHorizonHours > c.MaxHorizonHours:
		return errors.InvalidArgumentf("default horizon %g outside (0, %g]", c.DefaultHorizonHours, c.MaxHorizonHours)
	case !(c.DefaultThresholdKm > 0):
		return errors.InvalidArgumentf("default threshold must be positive, got %g", c.DefaultThresholdKm)
	case c.StaleAfter <= 0:
		return errors.InvalidArgumentf("stale-after must be positive, got %s", c.StaleAfter)
	case c.MinWorkingSet < 1:
		return errors.InvalidArgumentf("min working set must be at least 1, got %d", c.MinWorkingSet)
	case c.RunKeyResolution <= 0:
		return errors.InvalidArgumentf("run key resolution must be positive, got %s", c.RunKeyResolution)
	}
	return c.Risk.Validate()
}
