package conjunction

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/propagation"
	"github.com/madddiyarn/regulus/internal/tle"
	"github.com/madddiyarn/regulus/internal/transform"
)

// Collision is one reportable approach in a detection result.
type Collision struct {
	SecondaryID            int       `json:"secondaryId"`
	SecondaryName          string    `json:"secondaryName,omitempty"`
	TCA                    time.Time `json:"tca"`
	MissDistanceKm         float64   `json:"missDistanceKm"`
	RelativeVelocityMps    *float64  `json:"relativeVelocityMps"`
	RiskTier               RiskTier  `json:"riskTier"`
	RequiresManeuverReview bool      `json:"requiresManeuverReview"`
}

// Result is the response of one detection run.
type Result struct {
	PrimaryID          int         `json:"primaryId"`
	PrimaryName        string      `json:"primaryName"`
	RunKey             uuid.UUID   `json:"runKey"`
	WindowStart        time.Time   `json:"windowStart"`
	WindowEnd          time.Time   `json:"windowEnd"`
	HorizonHours       float64     `json:"horizonHours"`
	ThresholdKm        float64     `json:"thresholdKm"`
	PrimaryAgeDays     float64     `json:"primaryAgeDays"`
	CollisionsDetected int         `json:"collisionsDetected"`
	Collisions         []Collision `json:"collisions"`
	CheckedAgainst     int         `json:"checkedAgainst"`
	Warnings           []string    `json:"warnings"`
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock replaces time.Now as the source of window starts and ages.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option {
	return func(d *Detector) { d.recorder = r }
}

// Detector runs conjunction detection for one primary at a time. It is safe
// for concurrent use.
type Detector struct {
	cfg        atomic.Pointer[Config]
	classifier *Classifier
	states     StateProvider
	prop       propagation.Propagator
	store      Store
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewDetector creates a Detector. cfg is validated.
func NewDetector(cfg Config, states StateProvider, prop propagation.Propagator, store Store, logger *slog.Logger, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "detection config")
	}
	classifier, err := NewClassifier(cfg.Risk)
	if err != nil {
		return nil, err
	}
	d := &Detector{
		classifier: classifier,
		states:     states,
		prop:       prop,
		store:      store,
		recorder:   nopRecorder{},
		logger:     logger,
		now:        time.Now,
	}
	d.cfg.Store(&cfg)
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the settings in effect.
func (d *Detector) Config() Config {
	return *d.cfg.Load()
}

// Reconfigure installs new settings. Runs already in progress keep the
// settings they started with, except for risk boundaries which apply to the
// next classification.
func (d *Detector) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := d.classifier.SetBoundaries(cfg.Risk); err != nil {
		return err
	}
	d.cfg.Store(&cfg)
	d.logger.Info("detection config updated",
		"samples", cfg.Samples,
		"workers", cfg.Workers,
		"critical_km", cfg.Risk.CriticalKm,
		"high_km", cfg.Risk.HighKm,
		"medium_km", cfg.Risk.MediumKm,
	)
	return nil
}

// run carries the per-invocation state shared by every pair.
type run struct {
	cfg       Config
	key       uuid.UUID
	primary   tle.ElementSet
	window    Window
	threshold float64
}

// Detect screens the primary of req against its candidates, records every
// reportable approach and returns the result. Invalid requests and a missing
// primary fail before any work. Per-pair problems become warnings. If ctx is
// cancelled the error wraps ctx.Err(); events recorded so far are kept.
func (d *Detector) Detect(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	cfg := d.Config()

	req, err := req.Normalize(cfg)
	if err != nil {
		d.recorder.RunCompleted("invalid", time.Since(started), 0)
		return nil, err
	}
	sel, err := Select(ctx, d.states, req)
	if err != nil {
		outcome := "error"
		if errors.IsNotFound(err) {
			outcome = "not_found"
		}
		d.recorder.RunCompleted(outcome, time.Since(started), 0)
		return nil, err
	}

	now := d.now().UTC()
	span := time.Duration(req.HorizonHours * float64(time.Hour))
	r := &run{
		cfg:       cfg,
		key:       RunKey(req.PrimaryID, now, req.HorizonHours, req.ThresholdKm, cfg.RunKeyResolution),
		primary:   sel.Primary,
		threshold: req.ThresholdKm,
		window: Window{
			Start:            now,
			Span:             span,
			Samples:          cfg.Samples,
			RefineIterations: cfg.RefineIterations,
		},
	}

	pool := newPairPool(cfg.Workers, d.logger)
	outcomes := pool.run(ctx, sel.Candidates, func(ctx context.Context, es tle.ElementSet) pairOutcome {
		return d.screenPair(ctx, r, es)
	})

	if err := ctx.Err(); err != nil {
		d.recorder.RunCompleted("cancelled", time.Since(started), len(outcomes))
		d.logger.Warn("detection cancelled",
			"primary_id", req.PrimaryID,
			"run_key", r.key,
			"pairs_completed", len(outcomes),
			"pairs_total", len(sel.Candidates),
		)
		return nil, errors.Wrapf(err, "detection for primary %d cancelled", req.PrimaryID)
	}

	res := &Result{
		PrimaryID:      sel.Primary.ObjectID,
		PrimaryName:    sel.Primary.Name,
		RunKey:         r.key,
		WindowStart:    r.window.Start,
		WindowEnd:      r.window.End(),
		HorizonHours:   req.HorizonHours,
		ThresholdKm:    req.ThresholdKm,
		PrimaryAgeDays: now.Sub(sel.Primary.Epoch).Hours() / 24,
		Collisions:     []Collision{},
		CheckedAgainst: len(sel.Candidates),
	}

	obs := Observations{
		Now:        now,
		Primary:    sel.Primary,
		Candidates: sel.Candidates,
		Missing:    sel.Missing,
	}
	failures := map[propagation.Reason]int{}
	var inserted, duplicates int
	for _, out := range outcomes {
		switch {
		case out.fault != nil:
			obs.Faulted = append(obs.Faulted, out.secondary.ObjectID)
			continue
		case !out.approach.Found:
			obs.Exhausted = append(obs.Exhausted, PairFailure{
				SecondaryID: out.secondary.ObjectID,
				Reason:      out.approach.LastFailure,
			})
		case out.approach.Failures > 0:
			obs.PartialPairs++
			obs.SkippedSamples += out.approach.Failures
		}
		if out.approach.Failures > 0 {
			failures[out.approach.LastFailure] += out.approach.Failures
		}

		if out.collision == nil {
			continue
		}
		res.Collisions = append(res.Collisions, *out.collision)
		if out.approach.TCAFailure != "" {
			obs.NoTCAState = append(obs.NoTCAState, out.secondary.ObjectID)
		}
		switch {
		case out.storeErr != nil:
			obs.StoreFailures++
			obs.LastStoreErr = out.storeErr
		case out.inserted:
			inserted++
			d.recorder.ConjunctionRecorded(out.collision.RiskTier.String())
		default:
			duplicates++
			d.recorder.DuplicateSuppressed()
		}
	}
	for reason, n := range failures {
		d.recorder.PropagationFailures(string(reason), n)
	}

	sort.SliceStable(res.Collisions, func(i, j int) bool {
		a, b := res.Collisions[i], res.Collisions[j]
		if a.MissDistanceKm != b.MissDistanceKm {
			return a.MissDistanceKm < b.MissDistanceKm
		}
		return a.TCA.Before(b.TCA)
	})
	res.CollisionsDetected = len(res.Collisions)

	advisor := Advisor{StaleAfter: cfg.StaleAfter, MinWorkingSet: cfg.MinWorkingSet}
	res.Warnings = advisor.Advise(obs)
	if res.Warnings == nil {
		res.Warnings = []string{}
	}

	elapsed := time.Since(started)
	d.recorder.RunCompleted("ok", elapsed, len(outcomes))
	d.logger.Info("detection complete",
		"primary_id", res.PrimaryID,
		"run_key", r.key,
		"pairs", len(outcomes),
		"collisions", res.CollisionsDetected,
		"recorded", inserted,
		"duplicates", duplicates,
		"warnings", len(res.Warnings),
		"duration_ms", elapsed.Milliseconds(),
	)
	return res, nil
}

// screenPair searches one pair and records the event when it qualifies.
func (d *Detector) screenPair(ctx context.Context, r *run, secondary tle.ElementSet) pairOutcome {
	out := pairOutcome{secondary: secondary}

	a, err := Search(ctx, d.prop, r.primary, secondary, r.window)
	if err != nil {
		// Cancelled; the run reports it.
		return out
	}
	out.approach = a
	if !a.Found {
		return out
	}

	tier, ok := d.classifier.Classify(a.DistanceKm, r.threshold)
	if !ok {
		return out
	}
	out.collision = &Collision{
		SecondaryID:            secondary.ObjectID,
		SecondaryName:          secondary.Name,
		TCA:                    a.TCA,
		MissDistanceKm:         a.DistanceKm,
		RelativeVelocityMps:    a.RelativeVelocityMps,
		RiskTier:               tier,
		RequiresManeuverReview: tier.RequiresManeuverReview(),
	}

	ev := Event{
		RunKey:                 r.key,
		PrimaryID:              r.primary.ObjectID,
		SecondaryID:            secondary.ObjectID,
		TCA:                    a.TCA,
		MissDistanceKm:         a.DistanceKm,
		RelativeVelocityMps:    a.RelativeVelocityMps,
		RiskTier:               tier,
		RequiresManeuverReview: tier.RequiresManeuverReview(),
		Status:                 StatusActive,
		SourceTag:              r.cfg.SourceTag,
	}
	if a.Primary != nil && a.Secondary != nil {
		ev.PrimaryPositionKm = vec3(a.Primary.Position)
		ev.SecondaryPositionKm = vec3(a.Secondary.Position)
		ev.Location = locate(*a.Primary, a.TCA)
	}

	out.inserted, out.storeErr = d.store.Upsert(ctx, ev)
	if out.storeErr != nil {
		d.logger.Warn("failed to record conjunction",
			"primary_id", ev.PrimaryID,
			"secondary_id", ev.SecondaryID,
			"error", out.storeErr,
		)
	}
	return out
}

func vec3(v r3.Vec) *[3]float64 { return &[3]float64{v.X, v.Y, v.Z} }

// locate returns the sub-point of sv at t, or nil when the position is not a
// plausible orbit.
func locate(sv propagation.StateVector, t time.Time) *Geodetic {
	geo, ok := transform.SubPoint(sv.TEME(), t)
	if !ok {
		return nil
	}
	return &Geodetic{LatDeg: geo.LatDeg, LonDeg: geo.LonDeg, AltKm: geo.AltKm}
}
