package conjunction

import (
	"context"
	"sort"
	"strings"

	"github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/tle"
)

// Mode selects which catalog objects are screened against the primary.
type Mode string

const (
	ModeAll    Mode = "ALL"
	ModeSubset Mode = "SUBSET"
)

// Request is one detection request. Zero horizon and threshold mean "use
// the configured default".
type Request struct {
	PrimaryID    int     `json:"primaryId"`
	Mode         Mode    `json:"mode,omitempty"`
	SecondaryIDs []int   `json:"secondaryIds,omitempty"`
	HorizonHours float64 `json:"horizonHours,omitempty"`
	ThresholdKm  float64 `json:"thresholdKm,omitempty"`
}

// StateProvider serves the most recent element set per object.
type StateProvider interface {
	LatestElementSet(ctx context.Context, objectID int) (tle.ElementSet, error)
	ObjectIDs(ctx context.Context) ([]int, error)
}

// Normalize applies defaults and validates req against cfg.
func (r Request) Normalize(cfg Config) (Request, error) {
	if r.PrimaryID <= 0 {
		return r, errors.WithHint(
			errors.InvalidArgumentf("primaryId is required"),
			"pass the NORAD catalog number of the primary object")
	}

	r.Mode = Mode(strings.ToUpper(strings.TrimSpace(string(r.Mode))))
	switch r.Mode {
	case "":
		r.Mode = ModeAll
	case ModeAll, ModeSubset:
	default:
		return r, errors.WithHint(
			errors.InvalidArgumentf("unknown mode %q", r.Mode),
			"mode must be ALL or SUBSET")
	}
	if r.Mode == ModeSubset {
		if len(r.SecondaryIDs) == 0 {
			return r, errors.WithHint(
				errors.InvalidArgumentf("secondaryIds is required in SUBSET mode"),
				"list the candidate object ids, or use mode ALL")
		}
		for _, id := range r.SecondaryIDs {
			if id <= 0 {
				return r, errors.InvalidArgumentf("invalid secondary id %d", id)
			}
		}
	}

	if r.HorizonHours == 0 {
		r.HorizonHours = cfg.DefaultHorizonHours
	}
	if !(r.HorizonHours > 0) || r.HorizonHours > cfg.MaxHorizonHours {
		return r, errors.WithHintf(
			errors.InvalidArgumentf("horizonHours %g out of range", r.HorizonHours),
			"use a horizon in (0, %g] hours", cfg.MaxHorizonHours)
	}

	if r.ThresholdKm == 0 {
		r.ThresholdKm = cfg.DefaultThresholdKm
	}
	if !(r.ThresholdKm > 0) {
		return r, errors.InvalidArgumentf("thresholdKm must be positive, got %g", r.ThresholdKm)
	}
	return r, nil
}

// Selection is the working set of one run.
type Selection struct {
	Primary tle.ElementSet
	// Candidates are ordered by ascending object id and never include the
	// primary.
	Candidates []tle.ElementSet
	// Missing lists requested SUBSET ids that have no element data.
	Missing []int
}

// WorkingSetSize counts the primary and its candidates.
func (s *Selection) WorkingSetSize() int {
	return 1 + len(s.Candidates)
}

// Select builds the working set for a normalized request. It only reads
// from states.
func Select(ctx context.Context, states StateProvider, req Request) (*Selection, error) {
	primary, err := states.LatestElementSet(ctx, req.PrimaryID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.WithHint(
				errors.NotFoundf("primary object %d has no element data", req.PrimaryID),
				"check the catalog id or wait for the next catalog load")
		}
		return nil, errors.Wrapf(err, "load primary %d", req.PrimaryID)
	}

	var ids []int
	if req.Mode == ModeSubset {
		ids = append(ids, req.SecondaryIDs...)
	} else {
		if ids, err = states.ObjectIDs(ctx); err != nil {
			return nil, errors.Wrap(err, "list catalog objects")
		}
	}
	ids = uniqueSorted(ids, req.PrimaryID)

	sel := &Selection{Primary: primary, Candidates: make([]tle.ElementSet, 0, len(ids))}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		es, err := states.LatestElementSet(ctx, id)
		switch {
		case err == nil:
			sel.Candidates = append(sel.Candidates, es)
		case errors.IsNotFound(err):
			// In ALL mode the catalog may have been swapped since ObjectIDs.
			if req.Mode == ModeSubset {
				sel.Missing = append(sel.Missing, id)
			}
		default:
			return nil, errors.Wrapf(err, "load candidate %d", id)
		}
	}
	return sel, nil
}

// uniqueSorted returns ids in ascending order without duplicates or exclude.
func uniqueSorted(ids []int, exclude int) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
