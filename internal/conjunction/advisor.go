package conjunction

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/madddiyarn/regulus/internal/propagation"
	"github.com/madddiyarn/regulus/internal/tle"
)

const day = 24 * time.Hour

// Advisor turns data-quality observations into warnings. It never fails a
// run.
type Advisor struct {
	StaleAfter    time.Duration
	MinWorkingSet int
}

// PairFailure records a pair whose every coarse sample failed.
type PairFailure struct {
	SecondaryID int
	Reason      propagation.Reason
}

// Observations is everything a run reports to the Advisor.
type Observations struct {
	Now        time.Time
	Primary    tle.ElementSet
	Candidates []tle.ElementSet
	Missing    []int

	Exhausted      []PairFailure
	PartialPairs   int
	SkippedSamples int
	// NoTCAState lists secondaries of recorded conjunctions whose states at
	// TCA could not be recomputed.
	NoTCAState []int

	Faulted       []int
	StoreFailures int
	LastStoreErr  error
}

// Advise returns warnings in a stable order: staleness, sparsity, missing
// data, propagation, faults, persistence.
func (a Advisor) Advise(o Observations) []string {
	var out []string

	if age := o.Now.Sub(o.Primary.Epoch); age > a.StaleAfter {
		out = append(out, fmt.Sprintf(
			"primary object %d element set is %.1f days old (limit %s); predictions may be unreliable",
			o.Primary.ObjectID, age.Hours()/24, days(a.StaleAfter)))
	}

	var staleAges []float64
	for _, es := range o.Candidates {
		if age := o.Now.Sub(es.Epoch); age > a.StaleAfter {
			staleAges = append(staleAges, age.Hours()/24)
		}
	}
	if len(staleAges) > 0 {
		out = append(out, fmt.Sprintf(
			"%d candidate element set(s) older than %s (mean age %.1f days)",
			len(staleAges), days(a.StaleAfter), stat.Mean(staleAges, nil)))
	}

	if n := 1 + len(o.Candidates); n < a.MinWorkingSet {
		out = append(out, fmt.Sprintf(
			"working set has %d element set(s); at least %d are needed to screen for conjunctions",
			n, a.MinWorkingSet))
	}

	if len(o.Missing) > 0 {
		out = append(out, "no element data for requested object(s): "+joinInts(o.Missing))
	}

	if len(o.Exhausted) > 0 {
		sorted := append([]PairFailure(nil), o.Exhausted...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].SecondaryID < sorted[j].SecondaryID })
		parts := make([]string, len(sorted))
		for i, f := range sorted {
			parts[i] = fmt.Sprintf("%d (%s)", f.SecondaryID, f.Reason)
		}
		out = append(out, fmt.Sprintf("propagation failed on every sample for %d pair(s), skipped: %s",
			len(sorted), strings.Join(parts, ", ")))
	}
	if o.SkippedSamples > 0 && o.PartialPairs > 0 {
		out = append(out, fmt.Sprintf("%d sample(s) skipped after propagation failures across %d pair(s)",
			o.SkippedSamples, o.PartialPairs))
	}

	if len(o.NoTCAState) > 0 {
		out = append(out, "relative velocity and positions at TCA unavailable for object(s): "+joinInts(o.NoTCAState))
	}

	if len(o.Faulted) > 0 {
		out = append(out, "screening aborted by an internal error for object(s): "+joinInts(o.Faulted))
	}

	if o.StoreFailures > 0 {
		msg := fmt.Sprintf("%d conjunction(s) could not be recorded", o.StoreFailures)
		if o.LastStoreErr != nil {
			msg += ": " + o.LastStoreErr.Error()
		}
		out = append(out, msg)
	}
	return out
}

func days(d time.Duration) string {
	return strconv.FormatFloat(d.Hours()/24, 'f', -1, 64) + " days"
}

func joinInts(ids []int) string {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
