package conjunction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madddiyarn/regulus/internal/errors"
	"github.com/madddiyarn/regulus/internal/propagation"
	"github.com/madddiyarn/regulus/internal/tle"
)

var testAdvisor = Advisor{StaleAfter: 7 * day, MinWorkingSet: 2}

func TestAdviseClean(t *testing.T) {
	got := testAdvisor.Advise(Observations{
		Now:        testStart,
		Primary:    elementSet(objPrimary, day),
		Candidates: []tle.ElementSet{elementSet(objEncounter, 2*day)},
	})
	assert.Empty(t, got)
}

func TestAdviseStalePrimary(t *testing.T) {
	got := testAdvisor.Advise(Observations{
		Now:        testStart,
		Primary:    elementSet(objPrimary, 10*day+12*time.Hour),
		Candidates: []tle.ElementSet{elementSet(objEncounter, 0)},
	})
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "primary object 100")
	assert.Contains(t, got[0], "10.5 days old")
	assert.Contains(t, got[0], "limit 7 days")
}

func TestAdviseExactlySevenDaysIsFresh(t *testing.T) {
	got := testAdvisor.Advise(Observations{
		Now:        testStart,
		Primary:    elementSet(objPrimary, 7*day),
		Candidates: []tle.ElementSet{elementSet(objEncounter, 7*day)},
	})
	assert.Empty(t, got)
}

func TestAdviseStaleCandidatesAggregated(t *testing.T) {
	got := testAdvisor.Advise(Observations{
		Now:     testStart,
		Primary: elementSet(objPrimary, 0),
		Candidates: []tle.ElementSet{
			elementSet(objEncounter, 8*day),
			elementSet(objNearMiss, 12*day),
			elementSet(objFar, day),
		},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "2 candidate element set(s) older than 7 days (mean age 10.0 days)", got[0])
}

func TestAdviseSparsity(t *testing.T) {
	got := testAdvisor.Advise(Observations{Now: testStart, Primary: elementSet(objPrimary, 0)})
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "working set has 1 element set(s)")
}

func TestAdviseRunProblems(t *testing.T) {
	got := testAdvisor.Advise(Observations{
		Now:        testStart,
		Primary:    elementSet(objPrimary, 0),
		Candidates: []tle.ElementSet{elementSet(objEncounter, 0)},
		Missing:    []int{77, 5},
		Exhausted: []PairFailure{
			{SecondaryID: 900, Reason: propagation.ReasonInvalidElements},
			{SecondaryID: 800, Reason: propagation.ReasonDecayed},
		},
		PartialPairs:   2,
		SkippedSamples: 13,
		NoTCAState:     []int{31, 7},
		Faulted:        []int{42},
		StoreFailures:  1,
		LastStoreErr:   errors.New("disk full"),
	})
	assert.Equal(t, []string{
		"no element data for requested object(s): 5, 77",
		"propagation failed on every sample for 2 pair(s), skipped: 800 (DECAYED), 900 (INVALID_ELEMENTS)",
		"13 sample(s) skipped after propagation failures across 2 pair(s)",
		"relative velocity and positions at TCA unavailable for object(s): 7, 31",
		"screening aborted by an internal error for object(s): 42",
		"1 conjunction(s) could not be recorded: disk full",
	}, got)
}
