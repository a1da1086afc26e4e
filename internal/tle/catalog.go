package tle

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/madddiyarn/regulus/internal/errors"
)

// snapshot is an immutable, indexed view of one Dataset.
type snapshot struct {
	dataset *Dataset
	latest  map[int]ElementSet // newest epoch per object
	ids     []int              // ascending
}

// Catalog provides thread-safe access to the most recent element set of
// every tracked object. Readers never block; Set swaps the whole view.
type Catalog struct {
	snap atomic.Pointer[snapshot]
}

// NewCatalog creates a new empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Set atomically replaces the current dataset. When an object appears more
// than once, only its newest epoch is served.
func (c *Catalog) Set(ds *Dataset) {
	latest := make(map[int]ElementSet, len(ds.Sets))
	for _, es := range ds.Sets {
		if cur, ok := latest[es.ObjectID]; ok && !es.Epoch.After(cur.Epoch) {
			continue
		}
		latest[es.ObjectID] = es
	}
	ids := make([]int, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	c.snap.Store(&snapshot{dataset: ds, latest: latest, ids: ids})
}

// Dataset returns the current dataset, or nil if none has been loaded.
func (c *Catalog) Dataset() *Dataset {
	s := c.snap.Load()
	if s == nil {
		return nil
	}
	return s.dataset
}

// LatestElementSet returns the newest element set for objectID.
func (c *Catalog) LatestElementSet(_ context.Context, objectID int) (ElementSet, error) {
	var (
		es ElementSet
		ok bool
	)
	if s := c.snap.Load(); s != nil {
		es, ok = s.latest[objectID]
	}
	if !ok {
		return ElementSet{}, errors.NotFoundf("object %d has no element set", objectID)
	}
	return es, nil
}

// ObjectIDs returns the ids of all objects with an element set, ascending.
// An empty catalog yields an empty slice.
func (c *Catalog) ObjectIDs(_ context.Context) ([]int, error) {
	s := c.snap.Load()
	if s == nil {
		return []int{}, nil
	}
	out := make([]int, len(s.ids))
	copy(out, s.ids)
	return out, nil
}

// Len returns the number of distinct objects in the catalog.
func (c *Catalog) Len() int {
	s := c.snap.Load()
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// AgeSeconds returns the age of the current dataset in seconds.
// Returns -1 if no dataset is loaded.
func (c *Catalog) AgeSeconds() float64 {
	ds := c.Dataset()
	if ds == nil {
		return -1
	}
	return time.Since(ds.LoadedAt).Seconds()
}

// Freshness summarizes element-set ages across the catalog.
type Freshness struct {
	Objects        int     `json:"objects"`
	MeanAgeDays    float64 `json:"meanAgeDays"`
	OldestAgeDays  float64 `json:"oldestAgeDays"`
	Stale          int     `json:"stale"`
	StaleAfterDays float64 `json:"staleAfterDays"`
}

// Freshness reports element-set ages at now. Sets older than staleAfter
// count as stale.
func (c *Catalog) Freshness(now time.Time, staleAfter time.Duration) Freshness {
	f := Freshness{StaleAfterDays: staleAfter.Hours() / 24}
	s := c.snap.Load()
	if s == nil || len(s.ids) == 0 {
		return f
	}
	ages := make([]float64, 0, len(s.ids))
	for _, id := range s.ids {
		age := s.latest[id].Age(now)
		if age > staleAfter {
			f.Stale++
		}
		days := age.Hours() / 24
		if days > f.OldestAgeDays {
			f.OldestAgeDays = days
		}
		ages = append(ages, days)
	}
	f.Objects = len(ages)
	f.MeanAgeDays = stat.Mean(ages, nil)
	return f
}
