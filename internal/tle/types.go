package tle

import "time"

// ElementSet is one object's two-line element set.
type ElementSet struct {
	ObjectID int // NORAD catalog number
	Name     string
	Epoch    time.Time
	Line1    string
	Line2    string
}

// Age returns how old the element set is at now.
func (e ElementSet) Age(now time.Time) time.Duration {
	return now.Sub(e.Epoch)
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset is a complete set of element sets loaded from one source.
type Dataset struct {
	Source     string
	LoadedAt   time.Time
	EpochRange EpochRange
	Sets       []ElementSet
}

// NewDataset builds a Dataset and computes its epoch range.
func NewDataset(source string, loadedAt time.Time, sets []ElementSet) *Dataset {
	ds := &Dataset{
		Source:   source,
		LoadedAt: loadedAt,
		Sets:     sets,
	}
	if len(sets) == 0 {
		return ds
	}
	ds.EpochRange = EpochRange{Min: sets[0].Epoch, Max: sets[0].Epoch}
	for _, s := range sets[1:] {
		if s.Epoch.Before(ds.EpochRange.Min) {
			ds.EpochRange.Min = s.Epoch
		}
		if s.Epoch.After(ds.EpochRange.Max) {
			ds.EpochRange.Max = s.Epoch
		}
	}
	return ds
}
