package engine

import (
	"errors"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrBadCoverage reports tariff ranges that do not tile the 24-hour day
// exactly once per hour.
var ErrBadCoverage = errors.New("tariff ranges must cover every hour of the day exactly once")

// Timeline is the per-hour rate/load table for one day. A well-formed
// timeline has 24 slots sorted ascending by hour. Slots are held by
// pointer so that load committed for one device is visible to every
// later feasibility check.
type Timeline []*HourSlot

// BuildTimeline expands tariff ranges into per-hour slots. Each range
// contributes Hours() slots mapped to absolute hour (From+i) mod 24 with
// its rate and zero load; the concatenation is sorted ascending by hour.
// The builder itself never fails: gaps or overlaps surface through
// Validate before any scheduling happens.
func BuildTimeline(rates []TariffRange) Timeline {
	tl := make(Timeline, 0, 24)
	for _, r := range rates {
		n := r.Hours()
		for i := 0; i < n; i++ {
			tl = append(tl, &HourSlot{
				Hour: (r.From + i) % 24,
				Rate: r.Value,
			})
		}
	}
	sort.Slice(tl, func(i, j int) bool { return tl[i].Hour < tl[j].Hour })
	return tl
}

// Validate checks that the timeline contains hours 0..23 exactly once.
// After a successful Validate, a slot's index equals its hour.
func (tl Timeline) Validate() error {
	if len(tl) != 24 {
		return ErrBadCoverage
	}
	for i, slot := range tl {
		if slot.Hour != i {
			return ErrBadCoverage
		}
	}
	return nil
}

// Window returns n consecutive slots starting at index start, wrapping at
// most once to the beginning of the timeline. Slots are shared with the
// timeline, so rates and loads reflect live state.
func (tl Timeline) Window(start, n int) []*HourSlot {
	if start+n <= len(tl) {
		return tl[start : start+n]
	}
	w := make([]*HourSlot, 0, n)
	w = append(w, tl[start:]...)
	w = append(w, tl[:n-(len(tl)-start)]...)
	return w
}

// AverageRate returns the mean tariff across the whole timeline, rounded
// to 4 decimal places.
func (tl Timeline) AverageRate() float64 {
	rates := make([]float64, len(tl))
	for i, slot := range tl {
		rates[i] = slot.Rate
	}
	return round4(stat.Mean(rates, nil))
}
