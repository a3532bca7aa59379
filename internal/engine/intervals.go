package engine

import "gonum.org/v1/gonum/stat"

// WorkInterval is a candidate contiguous placement of a device's run.
// Slots reference the live timeline; Average is the mean of the slot
// rates rounded to 4 decimal places, computed at enumeration time.
type WorkInterval struct {
	Slots   []*HourSlot
	Average float64
}

// Start returns the interval's first hour.
func (w WorkInterval) Start() int {
	return w.Slots[0].Hour
}

// WorkIntervals enumerates every feasible contiguous placement of the
// device's run, one candidate per surviving start hour in ascending
// order. A nil maxLoad means the grid is unconstrained.
//
// A start hour survives when it passes, in order: a cheap load pre-check
// on the start slot, the day/night mode filter, and a full load check
// over the whole window. The mode filter inspects only the interval's
// first and last hours; interior hours are not checked.
//
// An empty result means the device cannot be placed at all under the
// current load and mode constraints.
func WorkIntervals(tl Timeline, d Device, maxLoad *float64, daytime DaytimeWindow) []WorkInterval {
	intervals := []WorkInterval{}

	for i, slot := range tl {
		if maxLoad != nil && slot.Load+d.Power > *maxLoad {
			continue
		}

		endHour := (slot.Hour + d.Duration - 1) % 24

		switch d.Mode {
		case ModeDay:
			if !daytime.IsDaytime(slot.Hour) || !daytime.IsDaytime(endHour) {
				continue
			}
		case ModeNight:
			if daytime.IsDaytime(slot.Hour) || daytime.IsDaytime(endHour) {
				continue
			}
		}

		window := tl.Window(i, d.Duration)

		if maxLoad != nil && overloaded(window, d.Power, *maxLoad) {
			continue
		}

		intervals = append(intervals, WorkInterval{
			Slots:   window,
			Average: averageRate(window),
		})
	}

	return intervals
}

// OneWorkInterval places a full-day device. A 24-hour run covers every
// hour regardless of its start, so all placements cost the same and only
// the load cap matters; the first start hour whose whole span clears the
// cap wins. Mode filtering does not apply: a full-day run spans both day
// and night unconditionally.
func OneWorkInterval(tl Timeline, d Device, maxLoad *float64) (WorkInterval, error) {
	for i := range tl {
		window := tl.Window(i, d.Duration)
		if maxLoad != nil && overloaded(window, d.Power, *maxLoad) {
			continue
		}
		return WorkInterval{Slots: window, Average: averageRate(window)}, nil
	}
	return WorkInterval{}, &UnschedulableDeviceError{ID: d.ID, Name: d.Name}
}

// overloaded reports whether adding power to any slot of the window would
// exceed maxLoad.
func overloaded(window []*HourSlot, power, maxLoad float64) bool {
	for _, slot := range window {
		if slot.Load+power > maxLoad {
			return true
		}
	}
	return false
}

func averageRate(window []*HourSlot) float64 {
	rates := make([]float64, len(window))
	for i, slot := range window {
		rates[i] = slot.Rate
	}
	return round4(stat.Mean(rates, nil))
}
