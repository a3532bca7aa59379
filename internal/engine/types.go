package engine

import (
	"fmt"
	"math"
)

// Device run modes. An empty mode means the device may run at any hour.
const (
	ModeDay   = "day"
	ModeNight = "night"
)

// TariffRange is a priced span of hours, possibly wrapping past midnight.
// From is inclusive, To exclusive, both in [0,24). A set of ranges is
// expected to tile the whole day exactly once per hour.
type TariffRange struct {
	From  int     `json:"from"`
	To    int     `json:"to"`
	Value float64 `json:"value"`
}

// Hours returns the range length in hours, accounting for midnight
// wraparound (From == To means the full day).
func (r TariffRange) Hours() int {
	if r.To > r.From {
		return r.To - r.From
	}
	return (24 - r.From) + r.To
}

// Validate checks the range's hour bounds.
func (r TariffRange) Validate() error {
	if r.From < 0 || r.From > 23 {
		return fmt.Errorf("tariff range: from hour %d out of range [0,24)", r.From)
	}
	if r.To < 0 || r.To > 23 {
		return fmt.Errorf("tariff range: to hour %d out of range [0,24)", r.To)
	}
	return nil
}

// HourSlot is one hour of the timeline: the tariff rate applying during
// that hour and the combined power already committed to it.
type HourSlot struct {
	Hour int     `json:"hour"`
	Rate float64 `json:"rate"`
	Load float64 `json:"load"`
}

// Device is an immutable scheduling input. Power is in watts, Duration in
// whole hours.
type Device struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Power    float64 `json:"power"`
	Duration int     `json:"duration"`
	Mode     string  `json:"mode,omitempty"`
}

// Validate rejects parameter combinations the scheduler is not defined
// for. It is meant to run at the input boundary, before any scheduling.
func (d Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("device %q: id is required", d.Name)
	}
	if d.Name == "" {
		return fmt.Errorf("device %s: name is required", d.ID)
	}
	if d.Power < 0 {
		return fmt.Errorf("device %q: power must not be negative, got %v", d.Name, d.Power)
	}
	if d.Duration < 1 || d.Duration > 24 {
		return fmt.Errorf("device %q: duration must be between 1 and 24 hours, got %d", d.Name, d.Duration)
	}
	switch d.Mode {
	case "", ModeDay, ModeNight:
	default:
		return fmt.Errorf("device %q: unknown mode %q", d.Name, d.Mode)
	}
	return nil
}

// Schedule maps an hour of the day to the ids of devices running during
// it, in commit order.
type Schedule map[int][]string

// Bill holds the electricity cost of a run. Per-device costs are rounded
// to 4 decimal places individually; Total is their re-rounded sum.
type Bill struct {
	Total    float64            `json:"total"`
	ByDevice map[string]float64 `json:"byDevice"`
}

// Result is the outcome of a single optimization run.
type Result struct {
	Schedule Schedule `json:"schedule"`
	Bill     Bill     `json:"bill"`
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
