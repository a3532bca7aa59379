package engine

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// UnschedulableDeviceError reports a device with no feasible work
// interval under the current load cap and mode constraints. The run as a
// whole fails: silently dropping the device would corrupt the bill and
// schedule totals.
type UnschedulableDeviceError struct {
	ID   string
	Name string
}

func (e *UnschedulableDeviceError) Error() string {
	return fmt.Sprintf("device %q (%s) cannot be scheduled: no feasible work interval", e.Name, e.ID)
}

// Optimizer assigns each device the cheapest feasible contiguous run and
// totals the resulting electricity bill.
//
// Scheduling is greedy and strictly sequential: devices are committed in
// input order, each taking the cheapest interval feasible at the moment
// it is processed. A commit adds the device's power to the shared
// timeline, so later devices see a grid already loaded by earlier ones.
// Input order is part of the contract, not an implementation detail.
type Optimizer struct {
	Daytime DaytimeWindow

	log zerolog.Logger
}

// NewOptimizer returns an Optimizer using the given daytime window.
func NewOptimizer(daytime DaytimeWindow, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		Daytime: daytime,
		log:     log.With().Str("component", "optimizer").Logger(),
	}
}

// Optimize builds the timeline once, schedules every device and returns
// the hour-by-hour schedule together with the bill. maxPower caps the
// combined load of any single hour; nil means unconstrained.
//
// It fails with ErrBadCoverage when the tariff ranges do not tile the
// day, and with UnschedulableDeviceError on the first device that cannot
// be placed. No partial result is returned.
func (o *Optimizer) Optimize(rates []TariffRange, devices []Device, maxPower *float64) (*Result, error) {
	tl := BuildTimeline(rates)
	if err := tl.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		Schedule: make(Schedule),
		Bill:     Bill{ByDevice: make(map[string]float64, len(devices))},
	}

	for _, d := range devices {
		var selected WorkInterval

		if d.Duration == 24 {
			iv, err := OneWorkInterval(tl, d, maxPower)
			if err != nil {
				return nil, err
			}
			selected = iv
		} else {
			candidates := WorkIntervals(tl, d, maxPower, o.Daytime)
			if len(candidates) == 0 {
				return nil, &UnschedulableDeviceError{ID: d.ID, Name: d.Name}
			}
			// Candidates arrive in ascending start order, so a stable sort
			// keeps the earliest start among equal averages.
			sort.SliceStable(candidates, func(i, j int) bool {
				return candidates[i].Average < candidates[j].Average
			})
			selected = candidates[0]
		}

		// Power is stored in watts but priced per kWh.
		cost := round4(d.Power * float64(d.Duration) / 1000 * selected.Average)
		res.Bill.ByDevice[d.Name] = cost
		res.Bill.Total += cost

		for _, slot := range selected.Slots {
			slot.Load += d.Power
			res.Schedule[slot.Hour] = append(res.Schedule[slot.Hour], d.ID)
		}

		o.log.Debug().
			Str("device", d.Name).
			Int("start_hour", selected.Start()).
			Int("duration", d.Duration).
			Float64("average_rate", selected.Average).
			Float64("cost", cost).
			Msg("device committed")
	}

	res.Bill.Total = round4(res.Bill.Total)
	return res, nil
}
