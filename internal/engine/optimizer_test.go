package engine

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOptimizer() *Optimizer {
	return NewOptimizer(DefaultDaytime, zerolog.Nop())
}

func TestOptimizeSingleDevice(t *testing.T) {
	rates := []TariffRange{{From: 0, To: 0, Value: 2}}
	devices := []Device{{ID: "d1", Name: "heater", Power: 1000, Duration: 2}}

	res, err := newTestOptimizer().Optimize(rates, devices, nil)
	require.NoError(t, err)

	// (1000W * 2h / 1000) * 2 per kWh.
	assert.Equal(t, 4.0, res.Bill.ByDevice["heater"])
	assert.Equal(t, 4.0, res.Bill.Total)

	// Flat tariff, so the tie breaks to the earliest start.
	assert.Equal(t, []string{"d1"}, res.Schedule[0])
	assert.Equal(t, []string{"d1"}, res.Schedule[1])
	assert.Len(t, res.Schedule, 2)
}

func TestOptimizeBadCoverage(t *testing.T) {
	rates := []TariffRange{{From: 0, To: 12, Value: 1}}
	devices := []Device{{ID: "d1", Name: "heater", Power: 1000, Duration: 2}}

	_, err := newTestOptimizer().Optimize(rates, devices, nil)
	assert.ErrorIs(t, err, ErrBadCoverage)
}

func TestOptimizeUnschedulableDevice(t *testing.T) {
	rates := []TariffRange{{From: 0, To: 0, Value: 2}}
	devices := []Device{
		{ID: "d1", Name: "heater", Power: 1000, Duration: 2},
		{ID: "d2", Name: "kiln", Power: 5000, Duration: 3},
	}

	_, err := newTestOptimizer().Optimize(rates, devices, floatPtr(3000))
	require.Error(t, err)

	var unsched *UnschedulableDeviceError
	require.ErrorAs(t, err, &unsched)
	assert.Equal(t, "kiln", unsched.Name)
	assert.Equal(t, "d2", unsched.ID)
	assert.Contains(t, err.Error(), "kiln")
}

func TestOptimizeHousehold(t *testing.T) {
	devices := []Device{
		{ID: "dev-1", Name: "dishwasher", Power: 950, Duration: 3, Mode: ModeNight},
		{ID: "dev-2", Name: "oven", Power: 2000, Duration: 2, Mode: ModeDay},
		{ID: "dev-3", Name: "fridge", Power: 50, Duration: 24},
	}

	res, err := newTestOptimizer().Optimize(fullDayRates, devices, floatPtr(2100))
	require.NoError(t, err)

	// Dishwasher lands in the cheap night band; equal averages tie-break
	// to the earliest start hour.
	assert.Equal(t, 5.1015, res.Bill.ByDevice["dishwasher"])
	assert.Contains(t, res.Schedule[0], "dev-1")
	assert.Contains(t, res.Schedule[1], "dev-1")
	assert.Contains(t, res.Schedule[2], "dev-1")
	assert.NotContains(t, res.Schedule[23], "dev-1")

	// Oven lands in the cheapest daytime band, earliest start on a tie.
	assert.Equal(t, 21.52, res.Bill.ByDevice["oven"])
	assert.Contains(t, res.Schedule[10], "dev-2")
	assert.Contains(t, res.Schedule[11], "dev-2")

	// Fridge runs all day at the timeline-average rate.
	assert.Equal(t, 5.398, res.Bill.ByDevice["fridge"])
	for hour := 0; hour < 24; hour++ {
		assert.Contains(t, res.Schedule[hour], "dev-3", "hour %d", hour)
	}

	assert.Equal(t, 32.0195, res.Bill.Total)

	// Commit order is preserved within an hour.
	assert.Equal(t, []string{"dev-2", "dev-3"}, res.Schedule[10])
}

func TestOptimizeIdempotent(t *testing.T) {
	devices := []Device{
		{ID: "dev-1", Name: "dishwasher", Power: 950, Duration: 3, Mode: ModeNight},
		{ID: "dev-2", Name: "oven", Power: 2000, Duration: 2, Mode: ModeDay},
	}

	first, err := newTestOptimizer().Optimize(fullDayRates, devices, floatPtr(2100))
	require.NoError(t, err)
	second, err := newTestOptimizer().Optimize(fullDayRates, devices, floatPtr(2100))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestOptimizeOrderDependence(t *testing.T) {
	// Two identical devices cannot share the single cheapest hour pair
	// under the cap, so whichever comes first gets it. Swapping the input
	// order swaps the bill entries but keeps the total.
	rates := []TariffRange{
		{From: 0, To: 2, Value: 1},
		{From: 2, To: 0, Value: 5},
	}
	a := Device{ID: "a", Name: "washer-a", Power: 1000, Duration: 2}
	b := Device{ID: "b", Name: "washer-b", Power: 1000, Duration: 2}
	maxLoad := floatPtr(1000)

	forward, err := newTestOptimizer().Optimize(rates, []Device{a, b}, maxLoad)
	require.NoError(t, err)
	reverse, err := newTestOptimizer().Optimize(rates, []Device{b, a}, maxLoad)
	require.NoError(t, err)

	// First in line takes hours 0-1 at rate 1: 2 kWh * 1. The other pays
	// for the cheapest remaining pair at rate 5: 2 kWh * 5.
	assert.Equal(t, 2.0, forward.Bill.ByDevice["washer-a"])
	assert.Equal(t, 10.0, forward.Bill.ByDevice["washer-b"])
	assert.Equal(t, 2.0, reverse.Bill.ByDevice["washer-b"])
	assert.Equal(t, 10.0, reverse.Bill.ByDevice["washer-a"])
	assert.Equal(t, forward.Bill.Total, reverse.Bill.Total)

	assert.Equal(t, []string{"a"}, forward.Schedule[0])
	assert.Equal(t, []string{"b"}, reverse.Schedule[0])
}

func TestOptimizeMonotonicLoad(t *testing.T) {
	devices := []Device{
		{ID: "d1", Name: "washer", Power: 800, Duration: 4},
		{ID: "d2", Name: "dryer", Power: 700, Duration: 3},
		{ID: "d3", Name: "boiler", Power: 600, Duration: 6},
	}
	maxPower := 1500.0

	res, err := newTestOptimizer().Optimize(fullDayRates, devices, &maxPower)
	require.NoError(t, err)

	powerByID := map[string]float64{"d1": 800, "d2": 700, "d3": 600}

	// Every device occupies exactly its duration, and no hour's combined
	// load exceeds the cap.
	seen := map[string]int{}
	for hour := 0; hour < 24; hour++ {
		load := 0.0
		for _, id := range res.Schedule[hour] {
			load += powerByID[id]
			seen[id]++
		}
		assert.LessOrEqual(t, load, maxPower, "hour %d", hour)
	}
	assert.Equal(t, 4, seen["d1"])
	assert.Equal(t, 3, seen["d2"])
	assert.Equal(t, 6, seen["d3"])
}
