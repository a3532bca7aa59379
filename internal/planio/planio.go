// Package planio reads optimization inputs and renders results in the
// wire format the scheduler consumes and produces.
package planio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gridsched/gridsched/internal/engine"
)

// Input is the one-shot optimization request: tariff ranges tiling the
// day, the device list in scheduling order, and an optional per-hour
// power cap (null or absent means unconstrained).
type Input struct {
	Rates    []engine.TariffRange `json:"rates"`
	Devices  []engine.Device      `json:"devices"`
	MaxPower *float64             `json:"maxPower,omitempty"`
}

// Validate rejects malformed inputs before any scheduling: bad hour
// bounds, tariff gaps or overlaps, out-of-range device parameters and a
// negative power cap.
func (in *Input) Validate() error {
	if len(in.Rates) == 0 {
		return fmt.Errorf("input: no tariff ranges")
	}
	for _, r := range in.Rates {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("input: %w", err)
		}
	}
	if err := engine.BuildTimeline(in.Rates).Validate(); err != nil {
		return fmt.Errorf("input: %w", err)
	}

	if len(in.Devices) == 0 {
		return fmt.Errorf("input: no devices")
	}
	for _, d := range in.Devices {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("input: %w", err)
		}
	}

	if in.MaxPower != nil && *in.MaxPower < 0 {
		return fmt.Errorf("input: maxPower must not be negative, got %v", *in.MaxPower)
	}
	return nil
}

// Parse decodes and validates an input document.
func Parse(data []byte) (*Input, error) {
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parsing input: %w", err)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &in, nil
}

// Load reads and parses an input file.
func Load(path string) (*Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return Parse(data)
}

// ConsumedEnergy is the cost section of the output document.
type ConsumedEnergy struct {
	Value   float64            `json:"value"`
	Devices map[string]float64 `json:"devices"`
}

// Output is the serialized result document: hour keys map to the ids of
// devices scheduled in that hour, in commit order. Hours with no devices
// are omitted.
type Output struct {
	Schedule       map[int][]string `json:"schedule"`
	ConsumedEnergy ConsumedEnergy   `json:"consumedEnergy"`
}

// FormatResult shapes an optimization result into the output document.
func FormatResult(res *engine.Result) Output {
	schedule := make(map[int][]string, len(res.Schedule))
	for hour, ids := range res.Schedule {
		schedule[hour] = ids
	}
	return Output{
		Schedule: schedule,
		ConsumedEnergy: ConsumedEnergy{
			Value:   res.Bill.Total,
			Devices: res.Bill.ByDevice,
		},
	}
}

// Encode writes the output document as indented JSON.
func (o Output) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(o)
}
