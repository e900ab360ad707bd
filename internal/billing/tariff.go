package billing

import (
	"encoding/json"
	"fmt"
	"math"
)

// Mode selects which cost model a TariffConfig describes.
type Mode string

const (
	ModeFlat      Mode = "flat"
	ModeTimeOfUse Mode = "timeOfUse"
	ModeSlab      Mode = "slab"
)

// Slab is one band of a tiered tariff. UpTo is the cumulative upper bound in
// kWh; the last slab of a table is unbounded (UpTo == +Inf).
type Slab struct {
	UpTo float64
	Rate float64
}

// Unbounded reports whether the slab has no upper limit.
func (s Slab) Unbounded() bool { return math.IsInf(s.UpTo, 1) }

type slabJSON struct {
	UpTo *float64 `json:"upTo,omitempty"`
	Rate float64  `json:"rate"`
}

// MarshalJSON writes an unbounded slab without an upTo key.
func (s Slab) MarshalJSON() ([]byte, error) {
	out := slabJSON{Rate: s.Rate}
	if !s.Unbounded() {
		upTo := s.UpTo
		out.UpTo = &upTo
	}
	return json.Marshal(out)
}

// UnmarshalJSON treats a missing or null upTo as the unbounded slab.
func (s *Slab) UnmarshalJSON(b []byte) error {
	var in slabJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	s.Rate = in.Rate
	if in.UpTo == nil {
		s.UpTo = math.Inf(1)
	} else {
		s.UpTo = *in.UpTo
	}
	return nil
}

// TariffConfig is the tagged tariff variant. Only the fields belonging to
// Mode are read; the rest are ignored, so a configuration form can submit
// every field regardless of the selected mode.
type TariffConfig struct {
	Mode Mode `json:"mode"`

	// flat
	BaseRate float64 `json:"baseRate,omitempty"`

	// timeOfUse
	PeakRate      float64 `json:"peakRate,omitempty"`
	OffPeakRate   float64 `json:"offPeakRate,omitempty"`
	PeakStartHour int     `json:"peakStartHour,omitempty"`
	PeakEndHour   int     `json:"peakEndHour,omitempty"`

	// slab
	Slabs       []Slab  `json:"slabs,omitempty"`
	FixedCharge float64 `json:"fixedCharge,omitempty"`
}

// Flat returns a flat per-kWh tariff.
func Flat(rate float64) TariffConfig {
	return TariffConfig{Mode: ModeFlat, BaseRate: rate}
}

// TimeOfUse returns a peak/off-peak tariff with the peak window
// [startHour, endHour).
func TimeOfUse(peakRate, offPeakRate float64, startHour, endHour int) TariffConfig {
	return TariffConfig{
		Mode:          ModeTimeOfUse,
		PeakRate:      peakRate,
		OffPeakRate:   offPeakRate,
		PeakStartHour: startHour,
		PeakEndHour:   endHour,
	}
}

// SlabRate returns a tiered tariff with a fixed charge added once per
// billing period.
func SlabRate(slabs []Slab, fixedCharge float64) TariffConfig {
	cp := make([]Slab, len(slabs))
	copy(cp, slabs)
	return TariffConfig{Mode: ModeSlab, Slabs: cp, FixedCharge: fixedCharge}
}

// Validate checks the invariants of the selected mode.
func (c TariffConfig) Validate() error {
	switch c.Mode {
	case ModeFlat:
		return checkRate("baseRate", c.BaseRate)
	case ModeTimeOfUse:
		if err := checkRate("peakRate", c.PeakRate); err != nil {
			return err
		}
		if err := checkRate("offPeakRate", c.OffPeakRate); err != nil {
			return err
		}
		if c.PeakStartHour < 0 {
			return invalidConfig("peakStartHour", "must be >= 0")
		}
		if c.PeakEndHour > 24 {
			return invalidConfig("peakEndHour", "must be <= 24")
		}
		if c.PeakStartHour >= c.PeakEndHour {
			return invalidConfig("peakStartHour", fmt.Sprintf("must be before peakEndHour (%d >= %d)", c.PeakStartHour, c.PeakEndHour))
		}
		return nil
	case ModeSlab:
		if err := validateSlabs(c.Slabs); err != nil {
			return err
		}
		if math.IsNaN(c.FixedCharge) || math.IsInf(c.FixedCharge, 0) || c.FixedCharge < 0 {
			return invalidConfig("fixedCharge", "must be a finite number >= 0")
		}
		return nil
	case "":
		return invalidConfig("mode", "is required")
	default:
		return invalidConfig("mode", fmt.Sprintf("must be one of flat, timeOfUse, slab (got %q)", c.Mode))
	}
}

func checkRate(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return invalidConfig(field, "must be a finite number > 0")
	}
	return nil
}

func validateSlabs(slabs []Slab) error {
	if len(slabs) == 0 {
		return invalidConfig("slabs", "must contain at least one slab")
	}
	prev := 0.0
	for i, s := range slabs {
		if err := checkRate(fmt.Sprintf("slabs[%d].rate", i), s.Rate); err != nil {
			return err
		}
		last := i == len(slabs)-1
		if s.Unbounded() {
			if !last {
				return invalidConfig(fmt.Sprintf("slabs[%d].upTo", i), "only the last slab may be unbounded")
			}
			continue
		}
		if last {
			return invalidConfig(fmt.Sprintf("slabs[%d].upTo", i), "last slab must be unbounded")
		}
		if math.IsNaN(s.UpTo) || s.UpTo <= prev {
			return invalidConfig(fmt.Sprintf("slabs[%d].upTo", i), fmt.Sprintf("must be greater than %g", prev))
		}
		prev = s.UpTo
	}
	return nil
}
