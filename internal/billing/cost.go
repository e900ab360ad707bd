package billing

import "fmt"

// Charge is one unrounded line of a cost breakdown. Parts, when present,
// itemize the line (the slab bands behind a slab energy charge).
type Charge struct {
	Name        string
	Label       string
	Consumption float64
	Rate        float64
	Cost        float64
	Parts       []Charge
}

// Breakdown is the unrounded output of a cost model, before it is assembled
// into a BillSummary.
type Breakdown struct {
	Mode        Mode
	Segments    []Charge
	FixedCharge float64
}

// Price runs the cost model selected by cfg over totalConsumption kWh.
//
// Time-of-use consumption is not metered per hour here. It is estimated by
// splitting the total in proportion to the share of the 24-hour day that
// falls inside the peak window; the off-peak share is whatever remains. In
// float64 the two shares can differ from the total in the last bit; the
// exact peak + off-peak == total guarantee holds on the rounded BillSummary,
// where AssembleBill gives the rounding remainder to the last segment.
func Price(totalConsumption float64, cfg TariffConfig) (Breakdown, error) {
	if err := checkQuantity("totalConsumption", totalConsumption); err != nil {
		return Breakdown{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Breakdown{}, err
	}

	switch cfg.Mode {
	case ModeFlat:
		return Breakdown{
			Mode: ModeFlat,
			Segments: []Charge{{
				Name:        "energy",
				Label:       "Energy",
				Consumption: totalConsumption,
				Rate:        cfg.BaseRate,
				Cost:        totalConsumption * cfg.BaseRate,
			}},
		}, nil

	case ModeTimeOfUse:
		peakHours := float64(cfg.PeakEndHour - cfg.PeakStartHour)
		peak := totalConsumption * peakHours / 24
		offPeak := totalConsumption - peak
		return Breakdown{
			Mode: ModeTimeOfUse,
			Segments: []Charge{
				{
					Name:        "peak",
					Label:       fmt.Sprintf("Peak (%d:00-%d:00)", cfg.PeakStartHour, cfg.PeakEndHour),
					Consumption: peak,
					Rate:        cfg.PeakRate,
					Cost:        peak * cfg.PeakRate,
				},
				{
					Name:        "offPeak",
					Label:       "Off-Peak",
					Consumption: offPeak,
					Rate:        cfg.OffPeakRate,
					Cost:        offPeak * cfg.OffPeakRate,
				},
			},
		}, nil

	default: // ModeSlab, already validated
		tiers := allocateSlabs(totalConsumption, cfg.Slabs)
		var cost float64
		for _, t := range tiers {
			cost += t.Cost
		}
		rate := 0.0
		if totalConsumption > 0 {
			rate = cost / totalConsumption
		}
		return Breakdown{
			Mode: ModeSlab,
			Segments: []Charge{{
				Name:        "energy",
				Label:       "Energy (slab)",
				Consumption: totalConsumption,
				Rate:        rate,
				Cost:        cost,
				Parts:       tiers,
			}},
			FixedCharge: cfg.FixedCharge,
		}, nil
	}
}

// ComputeCost prices totalConsumption and assembles the result for the
// default billing period.
func ComputeCost(totalConsumption float64, cfg TariffConfig) (BillSummary, error) {
	bd, err := Price(totalConsumption, cfg)
	if err != nil {
		return BillSummary{}, err
	}
	return AssembleBill(totalConsumption, bd, DefaultPeriodLabel, DefaultBillingDays)
}

// Calculate totals a consumption series and bills it. Either the whole
// summary is returned or an error; there is no partial result.
func Calculate(series ConsumptionSeries, cfg TariffConfig, periodLabel string, billingDays int) (BillSummary, error) {
	total, err := series.Total()
	if err != nil {
		return BillSummary{}, err
	}
	bd, err := Price(total, cfg)
	if err != nil {
		return BillSummary{}, err
	}
	return AssembleBill(total, bd, periodLabel, billingDays)
}
