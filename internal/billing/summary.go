package billing

import (
	"github.com/shopspring/decimal"
)

const (
	// DefaultBillingDays is used when the caller does not know the period length.
	DefaultBillingDays = 30
	// DefaultPeriodLabel is used when the caller gives no period label.
	DefaultPeriodLabel = "Current Period"

	// minorUnits is the number of decimals money and kWh are presented with.
	minorUnits = 2
	// rateDecimals keeps derived per-kWh rates readable without losing
	// sub-cent tariffs.
	rateDecimals = 4
)

// Segment is one rounded line of a bill.
type Segment struct {
	Name        string          `json:"name"`
	Label       string          `json:"label"`
	Consumption decimal.Decimal `json:"consumption"`
	Rate        decimal.Decimal `json:"rate"`
	Cost        decimal.Decimal `json:"cost"`
	Tiers       []Segment       `json:"tiers,omitempty"`
}

// BillSummary is the immutable result of one calculation. Amounts are
// rounded half-up to two decimals; TotalCost is exactly the sum of the
// segment costs plus FixedCharge.
type BillSummary struct {
	TariffType              Mode            `json:"tariff_type"`
	TotalConsumption        decimal.Decimal `json:"total_consumption"`
	Segments                []Segment       `json:"segments"`
	EnergyCharge            decimal.Decimal `json:"energy_charge"`
	FixedCharge             decimal.Decimal `json:"fixed_charge"`
	TotalCost               decimal.Decimal `json:"total_cost"`
	BillingPeriod           string          `json:"billing_period"`
	BillingDays             int             `json:"billing_days"`
	AverageDailyConsumption decimal.Decimal `json:"average_daily_consumption"`
}

// AssembleBill rounds a breakdown into a BillSummary. Rounding happens here
// and nowhere earlier. The last segment absorbs the consumption rounding
// remainder so segment consumptions always add up to the rounded total.
func AssembleBill(consumption float64, bd Breakdown, periodLabel string, billingDays int) (BillSummary, error) {
	if err := checkQuantity("totalConsumption", consumption); err != nil {
		return BillSummary{}, err
	}
	if billingDays <= 0 {
		return BillSummary{}, invalidInput("billingDays", "must be > 0")
	}
	if len(bd.Segments) == 0 {
		return BillSummary{}, invalidInput("segments", "must contain at least one segment")
	}
	if periodLabel == "" {
		periodLabel = DefaultPeriodLabel
	}

	total := roundMoney(consumption)
	segments := make([]Segment, len(bd.Segments))
	allocated := decimal.Zero
	energy := decimal.Zero
	for i, c := range bd.Segments {
		seg := roundCharge(c)
		if i == len(bd.Segments)-1 {
			seg.Consumption = total.Sub(allocated)
		}
		allocated = allocated.Add(seg.Consumption)
		energy = energy.Add(seg.Cost)
		segments[i] = seg
	}

	fixed := decimal.Zero
	if bd.Mode == ModeSlab {
		fixed = roundMoney(bd.FixedCharge)
	}

	return BillSummary{
		TariffType:              bd.Mode,
		TotalConsumption:        total,
		Segments:                segments,
		EnergyCharge:            energy,
		FixedCharge:             fixed,
		TotalCost:               energy.Add(fixed),
		BillingPeriod:           periodLabel,
		BillingDays:             billingDays,
		AverageDailyConsumption: roundMoney(consumption / float64(billingDays)),
	}, nil
}

// roundCharge rounds one charge. An itemized charge costs exactly the sum of
// its rounded parts.
func roundCharge(c Charge) Segment {
	seg := Segment{
		Name:        c.Name,
		Label:       c.Label,
		Consumption: roundMoney(c.Consumption),
		Rate:        decimal.NewFromFloat(c.Rate).Round(rateDecimals),
		Cost:        roundMoney(c.Cost),
	}
	if len(c.Parts) == 0 {
		return seg
	}
	seg.Tiers = make([]Segment, len(c.Parts))
	cost := decimal.Zero
	for i, p := range c.Parts {
		seg.Tiers[i] = roundCharge(p)
		cost = cost.Add(seg.Tiers[i].Cost)
	}
	seg.Cost = cost
	return seg
}

// roundMoney rounds half-up to the minor unit. Values are never negative
// here, so decimal's half-away-from-zero rounding is half-up.
func roundMoney(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(minorUnits)
}

// DocumentRequest is the request body the bill document service expects.
type DocumentRequest struct {
	TotalConsumption float64 `json:"total_consumption"`
	TotalCost        float64 `json:"total_cost"`
	BillingPeriod    string  `json:"billing_period"`
	BillingDays      int     `json:"billing_days"`
	TariffType       string  `json:"tariff_type"`
}

// DocumentRequest projects the summary onto the document service's field set.
func (s BillSummary) DocumentRequest() DocumentRequest {
	return DocumentRequest{
		TotalConsumption: s.TotalConsumption.InexactFloat64(),
		TotalCost:        s.TotalCost.InexactFloat64(),
		BillingPeriod:    s.BillingPeriod,
		BillingDays:      s.BillingDays,
		TariffType:       string(s.TariffType),
	}
}
