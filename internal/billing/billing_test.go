package billing

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var table2023 = []Slab{
	{UpTo: 100, Rate: 3.05},
	{UpTo: 300, Rate: 6.40},
	{UpTo: 500, Rate: 8.50},
	{UpTo: math.Inf(1), Rate: 9.50},
}

func requireKind(t *testing.T, err error, kind error, field string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, kind), "want %v, got %v", kind, err)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, field, ve.Field)
}

func TestComputeSlabCharges(t *testing.T) {
	tests := []struct {
		name  string
		units float64
		want  float64
	}{
		{"zero", 0, 0},
		{"inside first slab", 50, 152.5},
		{"first boundary", 100, 305},
		{"second slab", 250, 1265},
		{"third slab", 450, 305 + 1280 + 1275},
		{"unbounded remainder", 600, 305 + 1280 + 1700 + 950},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeSlabCharges(tt.units, table2023)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestComputeSlabChargesMonotone(t *testing.T) {
	prev := 0.0
	for u := 0.0; u <= 1200; u += 7.5 {
		got, err := ComputeSlabCharges(u, table2023)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, prev, "units=%v", u)
		prev = got
	}
}

func TestComputeSlabChargesRejects(t *testing.T) {
	_, err := ComputeSlabCharges(-1, table2023)
	requireKind(t, err, ErrInvalidInput, "totalUnits")

	_, err = ComputeSlabCharges(math.NaN(), table2023)
	requireKind(t, err, ErrInvalidInput, "totalUnits")

	_, err = ComputeSlabCharges(10, nil)
	requireKind(t, err, ErrInvalidTariffConfig, "slabs")

	_, err = ComputeSlabCharges(10, []Slab{{UpTo: 100, Rate: 1}, {UpTo: 50, Rate: 2}, {UpTo: math.Inf(1), Rate: 3}})
	requireKind(t, err, ErrInvalidTariffConfig, "slabs[1].upTo")

	_, err = ComputeSlabCharges(10, []Slab{{UpTo: 100, Rate: 1}})
	requireKind(t, err, ErrInvalidTariffConfig, "slabs[0].upTo")

	_, err = ComputeSlabCharges(10, []Slab{{UpTo: math.Inf(1), Rate: 1}, {UpTo: math.Inf(1), Rate: 2}})
	requireKind(t, err, ErrInvalidTariffConfig, "slabs[0].upTo")

	_, err = ComputeSlabCharges(10, []Slab{{UpTo: math.Inf(1), Rate: 0}})
	requireKind(t, err, ErrInvalidTariffConfig, "slabs[0].rate")
}

func TestComputeCostFlat(t *testing.T) {
	s, err := ComputeCost(100, Flat(5))
	require.NoError(t, err)
	assert.Equal(t, ModeFlat, s.TariffType)
	assert.True(t, decimal.NewFromInt(500).Equal(s.TotalCost), s.TotalCost.String())
	assert.True(t, s.FixedCharge.IsZero())
	require.Len(t, s.Segments, 1)
	assert.Equal(t, DefaultPeriodLabel, s.BillingPeriod)
	assert.Equal(t, DefaultBillingDays, s.BillingDays)
}

func TestComputeCostTimeOfUse(t *testing.T) {
	s, err := ComputeCost(240, TimeOfUse(8, 4, 18, 22))
	require.NoError(t, err)
	require.Len(t, s.Segments, 2)

	peak, off := s.Segments[0], s.Segments[1]
	assert.Equal(t, "peak", peak.Name)
	assert.Equal(t, "Peak (18:00-22:00)", peak.Label)
	assert.True(t, decimal.NewFromInt(40).Equal(peak.Consumption))
	assert.True(t, decimal.NewFromInt(200).Equal(off.Consumption))
	assert.True(t, decimal.NewFromInt(320+800).Equal(s.TotalCost), s.TotalCost.String())
}

func TestTimeOfUseSummarySegmentsSumToTotal(t *testing.T) {
	for _, total := range []float64{0, 0.01, 1, 1.005, 13.37, 99.999, 1234.567} {
		for start := 0; start < 24; start += 5 {
			cfg := TimeOfUse(8, 4, start, start+1+start%3)
			bd, err := Price(total, cfg)
			require.NoError(t, err)

			s, err := AssembleBill(total, bd, "", 30)
			require.NoError(t, err)
			sum := s.Segments[0].Consumption.Add(s.Segments[1].Consumption)
			assert.True(t, sum.Equal(s.TotalConsumption), "%s != %s", sum, s.TotalConsumption)
		}
	}
}

func TestComputeCostSlabAddsFixedCharge(t *testing.T) {
	s, err := ComputeCost(250, SlabRate(table2023, 90))
	require.NoError(t, err)
	assert.Equal(t, ModeSlab, s.TariffType)
	assert.True(t, decimal.NewFromInt(1265).Equal(s.EnergyCharge), s.EnergyCharge.String())
	assert.True(t, decimal.NewFromInt(90).Equal(s.FixedCharge))
	assert.True(t, decimal.NewFromInt(1355).Equal(s.TotalCost))

	require.Len(t, s.Segments, 1)
	tiers := s.Segments[0].Tiers
	require.Len(t, tiers, 2)
	assert.Equal(t, "0-100 units", tiers[0].Label)
	assert.Equal(t, "101-300 units", tiers[1].Label)
	assert.True(t, decimal.NewFromInt(150).Equal(tiers[1].Consumption))
}

func TestComputeCostZeroSlab(t *testing.T) {
	s, err := ComputeCost(0, SlabRate(table2023, 90))
	require.NoError(t, err)
	assert.True(t, s.EnergyCharge.IsZero())
	assert.True(t, decimal.NewFromInt(90).Equal(s.TotalCost))
	assert.True(t, s.Segments[0].Rate.IsZero())
}

func TestComputeCostRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name  string
		cfg   TariffConfig
		field string
	}{
		{"missing mode", TariffConfig{}, "mode"},
		{"unknown mode", TariffConfig{Mode: "weekly"}, "mode"},
		{"zero base rate", Flat(0), "baseRate"},
		{"negative base rate", Flat(-1), "baseRate"},
		{"nan base rate", Flat(math.NaN()), "baseRate"},
		{"peak reversed", TimeOfUse(8, 4, 20, 18), "peakStartHour"},
		{"empty peak window", TimeOfUse(8, 4, 18, 18), "peakStartHour"},
		{"peak past midnight", TimeOfUse(8, 4, 18, 25), "peakEndHour"},
		{"negative start", TimeOfUse(8, 4, -1, 5), "peakStartHour"},
		{"zero off-peak", TimeOfUse(8, 0, 18, 22), "offPeakRate"},
		{"negative fixed", SlabRate(table2023, -1), "fixedCharge"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeCost(100, tt.cfg)
			requireKind(t, err, ErrInvalidTariffConfig, tt.field)
		})
	}
}

func TestFixedChargeIgnoredOutsideSlabMode(t *testing.T) {
	cfg := Flat(5)
	cfg.FixedCharge = 90
	s, err := ComputeCost(10, cfg)
	require.NoError(t, err)
	assert.True(t, s.FixedCharge.IsZero())
	assert.True(t, decimal.NewFromInt(50).Equal(s.TotalCost))
}

func TestAssembleBill(t *testing.T) {
	bd, err := Price(100, Flat(5))
	require.NoError(t, err)

	_, err = AssembleBill(100, bd, "May", 0)
	requireKind(t, err, ErrInvalidInput, "billingDays")

	s, err := AssembleBill(100, bd, "May 2024", 31)
	require.NoError(t, err)
	assert.Equal(t, "May 2024", s.BillingPeriod)
	assert.Equal(t, 31, s.BillingDays)
	assert.Equal(t, "3.23", s.AverageDailyConsumption.StringFixed(2))
}

func TestAssembleBillRoundsHalfUp(t *testing.T) {
	bd := Breakdown{Mode: ModeFlat, Segments: []Charge{{Name: "energy", Consumption: 1, Rate: 1.005, Cost: 1.005}}}
	s, err := AssembleBill(1, bd, "", 30)
	require.NoError(t, err)
	assert.Equal(t, "1.01", s.TotalCost.StringFixed(2))
}

func TestTotalEqualsSegmentsPlusFixed(t *testing.T) {
	configs := []TariffConfig{Flat(5.37), TimeOfUse(8.13, 4.07, 6, 9), SlabRate(table2023, 90)}
	for _, cfg := range configs {
		for _, total := range []float64{0, 0.333, 17.77, 333.333, 999.995} {
			s, err := ComputeCost(total, cfg)
			require.NoError(t, err)
			sum := s.FixedCharge
			for _, seg := range s.Segments {
				sum = sum.Add(seg.Cost)
			}
			assert.True(t, sum.Equal(s.TotalCost), "%s: %s != %s", cfg.Mode, sum, s.TotalCost)
		}
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	series, err := NewSeries([]string{"d1", "d2", "d3"}, []float64{10.5, 20.25, 0})
	require.NoError(t, err)
	a, err := Calculate(series, SlabRate(table2023, 90), "Q1", 90)
	require.NoError(t, err)
	b, err := Calculate(series, SlabRate(table2023, 90), "Q1", 90)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "30.75", a.TotalConsumption.StringFixed(2))
}

func TestCalculateRejectsBadSeries(t *testing.T) {
	_, err := Calculate(ConsumptionSeries{Timestamps: []string{"a"}, Values: []Quantity{Q(1), Q(2)}}, Flat(5), "", 30)
	requireKind(t, err, ErrInvalidInput, "timestamps")

	_, err = Calculate(ConsumptionSeries{Values: []Quantity{Q(1), Q(-2)}}, Flat(5), "", 30)
	requireKind(t, err, ErrInvalidInput, "values[1]")
}

func TestSeriesDecodesMalformedValuesAsZero(t *testing.T) {
	var s ConsumptionSeries
	err := json.Unmarshal([]byte(`{"timestamps":["a","b","c","d"],"values":[1.5,null,"abc","2.5"]}`), &s)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Len())

	total, err := s.Total()
	require.NoError(t, err)
	assert.InDelta(t, 4.0, total, 1e-12)

	recs, err := s.Records()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, ConsumptionRecord{Timestamp: "b", Index: 1, Quantity: 0}, recs[1])

	out, err := json.Marshal(s.Values)
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5,null,null,2.5]`, string(out))
}

func TestSlabJSON(t *testing.T) {
	var cfg TariffConfig
	err := json.Unmarshal([]byte(`{"mode":"slab","slabs":[{"upTo":100,"rate":3.05},{"upTo":null,"rate":6.4}],"fixedCharge":90}`), &cfg)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Slabs[1].Unbounded())

	out, err := json.Marshal(cfg.Slabs)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"upTo":100,"rate":3.05},{"rate":6.4}]`, string(out))
}

func TestDocumentRequest(t *testing.T) {
	s, err := ComputeCost(250, SlabRate(table2023, 90))
	require.NoError(t, err)
	out, err := json.Marshal(s.DocumentRequest())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"total_consumption": 250,
		"total_cost": 1355,
		"billing_period": "Current Period",
		"billing_days": 30,
		"tariff_type": "slab"
	}`, string(out))
}
