package billing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Quantity is one metered value as it arrives from the analytics backend.
// Missing or malformed readings decode to an invalid Quantity, which counts
// as zero kWh but still occupies its slot in the series.
type Quantity struct {
	Value float64
	Valid bool
}

// Q returns a valid Quantity.
func Q(v float64) Quantity { return Quantity{Value: v, Valid: true} }

// Float returns the billable value: zero for missing or malformed readings.
func (q Quantity) Float() float64 {
	if !q.Valid || math.IsNaN(q.Value) {
		return 0
	}
	return q.Value
}

// UnmarshalJSON accepts numbers and numeric strings. Anything else decodes to
// an invalid Quantity rather than failing the whole series.
func (q *Quantity) UnmarshalJSON(b []byte) error {
	*q = Quantity{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*q = Q(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && !math.IsNaN(f) {
			*q = Q(f)
		}
	}
	return nil
}

// MarshalJSON writes null for invalid readings.
func (q Quantity) MarshalJSON() ([]byte, error) {
	if !q.Valid || math.IsNaN(q.Value) || math.IsInf(q.Value, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(q.Value)
}

// ConsumptionRecord is one reading of a series, in chronological order.
type ConsumptionRecord struct {
	Timestamp string  `json:"timestamp"`
	Index     int     `json:"index"`
	Quantity  float64 `json:"quantity"`
}

// ConsumptionSeries holds parallel, index-aligned timestamp and value arrays.
// Timestamps may be empty when the source has no time column.
type ConsumptionSeries struct {
	Timestamps []string   `json:"timestamps"`
	Values     []Quantity `json:"values"`
}

// NewSeries builds a series from plain values. It checks the arrays line up.
func NewSeries(timestamps []string, values []float64) (ConsumptionSeries, error) {
	qs := make([]Quantity, len(values))
	for i, v := range values {
		qs[i] = Q(v)
	}
	s := ConsumptionSeries{Timestamps: timestamps, Values: qs}
	if err := s.check(); err != nil {
		return ConsumptionSeries{}, err
	}
	return s, nil
}

func (s ConsumptionSeries) check() error {
	if len(s.Timestamps) > 0 && len(s.Timestamps) != len(s.Values) {
		return invalidInput("timestamps", fmt.Sprintf("length %d does not match values length %d", len(s.Timestamps), len(s.Values)))
	}
	for i, q := range s.Values {
		v := q.Float()
		if math.IsInf(v, 0) {
			return invalidInput(fmt.Sprintf("values[%d]", i), "must be a finite number")
		}
		if v < 0 {
			return invalidInput(fmt.Sprintf("values[%d]", i), "must be >= 0")
		}
	}
	return nil
}

// Records returns the series as ordered records.
func (s ConsumptionSeries) Records() ([]ConsumptionRecord, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	out := make([]ConsumptionRecord, len(s.Values))
	for i, q := range s.Values {
		var ts string
		if len(s.Timestamps) > 0 {
			ts = s.Timestamps[i]
		}
		out[i] = ConsumptionRecord{Timestamp: ts, Index: i, Quantity: q.Float()}
	}
	return out, nil
}

// Len returns the number of readings, including malformed ones.
func (s ConsumptionSeries) Len() int { return len(s.Values) }

// Total sums the series in kWh.
func (s ConsumptionSeries) Total() (float64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	var total float64
	for _, q := range s.Values {
		total += q.Float()
	}
	return total, nil
}
