package billing

import (
	"math"
	"strconv"
)

// ComputeSlabCharges returns the energy charge for totalUnits under a tiered
// slab table. Slabs are cumulative: each band charges only the units that
// fall inside it, so two partial calls do not add up to one full call.
func ComputeSlabCharges(totalUnits float64, slabs []Slab) (float64, error) {
	if err := checkQuantity("totalUnits", totalUnits); err != nil {
		return 0, err
	}
	if err := validateSlabs(slabs); err != nil {
		return 0, err
	}
	var charge float64
	for _, t := range allocateSlabs(totalUnits, slabs) {
		charge += t.Cost
	}
	return charge, nil
}

// allocateSlabs walks a validated table in ascending order and stops as soon
// as totalUnits is used up.
func allocateSlabs(totalUnits float64, slabs []Slab) []Charge {
	tiers := make([]Charge, 0, len(slabs))
	prev := 0.0
	for i, s := range slabs {
		if totalUnits <= prev {
			break
		}
		units := math.Min(totalUnits, s.UpTo) - prev
		if units < 0 {
			units = 0
		}
		tiers = append(tiers, Charge{
			Name:        "slab-" + strconv.Itoa(i+1),
			Label:       slabLabel(i, prev, s),
			Consumption: units,
			Rate:        s.Rate,
			Cost:        units * s.Rate,
		})
		prev = s.UpTo
	}
	return tiers
}

// slabLabel renders bands the way tariff sheets print them: 0-100, 101-300,
// 501+.
func slabLabel(i int, from float64, s Slab) string {
	lo := from
	if i > 0 {
		lo = from + 1
	}
	if s.Unbounded() {
		return formatUnits(lo) + "+ units"
	}
	return formatUnits(lo) + "-" + formatUnits(s.UpTo) + " units"
}

func formatUnits(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func checkQuantity(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return invalidInput(field, "must be a finite number")
	}
	if v < 0 {
		return invalidInput(field, "must be >= 0")
	}
	return nil
}
