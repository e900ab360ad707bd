package tariffs

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/bher20/ebillmanager/internal/billing"
	"github.com/bher20/ebillmanager/internal/pdfutil"
)

var (
	// 0-100 units ... 3.05, also "101 to 300 units".
	bandRe = regexp.MustCompile(`(?i)(\d+)\s*(?:-|–|to)\s*(\d+)\s*units?\b[^0-9]*?(\d+(?:\.\d+)?)`)
	// 501+ units ... 9.50, also "Above 500 units".
	openBandRe = regexp.MustCompile(`(?i)(?:(\d+)\s*\+\s*units?|above\s+(\d+)\s*units?)\b[^0-9]*?(\d+(?:\.\d+)?)`)
	fixedRe    = regexp.MustCompile(`(?i)fixed\s+charges?\b[^0-9]*?(\d+(?:\.\d+)?)`)
)

// ParseSlabText extracts a slab tariff from the text of a tariff sheet or
// bill. Bands are read from lines like "Energy Charge (101-300 units):
// Rs.6.40/unit" and "501+ units 9.50"; the fixed charge from "Fixed Charge:
// 90". Bands must be contiguous from 0: each starts at the previous upper
// bound or one unit above it. The result is validated.
func ParseSlabText(text string) (billing.TariffConfig, error) {
	type band struct {
		from float64
		slab billing.Slab
	}
	var bands []band
	for _, m := range bandRe.FindAllStringSubmatch(text, -1) {
		from, _ := strconv.ParseFloat(m[1], 64)
		upTo, _ := strconv.ParseFloat(m[2], 64)
		rate, _ := strconv.ParseFloat(m[3], 64)
		bands = append(bands, band{from: from, slab: billing.Slab{UpTo: upTo, Rate: rate}})
	}
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].from < bands[j].from })

	if m := openBandRe.FindStringSubmatch(text); m != nil {
		start := m[1]
		if start == "" {
			start = m[2]
		}
		from, _ := strconv.ParseFloat(start, 64)
		rate, _ := strconv.ParseFloat(m[3], 64)
		bands = append(bands, band{from: from, slab: billing.Slab{UpTo: math.Inf(1), Rate: rate}})
	}
	if len(bands) == 0 {
		return billing.TariffConfig{}, &billing.ValidationError{
			Kind:       billing.ErrInvalidTariffConfig,
			Field:      "slabs",
			Constraint: "no slab bands found in text",
		}
	}

	slabs := make([]billing.Slab, len(bands))
	var prev float64
	for i, b := range bands {
		if !contiguous(i, prev, b.from) {
			return billing.TariffConfig{}, &billing.ValidationError{
				Kind:       billing.ErrInvalidTariffConfig,
				Field:      fmt.Sprintf("slabs[%d]", i),
				Constraint: fmt.Sprintf("band starts at %s, expected %s", formatBound(b.from), expectedStart(i, prev)),
			}
		}
		slabs[i] = b.slab
		prev = b.slab.UpTo
	}

	var fixed float64
	if m := fixedRe.FindStringSubmatch(text); m != nil {
		fixed, _ = strconv.ParseFloat(m[1], 64)
	}

	cfg := billing.SlabRate(slabs, fixed)
	if err := cfg.Validate(); err != nil {
		return billing.TariffConfig{}, err
	}
	return cfg, nil
}

// ImportPDF reads a tariff sheet PDF and parses its slab table.
func ImportPDF(path string) (billing.TariffConfig, error) {
	text, err := pdfutil.TextFile(path)
	if err != nil {
		return billing.TariffConfig{}, fmt.Errorf("tariffs: import %s: %w", path, err)
	}
	return ParseSlabText(text)
}

func contiguous(i int, prev, from float64) bool {
	if i == 0 {
		return from == 0
	}
	return from == prev || from == prev+1
}

func expectedStart(i int, prev float64) string {
	if i == 0 {
		return "0"
	}
	return fmt.Sprintf("%s or %s", formatBound(prev), formatBound(prev+1))
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
