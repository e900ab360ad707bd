package tariffs

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/bher20/ebillmanager/internal/billing"
	"github.com/bher20/ebillmanager/internal/logging"
	"go.uber.org/zap"
)

// Preset is a named tariff configuration.
type Preset struct {
	Key         string               `json:"key"`
	Name        string               `json:"name"`
	Description string               `json:"description,omitempty"`
	Tariff      billing.TariffConfig `json:"tariff"`
}

const presetsEnv = "EBILL_TARIFFS_JSON"

// ErrUnknownTariff is returned by Resolve for a key with no preset.
var ErrUnknownTariff = errors.New("unknown tariff")

var inf = math.Inf(1)

func defaultPresets() []Preset {
	return []Preset{
		{
			Key:         "msedcl-residential",
			Name:        "MSEDCL Residential",
			Description: "Maharashtra residential slabs used by the analytics backend",
			Tariff: billing.SlabRate([]billing.Slab{
				{UpTo: 100, Rate: 4.16},
				{UpTo: 300, Rate: 7.34},
				{UpTo: 500, Rate: 10.37},
				{UpTo: inf, Rate: 12.51},
			}, 90),
		},
		{
			Key:         "msedcl-residential-2023",
			Name:        "MSEDCL Residential (bill sheet)",
			Description: "Maharashtra residential slabs as printed on the bill document",
			Tariff: billing.SlabRate([]billing.Slab{
				{UpTo: 100, Rate: 3.05},
				{UpTo: 300, Rate: 6.40},
				{UpTo: 500, Rate: 8.50},
				{UpTo: inf, Rate: 9.50},
			}, 90),
		},
		{
			Key:         "msedcl-commercial",
			Name:        "MSEDCL Commercial",
			Description: "Single rate for commercial connections",
			Tariff:      billing.SlabRate([]billing.Slab{{UpTo: inf, Rate: 13.05}}, 200),
		},
		{
			Key:         "msedcl-industrial",
			Name:        "MSEDCL Industrial",
			Description: "Single rate for industrial connections",
			Tariff:      billing.SlabRate([]billing.Slab{{UpTo: inf, Rate: 11.55}}, 300),
		},
		{
			Key:    "flat-default",
			Name:   "Flat",
			Tariff: billing.Flat(5.00),
		},
		{
			Key:         "tou-default",
			Name:        "Time of use",
			Description: "Evening peak 18:00-22:00",
			Tariff:      billing.TimeOfUse(8.00, 4.00, 18, 22),
		},
	}
}

// Presets returns the configured presets sorted by key. EBILL_TARIFFS_JSON
// replaces the built-in list; a value that does not decode, or that contains
// an invalid tariff, is ignored.
func Presets() []Preset {
	out := defaultPresets()
	if raw := os.Getenv(presetsEnv); raw != "" {
		if custom, err := decodePresets([]byte(raw)); err != nil {
			logging.Named("tariffs").Warn("ignoring "+presetsEnv, zap.Error(err))
		} else {
			out = custom
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func decodePresets(raw []byte) ([]Preset, error) {
	var out []Preset
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("no presets")
	}
	seen := make(map[string]bool, len(out))
	for _, p := range out {
		if p.Key == "" {
			return nil, errors.New("preset with empty key")
		}
		if seen[p.Key] {
			return nil, fmt.Errorf("duplicate preset %q", p.Key)
		}
		seen[p.Key] = true
		if err := p.Tariff.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Key, err)
		}
	}
	return out, nil
}

// Get looks a preset up by key.
func Get(key string) (Preset, bool) {
	for _, p := range Presets() {
		if p.Key == key {
			return p, true
		}
	}
	return Preset{}, false
}

// Resolve picks the tariff for a request: an inline tariff wins over a key.
// The result is validated.
func Resolve(key string, inline *billing.TariffConfig) (billing.TariffConfig, error) {
	if inline != nil {
		if err := inline.Validate(); err != nil {
			return billing.TariffConfig{}, err
		}
		return *inline, nil
	}
	if key == "" {
		return billing.TariffConfig{}, &billing.ValidationError{
			Kind:       billing.ErrInvalidTariffConfig,
			Field:      "tariff",
			Constraint: "a preset key or an inline tariff is required",
		}
	}
	p, ok := Get(key)
	if !ok {
		return billing.TariffConfig{}, fmt.Errorf("%w: %q", ErrUnknownTariff, key)
	}
	return p.Tariff, nil
}
