// Package f2 implements the F2 rule set, grounded on
// gemini_calmgr/cal/calibration_f2.py.
package f2

import (
	"context"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/query"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules"
)

const instrument = "F2"

var commonDescriptors = []string{"disperser", "lyot_stop", "filter_name", "focal_plane_mask"}

// New builds the F2 RuleSet.
func New() rules.RuleSet {
	table := map[string]rules.Rule{
		"dark":                 {Name: "dark", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: darkRule},
		"flat":                 {Name: "flat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: flatRule},
		"arc":                  {Name: "arc", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: arcRule},
		"photometric_standard": {Name: "photometric_standard", Capabilities: rules.Capabilities{RequiresImaging: true, SupportsProcessed: false}, Fn: photometricStandardRule},
		"telluric_standard":    {Name: "telluric_standard", Capabilities: rules.Capabilities{RequiresSpectroscopy: true, SupportsProcessed: false}, Fn: telluricStandardRule},
	}
	return rules.NewRuleSet(table, applicable)
}

// applicable ports CalibrationF2.set_applicable.
func applicable(t *descriptor.Bundle) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(names ...string) {
		for _, n := range names {
			out[n] = struct{}{}
		}
	}
	if t.ObservationType == "OBJECT" && !t.Spectroscopy && t.ObservationClass != "acq" && t.ObservationClass != "acqCal" {
		add("dark", "processed_dark", "flat", "processed_flat")
		if t.ObservationClass == "science" {
			add("photometric_standard")
		}
	}
	if t.ObservationType == "OBJECT" && t.Spectroscopy {
		add("dark", "processed_dark", "flat", "processed_flat", "arc")
		if t.ObservationClass == "science" {
			add("telluric_standard")
		}
	}
	if t.ObservationType == "FLAT" {
		add("dark", "processed_dark")
	}
	if t.ObservationType == "ARC" {
		add("dark", "processed_dark", "flat", "processed_flat")
	}
	return out
}

func darkRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 10
		}
	}
	spec := query.New(t, instrument).
		Dark(processed).
		MatchDescriptors("exposure_time", "read_mode").
		MaxInterval(90, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func flatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 10
		}
	}
	spec := query.New(t, instrument).
		Flat(processed).
		MatchDescriptors("read_mode").
		MatchDescriptors(commonDescriptors...).
		Tolerance(t.Spectroscopy, map[string]float64{"central_wavelength": 0.001}).
		MaxInterval(90, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func arcRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	spec := query.New(t, instrument).
		Arc(processed).
		MatchDescriptors(commonDescriptors...).
		Tolerance(true, map[string]float64{"central_wavelength": 0.001}).
		MaxInterval(90, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func photometricStandardRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 10
	}
	spec := query.New(t, instrument).
		Raw().ObservationType("OBJECT").ObservationClass("partnerCal").
		MatchDescriptors("filter_name", "lyot_stop").
		MaxInterval(1, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func telluricStandardRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 10
	}
	spec := query.New(t, instrument).
		TelluricStandard(false).
		MatchDescriptors(commonDescriptors...).
		Tolerance(true, map[string]float64{"central_wavelength": 0.001}).
		MaxInterval(1, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}
