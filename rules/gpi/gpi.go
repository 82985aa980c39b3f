// Package gpi implements the GPI rule set, grounded on
// gemini_calmgr/cal/calibration_gpi.py. GPI is the only instrument with
// polarimetry calibrations (polarization_standard, polarization_flat)
// alongside its spectroscopy mode.
package gpi

import (
	"context"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/query"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules"
)

const instrument = "GPI"

var commonDescriptors = []string{"disperser", "filter_name"}

// New builds the GPI RuleSet.
func New() rules.RuleSet {
	table := map[string]rules.Rule{
		"dark":                 {Name: "dark", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: darkRule},
		"arc":                  {Name: "arc", Capabilities: rules.Capabilities{RequiresSpectroscopy: true, SupportsProcessed: true}, Fn: arcRule},
		"telluric_standard":    {Name: "telluric_standard", Capabilities: rules.Capabilities{RequiresSpectroscopy: true, SupportsProcessed: true}, Fn: telluricStandardRule},
		"polarization_standard": {Name: "polarization_standard", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: polarizationStandardRule},
		"astrometric_standard": {Name: "astrometric_standard", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: astrometricStandardRule},
		"polarization_flat":    {Name: "polarization_flat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: polarizationFlatRule},
	}
	return rules.NewRuleSet(table, applicable)
}

// applicable ports CalibrationGPI.set_applicable.
func applicable(t *descriptor.Bundle) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(names ...string) {
		for _, n := range names {
			out[n] = struct{}{}
		}
	}
	if t.ObservationType == "OBJECT" && t.Spectroscopy && t.ObservationClass != "acq" && t.ObservationClass != "acqCal" {
		add("dark", "astrometric_standard")
		if t.Spectroscopy {
			add("arc", "telluric_standard")
		} else {
			add("polarization_standard", "polarization_flat")
		}
	}
	return out
}

func darkRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	spec := query.New(t, instrument).
		Dark(processed).
		Tolerance(true, map[string]float64{"exposure_time": 10.0}).
		MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func arcRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	spec := query.New(t, instrument).
		Arc(processed).
		MatchDescriptors(commonDescriptors...).
		MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// telluricStandardRule ports CalibrationGPI.telluric_standard: note this
// uses science observation_class (not partnerCal like most instruments'
// telluric standards), and raw candidates additionally require
// calibration_program to be set.
func telluricStandardRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 8
		}
	}
	var spec query.Spec
	if processed {
		spec = query.New(t, instrument).Reduction("PROCESSED_TELLURIC")
	} else {
		spec = query.New(t, instrument).Raw().ObservationType("OBJECT").ObservationClass("science").
			AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "calibration_program", Value: true})
	}
	spec = spec.MatchDescriptors(commonDescriptors...).MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func polarizationStandardRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 8
		}
	}
	var spec query.Spec
	if processed {
		spec = query.New(t, instrument).Reduction("PROCESSED_POLSTANDARD")
	} else {
		spec = query.New(t, instrument).Raw().ObservationClass("science").Spectroscopy(false).
			AddFilters(
				catalog.Predicate{Kind: catalog.PredEq, Field: "calibration_program", Value: true},
				catalog.Predicate{Kind: catalog.PredEq, Field: "wollaston", Value: true},
			)
	}
	spec = spec.MatchDescriptors(commonDescriptors...).MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// astrometricStandardRule ports CalibrationGPI.astrometric_standard: the
// original deliberately skips the usual descriptor match.
func astrometricStandardRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 8
		}
	}
	var spec query.Spec
	if processed {
		spec = query.New(t, instrument).Reduction("PROCESSED_ASTROMETRIC")
	} else {
		spec = query.New(t, instrument).Raw().ObservationType("OBJECT").
			AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "astrometric_standard", Value: true})
	}
	spec = spec.MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func polarizationFlatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 8
		}
	}
	var spec query.Spec
	if processed {
		spec = query.New(t, instrument).Reduction("PROCESSED_POLFLAT")
	} else {
		spec = query.New(t, instrument).Flat(false).ObservationClass("partnerCal").
			AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "wollaston", Value: true})
	}
	spec = spec.MatchDescriptors(commonDescriptors...).MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}
