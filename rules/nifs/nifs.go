// Package nifs implements the NIFS rule set, grounded on
// gemini_calmgr/cal/calibration_nifs.py.
package nifs

import (
	"context"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/query"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules"
)

const instrument = "NIFS"

var commonDescriptors = []string{"disperser", "focal_plane_mask", "filter_name"}

// New builds the NIFS RuleSet.
func New() rules.RuleSet {
	table := map[string]rules.Rule{
		"bpm":               {Name: "bpm", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: bpmRule},
		"dark":              {Name: "dark", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: darkRule},
		"flat":              {Name: "flat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: flatRule},
		"lampoff_flat":      {Name: "lampoff_flat", Capabilities: rules.Capabilities{SupportsProcessed: false}, Fn: lampoffFlatRule},
		"arc":               {Name: "arc", Capabilities: rules.Capabilities{SupportsProcessed: false}, Fn: arcRule},
		"ronchi_mask":       {Name: "ronchi_mask", Capabilities: rules.Capabilities{SupportsProcessed: false}, Fn: ronchiMaskRule},
		"telluric_standard": {Name: "telluric_standard", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: telluricStandardRule},
	}
	return rules.NewRuleSet(table, applicable)
}

// applicable ports CalibrationNIFS.set_applicable.
func applicable(t *descriptor.Bundle) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(names ...string) {
		for _, n := range names {
			out[n] = struct{}{}
		}
	}
	if t.ObservationType == "OBJECT" && !t.Spectroscopy && t.ObservationClass == "science" {
		add("dark")
	}
	excluded := map[string]bool{"partnerCal": true, "progCal": true, "acqCal": true, "acq": true}
	if t.ObservationType == "OBJECT" && !excluded[t.ObservationClass] && t.Spectroscopy {
		add("flat", "processed_flat", "arc", "ronchi_mask", "telluric_standard")
	}
	gcalLamp, _ := t.String("gcal_lamp")
	if t.ObservationType == "FLAT" && gcalLamp != "Off" {
		add("lampoff_flat")
	}
	add("processed_bpm")
	return out
}

func bpmRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	spec := query.New(t, instrument).IncludeEngineering().
		BPM(processed).
		AddFilters(catalog.Predicate{Kind: catalog.PredLe, Field: "ut_datetime_secs", Value: float64(t.UTDatetime.Unix())}).
		MatchDescriptors("instrument")
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
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
		MatchDescriptors("exposure_time", "read_mode", "coadds", "disperser").
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
		AddFilters(catalog.Predicate{Kind: catalog.PredOr, Or: []catalog.Predicate{
			{Kind: catalog.PredEq, Field: "gcal_lamp", Value: "IRhigh"},
			{Kind: catalog.PredStartsWith, Field: "gcal_lamp", Value: "QH"},
		}}).
		MatchDescriptors(commonDescriptors...).
		Tolerance(true, map[string]float64{"central_wavelength": 0.001}).
		MaxInterval(10, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// lampoffFlatRule ports CalibrationNIFS.lampoff_flat: the original takes
// no processed argument at all, so it always queries raw flats.
func lampoffFlatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 10
	}
	spec := query.New(t, instrument).
		Flat(false).
		AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "gcal_lamp", Value: "Off"}).
		MatchDescriptors(commonDescriptors...).
		Tolerance(true, map[string]float64{"central_wavelength": 0.001}).
		MaxInterval(0, 3600)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// arcRule ports CalibrationNIFS.arc: likewise no processed argument, so
// this always queries raw arcs.
func arcRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	spec := query.New(t, instrument).
		Arc(false).
		MatchDescriptors(commonDescriptors...).
		Tolerance(true, map[string]float64{"central_wavelength": 0.001}).
		MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// ronchiMaskRule ports CalibrationNIFS.ronchi_mask: a bare observation_type
// match with no raw/processed distinction and no time window; central
// wavelength must match exactly (not within a tolerance).
func ronchiMaskRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	spec := query.New(t, instrument).
		ObservationType("RONCHI").
		MatchDescriptors("central_wavelength", "disperser")
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func telluricStandardRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 12
		}
	}
	spec := query.New(t, instrument).
		TelluricStandard(processed).
		MatchDescriptors(commonDescriptors...).
		Tolerance(true, map[string]float64{"central_wavelength": 0.001}).
		MaxInterval(1, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}
