// Package michelle implements the MICHELLE rule set, grounded on
// gemini_calmgr/cal/calibration_michelle.py.
package michelle

import (
	"context"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/query"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules"
)

const instrument = "MICHELLE"

// New builds the MICHELLE RuleSet.
func New() rules.RuleSet {
	table := map[string]rules.Rule{
		"bpm":  {Name: "bpm", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: bpmRule},
		"dark": {Name: "dark", Capabilities: rules.Capabilities{SupportsProcessed: false}, Fn: darkRule},
		"flat": {Name: "flat", Capabilities: rules.Capabilities{SupportsProcessed: false}, Fn: flatRule},
	}
	return rules.NewRuleSet(table, applicable)
}

// applicable ports CalibrationMICHELLE.set_applicable.
func applicable(t *descriptor.Bundle) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(names ...string) {
		for _, n := range names {
			out[n] = struct{}{}
		}
	}
	if t.ObservationType == "BPM" {
		return out
	}
	if t.ObservationType == "OBJECT" && !t.Spectroscopy && t.ObservationClass == "science" {
		add("dark")
	}
	if t.ObservationType == "OBJECT" && t.Spectroscopy && t.ObservationClass == "science" {
		add("flat")
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
		MatchDescriptors("instrument", "detector_binning")
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// darkRule ports CalibrationMICHELLE.dark: the original calls
// get_query().dark() with no processed argument, so it only ever matches
// raw darks regardless of what's requested.
func darkRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 10
	}
	spec := query.New(t, instrument).
		Dark(false).
		MatchDescriptors("exposure_time", "read_mode", "coadds").
		MaxInterval(1, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// flatRule ports CalibrationMICHELLE.flat: likewise always raw.
func flatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 10
	}
	spec := query.New(t, instrument).
		Flat(false).
		MatchDescriptors("read_mode", "filter_name")
	if t.Spectroscopy {
		spec = spec.MatchDescriptors("disperser", "focal_plane_mask").
			Tolerance(true, map[string]float64{"central_wavelength": 0.001})
	}
	spec = spec.MaxInterval(1, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}
