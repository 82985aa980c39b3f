// Package gsaoi implements the GSAOI rule set, grounded on
// gemini_calmgr/cal/calibration_gsaoi.py. GSAOI has no spectroscopy mode:
// its only flats are dome flats, matched by dayCal Object name rather than
// observation_type.
package gsaoi

import (
	"context"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/query"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules"
)

const instrument = "GSAOI"

// New builds the GSAOI RuleSet.
func New() rules.RuleSet {
	table := map[string]rules.Rule{
		"bpm":                  {Name: "bpm", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: bpmRule},
		"domeflat":             {Name: "domeflat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: domeflatRule},
		"flat":                 {Name: "flat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: domeflatRule},
		"lampoff_domeflat":     {Name: "lampoff_domeflat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: lampoffDomeflatRule},
		"lampoff_flat":         {Name: "lampoff_flat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: lampoffDomeflatRule},
		"photometric_standard": {Name: "photometric_standard", Capabilities: rules.Capabilities{SupportsProcessed: false}, Fn: photometricStandardRule},
	}
	return rules.NewRuleSet(table, applicable)
}

// applicable ports CalibrationGSAOI.set_applicable.
func applicable(t *descriptor.Bundle) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(names ...string) {
		for _, n := range names {
			out[n] = struct{}{}
		}
	}
	if t.ObservationType == "OBJECT" && t.ObservationClass == "science" {
		add("domeflat", "lampoff_domeflat", "processed_flat", "photometric_standard")
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

func domeflatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 20
		}
	}
	var spec query.Spec
	if processed {
		spec = query.New(t, instrument).Reduction("PROCESSED_FLAT")
	} else {
		spec = query.New(t, instrument).Raw().ObservationType("OBJECT").ObservationClass("dayCal").
			AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "object", Value: "Domeflat"})
	}
	spec = spec.MatchDescriptors("filter_name").MaxInterval(30, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func lampoffDomeflatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 20
		}
	}
	var spec query.Spec
	if processed {
		spec = query.New(t, instrument).Reduction("PROCESSED_FLAT")
	} else {
		spec = query.New(t, instrument).Raw().ObservationType("OBJECT").ObservationClass("dayCal").
			AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "object", Value: "Domeflat OFF"})
	}
	spec = spec.MatchDescriptors("filter_name").MaxInterval(30, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func photometricStandardRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 8
	}
	spec := query.New(t, instrument).
		Raw().ObservationType("OBJECT").ObservationClass("partnerCal").
		MatchDescriptors("filter_name").
		MaxInterval(30, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}
