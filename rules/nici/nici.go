// Package nici implements the NICI rule set, grounded on
// gemini_calmgr/cal/calibration_nici.py.
package nici

import (
	"context"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/query"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules"
)

const instrument = "NICI"

// New builds the NICI RuleSet.
func New() rules.RuleSet {
	table := map[string]rules.Rule{
		"dark":         {Name: "dark", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: darkRule},
		"flat":         {Name: "flat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: flatRule},
		"lampoff_flat": {Name: "lampoff_flat", Capabilities: rules.Capabilities{SupportsProcessed: false}, Fn: lampoffFlatRule},
	}
	return rules.NewRuleSet(table, applicable)
}

// applicable ports CalibrationNICI.set_applicable.
func applicable(t *descriptor.Bundle) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(names ...string) {
		for _, n := range names {
			out[n] = struct{}{}
		}
	}
	if t.ObservationType == "OBJECT" && t.ObservationClass == "science" {
		add("dark", "flat")
	}
	gcalLamp, _ := t.String("gcal_lamp")
	if t.ObservationType == "FLAT" && gcalLamp != "Off" {
		add("lampoff_flat")
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
		Tolerance(true, map[string]float64{"exposure_time": 0.01}).
		MaxInterval(1, 0)
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
		AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "gcal_lamp", Value: "IRhigh"}).
		MatchDescriptors("filter_name", "focal_plane_mask", "disperser").
		MaxInterval(1, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func lampoffFlatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 10
	}
	spec := query.New(t, instrument).
		Flat(false).
		AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "gcal_lamp", Value: "Off"}).
		MatchDescriptors("filter_name", "focal_plane_mask", "disperser").
		MaxInterval(0, 3600)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}
