// Package niri implements the NIRI rule set, grounded on
// gemini_calmgr/cal/calibration_niri.py.
package niri

import (
	"context"
	"strings"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/query"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules"
)

const instrument = "NIRI"

// noFlatFilters are the filter names for which a flat is never requested:
// L', M', Br(alpha), Br(alpha) continuum and hydrocarbon, per AS 20130514.
var noFlatFilters = map[string]struct{}{
	"Lprime_G0207": {}, "Mprime_G0208": {}, "Bra_G0238": {},
	"Bracont_G0237": {}, "hydrocarb_G0231": {},
}

// New builds the NIRI RuleSet.
func New() rules.RuleSet {
	table := map[string]rules.Rule{
		"dark":                 {Name: "dark", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: darkRule},
		"flat":                 {Name: "flat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: flatRule},
		"arc":                  {Name: "arc", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: arcRule},
		"lampoff_flat":         {Name: "lampoff_flat", Capabilities: rules.Capabilities{SupportsProcessed: false}, Fn: lampoffFlatRule},
		"photometric_standard": {Name: "photometric_standard", Capabilities: rules.Capabilities{RequiresImaging: true, SupportsProcessed: false}, Fn: photometricStandardRule},
		"telluric_standard":    {Name: "telluric_standard", Capabilities: rules.Capabilities{RequiresSpectroscopy: true, SupportsProcessed: false}, Fn: telluricStandardRule},
	}
	return rules.NewRuleSet(table, applicable)
}

// applicable ports CalibrationNIRI.set_applicable.
func applicable(t *descriptor.Bundle) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(names ...string) {
		for _, n := range names {
			out[n] = struct{}{}
		}
	}

	filterName, _ := t.String("filter_name")
	_, noFlat := noFlatFilters[filterName]

	if t.ObservationType == "OBJECT" && !t.Spectroscopy {
		add("processed_flat")
		if t.ObservationClass == "partnerCal" && !noFlat {
			add("flat")
		}
		if t.ObservationClass == "science" {
			add("dark")
			if !noFlat {
				add("flat")
			}
			add("photometric_standard")
		}
	}

	gcalLamp, _ := t.String("gcal_lamp")
	if t.ObservationType == "FLAT" && !t.Spectroscopy && gcalLamp != "Off" {
		add("lampoff_flat")
	}

	if t.ObservationType == "OBJECT" && t.Spectroscopy {
		add("flat", "arc")
		if t.ObservationClass == "science" {
			add("telluric_standard", "processed_flat")
		}
	}
	return out
}

// parseSection ports CalibrationNIRI._parse_section: normalizes a
// bracketed "[x1:x2,y1:y2]"-style data section string into a
// "Section(x1=.., x2=.., y1=.., y2=..)" form for comparison. A section not
// starting with '(' or '[' is passed through unchanged.
func parseSection(section string) string {
	if section == "" {
		return section
	}
	if section[0] != '(' && section[0] != '[' {
		return section
	}
	inner := section[1 : len(section)-1]
	parts := strings.Split(inner, ",")
	if len(parts) != 4 {
		return section
	}
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return "Section(x1=" + parts[0] + ", x2=" + parts[1] + ", y1=" + parts[2] + ", y2=" + parts[3] + ")"
}

func dataSectionFilter(t *descriptor.Bundle) catalog.Predicate {
	section, _ := t.String("data_section")
	return catalog.Predicate{Kind: catalog.PredEq, Field: "data_section", Value: parseSection(section)}
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
		AddFilters(dataSectionFilter(t)).
		MatchDescriptors("read_mode", "well_depth_setting", "coadds").
		Tolerance(true, map[string]float64{"exposure_time": 0.01}).
		MaxInterval(180, 0)
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
			{Kind: catalog.PredEq, Field: "gcal_lamp", Value: "IRlow"},
			{Kind: catalog.PredEq, Field: "gcal_lamp", Value: "QH"},
		}}).
		AddFilters(dataSectionFilter(t)).
		MatchDescriptors("well_depth_setting", "filter_name", "camera", "focal_plane_mask", "disperser").
		Tolerance(t.Spectroscopy, map[string]float64{"central_wavelength": 0.001}).
		MaxInterval(180, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func arcRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	spec := query.New(t, instrument).
		Arc(processed).
		AddFilters(dataSectionFilter(t)).
		MatchDescriptors("filter_name", "camera", "focal_plane_mask", "disperser").
		Tolerance(true, map[string]float64{"central_wavelength": 0.001}).
		MaxInterval(180, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func lampoffFlatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 10
	}
	spec := query.New(t, instrument).
		Flat(false).
		AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "gcal_lamp", Value: "Off"}).
		AddFilters(dataSectionFilter(t)).
		MatchDescriptors("well_depth_setting", "filter_name", "camera", "disperser").
		MaxInterval(0, 3600)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func photometricStandardRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 10
	}
	spec := query.New(t, instrument).
		Raw().ObservationType("OBJECT").Spectroscopy(false).
		AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "phot_standard", Value: true}).
		MatchDescriptors("filter_name", "camera").
		MaxInterval(1, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func telluricStandardRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 10
	}
	spec := query.New(t, instrument).
		TelluricStandard(false).
		MatchDescriptors("filter_name", "camera", "focal_plane_mask", "disperser").
		Tolerance(true, map[string]float64{"central_wavelength": 0.001}).
		MaxInterval(1, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}
