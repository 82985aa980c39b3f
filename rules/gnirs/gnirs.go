// Package gnirs implements the GNIRS rule set, grounded on
// gemini_calmgr/cal/calibration_gnirs.py, including its XD-flat
// IRhigh/QH interleave algorithm.
package gnirs

import (
	"context"
	"strings"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/query"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules"
)

const instrument = "GNIRS"

// New builds the GNIRS RuleSet.
func New() rules.RuleSet {
	table := map[string]rules.Rule{
		"bpm":               {Name: "bpm", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: bpmRule},
		"dark":              {Name: "dark", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: darkRule},
		"flat":              {Name: "flat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: flatRule},
		"arc":               {Name: "arc", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: arcRule},
		"pinhole_mask":      {Name: "pinhole_mask", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: pinholeMaskRule},
		"lampoff_flat":      {Name: "lampoff_flat", Capabilities: rules.Capabilities{SupportsProcessed: false}, Fn: lampoffFlatRule},
		"qh_flat":           {Name: "qh_flat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: qhFlatRule},
		"telluric_standard": {Name: "telluric_standard", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: telluricStandardRule},
	}
	return rules.NewRuleSet(table, applicable)
}

// applicable ports CalibrationGNIRS.set_applicable.
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

	if t.ObservationType == "OBJECT" && t.ObservationClass != "acq" && t.ObservationClass != "acqCal" && !t.Spectroscopy {
		add("dark", "flat", "lampoff_flat", "processed_flat")
	}

	disperser, _ := t.String("disperser")
	camera, _ := t.String("camera")
	cw := 0.0
	if t.CentralWavelength != nil {
		cw = *t.CentralWavelength
	}
	if t.ObservationType == "OBJECT" && t.Spectroscopy {
		add("telluric_standard")
		if cw < 2.8 {
			add("arc")
		}
		switch {
		case strings.Contains(disperser, "XD"):
			add("flat", "qh_flat", "pinhole_mask")
		case strings.Contains(camera, "Short"):
			switch {
			case cw < 1.8:
				add("qh_flat")
			case cw < 2.7:
				add("flat")
			default:
				add("lampoff_flat")
			}
		case strings.Contains(camera, "Long") && strings.Contains(disperser, "32/mm"):
			if cw < 4.25 {
				add("flat")
			} else {
				add("lampoff_flat")
			}
		case strings.Contains(camera, "Long"):
			switch {
			case cw < 1.8:
				add("qh_flat")
			case cw < 4.3:
				add("flat")
			default:
				add("lampoff_flat")
			}
		}
	}

	gcalLamp, _ := t.String("gcal_lamp")
	if t.ObservationType == "FLAT" && gcalLamp == "IRhigh" {
		add("lampoff_flat")
	}

	add("bpm")
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
		MatchDescriptors("exposure_time", "read_mode", "well_depth_setting", "coadds").
		MaxInterval(90, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// baseFlatSpec ports get_gnirs_flat_query.
func baseFlatSpec(t *descriptor.Bundle, processed bool) query.Spec {
	return query.New(t, instrument).
		Flat(processed).
		MatchDescriptors("disperser", "focal_plane_mask", "camera", "filter_name", "well_depth_setting").
		If(t.Spectroscopy, func(s query.Spec) query.Spec {
			return s.MatchDescriptors("disperser").Tolerance(true, map[string]float64{"central_wavelength": 0.001})
		})
}

func observationIDOrder(t *descriptor.Bundle) []catalog.OrderTerm {
	return []catalog.OrderTerm{{Kind: catalog.OrderObservationIDMatch, Field: t.ObservationID, Desc: true}}
}

func flatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 10
		}
	}
	disperser, _ := t.String("disperser")
	if strings.Contains(disperser, "XD") {
		irRows, err := baseFlatSpec(t, processed).
			AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "gcal_lamp", Value: "IRhigh"}).
			MaxInterval(90, 0).
			All(ctx, cat, howmany, observationIDOrder(t), query.OrderDefaultLast)
		if err != nil {
			return nil, err
		}
		qhRows, err := baseFlatSpec(t, processed).
			AddFilters(catalog.Predicate{Kind: catalog.PredStartsWith, Field: "gcal_lamp", Value: "QH"}).
			MaxInterval(90, 0).
			All(ctx, cat, howmany, observationIDOrder(t), query.OrderDefaultLast)
		if err != nil {
			return nil, err
		}
		return interleave(irRows, qhRows, howmany), nil
	}

	spec := baseFlatSpec(t, processed).
		AddFilters(catalog.Predicate{Kind: catalog.PredOr, Or: []catalog.Predicate{
			{Kind: catalog.PredEq, Field: "gcal_lamp", Value: "IRhigh"},
			{Kind: catalog.PredStartsWith, Field: "gcal_lamp", Value: "QH"},
		}}).
		MaxInterval(90, 0)
	return spec.All(ctx, cat, howmany, observationIDOrder(t), query.OrderDefaultLast)
}

// interleave ports flat()'s pad-with-nils-then-zip algorithm exactly: pad
// the shorter list to equal length, weave element-for-element, drop the
// padding, and truncate to howmany.
func interleave(ir, qh []catalog.Row, howmany int) []catalog.Row {
	n := len(ir)
	if len(qh) > n {
		n = len(qh)
	}
	irPadded := make([]*catalog.Row, n)
	qhPadded := make([]*catalog.Row, n)
	for i := 0; i < n; i++ {
		if i < len(ir) {
			r := ir[i]
			irPadded[i] = &r
		}
		if i < len(qh) {
			r := qh[i]
			qhPadded[i] = &r
		}
	}
	var out []catalog.Row
	for i := 0; i < n; i++ {
		if irPadded[i] != nil {
			out = append(out, *irPadded[i])
		}
		if qhPadded[i] != nil {
			out = append(out, *qhPadded[i])
		}
		if len(out) >= howmany {
			break
		}
	}
	if len(out) > howmany {
		out = out[:howmany]
	}
	return out
}

func arcRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	spec := query.New(t, instrument).
		Arc(processed).
		MatchDescriptors("central_wavelength", "disperser", "focal_plane_mask", "filter_name", "camera").
		MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func pinholeMaskRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 5
		}
	}
	spec := query.New(t, instrument).
		Pinhole(processed).
		MatchDescriptors("central_wavelength", "disperser", "camera").
		MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// qhFlatRule ports qh_flat: the same match_descriptors/tolerance as the
// IRhigh flat query, but against the Quartz-Halogen gcal lamp.
func qhFlatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 10
		}
	}
	spec := baseFlatSpec(t, processed).
		AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "gcal_lamp", Value: "QH"}).
		MaxInterval(90, 0)
	return spec.All(ctx, cat, howmany, observationIDOrder(t), query.OrderDefaultLast)
}

func lampoffFlatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 10
	}
	spec := baseFlatSpec(t, false).
		AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "gcal_lamp", Value: "Off"}).
		MaxInterval(1, 0)
	return spec.All(ctx, cat, howmany, observationIDOrder(t), query.OrderDefaultLast)
}

func telluricStandardRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 8
		}
	}
	spec := query.New(t, instrument).
		TelluricStandard(processed).
		MatchDescriptors("central_wavelength", "disperser", "focal_plane_mask", "camera", "filter_name").
		AddFilters(catalog.Predicate{Kind: catalog.PredIn, Field: "qa_state", Values: []any{"Pass", "Undefined"}}).
		MaxInterval(1, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}
