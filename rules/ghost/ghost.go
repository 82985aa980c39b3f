// Package ghost implements the GHOST rule set, grounded on
// gemini_calmgr/cal/calibration_ghost.py. GHOST is treated as
// effectively-always-spectroscopy (the original comments note the
// spectroscopy flag check is deliberately ignored here), and its flat/arc
// matching threads the want_before_arc time-direction descriptor and the
// per-arm descriptor family (e.g. exposure_time_slitv) that the rest of
// the instruments don't have.
package ghost

import (
	"context"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/query"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules"
)

const instrument = "GHOST"

// New builds the GHOST RuleSet.
func New() rules.RuleSet {
	table := map[string]rules.Rule{
		"bias":            {Name: "bias", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: biasRule},
		"dark":            {Name: "dark", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: darkRule},
		"arc":             {Name: "arc", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: arcRule},
		"flat":            {Name: "flat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: flatRule},
		"bpm":             {Name: "bpm", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: bpmRule},
		"processed_slitflat": {Name: "processed_slitflat", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: processedSlitflatRule},
		"processed_slit":  {Name: "processed_slit", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: processedSlitRule},
		"processed_fringe": {Name: "processed_fringe", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: processedFringeRule},
		"specphot":        {Name: "specphot", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: specphotRule},
		"standard":        {Name: "standard", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: specphotRule},
	}
	return rules.NewRuleSet(table, applicable)
}

// applicable ports CalibrationGHOST.set_applicable. Note the spectroscopy
// check that gates the equivalent GMOS branch is commented out in the
// original: GHOST is basically always spectroscopy, so it's ignored here
// too, and spectwilight is never added.
func applicable(t *descriptor.Bundle) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(names ...string) {
		for _, n := range names {
			out[n] = struct{}{}
		}
	}
	if t.ObservationType == "MASK" {
		return out
	}
	if t.HasType("PROCESSED_SCIENCE") {
		return out
	}

	requireBias := true
	if t.ObservationType == "BIAS" || t.ObservationType == "ARC" {
		requireBias = false
	} else if t.ObservationClass == "acq" || t.ObservationClass == "acqCal" {
		requireBias = false
	}
	if requireBias {
		add("bias", "processed_bias")
	}

	if t.ObservationType == "OBJECT" && t.Object != "Twilight" &&
		t.ObservationClass != "partnerCal" && t.ObservationClass != "progCal" {
		add("arc", "processed_arc", "flat", "processed_flat", "specphot")
	}
	return out
}

func wantBeforeArc(t *descriptor.Bundle) *bool {
	v, ok := t.Extra["want_before_arc"]
	if !ok || v == nil {
		return nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil
	}
	return &b
}

// arcRule ports CalibrationGHOST.arc: want_before_arc controls both the
// result count and the time-direction filter. Disperser/filter_name
// matching is commented out in the original and is not applied here.
func arcRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	ab := wantBeforeArc(t)
	if ab != nil {
		howmany = 1
	} else if howmany <= 0 {
		howmany = 2
	}

	spec := query.New(t, instrument).Arc(processed)
	switch {
	case ab != nil && *ab:
		spec = spec.AddFilters(catalog.Predicate{Kind: catalog.PredLt, Field: "ut_datetime_secs", Value: float64(t.UTDatetime.Unix())})
	case ab != nil && !*ab:
		spec = spec.AddFilters(catalog.Predicate{Kind: catalog.PredGt, Field: "ut_datetime_secs", Value: float64(t.UTDatetime.Unix())})
	}
	spec = spec.MatchDescriptors("instrument", "camera", "res_mode").MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func darkRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 5
		}
	}
	spec := query.New(t, instrument).
		Dark(processed).
		MatchDescriptors("instrument", "read_speed_setting", "gain_setting").
		Tolerance(true, map[string]float64{"exposure_time": 50.0}).
		MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func biasRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 5
		}
	}
	spec := query.New(t, instrument).Bias(processed)
	if processed {
		if prepared, _ := t.Bool("prepared"); prepared {
			overscanTrimmed, _ := t.Bool("overscan_trimmed")
			overscanSubtracted, _ := t.Bool("overscan_subtracted")
			spec = spec.AddFilters(
				catalog.Predicate{Kind: catalog.PredEq, Field: "overscan_trimmed", Value: overscanTrimmed},
				catalog.Predicate{Kind: catalog.PredEq, Field: "overscan_subtracted", Value: overscanSubtracted},
			)
		}
	}
	spec = spec.MatchDescriptors("instrument", "camera", "detector_x_bin", "detector_y_bin", "read_speed_setting", "gain_setting").
		MaxInterval(90, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func bpmRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	spec := query.New(t, instrument).IncludeEngineering().
		BPM(processed).
		AddFilters(catalog.Predicate{Kind: catalog.PredLe, Field: "ut_datetime_secs", Value: float64(t.UTDatetime.Unix())}).
		MatchDescriptors("instrument", "arm")
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// flatDescriptors are the fields shared by both the imaging and
// spectroscopy flat branches (flat()'s flat_descriptors tuple).
var flatDescriptors = []string{"instrument", "camera", "read_speed_setting", "gain_setting", "res_mode", "spectroscopy"}

// flatRule ports CalibrationGHOST.flat: spectroscopy targets dispatch to
// spectroscopyFlat, all other targets to imagingFlat.
func flatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if t.Spectroscopy {
		return spectroscopyFlat(ctx, cat, t, processed, howmany, flatDescriptors, nil)
	}
	return imagingFlat(ctx, cat, t, processed, howmany, flatDescriptors, nil)
}

// imagingFlat ports CalibrationGHOST.imaging_flat: raw imaging flats are a
// plain FLAT-type, non-spectroscopy match — unlike GMOS, there's no
// dayCal/Twilight requirement here.
func imagingFlat(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int, flatDescr []string, extraFilters []catalog.Predicate) ([]catalog.Row, error) {
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
		spec = query.New(t, instrument).Spectroscopy(false).ObservationType("FLAT")
	}
	spec = spec.AddFilters(extraFilters...).MatchDescriptors(flatDescr...).MaxInterval(180, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// spectroscopyFlat ports CalibrationGHOST.spectroscopy_flat. Unlike GMOS,
// GHOST applies no elevation/cass_rotator_pa fuzzy matching here — the
// docstring mentions it but the implementation relies solely on the
// caller-supplied descriptors and filters.
func spectroscopyFlat(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int, flatDescr []string, extraFilters []catalog.Predicate) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 2
		}
	}
	spec := query.New(t, instrument).
		Flat(processed).
		AddFilters(extraFilters...).
		MatchDescriptors(flatDescr...).
		MaxInterval(180, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// processedSlitflatRule ports CalibrationGHOST.processed_slitflat: when the
// target itself carries the SLITV type tag, it falls back to the regular
// flat() logic; otherwise it's a narrowed imaging-flat query restricted to
// the slitv arm.
func processedSlitflatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if t.HasType("SLITV") {
		return flatRule(ctx, cat, t, true, howmany)
	}
	filters := []catalog.Predicate{{Kind: catalog.PredEq, Field: "arm", Value: "slitv"}}
	descr := []string{"instrument", "res_mode"}
	return imagingFlat(ctx, cat, t, false, howmany, descr, filters)
}

// processedSlitRule ports CalibrationGHOST.processed_slit: reduction is
// PROCESSED_ARC for an ARC target and PROCESSED_UNKNOWN otherwise; for any
// target that isn't itself ARC/BIAS/FLAT, the exposure time must equal the
// slit viewer's own per-arm exposure_time_slitv. Matches within 30 seconds.
func processedSlitRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	reduction := "PROCESSED_UNKNOWN"
	if t.ObservationType == "ARC" {
		reduction = "PROCESSED_ARC"
	}
	spec := query.New(t, instrument).
		Reduction(reduction).
		Spectroscopy(false).
		MatchDescriptors("instrument", "observation_type", "res_mode").
		AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "arm", Value: "slitv"})

	if t.ObservationType != "ARC" && t.ObservationType != "BIAS" && t.ObservationType != "FLAT" {
		spec = spec.AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "exposure_time_slitv", Value: t.ExposureTime})
	}
	spec = spec.MaxInterval(0, 30)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func processedFringeRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	spec := query.New(t, instrument).
		Reduction("PROCESSED_FRINGE").
		MatchDescriptors("instrument", "detector_x_bin", "detector_y_bin", "res_mode").
		MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

// specphotRule ports CalibrationGHOST.specphot (aliased as standard()
// too, "because everything's spectroscopy"): raw candidates must be
// partnerCal/progCal and OBJECT type; processed candidates go through the
// shared Standard() reduction filter.
func specphotRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	spec := query.New(t, instrument).
		MatchDescriptors("instrument", "camera", "res_mode").
		MaxInterval(365, 0)
	if processed {
		spec = spec.Standard(true)
	} else {
		spec = spec.AddFilters(catalog.Predicate{Kind: catalog.PredIn, Field: "observation_class", Values: []any{"partnerCal", "progCal"}}).
			Raw().ObservationType("OBJECT")
	}
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}
