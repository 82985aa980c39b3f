// Package gmos implements the GMOS-N/GMOS-S rule set, grounded on
// src/cal/calibration_gmos.py.
package gmos

import (
	"context"
	"math"
	"strings"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/query"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules"
)

const instrument = "GMOS"

// New builds the GMOS RuleSet.
func New() rules.RuleSet {
	table := map[string]rules.Rule{
		"bias":                {Name: "bias", Fn: biasRule},
		"dark":                {Name: "dark", Fn: darkRule},
		"flat":                {Name: "flat", Fn: flatRule},
		"arc":                 {Name: "arc", Capabilities: rules.Capabilities{RequiresSpectroscopy: true, SupportsProcessed: true}, Fn: arcRule},
		"processed_fringe":    {Name: "processed_fringe", Capabilities: rules.Capabilities{SupportsProcessed: true}, Fn: fringeRule},
		"standard":            {Name: "standard", Fn: standardRule},
		"slitillum":           {Name: "slitillum", Capabilities: rules.Capabilities{RequiresSpectroscopy: true}, Fn: slitillumRule},
		"spectwilight":        {Name: "spectwilight", Capabilities: rules.Capabilities{RequiresSpectroscopy: true, SupportsProcessed: false}, Fn: spectwilightRule},
		"specphot":            {Name: "specphot", Capabilities: rules.Capabilities{RequiresSpectroscopy: true, SupportsProcessed: false}, Fn: specphotRule},
		"photometric_standard": {Name: "photometric_standard", Capabilities: rules.Capabilities{RequiresImaging: true, SupportsProcessed: false}, Fn: photometricStandardRule},
		"mask":                {Name: "mask", Capabilities: rules.Capabilities{SupportsProcessed: false}, Fn: maskRule},
	}
	for _, name := range []string{"bias", "dark", "flat", "arc", "standard", "slitillum"} {
		table[name] = withProcessedSupport(table[name])
	}
	return rules.NewRuleSet(table, applicable)
}

func withProcessedSupport(r rules.Rule) rules.Rule {
	r.Capabilities.SupportsProcessed = true
	return r
}

// applicable ports CalibrationGMOS.set_applicable.
func applicable(t *descriptor.Bundle) map[string]struct{} {
	out := map[string]struct{}{}
	add := func(names ...string) {
		for _, n := range names {
			out[n] = struct{}{}
		}
	}

	if t.ObservationType == "MASK" || t.HasType("PROCESSED_SCIENCE") {
		return out
	}

	requireBias := true
	switch {
	case t.ObservationType == "BIAS" || t.ObservationType == "ARC":
		requireBias = false
	case t.ObservationClass == "acq" || t.ObservationClass == "acqCal":
		requireBias = false
	case t.DetectorROISetting == "Central Stamp":
		requireBias = false
	}
	if requireBias {
		add("bias", "processed_bias")
	}

	if t.Spectroscopy && t.ObservationType == "FLAT" {
		add("arc", "processed_arc")
	}

	if t.Spectroscopy && t.ObservationType == "OBJECT" && t.Object != "Twilight" {
		add("arc", "processed_arc", "flat", "processed_flat")
		if t.ObservationClass != "partnerCal" && t.ObservationClass != "progCal" {
			add("spectwilight", "specphot")
			if t.CentralWavelength != nil {
				add("processed_standard", "processed_slitillum", "slitillum")
			}
		}
	}

	focalPlaneMask, _ := t.String("focal_plane_mask")
	if !t.Spectroscopy && focalPlaneMask == "Imaging" && t.ObservationType == "OBJECT" &&
		t.Object != "Twilight" && t.ObservationClass != "acq" && t.ObservationClass != "acqCal" {
		add("flat", "processed_flat", "processed_fringe")
		if t.CentralWavelength != nil {
			add("processed_standard")
		}
		if t.ObservationClass == "science" {
			add("photometric_standard")
		}
	}

	nodandshuffle, _ := t.Bool("nodandshuffle")
	if nodandshuffle && t.ObservationType == "OBJECT" {
		if t.UTDatetime.IsZero() || t.UTDatetime.Year() < 2020 {
			add("dark", "processed_dark")
		}
	}

	if t.HasType("MOS") {
		add("mask")
	}

	return out
}

// ampReadAreaFilter ports the repeated "science amp_read_area must be equal
// or substring of the cal amp_read_area" policy used by bias/dark/fringe/
// spectwilight/specphot and the raw arc branch; flatRule inlines only the
// substring half, and standard/slitillum do not filter on amp_read_area.
func ampReadAreaFilter(t *descriptor.Bundle) []catalog.Predicate {
	area, hasArea := t.String("amp_read_area")
	if t.DetectorROISetting == "Full Frame" || t.DetectorROISetting == "Central Spectrum" {
		if hasArea {
			return []catalog.Predicate{{Kind: catalog.PredEq, Field: "amp_read_area", Value: area}}
		}
		return nil
	}
	if hasArea {
		return []catalog.Predicate{{Kind: catalog.PredContains, Field: "amp_read_area", Value: area}}
	}
	return nil
}

// arcDetectorROIFilter ports arc's processed-specific ROI widening policy.
func arcDetectorROIFilter(t *descriptor.Bundle, processed bool) catalog.Predicate {
	if processed {
		switch t.DetectorROISetting {
		case "Full Frame":
			return catalog.Predicate{Kind: catalog.PredEq, Field: "detector_roi_setting", Value: "Full Frame"}
		case "Central Spectrum":
			return catalog.Predicate{Kind: catalog.PredIn, Field: "detector_roi_setting",
				Values: []any{"Full Frame", "Central Spectrum"}}
		default:
			return catalog.Predicate{Kind: catalog.PredEq, Field: "detector_roi_setting", Value: "Full Frame"}
		}
	}
	return catalog.Predicate{} // caller adds amp_read_area filter instead for the raw branch
}

func arcRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	var filters []catalog.Predicate
	fpm, _ := t.String("focal_plane_mask")
	if fpm != "5.0arcsec" {
		filters = append(filters, catalog.Predicate{Kind: catalog.PredEq, Field: "focal_plane_mask", Value: fpm})
	} else {
		filters = append(filters, catalog.Predicate{Kind: catalog.PredEndsWith, Field: "focal_plane_mask", Value: "arcsec"})
	}
	if processed {
		filters = append(filters, arcDetectorROIFilter(t, true))
	} else {
		if t.DetectorROISetting == "Full Frame" || t.DetectorROISetting == "Central Spectrum" {
			filters = append(filters, ampReadAreaFilter(t)...)
		} else if area, ok := t.String("amp_read_area"); ok {
			filters = append(filters, catalog.Predicate{Kind: catalog.PredContains, Field: "amp_read_area", Value: area})
		}
	}

	spec := query.New(t, instrument).
		Arc(processed).
		AddFilters(filters...).
		MatchDescriptors("instrument", "disperser", "filter_name", "detector_x_bin", "detector_y_bin").
		Tolerance(true, map[string]float64{"central_wavelength": 0.001}).
		MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func darkRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 15
		}
	}
	nodandshuffle, _ := t.Bool("nodandshuffle")
	spec := query.New(t, instrument).
		Dark(processed).
		AddFilters(ampReadAreaFilter(t)...).
		MatchDescriptors("instrument", "detector_x_bin", "detector_y_bin", "read_speed_setting", "gain_setting", "nodandshuffle").
		Tolerance(true, map[string]float64{"exposure_time": 50.0}).
		If(nodandshuffle, func(s query.Spec) query.Spec {
			return s.MatchDescriptors("nod_count", "nod_pixels")
		}).
		MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func biasRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 50
		}
	}
	var filters []catalog.Predicate
	filters = append(filters, ampReadAreaFilter(t)...)
	if processed {
		if prepared, _ := t.Bool("prepared"); prepared {
			if v, ok := t.Bool("overscan_trimmed"); ok {
				filters = append(filters, catalog.Predicate{Kind: catalog.PredEq, Field: "overscan_trimmed", Value: v})
			}
			if v, ok := t.Bool("overscan_subtracted"); ok {
				filters = append(filters, catalog.Predicate{Kind: catalog.PredEq, Field: "overscan_subtracted", Value: v})
			}
		}
	}
	spec := query.New(t, instrument).
		Bias(processed).
		AddFilters(filters...).
		MatchDescriptors("instrument", "detector_x_bin", "detector_y_bin", "read_speed_setting", "gain_setting").
		MaxInterval(90, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func flatDescriptorNames(t *descriptor.Bundle) []string {
	names := []string{"instrument", "detector_x_bin", "detector_y_bin", "filter_name",
		"read_speed_setting", "gain_setting", "spectroscopy", "focal_plane_mask", "disperser"}
	if t.DetectorROISetting == "Full Frame" || t.DetectorROISetting == "Central Spectrum" {
		names = append(names, "amp_read_area")
	}
	return names
}

func flatRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	var filters []catalog.Predicate
	if t.DetectorROISetting != "Full Frame" && t.DetectorROISetting != "Central Spectrum" {
		if area, ok := t.String("amp_read_area"); ok {
			filters = append(filters, catalog.Predicate{Kind: catalog.PredContains, Field: "amp_read_area", Value: area})
		}
	}
	names := flatDescriptorNames(t)
	if t.Spectroscopy {
		return spectroscopyFlat(ctx, cat, t, processed, howmany, names, filters)
	}
	return imagingFlat(ctx, cat, t, processed, howmany, names, filters)
}

func imagingFlat(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int, names []string, filters []catalog.Predicate) ([]catalog.Row, error) {
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
		spec = query.New(t, instrument).Raw().ObservationClass("dayCal").ObservationType("OBJECT").Object("Twilight")
	}
	spec = spec.AddFilters(filters...).MatchDescriptors(names...).MaxInterval(180, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func spectroscopyFlat(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int, names []string, filters []catalog.Predicate) ([]catalog.Row, error) {
	if howmany <= 0 {
		if processed {
			howmany = 1
		} else {
			howmany = 2
		}
	}
	var ifu, mosOrLS, under85 bool
	var elThres, crpaThres float64
	if t.Elevation != nil {
		if fpm, ok := t.String("focal_plane_mask"); ok {
			ifu = strings.HasPrefix(fpm, "IFU")
		}
		if ifu {
			elThres = 7.5
		}
		disperser, _ := t.String("disperser")
		if (t.CentralWavelength != nil && *t.CentralWavelength > 0.55) || strings.HasPrefix(disperser, "R150") {
			mosOrLS = true
			elThres = 15.0
		}
		under85 = *t.Elevation < 85
		if under85 {
			crpaThres = elThres / math.Cos(*t.Elevation*math.Pi/180)
		}
	}

	spec := query.New(t, instrument).
		Flat(processed).
		AddFilters(filters...).
		MatchDescriptors(names...).
		Tolerance(true, map[string]float64{"central_wavelength": 0.001}).
		Tolerance(ifu, map[string]float64{"elevation": elThres}).
		Tolerance(mosOrLS, map[string]float64{"elevation": elThres}).
		Tolerance(under85, map[string]float64{"cass_rotator_pa": crpaThres}).
		MaxInterval(180, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func fringeRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	spec := query.New(t, instrument).
		Reduction("PROCESSED_FRINGE").
		AddFilters(ampReadAreaFilter(t)...).
		MatchDescriptors("instrument", "detector_x_bin", "detector_y_bin", "filter_name").
		MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func standardRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	disperser, _ := t.String("disperser")
	tolerance := query.FuzzyWavelengthBand(disperser)
	cw := 0.0
	if t.CentralWavelength != nil {
		cw = *t.CentralWavelength
	}
	spec := query.New(t, instrument).
		Standard(processed).
		AddFilters(catalog.Predicate{Kind: catalog.PredBetween, Field: "central_wavelength", Lo: cw - tolerance, Hi: cw + tolerance}).
		MatchDescriptors("instrument", "disperser", "detector_x_bin", "detector_y_bin", "filter_name").
		MaxInterval(183, 0)
	rows, err := spec.All(ctx, cat, 1000, nil, query.OrderDefaultLast)
	if err != nil {
		return nil, err
	}
	return scoreByWavelengthAndTime(rows, t, cw, tolerance, howmany), nil
}

func slitillumRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	disperser, _ := t.String("disperser")
	tolerance := query.FuzzyWavelengthBand(disperser)
	cw := 0.0
	if t.CentralWavelength != nil {
		cw = *t.CentralWavelength
	}
	spec := query.New(t, instrument).
		Slitillum(processed).
		AddFilters(catalog.Predicate{Kind: catalog.PredBetween, Field: "central_wavelength", Lo: cw - tolerance, Hi: cw + tolerance}).
		MatchDescriptors("instrument", "disperser", "detector_x_bin", "detector_y_bin", "filter_name").
		MaxInterval(183, 0)
	rows, err := spec.All(ctx, cat, 1000, nil, query.OrderDefaultLast)
	if err != nil {
		return nil, err
	}
	return scoreByWavelengthAndTime(rows, t, cw, tolerance, howmany), nil
}

// scoreByWavelengthAndTime ports the shared standard/slitillum score+sort+
// truncate tail.
func scoreByWavelengthAndTime(rows []catalog.Row, t *descriptor.Bundle, wavelength, tolerance float64, howmany int) []catalog.Row {
	type scored struct {
		row   catalog.Row
		score float64
	}
	out := make([]scored, 0, len(rows))
	for _, r := range rows {
		cw := 0.0
		if r.Header.CentralWavelength != nil {
			cw = *r.Header.CentralWavelength
		}
		deltaSecs := r.Header.UTDatetime.Sub(t.UTDatetime).Seconds()
		out = append(out, scored{row: r, score: query.ScoreByWavelengthAndTime(wavelength, cw, tolerance, deltaSecs)})
	}
	sortByScore(out)
	if len(out) > howmany {
		out = out[:howmany]
	}
	result := make([]catalog.Row, len(out))
	for i, s := range out {
		result[i] = s.row
	}
	return result
}

func sortByScore(s []struct {
	row   catalog.Row
	score float64
}) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].score < s[j-1].score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func spectwilightRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 2
	}
	spec := query.New(t, instrument).
		Raw().ObservationType("OBJECT").Spectroscopy(true).Object("Twilight").
		AddFilters(ampReadAreaFilter(t)...).
		MatchDescriptors("instrument", "filter_name", "disperser", "focal_plane_mask").
		Tolerance(true, map[string]float64{"central_wavelength": 0.02}).
		MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func specphotRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 4
	}
	var filters []catalog.Predicate
	tol := 0.05
	if t.HasType("MOS") {
		filters = append(filters, catalog.Predicate{Kind: catalog.PredContains, Field: "focal_plane_mask", Value: "arcsec"})
		tol = 0.10
	} else if fpm, ok := t.String("focal_plane_mask"); ok {
		filters = append(filters, catalog.Predicate{Kind: catalog.PredEq, Field: "focal_plane_mask", Value: fpm})
	}
	filters = append(filters, ampReadAreaFilter(t)...)
	filters = append(filters,
		catalog.Predicate{Kind: catalog.PredIn, Field: "observation_class", Values: []any{"partnerCal", "progCal"}},
		catalog.Predicate{Kind: catalog.PredNe, Field: "object", Value: "Twilight"},
	)
	spec := query.New(t, instrument).
		Raw().ObservationType("OBJECT").Spectroscopy(true).
		AddFilters(filters...).
		MatchDescriptors("instrument", "filter_name", "disperser").
		Tolerance(true, map[string]float64{"central_wavelength": tol}).
		MaxInterval(365, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func photometricStandardRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 4
	}
	spec := query.New(t, instrument).
		Raw().ObservationType("OBJECT").ObservationClass("partnerCal").
		AddFilters(catalog.Predicate{Kind: catalog.PredLike, Field: "program_id", Value: "G_-CAL%"}).
		MatchDescriptors("instrument", "filter_name").
		MaxInterval(1, 0)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}

func maskRule(ctx context.Context, cat catalog.Adapter, t *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if howmany <= 0 {
		howmany = 1
	}
	fpm, _ := t.String("focal_plane_mask")
	spec := query.New(t, instrument).
		AddFilters(
			catalog.Predicate{Kind: catalog.PredEq, Field: "observation_type", Value: "MASK"},
			catalog.Predicate{Kind: catalog.PredEq, Field: "data_label", Value: fpm},
			catalog.Predicate{Kind: catalog.PredStartsWith, Field: "instrument", Value: "GMOS"},
		)
	return spec.All(ctx, cat, howmany, nil, query.OrderDefaultLast)
}
