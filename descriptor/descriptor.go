// Package descriptor defines the normalized attribute bundle extracted from
// a target frame, and the typed accessors rules and the query builder use to
// read it.
package descriptor

import "time"

// Bundle is the immutable attribute set for one target frame. Common
// descriptors are typed struct fields (nullable ones as pointers); anything
// instrument-specific lives in Extra, keyed by descriptor name.
//
// Bundle is never mutated after construction: rules and the query builder
// only ever read from it.
type Bundle struct {
	Instrument          string
	ObservationType     string
	ObservationClass    string
	ObservationID       string
	ProgramID           string
	DataLabel           string
	Object              string
	Spectroscopy        bool
	CentralWavelength   *float64
	UTDatetime          time.Time
	ExposureTime        float64
	Coadds              int
	Elevation           *float64
	CassRotatorPA       *float64
	GcalLamp            string
	DetectorROISetting  string
	DetectorBinning     string
	DetectorXBin        int
	DetectorYBin        int
	Reduction           string
	QAState             string
	Engineering         bool
	Procmode            string
	PhotStandard        bool
	CalibrationProgram  string

	// Types is the AstroData tag set, e.g. {"SPECTROSCOPY", "MOS", "SLITV"}.
	Types map[string]bool

	// Extra carries instrument-specific descriptors: disperser, filter_name,
	// focal_plane_mask, amp_read_area, read_mode, read_speed_setting,
	// gain_setting, well_depth_setting, camera, lyot_stop, res_mode, arm,
	// nodandshuffle, nod_count, nod_pixels, prepared, overscan_trimmed,
	// overscan_subtracted, array_name, data_section, wollaston,
	// astrometric_standard, wavefront_mode, and so on.
	Extra map[string]any

	// Arm is the GHOST arm the target was taken with ("blue", "red",
	// "slitv"), or "" when the arm is not fixed (e.g. a dictionary-sourced
	// request with no arm preference).
	Arm string

	// ArmExtra holds GHOST per-arm descriptor variants: base field name
	// (e.g. "exposure_time") to arm to value. Populated only for GHOST.
	ArmExtra map[string]map[string]any
}

// HasType reports whether t is present in the bundle's AstroData type set.
func (b *Bundle) HasType(t string) bool {
	if b == nil || b.Types == nil {
		return false
	}
	return b.Types[t]
}

// Value returns the raw value of a descriptor by name and whether the
// descriptor is known to the schema at all (common field or a registered
// instrument-specific one). It does not distinguish "known but null" from
// "known and set" — callers needing that distinction use Float/String/Bool.
func (b *Bundle) Value(name string) (any, bool) {
	if v, ok := b.commonValue(name); ok {
		return v, true
	}
	if b.Extra != nil {
		if v, ok := b.Extra[name]; ok {
			return v, true
		}
	}
	if IsKnownDescriptor(name) {
		return nil, true
	}
	return nil, false
}

func (b *Bundle) commonValue(name string) (any, bool) {
	switch name {
	case "instrument":
		return b.Instrument, true
	case "observation_type":
		return b.ObservationType, true
	case "observation_class":
		return b.ObservationClass, true
	case "observation_id":
		return b.ObservationID, true
	case "program_id":
		return b.ProgramID, true
	case "data_label":
		return b.DataLabel, true
	case "object":
		return b.Object, true
	case "spectroscopy":
		return b.Spectroscopy, true
	case "central_wavelength":
		if b.CentralWavelength == nil {
			return nil, true
		}
		return *b.CentralWavelength, true
	case "ut_datetime":
		return b.UTDatetime, true
	case "exposure_time":
		return b.ExposureTime, true
	case "coadds":
		return b.Coadds, true
	case "elevation":
		if b.Elevation == nil {
			return nil, true
		}
		return *b.Elevation, true
	case "cass_rotator_pa":
		if b.CassRotatorPA == nil {
			return nil, true
		}
		return *b.CassRotatorPA, true
	case "gcal_lamp":
		return b.GcalLamp, true
	case "detector_roi_setting":
		return b.DetectorROISetting, true
	case "detector_binning":
		return b.DetectorBinning, true
	case "detector_x_bin":
		return b.DetectorXBin, true
	case "detector_y_bin":
		return b.DetectorYBin, true
	case "reduction":
		return b.Reduction, true
	case "qa_state":
		return b.QAState, true
	case "engineering":
		return b.Engineering, true
	case "procmode":
		return b.Procmode, true
	case "phot_standard":
		return b.PhotStandard, true
	case "calibration_program":
		return b.CalibrationProgram, true
	default:
		return nil, false
	}
}

// Float returns the descriptor's value coerced to float64. present reports
// whether the descriptor is known; numeric reports whether the stored value
// (when present and non-nil) could be coerced. A tolerance predicate should
// be skipped whenever numeric is false.
func (b *Bundle) Float(name string) (value float64, present, numeric bool) {
	v, ok := b.Value(name)
	if !ok {
		return 0, false, false
	}
	if v == nil {
		return 0, true, false
	}
	switch n := v.(type) {
	case float64:
		return n, true, true
	case float32:
		return float64(n), true, true
	case int:
		return float64(n), true, true
	case int64:
		return float64(n), true, true
	default:
		return 0, true, false
	}
}

// String returns the descriptor's value coerced to string, and whether it
// was present with a non-nil string value.
func (b *Bundle) String(name string) (string, bool) {
	v, ok := b.Value(name)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the descriptor's value coerced to bool, and whether it was
// present with a non-nil bool value.
func (b *Bundle) Bool(name string) (bool, bool) {
	v, ok := b.Value(name)
	if !ok || v == nil {
		return false, false
	}
	bv, ok := v.(bool)
	return bv, ok
}

// ArmValue resolves an arm-qualified descriptor (e.g. "exposure_time" for
// arm "slitv") against ArmExtra. When arm is "", the caller should expand to
// a disjunction across all known arms instead of calling this directly.
func (b *Bundle) ArmValue(field, arm string) (any, bool) {
	if b.ArmExtra == nil {
		return nil, false
	}
	m, ok := b.ArmExtra[field]
	if !ok {
		return nil, false
	}
	v, ok := m[arm]
	return v, ok
}
