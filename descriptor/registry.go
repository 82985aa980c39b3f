package descriptor

// knownDescriptors enumerates every descriptor name the tolerance/match DSL
// may reference, across the common schema and all ten instruments' Extra
// fields. A name absent from this set is an UnknownDescriptor condition; a
// name present but unset on a given bundle is a MissingTargetValue
// condition instead. This is the "registry mapping descriptor name to typed
// getter" called for by the bundle's design notes — for Extra fields the
// getter is simply the map lookup, so the registry only needs to record
// which names are legal.
var knownDescriptors = map[string]struct{}{
	// common schema
	"instrument": {}, "observation_type": {}, "observation_class": {},
	"observation_id": {}, "program_id": {}, "data_label": {}, "object": {},
	"spectroscopy": {}, "central_wavelength": {}, "ut_datetime": {},
	"exposure_time": {}, "coadds": {}, "elevation": {}, "cass_rotator_pa": {},
	"gcal_lamp": {}, "detector_roi_setting": {}, "detector_binning": {},
	"detector_x_bin": {}, "detector_y_bin": {}, "reduction": {}, "qa_state": {},
	"engineering": {}, "procmode": {}, "phot_standard": {},
	"calibration_program": {},

	// instrument-specific (Extra), shared across several instruments
	"disperser": {}, "filter_name": {}, "focal_plane_mask": {},
	"amp_read_area": {}, "read_mode": {}, "read_speed_setting": {},
	"gain_setting": {}, "well_depth_setting": {}, "camera": {},
	"lyot_stop": {}, "res_mode": {}, "arm": {}, "nodandshuffle": {},
	"nod_count": {}, "nod_pixels": {}, "prepared": {},
	"overscan_trimmed": {}, "overscan_subtracted": {}, "array_name": {},
	"data_section": {}, "wollaston": {}, "astrometric_standard": {},
	"wavefront_mode": {}, "focal_plane_mask_slit_length": {},
	"grating": {}, "prism": {}, "decker": {}, "slit": {}, "pupil_mask": {},
	"apodizer": {}, "filter1": {}, "filter2": {}, "mask": {},
	"detector_gain_setting": {}, "detector_readout_mode": {},
	"cal_shutter": {}, "cal_filter": {},

	// GHOST-specific
	"exposure_time_slitv": {}, "want_before_arc": {}, "types": {},
}

// IsKnownDescriptor reports whether name is a legal descriptor for the
// tolerance/match DSL, regardless of whether any particular bundle sets it.
func IsKnownDescriptor(name string) bool {
	_, ok := knownDescriptors[name]
	return ok
}
