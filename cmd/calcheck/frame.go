package calcheck

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
)

// frameDoc is the on-disk shape calcheck reads a target or candidate frame
// from: a flat YAML document naming the header columns spec.md §6 lists
// plus a free-form instrument-specific column bag.
type frameDoc struct {
	Instrument         string         `yaml:"instrument"`
	ObservationID      string         `yaml:"observation_id"`
	ObservationType    string         `yaml:"observation_type"`
	ObservationClass   string         `yaml:"observation_class"`
	ProgramID          string         `yaml:"program_id"`
	DataLabel          string         `yaml:"data_label"`
	Object             string         `yaml:"object"`
	Spectroscopy       bool           `yaml:"spectroscopy"`
	CentralWavelength  *float64       `yaml:"central_wavelength"`
	UTDatetime         time.Time      `yaml:"ut_datetime"`
	ExposureTime       float64        `yaml:"exposure_time"`
	Coadds             int            `yaml:"coadds"`
	Elevation          *float64       `yaml:"elevation"`
	CassRotatorPA      *float64       `yaml:"cass_rotator_pa"`
	GcalLamp           string         `yaml:"gcal_lamp"`
	DetectorROISetting string         `yaml:"detector_roi_setting"`
	DetectorBinning    string         `yaml:"detector_binning"`
	Reduction          string         `yaml:"reduction"`
	QAState            string         `yaml:"qa_state"`
	Engineering        bool           `yaml:"engineering"`
	Procmode           string         `yaml:"procmode"`
	PhotStandard       bool           `yaml:"phot_standard"`
	CalibrationProgram string         `yaml:"calibration_program"`
	Types              []string       `yaml:"types"`
	Extra              map[string]any `yaml:"extra"`
}

// loadFrame reads and parses a frame document from path.
func loadFrame(path string) (*frameDoc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc frameDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &doc, nil
}

// toBundle converts a frame document into a descriptor.Bundle, the shape a
// target frame needs to drive rule invocation.
func (f *frameDoc) toBundle() *descriptor.Bundle {
	types := map[string]bool{}
	for _, t := range f.Types {
		types[t] = true
	}
	extra := map[string]any{}
	for k, v := range f.Extra {
		extra[k] = v
	}
	arm, _ := extra["arm"].(string)
	return &descriptor.Bundle{
		Instrument:          f.Instrument,
		ObservationType:     f.ObservationType,
		ObservationClass:    f.ObservationClass,
		ObservationID:       f.ObservationID,
		ProgramID:           f.ProgramID,
		DataLabel:           f.DataLabel,
		Object:              f.Object,
		Spectroscopy:        f.Spectroscopy,
		CentralWavelength:   f.CentralWavelength,
		UTDatetime:          f.UTDatetime,
		ExposureTime:        f.ExposureTime,
		Coadds:              f.Coadds,
		Elevation:           f.Elevation,
		CassRotatorPA:       f.CassRotatorPA,
		GcalLamp:            f.GcalLamp,
		DetectorROISetting:  f.DetectorROISetting,
		DetectorBinning:     f.DetectorBinning,
		Reduction:           f.Reduction,
		QAState:             f.QAState,
		Engineering:         f.Engineering,
		Procmode:            f.Procmode,
		PhotStandard:        f.PhotStandard,
		CalibrationProgram:  f.CalibrationProgram,
		Types:               types,
		Extra:               extra,
		Arm:                 arm,
	}
}

// toRow converts a frame document into a catalog.Row ready for ingestion
// into an ephemeral in-memory catalog: canonical and present by
// construction, since calcheck only ever sees frames the caller vouches
// for.
func (f *frameDoc) toRow() catalog.Row {
	types := map[string]bool{}
	for _, t := range f.Types {
		types[t] = true
	}
	return catalog.Row{
		Header: catalog.HeaderRecord{
			Instrument:         f.Instrument,
			ObservationID:      f.ObservationID,
			ObservationType:    f.ObservationType,
			ObservationClass:   f.ObservationClass,
			Object:             f.Object,
			Spectroscopy:       f.Spectroscopy,
			CentralWavelength:  f.CentralWavelength,
			UTDatetime:         f.UTDatetime,
			ExposureTime:       f.ExposureTime,
			Coadds:             f.Coadds,
			Elevation:          f.Elevation,
			CassRotatorPA:      f.CassRotatorPA,
			GcalLamp:           f.GcalLamp,
			DetectorROISetting: f.DetectorROISetting,
			DetectorBinning:    f.DetectorBinning,
			Reduction:          f.Reduction,
			QAState:            f.QAState,
			Engineering:        f.Engineering,
			Procmode:           f.Procmode,
			ProgramID:          f.ProgramID,
			DataLabel:          f.DataLabel,
			PhotStandard:       f.PhotStandard,
			CalibrationProgram: f.CalibrationProgram,
			Types:              types,
		},
		DiskFile:   catalog.DiskFileRecord{Canonical: true, Present: true, LastMod: f.UTDatetime},
		Instrument: f.Extra,
	}
}

// detectCalType guesses a calibration-type name from the candidate's
// observation_type and reduction, for calcheck's "auto" mode.
func detectCalType(f *frameDoc) string {
	processed := len(f.Reduction) > len("PROCESSED_") && f.Reduction[:len("PROCESSED_")] == "PROCESSED_"
	base := ""
	switch f.ObservationType {
	case "BIAS":
		base = "bias"
	case "DARK":
		base = "dark"
	case "FLAT":
		base = "flat"
	case "ARC":
		base = "arc"
	case "BPM":
		base = "bpm"
	case "MASK":
		base = "mask"
	case "RONCHI":
		base = "ronchi_mask"
	default:
		base = "standard"
	}
	if processed {
		switch base {
		case "bias", "dark", "flat", "arc", "bpm":
			return "processed_" + base
		}
	}
	return base
}
