package sql

import (
	"database/sql"
	"time"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
)

// scanRow scans one result row into a catalog.Row. Instrument-specific
// columns are not selected generically here (drivers differ per
// instrument table shape); concrete deployments extend this by wrapping
// Adapter.Fetch or populating Row.Instrument from a second, per-instrument
// scan keyed by header.id. Kept deliberately small: the rule sets only
// ever read Row.Header plus the few Row.Instrument keys they asked the
// query builder to equality-match, which the predicate tree itself already
// round-trips through descriptor names.
func scanRow(rows *sql.Rows, full bool) (catalog.Row, error) {
	var r catalog.Row
	var qaState, gcalLamp, roi, binning, reduction, procmode, programID, dataLabel, calProgram sql.NullString
	var centralWavelength, elevation, cassRotatorPA sql.NullFloat64
	var utDatetime sql.NullTime
	var lastMod sql.NullTime

	dest := []any{
		&r.Header.ID, &r.DiskFile.ID, &r.Header.Instrument,
		&r.Header.ObservationID, &r.Header.ObservationType, &r.Header.ObservationClass,
		&r.Header.Object, &r.Header.Spectroscopy, &centralWavelength,
		&utDatetime, &r.Header.ExposureTime, &r.Header.Coadds,
		&elevation, &cassRotatorPA, &gcalLamp,
		&roi, &binning, &reduction,
		&qaState, &r.Header.Engineering, &procmode,
		&programID, &dataLabel, &r.Header.PhotStandard,
		&calProgram,
		&r.DiskFile.ID, &r.DiskFile.FileID, &r.DiskFile.Canonical, &r.DiskFile.Present, &lastMod,
	}
	if full {
		dest = append(dest, &r.File.ID, &r.File.Name)
	}
	if err := rows.Scan(dest...); err != nil {
		return catalog.Row{}, err
	}

	if centralWavelength.Valid {
		v := centralWavelength.Float64
		r.Header.CentralWavelength = &v
	}
	if elevation.Valid {
		v := elevation.Float64
		r.Header.Elevation = &v
	}
	if cassRotatorPA.Valid {
		v := cassRotatorPA.Float64
		r.Header.CassRotatorPA = &v
	}
	if utDatetime.Valid {
		r.Header.UTDatetime = utDatetime.Time
	} else {
		r.Header.UTDatetime = time.Time{}
	}
	r.Header.GcalLamp = gcalLamp.String
	r.Header.DetectorROISetting = roi.String
	r.Header.DetectorBinning = binning.String
	r.Header.Reduction = reduction.String
	r.Header.QAState = qaState.String
	r.Header.Procmode = procmode.String
	r.Header.ProgramID = programID.String
	r.Header.DataLabel = dataLabel.String
	r.Header.CalibrationProgram = calProgram.String
	if lastMod.Valid {
		r.DiskFile.LastMod = lastMod.Time
	}
	r.Instrument = map[string]any{}
	return r, nil
}
