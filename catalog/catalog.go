// Package catalog defines the dialect-agnostic query the Query Builder
// materializes against, the row shape it returns, and the Adapter interface
// concrete catalog backends implement.
package catalog

import (
	"context"
	"time"

	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
)

// PredKind enumerates the predicate shapes the query builder can emit.
type PredKind int

const (
	PredEq PredKind = iota
	PredNe
	PredLt
	PredLe
	PredGt
	PredGe
	PredIn
	PredContains
	PredStartsWith
	PredEndsWith
	PredBetween
	// PredAbsDiffLT expresses |field - target| < Lo, where target is the
	// query's ut_datetime in Unix seconds: the time window query.MaxInterval
	// builds on ut_datetime_secs (e.g. GHOST processed_slit's 30 seconds).
	PredAbsDiffLT
	// PredOr is a disjunction of nested predicate groups, used for GHOST's
	// arm-expansion when the target's arm is unset.
	PredOr
	// PredAnd is a conjunction of nested predicate groups, used inside a
	// PredOr branch (e.g. GHOST's "arm == X AND field_X == v" per-arm
	// group before OR-ing across arms).
	PredAnd
	// PredLike applies a full SQL LIKE pattern to Value (not just a plain
	// substring): "%" matches any run of characters, "_" matches exactly
	// one, e.g. GMOS's program_id pattern "G_-CAL%" matching both GN-CAL
	// and GS-CAL. Every Adapter must honor both wildcards identically.
	PredLike
)

// Predicate is one condition the catalog adapter must apply when selecting
// candidate rows. Field names are catalog column names (e.g.
// "header.central_wavelength", "gmos.disperser"), not descriptor names —
// the query package is responsible for that translation.
type Predicate struct {
	Kind   PredKind
	Field  string
	Value  any
	Lo, Hi any
	Values []any
	Or     []Predicate // only for PredOr
	And    []Predicate // only for PredAnd
}

// OrderTerm is one ORDER BY term. Kind selects one of a small set of
// well-known orderings the adapter knows how to compile; Desc reverses it.
type OrderTerm struct {
	Kind string // "present", "time_proximity", "procmode_sortkey", "field", "observation_id_match"
	Field string // column when Kind == "field"; observation id when Kind == "observation_id_match"
	Desc  bool
}

const (
	OrderPresent            = "present"
	OrderTimeProximity      = "time_proximity"
	OrderProcmodeSortkey    = "procmode_sortkey"
	OrderField              = "field"
	OrderObservationIDMatch = "observation_id_match"
)

// Query is the dialect-agnostic request the Query Builder produces and an
// Adapter compiles/executes.
type Query struct {
	// Instrument selects which per-instrument table/join to query ("GMOS",
	// "GNIRS", "GHOST", ...).
	Instrument string
	// FullQuery additionally joins the file table (diskfile -> file),
	// needed by rules that must inspect the filename itself.
	FullQuery bool
	// IncludeEngineering disables the default "engineering = false" filter,
	// needed for BPM association which must see engineering frames too.
	IncludeEngineering bool
	// Procmode, when non-empty, adds the "procmode = <value>" filter (the
	// "sq" quicklook-exclusion case described in spec.md).
	Procmode string

	Predicates []Predicate
	OrderTerms []OrderTerm
	Limit      int

	// Target supplies the reference point for relative ordering terms
	// (time_proximity, observation_id_match) and is not itself a filter.
	Target *descriptor.Bundle
}

// HeaderRecord mirrors the catalog's header table columns the engine reads.
type HeaderRecord struct {
	ID                 int64
	DiskFileID         int64
	Instrument         string
	ObservationID      string
	ObservationType    string
	ObservationClass   string
	Object             string
	Spectroscopy       bool
	CentralWavelength  *float64
	UTDatetime         time.Time
	ExposureTime       float64
	Coadds             int
	Elevation          *float64
	CassRotatorPA      *float64
	GcalLamp           string
	DetectorROISetting string
	DetectorBinning    string
	Reduction          string
	QAState            string
	Engineering        bool
	Procmode           string
	ProgramID          string
	DataLabel          string
	PhotStandard       bool
	CalibrationProgram string
	Types              map[string]bool
}

// DiskFileRecord mirrors the diskfile table.
type DiskFileRecord struct {
	ID        int64
	FileID    int64
	Canonical bool
	Present   bool
	LastMod   time.Time
}

// FileRecord mirrors the file table, only populated when Query.FullQuery.
type FileRecord struct {
	ID   int64
	Name string
}

// Row is one candidate calibration frame: the header/diskfile/file common
// columns plus the instrument-specific columns keyed by descriptor name.
type Row struct {
	Header     HeaderRecord
	DiskFile   DiskFileRecord
	File       FileRecord
	Instrument map[string]any
}

// ToBundle converts a catalog row back into a descriptor.Bundle, used by
// the orchestrator when recursing ("calibrations of calibrations" become
// new targets).
func (r Row) ToBundle() *descriptor.Bundle {
	b := &descriptor.Bundle{
		Instrument:          r.Header.Instrument,
		ObservationType:     r.Header.ObservationType,
		ObservationClass:    r.Header.ObservationClass,
		ObservationID:       r.Header.ObservationID,
		ProgramID:           r.Header.ProgramID,
		DataLabel:           r.Header.DataLabel,
		Object:              r.Header.Object,
		Spectroscopy:        r.Header.Spectroscopy,
		CentralWavelength:   r.Header.CentralWavelength,
		UTDatetime:          r.Header.UTDatetime,
		ExposureTime:        r.Header.ExposureTime,
		Coadds:              r.Header.Coadds,
		Elevation:           r.Header.Elevation,
		CassRotatorPA:       r.Header.CassRotatorPA,
		GcalLamp:            r.Header.GcalLamp,
		DetectorROISetting:  r.Header.DetectorROISetting,
		DetectorBinning:     r.Header.DetectorBinning,
		Reduction:           r.Header.Reduction,
		QAState:             r.Header.QAState,
		Engineering:         r.Header.Engineering,
		Procmode:            r.Header.Procmode,
		PhotStandard:        r.Header.PhotStandard,
		CalibrationProgram:  r.Header.CalibrationProgram,
		Types:               r.Header.Types,
		Extra:               map[string]any{},
	}
	for k, v := range r.Instrument {
		b.Extra[k] = v
	}
	if arm, ok := r.Instrument["arm"].(string); ok {
		b.Arm = arm
	}
	if xbin, ok := toInt(r.Instrument["detector_x_bin"]); ok {
		b.DetectorXBin = xbin
	}
	if ybin, ok := toInt(r.Instrument["detector_y_bin"]); ok {
		b.DetectorYBin = ybin
	}
	return b
}

// toInt narrows an instrument-column value (typically int or int64, as
// ingested from a catalog row) into the int Bundle.DetectorXBin/YBin use.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// Adapter is the collaborator the Query Builder and orchestrator query
// against. Implementations apply the engine's unconditional base filters
// (canonical=true, qa_state != Fail, engineering gating, procmode gating)
// themselves before layering on Query.Predicates.
type Adapter interface {
	Fetch(ctx context.Context, q Query) ([]Row, error)
	// FetchByID retrieves a single header row by id, used to materialize
	// cache-table hits and recursion targets.
	FetchByID(ctx context.Context, headerID int64) (Row, error)
}
