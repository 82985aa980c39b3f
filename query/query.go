// Package query implements the fluent, immutable Query Builder described in
// spec.md §4.3: each method returns a new Spec value with one more predicate
// or order term accumulated, mirroring gemini_calmgr/cal/calibration.py's
// CalQuery, and materializes against a catalog.Adapter only when All is
// called — the same deferred-materialization shape as
// internal/ucast.UCASTNode compiling to SQL only at AsSQL time.
package query

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/GeminiDRSoftware/GeminiCalMgr/calerrors"
	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
)

// OrderMode controls where extra order terms are spliced relative to the
// three default ordering terms (present desc, time proximity, procmode).
type OrderMode int

const (
	// OrderDefaultLast appends extra order terms after the default triple
	// (CalQuery.all's default behavior).
	OrderDefaultLast OrderMode = iota
	// OrderDefaultFirst places extra order terms ahead of the default
	// triple.
	OrderDefaultFirst
	// OrderDefaultNone suppresses the default triple entirely; only the
	// extra order terms are used.
	OrderDefaultNone
)

// Spec is the accumulated, immutable query specification. Every builder
// method returns a new Spec; the zero value is not usable — build one with
// New.
type Spec struct {
	target     *descriptor.Bundle
	instrument string
	full       bool
	includeEng bool
	procmode   string

	preds []catalog.Predicate
	err   error // sticky: set by the first UnknownDescriptor encountered
}

// New starts a query for the given target bundle against the named
// instrument table.
func New(target *descriptor.Bundle, instrument string) Spec {
	return Spec{target: target, instrument: instrument}
}

func (s Spec) clone() Spec {
	n := s
	n.preds = append([]catalog.Predicate(nil), s.preds...)
	return n
}

// Err returns the first UnknownDescriptor error raised while building this
// spec, if any. All also returns it, but Err lets callers check early.
func (s Spec) Err() error { return s.err }

func (s Spec) withErr(err error) Spec {
	n := s.clone()
	if n.err == nil {
		n.err = err
	}
	return n
}

// FullQuery requests that the adapter also join the file table, needed by
// rules that inspect the filename.
func (s Spec) FullQuery() Spec {
	n := s.clone()
	n.full = true
	return n
}

// IncludeEngineering disables the default engineering=false filter (used by
// BPM association, which must see engineering frames).
func (s Spec) IncludeEngineering() Spec {
	n := s.clone()
	n.includeEng = true
	return n
}

// Procmode restricts results to the given procmode (the "sq" exclusion
// case).
func (s Spec) Procmode(mode string) Spec {
	n := s.clone()
	n.procmode = mode
	return n
}

// AddFilters appends raw catalog predicates, the escape hatch every named
// filter below is built from.
func (s Spec) AddFilters(preds ...catalog.Predicate) Spec {
	n := s.clone()
	n.preds = append(n.preds, preds...)
	return n
}

// If conditionally applies f to the spec, mirroring CalQuery.if_ — lets
// rule code chain builder calls without breaking the fluent style for an
// occasional conditional step.
func (s Spec) If(cond bool, f func(Spec) Spec) Spec {
	if !cond {
		return s
	}
	return f(s)
}

// MatchDescriptors adds an equality predicate between the target's value
// for each named descriptor and the corresponding catalog column, for every
// name in fields. A name outside the known-descriptor registry raises
// UnknownDescriptor (sticky, surfaced at All); a name that is known but
// unset on the target is silently skipped (MissingTargetValue semantics),
// matching CalQuery.match_descriptors's KeyError/TypeError split.
func (s Spec) MatchDescriptors(fields ...string) Spec {
	n := s
	for _, name := range fields {
		n = n.matchOne(name)
	}
	return n
}

func (s Spec) matchOne(name string) Spec {
	if !descriptor.IsKnownDescriptor(name) {
		return s.withErr(calerrors.NewUnknownDescriptor(name))
	}
	if s.target.Arm == "" && s.target.ArmExtra != nil {
		if _, armed := s.target.ArmExtra[name]; armed {
			return s.matchArmed(name)
		}
	}
	v, present := s.target.Value(name)
	if !present || v == nil {
		return s
	}
	return s.AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: name, Value: v})
}

// matchArmed expands an arm-qualified descriptor into a disjunction across
// every arm the target carries a value for, when the target itself has no
// fixed arm — the port of calibration_ghost.py's match_descriptors
// arm-expansion.
func (s Spec) matchArmed(name string) Spec {
	perArm, ok := s.target.ArmExtra[name]
	if !ok || len(perArm) == 0 {
		return s
	}
	var or []catalog.Predicate
	for arm, v := range perArm {
		if v == nil {
			continue
		}
		or = append(or, catalog.Predicate{Kind: catalog.PredAnd, And: []catalog.Predicate{
			{Kind: catalog.PredEq, Field: "arm", Value: arm},
			{Kind: catalog.PredEq, Field: name + "_" + arm, Value: v},
		}})
	}
	if len(or) == 0 {
		return s
	}
	return s.AddFilters(catalog.Predicate{Kind: catalog.PredOr, Or: or})
}

// Tolerance adds, for each descriptor name to numeric tolerance in tol, a
// predicate requiring the catalog column to fall within target±tolerance.
// cond gates the whole call (mirrors CalQuery.tolerance's own `condition`
// kwarg, used by rules that only apply a tolerance conditionally). An
// unknown descriptor name raises UnknownDescriptor; a known descriptor with
// no numeric value on the target is skipped.
func (s Spec) Tolerance(cond bool, tol map[string]float64) Spec {
	if !cond {
		return s
	}
	n := s
	for name, width := range tol {
		n = n.toleranceOne(name, width)
	}
	return n
}

func (s Spec) toleranceOne(name string, width float64) Spec {
	if !descriptor.IsKnownDescriptor(name) {
		return s.withErr(calerrors.NewUnknownDescriptor(name))
	}
	val, present, numeric := s.target.Float(name)
	if !present || !numeric {
		return s
	}
	return s.AddFilters(catalog.Predicate{
		Kind: catalog.PredBetween, Field: name, Lo: val - width, Hi: val + width,
	})
}

// MaxInterval bounds the candidate's ut_datetime to within the given window
// (days, seconds) of the target's.
func (s Spec) MaxInterval(days, seconds float64) Spec {
	window := days*86400 + seconds
	return s.AddFilters(catalog.Predicate{
		Kind: catalog.PredAbsDiffLT, Field: "ut_datetime_secs", Lo: window,
	})
}

// Raw restricts to RAW reduction-level candidates.
func (s Spec) Raw() Spec {
	return s.AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "reduction", Value: "RAW"})
}

// Reduction restricts to an exact reduction-level value.
func (s Spec) Reduction(value string) Spec {
	return s.AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "reduction", Value: value})
}

// ObservationType restricts to an exact observation_type.
func (s Spec) ObservationType(value string) Spec {
	return s.AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "observation_type", Value: value})
}

// ObservationClass restricts to an exact observation_class.
func (s Spec) ObservationClass(value string) Spec {
	return s.AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "observation_class", Value: value})
}

// Object restricts to an exact object name.
func (s Spec) Object(value string) Spec {
	return s.AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "object", Value: value})
}

// Spectroscopy restricts to the given spectroscopy flag.
func (s Spec) Spectroscopy(value bool) Spec {
	return s.AddFilters(catalog.Predicate{Kind: catalog.PredEq, Field: "spectroscopy", Value: value})
}

// RawOrProcessed restricts reduction to RAW when processed is false, or to
// "PROCESSED_"+name when true (the common not_processed-gated branch most
// calibration types share).
func (s Spec) RawOrProcessed(name string, processed bool) Spec {
	if processed {
		return s.Reduction("PROCESSED_" + strings.ToUpper(name))
	}
	return s.Raw()
}

// RawOrProcessedByTypes restricts reduction to "PROCESSED_"+name when
// processed, or to raw frames whose AstroData type set contains name
// otherwise — used when a calibration type is not reliably recorded in
// observation_type (e.g. SLITILLUM).
func (s Spec) RawOrProcessedByTypes(name string, processed bool) Spec {
	if processed {
		return s.Reduction("PROCESSED_" + strings.ToUpper(name))
	}
	return s.Raw().AddFilters(catalog.Predicate{Kind: catalog.PredContains, Field: "types", Value: name})
}

// Bias is the canonical bias filter: observation_type BIAS, raw or
// processed.
func (s Spec) Bias(processed bool) Spec {
	return s.ObservationType("BIAS").RawOrProcessed("BIAS", processed)
}

// Dark is the canonical dark filter.
func (s Spec) Dark(processed bool) Spec {
	return s.ObservationType("DARK").RawOrProcessed("DARK", processed)
}

// Flat is the canonical flat filter.
func (s Spec) Flat(processed bool) Spec {
	return s.ObservationType("FLAT").RawOrProcessed("FLAT", processed)
}

// Arc is the canonical arc filter.
func (s Spec) Arc(processed bool) Spec {
	return s.ObservationType("ARC").RawOrProcessed("ARC", processed)
}

// Pinhole is the canonical pinhole-mask filter (GNIRS/NIFS XD setups):
// raw_or_processed(PINHOLE).
func (s Spec) Pinhole(processed bool) Spec {
	return s.RawOrProcessed("PINHOLE", processed)
}

// BPM is the canonical bad-pixel-mask filter: raw_or_processed(BPM).
func (s Spec) BPM(processed bool) Spec {
	return s.RawOrProcessed("BPM", processed)
}

// TelluricStandard restricts to OBJECT partnerCal frames (raw) or the
// PROCESSED_TELLURIC reduction (processed) — the port of CalQuery's
// telluric_standard(processed, OBJECT=True, partnerCal=True) helper.
func (s Spec) TelluricStandard(processed bool) Spec {
	if processed {
		return s.Reduction("PROCESSED_TELLURIC")
	}
	return s.ObservationType("OBJECT").ObservationClass("partnerCal")
}

// Standard is the canonical standard-star filter: raw_or_processed(STANDARD).
func (s Spec) Standard(processed bool) Spec {
	return s.RawOrProcessed("STANDARD", processed)
}

// Slitillum is the canonical slit-illumination filter:
// raw_or_processed_by_types(SLITILLUM): processed uses the reduction
// column, raw matches against the AstroData type set instead of
// observation_type, since not all SLITILLUM frames carry it in OBSTYPE.
func (s Spec) Slitillum(processed bool) Spec {
	if processed {
		return s.Reduction("PROCESSED_SLITILLUM")
	}
	return s.Raw().AddFilters(catalog.Predicate{Kind: catalog.PredContains, Field: "types", Value: "SLITILLUM"})
}

// dispersionFromDisperser parses the leading groove-density number out of a
// disperser name (e.g. "B600-G5307" -> 600), the port of
// calibration_gmos.py's _get_fuzzy_wavelength helper. When none of the known
// values appears in the name, returns the first number in it; returns 1200
// (the "worst case" band) only when the name holds no positive number.
var disperserNumRe = regexp.MustCompile(`(\d+)`)

func DispersionFromDisperser(name string) int {
	for _, n := range []string{"1200", "600", "831", "400", "150"} {
		if strings.Contains(name, n) {
			var v int
			fmt.Sscanf(n, "%d", &v)
			return v
		}
	}
	if m := disperserNumRe.FindString(name); m != "" {
		var v int
		fmt.Sscanf(m, "%d", &v)
		if v > 0 {
			return v
		}
	}
	return 1200
}

// FuzzyWavelengthBand returns the dispersion-derived central-wavelength
// tolerance band used by GMOS's standard/slitillum scoring:
// 200 * (0.03 / N) where N is the disperser's groove density.
func FuzzyWavelengthBand(disperserName string) float64 {
	n := DispersionFromDisperser(disperserName)
	return 200 * (0.03 / float64(n))
}

// ScoreByWavelengthAndTime computes the shared GMOS standard/slitillum
// score: |Δλ|/tolerance + |Δt_seconds|/(30 days in seconds). Lower is
// better.
func ScoreByWavelengthAndTime(targetWavelength, candidateWavelength, tolerance float64, deltaSeconds float64) float64 {
	wavelengthTerm := math.Abs(targetWavelength-candidateWavelength) / tolerance
	timeTerm := math.Abs(deltaSeconds) / (30 * 86400)
	return wavelengthTerm + timeTerm
}

// All materializes the query against adapter: it builds the final
// catalog.Query (base predicates + the default ordering triple, optionally
// overridden per defaultOrder, plus extraOrder) and fetches up to howmany
// rows. If a prior builder call raised UnknownDescriptor, that error is
// returned here without touching the adapter, matching CalQuery's
// raise-at-build-time semantics surfacing once the query actually runs.
func (s Spec) All(ctx context.Context, adapter catalog.Adapter, howmany int, extraOrder []catalog.OrderTerm, defaultOrder OrderMode) ([]catalog.Row, error) {
	if s.err != nil {
		return nil, s.err
	}
	q := catalog.Query{
		Instrument:         s.instrument,
		FullQuery:          s.full,
		IncludeEngineering: s.includeEng,
		Procmode:           s.procmode,
		Predicates:         s.preds,
		Limit:              howmany,
		Target:             s.target,
		OrderTerms:         buildOrder(extraOrder, defaultOrder),
	}
	rows, err := adapter.Fetch(ctx, q)
	if err != nil {
		return nil, calerrors.NewCatalogUnavailable("query builder fetch failed", err)
	}
	return rows, nil
}

func defaultOrderTriple() []catalog.OrderTerm {
	return []catalog.OrderTerm{
		{Kind: catalog.OrderPresent, Desc: true},
		{Kind: catalog.OrderTimeProximity, Desc: false},
		{Kind: catalog.OrderProcmodeSortkey, Desc: true},
	}
}

func buildOrder(extra []catalog.OrderTerm, mode OrderMode) []catalog.OrderTerm {
	switch mode {
	case OrderDefaultNone:
		return extra
	case OrderDefaultFirst:
		return append(append([]catalog.OrderTerm(nil), extra...), defaultOrderTriple()...)
	default: // OrderDefaultLast
		return append(append([]catalog.OrderTerm(nil), defaultOrderTriple()...), extra...)
	}
}
