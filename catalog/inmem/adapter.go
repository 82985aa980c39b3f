// Package inmem implements catalog.Adapter directly in memory, for
// cmd/calcheck's ephemeral catalog: it ingests exactly the target and
// candidate frames named on the command line rather than opening a real
// database connection.
package inmem

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/GeminiDRSoftware/GeminiCalMgr/calerrors"
	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
)

// Adapter holds an in-memory slice of rows and evaluates catalog.Query
// predicates against them directly in Go, rather than compiling SQL —
// there is no database underneath a calcheck invocation.
type Adapter struct {
	rows []catalog.Row
}

// New builds an empty in-memory adapter.
func New() *Adapter { return &Adapter{} }

// Ingest adds a row to the catalog, assigning it a header id if it doesn't
// already have one.
func (a *Adapter) Ingest(r catalog.Row) int64 {
	if r.Header.ID == 0 {
		r.Header.ID = int64(len(a.rows)) + 1
	}
	a.rows = append(a.rows, r)
	return r.Header.ID
}

func (a *Adapter) Fetch(ctx context.Context, q catalog.Query) ([]catalog.Row, error) {
	var targetCenter float64
	if q.Target != nil {
		targetCenter = float64(q.Target.UTDatetime.Unix())
	}

	var matched []catalog.Row
	for _, r := range a.rows {
		if !r.DiskFile.Canonical {
			continue
		}
		if r.Header.QAState == "Fail" {
			continue
		}
		if !q.IncludeEngineering && r.Header.Engineering {
			continue
		}
		if q.Procmode != "" && r.Header.Procmode != q.Procmode {
			continue
		}
		ok := true
		for _, p := range q.Predicates {
			if !evalPredicate(r, p, targetCenter) {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return less(matched[i], matched[j], q.OrderTerms, targetCenter)
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

func (a *Adapter) FetchByID(ctx context.Context, headerID int64) (catalog.Row, error) {
	for _, r := range a.rows {
		if r.Header.ID == headerID {
			return r, nil
		}
	}
	return catalog.Row{}, calerrors.NewCatalogUnavailable("header not found in in-memory catalog", nil)
}

func rowField(r catalog.Row, field string) (any, bool) {
	switch field {
	case "instrument":
		return r.Header.Instrument, true
	case "observation_id":
		return r.Header.ObservationID, true
	case "observation_type":
		return r.Header.ObservationType, true
	case "observation_class":
		return r.Header.ObservationClass, true
	case "object":
		return r.Header.Object, true
	case "spectroscopy":
		return r.Header.Spectroscopy, true
	case "central_wavelength":
		if r.Header.CentralWavelength == nil {
			return nil, true
		}
		return *r.Header.CentralWavelength, true
	case "exposure_time":
		return r.Header.ExposureTime, true
	case "coadds":
		return r.Header.Coadds, true
	case "elevation":
		if r.Header.Elevation == nil {
			return nil, true
		}
		return *r.Header.Elevation, true
	case "cass_rotator_pa":
		if r.Header.CassRotatorPA == nil {
			return nil, true
		}
		return *r.Header.CassRotatorPA, true
	case "gcal_lamp":
		return r.Header.GcalLamp, true
	case "detector_roi_setting":
		return r.Header.DetectorROISetting, true
	case "detector_binning":
		return r.Header.DetectorBinning, true
	case "reduction":
		return r.Header.Reduction, true
	case "qa_state":
		return r.Header.QAState, true
	case "engineering":
		return r.Header.Engineering, true
	case "procmode":
		return r.Header.Procmode, true
	case "program_id":
		return r.Header.ProgramID, true
	case "data_label":
		return r.Header.DataLabel, true
	case "phot_standard":
		return r.Header.PhotStandard, true
	case "calibration_program":
		return r.Header.CalibrationProgram, true
	case "ut_datetime_secs":
		return float64(r.Header.UTDatetime.Unix()), true
	case "id":
		return r.Header.ID, true
	case "types":
		var names []string
		for k, set := range r.Header.Types {
			if set {
				names = append(names, k)
			}
		}
		return strings.Join(names, ","), true
	case "arm":
		v, ok := r.Instrument["arm"]
		return v, ok
	default:
		v, ok := r.Instrument[field]
		return v, ok
	}
}

func evalPredicate(r catalog.Row, p catalog.Predicate, targetCenter float64) bool {
	switch p.Kind {
	case catalog.PredOr:
		for _, inner := range p.Or {
			if evalPredicate(r, inner, targetCenter) {
				return true
			}
		}
		return len(p.Or) == 0
	case catalog.PredAnd:
		for _, inner := range p.And {
			if !evalPredicate(r, inner, targetCenter) {
				return false
			}
		}
		return true
	case catalog.PredAbsDiffLT:
		v, ok := rowField(r, p.Field)
		if !ok {
			return false
		}
		f, ok := toFloat(v)
		if !ok {
			return false
		}
		window, _ := p.Lo.(float64)
		return math.Abs(f-targetCenter) < window
	case catalog.PredBetween:
		v, ok := rowField(r, p.Field)
		if !ok || v == nil {
			return false
		}
		f, ok := toFloat(v)
		if !ok {
			return false
		}
		lo, _ := toFloat(p.Lo)
		hi, _ := toFloat(p.Hi)
		return f >= lo && f <= hi
	default:
		v, ok := rowField(r, p.Field)
		if !ok {
			return false
		}
		return evalScalar(p.Kind, v, p.Value, p.Values)
	}
}

func evalScalar(kind catalog.PredKind, v, want any, wantMulti []any) bool {
	switch kind {
	case catalog.PredEq:
		return equalAny(v, want)
	case catalog.PredNe:
		return !equalAny(v, want)
	case catalog.PredIn:
		for _, w := range wantMulti {
			if equalAny(v, w) {
				return true
			}
		}
		return false
	case catalog.PredContains:
		s, ok1 := v.(string)
		w, ok2 := want.(string)
		return ok1 && ok2 && strings.Contains(s, w)
	case catalog.PredStartsWith:
		s, ok1 := v.(string)
		w, ok2 := want.(string)
		return ok1 && ok2 && strings.HasPrefix(s, w)
	case catalog.PredEndsWith:
		s, ok1 := v.(string)
		w, ok2 := want.(string)
		return ok1 && ok2 && strings.HasSuffix(s, w)
	case catalog.PredLike:
		s, ok1 := v.(string)
		pattern, ok2 := want.(string)
		return ok1 && ok2 && likeMatch(s, pattern)
	case catalog.PredLt, catalog.PredLe, catalog.PredGt, catalog.PredGe:
		a, ok1 := toFloat(v)
		b, ok2 := toFloat(want)
		if !ok1 || !ok2 {
			return false
		}
		switch kind {
		case catalog.PredLt:
			return a < b
		case catalog.PredLe:
			return a <= b
		case catalog.PredGt:
			return a > b
		default:
			return a >= b
		}
	default:
		return false
	}
}

// likeMatch evaluates a SQL LIKE pattern against s without a database
// underneath: "%" becomes ".*", "_" becomes ".", everything else is
// regex-escaped, so "G_-CAL%" behaves identically here and compiled to SQL.
func likeMatch(s, pattern string) bool {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func equalAny(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func less(a, b catalog.Row, terms []catalog.OrderTerm, targetCenter float64) bool {
	for _, t := range terms {
		switch t.Kind {
		case catalog.OrderPresent:
			if a.DiskFile.Present != b.DiskFile.Present {
				return a.DiskFile.Present // true (present) sorts first: desc
			}
		case catalog.OrderTimeProximity:
			da := math.Abs(float64(a.Header.UTDatetime.Unix()) - targetCenter)
			db := math.Abs(float64(b.Header.UTDatetime.Unix()) - targetCenter)
			if da != db {
				return da < db
			}
		case catalog.OrderProcmodeSortkey:
			ra, rb := procmodeRank(a.Header.Procmode), procmodeRank(b.Header.Procmode)
			if ra != rb {
				if t.Desc {
					return ra > rb
				}
				return ra < rb
			}
		case catalog.OrderObservationIDMatch:
			ma := a.Header.ObservationID == t.Field
			mb := b.Header.ObservationID == t.Field
			if ma != mb {
				return ma
			}
		case catalog.OrderField:
			va, _ := rowField(a, t.Field)
			vb, _ := rowField(b, t.Field)
			fa, oka := toFloat(va)
			fb, okb := toFloat(vb)
			if oka && okb && fa != fb {
				if t.Desc {
					return fa > fb
				}
				return fa < fb
			}
		}
	}
	return false
}

func procmodeRank(mode string) int {
	switch mode {
	case "sq":
		return 0
	case "ql":
		return 1
	case "qa":
		return 2
	default:
		return 3
	}
}
