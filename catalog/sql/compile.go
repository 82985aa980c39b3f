package sql

import (
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
)

// instrumentTable maps an instrument name to its catalog table name.
func instrumentTable(instrument string) string {
	switch instrument {
	case "GMOS-N", "GMOS-S":
		return "gmos"
	default:
		return toLowerASCII(instrument)
	}
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// qualify resolves a predicate's logical field name to a "table.column"
// reference: header/diskfile columns live on those tables, everything else
// is assumed to be an instrument-table column.
func qualify(field string) string {
	switch field {
	case "observation_type", "observation_class", "observation_id", "object",
		"spectroscopy", "central_wavelength", "ut_datetime", "ut_datetime_secs",
		"exposure_time", "coadds", "elevation", "cass_rotator_pa", "gcal_lamp",
		"detector_roi_setting", "detector_binning", "reduction", "qa_state",
		"engineering", "procmode", "program_id", "data_label", "phot_standard",
		"calibration_program", "instrument", "types":
		return "header." + field
	case "canonical", "present":
		return "diskfile." + field
	default:
		return "instrument_tbl." + field
	}
}

// compileWhere walks a catalog.Query's predicate tree into a sqlbuilder
// Cond, the direct analogue of ucast.(*UCASTNode).asSQL's per-Op switch.
// targetCenterSecs is the target's ut_datetime expressed as Unix seconds,
// the reference point PredAbsDiffLT windows are centered on.
func compileWhere(cb *sqlbuilder.SelectBuilder, preds []catalog.Predicate, targetCenterSecs float64) ([]string, error) {
	var clauses []string
	for _, p := range preds {
		c, err := compileOne(cb, p, targetCenterSecs)
		if err != nil {
			return nil, err
		}
		if c != "" {
			clauses = append(clauses, c)
		}
	}
	return clauses, nil
}

func compileOne(cb *sqlbuilder.SelectBuilder, p catalog.Predicate, targetCenterSecs float64) (string, error) {
	cond := cb.Cond
	field := qualify(p.Field)
	switch p.Kind {
	case catalog.PredEq:
		return cond.Equal(field, p.Value), nil
	case catalog.PredNe:
		return cond.NotEqual(field, p.Value), nil
	case catalog.PredLt:
		return cond.LessThan(field, p.Value), nil
	case catalog.PredLe:
		return cond.LessEqualThan(field, p.Value), nil
	case catalog.PredGt:
		return cond.GreaterThan(field, p.Value), nil
	case catalog.PredGe:
		return cond.GreaterEqualThan(field, p.Value), nil
	case catalog.PredIn:
		return cond.In(field, p.Values...), nil
	case catalog.PredContains:
		return cond.Like(field, fmt.Sprintf("%%%v%%", p.Value)), nil
	case catalog.PredStartsWith:
		return cond.Like(field, fmt.Sprintf("%v%%", p.Value)), nil
	case catalog.PredEndsWith:
		return cond.Like(field, fmt.Sprintf("%%%v", p.Value)), nil
	case catalog.PredLike:
		// p.Value is already a full SQL LIKE pattern (e.g. "G_-CAL%"); pass
		// it through unwrapped, unlike Contains/StartsWith/EndsWith which
		// build the pattern around a plain substring.
		return cond.Like(field, p.Value), nil
	case catalog.PredBetween:
		return cond.Between(field, p.Lo, p.Hi), nil
	case catalog.PredAbsDiffLT:
		// |field - target| < window, rendered as the open interval
		// target-window < field < target+window on the raw column.
		window, _ := p.Lo.(float64)
		return cond.And(
			cond.GreaterThan(field, targetCenterSecs-window),
			cond.LessThan(field, targetCenterSecs+window),
		), nil
	case catalog.PredOr:
		sub := make([]string, 0, len(p.Or))
		for _, inner := range p.Or {
			c, err := compileOne(cb, inner, targetCenterSecs)
			if err != nil {
				return "", err
			}
			if c != "" {
				sub = append(sub, c)
			}
		}
		return cond.Or(sub...), nil
	case catalog.PredAnd:
		sub := make([]string, 0, len(p.And))
		for _, inner := range p.And {
			c, err := compileOne(cb, inner, targetCenterSecs)
			if err != nil {
				return "", err
			}
			if c != "" {
				sub = append(sub, c)
			}
		}
		return cond.And(sub...), nil
	default:
		return "", fmt.Errorf("sql: unsupported predicate kind %d", p.Kind)
	}
}
