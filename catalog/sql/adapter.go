package sql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/pkg/errors"

	"github.com/GeminiDRSoftware/GeminiCalMgr/calerrors"
	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
)

// Adapter implements catalog.Adapter against a database/sql handle, using
// go-sqlbuilder to compile catalog.Query into dialect-aware SQL the way
// ucast.go compiles a UCASTNode. Any of postgres (lib/pq), mysql
// (go-sql-driver/mysql), sqlserver (microsoft/go-mssqldb), or sqlite
// (modernc.org/sqlite) may be behind db, selected by Dialect.
type Adapter struct {
	DB      *sql.DB
	Dialect string
}

// New constructs an Adapter. dialect is one of the Dialect* constants.
func New(db *sql.DB, dialect string) *Adapter {
	return &Adapter{DB: db, Dialect: dialect}
}

func (a *Adapter) flavor() sqlbuilder.Flavor { return dialectToFlavor(a.Dialect) }

// Fetch compiles q to SQL, executes it, and scans the result into rows.
func (a *Adapter) Fetch(ctx context.Context, q catalog.Query) ([]catalog.Row, error) {
	sb := a.flavor().NewSelectBuilder()
	table := instrumentTable(q.Instrument)

	sb.Select("header.id", "header.diskfile_id", "header.instrument",
		"header.observation_id", "header.observation_type", "header.observation_class",
		"header.object", "header.spectroscopy", "header.central_wavelength",
		"header.ut_datetime", "header.exposure_time", "header.coadds",
		"header.elevation", "header.cass_rotator_pa", "header.gcal_lamp",
		"header.detector_roi_setting", "header.detector_binning", "header.reduction",
		"header.qa_state", "header.engineering", "header.procmode",
		"header.program_id", "header.data_label", "header.phot_standard",
		"header.calibration_program",
		"diskfile.id", "diskfile.file_id", "diskfile.canonical", "diskfile.present", "diskfile.last_mod")
	sb.From(fmt.Sprintf("%s AS instrument_tbl", table))
	sb.JoinWithOption(sqlbuilder.InnerJoin, "header", "header.id = instrument_tbl.header_id")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "diskfile", "diskfile.id = header.diskfile_id")
	if q.FullQuery {
		sb.Select("file.id", "file.name")
		sb.JoinWithOption(sqlbuilder.InnerJoin, "file", "file.id = diskfile.file_id")
	}

	where := []string{
		sb.Equal("diskfile.canonical", true),
		sb.NotEqual("header.qa_state", "Fail"),
	}
	if !q.IncludeEngineering {
		where = append(where, sb.Equal("header.engineering", false))
	}
	if q.Procmode != "" {
		where = append(where, sb.Equal("header.procmode", q.Procmode))
	}

	targetCenter := 0.0
	if q.Target != nil {
		targetCenter = float64(q.Target.UTDatetime.Unix())
	}
	extra, err := compileWhere(sb, q.Predicates, targetCenter)
	if err != nil {
		return nil, calerrors.NewCatalogUnavailable("compiling predicates", err)
	}
	where = append(where, extra...)
	sb.Where(where...)

	applyOrder(sb, q.OrderTerms, targetCenter)
	if q.Limit > 0 {
		sb.Limit(q.Limit)
	}

	query, args := sb.Build()
	rows, err := a.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, calerrors.NewCatalogUnavailable("executing catalog query", errors.Wrap(err, "query"))
	}
	defer rows.Close()

	var out []catalog.Row
	for rows.Next() {
		r, err := scanRow(rows, q.FullQuery)
		if err != nil {
			return nil, calerrors.NewCatalogUnavailable("scanning catalog row", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, calerrors.NewCatalogUnavailable("iterating catalog rows", err)
	}
	return out, nil
}

// FetchByID retrieves a single header by id, used by the orchestrator when
// recursing and by the cache-backed association path to materialize a hit.
func (a *Adapter) FetchByID(ctx context.Context, headerID int64) (catalog.Row, error) {
	rows, err := a.Fetch(ctx, catalog.Query{
		Predicates: []catalog.Predicate{{Kind: catalog.PredEq, Field: "id", Value: headerID}},
		Limit:      1,
	})
	if err != nil {
		return catalog.Row{}, err
	}
	if len(rows) == 0 {
		return catalog.Row{}, calerrors.NewCatalogUnavailable(fmt.Sprintf("header %d not found", headerID), nil)
	}
	return rows[0], nil
}

func applyOrder(sb *sqlbuilder.SelectBuilder, terms []catalog.OrderTerm, targetCenter float64) {
	for _, t := range terms {
		switch t.Kind {
		case catalog.OrderPresent:
			sb.OrderBy("diskfile.present").Desc()
		case catalog.OrderTimeProximity:
			sb.OrderBy(fmt.Sprintf("ABS(header.ut_datetime_secs - %f)", targetCenter)).Asc()
		case catalog.OrderProcmodeSortkey:
			expr := "CASE header.procmode WHEN 'sq' THEN 0 WHEN 'ql' THEN 1 WHEN 'qa' THEN 2 ELSE 3 END"
			ob := sb.OrderBy(expr)
			if t.Desc {
				ob.Desc()
			} else {
				ob.Asc()
			}
		case catalog.OrderObservationIDMatch:
			expr := fmt.Sprintf("CASE WHEN header.observation_id = '%s' THEN 0 ELSE 1 END", t.Field)
			sb.OrderBy(expr).Asc()
		case catalog.OrderField:
			ob := sb.OrderBy(qualify(t.Field))
			if t.Desc {
				ob.Desc()
			} else {
				ob.Asc()
			}
		}
	}
}
