package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
)

func row(id int64, obsType string, when time.Time, present bool) catalog.Row {
	return catalog.Row{
		Header:   catalog.HeaderRecord{ID: id, Instrument: "F2", ObservationType: obsType, UTDatetime: when, Reduction: "RAW"},
		DiskFile: catalog.DiskFileRecord{Canonical: true, Present: present},
	}
}

func TestIngestAssignsSequentialIDs(t *testing.T) {
	a := New()
	id1 := a.Ingest(catalog.Row{Header: catalog.HeaderRecord{Instrument: "F2"}, DiskFile: catalog.DiskFileRecord{Canonical: true}})
	id2 := a.Ingest(catalog.Row{Header: catalog.HeaderRecord{Instrument: "F2"}, DiskFile: catalog.DiskFileRecord{Canonical: true}})
	if id1 != 1 || id2 != 2 {
		t.Fatalf("expected sequential ids 1, 2, got %d, %d", id1, id2)
	}
}

func TestFetchExcludesNonCanonicalAndFailedQA(t *testing.T) {
	a := New()
	now := time.Now()
	good := row(1, "DARK", now, true)
	nonCanonical := row(2, "DARK", now, true)
	nonCanonical.DiskFile.Canonical = false
	failedQA := row(3, "DARK", now, true)
	failedQA.Header.QAState = "Fail"
	a.Ingest(good)
	a.Ingest(nonCanonical)
	a.Ingest(failedQA)

	rows, err := a.Fetch(context.Background(), catalog.Query{Instrument: "F2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Header.ID != 1 {
		t.Fatalf("expected only the canonical, QA-passing row, got %+v", rows)
	}
}

func TestFetchExcludesEngineeringByDefault(t *testing.T) {
	a := New()
	now := time.Now()
	eng := row(1, "DARK", now, true)
	eng.Header.Engineering = true
	a.Ingest(eng)
	a.Ingest(row(2, "DARK", now, true))

	rows, err := a.Fetch(context.Background(), catalog.Query{Instrument: "F2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Header.ID != 2 {
		t.Fatalf("expected the engineering row excluded, got %+v", rows)
	}

	rows, err = a.Fetch(context.Background(), catalog.Query{Instrument: "F2", IncludeEngineering: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected both rows when IncludeEngineering is set, got %+v", rows)
	}
}

func TestFetchFiltersByProcmode(t *testing.T) {
	a := New()
	now := time.Now()
	sq := row(1, "DARK", now, true)
	sq.Header.Procmode = "sq"
	ql := row(2, "DARK", now, true)
	ql.Header.Procmode = "ql"
	a.Ingest(sq)
	a.Ingest(ql)

	rows, err := a.Fetch(context.Background(), catalog.Query{Instrument: "F2", Procmode: "sq"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Header.ID != 1 {
		t.Fatalf("expected only the sq row, got %+v", rows)
	}
}

func TestFetchOrdersPresentFirst(t *testing.T) {
	a := New()
	now := time.Now()
	absent := row(1, "DARK", now, false)
	present := row(2, "DARK", now, true)
	a.Ingest(absent)
	a.Ingest(present)

	rows, err := a.Fetch(context.Background(), catalog.Query{
		Instrument: "F2",
		OrderTerms: []catalog.OrderTerm{{Kind: catalog.OrderPresent, Desc: true}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 || rows[0].Header.ID != 2 {
		t.Fatalf("expected the present row first, got %+v", rows)
	}
}

func TestFetchRespectsLimit(t *testing.T) {
	a := New()
	now := time.Now()
	for i := int64(1); i <= 5; i++ {
		a.Ingest(row(i, "DARK", now, true))
	}
	rows, err := a.Fetch(context.Background(), catalog.Query{Instrument: "F2", Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected exactly 2 rows, got %d", len(rows))
	}
}

func TestFetchByIDReturnsNotFoundError(t *testing.T) {
	a := New()
	a.Ingest(row(1, "DARK", time.Now(), true))
	if _, err := a.FetchByID(context.Background(), 99); err == nil {
		t.Fatal("expected an error for an unknown header id")
	}
	got, err := a.FetchByID(context.Background(), 1)
	if err != nil || got.Header.ID != 1 {
		t.Fatalf("expected row 1, got %+v, err %v", got, err)
	}
}

func TestEvalPredicateEquality(t *testing.T) {
	a := New()
	a.Ingest(row(1, "DARK", time.Now(), true))
	a.Ingest(row(2, "FLAT", time.Now(), true))

	rows, err := a.Fetch(context.Background(), catalog.Query{
		Instrument: "F2",
		Predicates: []catalog.Predicate{{Kind: catalog.PredEq, Field: "observation_type", Value: "FLAT"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Header.ID != 2 {
		t.Fatalf("expected only the FLAT row, got %+v", rows)
	}
}
