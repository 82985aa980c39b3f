package query

import (
	"context"
	"testing"
	"time"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog/inmem"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
)

func mkRow(id int64, instrument, obsType string, exposure float64, when time.Time, extra map[string]any) catalog.Row {
	return catalog.Row{
		Header: catalog.HeaderRecord{
			ID: id, Instrument: instrument, ObservationType: obsType, ExposureTime: exposure,
			UTDatetime: when, Reduction: "RAW",
		},
		DiskFile:   catalog.DiskFileRecord{Canonical: true, Present: true},
		Instrument: extra,
	}
}

func TestMatchDescriptorsUnknownFieldIsSticky(t *testing.T) {
	target := &descriptor.Bundle{Instrument: "F2"}
	s := New(target, "F2").MatchDescriptors("not_a_real_descriptor").MatchDescriptors("instrument")
	if s.Err() == nil {
		t.Fatal("expected a sticky UnknownDescriptor error")
	}
	a := inmem.New()
	_, err := s.All(context.Background(), a, 10, nil, OrderDefaultLast)
	if err == nil {
		t.Fatal("expected All to surface the sticky error")
	}
}

func TestMatchDescriptorsSkipsUnsetValue(t *testing.T) {
	target := &descriptor.Bundle{} // central_wavelength is known but unset (nil pointer)
	s := New(target, "F2").MatchDescriptors("central_wavelength")
	if s.Err() != nil {
		t.Fatalf("unexpected error: %v", s.Err())
	}
}

func TestMatchDescriptorsBuildsEqualityFilter(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	target := &descriptor.Bundle{Instrument: "F2", ObservationType: "OBJECT", UTDatetime: now}
	a := inmem.New()
	a.Ingest(mkRow(1, "F2", "DARK", 60, now, nil))
	a.Ingest(mkRow(2, "F2", "FLAT", 60, now, nil))

	rows, err := New(target, "F2").ObservationType("DARK").All(context.Background(), a, 10, nil, OrderDefaultLast)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Header.ID != 1 {
		t.Fatalf("expected only the DARK row, got %+v", rows)
	}
}

func TestToleranceFiltersOutsideWindow(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	cw := 2.2
	target := &descriptor.Bundle{Instrument: "GMOS-N", CentralWavelength: &cw}
	a := inmem.New()
	near := 2.21
	far := 5.0
	rowNear := mkRow(1, "GMOS-N", "FLAT", 60, now, nil)
	rowNear.Header.CentralWavelength = &near
	rowFar := mkRow(2, "GMOS-N", "FLAT", 60, now, nil)
	rowFar.Header.CentralWavelength = &far
	a.Ingest(rowNear)
	a.Ingest(rowFar)

	rows, err := New(target, "GMOS-N").Tolerance(true, map[string]float64{"central_wavelength": 0.05}).
		All(context.Background(), a, 10, nil, OrderDefaultLast)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Header.ID != 1 {
		t.Fatalf("expected only the near row to survive the tolerance window, got %+v", rows)
	}
}

func TestToleranceConditionFalseSkipsEntirely(t *testing.T) {
	cw := 2.2
	target := &descriptor.Bundle{CentralWavelength: &cw}
	s := New(target, "GMOS-N").Tolerance(false, map[string]float64{"central_wavelength": 0.05})
	if s.Err() != nil {
		t.Fatalf("unexpected error: %v", s.Err())
	}
}

func TestMaxIntervalBoundsCandidateTime(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	target := &descriptor.Bundle{UTDatetime: now}
	a := inmem.New()
	a.Ingest(mkRow(1, "F2", "DARK", 60, now.Add(2*time.Hour), nil))
	a.Ingest(mkRow(2, "F2", "DARK", 60, now.Add(10*24*time.Hour), nil))

	rows, err := New(target, "F2").MaxInterval(1, 0).All(context.Background(), a, 10, nil, OrderDefaultLast)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Header.ID != 1 {
		t.Fatalf("expected only the row within the 1 day window, got %+v", rows)
	}
}

func TestMatchArmedExpandsAcrossArms(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	target := &descriptor.Bundle{
		Instrument: "GHOST",
		ArmExtra: map[string]map[string]any{
			"exposure_time": {"blue": 30.0, "red": 45.0},
		},
	}
	a := inmem.New()
	a.Ingest(mkRow(1, "GHOST", "FLAT", 0, now, map[string]any{"arm": "blue", "exposure_time_blue": 30.0}))
	a.Ingest(mkRow(2, "GHOST", "FLAT", 0, now, map[string]any{"arm": "red", "exposure_time_red": 99.0}))
	a.Ingest(mkRow(3, "GHOST", "FLAT", 0, now, map[string]any{"arm": "red", "exposure_time_red": 45.0}))

	rows, err := New(target, "GHOST").MatchDescriptors("exposure_time").All(context.Background(), a, 10, nil, OrderDefaultLast)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := map[int64]bool{}
	for _, r := range rows {
		ids[r.Header.ID] = true
	}
	if !ids[1] || !ids[3] || ids[2] {
		t.Fatalf("expected rows 1 and 3 to match (correct arm+value pairing), got %+v", rows)
	}
}

func TestRawOrProcessed(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	target := &descriptor.Bundle{Instrument: "F2"}
	a := inmem.New()
	raw := mkRow(1, "F2", "DARK", 60, now, nil)
	processed := mkRow(2, "F2", "DARK", 60, now, nil)
	processed.Header.Reduction = "PROCESSED_DARK"
	a.Ingest(raw)
	a.Ingest(processed)

	rows, err := New(target, "F2").Dark(true).All(context.Background(), a, 10, nil, OrderDefaultLast)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Header.ID != 2 {
		t.Fatalf("expected only the processed row when processed=true, got %+v", rows)
	}
}

func TestDispersionFromDisperser(t *testing.T) {
	cases := map[string]int{
		"B600-G5307": 600,
		"R831-G5302": 831,
		"unknown":    1200,
	}
	for disperser, want := range cases {
		if got := DispersionFromDisperser(disperser); got != want {
			t.Errorf("DispersionFromDisperser(%q) = %d, want %d", disperser, got, want)
		}
	}
}

func TestFuzzyWavelengthBandScalesInverselyWithDispersion(t *testing.T) {
	low := FuzzyWavelengthBand("B1200-G5301")
	high := FuzzyWavelengthBand("B150-G5308")
	if !(low < high) {
		t.Errorf("expected higher groove density to produce a tighter band: low=%v high=%v", low, high)
	}
}

func TestOrderModeDefaultNoneSuppressesDefaultTriple(t *testing.T) {
	extra := []catalog.OrderTerm{{Kind: catalog.OrderField, Field: "exposure_time"}}
	got := buildOrder(extra, OrderDefaultNone)
	if len(got) != 1 {
		t.Fatalf("expected exactly the extra term, got %+v", got)
	}
}

func TestOrderModeDefaultFirstPlacesExtraAhead(t *testing.T) {
	extra := []catalog.OrderTerm{{Kind: catalog.OrderField, Field: "exposure_time"}}
	got := buildOrder(extra, OrderDefaultFirst)
	if len(got) != 4 || got[0].Kind != catalog.OrderField {
		t.Fatalf("expected extra term first, got %+v", got)
	}
}
