package assoc

import (
	"context"
	"testing"
	"time"

	"github.com/GeminiDRSoftware/GeminiCalMgr/calerrors"
	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog/inmem"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/instruments"
	"github.com/GeminiDRSoftware/GeminiCalMgr/logging"
)

// erroringAdapter always fails Fetch, forcing every rule invocation down
// the error-logging branch.
type erroringAdapter struct{}

func (erroringAdapter) Fetch(ctx context.Context, q catalog.Query) ([]catalog.Row, error) {
	return nil, calerrors.NewCatalogUnavailable("simulated failure", nil)
}

func (erroringAdapter) FetchByID(ctx context.Context, headerID int64) (catalog.Row, error) {
	return catalog.Row{}, calerrors.NewCatalogUnavailable("simulated failure", nil)
}

// spyLogger records, on the root spy, the full set of fields carried by the
// logger most recently derived through WithFields (parent fields included,
// as a real structured logger accumulates them), so tests can assert what
// gets attached to a logged association error.
type spyLogger struct {
	root       *spyLogger
	fields     logging.Fields
	lastFields logging.Fields
}

func (s *spyLogger) Debug(args ...any)                 {}
func (s *spyLogger) Info(args ...any)                  {}
func (s *spyLogger) Warn(args ...any)                  {}
func (s *spyLogger) Error(args ...any)                 {}
func (s *spyLogger) SetLevel(level string) error       { return nil }
func (s *spyLogger) GetLevel() string                  { return "info" }
func (s *spyLogger) WithFields(f logging.Fields) logging.Logger {
	root := s.root
	if root == nil {
		root = s
	}
	merged := logging.Fields{}
	for k, v := range s.fields {
		merged[k] = v
	}
	for k, v := range f {
		merged[k] = v
	}
	root.lastFields = merged
	return &spyLogger{root: root, fields: merged}
}

// canonicalRow builds a canonical, present catalog row; a header with no
// reduction set is a raw frame.
func canonicalRow(h catalog.HeaderRecord, instrumentCols map[string]any) catalog.Row {
	if h.Reduction == "" {
		h.Reduction = "RAW"
	}
	return catalog.Row{
		Header:     h,
		DiskFile:   catalog.DiskFileRecord{Canonical: true, Present: true},
		Instrument: instrumentCols,
	}
}

func TestAssociateF2DarkAndFlat(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	target := &descriptor.Bundle{
		Instrument:       "F2",
		ObservationType:  "OBJECT",
		ObservationClass: "science",
		Spectroscopy:     false,
		UTDatetime:       now,
		ExposureTime:     60,
		Extra:            map[string]any{"read_mode": "bright", "disperser": "Open", "lyot_stop": "f/16", "filter_name": "Y", "focal_plane_mask": "Open"},
	}

	cat := inmem.New()
	cat.Ingest(canonicalRow(catalog.HeaderRecord{
		Instrument:      "F2",
		ObservationType: "DARK",
		UTDatetime:      now.Add(-24 * time.Hour),
		ExposureTime:    60,
	}, map[string]any{"read_mode": "bright"}))
	cat.Ingest(canonicalRow(catalog.HeaderRecord{
		Instrument:      "F2",
		ObservationType: "FLAT",
		UTDatetime:      now.Add(-12 * time.Hour),
	}, map[string]any{"read_mode": "bright", "disperser": "Open", "lyot_stop": "f/16", "filter_name": "Y", "focal_plane_mask": "Open"}))

	orch := New(instruments.NewRegistry(), cat, nil)

	rows, err := orch.Associate(context.Background(), []*descriptor.Bundle{target}, "all", 0)
	if err != nil {
		t.Fatalf("Associate returned error: %v", err)
	}

	var gotDark, gotFlat bool
	for _, r := range rows {
		switch r.Header.ObservationType {
		case "DARK":
			gotDark = true
		case "FLAT":
			gotFlat = true
		}
	}
	if !gotDark {
		t.Error("expected a DARK candidate in the result")
	}
	if !gotFlat {
		t.Error("expected a FLAT candidate in the result")
	}
}

func TestAssociateSingleCaltypeSkipsOthers(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	target := &descriptor.Bundle{
		Instrument:       "F2",
		ObservationType:  "OBJECT",
		ObservationClass: "science",
		Spectroscopy:     false,
		UTDatetime:       now,
		ExposureTime:     60,
		Extra:            map[string]any{"read_mode": "bright"},
	}

	cat := inmem.New()
	cat.Ingest(canonicalRow(catalog.HeaderRecord{
		Instrument:      "F2",
		ObservationType: "DARK",
		UTDatetime:      now.Add(-time.Hour),
		ExposureTime:    60,
	}, map[string]any{"read_mode": "bright"}))
	cat.Ingest(canonicalRow(catalog.HeaderRecord{
		Instrument:      "F2",
		ObservationType: "FLAT",
		UTDatetime:      now.Add(-time.Hour),
	}, map[string]any{"read_mode": "bright", "disperser": "Open", "lyot_stop": "f/16", "filter_name": "Y", "focal_plane_mask": "Open"}))

	orch := New(instruments.NewRegistry(), cat, nil)

	rows, err := orch.Associate(context.Background(), []*descriptor.Bundle{target}, "dark", 0)
	if err != nil {
		t.Fatalf("Associate returned error: %v", err)
	}
	for _, r := range rows {
		if r.Header.ObservationType != "DARK" {
			t.Errorf("expected only DARK rows, got %s", r.Header.ObservationType)
		}
	}
	if len(rows) == 0 {
		t.Error("expected at least one DARK candidate")
	}
}

func TestAssociateDedupesByHeaderID(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	target := &descriptor.Bundle{
		Instrument:       "F2",
		ObservationType:  "OBJECT",
		ObservationClass: "science",
		Spectroscopy:     false,
		UTDatetime:       now,
		ExposureTime:     60,
		Extra:            map[string]any{"read_mode": "bright"},
	}

	cat := inmem.New()
	cat.Ingest(canonicalRow(catalog.HeaderRecord{
		Instrument:      "F2",
		ObservationType: "DARK",
		UTDatetime:      now.Add(-time.Hour),
		ExposureTime:    60,
	}, map[string]any{"read_mode": "bright"}))

	orch := New(instruments.NewRegistry(), cat, nil)
	rows, err := orch.Associate(context.Background(), []*descriptor.Bundle{target, target}, "dark", 0)
	if err != nil {
		t.Fatalf("Associate returned error: %v", err)
	}
	seen := map[int64]int{}
	for _, r := range rows {
		seen[r.Header.ID]++
	}
	for id, count := range seen {
		if count > 1 {
			t.Errorf("header id %d appeared %d times, expected deduped to 1", id, count)
		}
	}
}

func TestAssociateUnknownInstrumentReturnsNoCandidates(t *testing.T) {
	target := &descriptor.Bundle{
		Instrument:      "UNKNOWN-INSTRUMENT",
		ObservationType: "OBJECT",
		UTDatetime:      time.Now().UTC(),
	}
	orch := New(instruments.NewRegistry(), inmem.New(), nil)
	rows, err := orch.Associate(context.Background(), []*descriptor.Bundle{target}, "all", 0)
	if err != nil {
		t.Fatalf("expected no error for an unregistered instrument, got %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no candidates, got %d", len(rows))
	}
}

func TestBPMSortsFirst(t *testing.T) {
	rows := []catalog.Row{
		{Header: catalog.HeaderRecord{ID: 1, ObservationType: "FLAT"}},
		{Header: catalog.HeaderRecord{ID: 2, ObservationType: "BPM"}},
		{Header: catalog.HeaderRecord{ID: 3, ObservationType: "DARK"}},
	}
	if bpmRank(rows[1]) >= bpmRank(rows[0]) {
		t.Error("expected BPM row to rank ahead of a non-BPM row")
	}
}

func TestAssociateTagsErrorLogsWithRequestID(t *testing.T) {
	target := &descriptor.Bundle{
		Instrument:       "F2",
		ObservationType:  "OBJECT",
		ObservationClass: "science",
		Spectroscopy:     false,
		UTDatetime:       time.Now().UTC(),
		ExposureTime:     60,
		Extra:            map[string]any{"read_mode": "bright"},
	}
	spy := &spyLogger{}
	orch := New(instruments.NewRegistry(), erroringAdapter{}, spy)

	if _, err := orch.Associate(context.Background(), []*descriptor.Bundle{target}, "all", 0); err != nil {
		t.Fatalf("expected errors to be swallowed and logged for caltype=all, got %v", err)
	}
	if _, ok := spy.lastFields["request_id"]; !ok {
		t.Errorf("expected the logged error fields to carry a request_id, got %v", spy.lastFields)
	}
}

func TestRuleForBypassesApplicability(t *testing.T) {
	orch := New(instruments.NewRegistry(), inmem.New(), nil)
	if _, err := orch.RuleFor("F2", "dark"); err != nil {
		t.Fatalf("expected F2 dark rule to be found: %v", err)
	}
	if _, err := orch.RuleFor("F2", "bogus_caltype"); err == nil {
		t.Error("expected an error looking up an unsupported calibration type")
	}
}
