package f2

import (
	"context"
	"testing"
	"time"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog/inmem"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
)

func TestApplicableImagingScienceTarget(t *testing.T) {
	target := &descriptor.Bundle{ObservationType: "OBJECT", ObservationClass: "science", Spectroscopy: false}
	got := applicable(target)
	for _, want := range []string{"dark", "flat", "photometric_standard"} {
		if _, ok := got[want]; !ok {
			t.Errorf("expected %q to be applicable for an imaging science target, got %v", want, got)
		}
	}
	if _, ok := got["telluric_standard"]; ok {
		t.Error("telluric_standard should not apply to an imaging target")
	}
}

func TestApplicableSpectroscopyScienceTarget(t *testing.T) {
	target := &descriptor.Bundle{ObservationType: "OBJECT", ObservationClass: "science", Spectroscopy: true}
	got := applicable(target)
	for _, want := range []string{"dark", "flat", "arc", "telluric_standard"} {
		if _, ok := got[want]; !ok {
			t.Errorf("expected %q to be applicable for a spectroscopy science target, got %v", want, got)
		}
	}
	if _, ok := got["photometric_standard"]; ok {
		t.Error("photometric_standard should not apply to a spectroscopy target")
	}
}

func TestApplicableAcqExcluded(t *testing.T) {
	target := &descriptor.Bundle{ObservationType: "OBJECT", ObservationClass: "acq", Spectroscopy: false}
	got := applicable(target)
	if len(got) != 0 {
		t.Errorf("expected no applicable calibrations for an acq frame, got %v", got)
	}
}

func TestDarkRuleMatchesExposureAndReadMode(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	target := &descriptor.Bundle{
		Instrument: "F2", ObservationType: "OBJECT", UTDatetime: now,
		ExposureTime: 60, Extra: map[string]any{"read_mode": "bright"},
	}
	a := inmem.New()
	a.Ingest(catalog.Row{
		Header:     catalog.HeaderRecord{Instrument: "F2", ObservationType: "DARK", ExposureTime: 60, UTDatetime: now, Reduction: "RAW"},
		DiskFile:   catalog.DiskFileRecord{Canonical: true, Present: true},
		Instrument: map[string]any{"read_mode": "bright"},
	})
	a.Ingest(catalog.Row{
		Header:     catalog.HeaderRecord{Instrument: "F2", ObservationType: "DARK", ExposureTime: 30, UTDatetime: now, Reduction: "RAW"},
		DiskFile:   catalog.DiskFileRecord{Canonical: true, Present: true},
		Instrument: map[string]any{"read_mode": "bright"},
	})

	rows, err := darkRule(context.Background(), a, target, false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Header.ExposureTime != 60 {
		t.Fatalf("expected only the matching-exposure dark, got %+v", rows)
	}
}

func TestArcRuleDefaultsHowmanyToOne(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	cw := 1.65
	target := &descriptor.Bundle{Instrument: "F2", ObservationType: "OBJECT", UTDatetime: now, CentralWavelength: &cw, Spectroscopy: true}
	a := inmem.New()
	for i := 0; i < 3; i++ {
		cwv := 1.65
		a.Ingest(catalog.Row{
			Header:     catalog.HeaderRecord{Instrument: "F2", ObservationType: "ARC", CentralWavelength: &cwv, UTDatetime: now, Reduction: "RAW"},
			DiskFile:   catalog.DiskFileRecord{Canonical: true, Present: true},
			Instrument: map[string]any{},
		})
	}
	rows, err := arcRule(context.Background(), a, target, false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the default howmany of 1 arc, got %d", len(rows))
	}
}

func TestRuleInvokeGatesProcessedUnsupported(t *testing.T) {
	rs := New()
	r, ok := rs.Rule("photometric_standard")
	if !ok {
		t.Fatal("expected photometric_standard rule to be registered")
	}
	rows, err := r.Invoke(context.Background(), inmem.New(), &descriptor.Bundle{}, true, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows != nil {
		t.Errorf("expected nil candidates for a processed request against a rule that does not support it, got %+v", rows)
	}
}
