package gmos

import (
	"context"
	"testing"
	"time"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog/inmem"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
)

func TestApplicableRequiresBiasByDefault(t *testing.T) {
	target := &descriptor.Bundle{ObservationType: "OBJECT", ObservationClass: "science"}
	got := applicable(target)
	if _, ok := got["bias"]; !ok {
		t.Errorf("expected bias to be applicable by default, got %v", got)
	}
}

func TestApplicableBiasFrameDoesNotNeedItsOwnBias(t *testing.T) {
	target := &descriptor.Bundle{ObservationType: "BIAS"}
	got := applicable(target)
	if _, ok := got["bias"]; ok {
		t.Error("a BIAS frame should not require its own bias calibration")
	}
}

func TestApplicableMaskFrameHasNoCalibrations(t *testing.T) {
	target := &descriptor.Bundle{ObservationType: "MASK"}
	got := applicable(target)
	if len(got) != 0 {
		t.Errorf("expected no applicable calibrations for a MASK frame, got %v", got)
	}
}

func TestApplicableCentralStampSkipsBias(t *testing.T) {
	target := &descriptor.Bundle{ObservationType: "OBJECT", DetectorROISetting: "Central Stamp"}
	got := applicable(target)
	if _, ok := got["bias"]; ok {
		t.Error("a Central Stamp ROI frame should skip the bias requirement")
	}
}

func TestApplicableSpectroscopyObjectAddsArcAndFlat(t *testing.T) {
	target := &descriptor.Bundle{ObservationType: "OBJECT", ObservationClass: "science", Spectroscopy: true, Object: "NGC1"}
	got := applicable(target)
	for _, want := range []string{"arc", "flat"} {
		if _, ok := got[want]; !ok {
			t.Errorf("expected %q applicable for a spectroscopy science object, got %v", want, got)
		}
	}
}

func TestApplicableSpectroscopyObjectAddsProcessedAliasesAndStandard(t *testing.T) {
	cw := 0.5
	target := &descriptor.Bundle{
		ObservationType: "OBJECT", ObservationClass: "science", Spectroscopy: true,
		Object: "NGC1", CentralWavelength: &cw,
	}
	got := applicable(target)
	for _, want := range []string{"processed_arc", "processed_flat", "processed_standard", "processed_slitillum", "slitillum"} {
		if _, ok := got[want]; !ok {
			t.Errorf("expected %q applicable for a spectroscopy science object, got %v", want, got)
		}
	}
	if _, ok := got["standard"]; ok {
		t.Error("bare standard should never be applicable; the original only ever advertises processed_standard")
	}
}

func TestApplicableBiasAddsProcessedAlias(t *testing.T) {
	target := &descriptor.Bundle{ObservationType: "OBJECT", ObservationClass: "science"}
	got := applicable(target)
	if _, ok := got["processed_bias"]; !ok {
		t.Errorf("expected processed_bias applicable alongside bias, got %v", got)
	}
}

func TestApplicableTwilightObjectExcludedFromSpectwilight(t *testing.T) {
	target := &descriptor.Bundle{ObservationType: "OBJECT", Spectroscopy: true, Object: "Twilight", ObservationClass: "science"}
	got := applicable(target)
	if _, ok := got["spectwilight"]; ok {
		t.Error("a Twilight target should not request a spectwilight")
	}
	if _, ok := got["arc"]; ok {
		t.Error("a Twilight target should not request its own arc")
	}
}

func TestDarkRuleMatchesWithinExposureTolerance(t *testing.T) {
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	target := &descriptor.Bundle{
		Instrument: "GMOS-N", ObservationType: "OBJECT", UTDatetime: now, ExposureTime: 100,
		DetectorXBin: 1, DetectorYBin: 1,
		Extra: map[string]any{"read_speed_setting": "slow", "gain_setting": "low", "nodandshuffle": false},
	}
	a := inmem.New()
	near := catalog.Row{
		Header: catalog.HeaderRecord{Instrument: "GMOS-N", ObservationType: "DARK", ExposureTime: 100, UTDatetime: now, Reduction: "RAW"},
		DiskFile: catalog.DiskFileRecord{Canonical: true, Present: true},
		Instrument: map[string]any{"detector_x_bin": 1, "detector_y_bin": 1, "read_speed_setting": "slow", "gain_setting": "low", "nodandshuffle": false, "amp_read_area": "'a'"},
	}
	far := near
	far.Header.ExposureTime = 10000
	a.Ingest(near)
	a.Ingest(far)

	rows, err := darkRule(context.Background(), a, target, false, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Header.ExposureTime != 100 {
		t.Errorf("expected only the near-exposure dark, got %+v", rows)
	}
	for _, r := range rows {
		if r.Header.ExposureTime > 1000 {
			t.Errorf("expected the far-exposure dark excluded by tolerance, got %+v", rows)
		}
	}
}
