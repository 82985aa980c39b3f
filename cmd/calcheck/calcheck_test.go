package calcheck

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeFrame(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}

func TestRunPassesWhenCandidateMatches(t *testing.T) {
	dir := t.TempDir()
	target := writeFrame(t, dir, "target.yaml", `
instrument: F2
observation_type: OBJECT
observation_class: science
spectroscopy: false
ut_datetime: 2026-01-15T00:00:00Z
exposure_time: 60
extra:
  read_mode: bright
`)
	candidate := writeFrame(t, dir, "candidate.yaml", `
instrument: F2
observation_type: DARK
reduction: RAW
ut_datetime: 2026-01-14T12:00:00Z
exposure_time: 60
extra:
  read_mode: bright
`)

	var buf bytes.Buffer
	code := run(target, "dark", candidate, &buf)
	if code != 0 {
		t.Fatalf("expected PASS (exit 0), got exit %d, output:\n%s", code, buf.String())
	}
}

func TestRunFailsAndPrintsDiagnosticWhenCandidateMismatches(t *testing.T) {
	dir := t.TempDir()
	target := writeFrame(t, dir, "target.yaml", `
instrument: F2
observation_type: OBJECT
observation_class: science
spectroscopy: false
ut_datetime: 2026-01-15T00:00:00Z
exposure_time: 60
extra:
  read_mode: bright
`)
	candidate := writeFrame(t, dir, "candidate.yaml", `
instrument: F2
observation_type: DARK
ut_datetime: 2020-01-01T00:00:00Z
exposure_time: 999
extra:
  read_mode: faint
`)

	var buf bytes.Buffer
	code := run(target, "dark", candidate, &buf)
	if code != 1 {
		t.Fatalf("expected FAIL (exit 1), got exit %d, output:\n%s", code, buf.String())
	}
	if buf.Len() == 0 {
		t.Error("expected a diagnostic table to be printed on failure")
	}
}

func TestDetectCalTypeFromObservationType(t *testing.T) {
	cases := []struct {
		obsType, reduction, want string
	}{
		{"BIAS", "", "bias"},
		{"DARK", "PROCESSED_DARK", "processed_dark"},
		{"FLAT", "", "flat"},
		{"ARC", "PROCESSED_ARC", "processed_arc"},
		{"BPM", "", "bpm"},
	}
	for _, c := range cases {
		f := &frameDoc{ObservationType: c.obsType, Reduction: c.reduction}
		if got := detectCalType(f); got != c.want {
			t.Errorf("detectCalType(%q, %q) = %q, want %q", c.obsType, c.reduction, got, c.want)
		}
	}
}
