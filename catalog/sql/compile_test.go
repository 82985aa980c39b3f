package sql

import (
	"strings"
	"testing"

	"github.com/huandu/go-sqlbuilder"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
)

func TestInstrumentTable(t *testing.T) {
	cases := map[string]string{
		"GMOS-N": "gmos",
		"GMOS-S": "gmos",
		"F2":     "f2",
		"NIRI":   "niri",
	}
	for in, want := range cases {
		if got := instrumentTable(in); got != want {
			t.Errorf("instrumentTable(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQualifyRoutesToCorrectTable(t *testing.T) {
	cases := map[string]string{
		"observation_type": "header.observation_type",
		"present":          "diskfile.present",
		"disperser":        "instrument_tbl.disperser",
	}
	for field, want := range cases {
		if got := qualify(field); got != want {
			t.Errorf("qualify(%q) = %q, want %q", field, got, want)
		}
	}
}

func TestCompileOneEquality(t *testing.T) {
	sb := sqlbuilder.NewSelectBuilder()
	c, err := compileOne(sb, catalog.Predicate{Kind: catalog.PredEq, Field: "observation_type", Value: "DARK"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(c, "header.observation_type") {
		t.Errorf("expected the clause to reference header.observation_type, got %q", c)
	}
}

func TestCompileOneAbsDiffLTCentersOnTarget(t *testing.T) {
	sb := sqlbuilder.NewSelectBuilder()
	c, err := compileOne(sb, catalog.Predicate{Kind: catalog.PredAbsDiffLT, Field: "ut_datetime_secs", Lo: 3600.0}, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == "" {
		t.Error("expected a non-empty time-window clause")
	}
}

func TestCompileOneOrNestsAndClauses(t *testing.T) {
	sb := sqlbuilder.NewSelectBuilder()
	p := catalog.Predicate{Kind: catalog.PredOr, Or: []catalog.Predicate{
		{Kind: catalog.PredAnd, And: []catalog.Predicate{
			{Kind: catalog.PredEq, Field: "arm", Value: "blue"},
			{Kind: catalog.PredEq, Field: "exposure_time_blue", Value: 30.0},
		}},
		{Kind: catalog.PredAnd, And: []catalog.Predicate{
			{Kind: catalog.PredEq, Field: "arm", Value: "red"},
			{Kind: catalog.PredEq, Field: "exposure_time_red", Value: 45.0},
		}},
	}}
	c, err := compileOne(sb, p, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == "" {
		t.Error("expected a non-empty OR clause")
	}
}

func TestCompileWherePropagatesUnsupportedKindError(t *testing.T) {
	sb := sqlbuilder.NewSelectBuilder()
	_, err := compileWhere(sb, []catalog.Predicate{{Kind: catalog.PredKind(999), Field: "x"}}, 0)
	if err == nil {
		t.Fatal("expected an error for an unsupported predicate kind")
	}
}
