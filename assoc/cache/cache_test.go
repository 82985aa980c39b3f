package cache

import (
	"context"
	"testing"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
)

type fakeTable struct {
	entries map[int64][]Entry
}

func (f *fakeTable) Lookup(_ context.Context, targetHeaderID int64, caltype string) ([]Entry, error) {
	var out []Entry
	for _, e := range f.entries[targetHeaderID] {
		if caltype == "all" || caltype == e.CalType {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeResolver struct {
	rows map[int64]catalog.Row
}

func (f *fakeResolver) FetchByID(_ context.Context, headerID int64) (catalog.Row, error) {
	return f.rows[headerID], nil
}

func TestLookupOrdersByRank(t *testing.T) {
	table := &fakeTable{entries: map[int64][]Entry{
		10: {
			{TargetHeaderID: 10, CalHeaderID: 2, CalType: "bias", Rank: 1},
			{TargetHeaderID: 10, CalHeaderID: 1, CalType: "bias", Rank: 0},
		},
	}}
	resolver := &fakeResolver{rows: map[int64]catalog.Row{
		1: {Header: catalog.HeaderRecord{ID: 1, ObservationType: "BIAS"}},
		2: {Header: catalog.HeaderRecord{ID: 2, ObservationType: "BIAS"}},
	}}

	lookup, err := New(table, resolver, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rows, err := lookup.Associate(context.Background(), []int64{10}, "bias", 0)
	if err != nil {
		t.Fatalf("Associate: %v", err)
	}
	if len(rows) != 2 || rows[0].Header.ID != 1 || rows[1].Header.ID != 2 {
		t.Fatalf("expected rank-ordered [1,2], got %+v", rows)
	}
}

func TestLookupDedupesAcrossTargets(t *testing.T) {
	table := &fakeTable{entries: map[int64][]Entry{
		10: {{TargetHeaderID: 10, CalHeaderID: 5, CalType: "bias", Rank: 0}},
		11: {{TargetHeaderID: 11, CalHeaderID: 5, CalType: "bias", Rank: 0}},
	}}
	resolver := &fakeResolver{rows: map[int64]catalog.Row{
		5: {Header: catalog.HeaderRecord{ID: 5, ObservationType: "BIAS"}},
	}}
	lookup, err := New(table, resolver, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rows, err := lookup.Associate(context.Background(), []int64{10, 11}, "bias", 0)
	if err != nil {
		t.Fatalf("Associate: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected dedup to 1 row, got %d", len(rows))
	}
}

func TestLookupBPMSortsFirst(t *testing.T) {
	table := &fakeTable{entries: map[int64][]Entry{
		10: {
			{TargetHeaderID: 10, CalHeaderID: 1, CalType: "flat", Rank: 0},
			{TargetHeaderID: 10, CalHeaderID: 2, CalType: "bpm", Rank: 1},
		},
	}}
	resolver := &fakeResolver{rows: map[int64]catalog.Row{
		1: {Header: catalog.HeaderRecord{ID: 1, ObservationType: "FLAT"}},
		2: {Header: catalog.HeaderRecord{ID: 2, ObservationType: "BPM"}},
	}}
	lookup, err := New(table, resolver, 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rows, err := lookup.Associate(context.Background(), []int64{10}, "all", 0)
	if err != nil {
		t.Fatalf("Associate: %v", err)
	}
	if len(rows) == 0 || rows[0].Header.ObservationType != "BPM" {
		t.Fatalf("expected BPM row first, got %+v", rows)
	}
}
