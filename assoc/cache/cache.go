// Package cache implements the cache-backed association lookup path:
// reading a precomputed (target_hid, cal_hid, caltype, rank) table instead
// of re-invoking rules, with the same dedup + recurse + sort contract as
// the live orchestrator but a deeper recursion bound (recurse_level < 4).
package cache

import (
	"context"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
)

// Entry is one row of the externally maintained association table.
type Entry struct {
	TargetHeaderID int64
	CalHeaderID    int64
	CalType        string
	Rank           int
}

// Table is the read side of the precomputed association table.
type Table interface {
	// Lookup returns every Entry for targetHeaderID, optionally restricted
	// to a single caltype ("all" for every caltype).
	Lookup(ctx context.Context, targetHeaderID int64, caltype string) ([]Entry, error)
}

// Resolver turns cache entries into full catalog rows and lets the
// recursive step treat a hit row as a new lookup target.
type Resolver interface {
	FetchByID(ctx context.Context, headerID int64) (catalog.Row, error)
}

const maxRecurseLevel = 4

// Lookup is the cache-backed association lookup: same dedup-by-header-id,
// recurse, and final BPM-first stable sort contract as assoc.Orchestrator,
// bounded at recurse_level < 4 rather than the live path's < 1, since
// cache reads are cheap enough to afford deeper chases.
type Lookup struct {
	table    Table
	resolver Resolver
	// cache memoizes (targetHeaderID, caltype) -> resolved rows, so repeat
	// calcheck runs against the same target don't re-hit the table.
	cache *lru.Cache[cacheKey, []catalog.Row]
}

type cacheKey struct {
	targetHeaderID int64
	caltype        string
}

// New builds a Lookup with an LRU of the given size in front of table.
func New(table Table, resolver Resolver, size int) (*Lookup, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[cacheKey, []catalog.Row](size)
	if err != nil {
		return nil, err
	}
	return &Lookup{table: table, resolver: resolver, cache: c}, nil
}

// Associate mirrors associate_cals_from_cache: looks up cache rows for
// each target header id, dedupes by header id, recurses into hit rows up
// to maxRecurseLevel, and (at the top level) stable-sorts BPM rows first.
func (l *Lookup) Associate(ctx context.Context, targetHeaderIDs []int64, caltype string, recurseLevel int) ([]catalog.Row, error) {
	if caltype == "" {
		caltype = "all"
	}

	var rows []catalog.Row
	for _, hid := range targetHeaderIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := cacheKey{targetHeaderID: hid, caltype: caltype}
		if cached, ok := l.cache.Get(key); ok {
			rows = append(rows, cached...)
			continue
		}

		entries, err := l.table.Lookup(ctx, hid, caltype)
		if err != nil {
			return nil, err
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Rank < entries[j].Rank })

		resolved := make([]catalog.Row, 0, len(entries))
		for _, e := range entries {
			row, err := l.resolver.FetchByID(ctx, e.CalHeaderID)
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, row)
		}
		l.cache.Add(key, resolved)
		rows = append(rows, resolved...)
	}

	seen := make(map[int64]struct{}, len(rows))
	shortlist := make([]catalog.Row, 0, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.Header.ID]; dup {
			continue
		}
		seen[r.Header.ID] = struct{}{}
		shortlist = append(shortlist, r)
	}

	if caltype == "all" && recurseLevel < maxRecurseLevel && len(shortlist) > 0 {
		downIDs := make([]int64, len(shortlist))
		for i, r := range shortlist {
			downIDs[i] = r.Header.ID
		}
		deeper, err := l.Associate(ctx, downIDs, caltype, recurseLevel+1)
		if err != nil {
			return nil, err
		}
		for _, cal := range deeper {
			if _, dup := seen[cal.Header.ID]; dup {
				continue
			}
			seen[cal.Header.ID] = struct{}{}
			shortlist = append(shortlist, cal)
		}
	}

	if recurseLevel == 0 {
		sort.SliceStable(shortlist, func(i, j int) bool {
			return bpmRank(shortlist[i]) < bpmRank(shortlist[j])
		})
	}

	return shortlist, nil
}

func bpmRank(r catalog.Row) int {
	if r.Header.ObservationType == "BPM" {
		return 0
	}
	return 1
}
