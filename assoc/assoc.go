// Package assoc implements the Association Orchestrator, grounded on
// gemini_calmgr/cal/associate_calibrations.py: given one or more target
// frames, it walks the applicable calibration types in canonical order,
// invokes each instrument's rules, deduplicates by header id, recurses one
// level deep to find calibrations of calibrations, and returns a
// stable-sorted (BPM-first) priority list.
package assoc

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/GeminiDRSoftware/GeminiCalMgr/calerrors"
	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
	"github.com/GeminiDRSoftware/GeminiCalMgr/logging"
	"github.com/GeminiDRSoftware/GeminiCalMgr/metrics"
	"github.com/GeminiDRSoftware/GeminiCalMgr/rules"
	"github.com/GeminiDRSoftware/GeminiCalMgr/tracing"
)

// CalTypes is the canonical calibration-type ordering the orchestrator
// walks, the Go analogue of gemini_obs_db.utils.gemini_metadata_utils's
// cal_types — it determines result priority, not just completeness, since
// earlier types' candidates sort ahead of later ones prior to the final
// BPM-first stable sort.
var CalTypes = []string{
	"bias", "processed_bias",
	"dark", "processed_dark",
	"flat", "processed_flat",
	"arc", "processed_arc",
	"processed_fringe",
	"standard", "processed_standard",
	"slitillum", "processed_slitillum",
	"spectwilight", "specphot",
	"photometric_standard", "telluric_standard",
	"mask", "pinhole_mask", "ronchi_mask",
	"bpm", "processed_bpm",
	"lampoff_flat", "lampoff_domeflat", "domeflat",
	"polarization_standard", "polarization_flat", "astrometric_standard",
	"processed_slitflat", "processed_slit",
}

// processedAlias mirrors associate_calibrations.py's mapping dict: a
// "processed_X" calibration-type name dispatches to the X rule with
// processed=true, rather than naming a distinct rule.
var processedAlias = map[string]string{
	"processed_bias":      "bias",
	"processed_flat":      "flat",
	"processed_arc":       "arc",
	"processed_dark":      "dark",
	"processed_standard":  "standard",
	"processed_slitillum": "slitillum",
	"processed_bpm":       "bpm",
}

// Orchestrator associates calibrations against a registry of per-instrument
// rule sets and a catalog adapter.
type Orchestrator struct {
	Registry *rules.Registry
	Catalog  catalog.Adapter
	Log      logging.Logger
}

// requestIDKey carries a top-level call's request_id through ctx into its
// recursive Associate call.
type requestIDKey struct{}

// New builds an Orchestrator. A nil logger defaults to a no-op logger.
func New(registry *rules.Registry, cat catalog.Adapter, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NoOpLogger{}
	}
	return &Orchestrator{Registry: registry, Catalog: cat, Log: log}
}

// Associate finds calibrations for targets, the Go port of associate_cals.
// caltype selects one calibration type, or "all" for every applicable type.
// recurseLevel should be 0 for the initial (non-recursive) call; deeper
// recursion is internal.
func (o *Orchestrator) Associate(ctx context.Context, targets []*descriptor.Bundle, caltype string, recurseLevel int) ([]catalog.Row, error) {
	if caltype == "" {
		caltype = "all"
	}

	log := o.Log
	if recurseLevel == 0 {
		start := time.Now()
		instrumentLabel := "mixed"
		if len(targets) == 1 {
			instrumentLabel = targets[0].Instrument
		}
		spanCtx, span := tracing.StartAssociation(ctx, instrumentLabel, caltype)
		ctx = spanCtx
		defer span.End()
		defer func() { metrics.ObserveAssociation(instrumentLabel, caltype, time.Since(start)) }()

		// requestID correlates every log line this call (and its one level
		// of recursion) emits, since a single Associate invocation can fan
		// out into many per-caltype rule invocations logged independently.
		requestID := uuid.NewString()
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)
	}
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		log = o.Log.WithFields(logging.Fields{"request_id": id})
	}

	// errgroup.WithContext supplies a cancellable group context; the loop
	// below is sequential (sub-queries are not run concurrently) but checks
	// this context between invocations so a caller's cancellation is
	// honored at the next query boundary rather than only after the whole
	// target list is exhausted.
	_, gctx := errgroup.WithContext(ctx)

	var calRows []catalog.Row
	for _, target := range targets {
		if err := gctx.Err(); err != nil {
			return nil, err
		}
		ruleSet := o.Registry.For(target.Instrument)
		applicable := ruleSet.Applicable(target)

		for _, ct := range CalTypes {
			if err := gctx.Err(); err != nil {
				return nil, err
			}
			if _, ok := applicable[ct]; !ok {
				continue
			}
			if caltype != "all" && caltype != ct {
				continue
			}

			name := ct
			processed := false
			if base, ok := processedAlias[ct]; ok {
				name = base
				processed = true
			}

			rule, ok := ruleSet.Rule(name)
			if !ok {
				log.WithFields(logging.Fields{"instrument": target.Instrument, "caltype": ct}).
					Warn("no rule registered for applicable calibration type")
				continue
			}

			ruleCtx, ruleSpan := tracing.StartRule(gctx, target.Instrument, ct, processed)
			rows, err := rule.Invoke(ruleCtx, o.Catalog, target, processed, 0)
			ruleSpan.End()
			if err != nil {
				metrics.ObserveRule(target.Instrument, ct, metrics.OutcomeErrored, 0)
				if caltype == "all" {
					log.WithFields(logging.Fields{"instrument": target.Instrument, "caltype": ct, "error": err.Error()}).
						Error("calibration type association failed, continuing")
					continue
				}
				return nil, err
			}
			if len(rows) == 0 {
				metrics.ObserveRule(target.Instrument, ct, metrics.OutcomeEmpty, 0)
			} else {
				metrics.ObserveRule(target.Instrument, ct, metrics.OutcomeMatched, len(rows))
			}
			calRows = append(calRows, rows...)
		}
	}

	seen := make(map[int64]struct{}, len(calRows))
	shortlist := make([]catalog.Row, 0, len(calRows))
	for _, r := range calRows {
		if _, dup := seen[r.Header.ID]; dup {
			continue
		}
		seen[r.Header.ID] = struct{}{}
		shortlist = append(shortlist, r)
	}

	if caltype == "all" && recurseLevel < 1 && len(shortlist) > 0 {
		downTargets := make([]*descriptor.Bundle, len(shortlist))
		for i, r := range shortlist {
			downTargets[i] = r.ToBundle()
		}
		deeper, err := o.Associate(ctx, downTargets, caltype, recurseLevel+1)
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

// bpmRank ports associate_cals's sort_cal_fn: BPM rows sort to the front,
// everything else keeps its existing relative order (stable sort).
func bpmRank(r catalog.Row) int {
	if r.Header.ObservationType == "BPM" {
		return 0
	}
	return 1
}

// RuleFor exposes direct rule lookup for a single instrument/calibration
// type pair, bypassing the applicability gate — the "callers may still
// request any rule" escape hatch noted alongside the applicability policy.
func (o *Orchestrator) RuleFor(instrument, caltype string) (rules.Rule, error) {
	ruleSet := o.Registry.For(instrument)
	name := caltype
	if base, ok := processedAlias[caltype]; ok {
		name = base
	}
	rule, ok := ruleSet.Rule(name)
	if !ok {
		return rules.Rule{}, calerrors.NewUnsupportedCalibration(instrument, caltype)
	}
	return rule, nil
}
