// Package rules defines the RuleSet/Rule-as-data shape spec.md's Design
// Notes §9 call for: a table of name -> RuleFunc plus an applicability
// function, instead of a class hierarchy — and the Instrument Rule
// Registry that dispatches an instrument name to its RuleSet.
package rules

import (
	"context"

	"github.com/GeminiDRSoftware/GeminiCalMgr/catalog"
	"github.com/GeminiDRSoftware/GeminiCalMgr/descriptor"
)

// RuleFunc implements one calibration type's association logic: given a
// target and whether a processed (vs raw) candidate was requested, it
// returns up to howmany candidate rows in preference order.
type RuleFunc func(ctx context.Context, cat catalog.Adapter, target *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error)

// Capabilities gates whether a rule is even invoked for a given target,
// replacing the Python @not_processed/@not_imaging/@not_spectroscopy
// decorators with data the orchestrator consults before calling Fn.
type Capabilities struct {
	// RequiresSpectroscopy means the rule only applies to spectroscopy
	// targets (@not_imaging in the original).
	RequiresSpectroscopy bool
	// RequiresImaging means the rule only applies to imaging targets
	// (@not_spectroscopy in the original).
	RequiresImaging bool
	// SupportsProcessed, when false, means a processed request short
	// circuits to no candidates (@not_processed in the original). The zero
	// value is false, so a rule that accepts processed requests sets it
	// explicitly.
	SupportsProcessed bool
}

// Rule pairs a calibration type name with its function and capabilities.
type Rule struct {
	Name         string
	Capabilities Capabilities
	Fn           RuleFunc
}

// Invoke applies capability gating before calling the rule's function,
// returning (nil, nil) — "no candidates", never an error — when a
// capability excludes the target, matching RuleReturnedEmpty semantics.
func (r Rule) Invoke(ctx context.Context, cat catalog.Adapter, target *descriptor.Bundle, processed bool, howmany int) ([]catalog.Row, error) {
	if processed && !r.Capabilities.SupportsProcessed {
		return nil, nil
	}
	if r.Capabilities.RequiresSpectroscopy && !target.Spectroscopy {
		return nil, nil
	}
	if r.Capabilities.RequiresImaging && target.Spectroscopy {
		return nil, nil
	}
	return r.Fn(ctx, cat, target, processed, howmany)
}

// RuleSet is one instrument's rule table: which calibration types apply to
// a given target, and the Rule for a given name.
type RuleSet interface {
	// Applicable returns the set of calibration type names this target
	// could request calibrations for, given its own descriptors (mirrors
	// Calibration.set_applicable).
	Applicable(target *descriptor.Bundle) map[string]struct{}
	// Rule returns the named rule, or ok=false if this instrument has none
	// by that name (UnsupportedCalibration at the orchestrator layer).
	Rule(name string) (Rule, bool)
}

// staticRuleSet is the common RuleSet implementation every instrument
// package builds: a fixed table of rules plus an applicability function.
type staticRuleSet struct {
	rules       map[string]Rule
	applicable  func(target *descriptor.Bundle) map[string]struct{}
}

// NewRuleSet builds a RuleSet from a rule table and an applicability
// function, the constructor every rules/<instrument> package uses.
func NewRuleSet(table map[string]Rule, applicable func(*descriptor.Bundle) map[string]struct{}) RuleSet {
	return &staticRuleSet{rules: table, applicable: applicable}
}

func (s *staticRuleSet) Applicable(target *descriptor.Bundle) map[string]struct{} {
	return s.applicable(target)
}

func (s *staticRuleSet) Rule(name string) (Rule, bool) {
	r, ok := s.rules[name]
	return r, ok
}

// emptyRuleSet is returned for an instrument with no registered RuleSet.
type emptyRuleSet struct{}

func (emptyRuleSet) Applicable(*descriptor.Bundle) map[string]struct{} { return nil }
func (emptyRuleSet) Rule(string) (Rule, bool)                         { return Rule{}, false }

// Registry maps instrument names to their RuleSet.
type Registry struct {
	sets map[string]RuleSet
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{sets: map[string]RuleSet{}}
}

// Register associates every name in names (e.g. both "GMOS-N" and "GMOS-S")
// with rs.
func (r *Registry) Register(names []string, rs RuleSet) {
	for _, n := range names {
		r.sets[n] = rs
	}
}

// For returns the RuleSet for instrument, or an empty RuleSet (every
// calibration type unsupported) when the instrument is unknown.
func (r *Registry) For(instrument string) RuleSet {
	if rs, ok := r.sets[instrument]; ok {
		return rs
	}
	return emptyRuleSet{}
}
