// Package metrics wraps prometheus/client_golang counters and histograms
// for association-call latency and rule invocation counts, in the shape of
// storage/disk's metrics.go: package-level collectors registered once
// against a caller-supplied Registerer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	associationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calassoc_association_duration_seconds",
		Help:    "How long one Associate call took, by instrument and requested caltype.",
		Buckets: prometheus.DefBuckets,
	}, []string{"instrument", "caltype"})

	ruleInvocations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calassoc_rule_invocations_total",
		Help: "How many times a rule was invoked, by instrument, calibration type, and outcome.",
	}, []string{"instrument", "caltype", "outcome"})

	ruleCandidates = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calassoc_rule_candidates",
		Help:    "How many candidate rows a rule invocation returned.",
		Buckets: prometheus.LinearBuckets(0, 2, 10),
	}, []string{"instrument", "caltype"})
)

// Register adds every collector to reg. Safe to call once per process;
// registering the same collector twice returns an error from reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{associationDuration, ruleInvocations, ruleCandidates} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveAssociation records the wall-clock duration of one Associate call.
func ObserveAssociation(instrument, caltype string, d time.Duration) {
	associationDuration.WithLabelValues(instrument, caltype).Observe(d.Seconds())
}

// Outcome labels a single rule invocation's result for ruleInvocations.
type Outcome string

const (
	OutcomeMatched Outcome = "matched"
	OutcomeEmpty   Outcome = "empty"
	OutcomeSkipped Outcome = "skipped"
	OutcomeErrored Outcome = "errored"
)

// ObserveRule records one rule invocation's outcome and candidate count.
func ObserveRule(instrument, caltype string, outcome Outcome, candidateCount int) {
	ruleInvocations.WithLabelValues(instrument, caltype, string(outcome)).Inc()
	if outcome == OutcomeMatched || outcome == OutcomeEmpty {
		ruleCandidates.WithLabelValues(instrument, caltype).Observe(float64(candidateCount))
	}
}
