package checkpoint

import (
	"slices"
	"sort"
	"sync"

	"github.com/radiant-ai/radiant/internal/model"
)

// Thresholds used by the built-in predicates.
const (
	HighCostCents       = 100
	LowCostCents        = 10
	LowConfidenceBelow  = 0.5
	HighConfidenceAbove = 0.9
)

// Params carries per-evaluation values predicates compare against.
type Params struct {
	// RiskThreshold is the tenant's auto-approve threshold.
	RiskThreshold float64
}

// Predicate reports whether an envelope satisfies a named condition.
type Predicate func(env model.Envelope, p Params) bool

// Registry maps predicate names to implementations. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	preds map[string]Predicate
}

// NewRegistry returns a registry holding the built-in trigger and
// auto-approve predicates.
func NewRegistry() *Registry {
	r := &Registry{preds: make(map[string]Predicate)}
	for name, p := range builtins() {
		r.preds[name] = p
	}
	return r
}

// Register adds or replaces a predicate.
func (r *Registry) Register(name string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preds[name] = p
}

// Lookup returns the predicate registered under name.
func (r *Registry) Lookup(name string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.preds[name]
	return p, ok
}

// Names lists registered predicates in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.preds))
	for n := range r.preds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func builtins() map[string]Predicate {
	return map[string]Predicate{
		"always":                     func(model.Envelope, Params) bool { return true },
		"ambiguous_intent":           signalOrReason("ambiguous_intent"),
		"missing_context":            signalOrReason("missing_context"),
		"irreversible_actions":       signalOrReason("irreversible_action", "irreversible_actions"),
		"objections_raised":          signalOrReason("objection", "objections_raised"),
		"consensus_not_reached":      signalOrReason("consensus_not_reached"),
		"destructive_action":         destructive,
		"high_cost":                  func(e model.Envelope, _ Params) bool { return e.CostCents > HighCostCents },
		"risk_above_threshold":       severityAtLeast(model.RiskHigh),
		"critical_risk":              severityAtLeast(model.RiskCritical),
		"low_confidence":             func(e model.Envelope, _ Params) bool { return e.Confidence < LowConfidenceBelow },
		"risk_score_above_threshold": func(e model.Envelope, p Params) bool { return e.RiskScore > p.RiskThreshold },

		"low_risk":        func(e model.Envelope, _ Params) bool { return !severityAtLeast(model.RiskMedium)(e, Params{}) },
		"high_confidence": func(e model.Envelope, _ Params) bool { return e.Confidence >= HighConfidenceAbove },
		"low_cost":        func(e model.Envelope, _ Params) bool { return e.CostCents <= LowCostCents },
		"no_risk_signals": func(e model.Envelope, _ Params) bool { return len(e.RiskSignals) == 0 },
	}
}

// signalOrReason matches an envelope carrying a risk signal of one of the
// given types, or naming one of them as its trigger reason.
func signalOrReason(names ...string) Predicate {
	return func(e model.Envelope, _ Params) bool {
		if slices.Contains(names, e.TriggerReason) {
			return true
		}
		for _, s := range e.RiskSignals {
			if slices.Contains(names, s.Type) {
				return true
			}
		}
		return false
	}
}

var severityRank = map[model.RiskSeverity]int{
	model.RiskLow:      1,
	model.RiskMedium:   2,
	model.RiskHigh:     3,
	model.RiskCritical: 4,
}

func severityAtLeast(min model.RiskSeverity) Predicate {
	return func(e model.Envelope, _ Params) bool {
		for _, s := range e.RiskSignals {
			if severityRank[s.Severity] >= severityRank[min] {
				return true
			}
		}
		return false
	}
}

var destructiveActions = []string{"delete", "drop", "destroy", "purge", "truncate", "overwrite"}

func destructive(e model.Envelope, p Params) bool {
	return slices.Contains(destructiveActions, e.ActionType) || signalOrReason("destructive_action")(e, p)
}
