package rules

import (
	"sort"
	"strings"
	"sync/atomic"
)

// Registry is the process-wide rule state. Readers take an immutable
// Snapshot per request; the lifecycle engine builds a new rule set and swaps
// it in atomically, so no reader ever observes a half-mutated rule.
type Registry struct {
	snap atomic.Pointer[Snapshot]
}

// NewRegistry creates a registry seeded with the given rule set.
func NewRegistry(rs RuleSet) *Registry {
	r := &Registry{}
	r.Swap(rs)
	return r
}

// Snapshot returns the current immutable view.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Swap atomically replaces the rule state with a deep copy of rs.
func (r *Registry) Swap(rs RuleSet) {
	keys := make([]string, 0, len(rs))
	for k := range rs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r.snap.Store(&Snapshot{rules: rs.Clone(), keys: keys})
}

// Snapshot is a consistent, read-only view of the rule set.
type Snapshot struct {
	rules RuleSet
	keys  []string
}

// Rule looks up a rule definition by key.
func (s *Snapshot) Rule(key string) (*Rule, bool) {
	r, ok := s.rules[key]
	return r, ok
}

// Keys returns all rule keys in sorted order.
func (s *Snapshot) Keys() []string {
	return s.keys
}

// Rules returns a deep copy of the underlying rule set, suitable as the
// starting point for a lifecycle mutation pass.
func (s *Snapshot) Rules() RuleSet {
	return s.rules.Clone()
}

// Detect maps text to the most specific matching rule key. A rule matches
// when every trigger keyword appears as a case-insensitive substring; among
// matches the largest keyword set wins, with lexicographic key order
// breaking exact ties. The empty-keyword default rule matches everything and
// is the fallback of last resort.
func (s *Snapshot) Detect(text string) string {
	lower := strings.ToLower(text)

	bestKey := DefaultKey
	bestCard := -1

	for _, key := range s.keys {
		rule := s.rules[key]
		matched := true
		for _, kw := range rule.TriggerKeywords {
			if !strings.Contains(lower, strings.ToLower(kw)) {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		if card := len(rule.TriggerKeywords); card > bestCard {
			bestKey = key
			bestCard = card
		}
	}

	return bestKey
}

// EffectiveSeverity resolves the severity for a finding: per-target override
// first, then the rule's base severity, then the validator's own fallback.
func (s *Snapshot) EffectiveSeverity(key, target string, fallback Severity) Severity {
	rule, ok := s.rules[key]
	if !ok {
		return fallback
	}
	if target != "" {
		if sev, ok := rule.TargetSeverity[target]; ok {
			return sev
		}
	}
	if rule.Severity != "" {
		return rule.Severity
	}
	return fallback
}

// Threshold returns the rule's numeric threshold, or fallback when unset.
func (s *Snapshot) Threshold(key string, fallback float64) float64 {
	if rule, ok := s.rules[key]; ok && rule.Threshold > 0 {
		return rule.Threshold
	}
	return fallback
}
