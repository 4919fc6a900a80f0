// Package rules holds the declarative rule table: keyword triggers,
// severities, per-target overrides, and the auto-promote/demote policies
// mutated by the lifecycle engine.
package rules

import (
	"errors"
	"time"
)

var (
	// ErrUnknownRule indicates an explicitly requested rule key that is not
	// registered. This is operator error, not content error.
	ErrUnknownRule = errors.New("unknown rule")

	// ErrInvalidStore indicates a malformed rule store.
	ErrInvalidStore = errors.New("invalid rule store")
)

// Severity classifies a finding. Errors gate accept/reject decisions,
// warnings are telemetry-only.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// DefaultKey is the catch-all rule selected when no keyword set matches.
const DefaultKey = "default"

// AutoPromote configures warning→error escalation on repeated recurrence.
type AutoPromote struct {
	Enabled     bool `yaml:"enabled"`
	WindowHours int  `yaml:"window_hours,omitempty"`
	Threshold   int  `yaml:"threshold,omitempty"`
}

// AutoDemote configures error→warning relaxation after a quiet cooldown.
type AutoDemote struct {
	Enabled       bool `yaml:"enabled"`
	CooldownHours int  `yaml:"cooldown_hours,omitempty"`
}

// PromotedReason is the audit record for one promoted target.
type PromotedReason struct {
	Threshold   int       `yaml:"threshold"`
	Count       int       `yaml:"count"`
	WindowHours int       `yaml:"window_hours"`
	FirstSeen   time.Time `yaml:"first_seen"`
	LastSeen    time.Time `yaml:"last_seen"`
}

// Rule is one named policy unit. Absent optional fields stay absent on
// round-trip: every optional field is omitempty so the store file does not
// drift across runs.
type Rule struct {
	TriggerKeywords []string                  `yaml:"trigger_keywords,omitempty"`
	Severity        Severity                  `yaml:"severity,omitempty"`
	Threshold       float64                   `yaml:"threshold,omitempty"`
	TargetSeverity  map[string]Severity       `yaml:"target_severity,omitempty"`
	AutoPromote     *AutoPromote              `yaml:"auto_promote,omitempty"`
	AutoDemote      *AutoDemote               `yaml:"auto_demote,omitempty"`
	Promoted        bool                      `yaml:"promoted,omitempty"`
	PromotedAt      *time.Time                `yaml:"promoted_at,omitempty"`
	PromotedReasons map[string]PromotedReason `yaml:"promoted_reason,omitempty"`
}

// Clone returns a deep copy of the rule.
func (r *Rule) Clone() *Rule {
	cp := *r
	if r.TriggerKeywords != nil {
		cp.TriggerKeywords = append([]string(nil), r.TriggerKeywords...)
	}
	if r.TargetSeverity != nil {
		cp.TargetSeverity = make(map[string]Severity, len(r.TargetSeverity))
		for k, v := range r.TargetSeverity {
			cp.TargetSeverity[k] = v
		}
	}
	if r.AutoPromote != nil {
		ap := *r.AutoPromote
		cp.AutoPromote = &ap
	}
	if r.AutoDemote != nil {
		ad := *r.AutoDemote
		cp.AutoDemote = &ad
	}
	if r.PromotedAt != nil {
		at := *r.PromotedAt
		cp.PromotedAt = &at
	}
	if r.PromotedReasons != nil {
		cp.PromotedReasons = make(map[string]PromotedReason, len(r.PromotedReasons))
		for k, v := range r.PromotedReasons {
			cp.PromotedReasons[k] = v
		}
	}
	return &cp
}

// RuleSet maps rule key to its definition.
type RuleSet map[string]*Rule

// Clone returns a deep copy of the rule set.
func (rs RuleSet) Clone() RuleSet {
	cp := make(RuleSet, len(rs))
	for k, r := range rs {
		cp[k] = r.Clone()
	}
	return cp
}

// Defaults returns the built-in rule table used when no store file exists.
func Defaults() RuleSet {
	return RuleSet{
		DefaultKey: {
			Severity: SeverityError,
		},
		"i2c": {
			TriggerKeywords: []string{"i2c"},
			Severity:        SeverityError,
		},
		"spi": {
			TriggerKeywords: []string{"spi"},
			Severity:        SeverityError,
		},
		"i2c_spi": {
			TriggerKeywords: []string{"i2c", "spi"},
			Severity:        SeverityError,
		},
		"require_citation": {
			Severity: SeverityWarning,
			AutoPromote: &AutoPromote{
				Enabled:     true,
				WindowHours: 24,
				Threshold:   3,
			},
			AutoDemote: &AutoDemote{
				Enabled:       true,
				CooldownHours: 72,
			},
		},
		"rag_confidence": {
			Severity:  SeverityWarning,
			Threshold: 0.25,
		},
	}
}
