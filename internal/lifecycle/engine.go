// Package lifecycle adapts rule severities over time: repeated warnings
// promote a rule to error, a sustained quiet period demotes it back. Both
// passes are idempotent and run out-of-band from request-time validation.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkd/internal/rules"
	"github.com/fyrsmithlabs/checkd/internal/telemetry"
)

// Engine scans the telemetry log and mutates the rule set.
type Engine struct {
	store    rules.Store
	registry *rules.Registry
	log      *telemetry.Log
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates a lifecycle engine.
func NewEngine(store rules.Store, registry *rules.Registry, log *telemetry.Log, logger *zap.Logger) (*Engine, error) {
	if store == nil {
		return nil, errors.New("rule store is required")
	}
	if registry == nil {
		return nil, errors.New("rule registry is required")
	}
	if log == nil {
		return nil, errors.New("telemetry log is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		registry: registry,
		log:      log,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Run executes the promotion pass followed by the demotion pass and returns
// the total number of mutations.
func (e *Engine) Run(ctx context.Context) (int, error) {
	promoted, err := e.RunPromotion(ctx)
	if err != nil {
		return promoted, err
	}
	demoted, err := e.RunDemotion(ctx)
	return promoted + demoted, err
}

// targetStats aggregates warning occurrences for one (rule, target).
type targetStats struct {
	count     int
	firstSeen time.Time
	lastSeen  time.Time
}

// RunPromotion escalates rules whose warning count for a target reached the
// configured threshold inside the rule's window. Promotion is monotonic and
// sticky: an already promoted rule is never re-evaluated.
func (e *Engine) RunPromotion(ctx context.Context) (int, error) {
	rs := e.registry.Snapshot().Rules()
	now := e.now()

	maxWindow := 0
	for _, rule := range rs {
		if rule.AutoPromote != nil && rule.AutoPromote.Enabled && rule.AutoPromote.WindowHours > maxWindow {
			maxWindow = rule.AutoPromote.WindowHours
		}
	}
	if maxWindow == 0 {
		return 0, nil
	}

	recs, err := e.log.ReadWindow(now.Add(-time.Duration(maxWindow)*time.Hour), now)
	if err != nil {
		return 0, fmt.Errorf("failed to scan telemetry window: %w", err)
	}

	// (rule, target) -> aggregated warning stats inside the rule's own window.
	stats := make(map[string]map[string]*targetStats)
	for _, rec := range recs {
		if rec.Severity != string(rules.SeverityWarning) {
			continue
		}
		rule, ok := rs[rec.Rule]
		if !ok || rule.AutoPromote == nil || !rule.AutoPromote.Enabled {
			continue
		}
		if rec.TS.Before(now.Add(-time.Duration(rule.AutoPromote.WindowHours) * time.Hour)) {
			continue
		}

		byTarget, ok := stats[rec.Rule]
		if !ok {
			byTarget = make(map[string]*targetStats)
			stats[rec.Rule] = byTarget
		}
		s, ok := byTarget[rec.Target]
		if !ok {
			s = &targetStats{firstSeen: rec.TS, lastSeen: rec.TS}
			byTarget[rec.Target] = s
		}
		s.count++
		if rec.TS.Before(s.firstSeen) {
			s.firstSeen = rec.TS
		}
		if rec.TS.After(s.lastSeen) {
			s.lastSeen = rec.TS
		}
	}

	promoted := 0
	for _, key := range sortedKeys(stats) {
		rule := rs[key]
		if rule.Promoted {
			continue
		}
		threshold := rule.AutoPromote.Threshold
		if threshold <= 0 {
			continue
		}

		for _, target := range sortedKeys(stats[key]) {
			s := stats[key][target]
			if s.count < threshold {
				continue
			}

			rule.Severity = rules.SeverityError
			if rule.TargetSeverity == nil {
				rule.TargetSeverity = make(map[string]rules.Severity)
			}
			rule.TargetSeverity[target] = rules.SeverityError
			rule.Promoted = true
			at := s.lastSeen
			rule.PromotedAt = &at
			if rule.PromotedReasons == nil {
				rule.PromotedReasons = make(map[string]rules.PromotedReason)
			}
			rule.PromotedReasons[target] = rules.PromotedReason{
				Threshold:   threshold,
				Count:       s.count,
				WindowHours: rule.AutoPromote.WindowHours,
				FirstSeen:   s.firstSeen,
				LastSeen:    s.lastSeen,
			}
			promoted++

			e.logger.Info("promoted rule",
				zap.String("rule", key),
				zap.String("target", target),
				zap.Int("count", s.count),
				zap.Int("threshold", threshold))

			// Promotion is per rule: the first qualifying target wins and
			// the rule leaves the candidate pool.
			break
		}
	}

	if promoted == 0 {
		return 0, nil
	}
	return promoted, e.persist(rs)
}

// RunDemotion relaxes error targets that stayed quiet for the rule's full
// cooldown. Targets with a recent occurrence are left untouched; the sticky
// promoted flag is not cleared, so re-promotion churn stays impossible.
func (e *Engine) RunDemotion(ctx context.Context) (int, error) {
	rs := e.registry.Snapshot().Rules()
	now := e.now()

	recs, err := e.log.ReadWindow(time.Time{}, now)
	if err != nil {
		return 0, fmt.Errorf("failed to scan telemetry log: %w", err)
	}

	// (rule, target) -> most recent occurrence, any severity.
	lastSeen := make(map[string]map[string]time.Time)
	for _, rec := range recs {
		if rec.Target == "" {
			continue
		}
		byTarget, ok := lastSeen[rec.Rule]
		if !ok {
			byTarget = make(map[string]time.Time)
			lastSeen[rec.Rule] = byTarget
		}
		if rec.TS.After(byTarget[rec.Target]) {
			byTarget[rec.Target] = rec.TS
		}
	}

	demoted := 0
	for _, key := range sortedKeys(rs) {
		rule := rs[key]
		if rule.AutoDemote == nil || !rule.AutoDemote.Enabled || rule.AutoDemote.CooldownHours <= 0 {
			continue
		}
		cutoff := now.Add(-time.Duration(rule.AutoDemote.CooldownHours) * time.Hour)

		for _, target := range sortedKeys(rule.TargetSeverity) {
			if rule.TargetSeverity[target] != rules.SeverityError {
				continue
			}
			if last, ok := lastSeen[key][target]; ok && !last.Before(cutoff) {
				continue // still actively violated, stays strict
			}

			rule.TargetSeverity[target] = rules.SeverityWarning
			demoted++

			e.logger.Info("demoted rule target",
				zap.String("rule", key),
				zap.String("target", target),
				zap.Int("cooldown_hours", rule.AutoDemote.CooldownHours))
		}
	}

	if demoted == 0 {
		return 0, nil
	}
	return demoted, e.persist(rs)
}

// persist applies the mutated rule set to readers first, then writes it
// back. A store failure is surfaced so promotions/demotions are not lost
// silently; the in-memory swap has already taken effect.
func (e *Engine) persist(rs rules.RuleSet) error {
	e.registry.Swap(rs)
	if err := e.store.Save(rs); err != nil {
		return fmt.Errorf("failed to persist rule mutations: %w", err)
	}
	return nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
