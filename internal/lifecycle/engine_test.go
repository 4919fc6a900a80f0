package lifecycle

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkd/internal/rules"
	"github.com/fyrsmithlabs/checkd/internal/telemetry"
)

// countingStore records how many times the rule set was persisted.
type countingStore struct {
	saved   rules.RuleSet
	saves   int
	saveErr error
}

func (s *countingStore) Load() (rules.RuleSet, error) { return s.saved, nil }

func (s *countingStore) Save(rs rules.RuleSet) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = rs
	s.saves++
	return nil
}

type fixture struct {
	engine   *Engine
	store    *countingStore
	registry *rules.Registry
	log      *telemetry.Log
	now      time.Time
}

func newFixture(t *testing.T, rs rules.RuleSet) *fixture {
	t.Helper()

	log, err := telemetry.NewLog(filepath.Join(t.TempDir(), "errors.jsonl"), zap.NewNop())
	require.NoError(t, err)

	store := &countingStore{}
	registry := rules.NewRegistry(rs)

	engine, err := NewEngine(store, registry, log, zap.NewNop())
	require.NoError(t, err)

	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }

	return &fixture{engine: engine, store: store, registry: registry, log: log, now: now}
}

func promotableRules() rules.RuleSet {
	return rules.RuleSet{
		"require_citation": {
			Severity:    rules.SeverityWarning,
			AutoPromote: &rules.AutoPromote{Enabled: true, WindowHours: 24, Threshold: 3},
			AutoDemote:  &rules.AutoDemote{Enabled: true, CooldownHours: 72},
		},
	}
}

func (f *fixture) appendWarnings(t *testing.T, rule, target string, times ...time.Time) {
	t.Helper()
	for _, ts := range times {
		require.NoError(t, f.log.Append(telemetry.Record{
			TS:       ts,
			Rule:     rule,
			Severity: "warning",
			Message:  "recurring violation",
			Target:   target,
		}))
	}
}

func TestPromotionAtThreshold(t *testing.T) {
	f := newFixture(t, promotableRules())
	f.appendWarnings(t, "require_citation", "citation",
		f.now.Add(-20*time.Hour), f.now.Add(-10*time.Hour), f.now.Add(-1*time.Hour))

	n, err := f.engine.RunPromotion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.store.saves)

	rule, ok := f.registry.Snapshot().Rule("require_citation")
	require.True(t, ok)
	assert.True(t, rule.Promoted)
	assert.Equal(t, rules.SeverityError, rule.Severity)
	assert.Equal(t, rules.SeverityError, rule.TargetSeverity["citation"])
	require.NotNil(t, rule.PromotedAt)
	assert.Equal(t, f.now.Add(-1*time.Hour), *rule.PromotedAt)

	reason, ok := rule.PromotedReasons["citation"]
	require.True(t, ok)
	assert.Equal(t, 3, reason.Count)
	assert.Equal(t, 3, reason.Threshold)
	assert.Equal(t, 24, reason.WindowHours)
	assert.Equal(t, f.now.Add(-20*time.Hour), reason.FirstSeen)
	assert.Equal(t, f.now.Add(-1*time.Hour), reason.LastSeen)
}

func TestPromotionBelowThresholdNoWrite(t *testing.T) {
	f := newFixture(t, promotableRules())
	f.appendWarnings(t, "require_citation", "citation",
		f.now.Add(-10*time.Hour), f.now.Add(-1*time.Hour))

	n, err := f.engine.RunPromotion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.store.saves, "store must be untouched when nothing changed")
}

func TestPromotionIgnoresRecordsOutsideWindow(t *testing.T) {
	f := newFixture(t, promotableRules())
	f.appendWarnings(t, "require_citation", "citation",
		f.now.Add(-30*time.Hour), f.now.Add(-28*time.Hour), f.now.Add(-1*time.Hour))

	n, err := f.engine.RunPromotion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPromotionIgnoresErrorRecords(t *testing.T) {
	f := newFixture(t, promotableRules())
	for i := 0; i < 5; i++ {
		require.NoError(t, f.log.Append(telemetry.Record{
			TS:       f.now.Add(-time.Duration(i+1) * time.Hour),
			Rule:     "require_citation",
			Severity: "error",
			Message:  "m",
			Target:   "citation",
		}))
	}

	n, err := f.engine.RunPromotion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPromotionIsSticky(t *testing.T) {
	rs := promotableRules()
	rs["require_citation"].Promoted = true
	rs["require_citation"].PromotedReasons = map[string]rules.PromotedReason{
		"citation": {Threshold: 3, Count: 4, WindowHours: 24},
	}
	f := newFixture(t, rs)
	f.appendWarnings(t, "require_citation", "citation",
		f.now.Add(-3*time.Hour), f.now.Add(-2*time.Hour), f.now.Add(-1*time.Hour))

	n, err := f.engine.RunPromotion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.store.saves)

	// Audit trail of the earlier promotion is untouched.
	rule, _ := f.registry.Snapshot().Rule("require_citation")
	assert.Equal(t, 4, rule.PromotedReasons["citation"].Count)
}

func TestDemotionAfterQuietCooldown(t *testing.T) {
	rs := promotableRules()
	rs["require_citation"].Severity = rules.SeverityError
	rs["require_citation"].Promoted = true
	rs["require_citation"].TargetSeverity = map[string]rules.Severity{"citation": rules.SeverityError}
	f := newFixture(t, rs)

	// Last occurrence well outside the 72h cooldown.
	f.appendWarnings(t, "require_citation", "citation", f.now.Add(-100*time.Hour))

	n, err := f.engine.RunDemotion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, f.store.saves)

	rule, _ := f.registry.Snapshot().Rule("require_citation")
	assert.Equal(t, rules.SeverityWarning, rule.TargetSeverity["citation"])
	assert.True(t, rule.Promoted, "sticky flag survives demotion")
}

func TestDemotionRespectsCooldown(t *testing.T) {
	rs := promotableRules()
	rs["require_citation"].TargetSeverity = map[string]rules.Severity{"citation": rules.SeverityError}
	f := newFixture(t, rs)

	// Recent occurrence inside the cooldown window.
	f.appendWarnings(t, "require_citation", "citation", f.now.Add(-10*time.Hour))

	n, err := f.engine.RunDemotion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, f.store.saves)

	rule, _ := f.registry.Snapshot().Rule("require_citation")
	assert.Equal(t, rules.SeverityError, rule.TargetSeverity["citation"])
}

func TestDemotionWithNoTelemetryAtAll(t *testing.T) {
	rs := promotableRules()
	rs["require_citation"].TargetSeverity = map[string]rules.Severity{"citation": rules.SeverityError}
	f := newFixture(t, rs)

	n, err := f.engine.RunDemotion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDemotionIdempotent(t *testing.T) {
	rs := promotableRules()
	rs["require_citation"].TargetSeverity = map[string]rules.Severity{"citation": rules.SeverityError}
	f := newFixture(t, rs)

	n, err := f.engine.RunDemotion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.engine.RunDemotion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, f.store.saves)
}

func TestPersistFailureSurfaces(t *testing.T) {
	f := newFixture(t, promotableRules())
	f.store.saveErr = assert.AnError
	f.appendWarnings(t, "require_citation", "citation",
		f.now.Add(-3*time.Hour), f.now.Add(-2*time.Hour), f.now.Add(-1*time.Hour))

	_, err := f.engine.RunPromotion(context.Background())
	require.Error(t, err)

	// The in-memory mutation is still visible to readers.
	rule, _ := f.registry.Snapshot().Rule("require_citation")
	assert.True(t, rule.Promoted)
}

func TestRunCombinesPasses(t *testing.T) {
	rs := promotableRules()
	rs["stale_rule"] = &rules.Rule{
		Severity:       rules.SeverityError,
		AutoDemote:     &rules.AutoDemote{Enabled: true, CooldownHours: 1},
		TargetSeverity: map[string]rules.Severity{"old_target": rules.SeverityError},
	}
	f := newFixture(t, rs)
	f.appendWarnings(t, "require_citation", "citation",
		f.now.Add(-3*time.Hour), f.now.Add(-2*time.Hour), f.now.Add(-1*time.Hour))

	n, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rule, _ := f.registry.Snapshot().Rule("stale_rule")
	assert.Equal(t, rules.SeverityWarning, rule.TargetSeverity["old_target"])
}

func TestPromotedTargetStaysStrictInsideCooldownAfterPromotion(t *testing.T) {
	// Promotion then an immediate demotion pass: the fresh warnings are
	// inside the cooldown, so the target stays at error.
	f := newFixture(t, promotableRules())
	f.appendWarnings(t, "require_citation", "citation",
		f.now.Add(-3*time.Hour), f.now.Add(-2*time.Hour), f.now.Add(-1*time.Hour))

	n, err := f.engine.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rule, _ := f.registry.Snapshot().Rule("require_citation")
	assert.Equal(t, rules.SeverityError, rule.TargetSeverity["citation"])
}
