package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFileStoreMissingFileYieldsDefaults(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "rules.yaml"), zap.NewNop())

	rs, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, Defaults(), rs)
}

func TestFileStoreMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n\t- not yaml"), 0o644))

	_, err := NewFileStore(path, zap.NewNop()).Load()
	require.ErrorIs(t, err, ErrInvalidStore)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	store := NewFileStore(path, zap.NewNop())

	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	in := RuleSet{
		"i2c": {
			TriggerKeywords: []string{"i2c"},
			Severity:        SeverityError,
		},
		"require_citation": {
			Severity:       SeverityWarning,
			TargetSeverity: map[string]Severity{"citation": SeverityError},
			AutoPromote:    &AutoPromote{Enabled: true, WindowHours: 24, Threshold: 3},
			AutoDemote:     &AutoDemote{Enabled: true, CooldownHours: 72},
			Promoted:       true,
			PromotedAt:     &at,
			PromotedReasons: map[string]PromotedReason{
				"citation": {
					Threshold:   3,
					Count:       5,
					WindowHours: 24,
					FirstSeen:   at.Add(-2 * time.Hour),
					LastSeen:    at,
				},
			},
		},
	}

	require.NoError(t, store.Save(in))

	out, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFileStoreOmitsAbsentFields(t *testing.T) {
	// Unspecified fields must be omitted, not serialized as nulls, so the
	// store does not drift across load/save cycles.
	path := filepath.Join(t.TempDir(), "rules.yaml")
	store := NewFileStore(path, zap.NewNop())

	require.NoError(t, store.Save(RuleSet{"default": {Severity: SeverityError}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	text := string(data)
	assert.NotContains(t, text, "auto_promote")
	assert.NotContains(t, text, "auto_demote")
	assert.NotContains(t, text, "promoted")
	assert.NotContains(t, text, "target_severity")
	assert.NotContains(t, text, "null")
}

func TestFileStoreSaveThenLoadStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	store := NewFileStore(path, zap.NewNop())

	require.NoError(t, store.Save(Defaults()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	rs, err := store.Load()
	require.NoError(t, err)
	require.NoError(t, store.Save(rs))

	second, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}
