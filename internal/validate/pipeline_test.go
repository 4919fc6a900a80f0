package validate

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

const goodI2C = "Reading the humidity sensor [source: sensors.md#3]\n" +
	"```cpp\n" +
	"#include <Arduino.h>\n" +
	"#include <Wire.h>\n" +
	"void setup() {\n" +
	"  Wire.begin();\n" +
	"  Wire.requestFrom(0x40, 2);\n" +
	"  while (Wire.available()) {}\n" +
	"}\n" +
	"```\n"

func newTestPipeline(t *testing.T) (*Pipeline, *telemetry.Log) {
	t.Helper()
	log, err := telemetry.NewLog(filepath.Join(t.TempDir(), "errors.jsonl"), zap.NewNop())
	require.NoError(t, err)

	p, err := NewPipeline(rules.NewRegistry(rules.Defaults()), log, zap.NewNop())
	require.NoError(t, err)
	return p, log
}

func TestValidateCleanI2C(t *testing.T) {
	p, _ := newTestPipeline(t)

	findings, err := p.Validate(context.Background(), goodI2C, "i2c", Context{Scores: []float64{0.9}})
	require.NoError(t, err)
	assert.Empty(t, Errors(findings))
}

func TestValidateMissingInitToken(t *testing.T) {
	p, _ := newTestPipeline(t)

	text := "Reading the sensor [source: sensors.md#3]\n" +
		"```cpp\n" +
		"#include <Arduino.h>\n" +
		"#include <Wire.h>\n" +
		"void setup() {\n" +
		"  Wire.requestFrom(0x40, 2);\n" +
		"  while (Wire.available()) {}\n" +
		"}\n" +
		"```\n"

	findings, err := p.Validate(context.Background(), text, "i2c", Context{Scores: []float64{0.9}})
	require.NoError(t, err)

	errs := Errors(findings)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "Wire.begin")
	assert.Equal(t, "i2c", errs[0].Rule)
	assert.Equal(t, "Wire.begin", errs[0].Target)
}

func TestValidateCommentedOutCallDoesNotCount(t *testing.T) {
	p, _ := newTestPipeline(t)

	text := "```cpp\n" +
		"#include <Arduino.h>\n" +
		"#include <Wire.h>\n" +
		"void setup() {\n" +
		"  // Wire.begin();\n" +
		"  Wire.requestFrom(0x40, 2);\n" +
		"  while (Wire.available()) {}\n" +
		"}\n" +
		"```\n"

	findings, err := p.Validate(context.Background(), text, "i2c", Context{Scores: []float64{0.9}})
	require.NoError(t, err)

	errs := Errors(findings)
	require.Len(t, errs, 1)
	assert.Equal(t, "Wire.begin", errs[0].Target)
}

func TestValidateBaselineOnEmptyText(t *testing.T) {
	p, _ := newTestPipeline(t)

	findings, err := p.Validate(context.Background(), "", rules.DefaultKey, Context{})
	require.NoError(t, err)

	errs := Errors(findings)
	require.Len(t, errs, 2)
	assert.Equal(t, RuleCommon, errs[0].Rule)
	assert.Equal(t, "cpp_block", errs[0].Target)
	assert.Equal(t, "#include <Arduino.h>", errs[1].Target)
}

func TestValidateUnknownRule(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.Validate(context.Background(), "text", "uart", Context{})
	require.ErrorIs(t, err, rules.ErrUnknownRule)
}

func TestValidateDeterministic(t *testing.T) {
	p, _ := newTestPipeline(t)
	vctx := Context{Scores: []float64{0.1}}

	first, err := p.Validate(context.Background(), "spi question", "spi", vctx)
	require.NoError(t, err)
	second, err := p.Validate(context.Background(), "spi question", "spi", vctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidateWarningsAreNonBlocking(t *testing.T) {
	p, _ := newTestPipeline(t)

	// No citation, no retrieval scores: two warnings, zero errors.
	text := "```cpp\n#include <Arduino.h>\nvoid loop() {}\n```\n"
	findings, err := p.Validate(context.Background(), text, rules.DefaultKey, Context{})
	require.NoError(t, err)

	assert.False(t, HasErrors(findings))
	require.Len(t, findings, 2)
	assert.Equal(t, RuleCitation, findings[0].Rule)
	assert.Equal(t, RuleConfidence, findings[1].Rule)
}

func TestValidateAppendsTelemetryInOrder(t *testing.T) {
	p, log := newTestPipeline(t)

	_, err := p.Validate(context.Background(), "", "i2c", Context{})
	require.NoError(t, err)

	recs, err := log.ReadWindow(time.Now().Add(-time.Minute), time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.NotEmpty(t, recs)

	// Baseline findings first, then rule tokens, then cross-cutting checks.
	assert.Equal(t, RuleCommon, recs[0].Rule)
	last := recs[len(recs)-1]
	assert.Equal(t, RuleConfidence, last.Rule)
}

func TestValidateTargetSeverityOverride(t *testing.T) {
	rs := rules.Defaults()
	rs[RuleCitation].TargetSeverity = map[string]rules.Severity{"citation": rules.SeverityError}
	reg := rules.NewRegistry(rs)

	log, err := telemetry.NewLog(filepath.Join(t.TempDir(), "errors.jsonl"), zap.NewNop())
	require.NoError(t, err)
	p, err := NewPipeline(reg, log, zap.NewNop())
	require.NoError(t, err)

	text := "```cpp\n#include <Arduino.h>\nvoid loop() {}\n```\n"
	findings, err := p.Validate(context.Background(), text, rules.DefaultKey, Context{Scores: []float64{0.9}})
	require.NoError(t, err)

	errs := Errors(findings)
	require.Len(t, errs, 1)
	assert.Equal(t, RuleCitation, errs[0].Rule)
}
