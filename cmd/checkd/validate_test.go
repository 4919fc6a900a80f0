package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkd/internal/rules"
	"github.com/fyrsmithlabs/checkd/internal/telemetry"
	"github.com/fyrsmithlabs/checkd/internal/validate"
)

const goodI2CAnswer = "[source: sensors.md#1]\n" +
	"```cpp\n" +
	"#include <Arduino.h>\n" +
	"#include <Wire.h>\n" +
	"void setup() {\n" +
	"  Wire.begin();\n" +
	"  Wire.requestFrom(0x40, 2);\n" +
	"  while (Wire.available()) {}\n" +
	"}\n" +
	"```\n"

func newTestPipeline(t *testing.T) (*validate.Pipeline, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "errors.jsonl")
	log, err := telemetry.NewLog(logPath, zap.NewNop())
	require.NoError(t, err)
	p, err := validate.NewPipeline(rules.NewRegistry(rules.Defaults()), log, zap.NewNop())
	require.NoError(t, err)
	return p, logPath
}

func TestValidateTextCleanInput(t *testing.T) {
	p, _ := newTestPipeline(t)
	var stdout, stderr bytes.Buffer

	code, err := validateText(context.Background(), p, goodI2CAnswer,
		validateOptions{Rule: "i2c"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, exitClean, code)
	assert.Contains(t, stdout.String(), "ok [i2c]")
}

func TestValidateTextViolationsExitOne(t *testing.T) {
	p, _ := newTestPipeline(t)
	var stdout, stderr bytes.Buffer

	code, err := validateText(context.Background(), p, "plain prose, no code at all",
		validateOptions{Rule: "i2c"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, exitViolations, code)
	assert.Contains(t, stdout.String(), "error [common]")
	assert.Contains(t, stdout.String(), "Wire.begin")
}

func TestValidateTextUnknownRuleExitTwo(t *testing.T) {
	p, logPath := newTestPipeline(t)
	var stdout, stderr bytes.Buffer

	code, err := validateText(context.Background(), p, "some text",
		validateOptions{Rule: "uart"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), `unknown rule "uart"`)
	assert.Empty(t, stdout.String())

	// A rejected invocation must not leave telemetry behind.
	_, statErr := os.Stat(logPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestValidateTextAutoDetect(t *testing.T) {
	p, _ := newTestPipeline(t)
	var stdout, stderr bytes.Buffer

	code, err := validateText(context.Background(), p,
		"Connect SDA and SCL, then use Wire to read the register over I2C.",
		validateOptions{Verbose: true}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, exitViolations, code)
	assert.Contains(t, stderr.String(), "rule: i2c")
}

func TestValidateTextJSONOutput(t *testing.T) {
	p, _ := newTestPipeline(t)
	var stdout, stderr bytes.Buffer

	code, err := validateText(context.Background(), p, "no code here",
		validateOptions{Rule: "spi", JSON: true}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, exitViolations, code)

	var report validationReport
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, "fail", report.Status)
	assert.Equal(t, "spi", report.Rule)
	require.NotEmpty(t, report.Errors)
	assert.Equal(t, "common", report.Errors[0].Rule)
}

func TestValidateTextQuietHidesWarnings(t *testing.T) {
	p, _ := newTestPipeline(t)
	var stdout, stderr bytes.Buffer

	// Clean code without a citation: only warnings remain.
	uncited := "```cpp\n#include <Arduino.h>\n#include <Wire.h>\nvoid setup() { Wire.begin(); Wire.requestFrom(0x40, 2); while (Wire.available()) {} }\n```\n"
	code, err := validateText(context.Background(), p, uncited,
		validateOptions{Rule: "i2c", Quiet: true}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Equal(t, exitClean, code)
	assert.Empty(t, stdout.String())
}
