package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/checkd/internal/rules"
)

// Well-known rule keys for findings produced outside the detected rule.
const (
	RuleCommon     = "common"
	RuleCitation   = "require_citation"
	RuleConfidence = "rag_confidence"
)

// DefaultConfidenceThreshold applies when the rule store carries no
// threshold for rag_confidence.
const DefaultConfidenceThreshold = 0.25

var (
	cppBlockRe    = regexp.MustCompile("(?i)```cpp[\\s\\S]*?```")
	lineCommentRe = regexp.MustCompile(`//.*`)
	wireBeginRe   = regexp.MustCompile(`(?i)\bwire\.begin\s*\(`)
	spiBeginRe    = regexp.MustCompile(`(?i)\bspi\.begin\s*\(\s*\)`)
	citationRe    = regexp.MustCompile(`\[source:\s*[^\]]+\]`)
)

// stripLineComments removes // comments so commented-out calls do not
// satisfy initialization checks.
func stripLineComments(text string) string {
	return lineCommentRe.ReplaceAllString(text, "")
}

// token is one mechanically checkable requirement. Pattern, when set, is
// matched against the comment-stripped text instead of a plain substring.
type token struct {
	name    string
	pattern *regexp.Regexp
	hint    string
}

func (t token) present(text string) bool {
	if t.pattern != nil {
		return t.pattern.MatchString(stripLineComments(text))
	}
	return containsToken(text, t.name)
}

func containsToken(text, name string) bool {
	return strings.Contains(text, name)
}

// requiredTokens is the authoritative token table per rule key, collapsing
// the per-call-site validator duplicates of earlier revisions.
var requiredTokens = map[string][]token{
	"i2c": {
		{name: "#include <Wire.h>"},
		{name: "Wire.begin", pattern: wireBeginRe, hint: "add I2C initialization"},
		{name: "Wire.requestFrom"},
		{name: "Wire.available"},
	},
	"spi": {
		{name: "#include <SPI.h>"},
		{name: "SPI.begin", pattern: spiBeginRe, hint: "add SPI initialization"},
		{name: "SPI.beginTransaction"},
		{name: "SPI.endTransaction"},
	},
	"i2c_spi": {
		{name: "#include <Wire.h>"},
		{name: "#include <SPI.h>"},
		{name: "Wire.begin", pattern: wireBeginRe, hint: "add I2C initialization"},
		{name: "SPI.begin", pattern: spiBeginRe, hint: "add SPI initialization"},
		{name: "SPI.beginTransaction"},
		{name: "SPI.endTransaction"},
	},
}

// baselineValidator checks universal structural requirements for generated
// firmware answers: a fenced cpp block and the Arduino header.
type baselineValidator struct{}

func (baselineValidator) Evaluate(text string, _ Context) []Finding {
	var findings []Finding

	if !cppBlockRe.MatchString(text) {
		findings = append(findings, Finding{
			Rule:     RuleCommon,
			Severity: rules.SeverityError,
			Message:  "output must contain a fenced cpp code block",
			FixHint:  "wrap the code in ```cpp ... ```",
			Target:   "cpp_block",
		})
	}

	if !containsToken(text, "#include <Arduino.h>") {
		findings = append(findings, Finding{
			Rule:     RuleCommon,
			Severity: rules.SeverityError,
			Message:  "missing required token: #include <Arduino.h>",
			FixHint:  "include Arduino.h at the top of the sketch",
			Target:   "#include <Arduino.h>",
		})
	}

	return findings
}

// tokenValidator checks the rule-specific required token set.
type tokenValidator struct {
	rule   string
	tokens []token
}

func (v tokenValidator) Evaluate(text string, _ Context) []Finding {
	var findings []Finding
	for _, tok := range v.tokens {
		if tok.present(text) {
			continue
		}
		hint := tok.hint
		if hint == "" {
			hint = fmt.Sprintf("add %s to the code", tok.name)
		}
		findings = append(findings, Finding{
			Rule:     v.rule,
			Severity: rules.SeverityError,
			Message:  fmt.Sprintf("missing required token: %s", tok.name),
			FixHint:  hint,
			Target:   tok.name,
		})
	}
	return findings
}

// citationValidator requires at least one [source: ...] marker.
type citationValidator struct{}

func (citationValidator) Evaluate(text string, _ Context) []Finding {
	if citationRe.MatchString(text) {
		return nil
	}
	return []Finding{{
		Rule:     RuleCitation,
		Severity: rules.SeverityWarning,
		Message:  "no citation marker present",
		FixHint:  "add [source: <document>#<chunk>] for each claim",
		Target:   "citation",
	}}
}

// confidenceValidator flags answers whose best retrieval similarity falls
// below the configured threshold.
type confidenceValidator struct {
	threshold float64
}

func (v confidenceValidator) Evaluate(_ string, vctx Context) []Finding {
	best := 0.0
	for _, s := range vctx.Scores {
		if s > best {
			best = s
		}
	}
	if len(vctx.Scores) > 0 && best >= v.threshold {
		return nil
	}
	return []Finding{{
		Rule:     RuleConfidence,
		Severity: rules.SeverityWarning,
		Message:  fmt.Sprintf("retrieval similarity too low (best %.2f, threshold %.2f)", best, v.threshold),
		FixHint:  "answer that the specification is not covered by the indexed documents",
		Target:   "confidence",
	}}
}
