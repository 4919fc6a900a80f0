// Package validate runs the ordered validator chain for a detected rule key
// and produces typed findings. Content-level failures are values, never
// errors: a Finding is the routine outcome this system exists to detect.
package validate

import (
	"github.com/fyrsmithlabs/checkd/internal/rules"
)

// Finding is one failing rule evaluation. Passing checks are not
// materialized.
type Finding struct {
	Rule     string         `json:"rule"`
	Severity rules.Severity `json:"severity"`
	Message  string         `json:"message"`
	FixHint  string         `json:"fix_hint,omitempty"`
	Target   string         `json:"target,omitempty"`
}

// Context carries auxiliary inputs for cross-cutting validators.
type Context struct {
	// Scores are retrieval similarity scores for the text being validated.
	Scores []float64
}

// Validator evaluates text and returns zero or more failing findings.
// Implementations must be pure: identical input yields identical output.
type Validator interface {
	Evaluate(text string, vctx Context) []Finding
}

// Errors filters findings down to error severity.
func Errors(findings []Finding) []Finding {
	var out []Finding
	for _, f := range findings {
		if f.Severity == rules.SeverityError {
			out = append(out, f)
		}
	}
	return out
}

// HasErrors reports whether any finding is error severity.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == rules.SeverityError {
			return true
		}
	}
	return false
}

// Messages extracts the finding messages in order.
func Messages(findings []Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.Message
	}
	return out
}
