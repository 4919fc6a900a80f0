package fix

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/checkd/internal/chunk"
	"github.com/fyrsmithlabs/checkd/internal/generate"
	"github.com/fyrsmithlabs/checkd/internal/validate"
)

// MinFixScore is the importance floor below which chunks are not worth the
// correction cost.
const MinFixScore = 0.6

// FixResult is the outcome of one single-shot chunk correction. The
// original text is retained for diffing and audit.
type FixResult struct {
	Source   string
	Index    int
	Original string
	Fixed    string
	Reason   string
}

// ShouldFix gates chunk correction: only high-importance chunks with at
// least one error-severity finding are eligible.
func ShouldFix(c chunk.Chunk, findings []validate.Finding) bool {
	if c.Score < MinFixScore {
		return false
	}
	return validate.HasErrors(findings)
}

// BuildFixPrompt renders the correction request: preserve meaning and
// structure, no speculative additions, with the violated rules spelled out.
func BuildFixPrompt(c chunk.Chunk, findings []validate.Finding) string {
	var b strings.Builder
	b.WriteString("You are an editor for internal technical documentation.\n")
	b.WriteString("The following text violates mechanical documentation rules. ")
	b.WriteString("Rewrite it so the violations are resolved.\n\n")
	b.WriteString("Violated rules:\n")
	for _, f := range findings {
		b.WriteString("- ")
		b.WriteString(f.Message)
		b.WriteString("\n")
	}
	b.WriteString("\nOriginal text:\n")
	b.WriteString(c.Text)
	b.WriteString("\n\nConstraints:\n")
	b.WriteString("- Do not change the meaning\n")
	b.WriteString("- Preserve the structure\n")
	b.WriteString("- Do not add speculative information\n")
	b.WriteString("\nCorrected text:\n")
	return b.String()
}

// FixChunk performs one correction call for an eligible chunk. No internal
// retry: re-validation and any further loop is the caller's responsibility.
// A generator failure is surfaced, never swallowed.
func FixChunk(ctx context.Context, gen generate.Generator, c chunk.Chunk, findings []validate.Finding) (FixResult, error) {
	fixed, err := gen.Generate(ctx, BuildFixPrompt(c, findings))
	if err != nil {
		return FixResult{}, fmt.Errorf("fix generation failed for %s#%d: %w", c.Source, c.Index, err)
	}

	return FixResult{
		Source:   c.Source,
		Index:    c.Index,
		Original: c.Text,
		Fixed:    strings.TrimSpace(fixed),
		Reason:   strings.Join(validate.Messages(findings), "; "),
	}, nil
}
