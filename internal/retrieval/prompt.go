package retrieval

import (
	"fmt"
	"strings"
)

// maxContextLen bounds the total context text embedded into a prompt.
const maxContextLen = 1200

// BuildPrompt assembles the generation prompt from the question and the
// retrieved context chunks. The instructions pin the answer to the provided
// material and require the output shape the validator chain checks for.
func BuildPrompt(question string, results []Result) string {
	var ctx strings.Builder
	for _, r := range results {
		block := fmt.Sprintf("[%s / chunk %d]\n%s\n\n", r.Source, r.Index, r.Text)
		if ctx.Len()+len(block) > maxContextLen {
			break
		}
		ctx.WriteString(block)
	}

	var b strings.Builder
	b.WriteString("You are an embedded-firmware assistant. Answer only from the reference material below.\n\n")
	b.WriteString("### Reference material\n")
	b.WriteString(ctx.String())
	b.WriteString("\n### Requirements\n")
	b.WriteString("- Output a single ```cpp code block, no prose outside it\n")
	b.WriteString("- Cite sources as [source: <document>#<chunk>]\n")
	b.WriteString("- If the material does not cover the question, say the specification is undefined\n")
	b.WriteString("\n### Question\n")
	b.WriteString(question)
	b.WriteString("\n")
	return b.String()
}
