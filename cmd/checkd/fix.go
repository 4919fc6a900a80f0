package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/checkd/internal/chunk"
	"github.com/fyrsmithlabs/checkd/internal/fix"
	"github.com/fyrsmithlabs/checkd/internal/generate"
	"github.com/fyrsmithlabs/checkd/internal/rules"
	"github.com/fyrsmithlabs/checkd/internal/validate"
)

var (
	// fix command flags
	fixRule string
	fixJSON bool
)

func init() {
	fixCmd.Flags().StringVar(&fixRule, "rule", "", "rule key to validate chunks against (default: auto-detect per chunk)")
	fixCmd.Flags().BoolVar(&fixJSON, "json", false, "output fix results as JSON")
}

var fixCmd = &cobra.Command{
	Use:   "fix <file>",
	Short: "Correct high-importance chunks of a document",
	Long: `Split a document into chunks, validate each, and regenerate the chunks
whose importance score clears the fix floor and that carry error-severity
violations. Every accepted fix is appended to the fix history.

Examples:
  # Fix a document with per-chunk rule detection
  checkd fix sensors.md

  # Pin the rule for all chunks
  checkd fix --rule i2c sensors.md`,
	Args: cobra.ExactArgs(1),
	RunE: runFix,
}

func runFix(cmd *cobra.Command, args []string) error {
	text, err := readInput(args)
	if err != nil {
		return fail(err)
	}

	comps, err := newComponents()
	if err != nil {
		return fail(err)
	}

	gen, err := generate.NewOllama(generate.OllamaConfig{
		URL:         cfg.Generator.URL,
		Model:       cfg.Generator.Model,
		Timeout:     cfg.Generator.Timeout,
		Temperature: cfg.Generator.Temperature,
	})
	if err != nil {
		return fail(err)
	}

	history, err := fix.NewHistory(cfg.History.Path, logger)
	if err != nil {
		return fail(err)
	}

	splitter := chunk.Splitter{Size: cfg.Chunking.Size, Overlap: cfg.Chunking.Overlap}
	code, err := fixDocument(cmd.Context(), comps.pipeline, gen, history, splitter, text, args[0], fixRule, fixJSON, os.Stdout, os.Stderr)
	if err != nil {
		return fail(err)
	}
	if code != exitClean {
		return exitError{code}
	}
	return nil
}

// fixOutcome is the JSON shape of one chunk's fix.
type fixOutcome struct {
	Source       string   `json:"source"`
	ChunkIndex   int      `json:"chunk_index"`
	Rule         string   `json:"rule"`
	ErrorsBefore []string `json:"errors_before"`
	ErrorsAfter  []string `json:"errors_after"`
	Fixed        string   `json:"fixed"`
}

// fixDocument splits, validates, and corrects eligible chunks, recording
// each accepted fix. Returns the process exit code: 1 when any error
// survives correction, 2 for an unknown explicit rule key.
func fixDocument(ctx context.Context, p *validate.Pipeline, gen generate.Generator, history *fix.History, splitter chunk.Splitter, text, source, ruleKey string, jsonOut bool, stdout, stderr io.Writer) (int, error) {
	chunks, err := splitter.Split(text, source)
	if err != nil {
		return exitViolations, err
	}

	var outcomes []fixOutcome
	remaining := 0

	for _, c := range chunks {
		key := ruleKey
		if key == "" {
			key = p.Detect(c.Text)
		}

		findings, err := p.Validate(ctx, c.Text, key, validate.Context{})
		if errors.Is(err, rules.ErrUnknownRule) {
			fmt.Fprintf(stderr, "Error: unknown rule %q\n", key)
			return exitUsage, nil
		}
		if err != nil {
			return exitViolations, err
		}

		if !fix.ShouldFix(c, findings) {
			if validate.HasErrors(findings) {
				remaining += len(validate.Errors(findings))
			}
			continue
		}

		res, err := fix.FixChunk(ctx, gen, c, findings)
		if err != nil {
			fmt.Fprintf(stderr, "fix failed for %s#%d: %v\n", c.Source, c.Index, err)
			remaining += len(validate.Errors(findings))
			continue
		}

		after, err := p.Validate(ctx, res.Fixed, key, validate.Context{})
		if err != nil {
			return exitViolations, err
		}

		errorsBefore := validate.Messages(validate.Errors(findings))
		errorsAfter := validate.Messages(validate.Errors(after))
		remaining += len(errorsAfter)

		if err := history.Record(fix.HistoryRecord{
			Source:       c.Source,
			ChunkIndex:   c.Index,
			Rule:         key,
			ErrorsBefore: errorsBefore,
			ErrorsAfter:  errorsAfter,
			OriginalText: c.Text,
			FixedText:    res.Fixed,
		}); err != nil {
			fmt.Fprintf(stderr, "failed to record fix history: %v\n", err)
		}

		outcomes = append(outcomes, fixOutcome{
			Source:       c.Source,
			ChunkIndex:   c.Index,
			Rule:         key,
			ErrorsBefore: errorsBefore,
			ErrorsAfter:  errorsAfter,
			Fixed:        res.Fixed,
		})
	}

	if jsonOut {
		if outcomes == nil {
			outcomes = []fixOutcome{}
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcomes); err != nil {
			return exitViolations, err
		}
	} else {
		for _, o := range outcomes {
			fmt.Fprintf(stdout, "fixed %s#%d [%s]: %d error(s) -> %d\n",
				o.Source, o.ChunkIndex, o.Rule, len(o.ErrorsBefore), len(o.ErrorsAfter))
		}
		fmt.Fprintf(stdout, "%d chunk(s), %d fixed, %d error(s) remaining\n",
			len(chunks), len(outcomes), remaining)
	}

	if remaining > 0 {
		return exitViolations, nil
	}
	return exitClean, nil
}
