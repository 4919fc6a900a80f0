package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/checkd/internal/fix"
	"github.com/fyrsmithlabs/checkd/internal/generate"
	"github.com/fyrsmithlabs/checkd/internal/retrieval"
	"github.com/fyrsmithlabs/checkd/internal/rules"
	"github.com/fyrsmithlabs/checkd/internal/validate"
)

var (
	// ask command flags
	askRule string
	askTopK int
	askJSON bool
)

func init() {
	askCmd.Flags().StringVar(&askRule, "rule", "", "rule key to validate the answer against (default: auto-detect)")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "number of context chunks to retrieve (default: from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the result as JSON")
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from ingested documents, validated and retried",
	Long: `Retrieve relevant chunks, generate an answer, and validate it. Failing
answers are regenerated with a correction directive until they pass or
the retry budget runs out.

Examples:
  # Ask with auto-detection of the rule
  checkd ask "How do I read the temperature sensor over I2C?"

  # Pin the rule and get JSON output
  checkd ask --rule i2c --json "Show the sensor setup"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	comps, err := newComponents()
	if err != nil {
		return fail(err)
	}

	store, err := retrieval.NewStore(retrieval.Config{
		Path:       cfg.Retrieval.Path,
		Collection: cfg.Retrieval.Collection,
		EmbedURL:   cfg.Retrieval.EmbedURL,
		EmbedModel: cfg.Retrieval.EmbedModel,
	}, logger)
	if err != nil {
		return fail(err)
	}

	topK := askTopK
	if topK <= 0 {
		topK = cfg.Retrieval.TopK
	}
	results, err := store.Query(cmd.Context(), question, topK)
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

	loop, err := fix.NewLoop(gen, comps.pipeline, fix.LoopConfig{
		MaxRetry:           cfg.Loop.MaxRetry,
		MaxCorrectionBytes: cfg.Loop.MaxCorrectionBytes,
	}, logger)
	if err != nil {
		return fail(err)
	}

	code, err := askOnce(cmd.Context(), loop, comps.pipeline, results, question, askRule, askJSON, os.Stdout, os.Stderr)
	if err != nil {
		return fail(err)
	}
	if code != exitClean {
		return exitError{code}
	}
	return nil
}

// askResult is the JSON shape of a completed ask.
type askResult struct {
	Answer   string             `json:"answer"`
	Rule     string             `json:"rule"`
	Attempts int                `json:"attempts"`
	Clean    bool               `json:"clean"`
	Findings []validate.Finding `json:"findings"`
}

// askOnce builds the prompt from retrieved context, runs the retry loop, and
// renders the outcome. Returns the process exit code.
func askOnce(ctx context.Context, loop *fix.Loop, p *validate.Pipeline, results []retrieval.Result, question, ruleKey string, jsonOut bool, stdout, stderr io.Writer) (int, error) {
	key := ruleKey
	if key == "" {
		key = p.Detect(question)
	}

	prompt := retrieval.BuildPrompt(question, results)
	vctx := validate.Context{Scores: retrieval.Scores(results)}

	res, err := loop.Run(ctx, prompt, key, vctx)
	if errors.Is(err, rules.ErrUnknownRule) {
		fmt.Fprintf(stderr, "Error: unknown rule %q\n", key)
		return exitUsage, nil
	}
	if err != nil {
		return exitViolations, err
	}

	if jsonOut {
		out := askResult{
			Answer:   res.Text,
			Rule:     key,
			Attempts: res.Attempts,
			Clean:    res.Clean,
			Findings: res.Findings,
		}
		if out.Findings == nil {
			out.Findings = []validate.Finding{}
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return exitViolations, err
		}
	} else {
		fmt.Fprintln(stdout, res.Text)
	}

	if !res.Clean {
		for _, f := range validate.Errors(res.Findings) {
			fmt.Fprintf(stderr, "unresolved %s [%s]: %s\n", f.Severity, f.Rule, f.Message)
		}
		fmt.Fprintf(stderr, "answer still failing after %d attempt(s)\n", res.Attempts)
		return exitViolations, nil
	}
	return exitClean, nil
}
