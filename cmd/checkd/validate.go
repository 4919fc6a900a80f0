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

	"github.com/fyrsmithlabs/checkd/internal/rules"
	"github.com/fyrsmithlabs/checkd/internal/validate"
)

var (
	// validate command flags
	valRule    string
	valJSON    bool
	valVerbose bool
	valQuiet   bool
)

func init() {
	validateCmd.Flags().StringVar(&valRule, "rule", "", "rule key to validate against (default: auto-detect)")
	validateCmd.Flags().BoolVar(&valJSON, "json", false, "output findings as JSON")
	validateCmd.Flags().BoolVarP(&valVerbose, "verbose", "v", false, "print the detected rule and counts")
	validateCmd.Flags().BoolVarP(&valQuiet, "quiet", "q", false, "suppress warning output")
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a file or stdin against the documentation rules",
	Long: `Validate text against the rule set. The rule key is detected from the
text unless --rule is given. Error-severity violations set exit code 1;
an unknown rule key sets exit code 2.

Examples:
  # Validate a file with auto-detection
  checkd validate answer.md

  # Validate stdin against a specific rule
  cat answer.md | checkd validate --rule i2c -

  # Machine-readable output
  checkd validate --json answer.md`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	text, err := readInput(args)
	if err != nil {
		return fail(err)
	}

	comps, err := newComponents()
	if err != nil {
		return fail(err)
	}

	code, err := validateText(cmd.Context(), comps.pipeline, text, validateOptions{
		Rule:    valRule,
		JSON:    valJSON,
		Verbose: valVerbose,
		Quiet:   valQuiet,
	}, os.Stdout, os.Stderr)
	if err != nil {
		return fail(err)
	}
	if code != exitClean {
		return exitError{code}
	}
	return nil
}

// validateOptions controls validate output and rule selection.
type validateOptions struct {
	Rule    string
	JSON    bool
	Verbose bool
	Quiet   bool
}

// validateText runs the pipeline over text and renders findings. It returns
// the process exit code; errors are reserved for unexpected failures.
func validateText(ctx context.Context, p *validate.Pipeline, text string, opts validateOptions, stdout, stderr io.Writer) (int, error) {
	key := opts.Rule
	if key == "" {
		key = p.Detect(text)
	}

	findings, err := p.Validate(ctx, text, key, validate.Context{})
	if errors.Is(err, rules.ErrUnknownRule) {
		fmt.Fprintf(stderr, "Error: unknown rule %q\n", key)
		return exitUsage, nil
	}
	if err != nil {
		return exitViolations, err
	}

	if opts.Verbose {
		fmt.Fprintf(stderr, "rule: %s  findings: %d  errors: %d\n",
			key, len(findings), len(validate.Errors(findings)))
	}

	if err := renderFindings(key, findings, opts, stdout); err != nil {
		return exitViolations, err
	}

	if validate.HasErrors(findings) {
		return exitViolations, nil
	}
	return exitClean, nil
}

// validationReport is the JSON shape of one validate run.
type validationReport struct {
	Status   string             `json:"status"`
	Rule     string             `json:"rule"`
	Errors   []validate.Finding `json:"errors"`
	Warnings []validate.Finding `json:"warnings"`
}

func renderFindings(key string, findings []validate.Finding, opts validateOptions, w io.Writer) error {
	errs := validate.Errors(findings)

	if opts.JSON {
		report := validationReport{
			Status:   "ok",
			Rule:     key,
			Errors:   []validate.Finding{},
			Warnings: []validate.Finding{},
		}
		if len(errs) > 0 {
			report.Status = "fail"
			report.Errors = errs
		}
		for _, f := range findings {
			if f.Severity != rules.SeverityError {
				report.Warnings = append(report.Warnings, f)
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	for _, f := range findings {
		if opts.Quiet && f.Severity != rules.SeverityError {
			continue
		}
		line := fmt.Sprintf("%s [%s]: %s", f.Severity, f.Rule, f.Message)
		if f.FixHint != "" {
			line += " (" + f.FixHint + ")"
		}
		fmt.Fprintln(w, line)
	}

	if len(errs) == 0 && !opts.Quiet {
		fmt.Fprintf(w, "ok [%s]\n", key)
	}
	return nil
}

// readInput reads from the named file, or stdin when the argument is absent
// or "-".
func readInput(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), nil
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return "", fmt.Errorf("no content in %s", args[0])
	}
	return string(content), nil
}
