// Package fix orchestrates correction of failing text: a bounded
// generate-validate retry loop at prompt level, and single-shot corrections
// for high-importance chunks. Pure orchestration: persistent validation
// failure is a reportable outcome, never an error.
package fix

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkd/internal/generate"
	"github.com/fyrsmithlabs/checkd/internal/validate"
)

const instrumentationName = "github.com/fyrsmithlabs/checkd/internal/fix"

// LoopConfig bounds the retry loop.
type LoopConfig struct {
	// MaxRetry is the number of additional attempts after the first
	// (total generator calls = MaxRetry + 1). Default: 2.
	MaxRetry int

	// MaxCorrectionBytes caps the correction directive appended to the
	// prompt on retries. Default: 4096.
	MaxCorrectionBytes int
}

// ApplyDefaults sets default values for unset fields.
func (c *LoopConfig) ApplyDefaults() {
	if c.MaxRetry == 0 {
		c.MaxRetry = 2
	}
	if c.MaxCorrectionBytes == 0 {
		c.MaxCorrectionBytes = 4096
	}
}

// Result is the outcome of a retry loop. Clean means the final attempt had
// no error-severity findings; otherwise Findings holds the surviving
// violations of the last attempt.
type Result struct {
	Text     string
	Findings []validate.Finding
	Attempts int
	Clean    bool
}

// Loop runs generate-validate cycles until the text is clean or the attempt
// budget is exhausted.
type Loop struct {
	gen      generate.Generator
	pipeline *validate.Pipeline
	config   LoopConfig
	logger   *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	attemptCounter metric.Int64Counter
}

// NewLoop creates a correction loop.
func NewLoop(gen generate.Generator, pipeline *validate.Pipeline, cfg LoopConfig, logger *zap.Logger) (*Loop, error) {
	if gen == nil {
		return nil, errors.New("generator is required")
	}
	if pipeline == nil {
		return nil, errors.New("validator pipeline is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	l := &Loop{
		gen:      gen,
		pipeline: pipeline,
		config:   cfg,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}

	var err error
	l.attemptCounter, err = l.meter.Int64Counter(
		"checkd.fix.attempts_total",
		metric.WithDescription("Total number of correction loop attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		l.logger.Warn("failed to create attempt counter", zap.Error(err))
	}

	return l, nil
}

// Run executes up to MaxRetry+1 generate-validate cycles. A generator
// failure consumes one attempt and is validated as empty text. Attempts are
// strictly sequential: each retry prompt carries the previous attempt's
// error messages. Exhaustion returns the last text with its findings; only
// cancellation and configuration problems surface as errors.
func (l *Loop) Run(ctx context.Context, prompt, key string, vctx validate.Context) (Result, error) {
	ctx, span := l.tracer.Start(ctx, "fix.loop")
	defer span.End()
	span.SetAttributes(attribute.String("rule", key))

	var res Result

	for attempt := 0; attempt <= l.config.MaxRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			// Abandoned between attempts; telemetry already written for
			// completed attempts stays valid.
			return res, err
		}

		attemptPrompt := prompt
		if len(res.Findings) > 0 {
			attemptPrompt += l.correctionDirective(validate.Errors(res.Findings))
		}

		text, err := l.gen.Generate(ctx, attemptPrompt)
		if err != nil {
			// A failed attempt still consumes retry budget; the empty text
			// is validated so baseline findings drive the next retry.
			l.logger.Warn("generation attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			text = ""
		}

		findings, err := l.pipeline.Validate(ctx, text, key, vctx)
		if err != nil {
			return res, fmt.Errorf("validation failed: %w", err)
		}

		res = Result{
			Text:     text,
			Findings: findings,
			Attempts: attempt + 1,
			Clean:    !validate.HasErrors(findings),
		}

		if l.attemptCounter != nil {
			l.attemptCounter.Add(ctx, 1, metric.WithAttributes(
				attribute.String("rule", key),
				attribute.Bool("clean", res.Clean),
			))
		}

		if res.Clean {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("attempts", res.Attempts),
		attribute.Bool("clean", res.Clean),
	)
	return res, nil
}

// correctionDirective renders the latest error messages as a retry
// instruction, capped at MaxCorrectionBytes so the prompt cannot grow
// without bound across retries.
func (l *Loop) correctionDirective(errs []validate.Finding) string {
	var b strings.Builder
	b.WriteString("\n\nThe previous answer violated these rules. Fix all of them and output the full corrected answer:\n")
	for _, f := range errs {
		b.WriteString("- ")
		b.WriteString(f.Message)
		if f.FixHint != "" {
			b.WriteString(" (")
			b.WriteString(f.FixHint)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}

	directive := b.String()
	if len(directive) > l.config.MaxCorrectionBytes {
		directive = directive[:l.config.MaxCorrectionBytes]
	}
	return directive
}
