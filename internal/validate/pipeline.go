package validate

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/checkd/internal/rules"
	"github.com/fyrsmithlabs/checkd/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/checkd/internal/validate"

// Pipeline resolves and runs the validator chain for a rule key. All
// rule-to-validator dispatch lives here; severities come from the current
// registry snapshot so lifecycle mutations affect future runs.
type Pipeline struct {
	registry *rules.Registry
	log      *telemetry.Log
	logger   *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	findingCounter metric.Int64Counter
}

// NewPipeline creates a validator pipeline.
func NewPipeline(registry *rules.Registry, log *telemetry.Log, logger *zap.Logger) (*Pipeline, error) {
	if registry == nil {
		return nil, errors.New("rule registry is required")
	}
	if log == nil {
		return nil, errors.New("telemetry log is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		registry: registry,
		log:      log,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
		meter:    otel.Meter(instrumentationName),
	}

	var err error
	p.findingCounter, err = p.meter.Int64Counter(
		"checkd.validate.findings_total",
		metric.WithDescription("Total number of failing findings produced"),
		metric.WithUnit("{finding}"),
	)
	if err != nil {
		p.logger.Warn("failed to create finding counter", zap.Error(err))
	}

	return p, nil
}

// Known reports whether key selects a registered validator chain.
func (p *Pipeline) Known(key string) bool {
	if key == rules.DefaultKey || key == RuleCitation || key == RuleConfidence {
		return true
	}
	if _, ok := requiredTokens[key]; ok {
		return true
	}
	_, ok := p.registry.Snapshot().Rule(key)
	return ok
}

// Detect maps text to the most specific matching rule key using the current
// registry snapshot.
func (p *Pipeline) Detect(text string) string {
	return p.registry.Snapshot().Detect(text)
}

// Validate runs the chain for key against text: common baseline, then the
// rule-specific token validator, then the cross-cutting citation and
// confidence validators. Findings preserve validator order, then chain
// order. Every failing finding is appended to the telemetry log at the
// moment it is produced.
func (p *Pipeline) Validate(ctx context.Context, text, key string, vctx Context) ([]Finding, error) {
	ctx, span := p.tracer.Start(ctx, "validate.run")
	defer span.End()

	span.SetAttributes(
		attribute.String("rule", key),
		attribute.Int("text_len", len(text)),
	)

	if !p.Known(key) {
		err := fmt.Errorf("%w: %s", rules.ErrUnknownRule, key)
		span.RecordError(err)
		return nil, err
	}

	snap := p.registry.Snapshot()
	chain := p.chainFor(key, snap)

	var findings []Finding
	for _, v := range chain {
		for _, f := range v.Evaluate(text, vctx) {
			f.Severity = snap.EffectiveSeverity(f.Rule, f.Target, f.Severity)
			findings = append(findings, f)

			if err := p.log.Append(telemetry.Record{
				Rule:     f.Rule,
				Severity: string(f.Severity),
				Message:  f.Message,
				Target:   f.Target,
			}); err != nil {
				// The finding itself is still returned; a log write failure
				// must not turn a content result into a hard failure.
				p.logger.Warn("failed to append telemetry record",
					zap.String("rule", f.Rule),
					zap.Error(err))
			}
		}
	}

	if p.findingCounter != nil && len(findings) > 0 {
		p.findingCounter.Add(ctx, int64(len(findings)), metric.WithAttributes(
			attribute.String("rule", key),
		))
	}

	span.SetAttributes(attribute.Int("findings", len(findings)))
	return findings, nil
}

// chainFor resolves the ordered validator chain for a rule key.
func (p *Pipeline) chainFor(key string, snap *rules.Snapshot) []Validator {
	chain := []Validator{baselineValidator{}}

	if tokens, ok := requiredTokens[key]; ok {
		chain = append(chain, tokenValidator{rule: key, tokens: tokens})
	}

	chain = append(chain,
		citationValidator{},
		confidenceValidator{threshold: snap.Threshold(RuleConfidence, DefaultConfidenceThreshold)},
	)
	return chain
}
