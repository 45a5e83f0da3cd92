// Package pipeline runs ordered estimation steps and assembles the TCO report.
package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/tco-estimator/internal/aggregate"
	"github.com/yourorg/tco-estimator/internal/cost"
	"github.com/yourorg/tco-estimator/internal/metrics"
	"github.com/yourorg/tco-estimator/internal/model"
	tcootel "github.com/yourorg/tco-estimator/internal/otel"
)

// FailurePolicy decides what happens to a step that did not produce an estimate
type FailurePolicy string

const (
	// ZeroOnFailure keeps the step with a zero estimate and a failed status
	ZeroOnFailure FailurePolicy = "zero"
	// OmitOnFailure drops the step from the report and adds a warning
	OmitOnFailure FailurePolicy = "omit"
)

// ParseFailurePolicy maps a configuration value onto a FailurePolicy
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ZeroOnFailure:
		return ZeroOnFailure, nil
	case OmitOnFailure:
		return OmitOnFailure, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Outcome is what a step measured
type Outcome struct {
	GasUsed uint64

	// GasPrice overrides the run's gas price, e.g. a receipt's effective price
	GasPrice *big.Int

	TxHash string
}

// Step is one named unit of work in a run
type Step struct {
	Name string
	Kind model.StepKind
	Run  func(ctx context.Context) (Outcome, error)
}

// Meta describes the run a session reports on
type Meta struct {
	Chain          string
	Action         string
	NativeSymbol   string
	NativeDecimals uint8

	// GasPrice is read once per run and used for every simulated step
	GasPrice *big.Int

	USDPrice       decimal.Decimal
	PriceFetchedAt time.Time
}

// Engine executes step lists. It is safe for concurrent use; per-run state
// lives in a Session.
type Engine struct {
	calc    cost.Calculator
	policy  FailurePolicy
	log     logrus.FieldLogger
	metrics *metrics.Recorder
	tracer  trace.Tracer
}

// Option configures an Engine
type Option func(*Engine)

// WithPolicy sets the failure policy
func WithPolicy(p FailurePolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogger sets the logger
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// New creates an engine around a calculator
func New(calc cost.Calculator, opts ...Option) *Engine {
	e := &Engine{
		calc:   calc,
		policy: ZeroOnFailure,
		log:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = tcootel.Tracer()
	}
	return e
}

// Session accumulates the report of one run. Only the goroutine that owns the
// session may call its methods.
type Session struct {
	engine  *Engine
	meta    Meta
	report  *model.TcoReport
	started time.Time
	ctx     context.Context
	span    trace.Span
	stopErr error
	log     logrus.FieldLogger
}

// Start opens a session and its run span
func (e *Engine) Start(ctx context.Context, meta Meta) *Session {
	ctx, span := e.tracer.Start(ctx, "tco.run", trace.WithAttributes(
		attribute.String("chain", meta.Chain),
		attribute.String("action", meta.Action),
	))

	gasPrice := new(big.Int)
	if meta.GasPrice != nil {
		gasPrice.Set(meta.GasPrice)
	}
	meta.GasPrice = gasPrice

	started := time.Now()
	log := e.log.WithFields(logrus.Fields{
		"chain":  meta.Chain,
		"action": meta.Action,
	})
	log.WithFields(logrus.Fields{
		"gas_price_gwei": gwei(gasPrice),
		"usd_price":      meta.USDPrice.String(),
	}).Info("Starting estimation run")

	return &Session{
		engine:  e,
		meta:    meta,
		started: started,
		ctx:     ctx,
		span:    span,
		log:     log,
		report: &model.TcoReport{
			Chain:          meta.Chain,
			Action:         meta.Action,
			NativeSymbol:   meta.NativeSymbol,
			NativeDecimals: meta.NativeDecimals,
			GasPrice:       new(big.Int).Set(gasPrice),
			NativeUSDPrice: meta.USDPrice.String(),
			PriceFetchedAt: meta.PriceFetchedAt,
			Steps:          []model.StepResult{},
			StartedAt:      started.UTC(),
		},
	}
}

// Context returns the run context carrying the run span
func (s *Session) Context() context.Context {
	return s.ctx
}

// Warn adds a report level warning
func (s *Session) Warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.report.Warnings = append(s.report.Warnings, msg)
	s.log.Warn(msg)
}

type stepRun struct {
	outcome Outcome
	err     error
	skipped bool
	elapsed time.Duration

	// stopped is the context error when the run was cancelled around this step
	stopped error
}

// Execute runs steps one after another. A failing step is recorded and the
// next step still runs. Once ctx is done the remaining steps are skipped.
func (s *Session) Execute(ctx context.Context, steps ...Step) {
	for _, step := range steps {
		s.record(step, s.run(ctx, step))
	}
}

// ExecuteParallel runs independent steps with at most limit in flight and
// records them in input order.
func (s *Session) ExecuteParallel(ctx context.Context, steps []Step, limit int) {
	if limit < 1 {
		limit = 1
	}

	results := make([]stepRun, len(steps))
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range steps {
		g.Go(func() error {
			results[i] = s.run(ctx, steps[i])
			return nil
		})
	}
	_ = g.Wait()

	for i, step := range steps {
		s.record(step, results[i])
	}
}

func (s *Session) run(ctx context.Context, step Step) stepRun {
	if err := ctx.Err(); err != nil {
		return stepRun{err: err, skipped: true, stopped: err}
	}

	spanCtx, span := s.engine.tracer.Start(trace.ContextWithSpan(ctx, s.span), "tco.step", trace.WithAttributes(
		attribute.String("step", step.Name),
		attribute.String("kind", string(step.Kind)),
	))
	defer span.End()

	started := time.Now()
	outcome, err := step.Run(spanCtx)
	elapsed := time.Since(started)

	r := stepRun{outcome: outcome, err: err, elapsed: elapsed}
	if err != nil {
		tcootel.RecordError(spanCtx, err)
		r.stopped = ctx.Err()
	} else {
		span.SetAttributes(attribute.Int64("gas_used", int64(outcome.GasUsed)))
	}
	return r
}

func (s *Session) record(step Step, r stepRun) {
	result := model.StepResult{
		Name:     step.Name,
		Kind:     step.Kind,
		Status:   model.StatusOK,
		Duration: r.elapsed,
		TxHash:   r.outcome.TxHash,
	}

	err := r.err
	if err == nil {
		price := r.outcome.GasPrice
		if price == nil {
			price = s.meta.GasPrice
		}
		est, cerr := s.engine.calc.Compute(r.outcome.GasUsed, price, s.meta.NativeDecimals, s.meta.USDPrice)
		if cerr != nil {
			err = fmt.Errorf("compute cost: %w", cerr)
		} else {
			result.Estimate = est
		}
	}

	if r.stopped != nil && s.stopErr == nil {
		s.stopErr = r.stopped
	}

	fields := logrus.Fields{"step": step.Name}
	switch {
	case r.skipped:
		result.Status = model.StatusSkipped
		result.Estimate = s.engine.calc.Zero()
		result.Error = err.Error()
		s.log.WithFields(fields).Warn("Step skipped")
	case err != nil:
		result.Status = model.StatusFailed
		result.Estimate = s.engine.calc.Zero()
		result.Error = err.Error()
		s.log.WithFields(fields).WithError(err).Error("Step failed")
		if step.Kind == model.StepTransaction {
			s.Warn("%s was not confirmed: %v", step.Name, err)
		}
	default:
		fields["gas_used"] = result.Estimate.GasUsed
		fields["gas_price_gwei"] = gwei(result.Estimate.GasPrice)
		fields["cost_native"] = result.Estimate.CostInNativeCurrency + " " + s.meta.NativeSymbol
		fields["cost_usd"] = result.Estimate.CostInUSD
		if result.TxHash != "" {
			fields["tx"] = result.TxHash
		}
		s.log.WithFields(fields).Info("Step estimated")
	}

	s.engine.metrics.ObserveStep(s.meta.Chain, s.meta.Action, step.Name, string(result.Status), r.elapsed)

	if result.Failed() && s.engine.policy == OmitOnFailure {
		s.Warn("%s omitted from report (%s): %s", step.Name, result.Status, result.Error)
		return
	}
	s.report.Steps = append(s.report.Steps, result)
}

// Finish totals the recorded steps and closes the run. The returned error is
// the context error when the run was cut short; the report is still valid.
func (s *Session) Finish() (*model.TcoReport, error) {
	defer s.span.End()

	totals, err := aggregate.FromSteps(s.report.Steps, s.meta.NativeDecimals, s.engine.calc.Precision())
	if err != nil {
		tcootel.RecordError(s.ctx, err)
		return nil, fmt.Errorf("aggregate report: %w", err)
	}
	s.report.Totals = totals
	s.report.Elapsed = time.Since(s.started)

	if usd, err := decimal.NewFromString(totals.TotalCostInUSD); err == nil {
		s.engine.metrics.SetRunCost(s.meta.Chain, s.meta.Action, usd.InexactFloat64())
	}

	s.log.WithFields(logrus.Fields{
		"steps":       len(s.report.Steps),
		"failed":      len(s.report.FailedSteps()),
		"total_gas":   totals.TotalGasUsed,
		"total_usd":   totals.TotalCostInUSD,
		"elapsed_sec": s.report.Elapsed.Seconds(),
	}).Info("Estimation run finished")

	if s.stopErr != nil {
		tcootel.RecordError(s.ctx, s.stopErr)
	}
	return s.report, s.stopErr
}

func gwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -9).String()
}
