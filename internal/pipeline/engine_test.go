package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yourorg/tco-estimator/internal/aggregate"
	"github.com/yourorg/tco-estimator/internal/cost"
	"github.com/yourorg/tco-estimator/internal/metrics"
	"github.com/yourorg/tco-estimator/internal/model"
)

func meta() Meta {
	return Meta{
		Chain:          "bsc",
		Action:         "add-liquidity",
		NativeSymbol:   "BNB",
		NativeDecimals: 18,
		GasPrice:       big.NewInt(5_000_000_000),
		USDPrice:       decimal.NewFromInt(600),
	}
}

func gasStep(name string, gas uint64) Step {
	return Step{Name: name, Kind: model.StepSimulation, Run: func(context.Context) (Outcome, error) {
		return Outcome{GasUsed: gas}, nil
	}}
}

func failStep(name string, kind model.StepKind) Step {
	return Step{Name: name, Kind: kind, Run: func(context.Context) (Outcome, error) {
		return Outcome{}, errors.New("execution reverted")
	}}
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return New(cost.Default(), append([]Option{WithLogger(logger)}, opts...)...), hook
}

func TestSession_ReferenceStep(t *testing.T) {
	e, _ := newEngine(t)

	s := e.Start(context.Background(), meta())
	s.Execute(context.Background(), gasStep("Factory Deployment", 21000))
	report, err := s.Finish()
	require.NoError(t, err)

	require.Len(t, report.Steps, 1)
	step := report.Steps[0]
	assert.Equal(t, model.StatusOK, step.Status)
	assert.Equal(t, "0.000105", step.Estimate.CostInNativeCurrency)
	assert.Equal(t, "0.063000", step.Estimate.CostInUSD)
	assert.Equal(t, "0.000105", report.Totals.TotalCostInNativeCurrency)
	assert.Equal(t, "0.063000", report.Totals.TotalCostInUSD)
	assert.Equal(t, "600", report.NativeUSDPrice)
	assert.Equal(t, "BNB", report.NativeSymbol)
}

func TestSession_FailureIsolation(t *testing.T) {
	e, hook := newEngine(t)

	steps := []Step{
		gasStep("one", 100_000),
		failStep("two", model.StepSimulation),
		gasStep("three", 50_000),
	}

	s := e.Start(context.Background(), meta())
	s.Execute(context.Background(), steps...)
	report, err := s.Finish()
	require.NoError(t, err)

	require.Len(t, report.Steps, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{report.Steps[0].Name, report.Steps[1].Name, report.Steps[2].Name})
	assert.Equal(t, model.StatusFailed, report.Steps[1].Status)
	assert.True(t, report.Steps[1].Estimate.IsZero())
	assert.Contains(t, report.Steps[1].Error, "execution reverted")
	assert.Equal(t, model.StatusOK, report.Steps[2].Status)
	assert.Empty(t, report.Warnings)

	assert.Equal(t, uint64(150_000), report.Totals.TotalGasUsed)

	want, err := aggregate.Totals(report.Estimates(), 18, cost.DefaultUSDPrecision)
	require.NoError(t, err)
	assert.Equal(t, want, report.Totals)

	var failedLogged bool
	for _, entry := range hook.AllEntries() {
		if entry.Message == "Step failed" && entry.Data["step"] == "two" {
			failedLogged = true
			assert.NotNil(t, entry.Data[logrus.ErrorKey])
		}
	}
	assert.True(t, failedLogged)
}

func TestSession_TransactionFailureWarns(t *testing.T) {
	e, _ := newEngine(t)

	s := e.Start(context.Background(), meta())
	s.Execute(context.Background(), failStep("Token Approval (operationToken1)", model.StepTransaction))
	report, err := s.Finish()
	require.NoError(t, err)

	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "Token Approval (operationToken1)")
}

func TestSession_TransactionUsesEffectivePrice(t *testing.T) {
	e, _ := newEngine(t)

	step := Step{Name: "approve", Kind: model.StepTransaction, Run: func(context.Context) (Outcome, error) {
		return Outcome{GasUsed: 46_000, GasPrice: big.NewInt(1_000_000_000), TxHash: "0xabc"}, nil
	}}

	s := e.Start(context.Background(), meta())
	s.Execute(context.Background(), step)
	report, err := s.Finish()
	require.NoError(t, err)

	assert.Equal(t, "1000000000", report.Steps[0].Estimate.GasPrice.String())
	assert.Equal(t, "0xabc", report.Steps[0].TxHash)
	assert.Equal(t, "5000000000", report.GasPrice.String())
}

func TestSession_OmitPolicy(t *testing.T) {
	e, _ := newEngine(t, WithPolicy(OmitOnFailure))

	s := e.Start(context.Background(), meta())
	s.Execute(context.Background(), gasStep("one", 1000), failStep("two", model.StepSimulation))
	report, err := s.Finish()
	require.NoError(t, err)

	require.Len(t, report.Steps, 1)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "two omitted")
}

func TestSession_Cancellation(t *testing.T) {
	e, _ := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())

	steps := []Step{
		gasStep("one", 1000),
		{Name: "two", Kind: model.StepSimulation, Run: func(context.Context) (Outcome, error) {
			cancel()
			return Outcome{GasUsed: 2000}, nil
		}},
		gasStep("three", 3000),
		gasStep("four", 4000),
	}

	s := e.Start(ctx, meta())
	s.Execute(ctx, steps...)
	report, err := s.Finish()

	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	require.Len(t, report.Steps, 4)
	assert.Equal(t, model.StatusOK, report.Steps[1].Status)
	assert.Equal(t, model.StatusSkipped, report.Steps[2].Status)
	assert.Equal(t, model.StatusSkipped, report.Steps[3].Status)
	assert.Equal(t, uint64(3000), report.Totals.TotalGasUsed)
}

func TestSession_CancelledDuringFinalStep(t *testing.T) {
	cancelling := func(cancel context.CancelFunc) Step {
		return Step{Name: "last", Kind: model.StepSimulation, Run: func(ctx context.Context) (Outcome, error) {
			cancel()
			return Outcome{}, ctx.Err()
		}}
	}

	t.Run("sequential", func(t *testing.T) {
		e, _ := newEngine(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s := e.Start(ctx, meta())
		s.Execute(ctx, gasStep("first", 1000), cancelling(cancel))
		report, err := s.Finish()

		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, report)
		require.Len(t, report.Steps, 2)
		assert.Equal(t, model.StatusOK, report.Steps[0].Status)
		assert.Equal(t, model.StatusFailed, report.Steps[1].Status)
		assert.Equal(t, uint64(1000), report.Totals.TotalGasUsed)
	})

	t.Run("parallel", func(t *testing.T) {
		e, _ := newEngine(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s := e.Start(ctx, meta())
		s.ExecuteParallel(ctx, []Step{gasStep("first", 1000), cancelling(cancel)}, 1)
		report, err := s.Finish()

		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, report)
		require.Len(t, report.Steps, 2)
		assert.Equal(t, model.StatusFailed, report.Steps[1].Status)
	})
}

func TestSession_FailureWithoutCancellationKeepsNilError(t *testing.T) {
	e, _ := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := e.Start(ctx, meta())
	s.Execute(ctx, failStep("only", model.StepSimulation))
	_, err := s.Finish()
	assert.NoError(t, err)
}

func TestSession_TotalsUseCalculatorPrecision(t *testing.T) {
	calc, err := cost.NewCalculator(0, cost.RoundHalfUp)
	require.NoError(t, err)
	logger, _ := logtest.NewNullLogger()
	e := New(calc, WithLogger(logger))

	m := meta()
	m.USDPrice = decimal.NewFromInt(60000)

	s := e.Start(context.Background(), m)
	s.Execute(context.Background(), gasStep("one", 21000))
	report, err := s.Finish()
	require.NoError(t, err)

	assert.Equal(t, "6", report.Steps[0].Estimate.CostInUSD)
	assert.Equal(t, "6", report.Totals.TotalCostInUSD)
}

func TestSession_ExecuteParallel_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	const n = 40
	steps := make([]Step, n)
	var wantGas uint64
	for i := 0; i < n; i++ {
		gas := uint64(50_000 + i)
		delay := time.Duration(rng.Intn(5)) * time.Millisecond
		fails := rng.Intn(3) == 0
		if !fails {
			wantGas += gas
		}
		steps[i] = Step{Name: fmt.Sprintf("Airdrop Mint #%d", i+1), Kind: model.StepSimulation, Run: func(context.Context) (Outcome, error) {
			time.Sleep(delay)
			if fails {
				return Outcome{}, errors.New("mint reverted")
			}
			return Outcome{GasUsed: gas}, nil
		}}
	}

	var previous *model.Totals
	for _, limit := range []int{1, 4, n} {
		e, _ := newEngine(t)
		s := e.Start(context.Background(), meta())
		s.ExecuteParallel(context.Background(), steps, limit)
		report, err := s.Finish()
		require.NoError(t, err)

		require.Len(t, report.Steps, n)
		for i, step := range report.Steps {
			assert.Equal(t, fmt.Sprintf("Airdrop Mint #%d", i+1), step.Name)
		}
		assert.Equal(t, wantGas, report.Totals.TotalGasUsed)
		if previous != nil {
			assert.Equal(t, *previous, report.Totals, "limit %d", limit)
		}
		totals := report.Totals
		previous = &totals
	}
}

func TestSession_MetricsAndSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	reg := prometheus.NewRegistry()
	e, _ := newEngine(t, WithTracer(tp.Tracer("test")), WithMetrics(metrics.New(reg)))

	s := e.Start(context.Background(), meta())
	s.Execute(context.Background(), gasStep("one", 10), failStep("two", model.StepSimulation))
	_, err := s.Finish()
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 3)
	assert.Equal(t, "tco.run", spans[2].Name)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "tco_steps_total")
	assert.Contains(t, names, "tco_run_cost_usd")
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, ZeroOnFailure, p)

	p, err = ParseFailurePolicy("OMIT")
	require.NoError(t, err)
	assert.Equal(t, OmitOnFailure, p)

	_, err = ParseFailurePolicy("retry")
	assert.Error(t, err)
}
