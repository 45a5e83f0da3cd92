// Package model defines the core data structures of the TCO estimator.
package model

import (
	"math/big"
	"time"
)

// CostEstimate is the cost of a single estimation step. Values are created by
// the cost calculator and never mutated afterwards; the big.Int fields are not
// shared with any other estimate.
type CostEstimate struct {
	// GasUsed is the simulated or consumed gas
	GasUsed uint64 `json:"gas_used"`

	// GasPrice is the price per gas in the chain's smallest unit (wei)
	GasPrice *big.Int `json:"gas_price"`

	// CostInSmallestUnit is GasUsed * GasPrice
	CostInSmallestUnit *big.Int `json:"cost_in_smallest_unit"`

	// CostInNativeCurrency is CostInSmallestUnit scaled by the native decimals
	CostInNativeCurrency string `json:"cost_in_native_currency"`

	// CostInUSD is the native cost at the run's spot price, fixed precision
	CostInUSD string `json:"cost_in_usd"`
}

// IsZero reports whether the estimate carries no cost
func (e CostEstimate) IsZero() bool {
	return e.GasUsed == 0 && (e.CostInSmallestUnit == nil || e.CostInSmallestUnit.Sign() == 0)
}

// StepKind tells simulated steps apart from the real transaction
type StepKind string

const (
	StepSimulation  StepKind = "simulation"
	StepTransaction StepKind = "transaction"
)

// StepStatus is the outcome of one step
type StepStatus string

const (
	StatusOK      StepStatus = "ok"
	StatusFailed  StepStatus = "failed"
	StatusSkipped StepStatus = "skipped"
)

// StepResult is one named entry of a report
type StepResult struct {
	Name     string        `json:"name"`
	Kind     StepKind      `json:"kind"`
	Status   StepStatus    `json:"status"`
	Estimate CostEstimate  `json:"estimate"`
	Error    string        `json:"error,omitempty"`
	TxHash   string        `json:"tx_hash,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Failed reports whether the step did not produce a usable estimate
func (s StepResult) Failed() bool {
	return s.Status != StatusOK
}

// Totals are the elementwise sums over a report's steps
type Totals struct {
	TotalGasUsed              uint64   `json:"total_gas_used"`
	TotalCostInSmallestUnit   *big.Int `json:"total_cost_in_smallest_unit"`
	TotalCostInNativeCurrency string   `json:"total_cost_in_native_currency"`
	TotalCostInUSD            string   `json:"total_cost_in_usd"`
}

// TcoReport is the output of one pipeline run
type TcoReport struct {
	Chain          string `json:"chain"`
	Action         string `json:"action"`
	NativeSymbol   string `json:"native_symbol"`
	NativeDecimals uint8  `json:"native_decimals"`

	// GasPrice is the single gas price read at the start of the run
	GasPrice *big.Int `json:"gas_price"`

	// NativeUSDPrice is the spot price every USD figure is based on
	NativeUSDPrice string    `json:"native_usd_price"`
	PriceFetchedAt time.Time `json:"price_fetched_at"`

	Steps    []StepResult `json:"steps"`
	Totals   Totals       `json:"totals"`
	Warnings []string     `json:"warnings,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// Estimates returns the per-step estimates in report order
func (r *TcoReport) Estimates() []CostEstimate {
	out := make([]CostEstimate, 0, len(r.Steps))
	for _, s := range r.Steps {
		out = append(out, s.Estimate)
	}
	return out
}

// FailedSteps returns the steps that were zeroed
func (r *TcoReport) FailedSteps() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Failed() {
			failed = append(failed, s)
		}
	}
	return failed
}

// Step looks up a step by name
func (r *TcoReport) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}
