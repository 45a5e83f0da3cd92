// Package aggregate folds per-step cost estimates into report totals.
package aggregate

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
	"github.com/yourorg/tco-estimator/internal/cost"
	"github.com/yourorg/tco-estimator/internal/model"
)

// Totals sums the estimates elementwise. Gas and smallest units are summed
// exactly, the native total is rendered from the summed smallest units and the
// USD total is the exact decimal sum of the per-step USD strings, fixed to
// usdPlaces fractional digits.
func Totals(estimates []model.CostEstimate, nativeDecimals uint8, usdPlaces int32) (model.Totals, error) {
	if usdPlaces < 0 {
		return model.Totals{}, fmt.Errorf("usd precision %d is negative", usdPlaces)
	}

	var (
		gas      uint64
		smallest = new(big.Int)
		usd      = decimal.Zero
	)

	for i, e := range estimates {
		if gas > math.MaxUint64-e.GasUsed {
			return model.Totals{}, fmt.Errorf("total gas overflows at step %d", i)
		}
		gas += e.GasUsed

		if e.CostInSmallestUnit != nil {
			smallest.Add(smallest, e.CostInSmallestUnit)
		}

		if e.CostInUSD == "" {
			continue
		}
		v, err := decimal.NewFromString(e.CostInUSD)
		if err != nil {
			return model.Totals{}, fmt.Errorf("step %d usd value %q: %w", i, e.CostInUSD, err)
		}
		usd = usd.Add(v)
	}

	return model.Totals{
		TotalGasUsed:              gas,
		TotalCostInSmallestUnit:   smallest,
		TotalCostInNativeCurrency: cost.FormatNative(smallest, nativeDecimals),
		TotalCostInUSD:            usd.StringFixed(usdPlaces),
	}, nil
}

// FromSteps is Totals over the estimates carried by a report's steps
func FromSteps(steps []model.StepResult, nativeDecimals uint8, usdPlaces int32) (model.Totals, error) {
	estimates := make([]model.CostEstimate, 0, len(steps))
	for _, s := range steps {
		estimates = append(estimates, s.Estimate)
	}
	return Totals(estimates, nativeDecimals, usdPlaces)
}
