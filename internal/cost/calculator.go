// Package cost converts gas figures into native-currency and USD amounts.
package cost

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yourorg/tco-estimator/internal/model"
)

// Rounding selects how USD amounts are fixed to the configured precision
type Rounding string

const (
	// RoundHalfUp rounds half away from zero
	RoundHalfUp Rounding = "half-up"
	// RoundBankers rounds half to even
	RoundBankers Rounding = "bankers"
	// RoundTruncate drops the extra digits
	RoundTruncate Rounding = "truncate"
)

const (
	// DefaultUSDPrecision is the number of fractional digits in USD figures
	DefaultUSDPrecision int32 = 6

	// MaxNativeDecimals is the largest supported native currency precision
	MaxNativeDecimals uint8 = 18
)

// ErrInvalidInput is returned when a precondition of Compute is violated
var ErrInvalidInput = errors.New("invalid cost input")

// ParseRounding maps a configuration value onto a Rounding
func ParseRounding(s string) (Rounding, error) {
	switch Rounding(strings.ToLower(strings.TrimSpace(s))) {
	case "", RoundHalfUp:
		return RoundHalfUp, nil
	case RoundBankers:
		return RoundBankers, nil
	case RoundTruncate:
		return RoundTruncate, nil
	default:
		return "", fmt.Errorf("unknown rounding %q", s)
	}
}

// Calculator turns gas figures into cost estimates. It holds no mutable state.
type Calculator struct {
	precision int32
	rounding  Rounding
}

// NewCalculator creates a calculator with an explicit USD precision and rounding
func NewCalculator(precision int32, rounding Rounding) (Calculator, error) {
	if precision < 0 || precision > int32(MaxNativeDecimals) {
		return Calculator{}, fmt.Errorf("usd precision %d out of range [0, %d]", precision, MaxNativeDecimals)
	}
	if _, err := ParseRounding(string(rounding)); err != nil {
		return Calculator{}, err
	}
	if rounding == "" {
		rounding = RoundHalfUp
	}
	return Calculator{precision: precision, rounding: rounding}, nil
}

// Default returns the calculator matching the reference behaviour: six
// fractional digits, half away from zero.
func Default() Calculator {
	return Calculator{precision: DefaultUSDPrecision, rounding: RoundHalfUp}
}

// Precision returns the number of fractional digits used for USD values
func (c Calculator) Precision() int32 {
	return c.precision
}

// Compute returns the cost of gasUsed units at gasPrice. A nil gasPrice is
// treated as zero.
func (c Calculator) Compute(gasUsed uint64, gasPrice *big.Int, nativeDecimals uint8, usdPrice decimal.Decimal) (model.CostEstimate, error) {
	if nativeDecimals > MaxNativeDecimals {
		return model.CostEstimate{}, fmt.Errorf("%w: native decimals %d > %d", ErrInvalidInput, nativeDecimals, MaxNativeDecimals)
	}
	if usdPrice.IsNegative() {
		return model.CostEstimate{}, fmt.Errorf("%w: negative usd price %s", ErrInvalidInput, usdPrice)
	}

	price := new(big.Int)
	if gasPrice != nil {
		if gasPrice.Sign() < 0 {
			return model.CostEstimate{}, fmt.Errorf("%w: negative gas price %s", ErrInvalidInput, gasPrice)
		}
		price.Set(gasPrice)
	}

	smallest := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), price)
	native := decimal.NewFromBigInt(smallest, -int32(nativeDecimals))

	return model.CostEstimate{
		GasUsed:              gasUsed,
		GasPrice:             price,
		CostInSmallestUnit:   smallest,
		CostInNativeCurrency: native.String(),
		CostInUSD:            c.FormatUSD(native.Mul(usdPrice)),
	}, nil
}

// Zero returns the estimate recorded for a failed or skipped step
func (c Calculator) Zero() model.CostEstimate {
	return model.CostEstimate{
		GasPrice:             new(big.Int),
		CostInSmallestUnit:   new(big.Int),
		CostInNativeCurrency: "0",
		CostInUSD:            c.FormatUSD(decimal.Zero),
	}
}

// FormatUSD fixes a USD amount to the calculator's precision
func (c Calculator) FormatUSD(d decimal.Decimal) string {
	switch c.rounding {
	case RoundBankers:
		return d.StringFixedBank(c.precision)
	case RoundTruncate:
		return d.Truncate(c.precision).StringFixed(c.precision)
	default:
		return d.StringFixed(c.precision)
	}
}

// FormatNative renders an amount of smallest units as an exact decimal string
func FormatNative(amount *big.Int, nativeDecimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(nativeDecimals)).String()
}

// ScaleUnits converts a human readable token amount ("0.1") into the token's
// smallest unit. Digits below the token precision are dropped.
func ScaleUnits(amount string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %s", ErrInvalidInput, amount)
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}
