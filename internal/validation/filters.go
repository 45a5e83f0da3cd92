// Package validation provides checks for chain configuration values before
// they are used as call or deployment targets.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/tco-estimator/internal/cost"
	"github.com/yourorg/tco-estimator/internal/types"
)

// ErrInvalidConfig is matched by every InvalidConfigError
var ErrInvalidConfig = errors.New("invalid config")

// InvalidConfigError reports a configuration value that cannot be used
type InvalidConfigError struct {
	Chain  types.SupportedChain
	Field  string
	Value  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config for %s: %s=%q: %s", e.Chain, e.Field, e.Value, e.Reason)
}

// Is lets errors.Is match against ErrInvalidConfig
func (e *InvalidConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// IsPlaceholder reports whether an address value was never filled in
func IsPlaceholder(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return v == "" || strings.Contains(v, "placeholder") || strings.Contains(v, "...")
}

// Address parses a configured contract address. Placeholders, malformed hex
// and the zero address are rejected.
func Address(chain types.SupportedChain, field, value string) (common.Address, error) {
	fail := func(reason string) (common.Address, error) {
		logrus.WithFields(logrus.Fields{
			"chain": chain,
			"field": field,
			"value": value,
		}).Debug("Rejected address: " + reason)
		return common.Address{}, &InvalidConfigError{Chain: chain, Field: field, Value: value, Reason: reason}
	}

	if IsPlaceholder(value) {
		return fail("placeholder address")
	}
	v := strings.TrimSpace(value)
	if !common.IsHexAddress(v) {
		return fail("not a hex address")
	}
	addr := common.HexToAddress(v)
	if addr == (common.Address{}) {
		return fail("zero address")
	}
	return addr, nil
}

// Token validates a token reference and returns its address
func Token(chain types.SupportedChain, field string, token types.TokenConfig) (common.Address, error) {
	addr, err := Address(chain, field, token.Address)
	if err != nil {
		return common.Address{}, err
	}
	if token.Decimals > cost.MaxNativeDecimals {
		return common.Address{}, &InvalidConfigError{
			Chain:  chain,
			Field:  field + ".decimals",
			Value:  fmt.Sprint(token.Decimals),
			Reason: fmt.Sprintf("more than %d decimals", cost.MaxNativeDecimals),
		}
	}
	return addr, nil
}

// ValidateChain checks the static parameters of a chain. Contract and token
// addresses are not checked here; they are validated by the step that uses
// them so placeholder chains still produce partial reports.
func ValidateChain(cfg types.ChainConfig) []error {
	var errs []error
	invalid := func(field, value, reason string) {
		errs = append(errs, &InvalidConfigError{Chain: cfg.Name, Field: field, Value: value, Reason: reason})
	}

	if cfg.Name == "" {
		invalid("name", "", "empty chain name")
	}
	if cfg.ChainID == 0 {
		invalid("chain_id", "0", "chain id must be positive")
	}
	if strings.TrimSpace(cfg.RPCEndpoint) == "" {
		invalid("rpc_endpoint", cfg.RPCEndpoint, "empty rpc endpoint")
	}
	if cfg.NativeSymbol == "" {
		invalid("native_symbol", "", "empty native symbol")
	}
	if cfg.NativeDecimals > cost.MaxNativeDecimals {
		invalid("native_decimals", fmt.Sprint(cfg.NativeDecimals), fmt.Sprintf("more than %d decimals", cost.MaxNativeDecimals))
	}

	if len(errs) > 0 {
		logrus.Warnf("Chain %s has %d configuration problems", cfg.Name, len(errs))
	}
	return errs
}
