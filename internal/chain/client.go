// Package chain provides the JSON-RPC operations the estimator needs from an
// EVM network: gas estimation, the current gas price and the submission of
// the few transactions that are actually sent.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Deployment describes contract creation code with constructor arguments
type Deployment struct {
	Name     string
	ABI      abi.ABI
	Bytecode []byte
	Args     []interface{}
}

// Call describes a contract method invocation
type Call struct {
	To     common.Address
	ABI    abi.ABI
	Method string
	Args   []interface{}
}

// Receipt is the confirmed outcome of a submitted transaction
type Receipt struct {
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	TxHash            common.Hash
}

// Client defines the chain operations used by the strategies
type Client interface {
	// EstimateDeploymentGas simulates a contract creation from the given account
	EstimateDeploymentGas(ctx context.Context, from common.Address, d Deployment) (uint64, error)

	// EstimateCallGas simulates a contract call from the given account
	EstimateCallGas(ctx context.Context, from common.Address, c Call) (uint64, error)

	// SubmitAndWait signs and broadcasts a call and waits for one confirmation
	SubmitAndWait(ctx context.Context, from common.Address, c Call) (Receipt, error)

	// GasPrice returns the network's current gas price
	GasPrice(ctx context.Context) (*big.Int, error)
}

// EstimationError is returned when the node rejects a simulation
type EstimationError struct {
	Target string
	Err    error
}

func (e *EstimationError) Error() string {
	return fmt.Sprintf("estimate gas for %s: %v", e.Target, e.Err)
}

func (e *EstimationError) Unwrap() error { return e.Err }

// SubmissionError is returned when a transaction cannot be sent or reverts
type SubmissionError struct {
	To     common.Address
	Method string
	TxHash common.Hash
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.TxHash != (common.Hash{}) {
		return fmt.Sprintf("submit %s on %s (tx %s): %v", e.Method, e.To.Hex(), e.TxHash.Hex(), e.Err)
	}
	return fmt.Sprintf("submit %s on %s: %v", e.Method, e.To.Hex(), e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TimeoutError is returned when no receipt arrives within the wait bound
type TimeoutError struct {
	TxHash common.Hash
	Waited time.Duration
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no receipt for %s after %s: %v", e.TxHash.Hex(), e.Waited.Round(time.Millisecond), e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
