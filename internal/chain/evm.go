package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Backend is the subset of ethclient.Client used by EVMClient
type Backend interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// Options tunes the EVM adapter
type Options struct {
	// RateLimit is the number of RPC round trips per second; <= 0 disables limiting
	RateLimit float64
	RateBurst int

	// ReceiptTimeout bounds the wait for a submitted transaction
	ReceiptTimeout time.Duration

	// PollInterval is the first receipt poll delay, grown exponentially
	PollInterval time.Duration

	// GasLimitMarginPct is added on top of the estimate for submitted transactions
	GasLimitMarginPct uint64
}

// DefaultOptions returns the adapter defaults
func DefaultOptions() Options {
	return Options{
		RateLimit:         10,
		RateBurst:         5,
		ReceiptTimeout:    2 * time.Minute,
		PollInterval:      time.Second,
		GasLimitMarginPct: 20,
	}
}

// EVMClient implements Client on top of a go-ethereum backend
type EVMClient struct {
	backend Backend
	key     *ecdsa.PrivateKey
	signer  common.Address
	limiter *rate.Limiter
	opts    Options
	closer  func()
}

// NewEVMClient wraps a backend. key may be nil when nothing is submitted.
func NewEVMClient(backend Backend, key *ecdsa.PrivateKey, opts Options) *EVMClient {
	defaults := DefaultOptions()
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = defaults.ReceiptTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	c := &EVMClient{
		backend: backend,
		key:     key,
		limiter: rate.NewLimiter(limit, opts.RateBurst),
		opts:    opts,
	}
	if key != nil {
		c.signer = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c
}

// Close releases the underlying connection when the client owns it
func (c *EVMClient) Close() error {
	if c.closer != nil {
		c.closer()
	}
	return nil
}

func (c *EVMClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

// GasPrice implements Client
func (c *EVMClient) GasPrice(ctx context.Context) (*big.Int, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read gas price: %w", err)
	}
	return price, nil
}

// EstimateDeploymentGas implements Client
func (c *EVMClient) EstimateDeploymentGas(ctx context.Context, from common.Address, d Deployment) (uint64, error) {
	target := "deployment"
	if d.Name != "" {
		target = d.Name + " deployment"
	}

	args, err := d.ABI.Pack("", d.Args...)
	if err != nil {
		return 0, &EstimationError{Target: target, Err: fmt.Errorf("pack constructor: %w", err)}
	}
	data := make([]byte, 0, len(d.Bytecode)+len(args))
	data = append(data, d.Bytecode...)
	data = append(data, args...)

	return c.estimate(ctx, target, ethereum.CallMsg{From: from, Data: data})
}

// EstimateCallGas implements Client
func (c *EVMClient) EstimateCallGas(ctx context.Context, from common.Address, call Call) (uint64, error) {
	target := fmt.Sprintf("%s on %s", call.Method, call.To.Hex())

	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return 0, &EstimationError{Target: target, Err: fmt.Errorf("pack call: %w", err)}
	}
	to := call.To
	return c.estimate(ctx, target, ethereum.CallMsg{From: from, To: &to, Data: data})
}

func (c *EVMClient) estimate(ctx context.Context, target string, msg ethereum.CallMsg) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, &EstimationError{Target: target, Err: err}
	}
	gas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return 0, &EstimationError{Target: target, Err: err}
	}
	logrus.WithFields(logrus.Fields{
		"target": target,
		"gas":    gas,
	}).Debug("Estimated gas")
	return gas, nil
}

// SubmitAndWait implements Client. The transaction is broadcast once; only the
// receipt lookup is repeated.
func (c *EVMClient) SubmitAndWait(ctx context.Context, from common.Address, call Call) (Receipt, error) {
	fail := func(hash common.Hash, err error) (Receipt, error) {
		return Receipt{}, &SubmissionError{To: call.To, Method: call.Method, TxHash: hash, Err: err}
	}

	if c.key == nil {
		return fail(common.Hash{}, errors.New("no signing key configured"))
	}
	if from != c.signer {
		return fail(common.Hash{}, fmt.Errorf("sender %s is not the signer %s", from.Hex(), c.signer.Hex()))
	}

	data, err := call.ABI.Pack(call.Method, call.Args...)
	if err != nil {
		return fail(common.Hash{}, fmt.Errorf("pack call: %w", err))
	}
	to := call.To

	if err := c.wait(ctx); err != nil {
		return fail(common.Hash{}, err)
	}
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return fail(common.Hash{}, fmt.Errorf("read nonce: %w", err))
	}

	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return fail(common.Hash{}, err)
	}

	gas, err := c.estimate(ctx, fmt.Sprintf("%s on %s", call.Method, to.Hex()), ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return fail(common.Hash{}, err)
	}
	gas += gas * c.opts.GasLimitMarginPct / 100

	if err := c.wait(ctx); err != nil {
		return fail(common.Hash{}, err)
	}
	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return fail(common.Hash{}, fmt.Errorf("read chain id: %w", err))
	}

	tx, err := gethtypes.SignTx(gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    new(big.Int),
		Data:     data,
	}), gethtypes.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return fail(common.Hash{}, fmt.Errorf("sign: %w", err))
	}
	hash := tx.Hash()

	if err := c.wait(ctx); err != nil {
		return fail(hash, err)
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil && !isAlreadyKnown(err) {
		return fail(hash, err)
	}

	logrus.WithFields(logrus.Fields{
		"tx":     hash.Hex(),
		"method": call.Method,
		"to":     to.Hex(),
		"nonce":  nonce,
	}).Info("Transaction submitted, waiting for receipt")

	receipt, err := c.waitReceipt(ctx, hash)
	if err != nil {
		return Receipt{}, err
	}
	if receipt.Status == gethtypes.ReceiptStatusFailed {
		return fail(hash, errors.New("transaction reverted"))
	}

	effective := receipt.EffectiveGasPrice
	if effective == nil {
		effective = gasPrice
	}
	return Receipt{
		GasUsed:           receipt.GasUsed,
		EffectiveGasPrice: new(big.Int).Set(effective),
		TxHash:            hash,
	}, nil
}

func (c *EVMClient) waitReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	started := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.ReceiptTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.PollInterval
	b.MaxInterval = 10 * c.opts.PollInterval
	b.MaxElapsedTime = 0

	var receipt *gethtypes.Receipt
	err := backoff.Retry(func() error {
		if err := c.wait(waitCtx); err != nil {
			return backoff.Permanent(err)
		}
		r, err := c.backend.TransactionReceipt(waitCtx, hash)
		if err != nil {
			if !errors.Is(err, ethereum.NotFound) {
				logrus.Debugf("Receipt lookup for %s failed: %v", hash.Hex(), err)
			}
			return err
		}
		receipt = r
		return nil
	}, backoff.WithContext(b, waitCtx))

	if err != nil {
		cause := waitCtx.Err()
		if cause == nil {
			cause = err
		}
		if ctx.Err() != nil {
			cause = ctx.Err()
		}
		return nil, &TimeoutError{TxHash: hash, Waited: time.Since(started), Err: cause}
	}
	return receipt, nil
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}
