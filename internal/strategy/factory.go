package strategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/yourorg/tco-estimator/internal/artifacts"
	"github.com/yourorg/tco-estimator/internal/chain"
	"github.com/yourorg/tco-estimator/internal/cost"
	"github.com/yourorg/tco-estimator/internal/metrics"
	"github.com/yourorg/tco-estimator/internal/pipeline"
	"github.com/yourorg/tco-estimator/internal/price"
	"github.com/yourorg/tco-estimator/internal/types"
	"github.com/yourorg/tco-estimator/internal/validation"
)

// ErrUnsupportedAction is returned for an action no strategy implements
var ErrUnsupportedAction = errors.New("unsupported action")

// UnsupportedChainError is returned for a chain without a descriptor
type UnsupportedChainError struct {
	Chain     string
	Supported []types.SupportedChain
}

func (e *UnsupportedChainError) Error() string {
	return fmt.Sprintf("unsupported chain %q (supported: %v)", e.Chain, e.Supported)
}

// descriptor holds the per-chain facts that never come from configuration
type descriptor struct {
	coin string
}

var descriptors = map[types.SupportedChain]descriptor{
	types.ChainArbitrum: {coin: price.CoinEthereum},
	types.ChainBase:     {coin: price.CoinEthereum},
	types.ChainBSC:      {coin: price.CoinBNB},
	types.ChainEthereum: {coin: price.CoinEthereum},
	types.ChainHedera:   {coin: price.CoinHBAR},
}

// PriceCoin returns the price API coin id of a supported chain
func PriceCoin(c types.SupportedChain) (string, bool) {
	d, ok := descriptors[c]
	return d.coin, ok
}

// Dialer opens an RPC client for a chain. The returned closer, if any, is
// owned by the strategy.
type Dialer func(ctx context.Context, cfg types.ChainConfig) (chain.Client, io.Closer, error)

// Options carries per-run strategy settings
type Options struct {
	Nft NftOptions
}

// Factory builds strategies bound to a chain, a price quote and a client
type Factory struct {
	chains    map[types.SupportedChain]types.ChainConfig
	oracle    price.Oracle
	dial      Dialer
	operator  common.Address
	artifacts artifacts.Source
	engine    *pipeline.Engine
	metrics   *metrics.Recorder
	log       logrus.FieldLogger
	now       func() time.Time
}

// FactoryOption configures a Factory
type FactoryOption func(*Factory)

// WithEngine sets the engine shared by created strategies
func WithEngine(e *pipeline.Engine) FactoryOption {
	return func(f *Factory) { f.engine = e }
}

// WithFactoryMetrics records price lookups on m
func WithFactoryMetrics(m *metrics.Recorder) FactoryOption {
	return func(f *Factory) { f.metrics = m }
}

// WithFactoryLogger sets the logger
func WithFactoryLogger(l logrus.FieldLogger) FactoryOption {
	return func(f *Factory) { f.log = l }
}

// WithClock sets the clock used for router deadlines
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) { f.now = now }
}

// NewFactory creates a strategy factory
func NewFactory(chains map[types.SupportedChain]types.ChainConfig, oracle price.Oracle, dial Dialer, operator common.Address, src artifacts.Source, opts ...FactoryOption) *Factory {
	f := &Factory{
		chains:    chains,
		oracle:    oracle,
		dial:      dial,
		operator:  operator,
		artifacts: src,
		log:       logrus.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.engine == nil {
		f.engine = pipeline.New(cost.Default(), pipeline.WithLogger(f.log), pipeline.WithMetrics(f.metrics))
	}
	return f
}

// Supported lists the chains the factory can build strategies for
func (f *Factory) Supported() []types.SupportedChain {
	out := make([]types.SupportedChain, 0, len(descriptors))
	for c := range descriptors {
		if _, ok := f.chains[c]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Create resolves the chain, reads the USD price and the gas price
// concurrently and returns a strategy ready to run. Unknown chains and
// actions fail before any network I/O; a price failure returns no strategy.
func (f *Factory) Create(ctx context.Context, c types.SupportedChain, action types.Action, opts Options) (Strategy, error) {
	d, ok := descriptors[c]
	cfg, configured := f.chains[c]
	if !ok || !configured {
		return nil, &UnsupportedChainError{Chain: string(c), Supported: f.Supported()}
	}

	switch action {
	case types.ActionAddLiquidity, types.ActionSwapTokens, types.ActionNftActions:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
	}

	if errs := validation.ValidateChain(cfg); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	log := f.log.WithFields(logrus.Fields{
		"chain":  c,
		"action": action,
	})

	client, closer, err := f.dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c, err)
	}

	var (
		quote    price.Quote
		gasPrice *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := f.oracle.Fetch(gctx, d.coin)
		f.metrics.PriceFetch(d.coin, err)
		if err != nil {
			var fe *price.FetchError
			if !errors.As(err, &fe) {
				err = &price.FetchError{Coin: d.coin, Err: err}
			}
			return err
		}
		quote = q
		return nil
	})
	g.Go(func() error {
		p, err := client.GasPrice(gctx)
		if err != nil {
			return fmt.Errorf("failed to read gas price on %s: %w", c, err)
		}
		gasPrice = p
		return nil
	})
	if err := g.Wait(); err != nil {
		if closer != nil {
			if cerr := closer.Close(); cerr != nil {
				log.WithError(cerr).Warn("Failed to close RPC client")
			}
		}
		log.WithError(err).Error("Failed to prepare strategy")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"usd_price": quote.USD.String(),
		"gas_price": gasPrice.String(),
	}).Debug("Prepared strategy")

	env := Env{
		Chain:    cfg,
		Client:   client,
		Operator: f.operator,
		Quote:    quote,
		GasPrice: gasPrice,
		Engine:   f.engine,
		Closer:   closer,
		Now:      f.now,
	}

	switch action {
	case types.ActionAddLiquidity:
		return NewAddLiquidity(env, f.artifacts), nil
	case types.ActionSwapTokens:
		return NewSwapTokens(env, f.artifacts), nil
	default:
		return NewNftActions(env, opts.Nft), nil
	}
}
