// Package strategy builds the per-action step lists and the factory that
// binds them to a chain, a price quote and an RPC client.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/tco-estimator/internal/chain"
	"github.com/yourorg/tco-estimator/internal/cost"
	"github.com/yourorg/tco-estimator/internal/model"
	"github.com/yourorg/tco-estimator/internal/pipeline"
	"github.com/yourorg/tco-estimator/internal/price"
	"github.com/yourorg/tco-estimator/internal/types"
)

// ErrAlreadyRun is returned by a second Run on the same strategy. Runs may
// submit transactions, so a strategy is single use.
var ErrAlreadyRun = errors.New("strategy already run")

// Strategy estimates the cost of one action on one chain
type Strategy interface {
	// Name describes the action and chain
	Name() string

	// Run executes the steps and returns the report. On cancellation the
	// partial report is returned together with the context error.
	Run(ctx context.Context) (*model.TcoReport, error)

	// Close releases the RPC connection
	Close() error
}

// Env is everything a strategy runs against. The factory fills it in; tests
// build it directly.
type Env struct {
	Chain    types.ChainConfig
	Client   chain.Client
	Operator common.Address
	Quote    price.Quote
	GasPrice *big.Int
	Engine   *pipeline.Engine

	// Closer is closed by Strategy.Close, typically the RPC connection
	Closer io.Closer

	// Now is the clock used for deadlines, time.Now when nil
	Now func() time.Time
}

type base struct {
	env    Env
	action types.Action
	ran    atomic.Bool
}

func (b *base) setup(env Env, action types.Action) {
	if env.Now == nil {
		env.Now = time.Now
	}
	if env.Engine == nil {
		env.Engine = pipeline.New(cost.Default())
	}
	b.env = env
	b.action = action
}

func (b *base) Name() string {
	return fmt.Sprintf("%s on %s", b.action.Title(), b.env.Chain.Name)
}

func (b *base) Close() error {
	if b.env.Closer == nil {
		return nil
	}
	return b.env.Closer.Close()
}

// run starts a session, lets execute add the steps and finishes the report
func (b *base) run(ctx context.Context, execute func(ctx context.Context, s *pipeline.Session)) (*model.TcoReport, error) {
	if !b.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	s := b.env.Engine.Start(ctx, pipeline.Meta{
		Chain:          string(b.env.Chain.Name),
		Action:         string(b.action),
		NativeSymbol:   b.env.Chain.NativeSymbol,
		NativeDecimals: b.env.Chain.NativeDecimals,
		GasPrice:       b.env.GasPrice,
		USDPrice:       b.env.Quote.USD,
		PriceFetchedAt: b.env.Quote.FetchedAt,
	})
	execute(s.Context(), s)
	return s.Finish()
}

func (b *base) deadline(after time.Duration) *big.Int {
	return big.NewInt(b.env.Now().Add(after).Unix())
}
