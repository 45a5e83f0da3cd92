package strategy

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/yourorg/tco-estimator/internal/artifacts"
	"github.com/yourorg/tco-estimator/internal/chain"
	"github.com/yourorg/tco-estimator/internal/cost"
	"github.com/yourorg/tco-estimator/internal/model"
	"github.com/yourorg/tco-estimator/internal/pipeline"
	"github.com/yourorg/tco-estimator/internal/price"
	"github.com/yourorg/tco-estimator/internal/types"
)

const factoryABI = `[
  {"type":"constructor","inputs":[{"name":"feeToSetter","type":"address"}]},
  {"type":"function","name":"createPair","stateMutability":"nonpayable",
   "inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"}],
   "outputs":[{"name":"pair","type":"address"}]}
]`

const routerABI = `[
  {"type":"constructor","inputs":[{"name":"factory","type":"address"},{"name":"weth","type":"address"}]},
  {"type":"function","name":"addLiquidity","stateMutability":"nonpayable",
   "inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},
     {"name":"amountADesired","type":"uint256"},{"name":"amountBDesired","type":"uint256"},
     {"name":"amountAMin","type":"uint256"},{"name":"amountBMin","type":"uint256"},
     {"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"swapExactTokensForTokens","stateMutability":"nonpayable",
   "inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},
     {"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],
   "outputs":[]}
]`

var (
	operator   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	factoryAt  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	routerAt   = common.HexToAddress("0x1000000000000000000000000000000000000002")
	wethAt     = common.HexToAddress("0x2000000000000000000000000000000000000001")
	op1At      = common.HexToAddress("0x2000000000000000000000000000000000000002")
	op2At      = common.HexToAddress("0x2000000000000000000000000000000000000003")
	new1At     = common.HexToAddress("0x2000000000000000000000000000000000000004")
	new2At     = common.HexToAddress("0x2000000000000000000000000000000000000005")
	nftAt      = common.HexToAddress("0x3000000000000000000000000000000000000001")
	fixedNow   = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	gasPrice5G = big.NewInt(5_000_000_000)
)

func tok(a common.Address, decimals uint8) types.TokenConfig {
	return types.TokenConfig{Address: a.Hex(), Decimals: decimals}
}

func testChain() types.ChainConfig {
	return types.ChainConfig{
		Name:            types.ChainBSC,
		ChainID:         56,
		RPCEndpoint:     "https://bsc.example",
		NativeSymbol:    "BNB",
		NativeDecimals:  18,
		Factory:         factoryAt.Hex(),
		Router:          routerAt.Hex(),
		WETH:            tok(wethAt, 18),
		OperationToken1: tok(op1At, 18),
		OperationToken2: tok(op2At, 6),
		NewToken1:       tok(new1At, 18),
		NewToken2:       tok(new2At, 18),
	}
}

type fakeSource struct {
	err error
}

func (f fakeSource) Factory() (artifacts.Artifact, error) {
	return f.artifact("PancakeFactory", factoryABI)
}

func (f fakeSource) Router() (artifacts.Artifact, error) {
	return f.artifact("PancakeRouter", routerABI)
}

func (f fakeSource) artifact(name, def string) (artifacts.Artifact, error) {
	if f.err != nil {
		return artifacts.Artifact{}, f.err
	}
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		return artifacts.Artifact{}, err
	}
	return artifacts.Artifact{ContractName: name, ABI: parsed, Bytecode: []byte{0x60, 0x80}}, nil
}

type recordedCall struct {
	Kind   string
	Name   string
	To     common.Address
	Args   []interface{}
	Sender common.Address
}

// fakeClient answers every estimate with a fixed gas per method or
// deployment name. It is safe for concurrent use.
type fakeClient struct {
	mu    sync.Mutex
	calls []recordedCall

	gas      map[string]uint64
	fail     map[string]error
	failTo   map[common.Address]error
	delays   map[common.Address]time.Duration
	onCall   func(name string)
	gasPrice *big.Int
	priceErr error

	receipt   chain.Receipt
	submitErr error

	gasPriceCalls atomic.Int32
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		gas:      map[string]uint64{},
		fail:     map[string]error{},
		failTo:   map[common.Address]error{},
		delays:   map[common.Address]time.Duration{},
		gasPrice: gasPrice5G,
		receipt: chain.Receipt{
			GasUsed:           46_000,
			EffectiveGasPrice: big.NewInt(3_000_000_000),
			TxHash:            common.HexToHash("0xabc"),
		},
	}
}

func (f *fakeClient) record(c recordedCall) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(c.Name)
	}
}

func (f *fakeClient) answer(name string) (uint64, error) {
	if err := f.fail[name]; err != nil {
		return 0, &chain.EstimationError{Target: name, Err: err}
	}
	if g, ok := f.gas[name]; ok {
		return g, nil
	}
	return 100_000, nil
}

func (f *fakeClient) EstimateDeploymentGas(_ context.Context, from common.Address, d chain.Deployment) (uint64, error) {
	f.record(recordedCall{Kind: "deploy", Name: d.Name, Args: d.Args, Sender: from})
	return f.answer(d.Name)
}

func (f *fakeClient) EstimateCallGas(ctx context.Context, from common.Address, c chain.Call) (uint64, error) {
	f.record(recordedCall{Kind: "call", Name: c.Method, To: c.To, Args: c.Args, Sender: from})
	if len(c.Args) > 0 {
		if to, ok := c.Args[0].(common.Address); ok {
			if d := f.delays[to]; d > 0 {
				select {
				case <-time.After(d):
				case <-ctx.Done():
					return 0, ctx.Err()
				}
			}
			if err := f.failTo[to]; err != nil {
				return 0, &chain.EstimationError{Target: c.Method, Err: err}
			}
		}
	}
	return f.answer(c.Method)
}

func (f *fakeClient) SubmitAndWait(_ context.Context, from common.Address, c chain.Call) (chain.Receipt, error) {
	f.record(recordedCall{Kind: "submit", Name: c.Method, To: c.To, Args: c.Args, Sender: from})
	if f.submitErr != nil {
		return chain.Receipt{}, f.submitErr
	}
	return f.receipt, nil
}

func (f *fakeClient) GasPrice(context.Context) (*big.Int, error) {
	f.gasPriceCalls.Add(1)
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeClient) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func (f *fakeClient) called(kind, name string) []recordedCall {
	var out []recordedCall
	for _, c := range f.recorded() {
		if c.Kind == kind && c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

type fakeOracle struct {
	calls atomic.Int32
	usd   decimal.Decimal
	err   error
}

func (o *fakeOracle) Fetch(_ context.Context, coin string) (price.Quote, error) {
	o.calls.Add(1)
	if o.err != nil {
		return price.Quote{}, &price.FetchError{Coin: coin, Err: o.err}
	}
	return price.Quote{Coin: coin, USD: o.usd, FetchedAt: fixedNow}, nil
}

type closeCounter struct {
	closed atomic.Int32
}

func (c *closeCounter) Close() error {
	c.closed.Add(1)
	return nil
}

var errReverted = errors.New("execution reverted")

func testEngine(t *testing.T, opts ...pipeline.Option) *pipeline.Engine {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	return pipeline.New(cost.Default(), append([]pipeline.Option{pipeline.WithLogger(logger)}, opts...)...)
}

func testEnv(t *testing.T, client chain.Client) Env {
	t.Helper()
	return Env{
		Chain:    testChain(),
		Client:   client,
		Operator: operator,
		Quote:    price.Quote{Coin: price.CoinBNB, USD: decimal.NewFromInt(600), FetchedAt: fixedNow},
		GasPrice: gasPrice5G,
		Engine:   testEngine(t),
		Now:      func() time.Time { return fixedNow },
	}
}

func stepNames(r *model.TcoReport) []string {
	out := make([]string, 0, len(r.Steps))
	for _, s := range r.Steps {
		out = append(out, s.Name)
	}
	return out
}
