package strategy

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/tco-estimator/internal/artifacts"
	"github.com/yourorg/tco-estimator/internal/chain"
	"github.com/yourorg/tco-estimator/internal/cost"
	"github.com/yourorg/tco-estimator/internal/model"
	"github.com/yourorg/tco-estimator/internal/pipeline"
	"github.com/yourorg/tco-estimator/internal/types"
	"github.com/yourorg/tco-estimator/internal/validation"
)

// Report step names shared by the DEX flows
const (
	StepFactoryDeployment = "Factory Deployment"
	StepCreatePair        = "Create Pair"
	StepRouterDeployment  = "Router Deployment"
	StepAddLiquidity      = "Add Liquidity"
	StepTokenSwap         = "Token Swap"
)

// Token amounts used by the DEX flows, in whole token units
const (
	approvalAmount  = "0.1"
	swapAmount      = "0.1"
	liquidityAmount = "0.01"
)

// Deadlines for router calls
const (
	addLiquidityDeadline = 20 * time.Minute
	swapDeadline         = 10 * time.Minute
)

// ApprovalStepName is the report name of the approval for a token label
func ApprovalStepName(label string) string {
	return fmt.Sprintf("Token Approval (%s)", label)
}

// dex builds the steps shared by the liquidity and swap flows
type dex struct {
	b         *base
	artifacts artifacts.Source
}

func (d dex) cfg() types.ChainConfig {
	return d.b.env.Chain
}

func (d dex) address(field, value string) (common.Address, error) {
	return validation.Address(d.cfg().Name, field, value)
}

func (d dex) token(field string, t types.TokenConfig) (common.Address, error) {
	return validation.Token(d.cfg().Name, field, t)
}

func (d dex) factoryDeployment() pipeline.Step {
	return pipeline.Step{Name: StepFactoryDeployment, Kind: model.StepSimulation, Run: func(ctx context.Context) (pipeline.Outcome, error) {
		factory, err := d.artifacts.Factory()
		if err != nil {
			return pipeline.Outcome{}, err
		}
		gas, err := d.b.env.Client.EstimateDeploymentGas(ctx, d.b.env.Operator, chain.Deployment{
			Name:     "factory",
			ABI:      factory.ABI,
			Bytecode: factory.Bytecode,
			Args:     []interface{}{d.b.env.Operator},
		})
		return pipeline.Outcome{GasUsed: gas}, err
	}}
}

func (d dex) createPair() pipeline.Step {
	return pipeline.Step{Name: StepCreatePair, Kind: model.StepSimulation, Run: func(ctx context.Context) (pipeline.Outcome, error) {
		factoryAddr, err := d.address("factory", d.cfg().Factory)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		tokenA, err := d.token("new_token1", d.cfg().NewToken1)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		tokenB, err := d.token("new_token2", d.cfg().NewToken2)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		factory, err := d.artifacts.Factory()
		if err != nil {
			return pipeline.Outcome{}, err
		}

		gas, err := d.b.env.Client.EstimateCallGas(ctx, d.b.env.Operator, chain.Call{
			To:     factoryAddr,
			ABI:    factory.ABI,
			Method: "createPair",
			Args:   []interface{}{tokenA, tokenB},
		})
		return pipeline.Outcome{GasUsed: gas}, err
	}}
}

func (d dex) routerDeployment() pipeline.Step {
	return pipeline.Step{Name: StepRouterDeployment, Kind: model.StepSimulation, Run: func(ctx context.Context) (pipeline.Outcome, error) {
		factoryAddr, err := d.address("factory", d.cfg().Factory)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		weth, err := d.token("weth", d.cfg().WETH)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		router, err := d.artifacts.Router()
		if err != nil {
			return pipeline.Outcome{}, err
		}

		gas, err := d.b.env.Client.EstimateDeploymentGas(ctx, d.b.env.Operator, chain.Deployment{
			Name:     "router",
			ABI:      router.ABI,
			Bytecode: router.Bytecode,
			Args:     []interface{}{factoryAddr, weth},
		})
		return pipeline.Outcome{GasUsed: gas}, err
	}}
}

// approval is the one real transaction of the DEX flows. It is attempted at
// most once per run and never retried.
// approval is reported under label and validated under the config field name
func (d dex) approval(label, field string, t types.TokenConfig) pipeline.Step {
	return pipeline.Step{Name: ApprovalStepName(label), Kind: model.StepTransaction, Run: func(ctx context.Context) (pipeline.Outcome, error) {
		tokenAddr, err := d.token(field, t)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		router, err := d.address("router", d.cfg().Router)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		amount, err := cost.ScaleUnits(approvalAmount, t.Decimals)
		if err != nil {
			return pipeline.Outcome{}, err
		}

		receipt, err := d.b.env.Client.SubmitAndWait(ctx, d.b.env.Operator, chain.Call{
			To:     tokenAddr,
			ABI:    artifacts.ERC20(),
			Method: "approve",
			Args:   []interface{}{router, amount},
		})
		if err != nil {
			return pipeline.Outcome{}, err
		}
		return pipeline.Outcome{
			GasUsed:  receipt.GasUsed,
			GasPrice: receipt.EffectiveGasPrice,
			TxHash:   receipt.TxHash.Hex(),
		}, nil
	}}
}

func (d dex) addLiquidity() pipeline.Step {
	return pipeline.Step{Name: StepAddLiquidity, Kind: model.StepSimulation, Run: func(ctx context.Context) (pipeline.Outcome, error) {
		routerAddr, err := d.address("router", d.cfg().Router)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		tokenA, err := d.token("operation_token1", d.cfg().OperationToken1)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		tokenB, err := d.token("operation_token2", d.cfg().OperationToken2)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		amountA, err := cost.ScaleUnits(liquidityAmount, d.cfg().OperationToken1.Decimals)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		amountB, err := cost.ScaleUnits(liquidityAmount, d.cfg().OperationToken2.Decimals)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		router, err := d.artifacts.Router()
		if err != nil {
			return pipeline.Outcome{}, err
		}

		// minimum outputs are zero so price movement cannot fail the simulation
		gas, err := d.b.env.Client.EstimateCallGas(ctx, d.b.env.Operator, chain.Call{
			To:     routerAddr,
			ABI:    router.ABI,
			Method: "addLiquidity",
			Args: []interface{}{
				tokenA, tokenB,
				amountA, amountB,
				new(big.Int), new(big.Int),
				d.b.env.Operator,
				d.b.deadline(addLiquidityDeadline),
			},
		})
		return pipeline.Outcome{GasUsed: gas}, err
	}}
}

func (d dex) tokenSwap() pipeline.Step {
	return pipeline.Step{Name: StepTokenSwap, Kind: model.StepSimulation, Run: func(ctx context.Context) (pipeline.Outcome, error) {
		routerAddr, err := d.address("router", d.cfg().Router)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		tokenIn, err := d.token("operation_token1", d.cfg().OperationToken1)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		tokenOut, err := d.token("operation_token2", d.cfg().OperationToken2)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		amountIn, err := cost.ScaleUnits(swapAmount, d.cfg().OperationToken1.Decimals)
		if err != nil {
			return pipeline.Outcome{}, err
		}
		router, err := d.artifacts.Router()
		if err != nil {
			return pipeline.Outcome{}, err
		}

		gas, err := d.b.env.Client.EstimateCallGas(ctx, d.b.env.Operator, chain.Call{
			To:     routerAddr,
			ABI:    router.ABI,
			Method: "swapExactTokensForTokens",
			Args: []interface{}{
				amountIn,
				new(big.Int),
				[]common.Address{tokenIn, tokenOut},
				d.b.env.Operator,
				d.b.deadline(swapDeadline),
			},
		})
		return pipeline.Outcome{GasUsed: gas}, err
	}}
}
