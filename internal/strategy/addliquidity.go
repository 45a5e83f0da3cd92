package strategy

import (
	"context"

	"github.com/yourorg/tco-estimator/internal/artifacts"
	"github.com/yourorg/tco-estimator/internal/model"
	"github.com/yourorg/tco-estimator/internal/pipeline"
	"github.com/yourorg/tco-estimator/internal/types"
)

// AddLiquidity estimates deploying a DEX, creating a pair, approving both
// operation tokens and adding liquidity.
type AddLiquidity struct {
	base
	dex dex
}

// NewAddLiquidity creates the add-liquidity strategy
func NewAddLiquidity(env Env, src artifacts.Source) *AddLiquidity {
	s := &AddLiquidity{}
	s.setup(env, types.ActionAddLiquidity)
	s.dex = dex{b: &s.base, artifacts: src}
	return s
}

// Steps returns the ordered step list
func (s *AddLiquidity) Steps() []pipeline.Step {
	return []pipeline.Step{
		s.dex.factoryDeployment(),
		s.dex.createPair(),
		s.dex.routerDeployment(),
		s.dex.approval("operationToken1", "operation_token1", s.env.Chain.OperationToken1),
		s.dex.approval("operationToken2", "operation_token2", s.env.Chain.OperationToken2),
		s.dex.addLiquidity(),
	}
}

// Run implements Strategy
func (s *AddLiquidity) Run(ctx context.Context) (*model.TcoReport, error) {
	return s.run(ctx, func(ctx context.Context, session *pipeline.Session) {
		session.Execute(ctx, s.Steps()...)
	})
}
