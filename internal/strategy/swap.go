package strategy

import (
	"context"

	"github.com/yourorg/tco-estimator/internal/artifacts"
	"github.com/yourorg/tco-estimator/internal/model"
	"github.com/yourorg/tco-estimator/internal/pipeline"
	"github.com/yourorg/tco-estimator/internal/types"
)

// SwapTokens estimates deploying a DEX, approving the input token and one swap
type SwapTokens struct {
	base
	dex dex
}

// NewSwapTokens creates the swap strategy
func NewSwapTokens(env Env, src artifacts.Source) *SwapTokens {
	s := &SwapTokens{}
	s.setup(env, types.ActionSwapTokens)
	s.dex = dex{b: &s.base, artifacts: src}
	return s
}

// Steps returns the ordered step list
func (s *SwapTokens) Steps() []pipeline.Step {
	return []pipeline.Step{
		s.dex.factoryDeployment(),
		s.dex.createPair(),
		s.dex.routerDeployment(),
		s.dex.approval("operationToken1", "operation_token1", s.env.Chain.OperationToken1),
		s.dex.tokenSwap(),
	}
}

// Run implements Strategy
func (s *SwapTokens) Run(ctx context.Context) (*model.TcoReport, error) {
	return s.run(ctx, func(ctx context.Context, session *pipeline.Session) {
		session.Execute(ctx, s.Steps()...)
	})
}
