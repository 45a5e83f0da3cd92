package strategy

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/tco-estimator/internal/artifacts"
	"github.com/yourorg/tco-estimator/internal/chain"
	"github.com/yourorg/tco-estimator/internal/model"
	"github.com/yourorg/tco-estimator/internal/pipeline"
	"github.com/yourorg/tco-estimator/internal/types"
	"github.com/yourorg/tco-estimator/internal/validation"
)

// NftFlow selects one NFT sub-flow
type NftFlow string

// NFT sub-flows
const (
	FlowMint    NftFlow = "mint"
	FlowBurn    NftFlow = "burn"
	FlowAirdrop NftFlow = "airdrop"
)

// AllFlows is used when no flow is selected
var AllFlows = []NftFlow{FlowMint, FlowBurn, FlowAirdrop}

// NFT step names
const (
	StepMintNFT = "Mint NFT"
	StepBurnNFT = "Burn NFT"
)

// DefaultAirdropConcurrency bounds airdrop estimates when no limit is set
const DefaultAirdropConcurrency = 4

// ParseFlows parses a comma separated flow list. An empty string or "all"
// selects every flow.
func ParseFlows(s string) ([]NftFlow, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "all" {
		return append([]NftFlow(nil), AllFlows...), nil
	}

	var flows []NftFlow
	seen := make(map[NftFlow]bool)
	for _, part := range strings.Split(s, ",") {
		f := NftFlow(strings.TrimSpace(part))
		switch f {
		case FlowMint, FlowBurn, FlowAirdrop:
		case "":
			continue
		default:
			return nil, fmt.Errorf("unknown nft flow %q", part)
		}
		if !seen[f] {
			seen[f] = true
			flows = append(flows, f)
		}
	}
	if len(flows) == 0 {
		return nil, fmt.Errorf("no nft flow in %q", s)
	}
	return flows, nil
}

// AirdropStepName is the report name of the i-th (1-based) airdrop mint
func AirdropStepName(i int, recipient common.Address) string {
	return fmt.Sprintf("Airdrop Mint #%d (%s)", i, recipient.Hex())
}

// NftOptions configures the NFT strategy
type NftOptions struct {
	// Contract is the deployed ERC-721 address
	Contract string

	// ABI of the contract; the embedded minimal ERC-721 ABI when empty
	ABI abi.ABI

	Flows       []NftFlow
	BurnTokenID *big.Int

	// Recipients of the airdrop; the operator alone when empty
	Recipients []common.Address

	Concurrency int
}

// NftActions estimates minting, burning and airdropping tokens of an
// existing ERC-721 contract. All calls are simulations.
type NftActions struct {
	base
	opts NftOptions
}

// NewNftActions creates the NFT strategy
func NewNftActions(env Env, opts NftOptions) *NftActions {
	if len(opts.ABI.Methods) == 0 {
		opts.ABI = artifacts.ERC721()
	}
	if len(opts.Flows) == 0 {
		opts.Flows = append([]NftFlow(nil), AllFlows...)
	}
	if opts.BurnTokenID == nil {
		opts.BurnTokenID = new(big.Int)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultAirdropConcurrency
	}

	s := &NftActions{opts: opts}
	s.setup(env, types.ActionNftActions)
	if len(s.opts.Recipients) == 0 {
		s.opts.Recipients = []common.Address{s.env.Operator}
	}
	return s
}

// Run implements Strategy
func (s *NftActions) Run(ctx context.Context) (*model.TcoReport, error) {
	return s.run(ctx, func(ctx context.Context, session *pipeline.Session) {
		for _, flow := range s.opts.Flows {
			switch flow {
			case FlowMint:
				session.Execute(ctx, s.mint())
			case FlowBurn:
				session.Execute(ctx, s.burn())
			case FlowAirdrop:
				session.ExecuteParallel(ctx, s.airdrop(), s.opts.Concurrency)
			}
		}
	})
}

func (s *NftActions) contract() (common.Address, error) {
	return validation.Address(s.env.Chain.Name, "erc721_contract", s.opts.Contract)
}

func (s *NftActions) estimate(ctx context.Context, method string, args ...interface{}) (pipeline.Outcome, error) {
	to, err := s.contract()
	if err != nil {
		return pipeline.Outcome{}, err
	}
	gas, err := s.env.Client.EstimateCallGas(ctx, s.env.Operator, chain.Call{
		To:     to,
		ABI:    s.opts.ABI,
		Method: method,
		Args:   args,
	})
	return pipeline.Outcome{GasUsed: gas}, err
}

func (s *NftActions) mint() pipeline.Step {
	return pipeline.Step{Name: StepMintNFT, Kind: model.StepSimulation, Run: func(ctx context.Context) (pipeline.Outcome, error) {
		return s.estimate(ctx, "safeMint", s.env.Operator)
	}}
}

func (s *NftActions) burn() pipeline.Step {
	return pipeline.Step{Name: StepBurnNFT, Kind: model.StepSimulation, Run: func(ctx context.Context) (pipeline.Outcome, error) {
		if s.opts.BurnTokenID.Sign() < 0 {
			return pipeline.Outcome{}, fmt.Errorf("burn token id %s is negative", s.opts.BurnTokenID)
		}
		return s.estimate(ctx, "burn", new(big.Int).Set(s.opts.BurnTokenID))
	}}
}

func (s *NftActions) airdrop() []pipeline.Step {
	steps := make([]pipeline.Step, len(s.opts.Recipients))
	for i, recipient := range s.opts.Recipients {
		steps[i] = pipeline.Step{Name: AirdropStepName(i+1, recipient), Kind: model.StepSimulation, Run: func(ctx context.Context) (pipeline.Outcome, error) {
			return s.estimate(ctx, "safeMint", recipient)
		}}
	}
	return steps
}
