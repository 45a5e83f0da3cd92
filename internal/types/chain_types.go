// Package types contains shared type definitions used across multiple packages
package types

import "strings"

// SupportedChain represents a blockchain network the estimator knows about
type SupportedChain string

// Supported blockchain networks
const (
	ChainArbitrum SupportedChain = "arbitrum"
	ChainBase     SupportedChain = "base"
	ChainBSC      SupportedChain = "bsc"
	ChainEthereum SupportedChain = "ethereum"
	ChainHedera   SupportedChain = "hedera"
)

// ParseChain normalises user input into a SupportedChain. It does not check
// membership; the strategy factory rejects unknown identifiers.
func ParseChain(s string) SupportedChain {
	return SupportedChain(strings.ToLower(strings.TrimSpace(s)))
}

func (c SupportedChain) String() string {
	return string(c)
}

// Action is a high-level operation whose cost is estimated
type Action string

// Supported actions
const (
	ActionAddLiquidity Action = "add-liquidity"
	ActionSwapTokens   Action = "swap"
	ActionNftActions   Action = "nft"
)

// ParseAction normalises user input into an Action
func ParseAction(s string) Action {
	return Action(strings.ToLower(strings.TrimSpace(s)))
}

// Title returns the human readable action name used in reports
func (a Action) Title() string {
	switch a {
	case ActionAddLiquidity:
		return "Add Liquidity"
	case ActionSwapTokens:
		return "Swap Tokens"
	case ActionNftActions:
		return "NFT Actions"
	default:
		return string(a)
	}
}

// PlaceholderAddress marks an address that has not been filled in yet. It is
// never a valid call or deployment target.
const PlaceholderAddress = "0x...placeholder"

// TokenConfig references an ERC-20 token on a chain
type TokenConfig struct {
	Address  string `json:"address" toml:"address"`
	Decimals uint8  `json:"decimals" toml:"decimals"`
}

// ChainConfig holds the static parameters of one network
type ChainConfig struct {
	Name           SupportedChain `json:"name" toml:"name"`
	ChainID        uint64         `json:"chain_id" toml:"chain_id"`
	RPCEndpoint    string         `json:"rpc_endpoint" toml:"rpc_endpoint"`
	NativeSymbol   string         `json:"native_symbol" toml:"native_symbol"`
	NativeDecimals uint8          `json:"native_decimals" toml:"native_decimals"`

	// DEX contracts
	Factory string `json:"factory" toml:"factory"`
	Router  string `json:"router" toml:"router"`

	WETH TokenConfig `json:"weth" toml:"weth"`

	// Tokens used for approvals, swaps and liquidity
	OperationToken1 TokenConfig `json:"operation_token1" toml:"operation_token1"`
	OperationToken2 TokenConfig `json:"operation_token2" toml:"operation_token2"`

	// Tokens used for pair creation
	NewToken1 TokenConfig `json:"new_token1" toml:"new_token1"`
	NewToken2 TokenConfig `json:"new_token2" toml:"new_token2"`
}
