package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/tco-estimator/internal/types"
)

// ChainsFile is the on-disk layout of a chain table override
type ChainsFile struct {
	Chains []types.ChainConfig `json:"chains" toml:"chains"`
}

func token(address string, decimals uint8) types.TokenConfig {
	return types.TokenConfig{Address: address, Decimals: decimals}
}

// DefaultChains returns the built-in network table. Each call returns a fresh
// map so callers may modify it.
func DefaultChains() map[types.SupportedChain]types.ChainConfig {
	placeholder := types.PlaceholderAddress

	return map[types.SupportedChain]types.ChainConfig{
		types.ChainBSC: {
			Name:            types.ChainBSC,
			ChainID:         56,
			RPCEndpoint:     "https://bsc-rpc.publicnode.com",
			NativeSymbol:    "BNB",
			NativeDecimals:  18,
			Factory:         "0xcA143Ce32Fe78f1f7019d7d551a6402fC5350c73",
			Router:          "0x10ED43C718714eb63d5aA57B78B54704E256024E",
			WETH:            token("0x4DB5a66E937A9F4473fA95b1cAF1d1E1D62E29EA", 18),
			OperationToken1: token("0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", 18),
			OperationToken2: token("0x0E09FaBB73Bd3Ade0a17ECC321fD13a19e81cE82", 18),
			NewToken1:       token("0x9D173E6c594f479B4d47001F8E6A95A7aDDa42bC", 18),
			NewToken2:       token("0xfb5B838b6cfEEdC2873aB27866079AC55363D37E", 9),
		},
		types.ChainBase: {
			Name:            types.ChainBase,
			ChainID:         8453,
			RPCEndpoint:     "https://mainnet.base.org",
			NativeSymbol:    "ETH",
			NativeDecimals:  18,
			Factory:         "0x02a84c1b3BBD7401a5f7fa98a384EBC70bB5749E",
			Router:          "0x8cFe327CEc66d1C090Dd72bd0FF11d690C33a2Eb",
			WETH:            token("0x4200000000000000000000000000000000000006", 18),
			OperationToken1: token("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", 6),
			OperationToken2: token("0x3055913c90Fcc1A6CE9a358911721eEb942013A1", 18),
			NewToken1:       token("0xA202B2b7B4D2fe56BF81492FFDDA657FE512De07", 18),
			NewToken2:       token("0xc1512B7023A97d54f8Dd757B1F84e132297CA0D7", 18),
		},
		types.ChainArbitrum: {
			Name:            types.ChainArbitrum,
			ChainID:         42161,
			RPCEndpoint:     "https://arb1.arbitrum.io/rpc",
			NativeSymbol:    "ETH",
			NativeDecimals:  18,
			Factory:         "0x02a84c1b3BBD7401a5f7fa98a384EBC70bB5749E",
			Router:          "0x8cFe327CEc66d1C090Dd72bd0FF11d690C33a2Eb",
			WETH:            token("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", 18),
			OperationToken1: token("0xaf88d065e77c8cC2239327C5EDb3A432268e5831", 6),
			OperationToken2: token("0x912CE59144191C1204E64559FE8253a0e49E6548", 18),
			NewToken1:       token("0xCBeb19549054CC0a6257A77736FC78C367216cE7", 5),
			NewToken2:       token("0x25d887Ce7a35172C62FeBFD67a1856F20FaEbB00", 18),
		},
		types.ChainEthereum: {
			Name:            types.ChainEthereum,
			ChainID:         1,
			RPCEndpoint:     "https://ethereum-rpc.publicnode.com",
			NativeSymbol:    "ETH",
			NativeDecimals:  18,
			Factory:         "0x1097053Fd2ea711dad45caCcc45EfF7548fCB362",
			Router:          "0xEfF92A263d31888d860bD50809A8D171709b7b1c",
			WETH:            token("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", 18),
			OperationToken1: token("0x514910771AF9Ca656af840dff83E8264EcF986CA", 18),
			OperationToken2: token("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6),
			NewToken1:       token("0x8236a87084f8B84306f72007F36F2618A5634494", 8),
			NewToken2:       token("0x4a220E6096B25EADb88358cb44068A3248254675", 18),
		},
		// Hedera testnet has no DEX deployment yet; only the NFT flows are usable.
		types.ChainHedera: {
			Name:            types.ChainHedera,
			ChainID:         296,
			RPCEndpoint:     "https://testnet.hashio.io/api",
			NativeSymbol:    "HBAR",
			NativeDecimals:  18,
			Factory:         placeholder,
			Router:          placeholder,
			WETH:            token(placeholder, 8),
			OperationToken1: token(placeholder, 8),
			OperationToken2: token(placeholder, 8),
			NewToken1:       token(placeholder, 8),
			NewToken2:       token(placeholder, 8),
		},
	}
}

// LoadChains returns the default table with the entries of path applied on
// top. Entries replace defaults by name; an empty path returns the defaults.
func LoadChains(path string) (map[types.SupportedChain]types.ChainConfig, error) {
	chains := DefaultChains()
	if path == "" {
		return chains, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain config file: %w", err)
	}

	var file ChainsFile
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	}

	if len(file.Chains) == 0 {
		return nil, fmt.Errorf("no chains in %s", path)
	}

	for i, c := range file.Chains {
		name := types.ParseChain(string(c.Name))
		if name == "" {
			return nil, fmt.Errorf("chain entry %d in %s has no name", i, path)
		}
		c.Name = name
		chains[name] = c
		logrus.WithFields(logrus.Fields{
			"chain":    name,
			"chain_id": c.ChainID,
			"file":     path,
		}).Debug("Loaded chain override")
	}

	return chains, nil
}

// ChainNames returns the table keys in sorted order
func ChainNames(chains map[types.SupportedChain]types.ChainConfig) []types.SupportedChain {
	names := make([]types.SupportedChain, 0, len(chains))
	for name := range chains {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
