// Package artifacts loads compiled contract ABIs and bytecode.
package artifacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sirupsen/logrus"
)

// Relative artifact locations inside a Hardhat artifacts directory
const (
	FactoryArtifact = "PancakeFactory.sol/PancakeFactory.json"
	RouterArtifact  = "PancakeRouter.sol/PancakeRouter.json"
)

const erc20ABI = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

const erc721ABI = `[
  {"type":"function","name":"safeMint","stateMutability":"nonpayable",
   "inputs":[{"name":"to","type":"address"}],"outputs":[]},
  {"type":"function","name":"burn","stateMutability":"nonpayable",
   "inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[]}
]`

// Artifact is a compiled contract
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	Bytecode     []byte
}

type hardhatArtifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// Parse decodes a Hardhat artifact ({contractName, abi, bytecode})
func Parse(data []byte) (Artifact, error) {
	var raw hardhatArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return Artifact{}, fmt.Errorf("failed to decode artifact: %w", err)
	}
	if len(raw.ABI) == 0 {
		return Artifact{}, fmt.Errorf("artifact %q has no abi", raw.ContractName)
	}

	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to parse abi of %q: %w", raw.ContractName, err)
	}

	code := strings.TrimSpace(raw.Bytecode)
	if code == "" || code == "0x" {
		return Artifact{}, fmt.Errorf("artifact %q has no bytecode", raw.ContractName)
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	bytecode, err := hexutil.Decode(code)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to decode bytecode of %q: %w", raw.ContractName, err)
	}

	return Artifact{ContractName: raw.ContractName, ABI: parsed, Bytecode: bytecode}, nil
}

// Load reads and parses an artifact file
func Load(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to read artifact: %w", err)
	}
	a, err := Parse(data)
	if err != nil {
		return Artifact{}, fmt.Errorf("%s: %w", path, err)
	}
	logrus.WithFields(logrus.Fields{
		"contract": a.ContractName,
		"path":     path,
		"bytes":    len(a.Bytecode),
	}).Debug("Loaded contract artifact")
	return a, nil
}

// Source provides the DEX contracts deployed by the liquidity and swap flows
type Source interface {
	Factory() (Artifact, error)
	Router() (Artifact, error)
}

// Dir is a Source backed by a Hardhat artifacts directory. Files are read on
// every call so a missing artifact only fails the step that needs it.
type Dir string

// Factory implements Source
func (d Dir) Factory() (Artifact, error) {
	return Load(filepath.Join(string(d), FactoryArtifact))
}

// Router implements Source
func (d Dir) Router() (Artifact, error) {
	return Load(filepath.Join(string(d), RouterArtifact))
}

// LoadABI reads a bare ABI file. Both a plain JSON array and an object with
// an "abi" field are accepted.
func LoadABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read abi: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return abi.ABI{}, fmt.Errorf("failed to decode abi file: %w", err)
		}
		trimmed = wrapper.ABI
	}

	parsed, err := abi.JSON(bytes.NewReader(trimmed))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse abi %s: %w", path, err)
	}
	return parsed, nil
}

// ERC20 returns the token ABI used for approvals
func ERC20() abi.ABI {
	return mustParse(erc20ABI)
}

// ERC721 returns the minimal NFT ABI with safeMint and burn
func ERC721() abi.ABI {
	return mustParse(erc721ABI)
}

func mustParse(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("embedded abi: %v", err))
	}
	return parsed
}
