// Package wallet holds the operator key used to sign the transactions the
// estimator actually submits.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
)

// ErrMissingKey is returned when no private key is configured
var ErrMissingKey = errors.New("private key not configured")

// Signer wraps the operator's secp256k1 key
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner parses a hex encoded private key, with or without 0x prefix
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, ErrMissingKey
	}

	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	s := &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
	logrus.Debugf("Operator signer loaded for %s", s.address.Hex())
	return s, nil
}

// Address returns the operator address derived from the key
func (s *Signer) Address() common.Address {
	return s.address
}

// Key returns the private key for transaction signing
func (s *Signer) Key() *ecdsa.PrivateKey {
	return s.key
}

// CheckAddress verifies that an explicitly configured operator address
// matches the key. An empty value is accepted.
func (s *Signer) CheckAddress(configured string) error {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		return nil
	}
	if !common.IsHexAddress(configured) {
		return fmt.Errorf("operator address %q is not a hex address", configured)
	}
	if common.HexToAddress(configured) != s.address {
		return fmt.Errorf("operator address %s does not match private key address %s", configured, s.address.Hex())
	}
	return nil
}
