package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

// newRetryClient creates the HTTP transport for JSON-RPC requests
func newRetryClient(timeout time.Duration) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	if timeout > 0 {
		c.HTTPClient.Timeout = timeout
	}
	return c
}

// Dial connects to an RPC endpoint and returns an adapter that owns the
// connection. Close releases it.
func Dial(ctx context.Context, endpoint string, key *ecdsa.PrivateKey, timeout time.Duration, opts Options) (*EVMClient, error) {
	rpcClient, err := rpc.DialOptions(ctx, endpoint, rpc.WithHTTPClient(newRetryClient(timeout).StandardClient()))
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}

	eth := ethclient.NewClient(rpcClient)
	c := NewEVMClient(eth, key, opts)
	c.closer = eth.Close

	logrus.WithFields(logrus.Fields{
		"endpoint":   endpoint,
		"rate_limit": opts.RateLimit,
	}).Debug("Connected to RPC endpoint")
	return c, nil
}
