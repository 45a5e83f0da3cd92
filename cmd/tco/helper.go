package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/tco-estimator/internal/artifacts"
	"github.com/yourorg/tco-estimator/internal/config"
	"github.com/yourorg/tco-estimator/internal/metrics"
	"github.com/yourorg/tco-estimator/internal/strategy"
)

// Helper functions for turning flags and configuration into run options

// buildNftOptions collects the NFT flow selection from flags and config
func buildNftOptions(cfg config.Config, opts cliOptions) (strategy.NftOptions, error) {
	flows, err := strategy.ParseFlows(opts.NftFlows)
	if err != nil {
		return strategy.NftOptions{}, err
	}

	tokenID, err := parseTokenID(opts.BurnTokenID)
	if err != nil {
		return strategy.NftOptions{}, err
	}

	recipients, err := parseRecipients(opts.Recipients)
	if err != nil {
		return strategy.NftOptions{}, err
	}

	nft := strategy.NftOptions{
		Contract:    strings.TrimSpace(cfg.ERC721ContractAddress),
		Flows:       flows,
		BurnTokenID: tokenID,
		Recipients:  recipients,
		Concurrency: cfg.AirdropConcurrency,
	}

	if cfg.NftABIPath != "" {
		parsed, err := artifacts.LoadABI(cfg.NftABIPath)
		if err != nil {
			return strategy.NftOptions{}, fmt.Errorf("NFT_ABI_PATH: %w", err)
		}
		nft.ABI = parsed
	}
	return nft, nil
}

// parseTokenID parses a non-negative decimal token id
func parseTokenID(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	id, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("burn token id %q is not an integer", s)
	}
	if id.Sign() < 0 {
		return nil, fmt.Errorf("burn token id %s is negative", id)
	}
	return id, nil
}

// parseRecipients parses a comma separated address list. Blank entries are
// ignored; an empty list leaves the strategy default in place.
func parseRecipients(s string) ([]common.Address, error) {
	var out []common.Address
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !common.IsHexAddress(part) {
			return nil, fmt.Errorf("recipient %q is not a hex address", part)
		}
		out = append(out, common.HexToAddress(part))
	}
	return out, nil
}

// startMetricsServer serves /metrics on addr until the returned function is
// called
func startMetricsServer(addr string, g prometheus.Gatherer) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logrus.Infof("Serving metrics on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logrus.WithError(err).Warn("Metrics server shutdown failed")
		}
	}
}
