// Package main is the entry point of the TCO estimator. It estimates the gas
// and USD cost of deploying a DEX, providing liquidity, swapping tokens and
// minting NFTs on a selected EVM network.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/tco-estimator/internal/artifacts"
	"github.com/yourorg/tco-estimator/internal/chain"
	"github.com/yourorg/tco-estimator/internal/config"
	"github.com/yourorg/tco-estimator/internal/cost"
	"github.com/yourorg/tco-estimator/internal/metrics"
	tcootel "github.com/yourorg/tco-estimator/internal/otel"
	"github.com/yourorg/tco-estimator/internal/pipeline"
	"github.com/yourorg/tco-estimator/internal/price"
	"github.com/yourorg/tco-estimator/internal/strategy"
	"github.com/yourorg/tco-estimator/internal/types"
	"github.com/yourorg/tco-estimator/internal/validation"
	"github.com/yourorg/tco-estimator/internal/wallet"
)

// cliOptions holds the command line selection of one run
type cliOptions struct {
	Chain       types.SupportedChain
	Action      types.Action
	NftFlows    string
	BurnTokenID string
	Recipients  string
	Format      string
}

func main() {
	// Configure logging
	setupLogging()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logrus.WithError(err).Error("Invalid arguments")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.Load(), opts, os.Stdout); err != nil {
		logrus.WithError(err).Error("Estimation failed")
		stop()
		os.Exit(1)
	}
}

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	// reports go to stdout
	logrus.SetOutput(os.Stderr)

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Debug("Logging configured")
}

func parseFlags(args []string, output io.Writer) (cliOptions, error) {
	var (
		opts   cliOptions
		chainF string
		action string
	)

	fs := flag.NewFlagSet("tco", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&chainF, "chain", "", "network to estimate on (arbitrum, base, bsc, ethereum, hedera)")
	fs.StringVar(&action, "action", "", "action to estimate (add-liquidity, swap, nft)")
	fs.StringVar(&opts.NftFlows, "nft-flows", "all", "comma separated nft flows (mint, burn, airdrop)")
	fs.StringVar(&opts.BurnTokenID, "burn-token-id", "0", "token id burned by the burn flow")
	fs.StringVar(&opts.Recipients, "recipients", "", "comma separated airdrop recipients, defaults to the operator")
	fs.StringVar(&opts.Format, "format", formatText, "report format (text, json)")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, err
	}

	opts.Chain = types.ParseChain(chainF)
	opts.Action = types.ParseAction(action)
	opts.Format = strings.ToLower(strings.TrimSpace(opts.Format))

	if opts.Chain == "" {
		return cliOptions{}, errors.New("-chain is required")
	}
	if opts.Action == "" {
		return cliOptions{}, errors.New("-action is required")
	}
	if opts.Format != formatText && opts.Format != formatJSON {
		return cliOptions{}, fmt.Errorf("unknown format %q", opts.Format)
	}
	return opts, nil
}

// run wires the estimator from cfg, runs one strategy and writes the report
func run(ctx context.Context, cfg config.Config, opts cliOptions, out io.Writer) error {
	signer, err := wallet.NewSigner(cfg.PrivateKey)
	if err != nil {
		return fmt.Errorf("PRIVATE_KEY: %w", err)
	}
	if err := signer.CheckAddress(cfg.OperatorAddress); err != nil {
		return err
	}

	chains, err := config.LoadChains(cfg.ChainsFile)
	if err != nil {
		return err
	}

	rounding, err := cost.ParseRounding(cfg.USDRounding)
	if err != nil {
		return err
	}
	calc, err := cost.NewCalculator(int32(cfg.USDPrecision), rounding)
	if err != nil {
		return err
	}
	policy, err := pipeline.ParseFailurePolicy(cfg.FailurePolicy)
	if err != nil {
		return err
	}

	var nftOpts strategy.NftOptions
	if opts.Action == types.ActionNftActions {
		if nftOpts, err = buildNftOptions(cfg, opts); err != nil {
			return err
		}
		if _, err := validation.Address(opts.Chain, "erc721_contract", nftOpts.Contract); err != nil {
			return fmt.Errorf("ERC721_CONTRACT_ADDRESS: %w", err)
		}
	}

	shutdownTracer := tcootel.InitTracer(cfg.OtelEndpoint)
	defer shutdownTracer()

	reg := prometheus.NewRegistry()
	recorder := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		stopMetrics := startMetricsServer(cfg.MetricsAddr, reg)
		defer stopMetrics()
	}

	logger := logrus.StandardLogger()
	engine := pipeline.New(calc,
		pipeline.WithPolicy(policy),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(recorder),
	)

	rpcOpts := chain.DefaultOptions()
	rpcOpts.RateLimit = cfg.RPCRateLimit
	rpcOpts.RateBurst = cfg.RPCRateBurst
	rpcOpts.ReceiptTimeout = cfg.ReceiptTimeout

	dial := func(ctx context.Context, c types.ChainConfig) (chain.Client, io.Closer, error) {
		client, err := chain.Dial(ctx, c.RPCEndpoint, signer.Key(), cfg.RPCTimeout, rpcOpts)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}

	factory := strategy.NewFactory(
		chains,
		price.NewCoinGeckoClient(cfg.PriceAPIURL, cfg.PriceAPIKey, cfg.PriceMaxRetries),
		dial,
		signer.Address(),
		artifacts.Dir(cfg.ArtifactsPath),
		strategy.WithEngine(engine),
		strategy.WithFactoryMetrics(recorder),
		strategy.WithFactoryLogger(logger),
	)

	s, err := factory.Create(ctx, opts.Chain, opts.Action, strategy.Options{Nft: nftOpts})
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close strategy")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"strategy": s.Name(),
		"operator": signer.Address().Hex(),
	}).Info("Running estimation")

	report, runErr := s.Run(ctx)
	if report != nil {
		if err := renderReport(out, report, opts.Format, cfg.ShowTxHashes); err != nil {
			return err
		}
	}
	return runErr
}
