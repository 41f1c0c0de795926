package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Shivam-Patel-G/blended-math/config"
	"github.com/Shivam-Patel-G/blended-math/core/contracts"
	"github.com/Shivam-Patel-G/blended-math/core/rpcclient"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	network    string
	rpcURL     string
	verbose    bool
	timeout    time.Duration
}

// app carries the resolved configuration into a command.
type app struct {
	opts   *globalOptions
	cfg    *config.Config
	logger *logrus.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{opts: &globalOptions{}}

	root := &cobra.Command{
		Use:           "blended",
		Short:         "Blended Rust/Solidity math toolkit",
		Long:          "blended evaluates sqrt, exp, ln, log2 and log10 through the Solidity and Rust implementations of a blended contract pair, deploys the pair and serves the comparison UI.",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.configPath, "config", "", "path to a YAML config file")
	flags.StringVar(&a.opts.network, "network", "", "network preset (fluent-devnet, fluent-preview, local)")
	flags.StringVar(&a.opts.rpcURL, "rpc", "", "override the network RPC URL")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "debug logging")
	flags.DurationVar(&a.opts.timeout, "timeout", 0, "timeout for a single contract call")

	root.AddCommand(
		newCheckCommand(a),
		newVerifyCommand(a),
		newCalcCommand(a),
		newCompareCommand(a),
		newDeployCommand(a),
		newPatchFrontendCommand(a),
		newServeCommand(a),
		newFixedCommand(),
		newBenchCommand(a),
	)

	return root
}

func (a *app) load() error {
	cfg, err := config.Load(a.opts.configPath)
	if err != nil {
		return err
	}
	if a.opts.network != "" {
		cfg.Network = a.opts.network
	}
	if a.opts.rpcURL != "" {
		cfg.NetworkConfig.RPCURL = a.opts.rpcURL
	}
	if a.opts.timeout > 0 {
		cfg.CallTimeoutMs = int(a.opts.timeout / time.Millisecond)
	}
	if a.opts.verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Resolve(); err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = cfg.NewLogger()
	return nil
}

// dial connects to the configured RPC endpoint with the configured retry
// policy.
func (a *app) dial(ctx context.Context) (*rpcclient.Client, error) {
	return rpcclient.Dial(ctx, a.cfg.NetworkConfig.RPCURL,
		rpcclient.WithLogger(a.logger),
		rpcclient.WithRetry(a.cfg.MaxRetries, a.cfg.RetryDelay()),
	)
}

// calculator returns the contract-backed calculator with the in-process one
// as fallback, or only the in-process one when local is set or no Solidity
// contract is configured. The returned func releases the RPC connection.
func (a *app) calculator(ctx context.Context, local, viaRouter bool) (contracts.Calculator, func(), error) {
	fallback := contracts.NewLocalCalculator()
	if local || a.cfg.SolidityContract == "" {
		if !local {
			a.logger.Warn("No Solidity contract configured, using local calculations")
		}
		return fallback, func() {}, nil
	}

	blended, err := a.cfg.SolidityAddress()
	if err != nil {
		return nil, nil, err
	}
	opts := []contracts.CalcOption{
		contracts.WithCallTimeout(a.cfg.CallTimeout()),
		contracts.WithCalcLogger(a.logger),
	}
	if viaRouter {
		router, err := a.cfg.RustAddress()
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, contracts.WithRouter(router))
	}

	client, err := a.dial(ctx)
	if err != nil {
		return nil, nil, err
	}
	calc, err := contracts.NewContractCalculator(client, blended, opts...)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return contracts.NewFallbackCalculator(calc, fallback, a.logger), client.Close, nil
}
