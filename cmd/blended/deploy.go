package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/Shivam-Patel-G/blended-math/core/audit"
	"github.com/Shivam-Patel-G/blended-math/core/deploy"
	"github.com/Shivam-Patel-G/blended-math/core/fixedpoint"
	"github.com/Shivam-Patel-G/blended-math/core/frontend"
	"github.com/Shivam-Patel-G/blended-math/core/registry"
)

type deployOptions struct {
	rustArtifact     string
	solidityArtifact string
	soliditySource   string
	solidityContract string
	outDir           string
	patchFrontend    bool
}

func newDeployCommand(a *app) *cobra.Command {
	opts := &deployOptions{}
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the Rust router, then the Solidity contract pointing at it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rust, solidity, err := opts.artifacts(ctx)
			if err != nil {
				return err
			}

			client, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			if _, err := client.CheckConnection(ctx); err != nil {
				return err
			}
			backend, ok := client.Backend().(deploy.Backend)
			if !ok {
				return errors.New("rpc backend cannot send transactions")
			}

			d, err := a.runDeploy(ctx, cmd.OutOrStdout(), backend, rust, solidity, opts)
			if err != nil {
				return err
			}

			if !opts.patchFrontend {
				return nil
			}
			return a.patchFiles(cmd.OutOrStdout(), a.cfg.FrontendFiles, frontend.Addresses{
				Rust:     common.HexToAddress(d.RustAddress),
				Solidity: common.HexToAddress(d.SolidityAddress),
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.rustArtifact, "rust-artifact", "rust/target/wasm32-unknown-unknown/release/prbmath.wasm", "compiled Rust router (.wasm, or hex .bin)")
	flags.StringVar(&opts.solidityArtifact, "solidity-artifact", "", "precompiled Solidity bytecode (.bin); skips solc")
	flags.StringVar(&opts.soliditySource, "solidity-source", "deployment/prbMathBlended.sol", "Solidity source compiled with solc")
	flags.StringVar(&opts.solidityContract, "solidity-contract", "prbMathBlended", "contract name inside the Solidity source")
	flags.StringVar(&opts.outDir, "out", ".", "directory for the result and summary files")
	flags.BoolVar(&opts.patchFrontend, "patch-frontend", false, "rewrite the configured frontend files with the new addresses")
	return cmd
}

func (o *deployOptions) artifacts(ctx context.Context) (*deploy.Artifact, *deploy.Artifact, error) {
	rust, err := deploy.LoadArtifact(o.rustArtifact)
	if err != nil {
		return nil, nil, fmt.Errorf("rust artifact: %w", err)
	}

	if o.solidityArtifact != "" {
		solidity, err := deploy.LoadArtifact(o.solidityArtifact)
		if err != nil {
			return nil, nil, fmt.Errorf("solidity artifact: %w", err)
		}
		return rust, solidity, nil
	}

	solidity, err := deploy.NewCompiler().CompileContract(ctx, o.solidityContract, o.soliditySource)
	if err != nil {
		return nil, nil, err
	}
	return rust, solidity, nil
}

// runDeploy deploys the pair through backend and records the outcome in the
// registry, the audit log and the result files.
func (a *app) runDeploy(ctx context.Context, out io.Writer, backend deploy.Backend, rust, solidity *deploy.Artifact, opts *deployOptions) (*registry.Deployment, error) {
	if a.cfg.PrivateKey == "" {
		return nil, deploy.ErrNoKey
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(a.cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	deployer, err := deploy.NewDeployer(backend, key,
		deploy.WithGasLimit(a.cfg.GasLimit),
		deploy.WithLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}

	balance, err := deployer.Balance(ctx)
	if err != nil {
		return nil, err
	}
	printField(out, "deployer", deployer.From().Hex())
	printField(out, "balance", fixedpoint.FormatUnits(balance, 18)+" "+a.cfg.NetworkConfig.CurrencySymbol)
	if balance.Sign() == 0 {
		printWarn(out, "Deployer has no balance, transactions will likely fail")
	}

	pair, err := deploy.DeployPair(ctx, deployer, rust, solidity)
	if err != nil {
		return nil, err
	}

	d := &registry.Deployment{
		Network:         a.cfg.Network,
		ChainID:         a.cfg.NetworkConfig.ChainID,
		RustAddress:     pair.Rust.Address.Hex(),
		SolidityAddress: pair.Solidity.Address.Hex(),
		RustTxHash:      pair.Rust.TxHash.Hex(),
		SolidityTxHash:  pair.Solidity.TxHash.Hex(),
		Deployer:        pair.Deployer.Hex(),
	}

	store, err := registry.Open(a.cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if err := store.Save(d); err != nil {
		return nil, err
	}

	auditLog, err := audit.Open(a.cfg.AuditLogDir, a.cfg.LogLevel)
	if err != nil {
		a.logger.WithError(err).Warn("Audit log unavailable")
	}
	auditLog.Deployment(d)
	auditLog.Close()

	if err := registry.WriteResult(filepath.Join(opts.outDir, registry.ResultFile), d); err != nil {
		return nil, err
	}
	summary := registry.NewSummary(d, a.cfg.NetworkConfig)
	if err := registry.WriteSummary(filepath.Join(opts.outDir, registry.SummaryFile), summary); err != nil {
		return nil, err
	}

	for _, r := range []*deploy.Receipt{pair.Rust, pair.Solidity} {
		printOK(out, "%s deployed at %s", r.Name, r.Address.Hex())
		printField(out, "tx", r.TxHash.Hex())
		printField(out, "block", r.BlockNumber)
		printField(out, "gas used", r.GasUsed)
		if link := a.cfg.NetworkConfig.ExplorerURL(r.Address.Hex()); link != "" {
			printField(out, "explorer", link)
		}
	}
	return d, nil
}

func newPatchFrontendCommand(a *app) *cobra.Command {
	var rustAddr, solidityAddr, resultPath string
	cmd := &cobra.Command{
		Use:   "patch-frontend [files...]",
		Short: "Write contract addresses and network settings into frontend sources",
		Long:  "Rewrites the address constants and FLUENT_NETWORK block of each file. Addresses come from the flags, then the configuration, then the result file, then the latest recorded deployment.",
		RunE: func(cmd *cobra.Command, args []string) error {
			files := args
			if len(files) == 0 {
				files = a.cfg.FrontendFiles
			}
			if len(files) == 0 {
				return errors.New("no frontend files given or configured")
			}

			addrs, err := a.resolveAddresses(rustAddr, solidityAddr, resultPath)
			if err != nil {
				return err
			}
			return a.patchFiles(cmd.OutOrStdout(), files, addrs)
		},
	}
	cmd.Flags().StringVar(&rustAddr, "rust", "", "Rust router address")
	cmd.Flags().StringVar(&solidityAddr, "solidity", "", "Solidity contract address")
	cmd.Flags().StringVar(&resultPath, "result", registry.ResultFile, "deployment result file")
	return cmd
}

func (a *app) resolveAddresses(rustAddr, solidityAddr, resultPath string) (frontend.Addresses, error) {
	if rustAddr == "" {
		rustAddr = a.cfg.RustContract
	}
	if solidityAddr == "" {
		solidityAddr = a.cfg.SolidityContract
	}

	if rustAddr == "" || solidityAddr == "" {
		if r, err := registry.ReadResult(resultPath); err == nil {
			rustAddr = firstNonEmpty(rustAddr, r.RustContractAddress)
			solidityAddr = firstNonEmpty(solidityAddr, r.SolidityContractAddress)
		}
	}
	if rustAddr == "" || solidityAddr == "" {
		if d, err := a.latestDeployment(); err == nil {
			rustAddr = firstNonEmpty(rustAddr, d.RustAddress)
			solidityAddr = firstNonEmpty(solidityAddr, d.SolidityAddress)
		}
	}

	rust, err := frontend.Checksum(rustAddr)
	if err != nil {
		return frontend.Addresses{}, fmt.Errorf("rust: %w", err)
	}
	solidity, err := frontend.Checksum(solidityAddr)
	if err != nil {
		return frontend.Addresses{}, fmt.Errorf("solidity: %w", err)
	}
	return frontend.Addresses{Rust: common.HexToAddress(rust), Solidity: common.HexToAddress(solidity)}, nil
}

func (a *app) latestDeployment() (*registry.Deployment, error) {
	store, err := registry.Open(a.cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Latest(a.cfg.Network)
}

// patchFiles prints one line per file. Missing files are only warned about.
func (a *app) patchFiles(out io.Writer, files []string, addrs frontend.Addresses) error {
	reports := frontend.NewPatcher(a.cfg.NetworkConfig, a.logger).Patch(files, addrs)
	failed := false
	for _, r := range reports {
		switch {
		case r.Err != nil:
			failed = true
			printError(out, fmt.Errorf("%s: %w", r.Path, r.Err))
		case !r.Exists:
			printWarn(out, "%s not found", r.Path)
		case r.Changed:
			printOK(out, "%s updated", r.Path)
		default:
			printField(out, r.Path, "already up to date")
		}
	}
	if failed {
		return errors.New("some frontend files could not be updated")
	}
	printOK(out, "%d of %d frontend files updated", frontend.Updated(reports), len(reports))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
