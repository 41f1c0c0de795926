package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Shivam-Patel-G/blended-math/core/contracts"
	"github.com/Shivam-Patel-G/blended-math/core/fixedpoint"
	"github.com/Shivam-Patel-G/blended-math/core/mathlib"
)

func newCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Show balance and code size of both contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			client, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			block, err := client.CheckConnection(ctx)
			if err != nil {
				return err
			}
			printOK(out, "Connected to %s at block %d", a.cfg.NetworkConfig.Name, block)

			targets := []struct {
				label string
				addr  string
			}{
				{"Rust contract", a.cfg.RustContract},
				{"Solidity contract", a.cfg.SolidityContract},
			}
			for _, t := range targets {
				if t.addr == "" {
					printWarn(out, "%s not configured", t.label)
					continue
				}
				info, err := client.Inspect(ctx, common.HexToAddress(t.addr))
				if err != nil {
					return fmt.Errorf("%s: %w", t.label, err)
				}
				if info.HasCode() {
					printOK(out, "%s %s", t.label, info.Address.Hex())
				} else {
					printWarn(out, "%s %s has no code", t.label, info.Address.Hex())
				}
				printField(out, "balance", fixedpoint.FormatUnits(info.Balance, 18)+" "+a.cfg.NetworkConfig.CurrencySymbol)
				printField(out, "code size", fmt.Sprintf("%d bytes", info.CodeSize))
				if link := a.cfg.NetworkConfig.ExplorerURL(info.Address.Hex()); link != "" {
					printField(out, "explorer", link)
				}
			}
			return nil
		},
	}
}

func newVerifyCommand(a *app) *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check connectivity and compare sqrt(4) through both implementations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if !local {
				client, err := a.dial(ctx)
				if err != nil {
					return err
				}
				block, err := client.CheckConnection(ctx)
				if err != nil {
					client.Close()
					return err
				}
				err = client.VerifyChain(ctx, a.cfg.NetworkConfig.ChainID)
				client.Close()
				if err != nil {
					return err
				}
				printOK(out, "Chain %d reachable at block %d", a.cfg.NetworkConfig.ChainID, block)
			}

			calc, release, err := a.calculator(ctx, local, false)
			if err != nil {
				return err
			}
			defer release()

			c, err := contracts.Compare(ctx, calc, mathlib.FuncSqrt, contracts.DefaultTestInput)
			if err != nil {
				return err
			}
			printComparison(out, c)
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "skip the network and evaluate in process")
	return cmd
}
