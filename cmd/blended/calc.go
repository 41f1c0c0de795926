package main

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/Shivam-Patel-G/blended-math/core/audit"
	"github.com/Shivam-Patel-G/blended-math/core/contracts"
	"github.com/Shivam-Patel-G/blended-math/core/fixedpoint"
	"github.com/Shivam-Patel-G/blended-math/core/mathlib"
)

type calcOptions struct {
	impl      string
	local     bool
	viaRouter bool
	jsonOut   bool
	audit     bool
}

func (o *calcOptions) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.local, "local", false, "evaluate in process instead of calling the contracts")
	cmd.Flags().BoolVar(&o.viaRouter, "via-router", false, "call the Rust router directly for the rust implementation")
	cmd.Flags().BoolVar(&o.jsonOut, "json", false, "print JSON")
	cmd.Flags().BoolVar(&o.audit, "audit", false, "append to the audit log")
}

// openAudit returns a nil logger, which discards everything, unless enabled.
func (a *app) openAudit(enabled bool) (*audit.Logger, error) {
	if !enabled {
		return nil, nil
	}
	return audit.Open(a.cfg.AuditLogDir, a.cfg.LogLevel)
}

func newCalcCommand(a *app) *cobra.Command {
	opts := &calcOptions{}
	cmd := &cobra.Command{
		Use:     "calc <function> <x>",
		Short:   "Evaluate one function through one implementation",
		Example: "  blended calc sqrt 2\n  blended calc exp -1.5 --impl rust",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fn, err := mathlib.ParseFunction(args[0])
			if err != nil {
				return err
			}
			impl, err := contracts.ParseImplementation(opts.impl)
			if err != nil {
				return err
			}
			x, err := fn.ParseInput(args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			calc, release, err := a.calculator(ctx, opts.local, opts.viaRouter)
			if err != nil {
				return err
			}
			defer release()

			auditLog, err := a.openAudit(opts.audit)
			if err != nil {
				return err
			}
			defer auditLog.Close()

			r, err := calc.Calculate(ctx, fn, impl, x)
			auditLog.Calculation(string(fn), string(impl), fixedpoint.Format(x), r, err)
			if err != nil {
				return err
			}

			if opts.jsonOut {
				return writeJSON(cmd, r)
			}
			printResult(cmd.OutOrStdout(), r)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.impl, "impl", "solidity", "implementation: solidity or rust")
	opts.register(cmd)
	return cmd
}

func newCompareCommand(a *app) *cobra.Command {
	opts := &calcOptions{}
	var function string
	cmd := &cobra.Command{
		Use:   "compare [x]",
		Short: "Run every function (or one with --function) through both implementations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var fn mathlib.Function
			parse := fixedpoint.Parse
			if function != "" {
				var err error
				if fn, err = mathlib.ParseFunction(function); err != nil {
					return err
				}
				parse = fn.ParseInput
			}
			x := contracts.DefaultTestInput
			if len(args) == 1 {
				var err error
				if x, err = parse(args[0]); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			calc, release, err := a.calculator(ctx, opts.local, opts.viaRouter)
			if err != nil {
				return err
			}
			defer release()

			auditLog, err := a.openAudit(opts.audit)
			if err != nil {
				return err
			}
			defer auditLog.Close()

			var results []*contracts.Comparison
			if fn != "" {
				c, err := contracts.Compare(ctx, calc, fn, x)
				if err != nil {
					return err
				}
				results = append(results, c)
			} else {
				if results, err = contracts.ComprehensiveTest(ctx, calc, x); err != nil {
					return err
				}
			}
			for _, c := range results {
				auditLog.Comparison(c)
			}

			if opts.jsonOut {
				return writeJSON(cmd, results)
			}
			for _, c := range results {
				printComparison(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&function, "function", "", "compare a single function")
	opts.register(cmd)
	return cmd
}

func newFixedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixed",
		Short: "Convert between decimals and 18-decimal fixed-point integers",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "to <decimal>",
			Short: "Scale a decimal by 1e18",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := fixedpoint.Parse(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v.String())
				return nil
			},
		},
		newFixedFromCommand(),
	)
	return cmd
}

func newFixedFromCommand() *cobra.Command {
	places := -1
	cmd := &cobra.Command{
		Use:   "from <integer>",
		Short: "Render a scaled integer as a decimal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok := new(big.Int).SetString(args[0], 10)
			if !ok {
				return fmt.Errorf("%w: %q", fixedpoint.ErrInvalidNumber, args[0])
			}
			out := fixedpoint.Format(v)
			if places >= 0 || fixedpoint.IsNegInfinity(v) || fixedpoint.IsPosInfinity(v) {
				out = fixedpoint.Display(v, places)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVar(&places, "places", -1, "round to this many decimals (default: exact)")
	return cmd
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
