package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Shivam-Patel-G/blended-math/core/contracts"
	"github.com/Shivam-Patel-G/blended-math/core/fixedpoint"
	"github.com/Shivam-Patel-G/blended-math/core/loadtest"
	"github.com/Shivam-Patel-G/blended-math/core/mathlib"
)

func newBenchCommand(a *app) *cobra.Command {
	cfg := loadtest.DefaultConfig()
	var (
		input     string
		functions []string
		suite     bool
		cooldown  time.Duration
		opts      calcOptions
	)
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load test both implementations at a fixed call rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := fixedpoint.Parse(input)
			if err != nil {
				return err
			}
			cfg.Input = x
			if len(functions) > 0 {
				cfg.Functions = cfg.Functions[:0]
				for _, name := range functions {
					fn, err := mathlib.ParseFunction(name)
					if err != nil {
						return err
					}
					cfg.Functions = append(cfg.Functions, fn)
				}
			}

			ctx := cmd.Context()
			calc, release, err := a.calculator(ctx, opts.local, opts.viaRouter)
			if err != nil {
				return err
			}
			defer release()

			tester, err := loadtest.NewTester(calc, cfg, a.logger)
			if err != nil {
				return err
			}

			var results []*loadtest.Result
			if suite {
				results, err = tester.RunSuite(ctx, loadtest.DefaultStages, cooldown)
			} else {
				var r *loadtest.Result
				r, err = tester.Run(ctx, "bench")
				results = append(results, r)
			}
			if err != nil {
				return err
			}

			if opts.jsonOut {
				return writeJSON(cmd, results)
			}
			out := cmd.OutOrStdout()
			for _, r := range results {
				fmt.Fprintln(out, labelColor.Sprintf("%s (%v, %.2f calls/s, %d skipped)", r.Name, r.Duration.Round(time.Millisecond), r.Throughput, r.Skipped))
				for _, impl := range contracts.Implementations() {
					st, ok := r.Implementation[impl]
					if !ok {
						continue
					}
					printField(out, string(impl), fmt.Sprintf("%d sent, %.1f%% ok, avg %v, p95 %v, max %v",
						st.Sent, st.SuccessRate(), st.AvgLatency.Round(time.Microsecond),
						st.P95Latency.Round(time.Microsecond), st.MaxLatency.Round(time.Microsecond)))
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&cfg.Rate, "rate", cfg.Rate, "calls per second")
	flags.DurationVar(&cfg.Duration, "duration", cfg.Duration, "length of each run")
	flags.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "maximum calls in flight")
	flags.StringVar(&input, "input", "4", "input value")
	flags.StringSliceVar(&functions, "function", nil, "functions to run (default: all)")
	flags.BoolVar(&suite, "suite", false, "run the baseline, moderate and burst stages")
	flags.DurationVar(&cooldown, "cooldown", 2*time.Second, "pause between suite stages")
	flags.BoolVar(&opts.local, "local", false, "evaluate in process instead of calling the contracts")
	flags.BoolVar(&opts.viaRouter, "via-router", false, "call the Rust router directly for the rust implementation")
	flags.BoolVar(&opts.jsonOut, "json", false, "print JSON")
	return cmd
}
