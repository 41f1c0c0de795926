package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Shivam-Patel-G/blended-math/api"
	"github.com/Shivam-Patel-G/blended-math/core/monitoring"
)

func newServeCommand(a *app) *cobra.Command {
	var (
		addr      string
		local     bool
		viaRouter bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calculation API, metrics and live connection status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if addr == "" {
				addr = a.cfg.APIAddr
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics := monitoring.NewMetrics(reg)

			calc, release, err := a.calculator(ctx, local, viaRouter)
			if err != nil {
				return err
			}
			defer release()

			client, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			monitor := monitoring.NewConnectionMonitor(client, monitoring.DefaultInterval, monitoring.DefaultRetryDelay, metrics, a.logger)
			if err := monitor.Start(ctx); err != nil {
				return err
			}
			defer monitor.Stop()

			auditLog, err := a.openAudit(true)
			if err != nil {
				a.logger.WithError(err).Warn("Audit log unavailable")
			}
			defer auditLog.Close()

			srv := api.NewServer(api.Options{
				Calculator:  calc,
				Monitor:     monitor,
				Metrics:     metrics,
				History:     monitoring.NewPerformanceHistory(monitoring.DefaultHistorySize),
				Audit:       auditLog,
				Gatherer:    reg,
				Network:     a.cfg.NetworkConfig,
				Contracts:   api.Contracts{Rust: a.cfg.RustContract, Solidity: a.cfg.SolidityContract},
				RateLimit:   a.cfg.RateLimitRPS,
				RateBurst:   a.cfg.RateLimitBurst,
				CallTimeout: a.cfg.CallTimeout(),
				Logger:      a.logger,
			})
			return srv.Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&local, "local", false, "evaluate in process instead of calling the contracts")
	cmd.Flags().BoolVar(&viaRouter, "via-router", false, "call the Rust router directly for the rust implementation")
	return cmd
}
