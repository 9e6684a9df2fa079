package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	lg "github.com/Andrej220/go-utils/zlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	cp "github.com/azargarov/compute"
	"github.com/azargarov/compute/promcompute"
)

func newRootCmd() *cobra.Command {
	var (
		configPath string
		override   Config
	)

	cmd := &cobra.Command{
		Use:   "computebench",
		Short: "Run a synthetic hashing workload on a compute device",
		Long: `computebench prepares a set of data blocks with an async operation and then
hashes them with a payload-parallel operation, printing progress while it
runs. Settings come from an optional YAML file; flags override it.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("workers") {
				cfg.Workers = override.Workers
			}
			if flags.Changed("pin") {
				cfg.Pin = override.Pin
			}
			if flags.Changed("payloads") {
				cfg.Payloads = override.Payloads
			}
			if flags.Changed("rounds") {
				cfg.Rounds = override.Rounds
			}
			if flags.Changed("metrics-addr") {
				cfg.MetricsAddr = override.MetricsAddr
			}
			if err := cfg.validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	f.IntVarP(&override.Workers, "workers", "w", 0, "Number of workers (0 = GOMAXPROCS)")
	f.BoolVar(&override.Pin, "pin", false, "Pin worker threads to CPUs")
	f.IntVarP(&override.Payloads, "payloads", "n", 0, "Number of payloads to hash")
	f.IntVar(&override.Rounds, "rounds", 0, "SHA-256 rounds per payload")
	f.StringVar(&override.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func run(ctx context.Context, cfg Config, out io.Writer) error {
	logger := lg.FromContext(ctx)

	metrics := &cp.AtomicMetrics{}
	d, err := cp.NewDevice(cfg.options(metrics))
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.Close(cctx); err != nil {
			logger.Warn("device did not stop in time", lg.Any("error", err))
		}
	}()

	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(promcompute.New("computebench", d, metrics))
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", lg.Any("error", err))
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", lg.String("addr", cfg.MetricsAddr))
	}

	go func() {
		<-ctx.Done()
		d.Abort()
	}()

	var blocks cp.Box[[][]byte]
	if err := d.Enqueue(cp.OperationFactoryFunc(func(ws []*cp.Worker) cp.Operation {
		return prepareBlocks(cfg.BlockSize, len(ws), &blocks)
	})); err != nil {
		return err
	}
	if err := d.Enqueue(cp.OperationFactoryFunc(func(ws []*cp.Worker) cp.Operation {
		data, _ := blocks.Load()
		return cp.NewPayloadOperation[int](newHashSource(data, cfg.Payloads, cfg.Rounds, len(ws)))
	})); err != nil {
		return err
	}

	start := time.Now()
	if err := d.Watch(ctx, func(s cp.Snapshot) { printSnapshot(out, s) }); err != nil {
		return err
	}
	if err := d.Wait(ctx); err != nil {
		return err
	}

	elapsed := time.Since(start)
	fmt.Fprintf(out, "hashed %d payloads on %d workers in %s (%.0f payloads/s)\n",
		metrics.Executed(), d.Population(), elapsed.Round(time.Millisecond),
		float64(metrics.Executed())/elapsed.Seconds())
	return nil
}

func printSnapshot(out io.Writer, s cp.Snapshot) {
	fmt.Fprintf(out, "%s %5.1f%% %8s running=%d paused=%d aborted=%d",
		s.ID[:8], s.Progress*100, s.Elapsed.Round(time.Millisecond),
		s.States.Of(cp.StateRunning), s.States.Of(cp.StatePaused), s.States.Of(cp.StateAborted))
	for _, e := range s.Events {
		fmt.Fprintf(out, " %s=%d", e.Label, e.Count)
	}
	fmt.Fprintln(out)
}
