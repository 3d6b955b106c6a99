package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/chopsticks-dev/chopsticks/internal/config"
	"github.com/chopsticks-dev/chopsticks/internal/coordinator"
	"github.com/chopsticks-dev/chopsticks/internal/driver"
	"github.com/chopsticks-dev/chopsticks/internal/export"
	"github.com/chopsticks-dev/chopsticks/internal/metrics"
	"github.com/chopsticks-dev/chopsticks/internal/transport"
	"github.com/chopsticks-dev/chopsticks/internal/workload"
)

const (
	progressInterval = time.Second
	pushGrace        = 5 * time.Second
	shutdownTimeout  = 10 * time.Second
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a stress workload against a storage backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFlags(cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runWorkload(cfg)
		},
	}
	config.RegisterFlags(cmd)
	return cmd
}

func runWorkload(cfg *config.Config) error {
	log := newLogger(cfg.LogLevel)
	runID := ulid.Make().String()
	workerID := ulid.Make().String()

	scenario, err := workload.Builtin(cfg.Workload.Scenario)
	if err != nil {
		return err
	}

	drv, err := buildDriver(context.Background(), cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(workerID, cfg.Bounds())
	run := export.RunInfo{
		RunID:          runID,
		Scenario:       scenario.Name,
		Driver:         string(cfg.Workload.Driver),
		Users:          cfg.Workload.Users,
		Started:        collector.Start(),
		FlushInterval:  cfg.Metrics.FlushInterval,
		SilenceTimeout: cfg.Metrics.SilenceTimeout,
		BucketBounds:   cfg.Bounds(),
	}

	log.Info().
		Str("run", runID).
		Str("worker", workerID).
		Str("scenario", scenario.Name).
		Str("driver", string(cfg.Workload.Driver)).
		Int("users", cfg.Workload.Users).
		Msg("starting run")

	// The snapshot pipeline has three shapes: push to a remote
	// coordinator, embed the coordinator in this process, or keep a bare
	// in-process aggregator when the exposition endpoint is disabled.
	var (
		coord  *coordinator.Coordinator
		inproc *transport.Inproc
		pusher *transport.Pusher
		sink   metrics.Sink
		agg    *metrics.GlobalAggregator
	)
	switch {
	case cfg.Metrics.CoordinatorURL != "":
		pusher = transport.NewPusher(cfg.Metrics.CoordinatorURL, cfg.Metrics.QueueSize, log)
		pusher.Start()
		sink = pusher
	case cfg.Metrics.Enabled:
		coord = coordinator.New(coordinator.Options{
			ListenAddr:     cfg.Metrics.ListenAddr,
			Silence:        cfg.Metrics.SilenceTimeout,
			ExportPath:     cfg.Metrics.ExportPath,
			ExportInterval: cfg.Metrics.ExportInterval,
			Run:            run,
			Logger:         log,
		})
		if err := coord.Start(); err != nil {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
		agg = coord.Aggregator()
		inproc = transport.NewInproc(agg, cfg.Metrics.QueueSize)
		inproc.Start()
		sink = inproc
		log.Info().Str("addr", coord.Addr()).Msg("metrics endpoint listening")
	default:
		agg = metrics.NewGlobalAggregator(cfg.Metrics.SilenceTimeout)
		inproc = transport.NewInproc(agg, cfg.Metrics.QueueSize)
		inproc.Start()
		sink = inproc
	}

	local := metrics.NewLocalAggregator(collector, sink, cfg.Metrics.FlushInterval, log)
	local.Start()

	var progress *export.ProgressReporter
	if agg != nil && !cfg.JSONOutput {
		progress = export.NewProgressReporter(agg, progressInterval, os.Stdout)
		progress.Start()
	}

	pool := workload.New(workload.Options{
		Users:     cfg.Workload.Users,
		Rate:      cfg.Workload.Rate,
		Duration:  cfg.Workload.Duration,
		Total:     cfg.Workload.Total,
		Scenario:  scenario,
		Driver:    drv,
		Recorder:  collector,
		KeyPrefix: cfg.Workload.KeyPrefix,
		Logger:    log,
		Seed:      cfg.Workload.Seed,
	})
	result := pool.Run(ctx)

	log.Info().
		Int64("ops", result.Total).
		Int64("errors", result.Errors).
		Dur("elapsed", result.Duration).
		Msg("workload finished")

	// Final flush first so the terminal snapshot enters the pipeline
	// before the transports drain.
	local.Stop()

	if progress != nil {
		progress.Stop()
		fmt.Fprintln(os.Stdout)
	}

	switch {
	case pusher != nil:
		pusher.Stop(pushGrace)
		if dropped := pusher.Dropped(); dropped > 0 {
			log.Warn().Int64("dropped", dropped).Msg("snapshots lost in transit")
		}
		log.Info().Str("coordinator", cfg.Metrics.CoordinatorURL).Msg("results delivered to coordinator")
		return nil
	case coord != nil:
		inproc.Stop()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()
		summary, err := coord.Stop(shutdownCtx, 0)
		if err != nil {
			log.Error().Err(err).Msg("shutdown incomplete")
		}
		return printSummary(cfg, summary)
	default:
		inproc.Stop()
		return printSummary(cfg, agg.Summary(time.Now()))
	}
}

func buildDriver(ctx context.Context, cfg *config.Config) (driver.Driver, error) {
	switch cfg.Workload.Driver {
	case config.DriverS3:
		return driver.NewS3Driver(ctx, driver.S3Options{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			PathStyle: cfg.S3.PathStyle,
		})
	default:
		return driver.NewDummy(), nil
	}
}

func printSummary(cfg *config.Config, s metrics.Summary) error {
	if cfg.JSONOutput {
		return export.PrintJSONReport(os.Stdout, s)
	}
	export.PrintReport(os.Stdout, s)
	return nil
}
