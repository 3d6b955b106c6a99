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

	"github.com/chopsticks-dev/chopsticks/internal/coordinator"
	"github.com/chopsticks-dev/chopsticks/internal/export"
)

func newCoordinatorCommand() *cobra.Command {
	var (
		listenAddr     string
		silence        time.Duration
		exportPath     string
		exportInterval time.Duration
		statePath      string
		grace          time.Duration
		logLevel       string
	)

	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Run a standalone coordinator that aggregates pushed worker snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoordinator(coordinator.Options{
				ListenAddr:     listenAddr,
				Silence:        silence,
				ExportPath:     exportPath,
				ExportInterval: exportInterval,
				StatePath:      statePath,
				Run: export.RunInfo{
					RunID:          ulid.Make().String(),
					Started:        time.Now(),
					SilenceTimeout: silence,
				},
				Logger: newLogger(logLevel),
			}, grace)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&listenAddr, "listen-addr", "0.0.0.0:9464", "Address for snapshot ingest and metrics exposition")
	flags.DurationVar(&silence, "silence-timeout", 15*time.Second, "How long without a snapshot before a worker is stale")
	flags.StringVar(&exportPath, "export-path", "", "Path for the periodic JSON export document (empty disables)")
	flags.DurationVar(&exportInterval, "export-interval", 30*time.Second, "Interval between JSON export writes")
	flags.StringVar(&statePath, "state-path", "chopsticks-coordinator.json", "State file guarding against a second coordinator")
	flags.DurationVar(&grace, "grace", 5*time.Second, "How long to wait for active workers on shutdown")
	flags.StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn or error")
	return cmd
}

func runCoordinator(opt coordinator.Options, grace time.Duration) error {
	log := opt.Logger

	coord := coordinator.New(opt)
	if err := coord.Start(); err != nil {
		return fmt.Errorf("coordinator: %w", err)
	}
	log.Info().Str("addr", coord.Addr()).Msg("coordinator listening")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	summary, err := coord.Stop(shutdownCtx, grace)
	if err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}

	export.PrintReport(os.Stdout, summary)
	return nil
}
