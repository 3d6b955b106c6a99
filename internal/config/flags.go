package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all run flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagSet builds a standalone flag set with all run flags configured.
func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("chopsticks", pflag.ContinueOnError)
	fs.Bool("help", false, "Show usage information")
	configureFlags(fs)
	return fs
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (YAML or JSON)")

	// Workload flags
	flags.String("driver", string(DriverDummy), "Storage driver: 'dummy' or 's3'")
	flags.StringP("scenario", "s", "mixed_workload", "Workload scenario name")
	flags.IntP("users", "u", 1, "Number of concurrent users")
	flags.IntP("rate", "r", 0, "Operations per second limit (0 means unlimited)")
	flags.DurationP("duration", "d", 0, "How long to run (e.g. 30s, 5m; 0 means until total or interrupt)")
	flags.IntP("total", "t", 0, "Total operations to issue (0 means unlimited)")
	flags.String("key-prefix", "chopsticks", "Prefix for object keys created by the run")
	flags.Int64("seed", 0, "Random seed for the scenario (0 means time-based)")

	// S3 driver flags
	flags.String("s3-endpoint", "", "S3-compatible endpoint URL")
	flags.String("s3-region", "", "S3 region")
	flags.String("s3-access-key", "", "S3 access key (or CHOPSTICKS_S3_ACCESS_KEY)")
	flags.String("s3-secret-key", "", "S3 secret key (or CHOPSTICKS_S3_SECRET_KEY)")
	flags.String("s3-bucket", "", "Target bucket")
	flags.Bool("s3-path-style", false, "Use path-style bucket addressing")

	// Metrics flags
	flags.Bool("metrics", true, "Enable the metrics pipeline")
	flags.Duration("flush-interval", 5*time.Second, "Interval between worker snapshot flushes")
	flags.String("listen-addr", "127.0.0.1:9464", "Address for the metrics HTTP endpoint")
	flags.String("export-path", "", "Path for the periodic JSON export document (empty disables)")
	flags.Duration("export-interval", 30*time.Second, "Interval between JSON export writes")
	flags.Duration("silence-timeout", 15*time.Second, "How long without a snapshot before a worker is stale")
	flags.String("coordinator", "", "URL of an external coordinator to push snapshots to")
	flags.Int("queue-size", 16, "Capacity of the outbound snapshot queue")
	flags.String("state-path", "", "Coordinator state file path")

	// Output flags
	flags.String("log-level", "info", "Log level: trace, debug, info, warn or error")
	flags.Bool("json-output", false, "Emit the final report as JSON")
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("driver") {
		val, err := fs.GetString("driver")
		if err != nil {
			return err
		}
		cfg.Workload.Driver = DriverKind(val)
	}
	if fs.Changed("scenario") {
		val, err := fs.GetString("scenario")
		if err != nil {
			return err
		}
		cfg.Workload.Scenario = val
	}
	if fs.Changed("users") {
		val, err := fs.GetInt("users")
		if err != nil {
			return err
		}
		cfg.Workload.Users = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Workload.Rate = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Workload.Duration = val
	}
	if fs.Changed("total") {
		val, err := fs.GetInt("total")
		if err != nil {
			return err
		}
		cfg.Workload.Total = val
	}
	if fs.Changed("key-prefix") {
		val, err := fs.GetString("key-prefix")
		if err != nil {
			return err
		}
		cfg.Workload.KeyPrefix = strings.TrimSpace(val)
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Workload.Seed = val
	}

	if fs.Changed("s3-endpoint") {
		val, err := fs.GetString("s3-endpoint")
		if err != nil {
			return err
		}
		cfg.S3.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("s3-region") {
		val, err := fs.GetString("s3-region")
		if err != nil {
			return err
		}
		cfg.S3.Region = strings.TrimSpace(val)
	}
	if fs.Changed("s3-access-key") {
		val, err := fs.GetString("s3-access-key")
		if err != nil {
			return err
		}
		cfg.S3.AccessKey = strings.TrimSpace(val)
	}
	if fs.Changed("s3-secret-key") {
		val, err := fs.GetString("s3-secret-key")
		if err != nil {
			return err
		}
		cfg.S3.SecretKey = strings.TrimSpace(val)
	}
	if fs.Changed("s3-bucket") {
		val, err := fs.GetString("s3-bucket")
		if err != nil {
			return err
		}
		cfg.S3.Bucket = strings.TrimSpace(val)
	}
	if fs.Changed("s3-path-style") {
		val, err := fs.GetBool("s3-path-style")
		if err != nil {
			return err
		}
		cfg.S3.PathStyle = val
	}

	// Fall back to environment variables so credentials stay out of the
	// command line and config file.
	if cfg.S3.AccessKey == "" {
		if env := os.Getenv("CHOPSTICKS_S3_ACCESS_KEY"); env != "" {
			cfg.S3.AccessKey = env
		}
	}
	if cfg.S3.SecretKey == "" {
		if env := os.Getenv("CHOPSTICKS_S3_SECRET_KEY"); env != "" {
			cfg.S3.SecretKey = env
		}
	}

	if fs.Changed("metrics") {
		val, err := fs.GetBool("metrics")
		if err != nil {
			return err
		}
		cfg.Metrics.Enabled = val
	}
	if fs.Changed("flush-interval") {
		val, err := fs.GetDuration("flush-interval")
		if err != nil {
			return err
		}
		cfg.Metrics.FlushInterval = val
	}
	if fs.Changed("listen-addr") {
		val, err := fs.GetString("listen-addr")
		if err != nil {
			return err
		}
		cfg.Metrics.ListenAddr = strings.TrimSpace(val)
	}
	if fs.Changed("export-path") {
		val, err := fs.GetString("export-path")
		if err != nil {
			return err
		}
		cfg.Metrics.ExportPath = strings.TrimSpace(val)
	}
	if fs.Changed("export-interval") {
		val, err := fs.GetDuration("export-interval")
		if err != nil {
			return err
		}
		cfg.Metrics.ExportInterval = val
	}
	if fs.Changed("silence-timeout") {
		val, err := fs.GetDuration("silence-timeout")
		if err != nil {
			return err
		}
		cfg.Metrics.SilenceTimeout = val
	}
	if fs.Changed("coordinator") {
		val, err := fs.GetString("coordinator")
		if err != nil {
			return err
		}
		cfg.Metrics.CoordinatorURL = strings.TrimSpace(val)
	}
	if fs.Changed("queue-size") {
		val, err := fs.GetInt("queue-size")
		if err != nil {
			return err
		}
		cfg.Metrics.QueueSize = val
	}
	if fs.Changed("state-path") {
		val, err := fs.GetString("state-path")
		if err != nil {
			return err
		}
		cfg.Metrics.StatePath = strings.TrimSpace(val)
	}

	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}

	return nil
}
