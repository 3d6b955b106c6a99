package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/chopsticks-dev/chopsticks/internal/metrics"
	"github.com/chopsticks-dev/chopsticks/internal/workload"
)

// DriverKind selects the storage backend a run targets.
type DriverKind string

const (
	DriverDummy DriverKind = "dummy"
	DriverS3    DriverKind = "s3"
)

// Config is the fully resolved run configuration. It is assembled once by
// the Loader and treated as read-only afterwards.
type Config struct {
	Workload WorkloadConfig `mapstructure:"workload"`
	S3       S3Config       `mapstructure:"s3"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`

	LogLevel   string `mapstructure:"log_level"`
	JSONOutput bool   `mapstructure:"json_output"`
	ConfigFile string `mapstructure:"-"`
}

type WorkloadConfig struct {
	Driver    DriverKind    `mapstructure:"driver"`
	Scenario  string        `mapstructure:"scenario"`
	Users     int           `mapstructure:"users"`
	Rate      int           `mapstructure:"rate"`     // operations per second, 0 = unlimited
	Duration  time.Duration `mapstructure:"duration"` // 0 = until total or interrupt
	Total     int           `mapstructure:"total"`    // total operations, 0 = unlimited
	KeyPrefix string        `mapstructure:"key_prefix"`
	Seed      int64         `mapstructure:"seed"` // 0 = time-based
}

type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	PathStyle bool   `mapstructure:"path_style"`
}

type MetricsConfig struct {
	Enabled        bool            `mapstructure:"enabled"`
	FlushInterval  time.Duration   `mapstructure:"flush_interval"`
	ListenAddr     string          `mapstructure:"listen_addr"`
	ExportPath     string          `mapstructure:"export_path"`
	ExportInterval time.Duration   `mapstructure:"export_interval"`
	SilenceTimeout time.Duration   `mapstructure:"silence_timeout"`
	CoordinatorURL string          `mapstructure:"coordinator_url"`
	QueueSize      int             `mapstructure:"queue_size"`
	StatePath      string          `mapstructure:"state_path"`
	Buckets        []time.Duration `mapstructure:"buckets"` // nil = default boundaries
}

// ValidationError aggregates every problem found in a Config so the user
// sees them all at once instead of fixing them one run at a time.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	switch c.Workload.Driver {
	case DriverDummy:
	case DriverS3:
		if strings.TrimSpace(c.S3.Endpoint) == "" {
			issues = append(issues, "s3.endpoint is required for the s3 driver")
		}
		if strings.TrimSpace(c.S3.AccessKey) == "" {
			issues = append(issues, "s3.access_key is required for the s3 driver")
		}
		if strings.TrimSpace(c.S3.SecretKey) == "" {
			issues = append(issues, "s3.secret_key is required for the s3 driver")
		}
		if strings.TrimSpace(c.S3.Region) == "" {
			issues = append(issues, "s3.region is required for the s3 driver")
		}
		if strings.TrimSpace(c.S3.Bucket) == "" {
			issues = append(issues, "s3.bucket is required for the s3 driver")
		}
	default:
		issues = append(issues, fmt.Sprintf("workload driver %q is not supported (dummy or s3)", c.Workload.Driver))
	}

	if _, err := workload.Builtin(c.Workload.Scenario); err != nil {
		issues = append(issues, fmt.Sprintf("scenario %q is unknown (available: %s)",
			c.Workload.Scenario, strings.Join(workload.Names(), ", ")))
	}
	if c.Workload.Users < 1 {
		issues = append(issues, "workload.users must be >= 1")
	}
	if c.Workload.Rate < 0 {
		issues = append(issues, "workload.rate must be >= 0")
	}
	if c.Workload.Duration < 0 {
		issues = append(issues, "workload.duration must be >= 0")
	}
	if c.Workload.Total < 0 {
		issues = append(issues, "workload.total must be >= 0")
	}

	if c.Metrics.FlushInterval <= 0 {
		issues = append(issues, "metrics.flush_interval must be > 0")
	}
	if c.Metrics.ExportInterval < 0 {
		issues = append(issues, "metrics.export_interval must be >= 0")
	}
	if c.Metrics.SilenceTimeout <= 0 {
		issues = append(issues, "metrics.silence_timeout must be > 0")
	}
	if c.Metrics.QueueSize < 1 {
		issues = append(issues, "metrics.queue_size must be >= 1")
	}
	if len(c.Metrics.Buckets) > 0 && !metrics.ValidBounds(c.Metrics.Buckets) {
		issues = append(issues, "metrics.buckets must be strictly increasing positive durations")
	}
	if c.Metrics.CoordinatorURL != "" && !strings.HasPrefix(c.Metrics.CoordinatorURL, "http://") &&
		!strings.HasPrefix(c.Metrics.CoordinatorURL, "https://") {
		issues = append(issues, "metrics.coordinator_url must be an http(s) URL")
	}

	switch strings.ToLower(c.LogLevel) {
	case "trace", "debug", "info", "warn", "error", "":
	default:
		issues = append(issues, fmt.Sprintf("log level %q is not supported", c.LogLevel))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Bounds returns the configured histogram bucket boundaries, falling back
// to the shared defaults so every worker in a run agrees on the layout.
func (c Config) Bounds() []time.Duration {
	if len(c.Metrics.Buckets) > 0 {
		return c.Metrics.Buckets
	}
	return metrics.DefaultBounds()
}
