// Package config loads and validates run configuration from YAML/JSON
// files and command-line flags, flags winning on conflict.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// Defaults returns a Config with every knob set to its documented default.
func Defaults() *Config {
	return &Config{
		Workload: WorkloadConfig{
			Driver:    DriverDummy,
			Scenario:  "mixed_workload",
			Users:     1,
			KeyPrefix: "chopsticks",
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			FlushInterval:  5 * time.Second,
			ListenAddr:     "127.0.0.1:9464",
			ExportInterval: 30 * time.Second,
			SilenceTimeout: 15 * time.Second,
			QueueSize:      16,
		},
		LogLevel: "info",
	}
}

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and an optional config file into a
// Config. File settings override defaults; flags override the file.
func (Loader) Load(args []string) (*Config, error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, ErrHelpRequested
		}
		return nil, err
	}
	if helpFlag := fs.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			return nil, ErrHelpRequested
		}
	}

	return FromFlags(fs)
}

// FromFlags assembles a Config from an already parsed flag set, reading the
// config file named by --config first when one was given.
func FromFlags(fs *pflag.FlagSet) (*Config, error) {
	cfg := Defaults()

	configPath := fs.Lookup("config").Value.String()
	if configPath != "" {
		cfgViper := viper.New()
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
		if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
			return nil, err
		}
		cfg.ConfigFile = configPath
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		return nil, err
	}

	cfg.Workload.Driver = DriverKind(strings.ToLower(strings.TrimSpace(string(cfg.Workload.Driver))))
	cfg.Workload.Scenario = strings.TrimSpace(cfg.Workload.Scenario)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "workload"); ok {
		section, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("workload: %w", err)
		}
		if err := applyWorkloadSettings(&cfg.Workload, section); err != nil {
			return fmt.Errorf("workload: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "s3"); ok {
		section, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("s3: %w", err)
		}
		if err := applyS3Settings(&cfg.S3, section); err != nil {
			return fmt.Errorf("s3: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "metrics"); ok {
		section, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		if err := applyMetricsSettings(&cfg.Metrics, section); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "loglevel", "log_level", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		if val != "" {
			cfg.LogLevel = val
		}
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	return nil
}

func applyWorkloadSettings(w *WorkloadConfig, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "driver", "type"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("driver: %w", err)
		}
		if val != "" {
			w.Driver = DriverKind(val)
		}
	}
	if raw, ok := lookupSetting(settings, "scenario"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("scenario: %w", err)
		}
		if val != "" {
			w.Scenario = val
		}
	}
	if raw, ok := lookupSetting(settings, "users"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("users: %w", err)
		}
		w.Users = val
	}
	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		w.Rate = val
	}
	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		w.Duration = dur
	}
	if raw, ok := lookupSetting(settings, "total"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("total: %w", err)
		}
		w.Total = val
	}
	if raw, ok := lookupSetting(settings, "keyprefix", "key_prefix", "key-prefix"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("key_prefix: %w", err)
		}
		if strings.TrimSpace(val) != "" {
			w.KeyPrefix = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		w.Seed = val
	}
	return nil
}

func applyS3Settings(s *S3Config, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "endpoint", "endpoint_url", "endpoint-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		s.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "region"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("region: %w", err)
		}
		s.Region = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "accesskey", "access_key", "access-key"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("access_key: %w", err)
		}
		s.AccessKey = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "secretkey", "secret_key", "secret-key"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("secret_key: %w", err)
		}
		s.SecretKey = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "bucket"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("bucket: %w", err)
		}
		s.Bucket = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "pathstyle", "path_style", "path-style"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("path_style: %w", err)
		}
		s.PathStyle = val
	}
	return nil
}

func applyMetricsSettings(m *MetricsConfig, settings map[string]interface{}) error {
	if raw, ok := lookupSetting(settings, "enabled"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("enabled: %w", err)
		}
		m.Enabled = val
	}
	if raw, ok := lookupSetting(settings, "flushinterval", "flush_interval", "flush-interval"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("flush_interval: %w", err)
		}
		m.FlushInterval = dur
	}
	if raw, ok := lookupSetting(settings, "listenaddr", "listen_addr", "listen-addr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("listen_addr: %w", err)
		}
		if strings.TrimSpace(val) != "" {
			m.ListenAddr = strings.TrimSpace(val)
		}
	}
	if raw, ok := lookupSetting(settings, "exportpath", "export_path", "export-path"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("export_path: %w", err)
		}
		m.ExportPath = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "exportinterval", "export_interval", "export-interval"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("export_interval: %w", err)
		}
		m.ExportInterval = dur
	}
	if raw, ok := lookupSetting(settings, "silencetimeout", "silence_timeout", "silence-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("silence_timeout: %w", err)
		}
		m.SilenceTimeout = dur
	}
	if raw, ok := lookupSetting(settings, "coordinatorurl", "coordinator_url", "coordinator-url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("coordinator_url: %w", err)
		}
		m.CoordinatorURL = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "queuesize", "queue_size", "queue-size"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("queue_size: %w", err)
		}
		m.QueueSize = val
	}
	if raw, ok := lookupSetting(settings, "statepath", "state_path", "state-path"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("state_path: %w", err)
		}
		m.StatePath = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "buckets"); ok {
		buckets, err := asDurationSlice(raw)
		if err != nil {
			return fmt.Errorf("buckets: %w", err)
		}
		m.Buckets = buckets
	}
	return nil
}
