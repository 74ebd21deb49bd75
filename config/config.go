// Package config resolves the pipeline settings from flags, TRAINLOAD_* environment
// variables, an optional config file and built-in defaults, in that order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lucasjlepore/trainload"
)

// Store drivers.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const envPrefix = "TRAINLOAD"

// Config captures the settings shared by every trainload command.
type Config struct {
	DataDir        string
	ProfilePath    string
	PauseThreshold time.Duration
	Workers        int
	Output         OutputConfig
	Store          StoreConfig
	Kafka          KafkaConfig
	Log            LogConfig
	Metrics        MetricsConfig
}

type OutputConfig struct {
	Dir       string
	Format    string
	Overwrite bool
}

type StoreConfig struct {
	Driver      string
	PostgresURL string
	SQLitePath  string
}

// KafkaConfig enables event publication when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type MetricsConfig struct {
	Addr string
}

var defaults = map[string]any{
	"pause_threshold":    trainload.DefaultPauseThreshold,
	"data_dir":           "",
	"profile_path":       "data/athlete_profile/profile.json",
	"workers":            0,
	"output.dir":         "",
	"output.format":      "parquet",
	"output.overwrite":   false,
	"store.driver":       DriverNone,
	"store.postgres_url": "",
	"store.sqlite_path":  "data/trainload.db",
	"kafka.brokers":      "",
	"kafka.topic":        "trainload.events",
	"log.file":           "",
	"log.max_size_mb":    50,
	"log.max_backups":    3,
	"log.max_age_days":   28,
	"metrics.addr":       "",
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"data-dir":        "data_dir",
	"profile":         "profile_path",
	"pause-threshold": "pause_threshold",
	"workers":         "workers",
	"out-dir":         "output.dir",
	"format":          "output.format",
	"overwrite":       "output.overwrite",
	"store":           "store.driver",
	"postgres-url":    "store.postgres_url",
	"sqlite-path":     "store.sqlite_path",
	"kafka-brokers":   "kafka.brokers",
	"kafka-topic":     "kafka.topic",
	"log-file":        "log.file",
	"metrics-addr":    "metrics.addr",
}

// RegisterFlags adds the config file flag and every overridable key to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML, TOML or JSON config file")
	fs.String("data-dir", "", "Directory of downloaded workouts")
	fs.String("profile", "", "Athlete profile JSON")
	fs.Duration("pause-threshold", 0, "Longest sample gap still counted as moving (default 5s)")
	fs.Int("workers", 0, "Workouts processed in parallel (default GOMAXPROCS)")
	fs.String("out-dir", "", "Output directory (default: the data directory)")
	fs.String("format", "", "Trackpoint export format: parquet|csv|none")
	fs.Bool("overwrite", false, "Replace existing outputs")
	fs.String("store", "", "Persistence driver: none|postgres|sqlite")
	fs.String("postgres-url", "", "Postgres connection URL")
	fs.String("sqlite-path", "", "SQLite database file")
	fs.String("kafka-brokers", "", "Comma separated Kafka brokers; empty disables events")
	fs.String("kafka-topic", "", "Kafka topic for pipeline events")
	fs.String("log-file", "", "Also write logs to this rotating file")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

// Load resolves the configuration. Only flags the user actually set override the
// environment and the config file. flags may be nil.
func Load(flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", f.Value.String(), err)
			}
		}
	}

	cfg := Config{
		DataDir:        v.GetString("data_dir"),
		ProfilePath:    v.GetString("profile_path"),
		PauseThreshold: v.GetDuration("pause_threshold"),
		Workers:        v.GetInt("workers"),
		Output: OutputConfig{
			Dir:       v.GetString("output.dir"),
			Format:    strings.ToLower(strings.TrimSpace(v.GetString("output.format"))),
			Overwrite: v.GetBool("output.overwrite"),
		},
		Store: StoreConfig{
			Driver:      strings.ToLower(strings.TrimSpace(v.GetString("store.driver"))),
			PostgresURL: v.GetString("store.postgres_url"),
			SQLitePath:  v.GetString("store.sqlite_path"),
		},
		Kafka: KafkaConfig{
			Brokers: splitAndTrim(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Log: LogConfig{
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		Metrics: MetricsConfig{Addr: v.GetString("metrics.addr")},
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.PauseThreshold <= 0 {
		errs = append(errs, fmt.Errorf("pause_threshold must be > 0, got %s", c.PauseThreshold))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", c.Workers))
	}
	switch c.Output.Format {
	case "parquet", "csv", "none":
	default:
		errs = append(errs, fmt.Errorf("unsupported output.format %q (expected parquet|csv|none)", c.Output.Format))
	}
	switch c.Store.Driver {
	case DriverNone:
	case DriverPostgres:
		if c.Store.PostgresURL == "" {
			errs = append(errs, errors.New("store.postgres_url is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported store.driver %q (expected none|postgres|sqlite)", c.Store.Driver))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka.topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}

// splitAndTrim accepts both list values and comma separated strings.
func splitAndTrim(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
