package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/trainload"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, trainload.DefaultPauseThreshold, cfg.PauseThreshold)
	require.Equal(t, "data/athlete_profile/profile.json", cfg.ProfilePath)
	require.Equal(t, "parquet", cfg.Output.Format)
	require.Equal(t, DriverNone, cfg.Store.Driver)
	require.Equal(t, "trainload.events", cfg.Kafka.Topic)
	require.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trainload.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
pause_threshold: 8s
output:
  format: csv
store:
  driver: sqlite
  sqlite_path: /tmp/from-file.db
kafka:
  brokers: [kafka-1:9092, kafka-2:9092]
`), 0o644))

	t.Setenv("TRAINLOAD_OUTPUT_FORMAT", "none")
	t.Setenv("TRAINLOAD_PAUSE_THRESHOLD", "3s")

	cfg, err := Load(newFlags(t, "--config", path, "--pause-threshold", "10s"))
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.PauseThreshold, "flag beats env")
	require.Equal(t, "none", cfg.Output.Format, "env beats file")
	require.Equal(t, DriverSQLite, cfg.Store.Driver)
	require.Equal(t, "/tmp/from-file.db", cfg.Store.SQLitePath)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadBrokersFromEnv(t *testing.T) {
	t.Setenv("TRAINLOAD_KAFKA_BROKERS", "a:9092, b:9092,,")
	cfg, err := Load(newFlags(t))
	require.NoError(t, err)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		PauseThreshold: time.Second,
		Output:         OutputConfig{Format: "csv"},
		Store:          StoreConfig{Driver: DriverNone},
	}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"zero pause":       func(c *Config) { c.PauseThreshold = 0 },
		"negative workers": func(c *Config) { c.Workers = -1 },
		"unknown format":   func(c *Config) { c.Output.Format = "xlsx" },
		"unknown driver":   func(c *Config) { c.Store.Driver = "mysql" },
		"postgres no url":  func(c *Config) { c.Store.Driver = DriverPostgres },
		"sqlite no path":   func(c *Config) { c.Store.Driver = DriverSQLite },
		"brokers no topic": func(c *Config) { c.Kafka.Brokers = []string{"k:9092"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}
