package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lucasjlepore/trainload/config"
	"github.com/lucasjlepore/trainload/events"
	"github.com/lucasjlepore/trainload/observability"
	"github.com/lucasjlepore/trainload/profile"
	"github.com/lucasjlepore/trainload/store"
	"github.com/lucasjlepore/trainload/store/postgres"
	"github.com/lucasjlepore/trainload/store/sqlite"
)

// env holds the resources a command opened from the configuration. close releases
// them in reverse order.
type env struct {
	cfg       config.Config
	logger    *log.Logger
	store     store.Store
	publisher events.Publisher
	closers   []func() error
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Printf("shutdown: %v", err)
		}
	}
}

func setup(cmd *cobra.Command, needStore bool) (*env, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger, logCloser := observability.NewLogger(observability.LogOptions{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Stderr:     cmd.ErrOrStderr(),
	})
	e := &env{cfg: cfg, logger: logger, publisher: events.NopPublisher{}}
	e.closers = append(e.closers, logCloser.Close)

	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, logger)
		e.closers = append(e.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}

	if needStore && cfg.Store.Driver == config.DriverNone {
		e.close()
		return nil, errors.New("this command needs a store (set --store postgres|sqlite)")
	}
	s, err := openStore(cmd.Context(), cfg.Store)
	if err != nil {
		e.close()
		return nil, err
	}
	if s != nil {
		e.store = s
		e.closers = append(e.closers, s.Close)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		e.publisher = p
		e.closers = append(e.closers, p.Close)
		logger.Printf("publishing events to %s on %v", cfg.Kafka.Topic, cfg.Kafka.Brokers)
	}
	return e, nil
}

// openStore returns nil for the none driver.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	case config.DriverSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, nil
	}
}

func serveMetrics(addr string, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Printf("metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server error: %v", err)
		}
	}()
	return srv
}

// loadProfile returns nil when the profile file does not exist; the pipeline then
// runs without thresholds.
func loadProfile(path string, logger *log.Logger) (*profile.Profile, error) {
	if path == "" {
		return nil, nil
	}
	p, err := profile.Load(path, profile.WithLogger(logger))
	if errors.Is(err, fs.ErrNotExist) {
		logger.Printf("profile %s not found; thresholds unset", path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func parseDate(name, value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q (expected YYYY-MM-DD)", name, value)
	}
	return t, nil
}
