// Package observability holds the process-wide metrics and the CLI logger.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Workout outcomes.
const (
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

var (
	workoutsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "pipeline",
		Name:      "workouts_total",
		Help:      "Number of workouts handled by the pipeline, by sport and outcome.",
	}, []string{"sport", "status"})

	tssNotComputableCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "pipeline",
		Name:      "tss_not_computable_total",
		Help:      "Number of processed workouts whose TSS could not be computed.",
	}, []string{"sport"})

	parseErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "pipeline",
		Name:      "parse_errors_total",
		Help:      "Number of raw files that failed to parse, by file kind.",
	}, []string{"kind"})

	workoutDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "trainload",
		Subsystem: "pipeline",
		Name:      "workout_duration_seconds",
		Help:      "Time spent processing one workout bundle.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	pmcCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "pmc",
		Name:      "computations_total",
		Help:      "Number of daily training load rows computed.",
	})

	zonesFallbackCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "trainload",
		Subsystem: "zones",
		Name:      "fallback_total",
		Help:      "Number of zone analyses answered by the deterministic binning engine.",
	})
)

func init() {
	prometheus.MustRegister(workoutsCounter, tssNotComputableCounter, parseErrorCounter, workoutDuration, pmcCounter, zonesFallbackCounter)
}

func RecordWorkout(sport, status string, elapsed time.Duration) {
	workoutsCounter.WithLabelValues(sport, status).Inc()
	workoutDuration.Observe(elapsed.Seconds())
}

func RecordTSSNotComputable(sport string) {
	tssNotComputableCounter.WithLabelValues(sport).Inc()
}

// RecordParseError counts a file of kind (tcx, gpx, fit, csv) that could not be read.
func RecordParseError(kind string) {
	parseErrorCounter.WithLabelValues(kind).Inc()
}

func RecordPMCComputation() {
	pmcCounter.Inc()
}

func RecordZonesFallback() {
	zonesFallbackCounter.Inc()
}
