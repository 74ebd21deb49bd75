package pipeline

import (
	"log"
	"time"

	"github.com/lucasjlepore/trainload"
	"github.com/lucasjlepore/trainload/events"
	"github.com/lucasjlepore/trainload/profile"
	"github.com/lucasjlepore/trainload/store"
)

// Trackpoint export formats.
const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"
	FormatNone    = "none"
)

// Options configures a batch run over a download directory.
type Options struct {
	DataDir string
	// OutDir receives the processed files. Empty means DataDir.
	OutDir  string
	Profile *profile.Profile
	// AsOf pins the profile version used for every workout. When zero, each
	// workout uses the version active at its own start time.
	AsOf           time.Time
	// PauseThreshold defaults to trainload.DefaultPauseThreshold.
	PauseThreshold time.Duration
	Format         string // parquet|csv|none
	Overwrite      bool
	Workers        int

	// Store, when set, receives every processed workout and triggers a PMC
	// recomputation for each affected day.
	Store     store.Store
	Publisher events.Publisher
	Analyzer  trainload.ZoneAnalyzer
	Logger    *log.Logger
	RunID     string
}

// Result lists what a run produced. Workouts and Failures are sorted by activity id.
type Result struct {
	RunID      string                        `json:"run_id"`
	OutputDir  string                        `json:"output_dir"`
	Workouts   []WorkoutOutput               `json:"workouts"`
	Failures   []Failure                     `json:"failures,omitempty"`
	DailyLoads []trainload.DailyTrainingLoad `json:"daily_loads,omitempty"`
}

// WorkoutOutput describes one successfully processed workout.
type WorkoutOutput struct {
	ActivityID      string          `json:"activity_id"`
	AthleteID       string          `json:"athlete_id,omitempty"`
	Sport           trainload.Sport `json:"sport"`
	StartTime       *time.Time      `json:"start_time,omitempty"`
	TSS             *float64        `json:"tss"`
	ProcessedPath   string          `json:"processed_path"`
	TrackpointsPath string          `json:"trackpoints_path,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
}

// Failure records a workout the run could not finish. Other workouts are unaffected.
type Failure struct {
	ActivityID string `json:"activity_id"`
	Stage      string `json:"stage"`
	Error      string `json:"error"`
}

// BundleOptions are the per-workout inputs of ProcessBundle.
type BundleOptions struct {
	PauseThreshold time.Duration
	Analyzer       trainload.ZoneAnalyzer
	Logger         *log.Logger
}
