// Package pipeline runs the normalization and training-load computations over a
// directory of downloaded workouts and writes one processed record per workout.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lucasjlepore/trainload"
	"github.com/lucasjlepore/trainload/events"
	"github.com/lucasjlepore/trainload/ingest"
	"github.com/lucasjlepore/trainload/observability"
	"github.com/lucasjlepore/trainload/pmc"
	"github.com/lucasjlepore/trainload/store"
)

// Run processes every workout bundle under opts.DataDir. A workout that fails is
// recorded in Result.Failures and the run continues; only invalid options, an
// unreadable data directory or cancellation make Run itself fail.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.DataDir) == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = FormatParquet
	}
	if format != FormatParquet && format != FormatCSV && format != FormatNone {
		return nil, fmt.Errorf("unsupported format %q (expected parquet|csv|none)", format)
	}
	outDir := opts.OutDir
	if outDir == "" {
		outDir = opts.DataDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := runLogger(opts.Logger, runID)
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	bundles, err := ingest.DiscoverBundles(opts.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Printf("found %d workouts in %s", len(bundles), opts.DataDir)

	res := &Result{RunID: runID, OutputDir: outDir}
	var mu sync.Mutex
	affected := make(map[string]map[time.Time]struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, b := range bundles {
		g.Go(func() error {
			out, w, failure := processOne(gctx, b, opts, format, outDir, runID, publisher, logger)
			if err := gctx.Err(); err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if failure != nil {
				res.Failures = append(res.Failures, *failure)
				return nil
			}
			res.Workouts = append(res.Workouts, out)
			if opts.Store != nil && w.TSS != nil && w.StartTime != nil && w.AthleteID != "" {
				days, ok := affected[w.AthleteID]
				if !ok {
					days = make(map[time.Time]struct{})
					affected[w.AthleteID] = days
				}
				days[trainload.Day(*w.StartTime)] = struct{}{}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(res.Workouts, func(i, j int) bool { return res.Workouts[i].ActivityID < res.Workouts[j].ActivityID })
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].ActivityID < res.Failures[j].ActivityID })

	if opts.Store != nil {
		loads, err := recomputeLoads(ctx, opts.Store, publisher, logger, affected)
		if err != nil {
			return nil, err
		}
		res.DailyLoads = loads
	}

	logger.Printf("processed=%d failed=%d daily_loads=%d", len(res.Workouts), len(res.Failures), len(res.DailyLoads))
	return res, nil
}

func runLogger(base *log.Logger, runID string) *log.Logger {
	if base == nil {
		return log.New(io.Discard, "", 0)
	}
	return log.New(base.Writer(), base.Prefix()+"run="+runID+" ", base.Flags())
}

func processOne(ctx context.Context, b ingest.Bundle, opts Options, format, outDir, runID string, publisher events.Publisher, logger *log.Logger) (WorkoutOutput, *trainload.ProcessedWorkout, *Failure) {
	started := time.Now()
	fail := func(sport trainload.Sport, stage string, err error) (WorkoutOutput, *trainload.ProcessedWorkout, *Failure) {
		observability.RecordWorkout(string(sport), observability.StatusFailed, time.Since(started))
		logger.Printf("activity=%s %s failed: %v", b.ActivityID, stage, err)
		return WorkoutOutput{}, nil, &Failure{ActivityID: b.ActivityID, Stage: stage, Error: err.Error()}
	}

	w, warnings, err := ProcessBundle(ctx, b, opts.Profile, opts.AsOf, BundleOptions{
		PauseThreshold: opts.PauseThreshold,
		Analyzer:       opts.Analyzer,
		Logger:         logger,
	})
	if err != nil {
		return fail(trainload.SportOther, "process", err)
	}

	out := WorkoutOutput{
		ActivityID:    w.ActivityID,
		AthleteID:     w.AthleteID,
		Sport:         w.WorkoutType,
		StartTime:     w.StartTime,
		TSS:           w.TSS,
		ProcessedPath: filepath.Join(outDir, b.Stem()+"_processed.json"),
		Warnings:      warnings,
	}
	if err := ensureWritable(out.ProcessedPath, opts.Overwrite); err != nil {
		return fail(w.WorkoutType, "write", err)
	}
	if err := writeJSON(out.ProcessedPath, w); err != nil {
		return fail(w.WorkoutType, "write", fmt.Errorf("write %s: %w", filepath.Base(out.ProcessedPath), err))
	}
	if format != FormatNone {
		out.TrackpointsPath = filepath.Join(outDir, b.Stem()+"_trackpoints."+format)
		if err := ensureWritable(out.TrackpointsPath, opts.Overwrite); err != nil {
			return fail(w.WorkoutType, "write", err)
		}
		if err := writeTrackpoints(out.TrackpointsPath, format, w.Trackpoints); err != nil {
			return fail(w.WorkoutType, "write", fmt.Errorf("write %s: %w", filepath.Base(out.TrackpointsPath), err))
		}
	}

	if opts.Store != nil {
		if w.AthleteID == "" {
			return fail(w.WorkoutType, "store", errors.New("workout has no athlete id"))
		}
		if err := opts.Store.SaveWorkout(ctx, store.WorkoutFrom(w)); err != nil {
			return fail(w.WorkoutType, "store", err)
		}
		if err := opts.Store.SaveZones(ctx, w.AthleteID, w.ActivityID, w.ZoneAnalysis); err != nil {
			return fail(w.WorkoutType, "store", err)
		}
	}

	if err := publisher.Publish(ctx, events.NewWorkoutProcessed(runID, w)); err != nil {
		logger.Printf("activity=%s publish failed: %v", b.ActivityID, err)
	}

	observability.RecordWorkout(string(w.WorkoutType), observability.StatusProcessed, time.Since(started))
	if w.TSS != nil {
		logger.Printf("activity=%s sport=%s tss=%.2f", b.ActivityID, w.WorkoutType, *w.TSS)
	} else {
		logger.Printf("activity=%s sport=%s tss not computable", b.ActivityID, w.WorkoutType)
	}
	return out, w, nil
}

// ensureWritable refuses to replace an existing output unless overwrite is set.
func ensureWritable(path string, overwrite bool) error {
	if overwrite {
		return nil
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("output exists: %s (set overwrite=true to replace)", path)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return err
	}
}

// recomputeLoads refreshes the daily load of every (athlete, day) that received a
// workout with a TSS, in athlete then date order.
func recomputeLoads(ctx context.Context, s store.Store, publisher events.Publisher, logger *log.Logger, affected map[string]map[time.Time]struct{}) ([]trainload.DailyTrainingLoad, error) {
	engine := pmc.NewEngine(s, s, pmc.WithLogger(logger), pmc.WithPublisher(publisher))

	athletes := make([]string, 0, len(affected))
	for a := range affected {
		athletes = append(athletes, a)
	}
	sort.Strings(athletes)

	var out []trainload.DailyTrainingLoad
	for _, athlete := range athletes {
		days := make([]time.Time, 0, len(affected[athlete]))
		for d := range affected[athlete] {
			days = append(days, d)
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

		for _, day := range days {
			load, err := engine.Compute(ctx, athlete, day)
			if err != nil {
				return out, fmt.Errorf("pmc %s %s: %w", athlete, day.Format(time.DateOnly), err)
			}
			out = append(out, load)
		}
	}
	return out, nil
}
