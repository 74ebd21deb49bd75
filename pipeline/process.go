package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lucasjlepore/trainload"
	"github.com/lucasjlepore/trainload/ingest"
	"github.com/lucasjlepore/trainload/observability"
	"github.com/lucasjlepore/trainload/profile"
)

// ProcessBundle turns the raw files of one workout into a ProcessedWorkout. Files
// that cannot be read are logged, counted and reported as warnings; the workout is
// still produced from whatever did parse. The profile version is the one active at
// asOf, or at the workout's start when asOf is zero. A nil profile leaves every
// threshold unset.
func ProcessBundle(ctx context.Context, b ingest.Bundle, prof *profile.Profile, asOf time.Time, opts BundleOptions) (*trainload.ProcessedWorkout, []string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	pause := opts.PauseThreshold
	if pause <= 0 {
		pause = trainload.DefaultPauseThreshold
	}

	var warnings []string
	warn := func(kind string, err error) {
		observability.RecordParseError(kind)
		logger.Printf("activity=%s %s: %v", b.ActivityID, kind, err)
		warnings = append(warnings, fmt.Sprintf("%s: %v", kind, err))
	}

	workout := &trainload.ProcessedWorkout{ActivityID: b.ActivityID, WorkoutType: trainload.SportOther}

	tcxData, src, err := readSource("tcx", b.TCXPath)
	if err == nil {
		workout.Sources = append(workout.Sources, src)
		act, parseErr := ingest.ParseTCX(bytes.NewReader(tcxData))
		if parseErr != nil {
			warn("tcx", parseErr)
		} else {
			workout.WorkoutType = act.Sport
			workout.StartTime = act.StartTime
			workout.Trackpoints = act.Trackpoints
		}
	} else {
		warn("tcx", err)
	}

	if b.GPXPath != "" {
		if src, err := sourceOf("gpx", b.GPXPath); err == nil {
			workout.Sources = append(workout.Sources, src)
		}
		sport, err := ingest.ClassifyWithRoute(workout.WorkoutType, b.GPXPath)
		if err != nil {
			warn("gpx", err)
		} else {
			workout.WorkoutType = sport
		}
	}

	var steps []trainload.ActivityTargetStep
	if b.ZIPPath != "" {
		if src, err := sourceOf("zip", b.ZIPPath); err == nil {
			workout.Sources = append(workout.Sources, src)
		}
		fitFile, entry, err := ingest.LoadFIT(b.ZIPPath)
		switch {
		case errors.Is(err, ingest.ErrNoFITEntry):
			logger.Printf("activity=%s archive has no fit recording", b.ActivityID)
		case err != nil:
			warn("fit", err)
		default:
			workout.Sources = append(workout.Sources, trainload.SourceFile{Kind: "fit", Name: entry, SHA256: fitFile.SHA256})
			for _, w := range fitFile.Warnings() {
				logger.Printf("activity=%s fit: %s", b.ActivityID, w)
			}
			if workout.WorkoutType.HasPower() {
				workout.Trackpoints = trainload.MergePowerSamples(workout.Trackpoints, fitFile.PowerSamples())
			}
			steps = fitFile.WorkoutSteps()
		}
	}
	workout.Trackpoints = trainload.NormalizeTrackpoints(workout.Trackpoints)

	var swim *trainload.SwimSummary
	if workout.WorkoutType == trainload.SportSwim && b.CSVPath != "" {
		if src, err := sourceOf("csv", b.CSVPath); err == nil {
			workout.Sources = append(workout.Sources, src)
		}
		summary, err := ingest.ReadSwimSummaryFile(b.CSVPath)
		if err != nil {
			warn("csv", err)
		} else {
			swim = &summary
		}
	}

	version := resolveVersion(prof, asOf, workout.StartTime, logger, b.ActivityID)
	var (
		baseline trainload.AthleteBaseline
		zones    trainload.ZoneBoundaries
	)
	if version != nil {
		baseline, zones = version.Baseline, version.Zones
		workout.AthleteID = version.AthleteID
	} else if prof != nil {
		workout.AthleteID = prof.AthleteID
	}

	var start time.Time
	if workout.StartTime != nil {
		start = *workout.StartTime
	}

	var (
		load       trainload.TSSResult
		computable bool
		zoneResult trainload.ZoneResult
		annotated  []trainload.Trackpoint
	)
	points := workout.Trackpoints
	sport := workout.WorkoutType

	var g errgroup.Group
	g.Go(func() error {
		load, computable = trainload.ComputeTSS(sport, points, swim, baseline, pause)
		return nil
	})
	g.Go(func() error {
		zoneResult = trainload.AnalyzeZones(ctx, opts.Analyzer, trainload.ZoneInput{Sport: sport, Trackpoints: points, Zones: zones})
		return nil
	})
	g.Go(func() error {
		annotated = trainload.MapTargets(points, steps, sport, start)
		return nil
	})
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, warnings, err
	}

	workout.SetLoad(load, computable)
	if !computable {
		observability.RecordTSSNotComputable(string(sport))
	}
	workout.ZoneAnalysis = zoneResult
	if zoneResult.Source == trainload.ZoneSourceFallback {
		observability.RecordZonesFallback()
		if zoneResult.FallbackReason != "" {
			logger.Printf("activity=%s zone analyzer rejected: %s", b.ActivityID, zoneResult.FallbackReason)
		}
	}
	workout.Trackpoints = annotated
	workout.TargetInfo = trainload.TargetInfo{
		Steps:      steps,
		Compliance: trainload.StepComplianceOf(annotated, steps),
	}
	if workout.Trackpoints == nil {
		workout.Trackpoints = []trainload.Trackpoint{}
	}
	return workout, warnings, nil
}

func resolveVersion(prof *profile.Profile, asOf time.Time, start *time.Time, logger *log.Logger, activityID string) *profile.Version {
	if prof == nil {
		logger.Printf("activity=%s no athlete profile; thresholds unset", activityID)
		return nil
	}
	at := asOf
	if at.IsZero() && start != nil {
		at = *start
	}
	if at.IsZero() {
		v, err := prof.Latest()
		if err != nil {
			logger.Printf("activity=%s %v", activityID, err)
			return nil
		}
		return v
	}
	v, err := prof.Active(at)
	if err != nil {
		logger.Printf("activity=%s %v at %s; thresholds unset", activityID, err, at.Format(time.RFC3339))
		return nil
	}
	return v
}

func readSource(kind, path string) ([]byte, trainload.SourceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, trainload.SourceFile{}, err
	}
	sum := sha256.Sum256(data)
	return data, trainload.SourceFile{Kind: kind, Name: filepath.Base(path), SHA256: hex.EncodeToString(sum[:])}, nil
}

func sourceOf(kind, path string) (trainload.SourceFile, error) {
	_, src, err := readSource(kind, path)
	return src, err
}
