// Package store defines the persistence boundary of the pipeline and an in-memory
// implementation. Database backends live in the postgres and sqlite subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/lucasjlepore/trainload"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Workout is the persisted summary of a processed workout.
type Workout struct {
	AthleteID   string
	ActivityID  string
	Sport       trainload.Sport
	StartTime   *time.Time
	TSS         *float64
	DurationSec *int
	DurationHr  *float64
}

// WorkoutFrom projects a processed workout onto its persisted summary.
func WorkoutFrom(w *trainload.ProcessedWorkout) Workout {
	return Workout{
		AthleteID:   w.AthleteID,
		ActivityID:  w.ActivityID,
		Sport:       w.WorkoutType,
		StartTime:   w.StartTime,
		TSS:         w.TSS,
		DurationSec: w.DurationSec,
		DurationHr:  w.DurationHr,
	}
}

// WorkoutStore persists processed workouts. Saving the same (athlete, activity) twice
// overwrites the earlier row.
type WorkoutStore interface {
	SaveWorkout(ctx context.Context, w Workout) error
	SaveZones(ctx context.Context, athleteID, activityID string, zones trainload.ZoneResult) error
	Workout(ctx context.Context, athleteID, activityID string) (Workout, error)
	Zones(ctx context.Context, athleteID, activityID string) (trainload.ZoneResult, error)
}

// WorkoutLoadSource returns the load of every workout with a non-null TSS whose start
// date lies in [from, to], both dates inclusive.
type WorkoutLoadSource interface {
	WorkoutLoads(ctx context.Context, athleteID string, from, to time.Time) ([]trainload.WorkoutLoad, error)
}

// DailyLoadSink upserts one row per (athlete, date).
type DailyLoadSink interface {
	UpsertDailyLoad(ctx context.Context, load trainload.DailyTrainingLoad) error
}

// DailyLoadReader lists stored daily loads in date order.
type DailyLoadReader interface {
	DailyLoads(ctx context.Context, athleteID string, from, to time.Time) ([]trainload.DailyTrainingLoad, error)
}

// Store is everything a backend provides.
type Store interface {
	WorkoutStore
	WorkoutLoadSource
	DailyLoadSink
	DailyLoadReader
	Close() error
}

// InDateRange reports whether t falls on a calendar day in [from, to].
func InDateRange(t, from, to time.Time) bool {
	d := trainload.Day(t)
	return !d.Before(trainload.Day(from)) && !d.After(trainload.Day(to))
}
