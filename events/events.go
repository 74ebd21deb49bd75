// Package events publishes pipeline outcomes to downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lucasjlepore/trainload"
)

const (
	TypeWorkoutProcessed = "workout.processed"
	TypeDailyLoadUpdated = "daily_load.updated"
)

// Event is a JSON payload keyed by athlete so one athlete's events stay ordered.
type Event interface {
	EventType() string
	PartitionKey() string
}

// WorkoutProcessed is emitted once per successfully processed workout.
type WorkoutProcessed struct {
	EventID     string          `json:"event_id"`
	RunID       string          `json:"run_id,omitempty"`
	AthleteID   string          `json:"athlete_id"`
	ActivityID  string          `json:"activity_id"`
	Sport       trainload.Sport `json:"sport"`
	StartTime   *time.Time      `json:"start_time,omitempty"`
	TSS         *float64        `json:"tss"`
	DurationSec *int            `json:"duration_sec"`
	ZoneSource  string          `json:"zone_source"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (WorkoutProcessed) EventType() string      { return TypeWorkoutProcessed }
func (e WorkoutProcessed) PartitionKey() string { return e.AthleteID }

// NewWorkoutProcessed builds the event for w.
func NewWorkoutProcessed(runID string, w *trainload.ProcessedWorkout) WorkoutProcessed {
	return WorkoutProcessed{
		EventID:     uuid.NewString(),
		RunID:       runID,
		AthleteID:   w.AthleteID,
		ActivityID:  w.ActivityID,
		Sport:       w.WorkoutType,
		StartTime:   w.StartTime,
		TSS:         w.TSS,
		DurationSec: w.DurationSec,
		ZoneSource:  string(w.ZoneAnalysis.Source),
		OccurredAt:  time.Now().UTC(),
	}
}

// DailyLoadUpdated is emitted after a daily load row is written.
type DailyLoadUpdated struct {
	EventID    string    `json:"event_id"`
	AthleteID  string    `json:"athlete_id"`
	Date       string    `json:"date"`
	CTL        float64   `json:"ctl"`
	ATL        float64   `json:"atl"`
	TSB        float64   `json:"tsb"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (DailyLoadUpdated) EventType() string      { return TypeDailyLoadUpdated }
func (e DailyLoadUpdated) PartitionKey() string { return e.AthleteID }

// NewDailyLoadUpdated builds the event for l.
func NewDailyLoadUpdated(l trainload.DailyTrainingLoad) DailyLoadUpdated {
	return DailyLoadUpdated{
		EventID:    uuid.NewString(),
		AthleteID:  l.AthleteID,
		Date:       l.Date.Format(time.DateOnly),
		CTL:        l.CTL,
		ATL:        l.ATL,
		TSB:        l.TSB,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
func (NopPublisher) Close() error                            { return nil }
