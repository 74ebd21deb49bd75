// Package pmc keeps the stored performance management chart of each athlete current.
package pmc

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/lucasjlepore/trainload"
	"github.com/lucasjlepore/trainload/events"
	"github.com/lucasjlepore/trainload/observability"
	"github.com/lucasjlepore/trainload/store"
)

// Engine computes daily training load from stored workouts and writes it back.
// Computations for one athlete are serialized within the process.
type Engine struct {
	source    store.WorkoutLoadSource
	sink      store.DailyLoadSink
	publisher events.Publisher
	logger    *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Nil disables logging.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithPublisher emits a DailyLoadUpdated event for every row written.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// NewEngine reads workouts from source and upserts results into sink.
func NewEngine(source store.WorkoutLoadSource, sink store.DailyLoadSink, opts ...Option) *Engine {
	e := &Engine{
		source:    source,
		sink:      sink,
		publisher: events.NopPublisher{},
		logger:    log.New(io.Discard, "", 0),
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) lock(athleteID string) func() {
	e.mu.Lock()
	l, ok := e.locks[athleteID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[athleteID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Compute derives and stores the load of athleteID on day.
func (e *Engine) Compute(ctx context.Context, athleteID string, day time.Time) (trainload.DailyTrainingLoad, error) {
	unlock := e.lock(athleteID)
	defer unlock()

	loads, err := e.computeRange(ctx, athleteID, trainload.Day(day), trainload.Day(day))
	if err != nil {
		return trainload.DailyTrainingLoad{}, err
	}
	return loads[0], nil
}

// Backfill recomputes every day in [from, to] and returns the rows in date order.
func (e *Engine) Backfill(ctx context.Context, athleteID string, from, to time.Time) ([]trainload.DailyTrainingLoad, error) {
	from, to = trainload.Day(from), trainload.Day(to)
	if to.Before(from) {
		return nil, fmt.Errorf("backfill %s: range ends %s before it starts %s",
			athleteID, to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	unlock := e.lock(athleteID)
	defer unlock()
	return e.computeRange(ctx, athleteID, from, to)
}

func (e *Engine) computeRange(ctx context.Context, athleteID string, from, to time.Time) ([]trainload.DailyTrainingLoad, error) {
	workouts, err := e.source.WorkoutLoads(ctx, athleteID, trainload.PMCWindowStart(from), to)
	if err != nil {
		return nil, fmt.Errorf("load workouts for %s: %w", athleteID, err)
	}

	var out []trainload.DailyTrainingLoad
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		load := trainload.ComputeDailyLoad(athleteID, workouts, day)
		if err := e.sink.UpsertDailyLoad(ctx, load); err != nil {
			return out, fmt.Errorf("store daily load for %s: %w", athleteID, err)
		}
		observability.RecordPMCComputation()
		e.logger.Printf("athlete=%s date=%s ctl=%.2f atl=%.2f tsb=%.2f",
			athleteID, day.Format(time.DateOnly), load.CTL, load.ATL, load.TSB)

		if err := e.publisher.Publish(ctx, events.NewDailyLoadUpdated(load)); err != nil {
			e.logger.Printf("athlete=%s date=%s publish failed: %v", athleteID, day.Format(time.DateOnly), err)
		}
		out = append(out, load)
	}
	return out, nil
}
