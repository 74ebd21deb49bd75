package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lucasjlepore/trainload"
)

type workoutKey struct {
	athleteID  string
	activityID string
}

type dailyKey struct {
	athleteID string
	date      time.Time
}

// Memory is a Store kept in process memory. It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	workouts map[workoutKey]Workout
	zones    map[workoutKey]trainload.ZoneResult
	daily    map[dailyKey]trainload.DailyTrainingLoad
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		workouts: make(map[workoutKey]Workout),
		zones:    make(map[workoutKey]trainload.ZoneResult),
		daily:    make(map[dailyKey]trainload.DailyTrainingLoad),
	}
}

func (m *Memory) SaveWorkout(_ context.Context, w Workout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workouts[workoutKey{w.AthleteID, w.ActivityID}] = w
	return nil
}

func (m *Memory) SaveZones(_ context.Context, athleteID, activityID string, zones trainload.ZoneResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones[workoutKey{athleteID, activityID}] = zones
	return nil
}

func (m *Memory) Workout(_ context.Context, athleteID, activityID string) (Workout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workouts[workoutKey{athleteID, activityID}]
	if !ok {
		return Workout{}, ErrNotFound
	}
	return w, nil
}

func (m *Memory) Zones(_ context.Context, athleteID, activityID string) (trainload.ZoneResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	z, ok := m.zones[workoutKey{athleteID, activityID}]
	if !ok {
		return trainload.ZoneResult{}, ErrNotFound
	}
	return z, nil
}

func (m *Memory) WorkoutLoads(_ context.Context, athleteID string, from, to time.Time) ([]trainload.WorkoutLoad, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]trainload.WorkoutLoad, 0)
	for k, w := range m.workouts {
		if k.athleteID != athleteID || w.TSS == nil || w.StartTime == nil {
			continue
		}
		if !InDateRange(*w.StartTime, from, to) {
			continue
		}
		out = append(out, trainload.WorkoutLoad{Date: *w.StartTime, TSS: *w.TSS})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) UpsertDailyLoad(_ context.Context, load trainload.DailyTrainingLoad) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	load.Date = trainload.Day(load.Date)
	m.daily[dailyKey{load.AthleteID, load.Date}] = load
	return nil
}

func (m *Memory) DailyLoads(_ context.Context, athleteID string, from, to time.Time) ([]trainload.DailyTrainingLoad, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]trainload.DailyTrainingLoad, 0)
	for k, l := range m.daily {
		if k.athleteID == athleteID && InDateRange(l.Date, from, to) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) Close() error { return nil }
