package pmc

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/trainload"
	"github.com/lucasjlepore/trainload/events"
	"github.com/lucasjlepore/trainload/store"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func seed(t *testing.T, s *store.Memory, athlete string, day time.Time, tss float64, id string) {
	t.Helper()
	require.NoError(t, s.SaveWorkout(context.Background(), store.Workout{
		AthleteID: athlete, ActivityID: id, Sport: trainload.SportBike, StartTime: &day, TSS: &tss,
	}))
}

func TestComputeStoresDailyLoad(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	day := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)

	seed(t, s, "a", day.Add(7*time.Hour), 100, "1")
	seed(t, s, "a", day.AddDate(0, 0, -1).Add(18*time.Hour), 50, "2")
	seed(t, s, "a", day.AddDate(0, 0, -60), 500, "old")
	seed(t, s, "a", day.AddDate(0, 0, 1), 500, "future")
	seed(t, s, "b", day, 999, "other")

	pub := &recordingPublisher{}
	e := NewEngine(s, s, WithPublisher(pub))

	got, err := e.Compute(ctx, "a", day.Add(15*time.Hour))
	require.NoError(t, err)

	want := trainload.ComputeDailyLoad("a", []trainload.WorkoutLoad{
		{Date: day, TSS: 100},
		{Date: day.AddDate(0, 0, -1), TSS: 50},
	}, day)
	require.Equal(t, want, got)
	require.InDelta(t, got.CTL-got.ATL, got.TSB, 1e-9)

	stored, err := s.DailyLoads(ctx, "a", day, day)
	require.NoError(t, err)
	require.Equal(t, []trainload.DailyTrainingLoad{got}, stored)

	require.Len(t, pub.events, 1)
	require.Equal(t, events.TypeDailyLoadUpdated, pub.events[0].EventType())
}

func TestComputeWithoutWorkoutsIsZero(t *testing.T) {
	s := store.NewMemory()
	got, err := NewEngine(s, s).Compute(context.Background(), "nobody", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Zero(t, got.CTL)
	require.Zero(t, got.ATL)
	require.Zero(t, got.TSB)
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	from := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	seed(t, s, "a", from, 80, "1")
	seed(t, s, "a", from.AddDate(0, 0, 3), 40, "2")

	var logs bytes.Buffer
	pub := &recordingPublisher{err: errors.New("broker down")}
	e := NewEngine(s, s, WithLogger(log.New(&logs, "", 0)), WithPublisher(pub))

	loads, err := e.Backfill(ctx, "a", from, from.AddDate(0, 0, 4))
	require.NoError(t, err, "publish failures do not fail the backfill")
	require.Len(t, loads, 5)
	for i, l := range loads {
		require.Equal(t, from.AddDate(0, 0, i), l.Date)
	}
	require.Equal(t, 80.0, loads[0].CTL)
	require.Equal(t, loads[1].CTL, loads[0].CTL, "a lone workout keeps its weighted mean")
	require.Contains(t, logs.String(), "publish failed: broker down")

	stored, err := s.DailyLoads(ctx, "a", from, from.AddDate(0, 0, 10))
	require.NoError(t, err)
	require.Len(t, stored, 5)

	_, err = e.Backfill(ctx, "a", from, from.AddDate(0, 0, -1))
	require.Error(t, err)
}

type failingSource struct{}

func (failingSource) WorkoutLoads(context.Context, string, time.Time, time.Time) ([]trainload.WorkoutLoad, error) {
	return nil, errors.New("db down")
}

func TestComputeSourceError(t *testing.T) {
	_, err := NewEngine(failingSource{}, store.NewMemory()).Compute(context.Background(), "a", time.Now())
	require.ErrorContains(t, err, "db down")
}

func TestConcurrentComputeIsSerialized(t *testing.T) {
	s := store.NewMemory()
	day := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	seed(t, s, "a", day, 60, "1")
	e := NewEngine(s, s)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Compute(context.Background(), "a", day)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := s.DailyLoads(context.Background(), "a", day, day)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}
