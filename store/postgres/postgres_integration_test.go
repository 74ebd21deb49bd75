//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lucasjlepore/trainload"
	"github.com/lucasjlepore/trainload/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("trainload"),
		postgrescontainer.WithUsername("trainload"),
		postgrescontainer.WithPassword("trainload"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pg) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool)
	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrations are idempotent")
	return s
}

func ptr[T any](v T) *T { return &v }

func TestWorkoutRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	start := time.Date(2025, 7, 2, 23, 30, 0, 0, time.UTC)
	w := store.Workout{
		AthleteID:   "demo_athlete",
		ActivityID:  "1001",
		Sport:       trainload.SportBike,
		StartTime:   &start,
		TSS:         ptr(72.5),
		DurationSec: ptr(3600),
		DurationHr:  ptr(1.0),
	}
	require.NoError(t, s.SaveWorkout(ctx, w))

	w.TSS = ptr(80.0)
	require.NoError(t, s.SaveWorkout(ctx, w), "second save updates the row")

	got, err := s.Workout(ctx, "demo_athlete", "1001")
	require.NoError(t, err)
	require.Equal(t, 80.0, *got.TSS)
	require.True(t, got.StartTime.Equal(start))

	_, err = s.Workout(ctx, "demo_athlete", "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	var zones trainload.ZoneResult
	zones.Source = trainload.ZoneSourceFallback
	zones.HeartRate.Add(trainload.ZoneZ2, 30)
	zones.Power.Add(trainload.ZoneZY, 12.5)
	zones.TotalDurationMinutes = 42.5
	zones.Available.HeartRate = true
	zones.Available.Power = true
	require.NoError(t, s.SaveZones(ctx, "demo_athlete", "1001", zones))

	gotZones, err := s.Zones(ctx, "demo_athlete", "1001")
	require.NoError(t, err)
	require.Equal(t, zones, gotZones)
}

func TestWorkoutLoadsAndDailyMetrics(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	day := func(d, h int) *time.Time {
		v := time.Date(2025, 7, d, h, 0, 0, 0, time.UTC)
		return &v
	}
	for i, w := range []store.Workout{
		{ActivityID: "a", StartTime: day(1, 6), TSS: ptr(50.0)},
		{ActivityID: "b", StartTime: day(2, 23), TSS: ptr(60.0)},
		{ActivityID: "c", StartTime: day(3, 0), TSS: nil},
		{ActivityID: "d", StartTime: day(4, 0), TSS: ptr(70.0)},
	} {
		w.AthleteID = "demo_athlete"
		w.Sport = trainload.SportRun
		require.NoError(t, s.SaveWorkout(ctx, w), i)
	}

	loads, err := s.WorkoutLoads(ctx, "demo_athlete", *day(1, 0), *day(3, 0))
	require.NoError(t, err)
	require.Len(t, loads, 2)
	require.Equal(t, 60.0, loads[1].TSS)

	for _, l := range []trainload.DailyTrainingLoad{
		{AthleteID: "demo_athlete", Date: *day(2, 0), CTL: 10, ATL: 20, TSB: -10},
		{AthleteID: "demo_athlete", Date: *day(2, 15), CTL: 11, ATL: 21, TSB: -10},
		{AthleteID: "demo_athlete", Date: *day(1, 0), CTL: 5, ATL: 8, TSB: -3},
	} {
		require.NoError(t, s.UpsertDailyLoad(ctx, l))
	}

	daily, err := s.DailyLoads(ctx, "demo_athlete", *day(1, 0), *day(31, 0))
	require.NoError(t, err)
	require.Len(t, daily, 2)
	require.Equal(t, 5.0, daily[0].CTL)
	require.Equal(t, 11.0, daily[1].CTL)
	require.True(t, daily[1].Date.Equal(*day(2, 0)))
}
