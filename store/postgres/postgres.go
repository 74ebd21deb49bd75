// Package postgres persists workouts, zone breakdowns and daily loads in Postgres.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucasjlepore/trainload"
	"github.com/lucasjlepore/trainload/store"
)

//go:embed schema.sql
var schema string

// workoutNamespace derives stable workout row ids, so re-processing a workout
// updates its row instead of inserting a second one.
var workoutNamespace = uuid.MustParse("0b8f3c52-5d36-4a8e-9a57-6f1f3f0a4c11")

// Store implements store.Store on a pgx pool. Athletes are referenced by name and
// created on first write.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to url and verifies the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(pool), nil
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// WorkoutID is the row id of (athleteID, activityID).
func WorkoutID(athleteID, activityID string) uuid.UUID {
	return uuid.NewSHA1(workoutNamespace, []byte(athleteID+"/"+activityID))
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func ensureAthlete(ctx context.Context, q querier, name string) (uuid.UUID, error) {
	const query = `INSERT INTO athlete (id, name) VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING id`
	var id uuid.UUID
	if err := q.QueryRow(ctx, query, uuid.New(), name).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("athlete %s: %w", name, err)
	}
	return id, nil
}

func (s *Store) athleteID(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `SELECT id FROM athlete WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, store.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("athlete %s: %w", name, err)
	}
	return id, nil
}

func (s *Store) SaveWorkout(ctx context.Context, w store.Workout) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	athlete, err := ensureAthlete(ctx, tx, w.AthleteID)
	if err != nil {
		return err
	}

	const upsert = `INSERT INTO workout (id, athlete_id, activity_id, sport, timestamp, tss, duration_sec, duration_hr)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (athlete_id, activity_id) DO UPDATE SET
            sport = EXCLUDED.sport,
            timestamp = EXCLUDED.timestamp,
            tss = EXCLUDED.tss,
            duration_sec = EXCLUDED.duration_sec,
            duration_hr = EXCLUDED.duration_hr,
            updated_at = NOW()`
	if _, err = tx.Exec(ctx, upsert,
		WorkoutID(w.AthleteID, w.ActivityID),
		athlete,
		w.ActivityID,
		string(w.Sport),
		w.StartTime,
		w.TSS,
		w.DurationSec,
		w.DurationHr,
	); err != nil {
		return fmt.Errorf("save workout %s: %w", w.ActivityID, err)
	}
	return tx.Commit(ctx)
}

var zoneColumns = func() []string {
	cols := make([]string, 0, 2*len(trainload.ZoneNames))
	for _, prefix := range []string{"hr", "power"} {
		for _, z := range trainload.ZoneNames {
			cols = append(cols, fmt.Sprintf("%s_%s_minutes", prefix, z))
		}
	}
	return cols
}()

func zoneValues(r trainload.ZoneResult) []any {
	vals := make([]any, 0, len(zoneColumns))
	for _, m := range []trainload.ZoneMinutes{r.HeartRate, r.Power} {
		for _, z := range trainload.ZoneNames {
			vals = append(vals, m.Get(z))
		}
	}
	return vals
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SaveZones upserts the zone breakdown of a workout. The workout must be saved first.
func (s *Store) SaveZones(ctx context.Context, athleteID, activityID string, zones trainload.ZoneResult) error {
	athlete, err := s.athleteID(ctx, athleteID)
	if err != nil {
		return err
	}

	cols := append([]string{"workout_id", "athlete_id", "source", "fallback_reason"}, zoneColumns...)
	cols = append(cols, "total_duration_minutes", "hr_zones_available", "power_zones_available")

	args := []any{WorkoutID(athleteID, activityID), athlete, string(zones.Source), nullIfEmpty(zones.FallbackReason)}
	args = append(args, zoneValues(zones)...)
	args = append(args, zones.TotalDurationMinutes, zones.Available.HeartRate, zones.Available.Power)

	placeholders := make([]string, len(cols))
	updates := make([]string, 0, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		if c != "workout_id" {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	updates = append(updates, "updated_at = NOW()")

	query := fmt.Sprintf(`INSERT INTO workout_zones (%s) VALUES (%s)
        ON CONFLICT (workout_id) DO UPDATE SET %s`,
		strings.Join(cols, ", "), strings.Join(placeholders, ","), strings.Join(updates, ", "))
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save zones %s: %w", activityID, err)
	}
	return nil
}

func (s *Store) Workout(ctx context.Context, athleteID, activityID string) (store.Workout, error) {
	const query = `SELECT sport, timestamp, tss, duration_sec, duration_hr FROM workout WHERE id = $1`
	w := store.Workout{AthleteID: athleteID, ActivityID: activityID}
	var sport string
	err := s.pool.QueryRow(ctx, query, WorkoutID(athleteID, activityID)).
		Scan(&sport, &w.StartTime, &w.TSS, &w.DurationSec, &w.DurationHr)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Workout{}, store.ErrNotFound
	}
	if err != nil {
		return store.Workout{}, fmt.Errorf("load workout %s: %w", activityID, err)
	}
	w.Sport = trainload.Sport(sport)
	return w, nil
}

func (s *Store) Zones(ctx context.Context, athleteID, activityID string) (trainload.ZoneResult, error) {
	query := fmt.Sprintf(`SELECT source, COALESCE(fallback_reason, ''), %s, total_duration_minutes, hr_zones_available, power_zones_available
        FROM workout_zones WHERE workout_id = $1`, strings.Join(zoneColumns, ", "))

	var (
		out    trainload.ZoneResult
		source string
		mins   = make([]float64, len(zoneColumns))
	)
	dest := []any{&source, &out.FallbackReason}
	for i := range mins {
		dest = append(dest, &mins[i])
	}
	dest = append(dest, &out.TotalDurationMinutes, &out.Available.HeartRate, &out.Available.Power)

	err := s.pool.QueryRow(ctx, query, WorkoutID(athleteID, activityID)).Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return trainload.ZoneResult{}, store.ErrNotFound
	}
	if err != nil {
		return trainload.ZoneResult{}, fmt.Errorf("load zones %s: %w", activityID, err)
	}

	out.Source = trainload.ZoneSource(source)
	n := len(trainload.ZoneNames)
	for i, z := range trainload.ZoneNames {
		out.HeartRate.Add(z, mins[i])
		out.Power.Add(z, mins[n+i])
	}
	return out, nil
}

// WorkoutLoads reads workout timestamps as stored wall clock, so the day of each
// row is the day the athlete trained.
func (s *Store) WorkoutLoads(ctx context.Context, athleteID string, from, to time.Time) ([]trainload.WorkoutLoad, error) {
	const query = `SELECT w.timestamp, w.tss FROM workout w
        JOIN athlete a ON a.id = w.athlete_id
        WHERE a.name = $1
        AND w.timestamp >= $2
        AND w.timestamp < $3
        AND w.tss IS NOT NULL
        ORDER BY w.timestamp ASC`

	rows, err := s.pool.Query(ctx, query, athleteID, trainload.Day(from), trainload.Day(to).AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("workout loads %s: %w", athleteID, err)
	}
	loads, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (trainload.WorkoutLoad, error) {
		var l trainload.WorkoutLoad
		err := row.Scan(&l.Date, &l.TSS)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("workout loads %s: %w", athleteID, err)
	}
	return loads, nil
}

func (s *Store) UpsertDailyLoad(ctx context.Context, load trainload.DailyTrainingLoad) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	athlete, err := ensureAthlete(ctx, tx, load.AthleteID)
	if err != nil {
		return err
	}

	const upsert = `INSERT INTO daily_metrics (athlete_id, date, ctl, atl, tsb)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (athlete_id, date) DO UPDATE SET
            ctl = EXCLUDED.ctl,
            atl = EXCLUDED.atl,
            tsb = EXCLUDED.tsb,
            updated_at = NOW()`
	if _, err = tx.Exec(ctx, upsert, athlete, trainload.Day(load.Date), load.CTL, load.ATL, load.TSB); err != nil {
		return fmt.Errorf("save daily load %s %s: %w", load.AthleteID, load.Date.Format(time.DateOnly), err)
	}
	return tx.Commit(ctx)
}

func (s *Store) DailyLoads(ctx context.Context, athleteID string, from, to time.Time) ([]trainload.DailyTrainingLoad, error) {
	const query = `SELECT d.date, d.ctl, d.atl, d.tsb FROM daily_metrics d
        JOIN athlete a ON a.id = d.athlete_id
        WHERE a.name = $1 AND d.date BETWEEN $2 AND $3
        ORDER BY d.date ASC`

	rows, err := s.pool.Query(ctx, query, athleteID, trainload.Day(from), trainload.Day(to))
	if err != nil {
		return nil, fmt.Errorf("daily loads %s: %w", athleteID, err)
	}
	loads, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (trainload.DailyTrainingLoad, error) {
		l := trainload.DailyTrainingLoad{AthleteID: athleteID}
		err := row.Scan(&l.Date, &l.CTL, &l.ATL, &l.TSB)
		l.Date = trainload.Day(l.Date)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("daily loads %s: %w", athleteID, err)
	}
	return loads, nil
}
