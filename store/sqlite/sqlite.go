// Package sqlite keeps the pipeline's tables in a local SQLite file through gorm.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/lucasjlepore/trainload"
	"github.com/lucasjlepore/trainload/store"
)

type workoutRow struct {
	AthleteID   string `gorm:"primaryKey"`
	ActivityID  string `gorm:"primaryKey"`
	Sport       string
	Day         string `gorm:"index"`
	StartTime   *time.Time
	TSS         *float64
	DurationSec *int
	DurationHr  *float64
	UpdatedAt   time.Time
}

func (workoutRow) TableName() string { return "workout" }

type zonesRow struct {
	AthleteID      string `gorm:"primaryKey"`
	ActivityID     string `gorm:"primaryKey"`
	Source         string
	FallbackReason string
	HRZ1           float64 `gorm:"column:hr_z1_minutes"`
	HRZ2           float64 `gorm:"column:hr_z2_minutes"`
	HRZX           float64 `gorm:"column:hr_zx_minutes"`
	HRZ3           float64 `gorm:"column:hr_z3_minutes"`
	HRZY           float64 `gorm:"column:hr_zy_minutes"`
	HRZ4           float64 `gorm:"column:hr_z4_minutes"`
	HRZ5           float64 `gorm:"column:hr_z5_minutes"`
	PowerZ1        float64 `gorm:"column:power_z1_minutes"`
	PowerZ2        float64 `gorm:"column:power_z2_minutes"`
	PowerZX        float64 `gorm:"column:power_zx_minutes"`
	PowerZ3        float64 `gorm:"column:power_z3_minutes"`
	PowerZY        float64 `gorm:"column:power_zy_minutes"`
	PowerZ4        float64 `gorm:"column:power_z4_minutes"`
	PowerZ5        float64 `gorm:"column:power_z5_minutes"`
	TotalMinutes   float64 `gorm:"column:total_duration_minutes"`
	HRAvailable    bool    `gorm:"column:hr_zones_available"`
	PowerAvailable bool    `gorm:"column:power_zones_available"`
	UpdatedAt      time.Time
}

func (zonesRow) TableName() string { return "workout_zones" }

type dailyRow struct {
	AthleteID string `gorm:"primaryKey"`
	Date      string `gorm:"primaryKey"`
	CTL       float64
	ATL       float64
	TSB       float64
	UpdatedAt time.Time
}

func (dailyRow) TableName() string { return "daily_metrics" }

// Store implements store.Store on a SQLite database file.
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and migrates its tables.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&workoutRow{}, &zonesRow{}, &dailyRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// wallClock drops the zone but keeps the clock reading, so the stored day is the
// day the athlete trained.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func dateKey(t time.Time) string {
	return trainload.Day(t).Format(time.DateOnly)
}

func (s *Store) SaveWorkout(ctx context.Context, w store.Workout) error {
	row := workoutRow{
		AthleteID:   w.AthleteID,
		ActivityID:  w.ActivityID,
		Sport:       string(w.Sport),
		TSS:         w.TSS,
		DurationSec: w.DurationSec,
		DurationHr:  w.DurationHr,
	}
	if w.StartTime != nil {
		start := wallClock(*w.StartTime)
		row.StartTime = &start
		row.Day = dateKey(start)
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save workout %s: %w", w.ActivityID, err)
	}
	return nil
}

func (s *Store) SaveZones(ctx context.Context, athleteID, activityID string, z trainload.ZoneResult) error {
	row := zonesRow{
		AthleteID:      athleteID,
		ActivityID:     activityID,
		Source:         string(z.Source),
		FallbackReason: z.FallbackReason,
		HRZ1:           z.HeartRate.Z1,
		HRZ2:           z.HeartRate.Z2,
		HRZX:           z.HeartRate.ZX,
		HRZ3:           z.HeartRate.Z3,
		HRZY:           z.HeartRate.ZY,
		HRZ4:           z.HeartRate.Z4,
		HRZ5:           z.HeartRate.Z5,
		PowerZ1:        z.Power.Z1,
		PowerZ2:        z.Power.Z2,
		PowerZX:        z.Power.ZX,
		PowerZ3:        z.Power.Z3,
		PowerZY:        z.Power.ZY,
		PowerZ4:        z.Power.Z4,
		PowerZ5:        z.Power.Z5,
		TotalMinutes:   z.TotalDurationMinutes,
		HRAvailable:    z.Available.HeartRate,
		PowerAvailable: z.Available.Power,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save zones %s: %w", activityID, err)
	}
	return nil
}

func (s *Store) Workout(ctx context.Context, athleteID, activityID string) (store.Workout, error) {
	var row workoutRow
	err := s.db.WithContext(ctx).
		Where("athlete_id = ? AND activity_id = ?", athleteID, activityID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Workout{}, store.ErrNotFound
	}
	if err != nil {
		return store.Workout{}, fmt.Errorf("load workout %s: %w", activityID, err)
	}
	w := store.Workout{
		AthleteID:   row.AthleteID,
		ActivityID:  row.ActivityID,
		Sport:       trainload.Sport(row.Sport),
		TSS:         row.TSS,
		DurationSec: row.DurationSec,
		DurationHr:  row.DurationHr,
	}
	if row.StartTime != nil {
		start := row.StartTime.UTC()
		w.StartTime = &start
	}
	return w, nil
}

func (s *Store) Zones(ctx context.Context, athleteID, activityID string) (trainload.ZoneResult, error) {
	var row zonesRow
	err := s.db.WithContext(ctx).
		Where("athlete_id = ? AND activity_id = ?", athleteID, activityID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return trainload.ZoneResult{}, store.ErrNotFound
	}
	if err != nil {
		return trainload.ZoneResult{}, fmt.Errorf("load zones %s: %w", activityID, err)
	}
	var out trainload.ZoneResult
	out.Source = trainload.ZoneSource(row.Source)
	out.FallbackReason = row.FallbackReason
	out.HeartRate = trainload.ZoneMinutes{Z1: row.HRZ1, Z2: row.HRZ2, ZX: row.HRZX, Z3: row.HRZ3, ZY: row.HRZY, Z4: row.HRZ4, Z5: row.HRZ5}
	out.Power = trainload.ZoneMinutes{Z1: row.PowerZ1, Z2: row.PowerZ2, ZX: row.PowerZX, Z3: row.PowerZ3, ZY: row.PowerZY, Z4: row.PowerZ4, Z5: row.PowerZ5}
	out.TotalDurationMinutes = row.TotalMinutes
	out.Available.HeartRate = row.HRAvailable
	out.Available.Power = row.PowerAvailable
	return out, nil
}

func (s *Store) WorkoutLoads(ctx context.Context, athleteID string, from, to time.Time) ([]trainload.WorkoutLoad, error) {
	var rows []workoutRow
	err := s.db.WithContext(ctx).
		Where("athlete_id = ? AND day BETWEEN ? AND ? AND tss IS NOT NULL", athleteID, dateKey(from), dateKey(to)).
		Order("start_time ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("workout loads %s: %w", athleteID, err)
	}
	out := make([]trainload.WorkoutLoad, 0, len(rows))
	for _, r := range rows {
		if r.StartTime == nil || r.TSS == nil {
			continue
		}
		out = append(out, trainload.WorkoutLoad{Date: r.StartTime.UTC(), TSS: *r.TSS})
	}
	return out, nil
}

func (s *Store) UpsertDailyLoad(ctx context.Context, load trainload.DailyTrainingLoad) error {
	row := dailyRow{
		AthleteID: load.AthleteID,
		Date:      dateKey(load.Date),
		CTL:       load.CTL,
		ATL:       load.ATL,
		TSB:       load.TSB,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "athlete_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"ctl", "atl", "tsb", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save daily load %s %s: %w", load.AthleteID, row.Date, err)
	}
	return nil
}

func (s *Store) DailyLoads(ctx context.Context, athleteID string, from, to time.Time) ([]trainload.DailyTrainingLoad, error) {
	var rows []dailyRow
	err := s.db.WithContext(ctx).
		Where("athlete_id = ? AND date BETWEEN ? AND ?", athleteID, dateKey(from), dateKey(to)).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("daily loads %s: %w", athleteID, err)
	}
	out := make([]trainload.DailyTrainingLoad, 0, len(rows))
	for _, r := range rows {
		d, err := time.Parse(time.DateOnly, r.Date)
		if err != nil {
			return nil, fmt.Errorf("daily loads %s: bad date %q: %w", athleteID, r.Date, err)
		}
		out = append(out, trainload.DailyTrainingLoad{AthleteID: athleteID, Date: d, CTL: r.CTL, ATL: r.ATL, TSB: r.TSB})
	}
	return out, nil
}
