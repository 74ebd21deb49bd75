package trainload

import (
	"math"
	"time"
)

const (
	// CTLDays is the time constant and window of chronic training load.
	CTLDays = 42
	// ATLDays is the time constant and window of acute training load.
	ATLDays = 7
)

// WorkoutLoad is the TSS of one workout on a calendar day.
type WorkoutLoad struct {
	Date time.Time `json:"date"`
	TSS  float64   `json:"tss"`
}

// Day truncates t to its calendar date, keeping t's wall clock, as midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PMCWindowStart is the first day whose workouts contribute to the load of day.
func PMCWindowStart(day time.Time) time.Time {
	return Day(day).AddDate(0, 0, -CTLDays)
}

// ComputeDailyLoad derives CTL, ATL and TSB for day from the workouts around it.
// Workouts after day or older than the window are ignored. CTL and ATL are
// rounded to two decimals and TSB is taken from the rounded values.
func ComputeDailyLoad(athleteID string, workouts []WorkoutLoad, day time.Time) DailyTrainingLoad {
	day = Day(day)
	ctl := round2(weightedLoad(workouts, day, CTLDays))
	atl := round2(weightedLoad(workouts, day, ATLDays))
	return DailyTrainingLoad{
		AthleteID: athleteID,
		Date:      day,
		CTL:       ctl,
		ATL:       atl,
		TSB:       round2(ctl - atl),
	}
}

// weightedLoad is the decay weighted mean TSS of the workouts at most days before day.
func weightedLoad(workouts []WorkoutLoad, day time.Time, days int) float64 {
	decay := math.Exp(-1.0 / float64(days))
	total, weights := 0.0, 0.0
	for _, w := range workouts {
		if !isFinite(w.TSS) {
			continue
		}
		diff := daysBetween(Day(w.Date), day)
		if diff < 0 || diff > days {
			continue
		}
		weight := math.Pow(decay, float64(diff))
		total += w.TSS * weight
		weights += weight
	}
	if weights == 0 {
		return 0
	}
	return total / weights
}

// daysBetween counts calendar days from a to b; both must be UTC midnights.
func daysBetween(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}
