// Package trainload turns raw endurance workout recordings into training-load signals:
// per-workout TSS, time in zone, structured target annotations and the athlete-level
// CTL/ATL/TSB performance management values.
//
// Everything in this package is a pure function of its inputs. File decoding lives in
// the ingest and fitmsg packages, persistence in store, orchestration in pipeline.
package trainload

import (
	"time"
)

// Sport is the normalized workout type.
type Sport string

const (
	SportBike  Sport = "bike"
	SportRun   Sport = "run"
	SportSwim  Sport = "swim"
	SportOther Sport = "other"
)

// HasPower reports whether power zones and power based TSS apply to the sport.
func (s Sport) HasPower() bool {
	return s == SportBike || s == SportRun
}

// Trackpoint is one time-sampled observation. Optional metrics are nil when the source
// did not carry them or carried an unparsable value.
type Trackpoint struct {
	Timestamp  time.Time `json:"timestamp"`
	HeartRate  *int      `json:"heart_rate,omitempty"`
	Power      *int      `json:"power,omitempty"`
	Watts      *int      `json:"watts,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Cadence    *int      `json:"cadence,omitempty"`
	RunCadence *int      `json:"run_cadence,omitempty"`
	Altitude   *float64  `json:"altitude,omitempty"`
	Distance   *float64  `json:"distance,omitempty"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`

	// PowerFields holds merged power channels other than the primary one
	// (accumulated_power, developer fields, ...), keyed by source field name.
	PowerFields map[string]float64 `json:"power_fields,omitempty"`

	*TargetAnnotation
}

// TargetAnnotation is attached to trackpoints that fall inside a structured workout step.
type TargetAnnotation struct {
	WorkoutStepIndex int      `json:"workout_step_index"`
	WorkoutIntensity string   `json:"workout_intensity,omitempty"`
	TargetPowerLow   *float64 `json:"target_power_low,omitempty"`
	TargetPowerHigh  *float64 `json:"target_power_high,omitempty"`
	TargetSpeedLow   *float64 `json:"target_speed_low,omitempty"`
	TargetSpeedHigh  *float64 `json:"target_speed_high,omitempty"`
	TargetPaceLow    *float64 `json:"target_pace_low,omitempty"`
	TargetPaceHigh   *float64 `json:"target_pace_high,omitempty"`
	TargetDistance   *float64 `json:"target_distance,omitempty"`
	TargetUnit       string   `json:"target_unit,omitempty"`
}

// DurationKind says how a structured step ends.
type DurationKind string

const (
	DurationTime DurationKind = "time"
	DurationOpen DurationKind = "open"
	// DurationOther covers steps that end on distance, heart rate, calories or a
	// repeat condition. They neither own trackpoints nor advance the step clock.
	DurationOther DurationKind = "other"
)

// TargetKind classifies the target range of a step.
type TargetKind string

const (
	TargetCustom TargetKind = "custom"
	TargetZone   TargetKind = "zone"
	TargetNone   TargetKind = "none"
)

// ActivityTargetStep is one structured interval of a planned workout.
type ActivityTargetStep struct {
	Index         int          `json:"index"`
	Name          string       `json:"name,omitempty"`
	DurationKind  DurationKind `json:"duration_kind"`
	DurationMS    *int64       `json:"duration_ms,omitempty"`
	DurationValue *float64     `json:"duration_value,omitempty"` // raw end condition of DurationOther steps
	TargetType    string       `json:"target_type,omitempty"`    // power|speed|heart_rate|cadence|open|...
	TargetKind    TargetKind   `json:"target_kind"`
	TargetValue   *float64     `json:"target_value,omitempty"` // zone number of TargetZone steps
	TargetLow     *float64     `json:"target_low,omitempty"`
	TargetHigh    *float64     `json:"target_high,omitempty"`
	TargetUnits   string       `json:"target_units,omitempty"` // mm_per_s|rpm; empty for power and heart rate as recorded
	Intensity     string       `json:"intensity,omitempty"`
}

// ZoneName names one of the seven zones used by every boundary table.
type ZoneName string

const (
	ZoneZ1 ZoneName = "z1"
	ZoneZ2 ZoneName = "z2"
	ZoneZX ZoneName = "zx"
	ZoneZ3 ZoneName = "z3"
	ZoneZY ZoneName = "zy"
	ZoneZ4 ZoneName = "z4"
	ZoneZ5 ZoneName = "z5"
)

// ZoneNames lists the zones in table order. Classification walks this order.
var ZoneNames = []ZoneName{ZoneZ1, ZoneZ2, ZoneZX, ZoneZ3, ZoneZY, ZoneZ4, ZoneZ5}

// ZoneBound is one inclusive [Lower, Upper] range.
type ZoneBound struct {
	Zone  ZoneName `json:"zone"`
	Lower float64  `json:"lower"`
	Upper float64  `json:"upper"`
}

// ZoneTable is an ordered boundary table for one metric kind.
type ZoneTable []ZoneBound

// ZoneBoundaries holds one table per metric kind from the athlete profile.
type ZoneBoundaries struct {
	HeartRate ZoneTable `json:"heart_rate,omitempty"`
	BikePower ZoneTable `json:"bike_power,omitempty"`
	RunPower  ZoneTable `json:"run_power,omitempty"`
	RunPace   ZoneTable `json:"run_pace,omitempty"`
	SwimPace  ZoneTable `json:"swim_pace,omitempty"`
}

// PowerTable returns the power table used for the sport, or nil.
func (z ZoneBoundaries) PowerTable(sport Sport) ZoneTable {
	switch sport {
	case SportBike:
		return z.BikePower
	case SportRun:
		return z.RunPower
	default:
		return nil
	}
}

// AthleteBaseline carries the per-sport thresholds TSS is normalized against.
// Zero means unset.
type AthleteBaseline struct {
	FTP               float64 `json:"ftp"`
	CriticalPower     float64 `json:"critical_power"`
	CSSSecondsPer100m float64 `json:"css_seconds_per_100m"`
}

// ProcessedWorkout is the pipeline output for one raw file set.
type ProcessedWorkout struct {
	AthleteID    string       `json:"athlete_id,omitempty"`
	ActivityID   string       `json:"activity_id"`
	WorkoutType  Sport        `json:"workout_type"`
	StartTime    *time.Time   `json:"start_time,omitempty"`
	Trackpoints  []Trackpoint `json:"trackpoints"`
	TSS          *float64     `json:"tss"`
	DurationSec  *int         `json:"duration_sec"`
	DurationHr   *float64     `json:"duration_hr"`
	ZoneAnalysis ZoneResult   `json:"zone_analysis"`
	TargetInfo   TargetInfo   `json:"target_info"`
	Sources      []SourceFile `json:"sources,omitempty"`
}

// SetLoad copies a TSS result onto the workout. Not computable results leave the
// load fields nil.
func (w *ProcessedWorkout) SetLoad(res TSSResult, ok bool) {
	if !ok {
		w.TSS, w.DurationSec, w.DurationHr = nil, nil, nil
		return
	}
	tss, sec, hr := res.TSS, res.DurationSec, res.DurationHr
	w.TSS, w.DurationSec, w.DurationHr = &tss, &sec, &hr
}

// SourceFile records which raw file contributed to a workout.
type SourceFile struct {
	Kind   string `json:"kind"` // tcx|gpx|fit|csv
	Name   string `json:"name"`
	SHA256 string `json:"sha256,omitempty"`
}

// TargetInfo lists the structured steps of the workout and how they were executed.
type TargetInfo struct {
	Steps      []ActivityTargetStep `json:"workout_steps"`
	Compliance []StepCompliance     `json:"step_compliance,omitempty"`
}

// DailyTrainingLoad is the performance management state of one athlete on one day.
type DailyTrainingLoad struct {
	AthleteID string    `json:"athlete_id"`
	Date      time.Time `json:"date"`
	CTL       float64   `json:"ctl"`
	ATL       float64   `json:"atl"`
	TSB       float64   `json:"tsb"`
}
