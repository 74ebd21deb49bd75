package trainload

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	secondsPerHour = 3600.0

	// DefaultPauseThreshold is the gap at and above which the recorder is
	// considered paused.
	DefaultPauseThreshold = 5 * time.Second
)

// TSSResult is a computed training stress score. It only has meaning when the
// calculator also reported ok.
type TSSResult struct {
	TSS         float64 `json:"tss"`
	DurationSec int     `json:"duration_sec"`
	DurationHr  float64 `json:"duration_hr"`
	IF          float64 `json:"intensity_factor"`
}

// SwimSummary holds the totals of a lap/split export's Summary row.
type SwimSummary struct {
	DistanceMeters float64 `json:"distance_meters"`
	TimeSeconds    float64 `json:"time_seconds"`
}

// MovingTime sums the gaps between consecutive trackpoints that are shorter than
// threshold. The input is not modified; a sorted copy is walked.
func MovingTime(points []Trackpoint, threshold time.Duration) time.Duration {
	if len(points) < 2 {
		return 0
	}
	if threshold <= 0 {
		threshold = DefaultPauseThreshold
	}

	ts := make([]time.Time, 0, len(points))
	for _, p := range points {
		ts = append(ts, p.Timestamp)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	var moving time.Duration
	for i := 1; i < len(ts); i++ {
		delta := ts[i].Sub(ts[i-1])
		if delta < threshold {
			moving += delta
		}
	}
	return moving
}

// BikeTSS scores a ride against FTP using the trackpoints that carry power.
func BikeTSS(points []Trackpoint, ftp float64, pause time.Duration) (TSSResult, bool) {
	return powerTSS(points, ftp, pause)
}

// RunTSS scores a run against critical power using the trackpoints that carry power.
func RunTSS(points []Trackpoint, criticalPower float64, pause time.Duration) (TSSResult, bool) {
	return powerTSS(points, criticalPower, pause)
}

func powerTSS(points []Trackpoint, threshold float64, pause time.Duration) (TSSResult, bool) {
	if safePositive(threshold) == 0 {
		return TSSResult{}, false
	}

	withPower := make([]Trackpoint, 0, len(points))
	powers := make([]float64, 0, len(points))
	for _, p := range points {
		if p.Power == nil {
			continue
		}
		withPower = append(withPower, p)
		powers = append(powers, float64(*p.Power))
	}
	if len(withPower) == 0 {
		return TSSResult{}, false
	}

	moving := MovingTime(withPower, pause).Seconds()
	durationHr := moving / secondsPerHour
	intensity := average(powers) / threshold

	return TSSResult{
		TSS:         round2(durationHr * intensity * intensity * 100.0),
		DurationSec: int(moving),
		DurationHr:  round4(durationHr),
		IF:          intensity,
	}, true
}

// SwimTSS scores a swim from its Summary totals against CSS given in seconds per 100 m.
func SwimTSS(summary SwimSummary, cssSecondsPer100m float64) (TSSResult, bool) {
	if safePositive(cssSecondsPer100m) == 0 || safePositive(summary.TimeSeconds) == 0 {
		return TSSResult{}, false
	}

	cssSpeed := 100.0 / (cssSecondsPer100m / 60.0) // m/min
	timeMin := summary.TimeSeconds / 60.0
	nss := summary.DistanceMeters / timeMin
	intensity := nss / cssSpeed
	durationHr := timeMin / 60.0

	return TSSResult{
		TSS:         round2(math.Pow(intensity, 3) * durationHr * 100.0),
		DurationSec: int(summary.TimeSeconds),
		DurationHr:  round4(durationHr),
		IF:          intensity,
	}, true
}

// ComputeTSS dispatches to the calculator for the sport. Sports without a load
// model are not computable.
func ComputeTSS(sport Sport, points []Trackpoint, swim *SwimSummary, baseline AthleteBaseline, pause time.Duration) (TSSResult, bool) {
	switch sport {
	case SportBike:
		return BikeTSS(points, baseline.FTP, pause)
	case SportRun:
		return RunTSS(points, baseline.CriticalPower, pause)
	case SportSwim:
		if swim == nil {
			return TSSResult{}, false
		}
		return SwimTSS(*swim, baseline.CSSSecondsPer100m)
	default:
		return TSSResult{}, false
	}
}

// ParseClock converts "h:mm:ss", "m:ss" (fractional seconds allowed) or plain
// seconds into seconds.
func ParseClock(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty clock value")
	}

	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("clock value %q: too many fields", s)
	}

	total := 0.0
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || !isFinite(v) || v < 0 {
			return 0, fmt.Errorf("clock value %q: invalid field %q", s, part)
		}
		if i < len(parts)-1 && v != math.Trunc(v) {
			return 0, fmt.Errorf("clock value %q: fractional %q", s, part)
		}
		total = total*60 + v
	}
	return total, nil
}

func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	count := 0
	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		total += v
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func safePositive(v float64) float64 {
	if !isFinite(v) || v <= 0 {
		return 0
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func floatPtr(v float64) *float64 {
	return &v
}
