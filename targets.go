package trainload

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MapTargets annotates every trackpoint that falls inside a structured step with the
// step's index, intensity and target range in sport units. Elapsed time is measured
// from start, or from the earliest trackpoint when start is zero. Only time steps
// advance the step clock; the first open step reached owns everything after it.
// Trackpoints outside every step are returned untouched.
func MapTargets(points []Trackpoint, steps []ActivityTargetStep, sport Sport, start time.Time) []Trackpoint {
	out := make([]Trackpoint, len(points))
	copy(out, points)
	if len(steps) == 0 || len(out) == 0 {
		return out
	}

	if start.IsZero() {
		start = out[0].Timestamp
		for _, p := range out[1:] {
			if p.Timestamp.Before(start) {
				start = p.Timestamp
			}
		}
	}

	annotations := make([]*TargetAnnotation, len(steps))
	for i, step := range steps {
		annotations[i] = stepAnnotation(step, sport)
	}

	for i := range out {
		elapsed := out[i].Timestamp.Sub(start)
		if elapsed < 0 {
			continue
		}
		if idx, ok := stepAt(steps, elapsed); ok {
			a := *annotations[idx]
			out[i].TargetAnnotation = &a
		}
	}
	return out
}

func stepAt(steps []ActivityTargetStep, elapsed time.Duration) (int, bool) {
	var cumulative time.Duration
	for i, step := range steps {
		switch step.DurationKind {
		case DurationOpen:
			return i, true
		case DurationTime:
			if step.DurationMS == nil || *step.DurationMS <= 0 {
				continue
			}
			d := time.Duration(*step.DurationMS) * time.Millisecond
			if cumulative <= elapsed && elapsed < cumulative+d {
				return i, true
			}
			cumulative += d
		}
	}
	return 0, false
}

func stepAnnotation(step ActivityTargetStep, sport Sport) *TargetAnnotation {
	a := &TargetAnnotation{
		WorkoutStepIndex: step.Index,
		WorkoutIntensity: step.Intensity,
	}

	switch {
	case sport == SportSwim:
		if t, ok := ParseSwimStepTargets(step.Name); ok {
			a.TargetPaceLow = floatPtr(t.PaceLowSeconds)
			a.TargetPaceHigh = floatPtr(t.PaceHighSeconds)
			a.TargetDistance = floatPtr(t.Distance)
			a.TargetUnit = t.Unit
		}
	case sport == SportRun && strings.HasPrefix(step.TargetType, "speed"):
		a.TargetSpeedLow = copyFloat(step.TargetLow)
		a.TargetSpeedHigh = copyFloat(step.TargetHigh)
		// faster speed is the lower pace number
		a.TargetPaceHigh = paceFromSpeed(step.TargetLow)
		a.TargetPaceLow = paceFromSpeed(step.TargetHigh)
	case strings.HasPrefix(step.TargetType, "power") || (sport == SportBike && step.TargetType == ""):
		a.TargetPowerLow = copyFloat(step.TargetLow)
		a.TargetPowerHigh = copyFloat(step.TargetHigh)
	}
	return a
}

// paceFromSpeed converts a workout speed (m/s * 1000) to seconds per km.
func paceFromSpeed(raw *float64) *float64 {
	if raw == nil || safePositive(*raw) == 0 {
		return nil
	}
	return floatPtr(round2(1000.0 / (*raw / 1000.0)))
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return floatPtr(*v)
}

// SwimStepTargets is the pace range parsed from a swim step name.
type SwimStepTargets struct {
	PaceLowSeconds  float64 `json:"target_pace_low"`
	PaceHighSeconds float64 `json:"target_pace_high"`
	Distance        float64 `json:"target_distance"`
	Unit            string  `json:"target_unit"`
}

var swimStepPattern = regexp.MustCompile(`(?i)pace\s+(\d{1,2}):(\d{2})\s*[–—-]\s*(\d{1,2}):(\d{2})\s*/\s*(\d+)\s*(yards|meters)`)

// ParseSwimStepTargets reads names like "Pace 2:26–2:43/100 yards".
func ParseSwimStepTargets(name string) (SwimStepTargets, bool) {
	m := swimStepPattern.FindStringSubmatch(name)
	if m == nil {
		return SwimStepTargets{}, false
	}
	low := atof(m[1])*60 + atof(m[2])
	high := atof(m[3])*60 + atof(m[4])
	return SwimStepTargets{
		PaceLowSeconds:  low,
		PaceHighSeconds: high,
		Distance:        atof(m[5]),
		Unit:            strings.ToLower(m[6]),
	}, true
}

// atof is only fed digit runs from swimStepPattern.
func atof(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// StepCompliance describes how a structured step was actually executed.
type StepCompliance struct {
	StepIndex       int      `json:"step_index"`
	Samples         int      `json:"samples"`
	AvgPower        *float64 `json:"observed_avg_power_w,omitempty"`
	NormalizedPower *float64 `json:"observed_np_w,omitempty"`
	PowerStdDev     *float64 `json:"power_stddev,omitempty"`
	AvgHeartRate    *float64 `json:"observed_avg_hr_bpm,omitempty"`
	TimeInTargetPct *float64 `json:"time_in_target_pct,omitempty"`
}

// StepComplianceOf summarizes annotated trackpoints per step, in step order. Steps
// that own no trackpoints are omitted.
func StepComplianceOf(points []Trackpoint, steps []ActivityTargetStep) []StepCompliance {
	type acc struct {
		samples  int
		powers   []float64
		hrs      []float64
		inTarget int
		lo, hi   float64
	}
	byStep := make(map[int]*acc, len(steps))

	for _, p := range points {
		a := p.TargetAnnotation
		if a == nil {
			continue
		}
		s, ok := byStep[a.WorkoutStepIndex]
		if !ok {
			s = &acc{lo: -1, hi: -1}
			if a.TargetPowerLow != nil && a.TargetPowerHigh != nil {
				s.lo, s.hi = *a.TargetPowerLow, *a.TargetPowerHigh
			}
			byStep[a.WorkoutStepIndex] = s
		}
		s.samples++
		if p.HeartRate != nil {
			s.hrs = append(s.hrs, float64(*p.HeartRate))
		}
		if p.Power == nil {
			continue
		}
		pw := float64(*p.Power)
		s.powers = append(s.powers, pw)
		if s.lo > 0 && s.hi > 0 && pw >= s.lo && pw <= s.hi {
			s.inTarget++
		}
	}

	out := make([]StepCompliance, 0, len(byStep))
	for _, step := range steps {
		s, ok := byStep[step.Index]
		if !ok {
			continue
		}
		delete(byStep, step.Index)

		c := StepCompliance{StepIndex: step.Index, Samples: s.samples}
		if len(s.hrs) > 0 {
			c.AvgHeartRate = floatPtr(round2(average(s.hrs)))
		}
		if len(s.powers) > 0 {
			avg := average(s.powers)
			c.AvgPower = floatPtr(round2(avg))
			c.NormalizedPower = floatPtr(round2(normalizedPower(s.powers)))
			c.PowerStdDev = floatPtr(round2(stddev(s.powers, avg)))
			if s.lo > 0 && s.hi > 0 {
				c.TimeInTargetPct = floatPtr(round2(float64(s.inTarget) / float64(len(s.powers)) * 100.0))
			}
		}
		out = append(out, c)
	}
	return out
}

// normalizedPower is the 4th-power mean of the 30-sample rolling average.
func normalizedPower(power []float64) float64 {
	if len(power) < 30 {
		return average(power)
	}
	window := 30
	sum := 0.0
	for i := 0; i < window; i++ {
		sum += power[i]
	}
	totalFourth := 0.0
	count := 0
	for i := window - 1; i < len(power); i++ {
		if i >= window {
			sum += power[i] - power[i-window]
		}
		totalFourth += math.Pow(sum/float64(window), 4)
		count++
	}
	return math.Pow(totalFourth/float64(count), 0.25)
}

func stddev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
