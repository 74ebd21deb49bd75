package trainload

import (
	"context"
	"fmt"
	"sort"
)

// ZoneMinutes is time in zone, in minutes, for the seven named zones.
type ZoneMinutes struct {
	Z1 float64 `json:"z1_minutes"`
	Z2 float64 `json:"z2_minutes"`
	ZX float64 `json:"zx_minutes"`
	Z3 float64 `json:"z3_minutes"`
	ZY float64 `json:"zy_minutes"`
	Z4 float64 `json:"z4_minutes"`
	Z5 float64 `json:"z5_minutes"`
}

func (m *ZoneMinutes) slot(zone ZoneName) *float64 {
	switch zone {
	case ZoneZ1:
		return &m.Z1
	case ZoneZ2:
		return &m.Z2
	case ZoneZX:
		return &m.ZX
	case ZoneZ3:
		return &m.Z3
	case ZoneZY:
		return &m.ZY
	case ZoneZ4:
		return &m.Z4
	case ZoneZ5:
		return &m.Z5
	default:
		return nil
	}
}

// Get returns the minutes credited to zone.
func (m ZoneMinutes) Get(zone ZoneName) float64 {
	if p := m.slot(zone); p != nil {
		return *p
	}
	return 0
}

// Add credits minutes to zone. Unknown zones are ignored.
func (m *ZoneMinutes) Add(zone ZoneName, minutes float64) {
	if p := m.slot(zone); p != nil {
		*p += minutes
	}
}

// Total is the sum over all zones.
func (m ZoneMinutes) Total() float64 {
	return m.Z1 + m.Z2 + m.ZX + m.Z3 + m.ZY + m.Z4 + m.Z5
}

func (m ZoneMinutes) rounded() ZoneMinutes {
	for _, z := range ZoneNames {
		p := m.slot(z)
		*p = round2(*p)
	}
	return m
}

func (m ZoneMinutes) validate() error {
	for _, z := range ZoneNames {
		v := m.Get(z)
		if !isFinite(v) || v < 0 {
			return fmt.Errorf("zone %s: invalid minutes %v", z, v)
		}
	}
	return nil
}

// ZonesAvailable reports which metric streams were present in the data.
type ZonesAvailable struct {
	HeartRate bool `json:"heart_rate"`
	Power     bool `json:"power"`
}

// ZoneAnalysis is the time-in-zone breakdown of one workout.
type ZoneAnalysis struct {
	HeartRate            ZoneMinutes    `json:"heart_rate_zones"`
	Power                ZoneMinutes    `json:"power_zones"`
	TotalDurationMinutes float64        `json:"total_duration_minutes"`
	Available            ZonesAvailable `json:"zones_available"`
}

// Validate checks the analysis is well formed: every zone present, finite and
// non-negative.
func (a ZoneAnalysis) Validate() error {
	if err := a.HeartRate.validate(); err != nil {
		return fmt.Errorf("heart rate zones: %w", err)
	}
	if err := a.Power.validate(); err != nil {
		return fmt.Errorf("power zones: %w", err)
	}
	if !isFinite(a.TotalDurationMinutes) || a.TotalDurationMinutes < 0 {
		return fmt.Errorf("invalid total duration %v", a.TotalDurationMinutes)
	}
	return nil
}

// ZoneSource says who produced a ZoneResult.
type ZoneSource string

const (
	ZoneSourceAgent    ZoneSource = "agent"
	ZoneSourceFallback ZoneSource = "fallback"
)

// ZoneResult is a zone analysis tagged with its source. FallbackReason says why an
// external analyzer's answer was not used.
type ZoneResult struct {
	Source         ZoneSource `json:"source"`
	FallbackReason string     `json:"fallback_reason,omitempty"`
	ZoneAnalysis
}

// ZoneInput is everything a zone analyzer gets to see.
type ZoneInput struct {
	Sport       Sport
	Trackpoints []Trackpoint
	Zones       ZoneBoundaries
}

// ZoneAnalyzer is an external, possibly non-deterministic, zone analysis backend.
type ZoneAnalyzer interface {
	AnalyzeZones(ctx context.Context, in ZoneInput) (ZoneAnalysis, error)
}

// AnalyzeZones asks analyzer for a breakdown and falls back to BinZones when no
// analyzer is configured, it fails, or its answer does not validate. The result is
// always usable.
func AnalyzeZones(ctx context.Context, analyzer ZoneAnalyzer, in ZoneInput) ZoneResult {
	if analyzer == nil {
		return ZoneResult{
			Source:       ZoneSourceFallback,
			ZoneAnalysis: BinZones(in.Trackpoints, in.Zones, in.Sport),
		}
	}

	out, err := analyzer.AnalyzeZones(ctx, in)
	if err == nil {
		err = out.Validate()
	}
	if err != nil {
		return ZoneResult{
			Source:         ZoneSourceFallback,
			FallbackReason: err.Error(),
			ZoneAnalysis:   BinZones(in.Trackpoints, in.Zones, in.Sport),
		}
	}

	out.HeartRate = out.HeartRate.rounded()
	out.Power = out.Power.rounded()
	out.TotalDurationMinutes = round2(out.TotalDurationMinutes)
	return ZoneResult{Source: ZoneSourceAgent, ZoneAnalysis: out}
}

// BinZones credits the gap since the previous trackpoint to the zone of the current
// one. Gaps are not filtered for pauses. Power is only binned for bike and run.
func BinZones(points []Trackpoint, zones ZoneBoundaries, sport Sport) ZoneAnalysis {
	var out ZoneAnalysis
	if len(points) == 0 {
		return out
	}

	sorted := make([]Trackpoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	for _, p := range sorted {
		if p.HeartRate != nil {
			out.Available.HeartRate = true
		}
		if sport.HasPower() && p.Power != nil {
			out.Available.Power = true
		}
	}
	powerTable := zones.PowerTable(sport)

	totalSeconds := 0.0
	for i, p := range sorted {
		seconds := 0.0
		if i > 0 {
			seconds = p.Timestamp.Sub(sorted[i-1].Timestamp).Seconds()
		}
		totalSeconds += seconds
		minutes := seconds / 60.0

		if p.HeartRate != nil {
			if zone, ok := zones.HeartRate.Classify(float64(*p.HeartRate)); ok {
				out.HeartRate.Add(zone, minutes)
			}
		}
		if out.Available.Power && p.Power != nil && len(powerTable) > 0 {
			if zone, ok := powerTable.Classify(float64(*p.Power)); ok {
				out.Power.Add(zone, minutes)
			}
		}
	}

	out.HeartRate = out.HeartRate.rounded()
	out.Power = out.Power.rounded()
	out.TotalDurationMinutes = round2(totalSeconds / 60.0)
	return out
}

// Classify returns the first zone in table order whose inclusive range holds v.
func (t ZoneTable) Classify(v float64) (ZoneName, bool) {
	for _, b := range t {
		if b.Lower <= v && v <= b.Upper {
			return b.Zone, true
		}
	}
	return "", false
}

// ZoneOverlap names two zones of one table whose ranges intersect.
type ZoneOverlap struct {
	First  ZoneName
	Second ZoneName
}

func (o ZoneOverlap) String() string {
	return fmt.Sprintf("%s/%s", o.First, o.Second)
}

// Overlaps lists every pair of zones whose inclusive ranges intersect. Bounds may
// be given in either order (pace tables run from slow to fast).
func (t ZoneTable) Overlaps() []ZoneOverlap {
	var out []ZoneOverlap
	for i := 0; i < len(t); i++ {
		lo1, hi1 := ordered(t[i].Lower, t[i].Upper)
		for j := i + 1; j < len(t); j++ {
			lo2, hi2 := ordered(t[j].Lower, t[j].Upper)
			if lo1 <= hi2 && lo2 <= hi1 {
				out = append(out, ZoneOverlap{First: t[i].Zone, Second: t[j].Zone})
			}
		}
	}
	return out
}

func ordered(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}
