package trainload

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func hrSeries(values ...int) []Trackpoint {
	points := make([]Trackpoint, 0, len(values))
	for i, v := range values {
		points = append(points, Trackpoint{
			Timestamp: testStart.Add(time.Duration(i) * time.Second),
			HeartRate: intPtr(v),
		})
	}
	return points
}

func testZones() ZoneBoundaries {
	return ZoneBoundaries{
		HeartRate: ZoneTable{
			{Zone: ZoneZ1, Lower: 120, Upper: 139},
			{Zone: ZoneZ2, Lower: 140, Upper: 159},
		},
		BikePower: ZoneTable{
			{Zone: ZoneZ1, Lower: 0, Upper: 150},
			{Zone: ZoneZ2, Lower: 151, Upper: 200},
			{Zone: ZoneZ3, Lower: 201, Upper: 300},
		},
	}
}

func TestBinZonesHeartRate(t *testing.T) {
	got := BinZones(hrSeries(125, 130, 135, 140), testZones(), SportRun)

	if got.HeartRate.Z1 != 0.03 || got.HeartRate.Z2 != 0.02 {
		t.Fatalf("hr zones = %+v", got.HeartRate)
	}
	if got.TotalDurationMinutes != 0.05 {
		t.Fatalf("total = %v, want 0.05", got.TotalDurationMinutes)
	}
	if !got.Available.HeartRate || got.Available.Power {
		t.Fatalf("availability = %+v", got.Available)
	}
}

func TestBinZonesEmpty(t *testing.T) {
	got := BinZones(nil, testZones(), SportBike)
	if got != (ZoneAnalysis{}) {
		t.Fatalf("expected zero analysis, got %+v", got)
	}
}

func TestBinZonesPowerOnlyForBikeAndRun(t *testing.T) {
	points := steadyPower(120, 180)
	for i := range points {
		points[i].HeartRate = intPtr(145)
	}

	bike := BinZones(points, testZones(), SportBike)
	if bike.Power.Z2 != 2 || !bike.Available.Power {
		t.Fatalf("bike power zones = %+v", bike.Power)
	}
	if bike.HeartRate.Z2 != 2 {
		t.Fatalf("bike hr zones = %+v", bike.HeartRate)
	}

	swim := BinZones(points, testZones(), SportSwim)
	if swim.Power.Total() != 0 || swim.Available.Power {
		t.Fatalf("swim should not bin power: %+v", swim)
	}

	run := BinZones(points, testZones(), SportRun)
	if run.Power.Total() != 0 || !run.Available.Power {
		t.Fatalf("run without run_power table: %+v", run)
	}
}

func TestBinZonesAttributedPlusUnattributedIsTotal(t *testing.T) {
	// 100 is outside every heart rate zone
	points := hrSeries(125, 100, 100, 145, 150, 100)
	points = append(points, Trackpoint{Timestamp: testStart.Add(20 * time.Second), HeartRate: intPtr(130)})

	got := BinZones(points, testZones(), SportBike)
	unattributed := 3.0 / 60.0
	if diff := math.Abs(got.HeartRate.Total() + unattributed - got.TotalDurationMinutes); diff > 0.02 {
		t.Fatalf("zone sum %v + %v != total %v", got.HeartRate.Total(), unattributed, got.TotalDurationMinutes)
	}
	// the 15s pause is credited to the point after it
	if got.HeartRate.Z1 != 0.25 {
		t.Fatalf("z1 = %v, want 0.25", got.HeartRate.Z1)
	}
}

func TestClassifyFirstMatchWins(t *testing.T) {
	table := ZoneTable{
		{Zone: ZoneZ1, Lower: 100, Upper: 150},
		{Zone: ZoneZ2, Lower: 150, Upper: 200},
	}
	if z, ok := table.Classify(150); !ok || z != ZoneZ1 {
		t.Fatalf("Classify(150) = %v %v, want z1", z, ok)
	}
	if _, ok := table.Classify(201); ok {
		t.Fatalf("Classify(201) should not match")
	}

	overlaps := table.Overlaps()
	if len(overlaps) != 1 || overlaps[0].String() != "z1/z2" {
		t.Fatalf("overlaps = %v", overlaps)
	}
	if got := testZones().BikePower.Overlaps(); len(got) != 0 {
		t.Fatalf("unexpected overlaps %v", got)
	}
}

type stubAnalyzer struct {
	out ZoneAnalysis
	err error
}

func (s stubAnalyzer) AnalyzeZones(context.Context, ZoneInput) (ZoneAnalysis, error) {
	return s.out, s.err
}

func TestAnalyzeZonesUsesValidAgentOutput(t *testing.T) {
	agent := stubAnalyzer{out: ZoneAnalysis{
		HeartRate:            ZoneMinutes{Z1: 10.123, Z3: 5},
		TotalDurationMinutes: 15.129,
		Available:            ZonesAvailable{HeartRate: true},
	}}

	got := AnalyzeZones(context.Background(), agent, ZoneInput{Sport: SportRun, Trackpoints: hrSeries(125, 130)})
	if got.Source != ZoneSourceAgent {
		t.Fatalf("source = %s, want agent", got.Source)
	}
	if got.HeartRate.Z1 != 10.12 || got.TotalDurationMinutes != 15.13 {
		t.Fatalf("agent output not rounded: %+v", got.ZoneAnalysis)
	}
}

func TestAnalyzeZonesFallback(t *testing.T) {
	in := ZoneInput{Sport: SportRun, Trackpoints: hrSeries(125, 130, 135, 140), Zones: testZones()}
	want := BinZones(in.Trackpoints, in.Zones, in.Sport)

	cases := map[string]ZoneAnalyzer{
		"none":     nil,
		"error":    stubAnalyzer{err: errors.New("timeout")},
		"negative": stubAnalyzer{out: ZoneAnalysis{Power: ZoneMinutes{Z4: -1}}},
		"nan":      stubAnalyzer{out: ZoneAnalysis{TotalDurationMinutes: math.NaN()}},
	}
	for name, analyzer := range cases {
		got := AnalyzeZones(context.Background(), analyzer, in)
		if got.Source != ZoneSourceFallback {
			t.Fatalf("%s: source = %s", name, got.Source)
		}
		if got.ZoneAnalysis != want {
			t.Fatalf("%s: fallback differs from BinZones: %+v", name, got.ZoneAnalysis)
		}
		if name != "none" && got.FallbackReason == "" {
			t.Fatalf("%s: missing fallback reason", name)
		}
	}
}
