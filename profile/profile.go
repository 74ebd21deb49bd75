// Package profile loads athlete profiles: effective-dated versions of the training
// thresholds and zone tables the pipeline scores workouts against.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lucasjlepore/trainload"
)

// ErrNoActiveBaseline is returned when no profile version covers the requested time.
var ErrNoActiveBaseline = errors.New("no active athlete baseline")

// Profile is every known version of one athlete's thresholds and zones.
type Profile struct {
	AthleteID string
	Versions  []Version
}

// Version is one effective-dated profile. ValidTo is nil for the open version.
type Version struct {
	AthleteID   string
	ValidFrom   time.Time
	ValidTo     *time.Time
	LastUpdated *time.Time
	Baseline    trainload.AthleteBaseline
	Zones       trainload.ZoneBoundaries

	LactateThresholdHR   float64
	LactateThresholdPow  float64
	ThresholdPacePerKm   float64
	ThresholdPaceDisplay string
}

// Covers reports whether the version is in effect at t.
func (v Version) Covers(t time.Time) bool {
	if t.Before(v.ValidFrom) {
		return false
	}
	return v.ValidTo == nil || t.Before(*v.ValidTo)
}

// Active returns the version in effect at t. When versions overlap the one with the
// latest ValidFrom wins.
func (p *Profile) Active(at time.Time) (*Version, error) {
	var best *Version
	for i := range p.Versions {
		v := &p.Versions[i]
		if !v.Covers(at) {
			continue
		}
		if best == nil || v.ValidFrom.After(best.ValidFrom) {
			best = v
		}
	}
	if best == nil {
		return nil, fmt.Errorf("athlete %s at %s: %w", p.AthleteID, at.UTC().Format(time.RFC3339), ErrNoActiveBaseline)
	}
	return best, nil
}

// Latest returns the version with the latest ValidFrom.
func (p *Profile) Latest() (*Version, error) {
	if len(p.Versions) == 0 {
		return nil, fmt.Errorf("athlete %s: %w", p.AthleteID, ErrNoActiveBaseline)
	}
	return &p.Versions[len(p.Versions)-1], nil
}

// Option configures Load.
type Option func(*loader)

// WithLogger sets the logger that reports zone table problems.
func WithLogger(logger *log.Logger) Option {
	return func(l *loader) {
		l.logger = logger
	}
}

type loader struct {
	logger *log.Logger
}

// Load reads a profile JSON file. Both a single profile document and a
// {"athlete_id", "versions": [...]} wrapper are accepted.
func Load(path string, opts ...Option) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profile: %w", err)
	}
	defer f.Close()
	return Decode(f, opts...)
}

// Decode reads a profile document from r.
func Decode(r io.Reader, opts ...Option) (*Profile, error) {
	l := &loader{logger: log.New(io.Discard, "", 0)}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.New(io.Discard, "", 0)
	}

	var doc wrapperDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}

	docs := doc.Versions
	if len(docs) == 0 {
		docs = []versionDoc{doc.versionDoc}
	}

	p := &Profile{AthleteID: doc.AthleteID, Versions: make([]Version, 0, len(docs))}
	for i, vd := range docs {
		v, err := l.version(vd)
		if err != nil {
			return nil, fmt.Errorf("profile version %d: %w", i, err)
		}
		if v.AthleteID == "" {
			v.AthleteID = p.AthleteID
		}
		if p.AthleteID == "" {
			p.AthleteID = v.AthleteID
		}
		p.Versions = append(p.Versions, v)
	}
	sort.SliceStable(p.Versions, func(i, j int) bool {
		return p.Versions[i].ValidFrom.Before(p.Versions[j].ValidFrom)
	})
	return p, nil
}

type wrapperDoc struct {
	versionDoc
	Versions []versionDoc `json:"versions"`
}

type versionDoc struct {
	AthleteID   string     `json:"athlete_id"`
	LastUpdated string     `json:"last_updated"`
	ValidFrom   string     `json:"valid_from"`
	ValidTo     string     `json:"valid_to"`
	Zones       zonesDoc   `json:"zones"`
	TestDates   *testDates `json:"test_dates,omitempty"`
}

type testDates struct {
	BikeFTPTest *string `json:"bike_ftp_test"`
	RunLTPTest  *string `json:"run_ltp_test"`
	SwimCSSTest *string `json:"swim_css_test"`
}

type zonesDoc struct {
	HeartRate struct {
		LTHR  float64              `json:"lt_hr"`
		Zones map[string][]float64 `json:"zones"`
	} `json:"heart_rate"`
	BikePower struct {
		FTP   float64              `json:"ftp"`
		Zones map[string][]float64 `json:"zones"`
	} `json:"bike_power"`
	RunPower struct {
		LTP           float64              `json:"ltp"`
		CriticalPower float64              `json:"critical_power"`
		Zones         map[string][]float64 `json:"zones"`
	} `json:"run_power"`
	RunPace struct {
		ThresholdPacePerKm string              `json:"threshold_pace_per_km"`
		Zones              map[string][]string `json:"zones"`
	} `json:"run_pace"`
	Swim struct {
		CSSPacePer100m string              `json:"css_pace_per_100m"`
		Zones          map[string][]string `json:"zones"`
	} `json:"swim"`
}

func (l *loader) version(d versionDoc) (Version, error) {
	v := Version{
		AthleteID:           d.AthleteID,
		LactateThresholdHR:  d.Zones.HeartRate.LTHR,
		LactateThresholdPow: d.Zones.RunPower.LTP,
		Baseline: trainload.AthleteBaseline{
			FTP:           d.Zones.BikePower.FTP,
			CriticalPower: d.Zones.RunPower.CriticalPower,
		},
	}

	var err error
	if v.LastUpdated, err = parseOptionalTime(d.LastUpdated); err != nil {
		return Version{}, fmt.Errorf("last_updated: %w", err)
	}
	from, err := parseOptionalTime(d.ValidFrom)
	if err != nil {
		return Version{}, fmt.Errorf("valid_from: %w", err)
	}
	if from != nil {
		v.ValidFrom = *from
	}
	if v.ValidTo, err = parseOptionalTime(d.ValidTo); err != nil {
		return Version{}, fmt.Errorf("valid_to: %w", err)
	}
	if v.ValidTo != nil && !v.ValidTo.After(v.ValidFrom) {
		return Version{}, fmt.Errorf("valid_to %s is not after valid_from %s", v.ValidTo.Format(time.RFC3339), v.ValidFrom.Format(time.RFC3339))
	}

	if css := strings.TrimSpace(d.Zones.Swim.CSSPacePer100m); css != "" {
		secs, err := ParsePace(css)
		if err != nil {
			return Version{}, fmt.Errorf("css_pace_per_100m: %w", err)
		}
		v.Baseline.CSSSecondsPer100m = secs
	}
	if tp := strings.TrimSpace(d.Zones.RunPace.ThresholdPacePerKm); tp != "" {
		secs, err := ParsePace(tp)
		if err != nil {
			return Version{}, fmt.Errorf("threshold_pace_per_km: %w", err)
		}
		v.ThresholdPacePerKm = secs
		v.ThresholdPaceDisplay = tp
	}

	if v.Zones.HeartRate, err = numericTable(d.Zones.HeartRate.Zones); err != nil {
		return Version{}, fmt.Errorf("heart_rate zones: %w", err)
	}
	if v.Zones.BikePower, err = numericTable(d.Zones.BikePower.Zones); err != nil {
		return Version{}, fmt.Errorf("bike_power zones: %w", err)
	}
	if v.Zones.RunPower, err = numericTable(d.Zones.RunPower.Zones); err != nil {
		return Version{}, fmt.Errorf("run_power zones: %w", err)
	}
	if v.Zones.RunPace, err = paceTable(d.Zones.RunPace.Zones); err != nil {
		return Version{}, fmt.Errorf("run_pace zones: %w", err)
	}
	if v.Zones.SwimPace, err = paceTable(d.Zones.Swim.Zones); err != nil {
		return Version{}, fmt.Errorf("swim zones: %w", err)
	}

	l.reportOverlaps(v)
	return v, nil
}

// reportOverlaps logs zone pairs sharing values. Classification keeps the first zone
// in table order, so a shared boundary value lands in the lower zone.
func (l *loader) reportOverlaps(v Version) {
	tables := []struct {
		name  string
		table trainload.ZoneTable
	}{
		{"heart_rate", v.Zones.HeartRate},
		{"bike_power", v.Zones.BikePower},
		{"run_power", v.Zones.RunPower},
		{"run_pace", v.Zones.RunPace},
		{"swim_pace", v.Zones.SwimPace},
	}
	for _, t := range tables {
		overlaps := t.table.Overlaps()
		if len(overlaps) == 0 {
			continue
		}
		pairs := make([]string, 0, len(overlaps))
		for _, o := range overlaps {
			pairs = append(pairs, o.String())
		}
		l.logger.Printf("athlete=%s %s zones overlap (%s); first zone in table order wins", v.AthleteID, t.name, strings.Join(pairs, ", "))
	}
}

func numericTable(zones map[string][]float64) (trainload.ZoneTable, error) {
	return buildTable(zones, func(v float64) (float64, error) { return v, nil })
}

func paceTable(zones map[string][]string) (trainload.ZoneTable, error) {
	return buildTable(zones, ParsePace)
}

// buildTable orders zones canonically and stores each range with Lower <= Upper.
// Zone names outside the canonical seven are rejected.
func buildTable[T any](zones map[string][]T, conv func(T) (float64, error)) (trainload.ZoneTable, error) {
	if len(zones) == 0 {
		return nil, nil
	}
	known := make(map[trainload.ZoneName]bool, len(trainload.ZoneNames))
	for _, z := range trainload.ZoneNames {
		known[z] = true
	}
	for name := range zones {
		if !known[trainload.ZoneName(strings.ToLower(name))] {
			return nil, fmt.Errorf("unknown zone %q", name)
		}
	}

	table := make(trainload.ZoneTable, 0, len(zones))
	for _, z := range trainload.ZoneNames {
		bounds, ok := lookupZone(zones, z)
		if !ok {
			continue
		}
		if len(bounds) != 2 {
			return nil, fmt.Errorf("zone %s: want [lower, upper], got %d values", z, len(bounds))
		}
		a, err := conv(bounds[0])
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", z, err)
		}
		b, err := conv(bounds[1])
		if err != nil {
			return nil, fmt.Errorf("zone %s: %w", z, err)
		}
		if a > b {
			a, b = b, a
		}
		table = append(table, trainload.ZoneBound{Zone: z, Lower: a, Upper: b})
	}
	return table, nil
}

func lookupZone[T any](zones map[string][]T, z trainload.ZoneName) ([]T, bool) {
	if b, ok := zones[string(z)]; ok {
		return b, true
	}
	for name, b := range zones {
		if strings.EqualFold(name, string(z)) {
			return b, true
		}
	}
	return nil, false
}

// ParsePace converts "m:ss" to seconds.
func ParsePace(s string) (float64, error) {
	s = strings.TrimSpace(s)
	m, sec, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("pace %q: want m:ss", s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 {
		return 0, fmt.Errorf("pace %q: invalid minutes", s)
	}
	seconds, err := strconv.ParseFloat(sec, 64)
	if err != nil || seconds < 0 || seconds >= 60 {
		return 0, fmt.Errorf("pace %q: invalid seconds", s)
	}
	return float64(minutes)*60 + seconds, nil
}

func parseOptionalTime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized time %q", s)
}
