package profile

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/trainload"
)

const singleProfile = `{
  "athlete_id": "demo_athlete",
  "last_updated": "2025-06-30T08:00:00",
  "zones": {
    "heart_rate": {"lt_hr": 160, "zones": {"z1": [100,110], "z2": [111,120], "zx": [121,130], "z3": [131,140], "zy": [141,150], "z4": [151,160], "z5": [161,170]}},
    "bike_power": {"ftp": 250, "zones": {"z5": [275,350], "z1": [0,100], "z2": [100,150]}},
    "run_power": {"ltp": 200, "critical_power": 225, "zones": {"z1": [0,80]}},
    "run_pace": {"threshold_pace_per_km": "4:00", "zones": {"z1": ["6:00","5:30"], "z2": ["5:30","5:00"]}},
    "swim": {"css_pace_per_100m": "1:40", "zones": {"z1": ["2:15","2:00"]}}
  },
  "test_dates": {"bike_ftp_test": null, "run_ltp_test": null, "swim_css_test": null}
}`

func TestDecodeSingleProfile(t *testing.T) {
	var logs bytes.Buffer
	p, err := Decode(strings.NewReader(singleProfile), WithLogger(log.New(&logs, "", 0)))
	require.NoError(t, err)
	require.Equal(t, "demo_athlete", p.AthleteID)
	require.Len(t, p.Versions, 1)

	v := p.Versions[0]
	require.Equal(t, trainload.AthleteBaseline{FTP: 250, CriticalPower: 225, CSSSecondsPer100m: 100}, v.Baseline)
	require.Equal(t, 240.0, v.ThresholdPacePerKm)
	require.Equal(t, 160.0, v.LactateThresholdHR)
	require.Nil(t, v.ValidTo)
	require.NotNil(t, v.LastUpdated)

	require.Len(t, v.Zones.HeartRate, 7)
	require.Equal(t, trainload.ZoneZX, v.Zones.HeartRate[2].Zone)

	// canonical order regardless of document order
	require.Equal(t, []trainload.ZoneName{trainload.ZoneZ1, trainload.ZoneZ2, trainload.ZoneZ5},
		[]trainload.ZoneName{v.Zones.BikePower[0].Zone, v.Zones.BikePower[1].Zone, v.Zones.BikePower[2].Zone})

	// pace bounds are seconds with lower <= upper
	require.Equal(t, trainload.ZoneBound{Zone: trainload.ZoneZ1, Lower: 330, Upper: 360}, v.Zones.RunPace[0])
	require.Equal(t, trainload.ZoneBound{Zone: trainload.ZoneZ1, Lower: 120, Upper: 135}, v.Zones.SwimPace[0])

	require.Contains(t, logs.String(), "bike_power zones overlap (z1/z2)")
	require.NotContains(t, logs.String(), "heart_rate")

	active, err := p.Active(time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 250.0, active.Baseline.FTP)
}

const versionedProfile = `{
  "athlete_id": "demo_athlete",
  "versions": [
    {"valid_from": "2025-03-01", "zones": {"bike_power": {"ftp": 260}}},
    {"valid_from": "2025-01-01", "valid_to": "2025-03-01", "zones": {"bike_power": {"ftp": 240}}}
  ]
}`

func TestActiveVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(versionedProfile), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	require.Len(t, p.Versions, 2)
	require.Equal(t, "demo_athlete", p.Versions[0].AthleteID)

	cases := []struct {
		at  time.Time
		ftp float64
	}{
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), 240},
		{time.Date(2025, 2, 28, 23, 59, 0, 0, time.UTC), 240},
		{time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 260},
		{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 260},
	}
	for _, c := range cases {
		v, err := p.Active(c.at)
		require.NoError(t, err)
		require.Equal(t, c.ftp, v.Baseline.FTP, c.at.String())
	}

	_, err = p.Active(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrNoActiveBaseline)

	latest, err := p.Latest()
	require.NoError(t, err)
	require.Equal(t, 260.0, latest.Baseline.FTP)
}

func TestDecodeRejectsBadProfiles(t *testing.T) {
	cases := map[string]string{
		"json":         `{"athlete_id":`,
		"pace":         `{"zones": {"swim": {"css_pace_per_100m": "fast"}}}`,
		"zone name":    `{"zones": {"heart_rate": {"zones": {"z9": [1,2]}}}}`,
		"zone arity":   `{"zones": {"heart_rate": {"zones": {"z1": [1]}}}}`,
		"valid range":  `{"valid_from": "2025-03-01", "valid_to": "2025-02-01"}`,
		"valid format": `{"valid_from": "March"}`,
	}
	for name, doc := range cases {
		_, err := Decode(strings.NewReader(doc))
		require.Error(t, err, name)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestParsePace(t *testing.T) {
	got, err := ParsePace("1:45")
	require.NoError(t, err)
	require.Equal(t, 105.0, got)

	for _, bad := range []string{"", "145", "1:75", "-1:00", "a:10"} {
		_, err := ParsePace(bad)
		require.Error(t, err, bad)
	}
}
