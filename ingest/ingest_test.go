package ingest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/trainload"
)

const sampleTCX = `<?xml version="1.0" encoding="UTF-8"?>
<TrainingCenterDatabase xmlns="http://www.garmin.com/xmlschemas/TrainingCenterDatabase/v2"
  xmlns:ns3="http://www.garmin.com/xmlschemas/ActivityExtension/v2">
  <Activities>
    <Activity Sport="Biking">
      <Id>2025-07-02T16:09:37.000Z</Id>
      <Lap StartTime="2025-07-02T16:09:37.000Z">
        <Track>
          <Trackpoint>
            <Time>2025-07-02T16:09:37.000Z</Time>
            <Position><LatitudeDegrees>45.5</LatitudeDegrees><LongitudeDegrees>-73.6</LongitudeDegrees></Position>
            <AltitudeMeters>31.2</AltitudeMeters>
            <DistanceMeters>0.0</DistanceMeters>
            <HeartRateBpm><Value>118</Value></HeartRateBpm>
            <Cadence>85</Cadence>
            <Extensions><ns3:TPX><ns3:Speed>7.25</ns3:Speed><ns3:Watts>180</ns3:Watts></ns3:TPX></Extensions>
          </Trackpoint>
          <Trackpoint>
            <Time>2025-07-02T16:09:38.000Z</Time>
            <HeartRateBpm><Value>n/a</Value></HeartRateBpm>
            <Extensions><ns3:TPX><ns3:RunCadence>80</ns3:RunCadence></ns3:TPX></Extensions>
          </Trackpoint>
          <Trackpoint>
            <Time>not a time</Time>
            <HeartRateBpm><Value>120</Value></HeartRateBpm>
          </Trackpoint>
        </Track>
      </Lap>
    </Activity>
  </Activities>
</TrainingCenterDatabase>`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestParseTCX(t *testing.T) {
	act, err := ParseTCX(strings.NewReader(sampleTCX))
	require.NoError(t, err)

	require.Equal(t, trainload.SportBike, act.Sport)
	require.NotNil(t, act.StartTime)
	require.True(t, act.StartTime.Equal(time.Date(2025, 7, 2, 16, 9, 37, 0, time.UTC)))
	require.Len(t, act.Trackpoints, 2)

	first := act.Trackpoints[0]
	require.Equal(t, 118, *first.HeartRate)
	require.Equal(t, 85, *first.Cadence)
	require.Equal(t, 180, *first.Watts)
	require.Equal(t, 7.25, *first.Speed)
	require.Equal(t, 45.5, *first.Latitude)
	require.Equal(t, 31.2, *first.Altitude)
	require.Nil(t, first.Power)

	second := act.Trackpoints[1]
	require.Nil(t, second.HeartRate, "unparsable heart rate is omitted")
	require.Equal(t, 80, *second.RunCadence)
}

func TestParseTCXAllActivitiesAndZonelessTimes(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<TrainingCenterDatabase xmlns="http://www.garmin.com/xmlschemas/TrainingCenterDatabase/v2">
  <Activities>
    <Activity Sport="Running">
      <Id>2025-07-03T07:00:00</Id>
      <Lap><Track>
        <Trackpoint><Time>2025-07-03T07:00:00</Time><HeartRateBpm><Value>130</Value></HeartRateBpm></Trackpoint>
      </Track></Lap>
    </Activity>
    <Activity Sport="Biking">
      <Id>2025-07-03T08:00:00Z</Id>
      <Lap><Track>
        <Trackpoint><Time>2025-07-03T08:00:00.500Z</Time><HeartRateBpm><Value>140</Value></HeartRateBpm></Trackpoint>
      </Track></Lap>
    </Activity>
  </Activities>
</TrainingCenterDatabase>`

	act, err := ParseTCX(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, trainload.SportRun, act.Sport, "sport comes from the first activity")
	require.NotNil(t, act.StartTime)
	require.True(t, act.StartTime.Equal(time.Date(2025, 7, 3, 7, 0, 0, 0, time.UTC)))
	require.Len(t, act.Trackpoints, 2)
	require.True(t, act.Trackpoints[0].Timestamp.Equal(time.Date(2025, 7, 3, 7, 0, 0, 0, time.UTC)))
	require.Equal(t, 140, *act.Trackpoints[1].HeartRate)
}

func TestParseTCXMalformed(t *testing.T) {
	_, err := ParseTCX(strings.NewReader("<TrainingCenterDatabase><Activities>"))
	require.Error(t, err)
}

func TestParseSport(t *testing.T) {
	cases := map[string]trainload.Sport{
		"Running":  trainload.SportRun,
		"Biking":   trainload.SportBike,
		"cycling":  trainload.SportBike,
		"Swimming": trainload.SportSwim,
		"Strength": trainload.SportOther,
		"Other":    trainload.SportOther,
		"":         trainload.SportOther,
	}
	for raw, want := range cases {
		require.Equal(t, want, ParseSport(raw), raw)
	}
}

const swimGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><name>Pool</name><type>open_water_swimming</type>
    <trkseg><trkpt lat="45.5" lon="-73.6"><ele>10</ele></trkpt></trkseg>
  </trk>
</gpx>`

const rideGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><name>Loop</name><type>cycling</type>
    <trkseg><trkpt lat="45.5" lon="-73.6"><ele>10</ele></trkpt></trkseg>
  </trk>
</gpx>`

func TestClassifyWithRoute(t *testing.T) {
	dir := t.TempDir()
	swim := writeFile(t, dir, "swim.gpx", swimGPX)
	ride := writeFile(t, dir, "ride.gpx", rideGPX)

	sport, err := ClassifyWithRoute(trainload.SportOther, swim)
	require.NoError(t, err)
	require.Equal(t, trainload.SportSwim, sport)

	sport, err = ClassifyWithRoute(trainload.SportOther, ride)
	require.NoError(t, err)
	require.Equal(t, trainload.SportOther, sport)

	sport, err = ClassifyWithRoute(trainload.SportRun, swim)
	require.NoError(t, err)
	require.Equal(t, trainload.SportRun, sport, "only other is refined")

	sport, err = ClassifyWithRoute(trainload.SportOther, "")
	require.NoError(t, err)
	require.Equal(t, trainload.SportOther, sport)
}

func writeZip(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestExtractFIT(t *testing.T) {
	dir := t.TempDir()

	withFit := filepath.Join(dir, "with.zip")
	writeZip(t, withFit, map[string][]byte{"readme.txt": []byte("x"), "ACTIVITY.FIT": []byte("fitdata")})
	data, name, err := ExtractFIT(withFit)
	require.NoError(t, err)
	require.Equal(t, "ACTIVITY.FIT", name)
	require.Equal(t, []byte("fitdata"), data)

	without := filepath.Join(dir, "without.zip")
	writeZip(t, without, map[string][]byte{"readme.txt": []byte("x")})
	_, _, err = ExtractFIT(without)
	require.ErrorIs(t, err, ErrNoFITEntry)

	_, _, err = ExtractFIT(writeFile(t, dir, "broken.zip", "not a zip"))
	require.Error(t, err)

	_, _, err = LoadFIT(withFit)
	require.Error(t, err, "garbage fit bytes must not decode")
}

func TestReadSwimSummary(t *testing.T) {
	csv := "Split,Distance,Time,Avg Pace\n" +
		"1,500,9:00.0,1:48\n" +
		"Rest,0,1:00,--\n" +
		"Summary,2000,1:00:00.0,1:48\n"
	got, err := ReadSwimSummary(strings.NewReader(csv))
	require.NoError(t, err)
	require.Equal(t, trainload.SwimSummary{DistanceMeters: 2000, TimeSeconds: 3600}, got)

	_, err = ReadSwimSummary(strings.NewReader("Split,Distance,Time\n1,500,9:00\n"))
	require.ErrorIs(t, err, ErrNoSummaryRow)

	_, err = ReadSwimSummary(strings.NewReader("Lap,Meters\nSummary,100\n"))
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNoSummaryRow)
}

func TestDiscoverBundles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Morning_Ride_1001.tcx", sampleTCX)
	writeFile(t, dir, "Morning_Ride_1001.gpx", rideGPX)
	writeFile(t, dir, "Pool_Swim_1002.tcx", sampleTCX)
	writeFile(t, dir, "Pool_Swim_1002.csv", "Split,Distance,Time\n")
	writeFile(t, dir, "notes.txt", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.tcx"), 0o755))

	bundles, err := DiscoverBundles(dir)
	require.NoError(t, err)
	require.Len(t, bundles, 2)

	ride := bundles[0]
	require.Equal(t, "1001", ride.ActivityID)
	require.Equal(t, "Morning_Ride", ride.Name)
	require.NotEmpty(t, ride.GPXPath)
	require.Empty(t, ride.ZIPPath)
	require.Empty(t, ride.CSVPath)

	swim := bundles[1]
	require.Equal(t, "1002", swim.ActivityID)
	require.Equal(t, "Pool_Swim_1002", swim.Stem())
	require.NotEmpty(t, swim.CSVPath)

	_, err = DiscoverBundles(filepath.Join(dir, "missing"))
	require.Error(t, err)
}
