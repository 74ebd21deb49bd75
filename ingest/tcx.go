package ingest

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lucasjlepore/trainload"
)

// TCXActivity is the part of a TCX document the pipeline uses.
type TCXActivity struct {
	Sport       trainload.Sport
	RawSport    string
	StartTime   *time.Time
	Trackpoints []trainload.Trackpoint
}

// Element names are matched without namespace so both the default TCX namespace and
// the ns3 ActivityExtension prefix resolve.
type tcxDocument struct {
	Activities []tcxActivity `xml:"Activities>Activity"`
}

type tcxActivity struct {
	Sport string   `xml:"Sport,attr"`
	ID    string   `xml:"Id"`
	Laps  []tcxLap `xml:"Lap"`
}

type tcxLap struct {
	Trackpoints []tcxTrackpoint `xml:"Track>Trackpoint"`
}

type tcxTrackpoint struct {
	Time           string       `xml:"Time"`
	HeartRate      string       `xml:"HeartRateBpm>Value"`
	Cadence        string       `xml:"Cadence"`
	AltitudeMeters string       `xml:"AltitudeMeters"`
	DistanceMeters string       `xml:"DistanceMeters"`
	Latitude       string       `xml:"Position>LatitudeDegrees"`
	Longitude      string       `xml:"Position>LongitudeDegrees"`
	TPX            tcxExtension `xml:"Extensions>TPX"`
}

type tcxExtension struct {
	Speed      string `xml:"Speed"`
	RunCadence string `xml:"RunCadence"`
	Watts      string `xml:"Watts"`
}

var tcxSports = map[string]trainload.Sport{
	"running":  trainload.SportRun,
	"biking":   trainload.SportBike,
	"cycling":  trainload.SportBike,
	"swimming": trainload.SportSwim,
}

// ParseSport maps a TCX Sport attribute to a normalized sport. Unknown values,
// strength included, become other.
func ParseSport(raw string) trainload.Sport {
	if s, ok := tcxSports[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return trainload.SportOther
}

// ParseTCXFile opens and parses a TCX file.
func ParseTCXFile(path string) (*TCXActivity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tcx: %w", err)
	}
	defer f.Close()
	return ParseTCX(f)
}

// ParseTCX reads a TCX document. Sport and start time come from the first activity;
// trackpoints are collected from every activity. Trackpoints without a parsable time
// are dropped; other unparsable values are left nil.
func ParseTCX(r io.Reader) (*TCXActivity, error) {
	var doc tcxDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode tcx: %w", err)
	}
	if len(doc.Activities) == 0 {
		return &TCXActivity{Sport: trainload.SportOther}, nil
	}

	first := doc.Activities[0]
	out := &TCXActivity{
		Sport:       ParseSport(first.Sport),
		RawSport:    first.Sport,
		Trackpoints: make([]trainload.Trackpoint, 0),
	}
	if ts, ok := parseTCXTime(first.ID); ok {
		out.StartTime = &ts
	}

	for _, act := range doc.Activities {
		for _, lap := range act.Laps {
			for _, tp := range lap.Trackpoints {
				ts, ok := parseTCXTime(tp.Time)
				if !ok {
					continue
				}
				out.Trackpoints = append(out.Trackpoints, trainload.Trackpoint{
					Timestamp:  ts,
					HeartRate:  parseInt(tp.HeartRate),
					Speed:      parseFloat(tp.TPX.Speed),
					RunCadence: parseInt(tp.TPX.RunCadence),
					Cadence:    parseInt(tp.Cadence),
					Watts:      parseInt(tp.TPX.Watts),
					Altitude:   parseFloat(tp.AltitudeMeters),
					Distance:   parseFloat(tp.DistanceMeters),
					Latitude:   parseFloat(tp.Latitude),
					Longitude:  parseFloat(tp.Longitude),
				})
			}
		}
	}
	return out, nil
}

// tcxTimeLayouts are tried in order. Times without a zone are read as UTC wall clock.
var tcxTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTCXTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range tcxTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func parseInt(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
