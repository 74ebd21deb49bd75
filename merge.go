package trainload

import (
	"math"
	"sort"
	"strings"
	"time"
)

// PowerField is one named power channel of a sample.
type PowerField struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// PowerSample is a timestamped set of power channels from the binary recording.
// Fields keep their record order so collisions resolve deterministically.
type PowerSample struct {
	Timestamp time.Time    `json:"timestamp"`
	Fields    []PowerField `json:"fields"`
}

// MergePowerSamples overlays power samples onto trackpoints that share the same
// whole-second wall-clock timestamp. Trackpoints without a matching sample pass
// through unchanged and samples without a matching trackpoint are dropped. The
// input slice is not modified.
func MergePowerSamples(points []Trackpoint, samples []PowerSample) []Trackpoint {
	out := make([]Trackpoint, len(points))
	copy(out, points)
	if len(samples) == 0 {
		return out
	}

	byKey := make(map[int64]PowerSample, len(samples))
	for _, s := range samples {
		if s.Timestamp.IsZero() {
			continue
		}
		byKey[mergeKey(s.Timestamp)] = s
	}

	for i := range out {
		sample, ok := byKey[mergeKey(out[i].Timestamp)]
		if !ok {
			continue
		}
		applyPowerFields(&out[i], sample.Fields)
	}
	return out
}

func applyPowerFields(tp *Trackpoint, fields []PowerField) {
	// the map may be shared with the caller's slice
	extra := make(map[string]float64, len(tp.PowerFields)+len(fields))
	for k, v := range tp.PowerFields {
		extra[k] = v
	}

	for _, f := range fields {
		if !isFinite(f.Value) {
			continue
		}
		if strings.EqualFold(f.Name, "power") {
			v := int(math.Round(f.Value))
			tp.Power = &v
			continue
		}
		extra[f.Name] = f.Value
	}

	if len(extra) == 0 {
		tp.PowerFields = nil
		return
	}
	tp.PowerFields = extra
}

// mergeKey is the wall clock of t truncated to the second, ignoring its zone.
func mergeKey(t time.Time) int64 {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, 0, time.UTC).Unix()
}

// NormalizeTrackpoints sorts trackpoints by timestamp and drops every point whose
// timestamp equals the one before it, keeping the first seen.
func NormalizeTrackpoints(points []Trackpoint) []Trackpoint {
	out := make([]Trackpoint, len(points))
	copy(out, points)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	deduped := out[:0]
	for i, p := range out {
		if i > 0 && p.Timestamp.Equal(deduped[len(deduped)-1].Timestamp) {
			continue
		}
		deduped = append(deduped, p)
	}
	return deduped
}
