package fitmsg

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tormoder/fit"
)

const (
	mesgNumFileID           = 0
	mesgNumSession          = 18
	mesgNumLap              = 19
	mesgNumRecord           = 20
	mesgNumEvent            = 21
	mesgNumWorkout          = 26
	mesgNumWorkoutStep      = 27
	mesgNumFieldDescription = 206
	mesgNumDeveloperDataID  = 207
)

type fieldSemantic struct {
	name   string
	units  string
	scaler func(decoded any) (any, bool)
}

var timestampSemantic = fieldSemantic{name: "timestamp", units: "s", scaler: scaleTimestamp}

var semanticsByMessage = map[uint16]map[uint8]fieldSemantic{
	mesgNumFileID: {
		0: {name: "type"},
		1: {name: "manufacturer"},
		2: {name: "product"},
		3: {name: "serial_number"},
		4: {name: "time_created", units: "s", scaler: scaleTimestamp},
		5: {name: "number"},
		8: {name: "product_name"},
	},
	mesgNumSession: {
		253: timestampSemantic,
		2:   {name: "start_time", units: "s", scaler: scaleTimestamp},
		5:   {name: "sport"},
		7:   {name: "total_elapsed_time", units: "s", scaler: scaleBy(1000, 0)},
		8:   {name: "total_timer_time", units: "s", scaler: scaleBy(1000, 0)},
		9:   {name: "total_distance", units: "m", scaler: scaleBy(100, 0)},
		16:  {name: "avg_heart_rate", units: "bpm"},
		17:  {name: "max_heart_rate", units: "bpm"},
		20:  {name: "avg_power", units: "w"},
		21:  {name: "max_power", units: "w"},
		34:  {name: "normalized_power", units: "w"},
		35:  {name: "training_stress_score", units: "tss", scaler: scaleBy(10, 0)},
		36:  {name: "intensity_factor", units: "if", scaler: scaleBy(1000, 0)},
	},
	mesgNumLap: {
		253: timestampSemantic,
		2:   {name: "start_time", units: "s", scaler: scaleTimestamp},
		7:   {name: "total_elapsed_time", units: "s", scaler: scaleBy(1000, 0)},
		8:   {name: "total_timer_time", units: "s", scaler: scaleBy(1000, 0)},
		9:   {name: "total_distance", units: "m", scaler: scaleBy(100, 0)},
		19:  {name: "avg_power", units: "w"},
		20:  {name: "max_power", units: "w"},
	},
	mesgNumRecord: {
		253: timestampSemantic,
		0:   {name: "position_lat", units: "semicircles"},
		1:   {name: "position_long", units: "semicircles"},
		2:   {name: "altitude", units: "m", scaler: scaleBy(5, 500)},
		3:   {name: "heart_rate", units: "bpm"},
		4:   {name: "cadence", units: "rpm"},
		5:   {name: "distance", units: "m", scaler: scaleBy(100, 0)},
		6:   {name: "speed", units: "m/s", scaler: scaleBy(1000, 0)},
		7:   {name: "power", units: "w"},
		9:   {name: "grade", units: "%", scaler: scaleBy(100, 0)},
		13:  {name: "temperature", units: "c"},
		29:  {name: "accumulated_power", units: "w"},
		30:  {name: "left_right_balance"},
		73:  {name: "enhanced_speed", units: "m/s", scaler: scaleBy(1000, 0)},
		78:  {name: "enhanced_altitude", units: "m", scaler: scaleBy(5, 500)},
		82:  {name: "motor_power", units: "w"},
	},
	mesgNumEvent: {
		253: timestampSemantic,
		0:   {name: "event"},
		1:   {name: "event_type"},
		3:   {name: "data"},
	},
	mesgNumWorkout: {
		4: {name: "wkt_name"},
		5: {name: "sport"},
		6: {name: "sub_sport"},
		7: {name: "num_valid_steps"},
	},
	mesgNumWorkoutStep: {
		254: {name: "message_index"},
		0:   {name: "wkt_step_name"},
		1:   {name: "duration_type"},
		2:   {name: "duration_value"},
		3:   {name: "target_type"},
		4:   {name: "target_value"},
		5:   {name: "custom_target_value_low"},
		6:   {name: "custom_target_value_high"},
		7:   {name: "intensity"},
		8:   {name: "notes"},
	},
	mesgNumFieldDescription: {
		0: {name: "developer_data_index"},
		1: {name: "field_definition_number"},
		2: {name: "fit_base_type_id"},
		3: {name: "field_name"},
		8: {name: "units"},
	},
	mesgNumDeveloperDataID: {
		0: {name: "developer_id"},
		1: {name: "application_id"},
		3: {name: "developer_data_index"},
		4: {name: "application_version"},
	},
}

// applySemantics names a standard field and scales its value. Invalid values keep
// their raw sentinel so callers can still see what was on the wire.
func applySemantics(global uint16, f *Field) {
	s, ok := semanticsByMessage[global][f.Num]
	if !ok {
		f.Name = fmt.Sprintf("field_%d", f.Num)
		return
	}
	f.Name = s.name
	f.Units = s.units
	if s.scaler == nil || f.Invalid {
		return
	}
	if v, ok := s.scaler(f.Value); ok {
		f.Value = v
	}
}

func scaleBy(scale, offset float64) func(any) (any, bool) {
	return func(decoded any) (any, bool) {
		v, ok := toFloat(decoded)
		if !ok {
			return nil, false
		}
		return v/scale - offset, true
	}
}

func scaleTimestamp(decoded any) (any, bool) {
	raw, ok := decoded.(uint32)
	if !ok || raw == 0xFFFFFFFF {
		return nil, false
	}
	return fitTimestampToUTC(raw), true
}

// toFloat converts any decoded numeric scalar.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	default:
		return 0, false
	}
}

func uintField(m Message, num uint8) (uint64, bool) {
	f, ok := m.FieldNum(num)
	if !ok || f.Invalid {
		return 0, false
	}
	v, ok := toFloat(f.Value)
	if !ok || v < 0 {
		return 0, false
	}
	return uint64(v), true
}

func messageName(global uint16) string {
	name := fmt.Sprint(fit.MesgNum(global))
	if strings.HasPrefix(name, "MesgNum(") {
		return fmt.Sprintf("global_%d", global)
	}
	return toSnake(name)
}

// toSnake turns the library's CamelCase message names into file_id style.
func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func projectFileID(data []byte) *FileID {
	_, id, err := fit.DecodeHeaderAndFileID(bytes.NewReader(data))
	if err != nil {
		return nil
	}
	out := &FileID{
		Type:         fmt.Sprint(id.Type),
		Manufacturer: fmt.Sprint(id.Manufacturer),
		Product:      fmt.Sprint(id.GetProduct()),
		SerialNumber: id.SerialNumber,
	}
	if !id.TimeCreated.IsZero() {
		out.TimeCreated = id.TimeCreated.UTC().Format("2006-01-02T15:04:05Z")
	}
	return out
}
