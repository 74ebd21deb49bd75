package fitmsg

import (
	"strings"

	"github.com/lucasjlepore/trainload"
)

var wktStepTargetNames = map[uint64]string{
	0:  "speed",
	1:  "heart_rate",
	2:  "open",
	3:  "cadence",
	4:  "power",
	5:  "grade",
	6:  "resistance",
	7:  "power_3s",
	8:  "power_10s",
	9:  "power_30s",
	10: "power_lap",
	11: "swim_stroke",
	12: "speed_lap",
	13: "heart_rate_lap",
}

var intensityNames = map[uint64]string{
	0: "active",
	1: "rest",
	2: "warmup",
	3: "cooldown",
	4: "recovery",
	5: "interval",
	6: "other",
}

const (
	durationTypeTime           = 0
	durationTypeOpen           = 5
	durationTypeRepetitionTime = 28
	durationTypeTimeOnly       = 31

	messageIndexMask = 0x0FFF
)

// PowerSamples returns one sample per record message that carries a timestamp and at
// least one valid numeric field whose name contains "power". Developer fields count.
func (f *File) PowerSamples() []trainload.PowerSample {
	out := make([]trainload.PowerSample, 0)
	for _, m := range f.Messages {
		if m.Num != mesgNumRecord || m.Timestamp == nil {
			continue
		}
		var fields []trainload.PowerField
		for _, field := range m.Fields {
			if field.Invalid || !strings.Contains(strings.ToLower(field.Name), "power") {
				continue
			}
			v, ok := toFloat(field.Value)
			if !ok {
				continue
			}
			fields = append(fields, trainload.PowerField{Name: field.Name, Value: v})
		}
		if len(fields) == 0 {
			continue
		}
		out = append(out, trainload.PowerSample{Timestamp: *m.Timestamp, Fields: fields})
	}
	return out
}

// WorkoutSteps projects workout_step messages in file order. Custom target bounds are
// the values as recorded; no offset or percent decoding is applied.
func (f *File) WorkoutSteps() []trainload.ActivityTargetStep {
	msgs := f.MessagesNamed(mesgNumWorkoutStep)
	steps := make([]trainload.ActivityTargetStep, 0, len(msgs))
	for i, m := range msgs {
		steps = append(steps, workoutStep(i, m))
	}
	return steps
}

func workoutStep(position int, m Message) trainload.ActivityTargetStep {
	step := trainload.ActivityTargetStep{Index: position, TargetKind: trainload.TargetNone}
	if idx, ok := uintField(m, 254); ok {
		step.Index = int(idx & messageIndexMask)
	}
	if field, ok := m.FieldNum(0); ok && !field.Invalid {
		step.Name, _ = field.Value.(string)
	}
	if v, ok := uintField(m, 7); ok {
		step.Intensity = intensityNames[v]
	}

	durationType, hasDuration := uintField(m, 1)
	durationValue, hasValue := uintField(m, 2)
	switch {
	case !hasDuration:
		step.DurationKind = trainload.DurationOpen
	case durationType == durationTypeTime || durationType == durationTypeRepetitionTime || durationType == durationTypeTimeOnly:
		step.DurationKind = trainload.DurationTime
		if hasValue {
			ms := int64(durationValue)
			step.DurationMS = &ms
		}
	case durationType == durationTypeOpen:
		step.DurationKind = trainload.DurationOpen
	default:
		step.DurationKind = trainload.DurationOther
		if hasValue {
			v := float64(durationValue)
			step.DurationValue = &v
		}
	}

	targetType, ok := uintField(m, 3)
	if !ok {
		return step
	}
	step.TargetType = wktStepTargetNames[targetType]
	if step.TargetType == "" || step.TargetType == "open" {
		return step
	}

	value, _ := uintField(m, 4)
	low, _ := uintField(m, 5)
	high, _ := uintField(m, 6)
	switch {
	case low > 0 || high > 0:
		step.TargetKind = trainload.TargetCustom
		step.TargetLow, step.TargetHigh, step.TargetUnits = customRange(step.TargetType, float64(low), float64(high))
	case value > 0:
		step.TargetKind = trainload.TargetZone
		v := float64(value)
		step.TargetValue = &v
	}
	return step
}

func customRange(targetType string, low, high float64) (*float64, *float64, string) {
	switch {
	case strings.HasPrefix(targetType, "speed"):
		return &low, &high, "mm_per_s"
	case targetType == "cadence":
		return &low, &high, "rpm"
	default:
		return &low, &high, ""
	}
}
