package trainload

import (
	"fmt"
	"math"
	"strings"
)

// BuildWorkoutSummary renders the computed metrics of a processed workout as plain
// text for terminal output.
func BuildWorkoutSummary(w *ProcessedWorkout) string {
	if w == nil {
		return ""
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Workout %s (%s)\n", w.ActivityID, w.WorkoutType)
	if w.StartTime != nil {
		fmt.Fprintf(&b, "Start: %s\n", w.StartTime.UTC().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(&b, "Trackpoints: %d\n", len(w.Trackpoints))

	if w.TSS != nil && w.DurationSec != nil {
		fmt.Fprintf(&b, "Load TSS %.2f | Moving %s\n", *w.TSS, formatDuration(float64(*w.DurationSec)))
	} else {
		b.WriteString("Load TSS not computable (missing threshold or data)\n")
	}

	b.WriteString(BuildZoneSummary(w.ZoneAnalysis))

	if len(w.TargetInfo.Steps) > 0 {
		fmt.Fprintf(&b, "\nStructured Steps (%d)\n", len(w.TargetInfo.Steps))
		for _, c := range w.TargetInfo.Compliance {
			fmt.Fprintf(&b, "- step %d: %d samples", c.StepIndex, c.Samples)
			if c.AvgPower != nil {
				fmt.Fprintf(&b, ", %.0f W avg", *c.AvgPower)
			}
			if c.TimeInTargetPct != nil {
				fmt.Fprintf(&b, ", %.1f%% in target", *c.TimeInTargetPct)
			}
			b.WriteByte('\n')
		}
	}

	return strings.TrimSpace(b.String())
}

// BuildZoneSummary renders time in zone for both metric streams.
func BuildZoneSummary(r ZoneResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nZones (%s, %s total)\n", r.Source, formatDuration(r.TotalDurationMinutes*60))
	if r.FallbackReason != "" {
		fmt.Fprintf(&b, "- analyzer rejected: %s\n", r.FallbackReason)
	}
	writeZoneRows(&b, "HR", r.HeartRate, r.Available.HeartRate)
	writeZoneRows(&b, "Power", r.Power, r.Available.Power)
	return b.String()
}

func writeZoneRows(b *strings.Builder, label string, m ZoneMinutes, available bool) {
	if !available {
		fmt.Fprintf(b, "- %s: no data\n", label)
		return
	}
	total := m.Total()
	for _, z := range ZoneNames {
		minutes := m.Get(z)
		if minutes <= 0 {
			continue
		}
		fmt.Fprintf(b, "- %s %s: %s (%.1f%%)\n", label, z, formatDuration(minutes*60), minutes/total*100.0)
	}
}

// BuildDailyLoadTable renders a PMC series, one row per day.
func BuildDailyLoadTable(loads []DailyTrainingLoad) string {
	var b strings.Builder
	b.WriteString("date        ctl     atl     tsb\n")
	for _, l := range loads {
		fmt.Fprintf(&b, "%s %7.2f %7.2f %7.2f\n", l.Date.Format("2006-01-02"), l.CTL, l.ATL, l.TSB)
	}
	return b.String()
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0s"
	}
	s := int(math.Round(seconds))
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, sec)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}
