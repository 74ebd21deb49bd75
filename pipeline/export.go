package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lucasjlepore/trainload"
)

var trackpointColumns = []string{
	"timestamp", "heart_rate", "power", "watts", "speed", "cadence", "run_cadence",
	"altitude", "distance", "latitude", "longitude",
	"workout_step_index", "target_power_low", "target_power_high", "target_pace_low", "target_pace_high",
}

// trackpointRow is the flat export row. Missing values are NaN, and -1 for the step
// index of points outside every step.
type trackpointRow struct {
	Timestamp        string  `parquet:"name=timestamp, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	HeartRate        float64 `parquet:"name=heart_rate, type=DOUBLE"`
	Power            float64 `parquet:"name=power, type=DOUBLE"`
	Watts            float64 `parquet:"name=watts, type=DOUBLE"`
	Speed            float64 `parquet:"name=speed, type=DOUBLE"`
	Cadence          float64 `parquet:"name=cadence, type=DOUBLE"`
	RunCadence       float64 `parquet:"name=run_cadence, type=DOUBLE"`
	Altitude         float64 `parquet:"name=altitude, type=DOUBLE"`
	Distance         float64 `parquet:"name=distance, type=DOUBLE"`
	Latitude         float64 `parquet:"name=latitude, type=DOUBLE"`
	Longitude        float64 `parquet:"name=longitude, type=DOUBLE"`
	WorkoutStepIndex int64   `parquet:"name=workout_step_index, type=INT64"`
	TargetPowerLow   float64 `parquet:"name=target_power_low, type=DOUBLE"`
	TargetPowerHigh  float64 `parquet:"name=target_power_high, type=DOUBLE"`
	TargetPaceLow    float64 `parquet:"name=target_pace_low, type=DOUBLE"`
	TargetPaceHigh   float64 `parquet:"name=target_pace_high, type=DOUBLE"`
}

func rowOf(p trainload.Trackpoint) trackpointRow {
	row := trackpointRow{
		Timestamp:        p.Timestamp.Format(time.RFC3339Nano),
		HeartRate:        intOrNaN(p.HeartRate),
		Power:            intOrNaN(p.Power),
		Watts:            intOrNaN(p.Watts),
		Speed:            valueOrNaN(p.Speed),
		Cadence:          intOrNaN(p.Cadence),
		RunCadence:       intOrNaN(p.RunCadence),
		Altitude:         valueOrNaN(p.Altitude),
		Distance:         valueOrNaN(p.Distance),
		Latitude:         valueOrNaN(p.Latitude),
		Longitude:        valueOrNaN(p.Longitude),
		WorkoutStepIndex: -1,
		TargetPowerLow:   math.NaN(),
		TargetPowerHigh:  math.NaN(),
		TargetPaceLow:    math.NaN(),
		TargetPaceHigh:   math.NaN(),
	}
	if a := p.TargetAnnotation; a != nil {
		row.WorkoutStepIndex = int64(a.WorkoutStepIndex)
		row.TargetPowerLow = valueOrNaN(a.TargetPowerLow)
		row.TargetPowerHigh = valueOrNaN(a.TargetPowerHigh)
		row.TargetPaceLow = valueOrNaN(a.TargetPaceLow)
		row.TargetPaceHigh = valueOrNaN(a.TargetPaceHigh)
	}
	return row
}

func writeTrackpointsTo(fw source.ParquetFile, points []trainload.Trackpoint) error {
	pw, err := writer.NewParquetWriter(fw, new(trackpointRow), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, p := range points {
		if err := pw.Write(rowOf(p)); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	return pw.WriteStop()
}

func writeTrackpointsParquet(path string, points []trainload.Trackpoint) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	if err := writeTrackpointsTo(fw, points); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

// EncodeTrackpointsParquet renders trackpoints as an in-memory parquet file.
func EncodeTrackpointsParquet(points []trainload.Trackpoint) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	if err := writeTrackpointsTo(fw, points); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func writeTrackpointsCSV(path string, points []trainload.Trackpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(trackpointColumns); err != nil {
		return err
	}
	for _, p := range points {
		r := rowOf(p)
		step := ""
		if r.WorkoutStepIndex >= 0 {
			step = strconv.FormatInt(r.WorkoutStepIndex, 10)
		}
		record := []string{
			r.Timestamp,
			formatFloat(r.HeartRate), formatFloat(r.Power), formatFloat(r.Watts),
			formatFloat(r.Speed), formatFloat(r.Cadence), formatFloat(r.RunCadence),
			formatFloat(r.Altitude), formatFloat(r.Distance),
			formatFloat(r.Latitude), formatFloat(r.Longitude),
			step,
			formatFloat(r.TargetPowerLow), formatFloat(r.TargetPowerHigh),
			formatFloat(r.TargetPaceLow), formatFloat(r.TargetPaceHigh),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeTrackpoints(path, format string, points []trainload.Trackpoint) error {
	switch format {
	case FormatParquet:
		return writeTrackpointsParquet(path, points)
	case FormatCSV:
		return writeTrackpointsCSV(path, points)
	default:
		return fmt.Errorf("unsupported format %q (expected parquet|csv|none)", format)
	}
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

func intOrNaN(v *int) float64 {
	if v == nil {
		return math.NaN()
	}
	return float64(*v)
}

// formatFloat leaves missing values empty.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
