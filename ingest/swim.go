package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lucasjlepore/trainload"
)

// ErrNoSummaryRow is returned when a swim split export has no Summary row.
var ErrNoSummaryRow = errors.New("swim csv has no summary row")

// ReadSwimSummaryFile opens path and reads its Summary row.
func ReadSwimSummaryFile(path string) (trainload.SwimSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return trainload.SwimSummary{}, fmt.Errorf("open swim csv: %w", err)
	}
	defer f.Close()
	return ReadSwimSummary(f)
}

// ReadSwimSummary reads a split export with a header row naming Split, Distance and
// Time columns and returns the totals of the row whose Split is "Summary".
func ReadSwimSummary(r io.Reader) (trainload.SwimSummary, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return trainload.SwimSummary{}, ErrNoSummaryRow
		}
		return trainload.SwimSummary{}, fmt.Errorf("read swim csv header: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, want := range []string{"split", "distance", "time"} {
		if _, ok := cols[want]; !ok {
			return trainload.SwimSummary{}, fmt.Errorf("swim csv: missing %q column", want)
		}
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return trainload.SwimSummary{}, ErrNoSummaryRow
		}
		if err != nil {
			return trainload.SwimSummary{}, fmt.Errorf("read swim csv: %w", err)
		}
		if !strings.EqualFold(strings.TrimSpace(cell(row, cols["split"])), "summary") {
			continue
		}

		distance, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(cell(row, cols["distance"])), ",", ""), 64)
		if err != nil {
			return trainload.SwimSummary{}, fmt.Errorf("swim csv summary distance: %w", err)
		}
		seconds, err := trainload.ParseClock(cell(row, cols["time"]))
		if err != nil {
			return trainload.SwimSummary{}, fmt.Errorf("swim csv summary time: %w", err)
		}
		return trainload.SwimSummary{DistanceMeters: distance, TimeSeconds: seconds}, nil
	}
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
