package main

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tormoder/fit"
)

const profileJSON = `{
  "athlete_id": "demo_athlete",
  "versions": [{
    "valid_from": "2025-01-01",
    "zones": {
      "heart_rate": {"zones": {"z1": [0,119], "z2": [120,139], "zx": [140,149], "z3": [150,159], "zy": [160,169], "z4": [170,179], "z5": [180,220]}},
      "bike_power": {"ftp": 200, "zones": {"z1": [0,109], "z2": [110,149], "zx": [150,179], "z3": [180,209], "zy": [210,239], "z4": [240,279], "z5": [280,2000]}}
    }
  }]
}`

var start = time.Date(2025, 7, 2, 16, 0, 0, 0, time.UTC)

// resetFlags clears flag state left by an earlier Execute on the shared commands.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeRide(t *testing.T, dir string) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>
<TrainingCenterDatabase xmlns="http://www.garmin.com/xmlschemas/TrainingCenterDatabase/v2">
<Activities><Activity Sport="Biking"><Id>%s</Id><Lap><Track>`, start.Format(time.RFC3339))
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "<Trackpoint><Time>%s</Time><HeartRateBpm><Value>135</Value></HeartRateBpm></Trackpoint>",
			start.Add(time.Duration(i)*time.Second).Format(time.RFC3339))
	}
	b.WriteString("</Track></Lap></Activity></Activities></TrainingCenterDatabase>")
	if err := os.WriteFile(filepath.Join(dir, "Ride_2001.tcx"), []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write tcx: %v", err)
	}

	var zbuf bytes.Buffer
	zw := zip.NewWriter(&zbuf)
	w, err := zw.Create("ACTIVITY.FIT")
	if err != nil {
		t.Fatalf("zip entry: %v", err)
	}
	if _, err := w.Write(rideFIT(t, 60, 200)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Ride_2001.zip"), zbuf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
}

func rideFIT(t *testing.T, n int, watts uint16) []byte {
	t.Helper()
	file, err := fit.NewFile(fit.FileTypeActivity, fit.NewHeader(fit.V20, true))
	if err != nil {
		t.Fatalf("new fit file: %v", err)
	}
	activity, err := file.Activity()
	if err != nil {
		t.Fatalf("activity accessor: %v", err)
	}
	for i := 0; i < n; i++ {
		r := fit.NewRecordMsg()
		r.Timestamp = start.Add(time.Duration(i) * time.Second)
		r.Power = watts
		activity.Records = append(activity.Records, r)
	}
	var buf bytes.Buffer
	if err := fit.Encode(&buf, file, binary.LittleEndian); err != nil {
		t.Fatalf("encode fit: %v", err)
	}
	return buf.Bytes()
}

func TestRootHelp(t *testing.T) {
	out, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("execute root help: %v", err)
	}
	for _, name := range []string{"process", "pmc", "zones", "dump-fit"} {
		if !strings.Contains(out, name) {
			t.Fatalf("help output missing %q:\n%s", name, out)
		}
	}
}

func TestProcessThenPMCAndZones(t *testing.T) {
	dir := t.TempDir()
	writeRide(t, dir)
	profilePath := filepath.Join(dir, "profile.json")
	if err := os.WriteFile(profilePath, []byte(profileJSON), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	dbPath := filepath.Join(dir, "db", "trainload.db")

	out, err := execute(t, "process", dir, "--profile", profilePath, "--format", "csv", "--store", "sqlite", "--sqlite-path", dbPath)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(out, "processed 1, failed 0") || !strings.Contains(out, "2025-07-02") {
		t.Fatalf("unexpected process output:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "Ride_2001_trackpoints.csv")); err != nil {
		t.Fatalf("expected trackpoint export: %v", err)
	}

	out, err = execute(t, "pmc", "--athlete", "demo_athlete", "--from", "2025-07-01", "--date", "2025-07-03", "--store", "sqlite", "--sqlite-path", dbPath)
	if err != nil {
		t.Fatalf("pmc: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 4 {
		t.Fatalf("expected header plus 3 days, got:\n%s", out)
	}

	out, err = execute(t, "zones", filepath.Join(dir, "Ride_2001_processed.json"))
	if err != nil {
		t.Fatalf("zones: %v", err)
	}
	if !strings.Contains(out, "Zones (") {
		t.Fatalf("unexpected zones output:\n%s", out)
	}
}

func TestProcessRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	writeRide(t, dir)
	if _, err := execute(t, "process", dir, "--format", "none"); err != nil {
		t.Fatalf("first process: %v", err)
	}
	out, err := execute(t, "process", dir, "--format", "none")
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if !strings.Contains(out, "processed 0, failed 1") {
		t.Fatalf("expected the existing output to be kept:\n%s", out)
	}
}

func TestPMCNeedsStore(t *testing.T) {
	if _, err := execute(t, "pmc", "--athlete", "demo_athlete", "--date", "2025-07-02"); err == nil {
		t.Fatalf("expected an error without a store")
	}
	if _, err := execute(t, "pmc", "--date", "2025-07-02"); err == nil {
		t.Fatalf("expected an error without --athlete")
	}
}

func TestDumpFIT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ride.fit")
	if err := os.WriteFile(path, rideFIT(t, 3, 180), 0o644); err != nil {
		t.Fatalf("write fit: %v", err)
	}

	out, err := execute(t, "dump-fit", path)
	if err != nil {
		t.Fatalf("dump-fit: %v", err)
	}
	if got := strings.Count(out, `"name":"record"`); got != 3 {
		t.Fatalf("expected 3 record lines, got %d:\n%s", got, out)
	}
}
