// Package ingest reads the files a workout download leaves on disk: the TCX activity,
// an optional GPX route, a ZIP holding the original FIT recording and a swim split CSV.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Bundle is the set of files that belong to one workout. Every path except TCXPath
// is empty when the file is absent.
type Bundle struct {
	ActivityID string
	Name       string
	Dir        string
	TCXPath    string
	GPXPath    string
	ZIPPath    string
	CSVPath    string
}

// Stem is the shared file name prefix, <name>_<activity id>.
func (b Bundle) Stem() string {
	if b.Name == "" {
		return b.ActivityID
	}
	return b.Name + "_" + b.ActivityID
}

// DiscoverBundles finds every *.tcx file in dir and pairs it with the .gpx, .zip and
// .csv siblings sharing its stem. Bundles are sorted by stem.
func DiscoverBundles(dir string) ([]Bundle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read download directory: %w", err)
	}

	bundles := make([]Bundle, 0)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".tcx") {
			continue
		}
		bundles = append(bundles, BundleFor(filepath.Join(dir, e.Name())))
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].Stem() < bundles[j].Stem() })
	return bundles, nil
}

// BundleFor builds the bundle of a single TCX file. The activity id is the part of the
// stem after the last underscore.
func BundleFor(tcxPath string) Bundle {
	dir := filepath.Dir(tcxPath)
	base := filepath.Base(tcxPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	b := Bundle{ActivityID: stem, Dir: dir, TCXPath: tcxPath}
	if i := strings.LastIndex(stem, "_"); i >= 0 {
		b.Name = stem[:i]
		b.ActivityID = stem[i+1:]
	}

	sibling := func(ext string) string {
		p := filepath.Join(dir, stem+ext)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
		return ""
	}
	b.GPXPath = sibling(".gpx")
	b.ZIPPath = sibling(".zip")
	b.CSVPath = sibling(".csv")
	return b
}
