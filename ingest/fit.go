package ingest

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/lucasjlepore/trainload/fitmsg"
)

// ErrNoFITEntry is returned when a workout archive holds no .fit file.
var ErrNoFITEntry = errors.New("no fit entry in archive")

// maxFITEntrySize bounds how much of a single archive entry is read into memory.
const maxFITEntrySize = 256 << 20

// ExtractFIT returns the bytes and entry name of the first *.fit entry, matched
// case-insensitively, in the archive at zipPath. Nothing is written to disk.
func ExtractFIT(zipPath string) ([]byte, string, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, "", fmt.Errorf("open zip: %w", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() || !strings.EqualFold(path.Ext(entry.Name), ".fit") {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, entry.Name, fmt.Errorf("open zip entry %s: %w", entry.Name, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxFITEntrySize))
		rc.Close()
		if err != nil {
			return nil, entry.Name, fmt.Errorf("read zip entry %s: %w", entry.Name, err)
		}
		return data, entry.Name, nil
	}
	return nil, "", ErrNoFITEntry
}

// LoadFIT extracts and decodes the FIT recording of a workout archive.
func LoadFIT(zipPath string) (*fitmsg.File, string, error) {
	data, name, err := ExtractFIT(zipPath)
	if err != nil {
		return nil, name, err
	}
	f, err := fitmsg.Decode(data)
	if err != nil {
		return nil, name, fmt.Errorf("decode %s: %w", name, err)
	}
	return f, name, nil
}
