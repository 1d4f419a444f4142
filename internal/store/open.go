package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SourceType identifies the flavor of an opened store.
type SourceType string

const (
	// SourceTypeZarrDir is a Zarr v2 directory store.
	SourceTypeZarrDir SourceType = "zarr_dir"
	// SourceTypeZarrZip is a Zarr v2 hierarchy inside a zip archive.
	SourceTypeZarrZip SourceType = "zarr_zip"
	// SourceTypePack is a single-file canopy pack (SQLite).
	SourceTypePack SourceType = "pack"
)

// String returns the label shown in the status line on open.
func (t SourceType) String() string {
	switch t {
	case SourceTypeZarrDir:
		return "zarr directory store"
	case SourceTypeZarrZip:
		return "zarr zip store"
	case SourceTypePack:
		return "canopy pack"
	default:
		return "unknown store"
	}
}

// sqliteMagic is the first 16 bytes of every SQLite database file.
var sqliteMagic = []byte("SQLite format 3\x00")

// DetectSource classifies a path without fully opening it.
func DetectSource(path string) (SourceType, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		if _, err := os.Stat(filepath.Join(path, zarrGroupMarker)); err == nil {
			return SourceTypeZarrDir, nil
		}
		if _, err := os.Stat(filepath.Join(path, zarrArrayMarker)); err == nil {
			return SourceTypeZarrDir, nil
		}
		return "", fmt.Errorf("%s: directory has no %s or %s marker", path, zarrGroupMarker, zarrArrayMarker)
	}
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return SourceTypeZarrZip, nil
	}
	header := make([]byte, len(sqliteMagic))
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if n, _ := f.Read(header); n == len(sqliteMagic) && bytes.Equal(header, sqliteMagic) {
		return SourceTypePack, nil
	}
	return "", fmt.Errorf("%s: not a zarr store, zip store, or canopy pack", path)
}

// Open detects the store flavor and returns a ready Reader plus the detected
// type for the status line. The Reader dedupes concurrent identical reads.
func Open(path string) (Reader, SourceType, error) {
	typ, err := DetectSource(path)
	if err != nil {
		return nil, "", err
	}
	var r Reader
	switch typ {
	case SourceTypeZarrDir:
		r, err = newZarrStore(os.DirFS(path), nil)
	case SourceTypeZarrZip:
		r, err = openZarrZip(path)
	case SourceTypePack:
		r, err = openPack(path)
	}
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", typ, err)
	}
	return Dedup(r), typ, nil
}
