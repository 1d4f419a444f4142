// Package testutil writes small deterministic store fixtures for tests and
// the sample-data generator. The written layout is real Zarr v2: marker
// documents, C-order chunk files, optional zlib/gzip compression.
package testutil

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ZarrArray describes one dataset of a fixture store.
type ZarrArray struct {
	Path       string // node path, e.g. "/obs/temperature"
	Dtype      string // numpy-style code: "<f8", "<i4", "|b1", ...
	Shape      []int
	Chunks     []int          // defaults to Shape when nil
	Compressor string         // "", "zlib", or "gzip"
	Values     []float64      // flattened C-order; short slices pad with zero
	Attrs      map[string]any // written to .zattrs when non-empty
}

// ZarrStore describes a whole fixture hierarchy. Groups on the path of any
// array are created implicitly; GroupAttrs adds attribute docs to specific
// group paths (use "/" for the root).
type ZarrStore struct {
	Arrays     []ZarrArray
	GroupAttrs map[string]map[string]any
}

// WriteZarrStore materializes the fixture under dir, which becomes the store
// root (it gains the root .zgroup marker).
func WriteZarrStore(dir string, s ZarrStore) error {
	groups := map[string]bool{"/": true}
	for _, a := range s.Arrays {
		for p := parentPath(a.Path); ; p = parentPath(p) {
			groups[p] = true
			if p == "/" {
				break
			}
		}
	}
	for p := range s.GroupAttrs {
		groups[p] = true
	}
	paths := make([]string, 0, len(groups))
	for p := range groups {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		gdir := filepath.Join(dir, filepath.FromSlash(strings.TrimPrefix(p, "/")))
		if err := os.MkdirAll(gdir, 0o755); err != nil {
			return err
		}
		if err := writeJSON(filepath.Join(gdir, ".zgroup"), map[string]any{"zarr_format": 2}); err != nil {
			return err
		}
		if attrs := s.GroupAttrs[p]; len(attrs) > 0 {
			if err := writeJSON(filepath.Join(gdir, ".zattrs"), attrs); err != nil {
				return err
			}
		}
	}
	for _, a := range s.Arrays {
		if err := writeZarrArray(dir, a); err != nil {
			return fmt.Errorf("array %s: %w", a.Path, err)
		}
	}
	return nil
}

func parentPath(p string) string {
	p = strings.TrimSuffix(p, "/")
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

func writeJSON(path string, doc any) error {
	raw, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func writeZarrArray(root string, a ZarrArray) error {
	if a.Chunks == nil {
		a.Chunks = a.Shape
	}
	adir := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(a.Path, "/")))
	if err := os.MkdirAll(adir, 0o755); err != nil {
		return err
	}
	var comp any
	if a.Compressor != "" {
		comp = map[string]any{"id": a.Compressor}
	}
	meta := map[string]any{
		"zarr_format": 2,
		"shape":       a.Shape,
		"chunks":      a.Chunks,
		"dtype":       a.Dtype,
		"compressor":  comp,
		"fill_value":  0,
		"order":       "C",
		"filters":     nil,
	}
	if err := writeJSON(filepath.Join(adir, ".zarray"), meta); err != nil {
		return err
	}
	if len(a.Attrs) > 0 {
		if err := writeJSON(filepath.Join(adir, ".zattrs"), a.Attrs); err != nil {
			return err
		}
	}
	return writeChunkFiles(adir, a)
}

// writeChunkFiles lays the values out into full-sized C-order chunks, the
// way Zarr v2 stores edge chunks (padded, never short).
func writeChunkFiles(adir string, a ZarrArray) error {
	size, encode, err := elementCodec(a.Dtype)
	if err != nil {
		return err
	}
	rank := len(a.Shape)
	if rank == 0 {
		buf := make([]byte, size)
		encode(buf, value(a.Values, 0))
		return writeChunk(filepath.Join(adir, "0"), buf, a.Compressor)
	}
	grid := make([]int, rank)
	chunkElems := 1
	for i := range a.Shape {
		grid[i] = (a.Shape[i] + a.Chunks[i] - 1) / a.Chunks[i]
		chunkElems *= a.Chunks[i]
	}
	coord := make([]int, rank)
	for {
		buf := make([]byte, chunkElems*size)
		within := make([]int, rank)
		for flat := 0; flat < chunkElems; flat++ {
			rem := flat
			for i := rank - 1; i >= 0; i-- {
				within[i] = rem % a.Chunks[i]
				rem /= a.Chunks[i]
			}
			inBounds := true
			global := 0
			for i := 0; i < rank; i++ {
				g := coord[i]*a.Chunks[i] + within[i]
				if g >= a.Shape[i] {
					inBounds = false
					break
				}
				global = global*a.Shape[i] + g
			}
			if inBounds {
				encode(buf[flat*size:], value(a.Values, global))
			}
		}
		parts := make([]string, rank)
		for i, c := range coord {
			parts[i] = strconv.Itoa(c)
		}
		name := strings.Join(parts, ".")
		if err := writeChunk(filepath.Join(adir, name), buf, a.Compressor); err != nil {
			return err
		}
		i := rank - 1
		for ; i >= 0; i-- {
			coord[i]++
			if coord[i] < grid[i] {
				break
			}
			coord[i] = 0
		}
		if i < 0 {
			return nil
		}
	}
}

func value(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

func writeChunk(path string, raw []byte, compressor string) error {
	switch compressor {
	case "":
		return os.WriteFile(path, raw, 0o644)
	case "zlib":
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		return os.WriteFile(path, buf.Bytes(), 0o644)
	case "gzip":
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		return os.WriteFile(path, buf.Bytes(), 0o644)
	default:
		return fmt.Errorf("unsupported fixture compressor %q", compressor)
	}
}

// elementCodec returns the byte width and encoder for the dtype codes the
// fixtures use.
func elementCodec(dtype string) (int, func([]byte, float64), error) {
	switch dtype {
	case "<f8":
		return 8, func(b []byte, v float64) {
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		}, nil
	case "<f4":
		return 4, func(b []byte, v float64) {
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		}, nil
	case "<i8":
		return 8, func(b []byte, v float64) {
			binary.LittleEndian.PutUint64(b, uint64(int64(v)))
		}, nil
	case "<i4":
		return 4, func(b []byte, v float64) {
			binary.LittleEndian.PutUint32(b, uint32(int32(v)))
		}, nil
	case "<i2":
		return 2, func(b []byte, v float64) {
			binary.LittleEndian.PutUint16(b, uint16(int16(v)))
		}, nil
	case "<u2":
		return 2, func(b []byte, v float64) {
			binary.LittleEndian.PutUint16(b, uint16(v))
		}, nil
	case "|u1":
		return 1, func(b []byte, v float64) { b[0] = byte(v) }, nil
	case "|b1":
		return 1, func(b []byte, v float64) {
			if v != 0 {
				b[0] = 1
			}
		}, nil
	default:
		return 0, nil, fmt.Errorf("fixture dtype %q not supported", dtype)
	}
}

// ZipDir packs an on-disk store into a zip archive, for zip-store tests.
func ZipDir(zipPath, dir string) error {
	f, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// SampleStore is the fixture shared by tests and the sample generator: a
// small climate-flavored hierarchy with nested groups, mixed dtypes, and a
// compressed dataset.
func SampleStore() ZarrStore {
	temps := make([]float64, 365)
	winds := make([]float64, 365)
	for i := range temps {
		temps[i] = 12 + 9*math.Sin(2*math.Pi*float64(i)/365) + 0.01*float64(i%7)
		winds[i] = 4 + 2.5*math.Cos(2*math.Pi*float64(i)/365) + 0.02*float64(i%11)
	}
	counts := make([]float64, 24)
	for i := range counts {
		counts[i] = float64((i * 37) % 101)
	}
	flags := make([]float64, 16)
	for i := range flags {
		flags[i] = float64(i % 2)
	}
	grid := make([]float64, 6*8)
	for i := range grid {
		grid[i] = float64(i) / 2
	}
	return ZarrStore{
		GroupAttrs: map[string]map[string]any{
			"/":    {"title": "station records", "version": "1.2"},
			"/obs": {"station": "K-41", "lat": 59.33, "lon": 18.07},
		},
		Arrays: []ZarrArray{
			{Path: "/obs/temperature", Dtype: "<f8", Shape: []int{365}, Chunks: []int{128},
				Compressor: "zlib", Values: temps,
				Attrs: map[string]any{"units": "degC", "long_name": "2m air temperature"}},
			{Path: "/obs/wind_speed", Dtype: "<f4", Shape: []int{365}, Chunks: []int{128},
				Values: winds, Attrs: map[string]any{"units": "m/s"}},
			{Path: "/obs/qc/flags", Dtype: "|b1", Shape: []int{16}, Values: flags},
			{Path: "/summary/hourly_counts", Dtype: "<i4", Shape: []int{24}, Values: counts},
			{Path: "/summary/grid", Dtype: "<f8", Shape: []int{6, 8}, Chunks: []int{3, 4}, Values: grid},
		},
	}
}
