package store

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"io/fs"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// Zarr v2 marker documents. Groups carry .zgroup, arrays carry .zarray,
// either may carry .zattrs.
const (
	zarrGroupMarker = ".zgroup"
	zarrArrayMarker = ".zarray"
	zarrAttrsMarker = ".zattrs"
)

type zarrArrayMeta struct {
	ZarrFormat         int             `json:"zarr_format"`
	Shape              []int           `json:"shape"`
	Chunks             []int           `json:"chunks"`
	Dtype              string          `json:"dtype"`
	Compressor         *zarrCompressor `json:"compressor"`
	FillValue          json.RawMessage `json:"fill_value"`
	Order              string          `json:"order"`
	DimensionSeparator string          `json:"dimension_separator"`
}

type zarrCompressor struct {
	ID string `json:"id"`
}

// zarrArray is a parsed .zarray plus derived layout facts.
type zarrArray struct {
	meta zarrArrayMeta
	dt   dtype
	sep  string
	n    int
	fill float64
}

// zarrStore reads a Zarr v2 hierarchy through an fs.FS, which serves both
// directory stores (os.DirFS) and zip stores (archive/zip).
type zarrStore struct {
	fsys   fs.FS
	closer io.Closer // zip handle; nil for directories

	mu     sync.Mutex
	arrays map[string]*zarrArray
	chunks *chunkCache
}

func newZarrStore(fsys fs.FS, closer io.Closer) (*zarrStore, error) {
	z := &zarrStore{
		fsys:   fsys,
		closer: closer,
		arrays: make(map[string]*zarrArray),
		chunks: newChunkCache(8),
	}
	if exists(fsys, zarrArrayMarker) {
		return nil, fmt.Errorf("store root is a bare array; open its enclosing group")
	}
	if !exists(fsys, zarrGroupMarker) {
		return nil, fmt.Errorf("no %s at store root", zarrGroupMarker)
	}
	return z, nil
}

// openZarrZip handles zip stores, including archives where the hierarchy
// sits under a single top-level directory.
func openZarrZip(p string) (*zarrStore, error) {
	rc, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("open zip store: %w", err)
	}
	var fsys fs.FS = &rc.Reader
	if !exists(fsys, zarrGroupMarker) {
		entries, err := fs.ReadDir(fsys, ".")
		if err == nil && len(entries) == 1 && entries[0].IsDir() {
			if sub, err := fs.Sub(fsys, entries[0].Name()); err == nil && exists(sub, zarrGroupMarker) {
				fsys = sub
			}
		}
	}
	z, err := newZarrStore(fsys, rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return z, nil
}

func exists(fsys fs.FS, p string) bool {
	_, err := fs.Stat(fsys, p)
	return err == nil
}

// fsPath maps a node path ("/", "/a/b") onto the fs.FS namespace.
func fsPath(nodePath string) string {
	p := strings.Trim(nodePath, "/")
	if p == "" {
		return "."
	}
	return p
}

func (z *zarrStore) Close() error {
	if z.closer != nil {
		return z.closer.Close()
	}
	return nil
}

func (z *zarrStore) ListChildren(nodePath string) ([]Entry, error) {
	dir := fsPath(nodePath)
	if exists(z.fsys, path.Join(dir, zarrArrayMarker)) {
		return nil, readErr("children", nodePath, ErrNotDataset)
	}
	entries, err := fs.ReadDir(z.fsys, dir)
	if err != nil {
		return nil, readErr("children", nodePath, err)
	}
	var out []Entry
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		child := path.Join(dir, name)
		if exists(z.fsys, path.Join(child, zarrArrayMarker)) {
			out = append(out, Entry{Name: name, Kind: KindDataset})
			continue
		}
		out = append(out, Entry{Name: name, Kind: KindGroup, HasChildren: z.groupHasChildren(child)})
	}
	return out, nil
}

// groupHasChildren peeks one level down so hasChildren never loads a child
// list into the tree.
func (z *zarrStore) groupHasChildren(dir string) bool {
	entries, err := fs.ReadDir(z.fsys, dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			return true
		}
	}
	return false
}

// array parses and caches the .zarray document for a dataset path.
func (z *zarrStore) array(nodePath string) (*zarrArray, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if a, ok := z.arrays[nodePath]; ok {
		return a, nil
	}
	raw, err := fs.ReadFile(z.fsys, path.Join(fsPath(nodePath), zarrArrayMarker))
	if err != nil {
		if exists(z.fsys, fsPath(nodePath)) {
			return nil, ErrNotDataset
		}
		return nil, ErrNotFound
	}
	var meta zarrArrayMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", zarrArrayMarker, err)
	}
	dt, err := parseDtype(meta.Dtype)
	if err != nil {
		return nil, err
	}
	if meta.Order != "" && meta.Order != "C" {
		return nil, fmt.Errorf("unsupported array order %q", meta.Order)
	}
	if len(meta.Chunks) != len(meta.Shape) {
		return nil, fmt.Errorf("chunk rank %d does not match shape rank %d", len(meta.Chunks), len(meta.Shape))
	}
	a := &zarrArray{
		meta: meta,
		dt:   dt,
		sep:  meta.DimensionSeparator,
		n:    elemCount(meta.Shape),
		fill: parseFill(meta.FillValue),
	}
	if a.sep == "" {
		a.sep = "."
	}
	z.arrays[nodePath] = a
	return a, nil
}

func parseFill(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return 1
		}
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "NaN":
			return math.NaN()
		case "Infinity":
			return math.Inf(1)
		case "-Infinity":
			return math.Inf(-1)
		}
	}
	return 0
}

// chunkOf locates the chunk holding flat element index i of a C-order array
// and the element's offset inside that chunk. Edge chunks are full-sized in
// Zarr v2, padded with the fill value.
func (a *zarrArray) chunkOf(flat int) (key string, within int) {
	shape, chunks := a.meta.Shape, a.meta.Chunks
	if len(shape) == 0 {
		return "0", 0
	}
	multi := make([]int, len(shape))
	rem := flat
	for i := len(shape) - 1; i >= 0; i-- {
		multi[i] = rem % shape[i]
		rem /= shape[i]
	}
	parts := make([]string, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		parts[i] = strconv.Itoa(multi[i] / chunks[i])
		within += (multi[i] % chunks[i]) * stride
		stride *= chunks[i]
	}
	return strings.Join(parts, a.sep), within
}

func (a *zarrArray) chunkElems() int {
	n := 1
	for _, c := range a.meta.Chunks {
		n *= c
	}
	return n
}

// chunkData loads, decompresses, and caches one chunk. A missing chunk file
// stands for an all-fill chunk.
func (z *zarrStore) chunkData(nodePath string, a *zarrArray, key string) ([]byte, error) {
	cacheKey := nodePath + "\x00" + key
	if data, ok := z.chunks.get(cacheKey); ok {
		return data, nil
	}
	chunkPath := path.Join(fsPath(nodePath), key)
	raw, err := fs.ReadFile(z.fsys, chunkPath)
	if err != nil {
		if !exists(z.fsys, chunkPath) {
			z.chunks.put(cacheKey, nil)
			return nil, nil
		}
		return nil, err
	}
	data, err := decompressChunk(raw, a.meta.Compressor)
	if err != nil {
		return nil, err
	}
	if want := a.chunkElems() * a.dt.size; len(data) != want {
		return nil, fmt.Errorf("chunk %s: got %d bytes, want %d", key, len(data), want)
	}
	z.chunks.put(cacheKey, data)
	return data, nil
}

func decompressChunk(raw []byte, c *zarrCompressor) ([]byte, error) {
	if c == nil {
		return raw, nil
	}
	switch c.ID {
	case "zlib":
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("zlib chunk: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip chunk: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unsupported compressor %q", c.ID)
	}
}

func (z *zarrStore) Floats(nodePath string, start, end int) ([]float64, error) {
	a, err := z.array(nodePath)
	if err != nil {
		return nil, readErr("values", nodePath, err)
	}
	if start < 0 {
		start = 0
	}
	if end > a.n {
		end = a.n
	}
	if end <= start {
		return nil, nil
	}
	out := make([]float64, 0, end-start)
	for i := start; i < end; i++ {
		key, within := a.chunkOf(i)
		data, err := z.chunkData(nodePath, a, key)
		if err != nil {
			return nil, readErr("values", nodePath, err)
		}
		if data == nil {
			out = append(out, a.fill)
			continue
		}
		v, err := a.dt.elementAt(data, within)
		if err != nil {
			return nil, readErr("values", nodePath, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (z *zarrStore) Values(nodePath string, start, end int) (string, int, error) {
	a, err := z.array(nodePath)
	if err != nil {
		return "", 0, readErr("values", nodePath, err)
	}
	lo, hi, note := clampValueRange(start, end, a.n)
	vals, err := z.Floats(nodePath, lo, hi)
	if err != nil {
		return "", 0, err
	}
	return formatValues(a.dt, vals, lo, note), a.n, nil
}

func (z *zarrStore) Len(nodePath string) (int, error) {
	a, err := z.array(nodePath)
	if err != nil {
		return 0, readErr("length", nodePath, err)
	}
	return a.n, nil
}

func (z *zarrStore) Metadata(nodePath string) (string, error) {
	if a, err := z.array(nodePath); err == nil {
		comp := "none"
		if a.meta.Compressor != nil {
			comp = a.meta.Compressor.ID
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Dataset:     %s\n", nodePath)
		fmt.Fprintf(&b, "Shape:       %s\n", shapeString(a.meta.Shape))
		fmt.Fprintf(&b, "Dtype:       %s\n", a.meta.Dtype)
		fmt.Fprintf(&b, "Chunks:      %s\n", shapeString(a.meta.Chunks))
		fmt.Fprintf(&b, "Compressor:  %s\n", comp)
		fmt.Fprintf(&b, "Elements:    %d", a.n)
		return b.String(), nil
	}
	dir := fsPath(nodePath)
	if !exists(z.fsys, dir) {
		return "", readErr("metadata", nodePath, ErrNotFound)
	}
	children, err := z.ListChildren(nodePath)
	if err != nil {
		return "", err
	}
	attrs, _ := z.attrDoc(nodePath)
	var b strings.Builder
	fmt.Fprintf(&b, "Group:       %s\n", nodePath)
	fmt.Fprintf(&b, "Children:    %d\n", len(children))
	fmt.Fprintf(&b, "Attributes:  %d", len(attrs))
	return b.String(), nil
}

// attrDoc reads and decodes .zattrs for a node. Missing file means no
// attributes, not an error.
func (z *zarrStore) attrDoc(nodePath string) (map[string]json.RawMessage, error) {
	raw, err := fs.ReadFile(z.fsys, path.Join(fsPath(nodePath), zarrAttrsMarker))
	if err != nil {
		return nil, nil
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", zarrAttrsMarker, err)
	}
	return doc, nil
}

func (z *zarrStore) Attributes(nodePath string) (string, error) {
	doc, err := z.attrDoc(nodePath)
	if err != nil {
		return "", readErr("attributes", nodePath, err)
	}
	return formatAttrDoc(doc), nil
}

// formatAttrDoc renders attributes one per line in key order, values in
// compact JSON.
func formatAttrDoc(doc map[string]json.RawMessage) string {
	if len(doc) == 0 {
		return "(no attributes)"
	}
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		compact, err := json.Marshal(doc[k])
		if err != nil {
			compact = doc[k]
		}
		fmt.Fprintf(&b, "%s: %s", k, compact)
	}
	return b.String()
}

// chunkCache holds recently decoded chunks. Entries may be nil, standing for
// a chunk file that does not exist (all fill value).
type chunkCache struct {
	mu    sync.Mutex
	cap   int
	data  map[string][]byte
	order []string
}

func newChunkCache(cap int) *chunkCache {
	return &chunkCache{cap: cap, data: make(map[string][]byte)}
}

func (c *chunkCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[key]
	return data, ok
}

func (c *chunkCache) put(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.data[key]; ok {
		c.data[key] = data
		return
	}
	if len(c.order) >= c.cap {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.data, oldest)
	}
	c.data[key] = data
	c.order = append(c.order, key)
}
