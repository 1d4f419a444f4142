// Package store opens hierarchical array stores and serves the tree,
// metadata, attribute, and value reads behind the explorer. It detects the
// store flavor from the path (Zarr directory store, Zarr zip store, or a
// single-file canopy pack) and hands back a uniform read-only Reader.
package store

import (
	"errors"
	"fmt"
)

// Kind classifies a node in the hierarchy.
type Kind string

const (
	// KindGroup is a container node; it may have children.
	KindGroup Kind = "group"
	// KindDataset is a leaf node holding a typed array.
	KindDataset Kind = "dataset"
)

// Entry describes one child of a group, in store order.
type Entry struct {
	// Name is the child's own name (no slashes).
	Name string
	// Kind says whether the child is a group or a dataset.
	Kind Kind
	// HasChildren reports whether the child has children of its own,
	// determined without loading them.
	HasChildren bool
}

// DefaultValueWindow is the number of elements shown when a value request
// carries no explicit range.
const DefaultValueWindow = 100

// MaxValueElements caps any single value request, ranged or not. Requests
// beyond the cap are clipped and the formatted text carries a truncation note.
const MaxValueElements = 1000

// NoBound marks an absent start or end index in a value request.
const NoBound = -1

// ReadError wraps a failure while reading from a store. The explorer shows
// these in the status line; they never terminate the session.
type ReadError struct {
	Op   string // "children", "metadata", "attributes", "values"
	Path string // node path the read targeted
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s of %s: %v", e.Op, e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

func readErr(op, path string, err error) error {
	return &ReadError{Op: op, Path: path, Err: err}
}

// ErrNotDataset is returned for value or metadata-shape requests against a
// group node.
var ErrNotDataset = errors.New("node is not a dataset")

// ErrNotFound is returned when a path does not exist in the store.
var ErrNotFound = errors.New("node not found")

// Reader is the read-only view of an open store. Paths are slash-separated
// and rooted at "/". Implementations must be safe for concurrent use: the
// foreground event loop and the background pane refresher both call in.
type Reader interface {
	// ListChildren returns the ordered children of a group.
	ListChildren(path string) ([]Entry, error)
	// Metadata returns the display text for the metadata pane.
	Metadata(path string) (string, error)
	// Attributes returns the display text for the attributes pane.
	Attributes(path string) (string, error)
	// Values formats the elements in the half-open range [start, end) of a
	// dataset, along with the dataset's total element count. NoBound for
	// both indices means a capped default window from the start. Ranges
	// wider than MaxValueElements are clipped and noted in the text.
	Values(path string, start, end int) (string, int, error)
	// Floats returns the raw numeric elements in [start, end), for the
	// plotting and reduction paths. Booleans map to 0/1.
	Floats(path string, start, end int) ([]float64, error)
	// Len returns the element count of a dataset.
	Len(path string) (int, error)
	// Close releases the underlying file handles.
	Close() error
}

// ClampValueRange resolves a requested value window exactly the way Values
// does: the default window when both bounds are absent, then the global
// cap. Callers that describe a rendered window (pane titles) use this so
// the description cannot drift from what the backend actually showed.
func ClampValueRange(start, end, n int) (lo, hi int) {
	lo, hi, _ = clampValueRange(start, end, n)
	return lo, hi
}

// clampValueRange resolves a requested value range against a dataset of n
// elements. It applies the default window when both bounds are absent and
// the global cap in all cases. The returned note is non-empty when the
// request was clipped.
func clampValueRange(start, end, n int) (lo, hi int, note string) {
	if start == NoBound && end == NoBound {
		start, end = 0, DefaultValueWindow
	}
	if start == NoBound {
		start = 0
	}
	if end == NoBound || end > n {
		end = n
	}
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	if end < start {
		end = start
	}
	if end-start > MaxValueElements {
		end = start + MaxValueElements
		note = fmt.Sprintf("showing %d of %d elements; narrow the range to see more", end-start, n)
	} else if end < n && start == 0 && end == DefaultValueWindow {
		note = fmt.Sprintf("showing first %d of %d elements", end, n)
	}
	return start, end, note
}
