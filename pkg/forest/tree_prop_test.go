package forest_test

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"

	"github.com/vanderheijden86/canopy/internal/store"
	"github.com/vanderheijden86/canopy/pkg/forest"
)

// genHierarchy draws a random hierarchy up to four levels deep and returns
// it keyed by parent path, the shape fakeReader serves.
func genHierarchy(rt *rapid.T) map[string][]store.Entry {
	children := map[string][]store.Entry{}
	var fill func(prefix string, depth int)
	fill = func(prefix string, depth int) {
		n := rapid.IntRange(0, 3).Draw(rt, "fanout")
		entries := make([]store.Entry, 0, n)
		for i := 0; i < n; i++ {
			name := fmt.Sprintf("n%d_%d", depth, i)
			childPath := path.Join(prefix, name)
			if depth < 3 && rapid.Bool().Draw(rt, "isGroup") {
				fill(childPath, depth+1)
				entries = append(entries, store.Entry{
					Name:        name,
					Kind:        store.KindGroup,
					HasChildren: len(children[childPath]) > 0,
				})
			} else {
				entries = append(entries, store.Entry{Name: name, Kind: store.KindDataset})
			}
		}
		children[prefix] = entries
	}
	fill("/", 0)
	return children
}

// TestTreeRandomExpandCollapse drives arbitrary expand and collapse
// sequences against random hierarchies and holds the tree to its
// bookkeeping after every step: the row index, per-row lengths, and total
// length must always agree with the joined text, and offsets must round
// trip through the row math.
func TestTreeRandomExpandCollapse(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tree := forest.New(newFakeReader(genHierarchy(rt)), "root")

		steps := rapid.IntRange(1, 50).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			row := rapid.IntRange(0, tree.RowCount()-1).Draw(rt, "row")
			if rapid.Bool().Draw(rt, "expand") {
				if err := tree.ExpandRow(row); err != nil && !errors.Is(err, forest.ErrNotGroup) {
					rt.Fatalf("ExpandRow(%d): %v", row, err)
				}
			} else {
				if err := tree.CollapseRow(row); err != nil {
					rt.Fatalf("CollapseRow(%d): %v", row, err)
				}
			}

			assertGeometry(rt, tree)
			assertRowMath(rt, tree)
			assertDepths(rt, tree)
		}
	})
}

func assertGeometry(rt *rapid.T, tree *forest.Tree) {
	text := tree.Text()
	lines := strings.Split(text, "\n")
	if len(lines) != tree.RowCount() {
		rt.Fatalf("text has %d lines, row index has %d", len(lines), tree.RowCount())
	}
	if got, want := tree.TotalLength(), utf8.RuneCountInString(text); got != want {
		rt.Fatalf("TotalLength = %d, text holds %d runes", got, want)
	}
	for r, line := range lines {
		if got := tree.Line(r); got != line {
			rt.Fatalf("Line(%d) = %q, text line is %q", r, got, line)
		}
		if got, want := tree.LineLength(r), utf8.RuneCountInString(line); got != want {
			rt.Fatalf("LineLength(%d) = %d, want %d", r, got, want)
		}
	}
}

func assertRowMath(rt *rapid.T, tree *forest.Tree) {
	for r := 0; r < tree.RowCount(); r++ {
		off := forest.OffsetOfRowStart(tree, r)
		got, ok := forest.RowOf(tree, off)
		if !ok || got != r {
			rt.Fatalf("RowOf(OffsetOfRowStart(%d)=%d) = %d, %v", r, off, got, ok)
		}
	}
	if _, ok := forest.RowOf(tree, tree.TotalLength()+1); ok {
		rt.Fatalf("offset past the end resolved to a row")
	}

	rm := tree.RowMap()
	if rm.RowCount() != tree.RowCount() || rm.TotalLength() != tree.TotalLength() {
		rt.Fatalf("snapshot geometry %d/%d diverges from tree %d/%d",
			rm.RowCount(), rm.TotalLength(), tree.RowCount(), tree.TotalLength())
	}
	if last := rm.LastRowStart(); last != forest.OffsetOfRowStart(rm, rm.RowCount()-1) {
		rt.Fatalf("LastRowStart = %d, want row start of %d", last, rm.RowCount()-1)
	}
}

func assertDepths(rt *rapid.T, tree *forest.Tree) {
	prev := -1
	for r := 0; r < tree.RowCount(); r++ {
		node, err := tree.NodeAtRow(r)
		if err != nil {
			rt.Fatalf("NodeAtRow(%d): %v", r, err)
		}
		if node.Depth > prev+1 {
			rt.Fatalf("row %d jumps from depth %d to %d", r, prev, node.Depth)
		}
		prev = node.Depth
	}
}
