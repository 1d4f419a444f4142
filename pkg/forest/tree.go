package forest

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/vanderheijden86/canopy/internal/store"
)

// ErrNotGroup reports an expansion attempt on a dataset row.
var ErrNotGroup = errors.New("not a group")

// ErrRowOutOfRange reports a row index that no longer maps to a visible
// node, typically because a collapse removed rows under the cursor.
var ErrRowOutOfRange = errors.New("row out of range")

// Tree owns the visible outline: one entry per display row, kept in three
// parallel forms (node, rendered line, line rune count) so row lookups and
// length queries never rescan the buffer. Expanding splices the direct
// children's rows in after the parent; collapsing removes every row deeper
// than the parent. The joined text and its total length are maintained
// incrementally and only re-joined when someone actually asks for the text.
type Tree struct {
	reader store.Reader
	root   *Node

	nodes []*Node
	lines []string
	lens  []int

	length    int // rune count of Text()
	text      string
	textDirty bool

	gen uint64
}

// New builds a one-row tree holding the collapsed root. rootName is the
// display name only; the root always addresses path "/".
func New(r store.Reader, rootName string) *Tree {
	t := &Tree{reader: r, root: newRootNode(rootName)}
	line := t.root.Line()
	t.nodes = []*Node{t.root}
	t.lines = []string{line}
	t.lens = []int{utf8.RuneCountInString(line)}
	t.length = t.lens[0]
	t.textDirty = true
	return t
}

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// RowCount returns the number of visible rows.
func (t *Tree) RowCount() int { return len(t.nodes) }

// TotalLength returns the rune count of Text().
func (t *Tree) TotalLength() int { return t.length }

// LineLength returns the rune count of the line at row.
func (t *Tree) LineLength(row int) int {
	if row < 0 || row >= len(t.lens) {
		return 0
	}
	return t.lens[row]
}

// Line returns the rendered line at row, or "" when row is out of range.
func (t *Tree) Line(row int) string {
	if row < 0 || row >= len(t.lines) {
		return ""
	}
	return t.lines[row]
}

// NodeAtRow maps a display row back to its node.
func (t *Tree) NodeAtRow(row int) (*Node, error) {
	if row < 0 || row >= len(t.nodes) {
		return nil, fmt.Errorf("row %d of %d: %w", row, len(t.nodes), ErrRowOutOfRange)
	}
	return t.nodes[row], nil
}

// Gen returns the mutation counter. It changes whenever rows are added,
// removed, or rewritten, so cached row maps can detect staleness.
func (t *Tree) Gen() uint64 { return t.gen }

// Text returns the full outline joined by newlines, rebuilding it only
// after a mutation.
func (t *Tree) Text() string {
	if t.textDirty {
		t.text = strings.Join(t.lines, "\n")
		t.textDirty = false
	}
	return t.text
}

// ExpandRow expands the group at row, splicing its direct children in
// directly below it. Expanding an already expanded row is a no-op, and a
// childless group still flips to expanded so the glyph reflects the
// attempt. Datasets cannot expand.
func (t *Tree) ExpandRow(row int) error {
	node, err := t.NodeAtRow(row)
	if err != nil {
		return err
	}
	if !node.IsGroup() {
		return fmt.Errorf("%s: %w", node.Path, ErrNotGroup)
	}
	if node.Expanded {
		return nil
	}
	kids, err := node.Expand(t.reader)
	if err != nil {
		return err
	}
	node.Expanded = true
	t.insertRows(row+1, kids)
	t.replaceLine(row, node.Line())
	t.gen++
	t.textDirty = true
	return nil
}

// CollapseRow collapses the group at row, removing every row deeper than
// it. Collapsing a collapsed or leaf row is a no-op. Cached children
// survive; only their expanded flags reset, so the next expansion shows
// the same single level this one did.
func (t *Tree) CollapseRow(row int) error {
	node, err := t.NodeAtRow(row)
	if err != nil {
		return err
	}
	if !node.Expanded {
		return nil
	}
	end := row + 1
	for end < len(t.nodes) && t.nodes[end].Depth > node.Depth {
		end++
	}
	t.removeRows(row+1, end)
	node.collapseAll()
	t.replaceLine(row, node.Line())
	t.gen++
	t.textDirty = true
	return nil
}

// ToggleRow expands a collapsed group and collapses an expanded one.
func (t *Tree) ToggleRow(row int) error {
	node, err := t.NodeAtRow(row)
	if err != nil {
		return err
	}
	if node.Expanded {
		return t.CollapseRow(row)
	}
	return t.ExpandRow(row)
}

// insertRows splices the nodes' rows in starting at row.
func (t *Tree) insertRows(row int, nodes []*Node) {
	if len(nodes) == 0 {
		return
	}
	lines := make([]string, len(nodes))
	lens := make([]int, len(nodes))
	added := 0
	for i, n := range nodes {
		lines[i] = n.Line()
		lens[i] = utf8.RuneCountInString(lines[i])
		added += lens[i]
	}
	t.nodes = slices.Insert(t.nodes, row, nodes...)
	t.lines = slices.Insert(t.lines, row, lines...)
	t.lens = slices.Insert(t.lens, row, lens...)
	t.length += added + len(nodes) // one newline per inserted row
}

// removeRows drops rows [start, end).
func (t *Tree) removeRows(start, end int) {
	if start >= end {
		return
	}
	removed := 0
	for _, l := range t.lens[start:end] {
		removed += l
	}
	t.nodes = slices.Delete(t.nodes, start, end)
	t.lines = slices.Delete(t.lines, start, end)
	t.lens = slices.Delete(t.lens, start, end)
	t.length -= removed + (end - start)
}

// replaceLine rewrites a single row's text in place.
func (t *Tree) replaceLine(row int, line string) {
	n := utf8.RuneCountInString(line)
	t.length += n - t.lens[row]
	t.lines[row] = line
	t.lens[row] = n
}
