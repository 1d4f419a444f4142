// Package forest maintains the lazily materialized outline of an open store:
// one node per hierarchy element, a text buffer with one line per visible
// node, the row index that maps display rows back to nodes, and the cursor
// bookkeeping that keeps text, rows, and cursor coherent while nodes expand
// and collapse in place.
package forest

import (
	"path"
	"strings"

	"github.com/vanderheijden86/canopy/internal/store"
)

// Node is one element of the hierarchy. Children are fetched once, on first
// expansion, and cached for the life of the session; collapsing hides rows
// but never drops the cache, so re-expanding is free.
type Node struct {
	Path        string
	Name        string
	Kind        store.Kind
	Depth       int
	HasChildren bool
	Expanded    bool

	children []*Node // nil until the first successful fetch
}

func newRootNode(name string) *Node {
	return &Node{Path: "/", Name: name, Kind: store.KindGroup, HasChildren: true}
}

// Expand returns the node's children, fetching them from the reader only on
// the first call. A fetch failure caches nothing and leaves the node exactly
// as it was.
func (n *Node) Expand(r store.Reader) ([]*Node, error) {
	if n.children != nil {
		return n.children, nil
	}
	entries, err := r.ListChildren(n.Path)
	if err != nil {
		return nil, err
	}
	kids := make([]*Node, 0, len(entries))
	for _, e := range entries {
		kids = append(kids, &Node{
			Path:        path.Join(n.Path, e.Name),
			Name:        e.Name,
			Kind:        e.Kind,
			Depth:       n.Depth + 1,
			HasChildren: e.HasChildren,
		})
	}
	n.children = kids
	return kids, nil
}

// ChildrenLoaded reports whether a fetch already happened, without
// triggering one.
func (n *Node) ChildrenLoaded() bool { return n.children != nil }

// IsGroup reports whether the node can ever have children.
func (n *Node) IsGroup() bool { return n.Kind == store.KindGroup }

// collapseAll clears the expanded flag on this node and every cached
// descendant. Caches stay intact.
func (n *Node) collapseAll() {
	n.Expanded = false
	for _, c := range n.children {
		if c.Expanded || c.children != nil {
			c.collapseAll()
		}
	}
}

// MetadataText fetches the metadata pane text for this node.
func (n *Node) MetadataText(r store.Reader) (string, error) {
	return r.Metadata(n.Path)
}

// AttributeText fetches the attributes pane text for this node.
func (n *Node) AttributeText(r store.Reader) (string, error) {
	return r.Attributes(n.Path)
}

// ValueText fetches a formatted value window plus the dataset's total
// element count. Pass store.NoBound for an unbounded side; the reader caps
// the window and notes any truncation in the text.
func (n *Node) ValueText(r store.Reader, start, end int) (string, int, error) {
	return r.Values(n.Path, start, end)
}

// Glyphs for the tree outline. Groups toggle between closed and open;
// datasets keep a fixed bullet.
const (
	glyphClosed  = "▸"
	glyphOpen    = "▾"
	glyphDataset = "•"
)

const indentWidth = 2

// Line renders the node's own outline row.
func (n *Node) Line() string {
	var b strings.Builder
	b.Grow(n.Depth*indentWidth + len(n.Name) + 4)
	for i := 0; i < n.Depth*indentWidth; i++ {
		b.WriteByte(' ')
	}
	switch {
	case !n.IsGroup():
		b.WriteString(glyphDataset)
	case n.Expanded:
		b.WriteString(glyphOpen)
	default:
		b.WriteString(glyphClosed)
	}
	b.WriteByte(' ')
	b.WriteString(n.Name)
	return b.String()
}
