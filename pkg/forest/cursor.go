package forest

// Metrics is the row geometry a cursor computation needs. Both *Tree and
// *RowMap satisfy it, so the same math serves the live tree on the
// foreground and a published snapshot on a background goroutine.
type Metrics interface {
	RowCount() int
	LineLength(row int) int
	TotalLength() int
}

// RowOf maps a rune offset in the joined text to its display row. An
// offset sitting on a line's trailing newline still belongs to that line.
// The second return is false when the offset lies beyond the text, which
// happens when a collapse shrinks the buffer under a parked cursor.
func RowOf(m Metrics, offset int) (int, bool) {
	if offset < 0 {
		return 0, false
	}
	cum := 0
	rows := m.RowCount()
	for r := 0; r < rows; r++ {
		cum += m.LineLength(r) + 1
		if offset < cum {
			return r, true
		}
	}
	return rows, false
}

// OffsetOfRowStart returns the rune offset of the first character of row,
// clamped into [0, TotalLength] so callers can hand it straight to the
// cursor.
func OffsetOfRowStart(m Metrics, row int) int {
	if row <= 0 {
		return 0
	}
	off := 0
	rows := m.RowCount()
	for r := 0; r < rows && r < row; r++ {
		off += m.LineLength(r) + 1
	}
	if total := m.TotalLength(); off > total {
		return total
	}
	return off
}

// ClampRow confines a row index to the valid range.
func ClampRow(m Metrics, row int) int {
	if row < 0 {
		return 0
	}
	if last := m.RowCount() - 1; row > last {
		return last
	}
	return row
}

// RowMap is an immutable snapshot of the tree's row geometry, built on the
// foreground after each mutation and published through an atomic pointer
// for the background sync loop. Gen ties the snapshot to the tree state
// that produced it.
type RowMap struct {
	Nodes []*Node
	Lens  []int
	Total int
	Gen   uint64
}

// RowMap snapshots the current geometry.
func (t *Tree) RowMap() *RowMap {
	rm := &RowMap{
		Nodes: make([]*Node, len(t.nodes)),
		Lens:  make([]int, len(t.lens)),
		Total: t.length,
		Gen:   t.gen,
	}
	copy(rm.Nodes, t.nodes)
	copy(rm.Lens, t.lens)
	return rm
}

// RowCount returns the number of rows in the snapshot.
func (m *RowMap) RowCount() int { return len(m.Nodes) }

// LineLength returns the rune count of the snapshot line at row.
func (m *RowMap) LineLength(row int) int {
	if row < 0 || row >= len(m.Lens) {
		return 0
	}
	return m.Lens[row]
}

// TotalLength returns the rune count of the snapshot's joined text.
func (m *RowMap) TotalLength() int { return m.Total }

// NodeAt returns the node at row, or nil when row is out of range.
func (m *RowMap) NodeAt(row int) *Node {
	if row < 0 || row >= len(m.Nodes) {
		return nil
	}
	return m.Nodes[row]
}

// LastRowStart returns the offset of the last row's first character. A
// cursor stranded past the end of the text reparks here.
func (m *RowMap) LastRowStart() int {
	if len(m.Lens) == 0 {
		return 0
	}
	off := m.Total - m.Lens[len(m.Lens)-1]
	if off < 0 {
		return 0
	}
	return off
}
