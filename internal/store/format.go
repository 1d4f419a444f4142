package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// dtype is a parsed numpy-style type code ("<f8", ">i4", "|b1", ...).
type dtype struct {
	kind      byte // 'f', 'i', 'u', 'b'
	size      int  // bytes per element
	bigEndian bool
}

func parseDtype(s string) (dtype, error) {
	if len(s) < 3 {
		return dtype{}, fmt.Errorf("dtype %q too short", s)
	}
	var dt dtype
	switch s[0] {
	case '<', '|':
	case '>':
		dt.bigEndian = true
	default:
		return dtype{}, fmt.Errorf("dtype %q: unknown byte order %q", s, s[0])
	}
	dt.kind = s[1]
	switch dt.kind {
	case 'f', 'i', 'u', 'b':
	default:
		return dtype{}, fmt.Errorf("dtype %q: unsupported kind %q", s, s[1])
	}
	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return dtype{}, fmt.Errorf("dtype %q: bad item size: %w", s, err)
	}
	dt.size = size
	switch dt.kind {
	case 'f':
		if size != 4 && size != 8 {
			return dtype{}, fmt.Errorf("dtype %q: unsupported float width", s)
		}
	case 'i', 'u':
		if size != 1 && size != 2 && size != 4 && size != 8 {
			return dtype{}, fmt.Errorf("dtype %q: unsupported integer width", s)
		}
	case 'b':
		if size != 1 {
			return dtype{}, fmt.Errorf("dtype %q: unsupported bool width", s)
		}
	}
	return dt, nil
}

func (dt dtype) order() binary.ByteOrder {
	if dt.bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// elementAt decodes the element at index i of a raw little/big-endian buffer.
func (dt dtype) elementAt(raw []byte, i int) (float64, error) {
	off := i * dt.size
	if off < 0 || off+dt.size > len(raw) {
		return 0, fmt.Errorf("element %d past end of %d-byte chunk", i, len(raw))
	}
	b := raw[off : off+dt.size]
	ord := dt.order()
	switch dt.kind {
	case 'f':
		if dt.size == 4 {
			return float64(math.Float32frombits(ord.Uint32(b))), nil
		}
		return math.Float64frombits(ord.Uint64(b)), nil
	case 'i':
		switch dt.size {
		case 1:
			return float64(int8(b[0])), nil
		case 2:
			return float64(int16(ord.Uint16(b))), nil
		case 4:
			return float64(int32(ord.Uint32(b))), nil
		default:
			return float64(int64(ord.Uint64(b))), nil
		}
	case 'u':
		switch dt.size {
		case 1:
			return float64(b[0]), nil
		case 2:
			return float64(ord.Uint16(b)), nil
		case 4:
			return float64(ord.Uint32(b)), nil
		default:
			return float64(ord.Uint64(b)), nil
		}
	case 'b':
		if b[0] != 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("unsupported dtype kind %q", dt.kind)
}

// formatElement renders one element the way the values pane shows it.
// Integers stay integral, floats keep shortest-round-trip form, bools read
// as true/false.
func (dt dtype) formatElement(v float64) string {
	switch dt.kind {
	case 'b':
		if v != 0 {
			return "true"
		}
		return "false"
	case 'i', 'u':
		return strconv.FormatInt(int64(v), 10)
	default:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
}

// valuesPerLine keeps the values pane readable without tracking pane width
// down here; long lines wrap in the viewport anyway.
const valuesPerLine = 8

// formatValues renders a window of elements, one space-separated row of
// valuesPerLine per text line, with the element index of each row's first
// element in a left gutter.
func formatValues(dt dtype, vals []float64, start int, note string) string {
	if len(vals) == 0 {
		if note != "" {
			return note
		}
		return "(empty)"
	}
	var b strings.Builder
	width := len(strconv.Itoa(start + len(vals) - 1))
	for i, v := range vals {
		if i%valuesPerLine == 0 {
			if i > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "[%*d] ", width, start+i)
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(dt.formatElement(v))
	}
	if note != "" {
		b.WriteString("\n\n")
		b.WriteString(note)
	}
	return b.String()
}

// shapeString renders a shape tuple for the metadata pane, e.g. (100, 10).
func shapeString(shape []int) string {
	if len(shape) == 0 {
		return "()"
	}
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = strconv.Itoa(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// elemCount multiplies out a shape. A scalar shape () counts one element.
func elemCount(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}
