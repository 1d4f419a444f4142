package store

import (
	"errors"

	"github.com/goccy/go-json"
)

// NodeDetail holds the structural facts behind a node's display text:
// the original shape, dtype, and attribute document rather than the
// formatted pane strings. The pack writer records these so they survive
// the copy.
type NodeDetail struct {
	Kind  Kind
	Shape []int  // nil for groups
	Dtype string // original dtype code; "" for groups
	Elems int    // element count; 0 for groups
	Attrs map[string]json.RawMessage
}

// Detailer is implemented by backends that can describe a node
// structurally. Callers that only have a Reader go through AsDetailer.
type Detailer interface {
	Detail(path string) (NodeDetail, error)
}

// AsDetailer returns the structural view of a Reader, unwrapping any
// deduplicating layer in between. ok is false when the underlying store
// cannot describe nodes beyond the Reader surface.
func AsDetailer(r Reader) (Detailer, bool) {
	for {
		if det, ok := r.(Detailer); ok {
			return det, true
		}
		u, ok := r.(interface{ Unwrap() Reader })
		if !ok {
			return nil, false
		}
		r = u.Unwrap()
	}
}

func (z *zarrStore) Detail(nodePath string) (NodeDetail, error) {
	attrs, err := z.attrDoc(nodePath)
	if err != nil {
		return NodeDetail{}, err
	}
	a, err := z.array(nodePath)
	switch {
	case err == nil:
		return NodeDetail{
			Kind:  KindDataset,
			Shape: a.meta.Shape,
			Dtype: a.meta.Dtype,
			Elems: a.n,
			Attrs: attrs,
		}, nil
	case errors.Is(err, ErrNotDataset):
		return NodeDetail{Kind: KindGroup, Attrs: attrs}, nil
	default:
		return NodeDetail{}, err
	}
}

func (p *packStore) Detail(nodePath string) (NodeDetail, error) {
	kind, shapeJSON, dtypeStr, nelems, err := p.node(nodePath)
	if err != nil {
		return NodeDetail{}, err
	}
	d := NodeDetail{Kind: kind, Dtype: dtypeStr, Elems: nelems}
	if shapeJSON != "" {
		if err := json.Unmarshal([]byte(shapeJSON), &d.Shape); err != nil {
			d.Shape = nil
		}
	}
	if d.Attrs, err = p.attrMap(nodePath); err != nil {
		return NodeDetail{}, err
	}
	return d, nil
}
