package store

import (
	"fmt"

	"golang.org/x/sync/singleflight"
)

// dedupReader collapses concurrent identical reads into one underlying call.
// A second request for a node whose fetch is already in flight shares the
// first call's result instead of hitting the store again, so re-entrant
// expand or value requests on the same node are effectively free.
type dedupReader struct {
	inner Reader
	group singleflight.Group
}

// Dedup wraps a Reader with per-key in-flight deduplication.
func Dedup(r Reader) Reader {
	if _, ok := r.(*dedupReader); ok {
		return r
	}
	return &dedupReader{inner: r}
}

type valuesResult struct {
	text string
	n    int
}

func (d *dedupReader) ListChildren(path string) ([]Entry, error) {
	v, err, _ := d.group.Do("children\x00"+path, func() (any, error) {
		return d.inner.ListChildren(path)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Entry), nil
}

func (d *dedupReader) Metadata(path string) (string, error) {
	v, err, _ := d.group.Do("metadata\x00"+path, func() (any, error) {
		return d.inner.Metadata(path)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (d *dedupReader) Attributes(path string) (string, error) {
	v, err, _ := d.group.Do("attributes\x00"+path, func() (any, error) {
		return d.inner.Attributes(path)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (d *dedupReader) Values(path string, start, end int) (string, int, error) {
	key := fmt.Sprintf("values\x00%s\x00%d\x00%d", path, start, end)
	v, err, _ := d.group.Do(key, func() (any, error) {
		text, n, err := d.inner.Values(path, start, end)
		if err != nil {
			return nil, err
		}
		return valuesResult{text: text, n: n}, nil
	})
	if err != nil {
		return "", 0, err
	}
	res := v.(valuesResult)
	return res.text, res.n, nil
}

func (d *dedupReader) Floats(path string, start, end int) ([]float64, error) {
	key := fmt.Sprintf("floats\x00%s\x00%d\x00%d", path, start, end)
	v, err, _ := d.group.Do(key, func() (any, error) {
		return d.inner.Floats(path, start, end)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float64), nil
}

func (d *dedupReader) Len(path string) (int, error) {
	v, err, _ := d.group.Do("length\x00"+path, func() (any, error) {
		return d.inner.Len(path)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (d *dedupReader) Close() error { return d.inner.Close() }

// Unwrap exposes the wrapped Reader so capability probes like AsDetailer
// can see through the dedup layer.
func (d *dedupReader) Unwrap() Reader { return d.inner }
