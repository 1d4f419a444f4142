// Package export writes an opened store out in portable forms: single-file
// canopy packs and plot snapshot images. Nothing here mutates the source
// store; every writer targets a new file.
package export

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/canopy/internal/store"
	"github.com/vanderheijden86/canopy/pkg/debug"
	"github.com/vanderheijden86/canopy/pkg/version"

	_ "modernc.org/sqlite"
)

// PackOptions tunes a pack export.
type PackOptions struct {
	// Workers caps the number of datasets copied concurrently. Zero picks
	// a sensible default from the machine.
	Workers int
}

// PackStats reports what a pack export wrote.
type PackStats struct {
	Groups   int
	Datasets int
	Elements int64
	Bytes    int64
	Elapsed  time.Duration
}

// packNode is one node of the walked hierarchy plus the facts its pack
// row needs.
type packNode struct {
	path     string
	parent   string
	name     string
	kind     store.Kind
	shape    string // JSON array text; "" for groups
	dtype    string
	nelems   int
	attrsDoc string // JSON object text; "" when the node has none
}

// WritePack snapshots an opened store into a single-file canopy pack at
// outPath. Dataset elements are normalized to little-endian float64 chunk
// rows; shape, dtype, and attributes ride along when the backend can
// describe them structurally. rootName labels the pack's root node,
// normally the source store's base name.
func WritePack(ctx context.Context, r store.Reader, rootName, outPath string, opts PackOptions) (PackStats, error) {
	start := time.Now()
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 8 {
			workers = 8
		}
	}

	nodes, err := walkStore(ctx, r, rootName)
	if err != nil {
		return PackStats{}, fmt.Errorf("walk store: %w", err)
	}
	if err := resolveNodes(ctx, r, nodes); err != nil {
		return PackStats{}, err
	}
	debug.Log("pack: walked %d nodes from %s", len(nodes), rootName)

	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return PackStats{}, fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.Remove(outPath); err != nil && !os.IsNotExist(err) {
		return PackStats{}, fmt.Errorf("remove existing pack: %w", err)
	}

	db, err := sql.Open("sqlite", outPath)
	if err != nil {
		return PackStats{}, fmt.Errorf("open pack: %w", err)
	}
	dbClosed := false
	defer func() {
		if !dbClosed {
			db.Close()
		}
	}()
	// One connection: copy workers read in parallel but their inserts
	// serialize here instead of fighting over the write lock.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA journal_mode=OFF`,
		`PRAGMA synchronous=OFF`,
	} {
		// Some pragmas fail depending on driver state; keep going.
		_, _ = db.Exec(pragma)
	}

	if err := store.CreatePackSchema(db); err != nil {
		return PackStats{}, err
	}

	var stats PackStats
	if err := insertNodes(ctx, db, nodes, &stats); err != nil {
		return PackStats{}, fmt.Errorf("insert nodes: %w", err)
	}
	if err := insertAttrs(ctx, db, nodes); err != nil {
		return PackStats{}, fmt.Errorf("insert attrs: %w", err)
	}
	if err := copyChunks(ctx, db, r, nodes, workers); err != nil {
		return PackStats{}, fmt.Errorf("copy chunks: %w", err)
	}
	if err := insertPackMeta(db, rootName, stats); err != nil {
		return PackStats{}, fmt.Errorf("insert meta: %w", err)
	}

	if err := db.Close(); err != nil {
		return PackStats{}, fmt.Errorf("close pack: %w", err)
	}
	dbClosed = true

	info, err := os.Stat(outPath)
	if err != nil {
		return PackStats{}, err
	}
	stats.Bytes = info.Size()
	stats.Elapsed = time.Since(start)
	debug.LogTiming("pack export", stats.Elapsed)
	return stats, nil
}

// walkStore lists every node reachable from the root, parents before
// children, children in store order.
func walkStore(ctx context.Context, r store.Reader, rootName string) ([]*packNode, error) {
	root := &packNode{path: "/", name: rootName, kind: store.KindGroup}
	nodes := []*packNode{root}
	queue := []*packNode{root}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cur := queue[0]
		queue = queue[1:]
		children, err := r.ListChildren(cur.path)
		if err != nil {
			return nil, err
		}
		for _, e := range children {
			child := &packNode{
				path:   path.Join(cur.path, e.Name),
				parent: cur.path,
				name:   e.Name,
				kind:   e.Kind,
			}
			nodes = append(nodes, child)
			if child.kind == store.KindGroup {
				queue = append(queue, child)
			}
		}
	}
	return nodes, nil
}

// resolveNodes fills each node's shape, dtype, element count, and
// attribute doc. Backends without a structural view fall back to the
// flattened facts every Reader can serve.
func resolveNodes(ctx context.Context, r store.Reader, nodes []*packNode) error {
	det, _ := store.AsDetailer(r)
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if det == nil {
			if n.kind != store.KindDataset {
				continue
			}
			count, err := r.Len(n.path)
			if err != nil {
				return fmt.Errorf("length of %s: %w", n.path, err)
			}
			raw, _ := json.Marshal([]int{count})
			n.shape, n.dtype, n.nelems = string(raw), "<f8", count
			continue
		}
		d, err := det.Detail(n.path)
		if err != nil {
			return fmt.Errorf("describe %s: %w", n.path, err)
		}
		if len(d.Attrs) > 0 {
			doc, err := json.Marshal(d.Attrs)
			if err != nil {
				return fmt.Errorf("encode attributes of %s: %w", n.path, err)
			}
			n.attrsDoc = string(doc)
		}
		if n.kind != store.KindDataset {
			continue
		}
		shape := d.Shape
		if shape == nil {
			shape = []int{d.Elems}
		}
		raw, _ := json.Marshal(shape)
		n.shape, n.dtype, n.nelems = string(raw), d.Dtype, d.Elems
	}
	return nil
}

func insertNodes(ctx context.Context, db *sql.DB, nodes []*packNode, stats *PackStats) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO nodes (path, parent, name, kind, shape, dtype, nelems)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.kind == store.KindDataset {
			stats.Datasets++
			stats.Elements += int64(n.nelems)
		} else {
			stats.Groups++
		}
		if _, err := stmt.Exec(n.path, n.parent, n.name, string(n.kind), n.shape, n.dtype, n.nelems); err != nil {
			return fmt.Errorf("node %s: %w", n.path, err)
		}
	}
	return tx.Commit()
}

func insertAttrs(ctx context.Context, db *sql.DB, nodes []*packNode) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO attrs (path, doc) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n.attrsDoc == "" {
			continue
		}
		if _, err := stmt.Exec(n.path, n.attrsDoc); err != nil {
			return fmt.Errorf("attrs of %s: %w", n.path, err)
		}
	}
	return tx.Commit()
}

// copyChunks streams every dataset's elements into chunk rows, one
// dataset per worker.
func copyChunks(ctx context.Context, db *sql.DB, r store.Reader, nodes []*packNode, workers int) error {
	stmt, err := db.Prepare(`INSERT INTO chunks (path, seq, data) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, n := range nodes {
		if n.kind != store.KindDataset {
			continue
		}
		n := n
		g.Go(func() error {
			return copyDataset(ctx, stmt, r, n.path, n.nelems)
		})
	}
	return g.Wait()
}

func copyDataset(ctx context.Context, stmt *sql.Stmt, r store.Reader, nodePath string, nelems int) error {
	for seq := 0; seq*store.PackChunkElems < nelems; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lo := seq * store.PackChunkElems
		hi := lo + store.PackChunkElems
		if hi > nelems {
			hi = nelems
		}
		vals, err := r.Floats(nodePath, lo, hi)
		if err != nil {
			return fmt.Errorf("read %s [%d:%d]: %w", nodePath, lo, hi, err)
		}
		if len(vals) != hi-lo {
			return fmt.Errorf("read %s [%d:%d]: got %d elements", nodePath, lo, hi, len(vals))
		}
		buf := make([]byte, len(vals)*8)
		for i, v := range vals {
			binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
		}
		if _, err := stmt.ExecContext(ctx, nodePath, seq, buf); err != nil {
			return fmt.Errorf("chunk %d of %s: %w", seq, nodePath, err)
		}
	}
	return nil
}

func insertPackMeta(db *sql.DB, rootName string, stats PackStats) error {
	meta := map[string]string{
		"format_version": fmt.Sprint(store.PackFormatVersion),
		"generated_at":   time.Now().UTC().Format(time.RFC3339),
		"generator":      "canopy " + version.Version,
		"root_name":      rootName,
		"groups":         fmt.Sprint(stats.Groups),
		"datasets":       fmt.Sprint(stats.Datasets),
		"elements":       fmt.Sprint(stats.Elements),
	}
	for key, value := range meta {
		if _, err := db.Exec(`INSERT OR REPLACE INTO pack_meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}
