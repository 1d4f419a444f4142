package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	_ "modernc.org/sqlite"
)

// A canopy pack is a single-file SQLite snapshot of a store, written by the
// pack exporter. Element data is normalized to little-endian float64 rows of
// PackChunkElems elements; the original dtype string is kept for display and
// formatting.
const (
	// PackChunkElems is the element count per chunks row.
	PackChunkElems = 4096
	// PackFormatVersion is bumped on any schema change.
	PackFormatVersion = 1
)

// packSchemaStatements creates the pack tables, one statement per Exec.
var packSchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pack_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS nodes (
		path   TEXT PRIMARY KEY,
		parent TEXT,
		name   TEXT NOT NULL,
		kind   TEXT NOT NULL,
		shape  TEXT,
		dtype  TEXT,
		nelems INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent)`,
	`CREATE TABLE IF NOT EXISTS attrs (
		path TEXT PRIMARY KEY,
		doc  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		path TEXT NOT NULL,
		seq  INTEGER NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (path, seq)
	)`,
}

// CreatePackSchema creates the pack tables on an open database. Shared with
// the pack exporter.
func CreatePackSchema(db *sql.DB) error {
	for _, stmt := range packSchemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create pack schema: %w", err)
		}
	}
	return nil
}

// packStore reads a canopy pack.
type packStore struct {
	db *sql.DB

	mu     sync.Mutex
	dtypes map[string]dtype // display dtype per dataset path
}

var packElemType = dtype{kind: 'f', size: 8}

func openPack(path string) (*packStore, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open pack: %w", err)
	}
	p := &packStore{db: db, dtypes: make(map[string]dtype)}
	var version string
	err = db.QueryRow(`SELECT value FROM pack_meta WHERE key = 'format_version'`).Scan(&version)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("not a canopy pack: %w", err)
	}
	if version != fmt.Sprint(PackFormatVersion) {
		db.Close()
		return nil, fmt.Errorf("pack format %s not supported (want %d)", version, PackFormatVersion)
	}
	return p, nil
}

func (p *packStore) Close() error { return p.db.Close() }

func (p *packStore) ListChildren(nodePath string) ([]Entry, error) {
	rows, err := p.db.Query(`
		SELECT name, kind,
		       EXISTS(SELECT 1 FROM nodes c WHERE c.parent = n.path)
		FROM nodes n
		WHERE n.parent = ?
		ORDER BY n.name`, nodePath)
	if err != nil {
		return nil, readErr("children", nodePath, err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var kind string
		var hasKids bool
		if err := rows.Scan(&e.Name, &kind, &hasKids); err != nil {
			return nil, readErr("children", nodePath, err)
		}
		e.Kind = Kind(kind)
		e.HasChildren = e.Kind == KindGroup && hasKids
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, readErr("children", nodePath, err)
	}
	return out, nil
}

// node fetches one nodes row. shape stays in its JSON text form until a
// caller needs it decoded.
func (p *packStore) node(nodePath string) (kind Kind, shapeJSON, dtypeStr string, nelems int, err error) {
	var k string
	var shape, dt sql.NullString
	err = p.db.QueryRow(`SELECT kind, shape, dtype, nelems FROM nodes WHERE path = ?`, nodePath).
		Scan(&k, &shape, &dt, &nelems)
	if err == sql.ErrNoRows {
		return "", "", "", 0, ErrNotFound
	}
	if err != nil {
		return "", "", "", 0, err
	}
	return Kind(k), shape.String, dt.String, nelems, nil
}

func (p *packStore) Len(nodePath string) (int, error) {
	kind, _, _, nelems, err := p.node(nodePath)
	if err != nil {
		return 0, readErr("length", nodePath, err)
	}
	if kind != KindDataset {
		return 0, readErr("length", nodePath, ErrNotDataset)
	}
	return nelems, nil
}

// displayDtype parses and caches the recorded dtype string, falling back to
// float64 formatting when the pack predates dtype recording.
func (p *packStore) displayDtype(nodePath, dtypeStr string) dtype {
	p.mu.Lock()
	defer p.mu.Unlock()
	if dt, ok := p.dtypes[nodePath]; ok {
		return dt
	}
	dt, err := parseDtype(dtypeStr)
	if err != nil {
		dt = packElemType
	}
	p.dtypes[nodePath] = dt
	return dt
}

func (p *packStore) Floats(nodePath string, start, end int) ([]float64, error) {
	kind, _, _, nelems, err := p.node(nodePath)
	if err != nil {
		return nil, readErr("values", nodePath, err)
	}
	if kind != KindDataset {
		return nil, readErr("values", nodePath, ErrNotDataset)
	}
	if start < 0 {
		start = 0
	}
	if end > nelems {
		end = nelems
	}
	if end <= start {
		return nil, nil
	}
	out := make([]float64, 0, end-start)
	for seq := start / PackChunkElems; seq <= (end-1)/PackChunkElems; seq++ {
		lo := seq * PackChunkElems
		hi := lo + PackChunkElems
		if lo < start {
			lo = start
		}
		if hi > end {
			hi = end
		}
		// substr is 1-based; slice only the bytes this window needs.
		byteOff := (lo-seq*PackChunkElems)*packElemType.size + 1
		byteLen := (hi - lo) * packElemType.size
		var data []byte
		err := p.db.QueryRow(`SELECT substr(data, ?, ?) FROM chunks WHERE path = ? AND seq = ?`,
			byteOff, byteLen, nodePath, seq).Scan(&data)
		if err != nil {
			return nil, readErr("values", nodePath, err)
		}
		if len(data) != byteLen {
			return nil, readErr("values", nodePath,
				fmt.Errorf("chunk %d: got %d bytes, want %d", seq, len(data), byteLen))
		}
		for i := 0; i < hi-lo; i++ {
			v, err := packElemType.elementAt(data, i)
			if err != nil {
				return nil, readErr("values", nodePath, err)
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func (p *packStore) Values(nodePath string, start, end int) (string, int, error) {
	kind, _, dtypeStr, nelems, err := p.node(nodePath)
	if err != nil {
		return "", 0, readErr("values", nodePath, err)
	}
	if kind != KindDataset {
		return "", 0, readErr("values", nodePath, ErrNotDataset)
	}
	lo, hi, note := clampValueRange(start, end, nelems)
	vals, err := p.Floats(nodePath, lo, hi)
	if err != nil {
		return "", 0, err
	}
	return formatValues(p.displayDtype(nodePath, dtypeStr), vals, lo, note), nelems, nil
}

func (p *packStore) Metadata(nodePath string) (string, error) {
	kind, shapeJSON, dtypeStr, nelems, err := p.node(nodePath)
	if err != nil {
		return "", readErr("metadata", nodePath, err)
	}
	if kind == KindDataset {
		shape := "()"
		var dims []int
		if shapeJSON != "" {
			if err := json.Unmarshal([]byte(shapeJSON), &dims); err == nil {
				shape = shapeString(dims)
			}
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Dataset:     %s\n", nodePath)
		fmt.Fprintf(&b, "Shape:       %s\n", shape)
		fmt.Fprintf(&b, "Dtype:       %s\n", dtypeStr)
		fmt.Fprintf(&b, "Storage:     pack (%d elements per row)\n", PackChunkElems)
		fmt.Fprintf(&b, "Elements:    %d", nelems)
		return b.String(), nil
	}
	var children int
	if err := p.db.QueryRow(`SELECT COUNT(*) FROM nodes WHERE parent = ?`, nodePath).Scan(&children); err != nil {
		return "", readErr("metadata", nodePath, err)
	}
	attrs := 0
	if doc, err := p.attrMap(nodePath); err == nil {
		attrs = len(doc)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Group:       %s\n", nodePath)
	fmt.Fprintf(&b, "Children:    %d\n", children)
	fmt.Fprintf(&b, "Attributes:  %d", attrs)
	return b.String(), nil
}

// attrMap decodes the attrs doc for a node; a missing row means no
// attributes.
func (p *packStore) attrMap(nodePath string) (map[string]json.RawMessage, error) {
	var docText string
	err := p.db.QueryRow(`SELECT doc FROM attrs WHERE path = ?`, nodePath).Scan(&docText)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal([]byte(docText), &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *packStore) Attributes(nodePath string) (string, error) {
	doc, err := p.attrMap(nodePath)
	if err != nil {
		return "", readErr("attributes", nodePath, err)
	}
	return formatAttrDoc(doc), nil
}
