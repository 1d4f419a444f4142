package store

import (
	"database/sql"
	"encoding/binary"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

// writeTestPack builds a pack with one group and two datasets, the second
// spanning two chunk rows.
func writeTestPack(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.pack")
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("open rw: %v", err)
	}
	defer db.Close()
	if err := CreatePackSchema(db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO pack_meta (key, value) VALUES ('format_version', ?)`, PackFormatVersion); err != nil {
		t.Fatalf("meta: %v", err)
	}
	rows := []struct {
		path, parent, name, kind, shape, dtype string
		nelems                                 int
	}{
		{"/", "", "fixture", "group", "", "", 0},
		{"/grp", "/", "grp", "group", "", "", 0},
		{"/grp/small", "/grp", "small", "dataset", "[3]", "<i4", 3},
		{"/grp/big", "/grp", "big", "dataset", "[5000]", "<f8", 5000},
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO nodes (path, parent, name, kind, shape, dtype, nelems) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.path, r.parent, r.name, r.kind, r.shape, r.dtype, r.nelems); err != nil {
			t.Fatalf("insert node %s: %v", r.path, err)
		}
	}
	if _, err := db.Exec(`INSERT INTO attrs (path, doc) VALUES ('/grp', '{"source":"unit test","level":3}')`); err != nil {
		t.Fatalf("insert attrs: %v", err)
	}
	insertChunks := func(path string, vals []float64) {
		for seq := 0; seq*PackChunkElems < len(vals); seq++ {
			lo := seq * PackChunkElems
			hi := lo + PackChunkElems
			if hi > len(vals) {
				hi = len(vals)
			}
			buf := make([]byte, (hi-lo)*8)
			for i, v := range vals[lo:hi] {
				binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
			}
			if _, err := db.Exec(`INSERT INTO chunks (path, seq, data) VALUES (?, ?, ?)`, path, seq, buf); err != nil {
				t.Fatalf("insert chunk %s/%d: %v", path, seq, err)
			}
		}
	}
	insertChunks("/grp/small", []float64{7, 8, 9})
	big := make([]float64, 5000)
	for i := range big {
		big[i] = float64(i) * 3
	}
	insertChunks("/grp/big", big)
	return path
}

func TestPackOpenAndList(t *testing.T) {
	path := writeTestPack(t)
	r, typ, err := Open(path)
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	defer r.Close()
	if typ != SourceTypePack {
		t.Fatalf("detected %q, want %q", typ, SourceTypePack)
	}
	kids, err := r.ListChildren("/grp")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(kids) != 2 {
		t.Fatalf("children = %+v", kids)
	}
	if kids[0].Name != "big" || kids[0].Kind != KindDataset || kids[0].HasChildren {
		t.Fatalf("big entry = %+v", kids[0])
	}
	root, err := r.ListChildren("/")
	if err != nil || len(root) != 1 || !root[0].HasChildren {
		t.Fatalf("root children = %+v, %v", root, err)
	}
}

func TestPackValuesAcrossChunkRows(t *testing.T) {
	path := writeTestPack(t)
	r, _, err := Open(path)
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	defer r.Close()
	// Straddle the PackChunkElems boundary.
	lo, hi := PackChunkElems-2, PackChunkElems+2
	got, err := r.Floats("/grp/big", lo, hi)
	if err != nil {
		t.Fatalf("floats: %v", err)
	}
	for i, v := range got {
		if want := float64(lo+i) * 3; v != want {
			t.Fatalf("element %d = %v, want %v", lo+i, v, want)
		}
	}
}

func TestPackValuesKeepIntegerFormatting(t *testing.T) {
	path := writeTestPack(t)
	r, _, err := Open(path)
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	defer r.Close()
	text, n, err := r.Values("/grp/small", NoBound, NoBound)
	if err != nil {
		t.Fatalf("values: %v", err)
	}
	if n != 3 {
		t.Fatalf("total = %d, want 3", n)
	}
	if !strings.Contains(text, "7 8 9") {
		t.Fatalf("values text = %q", text)
	}
}

func TestPackMetadataAndAttributes(t *testing.T) {
	path := writeTestPack(t)
	r, _, err := Open(path)
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	defer r.Close()

	meta, err := r.Metadata("/grp/big")
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	for _, want := range []string{"Dataset:     /grp/big", "Shape:       (5000)", "Dtype:       <f8", "Elements:    5000"} {
		if !strings.Contains(meta, want) {
			t.Errorf("metadata missing %q:\n%s", want, meta)
		}
	}

	meta, err = r.Metadata("/grp")
	if err != nil {
		t.Fatalf("group metadata: %v", err)
	}
	for _, want := range []string{"Group:       /grp", "Children:    2", "Attributes:  2"} {
		if !strings.Contains(meta, want) {
			t.Errorf("group metadata missing %q:\n%s", want, meta)
		}
	}

	attrs, err := r.Attributes("/grp")
	if err != nil {
		t.Fatalf("attributes: %v", err)
	}
	if !strings.Contains(attrs, "level: 3") || !strings.Contains(attrs, `source: "unit test"`) {
		t.Fatalf("attrs = %q", attrs)
	}
}

func TestPackRejectsForeignSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.db")
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`CREATE TABLE things (id INTEGER)`); err != nil {
		t.Fatal(err)
	}
	db.Close()
	if _, _, err := Open(path); err == nil || !strings.Contains(err.Error(), "canopy pack") {
		t.Fatalf("err = %v, want pack rejection", err)
	}
}
