package export_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vanderheijden86/canopy/internal/store"
	"github.com/vanderheijden86/canopy/pkg/export"
	"github.com/vanderheijden86/canopy/pkg/testutil"
)

func openSource(t *testing.T) store.Reader {
	t.Helper()
	dir := t.TempDir()
	if err := testutil.WriteZarrStore(dir, testutil.SampleStore()); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	r, _, err := store.Open(dir)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func writeSamplePack(t *testing.T, src store.Reader) (string, export.PackStats) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "sample.pack")
	stats, err := export.WritePack(context.Background(), src, "sample", out, export.PackOptions{})
	if err != nil {
		t.Fatalf("write pack: %v", err)
	}
	return out, stats
}

func TestWritePackStats(t *testing.T) {
	src := openSource(t)
	out, stats := writeSamplePack(t, src)

	// The sample store has groups /, /obs, /obs/qc, /summary and five
	// datasets totalling 365+365+16+24+48 elements.
	if stats.Groups != 4 || stats.Datasets != 5 {
		t.Errorf("stats = %+v, want 4 groups and 5 datasets", stats)
	}
	if want := int64(818); stats.Elements != want {
		t.Errorf("elements = %d, want %d", stats.Elements, want)
	}
	info, err := os.Stat(out)
	if err != nil {
		t.Fatalf("stat pack: %v", err)
	}
	if stats.Bytes != info.Size() || stats.Bytes == 0 {
		t.Errorf("bytes = %d, file is %d", stats.Bytes, info.Size())
	}
}

func TestWritePackRoundTripTree(t *testing.T) {
	src := openSource(t)
	out, _ := writeSamplePack(t, src)

	pack, typ, err := store.Open(out)
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	defer pack.Close()
	if typ != store.SourceTypePack {
		t.Fatalf("detected %q, want %q", typ, store.SourceTypePack)
	}

	for _, dir := range []string{"/", "/obs", "/obs/qc", "/summary"} {
		want, err := src.ListChildren(dir)
		if err != nil {
			t.Fatalf("source children of %s: %v", dir, err)
		}
		got, err := pack.ListChildren(dir)
		if err != nil {
			t.Fatalf("pack children of %s: %v", dir, err)
		}
		if len(got) != len(want) {
			t.Fatalf("children of %s = %+v, want %+v", dir, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("child %d of %s = %+v, want %+v", i, dir, got[i], want[i])
			}
		}
	}
}

func TestWritePackRoundTripValues(t *testing.T) {
	src := openSource(t)
	out, _ := writeSamplePack(t, src)
	pack, _, err := store.Open(out)
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	defer pack.Close()

	ranges := []struct {
		path   string
		lo, hi int
	}{
		{"/obs/temperature", 100, 130},
		{"/obs/wind_speed", 0, 10},
		{"/summary/grid", 40, 48},
	}
	for _, rng := range ranges {
		want, err := src.Floats(rng.path, rng.lo, rng.hi)
		if err != nil {
			t.Fatalf("source floats %s: %v", rng.path, err)
		}
		got, err := pack.Floats(rng.path, rng.lo, rng.hi)
		if err != nil {
			t.Fatalf("pack floats %s: %v", rng.path, err)
		}
		if len(got) != len(want) {
			t.Fatalf("%s: %d elements, want %d", rng.path, len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s element %d = %v, want %v", rng.path, rng.lo+i, got[i], want[i])
			}
		}
	}
}

func TestWritePackKeepsFormatting(t *testing.T) {
	src := openSource(t)
	out, _ := writeSamplePack(t, src)
	pack, _, err := store.Open(out)
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	defer pack.Close()

	// Integer and boolean dtypes ride along, so the formatted value text
	// is identical on both sides.
	for _, p := range []string{"/summary/hourly_counts", "/obs/qc/flags"} {
		wantText, wantN, err := src.Values(p, 0, 10)
		if err != nil {
			t.Fatalf("source values %s: %v", p, err)
		}
		gotText, gotN, err := pack.Values(p, 0, 10)
		if err != nil {
			t.Fatalf("pack values %s: %v", p, err)
		}
		if gotText != wantText || gotN != wantN {
			t.Errorf("%s values = (%q, %d), want (%q, %d)", p, gotText, gotN, wantText, wantN)
		}
	}
}

func TestWritePackKeepsAttributesAndShape(t *testing.T) {
	src := openSource(t)
	out, _ := writeSamplePack(t, src)
	pack, _, err := store.Open(out)
	if err != nil {
		t.Fatalf("open pack: %v", err)
	}
	defer pack.Close()

	for _, p := range []string{"/", "/obs", "/obs/temperature"} {
		want, err := src.Attributes(p)
		if err != nil {
			t.Fatalf("source attrs %s: %v", p, err)
		}
		got, err := pack.Attributes(p)
		if err != nil {
			t.Fatalf("pack attrs %s: %v", p, err)
		}
		if got != want {
			t.Errorf("attrs of %s = %q, want %q", p, got, want)
		}
	}

	meta, err := pack.Metadata("/summary/grid")
	if err != nil {
		t.Fatalf("pack metadata: %v", err)
	}
	if !strings.Contains(meta, "(6, 8)") {
		t.Errorf("metadata lost the original shape:\n%s", meta)
	}
	if !strings.Contains(meta, "<f8") {
		t.Errorf("metadata lost the original dtype:\n%s", meta)
	}
}

func TestWritePackCanceledContext(t *testing.T) {
	src := openSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := filepath.Join(t.TempDir(), "sample.pack")
	_, err := export.WritePack(ctx, src, "sample", out, export.PackOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestWritePackCreatesParentDirs(t *testing.T) {
	src := openSource(t)
	out := filepath.Join(t.TempDir(), "exports", "nested", "sample.pack")
	if _, err := export.WritePack(context.Background(), src, "sample", out, export.PackOptions{}); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("pack missing: %v", err)
	}
}

func TestWritePackOverwritesStaleFile(t *testing.T) {
	src := openSource(t)
	out := filepath.Join(t.TempDir(), "sample.pack")
	if err := os.WriteFile(out, []byte("not a database"), 0o644); err != nil {
		t.Fatalf("seed stale file: %v", err)
	}
	if _, err := export.WritePack(context.Background(), src, "sample", out, export.PackOptions{}); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	pack, _, err := store.Open(out)
	if err != nil {
		t.Fatalf("open rewritten pack: %v", err)
	}
	pack.Close()
}

func TestWritePackSingleWorker(t *testing.T) {
	src := openSource(t)
	out := filepath.Join(t.TempDir(), "sample.pack")
	stats, err := export.WritePack(context.Background(), src, "sample", out, export.PackOptions{Workers: 1})
	if err != nil {
		t.Fatalf("write pack: %v", err)
	}
	if stats.Datasets != 5 {
		t.Fatalf("datasets = %d, want 5", stats.Datasets)
	}
}
