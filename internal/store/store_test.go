package store

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestClampValueRange(t *testing.T) {
	cases := []struct {
		name       string
		start, end int
		n          int
		wantLo     int
		wantHi     int
		wantNote   bool
	}{
		{"default window small dataset", NoBound, NoBound, 50, 0, 50, false},
		{"default window large dataset", NoBound, NoBound, 5000, 0, 100, true},
		{"explicit in-cap range", 2, 5, 5000, 2, 5, false},
		{"explicit range past end", 10, 99999, 20, 10, 20, false},
		{"explicit range over cap", 0, 5000, 50000, 0, MaxValueElements, true},
		{"negative start", -3, 4, 10, 0, 4, false},
		{"inverted range", 8, 3, 10, 8, 8, false},
		{"start past end", 30, 40, 10, 10, 10, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lo, hi, note := clampValueRange(tc.start, tc.end, tc.n)
			if lo != tc.wantLo || hi != tc.wantHi {
				t.Fatalf("clamp = [%d, %d), want [%d, %d)", lo, hi, tc.wantLo, tc.wantHi)
			}
			if (note != "") != tc.wantNote {
				t.Fatalf("note = %q, wantNote=%v", note, tc.wantNote)
			}
			// The exported form reports the same window the backends
			// render, so pane titles stay truthful.
			if elo, ehi := ClampValueRange(tc.start, tc.end, tc.n); elo != lo || ehi != hi {
				t.Fatalf("ClampValueRange = [%d, %d), want [%d, %d)", elo, ehi, lo, hi)
			}
		})
	}
}

func TestDetectSource(t *testing.T) {
	dir := t.TempDir()

	zarrDir := filepath.Join(dir, "store.zarr")
	if err := os.MkdirAll(zarrDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(zarrDir, ".zgroup"), []byte(`{"zarr_format":2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if typ, err := DetectSource(zarrDir); err != nil || typ != SourceTypeZarrDir {
		t.Fatalf("zarr dir: %q, %v", typ, err)
	}

	bare := filepath.Join(dir, "plain")
	if err := os.MkdirAll(bare, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := DetectSource(bare); err == nil {
		t.Fatal("bare directory should not detect as a store")
	}

	zipPath := filepath.Join(dir, "store.zip")
	if err := os.WriteFile(zipPath, []byte("PK"), 0o644); err != nil {
		t.Fatal(err)
	}
	if typ, err := DetectSource(zipPath); err != nil || typ != SourceTypeZarrZip {
		t.Fatalf("zip: %q, %v", typ, err)
	}

	packPath := filepath.Join(dir, "data.pack")
	if err := os.WriteFile(packPath, append([]byte(nil), sqliteMagic...), 0o644); err != nil {
		t.Fatal(err)
	}
	if typ, err := DetectSource(packPath); err != nil || typ != SourceTypePack {
		t.Fatalf("pack: %q, %v", typ, err)
	}

	junk := filepath.Join(dir, "junk.bin")
	if err := os.WriteFile(junk, []byte("not a store"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := DetectSource(junk); err == nil {
		t.Fatal("junk file should not detect as a store")
	}

	if _, err := DetectSource(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("missing path should fail detection")
	}
}

// blockingReader parks Metadata calls until released so the test can prove
// two concurrent requests share one underlying call.
type blockingReader struct {
	Reader
	calls   atomic.Int32
	release chan struct{}
}

func (b *blockingReader) Metadata(path string) (string, error) {
	b.calls.Add(1)
	<-b.release
	return "meta of " + path, nil
}

func TestDedupSharesInFlightCalls(t *testing.T) {
	inner := &blockingReader{release: make(chan struct{})}
	r := Dedup(inner)

	var wg sync.WaitGroup
	results := make([]string, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = r.Metadata("/a")
	}()
	deadline := time.Now().Add(2 * time.Second)
	for inner.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first call never reached the reader")
		}
		time.Sleep(time.Millisecond)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = r.Metadata("/a")
	}()
	time.Sleep(50 * time.Millisecond)
	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("second request hit the reader before release (calls=%d)", got)
	}
	close(inner.release)
	wg.Wait()

	if got := inner.calls.Load(); got != 1 {
		t.Fatalf("underlying calls = %d, want 1", got)
	}
	if results[0] != "meta of /a" || results[1] != "meta of /a" {
		t.Fatalf("results = %q", results)
	}
}
