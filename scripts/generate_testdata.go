// +build ignore

// generate_testdata.go writes sample stores for manual testing and demos.
// Usage: go run scripts/generate_testdata.go
//
// Creates:
//   tests/testdata/sample.zarr/   (directory store, the shared fixture)
//   tests/testdata/sample.zip     (the same hierarchy zipped)
//   tests/testdata/wide.zarr/     (a flat group with many datasets)
package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/canopy/pkg/testutil"
)

func main() {
	outputDir := "tests/testdata"
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	sampleDir := filepath.Join(outputDir, "sample.zarr")
	if err := os.RemoveAll(sampleDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to clear %s: %v\n", sampleDir, err)
		os.Exit(1)
	}
	if err := testutil.WriteZarrStore(sampleDir, testutil.SampleStore()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", sampleDir, err)
		os.Exit(1)
	}
	fmt.Printf("Written %s\n", sampleDir)

	zipPath := filepath.Join(outputDir, "sample.zip")
	if err := testutil.ZipDir(zipPath, sampleDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", zipPath, err)
		os.Exit(1)
	}
	fmt.Printf("Written %s\n", zipPath)

	wideDir := filepath.Join(outputDir, "wide.zarr")
	if err := os.RemoveAll(wideDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to clear %s: %v\n", wideDir, err)
		os.Exit(1)
	}
	if err := testutil.WriteZarrStore(wideDir, wideStore(64, 512)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", wideDir, err)
		os.Exit(1)
	}
	fmt.Printf("Written %s\n", wideDir)

	fmt.Println("\nDone! Sample stores created in", outputDir)
}

// wideStore builds a single flat group holding n datasets of length elements
// each, useful for scrolling and histogram stress tests.
func wideStore(n, length int) testutil.ZarrStore {
	s := testutil.ZarrStore{
		GroupAttrs: map[string]map[string]any{
			"/": {"title": "wide synthetic store"},
		},
	}
	for i := 0; i < n; i++ {
		vals := make([]float64, length)
		phase := float64(i) / float64(n)
		for j := range vals {
			vals[j] = math.Sin(2*math.Pi*(phase+float64(j)/float64(length))) * float64(i+1)
		}
		s.Arrays = append(s.Arrays, testutil.ZarrArray{
			Path:       fmt.Sprintf("/series/ch%03d", i),
			Dtype:      "<f8",
			Shape:      []int{length},
			Chunks:     []int{128},
			Compressor: "zlib",
			Values:     vals,
			Attrs:      map[string]any{"channel": i},
		})
	}
	return s
}
