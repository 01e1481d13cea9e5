package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"dicomprep/internal/dicomtest"
	"dicomprep/pkg/cache"
)

// writeSeries writes numSlices 4x4 CT slices with 2mm through-plane
// spacing into root/<id> and returns the series directory.
func writeSeries(t *testing.T, root, id string, numSlices int) string {
	t.Helper()
	dir := filepath.Join(root, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create series dir: %v", err)
	}
	for i := 0; i < numSlices; i++ {
		spec := dicomtest.SliceSpec{
			Rows: 4, Cols: 4,
			Fill:           100 + i,
			ImagePosition:  []float64{0, 0, float64(i) * 2},
			SliceThickness: dicomtest.Float64(2.0),
			PixelSpacing:   []float64{1, 1},
			Modality:       "CT",
			SeriesUID:      id,
			PatientID:      "patient-1",
			SOPInstanceUID: fmt.Sprintf("%s.%d", id, i),
		}
		path := filepath.Join(dir, fmt.Sprintf("slice_%03d.dcm", i))
		if err := dicomtest.WriteSlice(path, spec); err != nil {
			t.Fatalf("Failed to write fixture slice: %v", err)
		}
	}
	return dir
}

func TestProcessSeries(t *testing.T) {
	root := t.TempDir()
	dir := writeSeries(t, root, "1.2.3.100", 4)

	store, err := cache.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	p := New(store)

	res, err := p.ProcessSeries(dir)
	if err != nil {
		t.Fatalf("ProcessSeries failed: %v", err)
	}
	if res.FromCache {
		t.Error("First run should not be served from cache")
	}
	if res.Metadata == nil {
		t.Fatal("Metadata missing on a freshly processed series")
	}
	if res.Metadata.Modality != "CT" {
		t.Errorf("Modality = %q, want CT", res.Metadata.Modality)
	}

	// 4 slices at 2mm resampled to 1mm isotropic doubles the depth
	if res.Volume.Depth != 8 || res.Volume.Height != 4 || res.Volume.Width != 4 {
		t.Errorf("Volume shape = (%d, %d, %d), want (8, 4, 4)",
			res.Volume.Depth, res.Volume.Height, res.Volume.Width)
	}
	if res.Volume.Spacing != [3]float64{1, 1, 1} {
		t.Errorf("Volume spacing = %v, want [1 1 1]", res.Volume.Spacing)
	}
	for i, val := range res.Volume.Data {
		if val < 0 || val > 1 {
			t.Fatalf("Voxel %d = %v outside [0, 1] after normalization", i, val)
		}
	}
}

func TestProcessSeriesCacheHit(t *testing.T) {
	root := t.TempDir()
	dir := writeSeries(t, root, "1.2.3.200", 3)

	store, err := cache.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	p := New(store)

	first, err := p.ProcessSeries(dir)
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	second, err := p.ProcessSeries(dir)
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if !second.FromCache {
		t.Error("Second run should be served from cache")
	}
	if second.Metadata != nil {
		t.Error("Cached result should not carry metadata")
	}
	if second.Volume.Depth != first.Volume.Depth ||
		second.Volume.Height != first.Volume.Height ||
		second.Volume.Width != first.Volume.Width {
		t.Errorf("Cached shape (%d, %d, %d) differs from processed shape (%d, %d, %d)",
			second.Volume.Depth, second.Volume.Height, second.Volume.Width,
			first.Volume.Depth, first.Volume.Height, first.Volume.Width)
	}
	for i := range first.Volume.Data {
		if first.Volume.Data[i] != second.Volume.Data[i] {
			t.Fatalf("Cached voxel %d differs: %v != %v",
				i, second.Volume.Data[i], first.Volume.Data[i])
		}
	}
}

func TestProcessSeriesWithoutCache(t *testing.T) {
	root := t.TempDir()
	dir := writeSeries(t, root, "1.2.3.300", 2)

	p := New(nil)
	res, err := p.ProcessSeries(dir)
	if err != nil {
		t.Fatalf("ProcessSeries failed: %v", err)
	}
	if res.FromCache {
		t.Error("Cacheless pipeline reported a cache hit")
	}
}

func TestSeriesID(t *testing.T) {
	if got := SeriesID("/data/series/1.2.3.4"); got != "1.2.3.4" {
		t.Errorf("SeriesID = %q, want 1.2.3.4", got)
	}
	if got := SeriesID("/data/series/1.2.3.4/"); got != "1.2.3.4" {
		t.Errorf("SeriesID with trailing slash = %q, want 1.2.3.4", got)
	}
}

func TestPrecacheAllFailureIsolation(t *testing.T) {
	root := t.TempDir()
	writeSeries(t, root, "1.2.3.400", 3)
	writeSeries(t, root, "1.2.3.401", 3)

	// one series whose single file is not a DICOM file at all
	badDir := filepath.Join(root, "1.2.3.402")
	if err := os.MkdirAll(badDir, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(badDir, "broken.dcm"), []byte("garbage"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	store, err := cache.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	p := New(store)

	var mu sync.Mutex
	calls := 0
	report, err := p.PrecacheAll(root, nil, 2, func(completed, total int, seriesDir string) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("PrecacheAll failed: %v", err)
	}
	if report.Processed != 2 {
		t.Errorf("Processed = %d, want 2", report.Processed)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("Failures = %d, want 1", len(report.Failures))
	}
	if report.Failures[0].SeriesDir != badDir {
		t.Errorf("Failed dir = %q, want %q", report.Failures[0].SeriesDir, badDir)
	}
	if calls != 3 {
		t.Errorf("Progress callback ran %d times, want 3", calls)
	}
}

func TestPrecacheAllIDFilter(t *testing.T) {
	root := t.TempDir()
	writeSeries(t, root, "1.2.3.500", 2)
	writeSeries(t, root, "1.2.3.501", 2)
	writeSeries(t, root, "1.2.3.502", 2)

	p := New(nil)
	report, err := p.PrecacheAll(root, []string{"1.2.3.500", "1.2.3.502", "not-present"}, 1, nil)
	if err != nil {
		t.Fatalf("PrecacheAll failed: %v", err)
	}
	if report.Processed != 2 {
		t.Errorf("Processed = %d, want 2 (filtered)", report.Processed)
	}
	if len(report.Failures) != 0 {
		t.Errorf("Failures = %d, want 0", len(report.Failures))
	}
}

func TestListSeriesDirs(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"b-series", "a-series", "c-series"} {
		if err := os.MkdirAll(filepath.Join(root, name), 0755); err != nil {
			t.Fatalf("Failed to create dir: %v", err)
		}
	}
	// stray file at the root must be ignored
	if err := os.WriteFile(filepath.Join(root, "manifest.csv"), []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	dirs, err := ListSeriesDirs(root)
	if err != nil {
		t.Fatalf("ListSeriesDirs failed: %v", err)
	}
	if len(dirs) != 3 {
		t.Fatalf("Got %d dirs, want 3", len(dirs))
	}
	want := []string{"a-series", "b-series", "c-series"}
	for i, dir := range dirs {
		if filepath.Base(dir) != want[i] {
			t.Errorf("dirs[%d] = %q, want basename %q", i, dir, want[i])
		}
	}
}

func TestSeriesIDsFromCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.csv")
	content := "PatientID,SeriesInstanceUID,Label\n" +
		"p1,1.2.3.600,0\n" +
		"p2,1.2.3.601,1\n" +
		"p3,1.2.3.600,0\n" +
		"p4,,1\n" +
		"p5,1.2.3.602,0\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write CSV: %v", err)
	}

	ids, err := SeriesIDsFromCSV(path)
	if err != nil {
		t.Fatalf("SeriesIDsFromCSV failed: %v", err)
	}
	want := []string{"1.2.3.600", "1.2.3.601", "1.2.3.602"}
	if len(ids) != len(want) {
		t.Fatalf("Got %d IDs %v, want %v", len(ids), ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestSeriesIDsFromCSVMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(path, []byte("PatientID,Label\np1,0\n"), 0644); err != nil {
		t.Fatalf("Failed to write CSV: %v", err)
	}

	if _, err := SeriesIDsFromCSV(path); err == nil {
		t.Fatal("Expected error for CSV without SeriesInstanceUID column")
	}
}
