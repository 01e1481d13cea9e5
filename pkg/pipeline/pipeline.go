// Package pipeline wires the preprocessing stages together: assemble a
// series into a raw volume, normalize intensities per modality, resample
// to the target spacing and optionally cache the result.
//
// Each series is processed independently end-to-end, which makes "one
// series" the natural unit of parallelism for batch precaching.
package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"dicomprep/internal/models"
	"dicomprep/pkg/assembly"
	"dicomprep/pkg/cache"
	"dicomprep/pkg/normalize"
	"dicomprep/pkg/resample"
)

// Pipeline holds the preprocessing configuration and collaborators for
// processing series. The zero value is not usable; construct with New.
type Pipeline struct {
	// TargetSpacing is the isotropic output grid in mm (z, y, x)
	TargetSpacing []float64

	// Order is the resampling interpolation order
	Order resample.Order

	// Cache, when non-nil, is consulted before preprocessing and updated
	// after. A nil store disables caching entirely.
	Cache cache.Store
}

// New creates a pipeline with the standard 1mm isotropic target and
// linear interpolation. The store may be nil to disable caching.
func New(store cache.Store) *Pipeline {
	return &Pipeline{
		TargetSpacing: resample.DefaultTargetSpacing(),
		Order:         resample.Linear,
		Cache:         store,
	}
}

// Result is the output of preprocessing one series.
type Result struct {
	Volume *models.Volume

	// Metadata is nil when the volume was served from cache: the cache
	// stores only the array and spacing, not the descriptive attributes.
	Metadata *models.SeriesMetadata

	// FromCache reports whether the volume was read from the cache
	FromCache bool
}

// SeriesID derives the cache key for a series directory: the directory
// basename, which for standard layouts is the SeriesInstanceUID.
func SeriesID(seriesDir string) string {
	return filepath.Base(filepath.Clean(seriesDir))
}

// ProcessSeries runs the full preprocessing chain for one series
// directory. The ordering is fixed: normalization runs on raw intensities
// before resampling, so interpolation cannot shift window or percentile
// statistics.
//
// Failures are all-or-nothing and carry the typed assembly/resample error
// for the orchestrator to report; no partial volume is ever returned.
func (p *Pipeline) ProcessSeries(seriesDir string) (*Result, error) {
	id := SeriesID(seriesDir)

	if p.Cache != nil {
		v, err := p.Cache.Get(id)
		if err == nil {
			return &Result{Volume: v, FromCache: true}, nil
		}
		if err != cache.ErrNotFound {
			return nil, fmt.Errorf("cache lookup for %s failed: %w", id, err)
		}
	}

	raw, meta, err := assembly.LoadSeries(seriesDir)
	if err != nil {
		return nil, err
	}

	normalizer := normalize.ForModality(normalize.ParseModality(meta.Modality))
	normalized := normalizer.Normalize(raw)

	resampled, err := resample.Volume(normalized, p.TargetSpacing, p.Order)
	if err != nil {
		return nil, err
	}

	if p.Cache != nil {
		if err := p.Cache.Put(id, resampled); err != nil {
			return nil, fmt.Errorf("failed to cache %s: %w", id, err)
		}
	}

	return &Result{Volume: resampled, Metadata: meta}, nil
}

// ProgressFunc reports batch progress after each completed series.
type ProgressFunc func(completed, total int, seriesDir string)

// Failure records one failed series inside a batch run.
type Failure struct {
	SeriesDir string
	Err       error
}

// BatchReport summarizes a precache run.
type BatchReport struct {
	Processed int
	Cached    int
	Failures  []Failure
}

// PrecacheAll preprocesses every series under root using the given number
// of worker goroutines. A failed series is recorded and skipped; it never
// aborts the rest of the batch. When ids is non-empty only the matching
// series directories are processed, otherwise every subdirectory of root
// is treated as a series.
func (p *Pipeline) PrecacheAll(root string, ids []string, workers int, progress ProgressFunc) (*BatchReport, error) {
	var dirs []string
	if len(ids) > 0 {
		for _, id := range ids {
			dir := filepath.Join(root, id)
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				dirs = append(dirs, dir)
			}
		}
	} else {
		var err error
		dirs, err = ListSeriesDirs(root)
		if err != nil {
			return nil, err
		}
	}

	if workers < 1 {
		workers = 1
	}

	report := &BatchReport{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	work := make(chan string)
	completed := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dir := range work {
				res, err := p.ProcessSeries(dir)

				mu.Lock()
				if err != nil {
					report.Failures = append(report.Failures, Failure{SeriesDir: dir, Err: err})
				} else {
					report.Processed++
					if res.FromCache {
						report.Cached++
					}
				}
				completed++
				done := completed
				mu.Unlock()

				if progress != nil {
					progress(done, len(dirs), dir)
				}
			}
		}()
	}

	for _, dir := range dirs {
		work <- dir
	}
	close(work)
	wg.Wait()

	return report, nil
}

// ListSeriesDirs returns the sorted subdirectories of root, each assumed
// to hold one series.
func ListSeriesDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read series root: %w", err)
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(root, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// SeriesIDsFromCSV reads the SeriesInstanceUID column of a dataset CSV
// (e.g. a train manifest) and returns the unique IDs in file order.
func SeriesIDsFromCSV(csvPath string) ([]string, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	col := -1
	for i, name := range header {
		if name == "SeriesInstanceUID" {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("CSV %s has no SeriesInstanceUID column", csvPath)
	}

	seen := make(map[string]bool)
	var ids []string
	for {
		record, err := r.Read()
		if err != nil {
			break
		}
		if col >= len(record) {
			continue
		}
		id := record[col]
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
