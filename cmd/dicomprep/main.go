package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"dicomprep/pkg/cache"
	"dicomprep/pkg/config"
	"dicomprep/pkg/pipeline"
	"dicomprep/pkg/resample"
	"dicomprep/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "dicomprep.yaml", "Path to YAML configuration file")
	seriesRoot := flag.String("input", "", "Directory containing one subdirectory per DICOM series")
	csvPath := flag.String("csv", "", "Manifest CSV restricting the run to its SeriesInstanceUID column")
	cacheDir := flag.String("cache-dir", "", "Directory for cached preprocessed volumes")
	workers := flag.Int("workers", 0, "Number of series to preprocess concurrently (default: from config)")
	spacing := flag.Float64("spacing", 0, "Isotropic target spacing in mm (default: from config)")
	order := flag.Int("order", -1, "Interpolation order: 0=nearest, 1=linear (default: from config)")
	exportSlices := flag.Bool("extract-slices", false, "Export PNG slices of the first processed volume")
	slicesDir := flag.String("slices-dir", "", "Directory to save exported slices")
	flag.Parse()

	// Load configuration and apply flag overrides
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *seriesRoot != "" {
		cfg.Dataset.SeriesRoot = *seriesRoot
	}
	if *csvPath != "" {
		cfg.Dataset.CSVPath = *csvPath
	}
	if *cacheDir != "" {
		cfg.Cache.Dir = *cacheDir
		cfg.Cache.Enabled = true
	}
	if *workers > 0 {
		cfg.Processing.NumWorkers = *workers
	}
	if *spacing > 0 {
		cfg.Processing.TargetSpacing = [3]float64{*spacing, *spacing, *spacing}
	}
	if *order >= 0 {
		cfg.Processing.InterpolationOrder = *order
	}
	if *exportSlices {
		cfg.Output.ExportSlices = true
	}
	if *slicesDir != "" {
		cfg.Output.SlicesDir = *slicesDir
	}

	if cfg.Dataset.SeriesRoot == "" {
		flag.Usage()
		os.Exit(1)
	}

	// Build the pipeline with its collaborators
	var store cache.Store
	if cfg.Cache.Enabled {
		fileStore, err := cache.NewFileStore(cfg.Cache.Dir)
		if err != nil {
			log.Fatalf("Failed to create cache store: %v", err)
		}
		store = fileStore
	}

	pipe := pipeline.New(store)
	pipe.TargetSpacing = cfg.Processing.TargetSpacing[:]
	pipe.Order = resample.Order(cfg.Processing.InterpolationOrder)

	// Optionally restrict the run to the manifest's series
	var ids []string
	if cfg.Dataset.CSVPath != "" {
		ids, err = pipeline.SeriesIDsFromCSV(cfg.Dataset.CSVPath)
		if err != nil {
			log.Fatalf("Failed to read manifest: %v", err)
		}
		fmt.Printf("Found %d series in %s\n", len(ids), cfg.Dataset.CSVPath)
	}

	fmt.Println("Starting DICOM series preprocessing...")
	startTime := time.Now()

	var progress pipeline.ProgressFunc
	if cfg.Output.Verbose {
		progress = func(completed, total int, seriesDir string) {
			pct := float64(completed) / float64(total) * 100
			fmt.Printf("\rPreprocessing series: %d/%d (%.1f%%)", completed, total, pct)
		}
	}

	report, err := pipe.PrecacheAll(cfg.Dataset.SeriesRoot, ids, cfg.Processing.NumWorkers, progress)
	if err != nil {
		log.Fatalf("Preprocessing failed: %v", err)
	}
	if cfg.Output.Verbose {
		fmt.Println()
	}

	elapsed := time.Since(startTime)
	fmt.Printf("\nPreprocessing completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("Series processed: %d (%d served from cache)\n", report.Processed, report.Cached)
	fmt.Printf("Series failed:    %d\n", len(report.Failures))
	for _, failure := range report.Failures {
		log.Printf("Warning: %s: %v", failure.SeriesDir, failure.Err)
	}

	// Export QC slices from the first successfully processed series
	if cfg.Output.ExportSlices && report.Processed > 0 {
		dirs, err := pipeline.ListSeriesDirs(cfg.Dataset.SeriesRoot)
		if err != nil {
			log.Fatalf("Failed to list series: %v", err)
		}
		for _, dir := range dirs {
			res, err := pipe.ProcessSeries(dir)
			if err != nil {
				continue
			}
			fmt.Printf("\nExporting slices of %s to %s\n", pipeline.SeriesID(dir), cfg.Output.SlicesDir)
			viewer := visualization.NewViewer(res.Volume)
			for _, axis := range []string{"x", "y", "z"} {
				axisDir := fmt.Sprintf("%s/%s", cfg.Output.SlicesDir, axis)
				if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
					log.Printf("Warning: Failed to save %s-axis slices: %v", axis, err)
				}
			}
			break
		}
	}

	if report.Processed == 0 && len(report.Failures) > 0 {
		os.Exit(1)
	}
}
