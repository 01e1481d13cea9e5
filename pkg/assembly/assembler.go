// Package assembly reconstructs a 3D volume from a directory of single-slice
// DICOM files belonging to one acquisition.
//
// The delicate part is slice ordering: DICOM series frequently arrive with
// arbitrary filenames and partially missing positional metadata, so the
// assembler derives a per-slice ordering key from a chain of fallback tags
// and sorts on it with a stable sort. The assembled volume is always
// (numSlices, height, width) with the lowest-indexed slice being the most
// physically inferior one.
package assembly

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicomprep/internal/models"
)

// optionalFloat is the result of probing a metadata field that may be
// absent: either Present with a value, or Absent.
type optionalFloat struct {
	value   float64
	present bool
}

func present(v float64) optionalFloat { return optionalFloat{value: v, present: true} }

var absent = optionalFloat{}

// orElse returns the receiver when present, otherwise the alternative.
func (o optionalFloat) orElse(v float64) float64 {
	if o.present {
		return o.value
	}
	return v
}

// tagFloat probes a dataset for a numeric element value at the given
// component index. DICOM decimal strings (DS), integer strings (IS),
// integers and floats are all accepted; anything missing or malformed
// yields Absent.
func tagFloat(ds dicom.Dataset, t tag.Tag, index int) optionalFloat {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return absent
	}
	switch v := el.Value.GetValue().(type) {
	case []string:
		if index >= len(v) {
			return absent
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v[index]), 64)
		if err != nil {
			return absent
		}
		return present(f)
	case []int:
		if index >= len(v) {
			return absent
		}
		return present(float64(v[index]))
	case []float64:
		if index >= len(v) {
			return absent
		}
		return present(v[index])
	}
	return absent
}

// tagString probes a dataset for a string element value, returning the
// fallback when the element is absent or empty.
func tagString(ds dicom.Dataset, t tag.Tag, fallback string) string {
	el, err := ds.FindElementByTag(t)
	if err != nil {
		return fallback
	}
	if v, ok := el.Value.GetValue().([]string); ok && len(v) > 0 {
		s := strings.TrimSpace(v[0])
		if s != "" {
			return s
		}
	}
	return fallback
}

// positionSources is the ordered fallback chain for deriving a slice
// ordering key, evaluated per slice until one yields a value:
//  1. ImagePositionPatient, z component (most reliable)
//  2. SliceLocation
//  3. InstanceNumber (assumes strictly monotonic acquisition order)
//
// When every source is absent the key defaults to 0.0, which leaves the
// relative order of such slices up to the stable sort's tie-breaking on
// encounter order. That is a degenerate but non-fatal case.
var positionSources = []func(ds dicom.Dataset) optionalFloat{
	func(ds dicom.Dataset) optionalFloat { return tagFloat(ds, tag.ImagePositionPatient, 2) },
	func(ds dicom.Dataset) optionalFloat { return tagFloat(ds, tag.SliceLocation, 0) },
	func(ds dicom.Dataset) optionalFloat { return tagFloat(ds, tag.InstanceNumber, 0) },
}

// positionKey derives the ordering key for one slice.
func positionKey(ds dicom.Dataset) float64 {
	for _, source := range positionSources {
		if key := source(ds); key.present {
			return key.value
		}
	}
	return 0.0
}

// sliceHeader captures the per-slice metadata fields that outlive the
// dataset, so datasets can be released after decoding.
type sliceHeader struct {
	rowSpacing     optionalFloat
	colSpacing     optionalFloat
	sliceThickness optionalFloat
	spacingBetween optionalFloat
	modality       string
	seriesUID      string
	patientID      string
}

func readHeader(ds dicom.Dataset) sliceHeader {
	return sliceHeader{
		rowSpacing:     tagFloat(ds, tag.PixelSpacing, 0),
		colSpacing:     tagFloat(ds, tag.PixelSpacing, 1),
		sliceThickness: tagFloat(ds, tag.SliceThickness, 0),
		spacingBetween: tagFloat(ds, tag.SpacingBetweenSlices, 0),
		modality:       tagString(ds, tag.Modality, "UNKNOWN"),
		seriesUID:      tagString(ds, tag.SeriesInstanceUID, ""),
		patientID:      tagString(ds, tag.PatientID, ""),
	}
}

// readPixels extracts the first frame of a dataset as float32 pixel data.
func readPixels(ds dicom.Dataset) (data []float32, rows, cols int, err error) {
	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("missing pixel data: %w", err)
	}
	info, ok := el.Value.GetValue().(dicom.PixelDataInfo)
	if !ok {
		return nil, 0, 0, fmt.Errorf("pixel data element has unexpected type")
	}
	if len(info.Frames) == 0 {
		return nil, 0, 0, fmt.Errorf("pixel data contains no frames")
	}
	native, err := info.Frames[0].GetNativeFrame()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("no native frame available: %w", err)
	}
	rows, cols = native.Rows, native.Cols
	if rows <= 0 || cols <= 0 || len(native.Data) < rows*cols {
		return nil, 0, 0, fmt.Errorf("native frame has invalid dimensions %dx%d", rows, cols)
	}
	data = make([]float32, rows*cols)
	for i := 0; i < rows*cols; i++ {
		// first sample only; slices are single-sample grayscale
		data[i] = float32(native.Data[i][0])
	}
	return data, rows, cols, nil
}

// listSliceFiles returns the sorted .dcm file paths inside a series
// directory. Sorting the listing makes the encounter order deterministic,
// which matters only for tie-breaking between slices with equal keys.
func listSliceFiles(seriesDir string) ([]string, error) {
	entries, err := os.ReadDir(seriesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read series directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".dcm") {
			files = append(files, filepath.Join(seriesDir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LoadSeries reads every DICOM slice file in seriesDir, orders the slices
// along the acquisition axis and stacks them into a single volume.
//
// The returned volume holds raw intensity values; normalization and
// resampling are separate stages. Assembly is all-or-nothing: any decode
// failure or in-plane shape mismatch rejects the whole series with a typed
// error and no partial volume.
func LoadSeries(seriesDir string) (*models.Volume, *models.SeriesMetadata, error) {
	files, err := listSliceFiles(seriesDir)
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, &EmptySeriesError{Dir: seriesDir}
	}

	slices := make([]models.Slice, 0, len(files))
	headers := make([]sliceHeader, 0, len(files))
	for _, path := range files {
		ds, err := dicom.ParseFile(path, nil)
		if err != nil {
			return nil, nil, &CorruptSliceError{Path: path, Err: err}
		}

		pixels, rows, cols, err := readPixels(ds)
		if err != nil {
			return nil, nil, &CorruptSliceError{Path: path, Err: err}
		}
		if len(slices) > 0 {
			first := slices[0]
			if rows != first.Rows || cols != first.Cols {
				return nil, nil, &InconsistentShapeError{
					Path:     path,
					GotRows:  rows,
					GotCols:  cols,
					WantRows: first.Rows,
					WantCols: first.Cols,
				}
			}
		}

		slices = append(slices, models.Slice{
			PixelData:      pixels,
			Rows:           rows,
			Cols:           cols,
			PositionKey:    positionKey(ds),
			SOPInstanceUID: tagString(ds, tag.SOPInstanceUID, ""),
			Path:           path,
		})
		headers = append(headers, readHeader(ds))
	}

	// Stable sort keeps the deterministic encounter order for slices whose
	// keys tie, including the degenerate all-keys-missing case.
	order := make([]int, len(slices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return slices[order[i]].PositionKey < slices[order[j]].PositionKey
	})

	first := headers[order[0]]
	spacing := [3]float64{
		// through-plane: slice thickness, then spacing between slices, then 1.0
		first.sliceThickness.orElse(first.spacingBetween.orElse(1.0)),
		first.rowSpacing.orElse(1.0),
		first.colSpacing.orElse(1.0),
	}

	height, width := slices[0].Rows, slices[0].Cols
	volume := models.NewVolume(len(slices), height, width, spacing)
	meta := &models.SeriesMetadata{
		Modality:          first.modality,
		SeriesInstanceUID: first.seriesUID,
		PatientID:         first.patientID,
		SliceLocations:    make([]float64, len(slices)),
		SOPInstanceUIDs:   make([]string, len(slices)),
	}

	planeSize := height * width
	for z, idx := range order {
		copy(volume.Data[z*planeSize:(z+1)*planeSize], slices[idx].PixelData)
		meta.SliceLocations[z] = slices[idx].PositionKey
		meta.SOPInstanceUIDs[z] = slices[idx].SOPInstanceUID
	}

	return volume, meta, nil
}
