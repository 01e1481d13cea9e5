package assembly

import "fmt"

// EmptySeriesError indicates that a series directory contained no
// recognizable DICOM slice files.
type EmptySeriesError struct {
	// Dir is the series directory that was scanned
	Dir string
}

func (e *EmptySeriesError) Error() string {
	return fmt.Sprintf("no DICOM files found in series directory %s", e.Dir)
}

// CorruptSliceError indicates that a slice file exists but could not be
// decoded into usable pixel data. The whole series is rejected.
type CorruptSliceError struct {
	// Path is the offending slice file
	Path string

	// Err is the underlying decode failure
	Err error
}

func (e *CorruptSliceError) Error() string {
	return fmt.Sprintf("failed to decode slice %s: %v", e.Path, e.Err)
}

func (e *CorruptSliceError) Unwrap() error {
	return e.Err
}

// InconsistentShapeError indicates that the slices of one series disagree
// on their in-plane dimensions. Assembly never crops or pads to recover.
type InconsistentShapeError struct {
	// Path is the slice whose shape differs from the first slice
	Path string

	// GotRows and GotCols are the dimensions of the offending slice
	GotRows, GotCols int

	// WantRows and WantCols are the dimensions established by the first slice
	WantRows, WantCols int
}

func (e *InconsistentShapeError) Error() string {
	return fmt.Sprintf("slice %s has shape %dx%d, expected %dx%d",
		e.Path, e.GotRows, e.GotCols, e.WantRows, e.WantCols)
}
