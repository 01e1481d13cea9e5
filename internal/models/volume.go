package models

// Slice represents a single 2D image plane read from one DICOM file,
// together with the metadata needed to place it inside a series.
// Slices only live for the duration of volume assembly.
type Slice struct {
	// PixelData is the raw intensity data in row-major order (Rows x Cols)
	PixelData []float32

	// Rows and Cols are the in-plane dimensions of the slice
	Rows int
	Cols int

	// PositionKey is the derived ordering key along the acquisition axis.
	// See assembly for the fallback chain used to derive it.
	PositionKey float64

	// SOPInstanceUID uniquely identifies the slice for traceability.
	// It is never used for ordering.
	SOPInstanceUID string

	// Path is the source file the slice was read from
	Path string
}

// Volume represents a 3D image volume, either freshly assembled from a
// series of slices or produced by resampling.
type Volume struct {
	// Data is the voxel data as a 1D array in row-major order,
	// indexed as Data[z*Height*Width + y*Width + x]
	Data []float32

	// Depth, Height and Width are the dimensions of the volume in voxels.
	// Depth counts slices along the acquisition axis.
	Depth  int
	Height int
	Width  int

	// Spacing is the physical distance between adjacent voxel centers in
	// mm, ordered (z, y, x) to match the (depth, height, width) axes.
	Spacing [3]float64
}

// NewVolume allocates a zero-filled volume with the given dimensions and spacing.
func NewVolume(depth, height, width int, spacing [3]float64) *Volume {
	return &Volume{
		Data:    make([]float32, depth*height*width),
		Depth:   depth,
		Height:  height,
		Width:   width,
		Spacing: spacing,
	}
}

// At returns the voxel value at (z, y, x). Bounds are not checked.
func (v *Volume) At(z, y, x int) float32 {
	return v.Data[z*v.Height*v.Width+y*v.Width+x]
}

// SetAt stores a voxel value at (z, y, x). Bounds are not checked.
func (v *Volume) SetAt(z, y, x int, value float32) {
	v.Data[z*v.Height*v.Width+y*v.Width+x] = value
}

// Shape returns the volume dimensions as (depth, height, width).
func (v *Volume) Shape() []int {
	return []int{v.Depth, v.Height, v.Width}
}

// NumVoxels returns the total number of voxels in the volume.
func (v *Volume) NumVoxels() int {
	return v.Depth * v.Height * v.Width
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := &Volume{
		Data:    make([]float32, len(v.Data)),
		Depth:   v.Depth,
		Height:  v.Height,
		Width:   v.Width,
		Spacing: v.Spacing,
	}
	copy(out.Data, v.Data)
	return out
}

// SeriesMetadata holds the descriptive attributes of an assembled series.
// It is produced once by assembly and passed through unchanged by the
// later pipeline stages.
type SeriesMetadata struct {
	// Modality is the DICOM modality tag (e.g. "CT", "MR"), or "UNKNOWN"
	// when the series does not carry one.
	Modality string

	// SeriesInstanceUID identifies the acquisition, empty when absent
	SeriesInstanceUID string

	// PatientID identifies the patient, empty when absent
	PatientID string

	// SliceLocations holds the per-slice ordering keys in volume order
	SliceLocations []float64

	// SOPInstanceUIDs holds the per-slice identifiers in volume order
	SOPInstanceUIDs []string
}
