// Package dicomtest writes small synthetic DICOM files for tests. It
// exists so assembly and pipeline tests can share one fixture builder
// instead of each hand-rolling Part-10 files.
package dicomtest

import (
	"fmt"
	"os"
	"strconv"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

const (
	// ExplicitVRLittleEndian is the transfer syntax used for all fixtures
	ExplicitVRLittleEndian = "1.2.840.10008.1.2.1"

	// CTImageStorage is the SOP class used for all fixtures
	CTImageStorage = "1.2.840.10008.5.1.4.1.1.2"
)

// SliceSpec describes one synthetic slice file. Nil/empty optional fields
// are omitted from the written dataset, which is how tests exercise the
// assembler's fallback chains.
type SliceSpec struct {
	Rows, Cols int

	// Fill is the constant pixel value for the whole plane
	Fill int

	// ImagePosition is the 3-component ImagePositionPatient, nil to omit
	ImagePosition []float64

	// SliceLocation, InstanceNumber, SliceThickness and SpacingBetween
	// are optional scalar tags, nil to omit
	SliceLocation  *float64
	InstanceNumber *int
	SliceThickness *float64
	SpacingBetween *float64

	// PixelSpacing is the 2-component (row, col) spacing, nil to omit
	PixelSpacing []float64

	// Modality, SeriesUID and PatientID are omitted when empty
	Modality  string
	SeriesUID string
	PatientID string

	// SOPInstanceUID defaults to a fixed UID when empty
	SOPInstanceUID string
}

// Float64 returns a pointer to v, for optional SliceSpec fields.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v, for optional SliceSpec fields.
func Int(v int) *int { return &v }

func mustNewElement(t tag.Tag, data interface{}) *dicom.Element {
	el, err := dicom.NewElement(t, data)
	if err != nil {
		panic(fmt.Sprintf("dicomtest: failed to create element %v: %v", t, err))
	}
	return el
}

func ds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteSlice writes a single-frame DICOM file described by spec to path.
func WriteSlice(path string, spec SliceSpec) error {
	sop := spec.SOPInstanceUID
	if sop == "" {
		sop = "1.2.3.4"
	}

	pix := make([][]int, spec.Rows*spec.Cols)
	for i := range pix {
		pix[i] = []int{spec.Fill}
	}

	elements := []*dicom.Element{
		mustNewElement(tag.MediaStorageSOPClassUID, []string{CTImageStorage}),
		mustNewElement(tag.MediaStorageSOPInstanceUID, []string{sop}),
		mustNewElement(tag.TransferSyntaxUID, []string{ExplicitVRLittleEndian}),
		mustNewElement(tag.SOPClassUID, []string{CTImageStorage}),
		mustNewElement(tag.SOPInstanceUID, []string{sop}),
		mustNewElement(tag.Rows, []int{spec.Rows}),
		mustNewElement(tag.Columns, []int{spec.Cols}),
		mustNewElement(tag.BitsAllocated, []int{16}),
		mustNewElement(tag.BitsStored, []int{16}),
		mustNewElement(tag.HighBit, []int{15}),
		mustNewElement(tag.PixelRepresentation, []int{0}),
		mustNewElement(tag.SamplesPerPixel, []int{1}),
		mustNewElement(tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
	}

	if spec.Modality != "" {
		elements = append(elements, mustNewElement(tag.Modality, []string{spec.Modality}))
	}
	if spec.SeriesUID != "" {
		elements = append(elements, mustNewElement(tag.SeriesInstanceUID, []string{spec.SeriesUID}))
	}
	if spec.PatientID != "" {
		elements = append(elements, mustNewElement(tag.PatientID, []string{spec.PatientID}))
	}
	if spec.ImagePosition != nil {
		elements = append(elements, mustNewElement(tag.ImagePositionPatient, []string{
			ds(spec.ImagePosition[0]), ds(spec.ImagePosition[1]), ds(spec.ImagePosition[2]),
		}))
	}
	if spec.SliceLocation != nil {
		elements = append(elements, mustNewElement(tag.SliceLocation, []string{ds(*spec.SliceLocation)}))
	}
	if spec.InstanceNumber != nil {
		elements = append(elements, mustNewElement(tag.InstanceNumber, []string{strconv.Itoa(*spec.InstanceNumber)}))
	}
	if spec.PixelSpacing != nil {
		elements = append(elements, mustNewElement(tag.PixelSpacing, []string{
			ds(spec.PixelSpacing[0]), ds(spec.PixelSpacing[1]),
		}))
	}
	if spec.SliceThickness != nil {
		elements = append(elements, mustNewElement(tag.SliceThickness, []string{ds(*spec.SliceThickness)}))
	}
	if spec.SpacingBetween != nil {
		elements = append(elements, mustNewElement(tag.SpacingBetweenSlices, []string{ds(*spec.SpacingBetween)}))
	}

	elements = append(elements, mustNewElement(tag.PixelData, dicom.PixelDataInfo{
		Frames: []*frame.Frame{
			{
				Encapsulated: false,
				NativeData: frame.NativeFrame{
					BitsPerSample: 16,
					Rows:          spec.Rows,
					Cols:          spec.Cols,
					Data:          pix,
				},
			},
		},
	}))

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return dicom.Write(f, dicom.Dataset{Elements: elements})
}
