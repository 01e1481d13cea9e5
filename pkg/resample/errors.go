package resample

import "fmt"

// UnsupportedRankError indicates that the input array rank could not be
// normalized to 3D. Only 2D, 3D and 4D-with-leading-singleton inputs are
// accepted.
type UnsupportedRankError struct {
	// Shape is the offending input shape
	Shape []int
}

func (e *UnsupportedRankError) Error() string {
	return fmt.Sprintf("unsupported volume rank %d (shape %v)", len(e.Shape), e.Shape)
}

// SpacingRankMismatchError indicates that a spacing tuple did not have
// exactly one component per volume axis.
type SpacingRankMismatchError struct {
	// Got is the number of spacing components supplied
	Got int
}

func (e *SpacingRankMismatchError) Error() string {
	return fmt.Sprintf("spacing has %d components, expected 3", e.Got)
}

// InvalidSpacingError indicates a zero or negative spacing component, for
// which no scale factor can be computed.
type InvalidSpacingError struct {
	// Axis is the offending axis (0=z, 1=y, 2=x)
	Axis int

	// Value is the offending spacing component in mm
	Value float64
}

func (e *InvalidSpacingError) Error() string {
	return fmt.Sprintf("spacing component %g on axis %d is not strictly positive", e.Value, e.Axis)
}
