// Package resample maps a volume from its native anisotropic voxel grid
// onto a uniform target spacing.
//
// Medical series are routinely acquired with a much coarser through-plane
// spacing than in-plane spacing (e.g. 5mm slices of 0.5mm pixels), which
// distorts any geometry-sensitive model input. Resampling to an isotropic
// grid removes that distortion. The transform is a deterministic pure
// function of the input array, the two spacing tuples and the
// interpolation order.
package resample

import (
	"fmt"
	"math"

	"dicomprep/internal/models"
)

// Order selects the spatial interpolation used during resampling.
type Order int

const (
	// Nearest is order-0 nearest-neighbor interpolation
	Nearest Order = 0

	// Linear is order-1 trilinear interpolation, the default
	Linear Order = 1
)

// DefaultTargetSpacing is the standard 1mm isotropic grid.
func DefaultTargetSpacing() []float64 {
	return []float64{1.0, 1.0, 1.0}
}

// normalizeShape reduces the supported input ranks to exactly 3 dimensions:
// a 2D plane becomes a single-slice volume and a 4D array with a leading
// singleton (a degenerate channel axis) is squeezed. Anything else is
// rejected rather than guessed at.
func normalizeShape(shape []int) ([3]int, error) {
	switch len(shape) {
	case 2:
		return [3]int{1, shape[0], shape[1]}, nil
	case 3:
		return [3]int{shape[0], shape[1], shape[2]}, nil
	case 4:
		if shape[0] == 1 {
			return [3]int{shape[1], shape[2], shape[3]}, nil
		}
	}
	return [3]int{}, &UnsupportedRankError{Shape: append([]int(nil), shape...)}
}

// checkSpacing validates one spacing tuple.
func checkSpacing(spacing []float64) error {
	if len(spacing) != 3 {
		return &SpacingRankMismatchError{Got: len(spacing)}
	}
	for axis, s := range spacing {
		if s <= 0 {
			return &InvalidSpacingError{Axis: axis, Value: s}
		}
	}
	return nil
}

// axisCoords precomputes, for one axis, the source coordinate of every
// output sample. The first and last samples of the source and output grids
// coincide, so a scale factor of exactly 1.0 reproduces the input.
func axisCoords(in, out int) []float64 {
	coords := make([]float64, out)
	if out == 1 || in == 1 {
		return coords
	}
	step := float64(in-1) / float64(out-1)
	for i := range coords {
		coords[i] = float64(i) * step
	}
	return coords
}

// Isotropic resamples a raw array with the given shape from its original
// spacing onto the target spacing.
//
// The shape may be 2D, 3D, or 4D with a leading singleton axis; after
// normalization it must be exactly 3D. Both spacing tuples must have three
// strictly positive components. The per-axis scale factor is
// spacing[axis]/target[axis] and the output extent along each axis is
// round(extent*factor). Interpolated values are not clamped; dynamic-range
// handling belongs to the normalization stage.
func Isotropic(data []float32, shape []int, spacing, target []float64, order Order) (*models.Volume, error) {
	dims, err := normalizeShape(shape)
	if err != nil {
		return nil, err
	}
	if err := checkSpacing(spacing); err != nil {
		return nil, err
	}
	if err := checkSpacing(target); err != nil {
		return nil, err
	}
	if order != Nearest && order != Linear {
		return nil, fmt.Errorf("unsupported interpolation order %d", order)
	}
	if want := dims[0] * dims[1] * dims[2]; len(data) != want {
		return nil, fmt.Errorf("data length %d does not match shape %v", len(data), shape)
	}

	var outDims [3]int
	for axis := 0; axis < 3; axis++ {
		factor := spacing[axis] / target[axis]
		n := int(math.Round(float64(dims[axis]) * factor))
		if n < 1 {
			n = 1
		}
		outDims[axis] = n
	}

	out := models.NewVolume(outDims[0], outDims[1], outDims[2],
		[3]float64{target[0], target[1], target[2]})

	zs := axisCoords(dims[0], outDims[0])
	ys := axisCoords(dims[1], outDims[1])
	xs := axisCoords(dims[2], outDims[2])

	inPlane := dims[1] * dims[2]
	sample := func(z, y, x int) float64 {
		return float64(data[z*inPlane+y*dims[2]+x])
	}

	idx := 0
	for _, zc := range zs {
		z0, zf := splitCoord(zc, dims[0])
		for _, yc := range ys {
			y0, yf := splitCoord(yc, dims[1])
			for _, xc := range xs {
				x0, xf := splitCoord(xc, dims[2])

				var value float64
				if order == Nearest {
					value = sample(nearest(zc, dims[0]), nearest(yc, dims[1]), nearest(xc, dims[2]))
				} else {
					z1, y1, x1 := z0+1, y0+1, x0+1
					if z1 >= dims[0] {
						z1 = z0
					}
					if y1 >= dims[1] {
						y1 = y0
					}
					if x1 >= dims[2] {
						x1 = x0
					}
					c000 := sample(z0, y0, x0)
					c001 := sample(z0, y0, x1)
					c010 := sample(z0, y1, x0)
					c011 := sample(z0, y1, x1)
					c100 := sample(z1, y0, x0)
					c101 := sample(z1, y0, x1)
					c110 := sample(z1, y1, x0)
					c111 := sample(z1, y1, x1)

					c00 := c000*(1-xf) + c001*xf
					c01 := c010*(1-xf) + c011*xf
					c10 := c100*(1-xf) + c101*xf
					c11 := c110*(1-xf) + c111*xf

					c0 := c00*(1-yf) + c01*yf
					c1 := c10*(1-yf) + c11*yf

					value = c0*(1-zf) + c1*zf
				}

				out.Data[idx] = float32(value)
				idx++
			}
		}
	}

	return out, nil
}

// splitCoord splits a fractional source coordinate into its floor index
// and fractional part, clamped to the valid index range.
func splitCoord(c float64, n int) (int, float64) {
	i := int(math.Floor(c))
	if i < 0 {
		return 0, 0
	}
	if i >= n-1 {
		return n - 1, 0
	}
	return i, c - float64(i)
}

// nearest rounds a fractional source coordinate to the closest valid index.
func nearest(c float64, n int) int {
	i := int(math.Round(c))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Volume resamples an assembled volume onto the target spacing, reading
// the original spacing from the volume itself.
func Volume(v *models.Volume, target []float64, order Order) (*models.Volume, error) {
	spacing := []float64{v.Spacing[0], v.Spacing[1], v.Spacing[2]}
	return Isotropic(v.Data, v.Shape(), spacing, target, order)
}
