package resample

import (
	"errors"
	"math"
	"testing"

	"dicomprep/internal/models"
)

// rampVolume builds a volume whose voxel values follow a linear ramp, so
// interpolation errors are easy to spot
func rampVolume(depth, height, width int, spacing [3]float64) *models.Volume {
	v := models.NewVolume(depth, height, width, spacing)
	for i := range v.Data {
		v.Data[i] = float32(i)
	}
	return v
}

func TestIsotropicIdentity(t *testing.T) {
	v := rampVolume(6, 8, 10, [3]float64{1, 1, 1})

	for _, order := range []Order{Nearest, Linear} {
		out, err := Volume(v, []float64{1, 1, 1}, order)
		if err != nil {
			t.Fatalf("Resample failed at order %d: %v", order, err)
		}
		if out.Depth != 6 || out.Height != 8 || out.Width != 10 {
			t.Fatalf("Identity resample changed shape to (%d, %d, %d)",
				out.Depth, out.Height, out.Width)
		}
		for i := range out.Data {
			if math.Abs(float64(out.Data[i]-v.Data[i])) > 1e-4 {
				t.Fatalf("Identity resample at order %d changed voxel %d: %v -> %v",
					order, i, v.Data[i], out.Data[i])
			}
		}
	}
}

func TestIsotropicScaleLaw(t *testing.T) {
	// halving the through-plane spacing doubles the slice count
	v := rampVolume(10, 50, 50, [3]float64{2.0, 1.0, 1.0})

	out, err := Volume(v, []float64{1, 1, 1}, Linear)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if out.Depth != 20 || out.Height != 50 || out.Width != 50 {
		t.Fatalf("Resampled shape = (%d, %d, %d), want (20, 50, 50)",
			out.Depth, out.Height, out.Width)
	}
	if out.Spacing != [3]float64{1, 1, 1} {
		t.Errorf("Resampled spacing = %v, want [1 1 1]", out.Spacing)
	}
}

func TestIsotropicDownsample(t *testing.T) {
	v := rampVolume(8, 8, 8, [3]float64{1, 1, 1})

	out, err := Volume(v, []float64{2, 2, 2}, Linear)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if out.Depth != 4 || out.Height != 4 || out.Width != 4 {
		t.Fatalf("Downsampled shape = (%d, %d, %d), want (4, 4, 4)",
			out.Depth, out.Height, out.Width)
	}
}

func TestNearestProducesInputValues(t *testing.T) {
	v := rampVolume(3, 3, 3, [3]float64{2, 2, 2})
	inputValues := make(map[float32]bool)
	for _, val := range v.Data {
		inputValues[val] = true
	}

	out, err := Volume(v, []float64{1, 1, 1}, Nearest)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	for i, val := range out.Data {
		if !inputValues[val] {
			t.Fatalf("Nearest-neighbor output voxel %d has value %v not present in input", i, val)
		}
	}
}

func TestLinearInterpolatesMidpoints(t *testing.T) {
	// 1x1x2 volume [0, 10] stretched to width 3: the middle sample sits
	// exactly between the two inputs
	data := []float32{0, 10}
	out, err := Isotropic(data, []int{1, 1, 2}, []float64{1, 1, 3}, []float64{1, 1, 2}, Linear)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	if out.Width != 3 {
		t.Fatalf("Width = %d, want 3", out.Width)
	}
	if math.Abs(float64(out.Data[1])-5) > 1e-5 {
		t.Errorf("Midpoint = %v, want 5", out.Data[1])
	}
	if out.Data[0] != 0 || out.Data[2] != 10 {
		t.Errorf("Endpoints = %v, %v, want 0, 10", out.Data[0], out.Data[2])
	}
}

func TestRankNormalization(t *testing.T) {
	t.Run("2DBecomesSingleSliceVolume", func(t *testing.T) {
		data := make([]float32, 4*6)
		out, err := Isotropic(data, []int{4, 6}, []float64{1, 1, 1}, []float64{1, 1, 1}, Linear)
		if err != nil {
			t.Fatalf("Resample failed: %v", err)
		}
		if out.Depth != 1 || out.Height != 4 || out.Width != 6 {
			t.Errorf("Shape = (%d, %d, %d), want (1, 4, 6)", out.Depth, out.Height, out.Width)
		}
	})

	t.Run("4DLeadingSingletonSqueezed", func(t *testing.T) {
		data := make([]float32, 2*4*6)
		out, err := Isotropic(data, []int{1, 2, 4, 6}, []float64{1, 1, 1}, []float64{1, 1, 1}, Linear)
		if err != nil {
			t.Fatalf("Resample failed: %v", err)
		}
		if out.Depth != 2 || out.Height != 4 || out.Width != 6 {
			t.Errorf("Shape = (%d, %d, %d), want (2, 4, 6)", out.Depth, out.Height, out.Width)
		}
	})

	t.Run("1DRejected", func(t *testing.T) {
		_, err := Isotropic(make([]float32, 5), []int{5}, []float64{1, 1, 1}, []float64{1, 1, 1}, Linear)
		var rankErr *UnsupportedRankError
		if !errors.As(err, &rankErr) {
			t.Fatalf("Expected UnsupportedRankError, got %v", err)
		}
	})

	t.Run("5DRejected", func(t *testing.T) {
		_, err := Isotropic(make([]float32, 32), []int{2, 2, 2, 2, 2}, []float64{1, 1, 1}, []float64{1, 1, 1}, Linear)
		var rankErr *UnsupportedRankError
		if !errors.As(err, &rankErr) {
			t.Fatalf("Expected UnsupportedRankError, got %v", err)
		}
	})

	t.Run("4DWithWideLeadingAxisRejected", func(t *testing.T) {
		_, err := Isotropic(make([]float32, 16), []int{2, 2, 2, 2}, []float64{1, 1, 1}, []float64{1, 1, 1}, Linear)
		var rankErr *UnsupportedRankError
		if !errors.As(err, &rankErr) {
			t.Fatalf("Expected UnsupportedRankError, got %v", err)
		}
	})
}

func TestSpacingValidation(t *testing.T) {
	data := make([]float32, 8)
	shape := []int{2, 2, 2}

	t.Run("ShortSpacingTuple", func(t *testing.T) {
		_, err := Isotropic(data, shape, []float64{1, 1}, []float64{1, 1, 1}, Linear)
		var mismatchErr *SpacingRankMismatchError
		if !errors.As(err, &mismatchErr) {
			t.Fatalf("Expected SpacingRankMismatchError, got %v", err)
		}
		if mismatchErr.Got != 2 {
			t.Errorf("Got = %d, want 2", mismatchErr.Got)
		}
	})

	t.Run("ShortTargetTuple", func(t *testing.T) {
		_, err := Isotropic(data, shape, []float64{1, 1, 1}, []float64{1}, Linear)
		var mismatchErr *SpacingRankMismatchError
		if !errors.As(err, &mismatchErr) {
			t.Fatalf("Expected SpacingRankMismatchError, got %v", err)
		}
	})

	t.Run("ZeroOriginalSpacing", func(t *testing.T) {
		_, err := Isotropic(data, shape, []float64{0, 1, 1}, []float64{1, 1, 1}, Linear)
		var invalidErr *InvalidSpacingError
		if !errors.As(err, &invalidErr) {
			t.Fatalf("Expected InvalidSpacingError, got %v", err)
		}
		if invalidErr.Axis != 0 || invalidErr.Value != 0 {
			t.Errorf("Error = axis %d value %v, want axis 0 value 0", invalidErr.Axis, invalidErr.Value)
		}
	})

	t.Run("NegativeTargetSpacing", func(t *testing.T) {
		_, err := Isotropic(data, shape, []float64{1, 1, 1}, []float64{1, -0.5, 1}, Linear)
		var invalidErr *InvalidSpacingError
		if !errors.As(err, &invalidErr) {
			t.Fatalf("Expected InvalidSpacingError, got %v", err)
		}
	})
}

func TestDataLengthMismatch(t *testing.T) {
	_, err := Isotropic(make([]float32, 7), []int{2, 2, 2}, []float64{1, 1, 1}, []float64{1, 1, 1}, Linear)
	if err == nil {
		t.Fatal("Expected error for data length mismatch")
	}
}
