// Package augment perturbs normalized volumes for training-time data
// augmentation. Every transform preserves the volume shape and keeps
// values inside [0, 1]; augmentation is only meaningful after
// normalization.
package augment

import (
	"math"
	"math/rand"

	"dicomprep/internal/models"
)

// Augmenter applies a randomized chain of augmentation transforms. The
// random source is injected so training runs can be reproduced.
type Augmenter struct {
	rng *rand.Rand

	// FlipProb is the per-axis probability of an in-plane flip
	FlipProb float64

	// MaxRotateDeg bounds the in-plane rotation angle in degrees
	MaxRotateDeg float64

	// NoiseSigmaMax bounds the additive gaussian noise sigma
	NoiseSigmaMax float64

	// BlurProb is the probability of applying a gaussian blur
	BlurProb float64

	// BlurSigmaMin and BlurSigmaMax bound the blur sigma
	BlurSigmaMin, BlurSigmaMax float64

	// ShiftProb is the probability of a brightness/contrast change
	ShiftProb float64
}

// New creates an augmenter with the standard transform parameters.
func New(rng *rand.Rand) *Augmenter {
	return &Augmenter{
		rng:           rng,
		FlipProb:      0.5,
		MaxRotateDeg:  10.0,
		NoiseSigmaMax: 0.05,
		BlurProb:      0.3,
		BlurSigmaMin:  0.5,
		BlurSigmaMax:  1.5,
		ShiftProb:     0.5,
	}
}

// Augment applies the full randomized transform chain to a volume and
// returns a new volume of the same shape.
func (a *Augmenter) Augment(v *models.Volume) *models.Volume {
	out := v.Clone()
	a.randomFlip(out)
	a.randomRotate(out)
	a.randomIntensityShift(out)
	a.randomNoise(out)
	a.randomBlur(out)
	return out
}

// randomFlip mirrors the volume along the height and/or width axis, each
// with probability FlipProb. The depth axis is left alone: flipping the
// anatomical axis would invert the slice ordering convention.
func (a *Augmenter) randomFlip(v *models.Volume) {
	if a.rng.Float64() < a.FlipProb {
		flipHeight(v)
	}
	if a.rng.Float64() < a.FlipProb {
		flipWidth(v)
	}
}

func flipHeight(v *models.Volume) {
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height/2; y++ {
			ym := v.Height - 1 - y
			for x := 0; x < v.Width; x++ {
				top, bottom := v.At(z, y, x), v.At(z, ym, x)
				v.SetAt(z, y, x, bottom)
				v.SetAt(z, ym, x, top)
			}
		}
	}
}

func flipWidth(v *models.Volume) {
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width/2; x++ {
				xm := v.Width - 1 - x
				left, right := v.At(z, y, x), v.At(z, y, xm)
				v.SetAt(z, y, x, right)
				v.SetAt(z, y, xm, left)
			}
		}
	}
}

// randomRotate rotates every slice in-plane by a single random angle in
// [-MaxRotateDeg, MaxRotateDeg] around the slice center, using bilinear
// sampling with edge clamping. The output shape is unchanged.
func (a *Augmenter) randomRotate(v *models.Volume) {
	angle := (a.rng.Float64()*2 - 1) * a.MaxRotateDeg
	if angle == 0 {
		return
	}
	rad := angle * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cy := float64(v.Height-1) / 2
	cx := float64(v.Width-1) / 2

	plane := make([]float32, v.Height*v.Width)
	for z := 0; z < v.Depth; z++ {
		src := v.Data[z*len(plane) : (z+1)*len(plane)]
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				// inverse-map the output pixel into the source plane
				dy := float64(y) - cy
				dx := float64(x) - cx
				sy := cos*dy - sin*dx + cy
				sx := sin*dy + cos*dx + cx
				plane[y*v.Width+x] = bilinear(src, v.Height, v.Width, sy, sx)
			}
		}
		copy(src, plane)
	}
}

// bilinear samples a plane at fractional coordinates, clamping to the
// nearest edge outside the plane.
func bilinear(plane []float32, height, width int, y, x float64) float32 {
	clampF := func(v float64, n int) float64 {
		if v < 0 {
			return 0
		}
		if v > float64(n-1) {
			return float64(n - 1)
		}
		return v
	}
	y = clampF(y, height)
	x = clampF(x, width)

	y0 := int(math.Floor(y))
	x0 := int(math.Floor(x))
	y1, x1 := y0+1, x0+1
	if y1 >= height {
		y1 = y0
	}
	if x1 >= width {
		x1 = x0
	}
	fy := y - float64(y0)
	fx := x - float64(x0)

	v00 := float64(plane[y0*width+x0])
	v01 := float64(plane[y0*width+x1])
	v10 := float64(plane[y1*width+x0])
	v11 := float64(plane[y1*width+x1])

	top := v00*(1-fx) + v01*fx
	bottom := v10*(1-fx) + v11*fx
	return float32(top*(1-fy) + bottom*fy)
}

// randomIntensityShift applies a random brightness/contrast change with
// probability ShiftProb: value*scale + shift, clipped back to [0, 1].
func (a *Augmenter) randomIntensityShift(v *models.Volume) {
	if a.rng.Float64() >= a.ShiftProb {
		return
	}
	shift := a.rng.Float64()*0.2 - 0.1
	scale := 0.9 + a.rng.Float64()*0.2
	for i, val := range v.Data {
		v.Data[i] = clamp01(float64(val)*scale + shift)
	}
}

// randomNoise adds gaussian noise with a random sigma in
// [0, NoiseSigmaMax], clipped back to [0, 1].
func (a *Augmenter) randomNoise(v *models.Volume) {
	sigma := a.rng.Float64() * a.NoiseSigmaMax
	if sigma == 0 {
		return
	}
	for i, val := range v.Data {
		v.Data[i] = clamp01(float64(val) + a.rng.NormFloat64()*sigma)
	}
}

// randomBlur applies a separable 3D gaussian blur with probability
// BlurProb, simulating scanner resolution differences.
func (a *Augmenter) randomBlur(v *models.Volume) {
	if a.rng.Float64() >= a.BlurProb {
		return
	}
	sigma := a.BlurSigmaMin + a.rng.Float64()*(a.BlurSigmaMax-a.BlurSigmaMin)
	kernel := gaussianKernel(sigma)
	blurAxis(v, kernel, 0)
	blurAxis(v, kernel, 1)
	blurAxis(v, kernel, 2)
}

// gaussianKernel builds a normalized 1D gaussian kernel with radius
// ceil(3*sigma).
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	if radius < 1 {
		radius = 1
	}
	kernel := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range kernel {
		d := float64(i - radius)
		kernel[i] = math.Exp(-d * d / (2 * sigma * sigma))
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// blurAxis convolves the volume with a 1D kernel along one axis, clamping
// samples at the borders.
func blurAxis(v *models.Volume, kernel []float64, axis int) {
	radius := len(kernel) / 2
	dims := v.Shape()
	n := dims[axis]

	out := make([]float32, len(v.Data))
	for z := 0; z < v.Depth; z++ {
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				pos := [3]int{z, y, x}
				acc := 0.0
				for k, w := range kernel {
					p := pos
					c := p[axis] + k - radius
					if c < 0 {
						c = 0
					} else if c >= n {
						c = n - 1
					}
					p[axis] = c
					acc += w * float64(v.At(p[0], p[1], p[2]))
				}
				out[z*v.Height*v.Width+y*v.Width+x] = float32(acc)
			}
		}
	}
	copy(v.Data, out)
}

func clamp01(f float64) float32 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return float32(f)
}
