// Package normalize maps raw scanner intensities into the fixed [0, 1]
// range expected by downstream models.
//
// The formula depends on the imaging modality: CT-family volumes carry
// calibrated Hounsfield units and are windowed to a diagnostically useful
// range, while MR-family intensities have no absolute scale and are
// z-score standardized instead. Normalization runs before resampling so
// that interpolation never shifts the window and percentile statistics.
package normalize

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"dicomprep/internal/models"
)

// Modality is the closed set of imaging techniques the pipeline
// distinguishes between. Tags outside the known families map to Unknown,
// which gets an explicit default formula rather than an implicit
// string-match fallback.
type Modality int

const (
	Unknown Modality = iota
	CT
	MR
)

func (m Modality) String() string {
	switch m {
	case CT:
		return "CT"
	case MR:
		return "MR"
	default:
		return "UNKNOWN"
	}
}

// ParseModality groups the common DICOM modality tags and their synonyms
// into the closed modality set.
func ParseModality(tag string) Modality {
	switch strings.ToUpper(strings.TrimSpace(tag)) {
	case "CT", "CTA":
		return CT
	case "MR", "MRI", "MRA", "T1", "T2":
		return MR
	default:
		return Unknown
	}
}

// Normalizer maps a raw-intensity volume into [0, 1]. Implementations
// never mutate their input and always preserve its shape.
type Normalizer interface {
	Normalize(v *models.Volume) *models.Volume
}

// ForModality returns the normalizer for a modality. Unknown modalities
// get the generic z-score variant.
func ForModality(m Modality) Normalizer {
	switch m {
	case CT:
		// brain window; bone would be center 300, width 1500
		return &WindowNormalizer{Center: 40, Width: 80}
	case MR:
		return &ZScoreNormalizer{}
	default:
		return &DefaultNormalizer{}
	}
}

// epsilon guards divisions when a volume is perfectly uniform
const epsilon = 1e-8

// WindowNormalizer implements CT-family normalization: clip the volume to
// an HU window around Center, then min-max scale the clipped values to
// [0, 1].
type WindowNormalizer struct {
	// Center is the HU window center (e.g. 40 for soft tissue)
	Center float64

	// Width is the HU window width (e.g. 80 for soft tissue)
	Width float64
}

func (n *WindowNormalizer) Normalize(v *models.Volume) *models.Volume {
	lower := n.Center - n.Width/2
	upper := n.Center + n.Width/2

	out := v.Clone()
	for i, val := range out.Data {
		f := float64(val)
		if f < lower {
			f = lower
		} else if f > upper {
			f = upper
		}
		out.Data[i] = float32(f)
	}
	minMaxScale(out.Data)
	return out
}

// ZScoreNormalizer implements MR-family normalization: standardize to zero
// mean and unit variance, then min-max scale to [0, 1].
type ZScoreNormalizer struct{}

func (n *ZScoreNormalizer) Normalize(v *models.Volume) *models.Volume {
	out := v.Clone()
	zscore(out.Data)
	minMaxScale(out.Data)
	return out
}

// DefaultNormalizer is the explicit variant used for unrecognized
// modalities. The formula matches ZScoreNormalizer; the distinct type
// keeps the unknown-modality path visible to callers and logs.
type DefaultNormalizer struct{}

func (n *DefaultNormalizer) Normalize(v *models.Volume) *models.Volume {
	out := v.Clone()
	zscore(out.Data)
	minMaxScale(out.Data)
	return out
}

// RobustNormalizer clips intensities to the [LowerPct, UpperPct]
// percentile range before z-score standardization. Useful for MR
// angiography series whose intensity tails are long enough to dominate a
// plain z-score.
type RobustNormalizer struct {
	// LowerPct and UpperPct bound the kept intensity range, in [0, 1]
	LowerPct float64
	UpperPct float64
}

// Robust returns the percentile-clipping normalizer with the standard
// (1%, 99%) bounds.
func Robust() *RobustNormalizer {
	return &RobustNormalizer{LowerPct: 0.01, UpperPct: 0.99}
}

func (n *RobustNormalizer) Normalize(v *models.Volume) *models.Volume {
	sorted := make([]float64, len(v.Data))
	for i, val := range v.Data {
		sorted[i] = float64(val)
	}
	sort.Float64s(sorted)
	lower := stat.Quantile(n.LowerPct, stat.Empirical, sorted, nil)
	upper := stat.Quantile(n.UpperPct, stat.Empirical, sorted, nil)

	out := v.Clone()
	for i, val := range out.Data {
		f := float64(val)
		if f < lower {
			f = lower
		} else if f > upper {
			f = upper
		}
		out.Data[i] = float32(f)
	}
	zscore(out.Data)
	minMaxScale(out.Data)
	return out
}

// zscore standardizes data in place to zero mean and unit variance.
func zscore(data []float32) {
	f64 := make([]float64, len(data))
	for i, v := range data {
		f64[i] = float64(v)
	}
	mean, std := stat.MeanStdDev(f64, nil)
	std += epsilon
	for i := range data {
		data[i] = float32((f64[i] - mean) / std)
	}
}

// minMaxScale rescales data in place to span [0, 1]. A uniform volume
// collapses to all zeros.
func minMaxScale(data []float32) {
	if len(data) == 0 {
		return
	}
	minV, maxV := data[0], data[0]
	for _, v := range data {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	span := float64(maxV-minV) + epsilon
	for i := range data {
		data[i] = float32(float64(data[i]-minV) / span)
	}
}
