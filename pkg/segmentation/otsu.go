// Package segmentation turns intensity volumes into binary masks.
package segmentation

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"scanmesh/internal/models"
)

const otsuBins = 256

// OtsuThreshold picks the cutoff that maximizes between-class variance of
// the volume's intensity histogram. The histogram is built from every
// second voxel along each axis.
func OtsuThreshold(vol *models.Volume) float64 {
	sample := make([]float64, 0, len(vol.Data)/8+1)
	for z := 0; z < vol.Depth; z += 2 {
		for y := 0; y < vol.Height; y += 2 {
			for x := 0; x < vol.Width; x += 2 {
				sample = append(sample, vol.At(x, y, z))
			}
		}
	}
	return otsu(sample)
}

func otsu(sample []float64) float64 {
	if len(sample) == 0 {
		return 0
	}
	sort.Float64s(sample)
	lo, hi := sample[0], sample[len(sample)-1]
	if lo == hi {
		return lo
	}

	// the last divider must lie strictly above the maximum sample
	width := (hi - lo) / otsuBins
	dividers := make([]float64, otsuBins+1)
	floats.Span(dividers, lo, hi)
	dividers[otsuBins] = hi + width*1e-6

	hist := stat.Histogram(nil, dividers, sample, nil)

	centers := make([]float64, otsuBins)
	for i := range centers {
		centers[i] = lo + width*(float64(i)+0.5)
	}

	// cumulative weights and means from below and from above
	below := make([]float64, otsuBins)
	belowMass := make([]float64, otsuBins)
	above := make([]float64, otsuBins)
	aboveMass := make([]float64, otsuBins)

	w, m := 0.0, 0.0
	for i := 0; i < otsuBins; i++ {
		w += hist[i]
		m += hist[i] * centers[i]
		below[i], belowMass[i] = w, m
	}
	w, m = 0, 0
	for i := otsuBins - 1; i >= 0; i-- {
		w += hist[i]
		m += hist[i] * centers[i]
		above[i], aboveMass[i] = w, m
	}

	best, bestVar := 0, -1.0
	for i := 0; i < otsuBins-1; i++ {
		w1, w2 := below[i], above[i+1]
		if w1 == 0 || w2 == 0 {
			continue
		}
		diff := belowMass[i]/w1 - aboveMass[i+1]/w2
		v := w1 * w2 * diff * diff
		if v > bestVar {
			best, bestVar = i, v
		}
	}
	return centers[best]
}
