// Package filter provides separable Gaussian smoothing for flat 2D and 3D grids.
package filter

import (
	"math"
)

// GaussianKernel generates a 1D Gaussian kernel for the given sigma.
// The kernel is normalized so all values sum to 1.0.
//
// The kernel size is 2 * ceil(sigma * 3) + 1, which covers 99.7% of the
// distribution. For sigma <= 0 it returns the identity kernel [1.0].
func GaussianKernel(sigma float64) []float64 {
	if sigma <= 0 {
		return []float64{1.0}
	}

	halfSize := int(math.Ceil(sigma * 3))
	size := halfSize*2 + 1
	kernel := make([]float64, size)

	twoSigmaSq := 2 * sigma * sigma
	sum := 0.0
	for i := 0; i < size; i++ {
		x := float64(i - halfSize)
		kernel[i] = math.Exp(-(x * x) / twoSigmaSq)
		sum += kernel[i]
	}
	for i := range kernel {
		kernel[i] /= sum
	}

	return kernel
}

// Gaussian3D smooths a width x height x depth grid (indexed
// z*width*height + y*width + x) with an isotropic Gaussian and returns a
// new grid. Samples beyond the border mirror
// the grid about its edge (d c b a | a b c d | d c b a).
func Gaussian3D(data []float64, width, height, depth int, sigma float64) []float64 {
	out := make([]float64, len(data))
	copy(out, data)
	if sigma <= 0 || len(data) == 0 {
		return out
	}

	kernel := GaussianKernel(sigma)
	tmp := make([]float64, len(data))

	// x, then y, then z; each pass reads from out and writes to tmp
	convolve(out, tmp, kernel, width, 1, width, height, depth, axisX)
	convolve(tmp, out, kernel, height, width, width, height, depth, axisY)
	if depth > 1 {
		convolve(out, tmp, kernel, depth, width*height, width, height, depth, axisZ)
		copy(out, tmp)
	}

	return out
}

// Gaussian2D smooths a single width x height plane.
func Gaussian2D(data []float64, width, height int, sigma float64) []float64 {
	return Gaussian3D(data, width, height, 1, sigma)
}

type axis int

const (
	axisX axis = iota
	axisY
	axisZ
)

// convolve applies kernel along one axis. n is the axis length and stride
// the distance between neighbouring samples on that axis.
func convolve(src, dst, kernel []float64, n, stride, width, height, depth int, a axis) {
	half := len(kernel) / 2
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				idx := z*width*height + y*width + x
				var pos int
				switch a {
				case axisX:
					pos = x
				case axisY:
					pos = y
				default:
					pos = z
				}
				base := idx - pos*stride

				sum := 0.0
				for k, w := range kernel {
					sum += w * src[base+reflect(pos+k-half, n)*stride]
				}
				dst[idx] = sum
			}
		}
	}
}

// reflect maps p into [0, n) by mirroring about the grid edges, repeating
// for kernels wider than the grid.
func reflect(p, n int) int {
	for p < 0 || p >= n {
		if p < 0 {
			p = -p - 1
		} else {
			p = 2*n - p - 1
		}
	}
	return p
}
