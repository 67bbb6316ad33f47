package filter

import (
	"math"
	"testing"
)

func TestGaussianKernelNormalized(t *testing.T) {
	for _, sigma := range []float64{0.5, 1, 1.5, 3} {
		kernel := GaussianKernel(sigma)
		if len(kernel)%2 != 1 {
			t.Errorf("sigma %g: kernel length %d should be odd", sigma, len(kernel))
		}
		sum := 0.0
		for _, v := range kernel {
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Errorf("sigma %g: kernel sums to %f, want 1", sigma, sum)
		}
		mid := len(kernel) / 2
		for i := 0; i < mid; i++ {
			if kernel[i] != kernel[len(kernel)-1-i] {
				t.Errorf("sigma %g: kernel not symmetric at %d", sigma, i)
			}
		}
	}

	if k := GaussianKernel(0); len(k) != 1 || k[0] != 1 {
		t.Errorf("Expected identity kernel for sigma 0, got %v", k)
	}
}

func TestGaussian3DPreservesConstantField(t *testing.T) {
	w, h, d := 6, 5, 4
	data := make([]float64, w*h*d)
	for i := range data {
		data[i] = 7
	}
	out := Gaussian3D(data, w, h, d, 1.0)
	for i, v := range out {
		if math.Abs(v-7) > 1e-9 {
			t.Fatalf("voxel %d changed to %f", i, v)
		}
	}
}

func TestGaussian3DSpreadsImpulse(t *testing.T) {
	n := 9
	data := make([]float64, n*n*n)
	center := 4*n*n + 4*n + 4
	data[center] = 1

	out := Gaussian3D(data, n, n, n, 1.0)

	if out[center] >= 1 || out[center] <= 0 {
		t.Errorf("Expected center to be attenuated, got %f", out[center])
	}
	if out[center+1] <= 0 || out[center+n] <= 0 || out[center+n*n] <= 0 {
		t.Error("Expected impulse to spread to neighbours on every axis")
	}
	sum := 0.0
	for _, v := range out {
		sum += v
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Errorf("Expected mass to be preserved away from borders, got %f", sum)
	}
	if data[center] != 1 {
		t.Error("Input grid must not be modified")
	}
}

func TestGaussian2DLeavesDepthAlone(t *testing.T) {
	data := []float64{0, 0, 0, 0, 9, 0, 0, 0, 0}
	out := Gaussian2D(data, 3, 3, 0.8)
	if out[4] >= 9 {
		t.Errorf("Expected smoothing in plane, got %f", out[4])
	}
	if out[0] != out[2] || out[0] != out[6] || out[0] != out[8] {
		t.Errorf("Expected symmetric corners, got %v", out)
	}
}

func TestReflect(t *testing.T) {
	tests := []struct {
		p, n, want int
	}{
		{0, 4, 0},
		{3, 4, 3},
		{-1, 4, 0},
		{-2, 4, 1},
		{4, 4, 3},
		{5, 4, 2},
		{-1, 1, 0},
		{2, 1, 0},
		{-3, 2, 1},
		{6, 2, 1},
	}
	for _, tt := range tests {
		if got := reflect(tt.p, tt.n); got != tt.want {
			t.Errorf("reflect(%d, %d) = %d, want %d", tt.p, tt.n, got, tt.want)
		}
	}
}

func TestGaussian2DReflectsEdges(t *testing.T) {
	// a ramp mirrored at the border differs from one held at its edge value
	data := []float64{0, 10, 20, 30, 40}
	out := Gaussian2D(data, 5, 1, 1.0)

	kernel := GaussianKernel(1.0)
	half := len(kernel) / 2
	want := 0.0
	for k, w := range kernel {
		want += w * data[reflect(k-half, 5)]
	}
	if math.Abs(out[0]-want) > 1e-9 {
		t.Errorf("Expected %f at the left edge, got %f", want, out[0])
	}
	if out[0] <= 0 {
		t.Errorf("Expected the mirrored neighbours to pull the edge up, got %f", out[0])
	}
}
