package reconstruction

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"scanmesh/internal/errs"
	"scanmesh/pkg/config"
	"scanmesh/pkg/export"
	"scanmesh/pkg/segmentation"
)

// createTestSlices writes a stack of PNG slices through a bright ball of
// the given radius on a dark background.
func createTestSlices(t *testing.T, dir string, size, count int, radius float64) {
	t.Helper()
	cz := float64(count-1) / 2
	c := float64(size-1) / 2

	for i := 0; i < count; i++ {
		img := image.NewGray(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx, dy, dz := float64(x)-c, float64(y)-c, float64(i)-cz
				value := uint8(20 + (x+y)%7)
				if math.Sqrt(dx*dx+dy*dy+dz*dz) < radius {
					value = 200
				}
				img.SetGray(x, y, color.Gray{Y: value})
			}
		}

		filename := filepath.Join(dir, fmt.Sprintf("slice_%03d.png", i))
		if err := imaging.Save(img, filename); err != nil {
			t.Fatalf("Failed to create test image: %v", err)
		}
	}
}

func testParams(input, output string) *Params {
	p := DefaultParams(input, output)
	p.Loading.Workers = 2
	p.Surface.Step = 1
	p.SmoothIterations = 5
	return p
}

// TestConverterProcess runs the full chain over a synthetic slice series
func TestConverterProcess(t *testing.T) {
	tmpDir := t.TempDir()
	inputDir := filepath.Join(tmpDir, "input")
	if err := os.MkdirAll(inputDir, 0755); err != nil {
		t.Fatalf("Failed to create input dir: %v", err)
	}
	createTestSlices(t, inputDir, 40, 24, 9)

	params := testParams(inputDir, filepath.Join(tmpDir, "out", "ball"))
	params.SaveIntermediaryResults = true
	params.IntermediaryDir = filepath.Join(tmpDir, "intermediary")

	res, err := NewConverter(params).Process(context.Background())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if want := filepath.Join(tmpDir, "out", "ball.stl"); res.OutputFile != want {
		t.Errorf("Expected output %s, got %s", want, res.OutputFile)
	}
	if res.SlicesProcessed != 24 {
		t.Errorf("Expected 24 slices processed, got %d", res.SlicesProcessed)
	}
	if res.Stats.Faces == 0 || !res.Stats.Closed {
		t.Errorf("Expected a closed non-empty mesh, got %+v", res.Stats)
	}
	if res.Stats.Components != 1 {
		t.Errorf("Expected one component, got %d", res.Stats.Components)
	}

	info, err := os.Stat(res.OutputFile)
	if err != nil {
		t.Fatalf("Output file was not created: %v", err)
	}
	if want := int64(84 + 50*res.Stats.Faces); info.Size() != want {
		t.Errorf("Expected binary STL of %d bytes, got %d", want, info.Size())
	}
	if math.Abs(res.FileSizeKB-float64(info.Size())/1024) > 1e-9 {
		t.Errorf("FileSizeKB %f does not match file size %d", res.FileSizeKB, info.Size())
	}

	// the ball spans about 18 voxels on each axis
	for _, extent := range []float64{
		res.Stats.Max.X - res.Stats.Min.X,
		res.Stats.Max.Y - res.Stats.Min.Y,
		res.Stats.Max.Z - res.Stats.Min.Z,
	} {
		if extent < 14 || extent > 21 {
			t.Errorf("Unexpected mesh extent %f", extent)
		}
	}

	for _, name := range []string{
		filepath.Join("01_volume", "slice_z_000.jpg"),
		filepath.Join("01_volume", "slice_z_023.jpg"),
		filepath.Join("01_volume", "montage.jpg"),
		filepath.Join("02_mask", "slice_z_012.jpg"),
		filepath.Join("03_mesh", "snapshot.png"),
	} {
		if _, err := os.Stat(filepath.Join(params.IntermediaryDir, name)); err != nil {
			t.Errorf("Expected intermediary result %s: %v", name, err)
		}
	}
}

func TestConverterFormats(t *testing.T) {
	tmpDir := t.TempDir()
	createTestSlices(t, tmpDir, 32, 16, 7)

	params := testParams(tmpDir, filepath.Join(tmpDir, "model"))
	params.Format = export.FormatOBJ
	params.Segmentation.MinComponentSize = 50

	res, err := NewConverter(params).Process(context.Background())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if filepath.Ext(res.OutputFile) != ".obj" {
		t.Errorf("Expected an .obj output, got %s", res.OutputFile)
	}

	params.Format = "ply"
	if _, err := NewConverter(params).Process(context.Background()); !errs.Is(err, errs.ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestConverterErrors(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := NewConverter(testParams(tmpDir, filepath.Join(tmpDir, "x"))).Process(context.Background())
	if !errs.Is(err, errs.ErrNoDataFound) {
		t.Errorf("Expected ErrNoDataFound for an empty directory, got %v", err)
	}

	createTestSlices(t, tmpDir, 16, 4, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewConverter(testParams(tmpDir, filepath.Join(tmpDir, "x"))).Process(ctx); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestStagesRejectMissingInput(t *testing.T) {
	if _, err := SegmentVolume(nil, segmentation.DefaultOptions()); !errs.Is(err, errs.ErrNotLoaded) {
		t.Errorf("Expected ErrNotLoaded, got %v", err)
	}
	if _, err := ExtractSurface(nil, DefaultParams("", "").Surface); !errs.Is(err, errs.ErrNotSegmented) {
		t.Errorf("Expected ErrNotSegmented, got %v", err)
	}
	if _, err := PostProcessMesh(nil, 0.3, 5, 0.15); !errs.Is(err, errs.ErrNotExtracted) {
		t.Errorf("Expected ErrNotExtracted, got %v", err)
	}
	if _, err := ExportMesh(nil, filepath.Join(t.TempDir(), "x"), export.FormatSTL); !errs.Is(err, errs.ErrNotExtracted) {
		t.Errorf("Expected ErrNotExtracted, got %v", err)
	}
}

// TestNewConverter verifies that a converter keeps its own copy of the params
func TestNewConverter(t *testing.T) {
	params := DefaultParams("/path/to/input", "output.stl")
	conv := NewConverter(params)

	params.Simplify = 0.9
	if got := conv.Params().Simplify; got != 0.3 {
		t.Errorf("Converter params should not change with the caller's copy, got simplify %f", got)
	}
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Loading.Workers = 3
	cfg.Segmentation.Method = segmentation.MethodRegionGrowing
	cfg.Segmentation.Tolerance = 12
	cfg.Surface.Step = 4
	cfg.Mesh.SmoothIterations = 7
	cfg.Output.Format = export.FormatSTLASCII

	p := ParamsFromConfig(cfg, "in", "out")
	if p.Input != "in" || p.OutputFile != "out" {
		t.Errorf("Unexpected paths %q %q", p.Input, p.OutputFile)
	}
	if p.Loading.Workers != 3 || p.Surface.Step != 4 || p.SmoothIterations != 7 {
		t.Errorf("Config values not carried over: %+v", p)
	}
	if p.Segmentation.Method != segmentation.MethodRegionGrowing || p.Segmentation.Tolerance != 12 {
		t.Errorf("Segmentation options not carried over: %+v", p.Segmentation)
	}
	if p.Format != export.FormatSTLASCII {
		t.Errorf("Expected format %s, got %s", export.FormatSTLASCII, p.Format)
	}
}
