// Package visualization renders volume slices and mesh snapshots for
// inspection.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"scanmesh/internal/models"
)

// Viewer extracts 2D planes from a volume as grayscale images. Intensities
// are mapped linearly from the volume's range onto 0-255.
type Viewer struct {
	volume *models.Volume

	lo, hi float64
}

// NewViewer creates a viewer over vol.
func NewViewer(vol *models.Volume) *Viewer {
	v := &Viewer{volume: vol}
	if len(vol.Data) > 0 {
		v.lo, v.hi = floats.Min(vol.Data), floats.Max(vol.Data)
	}
	return v
}

func (v *Viewer) gray(value float64) color.Gray {
	if v.hi <= v.lo {
		return color.Gray{}
	}
	g := (value - v.lo) / (v.hi - v.lo) * 255
	return color.Gray{Y: uint8(math.Max(0, math.Min(255, math.Round(g))))}
}

// ExtractSlice returns the plane at position along axis x, y or z. Planes
// through the slice stack are stretched by the z spacing so they keep
// physical proportions.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	vol := v.volume
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	var img *image.Gray
	switch axis {
	case "x", "X":
		if position >= vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		img = image.NewGray(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetGray(z, y, v.gray(vol.At(position, y, z)))
			}
		}
		return v.stretch(img, true), nil

	case "y", "Y":
		if position >= vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		img = image.NewGray(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray(x, z, v.gray(vol.At(x, position, z)))
			}
		}
		return v.stretch(img, false), nil

	case "z", "Z":
		if position >= vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		img = image.NewGray(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray(x, y, v.gray(vol.At(x, y, position)))
			}
		}
		return img, nil
	}
	return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// stretch scales the depth axis of img by the ratio of z spacing to
// in-plane spacing.
func (v *Viewer) stretch(img *image.Gray, depthIsX bool) image.Image {
	sp := v.volume.Spacing
	inPlane := sp.Y
	if depthIsX {
		inPlane = sp.X
	}
	if sp.Z <= 0 || inPlane <= 0 || sp.Z == inPlane {
		return img
	}

	ratio := sp.Z / inPlane
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if depthIsX {
		w = int(math.Max(1, math.Round(float64(w)*ratio)))
	} else {
		h = int(math.Max(1, math.Round(float64(h)*ratio)))
	}
	return imaging.Resize(img, w, h, imaging.Linear)
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	return imaging.Save(img, filename, imaging.JPEGQuality(90))
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.volume.Width
	case "y", "Y":
		maxPos = v.volume.Height
	case "z", "Z":
		maxPos = v.volume.Depth
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return errors.Wrapf(err, "save %s", filename)
		}
	}

	return nil
}

// Montage tiles n evenly spaced axial slices into one image, in rows of
// ceil(sqrt(n)).
func (v *Viewer) Montage(n int) (image.Image, error) {
	vol := v.volume
	if n < 1 {
		return nil, fmt.Errorf("montage needs at least one slice, got %d", n)
	}
	if n > vol.Depth {
		n = vol.Depth
	}

	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	dst := imaging.New(cols*vol.Width, rows*vol.Height, color.Black)

	for i := 0; i < n; i++ {
		z := 0
		if n > 1 {
			z = i * (vol.Depth - 1) / (n - 1)
		}
		img, err := v.ExtractSlice("z", z)
		if err != nil {
			return nil, err
		}
		pt := image.Pt((i%cols)*vol.Width, (i/cols)*vol.Height)
		dst = imaging.Paste(dst, img, pt)
	}
	return dst, nil
}

// SaveMontage writes Montage(n) to path; the format follows the extension.
func (v *Viewer) SaveMontage(n int, path string) error {
	img, err := v.Montage(n)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return imaging.Save(img, path, imaging.JPEGQuality(90))
}
