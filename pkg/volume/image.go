package volume

import (
	"image"
	"math"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"

	"scanmesh/internal/errs"
	"scanmesh/internal/filter"
	"scanmesh/internal/models"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// IsImageFile reports whether name has a supported raster extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// LoadImage builds a pseudo-volume from one 2D image.
//
// The result is a fabricated approximation, not a reconstruction: a single
// projection carries no depth information. The image is repeated
// PseudoSlices times; plane i sits at normalized distance
// d = |i - n/2| / (n/2) from the center, is blurred with sigma 1.5*d and
// attenuated by 1 - 0.4*d, which yields a rounded slab around the center plane.
func LoadImage(path string, opts Options) (*models.Volume, error) {
	var (
		s   *models.Slice
		err error
	)
	if isDICOMName(path) || hasDICOMMagic(path) {
		s, err = readDICOMSlice(path)
	} else {
		s, err = readImageSlice(path, opts.TargetSize)
	}
	if err != nil {
		decodeErr := errs.Wrap(errs.ErrDecodeFailure, err, filepath.Base(path))
		return nil, errs.Wrap(errs.ErrNoDataFound, decodeErr, "load image")
	}
	if s.Image == nil && opts.TargetSize > 0 {
		s = fitSlice(s, opts.TargetSize)
	}

	n := opts.PseudoSlices
	if n < 1 {
		n = 1
	}
	vol := models.NewVolume(s.Width, s.Height, n, models.Isotropic())
	plane := s.Width * s.Height
	half := float64(n / 2)

	for i := 0; i < n; i++ {
		d := 0.0
		if half > 0 {
			d = math.Abs(float64(i)-half) / half
		}
		blurred := filter.Gaussian2D(s.Pixels, s.Width, s.Height, 1.5*d)
		weight := 1 - 0.4*d
		dst := vol.Data[i*plane : (i+1)*plane]
		for j, v := range blurred {
			dst[j] = v * weight
		}
	}

	log.Infof("[Volume Loader] Built %d-plane pseudo-volume from %s (%dx%d)",
		n, filepath.Base(path), s.Width, s.Height)
	return vol, nil
}

// LoadSeries stacks every decodable image in dir, sorted by filename.
// Series longer than MaxSlices are subsampled with stride count/MaxSlices.
func LoadSeries(dir string, opts Options) (*models.Volume, error) {
	files, err := listFiles(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, p := range files {
		name := filepath.Base(p)
		if opts.Pattern != "" {
			if ok, _ := filepath.Match(opts.Pattern, name); !ok {
				continue
			}
		} else if !IsImageFile(name) {
			continue
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 {
		return nil, errors.Wrapf(errs.ErrNoDataFound, "no images in %s", dir)
	}

	idx := subsample(len(paths), opts.MaxSlices)
	if len(idx) < len(paths) {
		log.Infof("[Volume Loader] Subsampling %d images to %d", len(paths), len(idx))
	}
	selected := make([]string, len(idx))
	for i, j := range idx {
		selected[i] = paths[j]
	}

	slices := readAll(selected, opts.workers(), func(p string) (*models.Slice, error) {
		return readImageSlice(p, 0)
	})
	vol, err := stack(slices, models.Isotropic())
	if err != nil {
		return nil, errors.Wrapf(err, "no decodable images in %s", dir)
	}

	log.Infof("[Volume Loader] Loaded image series: %dx%dx%d", vol.Width, vol.Height, vol.Depth)
	return vol, nil
}

// readImageSlice decodes path to grayscale in the 0-255 range. A positive
// targetSize bounds the larger dimension, preserving aspect ratio.
func readImageSlice(path string, targetSize int) (*models.Slice, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	if targetSize > 0 {
		b := img.Bounds()
		if b.Dx() > targetSize || b.Dy() > targetSize {
			img = imaging.Fit(img, targetSize, targetSize, imaging.Lanczos)
		}
	}
	return imageToSlice(img), nil
}

func imageToSlice(img image.Image) *models.Slice {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	pixels := make([]float64, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride:]
		for x := 0; x < w; x++ {
			pixels[y*w+x] = float64(row[x*4])
		}
	}
	return &models.Slice{
		Image:        gray,
		Pixels:       pixels,
		Width:        w,
		Height:       h,
		PixelSpacing: [2]float64{1, 1},
	}
}

// fitSlice downsamples a calibrated slice so its larger side is at most
// size, using nearest-neighbour sampling to keep calibrated values intact.
func fitSlice(s *models.Slice, size int) *models.Slice {
	if s.Width <= size && s.Height <= size {
		return s
	}
	scale := float64(size) / math.Max(float64(s.Width), float64(s.Height))
	w := int(math.Max(1, math.Round(float64(s.Width)*scale)))
	h := int(math.Max(1, math.Round(float64(s.Height)*scale)))

	out := *s
	out.Width, out.Height = w, h
	out.Pixels = make([]float64, w*h)
	for y := 0; y < h; y++ {
		sy := int(float64(y) / scale)
		if sy >= s.Height {
			sy = s.Height - 1
		}
		for x := 0; x < w; x++ {
			sx := int(float64(x) / scale)
			if sx >= s.Width {
				sx = s.Width - 1
			}
			out.Pixels[y*w+x] = s.Pixels[sy*s.Width+sx]
		}
	}
	return &out
}
