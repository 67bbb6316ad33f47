// Package volume assembles 3D intensity volumes from single images, image
// series and DICOM series.
package volume

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/unixpickle/essentials"

	"scanmesh/internal/errs"
	"scanmesh/internal/models"
)

// Options controls how inputs are turned into a volume.
type Options struct {
	// Workers bounds the number of files read concurrently.
	Workers int

	// MaxSlices caps image series; longer series are subsampled by stride.
	MaxSlices int

	// MaxDICOMSlices caps DICOM series.
	MaxDICOMSlices int

	// TargetSize is the largest allowed dimension of a single image.
	TargetSize int

	// PseudoSlices is the odd number of planes fabricated from one image.
	PseudoSlices int

	// Pattern optionally restricts image series to matching file names
	// (filepath.Match syntax). Empty accepts every supported extension.
	Pattern string
}

// DefaultOptions returns the loader defaults.
func DefaultOptions() Options {
	return Options{
		Workers:        8,
		MaxSlices:      150,
		MaxDICOMSlices: 200,
		TargetSize:     256,
		PseudoSlices:   15,
	}
}

func (o Options) workers() int {
	if o.Workers < 1 {
		return 1
	}
	return o.Workers
}

// Load inspects path and dispatches to the matching loader. Directories
// holding DICOM files load as a DICOM series, other directories as an
// image series, and a single file as a pseudo-volume.
func Load(path string, opts Options) (*models.Volume, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNoDataFound, err, "stat input")
	}

	if !info.IsDir() {
		return LoadImage(path, opts)
	}

	if containsDICOM(path) {
		return LoadDICOMSeries(path, opts)
	}
	return LoadSeries(path, opts)
}

// sliceReader decodes one file into a slice.
type sliceReader func(path string) (*models.Slice, error)

// readAll decodes paths over a bounded pool. Results keep the input order;
// files that fail to decode are logged and left out.
func readAll(paths []string, workers int, read sliceReader) []*models.Slice {
	results := make([]*models.Slice, len(paths))
	failures := make([]error, len(paths))

	essentials.ConcurrentMap(workers, len(paths), func(i int) {
		s, err := read(paths[i])
		if err != nil {
			failures[i] = errs.Wrap(errs.ErrDecodeFailure, err, filepath.Base(paths[i]))
			return
		}
		s.Index = i
		s.Filename = filepath.Base(paths[i])
		results[i] = s
	})

	slices := make([]*models.Slice, 0, len(paths))
	for i, s := range results {
		if failures[i] != nil {
			log.Warnf("[Volume Loader] Skipping unreadable file: %v", failures[i])
			continue
		}
		slices = append(slices, s)
	}
	return slices
}

// subsample keeps every stride-th item when items exceeds max.
func subsample(n, max int) []int {
	stride := 1
	if max > 0 && n > max {
		stride = n / max
	}
	idx := make([]int, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		idx = append(idx, i)
	}
	return idx
}

// stack copies equally sized slices into a volume. Slices whose in-plane
// size differs from the first are dropped.
func stack(slices []*models.Slice, spacing models.Spacing) (*models.Volume, error) {
	if len(slices) == 0 {
		return nil, errors.WithStack(errs.ErrNoDataFound)
	}

	width, height := slices[0].Width, slices[0].Height
	kept := make([]*models.Slice, 0, len(slices))
	for _, s := range slices {
		if s.Width != width || s.Height != height {
			log.Warnf("[Volume Loader] Dropping %s: size %dx%d does not match %dx%d",
				s.Filename, s.Width, s.Height, width, height)
			continue
		}
		kept = append(kept, s)
	}

	vol := models.NewVolume(width, height, len(kept), spacing)
	plane := width * height
	for z, s := range kept {
		copy(vol.Data[z*plane:(z+1)*plane], s.Pixels)
	}
	return vol, nil
}

// listFiles returns the regular, non-hidden files of dir in lexical order.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.Wrap(errs.ErrNoDataFound, err, "read directory")
	}
	var paths []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}
