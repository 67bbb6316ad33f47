package volume

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"scanmesh/internal/errs"
	"scanmesh/internal/models"
)

const dicomMagicOffset = 128

// LoadDICOMSeries parses every regular file in dir as DICOM, orders the
// slices by patient position and stacks them. Spacing comes from the first
// ordered slice.
func LoadDICOMSeries(dir string, opts Options) (*models.Volume, error) {
	return loadDICOMSeries(dir, opts, readDICOMSlice)
}

func loadDICOMSeries(dir string, opts Options, read sliceReader) (*models.Volume, error) {
	paths, err := listFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.Wrapf(errs.ErrNoDataFound, "no files in %s", dir)
	}

	log.Infof("[Volume Loader] Reading %d DICOM candidates from %s", len(paths), dir)
	slices := readAll(paths, opts.workers(), read)
	if len(slices) == 0 {
		return nil, errors.Wrapf(errs.ErrNoDataFound, "no readable DICOM files in %s", dir)
	}

	// stable so equal positions keep listing order
	sort.SliceStable(slices, func(i, j int) bool {
		return slices[i].Position < slices[j].Position
	})

	max := opts.MaxDICOMSlices
	idx := subsample(len(slices), max)
	if len(idx) < len(slices) {
		log.Infof("[Volume Loader] Subsampling %d DICOM slices to %d", len(slices), len(idx))
		picked := make([]*models.Slice, len(idx))
		for i, j := range idx {
			picked[i] = slices[j]
		}
		slices = picked
	}

	first := slices[0]
	spacing := models.Spacing{
		Z: positiveOr(first.Thickness, 1),
		Y: positiveOr(first.PixelSpacing[0], 1),
		X: positiveOr(first.PixelSpacing[1], 1),
	}

	vol, err := stack(slices, spacing)
	if err != nil {
		return nil, err
	}
	log.Infof("[Volume Loader] Loaded DICOM series: %dx%dx%d, spacing %.2f/%.2f/%.2f mm",
		vol.Width, vol.Height, vol.Depth, spacing.Z, spacing.Y, spacing.X)
	return vol, nil
}

// readDICOMSlice decodes frame 0 of a DICOM file and applies the modality
// rescale so pixel values are calibrated.
func readDICOMSlice(path string) (*models.Slice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "parse dicom")
	}

	pixelElem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, errors.Wrap(err, "pixel data")
	}
	info, ok := pixelElem.Value.GetValue().(dicom.PixelDataInfo)
	if !ok || len(info.Frames) == 0 {
		return nil, errors.New("dicom file has no frames")
	}

	var s *models.Slice
	fr := info.Frames[0]
	if fr.Encapsulated {
		img, err := fr.GetImage()
		if err != nil {
			return nil, errors.Wrap(err, "decode encapsulated frame")
		}
		s = imageToSlice(img)
		s.Image = nil
	} else {
		native := fr.NativeData
		if native.Rows == 0 || native.Cols == 0 || len(native.Data) < native.Rows*native.Cols {
			return nil, errors.New("dicom frame is empty")
		}
		s = &models.Slice{
			Pixels: make([]float64, native.Rows*native.Cols),
			Width:  native.Cols,
			Height: native.Rows,
		}
		for i := range s.Pixels {
			if len(native.Data[i]) > 0 {
				s.Pixels[i] = float64(native.Data[i][0])
			}
		}
	}

	slope := firstFloat(ds, tag.RescaleSlope, 1)
	intercept := firstFloat(ds, tag.RescaleIntercept, 0)
	if slope != 1 || intercept != 0 {
		for i, v := range s.Pixels {
			s.Pixels[i] = v*slope + intercept
		}
	}

	if pos := floats(ds, tag.ImagePositionPatient); len(pos) >= 3 {
		s.Position = pos[2]
	} else {
		s.Position = firstFloat(ds, tag.SliceLocation, 0)
	}
	s.Thickness = firstFloat(ds, tag.SliceThickness, 0)
	if ps := floats(ds, tag.PixelSpacing); len(ps) >= 2 {
		s.PixelSpacing = [2]float64{ps[0], ps[1]}
	}

	return s, nil
}

// floats reads a decimal-string element as numbers. Missing or malformed
// elements yield nil.
func floats(ds dicom.Dataset, t tag.Tag) []float64 {
	e, err := ds.FindElementByTag(t)
	if err != nil || e.Value == nil {
		return nil
	}
	raw, ok := e.Value.GetValue().([]string)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(raw))
	for _, r := range raw {
		f, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
		if err != nil {
			return nil
		}
		out = append(out, f)
	}
	return out
}

func firstFloat(ds dicom.Dataset, t tag.Tag, def float64) float64 {
	if v := floats(ds, t); len(v) > 0 {
		return v[0]
	}
	return def
}

func positiveOr(v, def float64) float64 {
	if v > 0 {
		return v
	}
	return def
}

func isDICOMName(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".dcm" || ext == ".dicom"
}

// hasDICOMMagic checks for the "DICM" marker after the 128-byte preamble.
func hasDICOMMagic(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	header := make([]byte, dicomMagicOffset+4)
	if _, err := io.ReadFull(f, header); err != nil {
		return false
	}
	return bytes.Equal(header[dicomMagicOffset:], []byte("DICM"))
}

// containsDICOM reports whether dir holds at least one DICOM file.
func containsDICOM(dir string) bool {
	paths, err := listFiles(dir)
	if err != nil {
		return false
	}
	for _, p := range paths {
		if isDICOMName(p) {
			return true
		}
	}
	for _, p := range paths {
		if !IsImageFile(p) && hasDICOMMagic(p) {
			return true
		}
	}
	return false
}
