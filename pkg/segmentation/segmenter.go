package segmentation

import (
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scanmesh/internal/errs"
	"scanmesh/internal/models"
)

// Segmentation methods accepted by Segment.
const (
	MethodOtsu          = "otsu"
	MethodThreshold     = "threshold"
	MethodRegionGrowing = "region_growing"
)

// Options selects and parameterizes a segmentation method.
type Options struct {
	// Method is MethodOtsu, MethodThreshold or MethodRegionGrowing.
	Method string

	// Cutoff is the manual threshold. Nil falls back to Otsu.
	Cutoff *float64

	// Seed is the region growing start voxel (x, y, z). Nil uses the center.
	Seed *[3]int

	// Tolerance is the region growing intensity window.
	Tolerance float64

	// MinComponentSize drops smaller 6-connected components after cleanup.
	MinComponentSize int
}

// DefaultOptions returns Otsu segmentation with the standard cleanup.
func DefaultOptions() Options {
	return Options{
		Method:           MethodOtsu,
		Tolerance:        50,
		MinComponentSize: 500,
	}
}

// Segment produces a cleaned binary mask for vol.
func Segment(vol *models.Volume, opts Options) (*models.Mask, error) {
	if vol == nil || len(vol.Data) == 0 {
		return nil, errors.WithStack(errs.ErrNotLoaded)
	}

	var (
		mask *models.Mask
		err  error
	)
	switch opts.Method {
	case MethodOtsu, "":
		mask = Threshold(vol, nil)
	case MethodThreshold:
		mask = Threshold(vol, opts.Cutoff)
	case MethodRegionGrowing:
		mask, err = RegionGrow(vol, opts.Seed, opts.Tolerance)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.Errorf("unknown segmentation method %q", opts.Method)
	}

	raw := mask.Count()
	mask = Cleanup(mask, opts.MinComponentSize)
	log.Infof("[Segmenter] %s: %d voxels selected, %d after cleanup", methodName(opts.Method), raw, mask.Count())
	if mask.Count() == 0 {
		log.Warn("[Segmenter] Mask is empty after cleanup")
	}
	return mask, nil
}

// Threshold marks voxels strictly above cutoff. A nil cutoff uses Otsu.
func Threshold(vol *models.Volume, cutoff *float64) *models.Mask {
	var t float64
	if cutoff != nil {
		t = *cutoff
	} else {
		t = OtsuThreshold(vol)
		log.Debugf("[Segmenter] Otsu threshold: %.3f", t)
	}

	mask := models.NewMask(vol)
	for i, v := range vol.Data {
		if v > t {
			mask.Data[i] = 1
		}
	}
	return mask
}

// RegionGrow selects the 26-connected region around seed whose intensities
// lie within tolerance of the seed intensity. A nil seed starts at the
// volume center; a non-positive tolerance uses 50.
func RegionGrow(vol *models.Volume, seed *[3]int, tolerance float64) (*models.Mask, error) {
	s := [3]int{vol.Width / 2, vol.Height / 2, vol.Depth / 2}
	if seed != nil {
		s = *seed
	}
	if s[0] < 0 || s[1] < 0 || s[2] < 0 || s[0] >= vol.Width || s[1] >= vol.Height || s[2] >= vol.Depth {
		return nil, errors.Errorf("seed %v outside %dx%dx%d volume", s, vol.Width, vol.Height, vol.Depth)
	}
	if tolerance <= 0 {
		tolerance = 50
	}

	mask := models.NewMask(vol)
	ref := vol.At(s[0], s[1], s[2])
	plane := vol.Width * vol.Height

	start := vol.Index(s[0], s[1], s[2])
	mask.Data[start] = 1
	queue := []int{start}
	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		z := i / plane
		y := (i % plane) / vol.Width
		x := i % vol.Width
		for _, d := range allNeighbours {
			nx, ny, nz := x+d[0], y+d[1], z+d[2]
			if !inBounds(mask, nx, ny, nz) {
				continue
			}
			j := vol.Index(nx, ny, nz)
			if mask.Data[j] == 0 && math.Abs(vol.Data[j]-ref) <= tolerance {
				mask.Data[j] = 1
				queue = append(queue, j)
			}
		}
	}
	return mask, nil
}

func methodName(m string) string {
	if m == "" {
		return MethodOtsu
	}
	return m
}
