package isosurface

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scanmesh/internal/errs"
	"scanmesh/internal/filter"
	"scanmesh/internal/models"
	"scanmesh/pkg/mesh"
)

// IsoLevel is the surface level used for binary masks.
const IsoLevel = 0.5

// Options controls surface extraction from a mask.
type Options struct {
	// Sigma is the Gaussian pre-smoothing strength in voxels. Zero disables it.
	Sigma float64

	// Step is the marching cubes sampling step in voxels.
	Step int
}

// DefaultOptions returns sigma 0.5 and step 2.
func DefaultOptions() Options {
	return Options{Sigma: 0.5, Step: 2}
}

// GaussianSmooth blurs a width x height x depth field with an isotropic
// Gaussian (kernel radius ceil(3*sigma), reflected edges) and returns a new field.
func GaussianSmooth(field []float64, width, height, depth int, sigma float64) []float64 {
	return filter.Gaussian3D(field, width, height, depth, sigma)
}

// Extract turns a binary mask into a closed surface in physical units.
// The mask is smoothed, then marching cubes runs at IsoLevel with the
// mask spacing as scale.
func Extract(m *models.Mask, opts Options) (*mesh.Mesh, error) {
	if m == nil || len(m.Data) == 0 {
		return nil, errors.WithStack(errs.ErrNotSegmented)
	}

	field := make([]float64, len(m.Data))
	for i, v := range m.Data {
		field[i] = float64(v)
	}
	field = GaussianSmooth(field, m.Width, m.Height, m.Depth, opts.Sigma)

	mc := NewMarchingCubes(field, m.Width, m.Height, m.Depth, IsoLevel)
	mc.SetScale(float32(orOne(m.Spacing.X)), float32(orOne(m.Spacing.Y)), float32(orOne(m.Spacing.Z)))
	mc.SetStep(opts.Step)

	out := mc.Extract()
	if len(out.Faces) == 0 {
		return nil, errors.Wrap(errs.ErrNoDataFound, "surface is empty")
	}

	log.Infof("[Surface Extractor] %d vertices, %d faces (step %d, sigma %.2f)",
		len(out.Vertices), len(out.Faces), mc.step, opts.Sigma)
	return out, nil
}

func orOne(v float64) float64 {
	if v <= 0 {
		return 1
	}
	return v
}
