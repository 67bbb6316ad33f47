// Package reconstruction chains the conversion stages from scan input to
// exported mesh.
//
// Each stage is a plain function taking the previous stage's value, so the
// stages can be run and tested one at a time. Converter runs the whole
// chain for one input.
package reconstruction

import (
	"github.com/pkg/errors"

	"scanmesh/internal/errs"
	"scanmesh/internal/models"
	"scanmesh/pkg/export"
	"scanmesh/pkg/isosurface"
	"scanmesh/pkg/mesh"
	"scanmesh/pkg/segmentation"
	"scanmesh/pkg/volume"
)

// Session carries the values produced so far by one conversion.
type Session struct {
	Volume *models.Volume
	Mask   *models.Mask
	Mesh   *mesh.Mesh
	Stats  mesh.Stats
}

// LoadVolume assembles a volume from a single image, an image series or a
// DICOM series at path.
func LoadVolume(path string, opts volume.Options) (*models.Volume, error) {
	return volume.Load(path, opts)
}

// SegmentVolume produces the cleaned binary mask of vol.
func SegmentVolume(vol *models.Volume, opts segmentation.Options) (*models.Mask, error) {
	return segmentation.Segment(vol, opts)
}

// ExtractSurface runs marching cubes over the smoothed mask.
func ExtractSurface(mask *models.Mask, opts isosurface.Options) (*mesh.Mesh, error) {
	return isosurface.Extract(mask, opts)
}

// PostProcessMesh decimates by simplify, then applies iterations Laplacian
// passes with the given relaxation, then recomputes vertex normals.
func PostProcessMesh(m *mesh.Mesh, simplify float64, iterations int, relaxation float64) (*mesh.Mesh, error) {
	if m == nil {
		return nil, errors.WithStack(errs.ErrNotExtracted)
	}
	return mesh.PostProcess(m, simplify, iterations, relaxation)
}

// ExportMesh writes m and returns the path written.
func ExportMesh(m *mesh.Mesh, path, format string) (string, error) {
	return export.Export(path, m, format)
}
