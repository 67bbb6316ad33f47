package reconstruction

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scanmesh/internal/models"
	"scanmesh/pkg/config"
	"scanmesh/pkg/export"
	"scanmesh/pkg/isosurface"
	"scanmesh/pkg/mesh"
	"scanmesh/pkg/segmentation"
	"scanmesh/pkg/visualization"
	"scanmesh/pkg/volume"
)

// montageSlices is the number of axial slices tiled into each montage.
const montageSlices = 16

// Params holds the conversion parameters.
type Params struct {
	// Input is a single image, a DICOM file, or a directory of slices.
	Input string

	// OutputFile is where the model is written. The format extension is
	// appended when missing.
	OutputFile string

	// Format is stl, stl-ascii or obj.
	Format string

	// Loading controls slice discovery, resizing and the worker pool.
	Loading volume.Options

	// Segmentation selects the method and cleanup.
	Segmentation segmentation.Options

	// Surface controls pre-smoothing and the marching cubes step.
	Surface isosurface.Options

	// Simplify is the fraction of faces removed by decimation, in [0,1).
	Simplify float64

	// SmoothIterations is the number of Laplacian passes.
	SmoothIterations int

	// Relaxation is the Laplacian relaxation factor.
	Relaxation float64

	// SaveIntermediaryResults writes volume and mask slices and a mesh
	// snapshot under IntermediaryDir.
	SaveIntermediaryResults bool

	// IntermediaryDir is where intermediary results are written.
	IntermediaryDir string
}

// DefaultParams returns Params built from the default configuration.
func DefaultParams(input, output string) *Params {
	return ParamsFromConfig(config.DefaultConfig(), input, output)
}

// ParamsFromConfig maps a configuration onto Params for one conversion.
func ParamsFromConfig(cfg *config.Config, input, output string) *Params {
	seg := segmentation.DefaultOptions()
	seg.Method = cfg.Segmentation.Method
	seg.Tolerance = cfg.Segmentation.Tolerance
	seg.MinComponentSize = cfg.Segmentation.MinComponentSize

	return &Params{
		Input:      input,
		OutputFile: output,
		Format:     cfg.Output.Format,
		Loading: volume.Options{
			Workers:        cfg.Loading.Workers,
			MaxSlices:      cfg.Loading.MaxSlices,
			MaxDICOMSlices: cfg.Loading.MaxDICOMSlices,
			TargetSize:     cfg.Loading.TargetSize,
			PseudoSlices:   cfg.Loading.PseudoSlices,
		},
		Segmentation: seg,
		Surface: isosurface.Options{
			Sigma: cfg.Surface.Sigma,
			Step:  cfg.Surface.Step,
		},
		Simplify:                cfg.Mesh.Simplify,
		SmoothIterations:        cfg.Mesh.SmoothIterations,
		Relaxation:              cfg.Mesh.Relaxation,
		SaveIntermediaryResults: cfg.Output.SaveIntermediaryResults,
		IntermediaryDir:         cfg.Output.IntermediaryDir,
	}
}

// Result summarizes a finished conversion.
type Result struct {
	OutputFile      string        `json:"output_file"`
	Stats           mesh.Stats    `json:"statistics"`
	SlicesProcessed int           `json:"slices_processed"`
	FileSizeKB      float64       `json:"file_size_kb"`
	Duration        time.Duration `json:"duration"`
}

// Converter runs the full chain for one input. It holds only its
// parameters; every call to Process starts from an empty Session.
type Converter struct {
	params Params
}

// NewConverter creates a converter. params is copied.
func NewConverter(params *Params) *Converter {
	return &Converter{params: *params}
}

// Params returns a copy of the converter's parameters.
func (c *Converter) Params() Params {
	return c.params
}

// Process loads, segments, extracts, post-processes and exports. The
// context is checked between stages.
func (c *Converter) Process(ctx context.Context) (*Result, error) {
	p := c.params
	start := time.Now()

	if p.SaveIntermediaryResults {
		if err := os.MkdirAll(p.IntermediaryDir, 0755); err != nil {
			return nil, errors.Wrap(err, "failed to create intermediary directory")
		}
	}

	var (
		s   Session
		err error
	)

	log.Infof("[Converter] Step 1: Loading %s", p.Input)
	if s.Volume, err = LoadVolume(p.Input, p.Loading); err != nil {
		return nil, errors.Wrap(err, "failed to load volume")
	}
	log.Infof("[Converter] Volume %dx%dx%d, spacing %.3f/%.3f/%.3f mm",
		s.Volume.Width, s.Volume.Height, s.Volume.Depth,
		s.Volume.Spacing.Z, s.Volume.Spacing.Y, s.Volume.Spacing.X)
	c.saveVolume("01_volume", s.Volume)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Info("[Converter] Step 2: Segmenting")
	if s.Mask, err = SegmentVolume(s.Volume, p.Segmentation); err != nil {
		return nil, errors.Wrap(err, "failed to segment volume")
	}
	c.saveVolume("02_mask", maskVolume(s.Mask))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Info("[Converter] Step 3: Extracting surface")
	if s.Mesh, err = ExtractSurface(s.Mask, p.Surface); err != nil {
		return nil, errors.Wrap(err, "failed to extract surface")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Infof("[Converter] Step 4: Post-processing (simplify %.2f, %d smoothing passes)", p.Simplify, p.SmoothIterations)
	if s.Mesh, err = PostProcessMesh(s.Mesh, p.Simplify, p.SmoothIterations, p.Relaxation); err != nil {
		return nil, errors.Wrap(err, "failed to post-process mesh")
	}
	s.Stats = mesh.ComputeStats(s.Mesh)
	c.saveMesh("03_mesh", s.Mesh)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Info("[Converter] Step 5: Exporting")
	format := p.Format
	if format == "" {
		format = export.FormatSTL
	}
	out, err := ExportMesh(s.Mesh, p.OutputFile, format)
	if err != nil {
		return nil, errors.Wrap(err, "failed to export mesh")
	}

	res := &Result{
		OutputFile:      out,
		Stats:           s.Stats,
		SlicesProcessed: s.Volume.Depth,
		Duration:        time.Since(start),
	}
	if info, err := os.Stat(out); err == nil {
		res.FileSizeKB = float64(info.Size()) / 1024
	}

	log.Infof("[Converter] Done in %s: %d vertices, %d faces, %.1f KB",
		res.Duration.Round(time.Millisecond), res.Stats.Vertices, res.Stats.Faces, res.FileSizeKB)
	return res, nil
}

// maskVolume views a mask as a 0/1 volume for slice rendering.
func maskVolume(m *models.Mask) *models.Volume {
	vol := models.NewVolume(m.Width, m.Height, m.Depth, m.Spacing)
	for i, v := range m.Data {
		vol.Data[i] = float64(v)
	}
	return vol
}

// saveVolume writes every axial slice of vol and a montage of them under
// stage. Failures are logged and do not stop the conversion.
func (c *Converter) saveVolume(stage string, vol *models.Volume) {
	if !c.params.SaveIntermediaryResults {
		return
	}

	stageDir := filepath.Join(c.params.IntermediaryDir, stage)
	viewer := visualization.NewViewer(vol)
	if err := viewer.SaveSliceSequence("z", stageDir); err != nil {
		log.Warnf("[Converter] Failed to save %s slices: %v", stage, err)
		return
	}
	if err := viewer.SaveMontage(montageSlices, filepath.Join(stageDir, "montage.jpg")); err != nil {
		log.Warnf("[Converter] Failed to save %s montage: %v", stage, err)
	}
}

func (c *Converter) saveMesh(stage string, m *mesh.Mesh) {
	if !c.params.SaveIntermediaryResults {
		return
	}
	path := filepath.Join(c.params.IntermediaryDir, stage, "snapshot.png")
	if err := visualization.RenderMesh(m, 512, 512, path); err != nil {
		log.Warnf("[Converter] Failed to render mesh snapshot: %v", err)
	}
}
