package export

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hschendel/stl"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"scanmesh/internal/errs"
	"scanmesh/pkg/mesh"
)

// Supported output formats.
const (
	FormatSTL      = "stl"
	FormatSTLASCII = "stl-ascii"
	FormatOBJ      = "obj"
)

// MaxPreviewTriangles caps the triangles returned for a preview.
const MaxPreviewTriangles = 100000

// Extension returns the file extension for format, including the dot.
func Extension(format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatSTL, FormatSTLASCII:
		return ".stl", nil
	case FormatOBJ:
		return ".obj", nil
	}
	return "", errors.Wrapf(errs.ErrUnsupportedFormat, "format %q", format)
}

// Export writes m to path in the given format and returns the path
// actually written; the format extension is appended when missing.
func Export(path string, m *mesh.Mesh, format string) (string, error) {
	if m == nil {
		return "", errors.WithStack(errs.ErrNotExtracted)
	}
	format = strings.ToLower(format)
	ext, err := Extension(format)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(filepath.Ext(path), ext) {
		path += ext
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", errs.Wrap(errs.ErrIOFailure, err, "create output directory")
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", errs.Wrap(errs.ErrIOFailure, err, "create output file")
	}

	switch format {
	case FormatSTL:
		err = WriteBinarySTL(f, m)
	case FormatSTLASCII:
		name := strings.TrimSuffix(filepath.Base(path), ext)
		err = WriteASCIISTL(f, m, name)
	case FormatOBJ:
		err = WriteOBJ(f, m)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", errs.Wrap(errs.ErrIOFailure, err, "write "+format)
	}

	log.Infof("[Exporter] Wrote %d faces to %s", len(m.Faces), path)
	return path, nil
}

// Preview is a non-indexed triangle list for web viewers. Face i uses
// vertices 3i, 3i+1 and 3i+2.
type Preview struct {
	Vertices [][3]float32 `json:"vertices"`
	Faces    [][3]int     `json:"faces"`
}

// ReadPreview parses binary or ASCII STL and keeps at most maxTriangles
// triangles. A non-positive max uses MaxPreviewTriangles.
func ReadPreview(r io.ReadSeeker, maxTriangles int) (*Preview, error) {
	if maxTriangles <= 0 {
		maxTriangles = MaxPreviewTriangles
	}
	solid, err := stl.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrDecodeFailure, err, "read stl")
	}

	n := len(solid.Triangles)
	if n > maxTriangles {
		n = maxTriangles
	}
	p := &Preview{
		Vertices: make([][3]float32, 0, n*3),
		Faces:    make([][3]int, 0, n),
	}
	for _, t := range solid.Triangles[:n] {
		base := len(p.Vertices)
		for _, v := range t.Vertices {
			p.Vertices = append(p.Vertices, [3]float32{v[0], v[1], v[2]})
		}
		p.Faces = append(p.Faces, [3]int{base, base + 1, base + 2})
	}
	return p, nil
}

// ReadPreviewFile loads a preview from an STL or OBJ file.
func ReadPreviewFile(path string, maxTriangles int) (*Preview, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.ErrIOFailure, err, "open model")
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".obj") {
		m, err := ReadOBJ(bufio.NewReader(f))
		if err != nil {
			return nil, errs.Wrap(errs.ErrDecodeFailure, err, "read obj")
		}
		return meshPreview(m, maxTriangles), nil
	}
	return ReadPreview(f, maxTriangles)
}

func meshPreview(m *mesh.Mesh, maxTriangles int) *Preview {
	if maxTriangles <= 0 {
		maxTriangles = MaxPreviewTriangles
	}
	n := len(m.Faces)
	if n > maxTriangles {
		n = maxTriangles
	}
	p := &Preview{
		Vertices: make([][3]float32, 0, n*3),
		Faces:    make([][3]int, 0, n),
	}
	for i := 0; i < n; i++ {
		a, b, c := m.Triangle(i)
		base := len(p.Vertices)
		p.Vertices = append(p.Vertices,
			[3]float32{float32(a.X), float32(a.Y), float32(a.Z)},
			[3]float32{float32(b.X), float32(b.Y), float32(b.Z)},
			[3]float32{float32(c.X), float32(c.Y), float32(c.Z)},
		)
		p.Faces = append(p.Faces, [3]int{base, base + 1, base + 2})
	}
	return p
}
