// Package export writes meshes to STL and OBJ files and reads them back
// for previews.
package export

import (
	"io"

	"github.com/hschendel/stl"

	"scanmesh/pkg/mesh"
)

// binaryHeader fills the 80-byte STL header. It must not start with
// "solid", which readers take as the ASCII marker.
const binaryHeader = "Binary STL - Fast Export"

// toSolid converts m into an STL solid with unit face normals. Degenerate
// faces get the zero normal.
func toSolid(m *mesh.Mesh, name string) *stl.Solid {
	solid := &stl.Solid{
		Name:      name,
		Triangles: make([]stl.Triangle, len(m.Faces)),
	}
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		n := m.FaceNormal(i)
		solid.Triangles[i] = stl.Triangle{
			Normal: stl.Vec3{float32(n.X), float32(n.Y), float32(n.Z)},
			Vertices: [3]stl.Vec3{
				{float32(a.X), float32(a.Y), float32(a.Z)},
				{float32(b.X), float32(b.Y), float32(b.Z)},
				{float32(c.X), float32(c.Y), float32(c.Z)},
			},
		}
	}
	return solid
}

// WriteBinarySTL writes m as little-endian binary STL: the 80-byte
// header, a uint32 triangle count, then per face the normal and three
// vertices as float32 and a zero attribute word.
func WriteBinarySTL(w io.Writer, m *mesh.Mesh) error {
	solid := toSolid(m, "")
	header := make([]byte, 80)
	copy(header, binaryHeader)
	solid.BinaryHeader = header
	return solid.WriteAll(w)
}

// WriteASCIISTL writes m as ASCII STL under the given solid name.
func WriteASCIISTL(w io.Writer, m *mesh.Mesh, name string) error {
	solid := toSolid(m, name)
	solid.IsAscii = true
	return solid.WriteAll(w)
}
