package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// ComputeNormals returns area-weighted unit vertex normals. Vertices with
// no incident area get the zero vector.
func ComputeNormals(m *Mesh) []r3.Vec {
	normals := make([]r3.Vec, len(m.Vertices))
	for _, f := range m.Faces {
		a, b, c := m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
		// the raw cross product is already scaled by twice the area
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		for _, v := range f {
			normals[v] = r3.Add(normals[v], n)
		}
	}
	for i, n := range normals {
		if l := r3.Norm(n); l > 0 {
			normals[i] = r3.Scale(1/l, n)
		}
	}
	return normals
}
