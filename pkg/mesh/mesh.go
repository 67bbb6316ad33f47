// Package mesh holds the indexed triangle mesh type and the post-processing
// applied to extracted surfaces: quadric decimation, Laplacian smoothing,
// normals and statistics.
package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Mesh is an indexed triangle mesh. Faces wind counter-clockwise when
// viewed from outside, so the right-hand normal points outward.
type Mesh struct {
	Vertices []r3.Vec
	Faces    [][3]int

	// Normals optionally holds one unit normal per vertex.
	Normals []r3.Vec
}

// New wraps vertices and faces into a mesh without copying.
func New(vertices []r3.Vec, faces [][3]int) *Mesh {
	return &Mesh{Vertices: vertices, Faces: faces}
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		Vertices: make([]r3.Vec, len(m.Vertices)),
		Faces:    make([][3]int, len(m.Faces)),
	}
	copy(c.Vertices, m.Vertices)
	copy(c.Faces, m.Faces)
	if m.Normals != nil {
		c.Normals = make([]r3.Vec, len(m.Normals))
		copy(c.Normals, m.Normals)
	}
	return c
}

// Triangle returns the three corners of face i.
func (m *Mesh) Triangle(i int) (r3.Vec, r3.Vec, r3.Vec) {
	f := m.Faces[i]
	return m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]
}

// FaceNormal returns the unit normal of face i, or the zero vector when
// the face is degenerate.
func (m *Mesh) FaceNormal(i int) r3.Vec {
	return TriangleNormal(m.Triangle(i))
}

// TriangleNormal returns the unit right-hand normal of (a, b, c), or the
// zero vector when the triangle has no area.
func TriangleNormal(a, b, c r3.Vec) r3.Vec {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	l := r3.Norm(n)
	if l == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/l, n)
}

// TriangleArea returns the area of (a, b, c).
func TriangleArea(a, b, c r3.Vec) float64 {
	return r3.Norm(r3.Cross(r3.Sub(b, a), r3.Sub(c, a))) / 2
}

// valid reports whether every face index refers to an existing vertex.
func (m *Mesh) valid() bool {
	for _, f := range m.Faces {
		for _, v := range f {
			if v < 0 || v >= len(m.Vertices) {
				return false
			}
		}
	}
	return true
}

// neighbours returns the unique edge neighbours of every vertex.
func (m *Mesh) neighbours() [][]int {
	adj := make([][]int, len(m.Vertices))
	seen := make(map[[2]int]bool, len(m.Faces)*3/2)
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			a, b := f[k], f[(k+1)%3]
			if a == b {
				continue
			}
			e := edgeKey(a, b)
			if seen[e] {
				continue
			}
			seen[e] = true
			adj[a] = append(adj[a], b)
			adj[b] = append(adj[b], a)
		}
	}
	return adj
}

func edgeKey(a, b int) [2]int {
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}
}

// compact drops vertices no face references and renumbers faces.
func compact(vertices []r3.Vec, faces [][3]int) *Mesh {
	remap := make([]int, len(vertices))
	for i := range remap {
		remap[i] = -1
	}
	out := &Mesh{Faces: make([][3]int, 0, len(faces))}
	for _, f := range faces {
		var nf [3]int
		for k, v := range f {
			if remap[v] < 0 {
				remap[v] = len(out.Vertices)
				out.Vertices = append(out.Vertices, vertices[v])
			}
			nf[k] = remap[v]
		}
		out.Faces = append(out.Faces, nf)
	}
	return out
}
