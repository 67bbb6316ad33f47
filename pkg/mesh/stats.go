package mesh

import (
	"github.com/unixpickle/model3d/model3d"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/spatial/r3"
)

// Stats summarizes a mesh.
type Stats struct {
	Vertices int `json:"vertices"`
	Faces    int `json:"faces"`

	// SurfaceArea is in squared model units (mm^2 for calibrated input).
	SurfaceArea float64 `json:"surface_area"`

	// Volume is the enclosed volume from the signed tetrahedron sum. It is
	// only meaningful for closed meshes.
	Volume float64 `json:"volume"`

	Min r3.Vec `json:"-"`
	Max r3.Vec `json:"-"`

	// Diagonal is the bounding box diagonal length.
	Diagonal float64 `json:"bbox_diagonal"`

	Components int  `json:"components"`
	Closed     bool `json:"closed"`
}

// ComputeStats measures m.
func ComputeStats(m *Mesh) Stats {
	s := Stats{Vertices: len(m.Vertices), Faces: len(m.Faces)}
	if len(m.Faces) == 0 {
		return s
	}

	tris := make([]*model3d.Triangle, 0, len(m.Faces))
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		s.SurfaceArea += TriangleArea(a, b, c)
		s.Volume += r3.Dot(a, r3.Cross(b, c)) / 6
		tris = append(tris, &model3d.Triangle{coord(a), coord(b), coord(c)})
	}

	collider := model3d.MeshToCollider(model3d.NewMeshTriangles(tris))
	lo, hi := collider.Min(), collider.Max()
	s.Min = r3.Vec{X: lo.X, Y: lo.Y, Z: lo.Z}
	s.Max = r3.Vec{X: hi.X, Y: hi.Y, Z: hi.Z}
	s.Diagonal = hi.Sub(lo).Norm()

	s.Components = countComponents(m)
	s.Closed = isClosed(m)
	return s
}

func coord(v r3.Vec) model3d.Coord3D {
	return model3d.Coord3D{X: v.X, Y: v.Y, Z: v.Z}
}

// countComponents counts edge-connected pieces among referenced vertices.
func countComponents(m *Mesh) int {
	g := simple.NewUndirectedGraph()
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			a, b := int64(f[k]), int64(f[(k+1)%3])
			if g.Node(a) == nil {
				g.AddNode(simple.Node(a))
			}
			// SetEdge panics on self loops
			if a != b {
				g.SetEdge(g.NewEdge(simple.Node(a), simple.Node(b)))
			}
		}
	}
	return len(topo.ConnectedComponents(g))
}

// isClosed reports whether every edge borders exactly two faces.
func isClosed(m *Mesh) bool {
	counts := make(map[[2]int]int, len(m.Faces)*3/2)
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			counts[edgeKey(f[k], f[(k+1)%3])]++
		}
	}
	for _, n := range counts {
		if n != 2 {
			return false
		}
	}
	return true
}
