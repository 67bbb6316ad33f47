package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultRelaxation is the Laplacian step used when none is given.
const DefaultRelaxation = 0.15

// Smooth runs iterations of Laplacian relaxation: every vertex, boundary
// vertices included, moves toward the centroid of its edge neighbours by
// relaxation times the offset. Sharp features are not preserved and
// repeated passes shrink the mesh. The input is left untouched.
func Smooth(m *Mesh, iterations int, relaxation float64) *Mesh {
	out := m.Clone()
	if iterations <= 0 || len(out.Vertices) == 0 {
		return out
	}
	if relaxation <= 0 {
		relaxation = DefaultRelaxation
	}

	adj := out.neighbours()
	cur := out.Vertices
	next := make([]r3.Vec, len(cur))

	for it := 0; it < iterations; it++ {
		for i, v := range cur {
			nb := adj[i]
			if len(nb) == 0 {
				next[i] = v
				continue
			}
			var c r3.Vec
			for _, j := range nb {
				c = r3.Add(c, cur[j])
			}
			c = r3.Scale(1/float64(len(nb)), c)
			next[i] = r3.Add(v, r3.Scale(relaxation, r3.Sub(c, v)))
		}
		cur, next = next, cur
	}

	out.Vertices = cur
	if out.Normals != nil {
		out.Normals = ComputeNormals(out)
	}
	return out
}

// PostProcess decimates and then smooths, always in that order, and
// recomputes vertex normals. A relaxation of zero or less uses
// DefaultRelaxation.
func PostProcess(m *Mesh, ratio float64, iterations int, relaxation float64) (*Mesh, error) {
	dec, err := Decimate(m, ratio)
	if err != nil {
		return nil, err
	}
	out := Smooth(dec, iterations, relaxation)
	out.Normals = ComputeNormals(out)
	return out, nil
}
