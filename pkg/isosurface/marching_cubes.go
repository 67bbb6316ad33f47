// Package isosurface extracts triangle surfaces from 3D scalar fields.
package isosurface

import (
	"gonum.org/v1/gonum/spatial/r3"

	"scanmesh/pkg/mesh"
)

// Triangle is a standalone triangle with its face normal, as written to STL.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// MarchingCubes implements the marching cubes algorithm for isosurface
// extraction. Samples above the isovalue are inside; the produced
// surface winds so its right-hand normals point outward.
type MarchingCubes struct {
	data                 []float64
	width, height, depth int
	isoLevel             float64
	scale                [3]float64
	step                 int
}

// NewMarchingCubes creates an extractor over data indexed
// z*width*height + y*width + x.
func NewMarchingCubes(data []float64, width, height, depth int, isoLevel float64) *MarchingCubes {
	return &MarchingCubes{
		data:     data,
		width:    width,
		height:   height,
		depth:    depth,
		isoLevel: isoLevel,
		scale:    [3]float64{1, 1, 1},
		step:     1,
	}
}

// SetScale sets the physical size of one voxel along x, y and z.
func (mc *MarchingCubes) SetScale(xScale, yScale, zScale float32) {
	mc.scale = [3]float64{float64(xScale), float64(yScale), float64(zScale)}
}

// SetStep samples every step-th voxel along each axis. Larger steps are
// faster and coarser. Values below 1 are treated as 1.
func (mc *MarchingCubes) SetStep(step int) {
	if step < 1 {
		step = 1
	}
	mc.step = step
}

// grid is the subsampled field padded with one background sample on
// every side so surfaces touching the volume border close.
type grid struct {
	values     []float64
	nx, ny, nz int
	background float64
}

func (g *grid) index(x, y, z int) int {
	return (z*g.ny+y)*g.nx + x
}

func (g *grid) at(x, y, z int) float64 {
	if x < 0 || y < 0 || z < 0 || x >= g.nx || y >= g.ny || z >= g.nz {
		return g.background
	}
	return g.values[g.index(x, y, z)]
}

func (mc *MarchingCubes) sample() *grid {
	s := mc.step
	sx := (mc.width + s - 1) / s
	sy := (mc.height + s - 1) / s
	sz := (mc.depth + s - 1) / s

	// padding must read as outside
	background := 0.0
	if mc.isoLevel <= 0 {
		background = mc.isoLevel - 1
	}

	g := &grid{nx: sx + 2, ny: sy + 2, nz: sz + 2, background: background}
	g.values = make([]float64, g.nx*g.ny*g.nz)
	for i := range g.values {
		g.values[i] = background
	}
	for z := 0; z < sz; z++ {
		for y := 0; y < sy; y++ {
			for x := 0; x < sx; x++ {
				v := mc.data[(z*s)*mc.width*mc.height+(y*s)*mc.width+x*s]
				g.values[g.index(x+1, y+1, z+1)] = v
			}
		}
	}
	return g
}

// gradient returns the central-difference gradient at a grid sample in
// physical units.
func (mc *MarchingCubes) gradient(g *grid, x, y, z int) r3.Vec {
	s := float64(mc.step)
	return r3.Vec{
		X: (g.at(x+1, y, z) - g.at(x-1, y, z)) / (2 * s * mc.scale[0]),
		Y: (g.at(x, y+1, z) - g.at(x, y-1, z)) / (2 * s * mc.scale[1]),
		Z: (g.at(x, y, z+1) - g.at(x, y, z-1)) / (2 * s * mc.scale[2]),
	}
}

// Extract runs marching cubes and returns an indexed mesh with shared
// vertices and per-vertex normals. Zero-area triangles are dropped.
func (mc *MarchingCubes) Extract() *mesh.Mesh {
	g := mc.sample()
	out := &mesh.Mesh{}
	cache := make(map[int]int)
	s := float64(mc.step)

	// vertexOn returns the shared vertex on the grid edge starting at
	// sample (x, y, z) along axis.
	vertexOn := func(x, y, z, axis int) int {
		key := g.index(x, y, z)*3 + axis
		if v, ok := cache[key]; ok {
			return v
		}
		x2, y2, z2 := x, y, z
		switch axis {
		case 0:
			x2++
		case 1:
			y2++
		default:
			z2++
		}
		v1, v2 := g.at(x, y, z), g.at(x2, y2, z2)
		t := 0.5
		if v2 != v1 {
			t = (mc.isoLevel - v1) / (v2 - v1)
		}
		p1 := r3.Vec{X: float64(x - 1), Y: float64(y - 1), Z: float64(z - 1)}
		p2 := r3.Vec{X: float64(x2 - 1), Y: float64(y2 - 1), Z: float64(z2 - 1)}
		p := r3.Add(p1, r3.Scale(t, r3.Sub(p2, p1)))
		pos := r3.Vec{X: p.X * s * mc.scale[0], Y: p.Y * s * mc.scale[1], Z: p.Z * s * mc.scale[2]}

		grad := r3.Add(mc.gradient(g, x, y, z), r3.Scale(t, r3.Sub(mc.gradient(g, x2, y2, z2), mc.gradient(g, x, y, z))))
		normal := r3.Vec{}
		if l := r3.Norm(grad); l > 0 {
			normal = r3.Scale(-1/l, grad)
		}

		idx := len(out.Vertices)
		out.Vertices = append(out.Vertices, pos)
		out.Normals = append(out.Normals, normal)
		cache[key] = idx
		return idx
	}

	for z := 0; z < g.nz-1; z++ {
		for y := 0; y < g.ny-1; y++ {
			for x := 0; x < g.nx-1; x++ {
				cubeIndex := 0
				for c := 0; c < 8; c++ {
					dx, dy, dz := cornerOffset(c)
					if g.at(x+dx, y+dy, z+dz) > mc.isoLevel {
						cubeIndex |= 1 << uint(c)
					}
				}
				if cubeIndex == 0 || cubeIndex == 255 {
					continue
				}

				for _, tri := range triTable[cubeIndex] {
					var face [3]int
					for k, e := range tri {
						dx, dy, dz := cornerOffset(cubeEdges[e][0])
						face[k] = vertexOn(x+dx, y+dy, z+dz, edgeAxis[e])
					}
					a, b, c := out.Vertices[face[0]], out.Vertices[face[1]], out.Vertices[face[2]]
					if mesh.TriangleArea(a, b, c) == 0 {
						continue
					}
					out.Faces = append(out.Faces, face)
				}
			}
		}
	}

	return out
}

// GenerateTriangles runs marching cubes and returns standalone triangles
// with unit face normals.
func (mc *MarchingCubes) GenerateTriangles() []Triangle {
	m := mc.Extract()
	triangles := make([]Triangle, len(m.Faces))
	for i := range m.Faces {
		a, b, c := m.Triangle(i)
		triangles[i] = Triangle{
			Normal:  vec32(m.FaceNormal(i)),
			Vertex1: vec32(a),
			Vertex2: vec32(b),
			Vertex3: vec32(c),
		}
	}
	return triangles
}

func cornerOffset(c int) (int, int, int) {
	return c & 1, (c >> 1) & 1, (c >> 2) & 1
}

func vec32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
