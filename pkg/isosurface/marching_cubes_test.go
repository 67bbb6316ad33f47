package isosurface

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"scanmesh/internal/errs"
	"scanmesh/internal/models"
	"scanmesh/pkg/mesh"
)

// sphereField returns a size^3 binary field with a ball of the given radius.
func sphereField(size int, center r3.Vec, radius float64) []float64 {
	data := make([]float64, size*size*size)
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				p := r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}
				if r3.Norm(r3.Sub(p, center)) < radius {
					data[z*size*size+y*size+x] = 1.0
				}
			}
		}
	}
	return data
}

func sphereMask(size int, center r3.Vec, radius float64) *models.Mask {
	field := sphereField(size, center, radius)
	m := &models.Mask{
		Data:    make([]uint8, len(field)),
		Width:   size,
		Height:  size,
		Depth:   size,
		Spacing: models.Isotropic(),
	}
	for i, v := range field {
		m.Data[i] = uint8(v)
	}
	return m
}

// TestMarchingCubes verifies the marching cubes implementation with a simple sphere
func TestMarchingCubes(t *testing.T) {
	size := 20
	center := float64(size) / 2.0
	data := sphereField(size, r3.Vec{X: center, Y: center, Z: center}, float64(size)/4.0)

	mc := NewMarchingCubes(data, size, size, size, 0.5)
	triangles := mc.GenerateTriangles()

	// A sphere with this resolution should have at least 100 triangles
	if len(triangles) < 100 {
		t.Errorf("Expected at least 100 triangles for sphere, got %d", len(triangles))
	}

	// Normals should point away from the center
	for i, triangle := range triangles {
		var c r3.Vec
		for _, p := range [][3]float32{triangle.Vertex1, triangle.Vertex2, triangle.Vertex3} {
			c = r3.Add(c, r3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])})
		}
		c = r3.Unit(r3.Sub(r3.Scale(1.0/3, c), r3.Vec{X: center, Y: center, Z: center}))
		n := r3.Vec{X: float64(triangle.Normal[0]), Y: float64(triangle.Normal[1]), Z: float64(triangle.Normal[2])}
		if dot := r3.Dot(c, n); dot < -0.5 {
			t.Fatalf("Triangle %d normal points inward, dot product: %f", i, dot)
		}
	}
}

// TestSetScale verifies that voxel spacing scales the output coordinates
func TestSetScale(t *testing.T) {
	data := []float64{
		1, 0,
		0, 0,

		0, 0,
		0, 0,
	}

	mc := NewMarchingCubes(data, 2, 2, 2, 0.5)
	mc.SetScale(2.5, 1.5, 3.0)
	m := mc.Extract()

	if len(m.Faces) == 0 {
		t.Fatal("No triangles generated")
	}

	// the single voxel is wrapped by a surface half a voxel out on each axis
	var maxAbs r3.Vec
	for _, v := range m.Vertices {
		maxAbs.X = math.Max(maxAbs.X, math.Abs(v.X))
		maxAbs.Y = math.Max(maxAbs.Y, math.Abs(v.Y))
		maxAbs.Z = math.Max(maxAbs.Z, math.Abs(v.Z))
	}
	want := r3.Vec{X: 1.25, Y: 0.75, Z: 1.5}
	if r3.Norm(r3.Sub(maxAbs, want)) > 1e-9 {
		t.Errorf("Expected extent %v, got %v", want, maxAbs)
	}

	unscaled := NewMarchingCubes(data, 2, 2, 2, 0.5).Extract()
	if unscaled.Vertices[0] == m.Vertices[0] {
		t.Error("Scaling had no effect on vertices")
	}
}

// TestTriangleInterpolation verifies the vertex interpolation for marching cubes
func TestTriangleInterpolation(t *testing.T) {
	data := []float64{
		1, 0,
		0, 0,

		0, 0,
		0, 0,
	}
	triangles := NewMarchingCubes(data, 2, 2, 2, 0.5).GenerateTriangles()
	if len(triangles) == 0 {
		t.Fatal("No triangles generated, cannot test interpolation")
	}

	for _, tri := range triangles {
		for _, v := range [][3]float32{tri.Vertex1, tri.Vertex2, tri.Vertex3} {
			interpolated := 0
			for _, c := range v {
				if !isIntegerCoordinate(c) {
					interpolated++
				}
			}
			// edge vertices lie halfway along exactly one axis
			if interpolated != 1 {
				t.Fatalf("Vertex %v should be interpolated along exactly one axis", v)
			}
		}
		if tri.Normal == ([3]float32{}) {
			t.Error("Triangle normal is zero")
		}
	}
}

func TestSetStepCoarsens(t *testing.T) {
	size := 32
	c := r3.Vec{X: 15.5, Y: 15.5, Z: 15.5}
	data := sphereField(size, c, 10)

	fine := NewMarchingCubes(data, size, size, size, 0.5).Extract()

	mc := NewMarchingCubes(data, size, size, size, 0.5)
	mc.SetStep(2)
	coarse := mc.Extract()

	if len(coarse.Faces) == 0 || len(coarse.Faces) >= len(fine.Faces) {
		t.Fatalf("Expected step 2 to produce fewer faces: %d vs %d", len(coarse.Faces), len(fine.Faces))
	}

	fineStats, coarseStats := mesh.ComputeStats(fine), mesh.ComputeStats(coarse)
	if math.Abs(fineStats.Diagonal-coarseStats.Diagonal)/fineStats.Diagonal > 0.15 {
		t.Errorf("Step should keep physical size: diagonal %f vs %f", fineStats.Diagonal, coarseStats.Diagonal)
	}
}

func TestTableUsesOnlyCrossingEdges(t *testing.T) {
	for mask := 0; mask < 256; mask++ {
		crossing := map[int]bool{}
		for e, pair := range cubeEdges {
			in0 := mask&(1<<uint(pair[0])) != 0
			in1 := mask&(1<<uint(pair[1])) != 0
			if in0 != in1 {
				crossing[e] = true
			}
		}

		used := map[int]bool{}
		for _, tri := range triTable[mask] {
			for _, e := range tri {
				if !crossing[e] {
					t.Fatalf("case %d uses non-crossing edge %d", mask, e)
				}
				used[e] = true
			}
		}
		if len(used) != len(crossing) {
			t.Errorf("case %d: %d crossing edges but %d used", mask, len(crossing), len(used))
		}
	}
}

// TestTableEdgesAreManifold checks every case on its own: segments on a
// cube face are used once, since the neighbouring cell supplies the other
// side, and edges through the cell interior are used twice.
func TestTableEdgesAreManifold(t *testing.T) {
	for mask := 1; mask < 255; mask++ {
		uses := map[[2]int]int{}
		for _, tri := range triTable[mask] {
			for k := 0; k < 3; k++ {
				a, b := tri[k], tri[(k+1)%3]
				if a > b {
					a, b = b, a
				}
				uses[[2]int{a, b}]++
			}
		}
		for e, n := range uses {
			onFace := edgeFaces[e[0]]&edgeFaces[e[1]] != 0
			if onFace && n != 1 {
				t.Errorf("case %d: face segment %v used %d times", mask, e, n)
			}
			if !onFace && n != 2 {
				t.Errorf("case %d: interior edge %v used %d times", mask, e, n)
			}
		}
	}
}

// edgeUses returns how many edges border each number of faces.
func edgeUses(m *mesh.Mesh) map[int]int {
	counts := map[[2]int]int{}
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			a, b := f[k], f[(k+1)%3]
			if a > b {
				a, b = b, a
			}
			counts[[2]int{a, b}]++
		}
	}
	hist := map[int]int{}
	for _, n := range counts {
		hist[n]++
	}
	return hist
}

func TestExtractRandomMasksAreManifold(t *testing.T) {
	n := 16
	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		m := &models.Mask{Data: make([]uint8, n*n*n), Width: n, Height: n, Depth: n, Spacing: models.Isotropic()}
		for i := range m.Data {
			if rng.Intn(2) == 1 {
				m.Data[i] = 1
			}
		}

		for _, opts := range []Options{{Sigma: 0.5, Step: 1}, {Sigma: 0.5, Step: 2}, {Sigma: 0, Step: 1}} {
			out, err := Extract(m, opts)
			if err != nil {
				t.Fatalf("seed %d %+v: Extract failed: %v", seed, opts, err)
			}
			if hist := edgeUses(out); len(hist) != 1 || hist[2] == 0 {
				t.Errorf("seed %d %+v: expected every edge on two faces, got %v", seed, opts, hist)
			}
		}
	}
}

func TestExtractSphereIsClosed(t *testing.T) {
	m := sphereMask(32, r3.Vec{X: 15.3, Y: 15.7, Z: 16.1}, 9)
	out, err := Extract(m, Options{Sigma: 0.5, Step: 1})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	stats := mesh.ComputeStats(out)
	if !stats.Closed {
		t.Error("Expected a closed surface")
	}
	if stats.Components != 1 {
		t.Errorf("Expected a single component, got %d", stats.Components)
	}
	want := 4.0 / 3.0 * math.Pi * 9 * 9 * 9
	if math.Abs(stats.Volume-want)/want > 0.1 {
		t.Errorf("Expected volume near %f, got %f", want, stats.Volume)
	}
	if len(out.Normals) != len(out.Vertices) {
		t.Errorf("Expected one normal per vertex")
	}
}

func TestExtractCubeArea(t *testing.T) {
	n := 64
	m := &models.Mask{Data: make([]uint8, n*n*n), Width: n, Height: n, Depth: n, Spacing: models.Isotropic()}
	for z := 16; z < 48; z++ {
		for y := 16; y < 48; y++ {
			for x := 16; x < 48; x++ {
				m.Data[m.Index(x, y, z)] = 1
			}
		}
	}

	out, err := Extract(m, Options{Sigma: 0.5, Step: 1})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	area := mesh.ComputeStats(out).SurfaceArea
	want := 6.0 * 32 * 32
	if math.Abs(area-want)/want > 0.05 {
		t.Errorf("Expected surface area within 5%% of %f, got %f", want, area)
	}
}

func TestExtractTouchingBorderIsClosed(t *testing.T) {
	n := 8
	m := &models.Mask{Data: make([]uint8, n*n*n), Width: n, Height: n, Depth: n, Spacing: models.Spacing{Z: 2, Y: 1, X: 1}}
	for i := range m.Data {
		m.Data[i] = 1
	}

	out, err := Extract(m, Options{Step: 1})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	stats := mesh.ComputeStats(out)
	if !stats.Closed {
		t.Error("A mask filling the whole volume should still produce a closed surface")
	}
	if stats.Max.Z <= stats.Max.X {
		t.Errorf("Expected z spacing to stretch the surface, got max %v", stats.Max)
	}
}

func TestExtractErrors(t *testing.T) {
	if _, err := Extract(nil, DefaultOptions()); !errs.Is(err, errs.ErrNotSegmented) {
		t.Errorf("Expected ErrNotSegmented, got %v", err)
	}

	empty := &models.Mask{Data: make([]uint8, 27), Width: 3, Height: 3, Depth: 3}
	if _, err := Extract(empty, DefaultOptions()); !errs.Is(err, errs.ErrNoDataFound) {
		t.Errorf("Expected ErrNoDataFound for empty mask, got %v", err)
	}
}

// isIntegerCoordinate checks if a coordinate is very close to an integer value
func isIntegerCoordinate(coord float32) bool {
	return math.Abs(float64(coord)-math.Round(float64(coord))) < 0.001
}

// BenchmarkMarchingCubes benchmarks the marching cubes algorithm
func BenchmarkMarchingCubes(b *testing.B) {
	size := 16
	data := sphereField(size, r3.Vec{X: 8, Y: 8, Z: 8}, 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mc := NewMarchingCubes(data, size, size, size, 0.5)
		mc.GenerateTriangles()
	}
}
