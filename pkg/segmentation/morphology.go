package segmentation

import (
	"scanmesh/internal/models"
)

// faceNeighbours is the 6-connected cross structuring element.
var faceNeighbours = [][3]int{
	{-1, 0, 0}, {1, 0, 0},
	{0, -1, 0}, {0, 1, 0},
	{0, 0, -1}, {0, 0, 1},
}

// allNeighbours is the full 26-connected neighbourhood.
var allNeighbours = func() [][3]int {
	var n [][3]int
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dx != 0 || dy != 0 || dz != 0 {
					n = append(n, [3]int{dx, dy, dz})
				}
			}
		}
	}
	return n
}()

// Erode keeps a voxel only when it and all of its face neighbours are set.
// Voxels outside the grid count as background.
func Erode(m *models.Mask) *models.Mask {
	out := m.Clone()
	for z := 0; z < m.Depth; z++ {
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				i := m.Index(x, y, z)
				if m.Data[i] == 0 {
					continue
				}
				for _, d := range faceNeighbours {
					nx, ny, nz := x+d[0], y+d[1], z+d[2]
					if !inBounds(m, nx, ny, nz) || m.Data[m.Index(nx, ny, nz)] == 0 {
						out.Data[i] = 0
						break
					}
				}
			}
		}
	}
	return out
}

// Dilate sets every voxel that is set or has a set face neighbour.
func Dilate(m *models.Mask) *models.Mask {
	out := m.Clone()
	for z := 0; z < m.Depth; z++ {
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				if m.Data[m.Index(x, y, z)] == 0 {
					continue
				}
				for _, d := range faceNeighbours {
					nx, ny, nz := x+d[0], y+d[1], z+d[2]
					if inBounds(m, nx, ny, nz) {
						out.Data[m.Index(nx, ny, nz)] = 1
					}
				}
			}
		}
	}
	return out
}

// Open is erosion followed by dilation. It removes thin protrusions and specks.
func Open(m *models.Mask) *models.Mask {
	return Dilate(Erode(m))
}

// Close is dilation followed by erosion. It fills pinholes and narrow gaps.
func Close(m *models.Mask) *models.Mask {
	return Erode(Dilate(m))
}

func inBounds(m *models.Mask, x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < m.Width && y < m.Height && z < m.Depth
}
