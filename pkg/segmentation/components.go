package segmentation

import (
	"scanmesh/internal/models"
)

// Label assigns a component id (1..n) to every foreground voxel using
// either 6 or 26 connectivity. Background voxels get 0. The returned
// sizes slice is indexed by id; sizes[0] is unused.
func Label(m *models.Mask, connectivity int) ([]int32, []int) {
	offsets := faceNeighbours
	if connectivity == 26 {
		offsets = allNeighbours
	}

	labels := make([]int32, len(m.Data))
	sizes := []int{0}
	queue := make([]int, 0, 1024)
	plane := m.Width * m.Height

	for start, v := range m.Data {
		if v == 0 || labels[start] != 0 {
			continue
		}
		id := int32(len(sizes))
		labels[start] = id
		size := 0
		queue = append(queue[:0], start)

		for len(queue) > 0 {
			i := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			size++

			z := i / plane
			y := (i % plane) / m.Width
			x := i % m.Width
			for _, d := range offsets {
				nx, ny, nz := x+d[0], y+d[1], z+d[2]
				if !inBounds(m, nx, ny, nz) {
					continue
				}
				j := m.Index(nx, ny, nz)
				if m.Data[j] != 0 && labels[j] == 0 {
					labels[j] = id
					queue = append(queue, j)
				}
			}
		}
		sizes = append(sizes, size)
	}
	return labels, sizes
}

// RemoveSmallComponents clears 6-connected components with fewer than
// minSize voxels.
func RemoveSmallComponents(m *models.Mask, minSize int) *models.Mask {
	out := m.Clone()
	if minSize <= 1 {
		return out
	}
	labels, sizes := Label(m, 6)
	for i, id := range labels {
		if id != 0 && sizes[id] < minSize {
			out.Data[i] = 0
		}
	}
	return out
}

// Cleanup applies opening then closing with the 6-neighbour cross and then
// drops components smaller than minSize.
func Cleanup(m *models.Mask, minSize int) *models.Mask {
	return RemoveSmallComponents(Close(Open(m)), minSize)
}
