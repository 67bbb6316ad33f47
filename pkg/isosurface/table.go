package isosurface

import "fmt"

// Corner i of a cell sits at offset (i&1, (i>>1)&1, (i>>2)&1).

// cubeEdges lists the 12 cell edges as (corner, corner) pairs; the second
// corner differs from the first in exactly one axis bit.
var cubeEdges [12][2]int

// edgeAxis is the axis (0=x, 1=y, 2=z) each edge runs along.
var edgeAxis [12]int

// cubeFaces lists each face's corners counter-clockwise seen from outside.
var cubeFaces = [6][4]int{
	{0, 2, 3, 1}, // z = 0
	{4, 5, 7, 6}, // z = 1
	{0, 1, 5, 4}, // y = 0
	{2, 6, 7, 3}, // y = 1
	{0, 4, 6, 2}, // x = 0
	{1, 3, 7, 5}, // x = 1
}

// edgeFaces is, per edge, a bitmask of the two cube faces it lies on.
var edgeFaces [12]uint8

// triTable maps a corner occupancy bitmask to triangles given as edge
// index triples. Winding puts the inside (corner value above the
// isovalue) behind the right-hand normal.
var triTable [256][][3]int

func init() {
	edgeIndex := map[[2]int]int{}
	n := 0
	for c := 0; c < 8; c++ {
		for axis, bit := range []int{1, 2, 4} {
			if c&bit == 0 {
				cubeEdges[n] = [2]int{c, c | bit}
				edgeAxis[n] = axis
				edgeIndex[[2]int{c, c | bit}] = n
				edgeIndex[[2]int{c | bit, c}] = n
				n++
			}
		}
	}

	for f, face := range cubeFaces {
		for k := 0; k < 4; k++ {
			edgeFaces[edgeIndex[[2]int{face[k], face[(k+1)%4]}]] |= 1 << uint(f)
		}
	}

	for mask := 0; mask < 256; mask++ {
		triTable[mask] = triangulate(mask, edgeIndex)
	}
}

// triangulate builds the triangles for one occupancy case. Every face
// contributes directed segments between the edges where the surface
// crosses it; walking a face counter-clockwise from outside, each segment
// runs from an outside-to-inside crossing to the next inside-to-outside
// crossing, which keeps diagonally opposite inside corners apart. Each
// crossed edge ends one segment and starts another, so segments chain into
// closed loops which are then fanned into triangles.
func triangulate(mask int, edgeIndex map[[2]int]int) [][3]int {
	inside := func(c int) bool { return mask&(1<<uint(c)) != 0 }

	next := map[int]int{}
	for _, face := range cubeFaces {
		type crossing struct {
			edge  int
			entry bool
		}
		var crossings []crossing
		for k := 0; k < 4; k++ {
			a, b := face[k], face[(k+1)%4]
			if inside(a) != inside(b) {
				crossings = append(crossings, crossing{edge: edgeIndex[[2]int{a, b}], entry: inside(b)})
			}
		}
		for k, c := range crossings {
			if c.entry {
				exit := crossings[(k+1)%len(crossings)]
				next[c.edge] = exit.edge
			}
		}
	}

	var tris [][3]int
	visited := map[int]bool{}
	for e := 0; e < 12; e++ {
		if _, ok := next[e]; !ok || visited[e] {
			continue
		}
		var loop []int
		for cur := e; !visited[cur]; cur = next[cur] {
			visited[cur] = true
			loop = append(loop, cur)
		}
		tris = append(tris, fanLoop(mask, loop)...)
	}
	return tris
}

// fanLoop triangulates a loop from a crossing whose diagonals all pass
// through the cell interior. A diagonal between two crossings on the same
// cube face would also be an edge of the neighbouring cell.
func fanLoop(mask int, loop []int) [][3]int {
	n := len(loop)
	for o := 0; o < n; o++ {
		interior := true
		for i := 2; i < n-1; i++ {
			if edgeFaces[loop[o]]&edgeFaces[loop[(o+i)%n]] != 0 {
				interior = false
				break
			}
		}
		if !interior {
			continue
		}
		tris := make([][3]int, 0, n-2)
		for i := 1; i+1 < n; i++ {
			tris = append(tris, [3]int{loop[o], loop[(o+i)%n], loop[(o+i+1)%n]})
		}
		return tris
	}
	panic(fmt.Sprintf("isosurface: no interior fan for case %d loop %v", mask, loop))
}
