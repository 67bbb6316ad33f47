package mesh

import (
	"container/heap"
	"math"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"scanmesh/internal/errs"
)

// quadric is a symmetric 4x4 error matrix stored as its upper triangle:
// aa ab ac ad bb bc bd cc cd dd.
type quadric [10]float64

func planeQuadric(n r3.Vec, d float64) quadric {
	a, b, c := n.X, n.Y, n.Z
	return quadric{a * a, a * b, a * c, a * d, b * b, b * c, b * d, c * c, c * d, d * d}
}

func (q quadric) add(o quadric) quadric {
	for i := range q {
		q[i] += o[i]
	}
	return q
}

// eval returns p^T Q p for the homogeneous point (p, 1).
func (q quadric) eval(p r3.Vec) float64 {
	x, y, z := p.X, p.Y, p.Z
	return q[0]*x*x + 2*q[1]*x*y + 2*q[2]*x*z + 2*q[3]*x +
		q[4]*y*y + 2*q[5]*y*z + 2*q[6]*y +
		q[7]*z*z + 2*q[8]*z +
		q[9]
}

// optimum solves the 3x3 system for the point of least error. ok is false
// when the system is singular or ill-conditioned.
func (q quadric) optimum() (r3.Vec, bool) {
	a := mat.NewDense(3, 3, []float64{
		q[0], q[1], q[2],
		q[1], q[4], q[5],
		q[2], q[5], q[7],
	})
	b := mat.NewVecDense(3, []float64{-q[3], -q[6], -q[8]})

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return r3.Vec{}, false
	}
	p := r3.Vec{X: x.AtVec(0), Y: x.AtVec(1), Z: x.AtVec(2)}
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) {
		return r3.Vec{}, false
	}
	return p, true
}

type candidate struct {
	a, b   int
	va, vb int
	cost   float64
	pos    r3.Vec
}

type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].cost < h[j].cost }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

type decimator struct {
	verts     []r3.Vec
	quadrics  []quadric
	version   []int
	vertLive  []bool
	vertFaces [][]int

	faces    [][3]int
	faceLive []bool
	live     int

	queue candidateHeap
}

// Decimate removes approximately ratio of the faces with Garland-Heckbert
// quadric edge collapses. It stops once the face count is at most
// original*(1-ratio) or no collapse is allowed. Collapses that would flip
// a face or make an edge non-manifold are skipped. ratio must be in [0,1);
// zero returns an unchanged copy.
func Decimate(m *Mesh, ratio float64) (*Mesh, error) {
	if m == nil {
		return nil, errors.WithStack(errs.ErrNotExtracted)
	}
	if ratio < 0 || ratio >= 1 {
		return nil, errors.Errorf("decimation ratio %g outside [0,1)", ratio)
	}
	if ratio == 0 || len(m.Faces) == 0 {
		return m.Clone(), nil
	}

	target := int(float64(len(m.Faces)) * (1 - ratio))
	d := newDecimator(m)
	d.run(target)

	out := d.result()
	log.Debugf("[Mesh] Decimated %d -> %d faces (target %d)", len(m.Faces), len(out.Faces), target)
	return out, nil
}

func newDecimator(m *Mesh) *decimator {
	n := len(m.Vertices)
	d := &decimator{
		verts:     make([]r3.Vec, n),
		quadrics:  make([]quadric, n),
		version:   make([]int, n),
		vertLive:  make([]bool, n),
		vertFaces: make([][]int, n),
		faces:     make([][3]int, len(m.Faces)),
		faceLive:  make([]bool, len(m.Faces)),
	}
	copy(d.verts, m.Vertices)
	copy(d.faces, m.Faces)

	for i, f := range d.faces {
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			continue
		}
		d.faceLive[i] = true
		d.live++
		for _, v := range f {
			d.vertFaces[v] = append(d.vertFaces[v], i)
			d.vertLive[v] = true
		}

		a, b, c := d.verts[f[0]], d.verts[f[1]], d.verts[f[2]]
		normal := TriangleNormal(a, b, c)
		if normal == (r3.Vec{}) {
			continue
		}
		q := planeQuadric(normal, -r3.Dot(normal, a))
		for _, v := range f {
			d.quadrics[v] = d.quadrics[v].add(q)
		}
	}

	seen := make(map[[2]int]bool)
	for i, f := range d.faces {
		if !d.faceLive[i] {
			continue
		}
		for k := 0; k < 3; k++ {
			e := edgeKey(f[k], f[(k+1)%3])
			if !seen[e] {
				seen[e] = true
				d.queue = append(d.queue, d.candidate(e[0], e[1]))
			}
		}
	}
	heap.Init(&d.queue)
	return d
}

func (d *decimator) candidate(a, b int) candidate {
	q := d.quadrics[a].add(d.quadrics[b])
	pa, pb := d.verts[a], d.verts[b]
	mid := r3.Scale(0.5, r3.Add(pa, pb))

	// reject optima far from the edge; near-planar neighbourhoods make
	// the system numerically unstable even when it solves
	if p, ok := q.optimum(); ok && r3.Norm(r3.Sub(p, mid)) <= 2*r3.Norm(r3.Sub(pa, pb)) {
		return candidate{a: a, b: b, va: d.version[a], vb: d.version[b], cost: q.eval(p), pos: p}
	}

	best, cost := pa, q.eval(pa)
	for _, p := range []r3.Vec{pb, mid} {
		if e := q.eval(p); e < cost {
			best, cost = p, e
		}
	}
	return candidate{a: a, b: b, va: d.version[a], vb: d.version[b], cost: cost, pos: best}
}

func (d *decimator) run(target int) {
	for d.live > target && d.queue.Len() > 0 {
		c := heap.Pop(&d.queue).(candidate)
		if !d.vertLive[c.a] || !d.vertLive[c.b] || d.version[c.a] != c.va || d.version[c.b] != c.vb {
			continue
		}
		shared, ok := d.collapsible(c)
		if !ok {
			continue
		}
		d.collapse(c, shared)
	}
}

// liveFaces drops dead faces from v's incidence list and returns it.
func (d *decimator) liveFaces(v int) []int {
	fs := d.vertFaces[v][:0]
	for _, f := range d.vertFaces[v] {
		if d.faceLive[f] {
			fs = append(fs, f)
		}
	}
	d.vertFaces[v] = fs
	return fs
}

// ring returns the live neighbours of v and how many faces each edge
// (v, n) borders.
func (d *decimator) ring(v int) map[int]int {
	r := make(map[int]int)
	for _, f := range d.liveFaces(v) {
		for _, u := range d.faces[f] {
			if u != v {
				r[u]++
			}
		}
	}
	return r
}

func isBoundary(ring map[int]int) bool {
	for _, n := range ring {
		if n == 1 {
			return true
		}
	}
	return false
}

// collapsible checks the link condition, the boundary and valence guards
// and the normal flip test. It returns the faces shared by the edge.
func (d *decimator) collapsible(c candidate) ([]int, bool) {
	ringA, ringB := d.ring(c.a), d.ring(c.b)

	var shared []int
	for _, f := range d.vertFaces[c.a] {
		fc := d.faces[f]
		if fc[0] == c.b || fc[1] == c.b || fc[2] == c.b {
			shared = append(shared, f)
		}
	}
	if len(shared) == 0 || len(shared) > 2 {
		return nil, false
	}

	// link condition: the only common neighbours are the opposite corners
	common := 0
	union := len(ringA)
	for u := range ringB {
		if u == c.a {
			continue
		}
		if _, ok := ringA[u]; ok {
			common++
		} else {
			union++
		}
	}
	if common != len(shared) {
		return nil, false
	}
	// union still counts b itself
	if union-1 < 3 {
		return nil, false
	}
	if len(shared) == 2 && isBoundary(ringA) && isBoundary(ringB) {
		return nil, false
	}

	for _, v := range []int{c.a, c.b} {
		for _, f := range d.vertFaces[v] {
			if !d.faceLive[f] || containsFace(shared, f) {
				continue
			}
			fc := d.faces[f]
			before := TriangleNormal(d.verts[fc[0]], d.verts[fc[1]], d.verts[fc[2]])
			var moved [3]r3.Vec
			for k, u := range fc {
				if u == c.a || u == c.b {
					moved[k] = c.pos
				} else {
					moved[k] = d.verts[u]
				}
			}
			after := TriangleNormal(moved[0], moved[1], moved[2])
			if after == (r3.Vec{}) {
				return nil, false
			}
			if before != (r3.Vec{}) && r3.Dot(before, after) <= 0 {
				return nil, false
			}
		}
	}
	return shared, true
}

func containsFace(fs []int, f int) bool {
	for _, x := range fs {
		if x == f {
			return true
		}
	}
	return false
}

// collapse merges b into a at the candidate position.
func (d *decimator) collapse(c candidate, shared []int) {
	a, b := c.a, c.b
	for _, f := range shared {
		d.faceLive[f] = false
		d.live--
	}

	faces := d.liveFaces(a)
	for _, f := range d.liveFaces(b) {
		for k, u := range d.faces[f] {
			if u == b {
				d.faces[f][k] = a
			}
		}
		faces = append(faces, f)
	}
	d.vertFaces[a] = faces
	d.vertFaces[b] = nil
	d.vertLive[b] = false

	d.verts[a] = c.pos
	d.quadrics[a] = d.quadrics[a].add(d.quadrics[b])
	d.version[a]++

	for u := range d.ring(a) {
		heap.Push(&d.queue, d.candidate(a, u))
	}
}

func (d *decimator) result() *Mesh {
	faces := make([][3]int, 0, d.live)
	for i, f := range d.faces {
		if d.faceLive[i] {
			faces = append(faces, f)
		}
	}
	return compact(d.verts, faces)
}
