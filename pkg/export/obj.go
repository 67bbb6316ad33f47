package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"scanmesh/pkg/mesh"
)

// WriteOBJ writes m as Wavefront OBJ with 1-based face indices.
func WriteOBJ(w io.Writer, m *mesh.Mesh) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# scanmesh OBJ export\n# vertices: %d\n# faces: %d\n", len(m.Vertices), len(m.Faces))
	for _, v := range m.Vertices {
		fmt.Fprintf(bw, "v %g %g %g\n", v.X, v.Y, v.Z)
	}
	for _, f := range m.Faces {
		fmt.Fprintf(bw, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1)
	}
	return bw.Flush()
}

// ReadOBJ parses vertex and face records from an OBJ stream. Polygons are
// fanned into triangles; texture and normal references are ignored.
func ReadOBJ(r io.Reader) (*mesh.Mesh, error) {
	m := &mesh.Mesh{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, errors.Errorf("obj line %d: vertex needs 3 coordinates", line)
			}
			var c [3]float64
			for k := range c {
				f, err := strconv.ParseFloat(fields[k+1], 64)
				if err != nil {
					return nil, errors.Wrapf(err, "obj line %d", line)
				}
				c[k] = f
			}
			m.Vertices = append(m.Vertices, r3.Vec{X: c[0], Y: c[1], Z: c[2]})
		case "f":
			if len(fields) < 4 {
				return nil, errors.Errorf("obj line %d: face needs 3 vertices", line)
			}
			idx := make([]int, 0, len(fields)-1)
			for _, tok := range fields[1:] {
				ref := strings.SplitN(tok, "/", 2)[0]
				i, err := strconv.Atoi(ref)
				if err != nil {
					return nil, errors.Wrapf(err, "obj line %d", line)
				}
				if i < 0 {
					i = len(m.Vertices) + i
				} else {
					i--
				}
				if i < 0 || i >= len(m.Vertices) {
					return nil, errors.Errorf("obj line %d: vertex index %s out of range", line, ref)
				}
				idx = append(idx, i)
			}
			for k := 1; k+1 < len(idx); k++ {
				m.Faces = append(m.Faces, [3]int{idx[0], idx[k], idx[k+1]})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read obj")
	}
	return m, nil
}
