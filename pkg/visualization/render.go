package visualization

import (
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/gogpu/gg"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/spatial/r3"

	"scanmesh/internal/errs"
	"scanmesh/pkg/mesh"
)

// view rotation: yaw around y, then pitch around x.
const (
	viewYaw   = math.Pi / 6
	viewPitch = -math.Pi / 8
	margin    = 0.08
)

type projected struct {
	pts   [3]r3.Vec
	depth float64
	shade float64
}

func rotate(p r3.Vec) r3.Vec {
	sy, cy := math.Sincos(viewYaw)
	p = r3.Vec{X: cy*p.X + sy*p.Z, Y: p.Y, Z: -sy*p.X + cy*p.Z}
	sp, cp := math.Sincos(viewPitch)
	return r3.Vec{X: p.X, Y: cp*p.Y - sp*p.Z, Z: sp*p.Y + cp*p.Z}
}

// RenderMesh draws an orthographic, Lambert-shaded snapshot of m into a
// width x height PNG at path. Back faces are culled and the rest painted
// far to near.
func RenderMesh(m *mesh.Mesh, width, height int, path string) error {
	if m == nil || len(m.Faces) == 0 {
		return errors.WithStack(errs.ErrNotExtracted)
	}

	verts := make([]r3.Vec, len(m.Vertices))
	lo := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for i, v := range m.Vertices {
		p := rotate(v)
		verts[i] = p
		lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}

	span := math.Max(hi.X-lo.X, hi.Y-lo.Y)
	if span <= 0 {
		span = 1
	}
	scale := (1 - 2*margin) * math.Min(float64(width), float64(height)) / span
	cx, cy := (lo.X+hi.X)/2, (lo.Y+hi.Y)/2

	// the viewer looks down -z
	light := r3.Unit(r3.Vec{X: -0.3, Y: 0.4, Z: 1})
	tris := make([]projected, 0, len(m.Faces))
	for _, f := range m.Faces {
		a, b, c := verts[f[0]], verts[f[1]], verts[f[2]]
		n := mesh.TriangleNormal(a, b, c)
		if n.Z <= 0 {
			continue
		}
		var t projected
		for k, p := range [3]r3.Vec{a, b, c} {
			// image y grows downward
			t.pts[k] = r3.Vec{
				X: float64(width)/2 + (p.X-cx)*scale,
				Y: float64(height)/2 - (p.Y-cy)*scale,
			}
		}
		t.depth = (a.Z + b.Z + c.Z) / 3
		t.shade = 0.15 + 0.85*math.Max(0, r3.Dot(n, light))
		tris = append(tris, t)
	}
	sort.Slice(tris, func(i, j int) bool { return tris[i].depth < tris[j].depth })

	dc := gg.NewContext(width, height)
	defer dc.Close()
	dc.ClearWithColor(gg.White)

	for _, t := range tris {
		dc.SetRGB(0.85*t.shade, 0.8*t.shade, 0.7*t.shade)
		dc.MoveTo(t.pts[0].X, t.pts[0].Y)
		dc.LineTo(t.pts[1].X, t.pts[1].Y)
		dc.LineTo(t.pts[2].X, t.pts[2].Y)
		dc.ClosePath()
		if err := dc.Fill(); err != nil {
			return errors.Wrap(err, "fill triangle")
		}
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errs.Wrap(errs.ErrIOFailure, err, "create snapshot directory")
		}
	}
	if err := dc.SavePNG(path); err != nil {
		return errs.Wrap(errs.ErrIOFailure, err, "save snapshot")
	}
	return nil
}
