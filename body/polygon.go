package body

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// boundaryTolerance widens the point-in-polygon test so that probes landing on an
// edge count as inside regardless of winding.
const boundaryTolerance = 0.001

// normalProbe is how far past an edge midpoint the outside test is sampled.
const normalProbe = 1.0

// EnclosedArea returns the absolute shoelace area of the ring traversed in order.
// The result is only meaningful for simple (non self-intersecting) rings.
func EnclosedArea(positions []r2.Vec) float64 {
	n := len(positions)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		p0 := positions[i]
		p1 := positions[(i+1)%n]
		sum += p0.X*p1.Y - p1.X*p0.Y
	}
	return 0.5 * math.Abs(sum)
}

// RegularPolygonArea returns the area of a regular n-gon with circumradius r.
func RegularPolygonArea(n int, r float64) float64 {
	fn := float64(n)
	return 0.5 * fn * r * r * math.Sin(2*math.Pi/fn)
}

// CenterOfMass returns the arithmetic mean of the positions (all masses are equal).
func CenterOfMass(positions []r2.Vec) r2.Vec {
	var c r2.Vec
	if len(positions) == 0 {
		return c
	}
	for _, p := range positions {
		c = r2.Add(c, p)
	}
	return r2.Scale(1/float64(len(positions)), c)
}

// Polygon is a closed ring prepared for repeated containment queries.
// Build it once per tick and reuse it for every edge.
type Polygon struct {
	verts    []r2.Vec
	min, max r2.Vec
}

// NewPolygon wraps verts (not copied) and precomputes its bounding box.
func NewPolygon(verts []r2.Vec) *Polygon {
	p := &Polygon{}
	p.Reset(verts)
	return p
}

// Reset points the polygon at a new ring, reusing the receiver.
func (p *Polygon) Reset(verts []r2.Vec) {
	p.verts = verts
	p.min = r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	p.max = r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, v := range verts {
		p.min.X = math.Min(p.min.X, v.X)
		p.min.Y = math.Min(p.min.Y, v.Y)
		p.max.X = math.Max(p.max.X, v.X)
		p.max.Y = math.Max(p.max.Y, v.Y)
	}
}

// Contains reports whether pt lies inside the polygon or within tol of its boundary.
func (p *Polygon) Contains(pt r2.Vec, tol float64) bool {
	if pt.X < p.min.X-tol || pt.X > p.max.X+tol || pt.Y < p.min.Y-tol || pt.Y > p.max.Y+tol {
		return false
	}

	n := len(p.verts)
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := p.verts[i], p.verts[j]
		if segmentDistance(pt, a, b) <= tol {
			return true
		}
		// Even-odd crossing test
		if (a.Y > pt.Y) != (b.Y > pt.Y) {
			x := a.X + (pt.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
			if pt.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// OutwardNormal returns the unit normal of edge a→b that points out of poly.
// A degenerate (zero length) edge has no normal and yields the zero vector.
func OutwardNormal(a, b r2.Vec, poly *Polygon) r2.Vec {
	edge := r2.Sub(b, a)
	if r2.Norm(edge) == 0 {
		return r2.Vec{}
	}
	left := r2.Unit(r2.Vec{X: -edge.Y, Y: edge.X})
	mid := r2.Scale(0.5, r2.Add(a, b))
	probe := r2.Add(mid, r2.Scale(normalProbe, left))
	if poly.Contains(probe, boundaryTolerance) {
		return r2.Scale(-1, left)
	}
	return left
}

// segmentDistance returns the distance from p to segment ab.
func segmentDistance(p, a, b r2.Vec) float64 {
	ab := r2.Sub(b, a)
	l2 := r2.Dot(ab, ab)
	if l2 == 0 {
		return r2.Norm(r2.Sub(p, a))
	}
	t := r2.Dot(r2.Sub(p, a), ab) / l2
	t = math.Max(0, math.Min(1, t))
	closest := r2.Add(a, r2.Scale(t, ab))
	return r2.Norm(r2.Sub(p, closest))
}
