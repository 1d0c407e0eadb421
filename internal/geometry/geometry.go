// Package geometry provides the stateless hit tests used to match tracked
// positions against calibrated zones.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Rect is an axis-aligned rectangle in pixel coordinates.
type Rect struct {
	Min r2.Vec `json:"min"`
	Max r2.Vec `json:"max"`
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Center returns the midpoint of the rectangle.
func (r Rect) Center() r2.Vec {
	return r2.Scale(0.5, r2.Add(r.Min, r.Max))
}

// Ellipse is an axis-aligned ellipse.
type Ellipse struct {
	Center  r2.Vec  `json:"center"`
	RadiusX float64 `json:"radius_x"`
	RadiusY float64 `json:"radius_y"`
}

// Segment is a finite line segment from A to B.
type Segment struct {
	A r2.Vec `json:"a"`
	B r2.Vec `json:"b"`
}

// RectContains reports whether p lies inside r. Points on the boundary are inside.
func RectContains(r Rect, p r2.Vec) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X && p.Y >= r.Min.Y && p.Y <= r.Max.Y
}

// EllipseContains reports whether p lies inside or on e, using the normalized
// distance (dx/rx)² + (dy/ry)² <= 1. An ellipse with a non-positive radius
// contains nothing.
func EllipseContains(e Ellipse, p r2.Vec) bool {
	if e.RadiusX <= 0 || e.RadiusY <= 0 {
		return false
	}
	dx := (p.X - e.Center.X) / e.RadiusX
	dy := (p.Y - e.Center.Y) / e.RadiusY
	return dx*dx+dy*dy <= 1
}

// DistanceToSegment returns the distance from p to the closest point of s.
// The projection parameter is clamped to [0,1] so the ends of the segment
// behave like points.
func DistanceToSegment(s Segment, p r2.Vec) float64 {
	d := r2.Sub(s.B, s.A)
	lenSq := r2.Dot(d, d)
	if lenSq == 0 {
		return r2.Norm(r2.Sub(p, s.A))
	}

	t := r2.Dot(r2.Sub(p, s.A), d) / lenSq
	t = math.Max(0, math.Min(1, t))

	closest := r2.Add(s.A, r2.Scale(t, d))
	return r2.Norm(r2.Sub(p, closest))
}

// MinDistance returns the smallest distance from p to any of the segments,
// or +Inf when there are none.
func MinDistance(segments []Segment, p r2.Vec) float64 {
	best := math.Inf(1)
	for _, s := range segments {
		if d := DistanceToSegment(s, p); d < best {
			best = d
		}
	}
	return best
}

// Lerp interpolates between a and b; t=0 yields a and t=1 yields b.
func Lerp(a, b r2.Vec, t float64) r2.Vec {
	return r2.Add(a, r2.Scale(t, r2.Sub(b, a)))
}

// Bounds returns the smallest Rect containing all points.
func Bounds(points ...r2.Vec) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	r := Rect{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		r.Min.X = math.Min(r.Min.X, p.X)
		r.Min.Y = math.Min(r.Min.Y, p.Y)
		r.Max.X = math.Max(r.Max.X, p.X)
		r.Max.Y = math.Max(r.Max.Y, p.Y)
	}
	return r
}

// Cross returns the z component of the cross product of (b-a) and (c-b).
func Cross(a, b, c r2.Vec) float64 {
	u := r2.Sub(b, a)
	v := r2.Sub(c, b)
	return u.X*v.Y - u.Y*v.X
}

// PolygonArea returns the absolute shoelace area of the polygon.
func PolygonArea(points ...r2.Vec) float64 {
	var sum float64
	for i := range points {
		j := (i + 1) % len(points)
		sum += points[i].X*points[j].Y - points[j].X*points[i].Y
	}
	return math.Abs(sum) / 2
}
