// Package calibration finds the paper surface in a camera frame and lays
// the instrument zones out on it.
package calibration

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ayusman/paperbeat/internal/geometry"
	"github.com/ayusman/paperbeat/internal/zone"
)

var (
	// ErrCalibrationFailure is returned when no candidate surface qualifies.
	// It is recoverable: the caller retries on a later frame.
	ErrCalibrationFailure = errors.New("no qualifying surface found")

	// ErrDegenerateGeometry is returned for quads that are not convex, not
	// consistently ordered, or too small to partition.
	ErrDegenerateGeometry = errors.New("degenerate surface geometry")

	// ErrInvalidZoneCount is returned when asked for fewer than one zone.
	ErrInvalidZoneCount = errors.New("invalid zone count")

	// ErrEmptyFrame is returned when the frame has no pixels.
	ErrEmptyFrame = errors.New("empty frame")
)

// ValidateQuad checks that q is convex, ordered TL->TR->BR->BL clockwise in
// image coordinates, and has at least minArea square pixels of area.
func ValidateQuad(q zone.Quad, minArea float64) error {
	c := q.Corners()
	for _, p := range c {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return fmt.Errorf("%w: non-finite corner", ErrDegenerateGeometry)
		}
	}

	for i := range c {
		if geometry.Cross(c[i], c[(i+1)%4], c[(i+2)%4]) <= 0 {
			return fmt.Errorf("%w: corners are not convex and clockwise", ErrDegenerateGeometry)
		}
	}

	area := geometry.PolygonArea(c[:]...)
	if area <= 0 || area < minArea {
		return fmt.Errorf("%w: area %.1f below minimum %.1f", ErrDegenerateGeometry, area, minArea)
	}
	return nil
}

// OrderCorners assigns four unordered points to quad corners. The top-left
// corner has the smallest x+y, the bottom-right the largest, the top-right
// the largest x-y and the bottom-left the smallest. The result still needs
// ValidateQuad: strongly skewed input can map two points to one corner.
func OrderCorners(points [4]r2.Vec) zone.Quad {
	q := zone.Quad{
		TopLeft:     points[0],
		TopRight:    points[0],
		BottomLeft:  points[0],
		BottomRight: points[0],
	}
	for _, p := range points[1:] {
		if p.X+p.Y < q.TopLeft.X+q.TopLeft.Y {
			q.TopLeft = p
		}
		if p.X+p.Y > q.BottomRight.X+q.BottomRight.Y {
			q.BottomRight = p
		}
		if p.X-p.Y > q.TopRight.X-q.TopRight.Y {
			q.TopRight = p
		}
		if p.X-p.Y < q.BottomLeft.X-q.BottomLeft.Y {
			q.BottomLeft = p
		}
	}
	return q
}

// QuadFromRect returns the axis-aligned quad covering r.
func QuadFromRect(r image.Rectangle) zone.Quad {
	minX, minY := float64(r.Min.X), float64(r.Min.Y)
	maxX, maxY := float64(r.Max.X), float64(r.Max.Y)
	return zone.Quad{
		TopLeft:     r2.Vec{X: minX, Y: minY},
		TopRight:    r2.Vec{X: maxX, Y: minY},
		BottomLeft:  r2.Vec{X: minX, Y: maxY},
		BottomRight: r2.Vec{X: maxX, Y: maxY},
	}
}
