// Package zone defines the calibrated instrument zones and the hit test that
// decides whether a tracked position triggers one.
package zone

import (
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ayusman/paperbeat/internal/geometry"
)

// Kind discriminates the geometry carried by a Zone.
type Kind string

const (
	// KindKey is a closed key zone hit-tested with an ellipse.
	KindKey Kind = "key"
	// KindEdge is an open zone made of segments, hit by proximity.
	KindEdge Kind = "edge"
)

// Gate restricts which motion directions may trigger a zone.
type Gate string

const (
	GateNone  Gate = ""
	GateLeft  Gate = "left"
	GateRight Gate = "right"
	GateUp    Gate = "up"
	GateDown  Gate = "down"
)

// Allows reports whether a velocity (pixels/s, image coordinates) moves in
// the gated direction. GateNone allows everything.
func (g Gate) Allows(v r2.Vec) bool {
	switch g {
	case GateLeft:
		return v.X < 0
	case GateRight:
		return v.X > 0
	case GateUp:
		return v.Y < 0
	case GateDown:
		return v.Y > 0
	default:
		return true
	}
}

// Interval is a parametric range along the top and bottom surface edges.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// KeyGeometry is the geometry of a KindKey zone.
type KeyGeometry struct {
	Box     geometry.Rect    `json:"box"`
	Ellipse geometry.Ellipse `json:"ellipse"`
	// Slice is the unpadded interval the zone was cut from.
	Slice Interval `json:"slice"`
	// Padded is Slice after shared boundaries were pulled inward.
	Padded Interval `json:"padded"`
}

// EdgeGeometry is the geometry of a KindEdge zone.
type EdgeGeometry struct {
	Segments  []geometry.Segment `json:"segments"`
	Proximity float64            `json:"proximity"`
}

// Zone is one triggerable region of the calibrated surface. Exactly one of
// Key and Edge is set, matching Kind.
type Zone struct {
	ID   string `json:"id"`
	Note int    `json:"note"`
	Kind Kind   `json:"kind"`
	Gate Gate   `json:"gate,omitempty"`

	Key  *KeyGeometry  `json:"key,omitempty"`
	Edge *EdgeGeometry `json:"edge,omitempty"`
}

// Hit reports whether a position moving with velocity v triggers the zone.
func (z *Zone) Hit(p, v r2.Vec) bool {
	if !z.Gate.Allows(v) {
		return false
	}
	return z.Contains(p)
}

// Contains reports whether p is inside a key zone or within proximity of an
// edge zone, ignoring direction.
func (z *Zone) Contains(p r2.Vec) bool {
	switch z.Kind {
	case KindKey:
		return z.Key != nil && geometry.EllipseContains(z.Key.Ellipse, p)
	case KindEdge:
		return z.Edge != nil && geometry.MinDistance(z.Edge.Segments, p) <= z.Edge.Proximity
	}
	return false
}

// Quad is the calibrated surface outline.
type Quad struct {
	TopLeft     r2.Vec `json:"top_left"`
	TopRight    r2.Vec `json:"top_right"`
	BottomLeft  r2.Vec `json:"bottom_left"`
	BottomRight r2.Vec `json:"bottom_right"`
}

// Corners returns the corners in traversal order TL, TR, BR, BL.
func (q Quad) Corners() [4]r2.Vec {
	return [4]r2.Vec{q.TopLeft, q.TopRight, q.BottomRight, q.BottomLeft}
}

// Source records how a calibration was produced.
type Source string

const (
	SourceDetected Source = "detected"
	SourceManual   Source = "manual"
	SourceRestored Source = "restored"
)

// Set is an immutable calibration result. A new Set replaces the old one as
// a whole; callers must not modify a Set after publishing it.
type Set struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Quad       Quad      `json:"quad"`
	Zones      []Zone    `json:"zones"`
	Source     Source    `json:"source"`
	CreatedAt  time.Time `json:"created_at"`
}

// Match returns the first zone, in definition order, hit by p moving with
// velocity v for which available returns true. available may be nil.
func (s *Set) Match(p, v r2.Vec, available func(*Zone) bool) (*Zone, bool) {
	if s == nil {
		return nil, false
	}
	for i := range s.Zones {
		z := &s.Zones[i]
		if !z.Hit(p, v) {
			continue
		}
		if available != nil && !available(z) {
			continue
		}
		return z, true
	}
	return nil, false
}

// Has reports whether the set contains a zone with the given id.
func (s *Set) Has(id string) bool {
	if s == nil {
		return false
	}
	for i := range s.Zones {
		if s.Zones[i].ID == id {
			return true
		}
	}
	return false
}
