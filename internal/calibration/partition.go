package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ayusman/paperbeat/internal/geometry"
	"github.com/ayusman/paperbeat/internal/zone"
)

// PartitionConfig controls how a quad is cut into key zones.
type PartitionConfig struct {
	// Padding is the gap between adjacent zones, as a fraction of one slice.
	Padding         float64
	RadiusFractionX float64
	RadiusFractionY float64
	MinRadius       float64
	// MaxRadius caps the ellipse radii. Zero means no cap.
	MaxRadius float64
	BaseNote  int
	MinArea   float64
}

// Partition divides the top and bottom edges of q into n equal intervals
// and returns one key zone per interval, left to right.
//
// Shared boundaries between slices are pulled inward by Padding/2 of a slice
// so neighbours never touch. The outer edges of the first and last slice are
// left where they are. Each zone hit-tests with an ellipse centered in the
// slice's bounding box.
func Partition(q zone.Quad, n int, cfg PartitionConfig) ([]zone.Zone, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidZoneCount, n)
	}
	if err := ValidateQuad(q, cfg.MinArea); err != nil {
		return nil, err
	}

	inset := cfg.Padding / float64(n) / 2
	zones := make([]zone.Zone, 0, n)

	for i := 0; i < n; i++ {
		slice := zone.Interval{
			Start: float64(i) / float64(n),
			End:   float64(i+1) / float64(n),
		}
		padded := slice
		if i > 0 {
			padded.Start += inset
		}
		if i < n-1 {
			padded.End -= inset
		}

		box := geometry.Bounds(
			geometry.Lerp(q.TopLeft, q.TopRight, padded.Start),
			geometry.Lerp(q.TopLeft, q.TopRight, padded.End),
			geometry.Lerp(q.BottomLeft, q.BottomRight, padded.End),
			geometry.Lerp(q.BottomLeft, q.BottomRight, padded.Start),
		)

		zones = append(zones, zone.Zone{
			ID:   fmt.Sprintf("key-%d", i),
			Note: cfg.BaseNote + i,
			Kind: zone.KindKey,
			Key: &zone.KeyGeometry{
				Box: box,
				Ellipse: geometry.Ellipse{
					Center:  box.Center(),
					RadiusX: clampRadius(cfg.RadiusFractionX*box.Width(), cfg.MinRadius, cfg.MaxRadius),
					RadiusY: clampRadius(cfg.RadiusFractionY*box.Height(), cfg.MinRadius, cfg.MaxRadius),
				},
				Slice:  slice,
				Padded: padded,
			},
		})
	}

	return zones, nil
}

func clampRadius(r, lo, hi float64) float64 {
	r = math.Max(r, lo)
	if hi > 0 {
		r = math.Min(r, hi)
	}
	return r
}

// EdgeConfig controls the edge zones of the rim instrument.
type EdgeConfig struct {
	// Segments is the number of pieces each side is split into.
	Segments int
	// GapFraction is the share of each piece left open, split evenly
	// between its two ends. Corners are therefore always open.
	GapFraction float64
	Proximity   float64
	BaseNote    int
	MinArea     float64
}

type side struct {
	name string
	a, b r2.Vec
	gate zone.Gate
}

// EdgeZones returns one edge zone per side of q, in the order left, right,
// top, bottom. Each zone only triggers for motion heading out of the surface
// through its side.
func EdgeZones(q zone.Quad, cfg EdgeConfig) ([]zone.Zone, error) {
	if cfg.Segments < 1 {
		return nil, fmt.Errorf("%w: %d segments per edge", ErrInvalidZoneCount, cfg.Segments)
	}
	if err := ValidateQuad(q, cfg.MinArea); err != nil {
		return nil, err
	}

	sides := []side{
		{"left", q.TopLeft, q.BottomLeft, zone.GateLeft},
		{"right", q.TopRight, q.BottomRight, zone.GateRight},
		{"top", q.TopLeft, q.TopRight, zone.GateUp},
		{"bottom", q.BottomLeft, q.BottomRight, zone.GateDown},
	}

	n := float64(cfg.Segments)
	half := cfg.GapFraction / 2
	zones := make([]zone.Zone, 0, len(sides))

	for i, s := range sides {
		segments := make([]geometry.Segment, 0, cfg.Segments)
		for k := 0; k < cfg.Segments; k++ {
			t0 := (float64(k) + half) / n
			t1 := (float64(k+1) - half) / n
			segments = append(segments, geometry.Segment{
				A: geometry.Lerp(s.a, s.b, t0),
				B: geometry.Lerp(s.a, s.b, t1),
			})
		}

		zones = append(zones, zone.Zone{
			ID:   "edge-" + s.name,
			Note: cfg.BaseNote + i,
			Kind: zone.KindEdge,
			Gate: s.gate,
			Edge: &zone.EdgeGeometry{
				Segments:  segments,
				Proximity: cfg.Proximity,
			},
		})
	}

	return zones, nil
}
