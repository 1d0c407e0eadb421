package calibration

import (
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/paperbeat/internal/config"
	"github.com/ayusman/paperbeat/internal/zone"
)

// Layout lays out the zones of cfg.Instrument on q.
func Layout(q zone.Quad, cfg config.Config) ([]zone.Zone, error) {
	l := cfg.Layout

	if cfg.Instrument == config.InstrumentRim {
		return EdgeZones(q, EdgeConfig{
			Segments:    l.EdgeSegments,
			GapFraction: l.EdgeGapFraction,
			Proximity:   l.EdgeProximity,
			BaseNote:    l.BaseNote,
			MinArea:     cfg.Surface.MinQuadArea,
		})
	}

	return Partition(q, l.ZoneCount, PartitionConfig{
		Padding:         l.Padding,
		RadiusFractionX: l.RadiusFractionX,
		RadiusFractionY: l.RadiusFractionY,
		MinRadius:       l.MinRadius,
		MaxRadius:       l.MaxRadius,
		BaseNote:        l.BaseNote,
		MinArea:         cfg.Surface.MinQuadArea,
	})
}

// NewSet lays out q and wraps the result in a fresh zone set.
func NewSet(q zone.Quad, cfg config.Config, source zone.Source, now time.Time) (*zone.Set, error) {
	zones, err := Layout(q, cfg)
	if err != nil {
		return nil, err
	}
	return &zone.Set{
		ID:         uuid.New().String(),
		Instrument: cfg.Instrument,
		Quad:       q,
		Zones:      zones,
		Source:     source,
		CreatedAt:  now,
	}, nil
}
