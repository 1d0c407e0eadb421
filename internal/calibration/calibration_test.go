package calibration

import (
	"image"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ayusman/paperbeat/internal/config"
	"github.com/ayusman/paperbeat/internal/geometry"
	"github.com/ayusman/paperbeat/internal/zone"
)

func rectQuad(w, h float64) zone.Quad {
	return zone.Quad{
		TopLeft:     r2.Vec{X: 0, Y: 0},
		TopRight:    r2.Vec{X: w, Y: 0},
		BottomLeft:  r2.Vec{X: 0, Y: h},
		BottomRight: r2.Vec{X: w, Y: h},
	}
}

func TestValidateQuad(t *testing.T) {
	tests := []struct {
		name    string
		quad    zone.Quad
		minArea float64
		wantErr bool
	}{
		{"rectangle", rectQuad(100, 50), 0, false},
		{
			name: "perspective trapezoid",
			quad: zone.Quad{
				TopLeft: r2.Vec{X: 30, Y: 0}, TopRight: r2.Vec{X: 70, Y: 0},
				BottomLeft: r2.Vec{X: 0, Y: 40}, BottomRight: r2.Vec{X: 100, Y: 40},
			},
		},
		{
			name: "collinear corners",
			quad: zone.Quad{
				TopLeft: r2.Vec{X: 0, Y: 0}, TopRight: r2.Vec{X: 50, Y: 0},
				BottomLeft: r2.Vec{X: 25, Y: 0}, BottomRight: r2.Vec{X: 100, Y: 0},
			},
			wantErr: true,
		},
		{
			name: "coincident corners",
			quad: zone.Quad{
				TopLeft: r2.Vec{X: 10, Y: 10}, TopRight: r2.Vec{X: 10, Y: 10},
				BottomLeft: r2.Vec{X: 10, Y: 10}, BottomRight: r2.Vec{X: 10, Y: 10},
			},
			wantErr: true,
		},
		{
			name: "swapped right corners",
			quad: zone.Quad{
				TopLeft: r2.Vec{X: 0, Y: 0}, TopRight: r2.Vec{X: 100, Y: 50},
				BottomLeft: r2.Vec{X: 0, Y: 50}, BottomRight: r2.Vec{X: 100, Y: 0},
			},
			wantErr: true,
		},
		{
			name: "counter-clockwise",
			quad: zone.Quad{
				TopLeft: r2.Vec{X: 100, Y: 0}, TopRight: r2.Vec{X: 0, Y: 0},
				BottomLeft: r2.Vec{X: 100, Y: 50}, BottomRight: r2.Vec{X: 0, Y: 50},
			},
			wantErr: true,
		},
		{"below minimum area", rectQuad(10, 10), 400, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuad(tt.quad, tt.minArea)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDegenerateGeometry)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOrderCorners(t *testing.T) {
	want := zone.Quad{
		TopLeft: r2.Vec{X: 12, Y: 8}, TopRight: r2.Vec{X: 205, Y: 14},
		BottomLeft: r2.Vec{X: 4, Y: 120}, BottomRight: r2.Vec{X: 220, Y: 110},
	}
	shuffled := [4]r2.Vec{want.BottomRight, want.TopLeft, want.BottomLeft, want.TopRight}

	got := OrderCorners(shuffled)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("OrderCorners mismatch (-want +got):\n%s", diff)
	}
	assert.NoError(t, ValidateQuad(got, 0))
}

func TestPartition_TwoZonesNoPadding(t *testing.T) {
	zones, err := Partition(rectQuad(100, 50), 2, PartitionConfig{RadiusFractionX: 0.5, RadiusFractionY: 0.5})
	require.NoError(t, err)
	require.Len(t, zones, 2)

	want := []geometry.Rect{
		{Min: r2.Vec{X: 0, Y: 0}, Max: r2.Vec{X: 50, Y: 50}},
		{Min: r2.Vec{X: 50, Y: 0}, Max: r2.Vec{X: 100, Y: 50}},
	}
	for i, z := range zones {
		assert.Equal(t, zone.KindKey, z.Kind)
		require.NotNil(t, z.Key)
		if diff := cmp.Diff(want[i], z.Key.Box); diff != "" {
			t.Errorf("zone %d box mismatch (-want +got):\n%s", i, diff)
		}
	}

	e := zones[0].Key.Ellipse
	assert.Equal(t, r2.Vec{X: 25, Y: 25}, e.Center)
	assert.Equal(t, 25.0, e.RadiusX)
	assert.True(t, geometry.EllipseContains(e, r2.Vec{X: 50, Y: 25}), "boundary point is inside")
}

func TestPartition_IntervalsTile(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 12, 64} {
		for _, padding := range []float64{0, 0.1, 0.5} {
			zones, err := Partition(rectQuad(640, 200), n, PartitionConfig{
				Padding: padding, RadiusFractionX: 0.4, RadiusFractionY: 0.4,
			})
			require.NoError(t, err)
			require.Len(t, zones, n)

			assert.Equal(t, 0.0, zones[0].Key.Slice.Start)
			assert.Equal(t, 1.0, zones[n-1].Key.Slice.End)
			assert.Equal(t, 0.0, zones[0].Key.Padded.Start, "outer boundary is not padded")
			assert.Equal(t, 1.0, zones[n-1].Key.Padded.End, "outer boundary is not padded")

			step := 1 / float64(n)
			for i := 1; i < n; i++ {
				prev, cur := zones[i-1].Key, zones[i].Key
				assert.Equal(t, prev.Slice.End, cur.Slice.Start, "slices tile without gaps")

				gap := cur.Padded.Start - prev.Padded.End
				assert.GreaterOrEqual(t, gap, 0.0, "padding never overlaps")
				assert.InDelta(t, padding*step, gap, 1e-12)
			}
			for _, z := range zones {
				assert.Greater(t, z.Key.Box.Width(), 0.0)
				assert.Greater(t, z.Key.Box.Height(), 0.0)
			}
		}
	}
}

func TestPartition_Perspective(t *testing.T) {
	q := zone.Quad{
		TopLeft: r2.Vec{X: 100, Y: 200}, TopRight: r2.Vec{X: 300, Y: 200},
		BottomLeft: r2.Vec{X: 0, Y: 300}, BottomRight: r2.Vec{X: 400, Y: 300},
	}

	zones, err := Partition(q, 4, PartitionConfig{RadiusFractionX: 0.5, RadiusFractionY: 0.5})
	require.NoError(t, err)

	first := zones[0].Key.Box
	assert.Equal(t, r2.Vec{X: 0, Y: 200}, first.Min)
	assert.Equal(t, r2.Vec{X: 150, Y: 300}, first.Max)

	last := zones[3].Key.Box
	assert.Equal(t, r2.Vec{X: 250, Y: 200}, last.Min)
	assert.Equal(t, r2.Vec{X: 400, Y: 300}, last.Max)
}

func TestPartition_RadiusClamp(t *testing.T) {
	zones, err := Partition(rectQuad(1000, 20), 2, PartitionConfig{
		RadiusFractionX: 0.5, RadiusFractionY: 0.5, MinRadius: 15, MaxRadius: 100,
	})
	require.NoError(t, err)

	e := zones[0].Key.Ellipse
	assert.Equal(t, 100.0, e.RadiusX)
	assert.Equal(t, 15.0, e.RadiusY)
}

func TestPartition_Errors(t *testing.T) {
	_, err := Partition(rectQuad(100, 50), 0, PartitionConfig{})
	assert.ErrorIs(t, err, ErrInvalidZoneCount)

	flat := zone.Quad{
		TopLeft: r2.Vec{X: 0, Y: 10}, TopRight: r2.Vec{X: 100, Y: 10},
		BottomLeft: r2.Vec{X: 0, Y: 10}, BottomRight: r2.Vec{X: 100, Y: 10},
	}
	zones, err := Partition(flat, 4, PartitionConfig{})
	assert.ErrorIs(t, err, ErrDegenerateGeometry)
	assert.Empty(t, zones)
}

func TestPartition_NotesAndIDs(t *testing.T) {
	zones, err := Partition(rectQuad(300, 100), 3, PartitionConfig{BaseNote: 60, RadiusFractionX: 0.4, RadiusFractionY: 0.4})
	require.NoError(t, err)

	var ids []string
	var notes []int
	for _, z := range zones {
		ids = append(ids, z.ID)
		notes = append(notes, z.Note)
	}
	assert.Equal(t, []string{"key-0", "key-1", "key-2"}, ids)
	assert.Equal(t, []int{60, 61, 62}, notes)
}

func TestEdgeZones(t *testing.T) {
	zones, err := EdgeZones(rectQuad(300, 100), EdgeConfig{Segments: 2, GapFraction: 0.2, Proximity: 3, BaseNote: 40})
	require.NoError(t, err)
	require.Len(t, zones, 4)

	left := zones[0]
	assert.Equal(t, "edge-left", left.ID)
	assert.Equal(t, zone.KindEdge, left.Kind)
	assert.Equal(t, zone.GateLeft, left.Gate)
	require.Len(t, left.Edge.Segments, 2)
	assert.InDelta(t, 5, left.Edge.Segments[0].A.Y, 1e-9)
	assert.InDelta(t, 45, left.Edge.Segments[0].B.Y, 1e-9)
	assert.InDelta(t, 55, left.Edge.Segments[1].A.Y, 1e-9)

	moving := r2.Vec{X: -500}
	assert.True(t, left.Hit(r2.Vec{X: 2, Y: 20}, moving), "near the segment, moving outward")
	assert.False(t, left.Hit(r2.Vec{X: 2, Y: 20}, r2.Vec{X: 500}), "moving inward")
	assert.False(t, left.Hit(r2.Vec{X: 0, Y: 50}, moving), "inside the gap")
	assert.False(t, left.Hit(r2.Vec{X: 0, Y: 0}, moving), "corners are open")

	gates := []zone.Gate{zones[1].Gate, zones[2].Gate, zones[3].Gate}
	assert.Equal(t, []zone.Gate{zone.GateRight, zone.GateUp, zone.GateDown}, gates)
	assert.Equal(t, 43, zones[3].Note)

	_, err = EdgeZones(rectQuad(300, 100), EdgeConfig{Segments: 0})
	assert.ErrorIs(t, err, ErrInvalidZoneCount)
}

func TestLayout(t *testing.T) {
	cfg := config.Default()
	q := rectQuad(400, 150)

	zones, err := Layout(q, cfg)
	require.NoError(t, err)
	assert.Len(t, zones, cfg.Layout.ZoneCount)

	cfg.Instrument = config.InstrumentRim
	zones, err = Layout(q, cfg)
	require.NoError(t, err)
	assert.Len(t, zones, 4)
	assert.Equal(t, zone.KindEdge, zones[0].Kind)

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	set, err := NewSet(q, cfg, zone.SourceManual, now)
	require.NoError(t, err)
	assert.NotEmpty(t, set.ID)
	assert.Equal(t, config.InstrumentRim, set.Instrument)
	assert.Equal(t, zone.SourceManual, set.Source)
	assert.Equal(t, now, set.CreatedAt)
}

func TestScoreCandidate(t *testing.T) {
	cfg := config.Default().Surface
	region := image.Rect(0, 192, 640, 480)

	tests := []struct {
		name   string
		cand   Candidate
		wantOK bool
	}{
		{"wide bright sheet", Candidate{Box: image.Rect(100, 300, 540, 450), Luminance: 220}, true},
		{"too small", Candidate{Box: image.Rect(100, 300, 110, 310), Luminance: 220}, false},
		{"whole region", Candidate{Box: image.Rect(0, 192, 640, 480), Luminance: 220}, false},
		{"near vertical", Candidate{Box: image.Rect(300, 200, 360, 470), Luminance: 220}, false},
		{"too dark", Candidate{Box: image.Rect(100, 300, 540, 450), Luminance: 60}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, ok := scoreCandidate(tt.cand, cfg, region, 480)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Greater(t, score, 0.0)
			}
		})
	}
}

func TestSelectCandidate(t *testing.T) {
	cfg := config.Default().Surface
	region := image.Rect(0, 192, 640, 480)

	high := Candidate{Label: 1, Box: image.Rect(100, 200, 400, 320), Luminance: 220}
	low := Candidate{Label: 2, Box: image.Rect(100, 340, 400, 460), Luminance: 220}
	dim := Candidate{Label: 3, Box: image.Rect(50, 250, 600, 470), Luminance: 100}

	best, ok := selectCandidate([]Candidate{high, low, dim}, cfg, region, 480)
	require.True(t, ok)
	assert.Equal(t, 2, best.Label, "lower candidate wins at equal size")

	twin := low
	twin.Label = 4
	best, ok = selectCandidate([]Candidate{low, twin}, cfg, region, 480)
	require.True(t, ok)
	assert.Equal(t, 2, best.Label, "ties keep the first candidate")

	_, ok = selectCandidate([]Candidate{dim}, cfg, region, 480)
	assert.False(t, ok)
}
