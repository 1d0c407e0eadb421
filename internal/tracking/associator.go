// Package tracking keeps hand identities stable across frames. The landmark
// model reports hands in no particular order, so each frame's hands are
// matched to the previous frame's by position.
package tracking

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/paperbeat/internal/detector"
	"github.com/ayusman/paperbeat/internal/motion"
)

// Track is a hand identity that persists across frames.
type Track struct {
	ID         string
	Wrist      detector.Point3D
	Handedness string
	LastSeen   time.Time
}

// Associator matches detected hands to tracks. It is not safe for concurrent
// use.
type Associator struct {
	tracks []*Track
	newID  func() string
}

// NewAssociator returns an Associator with no tracks.
func NewAssociator() *Associator {
	return &Associator{newID: func() string { return uuid.New().String() }}
}

// Assign matches hands to the known tracks by minimizing the total squared
// wrist distance in normalized coordinates. Pairs further apart than
// maxDist are never matched; such hands start new tracks. Tracks not seen for
// longer than timeout are dropped first. It returns the track id of every
// hand, in the order of hands.
func (a *Associator) Assign(hands []detector.HandLandmarks, now time.Time, maxDist float64, timeout time.Duration) []string {
	a.expire(now, timeout)

	ids := make([]string, len(hands))
	matched := make([]int, len(hands))
	for i := range matched {
		matched[i] = -1
	}

	if len(hands) > 0 && len(a.tracks) > 0 {
		cost := make([][]float64, len(hands))
		for i, h := range hands {
			cost[i] = make([]float64, len(a.tracks))
			for j, tr := range a.tracks {
				cost[i][j] = squaredDistance(h.Points[detector.Wrist], tr.Wrist)
			}
		}
		matched = assign(cost, maxDist*maxDist)
	}

	for i, h := range hands {
		var tr *Track
		if j := matched[i]; j >= 0 {
			tr = a.tracks[j]
		} else {
			tr = &Track{ID: a.newID()}
			a.tracks = append(a.tracks, tr)
		}
		tr.Wrist = h.Points[detector.Wrist]
		tr.Handedness = h.Handedness
		tr.LastSeen = now
		ids[i] = tr.ID
	}

	return ids
}

func (a *Associator) expire(now time.Time, timeout time.Duration) {
	kept := a.tracks[:0]
	for _, tr := range a.tracks {
		if now.Sub(tr.LastSeen) <= timeout {
			kept = append(kept, tr)
		}
	}
	clear(a.tracks[len(kept):])
	a.tracks = kept
}

// Tracks returns a copy of the current tracks ordered by id.
func (a *Associator) Tracks() []Track {
	out := make([]Track, 0, len(a.tracks))
	for _, tr := range a.tracks {
		out = append(out, *tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reset drops every track.
func (a *Associator) Reset() {
	a.tracks = nil
}

// EntityID names one tracked landmark of a hand track.
func EntityID(trackID string, landmark int) string {
	return trackID + "/" + detector.LandmarkName(landmark)
}

// Samples converts the selected landmarks of every hand into motion samples
// in pixel coordinates of a width x height frame. ids are the track ids
// returned by Assign for the same hands.
func Samples(hands []detector.HandLandmarks, ids []string, landmarks []int, width, height int, ts time.Time) []motion.Sample {
	samples := make([]motion.Sample, 0, len(hands)*len(landmarks))
	for i, h := range hands {
		for _, idx := range landmarks {
			if idx < 0 || idx >= detector.NumLandmarks {
				continue
			}
			p := h.Points[idx]
			samples = append(samples, motion.Sample{
				EntityID: EntityID(ids[i], idx),
				Position: motion.Position{
					X: p.X * float64(width),
					Y: p.Y * float64(height),
					Z: p.Z,
				},
				Timestamp: ts,
			})
		}
	}
	return samples
}

func squaredDistance(a, b detector.Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}
