// Package detector provides the hand landmark source: the Detector
// interface, a MediaPipe-backed implementation and a scriptable mock.
package detector

import (
	"math"
	"strconv"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D is a landmark position. X and Y are normalized to [0,1] of the
// frame; Z is depth relative to the wrist.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks represents the 21 hand landmarks detected by MediaPipe.
type HandLandmarks struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"` // "Left" or "Right"
	Score      float64               `json:"score"`
}

// distance3D calculates the Euclidean distance between two 3D points.
func distance3D(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Size returns the wrist to middle finger MCP distance, the usual measure of
// hand scale.
func (h *HandLandmarks) Size() float64 {
	return distance3D(h.Points[Wrist], h.Points[MiddleMCP])
}

// Valid reports whether the hand is usable: score at least minScore, every
// coordinate finite and a non-degenerate hand size.
func (h *HandLandmarks) Valid(minScore float64) bool {
	if h == nil || h.Score < minScore {
		return false
	}
	for _, p := range h.Points {
		if !finite(p.X) || !finite(p.Y) || !finite(p.Z) {
			return false
		}
	}
	return h.Size() > 1e-6
}

// Translate returns a copy of the hand moved by (dx, dy).
func (h HandLandmarks) Translate(dx, dy float64) HandLandmarks {
	for i := range h.Points {
		h.Points[i].X += dx
		h.Points[i].Y += dy
	}
	return h
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

var landmarkNames = [NumLandmarks]string{
	"wrist",
	"thumb_cmc", "thumb_mcp", "thumb_ip", "thumb_tip",
	"index_mcp", "index_pip", "index_dip", "index_tip",
	"middle_mcp", "middle_pip", "middle_dip", "middle_tip",
	"ring_mcp", "ring_pip", "ring_dip", "ring_tip",
	"pinky_mcp", "pinky_pip", "pinky_dip", "pinky_tip",
}

// LandmarkName returns the snake_case name of a landmark index, or
// "landmark_<i>" when i is out of range.
func LandmarkName(i int) string {
	if i < 0 || i >= NumLandmarks {
		return "landmark_" + strconv.Itoa(i)
	}
	return landmarkNames[i]
}

// Filter returns the hands that pass Valid(minScore), at most max of them.
// max <= 0 means no limit.
func Filter(hands []HandLandmarks, minScore float64, max int) []HandLandmarks {
	out := make([]HandLandmarks, 0, len(hands))
	for i := range hands {
		if max > 0 && len(out) >= max {
			break
		}
		if hands[i].Valid(minScore) {
			out = append(out, hands[i])
		}
	}
	return out
}
