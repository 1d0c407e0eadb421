package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a scriptable Detector. A queued script is played one
// entry per Detect call; once it runs out the fixed hands are returned.
type MockDetector struct {
	mu     sync.Mutex
	hands  []HandLandmarks
	script [][]HandLandmarks
	err    error
	calls  int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands returned once the script is exhausted.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// Queue appends per-frame results to the script.
func (m *MockDetector) Queue(frames ...[]HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, frames...)
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Detect returns the next scripted result, the fixed hands or the error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) > 0 {
		next := m.script[0]
		m.script = m.script[1:]
		return next, nil
	}
	return m.hands, nil
}

// Calls returns the number of Detect calls.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Pending returns the number of scripted results not yet played.
func (m *MockDetector) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// PointingLandmarks returns a right hand with the index finger extended and
// its tip at (x, y) in normalized frame coordinates.
func PointingLandmarks(x, y float64) HandLandmarks {
	landmarks := HandLandmarks{
		Handedness: "Right",
		Score:      0.95,
	}

	landmarks.Points[Wrist] = Point3D{X: 0.5, Y: 0.8, Z: 0.0}

	// Thumb tucked across the palm
	landmarks.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.75, Z: 0.0}
	landmarks.Points[ThumbMCP] = Point3D{X: 0.56, Y: 0.70, Z: -0.01}
	landmarks.Points[ThumbIP] = Point3D{X: 0.54, Y: 0.67, Z: -0.02}
	landmarks.Points[ThumbTip] = Point3D{X: 0.52, Y: 0.66, Z: -0.03}

	// Index finger extended upward
	landmarks.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.68, Z: 0.0}
	landmarks.Points[IndexPIP] = Point3D{X: 0.56, Y: 0.56, Z: 0.0}
	landmarks.Points[IndexDIP] = Point3D{X: 0.56, Y: 0.47, Z: 0.0}
	landmarks.Points[IndexTip] = Point3D{X: 0.56, Y: 0.40, Z: 0.0}

	// Middle, ring and pinky curled toward the palm
	landmarks.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.68, Z: -0.02}
	landmarks.Points[MiddlePIP] = Point3D{X: 0.50, Y: 0.66, Z: -0.05}
	landmarks.Points[MiddleDIP] = Point3D{X: 0.47, Y: 0.68, Z: -0.04}
	landmarks.Points[MiddleTip] = Point3D{X: 0.45, Y: 0.70, Z: -0.02}

	landmarks.Points[RingMCP] = Point3D{X: 0.45, Y: 0.70, Z: -0.02}
	landmarks.Points[RingPIP] = Point3D{X: 0.45, Y: 0.68, Z: -0.05}
	landmarks.Points[RingDIP] = Point3D{X: 0.42, Y: 0.70, Z: -0.04}
	landmarks.Points[RingTip] = Point3D{X: 0.40, Y: 0.72, Z: -0.02}

	landmarks.Points[PinkyMCP] = Point3D{X: 0.40, Y: 0.72, Z: -0.02}
	landmarks.Points[PinkyPIP] = Point3D{X: 0.40, Y: 0.70, Z: -0.05}
	landmarks.Points[PinkyDIP] = Point3D{X: 0.37, Y: 0.72, Z: -0.04}
	landmarks.Points[PinkyTip] = Point3D{X: 0.35, Y: 0.74, Z: -0.02}

	tip := landmarks.Points[IndexTip]
	return landmarks.Translate(x-tip.X, y-tip.Y)
}
