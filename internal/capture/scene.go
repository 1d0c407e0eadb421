package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Scene differencing constants
const (
	// sceneBlurSize is the Gaussian kernel applied before differencing.
	sceneBlurSize = 21
	// sceneDiffThreshold is the per-pixel difference counted as change.
	sceneDiffThreshold = 25
)

// SceneMonitor tracks whether the camera view is still. Automatic
// calibration only runs on a settled scene, so a hand passing over the paper
// or a bumped camera does not produce a bad layout.
type SceneMonitor struct {
	mu        sync.Mutex
	threshold float64
	prevGray  gocv.Mat
	hasPrev   bool
}

// NewSceneMonitor creates a monitor that treats a frame as changed when more
// than threshold percent of its pixels differ from the previous one.
func NewSceneMonitor(threshold float64) *SceneMonitor {
	return &SceneMonitor{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Observe compares frame with the previous one and returns whether the scene
// changed and the share of changed pixels in percent. The first frame and a
// frame of a different size count as changed.
func (m *SceneMonitor) Observe(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return true, 100
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: sceneBlurSize, Y: sceneBlurSize}, 0, 0, gocv.BorderDefault)

	if !m.hasPrev || blurred.Rows() != m.prevGray.Rows() || blurred.Cols() != m.prevGray.Cols() {
		m.swap(blurred)
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, sceneDiffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100
	m.swap(blurred)

	return changed > m.threshold, changed
}

func (m *SceneMonitor) swap(next gocv.Mat) {
	m.prevGray.Close()
	m.prevGray = next
	m.hasPrev = true
}

// SetThreshold changes the change threshold. Values <= 0 are ignored.
func (m *SceneMonitor) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// Reset forgets the previous frame.
func (m *SceneMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prevGray.Close()
	m.prevGray = gocv.NewMat()
	m.hasPrev = false
}

// Close releases the stored frame. The monitor must not be used afterwards.
func (m *SceneMonitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prevGray.Close()
	m.hasPrev = false
}
