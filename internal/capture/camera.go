// Package capture reads frames from a camera and keeps the latest one for
// the calibration worker and the preview stream.
package capture

import (
	"errors"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// ErrNoFrame is returned when the camera delivers no usable frame.
var ErrNoFrame = errors.New("no frame available")

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Options configures a device camera. Zero values fall back to the defaults.
type Options struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	opts    Options
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
}

// NewCamera creates a Camera for a capture device.
func NewCamera(opts Options) Camera {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = DefaultWidth, DefaultHeight
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	return &cameraImpl{opts: opts}
}

// Open opens the device and requests the configured resolution and rate.
// The device may deliver a different size; frames are used as delivered.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.opts.DeviceID)
	if err != nil {
		return err
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.opts.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.opts.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.opts.FPS))

	c.capture = capture
	c.running = true

	return nil
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, ErrNoFrame
	}

	return &mat, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.opts.FPS = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.opts.FPS
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
