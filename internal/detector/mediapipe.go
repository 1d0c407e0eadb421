package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/paperbeat/internal/log"
)

// ErrServiceNotFound is returned when the landmark service script cannot be
// located.
var ErrServiceNotFound = errors.New("mediapipe_service.py not found")

// Environment overrides for the landmark service location.
const (
	EnvScript = "PAPERBEAT_MEDIAPIPE_SCRIPT"
	EnvPython = "PAPERBEAT_PYTHON"
)

// MediaPipeDetector implements Detector using a Python MediaPipe subprocess.
// Frames go to the service as length-prefixed JPEGs on stdin; each frame is
// answered by one JSON line on stdout.
type MediaPipeDetector struct {
	config     Config
	scriptPath string
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	mu         sync.Mutex
	started    bool
	idleTimer  *time.Timer
}

// NewMediaPipeDetector creates a new MediaPipe detector.
// The Python process is started lazily on first detection.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	scriptPath := findMediaPipeScript()
	if scriptPath == "" {
		return nil, ErrServiceNotFound
	}

	return &MediaPipeDetector{
		config:     config,
		scriptPath: scriptPath,
	}, nil
}

// Detect analyzes a frame and returns detected hand landmarks.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	if err := writeFrame(d.stdin, buf.GetBytes()); err != nil {
		d.kill()
		return nil, err
	}

	hands, err := readResponse(d.stdout)
	if err != nil {
		d.kill()
		return nil, err
	}

	d.resetIdleTimer()

	return Filter(hands, d.config.MinConfidence, d.config.MaxHands), nil
}

// Close shuts down the Python process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

// writeFrame writes a 4 byte big-endian length followed by the data.
func writeFrame(w io.Writer, data []byte) error {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// readResponse reads one JSON response line.
func readResponse(r *bufio.Reader) ([]HandLandmarks, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Hands []jsonHand `json:"hands"`
		Error string     `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("mediapipe service: %s", response.Error)
	}

	result := make([]HandLandmarks, len(response.Hands))
	for i, h := range response.Hands {
		result[i] = h.toHandLandmarks()
	}
	return result, nil
}

func (d *MediaPipeDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, d.scriptPath,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start mediapipe service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	log.Info("landmark service started", "python", pythonPath, "script", d.scriptPath)

	return nil
}

func (d *MediaPipeDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

// kill stops a service whose stream is out of sync. The next Detect starts a
// fresh one.
func (d *MediaPipeDetector) kill() {
	if d.cmd != nil && d.cmd.Process != nil {
		d.cmd.Process.Kill()
	}
	if err := d.shutdown(); err != nil {
		log.Debug("landmark service exited", "error", err)
	}
}

func (d *MediaPipeDetector) resetIdleTimer() {
	if d.config.IdleTimeout <= 0 {
		return
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		log.Info("landmark service idle, stopping")
		d.shutdown()
	})
}

func findMediaPipeScript() string {
	if p := os.Getenv(EnvScript); p != "" {
		return existing(p)
	}

	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	return existing(
		"scripts/mediapipe_service.py",
		"../scripts/mediapipe_service.py",
		filepath.Join(execDir, "scripts/mediapipe_service.py"),
		filepath.Join(os.Getenv("HOME"), ".paperbeat/scripts/mediapipe_service.py"),
	)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	if p := os.Getenv(EnvPython); p != "" {
		return p
	}

	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	return existing(
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".paperbeat/venv/bin/python"),
	)
}

// existing returns the absolute form of the first path that exists.
func existing(candidates ...string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
		return path
	}
	return ""
}

// jsonHand represents the JSON structure from the Python service.
type jsonHand struct {
	Points     []jsonPoint `json:"points"`
	Handedness string      `json:"handedness"`
	Score      float64     `json:"score"`
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (h jsonHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	for i := 0; i < NumLandmarks && i < len(h.Points); i++ {
		lm.Points[i] = Point3D{
			X: h.Points[i].X,
			Y: h.Points[i].Y,
			Z: h.Points[i].Z,
		}
	}

	return lm
}
