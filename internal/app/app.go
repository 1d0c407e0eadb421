// Package app runs the paperbeat pipeline: it reads frames, tracks hands,
// turns fingertip motion into notes and hands them to the note sinks.
package app

import (
	"errors"
	"sync"

	"github.com/ayusman/paperbeat/internal/calibration"
	"github.com/ayusman/paperbeat/internal/capture"
	"github.com/ayusman/paperbeat/internal/config"
	"github.com/ayusman/paperbeat/internal/detector"
	"github.com/ayusman/paperbeat/internal/dispatch"
	"github.com/ayusman/paperbeat/internal/log"
	"github.com/ayusman/paperbeat/internal/plugin"
	"github.com/ayusman/paperbeat/internal/store"
	"github.com/ayusman/paperbeat/internal/timeutil"
	"github.com/ayusman/paperbeat/internal/tracking"
	"github.com/ayusman/paperbeat/internal/zone"
)

// ErrStopped is returned by Start after Stop was called.
var ErrStopped = errors.New("app is stopped")

// Config holds the collaborators of an App. Only Settings is required in
// practice; nil fields get their production defaults.
type Config struct {
	Store     *store.Store
	Settings  *config.Live
	PluginDir string

	Camera   capture.Camera
	Detector detector.Detector
	Surface  calibration.Detector
	Clock    timeutil.Clock
}

// App owns one pipeline and everything attached to it.
type App struct {
	config     Config
	live       *config.Live
	clock      timeutil.Clock
	camera     capture.Camera
	detector   detector.Detector
	surface    calibration.Detector
	latest     *capture.Latest
	scene      *capture.SceneMonitor
	assoc      *tracking.Associator
	bus        *dispatch.Bus
	dispatcher *dispatch.Dispatcher
	pluginMgr  *plugin.Manager
	pluginExec *plugin.Executor

	// calibrateCh holds at most one pending calibration request.
	calibrateCh chan struct{}
	// calMu serializes replacing the zone set.
	calMu sync.Mutex

	mu           sync.RWMutex
	enabled      bool
	running      bool
	stopped      bool
	stopCh       chan struct{}
	onCalibrated []func(*zone.Set)

	workers  sync.WaitGroup
	sinks    sync.WaitGroup
	stopOnce sync.Once
}

// New creates an App and restores the last persisted calibration.
func New(cfg Config) *App {
	if cfg.Settings == nil {
		cfg.Settings = config.NewLive(config.Default())
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	current := cfg.Settings.Get()

	if cfg.Camera == nil {
		cfg.Camera = capture.NewCamera(capture.Options{
			DeviceID: current.Capture.CameraID,
			Width:    current.Capture.Width,
			Height:   current.Capture.Height,
			FPS:      current.Capture.FPS,
		})
	}
	if cfg.Surface == nil {
		cfg.Surface = calibration.NewSurfaceDetector()
	}
	if cfg.Detector == nil {
		// Try MediaPipe first, fall back to mock detector
		if mp, err := detector.NewMediaPipeDetector(detector.DefaultConfig()); err == nil {
			cfg.Detector = mp
			log.Info("using MediaPipe hand detection")
		} else {
			log.Warn("MediaPipe not available, using mock detector", "error", err)
			cfg.Detector = detector.NewMockDetector()
		}
	}

	bus := dispatch.NewBus()
	a := &App{
		config:      cfg,
		live:        cfg.Settings,
		clock:       cfg.Clock,
		camera:      cfg.Camera,
		detector:    cfg.Detector,
		surface:     cfg.Surface,
		latest:      capture.NewLatest(),
		scene:       capture.NewSceneMonitor(current.Capture.SceneChangePercent),
		assoc:       tracking.NewAssociator(),
		bus:         bus,
		dispatcher:  dispatch.New(cfg.Clock, dispatch.ConfigFrom(current), bus),
		pluginMgr:   plugin.NewManager(cfg.PluginDir),
		pluginExec:  plugin.NewExecutor(pluginTimeout),
		calibrateCh: make(chan struct{}, 1),
		enabled:     true,
	}

	a.live.OnChange(a.applyConfig)
	a.restoreCalibration()
	return a
}

// Start opens the camera and starts the pipeline, the calibration worker and
// the built-in note sinks.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return ErrStopped
	}
	// Don't start if already running
	if a.running {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(a.live.Get().Capture.FPS)

	if err := a.pluginMgr.Discover(); err != nil {
		log.Warn("plugin discovery failed", "dir", a.pluginMgr.PluginDir(), "error", err)
	}
	if err := a.startSinks(); err != nil {
		a.camera.Close()
		return err
	}

	a.stopCh = make(chan struct{})
	a.running = true
	a.workers.Add(2)
	go a.runPipeline(a.stopCh)
	go a.runCalibration(a.stopCh)

	log.Info("pipeline started", "fps", a.live.Get().Capture.FPS, "calibrated", a.Current() != nil)
	return nil
}

// Stop halts the pipeline and releases every resource. Notes already on the
// bus are delivered to the sinks before Stop returns. Stop is idempotent and
// an App cannot be started again afterwards.
func (a *App) Stop() {
	a.stopOnce.Do(a.shutdown)
}

func (a *App) shutdown() {
	a.mu.Lock()
	if a.stopCh != nil {
		close(a.stopCh)
		a.stopCh = nil
	}
	wasRunning := a.running
	a.running = false
	a.stopped = true
	a.mu.Unlock()

	a.workers.Wait()
	a.dispatcher.Stop()
	a.bus.Close()
	a.sinks.Wait()

	if wasRunning {
		if err := a.camera.Close(); err != nil {
			log.Warn("error closing camera", "error", err)
		}
	}
	a.scene.Close()
	a.latest.Close()
	if err := a.detector.Close(); err != nil {
		log.Warn("error closing detector", "error", err)
	}

	log.Info("pipeline stopped")
}

// SetEnabled pauses or resumes playing. While paused no frame is processed
// and all motion state is dropped.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether playing is enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// IsRunning returns whether the pipeline goroutines are running.
func (a *App) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// OnCalibrated registers fn to be called with every newly installed zone set.
func (a *App) OnCalibrated(fn func(*zone.Set)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onCalibrated = append(a.onCalibrated, fn)
}

// Bus returns the note bus. External sinks subscribe before Start.
func (a *App) Bus() *dispatch.Bus {
	return a.bus
}

// Settings returns the live configuration.
func (a *App) Settings() *config.Live {
	return a.live
}

// Latest returns the holder of the most recent frame.
func (a *App) Latest() *capture.Latest {
	return a.latest
}

// Dispatcher returns the note dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Detector returns the hand detector.
func (a *App) Detector() detector.Detector {
	return a.detector
}
