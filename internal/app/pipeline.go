package app

import (
	"errors"
	"time"

	"github.com/ayusman/paperbeat/internal/capture"
	"github.com/ayusman/paperbeat/internal/config"
	"github.com/ayusman/paperbeat/internal/dispatch"
	"github.com/ayusman/paperbeat/internal/log"
	"github.com/ayusman/paperbeat/internal/timeutil"
	"github.com/ayusman/paperbeat/internal/tracking"
)

// pipelineState is owned by the pipeline goroutine.
type pipelineState struct {
	fps         int
	paused      bool
	lastAttempt time.Time
	readErrors  int
}

func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	return time.Second / time.Duration(fps)
}

// runPipeline is the main loop. Every tick it takes one settings snapshot,
// which applies to the whole frame.
//
// Pipeline logic:
// 1. Read a frame and keep it as the latest frame
// 2. Observe scene change for automatic calibration
// 3. Detect hands and keep their identities across frames
// 4. Feed fingertip samples to the dispatcher, which publishes notes
// 5. While uncalibrated, request a calibration on a still, empty scene
func (a *App) runPipeline(stop <-chan struct{}) {
	defer a.workers.Done()

	st := &pipelineState{fps: a.live.Get().Capture.FPS}
	ticker := a.clock.NewTicker(frameInterval(st.fps))
	defer func() { ticker.Stop() }()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C():
			cfg := a.live.Get()
			if cfg.Capture.FPS != st.fps {
				ticker = a.retune(ticker, st, cfg.Capture.FPS)
			}

			if !a.IsEnabled() {
				if !st.paused {
					st.paused = true
					a.resetMotion()
					log.Info("playing paused")
				}
				continue
			}
			if st.paused {
				st.paused = false
				log.Info("playing resumed")
			}

			a.tick(now, cfg, st)
		}
	}
}

func (a *App) retune(ticker timeutil.Ticker, st *pipelineState, fps int) timeutil.Ticker {
	ticker.Stop()
	st.fps = fps
	a.camera.SetFPS(fps)
	log.Debug("frame rate changed", "fps", fps)
	return a.clock.NewTicker(frameInterval(fps))
}

// resetMotion drops every tracked hand and all motion state.
func (a *App) resetMotion() {
	a.dispatcher.Reset()
	a.assoc.Reset()
	a.scene.Reset()
}

// tick processes one frame and returns the notes it produced.
func (a *App) tick(now time.Time, cfg config.Config, st *pipelineState) []dispatch.NoteEvent {
	frame, err := a.camera.ReadFrame()
	if err != nil {
		st.readErrors++
		if st.readErrors == 1 || errors.Is(err, capture.ErrCameraNotOpen) {
			log.Warn("failed to read frame", "error", err)
		}
		// Entities still time out while no frames arrive.
		return a.dispatcher.Tick(now, nil)
	}
	if st.readErrors > 0 {
		log.Info("frames available again", "missed", st.readErrors)
		st.readErrors = 0
	}
	defer frame.Close()

	a.latest.Store(frame, now)
	changed, _ := a.scene.Observe(frame)

	hands, err := a.detector.Detect(frame)
	detected := err == nil
	if err != nil {
		log.Debug("hand detection failed", "error", err)
		hands = nil
	}

	ids := a.assoc.Assign(hands, now, cfg.Tracking.MaxMatchDistance, cfg.Motion.DisappearTimeout.Duration)
	samples := tracking.Samples(hands, ids, cfg.Tracking.Landmarks, frame.Cols(), frame.Rows(), now)
	events := a.dispatcher.Tick(now, samples)

	if cfg.Capture.AutoCalibrate && detected && !changed && len(hands) == 0 && a.Current() == nil &&
		now.Sub(st.lastAttempt) >= cfg.Capture.CalibrationRetry.Duration {
		st.lastAttempt = now
		a.RequestCalibration()
	}

	return events
}
