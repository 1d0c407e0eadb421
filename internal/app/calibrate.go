package app

import (
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ayusman/paperbeat/internal/calibration"
	"github.com/ayusman/paperbeat/internal/capture"
	"github.com/ayusman/paperbeat/internal/config"
	"github.com/ayusman/paperbeat/internal/log"
	"github.com/ayusman/paperbeat/internal/store"
	"github.com/ayusman/paperbeat/internal/zone"
)

// Current returns the active zone set, or nil when uncalibrated.
func (a *App) Current() *zone.Set {
	return a.dispatcher.Zones()
}

// RequestCalibration queues a surface detection on the next stored frame.
// Requests made while one is pending are merged into it. It returns false
// when the pipeline is not running.
func (a *App) RequestCalibration() bool {
	if !a.IsRunning() {
		return false
	}
	select {
	case a.calibrateCh <- struct{}{}:
	default:
	}
	return true
}

// CalibrateManual lays out zones on an explicitly given quad.
func (a *App) CalibrateManual(q zone.Quad) (*zone.Set, error) {
	return a.activate(q, zone.SourceManual)
}

// Restore makes a stored calibration active again. Its quad is laid out
// with the current settings into a new set.
func (a *App) Restore(set *zone.Set) (*zone.Set, error) {
	if set == nil {
		return nil, calibration.ErrDegenerateGeometry
	}
	return a.activate(set.Quad, zone.SourceRestored)
}

func (a *App) runCalibration(stop <-chan struct{}) {
	defer a.workers.Done()

	for {
		select {
		case <-stop:
			return
		case <-a.calibrateCh:
			if _, err := a.calibrateFromLatest(); err != nil {
				log.Warn("recalibration failed", "error", err)
			}
		}
	}
}

// calibrateFromLatest runs surface detection on the latest frame. On failure
// the previous zones stay active.
func (a *App) calibrateFromLatest() (*zone.Set, error) {
	frame, _, ok := a.latest.Clone()
	defer frame.Close()
	if !ok {
		return nil, capture.ErrNoFrame
	}

	q, err := a.surface.Detect(frame, a.live.Get().Surface)
	if err != nil {
		return nil, err
	}
	return a.activate(q, zone.SourceDetected)
}

func (a *App) activate(q zone.Quad, source zone.Source) (*zone.Set, error) {
	a.calMu.Lock()
	defer a.calMu.Unlock()
	return a.activateLocked(q, source, a.live.Get())
}

// activateLocked builds, persists and installs a zone set. a.calMu must be
// held.
func (a *App) activateLocked(q zone.Quad, source zone.Source, cfg config.Config) (*zone.Set, error) {
	set, err := calibration.NewSet(q, cfg, source, a.clock.Now())
	if err != nil {
		return nil, err
	}

	if a.config.Store != nil {
		if err := a.config.Store.Calibrations().Save(set); err != nil {
			return nil, fmt.Errorf("failed to save calibration: %w", err)
		}
	}

	a.install(set)
	log.Info("calibrated", "id", set.ID, "source", set.Source, "instrument", set.Instrument, "zones", len(set.Zones))
	return set, nil
}

func (a *App) install(set *zone.Set) {
	a.dispatcher.SetZones(set)

	a.mu.RLock()
	listeners := append([]func(*zone.Set){}, a.onCalibrated...)
	a.mu.RUnlock()

	for _, fn := range listeners {
		fn(set)
	}
}

// relayout lays the active quad out again after the layout settings changed.
func (a *App) relayout(cfg config.Config) {
	a.calMu.Lock()
	defer a.calMu.Unlock()

	current := a.dispatcher.Zones()
	if current == nil {
		return
	}
	if _, err := a.activateLocked(current.Quad, current.Source, cfg); err != nil {
		log.Warn("re-layout failed, keeping previous zones", "error", err)
	}
}

// restoreCalibration installs the newest persisted calibration. When the
// settings no longer produce the same zones, the quad is laid out again.
func (a *App) restoreCalibration() {
	if a.config.Store == nil {
		return
	}

	set, err := a.config.Store.Calibrations().Latest()
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		log.Warn("failed to load calibration", "error", err)
		return
	}

	cfg := a.live.Get()
	if matchesLayout(set, cfg) {
		a.install(set)
		log.Info("restored calibration", "id", set.ID, "zones", len(set.Zones))
		return
	}

	if _, err := a.activate(set.Quad, zone.SourceRestored); err != nil {
		log.Warn("stored calibration no longer fits the settings", "id", set.ID, "error", err)
	}
}

func matchesLayout(set *zone.Set, cfg config.Config) bool {
	if set.Instrument != cfg.Instrument {
		return false
	}
	zones, err := calibration.Layout(set.Quad, cfg)
	if err != nil {
		return false
	}
	return cmp.Equal(zones, set.Zones, cmpopts.EquateEmpty())
}
