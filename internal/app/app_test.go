package app

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ayusman/paperbeat/internal/capture"
	"github.com/ayusman/paperbeat/internal/config"
	"github.com/ayusman/paperbeat/internal/detector"
	"github.com/ayusman/paperbeat/internal/dispatch"
	"github.com/ayusman/paperbeat/internal/store"
	"github.com/ayusman/paperbeat/internal/zone"
)

var testQuad = zone.Quad{
	TopLeft:     r2.Vec{X: 40, Y: 260},
	TopRight:    r2.Vec{X: 600, Y: 260},
	BottomLeft:  r2.Vec{X: 40, Y: 460},
	BottomRight: r2.Vec{X: 600, Y: 460},
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestApp builds an App on a looping mock camera showing a sheet of paper.
func newTestApp(t *testing.T, s *store.Store, live *config.Live, det *detector.MockDetector) *App {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := capture.SheetFrame(640, 480, capture.DefaultSheet(640, 480))
	t.Cleanup(func() { frame.Close() })

	if live == nil {
		live = config.NewLive(config.Default())
	}
	if det == nil {
		det = detector.NewMockDetector()
	}

	a := New(Config{
		Store:     s,
		Settings:  live,
		PluginDir: t.TempDir(),
		Camera:    capture.NewMockCamera([]*gocv.Mat{frame}, true),
		Detector:  det,
	})
	t.Cleanup(a.Stop)
	return a
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestApp_ManualCalibration_PersistsAndRestores(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, s, nil, nil)

	if a.Current() != nil {
		t.Fatal("a new app should be uncalibrated")
	}

	var notified []string
	a.OnCalibrated(func(set *zone.Set) { notified = append(notified, set.ID) })

	set, err := a.CalibrateManual(testQuad)
	if err != nil {
		t.Fatalf("CalibrateManual() error = %v", err)
	}
	if set.Source != zone.SourceManual || len(set.Zones) != 8 {
		t.Errorf("set = %s with %d zones, want manual with 8", set.Source, len(set.Zones))
	}
	if a.Current() != set {
		t.Error("Current() is not the new set")
	}
	if len(notified) != 1 || notified[0] != set.ID {
		t.Errorf("OnCalibrated calls = %v", notified)
	}

	stored, err := s.Calibrations().Latest()
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if stored.ID != set.ID {
		t.Errorf("persisted id = %s, want %s", stored.ID, set.ID)
	}

	// A second app on the same store starts calibrated with the same set.
	b := newTestApp(t, s, nil, nil)
	if got := b.Current(); got == nil || got.ID != set.ID {
		t.Fatalf("restored set = %v, want %s", got, set.ID)
	}

	// With different layout settings the quad is laid out again.
	cfg := config.Default()
	cfg.Layout.ZoneCount = 4
	c := newTestApp(t, s, config.NewLive(cfg), nil)
	got := c.Current()
	if got == nil || got.ID == set.ID || got.Source != zone.SourceRestored || len(got.Zones) != 4 {
		t.Fatalf("re-laid out set = %+v", got)
	}
}

func TestApp_CalibrateManual_Degenerate(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, s, nil, nil)

	flat := zone.Quad{
		TopLeft:     r2.Vec{X: 0, Y: 100},
		TopRight:    r2.Vec{X: 600, Y: 100},
		BottomLeft:  r2.Vec{X: 0, Y: 100},
		BottomRight: r2.Vec{X: 600, Y: 100},
	}
	if _, err := a.CalibrateManual(flat); err == nil {
		t.Fatal("expected an error for a degenerate quad")
	}
	if a.Current() != nil {
		t.Error("a failed calibration must not install zones")
	}
	if _, err := s.Calibrations().Latest(); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected nothing persisted, got %v", err)
	}
}

func TestApp_Restore(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, s, nil, nil)

	first, err := a.CalibrateManual(testQuad)
	if err != nil {
		t.Fatal(err)
	}
	other := testQuad
	other.TopLeft.X, other.BottomLeft.X = 100, 100
	if _, err := a.CalibrateManual(other); err != nil {
		t.Fatal(err)
	}

	restored, err := a.Restore(first)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if restored.ID == first.ID || restored.Quad != first.Quad || restored.Source != zone.SourceRestored {
		t.Errorf("restored = %+v", restored)
	}
	if a.Current() != restored {
		t.Error("Current() is not the restored set")
	}
}

func TestApp_SettingsChange(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, s, nil, nil)

	if _, err := a.CalibrateManual(testQuad); err != nil {
		t.Fatal(err)
	}

	if _, err := a.Settings().Update([]byte(`{"layout":{"zone_count":5}}`)); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if n := len(a.Current().Zones); n != 5 {
		t.Errorf("zones after layout change = %d, want 5", n)
	}

	// A motion-only change keeps the zone set.
	before := a.Current()
	if _, err := a.Settings().Update([]byte(`{"motion":{"strike_threshold":900}}`)); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if a.Current() != before {
		t.Error("a motion change should not re-lay out the zones")
	}

	loaded, err := LoadConfig(s, "")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if loaded.Layout.ZoneCount != 5 || loaded.Motion.StrikeThreshold != 900 {
		t.Errorf("persisted config = zone_count %d threshold %v", loaded.Layout.ZoneCount, loaded.Motion.StrikeThreshold)
	}
}

func TestApp_Tick_EmitsNote(t *testing.T) {
	s := newTestStore(t)
	det := detector.NewMockDetector()
	a := newTestApp(t, s, nil, det)

	set, err := a.CalibrateManual(testQuad)
	if err != nil {
		t.Fatal(err)
	}
	events, err := a.Bus().Subscribe("test", 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.camera.Open(); err != nil {
		t.Fatal(err)
	}

	// The index tip moves 48px down in 50ms: 960 px/s.
	det.Queue(
		[]detector.HandLandmarks{detector.PointingLandmarks(0.25, 0.6)},
		[]detector.HandLandmarks{detector.PointingLandmarks(0.25, 0.7)},
	)

	cfg := a.Settings().Get()
	st := &pipelineState{fps: cfg.Capture.FPS}
	t0 := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	if got := a.tick(t0, cfg, st); len(got) != 0 {
		t.Fatalf("first tick emitted %d notes", len(got))
	}
	got := a.tick(t0.Add(50*time.Millisecond), cfg, st)
	if len(got) != 1 {
		t.Fatalf("second tick emitted %d notes, want 1", len(got))
	}

	want, ok := set.Match(r2.Vec{X: 0.25 * 640, Y: 0.7 * 480}, r2.Vec{Y: 960}, nil)
	if !ok {
		t.Fatal("test point is outside every zone")
	}
	ev := got[0]
	if ev.ZoneID != want.ID || ev.Note != want.Note || ev.Kind != dispatch.KindStrike {
		t.Errorf("note = %+v, want zone %s", ev, want.ID)
	}
	if !strings.HasSuffix(ev.EntityID, "/index_tip") {
		t.Errorf("entity id = %q", ev.EntityID)
	}

	select {
	case published := <-events:
		if published.ZoneID != ev.ZoneID {
			t.Errorf("published %+v", published)
		}
	default:
		t.Error("note was not published on the bus")
	}

	if a.Latest().Seq() != 2 {
		t.Errorf("Latest().Seq() = %d, want 2", a.Latest().Seq())
	}
}

func TestApp_Tick_ReadErrorStillExpiresEntities(t *testing.T) {
	det := detector.NewMockDetector()
	a := newTestApp(t, nil, nil, det)

	if _, err := a.CalibrateManual(testQuad); err != nil {
		t.Fatal(err)
	}
	if err := a.camera.Open(); err != nil {
		t.Fatal(err)
	}
	det.Queue([]detector.HandLandmarks{detector.PointingLandmarks(0.25, 0.6)})

	cfg := a.Settings().Get()
	st := &pipelineState{fps: cfg.Capture.FPS}
	t0 := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	a.tick(t0, cfg, st)
	if a.Dispatcher().Entities() == 0 {
		t.Fatal("hand was not tracked")
	}

	a.camera.Close()
	a.tick(t0.Add(2*cfg.Motion.DisappearTimeout.Duration), cfg, st)

	if st.readErrors != 1 {
		t.Errorf("readErrors = %d, want 1", st.readErrors)
	}
	if n := a.Dispatcher().Entities(); n != 0 {
		t.Errorf("Entities() = %d after the camera stalled past the timeout, want 0", n)
	}
}

func TestApp_AutoCalibrationAndShutdown(t *testing.T) {
	s := newTestStore(t)
	a := newTestApp(t, s, nil, nil)

	if a.RequestCalibration() {
		t.Error("RequestCalibration() should report false before Start")
	}

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !a.IsRunning() {
		t.Fatal("IsRunning() = false after Start")
	}

	waitFor(t, "automatic calibration", func() bool { return a.Current() != nil })

	set := a.Current()
	if set.Source != zone.SourceDetected {
		t.Errorf("source = %s, want detected", set.Source)
	}

	// Published notes are recorded before Stop returns.
	a.Bus().Publish(dispatch.NoteEvent{
		ZoneID:    set.Zones[0].ID,
		Note:      set.Zones[0].Note,
		EntityID:  "t1/index_tip",
		Timestamp: time.Now(),
		Intensity: 0.5,
		Kind:      dispatch.KindStrike,
	})

	a.Stop()
	a.Stop()

	if a.IsRunning() {
		t.Error("IsRunning() = true after Stop")
	}
	if err := a.Start(); !errors.Is(err, ErrStopped) {
		t.Errorf("Start() after Stop error = %v, want ErrStopped", err)
	}

	notes, err := s.Notes().Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0].CalibrationID != set.ID {
		t.Errorf("recorded notes = %+v", notes)
	}
}

func TestApp_Pause(t *testing.T) {
	a := newTestApp(t, newTestStore(t), nil, nil)

	if !a.IsEnabled() {
		t.Fatal("a new app should be enabled")
	}
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}

	a.SetEnabled(false)
	time.Sleep(100 * time.Millisecond)
	seq := a.Latest().Seq()
	time.Sleep(150 * time.Millisecond)
	if a.Latest().Seq() != seq {
		t.Error("frames were processed while paused")
	}

	a.SetEnabled(true)
	waitFor(t, "frames after resume", func() bool { return a.Latest().Seq() > seq })
}

func TestApp_PluginSink(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	pluginDir := t.TempDir()
	out := filepath.Join(t.TempDir(), "received.json")
	dir := filepath.Join(pluginDir, "capture")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"name":"capture","version":"1.0.0","executable":"run.sh","actions":["note"]}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	script := "#!/bin/sh\ncat > " + out + "\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Plugins = []string{"capture", "missing"}

	frame := capture.SheetFrame(640, 480, capture.DefaultSheet(640, 480))
	defer frame.Close()

	a := New(Config{
		Settings:  config.NewLive(cfg),
		PluginDir: pluginDir,
		Camera:    capture.NewMockCamera([]*gocv.Mat{frame}, true),
		Detector:  detector.NewMockDetector(),
	})
	defer a.Stop()

	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	a.Bus().Publish(dispatch.NoteEvent{ZoneID: "key-4", Note: 63, EntityID: "t1/index_tip", Timestamp: time.Now(), Kind: dispatch.KindStrike})
	a.Stop()

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("plugin did not run: %v", err)
	}
	if !strings.Contains(string(data), `"action":"note"`) || !strings.Contains(string(data), `"zone_id":"key-4"`) {
		t.Errorf("plugin input = %s", data)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig(nil, "")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Layout.ZoneCount != config.Default().Layout.ZoneCount {
			t.Errorf("zone count = %d", cfg.Layout.ZoneCount)
		}
	})

	t.Run("persisted", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.Settings().Set(SettingsKey, `{"instrument":"rim"}`); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(s, "")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Instrument != config.InstrumentRim {
			t.Errorf("instrument = %q, want rim", cfg.Instrument)
		}
	})

	t.Run("invalid persisted copy is ignored", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.Settings().Set(SettingsKey, `{"layout":{"zone_count":0}}`); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(s, "")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Layout.ZoneCount != config.Default().Layout.ZoneCount {
			t.Errorf("zone count = %d, want the default", cfg.Layout.ZoneCount)
		}
	})

	t.Run("file wins", func(t *testing.T) {
		s := newTestStore(t)
		if err := s.Settings().Set(SettingsKey, `{"instrument":"rim"}`); err != nil {
			t.Fatal(err)
		}
		path := filepath.Join(t.TempDir(), "paperbeat.json")
		if err := os.WriteFile(path, []byte(`{"instrument":"shaker"}`), 0644); err != nil {
			t.Fatal(err)
		}
		cfg, err := LoadConfig(s, path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.Instrument != config.InstrumentShaker {
			t.Errorf("instrument = %q, want shaker", cfg.Instrument)
		}
	})
}
