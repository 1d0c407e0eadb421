package capture

import (
	"image"
	"image/color"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func TestSceneMonitor_StillScene(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	m := NewSceneMonitor(1.0)
	defer m.Close()

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	changed, pct := m.Observe(&frame)
	if !changed || pct != 100 {
		t.Errorf("first frame = (%v, %f), want (true, 100)", changed, pct)
	}

	for i := 0; i < 3; i++ {
		if changed, pct := m.Observe(&frame); changed {
			t.Errorf("identical frame %d reported change %f", i, pct)
		}
	}
}

func TestSceneMonitor_Change(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	m := NewSceneMonitor(1.0)
	defer m.Close()

	dark := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer dark.Close()
	bright := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer bright.Close()
	gocv.Rectangle(&bright, image.Rect(40, 40, 280, 200), color.RGBA{255, 255, 255, 0}, -1)

	m.Observe(&dark)
	m.Observe(&dark)

	changed, pct := m.Observe(&bright)
	if !changed {
		t.Errorf("large bright rectangle not reported, change = %f", pct)
	}
	if changed, _ := m.Observe(&bright); changed {
		t.Error("repeated bright frame should count as still")
	}

	m.Reset()
	if changed, _ := m.Observe(&bright); !changed {
		t.Error("first frame after Reset should count as changed")
	}
}

func TestSceneMonitor_NilFrame(t *testing.T) {
	m := NewSceneMonitor(1.0)
	defer m.Close()

	if changed, _ := m.Observe(nil); !changed {
		t.Error("nil frame should count as changed")
	}
}

func TestSceneMonitor_CloseReleasesFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	m := NewSceneMonitor(1.0)
	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()
	m.Observe(&frame)

	m.Close()
	if m.hasPrev {
		t.Error("Close() left a stored frame behind")
	}
}

func TestLatest(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	l := NewLatest()
	defer l.Close()

	if _, err := l.JPEG(80); err == nil {
		t.Error("JPEG() on empty holder should fail")
	}
	if m, _, ok := l.Clone(); ok {
		m.Close()
		t.Error("Clone() on empty holder should report !ok")
	} else {
		m.Close()
	}

	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer frame.Close()
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	l.Store(&frame, at)

	got, gotAt, ok := l.Clone()
	defer got.Close()
	if !ok || got.Rows() != 120 || got.Cols() != 160 || !gotAt.Equal(at) {
		t.Errorf("Clone() = %dx%d at %v, ok=%v", got.Cols(), got.Rows(), gotAt, ok)
	}
	if l.Seq() != 1 {
		t.Errorf("Seq() = %d, want 1", l.Seq())
	}

	data, err := l.JPEG(80)
	if err != nil {
		t.Fatalf("JPEG() error = %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		t.Error("JPEG() output lacks the JPEG start marker")
	}
}
