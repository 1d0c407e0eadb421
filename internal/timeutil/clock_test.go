package timeutil

import (
	"testing"
	"time"
)

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	c.Advance(150 * time.Millisecond)
	if got := c.Now().Sub(start); got != 150*time.Millisecond {
		t.Errorf("Now() advanced by %v, want 150ms", got)
	}
}

func TestMockTicker_FiresWhenDue(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	c.Advance(50 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired before its interval elapsed")
	default:
	}

	c.Advance(50 * time.Millisecond)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire after its interval elapsed")
	}
}

func TestMockTicker_Stop(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	ticker := c.NewTicker(10 * time.Millisecond)

	if got := c.ActiveTickers(); got != 1 {
		t.Fatalf("ActiveTickers() = %d, want 1", got)
	}

	ticker.Stop()
	c.Advance(time.Second)

	select {
	case <-ticker.C():
		t.Error("stopped ticker fired")
	default:
	}

	if got := c.ActiveTickers(); got != 0 {
		t.Errorf("ActiveTickers() = %d after Stop, want 0", got)
	}
}

func TestRealClock(t *testing.T) {
	var c Clock = RealClock{}

	before := time.Now()
	if c.Now().Before(before) {
		t.Error("RealClock.Now() is earlier than time.Now()")
	}

	ticker := c.NewTicker(time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not fire within a second")
	}
}
