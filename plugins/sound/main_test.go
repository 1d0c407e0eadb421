package main

import (
	"math"
	"testing"
)

func TestVolume(t *testing.T) {
	tests := []struct {
		intensity float64
		want      float64
	}{
		{-1, 0.2},
		{0, 0.2},
		{0.5, 0.6},
		{1, 1},
		{3, 1},
	}

	for _, tt := range tests {
		if got := volume(tt.intensity); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("volume(%v) = %v, want %v", tt.intensity, got, tt.want)
		}
	}
}

func TestPlay_RequiresNote(t *testing.T) {
	if err := play(Request{Action: "note"}); err == nil {
		t.Error("play() without a note should fail")
	}
}
