// Package main provides a sound plugin. It plays one sample per note with
// the platform's command line audio player, scaled by the note intensity.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action     string `json:"action"`
	Instrument string `json:"instrument"`
	Note       *Note  `json:"note"`
}

// Note is the part of a note event this plugin uses.
type Note struct {
	ZoneID    string  `json:"zone_id"`
	Note      int     `json:"note"`
	Intensity float64 `json:"intensity"`
	Kind      string  `json:"kind"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// fallbackSamples are played when the plugin has no sample of its own.
var fallbackSamples = map[string]string{
	"darwin": "/System/Library/Sounds/Tink.aiff",
	"linux":  "/usr/share/sounds/freedesktop/stereo/bell.oga",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	switch req.Action {
	case "ping":
	case "note":
		if err := play(req); err != nil {
			writeErrorResponse(fmt.Sprintf("action note failed: %v", err))
			return
		}
	default:
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	writeSuccessResponse()
}

// play starts the player and returns without waiting for playback to end.
func play(req Request) error {
	if req.Note == nil {
		return errors.New("note is required")
	}

	sample := findSample(req.Instrument, req.Note.Note)
	if sample == "" {
		return errors.New("no sample available")
	}

	cmd, err := playerCommand(sample, volume(req.Note.Intensity))
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// findSample looks for samples/<instrument>/<note>.wav, then samples/<note>.wav
// next to the plugin, then the platform fallback.
func findSample(instrument string, note int) string {
	name := strconv.Itoa(note) + ".wav"
	candidates := []string{
		filepath.Join("samples", instrument, name),
		filepath.Join("samples", name),
		fallbackSamples[runtime.GOOS],
	}
	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// volume maps an intensity in [0,1] to a player volume in [0.2,1].
func volume(intensity float64) float64 {
	if intensity < 0 {
		intensity = 0
	}
	if intensity > 1 {
		intensity = 1
	}
	return 0.2 + 0.8*intensity
}

func playerCommand(sample string, vol float64) (*exec.Cmd, error) {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("afplay", "-v", strconv.FormatFloat(vol, 'f', 2, 64), sample), nil
	case "linux":
		// paplay volume is linear, 65536 = 100%
		return exec.Command("paplay", "--volume", strconv.Itoa(int(vol*65536)), sample), nil
	default:
		return nil, fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}
