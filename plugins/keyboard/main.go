// Package main provides a keyboard plugin. It maps each note to the key a
// DAW's musical typing uses for that pitch and types it into the focused
// application, via AppleScript on macOS and xdotool on Linux.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action string `json:"action"`
	Note   *Note  `json:"note"`
}

// Note is the part of a note event this plugin uses.
type Note struct {
	Note int `json:"note"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// baseNote is the pitch of the first musical-typing key (middle C).
const baseNote = 60

// musicalTyping lists the keys for consecutive semitones starting at
// baseNote.
var musicalTyping = []string{
	"a", "w", "s", "e", "d", "f", "t", "g", "y", "h", "u", "j",
	"k", "o", "l", "p", ";", "'",
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
		if err := handleNote(req.Note); err != nil {
			writeErrorResponse(fmt.Sprintf("action note failed: %v", err))
			return
		}
	default:
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	writeSuccessResponse()
}

func handleNote(n *Note) error {
	if n == nil {
		return errors.New("note is required")
	}
	key, err := keyFor(n.Note)
	if err != nil {
		return err
	}
	return typeKey(key)
}

// keyFor returns the musical-typing key of a MIDI note.
func keyFor(note int) (string, error) {
	i := note - baseNote
	if i < 0 || i >= len(musicalTyping) {
		return "", fmt.Errorf("note %d outside the typing range %d-%d", note, baseNote, baseNote+len(musicalTyping)-1)
	}
	return musicalTyping[i], nil
}

func typeKey(key string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("osascript", "-e", buildKeystrokeScript(key))
	case "linux":
		cmd = exec.Command("xdotool", "type", "--", key)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

// buildKeystrokeScript generates the AppleScript typing key.
func buildKeystrokeScript(key string) string {
	if key == `"` || key == `\` {
		key = `\` + key
	}
	return fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, key)
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}
