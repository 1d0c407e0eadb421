// Package plugin discovers and runs note sink plugins. A plugin is an
// executable with a plugin.json manifest; it receives one JSON request on
// stdin and answers with one JSON response on stdout.
package plugin

import (
	"encoding/json"
	"slices"

	"github.com/ayusman/paperbeat/internal/dispatch"
)

// Plugin actions.
const (
	// ActionNote delivers one NoteEvent.
	ActionNote = "note"
	// ActionPing checks that the plugin runs, without side effects.
	ActionPing = "ping"
)

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Supports reports whether the manifest lists action.
func (m Manifest) Supports(action string) bool {
	return slices.Contains(m.Actions, action)
}

// Request represents a request sent to a plugin for execution.
type Request struct {
	Action     string              `json:"action"`
	Instrument string              `json:"instrument,omitempty"`
	Note       *dispatch.NoteEvent `json:"note,omitempty"`
	Config     json.RawMessage     `json:"config,omitempty"`
}

// NoteRequest builds the request delivering ev to a plugin.
func NoteRequest(instrument string, ev dispatch.NoteEvent) *Request {
	return &Request{
		Action:     ActionNote,
		Instrument: instrument,
		Note:       &ev,
	}
}

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
