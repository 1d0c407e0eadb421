package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/ayusman/paperbeat/internal/config"
)

// Settings is the live configuration as seen by the HTTP layer.
type Settings interface {
	Get() config.Config
	// Update applies a partial JSON patch and returns the new config.
	Update(patch []byte) (config.Config, error)
}

// SettingsHandler serves /api/settings.
type SettingsHandler struct {
	settings Settings
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(s Settings) *SettingsHandler {
	return &SettingsHandler{settings: s}
}

// ServeHTTP implements the http.Handler interface.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.settings.Get())
	case http.MethodPut, http.MethodPatch:
		h.update(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SettingsHandler) update(w http.ResponseWriter, r *http.Request) {
	patch, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg, err := h.settings.Update(patch)
	if errors.Is(err, config.ErrInvalid) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}
