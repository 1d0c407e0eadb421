package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/paperbeat/internal/config"
	"github.com/ayusman/paperbeat/internal/dispatch"
	"github.com/ayusman/paperbeat/internal/log"
	"github.com/ayusman/paperbeat/internal/store"
)

// SettingsKey is the settings row holding the persisted configuration.
const SettingsKey = "config"

// LoadConfig returns the startup configuration. A config file at path wins;
// without one the copy persisted in st is overlaid on the defaults. st may
// be nil.
func LoadConfig(st *store.Store, path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	cfg := config.Default()
	if st == nil {
		return cfg, nil
	}

	raw, err := st.Settings().Get(SettingsKey)
	if errors.Is(err, store.ErrNotFound) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read settings: %w", err)
	}

	next, err := cfg.Apply([]byte(raw))
	if err != nil {
		log.Warn("ignoring invalid persisted settings", "error", err)
		return cfg, nil
	}
	return next, nil
}

// SaveConfig persists cfg in st.
func SaveConfig(st *store.Store, cfg config.Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return st.Settings().Set(SettingsKey, string(data))
}

// applyConfig runs after every settings change. Motion settings apply from
// the next tick; layout changes re-lay out the active quad.
func (a *App) applyConfig(old, next config.Config) {
	a.dispatcher.SetConfig(dispatch.ConfigFrom(next))
	a.scene.SetThreshold(next.Capture.SceneChangePercent)

	if a.config.Store != nil {
		if err := SaveConfig(a.config.Store, next); err != nil {
			log.Warn("failed to persist settings", "error", err)
		}
	}

	if old.LayoutChanged(next) {
		a.relayout(next)
	}
}
