// Package dispatch turns classified motion into note events: it matches
// triggering entities against the calibrated zones, applies the per-zone
// cooldown and manages the lifetime of per-entity state.
package dispatch

import (
	"time"

	"github.com/ayusman/paperbeat/internal/config"
	"github.com/ayusman/paperbeat/internal/motion"
)

// Note kinds.
const (
	KindStrike = "strike"
	KindShake  = "shake"
)

// NoteEvent is one triggered note. It is an immutable value.
type NoteEvent struct {
	ZoneID    string    `json:"zone_id"`
	Note      int       `json:"note"`
	EntityID  string    `json:"entity_id"`
	Timestamp time.Time `json:"timestamp"`
	Intensity float64   `json:"intensity"`
	Kind      string    `json:"kind"`
}

// Config holds the dispatcher parameters.
type Config struct {
	Thresholds       motion.Thresholds
	ZoneCooldown     time.Duration
	ShakePeriod      time.Duration
	DisappearTimeout time.Duration
}

// ConfigFrom derives the dispatcher parameters from the application config.
func ConfigFrom(c config.Config) Config {
	m := c.Motion
	return Config{
		Thresholds: motion.Thresholds{
			Mode:            motion.ParseMode(c.TriggerMode()),
			StrikeThreshold: m.StrikeThreshold,
			StrikeMinAccel:  m.StrikeMinAccel,
			ShakeStart:      m.ShakeStart,
			ShakeStop:       m.ShakeStop,
			EntityCooldown:  m.EntityCooldown.Duration,
			MaxVelocity:     m.MaxVelocity,
			MinIntensity:    m.MinIntensity,
		},
		ZoneCooldown:     m.ZoneCooldown.Duration,
		ShakePeriod:      m.ShakePeriod.Duration,
		DisappearTimeout: m.DisappearTimeout.Duration,
	}
}
