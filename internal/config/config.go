// Package config holds the runtime-adjustable tuning parameters of the
// paperbeat pipeline.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// ErrInvalid is returned when a configuration fails validation.
var ErrInvalid = errors.New("invalid config")

// Instrument names.
const (
	InstrumentKeys   = "keys"
	InstrumentRim    = "rim"
	InstrumentShaker = "shaker"
)

// maxFileSize bounds config files read from disk.
const maxFileSize = 1 << 20

// Duration is a time.Duration that reads and writes JSON duration strings
// such as "250ms".
type Duration struct {
	time.Duration
}

// D is shorthand for building a Duration.
func D(d time.Duration) Duration { return Duration{d} }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler. Bare numbers are milliseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ms float64
		if err := json.Unmarshal(b, &ms); err != nil {
			return fmt.Errorf("duration must be a string or milliseconds: %w", err)
		}
		d.Duration = time.Duration(ms * float64(time.Millisecond))
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the full set of tunables.
type Config struct {
	// Instrument selects the zone layout and trigger mode: keys, rim or shaker.
	Instrument string `json:"instrument"`

	Capture  CaptureConfig  `json:"capture"`
	Surface  SurfaceConfig  `json:"surface"`
	Layout   LayoutConfig   `json:"layout"`
	Motion   MotionConfig   `json:"motion"`
	Tracking TrackingConfig `json:"tracking"`

	// Plugins lists the plugin names that receive every note.
	Plugins []string `json:"plugins"`
}

// CaptureConfig controls the camera loop and automatic calibration.
type CaptureConfig struct {
	CameraID int `json:"camera_id"`
	Width    int `json:"width"`
	Height   int `json:"height"`
	FPS      int `json:"fps"`
	// SceneChangePercent is the share of changed pixels that counts as the
	// scene moving, which postpones automatic calibration.
	SceneChangePercent float64  `json:"scene_change_percent"`
	AutoCalibrate      bool     `json:"auto_calibrate"`
	CalibrationRetry   Duration `json:"calibration_retry"`
}

// SurfaceConfig holds the empirically tuned paper detection heuristics.
type SurfaceConfig struct {
	Downsample      int     `json:"downsample"`
	EdgeThreshold   float64 `json:"edge_threshold"`
	LowerFraction   float64 `json:"lower_fraction"`
	MinAreaFraction float64 `json:"min_area_fraction"`
	MaxAreaFraction float64 `json:"max_area_fraction"`
	MinAspect       float64 `json:"min_aspect"`
	PreferredAspect float64 `json:"preferred_aspect"`
	MinLuminance    float64 `json:"min_luminance"`
	MinQuadArea     float64 `json:"min_quad_area"`
}

// LayoutConfig controls how a surface is divided into zones.
type LayoutConfig struct {
	ZoneCount       int     `json:"zone_count"`
	Padding         float64 `json:"padding"`
	RadiusFractionX float64 `json:"radius_fraction_x"`
	RadiusFractionY float64 `json:"radius_fraction_y"`
	MinRadius       float64 `json:"min_radius"`
	MaxRadius       float64 `json:"max_radius"`
	EdgeSegments    int     `json:"edge_segments"`
	EdgeGapFraction float64 `json:"edge_gap_fraction"`
	EdgeProximity   float64 `json:"edge_proximity"`
	BaseNote        int     `json:"base_note"`
}

// MotionConfig holds velocity thresholds and cooldowns. Velocities are in
// pixels per second.
type MotionConfig struct {
	StrikeThreshold  float64  `json:"strike_threshold"`
	StrikeMinAccel   float64  `json:"strike_min_accel"`
	ShakeStart       float64  `json:"shake_start"`
	ShakeStop        float64  `json:"shake_stop"`
	ShakePeriod      Duration `json:"shake_period"`
	EntityCooldown   Duration `json:"entity_cooldown"`
	ZoneCooldown     Duration `json:"zone_cooldown"`
	DisappearTimeout Duration `json:"disappear_timeout"`
	MaxVelocity      float64  `json:"max_velocity"`
	MinIntensity     float64  `json:"min_intensity"`
}

// TrackingConfig controls hand association.
type TrackingConfig struct {
	// Landmarks are the MediaPipe landmark indices tracked as entities.
	Landmarks []int `json:"landmarks"`
	// MaxMatchDistance gates hand association, in normalized frame units.
	MaxMatchDistance float64 `json:"max_match_distance"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Instrument: InstrumentKeys,
		Capture: CaptureConfig{
			Width:              640,
			Height:             480,
			FPS:                30,
			SceneChangePercent: 1.0,
			AutoCalibrate:      true,
			CalibrationRetry:   D(2 * time.Second),
		},
		Surface: SurfaceConfig{
			Downsample:      4,
			EdgeThreshold:   100,
			LowerFraction:   0.6,
			MinAreaFraction: 0.02,
			MaxAreaFraction: 0.95,
			MinAspect:       0.8,
			PreferredAspect: 1.6,
			MinLuminance:    140,
			MinQuadArea:     400,
		},
		Layout: LayoutConfig{
			ZoneCount:       8,
			Padding:         0.1,
			RadiusFractionX: 0.45,
			RadiusFractionY: 0.45,
			MinRadius:       8,
			MaxRadius:       120,
			EdgeSegments:    3,
			EdgeGapFraction: 0.1,
			EdgeProximity:   18,
			BaseNote:        60,
		},
		Motion: MotionConfig{
			StrikeThreshold:  800,
			ShakeStart:       900,
			ShakeStop:        400,
			ShakePeriod:      D(150 * time.Millisecond),
			EntityCooldown:   D(250 * time.Millisecond),
			ZoneCooldown:     D(120 * time.Millisecond),
			DisappearTimeout: D(500 * time.Millisecond),
			MaxVelocity:      3000,
			MinIntensity:     0.2,
		},
		Tracking: TrackingConfig{
			Landmarks:        []int{8},
			MaxMatchDistance: 0.2,
		},
	}
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	c.Tracking.Landmarks = slices.Clone(c.Tracking.Landmarks)
	c.Plugins = slices.Clone(c.Plugins)
	return c
}

// Validate checks that every parameter is usable.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.Instrument {
	case InstrumentKeys, InstrumentRim, InstrumentShaker:
	default:
		errs = append(errs, fmt.Errorf("unknown instrument %q", c.Instrument))
	}

	check(c.Capture.FPS > 0 && c.Capture.FPS <= 120, "capture.fps must be in (0,120], got %d", c.Capture.FPS)
	check(c.Capture.Width > 0 && c.Capture.Height > 0, "capture size must be positive")
	check(c.Capture.CalibrationRetry.Duration >= 0, "capture.calibration_retry must not be negative")

	s := c.Surface
	check(s.Downsample >= 1, "surface.downsample must be >= 1")
	check(s.EdgeThreshold > 0, "surface.edge_threshold must be positive")
	check(s.LowerFraction > 0 && s.LowerFraction <= 1, "surface.lower_fraction must be in (0,1]")
	check(s.MinAreaFraction >= 0 && s.MinAreaFraction < s.MaxAreaFraction && s.MaxAreaFraction <= 1,
		"surface area fractions must satisfy 0 <= min < max <= 1")
	check(s.MinAspect > 0, "surface.min_aspect must be positive")
	check(s.PreferredAspect > 0, "surface.preferred_aspect must be positive")
	check(s.MinLuminance >= 0 && s.MinLuminance <= 255, "surface.min_luminance must be in [0,255]")
	check(s.MinQuadArea >= 0, "surface.min_quad_area must not be negative")

	l := c.Layout
	check(l.ZoneCount >= 1 && l.ZoneCount <= 64, "layout.zone_count must be in [1,64]")
	check(l.Padding >= 0 && l.Padding < 1, "layout.padding must be in [0,1)")
	check(l.RadiusFractionX > 0 && l.RadiusFractionY > 0, "layout radius fractions must be positive")
	check(l.MinRadius >= 0 && l.MinRadius <= l.MaxRadius, "layout radius clamp must satisfy 0 <= min <= max")
	check(l.EdgeSegments >= 1, "layout.edge_segments must be >= 1")
	check(l.EdgeGapFraction >= 0 && l.EdgeGapFraction < 0.5, "layout.edge_gap_fraction must be in [0,0.5)")
	check(l.EdgeProximity > 0, "layout.edge_proximity must be positive")

	m := c.Motion
	check(m.StrikeThreshold > 0, "motion.strike_threshold must be positive")
	check(m.ShakeStop > 0 && m.ShakeStop < m.ShakeStart, "motion shake thresholds must satisfy 0 < stop < start")
	check(m.ShakePeriod.Duration > 0, "motion.shake_period must be positive")
	check(m.EntityCooldown.Duration >= 0 && m.ZoneCooldown.Duration >= 0, "motion cooldowns must not be negative")
	check(m.DisappearTimeout.Duration > 0, "motion.disappear_timeout must be positive")
	check(m.MaxVelocity > m.StrikeThreshold, "motion.max_velocity must exceed strike_threshold")
	check(m.MinIntensity >= 0 && m.MinIntensity <= 1, "motion.min_intensity must be in [0,1]")

	check(len(c.Tracking.Landmarks) > 0, "tracking.landmarks must not be empty")
	for _, idx := range c.Tracking.Landmarks {
		check(idx >= 0 && idx < 21, "tracking landmark %d out of range", idx)
	}
	check(c.Tracking.MaxMatchDistance > 0, "tracking.max_match_distance must be positive")

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// Apply overlays a partial JSON document onto a copy of c. Fields absent from
// patch keep their current values. The result is validated.
func (c Config) Apply(patch []byte) (Config, error) {
	next := c.Clone()
	if err := json.Unmarshal(patch, &next); err != nil {
		return c, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}

// Load reads a JSON config file and overlays it on the defaults.
func Load(path string) (Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return Config{}, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return Config{}, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	return Default().Apply(data)
}

// TriggerMode returns the motion mode implied by the instrument.
func (c Config) TriggerMode() string {
	if c.Instrument == InstrumentShaker {
		return "shake"
	}
	return "strike"
}

// LayoutChanged reports whether moving from c to next requires the zones to
// be laid out again.
func (c Config) LayoutChanged(next Config) bool {
	return c.Instrument != next.Instrument || c.Layout != next.Layout
}
