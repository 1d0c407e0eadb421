package motion

import (
	"time"
)

// Mode selects how the classifier turns speed into events.
type Mode int

const (
	// ModeStrike fires once per rising edge through StrikeThreshold.
	ModeStrike Mode = iota
	// ModeShake starts a repeating trigger above ShakeStart and stops it
	// below ShakeStop.
	ModeShake
)

// ParseMode maps a mode name to a Mode. Unknown names map to ModeStrike.
func ParseMode(name string) Mode {
	if name == "shake" {
		return ModeShake
	}
	return ModeStrike
}

// EventKind is the type of a classified motion event.
type EventKind int

const (
	EventStrike EventKind = iota + 1
	EventShakeStart
	EventShakeStop
)

func (k EventKind) String() string {
	switch k {
	case EventStrike:
		return "strike"
	case EventShakeStart:
		return "shake-start"
	case EventShakeStop:
		return "shake-stop"
	}
	return "none"
}

// Event is a classified motion event for one entity.
type Event struct {
	Kind      EventKind
	EntityID  string
	Speed     float64
	Intensity float64
	Timestamp time.Time
}

// Thresholds are the classifier parameters. They are passed on every call
// so that configuration changes apply on the next tick.
type Thresholds struct {
	Mode            Mode
	StrikeThreshold float64
	StrikeMinAccel  float64
	ShakeStart      float64
	ShakeStop       float64
	EntityCooldown  time.Duration
	MaxVelocity     float64
	MinIntensity    float64
}

type classState struct {
	prevSpeed    float64
	shaking      bool
	lastAccepted time.Time
	accepted     bool
}

// Classifier keeps the per-entity edge and hysteresis state.
type Classifier struct {
	entities map[string]*classState
}

// NewClassifier returns an empty Classifier.
func NewClassifier() *Classifier {
	return &Classifier{entities: make(map[string]*classState)}
}

func (c *Classifier) state(id string) *classState {
	st, ok := c.entities[id]
	if !ok {
		st = &classState{}
		c.entities[id] = st
	}
	return st
}

// Classify evaluates one estimate. It returns false when nothing fires.
//
// Estimates that are not Valid never fire. A First estimate resets the
// previous speed to zero; a ClockAnomaly leaves it untouched.
func (c *Classifier) Classify(id string, est Estimate, now time.Time, th Thresholds) (Event, bool) {
	st := c.state(id)

	if est.First {
		st.prevSpeed = 0
		return Event{}, false
	}
	if est.ClockAnomaly {
		return Event{}, false
	}

	prev := st.prevSpeed
	st.prevSpeed = est.Speed

	switch th.Mode {
	case ModeShake:
		return c.classifyShake(id, st, est, now, th)
	default:
		return c.classifyStrike(id, st, est, prev, now, th)
	}
}

func (c *Classifier) classifyStrike(id string, st *classState, est Estimate, prev float64, now time.Time, th Thresholds) (Event, bool) {
	if est.Speed < th.StrikeThreshold || prev >= th.StrikeThreshold {
		return Event{}, false
	}
	if th.StrikeMinAccel > 0 && est.Acceleration < th.StrikeMinAccel {
		return Event{}, false
	}
	if st.accepted && now.Sub(st.lastAccepted) < th.EntityCooldown {
		return Event{}, false
	}

	return Event{
		Kind:      EventStrike,
		EntityID:  id,
		Speed:     est.Speed,
		Intensity: Intensity(est.Speed, th.StrikeThreshold, th.MaxVelocity, th.MinIntensity),
		Timestamp: now,
	}, true
}

func (c *Classifier) classifyShake(id string, st *classState, est Estimate, now time.Time, th Thresholds) (Event, bool) {
	switch {
	case !st.shaking && est.Speed >= th.ShakeStart:
		st.shaking = true
		return Event{
			Kind:      EventShakeStart,
			EntityID:  id,
			Speed:     est.Speed,
			Intensity: Intensity(est.Speed, th.ShakeStop, th.MaxVelocity, th.MinIntensity),
			Timestamp: now,
		}, true
	case st.shaking && est.Speed < th.ShakeStop:
		st.shaking = false
		return Event{Kind: EventShakeStop, EntityID: id, Speed: est.Speed, Timestamp: now}, true
	}
	return Event{}, false
}

// Commit records that an event of the entity was accepted at ts, starting
// its cooldown.
func (c *Classifier) Commit(id string, ts time.Time) {
	st := c.state(id)
	st.lastAccepted = ts
	st.accepted = true
}

// Shaking reports whether the entity is inside the shake hysteresis band.
func (c *Classifier) Shaking(id string) bool {
	st, ok := c.entities[id]
	return ok && st.shaking
}

// Forget drops all state for an entity.
func (c *Classifier) Forget(id string) {
	delete(c.entities, id)
}

// Reset drops all state.
func (c *Classifier) Reset() {
	clear(c.entities)
}

// Intensity maps speed linearly from [low, high] onto [floor, 1].
func Intensity(speed, low, high, floor float64) float64 {
	if high <= low {
		return 1
	}
	f := (speed - low) / (high - low)
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return floor + (1-floor)*f
}
