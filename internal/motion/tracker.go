// Package motion estimates per-entity velocity from position samples and
// classifies it into edge-triggered strike and shake events.
package motion

import (
	"time"

	"gonum.org/v1/gonum/spatial/r2"
)

// MinElapsed is the smallest interval between samples that yields a velocity.
// Anything shorter, including zero and negative intervals, is a clock anomaly.
const MinElapsed = time.Millisecond

// Position is a tracked point in pixel coordinates. Z is the landmark
// model's relative depth and does not contribute to speed.
type Position struct {
	X, Y float64
	Z    float64
}

// Vec returns the planar part of p.
func (p Position) Vec() r2.Vec { return r2.Vec{X: p.X, Y: p.Y} }

// Sample is one observation of an entity.
type Sample struct {
	EntityID  string
	Position  Position
	Timestamp time.Time
}

// Estimate is the motion derived from one Update call.
type Estimate struct {
	Velocity     r2.Vec        // pixels per second
	Speed        float64       // magnitude of Velocity
	Acceleration float64       // magnitude of the velocity change, pixels/s²
	Elapsed      time.Duration // time since the previous sample

	// First is set for the first observation of an entity.
	First bool
	// ClockAnomaly is set when the elapsed time was below MinElapsed.
	ClockAnomaly bool
}

// Valid reports whether the estimate carries a real measurement.
func (e Estimate) Valid() bool {
	return !e.First && !e.ClockAnomaly
}

type trackState struct {
	last     Sample
	velocity r2.Vec
}

// Tracker keeps the most recent sample of every entity. It is not safe for
// concurrent use; the dispatcher serializes access.
type Tracker struct {
	entities map[string]*trackState
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{entities: make(map[string]*trackState)}
}

// Update records a sample and returns the velocity since the entity's
// previous sample. The first sample of an entity yields a zero estimate
// flagged First. A sample that is not at least MinElapsed newer than the
// stored one yields a zero estimate flagged ClockAnomaly and is discarded.
func (t *Tracker) Update(id string, pos Position, ts time.Time) Estimate {
	st, ok := t.entities[id]
	if !ok {
		t.entities[id] = &trackState{last: Sample{EntityID: id, Position: pos, Timestamp: ts}}
		return Estimate{First: true}
	}

	elapsed := ts.Sub(st.last.Timestamp)
	if elapsed < MinElapsed {
		return Estimate{Elapsed: elapsed, ClockAnomaly: true}
	}

	dt := elapsed.Seconds()
	displacement := r2.Sub(pos.Vec(), st.last.Position.Vec())
	velocity := r2.Scale(1/dt, displacement)
	accel := r2.Norm(r2.Sub(velocity, st.velocity)) / dt

	st.last = Sample{EntityID: id, Position: pos, Timestamp: ts}
	st.velocity = velocity

	return Estimate{
		Velocity:     velocity,
		Speed:        r2.Norm(velocity),
		Acceleration: accel,
		Elapsed:      elapsed,
	}
}

// Last returns the most recent accepted sample of an entity.
func (t *Tracker) Last(id string) (Sample, bool) {
	st, ok := t.entities[id]
	if !ok {
		return Sample{}, false
	}
	return st.last, true
}

// Velocity returns the most recent velocity of an entity.
func (t *Tracker) Velocity(id string) r2.Vec {
	if st, ok := t.entities[id]; ok {
		return st.velocity
	}
	return r2.Vec{}
}

// Forget drops all state for an entity.
func (t *Tracker) Forget(id string) {
	delete(t.entities, id)
}

// Sweep forgets every entity whose last sample is older than timeout at now
// and returns their ids.
func (t *Tracker) Sweep(now time.Time, timeout time.Duration) []string {
	var stale []string
	for id, st := range t.entities {
		if now.Sub(st.last.Timestamp) > timeout {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(t.entities, id)
	}
	return stale
}

// Len returns the number of tracked entities.
func (t *Tracker) Len() int { return len(t.entities) }

// Reset forgets every entity.
func (t *Tracker) Reset() {
	clear(t.entities)
}
