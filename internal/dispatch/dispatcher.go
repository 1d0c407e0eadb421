package dispatch

import (
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/ayusman/paperbeat/internal/log"
	"github.com/ayusman/paperbeat/internal/motion"
	"github.com/ayusman/paperbeat/internal/timeutil"
	"github.com/ayusman/paperbeat/internal/zone"
)

// shakeTask is the repeating trigger of one shaking entity.
type shakeTask struct {
	repeater  *motion.Repeater
	intensity float64
}

// Dispatcher owns all per-entity and per-zone state of one pipeline.
//
// Tick is called from a single goroutine. Shake repeaters fire on their own
// goroutines; every state access is serialized by mu.
type Dispatcher struct {
	clock timeutil.Clock
	bus   *Bus
	zones atomic.Pointer[zone.Set]

	mu           sync.Mutex
	cfg          Config
	tracker      *motion.Tracker
	classifier   *motion.Classifier
	zoneCooldown map[string]time.Time
	shakes       map[string]*shakeTask
	stopped      bool
}

// New creates a Dispatcher publishing to bus. bus may be nil.
func New(clock timeutil.Clock, cfg Config, bus *Bus) *Dispatcher {
	return &Dispatcher{
		clock:        clock,
		bus:          bus,
		cfg:          cfg,
		tracker:      motion.NewTracker(),
		classifier:   motion.NewClassifier(),
		zoneCooldown: make(map[string]time.Time),
		shakes:       make(map[string]*shakeTask),
	}
}

// SetConfig replaces the parameters. They apply from the next Tick.
func (d *Dispatcher) SetConfig(cfg Config) {
	d.mu.Lock()
	prevMode := d.cfg.Thresholds.Mode
	d.cfg = cfg
	var stale []*shakeTask
	if cfg.Thresholds.Mode != prevMode {
		stale = d.dropShakesLocked()
		d.classifier.Reset()
	}
	d.mu.Unlock()

	stopShakes(stale)
}

// SetZones atomically replaces the zone set. A nil set means uncalibrated.
// Cooldowns of zones that no longer exist are dropped.
func (d *Dispatcher) SetZones(set *zone.Set) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.zones.Store(set)
	for id := range d.zoneCooldown {
		if !set.Has(id) {
			delete(d.zoneCooldown, id)
		}
	}
}

// Zones returns the active zone set, or nil when uncalibrated.
func (d *Dispatcher) Zones() *zone.Set {
	return d.zones.Load()
}

// Tick processes the samples of one frame and returns the notes emitted.
// Every emitted note is also published on the bus.
//
// Entities not seen for DisappearTimeout are cleared before the samples are
// processed, so a returning entity starts fresh. Each entity emits at most
// one note per tick.
func (d *Dispatcher) Tick(now time.Time, samples []motion.Sample) []NoteEvent {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}

	stale := d.sweepLocked(now)
	set := d.zones.Load()
	th := d.cfg.Thresholds

	var events []NoteEvent
	emitted := make(map[string]bool, len(samples))

	for _, s := range samples {
		est := d.tracker.Update(s.EntityID, s.Position, s.Timestamp)
		ev, fired := d.classifier.Classify(s.EntityID, est, s.Timestamp, th)
		if !fired {
			continue
		}

		switch ev.Kind {
		case motion.EventStrike:
			if emitted[s.EntityID] {
				continue
			}
			if note, ok := d.emitLocked(set, s.EntityID, s.Position.Vec(), est.Velocity, ev.Intensity, KindStrike, s.Timestamp); ok {
				events = append(events, note)
				emitted[s.EntityID] = true
			}

		case motion.EventShakeStart:
			if !emitted[s.EntityID] {
				if note, ok := d.emitLocked(set, s.EntityID, s.Position.Vec(), est.Velocity, ev.Intensity, KindShake, s.Timestamp); ok {
					events = append(events, note)
					emitted[s.EntityID] = true
				}
			}
			if old := d.startShakeLocked(s.EntityID, ev.Intensity); old != nil {
				stale = append(stale, old)
			}

		case motion.EventShakeStop:
			if task, ok := d.shakes[s.EntityID]; ok {
				delete(d.shakes, s.EntityID)
				stale = append(stale, task)
			}
		}
	}
	d.mu.Unlock()

	stopShakes(stale)
	d.publish(events)
	return events
}

// emitLocked matches a triggering entity against the zones and, on a hit,
// commits the entity and zone cooldowns. d.mu must be held.
func (d *Dispatcher) emitLocked(set *zone.Set, id string, pos, vel r2.Vec, intensity float64, kind string, ts time.Time) (NoteEvent, bool) {
	z, ok := set.Match(pos, vel, func(z *zone.Zone) bool {
		last, seen := d.zoneCooldown[z.ID]
		return !seen || ts.Sub(last) >= d.cfg.ZoneCooldown
	})
	if !ok {
		return NoteEvent{}, false
	}

	d.zoneCooldown[z.ID] = ts
	d.classifier.Commit(id, ts)

	return NoteEvent{
		ZoneID:    z.ID,
		Note:      z.Note,
		EntityID:  id,
		Timestamp: ts,
		Intensity: intensity,
		Kind:      kind,
	}, true
}

// startShakeLocked starts the repeating trigger of an entity and returns the
// task it replaces, if any.
func (d *Dispatcher) startShakeLocked(id string, intensity float64) *shakeTask {
	old := d.shakes[id]

	task := &shakeTask{intensity: intensity}
	task.repeater = motion.StartRepeater(d.clock, d.cfg.ShakePeriod, func(now time.Time) {
		d.repeat(id, task, now)
	})
	d.shakes[id] = task
	return old
}

// repeat is the body of a shake repeater. A task that has been replaced or
// cancelled emits nothing. An entity unseen for DisappearTimeout is cleared
// here too, so repeating stops even when no Tick runs.
func (d *Dispatcher) repeat(id string, task *shakeTask, now time.Time) {
	d.mu.Lock()
	if d.shakes[id] != task {
		d.mu.Unlock()
		return
	}

	last, ok := d.tracker.Last(id)
	if !ok || now.Sub(last.Timestamp) > d.cfg.DisappearTimeout {
		delete(d.shakes, id)
		d.tracker.Forget(id)
		d.classifier.Forget(id)
		d.mu.Unlock()

		log.Debug("entity cleared", "entity", id)
		// Stop waits for this goroutine to exit.
		go task.repeater.Stop()
		return
	}
	note, emitted := d.emitLocked(d.zones.Load(), id, last.Position.Vec(), d.tracker.Velocity(id), task.intensity, KindShake, now)
	d.mu.Unlock()

	if emitted {
		d.publish([]NoteEvent{note})
	}
}

// sweepLocked clears every entity unseen for DisappearTimeout and returns
// the shake tasks to stop once the lock is released.
func (d *Dispatcher) sweepLocked(now time.Time) []*shakeTask {
	var stale []*shakeTask
	for _, id := range d.tracker.Sweep(now, d.cfg.DisappearTimeout) {
		d.classifier.Forget(id)
		if task, ok := d.shakes[id]; ok {
			delete(d.shakes, id)
			stale = append(stale, task)
		}
		log.Debug("entity cleared", "entity", id)
	}
	return stale
}

func (d *Dispatcher) dropShakesLocked() []*shakeTask {
	stale := make([]*shakeTask, 0, len(d.shakes))
	for id, task := range d.shakes {
		stale = append(stale, task)
		delete(d.shakes, id)
	}
	return stale
}

func stopShakes(tasks []*shakeTask) {
	for _, task := range tasks {
		task.repeater.Stop()
	}
}

func (d *Dispatcher) publish(events []NoteEvent) {
	if d.bus == nil {
		return
	}
	for _, ev := range events {
		d.bus.Publish(ev)
	}
}

// Entities returns the number of tracked entities.
func (d *Dispatcher) Entities() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tracker.Len()
}

// Shaking returns the number of active shake repeaters.
func (d *Dispatcher) Shaking() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.shakes)
}

// Reset clears all entity and cooldown state and cancels every repeater.
// The zone set is kept.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	stale := d.resetLocked()
	d.mu.Unlock()

	stopShakes(stale)
}

// Stop cancels every repeater and clears all state. When Stop returns no
// repeater is running and later Ticks do nothing.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	stale := d.resetLocked()
	d.mu.Unlock()

	stopShakes(stale)
}

func (d *Dispatcher) resetLocked() []*shakeTask {
	stale := d.dropShakesLocked()
	d.tracker.Reset()
	d.classifier.Reset()
	clear(d.zoneCooldown)
	return stale
}
