package config

import (
	"sync"
	"sync/atomic"
)

// Live holds the active configuration. Readers take a snapshot with Get;
// writers replace it as a whole, so a snapshot never changes under a reader.
type Live struct {
	current atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []func(old, next Config)
}

// NewLive returns a Live holding cfg. cfg is not validated.
func NewLive(cfg Config) *Live {
	l := &Live{}
	c := cfg.Clone()
	l.current.Store(&c)
	return l
}

// Get returns the current snapshot. Slices in the snapshot are shared and
// must be treated as read-only.
func (l *Live) Get() Config {
	return *l.current.Load()
}

// Set validates and installs cfg, then notifies listeners.
func (l *Live) Set(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	old, next, listeners := l.installLocked(cfg)
	l.mu.Unlock()

	notify(listeners, old, next)
	return nil
}

// Update applies a partial JSON patch to the current snapshot. Concurrent
// updates are serialized, so no patch is lost.
func (l *Live) Update(patch []byte) (Config, error) {
	l.mu.Lock()
	patched, err := l.Get().Apply(patch)
	if err != nil {
		l.mu.Unlock()
		return Config{}, err
	}
	old, next, listeners := l.installLocked(patched)
	l.mu.Unlock()

	notify(listeners, old, next)
	return next, nil
}

// installLocked stores cfg and returns the previous snapshot, the new one and
// the listeners to notify. l.mu must be held.
func (l *Live) installLocked(cfg Config) (Config, Config, []func(old, next Config)) {
	old := *l.current.Load()
	next := cfg.Clone()
	l.current.Store(&next)
	return old, next, append([]func(old, next Config){}, l.listeners...)
}

func notify(listeners []func(old, next Config), old, next Config) {
	for _, fn := range listeners {
		fn(old, next)
	}
}

// OnChange registers fn to be called after every successful Set.
func (l *Live) OnChange(fn func(old, next Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, fn)
}
