// Package tray provides the menu bar controls of paperbeat.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/paperbeat/internal/dispatch"
)

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// Tray represents the system tray application.
type Tray struct {
	onToggle      func(enabled bool)
	onRecalibrate func()
	onSettings    func()
	onQuit        func()
	enabled       bool
	calibrated    bool
	lastNote      string
	mu            sync.RWMutex

	// Menu items stored for later updates
	menuToggle   *systray.MenuItem
	menuStatus   *systray.MenuItem
	menuLastNote *systray.MenuItem
}

// New creates a new Tray instance with playing enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
	}
}

// OnToggle sets the callback for the pause/resume item.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnRecalibrate sets the callback for the recalibrate item.
func (t *Tray) OnRecalibrate(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRecalibrate = fn
}

// OnSettings sets the callback for the settings item.
func (t *Tray) OnSettings(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSettings = fn
}

// OnQuit sets the callback for the quit item.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray from outside the menu.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("paperbeat")
	systray.SetTooltip("paperbeat paper instrument")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume playing")
	systray.AddSeparator()

	t.menuStatus = systray.AddMenuItem(statusTitle(t.calibrated), "Calibration state")
	t.menuStatus.Disable()
	t.menuLastNote = systray.AddMenuItem(lastNoteTitle(t.lastNote), "Last played note")
	t.menuLastNote.Disable()
	t.mu.Unlock()

	menuRecalibrate := systray.AddMenuItem("Recalibrate", "Detect the paper surface again")
	menuSettings := systray.AddMenuItem("Open Settings...", "Open settings in browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit paperbeat")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuRecalibrate.ClickedCh:
				t.handleRecalibrate()
			case <-menuSettings.ClickedCh:
				t.handleSettings()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleRecalibrate() {
	t.mu.RLock()
	callback := t.onRecalibrate
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleSettings() {
	t.mu.RLock()
	callback := t.onSettings
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLastNote updates the last note display in the menu.
func (t *Tray) SetLastNote(ev dispatch.NoteEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastNote = NoteLabel(ev)
	if t.menuLastNote != nil {
		t.menuLastNote.SetTitle(lastNoteTitle(t.lastNote))
	}
}

// LastNote returns the label of the last note shown.
func (t *Tray) LastNote() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastNote
}

// SetCalibrated updates the calibration state display.
func (t *Tray) SetCalibrated(calibrated bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calibrated = calibrated
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(calibrated))
	}
}

// Follow shows every event received on events as the last note. It returns
// when the channel is closed.
func (t *Tray) Follow(events <-chan dispatch.NoteEvent) {
	for ev := range events {
		t.SetLastNote(ev)
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// NoteName returns the scientific pitch name of a MIDI note, 60 being C4.
func NoteName(note int) string {
	if note < 0 {
		return fmt.Sprintf("note %d", note)
	}
	return fmt.Sprintf("%s%d", noteNames[note%12], note/12-1)
}

// NoteLabel formats an event for the menu.
func NoteLabel(ev dispatch.NoteEvent) string {
	return fmt.Sprintf("%s (%s)", NoteName(ev.Note), ev.ZoneID)
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Playing"
	}
	return "○ Paused"
}

func statusTitle(calibrated bool) string {
	if calibrated {
		return "Surface: calibrated"
	}
	return "Surface: not calibrated"
}

func lastNoteTitle(label string) string {
	if label == "" {
		return "Last: none"
	}
	return "Last: " + label
}
