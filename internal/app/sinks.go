package app

import (
	"context"
	"sync"
	"time"

	"github.com/ayusman/paperbeat/internal/dispatch"
	"github.com/ayusman/paperbeat/internal/log"
	"github.com/ayusman/paperbeat/internal/plugin"
)

// Sink tuning
const (
	recorderName   = "recorder"
	recorderBuffer = 256
	recordBatch    = 32
	recordInterval = 250 * time.Millisecond

	pluginSinkName   = "plugins"
	pluginBuffer     = 64
	pluginTimeout    = 2 * time.Second
	maxPluginWorkers = 8
)

func (a *App) startSinks() error {
	if a.config.Store != nil {
		events, err := a.bus.Subscribe(recorderName, recorderBuffer)
		if err != nil {
			return err
		}
		a.sinks.Add(1)
		go a.runRecorder(events)
	}

	events, err := a.bus.Subscribe(pluginSinkName, pluginBuffer)
	if err != nil {
		return err
	}
	a.sinks.Add(1)
	go a.runPlugins(events)
	return nil
}

// runRecorder writes notes to the history in batches. Notes are attributed
// to the zone set active when the batch is written.
func (a *App) runRecorder(events <-chan dispatch.NoteEvent) {
	defer a.sinks.Done()

	ticker := time.NewTicker(recordInterval)
	defer ticker.Stop()

	batch := make([]dispatch.NoteEvent, 0, recordBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		var calibrationID string
		if set := a.Current(); set != nil {
			calibrationID = set.ID
		}
		if err := a.config.Store.Notes().Record(calibrationID, batch...); err != nil {
			log.Warn("failed to record notes", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= recordBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// runPlugins sends every note to the plugins named in the settings. Plugin
// runs happen concurrently, bounded by maxPluginWorkers.
func (a *App) runPlugins(events <-chan dispatch.NoteEvent) {
	defer a.sinks.Done()

	var wg sync.WaitGroup
	defer wg.Wait()

	sem := make(chan struct{}, maxPluginWorkers)
	warned := make(map[string]bool)

	for ev := range events {
		cfg := a.live.Get()
		if len(cfg.Plugins) == 0 {
			continue
		}

		plugins, skipped := a.pluginMgr.Resolve(cfg.Plugins, plugin.ActionNote)
		for _, name := range skipped {
			if !warned[name] {
				warned[name] = true
				log.Warn("plugin unavailable for notes", "plugin", name)
			}
		}

		req := plugin.NoteRequest(cfg.Instrument, ev)
		for _, p := range plugins {
			sem <- struct{}{}
			wg.Add(1)
			go func(p *plugin.Plugin) {
				defer wg.Done()
				defer func() { <-sem }()
				a.runPlugin(p, req)
			}(p)
		}
	}
}

func (a *App) runPlugin(p *plugin.Plugin, req *plugin.Request) {
	resp, err := a.pluginExec.Execute(context.Background(), p, req)
	if err != nil {
		log.Warn("plugin failed", "plugin", p.Manifest.Name, "error", err)
		return
	}
	if !resp.Success {
		log.Debug("plugin rejected note", "plugin", p.Manifest.Name, "error", resp.Error)
	}
}
