package plugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ayusman/paperbeat/internal/log"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// Manager manages plugin discovery and access.
type Manager struct {
	pluginDir string
	plugins   map[string]*Plugin
	mu        sync.RWMutex
}

// NewManager creates a new plugin Manager with the given plugin directory.
func NewManager(pluginDir string) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		plugins:   make(map[string]*Plugin),
	}
}

// Discover scans the plugin directory for plugin.json files and loads them.
// Each subdirectory is expected to be a plugin with a plugin.json manifest.
// A missing plugin directory is not an error.
func (m *Manager) Discover() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.plugins = make(map[string]*Plugin)

	info, err := os.Stat(m.pluginDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(m.pluginDir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		pluginPath := filepath.Join(m.pluginDir, entry.Name())
		manifestData, err := os.ReadFile(filepath.Join(pluginPath, "plugin.json"))
		if err != nil {
			continue
		}

		var manifest Manifest
		if err := json.Unmarshal(manifestData, &manifest); err != nil {
			log.Warn("skipping plugin with invalid manifest", "dir", entry.Name(), "error", err)
			continue
		}
		if manifest.Name == "" || manifest.Executable == "" {
			log.Warn("skipping plugin without name or executable", "dir", entry.Name())
			continue
		}

		m.plugins[manifest.Name] = &Plugin{
			Manifest:   manifest,
			Path:       pluginPath,
			Executable: filepath.Join(pluginPath, manifest.Executable),
		}
	}

	return nil
}

// Get returns a plugin by name.
// Returns ErrPluginNotFound if the plugin does not exist.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugin, ok := m.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}

	return plugin, nil
}

// List returns all discovered plugins ordered by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, plugin := range m.plugins {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})

	return plugins
}

// Resolve returns the named plugins that support action, skipping unknown
// names and plugins without the action. The second result lists the
// skipped names.
func (m *Manager) Resolve(names []string, action string) ([]*Plugin, []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found []*Plugin
	var skipped []string
	for _, name := range names {
		p, ok := m.plugins[name]
		if !ok || !p.Manifest.Supports(action) {
			skipped = append(skipped, name)
			continue
		}
		found = append(found, p)
	}
	return found, skipped
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}
