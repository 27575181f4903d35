// Package tuning reads the runtime tuning YAML file and watches it for
// changes, so an operator can adjust mining cadence without a restart.
// Chain parameters (difficulty, block size) live in the genesis file and
// are deliberately not tunable here.
package tuning

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Tuning represents the runtime-adjustable mining settings.
type Tuning struct {
	MiningIntervalSeconds int   `yaml:"mining_interval_seconds"`
	MiningTimeoutSeconds  int   `yaml:"mining_timeout_seconds"`
	AutoMine              *bool `yaml:"auto_mine"`
}

// Loader reads the tuning file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  Tuning
	onChange []func(Tuning)
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := Loader{path: path}

	current, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = current

	return &l, nil
}

// Tuning returns the latest loaded settings.
func (l *Loader) Tuning() Tuning {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.current
}

// OnChange registers a callback invoked whenever the file reloads.
func (l *Loader) OnChange(fn func(Tuning)) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the tuning file on
// changes. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tuning watcher: %w", err)
	}
	if err := watcher.Add(l.path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("tuning watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	go func() {
		defer watcher.Close()
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					l.reload()
				}

			case <-watcher.Errors:
				// Keep serving the last good settings.

			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// reload re-reads the file, keeping the previous settings on any error.
func (l *Loader) reload() {
	current, err := l.load()
	if err != nil {
		return
	}

	l.mu.Lock()
	l.current = current
	callbacks := make([]func(Tuning), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	for _, fn := range callbacks {
		fn(current)
	}
}

func (l *Loader) load() (Tuning, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning %s: %w", l.path, err)
	}

	var t Tuning
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Tuning{}, fmt.Errorf("parse tuning %s: %w", l.path, err)
	}

	return t, nil
}
