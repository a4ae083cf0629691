package config

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Store holds the active Settings snapshot. Reload rebuilds a new snapshot
// and swaps it in; readers never observe a partially updated value.
type Store struct {
	v         *viper.Viper
	logger    *slog.Logger
	current   atomic.Pointer[Settings]
	mu        sync.Mutex
	listeners []func(Settings)
}

// NewStore loads the initial snapshot from v.
func NewStore(v *viper.Viper, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{v: v, logger: logger}
	settings, err := Load(v)
	if err != nil {
		return nil, err
	}
	s.current.Store(&settings)
	return s, nil
}

// Current returns the active snapshot.
func (s *Store) Current() Settings {
	return *s.current.Load()
}

// OnChange registers fn to run after every successful reload.
func (s *Store) OnChange(fn func(Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Reload re-reads viper. An invalid configuration leaves the previous
// snapshot active.
func (s *Store) Reload() error {
	settings, err := Load(s.v)
	if err != nil {
		return err
	}
	s.current.Store(&settings)

	s.mu.Lock()
	listeners := make([]func(Settings), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(settings)
	}
	return nil
}

// Watch reloads whenever the config file changes on disk.
func (s *Store) Watch() {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		if err := s.Reload(); err != nil {
			s.logger.Warn("Ignoring invalid configuration change", "file", e.Name, "error", err)
			return
		}
		s.logger.Info("Configuration reloaded", "file", e.Name)
	})
	s.v.WatchConfig()
}
