package config

import (
	"log/slog"
	"sync"
)

// Store owns the canonical configuration. Consumers take copies and write
// back only through the Update* methods, which persist to the backing file
// when one is set.
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	version uint64

	path      string
	persistMu sync.Mutex // serializes file writes; the last writer saves the latest state
	log       *slog.Logger
}

// NewStore creates a store around cfg. An empty path keeps changes in memory.
func NewStore(cfg *Config, path string, log *slog.Logger) *Store {
	if cfg == nil {
		cfg = Default()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		cfg:     *cfg,
		path:    path,
		version: 1,
		log:     log,
	}
}

// Snapshot returns a copy of the whole configuration.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// Control returns a copy of the control configuration together with the
// version it was read at.
func (s *Store) Control() (ControlConfig, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Control, s.version
}

// Plant returns a copy of the plant configuration.
func (s *Store) Plant() PlantConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Plant
}

// Version increases on every update.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// UpdateControl applies fn to the control configuration, clamps gains and
// persists the result. The in-memory change stays even if persisting fails.
func (s *Store) UpdateControl(fn func(*ControlConfig)) error {
	return s.update(func(c *Config) {
		fn(&c.Control)
		c.Control.ClampGains()
	})
}

// UpdatePlant applies fn to the plant configuration and persists the result.
func (s *Store) UpdatePlant(fn func(*PlantConfig)) error {
	return s.update(func(c *Config) { fn(&c.Plant) })
}

func (s *Store) update(fn func(*Config)) error {
	s.mu.Lock()
	fn(&s.cfg)
	s.version++
	s.mu.Unlock()

	if s.path == "" {
		return nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	latest := s.Snapshot()
	if err := latest.Save(s.path); err != nil {
		s.log.Error("failed to persist configuration", "path", s.path, "err", err)
		return err
	}
	return nil
}
