package config

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
)

// Store hands out the current config snapshot. Reload swaps in a new
// snapshot atomically; callers that already hold a *Config keep it
// unchanged for the remainder of their work.
type Store struct {
	path    string
	current atomic.Pointer[Config]
}

// NewStore loads the config file at path and returns a store serving
// it as the initial snapshot.
func NewStore(path string) (*Store, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path}
	s.current.Store(cfg)
	return s, nil
}

// NewStaticStore returns a store that serves cfg and has no backing
// file. Used by tests.
func NewStaticStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Current returns the active snapshot. The returned Config must be
// treated as read-only.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Reload re-reads the backing file and swaps the snapshot. On error
// the previous snapshot stays active.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}

// WatchSignals reloads the config on SIGHUP until ctx is cancelled.
func (s *Store) WatchSignals(ctx context.Context) {
	log := zerolog.Ctx(ctx).With().Str("component", "config").Logger()
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := s.Reload(); err != nil {
				log.Error().Err(err).Msg("Config reload failed, keeping previous snapshot")
			} else {
				log.Info().Str("path", s.path).Msg("Config reloaded")
			}
		}
	}
}
