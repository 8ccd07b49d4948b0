package prompts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
)

// Store hands out the current Snapshot. Reload builds a new snapshot and
// swaps it in whole; a turn that already holds a snapshot keeps it.
type Store struct {
	logger *slog.Logger
	path   string

	current atomic.Pointer[Snapshot]
}

type Option func(*Store) error

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) error {
		s.logger = l
		return nil
	}
}

// WithFile loads prompts from path instead of the embedded defaults.
func WithFile(path string) Option {
	return func(s *Store) error {
		s.path = path
		return nil
	}
}

func NewStore(opts ...Option) (*Store, error) {
	s := &Store{logger: slog.Default()}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current.Store(snap)
	return s, nil
}

// Snapshot returns the snapshot in effect now.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Reload re-reads the source. On failure the previous snapshot stays active.
func (s *Store) Reload(ctx context.Context) (*Snapshot, error) {
	prev := s.current.Load()
	snap, err := s.load()
	if err != nil {
		s.logger.ErrorContext(ctx, "prompt reload failed, keeping current snapshot",
			"version", prev.Version, "error", err)
		return prev, err
	}
	s.current.Store(snap)
	s.logger.InfoContext(ctx, "prompts reloaded",
		"previous_version", prev.Version, "version", snap.Version, "source", s.source())
	return snap, nil
}

func (s *Store) load() (*Snapshot, error) {
	if s.path == "" {
		return Parse(defaultYAML)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	snap, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return snap, nil
}

func (s *Store) source() string {
	if s.path == "" {
		return "embedded"
	}
	return s.path
}
