package registry

import (
	"sync"
	"sync/atomic"

	"github.com/smykla-skalski/hookgate/pkg/config"
)

// Store is the atomically swappable reference to the active Registry.
// Load never blocks; reloads are serialized among themselves only.
type Store struct {
	current atomic.Pointer[Registry]
	writeMu sync.Mutex
}

// NewStore creates a Store holding r, or an empty registry when r is nil.
func NewStore(r *Registry) *Store {
	if r == nil {
		r = Empty()
	}

	s := &Store{}
	s.current.Store(r)

	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Registry {
	return s.current.Load()
}

// Swap installs r and returns the previous snapshot.
func (s *Store) Swap(r *Registry) *Registry {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.current.Swap(r)
}

// Reload builds the next snapshot from the hooks section and installs it.
// When the section is invalid the current snapshot stays active and the
// error is returned.
func (s *Store) Reload(cfg *config.HooksConfig) (*Registry, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var defs []*config.HookConfig
	if cfg != nil {
		defs = cfg.Definitions
	}

	next, err := s.current.Load().ReloadWith(DefaultsFrom(cfg), defs)
	if err != nil {
		return nil, err
	}

	s.current.Store(next)

	return next, nil
}
