// Package registry holds the current generation of split artifacts.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slipmail/slipmail/internal/model"
)

type snapshot struct {
	number    uint64
	createdAt time.Time
	ordered   []model.Artifact
	byID      map[string]int
}

// Registry exposes exactly one generation at a time. Readers load an
// immutable snapshot through an atomic pointer, so they see either the
// previous generation or the new one, never a mix.
type Registry struct {
	current atomic.Pointer[snapshot]
	writeMu sync.Mutex
	now     func() time.Time
}

// New returns an empty registry at generation 0.
func New() *Registry {
	r := &Registry{now: time.Now}
	r.current.Store(&snapshot{byID: map[string]int{}})
	return r
}

// ReplaceAll discards the current generation and installs artifacts as the
// next one. It returns the new generation number.
func (r *Registry) ReplaceAll(artifacts []model.Artifact) (uint64, error) {
	byID := make(map[string]int, len(artifacts))
	ordered := make([]model.Artifact, len(artifacts))
	for i, a := range artifacts {
		if a.ID == "" {
			return 0, fmt.Errorf("registry: artifact %d has empty id", i)
		}
		if _, dup := byID[a.ID]; dup {
			return 0, fmt.Errorf("registry: duplicate artifact id %s", a.ID)
		}
		byID[a.ID] = i
		ordered[i] = a
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	next := &snapshot{
		number:    r.current.Load().number + 1,
		createdAt: r.now(),
		ordered:   ordered,
		byID:      byID,
	}
	r.current.Store(next)
	return next.number, nil
}

// Get returns the artifact with id from the current generation.
func (r *Registry) Get(id string) (model.Artifact, error) {
	s := r.current.Load()
	i, ok := s.byID[id]
	if !ok {
		return model.Artifact{}, fmt.Errorf("%w: %s", model.ErrArtifactNotFound, id)
	}
	return s.ordered[i], nil
}

// List returns a copy of the current generation in sequence order.
func (r *Registry) List() []model.Artifact {
	return r.Snapshot().Artifacts
}

// Snapshot returns the current generation with its number.
func (r *Registry) Snapshot() model.Generation {
	s := r.current.Load()
	out := make([]model.Artifact, len(s.ordered))
	copy(out, s.ordered)
	return model.Generation{Number: s.number, Artifacts: out, CreatedAt: s.createdAt}
}

// Generation returns the current generation number; 0 means nothing has
// been registered yet.
func (r *Registry) Generation() uint64 {
	return r.current.Load().number
}
