package usecase

import (
	"log/slog"
	"sort"
	"sync"

	"agentorg/internal/domain"
)

// Registry holds all persona specs and provides lookup. Specs are loaded once
// at startup; the only mutation is an explicit permission replacement.
type Registry struct {
	mu       sync.RWMutex
	personas map[string]*domain.PersonaSpec
	logger   *slog.Logger
}

// NewRegistry creates a Registry from the given specs.
func NewRegistry(specs []domain.PersonaSpec, logger *slog.Logger) *Registry {
	r := &Registry{
		personas: make(map[string]*domain.PersonaSpec, len(specs)),
		logger:   logger,
	}
	for i := range specs {
		spec := specs[i]
		r.personas[spec.Slug] = &spec
		logger.Info("persona registered", "slug", spec.Slug, "role", spec.Role)
	}
	return r
}

// Get returns a copy of the persona spec, or ErrUnknownPersona.
func (r *Registry) Get(slug string) (*domain.PersonaSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.personas[slug]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrUnknownPersona, slug)
	}
	cp := *spec
	return &cp, nil
}

// List returns copies of all persona specs, sorted by slug.
func (r *Registry) List() []domain.PersonaSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]domain.PersonaSpec, 0, len(r.personas))
	for _, spec := range r.personas {
		specs = append(specs, *spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Slug < specs[j].Slug })
	return specs
}

// UpdatePermissions replaces the persona's data-access, tool and routing
// fields and returns the updated spec. The rest of the spec is immutable.
func (r *Registry) UpdatePermissions(slug string, perms domain.Permissions) (*domain.PersonaSpec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, ok := r.personas[slug]
	if !ok {
		return nil, domain.NewDomainError("Registry.UpdatePermissions", domain.ErrUnknownPersona, slug)
	}
	spec.DataAccess = perms.DataAccess
	spec.Tools = perms.Tools
	spec.Routing = perms.Routing

	r.logger.Info("persona permissions updated", "slug", slug)
	cp := *spec
	return &cp, nil
}
