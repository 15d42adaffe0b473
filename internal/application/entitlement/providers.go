package entitlement

import (
	"github.com/featuregate/backend/internal/domain/entitlement"
)

// ProviderRegistry holds the named plan resolvers the consumption engine can
// route through. One resolver is the default; readers can pin another by
// name via Reader.Using.
type ProviderRegistry struct {
	resolvers   map[string]entitlement.PlanResolver
	defaultName string
}

// NewProviderRegistry creates an empty registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{resolvers: make(map[string]entitlement.PlanResolver)}
}

// Register adds a named resolver. The first registration becomes the default
// unless SetDefault is called.
func (r *ProviderRegistry) Register(name string, resolver entitlement.PlanResolver) {
	r.resolvers[name] = resolver
	if r.defaultName == "" {
		r.defaultName = name
	}
}

// SetDefault selects which resolver an unpinned reader uses
func (r *ProviderRegistry) SetDefault(name string) {
	r.defaultName = name
}

// Resolver returns the resolver registered under name, or the default when
// name is empty
func (r *ProviderRegistry) Resolver(name string) (entitlement.PlanResolver, error) {
	if name == "" {
		name = r.defaultName
	}
	resolver, ok := r.resolvers[name]
	if !ok {
		return nil, entitlement.ErrUnknownProvider
	}
	return resolver, nil
}
