package conversion

import (
	"sync"

	"media-conversions/internal/media"
)

// Registrar declares the conversions of a media item's owning model. It is
// called once per resolution and must return fresh Conversion values.
type Registrar interface {
	RegisterConversions(m *media.Media) ([]*Conversion, error)
}

// RegistrarFunc adapts a function to Registrar.
type RegistrarFunc func(m *media.Media) ([]*Conversion, error)

// RegisterConversions calls f(m).
func (f RegistrarFunc) RegisterConversions(m *media.Media) ([]*Conversion, error) {
	return f(m)
}

// Registry dispatches to a Registrar by media model type. Model types with
// no registrar declare no conversions.
type Registry struct {
	mu         sync.RWMutex
	registrars map[string]Registrar
	order      []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{registrars: make(map[string]Registrar)}
}

// Register sets the registrar for modelType, replacing any earlier one.
func (r *Registry) Register(modelType string, reg Registrar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.registrars[modelType]; !exists {
		r.order = append(r.order, modelType)
	}
	r.registrars[modelType] = reg
}

// ModelTypes returns the registered model types in registration order.
func (r *Registry) ModelTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// RegisterConversions implements Registrar.
func (r *Registry) RegisterConversions(m *media.Media) ([]*Conversion, error) {
	r.mu.RLock()
	reg, ok := r.registrars[m.ModelType]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return reg.RegisterConversions(m)
}
