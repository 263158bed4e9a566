package conversion

import (
	"fmt"

	"media-conversions/internal/logging"
	"media-conversions/internal/manipulations"
	"media-conversions/internal/media"
)

// WildcardManipulations is the per-item manipulations key applied to every
// conversion.
const WildcardManipulations = "*"

// Resolver builds the conversion collection of a media item from its
// model's declarations and the item's stored manipulations.
type Resolver struct {
	registrar Registrar
}

// NewResolver returns a Resolver backed by registrar.
func NewResolver(registrar Registrar) *Resolver {
	return &Resolver{registrar: registrar}
}

// ForMedia resolves the conversions for m. The result depends only on the
// registrar's declarations and m.Manipulations.
//
// Per-item manipulations are prepended so they run before the declared
// chain. A named override is prepended first and the wildcard group after
// it, giving the order [wildcard, named, declared...]; the named override
// therefore wins over the wildcard for the same operation. Overrides for
// names the model does not declare are ignored.
func (r *Resolver) ForMedia(m *media.Media) (*Collection, error) {
	convs, err := r.registrar.RegisterConversions(m)
	if err != nil {
		return nil, fmt.Errorf("register conversions for %s: %w", m.ModelType, err)
	}

	seen := make(map[string]bool, len(convs))
	for _, conv := range convs {
		if conv == nil {
			return nil, fmt.Errorf("%w: nil conversion declared for %s", ErrConfiguration, m.ModelType)
		}
		if seen[conv.Name()] {
			return nil, fmt.Errorf("%w %q for %s", ErrDuplicateConversion, conv.Name(), m.ModelType)
		}
		seen[conv.Name()] = true
	}

	collection := NewCollection(convs...)

	for name, group := range m.Manipulations {
		if name == WildcardManipulations || len(group) == 0 {
			continue
		}
		conv, err := collection.GetByName(name)
		if err != nil {
			logging.Debug("Ignoring stored manipulations for undeclared conversion %q on media %d", name, m.ID)
			continue
		}
		conv.AddAsFirstManipulations(manipulations.New(group))
	}

	if group, ok := m.Manipulations[WildcardManipulations]; ok && len(group) > 0 {
		wildcard := manipulations.New(group)
		for _, conv := range collection.conversions {
			conv.AddAsFirstManipulations(wildcard.Clone())
		}
	}

	return collection, nil
}
