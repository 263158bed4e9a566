package media

import "strings"

// HasCustomProperty reports whether the dot-notation path exists.
func (m *Media) HasCustomProperty(path string) bool {
	_, ok := lookup(m.CustomProperties, path)
	return ok
}

// GetCustomProperty returns the value at the dot-notation path or def.
func (m *Media) GetCustomProperty(path string, def any) any {
	if v, ok := lookup(m.CustomProperties, path); ok {
		return v
	}
	return def
}

// SetCustomProperty sets the value at the dot-notation path, creating
// intermediate maps as needed.
func (m *Media) SetCustomProperty(path string, value any) {
	if m.CustomProperties == nil {
		m.CustomProperties = make(map[string]any)
	}
	parts := strings.Split(path, ".")
	current := m.CustomProperties
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// ForgetCustomProperty removes the value at the dot-notation path.
func (m *Media) ForgetCustomProperty(path string) {
	parts := strings.Split(path, ".")
	current := m.CustomProperties
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, parts[len(parts)-1])
}

func lookup(props map[string]any, path string) (any, bool) {
	if props == nil {
		return nil, false
	}
	var current any = props
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func deepCopyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		switch tv := v.(type) {
		case map[string]any:
			dst[k] = deepCopyMap(tv)
		case []any:
			dst[k] = append([]any(nil), tv...)
		default:
			dst[k] = v
		}
	}
	return dst
}
