package conversion

import "fmt"

// Collection is the ordered set of conversions resolved for one media
// item. Filtering never reorders.
type Collection struct {
	conversions []*Conversion
}

// NewCollection returns a collection holding convs in order.
func NewCollection(convs ...*Conversion) *Collection {
	return &Collection{conversions: append([]*Conversion(nil), convs...)}
}

// All returns the conversions in resolution order.
func (c *Collection) All() []*Conversion {
	return append([]*Conversion(nil), c.conversions...)
}

// Len returns the number of conversions.
func (c *Collection) Len() int {
	return len(c.conversions)
}

// IsEmpty reports whether the collection holds no conversions.
func (c *Collection) IsEmpty() bool {
	return len(c.conversions) == 0
}

// Names returns the conversion names in resolution order.
func (c *Collection) Names() []string {
	names := make([]string, len(c.conversions))
	for i, conv := range c.conversions {
		names[i] = conv.Name()
	}
	return names
}

// Has reports whether a conversion named name exists.
func (c *Collection) Has(name string) bool {
	_, err := c.GetByName(name)
	return err == nil
}

// GetByName returns the conversion called name or ErrUnknownConversion.
func (c *Collection) GetByName(name string) (*Conversion, error) {
	for _, conv := range c.conversions {
		if conv.Name() == name {
			return conv, nil
		}
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownConversion, name)
}

// Filter returns the conversions for which keep returns true.
func (c *Collection) Filter(keep func(*Conversion) bool) *Collection {
	out := &Collection{}
	for _, conv := range c.conversions {
		if keep(conv) {
			out.conversions = append(out.conversions, conv)
		}
	}
	return out
}

// ForCollection returns the conversions performed on the named media
// collection. An empty name disables the filter.
func (c *Collection) ForCollection(name string) *Collection {
	if name == "" {
		return c.Filter(func(*Conversion) bool { return true })
	}
	return c.Filter(func(conv *Conversion) bool { return conv.ShouldBePerformedOn(name) })
}

// Queued returns the conversions that may be deferred.
func (c *Collection) Queued() *Collection {
	return c.Filter((*Conversion).ShouldBeQueued)
}

// NonQueued returns the conversions that must run immediately.
func (c *Collection) NonQueued() *Collection {
	return c.Filter(func(conv *Conversion) bool { return !conv.ShouldBeQueued() })
}

// Only returns the conversions whose names are listed. An empty list keeps
// everything.
func (c *Collection) Only(names ...string) *Collection {
	if len(names) == 0 {
		return c.Filter(func(*Conversion) bool { return true })
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	return c.Filter(func(conv *Conversion) bool { return wanted[conv.Name()] })
}

// ConversionFiles maps each conversion name to the derived file name it
// produces for originalFileName.
func (c *Collection) ConversionFiles(originalFileName string) map[string]string {
	files := make(map[string]string, len(c.conversions))
	for _, conv := range c.conversions {
		files[conv.Name()] = conv.ConversionFileName(originalFileName)
	}
	return files
}
