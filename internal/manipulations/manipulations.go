package manipulations

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Operation names understood by the image processors.
const (
	Orientation = "orientation"
	Flip        = "flip"
	Crop        = "crop"
	ManualCrop  = "manualCrop"
	Width       = "width"
	Height      = "height"
	Fit         = "fit"
	Brightness  = "brightness"
	Gamma       = "gamma"
	Contrast    = "contrast"
	Blur        = "blur"
	Pixelate    = "pixelate"
	Greyscale   = "greyscale"
	Sepia       = "sepia"
	Sharpen     = "sharpen"
	Background  = "background"
	Quality     = "quality"
	Format      = "format"
	Optimize    = "optimize"
)

// ApplyOrder is the order in which the operations of a single group are
// applied. Geometry first, then colour, then encoding parameters.
var ApplyOrder = []string{
	Orientation,
	Flip,
	ManualCrop,
	Crop,
	Width,
	Height,
	Fit,
	Background,
	Brightness,
	Gamma,
	Contrast,
	Greyscale,
	Sepia,
	Blur,
	Pixelate,
	Sharpen,
	Quality,
	Format,
	Optimize,
}

var known = func() map[string]bool {
	m := make(map[string]bool, len(ApplyOrder))
	for _, op := range ApplyOrder {
		m[op] = true
	}
	return m
}()

// IsKnown reports whether op is an operation name the processors implement.
func IsKnown(op string) bool {
	return known[op]
}

// Group is one step of a manipulation chain: operation name to parameter.
type Group map[string]string

// Clone returns an independent copy of g.
func (g Group) Clone() Group {
	if g == nil {
		return nil
	}
	c := make(Group, len(g))
	for k, v := range g {
		c[k] = v
	}
	return c
}

// Operations returns the operation names of g in ApplyOrder.
func (g Group) Operations() []string {
	ops := make([]string, 0, len(g))
	for _, op := range ApplyOrder {
		if _, ok := g[op]; ok {
			ops = append(ops, op)
		}
	}
	if len(ops) == len(g) {
		return ops
	}

	var unknown []string
	for op := range g {
		if !known[op] {
			unknown = append(unknown, op)
		}
	}
	sort.Strings(unknown)
	return append(ops, unknown...)
}

// Set is an ordered sequence of manipulation groups. Groups are applied
// strictly left to right.
type Set struct {
	groups []Group
}

// New returns a set holding copies of the given groups. Empty groups are
// dropped.
func New(groups ...Group) *Set {
	s := &Set{}
	for _, g := range groups {
		if len(g) > 0 {
			s.groups = append(s.groups, g.Clone())
		}
	}
	return s
}

// Add sets op to value in the last group, creating it if the set is empty.
func (s *Set) Add(op, value string) *Set {
	if len(s.groups) == 0 {
		s.groups = append(s.groups, Group{})
	}
	s.groups[len(s.groups)-1][op] = value
	return s
}

// NextGroup starts a new group so that following Add calls are applied
// after everything added so far.
func (s *Set) NextGroup() *Set {
	if len(s.groups) > 0 && len(s.groups[len(s.groups)-1]) == 0 {
		return s
	}
	s.groups = append(s.groups, Group{})
	return s
}

// Groups returns a deep copy of the non-empty groups in application order.
func (s *Set) Groups() []Group {
	if s == nil {
		return nil
	}
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		if len(g) > 0 {
			out = append(out, g.Clone())
		}
	}
	return out
}

// Len returns the number of non-empty groups.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, g := range s.groups {
		if len(g) > 0 {
			n++
		}
	}
	return n
}

// IsEmpty reports whether the set holds no operation at all.
func (s *Set) IsEmpty() bool {
	return s.Len() == 0
}

// AddAsFirstManipulations inserts copies of other's groups before the groups
// already in s. Both sides keep their internal order.
func (s *Set) AddAsFirstManipulations(other *Set) *Set {
	prepend := other.Groups()
	if len(prepend) == 0 {
		return s
	}
	s.groups = append(prepend, s.groups...)
	return s
}

// Merge appends copies of other's groups after the groups already in s.
func (s *Set) Merge(other *Set) *Set {
	s.groups = append(s.groups, other.Groups()...)
	return s
}

// Clone returns a deep copy of s. Mutating the clone never affects s.
func (s *Set) Clone() *Set {
	if s == nil {
		return New()
	}
	return &Set{groups: s.Groups()}
}

// Get returns the value of op from the last group that sets it.
func (s *Set) Get(op string) (string, bool) {
	if s == nil {
		return "", false
	}
	for i := len(s.groups) - 1; i >= 0; i-- {
		if v, ok := s.groups[i][op]; ok {
			return v, true
		}
	}
	return "", false
}

// Remove deletes op from every group.
func (s *Set) Remove(op string) *Set {
	for _, g := range s.groups {
		delete(g, op)
	}
	return s
}

// Flatten merges every group left to right into a single group; a later
// group's value for an operation overrides an earlier one.
func (s *Set) Flatten() Group {
	flat := Group{}
	if s == nil {
		return flat
	}
	for _, g := range s.groups {
		for op, v := range g {
			flat[op] = v
		}
	}
	return flat
}

// Validate returns an error naming the first unknown operation.
func (s *Set) Validate() error {
	for i, g := range s.Groups() {
		for _, op := range g.Operations() {
			if !known[op] {
				return fmt.Errorf("manipulation group %d: unknown operation %q", i, op)
			}
		}
	}
	return nil
}

// MarshalJSON encodes the set as an array of objects.
func (s *Set) MarshalJSON() ([]byte, error) {
	groups := s.Groups()
	if groups == nil {
		groups = []Group{}
	}
	return json.Marshal(groups)
}

// UnmarshalJSON accepts either an array of objects or a single object.
func (s *Set) UnmarshalJSON(data []byte) error {
	var groups []Group
	if err := json.Unmarshal(data, &groups); err == nil {
		*s = *New(groups...)
		return nil
	}

	var single Group
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("decode manipulations: %w", err)
	}
	*s = *New(single)
	return nil
}
