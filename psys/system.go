package psys

import "fmt"

// System is the full simulator state: an arena of membranes, a
// registry of membrane prototypes, and an optional output membrane id.
//
// Invariants (spec.md I1-I5), maintained by the constructors below and
// by Step's commit phases:
//   - membranes, restricted to parent/children edges, forms a forest;
//     OutputID, if set, is in the forest.
//   - no Multiset has zero-valued entries.
//   - every Create entry in a live rule refers to a key in Prototypes.
//   - Dissolve may reference the output membrane; that reference is a
//     documented no-op.
//   - membrane ids are unique across the system.
type System struct {
	Membranes  map[MembId]*Membrane
	Prototypes map[Label][]Rule
	OutputID   *MembId

	// order is the stable insertion order used for phase-1 iteration
	// and for the recorder's per-step row order. It is not part of the
	// public data model (spec.md §3) but is required to make "insertion
	// order" (spec.md §4.4, §5) concrete.
	order []MembId
}

// NewSystem returns an empty System.
func NewSystem() *System {
	return &System{
		Membranes:  make(map[MembId]*Membrane),
		Prototypes: make(map[Label][]Rule),
	}
}

// AddMembrane installs a new, rule-free membrane with the given id as a
// child of parent (nil for a root). It returns an error if id already
// exists (I5) or if parent is non-nil and not live.
func (s *System) AddMembrane(parent *MembId, id MembId) (*Membrane, error) {
	if _, exists := s.Membranes[id]; exists {
		return nil, fmt.Errorf("psys: membrane %q already exists", id)
	}
	var p *MembId
	if parent != nil {
		par, ok := s.Membranes[*parent]
		if !ok {
			return nil, fmt.Errorf("psys: parent membrane %q does not exist", *parent)
		}
		pid := *parent
		p = &pid
		par.Children = append(par.Children, id)
	}
	m := &Membrane{
		ID:        id,
		Resources: NewMultiset(),
		Parent:    p,
	}
	s.Membranes[id] = m
	s.order = append(s.order, id)
	return m, nil
}

// RegisterPrototype installs rules as the template used when a Creator
// rule instantiates label.
func (s *System) RegisterPrototype(label Label, rules []Rule) {
	s.Prototypes[label] = cloneRules(rules)
}

// SetOutput marks id as the output membrane (never dissolved by the
// step engine). Returns an error if id is not live.
func (s *System) SetOutput(id MembId) error {
	if _, ok := s.Membranes[id]; !ok {
		return fmt.Errorf("psys: membrane %q does not exist", id)
	}
	s.OutputID = &id
	return nil
}

// Order returns the current stable insertion order of live membrane
// ids. The returned slice is a copy and safe to retain.
func (s *System) Order() []MembId {
	return append([]MembId(nil), s.order...)
}

func (s *System) removeFromOrder(id MembId) {
	out := s.order[:0]
	for _, x := range s.order {
		if x != id {
			out = append(out, x)
		}
	}
	s.order = out
}

func (s *System) isOutput(id MembId) bool {
	return s.OutputID != nil && *s.OutputID == id
}

// Clone returns a deep copy of the whole System: every membrane, every
// prototype, and the output marker. Used by external observers (e.g. a
// visualizer) that must not alias the engine's mutable state, per
// spec.md §5 ("the engine mutates its input in place").
func (s *System) Clone() *System {
	cp := NewSystem()
	for label, rules := range s.Prototypes {
		cp.Prototypes[label] = cloneRules(rules)
	}
	for id, m := range s.Membranes {
		cp.Membranes[id] = m.Clone()
	}
	cp.order = append([]MembId(nil), s.order...)
	if s.OutputID != nil {
		id := *s.OutputID
		cp.OutputID = &id
	}
	return cp
}
