// Package psys implements the core of a P-system simulator: a
// nondeterministic, maximally-parallel rewriting engine over a
// hierarchy of membranes, each holding a multiset of symbols and a set
// of typed rewrite rules.
package psys

import (
	"fmt"
	"sort"
	"strings"
)

// Symbol is an opaque identifier for an object living in a membrane's
// multiset. A product symbol may carry a routing suffix (see
// ParseRouting); the base symbol is what is actually deposited.
type Symbol string

// Multiset is a finite mapping from Symbol to a positive count. Absent
// keys have count 0. Canonical form never stores a zero-valued entry.
type Multiset map[Symbol]int

// NewMultiset returns an empty, canonical Multiset.
func NewMultiset() Multiset {
	return make(Multiset)
}

// MultisetOf builds a canonical Multiset from a plain map literal,
// copying it and dropping any zero or negative entries.
func MultisetOf(counts map[Symbol]int) Multiset {
	m := make(Multiset, len(counts))
	for s, n := range counts {
		if n > 0 {
			m[s] = n
		}
	}
	return m
}

// Clone returns a deep copy of m.
func (m Multiset) Clone() Multiset {
	out := make(Multiset, len(m))
	for s, n := range m {
		out[s] = n
	}
	return out
}

// Get returns the count of s in m, or 0 if absent.
func (m Multiset) Get(s Symbol) int {
	return m[s]
}

// Equal reports whether m and other contain exactly the same symbols
// with the same counts.
func (m Multiset) Equal(other Multiset) bool {
	if len(m) != len(other) {
		return false
	}
	for s, n := range m {
		if other[s] != n {
			return false
		}
	}
	return true
}

// Add returns a new Multiset c with c[s] = a[s] + b[s] for every
// symbol, dropping zero entries.
func Add(a, b Multiset) Multiset {
	out := make(Multiset, len(a)+len(b))
	for s, n := range a {
		out[s] = n
	}
	for s, n := range b {
		if n == 0 {
			continue
		}
		out[s] += n
	}
	for s, n := range out {
		if n == 0 {
			delete(out, s)
		}
	}
	return out
}

// SubFloor returns a new Multiset c with c[s] = max(0, a[s] - b[s]) for
// every symbol, dropping zero entries.
func SubFloor(a, b Multiset) Multiset {
	out := make(Multiset, len(a))
	for s, n := range a {
		rem := n - b[s]
		if rem > 0 {
			out[s] = rem
		}
	}
	return out
}

// Scale returns a new Multiset c with c[s] = k*a[s]. k must be >= 0;
// k == 0 yields the empty multiset.
func Scale(a Multiset, k int) Multiset {
	if k <= 0 {
		return NewMultiset()
	}
	out := make(Multiset, len(a))
	for s, n := range a {
		out[s] = n * k
	}
	return out
}

// AppBound is the result of MaxApps: either a bounded integer count, or
// the "unconstrained" sentinel used for rules with an empty left side.
// This replaces the source's reuse of a float infinity (see DESIGN.md).
type AppBound struct {
	// Unconstrained is true for a rule whose left side is empty: such a
	// rule is applicable regardless of resources, but only once per
	// membrane per step (see SingleShot semantics in rule.go).
	Unconstrained bool

	// N is the bounded application count. Meaningful only when
	// Unconstrained is false.
	N int
}

// MaxApps computes n = min over s in keys(left) of floor(bag[s] /
// left[s]). A rule with an empty left side is always applicable
// exactly once; MaxApps reports that as the Unconstrained sentinel
// rather than overloading N with a float-infinity convention.
func MaxApps(bag, left Multiset) AppBound {
	if len(left) == 0 {
		return AppBound{Unconstrained: true}
	}
	n := -1
	for s, need := range left {
		if need <= 0 {
			continue
		}
		avail := bag[s] / need
		if n == -1 || avail < n {
			n = avail
		}
	}
	if n == -1 {
		n = 0
	}
	return AppBound{N: n}
}

// Count returns the number of times a single vector branch may apply
// the rule this bound was computed for: 1 for an unconstrained
// (empty-left) rule, else the bounded integer.
func (b AppBound) Count() int {
	if b.Unconstrained {
		return 1
	}
	return b.N
}

// Feasible reports whether the rule this bound was computed for can be
// applied at least once.
func (b AppBound) Feasible() bool {
	return b.Count() > 0
}

// String renders m in canonical, symbol-sorted bracket form, e.g.
// "[(a,3),(b,1)]", used throughout the recorder output.
func (m Multiset) String() string {
	if len(m) == 0 {
		return "[]"
	}
	keys := make([]Symbol, 0, len(m))
	for s := range m {
		keys = append(keys, s)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	var b strings.Builder
	b.WriteByte('[')
	for i, s := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "(%s,%d)", s, m[s])
	}
	b.WriteByte(']')
	return b.String()
}
