package psys

import "fmt"

// Merge combines systems under a fresh, empty, rule-free root membrane
// with id rootLabel, renaming every input id to guarantee uniqueness
// (spec.md §4.7). Each input's root membranes (parent == nil) become
// children of the new root. outputID, if non-nil, is installed as the
// merged system's output membrane and must name a post-rename id.
//
// Returns the merged System plus the list of unrewritten cross-system
// routing keys found in any input's rule right-hand sides: a product
// key with an "_in_<mid>" infix where mid names one of that same
// input's own (pre-rename) membrane ids is left as-is even though
// every membrane id is renamed by the merge, so the key will never
// resolve again post-merge (spec.md §9 Q3 — this implementation's
// policy is to document rather than silently rewrite such keys, since
// rewriting would require parsing every input's id namespace ahead of
// the merge and risks masking a caller's routing bug).
func Merge(rootLabel Label, outputID *MembId, systems ...*System) (*System, []string, error) {
	merged := NewSystem()
	rootID := MembId(rootLabel)
	if _, err := merged.AddMembrane(nil, rootID); err != nil {
		return nil, nil, err
	}

	var warnings []string

	for i, sys := range systems {
		rename := func(old MembId) MembId {
			return MembId(fmt.Sprintf("%s_%d_%s", rootLabel, i, old))
		}

		for label, rules := range sys.Prototypes {
			merged.RegisterPrototype(label, rules)
		}

		for _, oldID := range sys.Order() {
			m := sys.Membranes[oldID]
			newID := rename(oldID)

			var parent *MembId
			if m.Parent != nil {
				p := rename(*m.Parent)
				parent = &p
			} else {
				parent = &rootID
			}

			nm, err := merged.AddMembrane(parent, newID)
			if err != nil {
				return nil, nil, err
			}
			nm.Resources = m.Resources.Clone()
			nm.Rules = cloneRules(m.Rules)

			for _, r := range nm.Rules {
				for sym := range r.Right {
					if _, kind, target, err := ParseRouting(sym); err == nil && kind == RouteSibling {
						if _, ownID := sys.Membranes[target]; ownID {
							warnings = append(warnings,
								fmt.Sprintf("input %d membrane %q: routing key %q references pre-merge id %q, which is renamed by merge and will no longer resolve", i, oldID, sym, target))
						}
					}
				}
				// Create entries reference global prototype labels, not
				// membrane ids, so they need no renaming. Dissolve
				// targets, by contrast, name a specific pre-merge
				// membrane id and would silently no-op forever after
				// merge if left unrewritten, so this implementation
				// renames them (a policy choice beyond what spec.md §9
				// Q3 requires; see DESIGN.md).
				for j, d := range r.Dissolve {
					r.Dissolve[j] = rename(d)
				}
			}
		}
	}

	if outputID != nil {
		if err := merged.SetOutput(*outputID); err != nil {
			return nil, nil, err
		}
	}

	return merged, warnings, nil
}
