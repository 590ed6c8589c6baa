package psys

// Application is one (rule, count) pair within a maximal application
// vector. RuleIndex is the rule's position in the rule list passed to
// EnumerateMaximals, kept so callers can recover the originating rule
// list entry without relying on value identity.
type Application struct {
	RuleIndex int
	Rule      Rule
	Count     int
}

// Vector is one maximal application vector: a list of (rule, count)
// pairs whose combined cost is feasible against the starting bag and
// which cannot be extended (spec.md §4.3).
type Vector []Application

// cost returns the total resource consumption of v.
func (v Vector) cost() Multiset {
	total := NewMultiset()
	for _, app := range v {
		total = Add(total, Scale(app.Rule.Left, app.Count))
	}
	return total
}

// EnumerateMaximals produces the set of maximal application vectors for
// rules against bag, following the depth-first, index-ordered
// enumeration of spec.md §4.3:
//
//  1. rules are considered in list order; each is tried at most once
//     per vector branch.
//  2. from index i, for each c in 1..bound(rules[i]), the branch
//     (rules[i], c) is explored, recursing at i+1; a sibling branch
//     that skips rules[i] entirely also recurses at i+1, so that
//     combinations omitting an individually-applicable rule are still
//     reachable.
//  3. a node where no rule in the full rule list — not just
//     [i, len(rules)) — can still apply against the remaining bag is
//     recorded as one maximal vector; a rule skipped earlier in this
//     branch but still feasible against the remaining bag keeps the
//     branch open even past index i.
//
// Every vector recorded is maximal; every maximal vector is recorded at
// least once, but the result may contain duplicates reached via
// different branch orderings (spec.md §9 Q1) — callers that need a
// deduplicated set must dedupe explicitly (e.g. by a canonical string
// key), since two entries are not required to be reference-distinct.
func EnumerateMaximals(rules []Rule, bag Multiset) []Vector {
	var out []Vector
	enumerate(rules, 0, bag, nil, &out)
	return out
}

func enumerate(rules []Rule, i int, remaining Multiset, current Vector, out *[]Vector) {
	anyApplicable := false
	for j := 0; j < len(rules); j++ {
		if rules[j].Bound(remaining).Feasible() {
			anyApplicable = true
			break
		}
	}
	if !anyApplicable {
		*out = append(*out, append(Vector(nil), current...))
		return
	}
	if i >= len(rules) {
		return
	}

	// Skip rules[i]: explore combinations that never use it even
	// though it may itself be individually applicable.
	enumerate(rules, i+1, remaining, current, out)

	// Use rules[i] at every feasible count.
	bound := rules[i].Bound(remaining)
	maxC := bound.Count()
	for c := 1; c <= maxC; c++ {
		nextRemaining := SubFloor(remaining, Scale(rules[i].Left, c))
		next := append(append(Vector(nil), current...), Application{RuleIndex: i, Rule: rules[i], Count: c})
		enumerate(rules, i+1, nextRemaining, next, out)
	}
}
