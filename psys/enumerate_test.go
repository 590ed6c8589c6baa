package psys_test

import (
	"testing"

	"github.com/cellmesh/psystem/psys"
)

// TestEnumerateMaximalsSingleRule checks the textbook integer-division
// shape: one rule, bag large enough for several applications, exactly
// one maximal vector using the rule at its bound.
func TestEnumerateMaximalsSingleRule(t *testing.T) {
	rule := psys.NewRewrite(ms(map[psys.Symbol]int{"a": 3}), ms(map[psys.Symbol]int{"b": 1}), 0)
	bag := ms(map[psys.Symbol]int{"a": 10})

	vectors := psys.EnumerateMaximals([]psys.Rule{rule}, bag)
	if len(vectors) == 0 {
		t.Fatal("expected at least one maximal vector")
	}
	for _, v := range vectors {
		if len(v) != 1 || v[0].Count != 3 {
			t.Fatalf("vector = %+v, want single application at count 3", v)
		}
	}
}

// TestEnumerateMaximalsTwoCompetingRules exercises the branch that
// skips an individually-applicable rule: with {a:1} left over after
// using rule 1 (cost a:3 each) three times against a bag of a:10,
// rule 2 ({a:1}->{r:1}) must still be reachable in some maximal
// vector alongside it.
func TestEnumerateMaximalsTwoCompetingRules(t *testing.T) {
	r1 := psys.NewRewrite(ms(map[psys.Symbol]int{"a": 3}), ms(map[psys.Symbol]int{"b": 1}), 0)
	r2 := psys.NewRewrite(ms(map[psys.Symbol]int{"a": 1}), ms(map[psys.Symbol]int{"r": 1}), 0)
	bag := ms(map[psys.Symbol]int{"a": 10})

	vectors := psys.EnumerateMaximals([]psys.Rule{r1, r2}, bag)

	foundCombined := false
	for _, v := range vectors {
		total := psys.NewMultiset()
		for _, app := range v {
			for i := 0; i < app.Count; i++ {
				total = psys.Add(total, app.Rule.Left)
			}
		}
		if total.Equal(bag) {
			foundCombined = true
		}
	}
	if !foundCombined {
		t.Fatalf("expected a maximal vector that fully consumes the bag, got %+v", vectors)
	}
}

// TestEnumerateMaximalsEmptyBag checks that an empty bag against
// rules with a non-empty left side yields exactly one (empty) maximal
// vector.
func TestEnumerateMaximalsEmptyBag(t *testing.T) {
	r := psys.NewRewrite(ms(map[psys.Symbol]int{"a": 1}), ms(map[psys.Symbol]int{"b": 1}), 0)
	vectors := psys.EnumerateMaximals([]psys.Rule{r}, psys.NewMultiset())
	for _, v := range vectors {
		if len(v) != 0 {
			t.Fatalf("expected empty vectors against an empty bag, got %+v", v)
		}
	}
	if len(vectors) == 0 {
		t.Fatal("expected at least one (empty) maximal vector recorded")
	}
}
