package psys_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cellmesh/psystem/psys"
)

func seed(n int64) *int64 { return &n }

func runToQuiescence(t *testing.T, sys *psys.System, maxSteps int, base int64) {
	t.Helper()
	for i := 0; i < maxSteps; i++ {
		s := base + int64(i)
		if _, err := psys.Step(context.Background(), sys, seed(s)); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
}

// TestIntegerDivision is scenario S1.
func TestIntegerDivision(t *testing.T) {
	sys := psys.NewSystem()
	m1, err := sys.AddMembrane(nil, "m1")
	if err != nil {
		t.Fatal(err)
	}
	m1.Resources = ms(map[psys.Symbol]int{"a": 10})
	m1.Rules = []psys.Rule{
		psys.NewRewrite(ms(map[psys.Symbol]int{"a": 3}), ms(map[psys.Symbol]int{"b": 1}), 2),
		psys.NewRewrite(ms(map[psys.Symbol]int{"a": 1}), ms(map[psys.Symbol]int{"r": 1}), 1),
	}

	runToQuiescence(t, sys, 20, 1)

	want := ms(map[psys.Symbol]int{"b": 3, "r": 1})
	if got := sys.Membranes["m1"].Resources; !got.Equal(want) {
		t.Fatalf("quiescent resources = %v, want %v", got, want)
	}
}

// TestParity is scenario S2.
func TestParity(t *testing.T) {
	sys := psys.NewSystem()
	m1, err := sys.AddMembrane(nil, "m1")
	if err != nil {
		t.Fatal(err)
	}
	m1.Resources = ms(map[psys.Symbol]int{"a": 7})
	m1.Rules = []psys.Rule{
		psys.NewRewrite(ms(map[psys.Symbol]int{"a": 2}), psys.NewMultiset(), 2),
		psys.NewRewrite(ms(map[psys.Symbol]int{"a": 1}), ms(map[psys.Symbol]int{"i": 1}), 1),
	}

	runToQuiescence(t, sys, 20, 1)

	want := ms(map[psys.Symbol]int{"i": 1})
	if got := sys.Membranes["m1"].Resources; !got.Equal(want) {
		t.Fatalf("quiescent resources = %v, want %v", got, want)
	}
}

// TestRouting is scenario S3.
func TestRouting(t *testing.T) {
	sys := psys.NewSystem()
	m1, err := sys.AddMembrane(nil, "m1")
	if err != nil {
		t.Fatal(err)
	}
	m2, err := sys.AddMembrane(idp("m1"), "m2")
	if err != nil {
		t.Fatal(err)
	}
	m1.Resources = ms(map[psys.Symbol]int{"x": 3})
	m1.Rules = []psys.Rule{
		psys.NewRewrite(ms(map[psys.Symbol]int{"x": 2}), ms(map[psys.Symbol]int{"y_out": 1}), 2),
		psys.NewRewrite(ms(map[psys.Symbol]int{"x": 1}), ms(map[psys.Symbol]int{"z_in_m2": 1}), 2),
	}

	if _, err := psys.Step(context.Background(), sys, seed(1)); err != nil {
		t.Fatal(err)
	}

	if got := m1.Resources; len(got) != 0 {
		t.Fatalf("m1 should hold no x/y/z, got %v", got)
	}
	if got := m2.Resources.Get("z"); got != 1 {
		t.Fatalf("m2[z] = %d, want 1", got)
	}
	// m1 has no parent, so the routed "y" is lost: nowhere in the
	// system should a "y" appear.
	for id, m := range sys.Membranes {
		if m.Resources.Get("y") != 0 {
			t.Fatalf("membrane %q unexpectedly holds a y (should be lost, m1 has no parent)", id)
		}
	}
}

// TestDissolutionWithInheritance is scenario S4.
func TestDissolutionWithInheritance(t *testing.T) {
	sys := psys.NewSystem()
	m1, err := sys.AddMembrane(nil, "m1")
	if err != nil {
		t.Fatal(err)
	}
	m2, err := sys.AddMembrane(idp("m1"), "m2")
	if err != nil {
		t.Fatal(err)
	}
	m2.Resources = ms(map[psys.Symbol]int{"q": 5})
	m1.Resources = ms(map[psys.Symbol]int{"t": 1})
	m1.Rules = []psys.Rule{
		psys.NewDissolver(ms(map[psys.Symbol]int{"t": 1}), 1, "m2"),
	}

	if _, err := psys.Step(context.Background(), sys, seed(1)); err != nil {
		t.Fatal(err)
	}

	if _, live := sys.Membranes["m2"]; live {
		t.Fatal("m2 should no longer be in the system")
	}
	want := ms(map[psys.Symbol]int{"q": 5})
	if got := m1.Resources; !got.Equal(want) {
		t.Fatalf("m1.Resources = %v, want %v (q inherited, t consumed)", got, want)
	}
}

// TestDivision is scenario S5.
func TestDivision(t *testing.T) {
	sys := psys.NewSystem()
	if _, err := sys.AddMembrane(nil, "r"); err != nil {
		t.Fatal(err)
	}
	m1, err := sys.AddMembrane(idp("r"), "m1")
	if err != nil {
		t.Fatal(err)
	}
	m1.Resources = ms(map[psys.Symbol]int{"a": 4})
	m1.Rules = []psys.Rule{
		psys.NewDivider(ms(map[psys.Symbol]int{"a": 2}), 1,
			ms(map[psys.Symbol]int{"b": 1}), ms(map[psys.Symbol]int{"c": 1})),
	}

	res, err := psys.Step(context.Background(), sys, seed(1))
	if err != nil {
		t.Fatal(err)
	}

	if _, live := sys.Membranes["m1"]; live {
		t.Fatal("m1 should be gone after division")
	}
	if len(res.Created) != 2 {
		t.Fatalf("expected 2 created offspring, got %d", len(res.Created))
	}

	root := sys.Membranes["r"]
	if len(root.Children) != 2 {
		t.Fatalf("root should have 2 children after division, got %d", len(root.Children))
	}

	wantB := ms(map[psys.Symbol]int{"a": 2, "b": 1})
	wantC := ms(map[psys.Symbol]int{"a": 2, "c": 1})
	var sawB, sawC bool
	for _, childID := range root.Children {
		child := sys.Membranes[childID]
		if child.Resources.Equal(wantB) {
			sawB = true
		}
		if child.Resources.Equal(wantC) {
			sawC = true
		}
		if len(child.Rules) != 1 {
			t.Fatalf("offspring should inherit m1's 1 rule, got %d", len(child.Rules))
		}
	}
	if !sawB || !sawC {
		t.Fatalf("expected offspring {a:2,b:1} and {a:2,c:1}, root children = %v", root.Children)
	}
}

// TestDeterminism is scenario S6: identical (system, seed) inputs
// produce identical StepResult hashes across independently built
// systems.
func TestDeterminism(t *testing.T) {
	build := func() *psys.System {
		sys := psys.NewSystem()
		m1, _ := sys.AddMembrane(nil, "m1")
		m1.Resources = ms(map[psys.Symbol]int{"a": 10})
		m1.Rules = []psys.Rule{
			psys.NewRewrite(ms(map[psys.Symbol]int{"a": 3}), ms(map[psys.Symbol]int{"b": 1}), 2),
			psys.NewRewrite(ms(map[psys.Symbol]int{"a": 1}), ms(map[psys.Symbol]int{"r": 1}), 1),
		}
		return sys
	}

	sysA, sysB := build(), build()
	for i := 0; i < 20; i++ {
		s := int64(42 + i)
		resA, errA := psys.Step(context.Background(), sysA, &s)
		resB, errB := psys.Step(context.Background(), sysB, &s)
		if errA != nil || errB != nil {
			t.Fatalf("step %d errors: %v / %v", i, errA, errB)
		}
		if resA.Hash() != resB.Hash() {
			t.Fatalf("step %d: hashes diverge: %s vs %s", i, resA.Hash(), resB.Hash())
		}
	}
}

// TestNoZeroEntriesAfterStep is property P1.
func TestNoZeroEntriesAfterStep(t *testing.T) {
	sys := psys.NewSystem()
	m1, _ := sys.AddMembrane(nil, "m1")
	m1.Resources = ms(map[psys.Symbol]int{"a": 5})
	m1.Rules = []psys.Rule{
		psys.NewRewrite(ms(map[psys.Symbol]int{"a": 2}), ms(map[psys.Symbol]int{"a": 2}), 0),
	}
	if _, err := psys.Step(context.Background(), sys, seed(1)); err != nil {
		t.Fatal(err)
	}
	for s, n := range m1.Resources {
		if n <= 0 {
			t.Fatalf("zero or negative entry %q=%d survived a step", s, n)
		}
	}
}

// TestPrototypeMissingIsFatal verifies the engine reports
// PrototypeMissing and leaves the system pre-step consistent.
func TestPrototypeMissingIsFatal(t *testing.T) {
	sys := psys.NewSystem()
	m1, _ := sys.AddMembrane(nil, "m1")
	m1.Resources = ms(map[psys.Symbol]int{"a": 1})
	m1.Rules = []psys.Rule{
		psys.NewCreator(ms(map[psys.Symbol]int{"a": 1}), 0, psys.CreateSpec{Prototype: "ghost"}),
	}

	_, err := psys.Step(context.Background(), sys, seed(1))
	if err == nil {
		t.Fatal("expected PrototypeMissing error")
	}
	var target *psys.PrototypeMissingError
	if !errors.As(err, &target) {
		t.Fatalf("error %v is not a *PrototypeMissingError", err)
	}
	if len(sys.Membranes) != 1 || !m1.Resources.Equal(ms(map[psys.Symbol]int{"a": 1})) {
		t.Fatalf("system changed by failed step: %d membranes, m1.Resources = %v", len(sys.Membranes), m1.Resources)
	}
}

func idp(id psys.MembId) *psys.MembId { return &id }
