package psys

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
)

// CreatedEdge records one committed membrane instantiation: new was
// attached as a child of parent.
type CreatedEdge struct {
	Parent MembId
	New    MembId
}

// StepResult is the outcome of one timestep (spec.md §4.5, final
// paragraph). Selection and Consumed are keyed by the membrane ids that
// existed at the start of the step (a divided membrane still appears);
// Created and Dissolved reflect the committed structural changes.
type StepResult struct {
	Selection   map[MembId]Vector
	Consumed    map[MembId]Multiset
	Productions map[MembId]Multiset
	Created     []CreatedEdge
	Dissolved   []MembId

	// Order is the snapshot iteration order used by this step, exposed
	// so the recorder can emit rows deterministically without
	// re-deriving it from a (by then mutated) System.
	Order []MembId
}

// Hash returns a short, stable fingerprint of r suitable for asserting
// determinism across repeated (System, seed) runs (spec.md P6), in the
// spirit of the teacher's checkpoint idempotency key: a sha256 of a
// canonical JSON encoding, hex-encoded and truncated to 16 characters.
func (r StepResult) Hash() string {
	type canonical struct {
		Selection   map[MembId]Vector    `json:"selection"`
		Consumed    map[MembId]Multiset  `json:"consumed"`
		Productions map[MembId]Multiset  `json:"productions"`
		Created     []CreatedEdge        `json:"created"`
		Dissolved   []MembId             `json:"dissolved"`
	}
	data, err := json.Marshal(canonical{
		Selection:   r.Selection,
		Consumed:    r.Consumed,
		Productions: r.Productions,
		Created:     r.Created,
		Dissolved:   r.Dissolved,
	})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// pendingCreate is a staged membrane instantiation, resolved into a
// live Membrane during commit phase 4.
type pendingCreate struct {
	parent    MembId
	label     Label // empty for division offspring
	resources Multiset
	rules     []Rule
}

// Step runs one atomic timestep against sys: selection (phase 1),
// then the three ordered commit phases (productions, dissolutions,
// creations) of spec.md §4.4-4.5. seed, if non-nil, seeds the step's
// PRNG deterministically (spec.md P6); a nil seed draws from a
// nondeterministic source.
//
// ctx is consulted only at entry — consistent with spec.md §5, a step
// never suspends mid-phase, so there is nothing useful to cancel once
// started.
func Step(ctx context.Context, sys *System, seed *int64) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}

	var rng *rand.Rand
	if seed != nil {
		rng = rand.New(rand.NewSource(*seed)) // #nosec G404 -- deterministic step PRNG, not security-sensitive
	} else {
		rng = rand.New(rand.NewSource(nondeterministicSeed()))
	}

	snapshotOrder := sys.Order()

	result := StepResult{
		Selection:   make(map[MembId]Vector),
		Consumed:    make(map[MembId]Multiset),
		Productions: make(map[MembId]Multiset),
		Order:       snapshotOrder,
	}

	var toCreate []pendingCreate
	var toDissolve []MembId
	divisionVictims := make(map[MembId]bool)

	// Phase 1: read-only selection across the snapshot. No membrane is
	// mutated here; all effects are staged.
	for _, id := range snapshotOrder {
		m := sys.Membranes[id]
		res := m.Resources.Clone()

		applicable := make([]Rule, 0, len(m.Rules))
		for _, r := range m.Rules {
			if r.Bound(res).Feasible() {
				applicable = append(applicable, r)
			}
		}

		result.Productions[id] = NewMultiset()

		if len(applicable) == 0 {
			result.Consumed[id] = res
			continue
		}

		top := topPriorityClass(applicable)
		vectors := EnumerateMaximals(top, res)
		if len(vectors) == 0 {
			result.Consumed[id] = res
			continue
		}
		selected := vectors[rng.Intn(len(vectors))]
		result.Selection[id] = selected

		consumedRes := SubFloor(res, selected.cost())
		result.Consumed[id] = consumedRes

		dividerSeen := false
		for _, app := range selected {
			switch app.Rule.Kind() {
			case KindDivider:
				if dividerSeen {
					// Only the first divider application in a vector
					// structurally divides the membrane (see
					// Rule.SingleShot and DESIGN.md); any further
					// divider entries still consumed resources above
					// but spawn no additional offspring.
					continue
				}
				dividerSeen = true
				divisionVictims[id] = true
				base := SubFloor(m.Resources, Scale(app.Rule.Left, app.Count))
				toCreate = append(toCreate,
					pendingCreate{parent: *parentOrZero(m, sys), resources: Add(base, app.Rule.Divide.V), rules: cloneRules(m.Rules)},
					pendingCreate{parent: *parentOrZero(m, sys), resources: Add(base, app.Rule.Divide.W), rules: cloneRules(m.Rules)},
				)
				toDissolve = append(toDissolve, id)
			default:
				if err := stageProductions(sys, id, app, result.Productions); err != nil {
					return StepResult{}, err
				}
				for c := 0; c < app.Count; c++ {
					for _, cs := range app.Rule.Create {
						if _, ok := sys.Prototypes[cs.Prototype]; !ok {
							return StepResult{}, &PrototypeMissingError{Label: cs.Prototype}
						}
						toCreate = append(toCreate, pendingCreate{
							parent:    id,
							label:     cs.Prototype,
							resources: cs.Resources.Clone(),
							rules:     cloneRules(sys.Prototypes[cs.Prototype]),
						})
					}
					toDissolve = append(toDissolve, app.Rule.Dissolve...)
				}
			}
		}
	}

	// Divider rules require a live parent; a divided root has no
	// parent to attach offspring to, which is an invariant violation
	// (a root cannot structurally divide under this model).
	for id := range divisionVictims {
		if sys.Membranes[id].Parent == nil {
			return StepResult{}, &InvariantViolationError{
				Description: fmt.Sprintf("membrane %q has no parent to attach division offspring to", id),
			}
		}
	}

	// Phase 2: apply productions. Division victims are skipped: their
	// productions are discarded because the membrane ceases to exist.
	for _, id := range snapshotOrder {
		if divisionVictims[id] {
			continue
		}
		m := sys.Membranes[id]
		m.Resources = Add(result.Consumed[id], result.Productions[id])
	}

	// Phase 3: dissolutions, in staging order.
	for _, d := range toDissolve {
		if sys.isOutput(d) {
			continue
		}
		m, live := sys.Membranes[d]
		if !live {
			continue
		}
		if p := m.Parent; p != nil {
			parent := sys.Membranes[*p]
			if !divisionVictims[d] {
				parent.Resources = Add(parent.Resources, m.Resources)
			}
			for _, child := range m.Children {
				cm := sys.Membranes[child]
				pid := *p
				cm.Parent = &pid
				parent.Children = append(parent.Children, child)
			}
			parent.removeChild(d)
		}
		delete(sys.Membranes, d)
		sys.removeFromOrder(d)
		result.Dissolved = append(result.Dissolved, d)
	}

	// Phase 4: creations, in staging order.
	for _, pc := range toCreate {
		newID, err := freshID(sys, pc.parent, pc.label, rng)
		if err != nil {
			return StepResult{}, err
		}
		nm := &Membrane{
			ID:        newID,
			Resources: pc.resources,
			Rules:     pc.rules,
			Parent:    &pc.parent,
		}
		sys.Membranes[newID] = nm
		sys.order = append(sys.order, newID)
		parent, ok := sys.Membranes[pc.parent]
		if !ok {
			return StepResult{}, &InvariantViolationError{
				Description: fmt.Sprintf("creation parent %q is not live", pc.parent),
			}
		}
		parent.Children = append(parent.Children, newID)
		result.Created = append(result.Created, CreatedEdge{Parent: pc.parent, New: newID})
	}

	return result, nil
}

// topPriorityClass returns the subset of rules sharing the maximum
// priority present in rules. Only this class is eligible to fire
// (spec.md §4.4 step 4): priority is a class filter applied before
// enumeration, never a secondary order inside it.
func topPriorityClass(rules []Rule) []Rule {
	best := rules[0].Priority
	for _, r := range rules[1:] {
		if r.Priority > best {
			best = r.Priority
		}
	}
	top := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Priority == best {
			top = append(top, r)
		}
	}
	return top
}

// stageProductions credits app's products to their routed targets as
// of the phase-1 snapshot (reads sys.Membranes directly, which is still
// unmutated at this point in Step).
func stageProductions(sys *System, fromID MembId, app Application, productions map[MembId]Multiset) error {
	m := sys.Membranes[fromID]
	for sym, n := range app.Rule.Right {
		base, kind, target, err := ParseRouting(sym)
		if err != nil {
			return err
		}
		credit := n * app.Count
		var targetID MembId
		switch kind {
		case RouteParent:
			if m.Parent == nil {
				continue // no-op: no parent to credit
			}
			targetID = *m.Parent
		case RouteSibling:
			if _, live := sys.Membranes[target]; !live {
				continue // no-op: routing target not live at snapshot time
			}
			targetID = target
		default:
			targetID = fromID
		}
		if productions[targetID] == nil {
			productions[targetID] = NewMultiset()
		}
		productions[targetID][base] += credit
	}
	return nil
}

func parentOrZero(m *Membrane, sys *System) *MembId {
	if m.Parent != nil {
		return m.Parent
	}
	zero := MembId("")
	return &zero
}

// freshID generates a collision-free membrane id: "<parent>_<label>_
// <rand8hex>" for a prototype instantiation, "<parent>_<rand8hex>" for
// a division offspring (empty label).
func freshID(sys *System, parent MembId, label Label, rng *rand.Rand) (MembId, error) {
	for attempts := 0; attempts < 1<<20; attempts++ {
		suffix := randHex8(rng)
		var id MembId
		if label != "" {
			id = MembId(fmt.Sprintf("%s_%s_%s", parent, label, suffix))
		} else {
			id = MembId(fmt.Sprintf("%s_%s", parent, suffix))
		}
		if _, exists := sys.Membranes[id]; !exists {
			return id, nil
		}
	}
	return "", &InvariantViolationError{Description: "exhausted id generation attempts"}
}

func randHex8(rng *rand.Rand) string {
	return fmt.Sprintf("%08x", rng.Uint32()) // #nosec G404 -- deterministic step PRNG, not security-sensitive
}

// nondeterministicSeed is used only when Step is called without a seed
// (no replay guarantee requested).
func nondeterministicSeed() int64 {
	var b [8]byte
	_, _ = cryptorand.Read(b[:])
	var n int64
	for _, x := range b {
		n = n<<8 | int64(x)
	}
	return n
}
