package vm

// transitionKey identifies a property-adding transition.
type transitionKey struct {
	name  *Name
	kind  PropertyKind
	attrs Attributes
}

// TransitionTable memoizes the shapes derived from one shape. Iteration
// order is creation order so renderings of the transition tree are
// deterministic.
type TransitionTable struct {
	targets    map[transitionKey]*Shape
	elements   map[ElementsKind]*Shape
	prototypes map[*JSObject]*Shape
	order      []*Shape
}

func newTransitionTable() *TransitionTable {
	return &TransitionTable{}
}

func (t *TransitionTable) find(key transitionKey) *Shape {
	if t.targets == nil {
		return nil
	}
	return t.targets[key]
}

func (t *TransitionTable) insert(key transitionKey, s *Shape) {
	if t.targets == nil {
		t.targets = make(map[transitionKey]*Shape)
	}
	t.targets[key] = s
	t.order = append(t.order, s)
}

// replace points key at s, keeping the old target reachable for
// deprecation walks.
func (t *TransitionTable) replace(key transitionKey, s *Shape) {
	if t.targets == nil {
		t.targets = make(map[transitionKey]*Shape)
	}
	t.targets[key] = s
	t.order = append(t.order, s)
}

func (t *TransitionTable) insertElements(kind ElementsKind, s *Shape) {
	if t.elements == nil {
		t.elements = make(map[ElementsKind]*Shape)
	}
	t.elements[kind] = s
	t.order = append(t.order, s)
}

func (t *TransitionTable) insertPrototype(proto *JSObject, s *Shape) {
	if t.prototypes == nil {
		t.prototypes = make(map[*JSObject]*Shape)
	}
	t.prototypes[proto] = s
	t.order = append(t.order, s)
}

// derived returns shapes that share layout history with the owner: property
// and elements-kind transitions, but not prototype transitions.
func (t *TransitionTable) derived() []*Shape {
	out := make([]*Shape, 0, len(t.order))
	for _, s := range t.order {
		if s.backPointer != nil {
			out = append(out, s)
		}
	}
	return out
}

func (t *TransitionTable) all() []*Shape {
	out := make([]*Shape, len(t.order))
	copy(out, t.order)
	return out
}

// Len returns the number of transitions ever recorded.
func (t *TransitionTable) Len() int { return len(t.order) }
