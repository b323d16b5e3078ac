package router

import (
	"fmt"

	"github.com/packetflow/router/element"
)

// portRef addresses one port of one element, input or output side.
type portRef struct {
	elementIdx int
	isOutput   bool
	port       int
}

// flowSolver resolves every Agnostic port's direction by union-find over
// the bipartite graph of agnostic ports connected (directly, or through a
// chain of other agnostic ports) by Connections or by an element's own
// flow code, per spec.md §4.C: "for each connected component, every port
// must be coerced to the same direction... a component with both [a push
// constraint and a pull constraint] is an error... neither defaults to
// push."
//
// Union-find gives the O((P + C)·α) bound spec.md asks for: each union or
// find is near-constant time (inverse-Ackermann) regardless of graph size.
type flowSolver struct {
	parent   []int
	rank     []int
	pushWant []bool
	pullWant []bool
	refs     []portRef
	index    map[portRef]int
}

func newFlowSolver() *flowSolver {
	return &flowSolver{index: make(map[portRef]int)}
}

func (f *flowSolver) idOf(ref portRef) int {
	if id, ok := f.index[ref]; ok {
		return id
	}
	id := len(f.refs)
	f.index[ref] = id
	f.refs = append(f.refs, ref)
	f.parent = append(f.parent, id)
	f.rank = append(f.rank, 0)
	f.pushWant = append(f.pushWant, false)
	f.pullWant = append(f.pullWant, false)
	return id
}

func (f *flowSolver) find(x int) int {
	for f.parent[x] != x {
		f.parent[x] = f.parent[f.parent[x]]
		x = f.parent[x]
	}
	return x
}

func (f *flowSolver) union(a, b int) {
	ra, rb := f.find(a), f.find(b)
	if ra == rb {
		return
	}
	if f.rank[ra] < f.rank[rb] {
		ra, rb = rb, ra
	}
	f.parent[rb] = ra
	f.pushWant[ra] = f.pushWant[ra] || f.pushWant[rb]
	f.pullWant[ra] = f.pullWant[ra] || f.pullWant[rb]
	if f.rank[ra] == f.rank[rb] {
		f.rank[ra]++
	}
}

func (f *flowSolver) want(x int, dir element.Direction) {
	r := f.find(x)
	switch dir {
	case element.Push:
		f.pushWant[r] = true
	case element.Pull:
		f.pullWant[r] = true
	}
}

// resolveFlowDirections computes the final Direction for every port of
// every element: ports that declared Push or Pull keep that direction;
// Agnostic ports are grouped into connected components (via connections
// and flow codes linking agnostic ports together) and assigned uniformly,
// defaulting to Push when neither endpoint constrains the component.
//
// Returns, per element, the resolved input and output Direction slices, or
// an error naming the first conflicting port pair found.
func resolveFlowDirections(elems []element.Element, procs []element.Processing, conns []Connection) ([][2][]element.Direction, error) {
	solver := newFlowSolver()

	// Seed every agnostic port so it has a union-find node even if it has
	// no connection at all (isolated agnostic ports simply default push).
	for ei, p := range procs {
		for pi, d := range p.In {
			if d == element.Agnostic {
				solver.idOf(portRef{ei, false, pi})
			}
		}
		for pi, d := range p.Out {
			if d == element.Agnostic {
				solver.idOf(portRef{ei, true, pi})
			}
		}
	}

	// A connection directly links a from-output to a to-input; if both
	// sides are agnostic, they must resolve to the same direction, so they
	// join one component. If exactly one side is fixed, the agnostic side
	// is constrained by it.
	for _, c := range conns {
		fromDir := procs[c.FromElement].Out[c.FromPort]
		toDir := procs[c.ToElement].In[c.ToPort]

		switch {
		case fromDir == element.Agnostic && toDir == element.Agnostic:
			a := solver.idOf(portRef{c.FromElement, true, c.FromPort})
			b := solver.idOf(portRef{c.ToElement, false, c.ToPort})
			solver.union(a, b)
		case fromDir == element.Agnostic:
			a := solver.idOf(portRef{c.FromElement, true, c.FromPort})
			solver.want(a, toDir)
		case toDir == element.Agnostic:
			b := solver.idOf(portRef{c.ToElement, false, c.ToPort})
			solver.want(b, fromDir)
		default:
			// Both ends are fixed: a push output feeds a push input, and a
			// pull input reads from a pull output — the direction itself
			// flows opposite to the packet for pull, but spec.md §3 states
			// the matching rule in terms of port kind, not packet flow:
			// "every push output connects to exactly one push input; every
			// pull input connects to exactly one pull output."
			if fromDir != toDir {
				return nil, fmt.Errorf("router: connection %d.%d -> %d.%d has incompatible fixed directions %s/%s",
					c.FromElement, c.FromPort, c.ToElement, c.ToPort, fromDir, toDir)
			}
		}
	}

	// An element's flow code links its own agnostic input and output ports
	// into one component: simple_action() is a single call site, so an
	// element's agnostic in-port and agnostic out-port must agree.
	for ei, el := range elems {
		if el.FlowCode() == "" {
			continue
		}
		p := procs[ei]
		var first int
		have := false
		for pi, d := range p.In {
			if d != element.Agnostic {
				continue
			}
			id := solver.idOf(portRef{ei, false, pi})
			if !have {
				first, have = id, true
			} else {
				solver.union(first, id)
			}
		}
		for pi, d := range p.Out {
			if d != element.Agnostic {
				continue
			}
			id := solver.idOf(portRef{ei, true, pi})
			if !have {
				first, have = id, true
			} else {
				solver.union(first, id)
			}
		}
	}

	resolved := make([][2][]element.Direction, len(elems))
	for ei, p := range procs {
		resolved[ei][0] = append([]element.Direction(nil), p.In...)
		resolved[ei][1] = append([]element.Direction(nil), p.Out...)
	}

	for id, ref := range solver.refs {
		root := solver.find(id)
		if solver.pushWant[root] && solver.pullWant[root] {
			return nil, fmt.Errorf("router: element %d port (output=%v index=%d) flow-connected component requires both push and pull",
				ref.elementIdx, ref.isOutput, ref.port)
		}
		dir := element.Push
		if solver.pullWant[root] {
			dir = element.Pull
		}
		if ref.isOutput {
			resolved[ref.elementIdx][1][ref.port] = dir
		} else {
			resolved[ref.elementIdx][0][ref.port] = dir
		}
	}

	return resolved, nil
}
