// Package router implements the Element/Connection graph and lifecycle
// described in spec.md §4.C: construction from a class/name/arg-string
// list plus a connection list, the configure/initialize bring-up
// sequence (with rollback on failure), the flow-direction solver, and the
// hot-swap take_state hook.
package router

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/packetflow/router/element"
	"github.com/packetflow/router/internal/logging"
	"github.com/packetflow/router/packet"
)

// Factory constructs a new, unconfigured instance of one element class.
type Factory func() element.Element

// ElementSpec is one row of a Router's construction list: a class name
// looked up in the Factory registry, a dotted instance name, and the
// configuration argument string passed to Configure.
type ElementSpec struct {
	Class string
	Name  string
	Args  []string
}

// Connection is an ordered pair (from-element, from-port, to-element,
// to-port), per spec.md §3.
type Connection struct {
	FromElement int
	FromPort    int
	ToElement   int
	ToPort      int
}

// Registry maps class names to Factories. The zero value is usable.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the Factory for class.
func (r *Registry) Register(class string, f Factory) {
	if r.factories == nil {
		r.factories = make(map[string]Factory)
	}
	r.factories[class] = f
}

func (r *Registry) lookup(class string) (Factory, bool) {
	f, ok := r.factories[class]
	return f, ok
}

// elementRecord is the Router's bookkeeping for one constructed Element:
// its resolved processing directions, index, and status within bring-up.
type elementRecord struct {
	el          element.Element
	proc        element.Processing
	ports       element.PortCount
	initialized bool
}

// Router holds an ordered Element sequence, the Connection list, a
// process-wide handler table, and the runcount/state bookkeeping spec.md
// §3 assigns it. A Router is built once via New/Build and is then
// immutable except for its State, RunCount, and per-element handler
// writes — matching spec.md §4.C's "Router may be replaced atomically...
// under the same Master" hot-swap model rather than in-place mutation.
type Router struct {
	generation uuid.UUID

	elements    []elementRecord
	connections []Connection

	// outIndex/inIndex resolve a port to the single neighbor Connection
	// on its far side, letting PushOutput/PullInput dispatch a packet
	// across a push/pull port without every element having to search
	// the Connection list itself.
	outIndex map[portRef]Connection
	inIndex  map[portRef]Connection

	globalHandlers []element.Handler

	state    *fastState
	runcount int64 // accessed only while PREPARING/ACTIVE on the owning Master's thread

	log *logging.Logger
}

// New constructs a Router in state Inactive. log may be nil (Noop).
func New(log *logging.Logger) *Router {
	if log == nil {
		log = logging.Noop()
	}
	return &Router{
		generation: uuid.New(),
		state:      newFastState(Inactive),
		log:        log,
	}
}

// Generation returns this Router's hot-swap identity token, a UUID
// assigned in New that tells successive Router instances of a running
// system apart (spec.md §4.C; `bassosimone-nop`-style opaque identity token).
func (r *Router) Generation() uuid.UUID { return r.generation }

// State returns the Router's current lifecycle state.
func (r *Router) State() State { return r.state.Load() }

// Elements returns the Router's Elements in index order.
func (r *Router) Elements() []element.Element {
	out := make([]element.Element, len(r.elements))
	for i, rec := range r.elements {
		out[i] = rec.el
	}
	return out
}

// ElementByIndex returns the Element with the given zero-based index, or
// nil if idx is out of range.
func (r *Router) ElementByIndex(idx int) element.Element {
	if idx < 0 || idx >= len(r.elements) {
		return nil
	}
	return r.elements[idx].el
}

// ElementByName returns the Element with the given dotted name, or nil.
func (r *Router) ElementByName(name string) element.Element {
	for _, rec := range r.elements {
		if rec.el.Name() == name {
			return rec.el
		}
	}
	return nil
}

// Direction returns the resolved Direction of one of element idx's input
// ports (isOutput=false) or output ports (isOutput=true).
func (r *Router) Direction(idx int, isOutput bool, port int) element.Direction {
	rec := r.elements[idx]
	if isOutput {
		return rec.proc.Out[port]
	}
	return rec.proc.In[port]
}

// Connections returns the Router's Connection list.
func (r *Router) Connections() []Connection {
	out := make([]Connection, len(r.connections))
	copy(out, r.connections)
	return out
}

// PushOutput delivers pk across the single Connection wired to element
// fromIdx's output port fromPort, calling the downstream element's Push.
// It is a no-op (and pk is not consumed) if that output port is
// unconnected. This is the runtime counterpart to the push half of
// spec.md §3's flow-direction model: a push element drives packets
// forward by calling PushOutput on its own output port rather than
// reaching into a neighbor directly.
func (r *Router) PushOutput(fromIdx, fromPort int, pk *packet.Packet) {
	c, ok := r.outIndex[portRef{fromIdx, true, fromPort}]
	if !ok {
		return
	}
	if pusher, ok := r.elements[c.ToElement].el.(element.Pusher); ok {
		pusher.Push(c.ToPort, pk)
	}
}

// PullInput requests a packet across the single Connection wired to
// element toIdx's input port toPort, calling the upstream element's
// Pull. Returns nil if that input port is unconnected or the upstream
// element has no packet ready.
func (r *Router) PullInput(toIdx, toPort int) *packet.Packet {
	c, ok := r.inIndex[portRef{toIdx, false, toPort}]
	if !ok {
		return nil
	}
	if puller, ok := r.elements[c.FromElement].el.(element.Puller); ok {
		return puller.Pull(c.FromPort)
	}
	return nil
}

// GlobalHandlers returns the Router-level handlers (spec.md §4.I's
// Router-global handlers, as opposed to per-element handlers).
func (r *Router) GlobalHandlers() []element.Handler {
	out := make([]element.Handler, len(r.globalHandlers))
	copy(out, r.globalHandlers)
	return out
}

// RunCount returns the current runcount.
func (r *Router) RunCount() int64 { return r.runcount }

// AddRunCount adjusts runcount by delta and reports the new value; a
// transition to ≤0 is the caller's (Master's) signal to stop the driver,
// per spec.md §4.C.
func (r *Router) AddRunCount(delta int64) int64 {
	r.runcount += delta
	return r.runcount
}

// Build constructs every Element named in specs via registry, resolves
// flow directions over conns, then runs configure_phase-ordered
// Configure/Initialize across all elements. On any Configure or Initialize
// failure, every element that already Initialized is rolled back (in
// reverse order) with Cleanup(CleanupPartial), the Router transitions to
// Dead, and the first error is returned.
func Build(registry *Registry, specs []ElementSpec, conns []Connection, log *logging.Logger) (*Router, error) {
	r := New(log)
	if !r.state.TryTransition(Inactive, Preparing) {
		return nil, fmt.Errorf("router: new router not in Inactive state")
	}

	elems := make([]element.Element, len(specs))
	for i, spec := range specs {
		factory, ok := registry.lookup(spec.Class)
		if !ok {
			r.state.Store(Dead)
			return nil, fmt.Errorf("router: no factory registered for class %q (element %q)", spec.Class, spec.Name)
		}
		el := factory()
		el.SetIndex(i)
		el.SetName(spec.Name)
		if binder, ok := el.(element.RouterBinder); ok {
			binder.SetRouter(r)
		}
		elems[i] = el
	}
	r.connections = append([]Connection(nil), conns...)

	if err := validateConnections(elems, conns); err != nil {
		r.state.Store(Dead)
		return nil, err
	}

	r.outIndex = make(map[portRef]Connection, len(conns))
	r.inIndex = make(map[portRef]Connection, len(conns))
	for _, c := range conns {
		r.outIndex[portRef{c.FromElement, true, c.FromPort}] = c
		r.inIndex[portRef{c.ToElement, false, c.ToPort}] = c
	}

	procs := make([]element.Processing, len(elems))
	ports := make([]element.PortCount, len(elems))
	for i, el := range elems {
		pc := el.PortCount()
		ports[i] = pc
		nIn, nOut := countPorts(pc, conns, i)
		if !pc.In.Accepts(nIn) {
			r.state.Store(Dead)
			return nil, fmt.Errorf("router: element %q: %d input connections outside accepted range %s", el.Name(), nIn, pc.In)
		}
		if !pc.Out.Accepts(nOut) {
			r.state.Store(Dead)
			return nil, fmt.Errorf("router: element %q: %d output connections outside accepted range %s", el.Name(), nOut, pc.Out)
		}
		proc, err := element.ParseProcessing(el.Processing(), pc, nIn, nOut)
		if err != nil {
			r.state.Store(Dead)
			return nil, fmt.Errorf("router: element %q: %w", el.Name(), err)
		}
		procs[i] = proc
	}

	resolved, err := resolveFlowDirections(elems, procs, conns)
	if err != nil {
		r.state.Store(Dead)
		return nil, err
	}
	for i := range procs {
		procs[i].In = resolved[i][0]
		procs[i].Out = resolved[i][1]
	}

	r.elements = make([]elementRecord, len(elems))
	for i, el := range elems {
		r.elements[i] = elementRecord{el: el, proc: procs[i], ports: ports[i]}
	}

	order := configureOrder(elems)

	errh := element.NewErrorHandler("", r.log)
	for _, i := range order {
		el := r.elements[i].el
		cerrh := errh.WithLandmark(el.Name())
		if err := el.Configure(specs[i].Args, cerrh); err != nil {
			// no element has Initialized yet at this point, so there is
			// nothing to roll back; the Router simply dies.
			r.state.Store(Dead)
			return nil, fmt.Errorf("router: configure %q: %w", el.Name(), err)
		}
	}

	for pos, i := range order {
		el := r.elements[i].el
		cerrh := errh.WithLandmark(el.Name())
		if err := el.Initialize(cerrh); err != nil {
			r.rollback(order, pos)
			r.state.Store(Dead)
			return nil, fmt.Errorf("router: initialize %q: %w", el.Name(), err)
		}
		r.elements[i].initialized = true
	}

	var reg element.HandlerRegistrar
	for _, rec := range r.elements {
		rec.el.AddHandlers(&reg)
	}
	r.globalHandlers = reg.Handlers()

	return r, nil
}

// rollback cleans up every element configured/initialized before (and
// including, if already initialized) position upTo in configure order,
// in reverse order, with CleanupPartial — spec.md §4.B: "Failures during
// router initialization... roll back elements that did initialize."
func (r *Router) rollback(order []int, upTo int) {
	for i := upTo; i >= 0; i-- {
		idx := order[i]
		if r.elements[idx].initialized {
			r.elements[idx].el.Cleanup(element.CleanupPartial)
			r.elements[idx].initialized = false
		}
	}
}

// configureOrder returns element indices sorted by ConfigurePhase
// (ascending), stable within a phase on declaration order — spec.md
// §4.C: "elements with lower configure_phase first; within a phase, in
// declaration order."
func configureOrder(elems []element.Element) []int {
	order := make([]int, len(elems))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return elems[order[a]].ConfigurePhase() < elems[order[b]].ConfigurePhase()
	})
	return order
}

// countPorts derives the actual in/out port counts an element presents,
// from the highest port index referenced by any Connection, falling back
// to the declared minimum when no connection reaches that side.
func countPorts(pc element.PortCount, conns []Connection, idx int) (nIn, nOut int) {
	nIn, nOut = pc.In.Min, pc.Out.Min
	for _, c := range conns {
		if c.FromElement == idx && c.FromPort+1 > nOut {
			nOut = c.FromPort + 1
		}
		if c.ToElement == idx && c.ToPort+1 > nIn {
			nIn = c.ToPort + 1
		}
	}
	return nIn, nOut
}

// validateConnections checks the structural invariants spec.md §3 states
// for Connections: element/port indices in range, and (deferred to the
// flow solver for direction-specific cardinality) no port used as both a
// from-port and a to-port of the same direction-exclusive kind more than
// once where that would violate "exactly one" fan-in/out.
func validateConnections(elems []element.Element, conns []Connection) error {
	n := len(elems)
	for _, c := range conns {
		if c.FromElement < 0 || c.FromElement >= n {
			return fmt.Errorf("router: connection references out-of-range from-element %d", c.FromElement)
		}
		if c.ToElement < 0 || c.ToElement >= n {
			return fmt.Errorf("router: connection references out-of-range to-element %d", c.ToElement)
		}
		if c.FromPort < 0 {
			return fmt.Errorf("router: connection has negative from-port")
		}
		if c.ToPort < 0 {
			return fmt.Errorf("router: connection has negative to-port")
		}
	}
	seenOut := make(map[portRef]int)
	seenIn := make(map[portRef]int)
	for _, c := range conns {
		seenOut[portRef{c.FromElement, true, c.FromPort}]++
		seenIn[portRef{c.ToElement, false, c.ToPort}]++
	}
	for ref, n := range seenOut {
		if n > 1 {
			return fmt.Errorf("router: output port %d.%d has %d outgoing connections, push ports allow exactly one", ref.elementIdx, ref.port, n)
		}
	}
	for ref, n := range seenIn {
		if n > 1 {
			return fmt.Errorf("router: input port %d.%d has %d incoming connections, pull ports allow exactly one", ref.elementIdx, ref.port, n)
		}
	}
	return nil
}

// Activate transitions Preparing to Active (or Background for a Router
// kept running without being the Master's primary active Router).
func (r *Router) Activate(background bool) error {
	to := Active
	if background {
		to = Background
	}
	if !r.state.TryTransition(Preparing, to) {
		return fmt.Errorf("router: cannot activate from state %s", r.State())
	}
	return nil
}

// Kill transitions the Router to Dead and runs Cleanup(CleanupFull) on
// every initialized element, in reverse construction order.
func (r *Router) Kill() {
	prev := r.state.Load()
	if prev == Dead {
		return
	}
	r.state.Store(Dead)
	for i := len(r.elements) - 1; i >= 0; i-- {
		if r.elements[i].initialized {
			r.elements[i].el.Cleanup(element.CleanupFull)
			r.elements[i].initialized = false
		}
	}
}

// TakeState transfers state from old's elements into this Router's
// elements of the same class and dotted name, for every element of this
// Router that implements element.TakeStater — spec.md §4.C's hot-swap
// hook. Must be called while this Router is Preparing and old is
// Active/Background, with the Master holding block_all so no Task is
// concurrently touching either Router's elements.
func (r *Router) TakeState(old *Router) []error {
	var errs []error
	for _, rec := range r.elements {
		taker, ok := rec.el.(element.TakeStater)
		if !ok {
			continue
		}
		oldEl := old.ElementByName(rec.el.Name())
		if oldEl == nil || oldEl.Class() != rec.el.Class() {
			continue
		}
		if err := taker.TakeState(oldEl); err != nil {
			errs = append(errs, fmt.Errorf("router: take_state %q: %w", rec.el.Name(), err))
		}
	}
	return errs
}
