// Package element defines the Element interface: the abstract unit of
// packet processing composed into a Router graph. It also provides the
// port-count/processing-string parsers, the error-sink, and the handler
// table shared by every concrete element.
package element

import "github.com/packetflow/router/packet"

// CleanupStage distinguishes a full teardown from a rollback of an element
// that only partially initialized, per spec.md §4.B.
type CleanupStage int

const (
	// CleanupFull is used when the element's Initialize succeeded and
	// the owning router is tearing down normally.
	CleanupFull CleanupStage = iota
	// CleanupPartial is used when Initialize failed partway through
	// router bring-up and this element's resources must be unwound.
	CleanupPartial
)

// Element is implemented by every packet-processing vertex. It has no
// push/pull methods of its own — concrete elements additionally implement
// Pusher, Puller, or Agnostic below, according to the role(s) declared by
// their processing string. This mirrors spec.md §9's guidance to replace
// the original's virtual-inheritance mixins with a concrete struct plus a
// small set of optional role interfaces.
type Element interface {
	// Class returns the element's class name, stable across instances.
	Class() string

	// Name returns the element's dotted hierarchical name.
	Name() string
	// SetName is called by the Router exactly once, at construction.
	SetName(name string)
	// Index returns the element's stable zero-based index within its Router.
	Index() int
	// SetIndex is called by the Router exactly once, at construction.
	SetIndex(i int)

	// PortCount returns the element's port-count descriptor.
	PortCount() PortCount

	// Processing returns the element's processing string.
	Processing() string

	// FlowCode returns the element's flow-code string, or "" if the
	// element does not influence flow-direction inference beyond its
	// own per-port processing declaration.
	FlowCode() string

	// ConfigurePhase returns this element's priority for configure
	// ordering; lower runs first, negative phases run before the
	// default (0).
	ConfigurePhase() int

	// Configure parses args. errh collects any reports; a non-nil
	// return aborts router bring-up.
	Configure(args []string, errh *ErrorHandler) error

	// Initialize acquires runtime resources (file descriptors, tasks,
	// timers). A non-nil return aborts bring-up and triggers Cleanup
	// with CleanupPartial on every element that already initialized.
	Initialize(errh *ErrorHandler) error

	// Cleanup releases resources acquired by Initialize.
	Cleanup(stage CleanupStage)

	// AddHandlers registers this element's handlers.
	AddHandlers(reg *HandlerRegistrar)
}

// Pusher is implemented by elements with at least one push input port.
type Pusher interface {
	// Push delivers pk to input port.
	Push(port int, pk *packet.Packet)
}

// Puller is implemented by elements with at least one pull output port.
type Puller interface {
	// Pull requests a packet from output port; returns nil if none is
	// available right now.
	Pull(port int) *packet.Packet
}

// Agnostic is implemented by elements that offer a single processing
// action for agnostic ports. Router.PushOutput and Router.PullInput call
// only Push and Pull; they do not call SimpleAction, so an element that
// implements only Agnostic receives no packets through them.
type Agnostic interface {
	// SimpleAction transforms pk, returning the packet to forward (which
	// may be pk itself, a different packet, or nil to drop it).
	SimpleAction(pk *packet.Packet) *packet.Packet
}

// TakeStater is implemented by elements that want to transfer state across
// a hot swap, per spec.md §4.C. TakeState is called on the new instance
// with the outgoing instance of the same class name, matched by dotted
// name, while Master holds block_all.
type TakeStater interface {
	TakeState(old Element) error
}

// RouterHandle is the narrow view of a Router an Element needs in order to
// drive packets across its own ports, rather than only reacting to a
// neighbor's Push/Pull call. Defined here (not in package router) so an
// Element can depend on it without element importing router, which
// already imports element.
type RouterHandle interface {
	// PushOutput delivers pk across the Connection wired to this
	// element's output port, invoking the downstream element's Push.
	PushOutput(fromElement, fromPort int, pk *packet.Packet)
	// PullInput requests a packet across the Connection wired to this
	// element's input port, invoking the upstream element's Pull.
	PullInput(toElement, toPort int) *packet.Packet
}

// RouterBinder is implemented by elements that actively drive packets
// across their own ports (a Source's Task body, a Shaper's timer
// callback) rather than only responding to calls neighbors make into
// them. The Router calls SetRouter once, right after construction,
// before Configure.
type RouterBinder interface {
	SetRouter(r RouterHandle)
}

// Base provides the common bookkeeping (dotted name, index within the
// router) and default no-op implementations of the optional lifecycle
// hooks, so concrete elements only override what they need — the same
// embedding idiom spec.md §9 calls for in place of multiple inheritance.
type Base struct {
	name  string
	index int
}

// Name returns the element's dotted hierarchical name, assigned by the
// Router at construction.
func (b *Base) Name() string { return b.name }

// SetName is called by the Router exactly once, at construction.
func (b *Base) SetName(name string) { b.name = name }

// Index returns the element's stable zero-based index within its Router.
func (b *Base) Index() int { return b.index }

// SetIndex is called by the Router exactly once, at construction.
func (b *Base) SetIndex(i int) { b.index = i }

// ConfigurePhase defaults to 0; override to run before (negative) or after
// (positive) other elements during configuration.
func (b *Base) ConfigurePhase() int { return 0 }

// FlowCode defaults to "", meaning per-port Processing alone determines
// flow-direction influence.
func (b *Base) FlowCode() string { return "" }

// Configure defaults to accepting no arguments.
func (b *Base) Configure(args []string, errh *ErrorHandler) error {
	if len(args) != 0 {
		return errh.Error("does not accept configuration arguments")
	}
	return nil
}

// Initialize defaults to a no-op.
func (b *Base) Initialize(errh *ErrorHandler) error { return nil }

// Cleanup defaults to a no-op.
func (b *Base) Cleanup(stage CleanupStage) {}

// AddHandlers defaults to registering no handlers.
func (b *Base) AddHandlers(reg *HandlerRegistrar) {}
