package master

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/packetflow/router/element"
	"github.com/packetflow/router/internal/logging"
	"github.com/packetflow/router/router"
)

// signalBinding is one registered (signo, router, handler-name) triple,
// per spec.md §4.H's signal dispatch description.
type signalBinding struct {
	sig     os.Signal
	r       *router.Router
	handler string
}

// SignalDispatcher captures process signals and routes them to registered
// element/global handlers, re-raising to the default disposition when no
// registered handler accepts a given signal. It runs its own goroutine
// (the "signal thread" of spec.md §4.H), started by Listen.
type SignalDispatcher struct {
	mu       sync.Mutex
	bindings []signalBinding

	ch   chan os.Signal
	done chan struct{}
	log  *logging.Logger
}

// NewSignalDispatcher constructs a SignalDispatcher. log may be nil.
func NewSignalDispatcher(log *logging.Logger) *SignalDispatcher {
	if log == nil {
		log = logging.Noop()
	}
	return &SignalDispatcher{
		ch:   make(chan os.Signal, 8),
		done: make(chan struct{}),
		log:  log,
	}
}

// Register binds sig, when received, to invoke the write handler named
// handlerName on r (either an element handler "elementName.handlerName"
// or a Router-global handler "handlerName" — resolution matches
// spec.md §4.I's ControlSocket addressing). Writes signal.Notify for sig
// the first time it is registered.
func (d *SignalDispatcher) Register(sig os.Signal, r *router.Router, handlerName string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bindings = append(d.bindings, signalBinding{sig: sig, r: r, handler: handlerName})
	signal.Notify(d.ch, sig)
}

// Listen runs the signal-dispatch loop until Stop is called. Intended to
// be run in its own goroutine (the "signal thread").
func (d *SignalDispatcher) Listen() {
	for {
		select {
		case sig := <-d.ch:
			d.dispatch(sig)
		case <-d.done:
			return
		}
	}
}

// Stop ends the Listen loop.
func (d *SignalDispatcher) Stop() {
	close(d.done)
}

func (d *SignalDispatcher) dispatch(sig os.Signal) {
	d.mu.Lock()
	matched := false
	var bindings []signalBinding
	for _, b := range d.bindings {
		if b.sig == sig {
			bindings = append(bindings, b)
		}
	}
	d.mu.Unlock()

	for _, b := range bindings {
		if err := invokeHandler(b.r, b.handler); err != nil {
			d.log.Warning().Str(logging.FieldComponent, "master.signal").Err(err).Log("signal handler invocation failed")
			continue
		}
		matched = true
	}

	if !matched {
		d.reraiseDefault(sig)
	}
}

// invokeHandler resolves "element.handler" or a bare Router-global
// "handler" name and invokes its Write("") — signals carry no payload,
// so registered handlers are conventionally zero-argument write/checkbox
// handlers (e.g. a reconfigure or graceful-stop trigger).
func invokeHandler(r *router.Router, name string) error {
	elementName, handlerName, hasDot := splitHandlerName(name)
	var handlers []element.Handler
	if hasDot {
		el := r.ElementByName(elementName)
		if el == nil {
			return fmt.Errorf("master: no element %q for signal handler", elementName)
		}
		var reg element.HandlerRegistrar
		el.AddHandlers(&reg)
		handlers = reg.Handlers()
	} else {
		handlers = r.GlobalHandlers()
	}
	for _, h := range handlers {
		if h.Name != handlerName {
			continue
		}
		if !h.Writable() {
			return fmt.Errorf("master: handler %q is not writable", name)
		}
		return h.Write("")
	}
	return fmt.Errorf("master: no handler named %q", name)
}

func splitHandlerName(name string) (elementName, handlerName string, hasDot bool) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i], name[i+1:], true
		}
	}
	return "", name, false
}

// reraiseDefault restores the signal's default disposition and re-sends
// it to this process, per spec.md §4.H: "a signal is re-raised to the
// default handler if no registered handler accepted it."
func (d *SignalDispatcher) reraiseDefault(sig os.Signal) {
	signal.Reset(sig)
	if s, ok := sig.(syscall.Signal); ok {
		_ = syscall.Kill(os.Getpid(), s)
	}
}
