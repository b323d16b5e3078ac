// Package testelements provides minimal Source/Discard/Counter/Queue/
// Shaper/Sink elements used to exercise spec.md §8's end-to-end
// scenarios (push chains, pull chains with a shaper, and hot swap) and
// by package-level tests elsewhere that need a small, realistic element
// graph rather than a bespoke double per test.
//
// Source and Sink are driven by direct method calls (Emit/Drain) rather
// than a scheduled Task, so a test can advance them deterministically
// without standing up a full Thread/Master; production callers that want
// these elements on the real scheduler wrap Emit/Drain in a task.Task.
package testelements

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/packetflow/router/element"
	"github.com/packetflow/router/packet"
)

// Source is a push element with no input ports. Emit pushes one packet
// of Configure's DATA payload to output port 0 and returns false once
// COUNT packets have been emitted; a COUNT of 0 means unlimited, and Emit
// then never returns false.
type Source struct {
	element.Base

	mu      sync.Mutex
	emitted int
	count   int // COUNT from Configure; 0 means unlimited
	payload []byte

	router element.RouterHandle
}

func (s *Source) Class() string                { return "Source" }
func (s *Source) PortCount() element.PortCount { return element.PortCount{Out: element.PortRange{Min: 1, Max: 1}} }
func (s *Source) Processing() string           { return "/h" }

func (s *Source) SetRouter(r element.RouterHandle) { s.router = r }

// Configure accepts "COUNT <n>" and "DATA <string>", each optional, in
// either order, whitespace-separated.
func (s *Source) Configure(args []string, errh *element.ErrorHandler) error {
	s.payload = []byte("hi\n")
	for i := 0; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "COUNT":
			if i+1 >= len(args) {
				return errh.Error("COUNT requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return errh.Error("bad COUNT %q: %s", args[i+1], err)
			}
			s.count = n
			i++
		case "DATA":
			if i+1 >= len(args) {
				return errh.Error("DATA requires a value")
			}
			s.payload = []byte(args[i+1])
			i++
		default:
			return errh.Error("unknown Source argument %q", args[i])
		}
	}
	return nil
}

func (s *Source) AddHandlers(reg *element.HandlerRegistrar) {
	reg.ReadOnlyDataHandler("count", &s.mu, &s.emitted)
}

// Emit pushes one packet downstream and reports whether it did so; it
// returns false once COUNT packets (if COUNT > 0) have been emitted.
func (s *Source) Emit() bool {
	s.mu.Lock()
	if s.count > 0 && s.emitted >= s.count {
		s.mu.Unlock()
		return false
	}
	s.emitted++
	s.mu.Unlock()

	pk := packet.Make(0, s.payload, len(s.payload), 0, nil)
	s.router.PushOutput(s.Index(), 0, pk)
	return true
}

// Discard is a push element with no output ports: every pushed packet is
// counted and killed.
type Discard struct {
	element.Base

	mu    sync.Mutex
	count int
}

func (d *Discard) Class() string                { return "Discard" }
func (d *Discard) PortCount() element.PortCount { return element.PortCount{In: element.PortRange{Min: 1, Max: 1}} }
func (d *Discard) Processing() string           { return "h/" }

func (d *Discard) AddHandlers(reg *element.HandlerRegistrar) {
	reg.ReadOnlyDataHandler("count", &d.mu, &d.count)
}

func (d *Discard) Push(port int, pk *packet.Packet) {
	d.mu.Lock()
	d.count++
	d.mu.Unlock()
	pk.Kill()
}

// Counter is a one-in-one-out agnostic passthrough that counts packets,
// used by spec.md §8 scenario 3 (hot swap) since it implements TakeState.
type Counter struct {
	element.Base

	mu    sync.Mutex
	count int
}

func (c *Counter) Class() string                { return "Counter" }
func (c *Counter) PortCount() element.PortCount {
	return element.PortCount{In: element.PortRange{Min: 1, Max: 1}, Out: element.PortRange{Min: 1, Max: 1}}
}
func (c *Counter) Processing() string { return "a/a" }

func (c *Counter) AddHandlers(reg *element.HandlerRegistrar) {
	reg.DataHandler("count", &c.mu, &c.count)
}

func (c *Counter) SimpleAction(pk *packet.Packet) *packet.Packet {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return pk
}

// TakeState copies the running count from an outgoing Counter of the
// same dotted name, per spec.md §4.C's hot-swap state transfer.
func (c *Counter) TakeState(old element.Element) error {
	prev, ok := old.(*Counter)
	if !ok {
		return nil
	}
	prev.mu.Lock()
	n := prev.count
	prev.mu.Unlock()
	c.mu.Lock()
	c.count = n
	c.mu.Unlock()
	return nil
}

// Queue is a push-in/pull-out FIFO buffer of bounded capacity. Packets
// pushed past capacity are dropped and counted.
type Queue struct {
	element.Base

	capacity int

	mu    sync.Mutex
	buf   []*packet.Packet
	drops int
}

func (q *Queue) Class() string                { return "Queue" }
func (q *Queue) PortCount() element.PortCount {
	return element.PortCount{In: element.PortRange{Min: 1, Max: 1}, Out: element.PortRange{Min: 1, Max: 1}}
}
func (q *Queue) Processing() string { return "h/l" }

// Configure accepts "CAPACITY <n>"; defaults to 1000.
func (q *Queue) Configure(args []string, errh *element.ErrorHandler) error {
	q.capacity = 1000
	for i := 0; i < len(args); i++ {
		if strings.ToUpper(args[i]) == "CAPACITY" && i+1 < len(args) {
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return errh.Error("bad CAPACITY %q: %s", args[i+1], err)
			}
			q.capacity = n
			i++
		}
	}
	return nil
}

func (q *Queue) AddHandlers(reg *element.HandlerRegistrar) {
	reg.ReadOnlyDataHandler("drops", &q.mu, &q.drops)
}

func (q *Queue) Push(port int, pk *packet.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) >= q.capacity {
		q.drops++
		pk.Kill()
		return
	}
	q.buf = append(q.buf, pk)
}

func (q *Queue) Pull(port int) *packet.Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	pk := q.buf[0]
	q.buf = q.buf[1:]
	return pk
}

// Length returns the number of packets currently queued.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Shaper pulls from its upstream Connection at a configured maximum rate
// (packets per second), implemented as a simple leaky-bucket gate keyed
// off wall-clock time: a pull before the next allowed instant returns
// nil even if upstream has a packet ready.
type Shaper struct {
	element.Base

	ratePerSec int
	router     element.RouterHandle

	mu   sync.Mutex
	next time.Time
}

func (sh *Shaper) Class() string                { return "Shaper" }
func (sh *Shaper) PortCount() element.PortCount {
	return element.PortCount{In: element.PortRange{Min: 1, Max: 1}, Out: element.PortRange{Min: 1, Max: 1}}
}
func (sh *Shaper) Processing() string { return "l/l" }

func (sh *Shaper) SetRouter(r element.RouterHandle) { sh.router = r }

// Configure accepts a single positional rate argument, packets/sec.
func (sh *Shaper) Configure(args []string, errh *element.ErrorHandler) error {
	sh.ratePerSec = 500
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return errh.Error("bad rate %q: %s", args[0], err)
		}
		sh.ratePerSec = n
	} else if len(args) > 1 {
		return errh.Error("Shaper takes at most one argument")
	}
	return nil
}

func (sh *Shaper) Pull(port int) *packet.Packet {
	now := time.Now()
	sh.mu.Lock()
	if now.Before(sh.next) {
		sh.mu.Unlock()
		return nil
	}
	interval := time.Second / time.Duration(sh.ratePerSec)
	if sh.next.IsZero() {
		sh.next = now
	}
	sh.next = sh.next.Add(interval)
	sh.mu.Unlock()

	return sh.router.PullInput(sh.Index(), 0)
}

// Sink is a pull consumer: Drain calls Pull on its own input once and
// reports whether it received a packet.
type Sink struct {
	element.Base

	mu     sync.Mutex
	count  int
	router element.RouterHandle
}

func (s *Sink) Class() string                { return "Sink" }
func (s *Sink) PortCount() element.PortCount { return element.PortCount{In: element.PortRange{Min: 1, Max: 1}} }
func (s *Sink) Processing() string           { return "l/" }

func (s *Sink) SetRouter(r element.RouterHandle) { s.router = r }

func (s *Sink) AddHandlers(reg *element.HandlerRegistrar) {
	reg.ReadOnlyDataHandler("count", &s.mu, &s.count)
}

// Drain pulls one packet from upstream; reports whether one arrived.
func (s *Sink) Drain() bool {
	pk := s.router.PullInput(s.Index(), 0)
	if pk == nil {
		return false
	}
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	pk.Kill()
	return true
}
