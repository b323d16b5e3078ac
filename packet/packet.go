// Package packet implements the shared, reference-counted byte buffer that
// flows between elements in a router graph.
//
// A Packet is logically immutable while shared: multiple Clone()s may read
// the same underlying storage concurrently, but none may write to it. Call
// Uniqueify to obtain a packet guaranteed to be the sole owner of its
// storage before mutating header fields or payload bytes in place.
package packet

import (
	"sync/atomic"
	"time"
)

// OpaqueAnnotationBytes is the size of the free-form user annotation region,
// matching the original implementation's per-packet annotation block.
const OpaqueAnnotationBytes = 48

// Destructor is invoked exactly once, when the last reference to a Packet's
// storage is released. It receives the original data pointer supplied at
// construction, so callers can return DPDK mbufs, unmap mmap'd regions, or
// otherwise reclaim externally-managed buffers without a copy.
type Destructor func(data []byte)

// storage is the shared, ref-counted backing buffer for one or more Packets.
type storage struct {
	buf     []byte // full allocation, headroom..tailroom
	refs    atomic.Int32
	destroy Destructor
	orig    []byte // the pointer/slice passed to Make, for the destructor
}

func (s *storage) retain() {
	s.refs.Add(1)
}

func (s *storage) release() {
	if s.refs.Add(-1) == 0 {
		if s.destroy != nil {
			s.destroy(s.orig)
		}
	}
}

// Annotations holds the fixed set of typed per-packet annotations described
// by spec.md §3/§4.A. Every slot is byte-addressable so elements agree on
// semantics regardless of which element produced the value.
type Annotations struct {
	Paint         uint8                    // single-byte paint/flow selector
	AggregateID   uint32                   // 32-bit aggregate/flow id
	PacketNumber  uint32                   // sequence number, e.g. for dumps
	ExtraLength   uint32                   // length of data truncated from capture
	UserOffset    uint32                   // 32-bit user annotation (variable offsets)
	FirstTime     time.Time                // first-seen timestamp, for requeue/retransmit bookkeeping
	Opaque        [OpaqueAnnotationBytes]byte
}

// Offsets records the header offsets spec.md calls "the current header-offset
// set {mac, network, transport}". A negative value means "not set".
type Offsets struct {
	MAC       int
	Network   int
	Transport int
}

// Packet is an ordered byte sequence with headroom and tailroom, a header-
// offset set, a timestamp, and a fixed annotation block.
//
// The zero value is not usable; construct with Make.
type Packet struct {
	store *storage

	data  []byte // data[0:len] is the current packet content within store.buf
	head  int    // offset of data start within store.buf (>=0)
	tail  int    // offset of data end within store.buf (<= len(store.buf))

	Timestamp   time.Time
	Offsets     Offsets
	Annotations Annotations

	// unique marks that this *Packet struct (not necessarily its storage) has
	// never been exposed to Clone; it is used only to short-circuit
	// Uniqueify when cheap.
	unique bool
}

// Make allocates a new Packet with the given headroom and tailroom around
// data. If data is nil, length bytes of zeroed storage are allocated. The
// destructor, if non-nil, fires exactly once when the final reference
// (across all clones) is released.
func Make(headroom int, data []byte, length int, tailroom int, destroy Destructor) *Packet {
	if headroom < 0 {
		headroom = 0
	}
	if tailroom < 0 {
		tailroom = 0
	}

	buf := make([]byte, headroom+length+tailroom)
	if data != nil {
		n := copy(buf[headroom:headroom+length], data)
		_ = n
	}

	st := &storage{buf: buf, orig: data, destroy: destroy}
	st.refs.Store(1)

	return &Packet{
		store:  st,
		data:   buf,
		head:   headroom,
		tail:   headroom + length,
		unique: true,
		Offsets: Offsets{MAC: -1, Network: -1, Transport: -1},
	}
}

// Length returns the number of content bytes (excludes headroom/tailroom).
func (p *Packet) Length() int { return p.tail - p.head }

// Headroom returns the number of unused bytes before the content.
func (p *Packet) Headroom() int { return p.head }

// Tailroom returns the number of unused bytes after the content.
func (p *Packet) Tailroom() int { return len(p.store.buf) - p.tail }

// Bytes returns the current content. The returned slice must not be
// retained past the next mutating call (Put/Take/Push/Pull/Uniqueify) and
// must not be written to unless the packet is known-unique.
func (p *Packet) Bytes() []byte { return p.store.buf[p.head:p.tail] }

// Clone returns a new Packet sharing this one's storage. The clone's header
// offsets, timestamp, and annotations are copied (value semantics), but the
// byte storage itself is shared until Uniqueify is called on one of them.
func (p *Packet) Clone() *Packet {
	p.store.retain()
	clone := *p
	clone.unique = false
	p.unique = false
	return &clone
}

// Uniqueify returns a Packet guaranteed to be the sole owner of its storage,
// copying the backing buffer if necessary. The receiver is consumed (its
// reference is transferred to, or released in favor of, the result); callers
// must use the returned Packet and stop using the receiver.
func (p *Packet) Uniqueify() *Packet {
	if p.unique && p.store.refs.Load() == 1 {
		return p
	}

	newBuf := make([]byte, len(p.store.buf))
	copy(newBuf, p.store.buf)

	st := &storage{buf: newBuf}
	st.refs.Store(1)

	out := *p
	out.store = st
	out.data = newBuf
	out.unique = true

	p.Kill()
	return &out
}

// Put grows the content by n bytes at the tail, reallocating if the current
// storage lacks sufficient tailroom. Returns the newly-available bytes.
func (p *Packet) Put(n int) []byte {
	if n < 0 {
		panic("packet: Put with negative length")
	}
	if p.Tailroom() < n {
		p.grow(0, n)
	}
	start := p.tail
	p.tail += n
	return p.store.buf[start:p.tail]
}

// Take shrinks the content by n bytes at the tail.
func (p *Packet) Take(n int) {
	if n < 0 || n > p.Length() {
		panic("packet: Take out of range")
	}
	p.tail -= n
}

// Push grows the content by n bytes at the head (e.g. to prepend a header),
// reallocating if the current storage lacks sufficient headroom.
func (p *Packet) Push(n int) []byte {
	if n < 0 {
		panic("packet: Push with negative length")
	}
	if p.Headroom() < n {
		p.grow(n, 0)
	}
	p.head -= n
	return p.store.buf[p.head:p.tail]
}

// Pull shrinks the content by n bytes at the head.
func (p *Packet) Pull(n int) {
	if n < 0 || n > p.Length() {
		panic("packet: Pull out of range")
	}
	p.head += n
}

// grow reallocates storage to provide at least addHead/addTail additional
// room, copying existing content into the new buffer's middle.
func (p *Packet) grow(addHead, addTail int) {
	headroom := p.Headroom() + addHead
	tailroom := p.Tailroom() + addTail
	length := p.Length()

	// double whichever side is being grown, amortizing future growth
	if addHead > 0 {
		headroom += length
	}
	if addTail > 0 {
		tailroom += length
	}

	newBuf := make([]byte, headroom+length+tailroom)
	copy(newBuf[headroom:headroom+length], p.Bytes())

	if p.unique && p.store.refs.Load() == 1 {
		p.store.buf = newBuf
	} else {
		p.store.release()
		st := &storage{buf: newBuf}
		st.refs.Store(1)
		p.store = st
		p.unique = true
	}

	p.head = headroom
	p.tail = headroom + length
}

// Kill releases this Packet's reference to its storage, invoking the
// destructor if this was the last reference.
func (p *Packet) Kill() {
	if p.store != nil {
		p.store.release()
		p.store = nil
	}
}
