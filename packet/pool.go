package packet

import "sync"

// Pool is a capacity-classed free list for packet storage, per spec.md §9's
// "Arena + indices" design note: bound allocation on the hot path by reusing
// backing buffers instead of allocating a fresh []byte for every packet.
//
// Pool does not change Packet's API semantics (Clone/Uniqueify/Kill
// reference-counting and destructor timing are unaffected); it only changes
// where Make's initial buffer comes from.
type Pool struct {
	classes []int // capacity classes, ascending
	pools   []sync.Pool
}

// NewPool builds a Pool with the given ascending capacity classes (e.g.
// 256, 2048, 16384). A request larger than the largest class falls back to
// a plain allocation and is not returned to the pool on release.
func NewPool(classes ...int) *Pool {
	p := &Pool{classes: classes, pools: make([]sync.Pool, len(classes))}
	for i, c := range classes {
		c := c
		p.pools[i].New = func() any {
			buf := make([]byte, c)
			return &buf
		}
	}
	return p
}

// classFor returns the index of the smallest class holding want bytes, or -1.
func (p *Pool) classFor(want int) int {
	for i, c := range p.classes {
		if c >= want {
			return i
		}
	}
	return -1
}

// Make behaves like the package-level Make, but draws its backing buffer
// from the pool when a suitable capacity class exists, and returns it to the
// pool via the packet's destructor once the last reference is released.
func (p *Pool) Make(headroom int, data []byte, length int, tailroom int) *Packet {
	total := headroom + length + tailroom
	idx := p.classFor(total)
	if idx < 0 {
		return Make(headroom, data, length, tailroom, nil)
	}

	bufPtr := p.pools[idx].Get().(*[]byte)
	buf := (*bufPtr)[:total]
	for i := range buf {
		buf[i] = 0
	}
	if data != nil {
		copy(buf[headroom:headroom+length], data)
	}

	st := &storage{
		buf:  buf,
		orig: buf,
		destroy: func([]byte) {
			p.pools[idx].Put(bufPtr)
		},
	}
	st.refs.Store(1)

	return &Packet{
		store:   st,
		data:    buf,
		head:    headroom,
		tail:    headroom + length,
		unique:  true,
		Offsets: Offsets{MAC: -1, Network: -1, Transport: -1},
	}
}
