//go:build unix

package ioselect

import (
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// selectBackend is the universal fallback tier named in spec.md §4.G,
// bounded by FD_SETSIZE. It exists for targets where neither kqueue nor
// poll(2) is available; cost is O(highest fd) per call regardless of how
// many descriptors are actually registered.
type selectBackend struct {
	masks  map[int]Mask
	maxFD  int
}

func newSelectBackend() (Backend, error) {
	return &selectBackend{masks: make(map[int]Mask), maxFD: -1}, nil
}

func (s *selectBackend) Kind() string { return "select" }

func (s *selectBackend) Add(fd int, mask Mask) error {
	if fd >= unix.FD_SETSIZE {
		return fmt.Errorf("ioselect: fd %d exceeds FD_SETSIZE (%d)", fd, unix.FD_SETSIZE)
	}
	s.masks[fd] |= mask
	if fd > s.maxFD {
		s.maxFD = fd
	}
	return nil
}

func (s *selectBackend) Remove(fd int, mask Mask) error {
	s.masks[fd] &^= mask
	if s.masks[fd] == 0 {
		delete(s.masks, fd)
		s.recomputeMax()
	}
	return nil
}

func (s *selectBackend) recomputeMax() {
	max := -1
	for fd := range s.masks {
		if fd > max {
			max = fd
		}
	}
	s.maxFD = max
}

func (s *selectBackend) Wait(timeout time.Duration, dst []Event) ([]Event, error) {
	if s.maxFD < 0 {
		// nothing registered; sleep out the timeout rather than calling
		// select(2) with empty sets, which behaves inconsistently across
		// platforms.
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return dst, nil
	}

	var rfds, wfds unix.FdSet
	for fd, m := range s.masks {
		if m&Read != 0 {
			fdSet(&rfds, fd)
		}
		if m&Write != 0 {
			fdSet(&wfds, fd)
		}
	}

	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	n, err := unix.Select(s.maxFD+1, &rfds, &wfds, nil, tv)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	if n == 0 {
		return dst, nil
	}

	out := dst
	for fd, m := range s.masks {
		var got Mask
		if m&Read != 0 && fdIsSet(&rfds, fd) {
			got |= Read
		}
		if m&Write != 0 && fdIsSet(&wfds, fd) {
			got |= Write
		}
		if got != 0 {
			out = append(out, Event{FD: fd, Mask: got})
		}
	}
	return out, nil
}

func (s *selectBackend) Close() error { return nil }

// fdSet/fdIsSet manipulate unix.FdSet at the byte level rather than
// assuming a particular word width for its Bits array, since that width
// differs between platforms (e.g. int64 words on linux/amd64, int32 on
// darwin/amd64) while the bitmap itself is always FD_SETSIZE bits wide.
func fdSet(set *unix.FdSet, fd int) {
	b := fdSetBytes(set)
	b[fd/8] |= 1 << (uint(fd) % 8)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	b := fdSetBytes(set)
	return b[fd/8]&(1<<(uint(fd)%8)) != 0
}

func fdSetBytes(set *unix.FdSet) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(set)), unsafe.Sizeof(*set))
}
