//go:build darwin || freebsd || netbsd || openbsd

package ioselect

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueueBackend is the spec.md §4.G "kqueue where available" tier,
// grounded directly on the teacher's darwin poller (preallocated kevent
// buffer, EV_ADD/EV_DELETE mirroring registrations). See backends.go for the
// macOS-specific auto-selection exclusion (spec.md §9 design note).
type kqueueBackend struct {
	kq       int
	eventBuf [256]unix.Kevent_t
	masks    map[int]Mask
}

func newKqueueBackend() (Backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueBackend{kq: kq, masks: make(map[int]Mask)}, nil
}

func (k *kqueueBackend) Kind() string { return "kqueue" }

func (k *kqueueBackend) Add(fd int, mask Mask) error {
	var changes []unix.Kevent_t
	if mask&Read != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE))
	}
	if mask&Write != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE))
	}
	if len(changes) == 0 {
		return nil
	}
	if _, err := unix.Kevent(k.kq, changes, nil, nil); err != nil {
		return err
	}
	k.masks[fd] |= mask
	return nil
}

func (k *kqueueBackend) Remove(fd int, mask Mask) error {
	var changes []unix.Kevent_t
	if mask&Read != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_READ, unix.EV_DELETE))
	}
	if mask&Write != 0 {
		changes = append(changes, kevent(fd, unix.EVFILT_WRITE, unix.EV_DELETE))
	}
	if len(changes) > 0 {
		_, _ = unix.Kevent(k.kq, changes, nil, nil)
	}
	k.masks[fd] &^= mask
	if k.masks[fd] == 0 {
		delete(k.masks, fd)
	}
	return nil
}

func (k *kqueueBackend) Wait(timeout time.Duration, dst []Event) ([]Event, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	n, err := unix.Kevent(k.kq, nil, k.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	out := dst
	for i := 0; i < n; i++ {
		ev := k.eventBuf[i]
		var got Mask
		switch ev.Filter {
		case unix.EVFILT_READ:
			got = Read
		case unix.EVFILT_WRITE:
			got = Write
		}
		if got != 0 {
			out = append(out, Event{FD: int(ev.Ident), Mask: got})
		}
	}
	return out, nil
}

func (k *kqueueBackend) Close() error {
	return unix.Close(k.kq)
}

func kevent(fd int, filter int16, flags uint16) unix.Kevent_t {
	return unix.Kevent_t{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}
}
