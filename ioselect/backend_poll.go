//go:build unix

package ioselect

import (
	"time"

	"golang.org/x/sys/unix"
)

// pollBackend is the "cheap registrations, scales" tier named in
// spec.md §4.G: a pollfd per registered descriptor, rebuilt into a flat
// slice before every blocking call. Grounded on the teacher's per-platform
// poller files' direct-FD-indexing idiom, re-expressed here as a genuine
// poll(2) backend — spec.md names kqueue/poll/select explicitly, not
// epoll, so this is not the teacher's epoll implementation renamed.
type pollBackend struct {
	fds   map[int]*Mask // fd -> registered mask (pointer so we can mutate)
	order []int         // stable iteration order for building pollfd slices
}

func newPollBackend() (Backend, error) {
	return &pollBackend{fds: make(map[int]*Mask)}, nil
}

func (p *pollBackend) Kind() string { return "poll" }

func (p *pollBackend) Add(fd int, mask Mask) error {
	if m, ok := p.fds[fd]; ok {
		*m |= mask
		return nil
	}
	m := mask
	p.fds[fd] = &m
	p.order = append(p.order, fd)
	return nil
}

func (p *pollBackend) Remove(fd int, mask Mask) error {
	m, ok := p.fds[fd]
	if !ok {
		return nil
	}
	*m &^= mask
	if *m == 0 {
		delete(p.fds, fd)
		for i, f := range p.order {
			if f == fd {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	}
	return nil
}

func (p *pollBackend) Wait(timeout time.Duration, dst []Event) ([]Event, error) {
	pfds := make([]unix.PollFd, 0, len(p.order))
	for _, fd := range p.order {
		m := *p.fds[fd]
		var events int16
		if m&Read != 0 {
			events |= unix.POLLIN
		}
		if m&Write != 0 {
			events |= unix.POLLOUT
		}
		pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: events})
	}

	ms := millisTimeout(timeout)
	n, err := unix.Poll(pfds, ms)
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
	for _, pfd := range pfds {
		if pfd.Revents == 0 {
			continue
		}
		var got Mask
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			got |= Read
		}
		if pfd.Revents&unix.POLLOUT != 0 {
			got |= Write
		}
		if got != 0 {
			out = append(out, Event{FD: int(pfd.Fd), Mask: got})
		}
	}
	return out, nil
}

func (p *pollBackend) Close() error { return nil }

// millisTimeout converts a Go timeout (0 == don't block, <0 == forever)
// into poll(2)'s millisecond convention (0 == don't block, -1 == forever).
func millisTimeout(d time.Duration) int {
	switch {
	case d == 0:
		return 0
	case d < 0:
		return -1
	default:
		ms := d.Milliseconds()
		if ms <= 0 {
			ms = 1
		}
		return int(ms)
	}
}
