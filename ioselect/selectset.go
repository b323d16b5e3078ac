//go:build unix

// Package ioselect implements the per-thread file-descriptor readiness
// multiplexer (spec.md §3/§4.G): add_select/remove_select over a backend
// chosen at construction (kqueue, poll, or select), with a self-pipe that
// lets other threads interrupt a blocking wait.
package ioselect

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Mask selects which readiness events a registration cares about.
type Mask uint8

const (
	Read Mask = 1 << iota
	Write
)

func (m Mask) String() string {
	switch m {
	case Read:
		return "read"
	case Write:
		return "write"
	case Read | Write:
		return "read|write"
	default:
		return "none"
	}
}

// Event reports that fd became ready for the directions in Mask.
type Event struct {
	FD   int
	Mask Mask
}

// ErrConflict is returned by Add when a direction of fd is already owned
// by a different registration — spec.md §3: "at most one element per (fd,
// direction)".
var ErrConflict = errors.New("ioselect: fd direction already registered")

// ErrNotRegistered is returned by Remove for an owner/fd/mask combination
// that isn't currently registered.
var ErrNotRegistered = errors.New("ioselect: fd not registered")

// Backend is the per-OS readiness-polling primitive. Implementations are
// not safe for concurrent use; SelectSet serializes all access.
type Backend interface {
	Kind() string
	Add(fd int, mask Mask) error
	Remove(fd int, mask Mask) error
	// Wait blocks for at most timeout (0 == don't block, <0 == forever),
	// appending ready events to dst and returning the extended slice.
	Wait(timeout time.Duration, dst []Event) ([]Event, error)
	Close() error
}

// registration records which owner holds one direction of one fd.
type regKey struct {
	fd  int
	dir Mask // exactly Read or exactly Write
}

// SelectSet is a per-thread, single-owner-thread readiness multiplexer.
// Only the owning thread may call Wait; any thread may call
// AddSelect/RemoveSelect, which do not write the wake pipe: they wait on mu
// until a concurrently blocked Wait returns (a caller can call Wake first
// to make that prompt).
// mu serializes every access to owners and every call into backend —
// spec.md §4.G's "the SelectSet has a lock" — so a cross-thread
// AddSelect/RemoveSelect can never race the owning thread's Wait.
type SelectSet struct {
	mu      sync.Mutex
	backend Backend
	owners  map[regKey]any

	wake *wakePipe
}

// New constructs a SelectSet using the first working backend from
// candidates, in order (see Default in backends.go for the spec-mandated fallback
// order). At least one candidate must succeed or New returns an error.
func New(candidates ...func() (Backend, error)) (*SelectSet, error) {
	var lastErr error
	for _, try := range candidates {
		b, err := try()
		if err != nil {
			lastErr = err
			continue
		}
		wp, err := newWakePipe(b)
		if err != nil {
			_ = b.Close()
			lastErr = err
			continue
		}
		return &SelectSet{backend: b, owners: make(map[regKey]any), wake: wp}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("ioselect: no backend candidates given")
	}
	return nil, fmt.Errorf("ioselect: no usable backend: %w", lastErr)
}

// Kind reports the active backend's name ("kqueue", "poll", or "select").
// It is a plain accessor; no handler exposes it.
func (s *SelectSet) Kind() string { return s.backend.Kind() }

// AddSelect registers owner's interest in fd becoming ready for any
// direction set in mask. Each direction may have at most one owner.
func (s *SelectSet) AddSelect(fd int, owner any, mask Mask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dir := range []Mask{Read, Write} {
		if mask&dir == 0 {
			continue
		}
		key := regKey{fd, dir}
		if existing, ok := s.owners[key]; ok && existing != owner {
			return fmt.Errorf("%w: fd=%d dir=%s", ErrConflict, fd, dir)
		}
	}
	if err := s.backend.Add(fd, mask); err != nil {
		return err
	}
	for _, dir := range []Mask{Read, Write} {
		if mask&dir != 0 {
			s.owners[regKey{fd, dir}] = owner
		}
	}
	return nil
}

// RemoveSelect unregisters owner's interest in fd for the given mask.
func (s *SelectSet) RemoveSelect(fd int, owner any, mask Mask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, dir := range []Mask{Read, Write} {
		if mask&dir == 0 {
			continue
		}
		key := regKey{fd, dir}
		if s.owners[key] != owner {
			return fmt.Errorf("%w: fd=%d dir=%s", ErrNotRegistered, fd, dir)
		}
	}
	if err := s.backend.Remove(fd, mask); err != nil {
		return err
	}
	for _, dir := range []Mask{Read, Write} {
		if mask&dir != 0 {
			delete(s.owners, regKey{fd, dir})
		}
	}
	return nil
}

// Wake interrupts a concurrent Wait from any thread, per spec.md §4.G's
// "other threads that wish to wake it write one byte to the wake pipe".
func (s *SelectSet) Wake() error {
	return s.wake.write()
}

// Wait blocks for up to timeout (see Backend.Wait), always also watching
// the wake pipe; any wake-pipe bytes are drained before returning so the
// next registration is observed on re-entry. Wake-pipe events are filtered
// out of the returned slice — callers only see user-registered fds.
func (s *SelectSet) Wait(timeout time.Duration) ([]Event, error) {
	s.mu.Lock()
	events, err := s.backend.Wait(timeout, nil)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := events[:0]
	for _, ev := range events {
		if ev.FD == s.wake.readFD {
			_ = s.wake.drain()
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Close releases the backend and the wake pipe.
func (s *SelectSet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err1 := s.backend.Close()
	err2 := s.wake.close()
	if err1 != nil {
		return err1
	}
	return err2
}
