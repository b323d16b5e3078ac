//go:build unix

package ioselect

import (
	"fmt"
	"runtime"
)

func errUnknownBackend(name string) error {
	return fmt.Errorf("ioselect: unknown backend %q (want kqueue, poll, or select)", name)
}

// Default returns the SelectSet backend fallback chain for the running
// platform, in the order spec.md §4.G specifies: kqueue where available,
// then poll, then select.
//
// Per spec.md §9's "ambiguous source behavior" note, the original
// implementation disables kqueue specifically on macOS, citing historical
// problems, and instructs reimplementations to preserve that exclusion
// rather than guess that the issues are gone. This module honors that at
// the auto-selection level: on darwin, kqueue is skipped by Default (even
// though the kqueueBackend type is still fully built and usable) and poll
// is tried first instead. WithBackend can still request kqueue explicitly
// on darwin for a target known to be fine.
func Default() *SelectSet {
	s, err := New(candidatesFor(runtime.GOOS)...)
	if err != nil {
		// every candidate failed to construct even a select(2) backend,
		// which would mean the process has no usable I/O at all; this is
		// unrecoverable, not a condition callers can meaningfully handle.
		panic(err)
	}
	return s
}

func candidatesFor(goos string) []func() (Backend, error) {
	var candidates []func() (Backend, error)
	if hasKqueue && goos != "darwin" {
		candidates = append(candidates, kqueueCandidate())
	}
	candidates = append(candidates, newPollBackend, newSelectBackend)
	return candidates
}

// WithBackend constructs a SelectSet pinned to exactly the named backend
// ("kqueue", "poll", "select"), overriding auto-detection — the "numeric
// flag selecting SelectSet backend" named in spec.md §6.
func WithBackend(name string) (*SelectSet, error) {
	switch name {
	case "kqueue":
		return New(kqueueCandidate())
	case "poll":
		return New(newPollBackend)
	case "select":
		return New(newSelectBackend)
	default:
		return nil, errUnknownBackend(name)
	}
}
