// Package master implements spec.md §4.H's Master: the owner of every
// Thread and the set of live Routers, providing pause/unpause,
// block_all/unblock_all, hot swap orchestration, and signal dispatch.
package master

import (
	"fmt"
	"sync"
	"time"

	"github.com/packetflow/router/internal/logging"
	"github.com/packetflow/router/router"
	"github.com/packetflow/router/thread"
)

// pollInterval is how often BlockAll re-checks each Thread's
// InTaskCallback flag while waiting for acknowledgement.
const pollInterval = 100 * time.Microsecond

// Master owns every Thread in the process, the currently Active Router,
// and any Routers added with AddBackground.
type Master struct {
	mu      sync.RWMutex
	threads []*thread.Thread
	active  *router.Router
	bg      []*router.Router

	wg  sync.WaitGroup
	log *logging.Logger

	tasksRunMu       sync.Mutex
	tasksRunSeen     map[int]uint64
	timersFiredSeen  map[int]uint64
	selectorWakeSeen map[int]uint64
}

// New constructs an empty Master. log may be nil (Noop).
func New(log *logging.Logger) *Master {
	if log == nil {
		log = logging.Noop()
	}
	return &Master{log: log}
}

// AddThread registers a Thread with this Master. Must be called before
// Run starts that Thread's goroutine.
func (m *Master) AddThread(t *thread.Thread) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads = append(m.threads, t)
}

// Threads returns every Thread owned by this Master.
func (m *Master) Threads() []*thread.Thread {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*thread.Thread, len(m.threads))
	copy(out, m.threads)
	return out
}

// ActiveRouter returns the currently Active Router, or nil.
func (m *Master) ActiveRouter() *router.Router {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Run starts every registered Thread's main loop in its own goroutine and
// blocks until every Thread stops (via Stop/Shutdown).
func (m *Master) Run() {
	m.mu.RLock()
	threads := append([]*thread.Thread(nil), m.threads...)
	m.mu.RUnlock()

	for _, t := range threads {
		m.wg.Add(1)
		go func(t *thread.Thread) {
			defer m.wg.Done()
			t.Run()
		}(t)
	}
	m.wg.Wait()
}

// Shutdown requests every Thread to stop and waits for Run to return.
func (m *Master) Shutdown() {
	for _, t := range m.Threads() {
		t.Stop()
	}
	m.wg.Wait()
}

// Pause increments every Thread's soft-pause counter: subsequent Ticks
// skip running tasks but still serve timers and the selector. Returns
// once the increment has been applied to every Thread (the counter is
// observed by each Thread's own goroutine at its next Tick, per spec.md
// §4.H — pause() does not itself wait for that to happen).
func (m *Master) Pause() {
	for _, t := range m.Threads() {
		t.Pause()
	}
}

// Unpause decrements every Thread's soft-pause counter.
func (m *Master) Unpause() {
	for _, t := range m.Threads() {
		t.Unpause()
	}
}

// BlockAll is Pause's stronger sibling: it does not return until every
// Thread has acknowledged it is not currently inside a task callback,
// per spec.md §4.H ("each thread acknowledges it is not currently inside
// a task callback before block_all returns"). Used during element
// cleanup and hot swap, where code outside any Thread's own goroutine is
// about to touch Router/Element state those goroutines could otherwise
// be mid-callback on.
func (m *Master) BlockAll() {
	m.Pause()
	for _, t := range m.Threads() {
		for t.InTaskCallback() {
			time.Sleep(pollInterval)
		}
	}
}

// UnblockAll is Unpause's name under the block_all/unblock_all pairing.
func (m *Master) UnblockAll() { m.Unpause() }

// KillRouter transitions r to Dead: it holds BlockAll for the duration so
// no Thread is mid-callback on any of r's Tasks while Cleanup runs, then
// releases block once teardown completes — spec.md §4.H's "kill_router
// transitions to DEAD, raises the stop flag, and waits (via block_all)
// for each thread to observe it; then each thread removes the router's
// tasks, timers, and selectors from its own structures."
func (m *Master) KillRouter(r *router.Router) {
	m.BlockAll()
	defer m.UnblockAll()

	r.Kill()

	m.mu.Lock()
	if m.active == r {
		m.active = nil
	}
	for i, bg := range m.bg {
		if bg == r {
			m.bg = append(m.bg[:i], m.bg[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
}

// SwapRouter performs spec.md §4.C's hot swap: newRouter (already built
// to Preparing by router.Build) takes state from the current Active
// Router by class+name match, becomes the new Active Router, and the old
// Active Router is given Dead and cleaned up — "Master briefly pauses
// all threads, swaps the active router, gives the new router ACTIVE,
// gives the old router DEAD, resumes threads."
//
// The entire swap runs under BlockAll so no Thread observes a partially
// swapped Router, and take_state runs after BlockAll is held but before
// the old Router's elements are cleaned up.
func (m *Master) SwapRouter(newRouter *router.Router) (old *router.Router, err error) {
	m.BlockAll()
	defer m.UnblockAll()

	m.mu.Lock()
	old = m.active
	m.mu.Unlock()

	if old != nil {
		if errs := newRouter.TakeState(old); len(errs) > 0 {
			return old, fmt.Errorf("master: hot swap take_state: %v", errs)
		}
	}

	if err := newRouter.Activate(false); err != nil {
		return old, fmt.Errorf("master: activate new router: %w", err)
	}

	m.mu.Lock()
	m.active = newRouter
	m.mu.Unlock()

	if old != nil {
		old.Kill()
	}

	HotSwapsTotal.Inc()
	return old, nil
}

// AddBackground activates r as a Background Router: one that runs
// alongside the Active Router (e.g. driving a secondary graph) without
// being the Master's primary hot-swap target.
func (m *Master) AddBackground(r *router.Router) error {
	if err := r.Activate(true); err != nil {
		return err
	}
	m.mu.Lock()
	m.bg = append(m.bg, r)
	m.mu.Unlock()
	return nil
}
