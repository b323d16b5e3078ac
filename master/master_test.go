//go:build unix

package master

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/packetflow/router/element"
	"github.com/packetflow/router/ioselect"
	"github.com/packetflow/router/packet"
	"github.com/packetflow/router/router"
	"github.com/packetflow/router/task"
	"github.com/packetflow/router/thread"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nullBackend never reports readiness; it lets tests build a real
// *ioselect.SelectSet (with a working wake pipe) without depending on any
// actual OS polling primitive reporting real events.
type nullBackend struct{}

func newNullBackend() (ioselect.Backend, error) { return nullBackend{}, nil }

func (nullBackend) Kind() string                            { return "null" }
func (nullBackend) Add(fd int, mask ioselect.Mask) error    { return nil }
func (nullBackend) Remove(fd int, mask ioselect.Mask) error { return nil }
func (nullBackend) Wait(timeout time.Duration, dst []ioselect.Event) ([]ioselect.Event, error) {
	if timeout > 0 {
		time.Sleep(timeout)
	}
	return dst, nil
}
func (nullBackend) Close() error { return nil }

func newTestThread(t *testing.T, id int) *thread.Thread {
	t.Helper()
	ss, err := ioselect.New(newNullBackend)
	require.NoError(t, err)
	th := thread.New(id, ss)
	t.Cleanup(func() { _ = ss.Close() })
	return th
}

// quietElement is a minimal Element used across master tests.
type quietElement struct {
	element.Base
	class      string
	ports      element.PortCount
	processing string
	cleanups   []element.CleanupStage
}

func (e *quietElement) Class() string                { return e.class }
func (e *quietElement) PortCount() element.PortCount { return e.ports }
func (e *quietElement) Processing() string           { return e.processing }
func (e *quietElement) Cleanup(stage element.CleanupStage) {
	e.cleanups = append(e.cleanups, stage)
}
func (e *quietElement) Push(int, *packet.Packet)            {}
func (e *quietElement) Pull(int) *packet.Packet              { return nil }
func (e *quietElement) SimpleAction(pk *packet.Packet) *packet.Packet { return pk }

func mustPorts(t *testing.T, s string) element.PortCount {
	t.Helper()
	pc, err := element.ParsePortCount(s)
	require.NoError(t, err)
	return pc
}

func buildTrivialRouter(t *testing.T) *router.Router {
	t.Helper()
	reg := router.NewRegistry()
	reg.Register("Noop", func() element.Element {
		return &quietElement{class: "Noop", ports: mustPorts(t, "0/0"), processing: "h/h"}
	})
	r, err := router.Build(reg, []router.ElementSpec{{Class: "Noop", Name: "a"}}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Activate(false))
	return r
}

func TestPauseUnpausePropagatesToThreads(t *testing.T) {
	m := New(nil)
	t1 := newTestThread(t, 0)
	t2 := newTestThread(t, 1)
	m.AddThread(t1)
	m.AddThread(t2)

	m.Pause()
	assert.True(t, t1.Paused())
	assert.True(t, t2.Paused())

	m.Unpause()
	assert.False(t, t1.Paused())
	assert.False(t, t2.Paused())
}

func TestBlockAllWaitsForTaskCallbackToClear(t *testing.T) {
	m := New(nil)
	th := newTestThread(t, 0)
	m.AddThread(th)

	entered := make(chan struct{})
	release := make(chan struct{})
	var tk *task.Task
	tk = task.New(nil, 0, 1, func() bool {
		th.Unschedule(tk)
		close(entered)
		<-release
		return true
	})
	th.Schedule(tk)
	tickDone := make(chan struct{})
	go func() {
		th.Tick(time.Now())
		close(tickDone)
	}()
	<-entered

	done := make(chan struct{})
	go func() {
		m.BlockAll()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("BlockAll returned while a task callback was running")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BlockAll did not return")
	}
	<-tickDone
	assert.True(t, th.Paused())
	m.UnblockAll()
	assert.False(t, th.Paused())
}

func TestKillRouterTransitionsToDeadAndRunsCleanup(t *testing.T) {
	m := New(nil)
	m.AddThread(newTestThread(t, 0))

	r := buildTrivialRouter(t)
	m.mu.Lock()
	m.active = r
	m.mu.Unlock()

	m.KillRouter(r)
	assert.Equal(t, router.Dead, r.State())
	assert.Nil(t, m.ActiveRouter())
	el := r.ElementByName("a").(*quietElement)
	assert.Equal(t, []element.CleanupStage{element.CleanupFull}, el.cleanups)
}

func TestSwapRouterActivatesNewAndKillsOld(t *testing.T) {
	m := New(nil)
	m.AddThread(newTestThread(t, 0))

	oldR := buildTrivialRouter(t)
	m.mu.Lock()
	m.active = oldR
	m.mu.Unlock()

	reg := router.NewRegistry()
	reg.Register("Noop", func() element.Element {
		return &quietElement{class: "Noop", ports: mustPorts(t, "0/0"), processing: "h/h"}
	})
	newR, err := router.Build(reg, []router.ElementSpec{{Class: "Noop", Name: "a"}}, nil, nil)
	require.NoError(t, err)

	before := testutilCounterValue(HotSwapsTotal)
	swapped, err := m.SwapRouter(newR)
	require.NoError(t, err)
	assert.Same(t, oldR, swapped)
	assert.Equal(t, router.Dead, oldR.State())
	assert.Equal(t, router.Active, newR.State())
	assert.Same(t, newR, m.ActiveRouter())
	assert.Equal(t, before+1, testutilCounterValue(HotSwapsTotal))
}

func TestSwapRouterWithNoPriorActive(t *testing.T) {
	m := New(nil)
	m.AddThread(newTestThread(t, 0))

	reg := router.NewRegistry()
	reg.Register("Noop", func() element.Element {
		return &quietElement{class: "Noop", ports: mustPorts(t, "0/0"), processing: "h/h"}
	})
	newR, err := router.Build(reg, []router.ElementSpec{{Class: "Noop", Name: "a"}}, nil, nil)
	require.NoError(t, err)

	old, err := m.SwapRouter(newR)
	require.NoError(t, err)
	assert.Nil(t, old)
	assert.Same(t, newR, m.ActiveRouter())
}

func TestObserveTracksTasksRunAsDelta(t *testing.T) {
	m := New(nil)
	th := newTestThread(t, 42)
	m.AddThread(th)

	m.Observe()
	first := testutilCounterVecValue(TasksRunTotal, "42")

	tk := task.New(nil, 42, 1, func() bool { return true })
	th.Schedule(tk)
	th.Tick(time.Now())
	th.Tick(time.Now())
	m.Observe()
	second := testutilCounterVecValue(TasksRunTotal, "42")
	// the lone task stays scheduled, so each Tick runs it once per slot of
	// the Thread's default tasks-per-iter budget of 128
	assert.Equal(t, first+2*128, second)
}

func TestSignalDispatchInvokesMatchedHandler(t *testing.T) {
	reg := router.NewRegistry()
	var written []string
	reg.Register("Sink", func() element.Element {
		el := &handlerElement{}
		el.onWrite = func(data string) error {
			written = append(written, data)
			return nil
		}
		return el
	})
	r, err := router.Build(reg, []router.ElementSpec{{Class: "Sink", Name: "s"}}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Activate(false))

	d := NewSignalDispatcher(nil)
	d.Register(syscall.SIGUSR1, r, "s.reload")

	go d.Listen()
	t.Cleanup(d.Stop)

	err = syscall.Kill(os.Getpid(), syscall.SIGUSR1)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(written) == 1 }, time.Second, time.Millisecond)
}

// handlerElement exposes a single writable "reload" handler for the signal
// dispatch test above.
type handlerElement struct {
	element.Base
	onWrite func(string) error
}

func (e *handlerElement) Class() string                { return "Sink" }
func (e *handlerElement) PortCount() element.PortCount { return element.PortCount{} }
func (e *handlerElement) Processing() string           { return "h/h" }
func (e *handlerElement) Cleanup(element.CleanupStage) {}
func (e *handlerElement) Push(int, *packet.Packet)     {}
func (e *handlerElement) Pull(int) *packet.Packet       { return nil }
func (e *handlerElement) SimpleAction(pk *packet.Packet) *packet.Packet { return pk }
func (e *handlerElement) AddHandlers(reg *element.HandlerRegistrar) {
	reg.Add(element.Handler{
		Name:  "reload",
		Flags: element.HandlerWritable,
		Write: e.onWrite,
	})
}
