package control

import (
	"bufio"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/packetflow/router/element"
	"github.com/packetflow/router/packet"
	"github.com/packetflow/router/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterElement exposes a readable/writable "count" data handler, per
// spec.md §4.I's data-handler shorthand.
type counterElement struct {
	element.Base
	mu    sync.Mutex
	count int
}

func (e *counterElement) Class() string                { return "Counter" }
func (e *counterElement) PortCount() element.PortCount { return element.PortCount{} }
func (e *counterElement) Processing() string           { return "h/h" }
func (e *counterElement) Cleanup(element.CleanupStage) {}
func (e *counterElement) Push(int, *packet.Packet)     {}
func (e *counterElement) Pull(int) *packet.Packet      { return nil }
func (e *counterElement) SimpleAction(pk *packet.Packet) *packet.Packet { return pk }
func (e *counterElement) AddHandlers(reg *element.HandlerRegistrar) {
	reg.DataHandler("count", &e.mu, &e.count)
}

func buildCounterRouter(t *testing.T) (*router.Router, *counterElement) {
	t.Helper()
	var inst *counterElement
	reg := router.NewRegistry()
	reg.Register("Counter", func() element.Element {
		inst = &counterElement{count: 5}
		return inst
	})
	r, err := router.Build(reg, []router.ElementSpec{{Class: "Counter", Name: "c"}}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, r.Activate(false))
	return r, inst
}

// dial spins up a Server over an in-memory pipe and returns the client side
// plus a buffered reader over it for line-oriented assertions.
func dial(t *testing.T, src RouterSource) (net.Conn, *bufio.Reader) {
	t.Helper()
	client, server := net.Pipe()
	srv := New(src, nil)
	go srv.handleConn(server)
	t.Cleanup(func() { client.Close() })
	return client, bufio.NewReader(client)
}

func TestBannerMatchesProtocolVersion(t *testing.T) {
	r, _ := buildCounterRouter(t)
	_, br := dial(t, func() *router.Router { return r })

	line, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Click::ControlSocket/1.1\r\n", line)
}

func TestReadHandlerFramesData(t *testing.T) {
	r, _ := buildCounterRouter(t)
	client, br := dial(t, func() *router.Router { return r })
	_, err := br.ReadString('\n') // banner
	require.NoError(t, err)

	_, err = client.Write([]byte("READ c.count\n"))
	require.NoError(t, err)

	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "200 Read handler c.count OK\n", status)

	dataLine, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "DATA 2\n", dataLine)

	body := make([]byte, 2)
	_, err = br.Read(body)
	require.NoError(t, err)
	assert.Equal(t, "5\n", string(body))
}

func TestWriteHandlerUpdatesField(t *testing.T) {
	r, inst := buildCounterRouter(t)
	client, br := dial(t, func() *router.Router { return r })
	_, err := br.ReadString('\n')
	require.NoError(t, err)

	_, err = client.Write([]byte("WRITE c.count 42\n"))
	require.NoError(t, err)

	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "200 Write handler c.count OK\n", status)

	inst.mu.Lock()
	defer inst.mu.Unlock()
	assert.Equal(t, 42, inst.count)
}

func TestWriteDataHandlerReadsExactLength(t *testing.T) {
	r, inst := buildCounterRouter(t)
	client, br := dial(t, func() *router.Router { return r })
	_, err := br.ReadString('\n')
	require.NoError(t, err)

	payload := "7"
	_, err = client.Write([]byte("WRITEDATA c.count " + "1\n" + payload))
	require.NoError(t, err)

	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "200 Write handler c.count OK\n", status)

	inst.mu.Lock()
	defer inst.mu.Unlock()
	assert.Equal(t, 7, inst.count)
}

func TestReadUnknownElementReturns510(t *testing.T) {
	r, _ := buildCounterRouter(t)
	client, br := dial(t, func() *router.Router { return r })
	_, err := br.ReadString('\n')
	require.NoError(t, err)

	_, err = client.Write([]byte("READ nope.count\n"))
	require.NoError(t, err)

	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "510")
}

func TestReadUnknownHandlerReturns511(t *testing.T) {
	r, _ := buildCounterRouter(t)
	client, br := dial(t, func() *router.Router { return r })
	_, err := br.ReadString('\n')
	require.NoError(t, err)

	_, err = client.Write([]byte("READ c.nope\n"))
	require.NoError(t, err)

	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "511")
}

func TestNoRouterConfiguredReturns540(t *testing.T) {
	client, br := dial(t, func() *router.Router { return nil })
	_, err := br.ReadString('\n')
	require.NoError(t, err)

	_, err = client.Write([]byte("READ c.count\n"))
	require.NoError(t, err)

	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "540")
}

func TestCheckReadAndCheckWrite(t *testing.T) {
	r, _ := buildCounterRouter(t)
	client, br := dial(t, func() *router.Router { return r })
	_, err := br.ReadString('\n')
	require.NoError(t, err)

	_, err = client.Write([]byte("CHECKREAD c.count\n"))
	require.NoError(t, err)
	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "200")

	_, err = client.Write([]byte("CHECKWRITE c.count\n"))
	require.NoError(t, err)
	status, err = br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "200")
}

func TestQuitClosesConnection(t *testing.T) {
	r, _ := buildCounterRouter(t)
	client, br := dial(t, func() *router.Router { return r })
	_, err := br.ReadString('\n')
	require.NoError(t, err)

	_, err = client.Write([]byte("QUIT\n"))
	require.NoError(t, err)
	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "200")

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, err = br.ReadString('\n')
	assert.Error(t, err, "server closes the connection after QUIT")
}

func TestUnknownCommandReturns500(t *testing.T) {
	r, _ := buildCounterRouter(t)
	client, br := dial(t, func() *router.Router { return r })
	_, err := br.ReadString('\n')
	require.NoError(t, err)

	_, err = client.Write([]byte("BOGUS foo\n"))
	require.NoError(t, err)
	status, err := br.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, status, "500")
}
