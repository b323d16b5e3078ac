// Package control implements spec.md §4.I/§6's line-oriented ControlSocket
// protocol over a TCP or Unix-domain stream: READ/WRITE/WRITEDATA/
// CHECKREAD/CHECKWRITE/QUIT against a Router's element and global handler
// tables, framed responses with a three-digit code, and binary-safe
// DATA-length framing for handler payloads.
package control

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/packetflow/router/element"
	"github.com/packetflow/router/internal/logging"
	"github.com/packetflow/router/router"
	"github.com/prometheus/client_golang/prometheus"
)

// ConnectionsTotal and CommandsTotal are SPEC_FULL.md §6's ControlSocket
// observability counters: total accepted connections, and total commands
// processed (labeled by command verb, e.g. "READ", "WRITE").
var (
	ConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "router_control_connections_total",
			Help: "Total number of ControlSocket connections accepted",
		},
	)

	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_control_commands_total",
			Help: "Total number of ControlSocket commands processed, by command verb",
		},
		[]string{"command"},
	)
)

func init() {
	prometheus.MustRegister(ConnectionsTotal)
	prometheus.MustRegister(CommandsTotal)
}

// protocolMajor/protocolMinor are reported in the banner. Minor 1 adds the
// HELP command; clients that only understand minor 0 can ignore it.
const (
	protocolMajor = 1
	protocolMinor = 1
)

// Response codes, per spec.md §4.I's table.
const (
	codeOK               = 200
	codeOKWarning        = 220
	codeSyntaxError      = 500
	codeUnimplemented    = 501
	codeNoSuchElement    = 510
	codeNoSuchHandler    = 511
	codeHandlerError     = 520
	codePermissionDenied = 530
	codeNoRouterConfig   = 540
)

// writeTimeout bounds a single response write. A client that stops reading
// long enough to block a Write past this deadline is treated as the slow
// connection spec.md §5 says to disconnect past a high-water mark; Go's
// net.Conn exposes no byte-level send-buffer introspection, so a blocked
// write is the available proxy for "buffered past the high-water mark".
const writeTimeout = 30 * time.Second

// RouterSource returns the Router handler lookups should currently target,
// or nil if no router is configured (spec.md §4.I code 540).
type RouterSource func() *router.Router

// Server accepts ControlSocket connections and dispatches commands against
// the Router returned by its RouterSource. Concurrent handler reads share
// accessMu.RLock; handler writes take it exclusively — spec.md §5's "Master
// holds a read-write lock; writers request exclusive access; concurrent
// readers share the lock", applied locally rather than via the heavier
// Master.BlockAll (reserved for router-lifecycle operations: kill/hot-swap).
type Server struct {
	source RouterSource
	log    *logging.Logger

	accessMu sync.RWMutex
}

// New constructs a Server over source. log may be nil.
func New(source RouterSource, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{source: source, log: log}
}

// Serve accepts connections from ln until it returns an error (typically
// because ln was closed), running one goroutine per accepted connection —
// spec.md §5's "one thread per accepted connection" concurrency model.
func (s *Server) Serve(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(nc)
	}
}

func (s *Server) handleConn(nc net.Conn) {
	defer nc.Close()
	ConnectionsTotal.Inc()
	c := &conn{
		srv: s,
		nc:  nc,
		r:   bufio.NewReader(nc),
		w:   bufio.NewWriter(nc),
	}
	if err := c.writeLine(fmt.Sprintf("Click::ControlSocket/%d.%d\r\n", protocolMajor, protocolMinor)); err != nil {
		return
	}
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if !c.dispatch(line) {
			return
		}
	}
}

// conn is one accepted ControlSocket connection's read/dispatch state.
type conn struct {
	srv *Server
	nc  net.Conn
	r   *bufio.Reader
	w   *bufio.Writer
}

func (c *conn) writeLine(s string) error {
	_ = c.nc.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := c.w.WriteString(s); err != nil {
		return err
	}
	return c.w.Flush()
}

func (c *conn) respond(code int, final bool, text string) bool {
	sep := byte('-')
	if final {
		sep = ' '
	}
	return c.writeLine(fmt.Sprintf("%03d%c%s\n", code, sep, text)) == nil
}

// dispatch parses and runs one command line, writing its response. It
// returns false when the connection should close (QUIT, or a write error).
func (c *conn) dispatch(line string) bool {
	fields := strings.SplitN(line, " ", 2)
	cmd := strings.ToUpper(fields[0])
	rest := ""
	if len(fields) == 2 {
		rest = fields[1]
	}

	CommandsTotal.WithLabelValues(cmd).Inc()

	switch cmd {
	case "QUIT":
		c.respond(codeOK, true, "Bye")
		return false
	case "HELP":
		return c.respond(codeOK, true, "READ WRITE WRITEDATA CHECKREAD CHECKWRITE QUIT HELP")
	case "READ":
		return c.handleRead(rest)
	case "WRITE":
		return c.handleWrite(rest)
	case "WRITEDATA":
		return c.handleWriteData(rest)
	case "CHECKREAD":
		return c.handleCheck(rest, true)
	case "CHECKWRITE":
		return c.handleCheck(rest, false)
	default:
		return c.respond(codeSyntaxError, true, "Unknown command "+cmd)
	}
}

func (c *conn) handleRead(rest string) bool {
	name, arg, _ := strings.Cut(rest, " ")
	if name == "" {
		return c.respond(codeSyntaxError, true, "READ requires a handler name")
	}
	h, err := c.resolve(name)
	if err != nil {
		return c.respondErr(err)
	}
	if !h.Readable() {
		return c.respond(codePermissionDenied, true, "handler "+name+" is not readable")
	}
	c.srv.accessMu.RLock()
	value, rerr := h.Read(arg)
	c.srv.accessMu.RUnlock()
	if rerr != nil {
		return c.respond(codeHandlerError, true, rerr.Error())
	}
	// The code line is final ("NNN ", not "NNN-"): per spec.md §4.I, a
	// successful read response is the code line followed directly by the
	// unprefixed "DATA <N>\n<N bytes>" payload frame, not another coded line.
	if !c.respond(codeOK, true, "Read handler "+name+" OK") {
		return false
	}
	return c.writeData(value)
}

func (c *conn) handleWrite(rest string) bool {
	name, data, _ := strings.Cut(rest, " ")
	if name == "" {
		return c.respond(codeSyntaxError, true, "WRITE requires a handler name")
	}
	return c.doWrite(name, data)
}

func (c *conn) handleWriteData(rest string) bool {
	name, lenStr, ok := strings.Cut(rest, " ")
	if !ok {
		return c.respond(codeSyntaxError, true, "WRITEDATA requires a handler name and length")
	}
	n, err := strconv.Atoi(strings.TrimSpace(lenStr))
	if err != nil || n < 0 {
		return c.respond(codeSyntaxError, true, "WRITEDATA length must be a non-negative integer")
	}
	buf := make([]byte, n)
	if _, err := readFull(c.r, buf); err != nil {
		return false
	}
	return c.doWrite(name, string(buf))
}

func (c *conn) doWrite(name, data string) bool {
	h, err := c.resolve(name)
	if err != nil {
		return c.respondErr(err)
	}
	if !h.Writable() {
		return c.respond(codePermissionDenied, true, "handler "+name+" is not writable")
	}
	c.srv.accessMu.Lock()
	werr := h.Write(data)
	c.srv.accessMu.Unlock()
	if werr != nil {
		return c.respond(codeHandlerError, true, werr.Error())
	}
	return c.respond(codeOK, true, "Write handler "+name+" OK")
}

func (c *conn) handleCheck(rest string, forRead bool) bool {
	name := strings.TrimSpace(rest)
	if name == "" {
		return c.respond(codeSyntaxError, true, "requires a handler name")
	}
	h, err := c.resolve(name)
	if err != nil {
		return c.respondErr(err)
	}
	ok := h.Readable()
	if !forRead {
		ok = h.Writable()
	}
	if !ok {
		return c.respond(codePermissionDenied, true, name+" does not support this operation")
	}
	return c.respond(codeOK, true, name+" OK")
}

// writeData frames value per spec.md §4.I: "DATA <N>\n<N bytes>", where N is
// the exact byte count (value is not itself newline-terminated by this
// framing — it is sent exactly as given, including any embedded newlines).
func (c *conn) writeData(value string) bool {
	_ = c.nc.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := fmt.Fprintf(c.w, "DATA %d\n", len(value)); err != nil {
		return false
	}
	if _, err := c.w.WriteString(value); err != nil {
		return false
	}
	return c.w.Flush() == nil
}

// protoError carries a protocol response code alongside a human message.
type protoError struct {
	code int
	msg  string
}

func (e *protoError) Error() string { return e.msg }

func (c *conn) respondErr(err error) bool {
	if pe, ok := err.(*protoError); ok {
		return c.respond(pe.code, true, pe.msg)
	}
	return c.respond(codeSyntaxError, true, err.Error())
}

// resolve looks up a handler by "<element>.<handler>" or a bare
// Router-global "<handler>" name, against the Server's current Router.
func (c *conn) resolve(name string) (element.Handler, error) {
	r := c.srv.source()
	if r == nil {
		return element.Handler{}, &protoError{codeNoRouterConfig, "no router configured"}
	}

	elemName, handlerName, hasDot := splitHandlerName(name)
	var handlers []element.Handler
	if hasDot {
		el := r.ElementByName(elemName)
		if el == nil {
			return element.Handler{}, &protoError{codeNoSuchElement, "no such element " + elemName}
		}
		var reg element.HandlerRegistrar
		el.AddHandlers(&reg)
		handlers = reg.Handlers()
	} else {
		handlers = r.GlobalHandlers()
	}
	for _, h := range handlers {
		if h.Name == handlerName {
			return h, nil
		}
	}
	return element.Handler{}, &protoError{codeNoSuchHandler, "no such handler " + name}
}

func splitHandlerName(name string) (elementName, handlerName string, hasDot bool) {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i], name[i+1:], true
	}
	return "", name, false
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
