package element

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// HandlerFlags describes a Handler's capabilities, per spec.md §3/§4.I.
type HandlerFlags uint8

const (
	HandlerReadable HandlerFlags = 1 << iota
	HandlerWritable
	// HandlerParameterizedRead marks a read handler that accepts an
	// argument string (e.g. "read handlername argument").
	HandlerParameterizedRead
	// HandlerCheckbox marks a boolean handler conventionally rendered as
	// "true"/"false".
	HandlerCheckbox
	// HandlerCalm is a rate-limit hint to callers (e.g. ControlSocket
	// polling clients): the value changes slowly, cache it.
	HandlerCalm
)

// ReadFunc returns a handler's current value, optionally given an argument
// string when HandlerParameterizedRead is set.
type ReadFunc func(arg string) (string, error)

// WriteFunc consumes a handler's write payload. A non-nil error is reported
// to the caller as a handler error (protocol code 520).
type WriteFunc func(data string) error

// Handler is a named read and/or write entry point on an Element or on the
// Router root.
type Handler struct {
	Name  string
	Flags HandlerFlags
	Read  ReadFunc
	Write WriteFunc
}

func (h Handler) Readable() bool { return h.Flags&HandlerReadable != 0 }
func (h Handler) Writable() bool { return h.Flags&HandlerWritable != 0 }

// HandlerRegistrar collects the Handlers an Element exposes during
// AddHandlers. Elements call Add (and the DataHandler helpers) rather than
// touching the Router's handler table directly, so a single element's
// handlers can be rebuilt without disturbing the rest.
type HandlerRegistrar struct {
	handlers []Handler
}

func (r *HandlerRegistrar) Add(h Handler) {
	r.handlers = append(r.handlers, h)
}

// Handlers returns every handler added so far, in registration order.
func (r *HandlerRegistrar) Handlers() []Handler {
	out := make([]Handler, len(r.handlers))
	copy(out, r.handlers)
	return out
}

// DataHandler registers a read/write pair over an *int field, guarded by a
// small lock so concurrent ControlSocket reads never observe a torn write —
// the "data handlers" shorthand named in spec.md §4.I.
func (r *HandlerRegistrar) DataHandler(name string, mu *sync.Mutex, field *int) {
	r.Add(Handler{
		Name:  name,
		Flags: HandlerReadable | HandlerWritable,
		Read: func(string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			return strconv.Itoa(*field) + "\n", nil
		},
		Write: func(data string) error {
			n, err := strconv.Atoi(strings.TrimSpace(data))
			if err != nil {
				return fmt.Errorf("element: bad integer %q: %w", data, err)
			}
			mu.Lock()
			*field = n
			mu.Unlock()
			return nil
		},
	})
}

// ReadOnlyDataHandler registers a read-only handler over an *int field.
func (r *HandlerRegistrar) ReadOnlyDataHandler(name string, mu *sync.Mutex, field *int) {
	r.Add(Handler{
		Name:  name,
		Flags: HandlerReadable,
		Read: func(string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			return strconv.Itoa(*field) + "\n", nil
		},
	})
}
