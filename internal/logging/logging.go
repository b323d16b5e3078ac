// Package logging defines the structured logging facade shared by every
// component (router, task, thread, master, control, namespace). It wraps
// logiface rather than a concrete backend so the library packages stay
// logger-agnostic; cmd/routerd wires in the real zerolog-backed writer.
package logging

import (
	"io"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the facade type accepted by every package constructor in this
// module. A nil *Logger, and a Logger with no writer configured, are both
// safe no-ops (logiface.Logger guards every entry point on its own writer
// being non-nil), so callers that don't care about logs can pass Noop().
//
// The event type is izerolog's *izerolog.Event, since New wires the real
// logger through logiface-zerolog: logiface.Logger is invariant in its
// event type parameter, so the facade has to standardize on the same
// instantiation logiface-zerolog's WithZerolog option produces.
type Logger = logiface.Logger[*izerolog.Event]

// Noop returns a Logger that discards everything written to it.
func Noop() *Logger {
	return logiface.New[*izerolog.Event]()
}

// New builds a Logger backed by zerolog, writing JSON-lines to w at the
// given minimum level ("debug", "info", "warn", "error"; an unrecognized
// level falls back to zerolog's default). cmd/routerd is the only caller
// that needs a non-Noop Logger; every library package here only ever
// depends on the Logger facade.
func New(w io.Writer, level string) *Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(level); err == nil {
		zl = zl.Level(lvl)
	}
	return logiface.New(izerolog.WithZerolog(zl))
}

// Fields commonly attached across components. Using named helpers (rather
// than ad-hoc string keys scattered through every package) keeps log output
// greppable across the whole router.
const (
	FieldElement   = "element"
	FieldLandmark  = "landmark"
	FieldThread    = "thread"
	FieldRouter    = "router"
	FieldHandler   = "handler"
	FieldComponent = "component"
)
