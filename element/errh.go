package element

import (
	"fmt"

	"github.com/packetflow/router/internal/logging"
)

// Severity is the three-level taxonomy spec.md §7 assigns to the error
// sink: informational, non-fatal anomaly, fatal-for-the-current-operation.
type Severity int

const (
	SeverityMessage Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "message"
	}
}

// Report is one message collected by an ErrorHandler, tagged with the
// landmark of the element (or configuration location) that produced it.
type Report struct {
	Severity Severity
	Landmark string
	Text     string
}

func (r Report) String() string {
	if r.Landmark == "" {
		return r.Text
	}
	return r.Landmark + ": " + r.Text
}

// ErrorHandler is the sink object ("errh") passed to Configure and
// Initialize. It collects reports for the router bring-up failure list and,
// per SPEC_FULL.md §7, mirrors every call into a structured log record at
// the matching level.
type ErrorHandler struct {
	log      *logging.Logger
	reports  []Report
	landmark string // default landmark for calls that don't set one explicitly
}

// NewErrorHandler builds an ErrorHandler that tags reports with landmark by
// default and mirrors them through log (nil is treated as a no-op logger).
func NewErrorHandler(landmark string, log *logging.Logger) *ErrorHandler {
	if log == nil {
		log = logging.Noop()
	}
	return &ErrorHandler{log: log, landmark: landmark}
}

// WithLandmark returns a shallow copy of the handler reporting under a
// different default landmark (e.g. one Element derives a per-call handler
// from the Router's handler so reports are tagged with its own dotted name).
func (e *ErrorHandler) WithLandmark(landmark string) *ErrorHandler {
	cp := *e
	cp.landmark = landmark
	return &cp
}

func (e *ErrorHandler) record(sev Severity, landmark, text string) {
	if landmark == "" {
		landmark = e.landmark
	}
	r := Report{Severity: sev, Landmark: landmark, Text: text}
	e.reports = append(e.reports, r)

	entry := e.log.Info()
	switch sev {
	case SeverityWarning:
		entry = e.log.Warning()
	case SeverityError:
		entry = e.log.Err()
	}
	entry.Str(logging.FieldLandmark, landmark).Log(text)
}

// Message records an informational report.
func (e *ErrorHandler) Message(format string, args ...any) {
	e.record(SeverityMessage, "", fmt.Sprintf(format, args...))
}

// Warning records a non-fatal anomaly.
func (e *ErrorHandler) Warning(format string, args ...any) {
	e.record(SeverityWarning, "", fmt.Sprintf(format, args...))
}

// Error records a fatal-for-the-current-operation report and returns a
// non-nil error so callers can `return errh.Error(...)` directly from
// Configure/Initialize.
func (e *ErrorHandler) Error(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	e.record(SeverityError, "", text)
	return fmt.Errorf("%s", text)
}

// Reports returns every report collected so far, oldest first.
func (e *ErrorHandler) Reports() []Report {
	out := make([]Report, len(e.reports))
	copy(out, e.reports)
	return out
}

// HasErrors reports whether any SeverityError report was recorded.
func (e *ErrorHandler) HasErrors() bool {
	for _, r := range e.reports {
		if r.Severity == SeverityError {
			return true
		}
	}
	return false
}
