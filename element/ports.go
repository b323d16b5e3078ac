package element

import (
	"fmt"
	"strconv"
	"strings"
)

// PortRange describes the number of ports on one side (input or output) of
// an element: a minimum count and a maximum (-1 means unbounded).
type PortRange struct {
	Min int
	Max int // -1 == unbounded
}

// Accepts reports whether n ports would satisfy this range.
func (r PortRange) Accepts(n int) bool {
	if n < r.Min {
		return false
	}
	return r.Max < 0 || n <= r.Max
}

func (r PortRange) String() string {
	if r.Max < 0 {
		return fmt.Sprintf("%d-", r.Min)
	}
	if r.Min == r.Max {
		return strconv.Itoa(r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// PortCount is the parsed form of an element's port-count descriptor, e.g.
// "1/1", "1-/1-", "0/0-1".
type PortCount struct {
	In  PortRange
	Out PortRange
}

// ParsePortCount parses a descriptor of the form "<in>/<out>", where each
// side is one of "N" (exactly N), "N-" (N or more), or "N-M" (N through M
// inclusive).
func ParsePortCount(s string) (PortCount, error) {
	sides := strings.SplitN(s, "/", 2)
	if len(sides) != 2 {
		return PortCount{}, fmt.Errorf("element: malformed port count %q: want \"in/out\"", s)
	}
	in, err := parseRange(sides[0])
	if err != nil {
		return PortCount{}, fmt.Errorf("element: port count %q: %w", s, err)
	}
	out, err := parseRange(sides[1])
	if err != nil {
		return PortCount{}, fmt.Errorf("element: port count %q: %w", s, err)
	}
	return PortCount{In: in, Out: out}, nil
}

func parseRange(s string) (PortRange, error) {
	if s == "" {
		return PortRange{}, fmt.Errorf("empty range")
	}
	if strings.HasSuffix(s, "-") {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid lower bound in %q: %w", s, err)
		}
		return PortRange{Min: n, Max: -1}, nil
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		lo, err := strconv.Atoi(s[:i])
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid lower bound in %q: %w", s, err)
		}
		hi, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid upper bound in %q: %w", s, err)
		}
		if hi < lo {
			return PortRange{}, fmt.Errorf("range %q has upper bound below lower bound", s)
		}
		return PortRange{Min: lo, Max: hi}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid count %q: %w", s, err)
	}
	return PortRange{Min: n, Max: n}, nil
}

// Direction is the resolved flow direction of a port.
type Direction uint8

const (
	// Agnostic ports take their direction from the flow-direction solver.
	Agnostic Direction = iota
	Push
	Pull
)

func (d Direction) String() string {
	switch d {
	case Push:
		return "push"
	case Pull:
		return "pull"
	default:
		return "agnostic"
	}
}

func directionFromCode(c byte) (Direction, error) {
	switch c {
	case 'a', 'A':
		return Agnostic, nil
	case 'h', 'H':
		return Push, nil
	case 'l', 'L':
		return Pull, nil
	default:
		return 0, fmt.Errorf("element: unknown processing code %q", string(c))
	}
}

// Processing is the parsed per-port processing declaration: one Direction
// per input port and one per output port, as declared by the element's
// processing string (e.g. "a/a", "h/h", "h/l", "l/h").
type Processing struct {
	In  []Direction
	Out []Direction
}

// ParseProcessing expands a processing string against the element's actual
// port counts. A side with fewer codes than ports repeats its last code for
// the remaining ports (matching the shorthand "a" meaning "all ports
// agnostic"); a side with more codes than ports is an error, except that a
// side with zero ports accepts any codes and ignores them.
func ParseProcessing(s string, ports PortCount, nIn, nOut int) (Processing, error) {
	sides := strings.SplitN(s, "/", 2)
	if len(sides) != 2 {
		return Processing{}, fmt.Errorf("element: malformed processing %q: want \"in/out\"", s)
	}
	in, err := expandCodes(sides[0], nIn)
	if err != nil {
		return Processing{}, fmt.Errorf("element: processing %q: %w", s, err)
	}
	out, err := expandCodes(sides[1], nOut)
	if err != nil {
		return Processing{}, fmt.Errorf("element: processing %q: %w", s, err)
	}
	_ = ports // port counts are validated by the caller against actual connections
	return Processing{In: in, Out: out}, nil
}

func expandCodes(s string, n int) ([]Direction, error) {
	if s == "" || n == 0 {
		return make([]Direction, n), nil
	}
	if len(s) > n {
		return nil, fmt.Errorf("%d codes for %d ports", len(s), n)
	}
	out := make([]Direction, n)
	var last Direction
	for i := 0; i < n; i++ {
		if i < len(s) {
			d, err := directionFromCode(s[i])
			if err != nil {
				return nil, err
			}
			last = d
		}
		out[i] = last
	}
	return out, nil
}
