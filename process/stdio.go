package process

import (
	"fmt"
	"math"
	"strconv"
)

// StdioKind says where one of a child's standard streams goes.
type StdioKind int

const (
	StdioPipe StdioKind = iota
	StdioIgnore
	StdioInherit
	StdioFD
)

// StdioMode is the redirection for a single standard stream. FD is only
// meaningful when Kind is StdioFD.
type StdioMode struct {
	Kind StdioKind
	FD   int
}

var (
	Pipe    = StdioMode{Kind: StdioPipe}
	Ignore  = StdioMode{Kind: StdioIgnore}
	Inherit = StdioMode{Kind: StdioInherit}
)

// FD redirects a stream to a duplicate of an existing descriptor.
func FD(fd int) StdioMode {
	return StdioMode{Kind: StdioFD, FD: fd}
}

func (m StdioMode) String() string {
	switch m.Kind {
	case StdioPipe:
		return "pipe"
	case StdioIgnore:
		return "ignore"
	case StdioInherit:
		return "inherit"
	case StdioFD:
		return "fd:" + strconv.Itoa(m.FD)
	}
	return fmt.Sprintf("StdioMode(%d)", int(m.Kind))
}

// Stdio holds the modes for stdin, stdout and stderr, in that order.
type Stdio [3]StdioMode

// DefaultStdio pipes all three streams.
func DefaultStdio() Stdio {
	return Stdio{Pipe, Pipe, Pipe}
}

// ParseStdioMode parses one of the "pipe", "ignore" or "inherit" tokens.
func ParseStdioMode(token string) (StdioMode, error) {
	switch token {
	case "pipe":
		return Pipe, nil
	case "ignore":
		return Ignore, nil
	case "inherit":
		return Inherit, nil
	}
	return StdioMode{}, &ArgumentError{
		Msg: fmt.Sprintf("Invalid stdio %q. Expected one of: pipe, ignore, inherit", token),
	}
}

// ResolveStdio turns a loosely typed stdio value into three modes. It accepts
// nil (all pipes), a single token applied to every stream, or a slice whose
// first three elements configure stdin, stdout and stderr. Within a slice,
// numbers are descriptors, nil is a pipe, and anything past index 2 is
// ignored.
func ResolveStdio(spec any) (Stdio, error) {
	stdio := DefaultStdio()

	switch v := spec.(type) {
	case nil:
		return stdio, nil

	case string:
		mode, err := ParseStdioMode(v)
		if err != nil {
			return stdio, err
		}
		return Stdio{mode, mode, mode}, nil

	case []any:
		for i, item := range v {
			if i > 2 {
				break
			}
			mode, err := resolveStdioItem(item)
			if err != nil {
				return stdio, err
			}
			stdio[i] = mode
		}
		return stdio, nil
	}

	// Anything else leaves the defaults in place
	return stdio, nil
}

func resolveStdioItem(item any) (StdioMode, error) {
	switch v := item.(type) {
	case string:
		return ParseStdioMode(v)
	case int:
		return FD(v), nil
	case int64:
		return FD(int(v)), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Pipe, nil
		}
		return FD(int(v)), nil
	}
	return Pipe, nil
}
